package wiki

import (
	"strings"

	"golang.org/x/net/html"
)

// walkNodes visits every node under root in document order until the
// visitor returns false.
func walkNodes(root *html.Node, visit func(*html.Node) bool) {
	var walk func(*html.Node) bool
	walk = func(n *html.Node) bool {
		if !visit(n) {
			return false
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			if !walk(child) {
				return false
			}
		}
		return true
	}
	walk(root)
}

func attrValue(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, name string) bool {
	for _, class := range strings.Fields(attrValue(n, "class")) {
		if class == name {
			return true
		}
	}
	return false
}

// elementsByClass collects elements carrying the given class.
func elementsByClass(root *html.Node, name string) []*html.Node {
	var found []*html.Node
	walkNodes(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && hasClass(n, name) {
			found = append(found, n)
		}
		return true
	})
	return found
}

// elementsByTag collects elements with the given tag name.
func elementsByTag(root *html.Node, tag string) []*html.Node {
	var found []*html.Node
	walkNodes(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == tag {
			found = append(found, n)
		}
		return true
	})
	return found
}

// elementByID returns the first element with the given id, or nil.
func elementByID(root *html.Node, id string) *html.Node {
	var found *html.Node
	walkNodes(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && attrValue(n, "id") == id {
			found = n
			return false
		}
		return true
	})
	return found
}

// firstElement returns the first descendant with the given tag, or nil.
func firstElement(root *html.Node, tag string) *html.Node {
	var found *html.Node
	walkNodes(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == tag {
			found = n
			return false
		}
		return true
	})
	return found
}

// nodeText concatenates all text under a node, unfiltered.
func nodeText(n *html.Node) string {
	var sb strings.Builder
	walkNodes(n, func(node *html.Node) bool {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
		}
		return true
	})
	return sb.String()
}
