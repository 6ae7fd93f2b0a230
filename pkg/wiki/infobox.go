package wiki

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/net/html"
)

var (
	dataSortPattern    = regexp.MustCompile(`data-sort-value=(?:"|&quot;).*?(?:"|&quot;)`)
	displayNonePattern = regexp.MustCompile(`(?i)display\s*:\s*none`)
	spaceRunPattern    = regexp.MustCompile(`\s+`)
)

// InfoboxText fetches an entry page and renders its infobox as plain
// text: the box title, the meta description, and one bullet per
// section/detail row.
func (c *Client) InfoboxText(ctx context.Context, pageURL string) (string, error) {
	doc, _, err := c.fetchDocument(ctx, pageURL)
	if err != nil {
		return "", fmt.Errorf("fetch entry page: %w", err)
	}

	description := metaDescription(doc)

	infobox := elementByID(doc, "infoboxborder")
	if infobox == nil {
		if description != "" {
			return "ő " + description, nil
		}
		return "", nil
	}

	var lines []string
	if header := elementByID(infobox, "infoboxheader"); header != nil {
		if title := strings.TrimSpace(nodeText(header)); title != "" {
			lines = append(lines, title)
			if description != "" {
				lines = append(lines, "ő "+description)
			}
		}
	}

	for _, row := range elementsByTag(infobox, "tr") {
		section := elementByID(row, "infoboxsection")
		detail := elementByID(row, "infoboxdetail")
		if section == nil || detail == nil {
			continue
		}

		sectionText := strings.TrimSpace(nodeText(section))
		detailText := collapseSpace(visibleText(detail))
		if sectionText == "" || detailText == "" {
			continue
		}

		lines = append(lines, fmt.Sprintf("• %s：%s", sectionText, detailText))
	}

	return strings.Join(lines, "\n"), nil
}

// metaDescription extracts and cleans the page's meta description. The
// wiki embeds HTML fragments (including hidden sort-value spans) inside
// the attribute, so it is re-parsed and filtered like regular markup.
func metaDescription(doc *html.Node) string {
	var content string
	for _, meta := range elementsByTag(doc, "meta") {
		if attrValue(meta, "name") == "description" {
			content = attrValue(meta, "content")
			break
		}
	}
	if content == "" {
		return ""
	}

	content = dataSortPattern.ReplaceAllString(content, "")
	fragment, err := html.Parse(strings.NewReader(content))
	if err != nil {
		return collapseSpace(content)
	}

	return collapseSpace(visibleText(fragment))
}

// visibleText renders a node to text, skipping display:none subtrees and
// replacing images with spaces so adjacent numbers stay separated.
func visibleText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		switch node.Type {
		case html.TextNode:
			sb.WriteString(node.Data)
			return
		case html.ElementNode:
			if displayNonePattern.MatchString(attrValue(node, "style")) {
				return
			}
			if node.Data == "img" {
				sb.WriteString(" ")
				return
			}
		}
		for child := node.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
		if node.Type == html.ElementNode {
			// Separate block-ish siblings the way a renderer would.
			sb.WriteString(" ")
		}
	}
	walk(n)

	return sb.String()
}

func collapseSpace(text string) string {
	return strings.TrimSpace(spaceRunPattern.ReplaceAllString(text, " "))
}
