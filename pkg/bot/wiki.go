package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Moitr/stardew-qq-wikibot/pkg/onebot"
	"github.com/Moitr/stardew-qq-wikibot/pkg/wiki"
)

var wikiKeywords = []string{"wiki", "查询", "搜索"}

// wikiQuery reports whether text is a wiki command and extracts the
// query after the keyword. An optional leading '.' and any keyword
// case are accepted.
func wikiQuery(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	trimmed = strings.TrimPrefix(trimmed, ".")

	lower := strings.ToLower(trimmed)
	for _, keyword := range wikiKeywords {
		if strings.HasPrefix(lower, keyword) {
			return strings.TrimSpace(trimmed[len(keyword):]), true
		}
	}

	return "", false
}

func isWikiCommand(text string) bool {
	_, ok := wikiQuery(text)
	return ok
}

// isDigits matches the original selection trigger: a message whose
// trimmed text is digits only.
func isDigits(text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	for _, r := range text {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// handleWiki runs one search: rate limit, search, then either a direct
// answer with screenshot, a disambiguation prompt with a 60s pending
// session, or the empty-result notice.
func (b *Bot) handleWiki(ctx context.Context, api Actions, ev onebot.InboundEvent) {
	query, _ := wikiQuery(ev.Text)
	key := Key{GroupID: ev.GroupID, UserID: ev.UserID}

	if ok, retryAfter := b.wikiLimit.Allow(key); !ok {
		b.reply(api, ev, fmt.Sprintf("查询频繁，请 %d 秒后再试~", int(retryAfter.Seconds())))
		return
	}

	if query == "" {
		b.reply(api, ev, "乌~啦～输入要查询的内容，如.Wiki 乌·呀·咿·哈")
		return
	}

	result, err := b.searcher.Search(ctx, query)
	if err != nil {
		b.log.Error("Wiki search failed", "query", query, "error", err)
		b.reply(api, ev, "查询失败，请重试")
		return
	}

	switch result.Kind {
	case wiki.KindEmpty:
		b.reply(api, ev, result.Text)

	case wiki.KindDirect:
		b.reply(api, ev, result.Text)
		b.sendScreenshot(ctx, api, ev, query, result.Candidates[0].URL)

	case wiki.KindDisambiguation:
		prompt := fmt.Sprintf("%s\n请在60秒发送：1-%d", result.Text, len(result.Candidates))
		b.reply(api, ev, prompt)
		b.pending.Begin(key, pendingQuery{
			api:        api,
			candidates: result.Candidates,
			messageID:  ev.MessageID,
		})
	}
}

// handleSelection resolves a digits-only message against the sender's
// pending disambiguation. With no pending session the digits are an
// ordinary message and only the incidental poke applies.
func (b *Bot) handleSelection(ctx context.Context, api Actions, ev onebot.InboundEvent) {
	key := Key{GroupID: ev.GroupID, UserID: ev.UserID}

	p, exists := b.pending.Get(key)
	if !exists {
		b.maybePoke(ev.GroupID, api, ev.UserID)
		return
	}
	if len(p.candidates) == 0 {
		b.pending.Drop(key)
		return
	}

	choice, err := strconv.Atoi(strings.TrimSpace(ev.Text))
	if err != nil || choice < 1 || choice > len(p.candidates) {
		b.reply(api, ev, fmt.Sprintf("请输入有效的数字（1-%d）", len(p.candidates)))
		return
	}

	// Consume before the slow work so the expiry timer cannot announce
	// a timeout for a selection already being served.
	p, exists = b.pending.Take(key)
	if !exists {
		return
	}

	selected := p.candidates[choice-1]
	infobox, err := b.searcher.InfoboxText(ctx, selected.URL)
	if err != nil {
		b.log.Error("Infobox fetch failed", "url", selected.URL, "error", err)
		infobox = ""
	}
	b.reply(api, ev, fmt.Sprintf("%s\n查看更多：%s", infobox, selected.URL))
	b.sendScreenshot(ctx, api, ev, selected.Title, selected.URL)
}

func (b *Bot) sendScreenshot(ctx context.Context, api Actions, ev onebot.InboundEvent, caption, pageURL string) {
	imagePath, err := b.searcher.Screenshot(ctx, pageURL)
	if err != nil {
		b.log.Error("Screenshot failed", "url", pageURL, "error", err)
		return
	}
	if err := api.SendGroupImageReply(ev.GroupID, ev.MessageID, caption, imagePath); err != nil {
		b.log.Error("Image reply failed", "group_id", ev.GroupID, "error", err)
	}
}
