package bot

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/Moitr/stardew-qq-wikibot/pkg/onebot"
)

// logLinkPattern matches a share link anywhere in the message; trailing
// parentheses from surrounding prose are excluded.
var logLinkPattern = regexp.MustCompile(`https://smapi\.io/log/[^\s()]*`)

// handleLogLink runs the log-analysis flow when the message carries a
// share link: per-user cooldown, global daily cap, download, AI
// analysis, and the forwarded-message bundle with the verdict.
func (b *Bot) handleLogLink(ctx context.Context, api Actions, ev onebot.InboundEvent) {
	shareURL := logLinkPattern.FindString(ev.AllText)
	if shareURL == "" {
		return
	}

	key := Key{GroupID: ev.GroupID, UserID: ev.UserID}

	if ok, retryAfter := b.smapiCooldown.Allow(key); !ok {
		b.reply(api, ev, fmt.Sprintf("查询频繁，请 %d 秒后再试！", int(retryAfter.Seconds())))
		return
	}
	if !b.smapiDaily.Allow() {
		b.reply(api, ev, fmt.Sprintf("今天已经使用了 %d 次，请明天再试哦！", b.cfg.Smapi.MaxDailyUses))
		return
	}

	logPath, err := b.fetcher.FetchLog(ctx, shareURL)
	if err != nil {
		b.log.Error("Log fetch failed", "url", shareURL, "error", err)
		b.reply(api, ev, "解析失败，请确保链接正确哦！")
		return
	}

	// The quota is charged once the log is fetched, whether or not the
	// analysis below succeeds.
	b.smapiCooldown.Mark(key)
	b.smapiDaily.Hit()
	b.reply(api, ev, "正在分析日志，请耐心等待！")

	content, err := os.ReadFile(logPath)
	if err != nil {
		b.log.Error("Log read failed", "path", logPath, "error", err)
		return
	}
	logText := truncateTail(string(content), b.cfg.Smapi.MaxLogChars)

	analysis, err := b.completer.AnalyzeLog(ctx, logText)
	if err != nil {
		b.log.Error("Log analysis failed", "url", shareURL, "error", err)
		return
	}
	analysis = strings.ReplaceAll(analysis, "**", "")

	if err := api.SendAtMessage(ev.GroupID, ev.UserID, " 日志分析完成!"); err != nil {
		b.log.Error("Completion notice failed", "group_id", ev.GroupID, "error", err)
	}
	if err := api.SendGroupForward(ev.GroupID, b.forwardBundle(analysis)); err != nil {
		b.log.Error("Forward bundle failed", "group_id", ev.GroupID, "error", err)
	}
}

// truncateTail keeps the last max runes of text; errors cluster at the
// end of a game log.
func truncateTail(text string, max int) string {
	if max <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return fmt.Sprintf("[日志过长，仅显示最后 %d 字符]\n", max) + string(runes[len(runes)-max:])
}

// forwardBundle assembles the fixed attribution entries plus the
// analysis verdict as the final node.
func (b *Bot) forwardBundle(analysis string) []onebot.ForwardNode {
	nodes := make([]onebot.ForwardNode, 0, len(b.cfg.Forward.Entries)+1)
	for _, entry := range b.cfg.Forward.Entries {
		nodes = append(nodes, onebot.ForwardNode{UIN: entry.UIN, Name: entry.Name, Text: entry.Text})
	}
	nodes = append(nodes, onebot.ForwardNode{
		UIN:  b.cfg.Forward.DefaultUIN,
		Name: b.cfg.Forward.DefaultName,
		Text: analysis,
	})

	return nodes
}
