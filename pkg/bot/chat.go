package bot

import (
	"context"
	"strings"
	"time"

	"github.com/Moitr/stardew-qq-wikibot/pkg/onebot"
)

// handleChat answers a message that @-mentions the bot.
func (b *Bot) handleChat(ctx context.Context, api Actions, ev onebot.InboundEvent) {
	text := strings.TrimLeft(ev.AllText, " \t")

	if text == "" {
		b.reply(api, ev, "你好，有什么想和我说的嘛？")
		return
	}

	if strings.Contains(text, "赞我") {
		b.reply(api, ev, "已经给你点赞啦！")
		if err := api.SendLike(ev.UserID, likeTimes); err != nil {
			b.log.Error("Like failed", "user_id", ev.UserID, "error", err)
		}
		return
	}

	if isWikiCommand(text) {
		key := Key{GroupID: ev.GroupID, UserID: ev.UserID}
		if _, exists := b.pending.Get(key); exists {
			b.reply(api, ev, "上一个查询未完成！")
			return
		}
		ev.Text = text
		b.handleWiki(ctx, api, ev)
		return
	}

	answer, err := b.completer.Chat(ctx, text)
	if err != nil {
		b.log.Error("Chat completion failed", "group_id", ev.GroupID, "error", err)
		b.reply(api, ev, "乌~啦啦啦～呀～哈")
		return
	}
	b.reply(api, ev, answer)
}

// handlePoke answers a poke aimed at the bot with a random configured
// line and a poke back. Pokes between other members are ignored.
func (b *Bot) handlePoke(ctx context.Context, api Actions, ev onebot.InboundEvent) {
	if !b.cfg.Poke.IsEnabled() {
		return
	}
	if ev.TargetID != b.cfg.Bot.UserID {
		return
	}

	if messages := b.cfg.Poke.Messages; len(messages) > 0 {
		line := messages[int(b.rand()*float64(len(messages)))%len(messages)]
		if err := api.SendGroupReply(ev.GroupID, 0, line); err != nil {
			b.log.Error("Poke reply failed", "group_id", ev.GroupID, "error", err)
		}
	}
	if err := api.PokeGroup(ev.GroupID, ev.UserID); err != nil {
		b.log.Error("Poke back failed", "group_id", ev.GroupID, "user_id", ev.UserID, "error", err)
	}
}

// handleGroupJoin welcomes a new member with an @-mention.
func (b *Bot) handleGroupJoin(api Actions, ev onebot.InboundEvent) {
	if !b.cfg.Welcome.IsEnabled() {
		return
	}
	if err := api.SendAtMessage(ev.GroupID, ev.UserID, b.cfg.Welcome.WelcomeMessage); err != nil {
		b.log.Error("Welcome failed", "group_id", ev.GroupID, "user_id", ev.UserID, "error", err)
		return
	}
	b.log.Info("Member joined", "group_id", ev.GroupID, "user_id", ev.UserID)
}

// handleFriendRequest approves the request and greets after a short
// pause so the approval settles first.
func (b *Bot) handleFriendRequest(ctx context.Context, api Actions, ev onebot.InboundEvent) {
	if err := api.ApproveFriendRequest(ev.Flag); err != nil {
		b.log.Error("Friend approval failed", "user_id", ev.UserID, "error", err)
		return
	}
	if !b.sleep(ctx, b.greetDelay) {
		return
	}
	if err := api.SendPrivateMessage(ev.UserID, "乌~啦～！你好！"); err != nil {
		b.log.Error("Friend greeting failed", "user_id", ev.UserID, "error", err)
	}
}

// handleGroupInvite approves the invite and confirms to the inviter.
func (b *Bot) handleGroupInvite(ctx context.Context, api Actions, ev onebot.InboundEvent) {
	if err := api.ApproveGroupInvite(ev.Flag); err != nil {
		b.log.Error("Invite approval failed", "user_id", ev.UserID, "error", err)
		return
	}
	if !b.sleep(ctx, b.greetDelay) {
		return
	}
	if err := api.SendPrivateMessage(ev.UserID, "乌~啦～！ 已经同意啦！"); err != nil {
		b.log.Error("Invite greeting failed", "user_id", ev.UserID, "error", err)
	}
}

func (b *Bot) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
