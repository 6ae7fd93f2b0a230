// Package bot routes classified platform events to the handler set:
// wiki search, log analysis, chat completions, pokes, joins, and
// friend/group requests.
package bot

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/Moitr/stardew-qq-wikibot/pkg/config"
	"github.com/Moitr/stardew-qq-wikibot/pkg/onebot"
	"github.com/Moitr/stardew-qq-wikibot/pkg/ratelimit"
	"github.com/Moitr/stardew-qq-wikibot/pkg/session"
	"github.com/Moitr/stardew-qq-wikibot/pkg/wiki"
)

// Key identifies one user within one group. Rate limits and pending
// disambiguation sessions are scoped to this pair.
type Key struct {
	GroupID int64
	UserID  int64
}

// Actions is the outbound platform surface the handlers use.
// *onebot.API satisfies it.
type Actions interface {
	SendGroupReply(groupID, messageID int64, text string) error
	SendGroupImageReply(groupID, messageID int64, text, imagePath string) error
	SendAtMessage(groupID, userID int64, text string) error
	SendPrivateMessage(userID int64, text string) error
	SendGroupForward(groupID int64, nodes []onebot.ForwardNode) error
	SendLike(userID int64, times int) error
	PokeGroup(groupID, userID int64) error
	ApproveFriendRequest(flag string) error
	ApproveGroupInvite(flag string) error
}

// Searcher is the wiki lookup surface. *wiki.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, query string) (wiki.Result, error)
	InfoboxText(ctx context.Context, pageURL string) (string, error)
	Screenshot(ctx context.Context, pageURL string) (string, error)
}

// LogFetcher downloads and cleans a shared game log, returning the
// saved file path. *smapi.Client satisfies it.
type LogFetcher interface {
	FetchLog(ctx context.Context, shareURL string) (string, error)
}

// Completer is the AI completion surface. *openai.Client satisfies it.
type Completer interface {
	Chat(ctx context.Context, text string) (string, error)
	AnalyzeLog(ctx context.Context, logText string) (string, error)
}

const likeTimes = 20

// Bot wires the handler set to its collaborators. Handlers run on
// their own goroutines; a panic in one is recovered and logged.
type Bot struct {
	cfg       *config.Config
	log       *slog.Logger
	searcher  Searcher
	fetcher   LogFetcher
	completer Completer

	wikiLimit     *ratelimit.Window[Key]
	smapiCooldown *ratelimit.Cooldown[Key]
	smapiDaily    *ratelimit.Daily
	pending       *session.Store[Key, pendingQuery]

	rand       func() float64
	greetDelay time.Duration

	wg sync.WaitGroup
}

// pendingQuery is one unresolved disambiguation prompt. It carries the
// reply surface so the expiry timer can announce the timeout.
type pendingQuery struct {
	api        Actions
	candidates []wiki.Candidate
	messageID  int64
}

// New builds the bot. searcher, fetcher, and completer may be nil when
// the corresponding flows are disabled; their handlers then degrade to
// the failure replies.
func New(cfg *config.Config, log *slog.Logger, searcher Searcher, fetcher LogFetcher, completer Completer) *Bot {
	if log == nil {
		log = slog.Default()
	}

	b := &Bot{
		cfg:           cfg,
		log:           log.With("component", "bot"),
		searcher:      searcher,
		fetcher:       fetcher,
		completer:     completer,
		wikiLimit:     ratelimit.NewWindow[Key](cfg.WikiRate.MaxQueries, time.Duration(cfg.WikiRate.TimeWindowSeconds)*time.Second, nil),
		smapiCooldown: ratelimit.NewCooldown[Key](time.Duration(cfg.Smapi.TimeWindowSeconds)*time.Second, nil),
		smapiDaily:    ratelimit.NewDaily(cfg.Smapi.MaxDailyUses, nil),
		rand:          rand.Float64,
		greetDelay:    2 * time.Second,
	}
	b.pending = session.NewStore[Key, pendingQuery](60*time.Second, b.expirePending)

	return b
}

func (b *Bot) expirePending(key Key, p pendingQuery) {
	if err := p.api.SendGroupReply(key.GroupID, p.messageID, "回复超时！"); err != nil {
		b.log.Error("Timeout notice failed", "group_id", key.GroupID, "error", err)
	}
}

// HandleEvent classifies one raw frame and dispatches it. It is the
// onebot.Handler for the client loop and returns before the handler
// goroutine finishes.
func (b *Bot) HandleEvent(ctx context.Context, api *onebot.API, raw onebot.Event) {
	b.Dispatch(ctx, api, onebot.Classify(raw, b.cfg.Bot.UserID))
}

// Dispatch routes one classified event.
func (b *Bot) Dispatch(ctx context.Context, api Actions, ev onebot.InboundEvent) {
	switch ev.Kind {
	case onebot.KindGroupMessage:
		b.dispatchGroupMessage(ctx, api, ev)

	case onebot.KindPokeNotice:
		b.spawn("poke", func() { b.handlePoke(ctx, api, ev) })

	case onebot.KindGroupJoin:
		if ev.UserID == b.cfg.Bot.UserID {
			return
		}
		b.spawn("group_join", func() { b.handleGroupJoin(api, ev) })

	case onebot.KindFriendRequest:
		b.spawn("friend_request", func() { b.handleFriendRequest(ctx, api, ev) })

	case onebot.KindGroupInvite:
		b.spawn("group_invite", func() { b.handleGroupInvite(ctx, api, ev) })
	}
}

func (b *Bot) dispatchGroupMessage(ctx context.Context, api Actions, ev onebot.InboundEvent) {
	b.log.Info("Group message",
		"group_id", ev.GroupID,
		"group_name", ev.GroupName,
		"user_id", ev.UserID,
		"nickname", ev.Nickname,
		"content", ev.Text,
	)

	key := Key{GroupID: ev.GroupID, UserID: ev.UserID}

	if ev.MentionsSelf {
		b.spawn("chat", func() { b.handleChat(ctx, api, ev) })
		return
	}

	if !ev.HasText {
		b.spawn("poke", func() { b.maybePoke(ev.GroupID, api, ev.UserID) })
		return
	}

	switch {
	case isWikiCommand(ev.Text):
		if _, exists := b.pending.Get(key); exists {
			b.reply(api, ev, "乌~啦～上一个查询未完成！")
			return
		}
		b.spawn("wiki", func() { b.handleWiki(ctx, api, ev) })

	case isDigits(ev.Text):
		b.spawn("selection", func() { b.handleSelection(ctx, api, ev) })

	case ev.Text == "赞我":
		b.reply(api, ev, "乌~啦～！收已经给你点赞啦！")
		if err := api.SendLike(ev.UserID, likeTimes); err != nil {
			b.log.Error("Like failed", "user_id", ev.UserID, "error", err)
		}

	default:
		b.spawn("smapi", func() { b.handleLogLink(ctx, api, ev) })
		b.spawn("poke", func() { b.maybePoke(ev.GroupID, api, ev.UserID) })
	}
}

// spawn runs a handler on its own goroutine with panic recovery.
func (b *Bot) spawn(name string, fn func()) {
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				b.log.Error("Handler panicked", "handler", name, "panic", r)
			}
		}()
		fn()
	}()
}

// Wait blocks until every spawned handler has returned.
func (b *Bot) Wait() {
	b.wg.Wait()
}

func (b *Bot) reply(api Actions, ev onebot.InboundEvent, text string) {
	if err := api.SendGroupReply(ev.GroupID, ev.MessageID, text); err != nil {
		b.log.Error("Reply failed", "group_id", ev.GroupID, "error", err)
	}
}

// maybePoke pokes the sender with the configured probability. It backs
// group messages that trigger no other handler.
func (b *Bot) maybePoke(groupID int64, api Actions, userID int64) {
	if !b.cfg.Poke.IsEnabled() {
		return
	}
	if b.rand() >= b.cfg.Poke.Probability {
		return
	}
	if err := api.PokeGroup(groupID, userID); err != nil {
		b.log.Error("Poke failed", "group_id", groupID, "user_id", userID, "error", err)
		return
	}
	b.log.Info("Poked", "group_id", groupID, "user_id", userID)
}
