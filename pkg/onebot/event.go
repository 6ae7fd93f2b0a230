// Package onebot speaks the OneBot v11 JSON protocol over a websocket:
// inbound event frames, event classification, and the outbound action
// surface.
package onebot

import (
	"strconv"
	"strings"
)

// Segment is one piece of a OneBot message (text, at, reply, image, ...).
type Segment struct {
	Type string      `json:"type"`
	Data SegmentData `json:"data"`
}

// SegmentData carries the fields used by the segment types this bot
// reads and writes. Unused fields stay empty and are omitted on encode.
type SegmentData struct {
	Text    string    `json:"text,omitempty"`
	QQ      string    `json:"qq,omitempty"`
	ID      int64     `json:"id,omitempty"`
	File    string    `json:"file,omitempty"`
	UIN     int64     `json:"uin,omitempty"`
	Name    string    `json:"name,omitempty"`
	Content []Segment `json:"content,omitempty"`
}

// Sender is the message author metadata attached to group messages.
type Sender struct {
	Nickname string `json:"nickname"`
}

// Event is a raw inbound OneBot frame. Which fields are meaningful
// depends on the discriminator fields (post_type, message_type,
// notice_type, request_type, sub_type).
type Event struct {
	PostType    string    `json:"post_type"`
	MessageType string    `json:"message_type"`
	NoticeType  string    `json:"notice_type"`
	RequestType string    `json:"request_type"`
	SubType     string    `json:"sub_type"`
	MessageID   int64     `json:"message_id"`
	GroupID     int64     `json:"group_id"`
	GroupName   string    `json:"group_name"`
	UserID      int64     `json:"user_id"`
	TargetID    int64     `json:"target_id"`
	Flag        string    `json:"flag"`
	Message     []Segment `json:"message"`
	Sender      Sender    `json:"sender"`
}

// Kind identifies the semantic event class after classification.
type Kind int

const (
	KindUnclassified Kind = iota
	KindGroupMessage
	KindPokeNotice
	KindGroupJoin
	KindFriendRequest
	KindGroupInvite
)

// InboundEvent is one classified event with its extracted fields.
// It is immutable once constructed and lives for one dispatch cycle.
type InboundEvent struct {
	Kind Kind

	GroupID   int64
	UserID    int64
	MessageID int64
	TargetID  int64
	Flag      string
	GroupName string
	Nickname  string

	// Text is the first text segment of a group message; HasText is
	// false when the message carries no text segment at all.
	Text    string
	HasText bool

	// AllText joins every text segment with single spaces. The chat and
	// log-analysis flows match against the whole message, not just the
	// first segment.
	AllText string

	Mentions     []int64
	MentionsSelf bool
}

// Classify maps a raw frame onto the closed set of event kinds.
// Frames outside the set come back as KindUnclassified and are dropped
// by the dispatcher without error.
func Classify(raw Event, selfID int64) InboundEvent {
	switch {
	case raw.MessageType == "group":
		return classifyGroupMessage(raw, selfID)

	case raw.SubType == "poke":
		return InboundEvent{
			Kind:     KindPokeNotice,
			GroupID:  raw.GroupID,
			UserID:   raw.UserID,
			TargetID: raw.TargetID,
		}

	case raw.PostType == "notice" && raw.NoticeType == "group_increase":
		return InboundEvent{
			Kind:    KindGroupJoin,
			GroupID: raw.GroupID,
			UserID:  raw.UserID,
		}

	case raw.PostType == "request" && raw.RequestType == "friend":
		return InboundEvent{
			Kind:   KindFriendRequest,
			UserID: raw.UserID,
			Flag:   raw.Flag,
		}

	case raw.PostType == "request" && raw.RequestType == "group" && raw.SubType == "invite":
		return InboundEvent{
			Kind:   KindGroupInvite,
			UserID: raw.UserID,
			Flag:   raw.Flag,
		}
	}

	return InboundEvent{Kind: KindUnclassified}
}

func classifyGroupMessage(raw Event, selfID int64) InboundEvent {
	ev := InboundEvent{
		Kind:      KindGroupMessage,
		GroupID:   raw.GroupID,
		UserID:    raw.UserID,
		MessageID: raw.MessageID,
		GroupName: raw.GroupName,
		Nickname:  raw.Sender.Nickname,
	}

	var texts []string
	for _, seg := range raw.Message {
		switch seg.Type {
		case "text":
			texts = append(texts, seg.Data.Text)
			if !ev.HasText {
				ev.Text = seg.Data.Text
				ev.HasText = true
			}
		case "at":
			id, err := strconv.ParseInt(strings.TrimSpace(seg.Data.QQ), 10, 64)
			if err != nil {
				continue
			}
			ev.Mentions = append(ev.Mentions, id)
			if id == selfID {
				ev.MentionsSelf = true
			}
		}
	}
	ev.AllText = strings.Join(texts, " ")

	return ev
}
