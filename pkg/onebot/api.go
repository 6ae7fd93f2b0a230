package onebot

import (
	"encoding/base64"
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Conn is the write side of the OneBot socket. *websocket.Conn satisfies
// it; the client wraps it with a mutex because gorilla connections allow
// only one concurrent writer.
type Conn interface {
	WriteJSON(v any) error
}

// actionFrame is the outbound wire format: {action, params, echo}.
// Echo values are fresh per call and not correlated against responses.
type actionFrame struct {
	Action string `json:"action"`
	Params any    `json:"params"`
	Echo   string `json:"echo"`
}

// ForwardNode is one attributed entry in a forwarded-message bundle.
type ForwardNode struct {
	UIN  int64
	Name string
	Text string
}

// API encodes OneBot actions onto a connection. All sends are
// fire-and-forget: an error means the frame could not be written, not
// that the platform rejected the action.
type API struct {
	conn Conn
}

// NewAPI wraps a connection with the action surface.
func NewAPI(conn Conn) *API {
	return &API{conn: conn}
}

func (a *API) send(action string, params any) error {
	frame := actionFrame{Action: action, Params: params, Echo: uuid.NewString()}
	if err := a.conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("send %s: %w", action, err)
	}

	return nil
}

// SendLike sends profile likes to a user.
func (a *API) SendLike(userID int64, times int) error {
	return a.send("send_like", map[string]any{"user_id": userID, "times": times})
}

// ApproveFriendRequest accepts a pending friend request by its flag.
func (a *API) ApproveFriendRequest(flag string) error {
	return a.send("set_friend_add_request", map[string]any{"flag": flag, "approve": true})
}

// ApproveGroupInvite accepts a pending group-invite request by its flag.
func (a *API) ApproveGroupInvite(flag string) error {
	return a.send("set_group_add_request", map[string]any{"flag": flag, "approve": true})
}

// PokeGroup pokes a user inside a group.
func (a *API) PokeGroup(groupID, userID int64) error {
	return a.send("group_poke", map[string]any{"group_id": groupID, "user_id": userID})
}

// PokeFriend pokes a user directly.
func (a *API) PokeFriend(userID int64) error {
	return a.send("friend_poke", map[string]any{"user_id": userID})
}

// SendGroupReply sends text to a group, quoting messageID when non-zero.
func (a *API) SendGroupReply(groupID, messageID int64, text string) error {
	segments := replySegments(messageID, text)
	return a.send("send_group_msg", map[string]any{"group_id": groupID, "message": segments})
}

// SendPrivateMessage sends text directly to a user.
func (a *API) SendPrivateMessage(userID int64, text string) error {
	segments := []Segment{{Type: "text", Data: SegmentData{Text: text}}}
	return a.send("send_private_msg", map[string]any{"user_id": userID, "message": segments})
}

// SendAtMessage sends an @-mention followed by text to a group.
func (a *API) SendAtMessage(groupID, userID int64, text string) error {
	segments := []Segment{
		{Type: "at", Data: SegmentData{QQ: fmt.Sprintf("%d", userID)}},
		{Type: "text", Data: SegmentData{Text: text}},
	}
	return a.send("send_group_msg", map[string]any{"group_id": groupID, "message": segments})
}

// SendGroupForward sends a multi-author forwarded-message bundle.
func (a *API) SendGroupForward(groupID int64, nodes []ForwardNode) error {
	wire := make([]Segment, 0, len(nodes))
	for _, node := range nodes {
		wire = append(wire, Segment{
			Type: "node",
			Data: SegmentData{
				UIN:     node.UIN,
				Name:    node.Name,
				Content: []Segment{{Type: "text", Data: SegmentData{Text: node.Text}}},
			},
		})
	}

	return a.send("send_group_forward_msg", map[string]any{"group_id": groupID, "messages": wire})
}

// SendGroupImageReply sends text plus an inline base64 image to a group,
// quoting messageID when non-zero.
func (a *API) SendGroupImageReply(groupID, messageID int64, text, imagePath string) error {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return fmt.Errorf("read image %s: %w", imagePath, err)
	}

	segments := replySegments(messageID, text)
	segments = append(segments, Segment{
		Type: "image",
		Data: SegmentData{File: "base64://" + base64.StdEncoding.EncodeToString(data)},
	})

	return a.send("send_group_msg", map[string]any{"group_id": groupID, "message": segments})
}

func replySegments(messageID int64, text string) []Segment {
	segments := make([]Segment, 0, 2)
	if messageID != 0 {
		segments = append(segments, Segment{Type: "reply", Data: SegmentData{ID: messageID}})
	}
	segments = append(segments, Segment{Type: "text", Data: SegmentData{Text: text}})

	return segments
}
