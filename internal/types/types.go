package types

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

type ParticipantType string

const (
	ParticipantHuman ParticipantType = "human"
	ParticipantAgent ParticipantType = "agent"
)

type Room struct {
	Id           string        `json:"id"`
	Name         string        `json:"name"`
	CreatedBy    string        `json:"createdBy"`
	Participants []Participant `json:"participants"`
	Messages     []Message     `json:"messages"`
	CreatedAt    time.Time     `json:"createdAt"`
}

// Participant returns the room member with the given id.
func (r Room) Participant(id string) (Participant, bool) {
	for _, p := range r.Participants {
		if p.Id == id {
			return p, true
		}
	}
	return Participant{}, false
}

// Clone returns a copy of the room that shares no slices with r.
func (r Room) Clone() Room {
	c := r
	c.Participants = append([]Participant(nil), r.Participants...)
	c.Messages = make([]Message, len(r.Messages))
	for i, m := range r.Messages {
		c.Messages[i] = m.Clone()
	}
	return c
}

type Participant struct {
	Id       string          `json:"id"`
	Type     ParticipantType `json:"type"`
	Name     string          `json:"name"`
	Avatar   string          `json:"avatar,omitempty"`
	JoinedAt time.Time       `json:"joinedAt"`
}

type Message struct {
	Id            string      `json:"id"`
	RoomId        string      `json:"roomId"`
	ParticipantId string      `json:"participantId"`
	Content       ContentList `json:"content"`
	CreatedAt     time.Time   `json:"createdAt"`
}

func (m Message) Clone() Message {
	c := m
	c.Content = append(ContentList(nil), m.Content...)
	return c
}

// Text joins the text blocks of the message with a single space.
func (m Message) Text() string {
	var parts []string
	for _, c := range m.Content {
		if c.Type == ContentText {
			parts = append(parts, c.Text)
		}
	}
	return strings.Join(parts, " ")
}

type ContentType string

const (
	ContentText     ContentType = "text"
	ContentButton   ContentType = "button"
	ContentImage    ContentType = "image"
	ContentFile     ContentType = "file"
	ContentTable    ContentType = "table"
	ContentArtifact ContentType = "artifact"
)

type Action struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// MessageContent is one block of a message. Type selects which of the
// remaining fields are meaningful. Fields without a typed counterpart are
// kept in Extra and written back unchanged.
type MessageContent struct {
	Type    ContentType `json:"type"`
	Text    string      `json:"text,omitempty"`
	Label   string      `json:"label,omitempty"`
	Action  string      `json:"action,omitempty"`
	URL     string      `json:"url,omitempty"`
	Name    string      `json:"name,omitempty"`
	Headers []string    `json:"headers,omitempty"`
	Rows    [][]string  `json:"rows,omitempty"`
	Preview string      `json:"preview,omitempty"`
	Actions []Action    `json:"actions,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// contentFields has the fields of MessageContent without its methods.
type contentFields MessageContent

var contentKeys = map[string]bool{
	"type": true, "text": true, "label": true, "action": true, "url": true,
	"name": true, "headers": true, "rows": true, "preview": true, "actions": true,
}

func (c *MessageContent) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}

	var known contentFields
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}

	for k, v := range fields {
		if contentKeys[k] {
			continue
		}
		if known.Extra == nil {
			known.Extra = make(map[string]json.RawMessage)
		}
		known.Extra[k] = v
	}

	*c = MessageContent(known)
	return nil
}

// MarshalJSON always writes text on text blocks, even when empty.
func (c MessageContent) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(contentFields(c))
	if err != nil || (c.Type != ContentText && len(c.Extra) == 0) {
		return data, err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	if c.Type == ContentText {
		fields["text"], _ = json.Marshal(c.Text)
	}
	for k, v := range c.Extra {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}
	return json.Marshal(fields)
}

func TextContent(text string) MessageContent {
	return MessageContent{Type: ContentText, Text: text}
}

func ButtonContent(label, action string) MessageContent {
	return MessageContent{Type: ContentButton, Label: label, Action: action}
}

// ContentList accepts either a JSON array of blocks or a single block.
type ContentList []MessageContent

func (cl *ContentList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var single MessageContent
		if err := json.Unmarshal(data, &single); err != nil {
			return err
		}
		*cl = ContentList{single}
		return nil
	}

	var list []MessageContent
	if err := json.Unmarshal(data, &list); err != nil {
		return err
	}
	*cl = list
	return nil
}

type EventType string

const (
	EventMessage           EventType = "message"
	EventParticipantJoined EventType = "participant_joined"
	EventParticipantLeft   EventType = "participant_left"
	EventTyping            EventType = "typing"
	EventAIStreaming       EventType = "ai_streaming"
)

// RoomEvent is a transient notification delivered to the subscribers
// connected at the time it is emitted. Timestamp is in Unix milliseconds.
type RoomEvent struct {
	Type      EventType `json:"type"`
	Data      any       `json:"data"`
	Timestamp int64     `json:"timestamp"`
}

func NewRoomEvent(t EventType, data any) RoomEvent {
	return RoomEvent{
		Type:      t,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
}

type TypingData struct {
	ParticipantId string `json:"participantId"`
}

type StreamingData struct {
	Text          string `json:"text"`
	ParticipantId string `json:"participantId"`
}
