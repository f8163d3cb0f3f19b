package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContentList_UnmarshalJSON(t *testing.T) {
	tcases := []struct {
		name     string
		raw      string
		expected ContentList
		err      bool
	}{
		{
			name:     "array of blocks",
			raw:      `[{"type":"text","text":"hello"},{"type":"button","label":"View","action":"view_details"}]`,
			expected: ContentList{TextContent("hello"), ButtonContent("View", "view_details")},
		},
		{
			name:     "single block",
			raw:      `{"type":"text","text":"hello"}`,
			expected: ContentList{TextContent("hello")},
		},
		{
			name:     "unknown block type is kept",
			raw:      `[{"type":"poll"}]`,
			expected: ContentList{{Type: "poll"}},
		},
		{
			name: "unknown fields are kept",
			raw:  `[{"type":"video","src":"/a.mp4"}]`,
			expected: ContentList{{
				Type:  "video",
				Extra: map[string]json.RawMessage{"src": json.RawMessage(`"/a.mp4"`)},
			}},
		},
		{
			name: "invalid json",
			raw:  `"hello"`,
			err:  true,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			var cl ContentList
			err := json.Unmarshal([]byte(tc.raw), &cl)
			if tc.err {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, cl)
		})
	}
}

func TestContentList_MarshalJSON(t *testing.T) {
	tcases := []struct {
		name     string
		content  ContentList
		raw      string
		expected string
	}{
		{
			name:     "unknown blocks round trip",
			raw:      `[{"type":"video","src":"/a.mp4","meta":{"w":640}},{"type":"text","text":""}]`,
			expected: `[{"type":"video","src":"/a.mp4","meta":{"w":640}},{"type":"text","text":""}]`,
		},
		{
			name:     "empty text keeps its text field",
			content:  ContentList{TextContent("")},
			expected: `[{"type":"text","text":""}]`,
		},
		{
			name:     "known blocks omit empty fields",
			content:  ContentList{ButtonContent("View", "view")},
			expected: `[{"type":"button","label":"View","action":"view"}]`,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			content := tc.content
			if tc.raw != "" {
				assert.NoError(t, json.Unmarshal([]byte(tc.raw), &content))
			}

			data, err := json.Marshal(content)
			assert.NoError(t, err)
			assert.JSONEq(t, tc.expected, string(data))
		})
	}
}

func TestMessage_Text(t *testing.T) {
	msg := Message{
		Content: ContentList{
			TextContent("first"),
			{Type: ContentImage, URL: "https://example.com/a.png"},
			TextContent("second"),
		},
	}

	assert.Equal(t, "first second", msg.Text())
	assert.Equal(t, "", Message{}.Text())
}

func TestRoom_Clone(t *testing.T) {
	room := Room{
		Id:           "room",
		Participants: []Participant{{Id: "a"}},
		Messages:     []Message{{Id: "m1", Content: ContentList{TextContent("hi")}}},
	}

	c := room.Clone()
	c.Participants[0].Name = "changed"
	c.Messages[0].Content[0].Text = "changed"

	assert.Equal(t, "", room.Participants[0].Name, "expected original participants untouched")
	assert.Equal(t, "hi", room.Messages[0].Content[0].Text, "expected original content untouched")
}

func TestRoom_Participant(t *testing.T) {
	room := Room{Participants: []Participant{{Id: "a", Name: "Sarah"}}}

	p, ok := room.Participant("a")
	assert.True(t, ok)
	assert.Equal(t, "Sarah", p.Name)

	_, ok = room.Participant("b")
	assert.False(t, ok)
}
