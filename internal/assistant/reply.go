package assistant

import (
	"regexp"
	"strings"

	"github.com/npezzotti/wave/internal/types"
)

const unknownParticipant = "Unknown"

var buttonsBlock = regexp.MustCompile(`(?s)\[BUTTONS\](.*?)\[/BUTTONS\]`)

// Transcript renders messages as "<name>: <text>" lines, one per message.
func Transcript(room types.Room, messages []types.Message) string {
	lines := make([]string, 0, len(messages))
	for _, m := range messages {
		name := unknownParticipant
		if p, ok := room.Participant(m.ParticipantId); ok && p.Name != "" {
			name = p.Name
		}
		lines = append(lines, name+": "+m.Text())
	}
	return strings.Join(lines, "\n")
}

// ParseReply splits a model reply into a text block followed by one button
// block per "label|action" line of the first [BUTTONS] section.
func ParseReply(raw string) types.ContentList {
	text := raw
	var buttons types.ContentList

	if match := buttonsBlock.FindStringSubmatchIndex(raw); match != nil {
		text = strings.TrimSpace(raw[:match[0]] + raw[match[1]:])

		body := strings.TrimSpace(raw[match[2]:match[3]])
		for _, line := range strings.Split(body, "\n") {
			parts := strings.Split(line, "|")
			if len(parts) < 2 {
				continue
			}
			label, action := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
			if label == "" || action == "" {
				continue
			}
			buttons = append(buttons, types.ButtonContent(label, action))
		}
	}

	return append(types.ContentList{types.TextContent(text)}, buttons...)
}
