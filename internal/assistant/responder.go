package assistant

import (
	"context"
	"fmt"
	"time"

	"github.com/npezzotti/wave/internal/logging"
	"github.com/npezzotti/wave/internal/types"
	"github.com/rs/zerolog"
)

const (
	SystemPrompt = `You are Wave, a helpful AI assistant in a collaborative workspace. You help teams work together on projects, answer questions, and provide suggestions. Keep responses concise and helpful. When appropriate, you can suggest actions that users might want to take.

If you want to suggest interactive actions, format them at the end of your response like this:
[BUTTONS]
View Details|view_details
Apply Changes|apply_changes
[/BUTTONS]

Only include buttons when they would be genuinely helpful for the user's workflow.`

	// WorkspacePrompt is used for conversations that are not tied to a room.
	WorkspacePrompt = `You are a helpful assistant in Wave, a collaborative workspace.

You help teams with:
- Business workflow optimization
- Document drafting and review
- Technical planning and architecture

Be concise, professional, and focused on actionable outcomes.
Use clear structure with bullet points when listing items.
Ask clarifying questions when the task scope is unclear.`

	Apology = "I apologize, but I encountered an error processing your request. Please try again."

	defaultTimeout = 60 * time.Second
	storeTimeout   = 10 * time.Second
)

// RoomBroker is the subset of the broker the responder depends on.
type RoomBroker interface {
	GetRoom(ctx context.Context, roomId string) (types.Room, error)
	GetMessages(ctx context.Context, roomId string) ([]types.Message, error)
	AddMessage(ctx context.Context, roomId, participantId string, content types.ContentList) (types.Message, error)
	EmitEvent(roomId string, event types.RoomEvent)
	SetTyping(roomId, participantId string)
	WaveAgent() types.Participant
}

// Responder produces the assistant's reply to the current conversation of
// a room.
type Responder struct {
	broker  RoomBroker
	model   Model
	log     zerolog.Logger
	timeout time.Duration
}

func NewResponder(broker RoomBroker, model Model, logger zerolog.Logger) *Responder {
	return &Responder{
		broker:  broker,
		model:   model,
		log:     logging.WithComponent(logger, "responder"),
		timeout: defaultTimeout,
	}
}

func Prompt(transcript string) string {
	return "Here's the conversation so far:\n\n" + transcript + "\n\nRespond as Wave to help the team."
}

// Respond announces typing, streams the model's reply into ai_streaming
// events and stores the final reply. A model failure or a cancelled ctx
// stores Apology instead; only storage failures are returned.
func (r *Responder) Respond(ctx context.Context, roomId string) (types.Message, error) {
	agent := r.broker.WaveAgent()
	r.broker.SetTyping(roomId, agent.Id)

	room, err := r.broker.GetRoom(ctx, roomId)
	if err != nil {
		return types.Message{}, fmt.Errorf("get room: %w", err)
	}

	messages, err := r.broker.GetMessages(ctx, roomId)
	if err != nil {
		return types.Message{}, fmt.Errorf("get messages: %w", err)
	}

	modelCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var accumulated string
	reply, err := r.model.Stream(modelCtx, Request{
		System: SystemPrompt,
		Turns:  []Turn{{Role: RoleUser, Text: Prompt(Transcript(room, messages))}},
	}, func(chunk string) {
		accumulated += chunk
		r.broker.EmitEvent(roomId, types.NewRoomEvent(types.EventAIStreaming, types.StreamingData{
			Text:          accumulated,
			ParticipantId: agent.Id,
		}))
	})

	content := types.ContentList{types.TextContent(Apology)}
	if err != nil {
		r.log.Error().Err(err).Str("room_id", roomId).Msg("model completion")
	} else {
		content = ParseReply(reply)
	}

	// the reply or apology is stored even if the caller went away
	storeCtx, storeCancel := context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
	defer storeCancel()

	msg, err := r.broker.AddMessage(storeCtx, roomId, agent.Id, content)
	if err != nil {
		return types.Message{}, fmt.Errorf("store reply: %w", err)
	}

	return msg, nil
}
