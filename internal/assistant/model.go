package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/mock"
)

const (
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 1024

	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrModelNotConfigured = errors.New("language model is not configured")

type Turn struct {
	Role string `json:"role"`
	Text string `json:"content"`
}

type Request struct {
	System string
	Turns  []Turn
}

// Model streams a completion. onText is called with each text fragment as
// it arrives; the full text is returned once the stream ends.
type Model interface {
	Stream(ctx context.Context, req Request, onText func(string)) (string, error)
}

type AnthropicModel struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

func NewAnthropicModel(apiKey string) *AnthropicModel {
	return &AnthropicModel{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     DefaultModel,
		maxTokens: DefaultMaxTokens,
	}
}

// NewModel returns an AnthropicModel when apiKey is set and a DisabledModel
// otherwise.
func NewModel(apiKey string) Model {
	if apiKey == "" {
		return DisabledModel{}
	}
	return NewAnthropicModel(apiKey)
}

func (m *AnthropicModel) Stream(ctx context.Context, req Request, onText func(string)) (string, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Turns))
	for _, t := range req.Turns {
		switch t.Role {
		case RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Text)))
		case RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Text)))
		default:
			return "", fmt.Errorf("unsupported role %q", t.Role)
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.model),
		MaxTokens: m.maxTokens,
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	stream := m.client.Messages.NewStreaming(ctx, params)
	defer stream.Close()

	var sb strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok {
				sb.WriteString(delta.Text)
				onText(delta.Text)
			}
		}
	}

	if err := stream.Err(); err != nil {
		return sb.String(), fmt.Errorf("stream completion: %w", err)
	}

	return sb.String(), nil
}

type DisabledModel struct{}

func (DisabledModel) Stream(context.Context, Request, func(string)) (string, error) {
	return "", ErrModelNotConfigured
}

type MockModel struct {
	mock.Mock
}

// Stream replays the []string chunks configured on the mock through onText.
func (m *MockModel) Stream(ctx context.Context, req Request, onText func(string)) (string, error) {
	args := m.Called(ctx, req)
	chunks, _ := args.Get(0).([]string)
	for _, c := range chunks {
		onText(c)
	}
	return strings.Join(chunks, ""), args.Error(1)
}
