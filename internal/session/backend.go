package session

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
)

const systemPrompt = `You are an autonomous engineering assistant working through a project backlog one iteration at a time. Use the available tools to inspect open issues, the task backlog, and prior progress before deciding what to report.`

// AnthropicBackend opens streaming sessions against the Anthropic API.
type AnthropicBackend struct {
	client    *Client
	maxTokens int64
	tools     []anthropic.ToolUnionParam
}

// NewAnthropicBackend wires a backend over an existing client. The tool
// definitions are advertised on every turn.
func NewAnthropicBackend(client *Client, maxTokens int, tools []anthropic.ToolUnionParam) *AnthropicBackend {
	return &AnthropicBackend{
		client:    client,
		maxTokens: int64(maxTokens),
		tools:     tools,
	}
}

// Open starts a session for the given prompt. The returned session's
// producer goroutine runs until the model ends its turn, the stream
// fails, or the context is cancelled.
func (b *AnthropicBackend) Open(ctx context.Context, prompt string) (Session, error) {
	if prompt == "" {
		return nil, fmt.Errorf("empty prompt")
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &apiSession{
		events:  make(chan Event, 64),
		results: make(chan toolResult),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(sctx, b, prompt)
	return s, nil
}

type toolResult struct {
	callID  string
	content string
	isError bool
}

type apiSession struct {
	events  chan Event
	results chan toolResult
	cancel  context.CancelFunc
	done    chan struct{}
}

func (s *apiSession) Events() <-chan Event {
	return s.events
}

func (s *apiSession) SendToolResult(ctx context.Context, callID, content string, isError bool) error {
	select {
	case s.results <- toolResult{callID: callID, content: content, isError: isError}:
		return nil
	case <-s.done:
		return fmt.Errorf("session already ended")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *apiSession) Close() error {
	s.cancel()
	<-s.done
	return nil
}

// emit delivers an event unless the session context is gone. Returns
// false when the producer should bail out.
func (s *apiSession) emit(ctx context.Context, e Event) bool {
	select {
	case s.events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}

// run is the producer loop. Each pass streams one assistant turn; tool
// use extends the conversation and starts another pass.
func (s *apiSession) run(ctx context.Context, b *AnthropicBackend, prompt string) {
	defer close(s.done)
	defer close(s.events)

	messages := []anthropic.MessageParam{
		anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
	}

	for {
		stream := b.client.sdk().Messages.NewStreaming(ctx, anthropic.MessageNewParams{
			Model:     b.client.Model(),
			MaxTokens: b.maxTokens,
			System: []anthropic.TextBlockParam{
				{Text: systemPrompt},
			},
			Messages: messages,
			Tools:    b.tools,
		})

		message := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if err := message.Accumulate(event); err != nil {
				s.emit(ctx, Event{Type: EventEnded, Reason: ReasonError, Err: fmt.Errorf("accumulate stream event: %w", err)})
				return
			}

			if deltaEvent, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
				if textDelta, ok := deltaEvent.Delta.AsAny().(anthropic.TextDelta); ok && textDelta.Text != "" {
					if !s.emit(ctx, Event{Type: EventTextDelta, Text: textDelta.Text}) {
						return
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			s.emit(ctx, Event{Type: EventEnded, Reason: ReasonError, Err: fmt.Errorf("stream messages: %w", err)})
			return
		}

		b.client.Tracker().Add(message.Usage.InputTokens, message.Usage.OutputTokens)

		if message.StopReason != anthropic.StopReasonToolUse {
			reason := ReasonEndTurn
			if message.StopReason == anthropic.StopReasonMaxTokens {
				reason = ReasonMaxTokens
			}
			s.emit(ctx, Event{Type: EventEnded, Reason: reason})
			return
		}

		messages = append(messages, message.ToParam())

		var resultBlocks []anthropic.ContentBlockParamUnion
		for _, block := range message.Content {
			toolUse, ok := block.AsAny().(anthropic.ToolUseBlock)
			if !ok {
				continue
			}
			if !s.emit(ctx, Event{
				Type:      EventToolCall,
				ToolName:  toolUse.Name,
				ToolInput: toolUse.Input,
				CallID:    toolUse.ID,
			}) {
				return
			}
			select {
			case res := <-s.results:
				resultBlocks = append(resultBlocks, anthropic.NewToolResultBlock(toolUse.ID, res.content, res.isError))
			case <-ctx.Done():
				return
			}
		}
		messages = append(messages, anthropic.NewUserMessage(resultBlocks...))
	}
}
