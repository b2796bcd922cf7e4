package providers

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mkaddoura/drover/internal/agent"

	anthropic "github.com/liushuangls/go-anthropic/v2"
)

// AnthropicBackend adapts the Anthropic Messages API to the agent backend
// contract. The SDK streams via callbacks; the adapter bridges them onto the
// event channel.
type AnthropicBackend struct {
	client *anthropic.Client
}

// NewAnthropic creates an Anthropic-backed generation backend.
func NewAnthropic(apiKey string) *AnthropicBackend {
	return &AnthropicBackend{client: anthropic.NewClient(apiKey)}
}

// Stream implements agent.Backend.
func (b *AnthropicBackend) Stream(ctx context.Context, model string, req agent.Request) (<-chan agent.GenerationEvent, error) {
	msgs, err := toAnthropicMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	tools, err := toAnthropicTools(req.Tools)
	if err != nil {
		return nil, err
	}

	ch := make(chan agent.GenerationEvent, 16)
	go func() {
		defer close(ch)

		maxTokens := 4096
		if req.Options.MaxOutputTokens > 0 {
			maxTokens = req.Options.MaxOutputTokens
		}

		sreq := anthropic.MessagesStreamRequest{
			MessagesRequest: anthropic.MessagesRequest{
				Model:     anthropic.Model(model),
				Messages:  msgs,
				MaxTokens: maxTokens,
			},
		}
		if req.Options.Temperature > 0 {
			temp := req.Options.Temperature
			sreq.Temperature = &temp
		}
		if req.System != "" {
			sreq.MultiSystem = []anthropic.MessageSystemPart{{Type: "text", Text: req.System}}
		}
		if len(tools) > 0 {
			sreq.Tools = tools
		}

		emit := func(ev agent.GenerationEvent) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}

		emit(agent.GenerationEvent{Type: agent.GenStart})

		sreq.OnContentBlockDelta = func(delta anthropic.MessagesEventContentBlockDeltaData) {
			if delta.Delta.Type == "text_delta" && delta.Delta.Text != nil {
				emit(agent.GenerationEvent{Type: agent.GenTextDelta, Text: *delta.Delta.Text})
			}
		}

		// The SDK surfaces a tool_use block only once it is complete, so the
		// loop synthesizes the matching start event on arrival.
		sreq.OnContentBlockStop = func(_ anthropic.MessagesEventContentBlockStopData, content anthropic.MessageContent) {
			if content.Type != "tool_use" || content.MessageContentToolUse == nil {
				return
			}
			tu := content.MessageContentToolUse
			var args map[string]any
			if len(tu.Input) > 0 {
				if err := json.Unmarshal(tu.Input, &args); err != nil {
					args = nil
				}
			}
			emit(agent.GenerationEvent{
				Type:       agent.GenToolCallEnd,
				ToolCallID: tu.ID,
				ToolName:   tu.Name,
				Args:       args,
				RawArgs:    string(tu.Input),
			})
		}

		sreq.OnError = func(errResp anthropic.ErrorResponse) {
			serr := fmt.Errorf("anthropic stream error: %s", errResp.Error.Message)
			status, retryAfter := extractErrorMetadata(serr)
			emit(agent.GenerationEvent{
				Type: agent.GenError,
				Err:  agent.NewBackendError(serr, status, retryAfter),
			})
		}

		resp, err := b.client.CreateMessagesStream(ctx, sreq)
		if err != nil {
			status, retryAfter := extractErrorMetadata(err)
			emit(agent.GenerationEvent{
				Type: agent.GenError,
				Err:  agent.NewBackendError(err, status, retryAfter),
			})
			return
		}

		emit(agent.GenerationEvent{
			Type: agent.GenDone,
			Usage: agent.Usage{
				Prompt:     resp.Usage.InputTokens,
				Completion: resp.Usage.OutputTokens,
				Total:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
			},
		})
	}()

	return ch, nil
}

// toAnthropicMessages converts conversation history to the Messages API
// shape. Tool results travel as user messages carrying tool_result blocks and
// must follow an assistant message with a matching tool_use block; orphaned
// results are skipped to avoid API rejections.
func toAnthropicMessages(messages []agent.Message) ([]anthropic.Message, error) {
	var out []anthropic.Message
	prevAssistantHadCalls := false

	for _, msg := range messages {
		switch msg.Role {
		case agent.RoleUser:
			out = append(out, anthropic.Message{
				Role:    anthropic.RoleUser,
				Content: []anthropic.MessageContent{anthropic.NewTextMessageContent(msg.Text())},
			})
			prevAssistantHadCalls = false

		case agent.RoleAssistant:
			var content []anthropic.MessageContent
			hadCalls := false
			for _, blk := range msg.Blocks {
				switch blk.Type {
				case agent.BlockText:
					if blk.Text != "" {
						content = append(content, anthropic.NewTextMessageContent(blk.Text))
					}
				case agent.BlockToolCall:
					if blk.Call == nil {
						continue
					}
					argsJSON, err := json.Marshal(blk.Call.Args)
					if err != nil {
						return nil, fmt.Errorf("marshal args for tool %s: %w", blk.Call.Name, err)
					}
					content = append(content, anthropic.NewToolUseMessageContent(
						blk.Call.ID, blk.Call.Name, json.RawMessage(argsJSON)))
					hadCalls = true
				}
			}
			if len(content) == 0 {
				continue
			}
			out = append(out, anthropic.Message{Role: anthropic.RoleAssistant, Content: content})
			prevAssistantHadCalls = hadCalls

		case agent.RoleToolResult:
			if !prevAssistantHadCalls {
				continue
			}
			text := msg.Text()
			if text == "" {
				text = "{}"
			}
			out = append(out, anthropic.Message{
				Role: anthropic.RoleUser,
				Content: []anthropic.MessageContent{
					anthropic.NewToolResultMessageContent(msg.ToolCallID, text, msg.IsError),
				},
			})
		}
	}
	return out, nil
}

func toAnthropicTools(schemas []agent.ToolSchema) ([]anthropic.ToolDefinition, error) {
	var defs []anthropic.ToolDefinition
	for _, ts := range schemas {
		var schemaObj map[string]any
		if err := json.Unmarshal([]byte(ts.SchemaJSON), &schemaObj); err != nil {
			return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		defs = append(defs, anthropic.ToolDefinition{
			Name:        ts.Name,
			Description: ts.Description,
			InputSchema: schemaObj,
		})
	}
	return defs, nil
}
