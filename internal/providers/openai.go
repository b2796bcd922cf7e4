package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mkaddoura/drover/internal/agent"

	openai "github.com/meguminnnnnnnnn/go-openai"
)

// OpenAIBackend adapts the OpenAI chat completions API (and its many
// compatible implementations) to the agent backend contract.
type OpenAIBackend struct {
	client *openai.Client
}

// NewOpenAI creates an OpenAI-backed generation backend. baseURL overrides
// the endpoint for OpenAI-compatible providers; empty means the default API.
func NewOpenAI(apiKey, baseURL string) *OpenAIBackend {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	return &OpenAIBackend{client: openai.NewClientWithConfig(config)}
}

// Stream implements agent.Backend.
func (b *OpenAIBackend) Stream(ctx context.Context, model string, req agent.Request) (<-chan agent.GenerationEvent, error) {
	msgs := toOpenAIMessages(req.System, req.Messages)
	tools, err := toOpenAITools(req.Tools)
	if err != nil {
		return nil, err
	}

	ch := make(chan agent.GenerationEvent, 16)
	go func() {
		defer close(ch)

		creq := openai.ChatCompletionRequest{
			Model:    model,
			Messages: msgs,
			Stream:   true,
			StreamOptions: &openai.StreamOptions{
				IncludeUsage: true,
			},
		}
		if len(tools) > 0 {
			creq.Tools = tools
			creq.ToolChoice = "auto"
		}
		if req.Options.MaxOutputTokens > 0 {
			creq.MaxTokens = req.Options.MaxOutputTokens
		}
		if req.Options.Temperature > 0 {
			temp := req.Options.Temperature
			creq.Temperature = &temp
		}

		emit := func(ev agent.GenerationEvent) {
			select {
			case ch <- ev:
			case <-ctx.Done():
			}
		}

		stream, err := b.client.CreateChatCompletionStream(ctx, creq)
		if err != nil {
			status, retryAfter := extractErrorMetadata(err)
			emit(agent.GenerationEvent{
				Type: agent.GenError,
				Err:  agent.NewBackendError(err, status, retryAfter),
			})
			return
		}
		defer stream.Close()

		emit(agent.GenerationEvent{Type: agent.GenStart})

		// The API streams tool calls field by field, keyed by choice index.
		// Each call is accumulated here and finalized at end of stream.
		type callAccum struct {
			id      string
			name    string
			args    strings.Builder
			index   int
			started bool
		}
		accums := make(map[int]*callAccum)
		nextIndex := 0
		var usage agent.Usage

		finish := func() {
			ordered := make([]*callAccum, 0, len(accums))
			for _, acc := range accums {
				if acc.name == "" {
					continue
				}
				ordered = append(ordered, acc)
			}
			sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })

			for _, acc := range ordered {
				raw := acc.args.String()
				var args map[string]any
				if raw != "" {
					// Leave args nil on parse failure; argument validation
					// downstream turns that into an error tool-result.
					if err := json.Unmarshal([]byte(raw), &args); err != nil {
						args = nil
					}
				}
				emit(agent.GenerationEvent{
					Type:       agent.GenToolCallEnd,
					ToolCallID: acc.id,
					ToolName:   acc.name,
					Args:       args,
					RawArgs:    raw,
				})
			}
			emit(agent.GenerationEvent{Type: agent.GenDone, Usage: usage})
		}

		for {
			response, err := stream.Recv()
			if err != nil {
				if errors.Is(err, io.EOF) || strings.Contains(err.Error(), "EOF") {
					finish()
					return
				}
				status, retryAfter := extractErrorMetadata(err)
				emit(agent.GenerationEvent{
					Type: agent.GenError,
					Err:  agent.NewBackendError(err, status, retryAfter),
				})
				return
			}

			// The final chunk may carry usage and no choices.
			if response.Usage != nil && response.Usage.TotalTokens > 0 {
				usage = agent.Usage{
					Prompt:     response.Usage.PromptTokens,
					Completion: response.Usage.CompletionTokens,
					Total:      response.Usage.TotalTokens,
				}
			}
			if len(response.Choices) == 0 {
				continue
			}
			delta := response.Choices[0].Delta

			if delta.Content != "" {
				emit(agent.GenerationEvent{Type: agent.GenTextDelta, Text: delta.Content})
			}

			for _, tc := range delta.ToolCalls {
				idx := nextIndex
				if tc.Index != nil {
					idx = *tc.Index
				}
				acc, ok := accums[idx]
				if !ok {
					acc = &callAccum{index: idx}
					accums[idx] = acc
					if idx >= nextIndex {
						nextIndex = idx + 1
					}
				}
				if tc.ID != "" {
					acc.id = tc.ID
				}
				if tc.Function.Name != "" {
					acc.name = tc.Function.Name
				}
				if acc.id == "" {
					acc.id = fmt.Sprintf("call_%d", idx)
				}
				if !acc.started && acc.name != "" {
					acc.started = true
					emit(agent.GenerationEvent{
						Type:       agent.GenToolCallStart,
						ToolCallID: acc.id,
						ToolName:   acc.name,
					})
				}
				if tc.Function.Arguments != "" {
					acc.args.WriteString(tc.Function.Arguments)
					emit(agent.GenerationEvent{
						Type:        agent.GenToolCallDelta,
						ToolCallID:  acc.id,
						PartialArgs: tc.Function.Arguments,
					})
				}
			}
		}
	}()

	return ch, nil
}

// toOpenAIMessages converts conversation history to chat completion messages.
// Tool results become role=tool messages and must follow an assistant message
// carrying the matching tool_calls; orphaned results are skipped.
func toOpenAIMessages(system string, messages []agent.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages)+1)
	if system != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}

	prevAssistantHadCalls := false
	for _, msg := range messages {
		switch msg.Role {
		case agent.RoleUser:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: msg.Text(),
			})
			prevAssistantHadCalls = false

		case agent.RoleAssistant:
			// An empty content string can serialize as null and be rejected;
			// a single space is accepted and semantically empty.
			content := msg.Text()
			if content == "" {
				content = " "
			}
			var toolCalls []openai.ToolCall
			for _, call := range msg.ToolCalls() {
				argsJSON, err := json.Marshal(call.Args)
				if err != nil {
					argsJSON = []byte("{}")
				}
				toolCalls = append(toolCalls, openai.ToolCall{
					ID:   call.ID,
					Type: "function",
					Function: openai.FunctionCall{
						Name:      call.Name,
						Arguments: string(argsJSON),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:      openai.ChatMessageRoleAssistant,
				Content:   content,
				ToolCalls: toolCalls,
			})
			prevAssistantHadCalls = len(toolCalls) > 0

		case agent.RoleToolResult:
			if !prevAssistantHadCalls {
				continue
			}
			content := msg.Text()
			if content == "" {
				content = "{}"
			}
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				ToolCallID: msg.ToolCallID,
				Content:    content,
			})
		}
	}
	return out
}

func toOpenAITools(schemas []agent.ToolSchema) ([]openai.Tool, error) {
	var tools []openai.Tool
	for _, ts := range schemas {
		var schemaObj map[string]any
		if err := json.Unmarshal([]byte(ts.SchemaJSON), &schemaObj); err != nil {
			return nil, fmt.Errorf("invalid tool schema JSON for %s: %w", ts.Name, err)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        ts.Name,
				Description: ts.Description,
				Parameters:  schemaObj,
			},
		})
	}
	return tools, nil
}
