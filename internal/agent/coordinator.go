package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// toolOutcome pairs a tool-call request with its materialized result.
type toolOutcome struct {
	call   ToolCall
	result ToolResult
}

// execReply carries one Execute outcome across the deadline select.
type execReply struct {
	result ToolResult
	err    error
}

// dispatchTools runs every tool-call request of one round concurrently and
// appends exactly one tool-result message per request, in completion order.
// The round is complete only when all requests have produced a result;
// unknown tools, validation failures, execution failures, panics, timeouts
// and cancellations all materialize as error tool-results rather than fatal
// loop errors.
func (a *Agent) dispatchTools(ctx context.Context, calls []ToolCall) {
	outCh := make(chan toolOutcome, len(calls))
	for _, call := range calls {
		go a.runToolCall(ctx, call, outCh)
	}

	for range calls {
		out := <-outCh

		msg := Message{
			Role:       RoleToolResult,
			Blocks:     out.result.Content,
			ToolCallID: out.call.ID,
			ToolName:   out.call.Name,
			IsError:    out.result.IsError,
			Details:    out.result.Details,
		}

		a.mu.Lock()
		a.state.Append(msg)
		delete(a.state.PendingCalls, out.call.ID)
		a.mu.Unlock()

		result := out.result
		a.bus.Publish(Event{
			Kind:       EventToolCallEnd,
			ToolCallID: out.call.ID,
			ToolName:   out.call.Name,
			Result:     &result,
		})
	}
}

// runToolCall resolves, validates and executes a single tool call. It always
// sends exactly one outcome, whatever goes wrong.
func (a *Agent) runToolCall(ctx context.Context, call ToolCall, outCh chan<- toolOutcome) {
	defer func() {
		if r := recover(); r != nil {
			a.log.Error("tool panicked", "tool", call.Name, "call_id", call.ID, "panic", r)
			outCh <- toolOutcome{
				call: call,
				result: errorDetailResult(
					fmt.Sprintf("tool %s panicked: %v", call.Name, r),
					map[string]any{"panic": fmt.Sprint(r)},
				),
			}
		}
	}()

	tool, ok := a.registry.Lookup(call.Name)
	if !ok {
		err := &UnknownToolError{Name: call.Name}
		outCh <- toolOutcome{
			call: call,
			result: errorDetailResult(
				fmt.Sprintf("%v (available tools: %s)", err, strings.Join(a.registry.Names(), ", ")),
				map[string]any{"unknown_tool": call.Name},
			),
		}
		return
	}

	args, fieldErrs := PrepareArgs(tool.SchemaJSON, call.Args)
	if len(fieldErrs) > 0 {
		verr := &ValidationError{Tool: call.Name, Fields: fieldErrs}
		details := map[string]any{"validation_errors": fieldErrs}
		outCh <- toolOutcome{call: call, result: errorDetailResult(verr.Error(), details)}
		return
	}
	call.Args = args

	cctx := ctx
	cancel := func() {}
	if a.cfg.ToolTimeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, a.cfg.ToolTimeout)
	}
	defer cancel()

	progress := func(text string) {
		if cctx.Err() != nil {
			// The call is already resolved; drop late progress.
			return
		}
		a.bus.Publish(Event{
			Kind:       EventToolCallDelta,
			ToolCallID: call.ID,
			ToolName:   call.Name,
			Partial:    text,
		})
	}

	// Execute runs on its own goroutine so the deadline is enforced even
	// when a tool ignores its cancellation signal. The reply channel is
	// buffered: a late result from an abandoned call is discarded.
	replyCh := make(chan execReply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				a.log.Error("tool panicked", "tool", call.Name, "call_id", call.ID, "panic", r)
				replyCh <- execReply{result: errorDetailResult(
					fmt.Sprintf("tool %s panicked: %v", call.Name, r),
					map[string]any{"panic": fmt.Sprint(r)},
				)}
			}
		}()
		result, err := tool.Execute(cctx, call, progress)
		replyCh <- execReply{result: result, err: err}
	}()

	var result ToolResult
	var err error
	select {
	case rep := <-replyCh:
		result, err = rep.result, rep.err
	case <-cctx.Done():
		err = cctx.Err()
	}
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			result = errorDetailResult(
				fmt.Sprintf("tool %s timed out after %s", call.Name, a.cfg.ToolTimeout),
				map[string]any{"timeout": a.cfg.ToolTimeout.String()},
			)
		case errors.Is(err, context.Canceled):
			result = ErrorResult(fmt.Sprintf("tool %s cancelled", call.Name))
		default:
			xerr := &ToolExecutionError{Tool: call.Name, Err: err}
			result = errorDetailResult(xerr.Error(), map[string]any{"execution_error": err.Error()})
		}
	}
	outCh <- toolOutcome{call: call, result: result}
}

func errorDetailResult(text string, details map[string]any) ToolResult {
	r := ErrorResult(text)
	r.Details = details
	return r
}
