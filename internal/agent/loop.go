package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Agent drives multi-turn conversations: it owns the conversation state,
// issues backend rounds, coordinates tool execution, and publishes the event
// stream. One turn runs at a time on a single turn-owner goroutine; all state
// mutation and event emission happen there, so observers and snapshot readers
// never race the loop.
type Agent struct {
	cfg      Config
	backend  Backend
	registry *Registry
	bus      *Bus
	log      *slog.Logger

	mu         sync.Mutex
	state      *State
	phase      Phase
	turnCancel context.CancelFunc
	turnDone   chan struct{}

	steerMu  sync.Mutex
	steering []Message
}

// New creates an agent over the given backend and tool registry.
func New(backend Backend, registry *Registry, cfg Config) *Agent {
	if registry == nil {
		registry = NewRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Agent{
		cfg:      cfg,
		backend:  backend,
		registry: registry,
		bus:      NewBus(logger),
		log:      logger,
		state:    NewState(cfg.SystemPrompt, cfg.Model),
		phase:    PhaseIdle,
	}
}

// Registry returns the agent's tool registry.
func (a *Agent) Registry() *Registry { return a.registry }

// Phase returns the current turn phase.
func (a *Agent) Phase() Phase {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.phase
}

// Subscribe registers an observer for the event stream and returns its
// unsubscribe function.
func (a *Agent) Subscribe(fn Observer) func() { return a.bus.Subscribe(fn) }

// Snapshot returns a deep copy of the conversation state. Repeated calls
// with no intervening mutation return equal snapshots.
func (a *Agent) Snapshot() Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.snapshot(a.phase)
}

// LoadHistory replaces the conversation history, typically with messages
// restored from a session store. Fails if a turn is active.
func (a *Agent) LoadHistory(msgs []Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.phase.active() {
		return &InvalidStateError{Op: "load history", Phase: a.phase}
	}
	a.state.Messages = make([]Message, 0, len(msgs))
	for _, m := range msgs {
		a.state.Messages = append(a.state.Messages, copyMessage(m))
	}
	return nil
}

// Prompt appends a user message and starts a new turn. Fails with
// InvalidStateError if a turn is already active; state is unchanged in that
// case.
func (a *Agent) Prompt(ctx context.Context, text string) error {
	msg := UserMessage(text)
	return a.start(ctx, "prompt", &msg)
}

// PromptMessage is Prompt for callers that build the user message themselves.
func (a *Agent) PromptMessage(ctx context.Context, msg Message) error {
	if msg.Role != RoleUser {
		return fmt.Errorf("prompt requires a user message, got role %s", msg.Role)
	}
	return a.start(ctx, "prompt", &msg)
}

// Steer enqueues a user message into the active turn. The message is
// injected at the next safe interruption point: after the current round's
// tool results have been appended, never mid-stream. If no turn is active
// the message starts a fresh turn.
func (a *Agent) Steer(text string) {
	a.steerMu.Lock()
	a.steering = append(a.steering, UserMessage(text))
	a.steerMu.Unlock()

	a.mu.Lock()
	idle := !a.phase.active()
	a.mu.Unlock()
	if idle {
		// Treated as a fresh prompt: the new turn drains the steering queue
		// before its first backend round.
		if err := a.start(context.Background(), "steer", nil); err != nil {
			a.log.Debug("steer raced an already-started turn", "error", err)
		}
	}
}

// Continue resumes the conversation without new user input, e.g. after
// external tool completion left results in the history. Fails if a turn is
// active.
func (a *Agent) Continue(ctx context.Context) error {
	return a.start(ctx, "continue", nil)
}

// Abort cancels the active turn: the in-flight backend call and every
// running tool call observe the shared cancellation signal. Abort blocks
// until the turn goroutine has emitted the final aborted event and stopped
// mutating state; it is a no-op when no turn is active.
func (a *Agent) Abort() {
	a.mu.Lock()
	if !a.phase.active() {
		a.mu.Unlock()
		return
	}
	cancel, done := a.turnCancel, a.turnDone
	a.mu.Unlock()

	cancel()
	<-done
}

// Wait blocks until the current turn, if any, has terminated.
func (a *Agent) Wait() {
	a.mu.Lock()
	done := a.turnDone
	a.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Close aborts any active turn and shuts down the event bus.
func (a *Agent) Close() {
	a.Abort()
	a.bus.Close()
}

func (a *Agent) start(ctx context.Context, op string, msg *Message) error {
	a.mu.Lock()
	if a.phase.active() {
		phase := a.phase
		a.mu.Unlock()
		return &InvalidStateError{Op: op, Phase: phase}
	}
	if msg != nil {
		if err := msg.Validate(); err != nil {
			a.mu.Unlock()
			return err
		}
		a.state.Append(*msg)
	}
	a.phase = PhaseStreaming
	tctx, cancel := context.WithCancel(ctx)
	a.turnCancel = cancel
	done := make(chan struct{})
	a.turnDone = done
	a.mu.Unlock()

	go a.runTurn(tctx, done)
	return nil
}

// roundResult is the finalized outcome of one backend round.
type roundResult struct {
	msg   *Message
	usage Usage
}

// runTurn is the turn-owner goroutine: it drives backend rounds until the
// assistant answers without tool calls and the steering queue is empty, or
// the turn aborts or fails.
func (a *Agent) runTurn(ctx context.Context, done chan struct{}) {
	defer close(done)

	a.bus.Publish(Event{Kind: EventStart})

	rounds := 0
	for {
		a.drainSteering()

		if a.cfg.MaxRounds > 0 && rounds >= a.cfg.MaxRounds {
			a.endTurn(PhaseErrored, Event{
				Kind: EventError,
				Err:  fmt.Errorf("turn exceeded %d backend rounds", a.cfg.MaxRounds),
			})
			return
		}
		rounds++

		res, err := retryWithPolicy(ctx, a.cfg.Retry, a.log, a.streamOnce)
		if err != nil {
			if ctx.Err() != nil {
				a.abortTurn()
				return
			}
			a.clearInProgress()
			a.log.Error("backend round failed", "error", err)
			a.endTurn(PhaseErrored, Event{Kind: EventError, Err: err})
			return
		}

		assistant := *res.msg
		calls := assistant.ToolCalls()

		a.mu.Lock()
		a.state.InProgress = nil
		a.state.Append(assistant)
		a.state.Totals.add(res.usage)
		for _, c := range calls {
			a.state.PendingCalls[c.ID] = struct{}{}
		}
		if len(calls) > 0 {
			a.phase = PhaseAwaitingTools
		}
		a.mu.Unlock()

		if len(calls) > 0 {
			a.dispatchTools(ctx, calls)
			if ctx.Err() != nil {
				a.abortTurn()
				return
			}
			a.setPhase(PhaseStreaming)
			continue
		}

		if a.finishTurnIfQuiescent() {
			return
		}
		// Queued steering messages: inject them and run another round.
	}
}

// streamOnce issues one backend call attempt over the full state and
// accumulates the streamed content blocks into the in-progress assistant
// message, emitting deltas in arrival order.
func (a *Agent) streamOnce(ctx context.Context) (roundResult, error) {
	var zero roundResult

	a.mu.Lock()
	req := Request{
		System:   a.state.SystemPrompt,
		Messages: append([]Message(nil), a.state.Messages...),
		Tools:    a.registry.Schemas(),
		Options:  a.cfg.Options,
	}
	model := a.state.Model
	cur := &Message{Role: RoleAssistant}
	a.state.InProgress = cur
	a.state.Streaming = true
	a.mu.Unlock()

	events, err := a.backend.Stream(ctx, model, req)
	if err != nil {
		a.clearInProgress()
		return zero, err
	}

	started := make(map[string]bool)
	var usage Usage

	for ev := range events {
		switch ev.Type {
		case GenStart:
			// Round already announced via the turn's start event.
		case GenTextDelta:
			a.appendTextDelta(cur, ev.Text)
			a.bus.Publish(Event{Kind: EventTextDelta, Text: ev.Text})
		case GenToolCallStart:
			id := ev.ToolCallID
			if id == "" {
				id = uuid.NewString()
			}
			a.appendToolCallBlock(cur, ToolCall{ID: id, Name: ev.ToolName})
			started[id] = true
			a.bus.Publish(Event{Kind: EventToolCallStart, ToolCallID: id, ToolName: ev.ToolName})
		case GenToolCallDelta:
			a.appendRawArgs(cur, ev.ToolCallID, ev.PartialArgs)
			a.bus.Publish(Event{
				Kind:       EventToolCallDelta,
				ToolCallID: ev.ToolCallID,
				Partial:    ev.PartialArgs,
			})
		case GenToolCallEnd:
			id := ev.ToolCallID
			if id == "" {
				id = uuid.NewString()
			}
			if !started[id] {
				// Backend delivered the call whole; synthesize its start so
				// observers always see start before end.
				a.appendToolCallBlock(cur, ToolCall{ID: id, Name: ev.ToolName})
				started[id] = true
				a.bus.Publish(Event{Kind: EventToolCallStart, ToolCallID: id, ToolName: ev.ToolName})
			}
			a.completeToolCall(cur, id, ev.ToolName, ev.Args, ev.RawArgs)
		case GenDone:
			usage = ev.Usage
		case GenError:
			a.clearInProgress()
			return zero, ev.Err
		}
	}

	if ctx.Err() != nil {
		return zero, ctx.Err()
	}

	if usage != (Usage{}) {
		a.mu.Lock()
		u := usage
		cur.Usage = &u
		a.mu.Unlock()
	}
	a.setStreaming(false)
	return roundResult{msg: cur, usage: usage}, nil
}

// abortTurn finalizes an aborted turn. Partially-streamed assistant text is
// retained as-is; the aborted event is the last event of the turn.
func (a *Agent) abortTurn() {
	a.mu.Lock()
	if ip := a.state.InProgress; ip != nil {
		if len(ip.Blocks) > 0 {
			a.state.Append(*ip)
		}
		a.state.InProgress = nil
	}
	a.state.Streaming = false
	a.phase = PhaseAborted
	a.mu.Unlock()

	a.bus.Publish(Event{Kind: EventAborted})
}

func (a *Agent) endTurn(phase Phase, ev Event) {
	a.mu.Lock()
	a.phase = phase
	a.state.Streaming = false
	a.mu.Unlock()
	a.bus.Publish(ev)
}

func (a *Agent) setPhase(p Phase) {
	a.mu.Lock()
	a.phase = p
	a.mu.Unlock()
}

func (a *Agent) setStreaming(v bool) {
	a.mu.Lock()
	a.state.Streaming = v
	a.mu.Unlock()
}

func (a *Agent) clearInProgress() {
	a.mu.Lock()
	a.state.InProgress = nil
	a.state.Streaming = false
	a.mu.Unlock()
}

// drainSteering moves every queued steering message into the conversation
// history, in submission order.
func (a *Agent) drainSteering() int {
	a.steerMu.Lock()
	queued := a.steering
	a.steering = nil
	a.steerMu.Unlock()

	if len(queued) == 0 {
		return 0
	}
	a.mu.Lock()
	for _, m := range queued {
		a.state.Append(m)
	}
	a.mu.Unlock()
	return len(queued)
}

// finishTurnIfQuiescent ends the turn as idle unless steering is queued.
// It holds the steering lock across the phase transition, so a concurrent
// Steer either lands in the queue before the check or observes the idle
// phase and starts a fresh turn; a message can never be stranded between
// the two.
func (a *Agent) finishTurnIfQuiescent() bool {
	a.steerMu.Lock()
	if len(a.steering) > 0 {
		a.steerMu.Unlock()
		return false
	}
	a.mu.Lock()
	a.phase = PhaseIdle
	a.state.Streaming = false
	totals := a.state.Totals
	a.mu.Unlock()
	a.steerMu.Unlock()

	a.bus.Publish(Event{Kind: EventDone, Usage: &totals})
	return true
}

func (a *Agent) appendTextDelta(cur *Message, text string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if n := len(cur.Blocks); n > 0 && cur.Blocks[n-1].Type == BlockText {
		cur.Blocks[n-1].Text += text
		return
	}
	cur.Blocks = append(cur.Blocks, ContentBlock{Type: BlockText, Text: text})
}

func (a *Agent) appendToolCallBlock(cur *Message, call ToolCall) {
	a.mu.Lock()
	defer a.mu.Unlock()
	c := call
	cur.Blocks = append(cur.Blocks, ContentBlock{Type: BlockToolCall, Call: &c})
}

func (a *Agent) appendRawArgs(cur *Message, callID, fragment string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range cur.Blocks {
		if cur.Blocks[i].Type == BlockToolCall && cur.Blocks[i].Call.ID == callID {
			cur.Blocks[i].Call.Raw += fragment
			return
		}
	}
}

func (a *Agent) completeToolCall(cur *Message, callID, name string, args map[string]any, raw string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range cur.Blocks {
		if cur.Blocks[i].Type == BlockToolCall && cur.Blocks[i].Call.ID == callID {
			call := cur.Blocks[i].Call
			if name != "" {
				call.Name = name
			}
			call.Args = args
			if raw != "" {
				call.Raw = raw
			}
			return
		}
	}
}

func (u *Usage) add(other Usage) {
	u.Prompt += other.Prompt
	u.Completion += other.Completion
	u.Total += other.Total
}
