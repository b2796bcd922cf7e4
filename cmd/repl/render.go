package main

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/mkaddoura/drover/internal/agent"
)

// renderer turns the agent's event stream into terminal output. It runs on
// the bus delivery goroutine; turnDone signals each terminal event so the
// input loop can re-prompt.
type renderer struct {
	mu       sync.Mutex
	inText   bool
	turnDone chan agent.EventKind
}

func newRenderer() *renderer {
	return &renderer{turnDone: make(chan agent.EventKind, 1)}
}

func (r *renderer) observe(ev agent.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Kind {
	case agent.EventTextDelta:
		fmt.Print(ev.Text)
		r.inText = true

	case agent.EventToolCallStart:
		r.breakText()
		fmt.Printf("  [%s]\n", ev.ToolName)

	case agent.EventToolCallDelta:
		// Progress notes from tools arrive here alongside raw argument
		// fragments; only render the human-readable ones.
		if strings.HasPrefix(ev.Partial, "$ ") {
			fmt.Printf("  %s\n", ev.Partial)
		}

	case agent.EventToolCallEnd:
		if ev.Result != nil && ev.Result.IsError {
			fmt.Printf("  [%s] failed\n", ev.ToolName)
		}

	case agent.EventDone:
		r.breakText()
		if ev.Usage != nil && ev.Usage.Total > 0 {
			fmt.Printf("(%d tokens)\n", ev.Usage.Total)
		}
		r.signal(ev.Kind)

	case agent.EventAborted:
		r.breakText()
		fmt.Println("(aborted)")
		r.signal(ev.Kind)

	case agent.EventError:
		r.breakText()
		fmt.Fprintf(os.Stderr, "error: %v\n", ev.Err)
		r.signal(ev.Kind)
	}
}

func (r *renderer) breakText() {
	if r.inText {
		fmt.Println()
		r.inText = false
	}
}

func (r *renderer) signal(kind agent.EventKind) {
	select {
	case r.turnDone <- kind:
	default:
	}
}
