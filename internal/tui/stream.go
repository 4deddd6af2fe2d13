package tui

import (
	"context"
	"fmt"
	"log/slog"

	tea "charm.land/bubbletea/v2"

	"github.com/ragdeck/ragdeck/internal/api"
	"github.com/ragdeck/ragdeck/internal/store"
)

// streamBufferSize absorbs render delays without backpressuring the
// network read.
const streamBufferSize = 100

// streamEvent is a discriminated union for all stream events. A single
// channel with a union type keeps the select logic flat.
type streamEvent struct {
	// Exactly one of these fields is set per event
	chunks  []api.Chunk    // Retrieval completed
	text    string         // Text delta (when non-empty)
	message *store.Message // Committed assistant message (terminal)
	err     error          // Error (when non-nil, terminal)
}

// Stream message types for Bubble Tea.
type streamStartedMsg struct {
	eventCh <-chan streamEvent
	cancel  context.CancelFunc
}

type streamChunksMsg struct {
	chunks []api.Chunk
}

type streamTextMsg struct {
	text string
}

type streamDoneMsg struct {
	message store.Message
}

type streamErrorMsg struct {
	err error
}

// startStream creates a command that runs one chat turn through the
// flow's streaming iterator.
//
// Goroutine lifecycle: the spawned goroutine exits when the turn
// completes, fails, or the stream context is cancelled. Channel
// closure signals completion; no WaitGroup needed.
func (m *Model) startStream(query string) tea.Cmd {
	return func() tea.Msg {
		eventCh := make(chan streamEvent, streamBufferSize)
		ctx, cancel := context.WithCancel(m.ctx)

		go func() {
			defer close(eventCh)

			// Panic recovery to prevent a locked-up dashboard
			defer func() {
				if r := recover(); r != nil {
					slog.Error("stream panic recovered", "panic", r)
					select {
					case eventCh <- streamEvent{err: fmt.Errorf("stream panic: %v", r)}:
					default:
					}
				}
			}()

			for ev, err := range m.flow.Stream(ctx, query) {
				var out streamEvent
				switch {
				case err != nil:
					out = streamEvent{err: err}
				case ev.Chunks != nil:
					out = streamEvent{chunks: ev.Chunks}
				case ev.Message != nil:
					out = streamEvent{message: ev.Message}
				case ev.Text != "":
					out = streamEvent{text: ev.Text}
				default:
					continue
				}
				select {
				case eventCh <- out:
				case <-ctx.Done():
					return
				}
				if out.err != nil || out.message != nil {
					return
				}
			}
		}()

		return streamStartedMsg{eventCh: eventCh, cancel: cancel}
	}
}

// listenForStream waits for the next stream event. Closed channel and
// empty events are handled in a loop rather than recursion.
func listenForStream(eventCh <-chan streamEvent) tea.Cmd {
	return func() tea.Msg {
		if eventCh == nil {
			return nil
		}
		for {
			event, ok := <-eventCh
			if !ok {
				return streamErrorMsg{err: fmt.Errorf("stream ended without completion signal")}
			}
			switch {
			case event.err != nil:
				return streamErrorMsg{err: event.err}
			case event.message != nil:
				return streamDoneMsg{message: *event.message}
			case event.chunks != nil:
				return streamChunksMsg{chunks: event.chunks}
			case event.text != "":
				return streamTextMsg{text: event.text}
			default:
				continue
			}
		}
	}
}
