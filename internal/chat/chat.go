// Package chat orchestrates a conversation turn: retrieval of relevant
// chunks strictly before generation, bounded history, and transcript
// bookkeeping through the chat store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"

	"github.com/ragdeck/ragdeck/internal/api"
	"github.com/ragdeck/ragdeck/internal/store"
)

// Turn failures surfaced before any backend generation call.
var (
	// ErrNoChunks: retrieval returned nothing above the score floor;
	// the turn fails without a generation request.
	ErrNoChunks = errors.New("no relevant chunks found for the query")
	// ErrNoActiveDocuments: every known document is still ingesting or
	// failed, so retrieval cannot succeed.
	ErrNoActiveDocuments = errors.New("no active documents available")
	// ErrEmptyQuery mirrors the client-side validation.
	ErrEmptyQuery = errors.New("query must not be empty")
)

// apology is appended as an assistant message when a turn fails for
// any reason other than user cancellation.
const apology = "Sorry, I could not generate an answer. Please try again."

// Backend is the slice of the API client a turn needs. *api.Client
// satisfies it.
type Backend interface {
	ChatQuery(ctx context.Context, query string, resultsCount int) ([]api.Chunk, error)
	Generate(ctx context.Context, req api.GenerateRequest) (api.GenerateResult, error)
	GenerateStream(ctx context.Context, req api.GenerateRequest) iter.Seq2[api.StreamValue, error]
}

// Flow runs chat turns against a backend, mutating the chat store as
// the single owner of the transcript.
type Flow struct {
	backend Backend
	chat    *store.Chat
	docs    *store.Documents
	logger  *slog.Logger
}

// New creates a Flow. docs may be nil, which disables the
// active-document gate (used by the one-shot ask command, which does
// not fetch the document list first).
func New(backend Backend, chat *store.Chat, docs *store.Documents, logger *slog.Logger) *Flow {
	if logger == nil {
		logger = slog.Default()
	}
	return &Flow{backend: backend, chat: chat, docs: docs, logger: logger}
}

// Event is one step of a streaming turn. Exactly one field is set:
// Chunks when retrieval completes, Text for an incremental answer
// delta, Message when the finished answer has been committed to the
// transcript.
type Event struct {
	Chunks  []api.Chunk
	Text    string
	Message *store.Message
}

// Ask runs one non-streaming turn and returns the committed assistant
// message.
//
// The user message is appended first and survives any failure.
// Retrieval runs strictly before generation; when it yields no chunk
// at or above the configured score floor, the turn fails with
// ErrNoChunks and no generation request is made. On any failure other
// than cancellation an apology message is appended to the transcript.
func (f *Flow) Ask(ctx context.Context, query string) (store.Message, error) {
	req, err := f.beginTurn(ctx, query)
	if err != nil {
		return store.Message{}, err
	}

	result, err := f.backend.Generate(ctx, req)
	if err != nil {
		return store.Message{}, f.failTurn(err)
	}

	sources := result.ChunksUsedSet
	if len(sources) == 0 {
		sources = req.Chunks
	}
	msg := f.chat.Append(store.RoleAssistant, result.Response, sources)
	f.logger.Debug("turn completed", "chunks", len(req.Chunks), "answer_len", len(result.Response))
	return msg, nil
}

// Stream runs one streaming turn, yielding retrieval output, text
// deltas, and finally the committed assistant message.
//
// Cancelling ctx stops the stream without committing a message from
// the partial text and without an apology; any other failure appends
// the apology before the error is yielded.
func (f *Flow) Stream(ctx context.Context, query string) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		req, err := f.beginTurn(ctx, query)
		if err != nil {
			yield(Event{}, err)
			return
		}
		if !yield(Event{Chunks: req.Chunks}, nil) {
			return
		}

		var b strings.Builder
		for v, err := range f.backend.GenerateStream(ctx, req) {
			if err != nil {
				yield(Event{}, f.failTurn(err))
				return
			}
			if v.Done {
				break
			}
			b.WriteString(v.Text)
			if !yield(Event{Text: v.Text}, nil) {
				return
			}
		}

		msg := f.chat.Append(store.RoleAssistant, b.String(), req.Chunks)
		f.logger.Debug("stream turn completed", "chunks", len(req.Chunks), "answer_len", b.Len())
		yield(Event{Message: &msg}, nil)
	}
}

// beginTurn validates the query, appends the user message, and runs
// retrieval. The history snapshot is taken before the user message is
// appended, so the backend sees only prior turns.
func (f *Flow) beginTurn(ctx context.Context, query string) (api.GenerateRequest, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return api.GenerateRequest{}, ErrEmptyQuery
	}
	if f.docs != nil && f.docs.Len() > 0 && !f.docs.HasActive() {
		return api.GenerateRequest{}, ErrNoActiveDocuments
	}

	settings := f.chat.Settings()
	history := f.chat.History()
	f.chat.Append(store.RoleUser, query, nil)

	chunks, err := f.backend.ChatQuery(ctx, query, settings.ResultsCount)
	if err != nil {
		return api.GenerateRequest{}, f.failTurn(fmt.Errorf("retrieve chunks: %w", err))
	}
	chunks = filterByScore(chunks, settings.MinScore)
	if len(chunks) == 0 {
		return api.GenerateRequest{}, f.failTurn(ErrNoChunks)
	}

	return api.GenerateRequest{
		Query:   query,
		Chunks:  chunks,
		Model:   settings.Model,
		History: history,
	}, nil
}

// failTurn appends the apology unless the turn was cancelled by the
// user, and passes the error through.
func (f *Flow) failTurn(err error) error {
	if errors.Is(err, context.Canceled) {
		f.logger.Debug("turn cancelled")
		return err
	}
	f.logger.Warn("turn failed", "error", err)
	f.chat.Append(store.RoleAssistant, apology, nil)
	return err
}

// filterByScore drops chunks below the configured relevance floor.
func filterByScore(chunks []api.Chunk, minScore float64) []api.Chunk {
	if minScore <= 0 {
		return chunks
	}
	out := make([]api.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Score >= minScore {
			out = append(out, c)
		}
	}
	return out
}
