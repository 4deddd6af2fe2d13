package chat

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdeck/ragdeck/internal/api"
	"github.com/ragdeck/ragdeck/internal/log"
	"github.com/ragdeck/ragdeck/internal/store"
	"github.com/ragdeck/ragdeck/internal/testutil"
)

func newFlow(t *testing.T, backend *testutil.Backend) (*Flow, *store.Chat) {
	t.Helper()

	chatStore := store.NewChat(nil, log.NewNop())
	client := api.New(backend.URL(), log.NewNop())
	return New(client, chatStore, nil, log.NewNop()), chatStore
}

func relevantChunk() map[string]any {
	return testutil.WireChunk("chunks/c-7", "refunds are processed in 14 days", 0.853, "policy.pdf")
}

func TestAsk(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Chunks = []map[string]any{relevantChunk()}
	backend.GenerateResponse = "The refund window is 14 days."
	flow, chatStore := newFlow(t, backend)

	msg, err := flow.Ask(context.Background(), "what is the refund window?")
	require.NoError(t, err)
	assert.Equal(t, store.RoleAssistant, msg.Role)
	assert.Equal(t, "The refund window is 14 days.", msg.Content)
	require.NotEmpty(t, msg.Sources)
	assert.Equal(t, "policy.pdf", msg.Sources[0].SourceDocument)

	// Transcript: user question then assistant answer.
	messages := chatStore.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleUser, messages[0].Role)
	assert.Equal(t, "what is the refund window?", messages[0].Content)
}

func TestAsk_NoChunksFailsBeforeGeneration(t *testing.T) {
	backend := testutil.NewBackend(t)
	flow, chatStore := newFlow(t, backend)

	_, err := flow.Ask(context.Background(), "anything here?")
	require.ErrorIs(t, err, ErrNoChunks)

	// Retrieval ran, generation never did.
	assert.Equal(t, 1, backend.QueryCalls)
	assert.Equal(t, 0, backend.GenerateCalls)

	// The user message stays; an apology follows.
	messages := chatStore.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleUser, messages[0].Role)
	assert.Equal(t, store.RoleAssistant, messages[1].Role)
	assert.Contains(t, messages[1].Content, "Sorry")
}

func TestAsk_MinScoreFiltersRetrieval(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Chunks = []map[string]any{
		testutil.WireChunk("chunks/c-1", "barely related", 0.12, "misc.pdf"),
	}
	flow, _ := newFlow(t, backend)

	// Default floor is 0.3; a 0.12 chunk does not clear it.
	_, err := flow.Ask(context.Background(), "anything here?")
	require.ErrorIs(t, err, ErrNoChunks)
	assert.Equal(t, 0, backend.GenerateCalls)
}

func TestAsk_GenerationFailureAppendsApology(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Chunks = []map[string]any{relevantChunk()}
	backend.FailGenerate = true
	flow, chatStore := newFlow(t, backend)

	_, err := flow.Ask(context.Background(), "what is the refund window?")
	var apiErr *api.APIError
	require.ErrorAs(t, err, &apiErr)

	messages := chatStore.Messages()
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1].Content, "Sorry")
}

func TestAsk_EmptyQuery(t *testing.T) {
	backend := testutil.NewBackend(t)
	flow, chatStore := newFlow(t, backend)

	_, err := flow.Ask(context.Background(), "   ")
	require.ErrorIs(t, err, ErrEmptyQuery)
	assert.Equal(t, 0, backend.QueryCalls)
	assert.Equal(t, 0, chatStore.Len())
}

func TestAsk_NoActiveDocuments(t *testing.T) {
	backend := testutil.NewBackend(t)
	chatStore := store.NewChat(nil, log.NewNop())
	docs := store.NewDocuments(nil, log.NewNop())
	docs.SetPage(api.DocumentPage{Documents: []api.Document{
		{Name: "docs/a", State: api.StatePending},
	}}, true)
	client := api.New(backend.URL(), log.NewNop())
	flow := New(client, chatStore, docs, log.NewNop())

	_, err := flow.Ask(context.Background(), "anything here?")
	require.ErrorIs(t, err, ErrNoActiveDocuments)
	assert.Equal(t, 0, backend.QueryCalls)
}

func TestAsk_SendsPreTurnHistory(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Chunks = []map[string]any{relevantChunk()}
	backend.GenerateResponse = "answer"
	flow, _ := newFlow(t, backend)
	ctx := context.Background()

	_, err := flow.Ask(ctx, "first question")
	require.NoError(t, err)

	// The first turn carries no history at all.
	backend.Lock()
	first := backend.LastGenerateBody
	backend.Unlock()
	assert.Nil(t, first["chat_history"])

	_, err = flow.Ask(ctx, "second question")
	require.NoError(t, err)

	// The second turn carries exactly the first turn, not itself.
	backend.Lock()
	second := backend.LastGenerateBody
	backend.Unlock()
	history, ok := second["chat_history"].([]any)
	require.True(t, ok)
	require.Len(t, history, 2)
	turn := history[0].(map[string]any)
	assert.Equal(t, "user", turn["role"])
	assert.Equal(t, "first question", turn["text"])
	assert.Equal(t, "model", history[1].(map[string]any)["role"])
}

func TestAsk_HistoryNeverExceedsCap(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Chunks = []map[string]any{relevantChunk()}
	backend.GenerateResponse = "answer"
	flow, _ := newFlow(t, backend)
	ctx := context.Background()

	for i := range 15 {
		_, err := flow.Ask(ctx, fmt.Sprintf("question %d", i))
		require.NoError(t, err)
	}

	backend.Lock()
	last := backend.LastGenerateBody
	backend.Unlock()
	history, ok := last["chat_history"].([]any)
	require.True(t, ok)
	assert.LessOrEqual(t, len(history), store.HistoryCap)
}

func TestStream(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Chunks = []map[string]any{relevantChunk()}
	backend.StreamBody = testutil.Frame(map[string]any{"text": "Hel"}) +
		testutil.Frame(map[string]any{"text": "lo"}) +
		testutil.Frame(map[string]any{"done": true})
	flow, chatStore := newFlow(t, backend)

	var chunks []api.Chunk
	var deltas []string
	var final *store.Message
	for ev, err := range flow.Stream(context.Background(), "what is the refund window?") {
		require.NoError(t, err)
		switch {
		case ev.Chunks != nil:
			chunks = ev.Chunks
		case ev.Message != nil:
			final = ev.Message
		default:
			deltas = append(deltas, ev.Text)
		}
	}

	require.Len(t, chunks, 1)
	assert.Equal(t, []string{"Hel", "lo"}, deltas)
	require.NotNil(t, final)
	assert.Equal(t, "Hello", final.Content)
	require.NotEmpty(t, final.Sources)

	// The committed message matches the transcript.
	messages := chatStore.Messages()
	require.Len(t, messages, 2)
	assert.Equal(t, "Hello", messages[1].Content)
}

func TestStream_CancelDiscardsPartialAnswer(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Chunks = []map[string]any{relevantChunk()}
	// A slow stream that never sends done, so cancellation is the only
	// way out.
	var frames []string
	for range 50 {
		frames = append(frames, testutil.Frame(map[string]any{"text": "delta "}))
	}
	backend.StreamBody = strings.Join(frames, "")
	backend.StreamSegments = 50
	backend.StreamDelay = 10 * time.Millisecond
	flow, chatStore := newFlow(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var deltas int
	var lastErr error
	for ev, err := range flow.Stream(ctx, "what is the refund window?") {
		if err != nil {
			lastErr = err
			break
		}
		if ev.Text != "" {
			deltas++
			if deltas == 2 {
				cancel()
			}
		}
	}

	// Cancellation ends the turn without a committed assistant message
	// and without an apology; the user message stays.
	require.ErrorIs(t, lastErr, context.Canceled)
	messages := chatStore.Messages()
	require.Len(t, messages, 1)
	assert.Equal(t, store.RoleUser, messages[0].Role)
}

func TestStream_NoChunks(t *testing.T) {
	backend := testutil.NewBackend(t)
	flow, _ := newFlow(t, backend)

	var lastErr error
	for _, err := range flow.Stream(context.Background(), "anything here?") {
		if err != nil {
			lastErr = err
			break
		}
	}
	require.ErrorIs(t, lastErr, ErrNoChunks)
	assert.Equal(t, 0, backend.StreamCalls)
}
