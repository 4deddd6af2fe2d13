package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdeck/ragdeck/internal/api"
	"github.com/ragdeck/ragdeck/internal/log"
)

func openDir(t *testing.T) *Dir {
	t.Helper()

	dir, err := Open(filepath.Join(t.TempDir(), "state"), log.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = dir.Close() })
	return dir
}

func TestOpen_SecondInstanceLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")

	first, err := Open(path, log.NewNop())
	require.NoError(t, err)

	_, err = Open(path, log.NewNop())
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Close())
	second, err := Open(path, log.NewNop())
	require.NoError(t, err)
	require.NoError(t, second.Close())
}

func TestNilDir_MemoryOnly(t *testing.T) {
	chat := NewChat(nil, log.NewNop())
	chat.Append(RoleUser, "hello", nil)
	assert.Equal(t, 1, chat.Len())
	assert.NotEmpty(t, chat.SessionID())
}

func TestChat_Defaults(t *testing.T) {
	chat := NewChat(openDir(t), log.NewNop())

	s := chat.Settings()
	assert.Equal(t, "gemini-2.5-flash", s.Model)
	assert.Equal(t, 10, s.ResultsCount)
	assert.InDelta(t, 0.3, s.MinScore, 1e-9)
	assert.True(t, s.Stream)
	assert.True(t, s.ShowSources)
	assert.Empty(t, chat.Messages())
}

func TestChat_HistoryCapAfterRepeatedTurns(t *testing.T) {
	chat := NewChat(openDir(t), log.NewNop())

	// 15 full turns: 30 messages appended.
	for i := range 15 {
		chat.Append(RoleUser, fmt.Sprintf("question %d", i), nil)
		chat.Append(RoleAssistant, fmt.Sprintf("answer %d", i), nil)
	}

	assert.Equal(t, HistoryCap, chat.Len())
	history := chat.History()
	require.Len(t, history, HistoryCap)

	// Only the most recent turns survive.
	assert.Equal(t, "question 5", history[0].Text)
	assert.Equal(t, "answer 14", history[len(history)-1].Text)
}

func TestChat_HistoryRoleMapping(t *testing.T) {
	chat := NewChat(openDir(t), log.NewNop())
	chat.Append(RoleUser, "hi", nil)
	chat.Append(RoleAssistant, "hello", nil)

	history := chat.History()
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)
}

func TestChat_ClearStartsNewSession(t *testing.T) {
	chat := NewChat(openDir(t), log.NewNop())
	chat.SetSettings(Settings{Model: "gemini-2.5-pro", ResultsCount: 5, MinScore: 0.5, Stream: false})
	chat.Append(RoleUser, "hi", nil)
	before := chat.SessionID()

	chat.Clear()

	assert.Equal(t, 0, chat.Len())
	assert.NotEqual(t, before, chat.SessionID())
	// Settings survive a clear.
	assert.Equal(t, "gemini-2.5-pro", chat.Settings().Model)
}

func TestChat_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")

	dir, err := Open(path, log.NewNop())
	require.NoError(t, err)
	chat := NewChat(dir, log.NewNop())
	chat.Append(RoleUser, "what is the refund window?", []api.Chunk{{Name: "c-1", Score: 0.9}})
	session := chat.SessionID()
	require.NoError(t, dir.Close())

	dir, err = Open(path, log.NewNop())
	require.NoError(t, err)
	defer dir.Close()

	restored := NewChat(dir, log.NewNop())
	assert.Equal(t, session, restored.SessionID())
	require.Equal(t, 1, restored.Len())
	msg := restored.Messages()[0]
	assert.Equal(t, "what is the refund window?", msg.Content)
	require.Len(t, msg.Sources, 1)
	assert.Equal(t, "c-1", msg.Sources[0].Name)
}

func TestChat_CorruptCacheResets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")
	require.NoError(t, os.MkdirAll(path, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(path, chatFile), []byte("{broken"), 0o600))

	dir, err := Open(path, log.NewNop())
	require.NoError(t, err)
	defer dir.Close()

	chat := NewChat(dir, log.NewNop())
	assert.Equal(t, 0, chat.Len())
	assert.NotEmpty(t, chat.SessionID())
	assert.Equal(t, DefaultSettings(), chat.Settings())
}

func sampleDocs() []api.Document {
	return []api.Document{
		{Name: "docs/a", DisplayName: "Quarterly Report.pdf", MimeType: "application/pdf", State: api.StateActive},
		{Name: "docs/b", DisplayName: "notes.txt", MimeType: "text/plain", State: api.StatePending},
		{Name: "docs/c", DisplayName: "handbook.md", MimeType: "text/markdown", State: api.StateFailed},
	}
}

func TestDocuments_PagesAndFilter(t *testing.T) {
	docs := NewDocuments(openDir(t), log.NewNop())

	docs.SetPage(api.DocumentPage{Documents: sampleDocs()[:2], NextPageToken: "p2"}, true)
	assert.Equal(t, 2, docs.Len())
	assert.Equal(t, "p2", docs.NextPageToken())

	docs.SetPage(api.DocumentPage{Documents: sampleDocs()[2:]}, false)
	assert.Equal(t, 3, docs.Len())
	assert.Empty(t, docs.NextPageToken())

	// Case-insensitive over display name and MIME type.
	docs.SetFilter("QUARTERLY")
	require.Len(t, docs.Filtered(), 1)
	assert.Equal(t, "docs/a", docs.Filtered()[0].Name)

	docs.SetFilter("text/")
	assert.Len(t, docs.Filtered(), 2)

	docs.SetFilter("")
	assert.Len(t, docs.Filtered(), 3)

	// A refetch replaces the first page.
	docs.SetPage(api.DocumentPage{Documents: sampleDocs()[:1]}, true)
	assert.Equal(t, 1, docs.Len())
}

func TestDocuments_HasActive(t *testing.T) {
	docs := NewDocuments(openDir(t), log.NewNop())
	assert.False(t, docs.HasActive())

	docs.SetPage(api.DocumentPage{Documents: sampleDocs()}, true)
	assert.True(t, docs.HasActive())

	docs.Remove("docs/a")
	assert.False(t, docs.HasActive())
	assert.Equal(t, 2, docs.Len())
}

func TestDocuments_SelectionPersistsAndPrunes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")

	dir, err := Open(path, log.NewNop())
	require.NoError(t, err)
	docs := NewDocuments(dir, log.NewNop())
	docs.SetPage(api.DocumentPage{Documents: sampleDocs()}, true)
	docs.ToggleSelect("docs/a")
	docs.ToggleSelect("docs/b")
	docs.SetFilter("report")
	require.NoError(t, dir.Close())

	dir, err = Open(path, log.NewNop())
	require.NoError(t, err)
	defer dir.Close()

	restored := NewDocuments(dir, log.NewNop())
	assert.Equal(t, "report", restored.Filter())
	assert.Equal(t, []string{"docs/a", "docs/b"}, restored.Selected())

	// A refetch that no longer contains docs/b prunes the selection.
	restored.SetPage(api.DocumentPage{Documents: sampleDocs()[:1]}, true)
	assert.Equal(t, []string{"docs/a"}, restored.Selected())

	restored.ToggleSelect("docs/a")
	assert.Empty(t, restored.Selected())
}

func TestChunks_ReplaceAndMinScore(t *testing.T) {
	chunks := NewChunks(openDir(t), log.NewNop())
	chunks.SetSearch(ChunkSearch{Query: "refund", ResultsCount: 25, MinScore: 0.5})

	chunks.SetResults("docs/a", []api.Chunk{
		{Name: "c-1", Score: 0.9},
		{Name: "c-2", Score: 0.3},
	})
	require.Len(t, chunks.Results(), 1)
	assert.Equal(t, "c-1", chunks.Results()[0].Name)
	assert.Equal(t, "docs/a", chunks.Document())

	// Each search replaces the prior result set.
	chunks.SetResults("docs/b", []api.Chunk{{Name: "c-3", Score: 0.8}})
	require.Len(t, chunks.Results(), 1)
	assert.Equal(t, "c-3", chunks.Results()[0].Name)
	assert.Equal(t, "docs/b", chunks.Document())

	chunks.Clear()
	assert.Empty(t, chunks.Results())
	assert.Empty(t, chunks.Document())
}

func TestChunks_SearchPersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state")

	dir, err := Open(path, log.NewNop())
	require.NoError(t, err)
	chunks := NewChunks(dir, log.NewNop())
	chunks.SetSearch(ChunkSearch{Query: "policy", ResultsCount: 50, MinScore: 0.2})
	require.NoError(t, dir.Close())

	dir, err = Open(path, log.NewNop())
	require.NoError(t, err)
	defer dir.Close()

	restored := NewChunks(dir, log.NewNop())
	assert.Equal(t, ChunkSearch{Query: "policy", ResultsCount: 50, MinScore: 0.2}, restored.Search())
}

func TestMessage_Timestamps(t *testing.T) {
	chat := NewChat(nil, log.NewNop())
	msg := chat.Append(RoleUser, "hi", nil)
	assert.NotEmpty(t, msg.ID)
	assert.WithinDuration(t, time.Now(), msg.CreatedAt, time.Minute)
}

func TestChat_ConcurrentTurnAndReads(t *testing.T) {
	chat := NewChat(nil, log.NewNop())

	// A chat turn appends from its own goroutine while the dashboard
	// rebuilds the transcript from the event loop.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			chat.Append(RoleUser, fmt.Sprintf("question %d", i), nil)
			chat.Append(RoleAssistant, fmt.Sprintf("answer %d", i), nil)
		}
	}()
	for i := 0; i < 200; i++ {
		_ = chat.Messages()
		_ = chat.Settings()
		_ = chat.History()
		_ = chat.Len()
	}
	<-done

	assert.Equal(t, HistoryCap, chat.Len())
}

func TestDocuments_ConcurrentPageAndGate(t *testing.T) {
	docs := NewDocuments(nil, log.NewNop())

	// Fetch commands write pages while a turn checks the active gate.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			docs.SetPage(api.DocumentPage{Documents: sampleDocs()}, true)
		}
	}()
	for i := 0; i < 200; i++ {
		_ = docs.Len()
		_ = docs.HasActive()
		_ = docs.Filtered()
	}
	<-done

	assert.True(t, docs.HasActive())
}
