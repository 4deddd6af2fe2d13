package tui

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/ragdeck/ragdeck/internal/api"
	"github.com/ragdeck/ragdeck/internal/chat"
	"github.com/ragdeck/ragdeck/internal/log"
	"github.com/ragdeck/ragdeck/internal/store"
	"github.com/ragdeck/ragdeck/internal/testutil"
)

// goleakOptions filters goroutines that legitimately outlive a test:
// HTTP keepalive connections and the poll runtime.
func goleakOptions() []goleak.Option {
	return []goleak.Option{
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
	}
}

// newTestModel builds a dashboard wired to a fake backend with
// in-memory stores. Callers defer m.cleanup() to stop the tracker.
func newTestModel(t *testing.T) (*Model, *testutil.Backend) {
	t.Helper()

	backend := testutil.NewBackend(t)
	client := api.New(backend.URL(), log.NewNop())
	docs := store.NewDocuments(nil, log.NewNop())
	chunks := store.NewChunks(nil, log.NewNop())
	chatStore := store.NewChat(nil, log.NewNop())
	flow := chat.New(client, chatStore, docs, log.NewNop())

	m, err := New(context.Background(), Deps{
		Client:    client,
		Flow:      flow,
		Documents: docs,
		Chunks:    chunks,
		Chat:      chatStore,
		Logger:    log.NewNop(),
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return m, backend
}

func samplePage() api.DocumentPage {
	return api.DocumentPage{
		Documents: []api.Document{
			{Name: "docs/a", DisplayName: "report.pdf", State: api.StateActive, SizeBytes: 2048},
			{Name: "docs/b", DisplayName: "notes.txt", State: api.StatePending},
		},
	}
}

func TestNew_Validation(t *testing.T) {
	_, err := New(context.Background(), Deps{})
	if err == nil {
		t.Error("expected error for missing dependencies")
	}
}

func TestModel_DocumentsLoaded(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m, _ := newTestModel(t)
	defer m.cleanup()
	m.Update(documentsLoadedMsg{page: samplePage(), firstPage: true})

	if got := m.docs.Len(); got != 2 {
		t.Fatalf("expected 2 documents in store, got %d", got)
	}
	if got := len(m.table.Rows()); got != 2 {
		t.Fatalf("expected 2 table rows, got %d", got)
	}
}

func TestModel_DocumentDeleted(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m, _ := newTestModel(t)
	defer m.cleanup()
	m.Update(documentsLoadedMsg{page: samplePage(), firstPage: true})
	m.chunks.SetResults("docs/a", []api.Chunk{{Name: "c-1", Score: 0.9}})

	m.Update(documentDeletedMsg{name: "docs/a"})

	if got := m.docs.Len(); got != 1 {
		t.Fatalf("expected 1 document after delete, got %d", got)
	}
	// Chunk results of the deleted document are dropped too.
	if m.chunks.Document() != "" {
		t.Error("expected chunk results cleared after their document was deleted")
	}
}

func TestModel_ChunksLoaded(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m, _ := newTestModel(t)
	defer m.cleanup()
	m.chunksBusy = true
	m.chunks.SetResults("docs/a", nil)

	m.Update(chunksLoadedMsg{
		document: "report.pdf",
		chunks:   []api.Chunk{{Name: "chunks/c-1", Text: "fragment", Score: 0.9}},
	})

	if m.chunksBusy {
		t.Error("chunksBusy should reset once results arrive")
	}
	if got := len(m.chunks.Results()); got != 1 {
		t.Fatalf("expected 1 chunk result, got %d", got)
	}
	if m.chunksDoc != "report.pdf" {
		t.Errorf("chunksDoc = %q, want report.pdf", m.chunksDoc)
	}
}

func TestModel_UploadStartedTracksOperation(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m, _ := newTestModel(t)
	defer m.cleanup()
	m.Update(uploadStartedMsg{operation: "operations/op-1", label: "report.pdf"})

	entries := m.tracker.Entries()
	if len(entries) != 1 {
		t.Fatalf("expected 1 tracked operation, got %d", len(entries))
	}
	if entries[0].Label != "report.pdf" {
		t.Errorf("label = %q, want report.pdf", entries[0].Label)
	}
}

func TestModel_TrackerRefreshFetchesDocuments(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m, _ := newTestModel(t)
	defer m.cleanup()
	_, cmd := m.Update(trackerRefreshMsg{})
	if cmd == nil {
		t.Error("tracker refresh should schedule a document fetch")
	}
}

func TestModel_StreamLifecycle(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m, _ := newTestModel(t)
	defer m.cleanup()
	m.tab = TabChat
	m.state = StateThinking
	m.streamEventCh = make(chan streamEvent)

	m.Update(streamChunksMsg{chunks: []api.Chunk{{Name: "c-1", Score: 0.9}}})
	if m.state != StateStreaming {
		t.Fatalf("state = %v after retrieval, want StateStreaming", m.state)
	}

	m.Update(streamTextMsg{text: "Hel"})
	m.Update(streamTextMsg{text: "lo"})
	if got := m.output.String(); got != "Hello" {
		t.Fatalf("accumulated output = %q, want Hello", got)
	}

	msg := m.chatStore.Append(store.RoleAssistant, "Hello", nil)
	m.Update(streamDoneMsg{message: msg})
	if m.state != StateInput {
		t.Error("state should return to StateInput after completion")
	}
	if m.output.Len() != 0 {
		t.Error("output buffer should reset after completion")
	}
}

func TestModel_StreamCancelKeepsTranscriptClean(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m, _ := newTestModel(t)
	defer m.cleanup()
	m.tab = TabChat
	m.state = StateStreaming
	m.output.WriteString("partial")

	m.Update(streamErrorMsg{err: context.Canceled})

	if m.state != StateInput {
		t.Error("state should return to StateInput after cancel")
	}
	if m.output.Len() != 0 {
		t.Error("partial output must be discarded on cancel")
	}
	if m.status != "(canceled)" {
		t.Errorf("status = %q, want (canceled)", m.status)
	}
}

func TestModel_SlashCommands(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m, _ := newTestModel(t)
	defer m.cleanup()
	m.tab = TabChat
	m.chatStore.Append(store.RoleUser, "hello", nil)
	before := m.chatStore.SessionID()

	m.handleSlashCommand(cmdClear)
	if m.chatStore.Len() != 0 {
		t.Error("/clear should empty the transcript")
	}
	if m.chatStore.SessionID() == before {
		t.Error("/clear should start a new session")
	}

	m.handleSlashCommand("/bogus")
	if m.status == "" {
		t.Error("unknown command should surface in the status line")
	}

	_, cmd := m.handleSlashCommand(cmdExit)
	if cmd == nil {
		t.Error("/exit should return the quit command")
	}
}

func TestModel_SetCommand(t *testing.T) {
	defer goleak.VerifyNone(t, goleakOptions()...)

	m, _ := newTestModel(t)
	defer m.cleanup()
	m.tab = TabChat

	m.handleSlashCommand("/set results 5")
	if got := m.chatStore.Settings().ResultsCount; got != 5 {
		t.Fatalf("ResultsCount = %d, want 5", got)
	}

	m.handleSlashCommand("/set minscore 0.5")
	if got := m.chatStore.Settings().MinScore; got != 0.5 {
		t.Fatalf("MinScore = %v, want 0.5", got)
	}

	m.handleSlashCommand("/set stream off")
	if m.chatStore.Settings().Stream {
		t.Error("stream should be off")
	}

	m.handleSlashCommand("/set model gemini-2.5-pro")
	if got := m.chatStore.Settings().Model; got != "gemini-2.5-pro" {
		t.Fatalf("Model = %q, want gemini-2.5-pro", got)
	}

	m.handleSlashCommand("/set results nine")
	if m.chatStore.Settings().ResultsCount != 5 {
		t.Error("invalid value must not change the setting")
	}
	if m.status != "results must be a number between 1 and 100" {
		t.Errorf("status = %q, want validation message", m.status)
	}

	m.handleSlashCommand("/settings")
	if !strings.Contains(m.status, "model=gemini-2.5-pro") {
		t.Errorf("settings summary = %q, want current model", m.status)
	}
}

func TestHumanSize(t *testing.T) {
	tests := []struct {
		n    int64
		want string
	}{
		{0, "-"},
		{512, "512 B"},
		{2048, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := humanSize(tt.n); got != tt.want {
			t.Errorf("humanSize(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}

func TestShortName(t *testing.T) {
	if got := shortName("fileSearchStores/s/documents/d/chunks/c-1"); got != "c-1" {
		t.Errorf("shortName = %q, want c-1", got)
	}
	if got := shortName("plain"); got != "plain" {
		t.Errorf("shortName = %q, want plain", got)
	}
}
