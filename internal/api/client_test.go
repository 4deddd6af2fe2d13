package api

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragdeck/ragdeck/internal/log"
	"github.com/ragdeck/ragdeck/internal/testutil"
)

func TestConfig(t *testing.T) {
	backend := testutil.NewBackend(t)
	client := New(backend.URL(), log.NewNop())

	cfg, err := client.Config(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "test-store", cfg.StoreName)
	assert.True(t, cfg.APIConfigured)
}

func TestDocuments(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Documents = []map[string]any{
		testutil.WireDocument("fileSearchStores/s/documents/doc-1", "report.pdf", "STATE_ACTIVE"),
		testutil.WireDocument("fileSearchStores/s/documents/doc-2", "notes.txt", "STATE_PENDING"),
	}
	backend.NextPageToken = "page-2"
	client := New(backend.URL(), log.NewNop())

	page, err := client.Documents(context.Background(), 20, "")
	require.NoError(t, err)
	require.Len(t, page.Documents, 2)
	assert.Equal(t, "page-2", page.NextPageToken)

	doc := page.Documents[0]
	assert.Equal(t, "fileSearchStores/s/documents/doc-1", doc.Name)
	assert.Equal(t, "report.pdf", doc.DisplayName)
	assert.Equal(t, StateActive, doc.State)
	assert.Equal(t, int64(2048), doc.SizeBytes) // wire sends sizeBytes as a string
	assert.Equal(t, 2026, doc.CreateTime.Year())
	assert.Equal(t, StatePending, page.Documents[1].State)
}

func TestUpload(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.UploadOperation = "operations/op-42"
	client := New(backend.URL(), log.NewNop())

	result, err := client.Upload(context.Background(), strings.NewReader("content"), UploadRequest{
		Filename:       "report.pdf",
		DisplayName:    "report.pdf",
		ChunkSize:      256,
		MetadataKeys:   []string{"author", "", "team"},
		MetadataValues: []string{"alice", "dropped", ""},
	})
	require.NoError(t, err)
	assert.Equal(t, "operations/op-42", result.OperationName)

	// Empty-sided metadata pairs are filtered before the request.
	assert.Equal(t, []string{"author"}, backend.LastUploadForm["metadataKeys[]"])
	assert.Equal(t, []string{"alice"}, backend.LastUploadForm["metadataValues[]"])
	assert.Equal(t, []string{"256"}, backend.LastUploadForm["chunkSize"])
	assert.Equal(t, "report.pdf", backend.LastUploadFilename)
}

func TestUpload_Validation(t *testing.T) {
	backend := testutil.NewBackend(t)
	client := New(backend.URL(), log.NewNop())
	ctx := context.Background()

	_, err := client.Upload(ctx, nil, UploadRequest{})
	assert.ErrorIs(t, err, ErrNoFile)

	_, err = client.Upload(ctx, strings.NewReader("x"), UploadRequest{
		Filename: "a.txt", ChunkSize: 1024,
	})
	assert.ErrorIs(t, err, ErrInvalidChunkSize)

	_, err = client.Upload(ctx, strings.NewReader("x"), UploadRequest{
		Filename: "a.txt", MetadataKeys: []string{"k"},
	})
	assert.ErrorIs(t, err, ErrMetadataMismatch)

	// Nothing reached the backend.
	assert.Equal(t, 0, backend.UploadCalls)
}

func TestOperation(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.ScriptOperation("operations/op-1",
		testutil.OperationStatus{Done: false, State: "RUNNING"},
		testutil.OperationStatus{Done: true, State: "SUCCEEDED"},
	)
	client := New(backend.URL(), log.NewNop())
	ctx := context.Background()

	op, err := client.Operation(ctx, "operations/op-1")
	require.NoError(t, err)
	assert.False(t, op.Done)

	op, err = client.Operation(ctx, "operations/op-1")
	require.NoError(t, err)
	assert.True(t, op.Done)
	assert.Nil(t, op.Error)
}

func TestOperation_Failed(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.ScriptOperation("operations/op-9",
		testutil.OperationStatus{Done: true, State: "FAILED", ErrorMsg: "unsupported format"},
	)
	client := New(backend.URL(), log.NewNop())

	op, err := client.Operation(context.Background(), "operations/op-9")
	require.NoError(t, err)
	assert.True(t, op.Done)
	require.NotNil(t, op.Error)
	assert.Equal(t, "unsupported format", op.Error.Message)
}

func TestDeleteDocument(t *testing.T) {
	backend := testutil.NewBackend(t)
	client := New(backend.URL(), log.NewNop())

	err := client.DeleteDocument(context.Background(), "fileSearchStores/s/documents/doc-1", true)
	require.NoError(t, err)
	require.Len(t, backend.DeleteCalls, 1)
	assert.Equal(t, "fileSearchStores/s/documents/doc-1", backend.DeleteCalls[0])
}

func TestDocumentChunks_FlatShape(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Chunks = []map[string]any{
		testutil.FlatWireChunk("chunks/c-1", "first fragment", 0.91),
	}
	client := New(backend.URL(), log.NewNop())

	// Empty query becomes the wildcard.
	chunks, err := client.DocumentChunks(context.Background(), "docs/doc-1", "", 25)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "first fragment", chunks[0].Text)
	assert.Equal(t, "chunks/c-1", chunks[0].Name)
	assert.InDelta(t, 0.91, chunks[0].Score, 1e-9)
}

func TestChatQuery_NestedShape(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.Chunks = []map[string]any{
		testutil.WireChunk("chunks/c-7", "refunds are processed in 14 days", 0.853, "policy.pdf"),
	}
	client := New(backend.URL(), log.NewNop())

	chunks, err := client.ChatQuery(context.Background(), "refund policy", 10)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	chunk := chunks[0]
	assert.Equal(t, "refunds are processed in 14 days", chunk.Text)
	assert.Equal(t, "policy.pdf", chunk.SourceDocument)
	assert.Equal(t, 85, chunk.Percent())
}

func TestChatQuery_EmptyQuery(t *testing.T) {
	backend := testutil.NewBackend(t)
	client := New(backend.URL(), log.NewNop())

	_, err := client.ChatQuery(context.Background(), "   ", 10)
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Equal(t, 0, backend.QueryCalls)
}

func TestGenerate(t *testing.T) {
	backend := testutil.NewBackend(t)
	backend.GenerateResponse = "The refund window is 14 days."
	backend.Chunks = []map[string]any{
		testutil.WireChunk("chunks/c-7", "refunds are processed in 14 days", 0.853, "policy.pdf"),
	}
	client := New(backend.URL(), log.NewNop())

	result, err := client.Generate(context.Background(), GenerateRequest{
		Query:   "refund policy",
		Model:   "gemini-2.5-flash",
		Chunks:  []Chunk{{Name: "chunks/c-7", Text: "refunds", Score: 0.853, SourceDocument: "policy.pdf"}},
		History: []HistoryMessage{{Role: "user", Text: "hi"}, {Role: "model", Text: "hello"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "The refund window is 14 days.", result.Response)
	assert.Equal(t, 1, result.ChunksUsed)
	require.Len(t, result.ChunksUsedSet, 1)
}

func TestAPIError(t *testing.T) {
	backend := testutil.NewBackend(t)
	client := New(backend.URL(), log.NewNop())

	_, err := client.Operation(context.Background(), "")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 404, apiErr.StatusCode)
	assert.True(t, IsNotFound(err))
}

func TestUnreachable(t *testing.T) {
	// Reserved TEST-NET-1 address: connection fails fast.
	client := New("http://192.0.2.1:9", log.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Config(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable) || errors.Is(err, context.Canceled))
}

func TestChunkPercent(t *testing.T) {
	tests := []struct {
		score float64
		want  int
	}{
		{0.853, 85},
		{0.855, 86},
		{0, 0},
		{1, 100},
		{0.004, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Chunk{Score: tt.score}.Percent(), "score %v", tt.score)
	}
}

func TestClampScore(t *testing.T) {
	assert.Equal(t, 0.0, clampScore(-0.2))
	assert.Equal(t, 1.0, clampScore(1.7))
	assert.Equal(t, 0.5, clampScore(0.5))
}
