// Package testutil provides test helpers shared across packages,
// centered on a scriptable fake of the Document/Chat backend.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

// OperationStatus is one scripted response for an operation poll.
type OperationStatus struct {
	Done     bool
	State    string
	ErrorMsg string
}

// Backend is a scriptable in-process stand-in for the Document/Chat
// backend. Zero value fields fall back to benign defaults; tests set
// only what they exercise. All exported state is guarded by mu and
// safe to inspect after requests complete.
type Backend struct {
	mu sync.Mutex

	// Documents returned by GET /api/documents, in wire form.
	Documents     []map[string]any
	NextPageToken string

	// Upload acknowledgement for POST /api/documents/upload.
	UploadOperation   string
	UploadDisplayName string

	// Scripted poll responses keyed by operation name; each poll pops
	// the head, the last entry repeats once the script is exhausted.
	operations map[string][]OperationStatus

	// Chunks returned by chunk retrieval endpoints, in wire form.
	Chunks []map[string]any

	// GenerateResponse is the non-streaming answer text.
	GenerateResponse string

	// FailGenerate makes the non-streaming generate endpoint return a
	// 500 with an error envelope.
	FailGenerate bool

	// LastGenerateBody captures the most recent generate or
	// generate-stream request body for assertions.
	LastGenerateBody map[string]any

	// StreamBody is written verbatim (in flushed segments, see
	// StreamSegments) by the streaming endpoint. Use Frame to build
	// well-formed frames.
	StreamBody string

	// StreamSegments, when > 1, splits StreamBody into that many
	// flushed writes regardless of frame boundaries, exercising
	// consumers against frames split across reads.
	StreamSegments int

	// StreamDelay is an optional pause between flushed segments.
	StreamDelay time.Duration

	// LastUploadForm and LastUploadFilename capture the most recent
	// multipart upload for assertions.
	LastUploadForm     map[string][]string
	LastUploadFilename string

	// Request counters.
	ListCalls     int
	UploadCalls   int
	PollCalls     map[string]int
	QueryCalls    int
	GenerateCalls int
	StreamCalls   int
	DeleteCalls   []string

	srv *httptest.Server
}

// NewBackend starts a fake backend; it is shut down via t.Cleanup.
func NewBackend(t *testing.T) *Backend {
	t.Helper()

	b := &Backend{
		UploadOperation: "operations/op-1",
		operations:      make(map[string][]OperationStatus),
		PollCalls:       make(map[string]int),
	}
	b.srv = httptest.NewServer(http.HandlerFunc(b.handle))
	t.Cleanup(b.srv.Close)
	return b
}

// URL returns the backend base URL.
func (b *Backend) URL() string { return b.srv.URL }

// Lock and Unlock expose the backend mutex so tests can inspect
// counters while requests may still be in flight.
func (b *Backend) Lock()   { b.mu.Lock() }
func (b *Backend) Unlock() { b.mu.Unlock() }

// ScriptOperation queues poll responses for an operation.
func (b *Backend) ScriptOperation(name string, statuses ...OperationStatus) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.operations[name] = statuses
}

// Frame renders one data: frame line for StreamBody.
func Frame(payload any) string {
	data, err := json.Marshal(payload)
	if err != nil {
		panic(fmt.Sprintf("testutil.Frame: %v", err))
	}
	return "data: " + string(data) + "\n\n"
}

// WireDocument builds a document in wire form.
func WireDocument(name, displayName, state string) map[string]any {
	return map[string]any{
		"name":        name,
		"displayName": displayName,
		"mimeType":    "application/pdf",
		"sizeBytes":   "2048",
		"state":       state,
		"createTime":  "2026-01-02T15:04:05Z",
		"updateTime":  "2026-01-02T15:04:05Z",
	}
}

// WireChunk builds a nested-layout chunk in wire form, as emitted by
// the chat retrieval endpoint.
func WireChunk(name, text string, score float64, source string) map[string]any {
	return map[string]any{
		"chunk": map[string]any{
			"name":  name,
			"data":  map[string]any{"stringValue": text},
			"state": "STATE_ACTIVE",
		},
		"chunkRelevanceScore": score,
		"source_document":     source,
	}
}

// FlatWireChunk builds a flat-layout chunk in wire form, as emitted by
// the per-document chunk endpoint.
func FlatWireChunk(name, text string, score float64) map[string]any {
	return map[string]any{
		"name":                name,
		"stringValue":         text,
		"state":               "STATE_ACTIVE",
		"createTime":          "2026-01-02T15:04:05Z",
		"updateTime":          "2026-01-02T15:04:05Z",
		"chunkRelevanceScore": score,
	}
}

func (b *Backend) handle(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/api/config":
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true, "store_name": "test-store", "api_configured": true,
		})

	case path == "/api/documents" && r.Method == http.MethodGet:
		b.mu.Lock()
		b.ListCalls++
		docs, next := b.Documents, b.NextPageToken
		b.mu.Unlock()
		if docs == nil {
			docs = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true, "documents": docs, "nextPageToken": next,
		})

	case path == "/api/documents/upload":
		b.mu.Lock()
		b.UploadCalls++
		op, display := b.UploadOperation, b.UploadDisplayName
		b.mu.Unlock()
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "bad form"})
			return
		}
		b.mu.Lock()
		b.LastUploadForm = r.MultipartForm.Value
		if files := r.MultipartForm.File["file"]; len(files) > 0 {
			b.LastUploadFilename = files[0].Filename
		}
		b.mu.Unlock()
		if display == "" {
			display = r.FormValue("displayName")
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true, "operationName": op, "displayName": display,
		})

	case strings.HasPrefix(path, "/api/operations/"):
		name := strings.TrimPrefix(path, "/api/operations/")
		b.mu.Lock()
		b.PollCalls[name]++
		script, known := b.operations[name]
		var status OperationStatus
		if len(script) > 0 {
			status = script[0]
			if len(script) > 1 {
				b.operations[name] = script[1:]
			}
		}
		b.mu.Unlock()
		if name == "" || !known {
			writeJSON(w, http.StatusNotFound, map[string]any{
				"success": false, "error": "operation not found",
			})
			return
		}
		resp := map[string]any{
			"success": true, "done": status.Done, "state": status.State,
		}
		if status.ErrorMsg != "" {
			resp["error"] = map[string]any{"code": 13, "message": status.ErrorMsg}
		}
		writeJSON(w, http.StatusOK, resp)

	case strings.HasPrefix(path, "/api/documents/") && strings.HasSuffix(path, "/chunks"):
		b.mu.Lock()
		b.QueryCalls++
		chunks := b.Chunks
		b.mu.Unlock()
		if chunks == nil {
			chunks = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "chunks": chunks})

	case strings.HasPrefix(path, "/api/documents/") && r.Method == http.MethodDelete:
		b.mu.Lock()
		b.DeleteCalls = append(b.DeleteCalls, strings.TrimPrefix(path, "/api/documents/"))
		b.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{"success": true})

	case path == "/api/chat/query":
		b.mu.Lock()
		b.QueryCalls++
		chunks := b.Chunks
		b.mu.Unlock()
		if chunks == nil {
			chunks = []map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true, "relevant_chunks": chunks, "query": "",
		})

	case path == "/api/chat/generate":
		b.mu.Lock()
		b.GenerateCalls++
		b.LastGenerateBody = decodeBody(r)
		text := b.GenerateResponse
		chunks := b.Chunks
		fail := b.FailGenerate
		b.mu.Unlock()
		if fail {
			writeJSON(w, http.StatusInternalServerError, map[string]any{
				"success": false, "error": "generation failed",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true, "response": text,
			"chunks_used": len(chunks), "chunks_filtered": chunks,
		})

	case path == "/api/chat/generate-stream":
		b.mu.Lock()
		b.StreamCalls++
		b.LastGenerateBody = decodeBody(r)
		body := b.StreamBody
		segments := b.StreamSegments
		delay := b.StreamDelay
		b.mu.Unlock()
		b.writeStream(w, body, segments, delay)

	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "not found"})
	}
}

// writeStream emits the scripted stream body in flushed segments so
// consumers see multiple network reads.
func (b *Backend) writeStream(w http.ResponseWriter, body string, segments int, delay time.Duration) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	if segments < 1 {
		segments = 1
	}

	size := len(body) / segments
	if size == 0 {
		size = len(body)
	}
	for start := 0; start < len(body); start += size {
		end := min(start+size, len(body))
		_, _ = w.Write([]byte(body[start:end]))
		if flusher != nil {
			flusher.Flush()
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}
}

func decodeBody(r *http.Request) map[string]any {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)
	return body
}

func writeJSON(w http.ResponseWriter, status int, payload map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
