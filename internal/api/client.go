// Package api is the HTTP client for the remote Document/Chat backend.
//
// It exposes typed operations for document storage, chunk retrieval and
// chat generation, normalizes the backend's wire shapes at the boundary,
// and provides an incremental consumer for the streaming generation
// endpoint (see stream.go).
//
// Error handling follows three tiers:
//   - transport failures wrap [ErrUnreachable]
//   - non-2xx responses with a server error field become [*APIError]
//   - client-side validation failures use package sentinel errors
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// requestTimeout bounds ordinary request/response calls. The streaming
// endpoint is exempt and relies on completion/error/cancellation events.
const requestTimeout = 60 * time.Second

// Client talks to the Document/Chat backend. It is safe for concurrent
// use; all blocking calls take a context.
type Client struct {
	baseURL string
	http    *http.Client
	stream  *http.Client // No timeout: streams are bounded by ctx only
	logger  *slog.Logger
}

// New creates a Client for the backend at baseURL (e.g.
// "http://localhost:5000"). A nil logger falls back to slog.Default().
func New(baseURL string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: requestTimeout},
		stream:  &http.Client{},
		logger:  logger,
	}
}

// Config probes the backend configuration.
func (c *Client) Config(ctx context.Context) (Config, error) {
	var resp configResponse
	if err := c.getJSON(ctx, "/api/config", nil, &resp); err != nil {
		return Config{}, fmt.Errorf("get config: %w", err)
	}
	return Config{StoreName: resp.StoreName, APIConfigured: resp.APIConfigured}, nil
}

// Documents lists one page of stored documents. pageSize <= 0 uses the
// backend default; an empty pageToken starts from the beginning.
func (c *Client) Documents(ctx context.Context, pageSize int, pageToken string) (DocumentPage, error) {
	q := url.Values{}
	if pageSize > 0 {
		q.Set("pageSize", strconv.Itoa(pageSize))
	}
	if pageToken != "" {
		q.Set("pageToken", pageToken)
	}

	var resp documentsResponse
	if err := c.getJSON(ctx, "/api/documents", q, &resp); err != nil {
		return DocumentPage{}, fmt.Errorf("list documents: %w", err)
	}

	page := DocumentPage{NextPageToken: resp.NextPageToken}
	for _, w := range resp.Documents {
		page.Documents = append(page.Documents, fromDocumentWire(w))
	}
	return page, nil
}

// Upload submits a document as multipart form data and returns the
// long-running operation handle to track its ingestion.
//
// Validation happens client-side before any bytes are sent: a file is
// required, chunk size must be in 1..512 when set, and metadata keys
// and values must pair up. Pairs where either side is empty are
// filtered out, matching the form behavior of the reference frontends.
func (c *Client) Upload(ctx context.Context, file io.Reader, req UploadRequest) (UploadResult, error) {
	if file == nil || req.Filename == "" {
		return UploadResult{}, ErrNoFile
	}
	if req.ChunkSize != 0 && (req.ChunkSize < 1 || req.ChunkSize > 512) {
		return UploadResult{}, fmt.Errorf("%w (got %d)", ErrInvalidChunkSize, req.ChunkSize)
	}
	if len(req.MetadataKeys) != len(req.MetadataValues) {
		return UploadResult{}, ErrMetadataMismatch
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	fw, err := mw.CreateFormFile("file", req.Filename)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload: build form: %w", err)
	}
	if _, err := io.Copy(fw, file); err != nil {
		return UploadResult{}, fmt.Errorf("upload: read file: %w", err)
	}

	writeField := func(name, value string) {
		if value != "" {
			_ = mw.WriteField(name, value)
		}
	}
	writeField("displayName", req.DisplayName)
	writeField("mimeType", req.MimeType)
	if req.ChunkSize != 0 {
		writeField("chunkSize", strconv.Itoa(req.ChunkSize))
	}
	writeField("documentLocation", req.Location)
	for i, key := range req.MetadataKeys {
		key = strings.TrimSpace(key)
		value := strings.TrimSpace(req.MetadataValues[i])
		if key == "" || value == "" {
			continue
		}
		_ = mw.WriteField("metadataKeys[]", key)
		_ = mw.WriteField("metadataValues[]", value)
	}
	if err := mw.Close(); err != nil {
		return UploadResult{}, fmt.Errorf("upload: finalize form: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/documents/upload", &body)
	if err != nil {
		return UploadResult{}, fmt.Errorf("upload: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var resp uploadResponse
	if err := c.do(httpReq, &resp); err != nil {
		return UploadResult{}, fmt.Errorf("upload: %w", err)
	}

	c.logger.Debug("upload accepted",
		"operation", resp.OperationName, "display_name", resp.DisplayName)
	return UploadResult{OperationName: resp.OperationName, DisplayName: resp.DisplayName}, nil
}

// Operation fetches the current status of a long-running operation.
func (c *Client) Operation(ctx context.Context, name string) (Operation, error) {
	var resp operationResponse
	if err := c.getJSON(ctx, "/api/operations/"+name, nil, &resp); err != nil {
		return Operation{}, fmt.Errorf("get operation %s: %w", name, err)
	}
	return Operation{Name: name, Done: resp.Done, State: resp.State, Error: resp.Error}, nil
}

// DeleteDocument removes a document. force also deletes all chunks
// belonging to it; the dashboard always forces since a document without
// its chunks is not useful.
func (c *Client) DeleteDocument(ctx context.Context, name string, force bool) error {
	u := c.baseURL + "/api/documents/" + name
	if force {
		u += "?force=true"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, u, nil)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	var resp apiEnvelope
	if err := c.do(req, &resp); err != nil {
		return fmt.Errorf("delete document %s: %w", name, err)
	}
	return nil
}

// DocumentChunks queries the chunks of a single document. An empty
// query is sent as the wildcard "*", returning every chunk.
func (c *Client) DocumentChunks(ctx context.Context, documentName, query string, resultsCount int) ([]Chunk, error) {
	if query == "" {
		query = "*"
	}
	payload := map[string]any{"query": query, "resultsCount": resultsCount}

	var resp chunksResponse
	if err := c.postJSON(ctx, "/api/documents/"+documentName+"/chunks", payload, &resp); err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	return fromChunkWires(resp.Chunks), nil
}

// ChatQuery retrieves the chunks most relevant to a query across the
// whole corpus.
func (c *Client) ChatQuery(ctx context.Context, query string, resultsCount int) ([]Chunk, error) {
	if strings.TrimSpace(query) == "" {
		return nil, ErrEmptyQuery
	}
	payload := map[string]any{"query": query}
	if resultsCount > 0 {
		payload["results_count"] = resultsCount
	}

	var resp chatQueryResponse
	if err := c.postJSON(ctx, "/api/chat/query", payload, &resp); err != nil {
		return nil, fmt.Errorf("chat query: %w", err)
	}
	return fromChunkWires(resp.RelevantChunks), nil
}

// Generate requests a complete answer in one blocking call.
func (c *Client) Generate(ctx context.Context, req GenerateRequest) (GenerateResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return GenerateResult{}, ErrEmptyQuery
	}

	var resp generateResponse
	if err := c.postJSON(ctx, "/api/chat/generate", generatePayload(req), &resp); err != nil {
		return GenerateResult{}, fmt.Errorf("generate: %w", err)
	}
	return GenerateResult{
		Response:      resp.Response,
		ChunksUsed:    resp.ChunksUsed,
		ChunksUsedSet: fromChunkWires(resp.ChunksFiltered),
	}, nil
}

func generatePayload(req GenerateRequest) map[string]any {
	payload := map[string]any{
		"query":           req.Query,
		"relevant_chunks": toChunkWires(req.Chunks),
	}
	if req.Model != "" {
		payload["model"] = req.Model
	}
	if len(req.History) > 0 {
		payload["chat_history"] = req.History
	}
	return payload
}

// --- request plumbing -------------------------------------------------

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out envelope) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out envelope) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

// envelope is implemented by all response types carrying the common
// success/error fields.
type envelope interface {
	envelope() apiEnvelope
}

func (e apiEnvelope) envelope() apiEnvelope { return e }

func (c *Client) do(req *http.Request, out envelope) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read body: %w", ErrUnreachable, err)
	}

	// Decode even on non-2xx: the backend reports failures as JSON
	// with an error field.
	if err := json.Unmarshal(data, out); err != nil {
		if resp.StatusCode >= 300 {
			return &APIError{StatusCode: resp.StatusCode}
		}
		return fmt.Errorf("decode response: %w", err)
	}

	env := out.envelope()
	if resp.StatusCode >= 300 || !env.Success {
		status := resp.StatusCode
		if status < 300 {
			status = http.StatusInternalServerError
		}
		return &APIError{StatusCode: status, Message: env.Error}
	}
	return nil
}
