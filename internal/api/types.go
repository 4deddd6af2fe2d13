package api

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// DocumentState is the lifecycle state of a document in the backend store.
type DocumentState string

// Document lifecycle states. The wire format uses STATE_* values; the
// adapter in this package maps them to these normalized constants.
const (
	StatePending DocumentState = "PENDING"
	StateActive  DocumentState = "ACTIVE"
	StateFailed  DocumentState = "FAILED"
)

// Document is a stored document as reported by the backend.
// It is created by an upload and mutated only by the backend; state
// transitions are observed via operation polling and list refreshes.
type Document struct {
	Name        string            // Opaque path-like identifier
	DisplayName string
	MimeType    string
	SizeBytes   int64
	State       DocumentState
	CreateTime  time.Time
	UpdateTime  time.Time
	Metadata    map[string]string
	Location    string // Optional external location URL
}

// Chunk is a retrieved text fragment with its relevance to a query.
// This is the single normalized representation: the wire format's two
// layouts (nested chunk.data.stringValue vs flat stringValue) are
// folded into it by the adapter and never leak past this package.
type Chunk struct {
	Name           string
	Text           string
	Score          float64 // Relevance in [0, 1]
	State          DocumentState
	SourceDocument string // Display name of the owning document
	CreateTime     time.Time
	UpdateTime     time.Time
}

// Percent returns the relevance score as a rounded integer percentage
// (0.853 -> 85).
func (c Chunk) Percent() int {
	return int(math.Round(c.Score * 100))
}

// Operation is a handle to a long-running backend job, such as
// document ingestion after an upload.
type Operation struct {
	Name  string
	Done  bool
	State string
	Error *OperationError
}

// OperationError is the terminal error of a failed operation.
type OperationError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HistoryMessage is one prior-turn message sent back to the backend on
// a generation call. The wire protocol uses role "model" for the
// assistant.
type HistoryMessage struct {
	Role string `json:"role"` // "user" or "model"
	Text string `json:"text"`
}

// Config describes the backend configuration probe.
type Config struct {
	StoreName     string
	APIConfigured bool
}

// DocumentPage is one page of the backend document list.
type DocumentPage struct {
	Documents     []Document
	NextPageToken string
}

// UploadRequest describes a document upload. File content is passed
// separately as a reader; empty metadata pairs are filtered before the
// request is built.
type UploadRequest struct {
	Filename       string
	DisplayName    string
	MimeType       string
	ChunkSize      int // 0 = backend default; otherwise 1..512
	Location       string
	MetadataKeys   []string
	MetadataValues []string
}

// UploadResult is the acknowledgement of an accepted upload.
type UploadResult struct {
	OperationName string
	DisplayName   string
}

// GenerateRequest is the payload for both generation endpoints.
type GenerateRequest struct {
	Query   string
	Chunks  []Chunk
	Model   string // "" = backend default
	History []HistoryMessage
}

// GenerateResult is the outcome of a non-streaming generation call.
type GenerateResult struct {
	Response      string
	ChunksUsed    int
	ChunksUsedSet []Chunk
}

// --- wire types -------------------------------------------------------

type apiEnvelope struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

type configResponse struct {
	apiEnvelope
	StoreName     string `json:"store_name"`
	APIConfigured bool   `json:"api_configured"`
}

type documentWire struct {
	Name        string            `json:"name"`
	DisplayName string            `json:"displayName"`
	MimeType    string            `json:"mimeType"`
	SizeBytes   json.Number       `json:"sizeBytes"`
	State       string            `json:"state"`
	CreateTime  string            `json:"createTime"`
	UpdateTime  string            `json:"updateTime"`
	Metadata    map[string]string `json:"metadata"`
	Location    string            `json:"documentLocation"`
}

type documentsResponse struct {
	apiEnvelope
	Documents     []documentWire `json:"documents"`
	NextPageToken string         `json:"nextPageToken"`
}

type uploadResponse struct {
	apiEnvelope
	OperationName string `json:"operationName"`
	DisplayName   string `json:"displayName"`
}

type operationResponse struct {
	apiEnvelope
	Done  bool            `json:"done"`
	State string          `json:"state"`
	Error *OperationError `json:"error"`
}

// chunkWire covers both layouts the backend emits. The chat retrieval
// endpoint nests the fragment under "chunk"; the per-document chunk
// endpoint flattens it.
type chunkWire struct {
	Chunk *struct {
		Name string `json:"name"`
		Data struct {
			StringValue string `json:"stringValue"`
		} `json:"data"`
		State      string `json:"state"`
		CreateTime string `json:"createTime"`
		UpdateTime string `json:"updateTime"`
	} `json:"chunk,omitempty"`
	Name        string `json:"name,omitempty"`
	StringValue string `json:"stringValue,omitempty"`
	State       string `json:"state,omitempty"`
	CreateTime  string `json:"createTime,omitempty"`
	UpdateTime  string `json:"updateTime,omitempty"`

	RelevanceScore float64 `json:"chunkRelevanceScore"`
	SourceDocument string  `json:"source_document,omitempty"`
}

type chunksResponse struct {
	apiEnvelope
	Chunks []chunkWire `json:"chunks"`
}

type chatQueryResponse struct {
	apiEnvelope
	RelevantChunks []chunkWire `json:"relevant_chunks"`
	Query          string      `json:"query"`
}

type generateResponse struct {
	apiEnvelope
	Response       string      `json:"response"`
	ChunksUsed     int         `json:"chunks_used"`
	ChunksFiltered []chunkWire `json:"chunks_filtered"`
}

// --- adapters ---------------------------------------------------------

// wireStates maps backend STATE_* values to normalized states.
var wireStates = map[string]DocumentState{
	"STATE_PENDING": StatePending,
	"PENDING":       StatePending,
	"STATE_ACTIVE":  StateActive,
	"ACTIVE":        StateActive,
	"STATE_FAILED":  StateFailed,
	"FAILED":        StateFailed,
}

func parseState(s string) DocumentState {
	if st, ok := wireStates[s]; ok {
		return st
	}
	// Unknown states are treated as pending: the document exists but
	// is not yet searchable.
	return StatePending
}

func parseWireTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func fromDocumentWire(w documentWire) Document {
	size, _ := strconv.ParseInt(w.SizeBytes.String(), 10, 64)
	return Document{
		Name:        w.Name,
		DisplayName: w.DisplayName,
		MimeType:    w.MimeType,
		SizeBytes:   size,
		State:       parseState(w.State),
		CreateTime:  parseWireTime(w.CreateTime),
		UpdateTime:  parseWireTime(w.UpdateTime),
		Metadata:    w.Metadata,
		Location:    w.Location,
	}
}

func fromChunkWire(w chunkWire) Chunk {
	c := Chunk{
		Score:          clampScore(w.RelevanceScore),
		SourceDocument: w.SourceDocument,
	}
	if w.Chunk != nil {
		c.Name = w.Chunk.Name
		c.Text = w.Chunk.Data.StringValue
		c.State = parseState(w.Chunk.State)
		c.CreateTime = parseWireTime(w.Chunk.CreateTime)
		c.UpdateTime = parseWireTime(w.Chunk.UpdateTime)
		return c
	}
	c.Name = w.Name
	c.Text = w.StringValue
	c.State = parseState(w.State)
	c.CreateTime = parseWireTime(w.CreateTime)
	c.UpdateTime = parseWireTime(w.UpdateTime)
	return c
}

func fromChunkWires(ws []chunkWire) []Chunk {
	if len(ws) == 0 {
		return nil
	}
	out := make([]Chunk, len(ws))
	for i, w := range ws {
		out[i] = fromChunkWire(w)
	}
	return out
}

// toChunkWire reconstructs the nested layout the generation endpoints
// expect when chunks are echoed back as context.
func toChunkWire(c Chunk) chunkWire {
	var w chunkWire
	w.Chunk = &struct {
		Name string `json:"name"`
		Data struct {
			StringValue string `json:"stringValue"`
		} `json:"data"`
		State      string `json:"state"`
		CreateTime string `json:"createTime"`
		UpdateTime string `json:"updateTime"`
	}{}
	w.Chunk.Name = c.Name
	w.Chunk.Data.StringValue = c.Text
	w.RelevanceScore = c.Score
	w.SourceDocument = c.SourceDocument
	return w
}

func toChunkWires(cs []Chunk) []chunkWire {
	out := make([]chunkWire, len(cs))
	for i, c := range cs {
		out[i] = toChunkWire(c)
	}
	return out
}

// clampScore forces a relevance score into [0, 1]; the invariant holds
// even against a misbehaving backend.
func clampScore(s float64) float64 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	default:
		return s
	}
}
