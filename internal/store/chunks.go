package store

import (
	"log/slog"
	"sync"

	"github.com/ragdeck/ragdeck/internal/api"
)

const chunksFile = "chunks.json"

// ChunkSearch is the persisted chunk-browsing settings. The results
// themselves are ephemeral query output and never cached.
type ChunkSearch struct {
	Query        string  `json:"query"`
	ResultsCount int     `json:"resultsCount"`
	MinScore     float64 `json:"minScore"`
}

// DefaultChunkSearch returns the reference defaults: wildcard browse,
// 25 results, no score floor (wildcard matches carry no useful score).
func DefaultChunkSearch() ChunkSearch {
	return ChunkSearch{Query: "", ResultsCount: 25, MinScore: 0}
}

// Chunks owns the chunk search results for one document at a time.
// Each search replaces the prior result set. Safe for concurrent use.
type Chunks struct {
	dir    *Dir
	logger *slog.Logger

	mu       sync.RWMutex
	document string
	results  []api.Chunk
	search   ChunkSearch
}

// NewChunks creates the store, restoring cached search settings.
func NewChunks(dir *Dir, logger *slog.Logger) *Chunks {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chunks{dir: dir, logger: logger, search: DefaultChunkSearch()}

	var search ChunkSearch
	if err := dir.load(chunksFile, &search); err != nil {
		logger.Warn("loading chunk search settings failed", "error", err)
	}
	if search.ResultsCount > 0 {
		c.search = search
	}
	return c
}

// SetResults replaces the result set with a new search's output.
func (c *Chunks) SetResults(document string, chunks []api.Chunk) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.document = document
	c.results = chunks
}

// Document returns the name of the document the current results
// belong to.
func (c *Chunks) Document() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.document
}

// Results returns a snapshot of the current results with the minimum
// score filter applied.
func (c *Chunks) Results() []api.Chunk {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]api.Chunk, 0, len(c.results))
	for _, ch := range c.results {
		if ch.Score >= c.search.MinScore {
			out = append(out, ch)
		}
	}
	return out
}

// Clear drops the result set, e.g. when its document is deleted.
func (c *Chunks) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.document = ""
	c.results = nil
}

// Search returns the current search settings.
func (c *Chunks) Search() ChunkSearch {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.search
}

// SetSearch replaces the search settings and persists them.
func (c *Chunks) SetSearch(s ChunkSearch) {
	if s.ResultsCount <= 0 {
		s.ResultsCount = DefaultChunkSearch().ResultsCount
	}
	if s.MinScore < 0 || s.MinScore > 1 {
		s.MinScore = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.search = s
	c.dir.save(chunksFile, c.search)
}
