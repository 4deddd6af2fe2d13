package store

import (
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/ragdeck/ragdeck/internal/api"
)

const documentsFile = "documents.json"

// documentPrefs is the persisted slice of the documents store: the
// filter text and the selection survive restarts, the list itself is
// always refetched.
type documentPrefs struct {
	Filter   string   `json:"filter"`
	Selected []string `json:"selected"`
}

// Documents owns the fetched document list, the local filter, and the
// selection set. Safe for concurrent use: fetch commands write pages
// while chat turns read the active-document gate.
type Documents struct {
	dir    *Dir
	logger *slog.Logger

	mu            sync.RWMutex
	docs          []api.Document
	nextPageToken string
	filter        string
	selected      map[string]bool
}

// NewDocuments creates the store, restoring the cached filter and
// selection.
func NewDocuments(dir *Dir, logger *slog.Logger) *Documents {
	if logger == nil {
		logger = slog.Default()
	}
	d := &Documents{dir: dir, logger: logger, selected: make(map[string]bool)}

	var prefs documentPrefs
	if err := dir.load(documentsFile, &prefs); err != nil {
		logger.Warn("loading document prefs failed", "error", err)
	}
	d.filter = prefs.Filter
	for _, name := range prefs.Selected {
		d.selected[name] = true
	}
	return d
}

// SetPage stores a fetched page. The first page replaces the list,
// follow-up pages append.
func (d *Documents) SetPage(page api.DocumentPage, firstPage bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if firstPage {
		d.docs = page.Documents
	} else {
		d.docs = append(d.docs, page.Documents...)
	}
	d.nextPageToken = page.NextPageToken
	d.pruneSelection()
}

// pruneSelection drops selected names that no longer exist. Callers
// hold mu.
func (d *Documents) pruneSelection() {
	if len(d.selected) == 0 {
		return
	}
	known := make(map[string]bool, len(d.docs))
	for _, doc := range d.docs {
		known[doc.Name] = true
	}
	changed := false
	for name := range d.selected {
		if !known[name] {
			delete(d.selected, name)
			changed = true
		}
	}
	if changed {
		d.save()
	}
}

// All returns a snapshot of the full list.
func (d *Documents) All() []api.Document {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]api.Document, len(d.docs))
	copy(out, d.docs)
	return out
}

// NextPageToken returns the token for fetching the next page, empty
// when the list is complete.
func (d *Documents) NextPageToken() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.nextPageToken
}

// Len returns the number of fetched documents.
func (d *Documents) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.docs)
}

// Remove drops a document locally after a successful delete.
func (d *Documents) Remove(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, doc := range d.docs {
		if doc.Name == name {
			d.docs = append(d.docs[:i], d.docs[i+1:]...)
			break
		}
	}
	if d.selected[name] {
		delete(d.selected, name)
		d.save()
	}
}

// Get looks a document up by name.
func (d *Documents) Get(name string) (api.Document, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, doc := range d.docs {
		if doc.Name == name {
			return doc, true
		}
	}
	return api.Document{}, false
}

// HasActive reports whether at least one document finished ingestion.
// Chat turns are refused locally while this is false.
func (d *Documents) HasActive() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, doc := range d.docs {
		if doc.State == api.StateActive {
			return true
		}
	}
	return false
}

// SetFilter updates the local filter text and persists it.
func (d *Documents) SetFilter(q string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.filter = q
	d.save()
}

// Filter returns the current filter text.
func (d *Documents) Filter() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.filter
}

// Filtered returns the documents matching the filter, case-insensitive
// over name, display name, and MIME type. An empty filter matches all.
func (d *Documents) Filtered() []api.Document {
	d.mu.RLock()
	defer d.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(d.filter))
	if q == "" {
		out := make([]api.Document, len(d.docs))
		copy(out, d.docs)
		return out
	}
	var out []api.Document
	for _, doc := range d.docs {
		if strings.Contains(strings.ToLower(doc.Name), q) ||
			strings.Contains(strings.ToLower(doc.DisplayName), q) ||
			strings.Contains(strings.ToLower(doc.MimeType), q) {
			out = append(out, doc)
		}
	}
	return out
}

// ToggleSelect flips a document's membership in the selection set.
func (d *Documents) ToggleSelect(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.selected[name] {
		delete(d.selected, name)
	} else {
		d.selected[name] = true
	}
	d.save()
}

// IsSelected reports selection membership.
func (d *Documents) IsSelected(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selected[name]
}

// Selected returns the selection as a sorted name list.
func (d *Documents) Selected() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.selectedNames()
}

// selectedNames builds the sorted selection list. Callers hold mu.
func (d *Documents) selectedNames() []string {
	out := make([]string, 0, len(d.selected))
	for name := range d.selected {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// save persists the filter and selection. Callers hold mu.
func (d *Documents) save() {
	d.dir.save(documentsFile, documentPrefs{
		Filter:   d.filter,
		Selected: d.selectedNames(),
	})
}
