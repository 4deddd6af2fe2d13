package tui

import (
	"context"
	"os"
	"path/filepath"

	tea "charm.land/bubbletea/v2"

	"github.com/ragdeck/ragdeck/internal/api"
)

// Messages produced by the async commands below.
type (
	configLoadedMsg struct {
		cfg api.Config
	}

	documentsLoadedMsg struct {
		page      api.DocumentPage
		firstPage bool
	}

	documentDeletedMsg struct {
		name string
	}

	chunksLoadedMsg struct {
		document string // display name
		chunks   []api.Chunk
	}

	uploadStartedMsg struct {
		operation string
		label     string
	}

	trackerChangedMsg struct{}

	trackerRefreshMsg struct{}

	errMsg struct {
		err error
	}
)

// fetchConfig probes the backend at startup.
func (m *Model) fetchConfig() tea.Cmd {
	return func() tea.Msg {
		cfg, err := m.client.Config(m.ctx)
		if err != nil {
			return errMsg{err}
		}
		return configLoadedMsg{cfg}
	}
}

// fetchDocuments loads one page of the document list. An empty token
// fetches the first page, replacing the current list.
func (m *Model) fetchDocuments(pageToken string) tea.Cmd {
	return func() tea.Msg {
		page, err := m.client.Documents(m.ctx, documentsPageSize, pageToken)
		if err != nil {
			return errMsg{err}
		}
		return documentsLoadedMsg{page: page, firstPage: pageToken == ""}
	}
}

// deleteDocument removes a document and its chunks (force delete).
func (m *Model) deleteDocument(name string) tea.Cmd {
	return func() tea.Msg {
		if err := m.client.DeleteDocument(m.ctx, name, true); err != nil {
			return errMsg{err}
		}
		return documentDeletedMsg{name}
	}
}

// fetchChunks searches one document's chunks. The client turns an
// empty query into the wildcard browse.
func (m *Model) fetchChunks(doc api.Document, query string, resultsCount int) tea.Cmd {
	return func() tea.Msg {
		chunks, err := m.client.DocumentChunks(m.ctx, doc.Name, query, resultsCount)
		if err != nil {
			return errMsg{err}
		}
		return chunksLoadedMsg{document: doc.DisplayName, chunks: chunks}
	}
}

// uploadFile reads a local file and starts its ingestion. The returned
// operation is handed to the tracker by the update loop.
func (m *Model) uploadFile(path string) tea.Cmd {
	return func() tea.Msg {
		f, err := os.Open(path)
		if err != nil {
			return errMsg{err}
		}
		defer f.Close()

		name := filepath.Base(path)
		result, err := m.client.Upload(m.ctx, f, api.UploadRequest{
			Filename:    name,
			DisplayName: name,
		})
		if err != nil {
			return errMsg{err}
		}
		return uploadStartedMsg{operation: result.OperationName, label: name}
	}
}

// startAsk runs a non-streaming turn when streaming is disabled in the
// chat settings. It reuses the stream terminal messages.
func (m *Model) startAsk(query string) tea.Cmd {
	return func() tea.Msg {
		msg, err := m.flow.Ask(m.ctx, query)
		if err != nil {
			return streamErrorMsg{err}
		}
		return streamDoneMsg{message: msg}
	}
}

// listenTracker waits for the next tracker state change.
func listenTracker(ctx context.Context, ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ch:
			return trackerChangedMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}

// listenRefresh waits for the tracker's document-refresh signal, sent
// after a successful ingestion leaves its grace period.
func listenRefresh(ctx context.Context, ch chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-ch:
			return trackerRefreshMsg{}
		case <-ctx.Done():
			return nil
		}
	}
}
