package tui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/key"
	"charm.land/bubbles/v2/table"
	tea "charm.land/bubbletea/v2"

	"github.com/ragdeck/ragdeck/internal/api"
	"github.com/ragdeck/ragdeck/internal/tracker"
)

// View implements tea.Model.
func (m *Model) View() tea.View {
	m.viewBuf.Reset()

	_, _ = m.viewBuf.WriteString(m.renderTabBar())
	_, _ = m.viewBuf.WriteString("\n")
	_, _ = m.viewBuf.WriteString(m.renderSeparator())
	_, _ = m.viewBuf.WriteString("\n")

	switch m.tab {
	case TabDocuments:
		_, _ = m.viewBuf.WriteString(m.renderDocuments())
	case TabChunks:
		_, _ = m.viewBuf.WriteString(m.renderChunks())
	case TabChat:
		_, _ = m.viewBuf.WriteString(m.renderChat())
	}

	_, _ = m.viewBuf.WriteString("\n")
	_, _ = m.viewBuf.WriteString(m.renderSeparator())
	_, _ = m.viewBuf.WriteString("\n")
	_, _ = m.viewBuf.WriteString(m.renderStatusLine())
	_, _ = m.viewBuf.WriteString("\n")
	_, _ = m.viewBuf.WriteString(m.renderHelpBar())

	v := tea.NewView(m.viewBuf.String())
	v.AltScreen = true
	return v
}

func (m *Model) renderTabBar() string {
	names := []string{"Documents", "Chunks", "Chat"}
	parts := make([]string, 0, len(names)+1)
	for i, name := range names {
		if Tab(i) == m.tab {
			parts = append(parts, m.styles.TabActive.Render(" "+name+" "))
		} else {
			parts = append(parts, m.styles.Tab.Render(" "+name+" "))
		}
	}
	if m.storeName != "" {
		parts = append(parts, m.styles.System.Render("  store: "+m.storeName))
	}
	return strings.Join(parts, "")
}

func (m *Model) renderDocuments() string {
	var b strings.Builder

	switch {
	case m.filtering:
		_, _ = b.WriteString(m.styles.Prompt.Render("filter> "))
		_, _ = b.WriteString(m.filter.View())
		_, _ = b.WriteString("\n")
	case m.uploading:
		_, _ = b.WriteString(m.styles.Prompt.Render("upload> "))
		_, _ = b.WriteString(m.uploadPath.View())
		_, _ = b.WriteString("\n")
	}

	_, _ = b.WriteString(m.table.View())

	if entries := m.tracker.Entries(); len(entries) > 0 {
		_, _ = b.WriteString("\n")
		_, _ = b.WriteString(m.renderOperations(entries))
	}
	return b.String()
}

// renderOperations shows in-flight and recently finished ingestions.
func (m *Model) renderOperations(entries []tracker.Entry) string {
	var b strings.Builder
	for _, e := range entries {
		switch e.Status {
		case tracker.StatusDone:
			_, _ = b.WriteString(m.styles.Success.Render("  ✓ " + e.Label + " ingested"))
		case tracker.StatusError:
			_, _ = b.WriteString(m.styles.Error.Render("  ✗ " + e.Label + ": " + e.Err))
		default:
			_, _ = b.WriteString(m.spinner.View())
			_, _ = b.WriteString(m.styles.System.Render(" " + e.Label + " processing..."))
		}
		_, _ = b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func (m *Model) renderChunks() string {
	var b strings.Builder

	_, _ = b.WriteString(m.styles.Prompt.Render("search> "))
	_, _ = b.WriteString(m.chunkQuery.View())
	_, _ = b.WriteString("\n")
	_, _ = b.WriteString(m.chunkView.View())
	return b.String()
}

func (m *Model) renderChat() string {
	var b strings.Builder

	_, _ = b.WriteString(m.transcript.View())
	_, _ = b.WriteString("\n")
	_, _ = b.WriteString(m.styles.Prompt.Render("> "))
	_, _ = b.WriteString(m.input.View())
	return b.String()
}

func (m *Model) renderSeparator() string {
	width := m.width
	if width <= 0 {
		width = 80
	}
	return m.styles.Separator.Render(strings.Repeat("─", width))
}

func (m *Model) renderStatusLine() string {
	if m.status == "" {
		return ""
	}
	if strings.HasPrefix(m.status, "error:") {
		return m.styles.Error.Render(m.status)
	}
	return m.styles.System.Render(m.status)
}

func (m *Model) renderHelpBar() string {
	var bindings []key.Binding
	switch m.tab {
	case TabDocuments:
		bindings = []key.Binding{
			m.keys.NextTab, m.keys.Filter, m.keys.Upload, m.keys.Open,
			m.keys.Select, m.keys.Delete, m.keys.Refresh, m.keys.Quit,
		}
	case TabChunks:
		bindings = []key.Binding{
			m.keys.NextTab, m.keys.Search, m.keys.Scroll, m.keys.Quit,
		}
	case TabChat:
		if m.state == StateInput {
			bindings = []key.Binding{
				m.keys.NextTab, m.keys.Submit, m.keys.Scroll, m.keys.Quit,
			}
		} else {
			bindings = []key.Binding{
				m.keys.EscCancel, m.keys.Cancel, m.keys.Scroll,
			}
		}
	}
	return m.help.ShortHelpView(bindings)
}

// rebuildTable refreshes the document table rows from the store.
func (m *Model) rebuildTable() {
	docs := m.docs.Filtered()
	rows := make([]table.Row, 0, len(docs))
	for _, doc := range docs {
		mark := " "
		if m.docs.IsSelected(doc.Name) {
			mark = "●"
		}
		updated := ""
		if !doc.UpdateTime.IsZero() {
			updated = doc.UpdateTime.Format("2006-01-02 15:04")
		}
		rows = append(rows, table.Row{
			mark, doc.DisplayName, string(doc.State), humanSize(doc.SizeBytes), updated,
		})
	}
	m.table.SetRows(rows)
}

// rebuildChunkView refreshes the chunk results pane.
func (m *Model) rebuildChunkView() {
	var b strings.Builder

	switch {
	case m.chunksBusy:
		_, _ = b.WriteString(m.spinner.View())
		_, _ = b.WriteString(" searching...")
	case m.chunks.Document() == "":
		_, _ = b.WriteString(m.styles.System.Render("Select a document on the Documents pane and press enter to browse its chunks."))
	default:
		results := m.chunks.Results()
		header := fmt.Sprintf("%s — %d chunks", m.chunksDoc, len(results))
		_, _ = b.WriteString(m.styles.Header.Render(header))
		_, _ = b.WriteString("\n\n")
		for _, c := range results {
			_, _ = b.WriteString(m.styles.Score.Render(fmt.Sprintf("%3d%% ", c.Percent())))
			_, _ = b.WriteString(m.styles.ChunkName.Render(shortName(c.Name)))
			_, _ = b.WriteString("\n")
			_, _ = b.WriteString(c.Text)
			_, _ = b.WriteString("\n\n")
		}
		if len(results) == 0 {
			_, _ = b.WriteString(m.styles.System.Render("no chunks matched"))
		}
	}
	m.chunkView.SetContent(b.String())
}

// rebuildTranscript reconstructs the chat viewport from the store and
// the in-flight stream state.
func (m *Model) rebuildTranscript() {
	var b strings.Builder

	messages := m.chatStore.Messages()
	if len(messages) == 0 && m.state == StateInput {
		_, _ = b.WriteString(m.styles.System.Render("Ask a question about your documents. /help lists commands."))
		_, _ = b.WriteString("\n")
	}

	showSources := m.chatStore.Settings().ShowSources
	for _, msg := range messages {
		switch msg.Role {
		case "user":
			_, _ = b.WriteString(m.styles.User.Render("You> "))
			_, _ = b.WriteString(msg.Content)
		default:
			_, _ = b.WriteString(m.styles.Assistant.Render("Deck> "))
			_, _ = b.WriteString(m.markdown.Render(msg.Content))
			if showSources && len(msg.Sources) > 0 {
				_, _ = b.WriteString("\n")
				_, _ = b.WriteString(m.renderSources(msg.Sources))
			}
		}
		_, _ = b.WriteString("\n\n")
	}

	// Current streaming output
	if m.state == StateStreaming && m.output.Len() > 0 {
		_, _ = b.WriteString(m.styles.Assistant.Render("Deck> "))
		_, _ = b.WriteString(m.output.String())
		_, _ = b.WriteString("\n\n")
	}

	if m.state == StateThinking {
		_, _ = b.WriteString(m.spinner.View())
		_, _ = b.WriteString(" Retrieving...\n\n")
	}

	m.transcript.SetContent(b.String())
}

// renderSources lists the chunks an answer drew on.
func (m *Model) renderSources(sources []api.Chunk) string {
	var b strings.Builder
	for _, c := range sources {
		line := fmt.Sprintf("  └ %s (%d%%)", sourceLabel(c), c.Percent())
		_, _ = b.WriteString(m.styles.Source.Render(line))
		_, _ = b.WriteString("\n")
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func sourceLabel(c api.Chunk) string {
	if c.SourceDocument != "" {
		return c.SourceDocument
	}
	return shortName(c.Name)
}

// shortName trims the resource prefix from a chunk name.
func shortName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// humanSize renders a byte count the way the document table shows it.
func humanSize(n int64) string {
	switch {
	case n <= 0:
		return "-"
	case n < 1024:
		return fmt.Sprintf("%d B", n)
	case n < 1024*1024:
		return fmt.Sprintf("%.1f KB", float64(n)/1024)
	default:
		return fmt.Sprintf("%.1f MB", float64(n)/(1024*1024))
	}
}
