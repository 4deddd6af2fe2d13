package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"charm.land/bubbles/v2/spinner"
	tea "charm.land/bubbletea/v2"
)

// Update implements tea.Model.
//
//nolint:gocognit,gocyclo // Bubble Tea Update requires type switch on all message types
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case tea.MouseWheelMsg:
		var cmd tea.Cmd
		switch m.tab {
		case TabChunks:
			m.chunkView, cmd = m.chunkView.Update(msg)
		case TabChat:
			m.transcript, cmd = m.transcript.Update(msg)
		}
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		// The thinking indicator and freshly committed user messages
		// surface through periodic rebuilds.
		if m.state == StateThinking {
			m.rebuildTranscript()
		}
		return m, cmd

	case configLoadedMsg:
		m.storeName = msg.cfg.StoreName
		m.apiConfigured = msg.cfg.APIConfigured
		if !msg.cfg.APIConfigured {
			m.status = "backend reachable, but its API key is not configured"
		}
		return m, nil

	case documentsLoadedMsg:
		m.docs.SetPage(msg.page, msg.firstPage)
		m.rebuildTable()
		return m, nil

	case documentDeletedMsg:
		m.docs.Remove(msg.name)
		if m.chunks.Document() == msg.name {
			m.chunks.Clear()
			m.rebuildChunkView()
		}
		m.rebuildTable()
		m.status = "document deleted"
		return m, nil

	case chunksLoadedMsg:
		m.chunksBusy = false
		m.chunksDoc = msg.document
		m.chunks.SetResults(m.chunks.Document(), msg.chunks)
		m.rebuildChunkView()
		return m, nil

	case uploadStartedMsg:
		m.tracker.Track(msg.operation, msg.label)
		m.status = "uploading " + msg.label
		return m, nil

	case trackerChangedMsg:
		// Tracked-operation panel changed; just re-render and keep
		// listening.
		return m, listenTracker(m.ctx, m.trackerChanged)

	case trackerRefreshMsg:
		// A successful ingestion finished its grace period.
		return m, tea.Batch(
			m.fetchDocuments(""),
			listenRefresh(m.ctx, m.trackerRefresh),
		)

	case errMsg:
		m.status = "error: " + msg.err.Error()
		m.chunksBusy = false
		return m, nil

	case streamStartedMsg:
		m.streamCancel = msg.cancel
		m.streamEventCh = msg.eventCh
		return m, listenForStream(msg.eventCh)

	case streamChunksMsg:
		m.sources = msg.chunks
		m.state = StateStreaming
		m.rebuildTranscript()
		m.transcript.GotoBottom()
		return m, listenForStream(m.streamEventCh)

	case streamTextMsg:
		m.output.WriteString(msg.text)
		m.rebuildTranscript()
		m.transcript.GotoBottom()
		return m, listenForStream(m.streamEventCh)

	case streamDoneMsg:
		m.finishStream()
		m.rebuildTranscript()
		m.transcript.GotoBottom()
		return m, m.input.Focus()

	case streamErrorMsg:
		m.finishStream()
		if errors.Is(msg.err, context.Canceled) {
			m.status = "(canceled)"
		} else {
			m.status = "error: " + msg.err.Error()
		}
		m.rebuildTranscript()
		m.transcript.GotoBottom()
		return m, m.input.Focus()
	}

	return m.updateFocused(msg)
}

// finishStream resets stream bookkeeping after a terminal event.
func (m *Model) finishStream() {
	m.state = StateInput
	m.cancelStream()
	m.streamEventCh = nil
	m.output.Reset()
	m.sources = nil
}

// resize distributes the new window size across the panes.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	fixed := tabBarLines + separatorLines + statusLines + helpLines
	body := max(height-fixed, minViewport)

	m.table.SetHeight(max(body-2, minViewport))
	m.chunkView.SetWidth(width)
	m.chunkView.SetHeight(max(body-2, minViewport))

	inputHeight := m.input.Height() + 1
	m.transcript.SetWidth(width)
	m.transcript.SetHeight(max(body-inputHeight, minViewport))
	m.input.SetWidth(width - 4)

	m.help.SetWidth(width)
	m.markdown.UpdateWidth(width)

	m.rebuildTable()
	m.rebuildChunkView()
	m.rebuildTranscript()
}

// updateFocused routes non-key messages to the component that owns
// focus on the active tab.
func (m *Model) updateFocused(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.tab {
	case TabDocuments:
		switch {
		case m.filtering:
			m.filter, cmd = m.filter.Update(msg)
		case m.uploading:
			m.uploadPath, cmd = m.uploadPath.Update(msg)
		default:
			m.table, cmd = m.table.Update(msg)
		}
	case TabChunks:
		if m.querying {
			m.chunkQuery, cmd = m.chunkQuery.Update(msg)
		}
	case TabChat:
		m.input, cmd = m.input.Update(msg)
	}
	return m, cmd
}

//nolint:gocyclo // Keyboard handler requires branching for all key combinations
func (m *Model) handleKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	if k.Mod&tea.ModCtrl != 0 {
		switch k.Code {
		case 'c':
			return m.handleCtrlC()
		case 'd':
			return m, m.cleanup()
		}
	}

	// Tab cycles panes unless a text input owns the keyboard.
	if k.Code == tea.KeyTab && !m.typing() {
		m.tab = (m.tab + 1) % 3
		if m.tab == TabChat {
			return m, m.input.Focus()
		}
		m.input.Blur()
		return m, nil
	}

	switch m.tab {
	case TabDocuments:
		return m.handleDocumentsKey(msg)
	case TabChunks:
		return m.handleChunksKey(msg)
	default:
		return m.handleChatKey(msg)
	}
}

// typing reports whether a line input currently captures keystrokes.
func (m *Model) typing() bool {
	return m.filtering || m.uploading || m.querying
}

func (m *Model) handleCtrlC() (tea.Model, tea.Cmd) {
	now := time.Now()

	// Double Ctrl+C within 1 second = quit
	if now.Sub(m.lastCtrlC) < time.Second {
		return m, m.cleanup()
	}
	m.lastCtrlC = now

	if m.state == StateThinking || m.state == StateStreaming {
		m.cancelStream()
		m.finishStream()
		m.status = "(canceled)"
		m.rebuildTranscript()
		return m, nil
	}
	if m.tab == TabChat {
		m.input.Reset()
	}
	return m, nil
}

func (m *Model) handleDocumentsKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	// Delete confirmation intercepts everything.
	if m.pendingDelete != "" {
		switch k.Code {
		case 'y':
			name := m.pendingDelete
			m.pendingDelete = ""
			return m, m.deleteDocument(name)
		default:
			m.pendingDelete = ""
			m.status = ""
			return m, nil
		}
	}

	if m.filtering {
		switch k.Code {
		case tea.KeyEnter, tea.KeyEscape:
			m.filtering = false
			m.filter.Blur()
			if k.Code == tea.KeyEscape {
				m.filter.SetValue(m.docs.Filter())
			} else {
				m.docs.SetFilter(m.filter.Value())
				m.rebuildTable()
			}
			return m, nil
		}
		var cmd tea.Cmd
		m.filter, cmd = m.filter.Update(msg)
		// Live filtering as the user types.
		m.docs.SetFilter(m.filter.Value())
		m.rebuildTable()
		return m, cmd
	}

	if m.uploading {
		switch k.Code {
		case tea.KeyEnter:
			path := strings.TrimSpace(m.uploadPath.Value())
			m.uploading = false
			m.uploadPath.Blur()
			m.uploadPath.Reset()
			if path == "" {
				return m, nil
			}
			return m, m.uploadFile(path)
		case tea.KeyEscape:
			m.uploading = false
			m.uploadPath.Blur()
			m.uploadPath.Reset()
			return m, nil
		}
		var cmd tea.Cmd
		m.uploadPath, cmd = m.uploadPath.Update(msg)
		return m, cmd
	}

	switch k.Code {
	case '/':
		m.filtering = true
		return m, m.filter.Focus()
	case 'u':
		m.uploading = true
		return m, m.uploadPath.Focus()
	case 'r':
		m.status = "refreshing..."
		return m, m.fetchDocuments("")
	case 'n':
		if token := m.docs.NextPageToken(); token != "" {
			return m, m.fetchDocuments(token)
		}
		return m, nil
	case 'd':
		if doc, ok := m.selectedDocument(); ok {
			m.pendingDelete = doc.Name
			m.status = "delete " + doc.DisplayName + " and all its chunks? (y/n)"
		}
		return m, nil
	case tea.KeySpace:
		if doc, ok := m.selectedDocument(); ok {
			m.docs.ToggleSelect(doc.Name)
			m.rebuildTable()
		}
		return m, nil
	case tea.KeyEnter:
		if doc, ok := m.selectedDocument(); ok {
			m.tab = TabChunks
			m.chunksBusy = true
			m.chunks.SetResults(doc.Name, nil)
			search := m.chunks.Search()
			return m, m.fetchChunks(doc, search.Query, search.ResultsCount)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) handleChunksKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	if m.querying {
		switch k.Code {
		case tea.KeyEnter:
			m.querying = false
			m.chunkQuery.Blur()
			search := m.chunks.Search()
			search.Query = strings.TrimSpace(m.chunkQuery.Value())
			m.chunks.SetSearch(search)
			if name := m.chunks.Document(); name != "" {
				if doc, ok := m.docs.Get(name); ok {
					m.chunksBusy = true
					return m, m.fetchChunks(doc, search.Query, search.ResultsCount)
				}
			}
			return m, nil
		case tea.KeyEscape:
			m.querying = false
			m.chunkQuery.Blur()
			m.chunkQuery.SetValue(m.chunks.Search().Query)
			return m, nil
		}
		var cmd tea.Cmd
		m.chunkQuery, cmd = m.chunkQuery.Update(msg)
		return m, cmd
	}

	switch k.Code {
	case '/':
		m.querying = true
		return m, m.chunkQuery.Focus()
	case tea.KeyPgUp:
		m.chunkView.PageUp()
		return m, nil
	case tea.KeyPgDown:
		m.chunkView.PageDown()
		return m, nil
	}
	return m, nil
}

func (m *Model) handleChatKey(msg tea.KeyPressMsg) (tea.Model, tea.Cmd) {
	k := msg.Key()

	switch k.Code {
	case tea.KeyEnter:
		if m.state == StateInput && k.Mod&tea.ModShift == 0 {
			return m.handleChatSubmit()
		}
	case tea.KeyEscape:
		if m.state == StateStreaming || m.state == StateThinking {
			m.cancelStream()
			m.finishStream()
			m.status = "(canceled)"
			m.rebuildTranscript()
			return m, nil
		}
	case tea.KeyPgUp:
		m.transcript.PageUp()
		return m, nil
	case tea.KeyPgDown:
		m.transcript.PageDown()
		return m, nil
	}

	// Always allow typing, even while an answer streams.
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleChatSubmit() (tea.Model, tea.Cmd) {
	query := strings.TrimSpace(m.input.Value())
	if query == "" {
		return m, nil
	}

	if strings.HasPrefix(query, "/") {
		return m.handleSlashCommand(query)
	}

	m.input.Reset()
	m.status = ""
	m.state = StateThinking

	if !m.chatStore.Settings().Stream {
		return m, tea.Batch(m.spinner.Tick, m.startAsk(query))
	}
	return m, tea.Batch(m.spinner.Tick, m.startStream(query))
}

func (m *Model) handleSlashCommand(cmd string) (tea.Model, tea.Cmd) {
	fields := strings.Fields(cmd)
	switch fields[0] {
	case cmdHelp:
		m.status = "commands: /help /clear /settings /set <key> <value> /exit — tab switches panes, esc cancels"
	case cmdClear:
		m.chatStore.Clear()
		m.rebuildTranscript()
		m.status = "chat cleared, new session " + m.chatStore.SessionID()[:8]
	case cmdSettings:
		s := m.chatStore.Settings()
		m.status = fmt.Sprintf("model=%s results=%d minscore=%.2f stream=%t sources=%t",
			s.Model, s.ResultsCount, s.MinScore, s.Stream, s.ShowSources)
	case cmdSet:
		m.status = m.applySetting(fields[1:])
		m.rebuildTranscript()
	case cmdExit, cmdQuit:
		return m, m.cleanup()
	default:
		m.status = "unknown command: " + fields[0]
	}
	m.input.Reset()
	return m, nil
}

// applySetting handles "/set <key> <value>" and returns the status
// line to show. Keys mirror the chat settings: model, results,
// minscore, stream, sources.
func (m *Model) applySetting(args []string) string {
	if len(args) != 2 {
		return "usage: /set model|results|minscore|stream|sources <value>"
	}
	key, value := args[0], args[1]
	s := m.chatStore.Settings()

	switch key {
	case "model":
		s.Model = value
	case "results":
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 || n > 100 {
			return "results must be a number between 1 and 100"
		}
		s.ResultsCount = n
	case "minscore":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f < 0 || f > 1 {
			return "minscore must be a number between 0 and 1"
		}
		s.MinScore = f
	case "stream", "sources":
		on, err := parseToggle(value)
		if err != nil {
			return key + " must be on or off"
		}
		if key == "stream" {
			s.Stream = on
		} else {
			s.ShowSources = on
		}
	default:
		return "unknown setting: " + key
	}

	m.chatStore.SetSettings(s)
	return key + " set to " + value
}

func parseToggle(v string) (bool, error) {
	switch strings.ToLower(v) {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	}
	return false, errors.New("not a toggle")
}
