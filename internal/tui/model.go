// Package tui provides the Bubble Tea terminal dashboard for ragdeck.
package tui

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"charm.land/bubbles/v2/help"
	"charm.land/bubbles/v2/spinner"
	"charm.land/bubbles/v2/table"
	"charm.land/bubbles/v2/textarea"
	"charm.land/bubbles/v2/textinput"
	"charm.land/bubbles/v2/viewport"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/ragdeck/ragdeck/internal/api"
	"github.com/ragdeck/ragdeck/internal/chat"
	"github.com/ragdeck/ragdeck/internal/store"
	"github.com/ragdeck/ragdeck/internal/tracker"
)

// Tab identifies a dashboard pane.
type Tab int

// Dashboard tabs.
const (
	TabDocuments Tab = iota
	TabChunks
	TabChat
)

// ChatState represents the chat pane state machine.
type ChatState int

// Chat pane states.
const (
	StateInput     ChatState = iota // Awaiting user input
	StateThinking                   // Retrieval in progress
	StateStreaming                  // Streaming response
)

// documentsPageSize is the page size requested per document fetch.
const documentsPageSize = 50

// Layout constants for viewport height calculation.
const (
	tabBarLines    = 1
	separatorLines = 2
	helpLines      = 1
	statusLines    = 1
	minViewport    = 3
)

// Model is the Bubble Tea model for the ragdeck dashboard.
type Model struct {
	// Dependencies (direct, no interface)
	client    *api.Client
	flow      *chat.Flow
	docs      *store.Documents
	chunks    *store.Chunks
	chatStore *store.Chat
	tracker   *tracker.Tracker
	logger    *slog.Logger
	ctx       context.Context
	ctxCancel context.CancelFunc

	tab Tab

	// Documents pane
	table         table.Model
	filter        textinput.Model
	filtering     bool
	uploadPath    textinput.Model
	uploading     bool
	pendingDelete string // document name awaiting y/n confirmation
	storeName     string
	apiConfigured bool

	// Chunks pane
	chunkQuery  textinput.Model
	chunkView   viewport.Model
	querying    bool
	chunksDoc   string // display name of the browsed document
	chunksBusy  bool

	// Chat pane
	input      textarea.Model
	transcript viewport.Model
	output     strings.Builder
	sources    []api.Chunk
	state      ChatState
	spinner    spinner.Model
	lastCtrlC  time.Time

	// Stream management. Single union channel with discriminated
	// events; Bubble Tea's event loop provides synchronization.
	streamCancel  context.CancelFunc
	streamEventCh <-chan streamEvent

	// Tracker bridge channels, listened on via commands.
	trackerChanged chan struct{}
	trackerRefresh chan struct{}

	// UI chrome
	help    help.Model
	keys    keyMap
	styles  Styles
	status  string // transient status line
	width   int
	height  int
	viewBuf strings.Builder

	// Markdown rendering (nil = graceful degradation to plain text)
	markdown *markdownRenderer
}

// Deps carries the dashboard's dependencies.
type Deps struct {
	Client    *api.Client
	Flow      *chat.Flow
	Documents *store.Documents
	Chunks    *store.Chunks
	Chat      *store.Chat
	Logger    *slog.Logger
}

// New creates the dashboard model and starts the operation tracker.
//
// ctx MUST be the same context passed to tea.WithContext() so exit
// and in-flight cancellation stay consistent.
func New(ctx context.Context, deps Deps) (*Model, error) {
	if deps.Client == nil || deps.Flow == nil {
		return nil, errors.New("tui.New: client and flow are required")
	}
	if deps.Documents == nil || deps.Chunks == nil || deps.Chat == nil {
		return nil, errors.New("tui.New: stores are required")
	}
	if ctx == nil {
		return nil, errors.New("tui.New: ctx is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(ctx)

	m := &Model{
		client:         deps.Client,
		flow:           deps.Flow,
		docs:           deps.Documents,
		chunks:         deps.Chunks,
		chatStore:      deps.Chat,
		logger:         logger,
		ctx:            ctx,
		ctxCancel:      cancel,
		trackerChanged: make(chan struct{}, 1),
		trackerRefresh: make(chan struct{}, 1),
		keys:           newKeyMap(),
		styles:         DefaultStyles(),
		markdown:       newMarkdownRenderer(80),
		width:          80,
	}

	m.tracker = tracker.New(deps.Client, logger.With("component", "tracker"),
		tracker.WithOnChange(func() { notify(m.trackerChanged) }),
		tracker.WithOnRefresh(func() { notify(m.trackerRefresh) }),
	)
	go m.tracker.Run(ctx)

	m.table = newDocumentTable()

	m.filter = textinput.New()
	m.filter.Placeholder = "filter documents..."
	m.filter.SetValue(deps.Documents.Filter())

	m.uploadPath = textinput.New()
	m.uploadPath.Placeholder = "path to file..."

	m.chunkQuery = textinput.New()
	m.chunkQuery.Placeholder = "search chunks (empty = browse all)..."
	m.chunkQuery.SetValue(deps.Chunks.Search().Query)

	m.chunkView = viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	m.chunkView.SoftWrap = true
	m.chunkView.KeyMap = viewport.KeyMap{}

	ta := textarea.New()
	ta.Placeholder = "Ask your documents..."
	ta.SetHeight(1)
	ta.SetWidth(120)
	ta.ShowLineNumbers = false
	cleanStyle := textarea.StyleState{
		Base:        lipgloss.NewStyle(),
		Text:        lipgloss.NewStyle(),
		Placeholder: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		Prompt:      lipgloss.NewStyle(),
	}
	ta.SetStyles(textarea.Styles{Focused: cleanStyle, Blurred: cleanStyle})
	m.input = ta

	m.transcript = viewport.New(viewport.WithWidth(80), viewport.WithHeight(20))
	m.transcript.MouseWheelEnabled = true
	m.transcript.SoftWrap = true
	m.transcript.KeyMap = viewport.KeyMap{}

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	m.spinner = sp

	m.help = help.New()

	m.rebuildTranscript()
	return m, nil
}

// notify pushes a best-effort signal onto a capacity-1 channel.
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

func newDocumentTable() table.Model {
	columns := []table.Column{
		{Title: " ", Width: 2},
		{Title: "Document", Width: 36},
		{Title: "State", Width: 8},
		{Title: "Size", Width: 10},
		{Title: "Updated", Width: 16},
	}
	tbl := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(18),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).BorderBottom(true)
	s.Selected = s.Selected.Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).Bold(false)
	tbl.SetStyles(s)
	return tbl
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		m.fetchConfig(),
		m.fetchDocuments(""),
		listenTracker(m.ctx, m.trackerChanged),
		listenRefresh(m.ctx, m.trackerRefresh),
	)
}

// selectedDocument returns the document under the table cursor.
func (m *Model) selectedDocument() (api.Document, bool) {
	row := m.table.Cursor()
	filtered := m.docs.Filtered()
	if row < 0 || row >= len(filtered) {
		return api.Document{}, false
	}
	return filtered[row], true
}

// cleanup cancels any active stream, stops the tracker, and quits.
func (m *Model) cleanup() tea.Cmd {
	if m.ctxCancel != nil {
		m.ctxCancel()
		m.ctxCancel = nil
	}
	m.cancelStream()
	m.streamEventCh = nil
	return tea.Quit
}

func (m *Model) cancelStream() {
	if m.streamCancel != nil {
		m.streamCancel()
		m.streamCancel = nil
	}
}
