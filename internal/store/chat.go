package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ragdeck/ragdeck/internal/api"
)

// HistoryCap bounds the transcript and the history sent to the backend
// to the most recent 20 messages (10 full turns).
const HistoryCap = 20

// Message roles. The backend's wire format calls the assistant role
// "model"; that translation happens in History, not here.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry of the chat transcript.
type Message struct {
	ID        string      `json:"id"`
	Role      string      `json:"role"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"createdAt"`
	Sources   []api.Chunk `json:"sources,omitempty"`
}

// Settings drives retrieval and generation for every chat turn.
type Settings struct {
	Model        string  `json:"model"`
	ResultsCount int     `json:"resultsCount"`
	MinScore     float64 `json:"minScore"`
	Stream       bool    `json:"stream"`
	ShowSources  bool    `json:"showSources"`
}

// DefaultSettings returns the reference defaults.
func DefaultSettings() Settings {
	return Settings{
		Model:        "gemini-2.5-flash",
		ResultsCount: 10,
		MinScore:     0.3,
		Stream:       true,
		ShowSources:  true,
	}
}

const chatFile = "chat.json"

// chatState is the persisted shape of the chat store.
type chatState struct {
	SessionID string    `json:"sessionId"`
	Messages  []Message `json:"messages"`
	Settings  Settings  `json:"settings"`
}

// Chat owns the transcript, the session identity, and the chat
// settings. It is the single mutation point for all three. Safe for
// concurrent use: chat turns append from command goroutines while the
// update loop reads.
type Chat struct {
	dir    *Dir
	logger *slog.Logger

	mu        sync.RWMutex
	sessionID string
	messages  []Message
	settings  Settings
}

// NewChat loads the cached transcript and settings, or starts a fresh
// session when nothing is cached.
func NewChat(dir *Dir, logger *slog.Logger) *Chat {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Chat{dir: dir, logger: logger, settings: DefaultSettings()}

	var state chatState
	if err := dir.load(chatFile, &state); err != nil {
		logger.Warn("loading chat state failed", "error", err)
	}
	if state.SessionID != "" {
		c.sessionID = state.SessionID
		c.messages = state.Messages
		c.settings = normalizeSettings(state.Settings)
	} else {
		c.sessionID = uuid.NewString()
	}
	return c
}

// normalizeSettings backfills zero values from the defaults so an old
// or hand-edited cache cannot produce a broken turn.
func normalizeSettings(s Settings) Settings {
	def := DefaultSettings()
	if s.Model == "" {
		s.Model = def.Model
	}
	if s.ResultsCount <= 0 {
		s.ResultsCount = def.ResultsCount
	}
	if s.MinScore < 0 || s.MinScore > 1 {
		s.MinScore = def.MinScore
	}
	return s
}

// SessionID returns the current conversation's identifier.
func (c *Chat) SessionID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sessionID
}

// Append adds a message to the transcript, truncating to the most
// recent HistoryCap entries, and returns the stored message.
func (c *Chat) Append(role, content string, sources []api.Chunk) Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg := Message{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
		Sources:   sources,
	}
	c.messages = append(c.messages, msg)
	if len(c.messages) > HistoryCap {
		c.messages = c.messages[len(c.messages)-HistoryCap:]
	}
	c.save()
	return msg
}

// Messages returns a snapshot of the transcript.
func (c *Chat) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Len returns the transcript length.
func (c *Chat) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// History renders the transcript in wire form for a generation
// request. Never longer than HistoryCap; the assistant role maps to
// the backend's "model".
func (c *Chat) History() []api.HistoryMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]api.HistoryMessage, 0, len(c.messages))
	for _, m := range c.messages {
		role := m.Role
		if role == RoleAssistant {
			role = "model"
		}
		out = append(out, api.HistoryMessage{Role: role, Text: m.Content})
	}
	return out
}

// Settings returns the current chat settings.
func (c *Chat) Settings() Settings {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.settings
}

// SetSettings replaces the chat settings and persists them.
func (c *Chat) SetSettings(s Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.settings = normalizeSettings(s)
	c.save()
}

// Clear wipes the transcript and starts a new session. Settings
// survive a clear.
func (c *Chat) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
	c.sessionID = uuid.NewString()
	c.save()
	c.logger.Debug("chat cleared", "session", c.sessionID)
}

// save persists the current state. Callers hold mu.
func (c *Chat) save() {
	c.dir.save(chatFile, chatState{
		SessionID: c.sessionID,
		Messages:  c.messages,
		Settings:  c.settings,
	})
}
