package cmd

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ragdeck/ragdeck/internal/api"
	"github.com/ragdeck/ragdeck/internal/config"
	"github.com/ragdeck/ragdeck/internal/log"
	"github.com/ragdeck/ragdeck/internal/store"
)

// runtime bundles the pieces every command needs: configuration, a
// logger, and the API client. The state dir is opened on demand since
// one-shot commands can run without it.
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
	client *api.Client
}

func newRuntime() (*runtime, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := log.New(log.Config{Level: level, JSON: cfg.LogJSON})

	client := api.New(cfg.BaseURL, logger.With("component", "api"))
	return &runtime{cfg: cfg, logger: logger, client: client}, nil
}

// openState acquires the state directory. Callers must Close the
// returned Dir.
func (r *runtime) openState() (*store.Dir, error) {
	dir, err := store.Open(r.cfg.StateDir, r.logger.With("component", "store"))
	if err != nil {
		if errors.Is(err, store.ErrLocked) {
			return nil, fmt.Errorf("%w (is another ragdeck running?)", err)
		}
		return nil, err
	}
	return dir, nil
}

// applyConfigDefaults seeds the chat store settings from configuration
// the first time no cached settings exist.
func (r *runtime) applyConfigDefaults(chat *store.Chat) {
	s := chat.Settings()
	changed := false
	if s.Model == store.DefaultSettings().Model && r.cfg.Model != s.Model {
		s.Model = r.cfg.Model
		changed = true
	}
	if s.ResultsCount == store.DefaultSettings().ResultsCount && r.cfg.ResultsCount != s.ResultsCount {
		s.ResultsCount = r.cfg.ResultsCount
		changed = true
	}
	if s.MinScore == store.DefaultSettings().MinScore && r.cfg.MinScore != s.MinScore {
		s.MinScore = r.cfg.MinScore
		changed = true
	}
	if s.Stream != r.cfg.Stream {
		s.Stream = r.cfg.Stream
		changed = true
	}
	if changed {
		chat.SetSettings(s)
	}
}
