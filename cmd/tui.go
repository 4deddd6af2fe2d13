package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	tea "charm.land/bubbletea/v2"

	"github.com/ragdeck/ragdeck/internal/chat"
	"github.com/ragdeck/ragdeck/internal/store"
	"github.com/ragdeck/ragdeck/internal/tui"
)

// runTUI initializes and starts the interactive dashboard.
func runTUI() error {
	rt, err := newRuntime()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	dir, err := rt.openState()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := dir.Close(); closeErr != nil {
			slog.Warn("state dir close error", "error", closeErr)
		}
	}()

	docs := store.NewDocuments(dir, rt.logger.With("component", "documents"))
	chunks := store.NewChunks(dir, rt.logger.With("component", "chunks"))
	chatStore := store.NewChat(dir, rt.logger.With("component", "chat"))
	rt.applyConfigDefaults(chatStore)

	flow := chat.New(rt.client, chatStore, docs, rt.logger.With("component", "flow"))

	model, err := tui.New(ctx, tui.Deps{
		Client:    rt.client,
		Flow:      flow,
		Documents: docs,
		Chunks:    chunks,
		Chat:      chatStore,
		Logger:    rt.logger.With("component", "tui"),
	})
	if err != nil {
		return fmt.Errorf("failed to create TUI: %w", err)
	}

	program := tea.NewProgram(model, tea.WithContext(ctx))
	if _, err = program.Run(); err != nil {
		return fmt.Errorf("TUI exited: %w", err)
	}
	return nil
}
