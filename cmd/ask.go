package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ragdeck/ragdeck/internal/api"
	"github.com/ragdeck/ragdeck/internal/chat"
	"github.com/ragdeck/ragdeck/internal/store"
)

// runAsk asks a one-shot question against the document store,
// streaming the answer to stdout. The transcript is persisted so
// consecutive asks keep their conversation context.
func runAsk(args []string) error {
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	noStream := fs.Bool("no-stream", false, "wait for the full answer instead of streaming")
	showSources := fs.Bool("sources", false, "print source chunks after the answer")
	if err := fs.Parse(args); err != nil {
		return err
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if question == "" {
		return fmt.Errorf("usage: ragdeck ask [flags] <question>")
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Keep conversation context across invocations when the state dir
	// is free; fall back to a fresh in-memory session when another
	// ragdeck holds it.
	dir, err := rt.openState()
	if err != nil {
		if !errors.Is(err, store.ErrLocked) {
			return err
		}
		rt.logger.Warn("state directory busy, using a fresh session")
		dir = nil
	}
	defer dir.Close()

	chatStore := store.NewChat(dir, rt.logger.With("component", "chat"))
	rt.applyConfigDefaults(chatStore)
	flow := chat.New(rt.client, chatStore, nil, rt.logger.With("component", "flow"))

	if *noStream {
		msg, err := flow.Ask(ctx, question)
		if err != nil {
			return err
		}
		fmt.Println(msg.Content)
		if *showSources {
			printSources(msg.Sources)
		}
		return nil
	}

	var sources []api.Chunk
	for ev, err := range flow.Stream(ctx, question) {
		if err != nil {
			return err
		}
		switch {
		case ev.Chunks != nil:
			sources = ev.Chunks
		case ev.Message != nil:
			fmt.Println()
		case ev.Text != "":
			fmt.Print(ev.Text)
		}
	}
	if *showSources {
		printSources(sources)
	}
	return nil
}

func printSources(sources []api.Chunk) {
	if len(sources) == 0 {
		return
	}
	fmt.Println("\nSources:")
	for _, c := range sources {
		label := c.SourceDocument
		if label == "" {
			label = c.Name
		}
		fmt.Printf("  %s (%d%%)\n", label, c.Percent())
	}
}

// containsFold reports a case-insensitive substring match.
func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
