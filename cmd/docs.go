package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/ragdeck/ragdeck/internal/api"
)

// runDocs lists documents in the backend store, following pagination
// to the end.
func runDocs(args []string) error {
	fs := flag.NewFlagSet("docs", flag.ContinueOnError)
	pageSize := fs.Int("page-size", 50, "documents per request")
	filter := fs.String("filter", "", "case-insensitive substring filter")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rt, err := newRuntime()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var all []api.Document
	token := ""
	for {
		page, err := rt.client.Documents(ctx, *pageSize, token)
		if err != nil {
			return fmt.Errorf("listing documents: %w", err)
		}
		all = append(all, page.Documents...)
		if page.NextPageToken == "" {
			break
		}
		token = page.NextPageToken
	}

	if *filter != "" {
		all = filterDocuments(all, *filter)
	}
	if len(all) == 0 {
		fmt.Println("no documents")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tSIZE\tMIME\tUPDATED")
	for _, doc := range all {
		updated := ""
		if !doc.UpdateTime.IsZero() {
			updated = doc.UpdateTime.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			doc.DisplayName, doc.State, doc.SizeBytes, doc.MimeType, updated)
	}
	return w.Flush()
}

func filterDocuments(docs []api.Document, q string) []api.Document {
	var out []api.Document
	for _, doc := range docs {
		if containsFold(doc.DisplayName, q) || containsFold(doc.Name, q) || containsFold(doc.MimeType, q) {
			out = append(out, doc)
		}
	}
	return out
}
