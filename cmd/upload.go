package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ragdeck/ragdeck/internal/api"
	"github.com/ragdeck/ragdeck/internal/tracker"
)

// runUpload uploads one file and polls the resulting operation until
// it reaches a terminal state.
func runUpload(args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	displayName := fs.String("name", "", "display name (default: file name)")
	chunkSize := fs.Int("chunk-size", 0, "chunk size in tokens (1..512, 0 = server default)")
	location := fs.String("location", "", "document location tag")
	var metadata metadataFlags
	fs.Var(&metadata, "meta", "metadata pair key=value (repeatable)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: ragdeck upload [flags] <file>")
	}
	path := fs.Arg(0)

	rt, err := newRuntime()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	req := buildUploadRequest(path, *displayName, *chunkSize, *location, metadata)
	result, err := rt.client.Upload(ctx, f, req)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}
	fmt.Printf("uploaded %s, operation %s\n", req.DisplayName, result.OperationName)

	return waitForOperation(ctx, rt, result.OperationName)
}

// buildUploadRequest maps the upload flags onto the API request. The
// display name defaults to the file's base name.
func buildUploadRequest(path, displayName string, chunkSize int, location string, metadata metadataFlags) api.UploadRequest {
	name := displayName
	if name == "" {
		name = filepath.Base(path)
	}
	return api.UploadRequest{
		Filename:       filepath.Base(path),
		DisplayName:    name,
		ChunkSize:      chunkSize,
		Location:       location,
		MetadataKeys:   metadata.keys,
		MetadataValues: metadata.values,
	}
}

// waitForOperation polls at the tracker's interval until the
// operation terminates. Network failures are retried at the next tick.
func waitForOperation(ctx context.Context, rt *runtime, name string) error {
	ticker := time.NewTicker(tracker.DefaultInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			op, err := rt.client.Operation(ctx, name)
			if err != nil {
				rt.logger.Warn("operation poll failed, retrying", "operation", name, "error", err)
				continue
			}
			if !op.Done {
				fmt.Print(".")
				continue
			}
			fmt.Println()
			if op.Error != nil {
				return fmt.Errorf("ingestion failed: %s", op.Error.Message)
			}
			fmt.Println("ingestion complete")
			return nil
		}
	}
}

// metadataFlags collects repeated -meta key=value pairs.
type metadataFlags struct {
	keys   []string
	values []string
}

func (m *metadataFlags) String() string {
	pairs := make([]string, len(m.keys))
	for i := range m.keys {
		pairs[i] = m.keys[i] + "=" + m.values[i]
	}
	return strings.Join(pairs, ",")
}

func (m *metadataFlags) Set(v string) error {
	key, value, ok := strings.Cut(v, "=")
	if !ok {
		return fmt.Errorf("metadata must be key=value, got %q", v)
	}
	m.keys = append(m.keys, key)
	m.values = append(m.values, value)
	return nil
}
