package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
)

// framePrefix marks a significant line in the generation stream. Lines
// without it (blank separators, comments) are ignored.
const framePrefix = "data: "

// maxFrameSize bounds a single stream frame. Generation deltas are
// small; 1 MiB leaves generous headroom.
const maxFrameSize = 1 << 20

// StreamValue is one event from the streaming generation endpoint.
// Text carries an incremental append when non-empty; Done marks
// completion. Exactly one of the two is meaningful per value.
type StreamValue struct {
	Text string
	Done bool
}

// framePayload is the JSON body of one data: frame.
type framePayload struct {
	Text  string `json:"text"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

// GenerateStream requests a streamed answer and returns an iterator of
// incremental events.
//
// The response body is a sequence of newline-delimited frames; a frame
// is significant only when it starts with "data: " followed by JSON.
// Frames are parsed incrementally with trailing partial lines carried
// over across reads, so a frame split between two network reads is
// never corrupted. Malformed JSON in a frame is skipped and consumption
// continues.
//
// The iterator terminates after yielding exactly one terminal event:
//   - (StreamValue{Done: true}, nil) on a done frame, or on stream end
//     without one — callers are never left waiting
//   - (StreamValue{}, err) on an error frame, transport failure, or
//     context cancellation
//
// Cancel ctx to abort mid-flight; the in-flight read is torn down and
// no further events are yielded. The iterator holds no state across
// invocations, so discarding partially accumulated text is the
// caller's responsibility.
//
// There is no fixed timeout on the streaming call; it is bounded only
// by ctx and the terminal events above.
func (c *Client) GenerateStream(ctx context.Context, req GenerateRequest) iter.Seq2[StreamValue, error] {
	return func(yield func(StreamValue, error) bool) {
		body, err := c.openStream(ctx, req)
		if err != nil {
			yield(StreamValue{}, err)
			return
		}
		defer body.Close()

		scanner := bufio.NewScanner(body)
		scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)

		var frames int
		for scanner.Scan() {
			line := strings.TrimSuffix(scanner.Text(), "\r")
			if !strings.HasPrefix(line, framePrefix) {
				continue
			}

			var frame framePayload
			if err := json.Unmarshal([]byte(line[len(framePrefix):]), &frame); err != nil {
				// Malformed frame: skip silently, keep consuming.
				c.logger.Debug("skipping malformed stream frame", "error", err)
				continue
			}

			switch {
			case frame.Error != "":
				yield(StreamValue{}, fmt.Errorf("stream frame %d: %s", frames, frame.Error))
				return
			case frame.Done:
				yield(StreamValue{Done: true}, nil)
				return
			case frame.Text != "":
				frames++
				if !yield(StreamValue{Text: frame.Text}, nil) {
					return
				}
			}
		}

		if err := scanner.Err(); err != nil {
			// Cancellation surfaces as a read error on the body;
			// report the context's error so callers can match it.
			if ctxErr := ctx.Err(); ctxErr != nil {
				yield(StreamValue{}, ctxErr)
				return
			}
			yield(StreamValue{}, fmt.Errorf("%w: read stream: %w", ErrUnreachable, err))
			return
		}

		// Stream ended without a done frame: treat end-of-stream as
		// implicit completion so callers are never left waiting.
		yield(StreamValue{Done: true}, nil)
	}
}

// openStream issues the streaming POST and returns the response body on
// a 2xx, mapping failures to the package error taxonomy.
func (c *Client) openStream(ctx context.Context, req GenerateRequest) (io.ReadCloser, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, ErrEmptyQuery
	}

	payload, err := json.Marshal(generatePayload(req))
	if err != nil {
		return nil, fmt.Errorf("generate stream: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/chat/generate-stream", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("generate stream: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var env apiEnvelope
		if data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxFrameSize)); readErr == nil {
			if jsonErr := json.Unmarshal(data, &env); jsonErr == nil {
				apiErr.Message = env.Error
			}
		}
		return nil, apiErr
	}
	return resp.Body, nil
}

// Collect drains a stream iterator, concatenating all text deltas.
// Intended for non-interactive callers (the ask subcommand, tests);
// interactive consumers should range the iterator directly.
func Collect(stream iter.Seq2[StreamValue, error]) (string, error) {
	var b strings.Builder
	for v, err := range stream {
		if err != nil {
			return b.String(), err
		}
		if v.Done {
			break
		}
		b.WriteString(v.Text)
	}
	return b.String(), nil
}
