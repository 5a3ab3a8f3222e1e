package stream

import (
	"bytes"
	"context"
	"iter"
	"net/http"

	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/pkg/errors"
)

// Read yields the data of each server-sent event on resp as one raw chunk.
// It closes the body when iteration ends. A cancelled ctx is reported as
// its error so callers can tell an abort from a normal close.
func Read(ctx context.Context, resp *http.Response) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		dec := ssestream.NewDecoder(resp)
		if dec == nil {
			yield("", errors.New("stream response has no body"))
			return
		}
		defer dec.Close()

		for dec.Next() {
			if err := ctx.Err(); err != nil {
				yield("", err)
				return
			}
			evt := dec.Event()
			// A stray blank line dispatches an event with no fields at all.
			if evt.Type == "" && len(evt.Data) == 0 {
				continue
			}
			data := bytes.TrimSuffix(evt.Data, []byte("\n"))
			if !yield(string(data), nil) {
				return
			}
		}

		if err := ctx.Err(); err != nil {
			yield("", err)
			return
		}
		if err := dec.Err(); err != nil {
			yield("", errors.Wrap(err, "reading event stream"))
		}
	}
}
