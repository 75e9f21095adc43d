package modeladapter

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
)

// ReadSSE parses a server-sent event stream and calls fn with the event name
// and data of each event. Multi-line data is joined with newlines and comment
// lines are skipped. It stops at the first error returned by fn, when ctx is
// done, or at the end of r. Lines may be of any length.
func ReadSSE(ctx context.Context, r io.Reader, fn func(event, data string) error) error {
	br := bufio.NewReaderSize(r, 64*1024)

	var eventName string
	var data strings.Builder

	flush := func() error {
		defer func() { eventName = "" }()
		if data.Len() == 0 {
			return nil
		}
		payload := data.String()
		data.Reset()
		return fn(eventName, payload)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		line, readErr := br.ReadString('\n')
		eof := errors.Is(readErr, io.EOF)
		if readErr != nil && !eof {
			return readErr
		}
		if eof && line == "" {
			break
		}
		line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")

		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(line[len("data:"):], " "))
		}

		if eof {
			break
		}
	}

	return flush()
}
