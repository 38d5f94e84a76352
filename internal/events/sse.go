package events

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// WriteSSE frames ev as a server-sent event. The payload is single-line JSON.
func WriteSSE(w io.Writer, ev Event) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "id: %d\n", ev.ID)
	if ev.Type != "" {
		fmt.Fprintf(&buf, "event: %s\n", ev.Type)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	fmt.Fprintf(&buf, "data: %s\n\n", data)
	_, err = w.Write(buf.Bytes())
	return err
}

// ParseLastEventID reads a Last-Event-ID header; anything invalid means 0.
func ParseLastEventID(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Reader decodes an SSE stream written by WriteSSE.
type Reader struct {
	sc *bufio.Scanner
}

func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Reader{sc: sc}
}

// Next returns the next event, skipping comments and keep-alives. It returns
// io.EOF when the stream ends.
func (r *Reader) Next() (Event, error) {
	var (
		ev      Event
		data    strings.Builder
		hasData bool
	)
	for r.sc.Scan() {
		line := r.sc.Text()
		switch {
		case line == "":
			if !hasData {
				continue
			}
			if err := json.Unmarshal([]byte(data.String()), &ev); err != nil {
				return Event{}, fmt.Errorf("decode event: %w", err)
			}
			if ev.At.IsZero() {
				ev.At = time.Now().UTC()
			}
			return ev, nil
		case strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "id:"):
			ev.ID = ParseLastEventID(strings.TrimSpace(strings.TrimPrefix(line, "id:")))
		case strings.HasPrefix(line, "event:"):
			ev.Type = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			hasData = true
		}
	}
	if err := r.sc.Err(); err != nil {
		return Event{}, err
	}
	return Event{}, io.EOF
}
