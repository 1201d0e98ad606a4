package advisor

import (
	"bufio"
	"bytes"
	"io"
	"strings"

	"github.com/pkg/errors"
)

const maxFrameSize = 4 * 1024 * 1024

// EventStream reads SSE frames from a response body and yields their payloads.
type EventStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	queued  [][]byte
	done    bool
}

func newEventStream(body io.ReadCloser) *EventStream {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameSize)
	scanner.Split(splitFrames)
	return &EventStream{body: body, scanner: scanner}
}

// NewEventStream wraps r. Closing the stream closes r if it is an io.Closer.
func NewEventStream(r io.Reader) *EventStream {
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	return newEventStream(rc)
}

// Next returns the next payload. It returns io.EOF once the sentinel has
// been seen or the body ends; anything after the sentinel is discarded.
func (s *EventStream) Next() ([]byte, error) {
	for {
		if s.done {
			return nil, io.EOF
		}
		if len(s.queued) > 0 {
			p := s.queued[0]
			s.queued = s.queued[1:]
			if string(p) == Sentinel {
				s.finish()
				return nil, io.EOF
			}
			return p, nil
		}

		if !s.scanner.Scan() {
			s.done = true
			if err := s.scanner.Err(); err != nil {
				return nil, errors.Wrap(err, "failed to read event stream")
			}
			return nil, io.EOF
		}
		s.queued = framePayloads(s.scanner.Bytes())
	}
}

// Close releases the underlying body
func (s *EventStream) Close() error {
	s.done = true
	return s.body.Close()
}

func (s *EventStream) finish() {
	s.done = true
	s.queued = nil
}

// framePayloads extracts the data lines of one frame. Lines without the
// data prefix (event:, id:, comments) are ignored.
func framePayloads(frame []byte) [][]byte {
	var out [][]byte
	for _, line := range strings.Split(string(frame), "\n") {
		line = strings.TrimSuffix(line, "\r")
		if !strings.HasPrefix(line, DataPrefix) {
			continue
		}
		out = append(out, []byte(strings.TrimPrefix(line, DataPrefix)))
	}
	return out
}

// splitFrames is a bufio.SplitFunc that yields blank-line delimited frames.
func splitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i, n := frameEnd(data); i >= 0 {
		return i + n, data[:i], nil
	}
	if atEOF {
		if len(bytes.TrimSpace(data)) == 0 {
			return len(data), nil, nil
		}
		return len(data), data, nil
	}
	return 0, nil, nil
}

func frameEnd(data []byte) (int, int) {
	lf := bytes.Index(data, []byte("\n\n"))
	crlf := bytes.Index(data, []byte("\r\n\r\n"))
	switch {
	case lf < 0:
		if crlf < 0 {
			return -1, 0
		}
		return crlf, 4
	case crlf >= 0 && crlf < lf:
		return crlf, 4
	default:
		return lf, 2
	}
}
