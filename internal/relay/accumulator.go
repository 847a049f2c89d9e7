package relay

import (
	"bytes"
	"errors"
)

// defaultMaxMessageSize caps how much of an unterminated line the
// accumulator buffers before giving up on it.
const defaultMaxMessageSize = 4 * 1024 * 1024

var errMessageTooLarge = errors.New("message exceeds the maximum size")

// messageAccumulator splits an incoming byte stream into newline-delimited
// messages. Partial lines are buffered across feeds up to a size limit;
// an oversized line is dropped and reading resynchronizes at the next
// newline.
type messageAccumulator struct {
	buf        []byte
	limit      int
	discarding bool
}

func newMessageAccumulator(limit int) *messageAccumulator {
	if limit <= 0 {
		limit = defaultMaxMessageSize
	}
	return &messageAccumulator{limit: limit}
}

// feed appends chunk to the pending buffer and returns every complete
// message now available. Messages are trimmed of surrounding whitespace and
// blank lines are dropped. The error reports oversized input at most once
// per feed; messages extracted around the overflow are still returned.
func (a *messageAccumulator) feed(chunk []byte) ([][]byte, error) {
	a.buf = append(a.buf, chunk...)

	var msgs [][]byte
	var err error
	for {
		i := bytes.IndexByte(a.buf, '\n')
		if i < 0 {
			break
		}
		line := a.buf[:i]
		a.buf = a.buf[i+1:]
		if a.discarding {
			// Tail of a line that already overflowed.
			a.discarding = false
			continue
		}
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if len(line) > a.limit {
			err = errMessageTooLarge
			continue
		}
		msg := make([]byte, len(line))
		copy(msg, line)
		msgs = append(msgs, msg)
	}

	if !a.discarding && len(a.buf) > a.limit {
		a.discarding = true
		if err == nil {
			err = errMessageTooLarge
		}
	}
	if a.discarding {
		a.buf = a.buf[:0]
	}
	return msgs, err
}

// flush returns the trimmed remainder buffered without a terminating
// newline, or nil. The accumulator is empty afterwards.
func (a *messageAccumulator) flush() []byte {
	line := bytes.TrimSpace(a.buf)
	a.buf = nil
	if a.discarding || len(line) == 0 || len(line) > a.limit {
		return nil
	}
	return line
}
