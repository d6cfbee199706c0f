package callback

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

var ErrSinkFull = errors.New("callback sink is full")

// ChanSink is a buffered Sink. Events are dropped when the buffer is full so the
// coordination loop never waits on a slow reader.
type ChanSink struct {
	ch chan Event
}

// NewChanSink creates a sink with the given buffer size.
func NewChanSink(size int) *ChanSink {
	if size <= 0 {
		size = 1
	}
	return &ChanSink{ch: make(chan Event, size)}
}

// Send implements Sink.
func (s *ChanSink) Send(e Event) error {
	select {
	case s.ch <- e:
		return nil
	default:
		zlog.Warn().Msgf("callback dropped: kind=%s source=%s seq=%d", e.Kind, e.SourceID, e.SequenceNo)
		return ErrSinkFull
	}
}

// Events returns the receive side of the sink.
func (s *ChanSink) Events() <-chan Event {
	return s.ch
}
