// Package callback provides the persistent callback registration table.
package callback

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// ErrUnknownChannel is returned when registering on a channel that is not attached.
var ErrUnknownChannel = errors.New("unknown callback channel")

// Kind identifies a persistent callback.
type Kind int

const (
	KindAppGainsFocus Kind = iota
	KindAppLosesFocus
	KindAudioReady
	KindAudioEnd
	KindPlaybackStatusChange
	KindMetadataUpdate
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindAppGainsFocus:
		return "app_gains_focus"
	case KindAppLosesFocus:
		return "app_loses_focus"
	case KindAudioReady:
		return "audio_ready"
	case KindAudioEnd:
		return "audio_end"
	case KindPlaybackStatusChange:
		return "playback_status_change"
	case KindMetadataUpdate:
		return "metadata_update"
	default:
		return "unknown"
	}
}

// ParseKind parses the string form of a kind.
func ParseKind(s string) (Kind, bool) {
	for k := KindAppGainsFocus; k <= KindMetadataUpdate; k++ {
		if k.String() == s {
			return k, true
		}
	}
	return 0, false
}

// SourceScoped reports whether registrations of this kind target a source.
func (k Kind) SourceScoped() bool {
	return k != KindAppGainsFocus && k != KindAppLosesFocus
}

// Event is a single resolution of a registration.
type Event struct {
	CallbackID string
	Kind       Kind
	SourceID   string
	SequenceNo uint64
	Payload    map[string]any
}

// Sink receives events for the registrations made on its channel.
// Send must not block.
type Sink interface {
	Send(Event) error
}

type key struct {
	kind     Kind
	sourceID string
}

type registration struct {
	id        string
	channelID string
}

// Table maps callback registrations to the channels waiting on them.
// A registration for the same kind and source replaces the previous one.
type Table struct {
	mu       sync.RWMutex
	channels map[string]Sink
	regs     map[key]registration

	sequenceNo   uint64
	sequenceNoMu sync.Mutex
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{
		channels: make(map[string]Sink),
		regs:     make(map[key]registration),
	}
}

// Attach adds a channel and returns its ID.
func (t *Table) Attach(sink Sink) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := uuid.New().String()
	t.channels[id] = sink
	return id
}

// Detach removes a channel and every registration made on it.
func (t *Table) Detach(channelID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.channels, channelID)
	for k, r := range t.regs {
		if r.channelID == channelID {
			delete(t.regs, k)
		}
	}
}

// Register records a registration and returns its callback ID.
// App-level kinds ignore sourceID.
func (t *Table) Register(channelID string, kind Kind, sourceID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.channels[channelID]; !ok {
		return "", ErrUnknownChannel
	}
	if !kind.SourceScoped() {
		sourceID = ""
	}

	id := uuid.New().String()
	t.regs[key{kind: kind, sourceID: sourceID}] = registration{id: id, channelID: channelID}
	return id, nil
}

// Registered reports whether a registration exists for kind and sourceID.
func (t *Table) Registered(kind Kind, sourceID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.regs[key{kind: kind, sourceID: sourceID}]
	return ok
}

// NextSequenceNo returns the next sequence number and increments the counter.
func (t *Table) NextSequenceNo() uint64 {
	t.sequenceNoMu.Lock()
	defer t.sequenceNoMu.Unlock()
	t.sequenceNo++
	return t.sequenceNo
}

// Resolve delivers payload to the registration for kind and sourceID.
// A missing registration is not an error; it reports false.
func (t *Table) Resolve(kind Kind, sourceID string, payload map[string]any) bool {
	if !kind.SourceScoped() {
		sourceID = ""
	}

	t.mu.RLock()
	reg, ok := t.regs[key{kind: kind, sourceID: sourceID}]
	var sink Sink
	if ok {
		sink, ok = t.channels[reg.channelID]
	}
	t.mu.RUnlock()
	if !ok {
		return false
	}

	if payload == nil {
		payload = map[string]any{}
	}
	err := sink.Send(Event{
		CallbackID: reg.id,
		Kind:       kind,
		SourceID:   sourceID,
		SequenceNo: t.NextSequenceNo(),
		Payload:    payload,
	})
	return err == nil
}

// RemoveSource drops every registration targeting sourceID.
func (t *Table) RemoveSource(sourceID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for k := range t.regs {
		if k.sourceID == sourceID && k.kind.SourceScoped() {
			delete(t.regs, k)
		}
	}
}

// ChannelCount returns the number of attached channels.
func (t *Table) ChannelCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.channels)
}

// Close removes all channels and registrations.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.channels = make(map[string]Sink)
	t.regs = make(map[key]registration)
}
