package callback

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	events []Event
	err    error
}

func (s *recordingSink) Send(e Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, e)
	return nil
}

func TestTable_RegisterAndResolve(t *testing.T) {
	table := NewTable()
	sink := &recordingSink{}
	ch := table.Attach(sink)

	id, err := table.Register(ch, KindAudioEnd, "a")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	assert.True(t, table.Resolve(KindAudioEnd, "a", nil))
	require.Len(t, sink.events, 1)
	assert.Equal(t, id, sink.events[0].CallbackID)
	assert.Equal(t, "a", sink.events[0].SourceID)
	assert.Equal(t, map[string]any{}, sink.events[0].Payload)
}

func TestTable_MissingRegistrationIsIgnored(t *testing.T) {
	table := NewTable()
	sink := &recordingSink{}
	ch := table.Attach(sink)
	_, err := table.Register(ch, KindAudioEnd, "a")
	require.NoError(t, err)

	assert.False(t, table.Resolve(KindAudioReady, "a", nil))
	assert.False(t, table.Resolve(KindAudioEnd, "b", nil))
	assert.Empty(t, sink.events)
}

func TestTable_RegistrationReplacesPrevious(t *testing.T) {
	table := NewTable()
	first := &recordingSink{}
	second := &recordingSink{}
	ch1 := table.Attach(first)
	ch2 := table.Attach(second)

	_, err := table.Register(ch1, KindPlaybackStatusChange, "a")
	require.NoError(t, err)
	id2, err := table.Register(ch2, KindPlaybackStatusChange, "a")
	require.NoError(t, err)

	table.Resolve(KindPlaybackStatusChange, "a", map[string]any{"status": "playing"})
	assert.Empty(t, first.events)
	require.Len(t, second.events, 1)
	assert.Equal(t, id2, second.events[0].CallbackID)
	assert.Equal(t, "playing", second.events[0].Payload["status"])
}

func TestTable_AppLevelKindsIgnoreSource(t *testing.T) {
	table := NewTable()
	sink := &recordingSink{}
	ch := table.Attach(sink)

	_, err := table.Register(ch, KindAppGainsFocus, "whatever")
	require.NoError(t, err)

	assert.True(t, table.Resolve(KindAppGainsFocus, "", nil))
	require.Len(t, sink.events, 1)
	assert.Empty(t, sink.events[0].SourceID)

	// App-level registrations survive source removal.
	table.RemoveSource("")
	assert.True(t, table.Registered(KindAppGainsFocus, ""))
}

func TestTable_RemoveSource(t *testing.T) {
	table := NewTable()
	sink := &recordingSink{}
	ch := table.Attach(sink)
	for _, k := range []Kind{KindAudioReady, KindAudioEnd, KindMetadataUpdate} {
		_, err := table.Register(ch, k, "a")
		require.NoError(t, err)
	}
	_, err := table.Register(ch, KindAudioEnd, "b")
	require.NoError(t, err)

	table.RemoveSource("a")

	assert.False(t, table.Resolve(KindAudioReady, "a", nil))
	assert.False(t, table.Resolve(KindMetadataUpdate, "a", nil))
	assert.True(t, table.Resolve(KindAudioEnd, "b", nil))
}

func TestTable_Detach(t *testing.T) {
	table := NewTable()
	sink := &recordingSink{}
	ch := table.Attach(sink)
	_, err := table.Register(ch, KindAudioEnd, "a")
	require.NoError(t, err)

	table.Detach(ch)

	assert.False(t, table.Registered(KindAudioEnd, "a"))
	assert.Equal(t, 0, table.ChannelCount())
	_, err = table.Register(ch, KindAudioEnd, "a")
	assert.True(t, errors.Is(err, ErrUnknownChannel))
}

func TestTable_SequenceNumbersIncrease(t *testing.T) {
	table := NewTable()
	sink := &recordingSink{}
	ch := table.Attach(sink)
	_, err := table.Register(ch, KindAudioReady, "a")
	require.NoError(t, err)

	table.Resolve(KindAudioReady, "a", nil)
	table.Resolve(KindAudioReady, "a", nil)

	require.Len(t, sink.events, 2)
	assert.Less(t, sink.events[0].SequenceNo, sink.events[1].SequenceNo)
}

func TestTable_SinkErrorReportsFalse(t *testing.T) {
	table := NewTable()
	ch := table.Attach(&recordingSink{err: ErrSinkFull})
	_, err := table.Register(ch, KindAudioReady, "a")
	require.NoError(t, err)

	assert.False(t, table.Resolve(KindAudioReady, "a", nil))
}

func TestParseKind(t *testing.T) {
	tests := []struct {
		in   string
		want Kind
		ok   bool
	}{
		{"app_gains_focus", KindAppGainsFocus, true},
		{"audio_end", KindAudioEnd, true},
		{"metadata_update", KindMetadataUpdate, true},
		{"nope", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			k, ok := ParseKind(tt.in)
			assert.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, k)
			}
		})
	}
}

func TestChanSink_DropsWhenFull(t *testing.T) {
	s := NewChanSink(1)
	require.NoError(t, s.Send(Event{Kind: KindAudioEnd}))
	assert.True(t, errors.Is(s.Send(Event{Kind: KindAudioEnd}), ErrSinkFull))

	e := <-s.Events()
	assert.Equal(t, KindAudioEnd, e.Kind)
}
