package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

func TestAppendEvent_MonotonicSequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		e := &EventRecord{
			SessionID: "sess-1",
			EventType: schema.EventBeforeToolCall,
		}
		require.NoError(t, s.AppendEvent(ctx, e))
		assert.Equal(t, int64(i+1), e.Sequence, "sequence should be monotonic")
	}
}

func TestAppendEvent_SequencesArePerSession(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := &EventRecord{SessionID: "sess-1", EventType: schema.EventSessionStart}
	require.NoError(t, s.AppendEvent(ctx, first))

	other := &EventRecord{SessionID: "sess-2", EventType: schema.EventSessionStart}
	require.NoError(t, s.AppendEvent(ctx, other))

	assert.Equal(t, int64(1), first.Sequence)
	assert.Equal(t, int64(1), other.Sequence, "each session numbers independently")
}

func TestAppendEvent_PayloadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	e := &EventRecord{
		SessionID: "sess-1",
		EventType: schema.EventBeforeToolCall,
		Source:    "claude",
		Payload:   json.RawMessage(`{"tool_name":"bash"}`),
	}
	require.NoError(t, s.AppendEvent(ctx, e))

	events, err := s.GetEvents(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "claude", events[0].Source)
	assert.JSONEq(t, `{"tool_name":"bash"}`, string(events[0].Payload))
	assert.False(t, events[0].Timestamp.IsZero())
}

func TestGetEvents_Since(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, et := range []string{schema.EventSessionStart, schema.EventBeforeToolCall, schema.EventStop} {
		require.NoError(t, s.AppendEvent(ctx, &EventRecord{SessionID: "sess-1", EventType: et}))
	}

	all, err := s.GetEvents(ctx, "sess-1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	tail, err := s.GetEvents(ctx, "sess-1", 1)
	require.NoError(t, err)
	require.Len(t, tail, 2)
	assert.Equal(t, int64(2), tail[0].Sequence)
	assert.Equal(t, schema.EventBeforeToolCall, tail[0].EventType)
}

func TestAppendEvent_ConcurrentAppendersKeepUniqueSequences(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.AppendEvent(ctx, &EventRecord{
				SessionID: "sess-1",
				EventType: schema.EventAfterToolCall,
			})
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	events, err := s.GetEvents(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, events, n)
	for i, e := range events {
		assert.Equal(t, int64(i+1), e.Sequence)
	}
}

func TestPruneEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := &EventRecord{
		SessionID: "sess-1",
		EventType: schema.EventSessionStart,
		Timestamp: time.Now().UTC().Add(-48 * time.Hour),
	}
	require.NoError(t, s.AppendEvent(ctx, old))
	require.NoError(t, s.AppendEvent(ctx, &EventRecord{
		SessionID: "sess-1",
		EventType: schema.EventStop,
	}))

	n, err := s.PruneEvents(ctx, time.Now().UTC().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	remaining, err := s.GetEvents(ctx, "sess-1", 0)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, schema.EventStop, remaining[0].EventType)
}
