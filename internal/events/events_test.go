package events

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-gateway/internal/database"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()
	return NewBus(100, nil, nil, zerolog.Nop())
}

func TestEventFilter_Matches_WildcardWhenNil(t *testing.T) {
	var f *EventFilter
	e := &Event{Type: EventPriceAnomaly, Severity: SeverityHigh}
	assert.True(t, f.Matches(e))
}

func TestEventFilter_Matches_ANDAcrossDimensions(t *testing.T) {
	f := &EventFilter{
		EventTypes: []EventType{EventPriceAnomaly},
		Severities: []Severity{SeverityCritical},
	}
	matching := &Event{Type: EventPriceAnomaly, Severity: SeverityCritical}
	wrongSeverity := &Event{Type: EventPriceAnomaly, Severity: SeverityLow}

	assert.True(t, f.Matches(matching))
	assert.False(t, f.Matches(wrongSeverity))
}

func TestEventFilter_Matches_ORWithinDimension(t *testing.T) {
	f := &EventFilter{AssetSymbols: []string{"AAPL", "MSFT"}}
	assert.True(t, f.Matches(&Event{AssetSymbol: "MSFT"}))
	assert.False(t, f.Matches(&Event{AssetSymbol: "TSLA"}))
}

func TestBus_SubscribeAndReceive(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *Event, 1)
	bus.Subscribe(func(e *Event) { received <- e }, nil, "")

	bus.Emit(&Event{Type: EventPriceAnomaly, Severity: SeverityHigh, Description: "test"})

	select {
	case e := <-received:
		assert.Equal(t, EventPriceAnomaly, e.Type)
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive event")
	}
}

func TestBus_FilterExcludesNonMatchingEvents(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *Event, 2)
	filter := &EventFilter{EventTypes: []EventType{EventWhaleMovement}}
	bus.Subscribe(func(e *Event) { received <- e }, filter, "")

	bus.Emit(&Event{Type: EventPriceAnomaly})
	bus.Emit(&Event{Type: EventWhaleMovement})

	select {
	case e := <-received:
		assert.Equal(t, EventWhaleMovement, e.Type)
	case <-time.After(time.Second):
		t.Fatal("expected one matching event")
	}

	select {
	case <-received:
		t.Fatal("received unexpected second event")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_UnsubscribeStopsDelivery(t *testing.T) {
	bus := newTestBus(t)

	received := make(chan *Event, 1)
	id := bus.Subscribe(func(e *Event) { received <- e }, nil, "")

	ok := bus.Unsubscribe(id)
	assert.True(t, ok)

	bus.Emit(&Event{Type: EventPriceAnomaly})

	select {
	case <-received:
		t.Fatal("unsubscribed handler should not receive events")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBus_SubscriberPanicDoesNotBlockOthers(t *testing.T) {
	bus := newTestBus(t)

	var wg sync.WaitGroup
	wg.Add(1)
	bus.Subscribe(func(e *Event) { panic("boom") }, nil, "")
	bus.Subscribe(func(e *Event) { wg.Done() }, nil, "")

	bus.Emit(&Event{Type: EventPriceAnomaly})

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second subscriber never ran after first panicked")
	}
}

func TestBus_GetHistory_NewestFirst(t *testing.T) {
	bus := newTestBus(t)
	bus.Emit(&Event{Type: EventPriceAnomaly, Description: "first"})
	bus.Emit(&Event{Type: EventPriceAnomaly, Description: "second"})

	history := bus.GetHistory(nil, 0)
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].Description)
	assert.Equal(t, "first", history[1].Description)
}

func TestRingBuffer_WrapsAtCapacity(t *testing.T) {
	rb := newRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.push(&Event{Description: string(rune('a' + i))})
	}

	snap := rb.snapshot()
	require.Len(t, snap, 3)
	assert.Equal(t, "c", snap[0].Description)
	assert.Equal(t, "e", snap[2].Description)
}

func newTestDurableLog(t *testing.T) *DurableLog {
	t.Helper()
	db, err := database.New(database.Config{
		Path:    "file::memory:?cache=shared",
		Profile: database.ProfileStandard,
		Name:    "events",
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return NewDurableLog(db, zerolog.Nop())
}

func TestDurableLog_AppendAndRead(t *testing.T) {
	dl := newTestDurableLog(t)

	e := &Event{
		EventID:     "evt-1",
		Type:        EventPriceAnomaly,
		Severity:    SeverityHigh,
		AssetSymbol: "AAPL",
		Description: "price spike",
		Data:        map[string]interface{}{"change_pct": 5.2},
		Timestamp:   time.Now(),
	}
	require.NoError(t, dl.Append(e))

	read, err := dl.Read(0, 10)
	require.NoError(t, err)
	require.Len(t, read, 1)
	assert.Equal(t, "evt-1", read[0].EventID)
	assert.Equal(t, "AAPL", read[0].AssetSymbol)
}

func TestWebSocketBroadcaster_ClientCountTracksConnections(t *testing.T) {
	b := NewWebSocketBroadcaster(zerolog.Nop())
	assert.Equal(t, 0, b.ClientCount())
}
