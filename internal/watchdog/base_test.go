package watchdog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/sentinel-gateway/internal/events"
)

type fakeChecker struct {
	name    string
	callCnt int32
	fail    atomic.Bool
	event   *events.Event
}

func (c *fakeChecker) Name() string { return c.name }

func (c *fakeChecker) Check(ctx context.Context) (*events.Event, error) {
	atomic.AddInt32(&c.callCnt, 1)
	if c.fail.Load() {
		return nil, errors.New("check failed")
	}
	return c.event, nil
}

func TestBaseWatchdog_RecoversToHealthyOnSuccess(t *testing.T) {
	checker := &fakeChecker{name: "test"}
	bus := events.NewBus(10, nil, nil, zerolog.Nop())
	w := NewBaseWatchdog(checker, Config{CheckInterval: 10 * time.Millisecond, Enabled: true, MaxRetries: 2, RetryDelay: time.Millisecond}, bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	time.Sleep(30 * time.Millisecond)
	health := w.GetHealth()
	assert.Equal(t, StatusHealthy, health.Status)
	assert.Equal(t, 0, health.ConsecutiveFailures)
}

func TestBaseWatchdog_DegradesThenUnhealthyOnRepeatedFailure(t *testing.T) {
	checker := &fakeChecker{name: "test"}
	checker.fail.Store(true)
	bus := events.NewBus(10, nil, nil, zerolog.Nop())
	w := NewBaseWatchdog(checker, Config{CheckInterval: 50 * time.Millisecond, Enabled: true, MaxRetries: 2, RetryDelay: time.Millisecond}, bus, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	require.Eventually(t, func() bool {
		return w.GetHealth().Status == StatusUnhealthy
	}, time.Second, 5*time.Millisecond)

	health := w.GetHealth()
	assert.Equal(t, 2, health.ConsecutiveFailures)
}

func TestBaseWatchdog_EmitsEventOnDetection(t *testing.T) {
	checker := &fakeChecker{
		name:  "test",
		event: &events.Event{Type: events.EventPriceAnomaly, Severity: events.SeverityHigh},
	}
	bus := events.NewBus(10, nil, nil, zerolog.Nop())

	received := make(chan *events.Event, 1)
	bus.Subscribe(func(e *events.Event) { received <- e }, nil, "")

	w := NewBaseWatchdog(checker, Config{CheckInterval: time.Hour, Enabled: true}, bus, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Stop()

	select {
	case e := <-received:
		assert.Equal(t, "test", e.WatchdogName)
	case <-time.After(time.Second):
		t.Fatal("expected event from watchdog check")
	}
}

func TestManager_StartStopAllWatchdogs(t *testing.T) {
	bus := events.NewBus(10, nil, nil, zerolog.Nop())
	mgr := NewManager(bus, zerolog.Nop())
	mgr.Initialize()

	checker := &fakeChecker{name: "test"}
	w := NewBaseWatchdog(checker, Config{CheckInterval: time.Hour, Enabled: true}, bus, zerolog.Nop())
	mgr.Register(w)

	ctx := context.Background()
	mgr.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	mgr.Stop()

	health := mgr.GetHealth()
	require.Contains(t, health, "test")
	assert.Equal(t, StatusStopped, health["test"].Status)
}

func TestManager_DisableThenEnable(t *testing.T) {
	bus := events.NewBus(10, nil, nil, zerolog.Nop())
	mgr := NewManager(bus, zerolog.Nop())
	mgr.Initialize()

	checker := &fakeChecker{name: "test"}
	w := NewBaseWatchdog(checker, Config{CheckInterval: 10 * time.Millisecond, Enabled: true, MaxRetries: 1, RetryDelay: time.Millisecond}, bus, zerolog.Nop())
	mgr.Register(w)

	ctx := context.Background()
	mgr.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, mgr.Disable("test"))
	assert.Equal(t, StatusStopped, mgr.GetHealth()["test"].Status)

	require.NoError(t, mgr.Enable(ctx, "test"))
	require.Eventually(t, func() bool {
		return mgr.GetHealth()["test"].Status == StatusHealthy
	}, time.Second, 5*time.Millisecond)

	mgr.Stop()

	require.Error(t, mgr.Disable("unknown"))
	require.Error(t, mgr.Enable(ctx, "unknown"))
}
