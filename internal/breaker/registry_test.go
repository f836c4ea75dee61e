package breaker_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mehmetyiter/callguard/internal/breaker"
)

func registryConfig() breaker.Config {
	return breaker.Config{
		Timeout:          time.Minute,
		FailureThreshold: 2,
		SuccessThreshold: 1,
		MonitoringWindow: time.Minute,
		VolumeThreshold:  2,
	}
}

func TestRegistry_CreateRejectsDuplicates(t *testing.T) {
	r := breaker.NewRegistry()
	t.Cleanup(r.Close)

	_, err := r.Create("payments", registryConfig())
	require.NoError(t, err)

	_, err = r.Create("payments", registryConfig())
	assert.ErrorIs(t, err, breaker.ErrDuplicateBreaker)

	_, err = r.CreatePredictive("payments", breaker.PredictiveConfig{Config: registryConfig()})
	assert.ErrorIs(t, err, breaker.ErrDuplicateBreaker)
}

func TestRegistry_GetMissingReturnsNil(t *testing.T) {
	r := breaker.NewRegistry()
	t.Cleanup(r.Close)

	assert.Nil(t, r.Get("nope"))
}

func TestRegistry_GetOrCreateIdempotent(t *testing.T) {
	r := breaker.NewRegistry()
	t.Cleanup(r.Close)

	first, err := r.GetOrCreate("inventory", registryConfig())
	require.NoError(t, err)

	second, err := r.GetOrCreate("inventory", registryConfig())
	require.NoError(t, err)

	assert.Same(t, first, second)
}

func TestRegistry_GetOrCreateConcurrent(t *testing.T) {
	r := breaker.NewRegistry()
	t.Cleanup(r.Close)

	const goroutines = 16
	guards := make([]breaker.Guard, goroutines)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			g, err := r.GetOrCreate("shared", registryConfig())
			if err != nil {
				t.Error(err)
				return
			}
			guards[i] = g
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		assert.Same(t, guards[0], guards[i], "every caller must see the same instance")
	}
}

func TestRegistry_GetOrCreatePredictive(t *testing.T) {
	r := breaker.NewRegistry()
	t.Cleanup(r.Close)

	g, err := r.GetOrCreatePredictive("search", breaker.PredictiveConfig{Config: registryConfig()})
	require.NoError(t, err)

	_, ok := g.(*breaker.PredictiveBreaker)
	assert.True(t, ok)

	again, err := r.GetOrCreatePredictive("search", breaker.PredictiveConfig{Config: registryConfig()})
	require.NoError(t, err)
	assert.Same(t, g, again)
}

func TestRegistry_Remove(t *testing.T) {
	r := breaker.NewRegistry()
	t.Cleanup(r.Close)

	_, err := r.CreatePredictive("ephemeral", breaker.PredictiveConfig{Config: registryConfig()})
	require.NoError(t, err)

	assert.True(t, r.Remove("ephemeral"))
	assert.Nil(t, r.Get("ephemeral"))
	assert.False(t, r.Remove("ephemeral"))
}

func TestRegistry_StatsAggregation(t *testing.T) {
	r := breaker.NewRegistry()
	t.Cleanup(r.Close)

	b, err := r.Create("orders", registryConfig())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, b.Execute(func() error { return nil }))
	}
	boom := errors.New("boom")
	for i := 0; i < 2; i++ {
		require.ErrorIs(t, b.Execute(func() error { return boom }), boom)
	}
	// The breaker is open now; one more call is rejected.
	require.ErrorIs(t, b.Execute(func() error { return nil }), breaker.ErrBreakerOpen)

	stats := r.Stats()
	assert.Equal(t, uint64(6), stats.Requests)
	assert.Equal(t, uint64(3), stats.Successes)
	assert.Equal(t, uint64(2), stats.Failures)
	assert.Equal(t, uint64(1), stats.Rejections)
	assert.Equal(t, 1, stats.Summary[breaker.StateOpen])

	snapshot, ok := stats.Breakers["orders"]
	require.True(t, ok)
	assert.Equal(t, uint64(6), snapshot.Requests)
	assert.Equal(t, breaker.StateOpen, snapshot.State)
}

func TestRegistry_StatsReportsLazyState(t *testing.T) {
	r := breaker.NewRegistry()
	t.Cleanup(r.Close)

	clock := newFakeClock()
	cfg := registryConfig()
	cfg.Clock = clock

	b, err := r.Create("overdue", cfg)
	require.NoError(t, err)

	b.ForceOpen()
	clock.Advance(cfg.Timeout)

	// Past the probe deadline the snapshot and the summary agree on
	// half-open.
	stats := r.Stats()
	assert.Equal(t, breaker.StateHalfOpen, stats.Breakers["overdue"].State)
	assert.Equal(t, 1, stats.Summary[breaker.StateHalfOpen])
	assert.Zero(t, stats.Summary[breaker.StateOpen])
}

func TestRegistry_StatsAggregationConcurrent(t *testing.T) {
	r := breaker.NewRegistry()
	t.Cleanup(r.Close)

	cfg := registryConfig()
	cfg.VolumeThreshold = 10000

	b, err := r.Create("bulk", cfg)
	require.NoError(t, err)

	const goroutines = 8
	const perGoroutine = 50

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perGoroutine; j++ {
				_ = b.Execute(func() error { return nil })
			}
		}()
	}
	wg.Wait()

	stats := r.Stats()
	assert.Equal(t, uint64(goroutines*perGoroutine), stats.Requests)
	assert.Equal(t, uint64(goroutines*perGoroutine), stats.Successes)
}

func TestRegistry_PreservesUserCallbacks(t *testing.T) {
	r := breaker.NewRegistry()
	t.Cleanup(r.Close)

	var outcomes, transitions int
	cfg := registryConfig()
	cfg.OnOutcome = func(string, breaker.Outcome) { outcomes++ }
	cfg.OnStateChange = func(string, breaker.State, breaker.State) { transitions++ }

	b, err := r.Create("observed", cfg)
	require.NoError(t, err)

	require.NoError(t, b.Execute(func() error { return nil }))
	b.ForceOpen()

	assert.Equal(t, 1, outcomes)
	assert.Equal(t, 1, transitions)
}

func TestRegistry_ResetAll(t *testing.T) {
	r := breaker.NewRegistry()
	t.Cleanup(r.Close)

	a, err := r.Create("a", registryConfig())
	require.NoError(t, err)
	b, err := r.Create("b", registryConfig())
	require.NoError(t, err)

	a.ForceOpen()
	require.NoError(t, b.Execute(func() error { return nil }))

	r.ResetAll()

	assert.Equal(t, breaker.StateClosed, a.State())
	assert.Zero(t, b.Stats().Requests)
}

func TestRegistry_HealthStatus(t *testing.T) {
	r := breaker.NewRegistry()
	t.Cleanup(r.Close)

	_, err := r.Create("healthy", registryConfig())
	require.NoError(t, err)
	bad, err := r.Create("tripped", registryConfig())
	require.NoError(t, err)

	status := r.HealthStatus()
	assert.True(t, status.Healthy)

	bad.ForceOpen()

	status = r.HealthStatus()
	assert.False(t, status.Healthy)
	assert.True(t, status.Breakers["healthy"].Healthy)
	assert.False(t, status.Breakers["tripped"].Healthy)
	assert.Equal(t, breaker.StateOpen, status.Breakers["tripped"].State)
}

func TestRegistry_CloseEmptiesTable(t *testing.T) {
	r := breaker.NewRegistry()

	_, err := r.CreatePredictive("p", breaker.PredictiveConfig{Config: registryConfig()})
	require.NoError(t, err)
	_, err = r.Create("b", registryConfig())
	require.NoError(t, err)

	r.Close()

	assert.Nil(t, r.Get("p"))
	assert.Nil(t, r.Get("b"))
}
