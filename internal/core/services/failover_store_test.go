package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanZoel112/vzoelfess/internal/adapters/storage/memory"
	"github.com/VanZoel112/vzoelfess/internal/core/domain"
	"github.com/VanZoel112/vzoelfess/internal/core/ports"
)

var errConnRefused = errors.New("dial tcp: connection refused")

// flakyStore envolve o store em memória e permite simular indisponibilidade
// do backend sem tocar na semântica dos contadores.
type flakyStore struct {
	*memory.CounterStore
	failing      bool
	reserveCalls int
}

func newFlakyStore(name string) *flakyStore {
	inner := memory.NewCounterStore()
	inner.BackendName = name
	return &flakyStore{CounterStore: inner}
}

func (f *flakyStore) Reserve(ctx context.Context, sender domain.SenderID, now time.Time, limits domain.Limits) (ports.Reservation, error) {
	f.reserveCalls++
	if f.failing {
		return ports.Reservation{}, errConnRefused
	}
	return f.CounterStore.Reserve(ctx, sender, now, limits)
}

func (f *flakyStore) Peek(ctx context.Context, sender domain.SenderID, now time.Time) (domain.Counts, error) {
	if f.failing {
		return domain.Counts{}, errConnRefused
	}
	return f.CounterStore.Peek(ctx, sender, now)
}

func (f *flakyStore) Release(ctx context.Context, sender domain.SenderID, res ports.Reservation) error {
	if f.failing {
		return errConnRefused
	}
	return f.CounterStore.Release(ctx, sender, res)
}

var testLimits = domain.Limits{MaxPerHour: 5, MaxPerDay: 20}

func newTestFailover(t *testing.T, primary, fallback ports.CounterStore) *FailoverCounterStore {
	t.Helper()
	f, err := NewFailoverCounterStore(primary, fallback, FailoverConfig{
		FailureThreshold: 2,
		RetryAfter:       30 * time.Second,
		ProbeTimeout:     100 * time.Millisecond,
	}, testLogger)
	require.NoError(t, err)
	return f
}

func TestFailover_PrimaryServesWhileHealthy(t *testing.T) {
	primary := newFlakyStore("redis")
	fallback := newFlakyStore("sqlite")
	f := newTestFailover(t, primary, fallback)

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	res, err := f.Reserve(context.Background(), "sender-1", now, testLimits)
	require.NoError(t, err)

	assert.Equal(t, "redis", res.Backend)
	assert.Equal(t, 0, fallback.reserveCalls)
}

func TestFailover_FallbackTakesOverAfterThreshold(t *testing.T) {
	primary := newFlakyStore("redis")
	primary.failing = true
	fallback := newFlakyStore("sqlite")
	f := newTestFailover(t, primary, fallback)

	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	// Enquanto o primário ainda não atingiu o limiar, cada decisão o tenta
	// e cai para a reserva na mesma chamada.
	for i := 0; i < 2; i++ {
		res, err := f.Reserve(ctx, "sender-1", now, testLimits)
		require.NoError(t, err)
		assert.Equal(t, "sqlite", res.Backend)
		now = now.Add(time.Second)
	}
	require.Equal(t, 2, primary.reserveCalls)

	// Derrubado, o primário é pulado sem chamada até RetryAfter.
	res, err := f.Reserve(ctx, "sender-1", now, testLimits)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", res.Backend)
	assert.Equal(t, 2, primary.reserveCalls)
	assert.Equal(t, 3, res.Counts.Hour)
}

func TestFailover_ProbeRecoversPrimary(t *testing.T) {
	primary := newFlakyStore("redis")
	primary.failing = true
	fallback := newFlakyStore("sqlite")
	f := newTestFailover(t, primary, fallback)

	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		_, err := f.Reserve(ctx, "sender-1", now, testLimits)
		require.NoError(t, err)
	}

	// Passado RetryAfter, uma única sondagem reabilita o backend curado.
	primary.failing = false
	now = now.Add(time.Minute)
	res, err := f.Reserve(ctx, "sender-1", now, testLimits)
	require.NoError(t, err)
	assert.Equal(t, "redis", res.Backend)

	res, err = f.Reserve(ctx, "sender-1", now.Add(time.Second), testLimits)
	require.NoError(t, err)
	assert.Equal(t, "redis", res.Backend)
}

func TestFailover_FailedProbeDropsPrimaryAgain(t *testing.T) {
	primary := newFlakyStore("redis")
	primary.failing = true
	fallback := newFlakyStore("sqlite")
	f := newTestFailover(t, primary, fallback)

	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 2; i++ {
		_, err := f.Reserve(ctx, "sender-1", now, testLimits)
		require.NoError(t, err)
	}
	require.Equal(t, 2, primary.reserveCalls)

	// Sondagem falha: uma chamada só, e o backend volta a ser pulado.
	now = now.Add(time.Minute)
	res, err := f.Reserve(ctx, "sender-1", now, testLimits)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", res.Backend)
	assert.Equal(t, 3, primary.reserveCalls)

	_, err = f.Reserve(ctx, "sender-1", now.Add(time.Second), testLimits)
	require.NoError(t, err)
	assert.Equal(t, 3, primary.reserveCalls)
}

func TestFailover_BothDown(t *testing.T) {
	primary := newFlakyStore("redis")
	primary.failing = true
	fallback := newFlakyStore("sqlite")
	fallback.failing = true
	f := newTestFailover(t, primary, fallback)

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	_, err := f.Reserve(context.Background(), "sender-1", now, testLimits)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)

	_, err = f.Peek(context.Background(), "sender-1", now)
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestFailover_AdmissionRejectIsNotBackendFailure(t *testing.T) {
	primary := newFlakyStore("redis")
	fallback := newFlakyStore("sqlite")
	f := newTestFailover(t, primary, fallback)

	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	limits := domain.Limits{MaxPerHour: 1, MaxPerDay: 20}

	_, err := f.Reserve(ctx, "sender-1", now, limits)
	require.NoError(t, err)

	// Rejeições de admissão voltam do primário; nada cai para a reserva.
	for i := 0; i < 5; i++ {
		_, err := f.Reserve(ctx, "sender-1", now.Add(time.Second), limits)
		require.ErrorIs(t, err, domain.ErrHourlyLimitExceeded)
	}
	assert.Equal(t, 0, fallback.reserveCalls)

	res, err := f.Reserve(ctx, "sender-2", now, limits)
	require.NoError(t, err)
	assert.Equal(t, "redis", res.Backend)
}

func TestFailover_ReleaseRoutesToOriginBackend(t *testing.T) {
	primary := newFlakyStore("redis")
	primary.failing = true
	fallback := newFlakyStore("sqlite")
	f := newTestFailover(t, primary, fallback)

	ctx := context.Background()
	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

	res, err := f.Reserve(ctx, "sender-1", now, testLimits)
	require.NoError(t, err)
	require.Equal(t, "sqlite", res.Backend)

	// O primário volta, mas a compensação tem que ir onde a reserva foi feita.
	primary.failing = false
	require.NoError(t, f.Release(ctx, "sender-1", res))

	counts, err := fallback.Peek(ctx, "sender-1", now)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Hour)
	assert.Equal(t, 0, counts.Day)
}

func TestFailover_UnknownReservationBackend(t *testing.T) {
	f := newTestFailover(t, newFlakyStore("redis"), newFlakyStore("sqlite"))

	err := f.Release(context.Background(), "sender-1", ports.Reservation{Backend: "memcached"})
	assert.Error(t, err)
}
