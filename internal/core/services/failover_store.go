package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
	"github.com/VanZoel112/vzoelfess/internal/core/ports"
)

// BackendState é o estado de saúde de um backend de contadores.
type BackendState int

const (
	BackendHealthy BackendState = iota
	BackendProbing
	BackendDown
)

func (s BackendState) String() string {
	switch s {
	case BackendHealthy:
		return "healthy"
	case BackendProbing:
		return "probing"
	case BackendDown:
		return "down"
	default:
		return "unknown"
	}
}

// FailoverConfig parametriza a máquina de estados de saúde por backend.
type FailoverConfig struct {
	// FailureThreshold é o número de falhas consecutivas que derruba um
	// backend saudável.
	FailureThreshold int
	// RetryAfter é o período que um backend derrubado espera antes de
	// receber uma sondagem half-open.
	RetryAfter time.Duration
	// ProbeTimeout limita a duração de uma chamada de sondagem, para que a
	// submissão em curso pague no máximo essa latência extra.
	ProbeTimeout time.Duration
}

type trackedBackend struct {
	store ports.CounterStore

	mu       sync.Mutex
	state    BackendState
	failures int
	retryAt  time.Time
}

// acquire decide se vale tentar este backend agora. Retorna se a chamada é
// uma sondagem (e portanto deve ser limitada por ProbeTimeout).
func (b *trackedBackend) acquire(now time.Time) (probing, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BackendHealthy:
		return false, true
	case BackendProbing:
		return true, true
	default:
		if now.Before(b.retryAt) {
			return false, false
		}
		b.state = BackendProbing
		return true, true
	}
}

func (b *trackedBackend) succeed() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BackendHealthy
	b.failures = 0
	observeBackendState(b.store.Name(), BackendHealthy)
}

func (b *trackedBackend) fail(now time.Time, cfg FailoverConfig) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	if b.state == BackendProbing || b.failures >= cfg.FailureThreshold {
		b.state = BackendDown
		b.retryAt = now.Add(cfg.RetryAfter)
	}
	observeBackendState(b.store.Name(), b.state)
}

// FailoverCounterStore encadeia um backend volátil rápido e um durável de
// reserva. Cada decisão vai inteira para exatamente um backend, escolhido
// pelo estado de saúde no momento da chamada; compensações voltam ao backend
// que atendeu a reserva original.
type FailoverCounterStore struct {
	backends []*trackedBackend
	cfg      FailoverConfig
	logger   *slog.Logger
}

var _ ports.CounterStore = (*FailoverCounterStore)(nil)

// NewFailoverCounterStore cria o store composto. primary é tentado primeiro
// enquanto saudável; fallback assume quando primary está derrubado.
func NewFailoverCounterStore(primary, fallback ports.CounterStore, cfg FailoverConfig, logger *slog.Logger) (*FailoverCounterStore, error) {
	if primary == nil || fallback == nil {
		return nil, fmt.Errorf("primary and fallback stores are required")
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 3
	}
	if cfg.RetryAfter <= 0 {
		cfg.RetryAfter = 30 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 500 * time.Millisecond
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &FailoverCounterStore{
		backends: []*trackedBackend{{store: primary}, {store: fallback}},
		cfg:      cfg,
		logger:   logger,
	}, nil
}

func (f *FailoverCounterStore) Name() string { return "failover" }

// Reserve delega ao primeiro backend disponível. Rejeições de admissão são
// decisões válidas e não contam como falha de backend.
func (f *FailoverCounterStore) Reserve(ctx context.Context, sender domain.SenderID, now time.Time, limits domain.Limits) (ports.Reservation, error) {
	var lastErr error
	for _, b := range f.backends {
		res, tried, err := f.call(ctx, b, now, func(cctx context.Context) (ports.Reservation, error) {
			return b.store.Reserve(cctx, sender, now, limits)
		})
		if !tried {
			continue
		}
		if err != nil && !domain.IsAdmissionReject(err) {
			lastErr = err
			continue
		}
		return res, err
	}
	if lastErr != nil {
		return ports.Reservation{}, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, lastErr)
	}
	return ports.Reservation{}, domain.ErrBackendUnavailable
}

// Peek consulta o primeiro backend disponível.
func (f *FailoverCounterStore) Peek(ctx context.Context, sender domain.SenderID, now time.Time) (domain.Counts, error) {
	var lastErr error
	for _, b := range f.backends {
		res, tried, err := f.call(ctx, b, now, func(cctx context.Context) (ports.Reservation, error) {
			counts, perr := b.store.Peek(cctx, sender, now)
			return ports.Reservation{Counts: counts}, perr
		})
		if !tried {
			continue
		}
		if err != nil {
			lastErr = err
			continue
		}
		return res.Counts, nil
	}
	if lastErr != nil {
		return domain.Counts{}, fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, lastErr)
	}
	return domain.Counts{}, domain.ErrBackendUnavailable
}

// Release compensa no backend que atendeu a reserva, não no favorito atual:
// contadores de uma decisão nunca se repartem entre backends.
func (f *FailoverCounterStore) Release(ctx context.Context, sender domain.SenderID, res ports.Reservation) error {
	for _, b := range f.backends {
		if b.store.Name() == res.Backend {
			return b.store.Release(ctx, sender, res)
		}
	}
	return fmt.Errorf("unknown reservation backend %q", res.Backend)
}

// call executa op contra um backend respeitando o estado de saúde. tried é
// falso quando o backend foi pulado sem chamada.
func (f *FailoverCounterStore) call(ctx context.Context, b *trackedBackend, now time.Time, op func(context.Context) (ports.Reservation, error)) (ports.Reservation, bool, error) {
	probing, ok := b.acquire(now)
	if !ok {
		return ports.Reservation{}, false, nil
	}

	cctx := ctx
	if probing {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(ctx, f.cfg.ProbeTimeout)
		defer cancel()
	}

	res, err := op(cctx)
	if err != nil && !domain.IsAdmissionReject(err) {
		b.fail(now, f.cfg)
		backendFailures.WithLabelValues(b.store.Name()).Inc()
		f.logger.Warn("rate limit backend failed",
			"backend", b.store.Name(), "probing", probing, "err", err)
		return ports.Reservation{}, true, err
	}

	b.succeed()
	return res, true, err
}
