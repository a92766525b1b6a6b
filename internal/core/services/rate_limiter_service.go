package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
	"github.com/VanZoel112/vzoelfess/internal/core/ports"
)

// RateLimiterService implementa a decisão de admissão por remetente: janela
// deslizante de uma hora, balde fixo de dia (UTC) e cooldown entre envios.
// Toda a lógica de contagem vive no CounterStore; aqui ficam validação de
// configuração, relógio e observabilidade.
type RateLimiterService struct {
	counters ports.CounterStore
	limits   domain.Limits
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.RateLimiter = (*RateLimiterService)(nil)

// NewRateLimiterService cria uma nova instância do serviço.
func NewRateLimiterService(counters ports.CounterStore, limits domain.Limits, logger *slog.Logger) (*RateLimiterService, error) {
	if counters == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	if limits.MaxPerHour <= 0 || limits.MaxPerDay <= 0 {
		return nil, fmt.Errorf("rate limits must have positive values")
	}
	if limits.Cooldown < 0 {
		return nil, fmt.Errorf("cooldown must not be negative")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &RateLimiterService{
		counters: counters,
		limits:   limits,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// Limits retorna os limites configurados.
func (s *RateLimiterService) Limits() domain.Limits {
	return s.limits
}

// Reserve checa cooldown e limites e incrementa os contadores do remetente
// em uma única operação atômica no backend escolhido. Rejeições retornam os
// erros sentinela do domínio.
func (s *RateLimiterService) Reserve(ctx context.Context, sender domain.SenderID) (ports.Reservation, error) {
	res, err := s.counters.Reserve(ctx, sender, s.now(), s.limits)
	if err != nil {
		if domain.IsRateLimited(err) {
			s.logger.Debug("submission rate limited",
				"sender", string(sender), "reason", err.Error(),
				"hour", res.Counts.Hour, "day", res.Counts.Day)
		}
		return res, err
	}
	return res, nil
}

// Release compensa uma reserva cujo restante do pipeline falhou. Falha de
// compensação é registrada, não propagada: o pior caso é um contador
// levemente conservador.
func (s *RateLimiterService) Release(ctx context.Context, sender domain.SenderID, res ports.Reservation) {
	if err := s.counters.Release(ctx, sender, res); err != nil {
		s.logger.Warn("rate limit release failed",
			"sender", string(sender), "backend", res.Backend, "err", err)
	}
}

// Status retorna os contadores correntes sem mutação.
func (s *RateLimiterService) Status(ctx context.Context, sender domain.SenderID, now time.Time) (domain.Counts, error) {
	return s.counters.Peek(ctx, sender, now)
}
