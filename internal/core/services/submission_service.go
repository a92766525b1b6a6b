package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
	"github.com/VanZoel112/vzoelfess/internal/core/ports"
)

// SubmissionService orquestra a admissão de uma submissão: ban, rate limit e
// validação de hashtags, nessa ordem fixa. O primeiro cheque reprovado
// decide o erro retornado e nada é mutado depois dele; a reserva de
// contadores é compensada se validação ou criação falharem na sequência.
type SubmissionService struct {
	bans    ports.BanStore
	limiter ports.RateLimiter
	menfess ports.MenfessStore
	stats   ports.SenderStatsStore
	limits  domain.Limits
	logger  *slog.Logger
	now     func() time.Time
}

// NewSubmissionService cria o pipeline de submissão. stats é opcional.
func NewSubmissionService(bans ports.BanStore, limiter ports.RateLimiter, menfess ports.MenfessStore, stats ports.SenderStatsStore, limits domain.Limits, logger *slog.Logger) (*SubmissionService, error) {
	if bans == nil {
		return nil, fmt.Errorf("ban store is required")
	}
	if limiter == nil {
		return nil, fmt.Errorf("rate limiter is required")
	}
	if menfess == nil {
		return nil, fmt.Errorf("menfess store is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &SubmissionService{
		bans:    bans,
		limiter: limiter,
		menfess: menfess,
		stats:   stats,
		limits:  limits,
		logger:  logger,
		now:     time.Now,
	}, nil
}

// Submit admite ou rejeita uma submissão e, quando admitida, cria a menfess
// em estado Pending e retorna seu id.
func (s *SubmissionService) Submit(ctx context.Context, sender domain.SenderID, rawText string) (id int64, err error) {
	defer func() {
		submissionsTotal.WithLabelValues(submissionOutcome(err)).Inc()
	}()

	entry, err := s.bans.Lookup(ctx, sender)
	if err != nil {
		return 0, fmt.Errorf("ban lookup: %w", err)
	}
	if entry != nil {
		return 0, domain.ErrBanned
	}

	res, err := s.limiter.Reserve(ctx, sender)
	if err != nil {
		return 0, err
	}

	sub, err := domain.ParseSubmission(rawText)
	if err != nil {
		s.limiter.Release(ctx, sender, res)
		return 0, err
	}

	m := &domain.Menfess{
		Sender:    sender,
		Body:      sub.Body,
		Hashtags:  sub.Hashtags,
		Status:    domain.StatusPending,
		CreatedAt: s.now(),
	}
	if err := s.menfess.Create(ctx, m); err != nil {
		s.limiter.Release(ctx, sender, res)
		return 0, fmt.Errorf("create menfess: %w", err)
	}

	s.logger.Info("menfess queued for review",
		"menfess_id", m.ID, "hashtags", len(m.Hashtags),
		"hour", res.Counts.Hour, "day", res.Counts.Day)
	return m.ID, nil
}

// Status responde a consulta de status de um remetente: contadores, cooldown
// restante, situação de ban e totais históricos.
func (s *SubmissionService) Status(ctx context.Context, sender domain.SenderID) (domain.SenderStatus, error) {
	now := s.now()

	counts, err := s.limiter.Status(ctx, sender, now)
	if err != nil {
		return domain.SenderStatus{}, fmt.Errorf("rate limit status: %w", err)
	}

	entry, err := s.bans.Lookup(ctx, sender)
	if err != nil {
		return domain.SenderStatus{}, fmt.Errorf("ban lookup: %w", err)
	}

	status := domain.SenderStatus{
		HourCount:         counts.Hour,
		DayCount:          counts.Day,
		CooldownRemaining: counts.CooldownRemaining(now, s.limits.Cooldown),
	}
	if entry != nil {
		status.Banned = true
		status.BanReason = entry.Reason
	}

	if s.stats != nil {
		submitted, approved, rejected, err := s.stats.SenderTotals(ctx, sender)
		if err != nil {
			return domain.SenderStatus{}, fmt.Errorf("sender totals: %w", err)
		}
		status.TotalSubmitted = submitted
		status.TotalApproved = approved
		status.TotalRejected = rejected
	}

	return status, nil
}
