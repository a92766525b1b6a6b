package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
	"github.com/VanZoel112/vzoelfess/internal/core/ports"
)

// ModerationConfig parametriza a publicação após aprovação.
type ModerationConfig struct {
	// PublishAttempts limita as tentativas de publicação por chamada de
	// aprovação. A menfess permanece Approved e re-publicável se todas
	// falharem.
	PublishAttempts int
	// PublishBackoff é a espera base entre tentativas, multiplicada pelo
	// número da tentativa.
	PublishBackoff time.Duration
}

// ModerationService aplica decisões de admin sobre menfess pendentes e
// administra o registro de bans. A transição para fora de Pending é uma
// atualização condicional no store: exatamente um admin vence uma corrida.
type ModerationService struct {
	menfess   ports.MenfessStore
	tags      ports.HashtagStore
	bans      ports.BanStore
	publisher ports.Publisher
	cfg       ModerationConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewModerationService cria o motor de moderação.
func NewModerationService(menfess ports.MenfessStore, tags ports.HashtagStore, bans ports.BanStore, publisher ports.Publisher, cfg ModerationConfig, logger *slog.Logger) (*ModerationService, error) {
	if menfess == nil {
		return nil, fmt.Errorf("menfess store is required")
	}
	if tags == nil {
		return nil, fmt.Errorf("hashtag store is required")
	}
	if bans == nil {
		return nil, fmt.Errorf("ban store is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if cfg.PublishAttempts <= 0 {
		cfg.PublishAttempts = 3
	}
	if cfg.PublishBackoff <= 0 {
		cfg.PublishBackoff = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ModerationService{
		menfess:   menfess,
		tags:      tags,
		bans:      bans,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}, nil
}

// Approve move a menfess de Pending para Approved e dispara a publicação na
// sequência. Falha de publicação deixa o registro em Approved, re-publicável
// via RetryPublish, e retorna ErrPublishFailed.
func (s *ModerationService) Approve(ctx context.Context, id int64, adminID string) error {
	m, err := s.menfess.Decide(ctx, id, domain.StatusApproved, adminID, "", s.now())
	if err != nil {
		return err
	}
	moderationDecisionsTotal.WithLabelValues("approve").Inc()
	s.logger.Info("menfess approved", "menfess_id", id, "admin", adminID)

	return s.publish(ctx, m)
}

// Reject move a menfess de Pending para Rejected. A razão é opcional.
func (s *ModerationService) Reject(ctx context.Context, id int64, adminID, reason string) error {
	if _, err := s.menfess.Decide(ctx, id, domain.StatusRejected, adminID, reason, s.now()); err != nil {
		return err
	}
	moderationDecisionsTotal.WithLabelValues("reject").Inc()
	s.logger.Info("menfess rejected", "menfess_id", id, "admin", adminID, "reason", reason)
	return nil
}

// RetryPublish re-executa a publicação de uma menfess presa em Approved.
// Publicar o que já está Published é um no-op.
func (s *ModerationService) RetryPublish(ctx context.Context, id int64) error {
	m, err := s.menfess.Get(ctx, id)
	if err != nil {
		return err
	}
	switch m.Status {
	case domain.StatusPublished:
		return nil
	case domain.StatusApproved:
		return s.publish(ctx, m)
	default:
		return domain.ErrInvalidTransition
	}
}

func (s *ModerationService) publish(ctx context.Context, m *domain.Menfess) error {
	var lastErr error
	for attempt := 1; attempt <= s.cfg.PublishAttempts; attempt++ {
		ref, err := s.publisher.Publish(ctx, m)
		if err == nil {
			if err := s.menfess.MarkPublished(ctx, m.ID, ref, s.now()); err != nil {
				// O canal já tem a mensagem; o registro fica em Approved e
				// um RetryPublish posterior reaproveita a idempotência do
				// publisher.
				publishResultsTotal.WithLabelValues("record_failed").Inc()
				return fmt.Errorf("record publication: %w", err)
			}
			publishResultsTotal.WithLabelValues("published").Inc()
			s.logger.Info("menfess published", "menfess_id", m.ID, "channel_ref", ref)
			return nil
		}

		lastErr = err
		publishResultsTotal.WithLabelValues("attempt_failed").Inc()
		s.logger.Warn("publish attempt failed",
			"menfess_id", m.ID, "attempt", attempt, "err", err)

		if attempt < s.cfg.PublishAttempts {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", domain.ErrPublishFailed, ctx.Err())
			case <-time.After(s.cfg.PublishBackoff * time.Duration(attempt)):
			}
		}
	}
	return fmt.Errorf("%w after %d attempts: %v", domain.ErrPublishFailed, s.cfg.PublishAttempts, lastErr)
}

// Ban registra o remetente no registro durável. Banir quem já está banido
// atualiza razão, autor e data.
func (s *ModerationService) Ban(ctx context.Context, sender domain.SenderID, reason, adminID string) error {
	err := s.bans.Ban(ctx, domain.BanEntry{
		Sender:   sender,
		Reason:   reason,
		BannedBy: adminID,
		BannedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("ban: %w", err)
	}
	moderationDecisionsTotal.WithLabelValues("ban").Inc()
	s.logger.Info("sender banned", "sender", string(sender), "admin", adminID, "reason", reason)
	return nil
}

// Unban remove o remetente do registro; remover quem não está banido é um
// no-op.
func (s *ModerationService) Unban(ctx context.Context, sender domain.SenderID) error {
	if err := s.bans.Unban(ctx, sender); err != nil {
		return fmt.Errorf("unban: %w", err)
	}
	moderationDecisionsTotal.WithLabelValues("unban").Inc()
	s.logger.Info("sender unbanned", "sender", string(sender))
	return nil
}

// Pending lista as menfess aguardando revisão, mais antigas primeiro.
func (s *ModerationService) Pending(ctx context.Context) ([]domain.Menfess, error) {
	return s.menfess.Pending(ctx)
}

// TopHashtags retorna as hashtags mais usadas em menfess publicadas.
func (s *ModerationService) TopHashtags(ctx context.Context, n int) ([]domain.HashtagStat, error) {
	if n <= 0 {
		n = 10
	}
	return s.tags.TopN(ctx, n)
}
