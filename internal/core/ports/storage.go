// Package ports define contratos que conectam o domínio a implementações externas.
package ports

import (
	"context"
	"time"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
)

// Reservation é o recibo de um Reserve bem-sucedido. Token e Backend
// permitem compensar (Release) no mesmo backend que atendeu a decisão.
type Reservation struct {
	Counts  domain.Counts
	Token   string
	Backend string
}

// CounterStore mantém os contadores de rate limit por remetente. Reserve é a
// operação atômica de read-modify-write: checa cooldown e limites e, se
// admitido, incrementa hora/dia e lastSubmissionAt em uma única ida ao
// backend. Rejeições retornam os erros sentinela do domínio (ErrCooldown,
// ErrHourlyLimitExceeded, ErrDailyLimitExceeded) com os contadores atuais.
type CounterStore interface {
	Reserve(ctx context.Context, sender domain.SenderID, now time.Time, limits domain.Limits) (Reservation, error)
	Release(ctx context.Context, sender domain.SenderID, res Reservation) error
	Peek(ctx context.Context, sender domain.SenderID, now time.Time) (domain.Counts, error)
	Name() string
}

// MenfessStore persiste registros de menfess. Decide e MarkPublished são
// atualizações condicionais no estado corrente (vencedor único em corrida).
type MenfessStore interface {
	Create(ctx context.Context, m *domain.Menfess) error
	Get(ctx context.Context, id int64) (*domain.Menfess, error)
	Pending(ctx context.Context) ([]domain.Menfess, error)
	// Decide muda Status de StatusPending para to. Se o registro já saiu de
	// Pending, retorna ErrAlreadyDecided ou ErrInvalidTransition conforme o
	// estado encontrado.
	Decide(ctx context.Context, id int64, to domain.Status, adminID, reason string, at time.Time) (*domain.Menfess, error)
	// MarkPublished muda Status de StatusApproved para StatusPublished e
	// atualiza as estatísticas de hashtag na mesma transação.
	MarkPublished(ctx context.Context, id int64, channelRef string, at time.Time) error
}

// BanStore é o registro durável de remetentes banidos. Lookup retorna nil
// quando o remetente não está banido.
type BanStore interface {
	Ban(ctx context.Context, entry domain.BanEntry) error
	Unban(ctx context.Context, sender domain.SenderID) error
	Lookup(ctx context.Context, sender domain.SenderID) (*domain.BanEntry, error)
}

// HashtagStore responde consultas agregadas de hashtags publicadas.
type HashtagStore interface {
	TopN(ctx context.Context, n int) ([]domain.HashtagStat, error)
}

// SenderStatsStore acumula totais por remetente.
type SenderStatsStore interface {
	SenderTotals(ctx context.Context, sender domain.SenderID) (submitted, approved, rejected int64, err error)
}

// Publisher é o colaborador externo que envia a menfess aprovada ao canal e
// retorna a referência da mensagem publicada. Deve ser idempotente por id.
type Publisher interface {
	Publish(ctx context.Context, m *domain.Menfess) (string, error)
}
