package ports

import (
	"context"
	"time"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
)

// RateLimiter decide se um remetente pode submeter agora. Reserve admite e
// incrementa em uma operação; Release compensa uma reserva cujo restante do
// pipeline falhou.
type RateLimiter interface {
	Reserve(ctx context.Context, sender domain.SenderID) (Reservation, error)
	Release(ctx context.Context, sender domain.SenderID, res Reservation)
	Status(ctx context.Context, sender domain.SenderID, now time.Time) (domain.Counts, error)
}
