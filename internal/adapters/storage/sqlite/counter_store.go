package sqlite

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
	"github.com/VanZoel112/vzoelfess/internal/core/ports"
)

// Backend durável de contadores usado quando o Redis está fora. Usa baldes
// fixos: dia UTC para o contador diário e hora cheia UTC para o horário —
// granularidade mais grossa que a janela deslizante do backend volátil, uma
// aproximação aceita enquanto degradado.

const backendName = "sqlite"

func (s *Store) Name() string { return backendName }

// Reserve faz o read-modify-write em uma transação: com a base em modo de
// conexão única, decisões concorrentes do mesmo remetente serializam aqui.
func (s *Store) Reserve(ctx context.Context, sender domain.SenderID, now time.Time, limits domain.Limits) (ports.Reservation, error) {
	var out ports.Reservation

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := loadRateRecord(tx, sender, now)
		if err != nil {
			return err
		}

		out = ports.Reservation{
			Counts:  domain.Counts{Hour: rec.HourCount, Day: rec.DayCount, LastAt: rec.LastAt},
			Backend: backendName,
		}

		if !rec.LastAt.IsZero() && now.Sub(rec.LastAt) < limits.Cooldown {
			return domain.ErrCooldown
		}
		if rec.HourCount >= limits.MaxPerHour {
			return domain.ErrHourlyLimitExceeded
		}
		if rec.DayCount >= limits.MaxPerDay {
			return domain.ErrDailyLimitExceeded
		}

		prevLast := rec.LastAt
		rec.HourCount++
		rec.DayCount++
		rec.LastAt = now

		err = tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "sender"}},
			UpdateAll: true,
		}).Create(rec).Error
		if err != nil {
			return fmt.Errorf("save rate record: %w", err)
		}

		out.Counts = domain.Counts{Hour: rec.HourCount, Day: rec.DayCount, LastAt: now}
		out.Token = encodeToken(now, prevLast)
		return nil
	})
	if err != nil {
		if domain.IsAdmissionReject(err) {
			return out, err
		}
		return ports.Reservation{}, fmt.Errorf("sqlite reserve: %w", err)
	}
	return out, nil
}

// Release desfaz uma reserva quando o restante do pipeline falhou.
func (s *Store) Release(ctx context.Context, sender domain.SenderID, res ports.Reservation) error {
	reservedAt, prevLast, err := decodeToken(res.Token)
	if err != nil {
		return err
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec rateRecord
		err := tx.First(&rec, "sender = ?", string(sender)).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("load rate record: %w", err)
		}

		if rec.HourBucket == hourBucket(reservedAt) && rec.HourCount > 0 {
			rec.HourCount--
		}
		if rec.Day == dayBucket(reservedAt) && rec.DayCount > 0 {
			rec.DayCount--
		}
		if rec.LastAt.Equal(reservedAt) {
			rec.LastAt = prevLast
		}

		if err := tx.Save(&rec).Error; err != nil {
			return fmt.Errorf("save rate record: %w", err)
		}
		return nil
	})
}

// Peek retorna os contadores correntes sem mutação.
func (s *Store) Peek(ctx context.Context, sender domain.SenderID, now time.Time) (domain.Counts, error) {
	var counts domain.Counts
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := loadRateRecord(tx, sender, now)
		if err != nil {
			return err
		}
		counts = domain.Counts{Hour: rec.HourCount, Day: rec.DayCount, LastAt: rec.LastAt}
		return nil
	})
	if err != nil {
		return domain.Counts{}, fmt.Errorf("sqlite peek: %w", err)
	}
	return counts, nil
}

// loadRateRecord carrega o registro do remetente já normalizado para os
// baldes de now; contadores de baldes antigos são zerados na leitura.
func loadRateRecord(tx *gorm.DB, sender domain.SenderID, now time.Time) (*rateRecord, error) {
	var rec rateRecord
	err := tx.First(&rec, "sender = ?", string(sender)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		rec = rateRecord{Sender: string(sender)}
	} else if err != nil {
		return nil, fmt.Errorf("load rate record: %w", err)
	}

	if day := dayBucket(now); rec.Day != day {
		rec.Day = day
		rec.DayCount = 0
	}
	if hour := hourBucket(now); rec.HourBucket != hour {
		rec.HourBucket = hour
		rec.HourCount = 0
	}
	return &rec, nil
}

func dayBucket(t time.Time) string { return t.UTC().Format(time.DateOnly) }

func hourBucket(t time.Time) string { return t.UTC().Format("2006-01-02T15") }

// encodeToken serializa o recibo de uma reserva: instante reservado e o
// lastSubmissionAt anterior, para restauração na compensação.
func encodeToken(reservedAt, prevLast time.Time) string {
	var prevNano int64
	if !prevLast.IsZero() {
		prevNano = prevLast.UnixNano()
	}
	return strconv.FormatInt(reservedAt.UnixNano(), 10) + "|" + strconv.FormatInt(prevNano, 10)
}

func decodeToken(token string) (reservedAt, prevLast time.Time, err error) {
	left, right, ok := strings.Cut(token, "|")
	if !ok {
		return time.Time{}, time.Time{}, fmt.Errorf("malformed reservation token %q", token)
	}
	reservedNano, err := strconv.ParseInt(left, 10, 64)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("malformed reservation token %q", token)
	}
	prevNano, err := strconv.ParseInt(right, 10, 64)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("malformed reservation token %q", token)
	}
	reservedAt = time.Unix(0, reservedNano)
	if prevNano > 0 {
		prevLast = time.Unix(0, prevNano)
	}
	return reservedAt, prevLast, nil
}
