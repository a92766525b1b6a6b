// Package sqlite disponibiliza o armazenamento durável da aplicação:
// registros de menfess, bans, estatísticas de hashtag e os contadores de
// reserva do rate limit.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	slogGorm "github.com/orandin/slog-gorm"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
	"github.com/VanZoel112/vzoelfess/internal/core/ports"
)

type menfessRecord struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	Sender       string `gorm:"index"`
	Body         string
	Hashtags     string
	Status       string    `gorm:"index"`
	CreatedAt    time.Time `gorm:"index"`
	DecidedAt    *time.Time
	DecidedBy    string
	RejectReason string
	ChannelRef   string
	PublishedAt  *time.Time
}

func (menfessRecord) TableName() string { return "menfess" }

type banRecord struct {
	Sender   string `gorm:"primaryKey"`
	Reason   string
	BannedBy string
	BannedAt time.Time
}

func (banRecord) TableName() string { return "bans" }

type hashtagStatRecord struct {
	Tag         string `gorm:"primaryKey"`
	UsageCount  int64
	FirstUsedAt time.Time
	LastUsedAt  time.Time
}

func (hashtagStatRecord) TableName() string { return "hashtag_stats" }

type rateRecord struct {
	Sender     string `gorm:"primaryKey"`
	Day        string
	DayCount   int
	HourBucket string
	HourCount  int
	LastAt     time.Time
}

func (rateRecord) TableName() string { return "rate_limits" }

// Store implementa os ports de persistência sobre uma base SQLite via gorm.
type Store struct {
	db *gorm.DB
}

var (
	_ ports.MenfessStore     = (*Store)(nil)
	_ ports.BanStore         = (*Store)(nil)
	_ ports.HashtagStore     = (*Store)(nil)
	_ ports.SenderStatsStore = (*Store)(nil)
	_ ports.CounterStore     = (*Store)(nil)
)

// Open abre (ou cria) a base no caminho informado, em modo WAL e com uma
// única conexão, e aplica as migrações.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: slogGorm.New(slogGorm.WithLogger(logger)),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Exec("PRAGMA journal_mode=WAL;").Error; err != nil {
		return nil, fmt.Errorf("set journal_mode=WAL: %w", err)
	}
	if err := db.Exec("PRAGMA synchronous=normal;").Error; err != nil {
		return nil, fmt.Errorf("set synchronous=normal: %w", err)
	}

	if err := db.AutoMigrate(&menfessRecord{}, &banRecord{}, &hashtagStatRecord{}, &rateRecord{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}

	rawDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("raw DB from gorm: %w", err)
	}
	rawDB.SetMaxOpenConns(1)

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	rawDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return rawDB.Close()
}

// Create insere a menfess e preenche o id monotônico alocado.
func (s *Store) Create(ctx context.Context, m *domain.Menfess) error {
	rec, err := toRecord(m)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("insert menfess: %w", err)
	}
	m.ID = rec.ID
	return nil
}

func (s *Store) Get(ctx context.Context, id int64) (*domain.Menfess, error) {
	var rec menfessRecord
	err := s.db.WithContext(ctx).First(&rec, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load menfess: %w", err)
	}
	return fromRecord(&rec)
}

// Pending lista as menfess em revisão, mais antigas primeiro.
func (s *Store) Pending(ctx context.Context) ([]domain.Menfess, error) {
	var recs []menfessRecord
	err := s.db.WithContext(ctx).
		Where("status = ?", string(domain.StatusPending)).
		Order("created_at ASC, id ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("load pending menfess: %w", err)
	}

	out := make([]domain.Menfess, 0, len(recs))
	for i := range recs {
		m, err := fromRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

// Decide aplica a transição condicional Pending -> to. A condição no UPDATE
// garante um único vencedor mesmo com admins em processos distintos.
func (s *Store) Decide(ctx context.Context, id int64, to domain.Status, adminID, reason string, at time.Time) (*domain.Menfess, error) {
	res := s.db.WithContext(ctx).Model(&menfessRecord{}).
		Where("id = ? AND status = ?", id, string(domain.StatusPending)).
		Updates(map[string]any{
			"status":        string(to),
			"decided_at":    at,
			"decided_by":    adminID,
			"reject_reason": reason,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("decide menfess: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		current, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.Status == domain.StatusPublished {
			return nil, domain.ErrInvalidTransition
		}
		return nil, domain.ErrAlreadyDecided
	}

	return s.Get(ctx, id)
}

// MarkPublished muda Approved -> Published e atualiza as estatísticas de
// hashtag na mesma transação, de modo que nenhum leitor observe o estado
// Published sem o índice correspondente.
func (s *Store) MarkPublished(ctx context.Context, id int64, channelRef string, at time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rec menfessRecord
		err := tx.First(&rec, "id = ?", id).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("load menfess: %w", err)
		}

		switch domain.Status(rec.Status) {
		case domain.StatusPublished:
			return nil
		case domain.StatusApproved:
		default:
			return domain.ErrInvalidTransition
		}

		res := tx.Model(&menfessRecord{}).
			Where("id = ? AND status = ?", id, string(domain.StatusApproved)).
			Updates(map[string]any{
				"status":       string(domain.StatusPublished),
				"channel_ref":  channelRef,
				"published_at": at,
			})
		if res.Error != nil {
			return fmt.Errorf("mark published: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}

		var tags []string
		if err := json.Unmarshal([]byte(rec.Hashtags), &tags); err != nil {
			return fmt.Errorf("decode hashtags: %w", err)
		}
		for _, tag := range tags {
			err := tx.Clauses(clause.OnConflict{
				Columns: []clause.Column{{Name: "tag"}},
				DoUpdates: clause.Assignments(map[string]any{
					"usage_count":  gorm.Expr("usage_count + 1"),
					"last_used_at": at,
				}),
			}).Create(&hashtagStatRecord{
				Tag:         tag,
				UsageCount:  1,
				FirstUsedAt: at,
				LastUsedAt:  at,
			}).Error
			if err != nil {
				return fmt.Errorf("update hashtag stat %q: %w", tag, err)
			}
		}
		return nil
	})
}

// Ban insere ou sobrescreve a entrada do remetente.
func (s *Store) Ban(ctx context.Context, entry domain.BanEntry) error {
	rec := banRecord{
		Sender:   string(entry.Sender),
		Reason:   entry.Reason,
		BannedBy: entry.BannedBy,
		BannedAt: entry.BannedAt,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "sender"}},
		UpdateAll: true,
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("upsert ban: %w", err)
	}
	return nil
}

// Unban remove a entrada; remover quem não existe não é erro.
func (s *Store) Unban(ctx context.Context, sender domain.SenderID) error {
	err := s.db.WithContext(ctx).Delete(&banRecord{}, "sender = ?", string(sender)).Error
	if err != nil {
		return fmt.Errorf("delete ban: %w", err)
	}
	return nil
}

// Lookup retorna a entrada de ban do remetente, ou nil se não banido.
func (s *Store) Lookup(ctx context.Context, sender domain.SenderID) (*domain.BanEntry, error) {
	var rec banRecord
	err := s.db.WithContext(ctx).First(&rec, "sender = ?", string(sender)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ban: %w", err)
	}
	return &domain.BanEntry{
		Sender:   domain.SenderID(rec.Sender),
		Reason:   rec.Reason,
		BannedBy: rec.BannedBy,
		BannedAt: rec.BannedAt,
	}, nil
}

// TopN ordena por uso, desempate por uso mais recente e por fim ordem
// lexical da tag, para resultado determinístico.
func (s *Store) TopN(ctx context.Context, n int) ([]domain.HashtagStat, error) {
	var recs []hashtagStatRecord
	err := s.db.WithContext(ctx).
		Order("usage_count DESC, last_used_at DESC, tag ASC").
		Limit(n).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("load hashtag stats: %w", err)
	}

	out := make([]domain.HashtagStat, 0, len(recs))
	for _, rec := range recs {
		out = append(out, domain.HashtagStat{
			Tag:         rec.Tag,
			UsageCount:  rec.UsageCount,
			FirstUsedAt: rec.FirstUsedAt,
			LastUsedAt:  rec.LastUsedAt,
		})
	}
	return out, nil
}

// SenderTotals agrega os totais históricos do remetente.
func (s *Store) SenderTotals(ctx context.Context, sender domain.SenderID) (submitted, approved, rejected int64, err error) {
	base := s.db.WithContext(ctx).Model(&menfessRecord{}).Where("sender = ?", string(sender))

	if err = base.Session(&gorm.Session{}).Count(&submitted).Error; err != nil {
		return 0, 0, 0, fmt.Errorf("count submitted: %w", err)
	}
	err = base.Session(&gorm.Session{}).
		Where("status IN ?", []string{string(domain.StatusApproved), string(domain.StatusPublished)}).
		Count(&approved).Error
	if err != nil {
		return 0, 0, 0, fmt.Errorf("count approved: %w", err)
	}
	err = base.Session(&gorm.Session{}).
		Where("status = ?", string(domain.StatusRejected)).
		Count(&rejected).Error
	if err != nil {
		return 0, 0, 0, fmt.Errorf("count rejected: %w", err)
	}
	return submitted, approved, rejected, nil
}

func toRecord(m *domain.Menfess) (*menfessRecord, error) {
	tags, err := json.Marshal(m.Hashtags)
	if err != nil {
		return nil, fmt.Errorf("encode hashtags: %w", err)
	}
	return &menfessRecord{
		ID:           m.ID,
		Sender:       string(m.Sender),
		Body:         m.Body,
		Hashtags:     string(tags),
		Status:       string(m.Status),
		CreatedAt:    m.CreatedAt,
		DecidedAt:    m.DecidedAt,
		DecidedBy:    m.DecidedBy,
		RejectReason: m.RejectReason,
		ChannelRef:   m.ChannelRef,
		PublishedAt:  m.PublishedAt,
	}, nil
}

func fromRecord(rec *menfessRecord) (*domain.Menfess, error) {
	var tags []string
	if rec.Hashtags != "" {
		if err := json.Unmarshal([]byte(rec.Hashtags), &tags); err != nil {
			return nil, fmt.Errorf("decode hashtags: %w", err)
		}
	}
	return &domain.Menfess{
		ID:           rec.ID,
		Sender:       domain.SenderID(rec.Sender),
		Body:         rec.Body,
		Hashtags:     tags,
		Status:       domain.Status(rec.Status),
		CreatedAt:    rec.CreatedAt,
		DecidedAt:    rec.DecidedAt,
		DecidedBy:    rec.DecidedBy,
		RejectReason: rec.RejectReason,
		ChannelRef:   rec.ChannelRef,
		PublishedAt:  rec.PublishedAt,
	}, nil
}
