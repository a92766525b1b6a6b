// Package memory traz implementações em memória dos ports de persistência,
// usadas em testes e desenvolvimento local.
package memory

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
	"github.com/VanZoel112/vzoelfess/internal/core/ports"
)

// CounterStore mantém contadores por remetente com janela deslizante real de
// uma hora e balde fixo de dia UTC, o mesmo esquema do backend Redis.
type CounterStore struct {
	BackendName string

	mu      sync.Mutex
	records map[domain.SenderID]*counterRecord
}

type counterRecord struct {
	hourEvents []time.Time
	day        string
	dayCount   int
	lastAt     time.Time
}

func NewCounterStore() *CounterStore {
	return &CounterStore{
		BackendName: "memory",
		records:     make(map[domain.SenderID]*counterRecord),
	}
}

var _ ports.CounterStore = (*CounterStore)(nil)

func (s *CounterStore) Name() string { return s.BackendName }

func (s *CounterStore) Reserve(_ context.Context, sender domain.SenderID, now time.Time, limits domain.Limits) (ports.Reservation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.record(sender, now)
	counts := domain.Counts{Hour: len(rec.hourEvents), Day: rec.dayCount, LastAt: rec.lastAt}
	res := ports.Reservation{Counts: counts, Backend: s.BackendName}

	if !rec.lastAt.IsZero() && now.Sub(rec.lastAt) < limits.Cooldown {
		return res, domain.ErrCooldown
	}
	if len(rec.hourEvents) >= limits.MaxPerHour {
		return res, domain.ErrHourlyLimitExceeded
	}
	if rec.dayCount >= limits.MaxPerDay {
		return res, domain.ErrDailyLimitExceeded
	}

	prevLast := rec.lastAt
	rec.hourEvents = append(rec.hourEvents, now)
	rec.dayCount++
	rec.lastAt = now

	var prevNano int64
	if !prevLast.IsZero() {
		prevNano = prevLast.UnixNano()
	}
	res.Counts = domain.Counts{Hour: len(rec.hourEvents), Day: rec.dayCount, LastAt: now}
	res.Token = strconv.FormatInt(now.UnixNano(), 10) + "|" + strconv.FormatInt(prevNano, 10)
	return res, nil
}

func (s *CounterStore) Release(_ context.Context, sender domain.SenderID, res ports.Reservation) error {
	left, right, ok := strings.Cut(res.Token, "|")
	if !ok {
		return nil
	}
	reservedNano, err := strconv.ParseInt(left, 10, 64)
	if err != nil {
		return nil
	}
	prevNano, _ := strconv.ParseInt(right, 10, 64)
	reservedAt := time.Unix(0, reservedNano)

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[sender]
	if !exists {
		return nil
	}
	for i, ev := range rec.hourEvents {
		if ev.Equal(reservedAt) {
			rec.hourEvents = append(rec.hourEvents[:i], rec.hourEvents[i+1:]...)
			if rec.dayCount > 0 {
				rec.dayCount--
			}
			break
		}
	}
	if rec.lastAt.Equal(reservedAt) {
		if prevNano > 0 {
			rec.lastAt = time.Unix(0, prevNano)
		} else {
			rec.lastAt = time.Time{}
		}
	}
	return nil
}

func (s *CounterStore) Peek(_ context.Context, sender domain.SenderID, now time.Time) (domain.Counts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.record(sender, now)
	return domain.Counts{Hour: len(rec.hourEvents), Day: rec.dayCount, LastAt: rec.lastAt}, nil
}

func (s *CounterStore) record(sender domain.SenderID, now time.Time) *counterRecord {
	rec, exists := s.records[sender]
	if !exists {
		rec = &counterRecord{}
		s.records[sender] = rec
	}

	cutoff := now.Add(-time.Hour)
	kept := rec.hourEvents[:0]
	for _, ev := range rec.hourEvents {
		if ev.After(cutoff) {
			kept = append(kept, ev)
		}
	}
	rec.hourEvents = kept

	if day := now.UTC().Format(time.DateOnly); rec.day != day {
		rec.day = day
		rec.dayCount = 0
	}
	return rec
}

// MenfessStore guarda menfess em memória com ids monotônicos e transições
// condicionais, espelhando a semântica do store durável.
type MenfessStore struct {
	mu      sync.Mutex
	nextID  int64
	records map[int64]*domain.Menfess
	tags    *HashtagStore
}

// NewMenfessStore cria o store; tags recebe as atualizações de publicação e
// pode ser compartilhado com consultas TopN.
func NewMenfessStore(tags *HashtagStore) *MenfessStore {
	if tags == nil {
		tags = NewHashtagStore()
	}
	return &MenfessStore{
		nextID:  1,
		records: make(map[int64]*domain.Menfess),
		tags:    tags,
	}
}

var _ ports.MenfessStore = (*MenfessStore)(nil)

func (s *MenfessStore) Create(_ context.Context, m *domain.Menfess) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = s.nextID
	s.nextID++
	clone := *m
	s.records[m.ID] = &clone
	return nil
}

func (s *MenfessStore) Get(_ context.Context, id int64) (*domain.Menfess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, exists := s.records[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *MenfessStore) Pending(_ context.Context) ([]domain.Menfess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Menfess
	for _, rec := range s.records {
		if rec.Status == domain.StatusPending {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *MenfessStore) Decide(_ context.Context, id int64, to domain.Status, adminID, reason string, at time.Time) (*domain.Menfess, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return nil, domain.ErrNotFound
	}
	if rec.Status != domain.StatusPending {
		if rec.Status == domain.StatusPublished {
			return nil, domain.ErrInvalidTransition
		}
		return nil, domain.ErrAlreadyDecided
	}

	rec.Status = to
	decidedAt := at
	rec.DecidedAt = &decidedAt
	rec.DecidedBy = adminID
	rec.RejectReason = reason

	clone := *rec
	return &clone, nil
}

func (s *MenfessStore) MarkPublished(_ context.Context, id int64, channelRef string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, exists := s.records[id]
	if !exists {
		return domain.ErrNotFound
	}
	switch rec.Status {
	case domain.StatusPublished:
		return nil
	case domain.StatusApproved:
	default:
		return domain.ErrInvalidTransition
	}

	rec.Status = domain.StatusPublished
	rec.ChannelRef = channelRef
	publishedAt := at
	rec.PublishedAt = &publishedAt

	s.tags.record(rec.Hashtags, at)
	return nil
}

var _ ports.SenderStatsStore = (*MenfessStore)(nil)

func (s *MenfessStore) SenderTotals(_ context.Context, sender domain.SenderID) (submitted, approved, rejected int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.Sender != sender {
			continue
		}
		submitted++
		switch rec.Status {
		case domain.StatusApproved, domain.StatusPublished:
			approved++
		case domain.StatusRejected:
			rejected++
		}
	}
	return submitted, approved, rejected, nil
}

// BanStore guarda bans em memória.
type BanStore struct {
	mu      sync.Mutex
	entries map[domain.SenderID]domain.BanEntry
}

func NewBanStore() *BanStore {
	return &BanStore{entries: make(map[domain.SenderID]domain.BanEntry)}
}

var _ ports.BanStore = (*BanStore)(nil)

func (s *BanStore) Ban(_ context.Context, entry domain.BanEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Sender] = entry
	return nil
}

func (s *BanStore) Unban(_ context.Context, sender domain.SenderID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sender)
	return nil
}

func (s *BanStore) Lookup(_ context.Context, sender domain.SenderID) (*domain.BanEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, exists := s.entries[sender]
	if !exists {
		return nil, nil
	}
	clone := entry
	return &clone, nil
}

// HashtagStore agrega estatísticas de hashtags publicadas.
type HashtagStore struct {
	mu    sync.Mutex
	stats map[string]*domain.HashtagStat
}

func NewHashtagStore() *HashtagStore {
	return &HashtagStore{stats: make(map[string]*domain.HashtagStat)}
}

var _ ports.HashtagStore = (*HashtagStore)(nil)

func (s *HashtagStore) record(tags []string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tag := range tags {
		stat, exists := s.stats[tag]
		if !exists {
			s.stats[tag] = &domain.HashtagStat{Tag: tag, UsageCount: 1, FirstUsedAt: at, LastUsedAt: at}
			continue
		}
		stat.UsageCount++
		stat.LastUsedAt = at
	}
}

func (s *HashtagStore) TopN(_ context.Context, n int) ([]domain.HashtagStat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.HashtagStat, 0, len(s.stats))
	for _, stat := range s.stats {
		out = append(out, *stat)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UsageCount != out[j].UsageCount {
			return out[i].UsageCount > out[j].UsageCount
		}
		if !out[i].LastUsedAt.Equal(out[j].LastUsedAt) {
			return out[i].LastUsedAt.After(out[j].LastUsedAt)
		}
		return out[i].Tag < out[j].Tag
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}
