package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanZoel112/vzoelfess/internal/adapters/storage/memory"
	"github.com/VanZoel112/vzoelfess/internal/core/domain"
)

type submissionFixture struct {
	service  *SubmissionService
	limiter  *RateLimiterService
	counters *memory.CounterStore
	menfess  *memory.MenfessStore
	bans     *memory.BanStore
	clock    *time.Time
}

func newSubmissionFixture(t *testing.T, limits domain.Limits) *submissionFixture {
	t.Helper()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	counters := memory.NewCounterStore()
	menfess := memory.NewMenfessStore(nil)
	bans := memory.NewBanStore()

	limiter, err := NewRateLimiterService(counters, limits, testLogger)
	require.NoError(t, err)
	limiter.now = func() time.Time { return now }

	service, err := NewSubmissionService(bans, limiter, menfess, menfess, limits, testLogger)
	require.NoError(t, err)
	service.now = func() time.Time { return now }

	return &submissionFixture{
		service:  service,
		limiter:  limiter,
		counters: counters,
		menfess:  menfess,
		bans:     bans,
		clock:    &now,
	}
}

func TestSubmission_CreatesPendingMenfess(t *testing.T) {
	fx := newSubmissionFixture(t, domain.Limits{MaxPerHour: 5, MaxPerDay: 20})
	ctx := context.Background()

	id, err := fx.service.Submit(ctx, "sender-1", "hoje foi um dia estranho #Confess #Campus")
	require.NoError(t, err)
	require.NotZero(t, id)

	m, err := fx.menfess.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, m.Status)
	assert.Equal(t, domain.SenderID("sender-1"), m.Sender)
	assert.Equal(t, "hoje foi um dia estranho", m.Body)
	assert.Equal(t, []string{"#confess", "#campus"}, m.Hashtags)

	counts, err := fx.counters.Peek(ctx, "sender-1", *fx.clock)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Hour)
	assert.Equal(t, 1, counts.Day)
}

func TestSubmission_BannedSenderIsRejectedFirst(t *testing.T) {
	fx := newSubmissionFixture(t, domain.Limits{MaxPerHour: 5, MaxPerDay: 20})
	ctx := context.Background()

	require.NoError(t, fx.bans.Ban(ctx, domain.BanEntry{Sender: "sender-1", Reason: "spam"}))

	_, err := fx.service.Submit(ctx, "sender-1", "um texto válido #tag")
	require.ErrorIs(t, err, domain.ErrBanned)

	// O cheque de ban vem antes do rate limit: nenhum contador foi tocado.
	counts, err := fx.counters.Peek(ctx, "sender-1", *fx.clock)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Hour)
}

func TestSubmission_ValidationFailureReleasesReservation(t *testing.T) {
	fx := newSubmissionFixture(t, domain.Limits{MaxPerHour: 5, MaxPerDay: 20, Cooldown: 10 * time.Minute})
	ctx := context.Background()

	_, err := fx.service.Submit(ctx, "sender-1", "texto sem hashtag nenhuma")
	require.ErrorIs(t, err, domain.ErrNoHashtag)

	counts, err := fx.counters.Peek(ctx, "sender-1", *fx.clock)
	require.NoError(t, err)
	assert.Equal(t, 0, counts.Hour)
	assert.Equal(t, 0, counts.Day)
	assert.True(t, counts.LastAt.IsZero())

	// A submissão rejeitada não consome cota nem arma cooldown.
	_, err = fx.service.Submit(ctx, "sender-1", "agora com hashtag #certo")
	assert.NoError(t, err)
}

func TestSubmission_RateLimitShortCircuitsValidation(t *testing.T) {
	fx := newSubmissionFixture(t, domain.Limits{MaxPerHour: 1, MaxPerDay: 20})
	ctx := context.Background()

	_, err := fx.service.Submit(ctx, "sender-1", "primeiro #tag")
	require.NoError(t, err)

	// O segundo envio estoura a hora antes de qualquer validação de texto.
	_, err = fx.service.Submit(ctx, "sender-1", "texto sem hashtag")
	assert.ErrorIs(t, err, domain.ErrHourlyLimitExceeded)
}

func TestSubmission_Status(t *testing.T) {
	limits := domain.Limits{MaxPerHour: 5, MaxPerDay: 20, Cooldown: 10 * time.Minute}
	fx := newSubmissionFixture(t, limits)
	ctx := context.Background()

	_, err := fx.service.Submit(ctx, "sender-1", "primeiro envio #tag")
	require.NoError(t, err)

	*fx.clock = fx.clock.Add(4 * time.Minute)

	status, err := fx.service.Status(ctx, "sender-1")
	require.NoError(t, err)
	assert.Equal(t, 1, status.HourCount)
	assert.Equal(t, 1, status.DayCount)
	assert.Equal(t, 6*time.Minute, status.CooldownRemaining)
	assert.False(t, status.Banned)
	assert.Equal(t, int64(1), status.TotalSubmitted)

	require.NoError(t, fx.bans.Ban(ctx, domain.BanEntry{Sender: "sender-1", Reason: "flood"}))
	status, err = fx.service.Status(ctx, "sender-1")
	require.NoError(t, err)
	assert.True(t, status.Banned)
	assert.Equal(t, "flood", status.BanReason)
}
