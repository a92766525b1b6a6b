package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/VanZoel112/vzoelfess/internal/adapters/storage/memory"
	"github.com/VanZoel112/vzoelfess/internal/core/domain"
)

// fakePublisher publica em memória e pode falhar um número programado de
// chamadas antes de voltar a funcionar.
type fakePublisher struct {
	mu        sync.Mutex
	calls     int
	failNext  int
	published []int64
}

func (p *fakePublisher) Publish(_ context.Context, m *domain.Menfess) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failNext > 0 {
		p.failNext--
		return "", errors.New("webhook: 502 bad gateway")
	}
	p.published = append(p.published, m.ID)
	return "channel/msg-42", nil
}

type moderationFixture struct {
	service   *ModerationService
	menfess   *memory.MenfessStore
	tags      *memory.HashtagStore
	bans      *memory.BanStore
	publisher *fakePublisher
}

func newModerationFixture(t *testing.T) *moderationFixture {
	t.Helper()

	tags := memory.NewHashtagStore()
	menfess := memory.NewMenfessStore(tags)
	bans := memory.NewBanStore()
	publisher := &fakePublisher{}

	service, err := NewModerationService(menfess, tags, bans, publisher, ModerationConfig{
		PublishAttempts: 2,
		PublishBackoff:  time.Millisecond,
	}, testLogger)
	require.NoError(t, err)

	return &moderationFixture{
		service:   service,
		menfess:   menfess,
		tags:      tags,
		bans:      bans,
		publisher: publisher,
	}
}

func (fx *moderationFixture) seedPending(t *testing.T, hashtags ...string) int64 {
	t.Helper()
	m := &domain.Menfess{
		Sender:    "sender-1",
		Body:      "um segredo qualquer",
		Hashtags:  hashtags,
		Status:    domain.StatusPending,
		CreatedAt: time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
	}
	require.NoError(t, fx.menfess.Create(context.Background(), m))
	return m.ID
}

func TestModeration_ApprovePublishes(t *testing.T) {
	fx := newModerationFixture(t)
	ctx := context.Background()
	id := fx.seedPending(t, "#confess", "#campus")

	require.NoError(t, fx.service.Approve(ctx, id, "admin-1"))

	m, err := fx.menfess.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, m.Status)
	assert.Equal(t, "channel/msg-42", m.ChannelRef)
	assert.Equal(t, "admin-1", m.DecidedBy)
	require.NotNil(t, m.PublishedAt)

	stats, err := fx.service.TopHashtags(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, int64(1), stats[0].UsageCount)
	assert.Equal(t, int64(1), stats[1].UsageCount)
}

func TestModeration_Reject(t *testing.T) {
	fx := newModerationFixture(t)
	ctx := context.Background()
	id := fx.seedPending(t, "#confess")

	require.NoError(t, fx.service.Reject(ctx, id, "admin-1", "conteúdo ofensivo"))

	m, err := fx.menfess.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, m.Status)
	assert.Equal(t, "conteúdo ofensivo", m.RejectReason)
	assert.Equal(t, 0, fx.publisher.calls)

	// Rejeitadas nunca entram no índice de hashtags.
	stats, err := fx.service.TopHashtags(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestModeration_ConcurrentDecisionsHaveOneWinner(t *testing.T) {
	fx := newModerationFixture(t)
	ctx := context.Background()
	id := fx.seedPending(t, "#confess")

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		errs <- fx.service.Reject(ctx, id, "admin-1", "spam")
	}()
	go func() {
		defer wg.Done()
		errs <- fx.service.Reject(ctx, id, "admin-2", "flood")
	}()
	wg.Wait()
	close(errs)

	var wins, losses int
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, domain.ErrAlreadyDecided)
		losses++
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)
}

func TestModeration_RejectAfterPublishIsInvalidTransition(t *testing.T) {
	fx := newModerationFixture(t)
	ctx := context.Background()
	id := fx.seedPending(t, "#confess")

	require.NoError(t, fx.service.Approve(ctx, id, "admin-1"))

	err := fx.service.Reject(ctx, id, "admin-2", "tarde demais")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestModeration_DecideMissingMenfess(t *testing.T) {
	fx := newModerationFixture(t)

	err := fx.service.Reject(context.Background(), 999, "admin-1", "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestModeration_PublishFailureLeavesApproved(t *testing.T) {
	fx := newModerationFixture(t)
	ctx := context.Background()
	id := fx.seedPending(t, "#confess")

	fx.publisher.failNext = 10

	err := fx.service.Approve(ctx, id, "admin-1")
	require.ErrorIs(t, err, domain.ErrPublishFailed)
	assert.Equal(t, 2, fx.publisher.calls)

	m, err := fx.menfess.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusApproved, m.Status)

	// Nada entra no índice antes da publicação acontecer de fato.
	stats, err := fx.service.TopHashtags(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, stats)
}

func TestModeration_RetryPublishAfterFailure(t *testing.T) {
	fx := newModerationFixture(t)
	ctx := context.Background()
	id := fx.seedPending(t, "#confess", "#campus")

	fx.publisher.failNext = 2
	require.ErrorIs(t, fx.service.Approve(ctx, id, "admin-1"), domain.ErrPublishFailed)

	require.NoError(t, fx.service.RetryPublish(ctx, id))

	m, err := fx.menfess.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPublished, m.Status)

	// Mesmo com tentativas falhas no meio, cada hashtag conta uma vez só.
	stats, err := fx.service.TopHashtags(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, int64(1), stats[0].UsageCount)
	assert.Equal(t, int64(1), stats[1].UsageCount)
}

func TestModeration_RetryPublishIsIdempotentWhenPublished(t *testing.T) {
	fx := newModerationFixture(t)
	ctx := context.Background()
	id := fx.seedPending(t, "#confess")

	require.NoError(t, fx.service.Approve(ctx, id, "admin-1"))
	callsAfterApprove := fx.publisher.calls

	require.NoError(t, fx.service.RetryPublish(ctx, id))
	assert.Equal(t, callsAfterApprove, fx.publisher.calls)
}

func TestModeration_RetryPublishOnPendingIsInvalid(t *testing.T) {
	fx := newModerationFixture(t)
	id := fx.seedPending(t, "#confess")

	err := fx.service.RetryPublish(context.Background(), id)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestModeration_BanAndUnban(t *testing.T) {
	fx := newModerationFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.service.Ban(ctx, "sender-1", "spam", "admin-1"))

	entry, err := fx.bans.Lookup(ctx, "sender-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "spam", entry.Reason)
	assert.Equal(t, "admin-1", entry.BannedBy)

	// Banir de novo sobrescreve razão e autor.
	require.NoError(t, fx.service.Ban(ctx, "sender-1", "flood", "admin-2"))
	entry, err = fx.bans.Lookup(ctx, "sender-1")
	require.NoError(t, err)
	require.NotNil(t, entry)
	assert.Equal(t, "flood", entry.Reason)

	require.NoError(t, fx.service.Unban(ctx, "sender-1"))
	entry, err = fx.bans.Lookup(ctx, "sender-1")
	require.NoError(t, err)
	assert.Nil(t, entry)

	// Desbanir quem não está banido é um no-op.
	require.NoError(t, fx.service.Unban(ctx, "sender-2"))
}

func TestModeration_PendingOldestFirst(t *testing.T) {
	fx := newModerationFixture(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		m := &domain.Menfess{
			Sender:    "sender-1",
			Body:      "texto",
			Hashtags:  []string{"#tag"},
			Status:    domain.StatusPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, fx.menfess.Create(ctx, m))
	}

	list, err := fx.service.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.True(t, list[0].CreatedAt.Before(list[1].CreatedAt))
	assert.True(t, list[1].CreatedAt.Before(list[2].CreatedAt))
}
