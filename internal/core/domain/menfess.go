// Package domain concentra entidades e regras centrais do fluxo de menfess.
package domain

import "time"

// SenderID identifica o remetente de forma opaca e estável. Nunca aparece em
// nada que sai do limite de moderação.
type SenderID string

type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
	StatusPublished Status = "published"
)

// Terminal indica se nenhuma transição de moderação é mais permitida.
func (s Status) Terminal() bool {
	return s == StatusRejected || s == StatusPublished
}

// Menfess representa uma submissão anônima no fluxo de moderação. Criada em
// StatusPending pelo pipeline de submissão e mutada apenas pelo motor de
// moderação depois disso.
type Menfess struct {
	ID           int64
	Sender       SenderID
	Body         string
	Hashtags     []string
	Status       Status
	CreatedAt    time.Time
	DecidedAt    *time.Time
	DecidedBy    string
	RejectReason string
	ChannelRef   string
	PublishedAt  *time.Time
}

// BanEntry registra um remetente banido. Existe no máximo uma entrada por
// remetente; banir novamente sobrescreve razão/autor/data.
type BanEntry struct {
	Sender   SenderID
	Reason   string
	BannedBy string
	BannedAt time.Time
}

// HashtagStat acumula o uso de uma hashtag apenas em menfess publicadas.
type HashtagStat struct {
	Tag         string
	UsageCount  int64
	FirstUsedAt time.Time
	LastUsedAt  time.Time
}

// Limits agrega os limites de admissão aplicados por remetente.
type Limits struct {
	MaxPerHour int
	MaxPerDay  int
	Cooldown   time.Duration
}

// Counts é a visão pontual dos contadores de um remetente.
type Counts struct {
	Hour   int
	Day    int
	LastAt time.Time
}

// CooldownRemaining retorna quanto tempo o remetente ainda precisa esperar;
// zero se o cooldown já passou ou nada foi enviado ainda.
func (c Counts) CooldownRemaining(now time.Time, cooldown time.Duration) time.Duration {
	if c.LastAt.IsZero() {
		return 0
	}
	rem := cooldown - now.Sub(c.LastAt)
	if rem < 0 {
		return 0
	}
	return rem
}

// SenderStatus é a resposta da consulta de status exposta aos remetentes.
type SenderStatus struct {
	HourCount         int
	DayCount          int
	CooldownRemaining time.Duration
	Banned            bool
	BanReason         string
	TotalSubmitted    int64
	TotalApproved     int64
	TotalRejected     int64
}
