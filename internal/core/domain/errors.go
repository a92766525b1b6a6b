package domain

import "errors"

var (
	ErrBanned              = errors.New("sender is banned")
	ErrCooldown            = errors.New("cooldown between submissions not elapsed")
	ErrHourlyLimitExceeded = errors.New("hourly submission limit exceeded")
	ErrDailyLimitExceeded  = errors.New("daily submission limit exceeded")
	ErrNoHashtag           = errors.New("submission has no hashtag")
	ErrTooManyHashtags     = errors.New("submission has too many hashtags")
	ErrEmptyBody           = errors.New("submission body is empty")
	ErrInvalidTransition   = errors.New("moderation decision is final")
	ErrAlreadyDecided      = errors.New("another admin already decided")
	ErrBackendUnavailable  = errors.New("rate limit backends unavailable")
	ErrPublishFailed       = errors.New("publish to channel failed")
	ErrNotFound            = errors.New("menfess not found")
)

// IsRateLimited indica rejeições por volume ou cooldown.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrCooldown) ||
		errors.Is(err, ErrHourlyLimitExceeded) ||
		errors.Is(err, ErrDailyLimitExceeded)
}

// IsValidation indica rejeições estruturais do texto submetido.
func IsValidation(err error) bool {
	return errors.Is(err, ErrNoHashtag) ||
		errors.Is(err, ErrTooManyHashtags) ||
		errors.Is(err, ErrEmptyBody)
}

// IsAdmissionReject indica qualquer rejeição de admissão decidida com
// sucesso, por oposição a falha de infraestrutura. O failover usa isso para
// não contar rejeições como falha de backend.
func IsAdmissionReject(err error) bool {
	return errors.Is(err, ErrBanned) || IsRateLimited(err) || IsValidation(err)
}
