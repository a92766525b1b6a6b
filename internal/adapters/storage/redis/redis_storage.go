// Package redis disponibiliza o backend volátil de contadores baseado em Redis.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/VanZoel112/vzoelfess/internal/core/domain"
	"github.com/VanZoel112/vzoelfess/internal/core/ports"
)

const backendName = "redis"

// Janela deslizante de uma hora num ZSET (score = unix segundos), contador
// diário em chave por dia UTC e lastSubmissionAt em chave própria. O script
// avalia cooldown, hora e dia e incrementa tudo em uma única ida ao Redis,
// então a decisão de um remetente é atômica sem lock no processo.
var reserveScript = redis.NewScript(`
local now = tonumber(ARGV[1])
local windowSec = tonumber(ARGV[2])
local cooldownSec = tonumber(ARGV[3])
local maxHour = tonumber(ARGV[4])
local maxDay = tonumber(ARGV[5])
local dayTTL = tonumber(ARGV[6])
local member = ARGV[7]

redis.call('ZREMRANGEBYSCORE', KEYS[1], 0, now - windowSec)
local hour = redis.call('ZCARD', KEYS[1])
local day = tonumber(redis.call('GET', KEYS[2]) or '0')
local last = tonumber(redis.call('GET', KEYS[3]) or '0')

if last > 0 and now - last < cooldownSec then
  return {0, hour, day, last}
end
if hour >= maxHour then
  return {1, hour, day, last}
end
if day >= maxDay then
  return {2, hour, day, last}
end

redis.call('ZADD', KEYS[1], now, member)
redis.call('EXPIRE', KEYS[1], windowSec)
day = redis.call('INCR', KEYS[2])
redis.call('EXPIRE', KEYS[2], dayTTL)
redis.call('SET', KEYS[3], now, 'EX', math.max(cooldownSec, windowSec))
return {3, hour + 1, day, last}
`)

var releaseScript = redis.NewScript(`
local member = ARGV[1]
local memberTs = tonumber(ARGV[2])
local prevLast = tonumber(ARGV[3])

local removed = redis.call('ZREM', KEYS[1], member)
if removed > 0 then
  local day = redis.call('DECR', KEYS[2])
  if day < 0 then
    redis.call('SET', KEYS[2], 0)
  end
end

local last = tonumber(redis.call('GET', KEYS[3]) or '0')
if last == memberTs then
  if prevLast > 0 then
    redis.call('SET', KEYS[3], prevLast)
  else
    redis.call('DEL', KEYS[3])
  end
end
return removed
`)

// Store implementa ports.CounterStore sobre um Redis.
type Store struct {
	client *redis.Client
}

var _ ports.CounterStore = (*Store)(nil)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// New cria o client e testa a conexão. Um Redis inalcançável na subida não é
// fatal: a camada de failover trata indisponibilidade em tempo de chamada.
func New(cfg Config, logger *slog.Logger) (*Store, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis address is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis unreachable, rate limiting will start on the fallback store",
			"addr", cfg.Addr, "err", err)
	}

	return &Store{client: client}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) Name() string { return backendName }

// Reserve roda o script de admissão. Rejeições voltam como os erros
// sentinela do domínio com os contadores correntes.
func (s *Store) Reserve(ctx context.Context, sender domain.SenderID, now time.Time, limits domain.Limits) (ports.Reservation, error) {
	hourKey, dayKey, lastKey := counterKeys(sender, now)
	member := strconv.FormatInt(now.UnixNano(), 10)

	vals, err := reserveScript.Run(ctx, s.client,
		[]string{hourKey, dayKey, lastKey},
		now.Unix(),
		int64(time.Hour/time.Second),
		int64(limits.Cooldown/time.Second),
		limits.MaxPerHour,
		limits.MaxPerDay,
		int64(48*time.Hour/time.Second),
		member,
	).Int64Slice()
	if err != nil {
		return ports.Reservation{}, fmt.Errorf("redis reserve: %w", err)
	}
	if len(vals) != 4 {
		return ports.Reservation{}, fmt.Errorf("redis reserve: unexpected reply %v", vals)
	}

	outcome, hour, day, last := vals[0], vals[1], vals[2], vals[3]
	counts := domain.Counts{Hour: int(hour), Day: int(day)}
	if last > 0 {
		counts.LastAt = time.Unix(last, 0)
	}
	res := ports.Reservation{Counts: counts, Backend: backendName}

	switch outcome {
	case 0:
		return res, domain.ErrCooldown
	case 1:
		return res, domain.ErrHourlyLimitExceeded
	case 2:
		return res, domain.ErrDailyLimitExceeded
	}

	res.Counts.LastAt = now
	res.Token = member + "|" + strconv.FormatInt(last, 10)
	return res, nil
}

// Release compensa uma reserva: remove o evento da janela, decrementa o dia
// e restaura o lastSubmissionAt anterior se ninguém submeteu no meio.
func (s *Store) Release(ctx context.Context, sender domain.SenderID, res ports.Reservation) error {
	member, prevLastRaw, ok := strings.Cut(res.Token, "|")
	if !ok {
		return fmt.Errorf("malformed reservation token %q", res.Token)
	}
	memberNano, err := strconv.ParseInt(member, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed reservation token %q", res.Token)
	}

	reservedAt := time.Unix(0, memberNano)
	hourKey, dayKey, lastKey := counterKeys(sender, reservedAt)

	err = releaseScript.Run(ctx, s.client,
		[]string{hourKey, dayKey, lastKey},
		member, reservedAt.Unix(), prevLastRaw,
	).Err()
	if err != nil {
		return fmt.Errorf("redis release: %w", err)
	}
	return nil
}

// Peek lê os contadores sem mutação, em um único pipeline.
func (s *Store) Peek(ctx context.Context, sender domain.SenderID, now time.Time) (domain.Counts, error) {
	hourKey, dayKey, lastKey := counterKeys(sender, now)

	pipe := s.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, hourKey, "0", strconv.FormatInt(now.Add(-time.Hour).Unix(), 10))
	hourCmd := pipe.ZCard(ctx, hourKey)
	dayCmd := pipe.Get(ctx, dayKey)
	lastCmd := pipe.Get(ctx, lastKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return domain.Counts{}, fmt.Errorf("redis peek: %w", err)
	}

	counts := domain.Counts{Hour: int(hourCmd.Val())}
	if day, err := dayCmd.Int(); err == nil {
		counts.Day = day
	}
	if last, err := lastCmd.Int64(); err == nil && last > 0 {
		counts.LastAt = time.Unix(last, 0)
	}
	return counts, nil
}

func counterKeys(sender domain.SenderID, now time.Time) (hourKey, dayKey, lastKey string) {
	id := strings.ToLower(strings.TrimSpace(string(sender)))
	day := now.UTC().Format(time.DateOnly)
	return fmt.Sprintf("ratelimit:hour:%s", id),
		fmt.Sprintf("ratelimit:day:%s:%s", id, day),
		fmt.Sprintf("ratelimit:last:%s", id)
}
