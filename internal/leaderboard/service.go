package leaderboard

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/victornm/livequiz/internal/domain"
	"github.com/victornm/livequiz/internal/errors"
	"github.com/victornm/livequiz/internal/telemetry"
)

// DefaultTTL bounds how long a cached leaderboard may be served after the standings changed.
const DefaultTTL = 10 * time.Second

type Store interface {
	ListStandings(ctx context.Context, quizID int64) ([]domain.Standing, error)
}

type Config struct {
	Store  Store
	Redis  redis.UniversalClient
	Prefix string
	TTL    time.Duration
}

type Service struct {
	store  Store
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewService(c Config) *Service {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	return &Service{
		store:  c.Store,
		redis:  c.Redis,
		prefix: c.Prefix,
		ttl:    ttl,
	}
}

// cachedStanding is the cached representation of a domain.Standing.
type cachedStanding struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username"`
	Score    int    `json:"score"`
}

type GetLeaderboardRequest struct {
	QuizID int64
}

// GetLeaderboard returns the standings of a quiz, by score in descending order.
// The cache is consulted first, on a miss the standings are read from the store and cached for the TTL.
// A cache failure falls through to the store, a store failure is returned as a persistence failure.
func (s *Service) GetLeaderboard(ctx context.Context, req GetLeaderboardRequest) (*domain.Leaderboard, error) {
	key := s.getLeaderboardKey(req.QuizID)

	b, err := s.redis.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		standings, err := decodeStandings(b)
		if err == nil {
			telemetry.LeaderboardCacheTotal.WithLabelValues("hit").Inc()
			return &domain.Leaderboard{QuizID: req.QuizID, Standings: standings}, nil
		}
		telemetry.LeaderboardCacheTotal.WithLabelValues("error").Inc()
		slog.WarnContext(ctx, "leaderboard: discard undecodable cache entry", "key", key, "error", err)
	case stderrors.Is(err, redis.Nil):
		telemetry.LeaderboardCacheTotal.WithLabelValues("miss").Inc()
	default:
		telemetry.LeaderboardCacheTotal.WithLabelValues("error").Inc()
		slog.WarnContext(ctx, "leaderboard: read cache failed, falling back to store",
			"quiz_id", req.QuizID,
			"error", errors.CacheFailure(err),
		)
	}

	standings, err := s.store.ListStandings(ctx, req.QuizID)
	if err != nil {
		return nil, errors.PersistenceFailure(fmt.Errorf("list standings: quiz=%d: %w", req.QuizID, err))
	}

	s.cacheStandings(ctx, key, standings)

	return &domain.Leaderboard{
		QuizID:    req.QuizID,
		Standings: standings,
	}, nil
}

// Invalidate drops the cached leaderboard of a quiz, so that the next read goes to the store.
func (s *Service) Invalidate(ctx context.Context, quizID int64) error {
	if err := s.redis.Del(ctx, s.getLeaderboardKey(quizID)).Err(); err != nil {
		return errors.CacheFailure(fmt.Errorf("del: quiz=%d: %w", quizID, err))
	}

	return nil
}

// cacheStandings writes through the cache. A failure only costs another store round trip on the next read.
func (s *Service) cacheStandings(ctx context.Context, key string, standings []domain.Standing) {
	b, err := encodeStandings(standings)
	if err != nil {
		slog.ErrorContext(ctx, "leaderboard: encode standings failed", "key", key, "error", err)
		return
	}

	if err := s.redis.Set(ctx, key, b, s.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "leaderboard: write cache failed", "key", key, "error", errors.CacheFailure(err))
	}
}

func (s *Service) getLeaderboardKey(quizID int64) string {
	return fmt.Sprintf("%s:leaderboard:%d", s.prefix, quizID)
}

func encodeStandings(standings []domain.Standing) ([]byte, error) {
	cs := make([]cachedStanding, 0, len(standings))
	for _, st := range standings {
		cs = append(cs, cachedStanding(st))
	}

	return json.Marshal(cs)
}

func decodeStandings(b []byte) ([]domain.Standing, error) {
	var cs []cachedStanding
	if err := json.Unmarshal(b, &cs); err != nil {
		return nil, err
	}
	if cs == nil {
		return nil, fmt.Errorf("cache entry is not a list: %s", b)
	}

	standings := make([]domain.Standing, 0, len(cs))
	for _, c := range cs {
		standings = append(standings, domain.Standing(c))
	}

	return standings, nil
}
