package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepdesk/exam-platform/internal/model"
)

const defaultAttemptTTL = 48 * time.Hour

// persistScript writes the record only while the attempt is not locked.
var persistScript = redis.NewScript(`
if redis.call("exists", KEYS[2]) == 1 then
	return "locked"
end
redis.call("set", KEYS[1], ARGV[1], "px", ARGV[2])
return "ok"
`)

// lockScript commits the final payload once. The fingerprint key is the
// compare-and-set guard: present means locked forever.
var lockScript = redis.NewScript(`
local current = redis.call("get", KEYS[2])
if current then
	if current == ARGV[2] then
		return "dup"
	end
	return "stale"
end
redis.call("set", KEYS[1], ARGV[1], "px", ARGV[3])
redis.call("set", KEYS[2], ARGV[2], "px", ARGV[3])
return "ok"
`)

// RedisStore is the AttemptStore used in production. Records live under
// attempt:{testID}:{userID}:{kind}; the locked flag is a separate
// fingerprint key flipped atomically by a Lua script so a racing persist
// can never unlock a finished attempt.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

var _ AttemptStore = (*RedisStore)(nil)

func NewRedisStore(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *RedisStore {
	if ttl <= 0 {
		ttl = defaultAttemptTTL
	}
	return &RedisStore{client: client, ttl: ttl, logger: logger}
}

func attemptKey(testID, userID uuid.UUID, kind model.Kind) string {
	return fmt.Sprintf("attempt:%s:%s:%s", testID, userID, kind)
}

func lockKey(testID, userID uuid.UUID, kind model.Kind) string {
	return attemptKey(testID, userID, kind) + ":lock"
}

// Fingerprint produces the canonical digest of a final payload, used to
// detect a late duplicate submit that carries different answers.
func Fingerprint(rec model.SessionRecord) string {
	canonical := struct {
		Answers        []model.AttemptAnswer `json:"answers"`
		TabSwitchCount int                   `json:"tab_switch_count"`
	}{rec.Answers, rec.TabSwitchCount}
	data, _ := json.Marshal(canonical)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (s *RedisStore) Persist(ctx context.Context, rec model.SessionRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	keys := []string{
		attemptKey(rec.TestID, rec.UserID, rec.Kind),
		lockKey(rec.TestID, rec.UserID, rec.Kind),
	}
	res, err := persistScript.Run(ctx, s.client, keys, data, s.ttl.Milliseconds()).Text()
	if err != nil {
		return fmt.Errorf("persist attempt: %w", err)
	}
	if res == "locked" {
		return ErrAlreadyLocked
	}
	return nil
}

func (s *RedisStore) Restore(ctx context.Context, testID, userID uuid.UUID, kind model.Kind) (*model.SessionRecord, error) {
	data, err := s.client.Get(ctx, attemptKey(testID, userID, kind)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("restore attempt: %w", err)
	}
	var rec model.SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal record: %w", err)
	}
	return &rec, nil
}

func (s *RedisStore) Lock(ctx context.Context, rec model.SessionRecord) error {
	rec.Locked = true
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	keys := []string{
		attemptKey(rec.TestID, rec.UserID, rec.Kind),
		lockKey(rec.TestID, rec.UserID, rec.Kind),
	}
	fp := Fingerprint(rec)
	res, err := lockScript.Run(ctx, s.client, keys, data, fp, s.ttl.Milliseconds()).Text()
	if err != nil {
		return fmt.Errorf("lock attempt: %w", err)
	}
	switch res {
	case "ok":
		return nil
	case "dup":
		// Idempotent repeat of the committed payload.
		return nil
	case "stale":
		s.logger.Warn().
			Str("test_id", rec.TestID.String()).
			Str("user_id", rec.UserID.String()).
			Msg("rejected stale duplicate submission")
		return ErrStaleSubmission
	default:
		return fmt.Errorf("lock attempt: unexpected script result %q", res)
	}
}
