package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shahzaib974/attendance-service/internal/domain"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Prefix   string // key prefix, defaults to "attendance"
}

// redisStore implements AttendanceStore using Redis. All read-modify-write
// primitives run as Lua scripts so concurrent deliveries for the same
// participant cannot interleave.
type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis-backed attendance store.
func NewRedisStore(cfg RedisConfig) (AttendanceStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "attendance"
	}

	return &redisStore{client: client, prefix: prefix}, nil
}

// Redis key patterns (prefix defaults to "attendance"):
// {prefix}:room:{room}:members                  SET<identity>   - everyone ever seen joining
// {prefix}:room:{room}:participant:{identity}   HASH            - attendance record
//   - name, avatar, group_id, group_name
//   - total_ms:        finalized connected time
//   - active_join_ms:  open interval start, 0 when idle
// {prefix}:room:{room}:finished_at              STRING<unix ms>
// {prefix}:event_log                            LIST            - rolling raw-event audit log

const eventLogCap = 200

func (s *redisStore) membersKey(room string) string {
	return fmt.Sprintf("%s:room:%s:members", s.prefix, room)
}

func (s *redisStore) participantKey(room, identity string) string {
	return fmt.Sprintf("%s:room:%s:participant:%s", s.prefix, room, identity)
}

func (s *redisStore) finishedAtKey(room string) string {
	return fmt.Sprintf("%s:room:%s:finished_at", s.prefix, room)
}

func (s *redisStore) eventLogKey() string {
	return fmt.Sprintf("%s:event_log", s.prefix)
}

// openIntervalScript upserts profile fields (empty arguments keep the
// stored value), opens the interval at ARGV[6], and registers the
// identity in the membership set.
var openIntervalScript = redis.NewScript(`
local key = KEYS[1]
local fields = {"name", "avatar", "group_id", "group_name"}
for i, field in ipairs(fields) do
  local v = ARGV[i + 1]
  if v ~= "" then
    redis.call("HSET", key, field, v)
  end
end
redis.call("HSETNX", key, "total_ms", 0)
redis.call("HSET", key, "active_join_ms", ARGV[6])
redis.call("SADD", KEYS[2], ARGV[1])
return 1
`)

// closeIntervalScript credits the open interval and resets it. Returns
// the credited delta, 0 when no interval was open. The delta is clamped
// so a leave timestamp earlier than the join never subtracts time.
var closeIntervalScript = redis.NewScript(`
local key = KEYS[1]
local join = tonumber(redis.call("HGET", key, "active_join_ms"))
if not join or join == 0 then
  return 0
end
local delta = tonumber(ARGV[1]) - join
if delta < 0 then
  delta = 0
end
redis.call("HINCRBY", key, "total_ms", delta)
redis.call("HSET", key, "active_join_ms", 0)
return delta
`)

func (s *redisStore) OpenInterval(ctx context.Context, room, identity string, profile domain.Profile, nowMs int64) error {
	keys := []string{s.participantKey(room, identity), s.membersKey(room)}
	err := openIntervalScript.Run(ctx, s.client, keys,
		identity,
		profile.Name,
		profile.Avatar,
		profile.GroupID,
		profile.GroupName,
		nowMs,
	).Err()
	if err != nil {
		return fmt.Errorf("redis open interval: %w", err)
	}
	return nil
}

func (s *redisStore) CloseInterval(ctx context.Context, room, identity string, nowMs int64) (int64, error) {
	keys := []string{s.participantKey(room, identity)}
	delta, err := closeIntervalScript.Run(ctx, s.client, keys, nowMs).Int64()
	if err != nil {
		return 0, fmt.Errorf("redis close interval: %w", err)
	}
	return delta, nil
}

func (s *redisStore) ListMembers(ctx context.Context, room string) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.membersKey(room)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list members: %w", err)
	}
	return members, nil
}

func (s *redisStore) GetSession(ctx context.Context, room, identity string) (*domain.ParticipantSession, error) {
	record, err := s.client.HGetAll(ctx, s.participantKey(room, identity)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis get session: %w", err)
	}
	if len(record) == 0 {
		return nil, nil
	}

	return &domain.ParticipantSession{
		Room:         room,
		Identity:     identity,
		Name:         record["name"],
		Avatar:       record["avatar"],
		GroupID:      record["group_id"],
		GroupName:    record["group_name"],
		TotalMs:      parseMs(record["total_ms"]),
		ActiveJoinMs: parseMs(record["active_join_ms"]),
	}, nil
}

func (s *redisStore) MarkRoomFinished(ctx context.Context, room string, nowMs int64) error {
	if err := s.client.Set(ctx, s.finishedAtKey(room), nowMs, 0).Err(); err != nil {
		return fmt.Errorf("redis mark room finished: %w", err)
	}
	return nil
}

func (s *redisStore) RoomFinishedAt(ctx context.Context, room string) (int64, error) {
	val, err := s.client.Get(ctx, s.finishedAtKey(room)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis room finished at: %w", err)
	}
	return parseMs(val), nil
}

func (s *redisStore) AppendEventLog(ctx context.Context, entry EventLogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal event log entry: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.eventLogKey(), data)
	pipe.LTrim(ctx, s.eventLogKey(), 0, eventLogCap-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis append event log: %w", err)
	}
	return nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}

func parseMs(val string) int64 {
	if val == "" {
		return 0
	}
	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0
	}
	return ms
}
