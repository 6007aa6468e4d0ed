package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"satrack/internal/application/port"
	"satrack/internal/domain/model"
)

// streamBatch bounds how many index entries one Stream round trip pulls.
const streamBatch = 500

// Store keeps each record as a JSON string under <prefix>:pos:<id> with
// three indexes: a time-ordered ZSET (score = epoch seconds, member =
// zero-padded id so same-second records keep insertion order), an
// id-ordered ZSET for Latest, and one ZSET per day plus a SET of day keys.
type Store struct {
	rdb       *redis.Client
	prefix    string
	keySeq    string
	keyByTime string
	keyByID   string
	keyDays   string
}

var _ port.Store = (*Store)(nil)

func New(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "satrack"
	}
	return &Store{
		rdb:       rdb,
		prefix:    prefix,
		keySeq:    prefix + ":seq",
		keyByTime: prefix + ":by_time",
		keyByID:   prefix + ":by_id",
		keyDays:   prefix + ":days",
	}
}

func (s *Store) Close() error { return s.rdb.Close() }

func (s *Store) posKey(member string) string { return s.prefix + ":pos:" + member }
func (s *Store) dayKey(day string) string    { return s.prefix + ":day:" + day }

func memberID(id int64) string { return fmt.Sprintf("%020d", id) }

func (s *Store) Insert(ctx context.Context, p model.Position) (int64, error) {
	id, err := s.rdb.Incr(ctx, s.keySeq).Result()
	if err != nil {
		return 0, err
	}
	p.ID = id
	b, _ := json.Marshal(p)

	member := memberID(id)
	score := float64(p.Timestamp.Unix())
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.posKey(member), string(b), 0)
	pipe.ZAdd(ctx, s.keyByTime, redis.Z{Score: score, Member: member})
	pipe.ZAdd(ctx, s.keyByID, redis.Z{Score: float64(id), Member: member})
	pipe.ZAdd(ctx, s.dayKey(p.Day), redis.Z{Score: score, Member: member})
	pipe.SAdd(ctx, s.keyDays, p.Day)
	_, err = pipe.Exec(ctx)
	return id, err
}

func (s *Store) Count(ctx context.Context) (int64, error) {
	return s.rdb.ZCard(ctx, s.keyByTime).Result()
}

func (s *Store) EvictBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	maxScore := fmt.Sprintf("(%d", model.NewUTCTime(cutoff).Unix())

	members, err := s.rdb.ZRangeByScore(ctx, s.keyByTime, &redis.ZRangeBy{Min: "-inf", Max: maxScore}).Result()
	if err != nil {
		return 0, err
	}
	if len(members) == 0 {
		return 0, nil
	}

	days, err := s.rdb.SMembers(ctx, s.keyDays).Result()
	if err != nil {
		return 0, err
	}

	keys := make([]string, len(members))
	ids := make([]interface{}, len(members))
	for i, m := range members {
		keys[i] = s.posKey(m)
		ids[i] = m
	}

	pipe := s.rdb.TxPipeline()
	pipe.Del(ctx, keys...)
	removed := pipe.ZRemRangeByScore(ctx, s.keyByTime, "-inf", maxScore)
	pipe.ZRem(ctx, s.keyByID, ids...)
	cards := make(map[string]*redis.IntCmd, len(days))
	for _, day := range days {
		pipe.ZRemRangeByScore(ctx, s.dayKey(day), "-inf", maxScore)
		cards[day] = pipe.ZCard(ctx, s.dayKey(day))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}

	var empty []interface{}
	for day, card := range cards {
		if card.Val() == 0 {
			empty = append(empty, day)
		}
	}
	if len(empty) > 0 {
		if err := s.rdb.SRem(ctx, s.keyDays, empty...).Err(); err != nil {
			return removed.Val(), err
		}
	}
	return removed.Val(), nil
}

func (s *Store) Days(ctx context.Context) ([]string, error) {
	days, err := s.rdb.SMembers(ctx, s.keyDays).Result()
	if err != nil {
		return nil, err
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	if len(days) == 0 {
		return nil, nil
	}
	return days, nil
}

func (s *Store) CountByDay(ctx context.Context) (map[string]int64, error) {
	days, err := s.rdb.SMembers(ctx, s.keyDays).Result()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(days))
	if len(days) == 0 {
		return counts, nil
	}

	pipe := s.rdb.Pipeline()
	cards := make(map[string]*redis.IntCmd, len(days))
	for _, day := range days {
		cards[day] = pipe.ZCard(ctx, s.dayKey(day))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	for day, card := range cards {
		if card.Val() > 0 {
			counts[day] = card.Val()
		}
	}
	return counts, nil
}

func (s *Store) Latest(ctx context.Context) (model.Position, error) {
	members, err := s.rdb.ZRevRange(ctx, s.keyByID, 0, 0).Result()
	if err != nil {
		return model.Position{}, err
	}
	if len(members) == 0 {
		return model.Position{}, port.ErrNoData
	}
	val, err := s.rdb.Get(ctx, s.posKey(members[0])).Result()
	if err == redis.Nil {
		return model.Position{}, port.ErrNoData
	}
	if err != nil {
		return model.Position{}, err
	}
	return decodePosition(val)
}

func (s *Store) Query(ctx context.Context, q port.Query) ([]model.Position, int64, error) {
	key := s.keyByTime
	if q.Day != "" {
		key = s.dayKey(q.Day)
	}

	total, err := s.rdb.ZCard(ctx, key).Result()
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []model.Position{}, 0, nil
	}

	start := int64(q.Offset())
	stop := start + int64(q.PageSize) - 1

	var members []string
	if q.Day != "" {
		members, err = s.rdb.ZRange(ctx, key, start, stop).Result()
	} else {
		members, err = s.rdb.ZRevRange(ctx, key, start, stop).Result()
	}
	if err != nil {
		return nil, 0, err
	}

	records, err := s.fetch(ctx, members)
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

func (s *Store) Stream(ctx context.Context, day string, fn func(model.Position) error) error {
	key := s.keyByTime
	if day != "" {
		key = s.dayKey(day)
	}

	min := "-inf"
	for {
		zs, err := s.rdb.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{Min: min, Max: "+inf", Count: streamBatch}).Result()
		if err != nil {
			return err
		}
		if len(zs) == 0 {
			return nil
		}

		members := make([]string, 0, len(zs))
		lastScore := int64(zs[len(zs)-1].Score)
		if len(zs) == streamBatch {
			// the batch may split a same-second group; drop the boundary
			// score here and refetch it whole so the cursor can step past it
			for _, z := range zs {
				if int64(z.Score) < lastScore {
					members = append(members, z.Member.(string))
				}
			}
			boundary := fmt.Sprintf("%d", lastScore)
			group, err := s.rdb.ZRangeByScore(ctx, key, &redis.ZRangeBy{Min: boundary, Max: boundary}).Result()
			if err != nil {
				return err
			}
			members = append(members, group...)
		} else {
			for _, z := range zs {
				members = append(members, z.Member.(string))
			}
		}

		records, err := s.fetch(ctx, members)
		if err != nil {
			return err
		}
		for _, p := range records {
			if err := fn(p); err != nil {
				return err
			}
		}
		min = fmt.Sprintf("(%d", lastScore)
	}
}

// fetch loads the JSON payloads for the given index members, preserving
// order and skipping entries deleted by a racing eviction.
func (s *Store) fetch(ctx context.Context, members []string) ([]model.Position, error) {
	if len(members) == 0 {
		return []model.Position{}, nil
	}
	keys := make([]string, len(members))
	for i, m := range members {
		keys[i] = s.posKey(m)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	records := make([]model.Position, 0, len(vals))
	for _, v := range vals {
		str, ok := v.(string)
		if !ok {
			continue
		}
		p, err := decodePosition(str)
		if err != nil {
			return nil, err
		}
		records = append(records, p)
	}
	return records, nil
}

func decodePosition(val string) (model.Position, error) {
	var p model.Position
	if err := json.Unmarshal([]byte(val), &p); err != nil {
		return model.Position{}, fmt.Errorf("corrupt record: %w", err)
	}
	return p, nil
}
