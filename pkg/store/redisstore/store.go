// Package redisstore implements store.Store on Redis.
//
// Layout per seller:
//
//	progression:account:{id}  hash of account fields
//	progression:dedupe:{id}   hash "event_type|dedupe_key" -> event id (the uniqueness constraint)
//	progression:events:{id}   sorted set of "seq|event JSON" scored by created_at millis
//	progression:eventseq:{id} counter giving each appended event its seq
//
// The zero-padded seq prefix orders events sharing a millisecond by insertion.
//
// plus the set progression:accounts listing every seller id.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/partnerforge/progression/pkg/model"
	"github.com/partnerforge/progression/pkg/store"
)

const maxTransitionRetries = 10

// appendEventLua adds event JSON to a seller's log under the next sequence number.
// Expects the events key in evKey, its counter in seqKey, the score and the JSON.
const appendEventLua = `
local function appendEvent(evKey, seqKey, score, data)
  local seq = tostring(redis.call('INCR', seqKey))
  redis.call('ZADD', evKey, score, string.rep('0', 16 - #seq) .. seq .. '|' .. data)
end
`

// awardScript reserves the dedupe field, appends the event and increments XP atomically.
// Returns -1 when the account is missing, 0 on a duplicate, 1 on success.
var awardScript = redis.NewScript(appendEventLua + `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
if ARGV[1] ~= '' then
  if redis.call('HSETNX', KEYS[2], ARGV[1], ARGV[2]) == 0 then
    return 0
  end
end
appendEvent(KEYS[3], KEYS[4], ARGV[3], ARGV[4])
local weekStart = tonumber(redis.call('HGET', KEYS[1], 'week_start') or '0')
if weekStart < tonumber(ARGV[6]) then
  redis.call('HSET', KEYS[1], 'weekly_xp', 0, 'week_start', ARGV[6])
end
redis.call('HINCRBY', KEYS[1], 'current_xp', ARGV[5])
redis.call('HINCRBY', KEYS[1], 'season_xp', ARGV[5])
redis.call('HINCRBY', KEYS[1], 'weekly_xp', ARGV[5])
redis.call('HSET', KEYS[1], 'updated_at', ARGV[7])
return 1
`)

// appendScript appends one event to the log; used inside rank transitions.
var appendScript = redis.NewScript(appendEventLua + `
appendEvent(KEYS[1], KEYS[2], ARGV[1], ARGV[2])
return 1
`)

// streakScript stores a recomputed streak unless a newer login was already recorded.
var streakScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local last = redis.call('HGET', KEYS[1], 'last_login_date')
if last and last > ARGV[2] then
  return 0
end
redis.call('HSET', KEYS[1], 'login_streak', ARGV[1], 'last_login_date', ARGV[2], 'updated_at', ARGV[3])
return 1
`)

// Store implements store.Store using Redis.
type Store struct {
	client redis.UniversalClient
	now    func() time.Time
}

// New creates a new Redis-backed progression store.
func New(client redis.UniversalClient) *Store {
	return &Store{client: client, now: time.Now}
}

var _ store.Store = (*Store)(nil)

// CreateAccount stores a new account. The accounts set doubles as the id reservation.
func (s *Store) CreateAccount(ctx context.Context, acc *model.Account) error {
	added, err := s.client.SAdd(ctx, accountsSetKey, acc.ID).Result()
	if err != nil {
		return store.Wrap("create account", err)
	}
	if added == 0 {
		return store.ErrAccountExists
	}

	if err := s.client.HSet(ctx, makeAccountKey(acc.ID), encodeAccount(acc)...).Err(); err != nil {
		logrus.Errorf("failed to create account %s: %v", acc.ID, err)
		return store.Wrap("create account", err)
	}

	logrus.Infof("created account %s", acc.ID)
	return nil
}

// GetAccount retrieves the account of a seller.
func (s *Store) GetAccount(ctx context.Context, sellerID string) (*model.Account, error) {
	fields, err := s.client.HGetAll(ctx, makeAccountKey(sellerID)).Result()
	if err != nil {
		logrus.Errorf("failed to get account %s: %v", sellerID, err)
		return nil, store.Wrap("get account", err)
	}
	if len(fields) == 0 {
		return nil, store.ErrAccountNotFound
	}

	acc, err := decodeAccount(sellerID, fields)
	if err != nil {
		return nil, store.Wrap("decode account", err)
	}
	return acc, nil
}

// ListAccounts returns all accounts ordered by creation time.
func (s *Store) ListAccounts(ctx context.Context) ([]model.Account, error) {
	ids, err := s.client.SMembers(ctx, accountsSetKey).Result()
	if err != nil {
		return nil, store.Wrap("list accounts", err)
	}

	cmds := make([]*redis.StringStringMapCmd, len(ids))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, makeAccountKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, store.Wrap("list accounts", err)
	}

	accounts := make([]model.Account, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		// Id reserved but hash not yet written.
		if len(fields) == 0 {
			continue
		}
		acc, err := decodeAccount(ids[i], fields)
		if err != nil {
			logrus.Warnf("skipping undecodable account %s: %v", ids[i], err)
			continue
		}
		accounts = append(accounts, *acc)
	}

	sort.SliceStable(accounts, func(i, j int) bool {
		if !accounts[i].CreatedAt.Equal(accounts[j].CreatedAt) {
			return accounts[i].CreatedAt.Before(accounts[j].CreatedAt)
		}
		return accounts[i].ID < accounts[j].ID
	})
	return accounts, nil
}

// UpdateStreak stores the login streak computed from the event log.
func (s *Store) UpdateStreak(ctx context.Context, sellerID string, streak int, lastLoginDate string) (*model.Account, error) {
	res, err := streakScript.Run(ctx, s.client,
		[]string{makeAccountKey(sellerID)},
		streak, lastLoginDate, s.now().UTC().Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		return nil, store.Wrap("update streak", err)
	}
	if res < 0 {
		return nil, store.ErrAccountNotFound
	}
	if res == 0 {
		logrus.Debugf("skipped stale streak update for %s (%s)", sellerID, lastLoginDate)
	}
	return s.GetAccount(ctx, sellerID)
}

// ListEvents returns the events of one seller matching q, oldest first. Events
// created in the same millisecond keep their insertion order.
func (s *Store) ListEvents(ctx context.Context, q store.EventQuery) ([]model.ActivityEvent, error) {
	minScore := "-inf"
	if !q.Since.IsZero() {
		minScore = formatScore(q.Since)
	}

	members, err := s.client.ZRangeByScore(ctx, makeEventsKey(q.SellerID), &redis.ZRangeBy{
		Min: minScore,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, store.Wrap("list events", err)
	}

	events := make([]model.ActivityEvent, 0, len(members))
	for _, m := range members {
		var ev model.ActivityEvent
		if err := json.Unmarshal(eventJSON(m), &ev); err != nil {
			logrus.Warnf("skipping malformed event for %s: %v", q.SellerID, err)
			continue
		}
		if q.Matches(&ev) {
			events = append(events, ev)
		}
	}
	return events, nil
}

// CountEvents returns the number of events matching q.
func (s *Store) CountEvents(ctx context.Context, q store.EventQuery) (int, error) {
	events, err := s.ListEvents(ctx, q)
	if err != nil {
		return 0, err
	}
	return len(events), nil
}

// HasEvent reports whether the (event_type, dedupe_key) pair is recorded for the seller.
func (s *Store) HasEvent(ctx context.Context, sellerID string, t model.EventType, dedupeKey string) (bool, error) {
	ok, err := s.client.HExists(ctx, makeDedupeKey(sellerID), dedupeField(t, dedupeKey)).Result()
	if err != nil {
		return false, store.Wrap("has event", err)
	}
	return ok, nil
}

// Award appends ev and increments the seller's XP in a single script call.
func (s *Store) Award(ctx context.Context, ev *model.ActivityEvent, weekStart time.Time) (*model.Account, error) {
	data, err := json.Marshal(ev)
	if err != nil {
		return nil, store.Wrap("award", err)
	}

	field := ""
	if ev.DedupeKey != "" {
		field = dedupeField(ev.Type, ev.DedupeKey)
	}

	res, err := awardScript.Run(ctx, s.client,
		[]string{makeAccountKey(ev.SellerID), makeDedupeKey(ev.SellerID), makeEventsKey(ev.SellerID), makeEventSeqKey(ev.SellerID)},
		field, ev.ID, eventScore(ev.CreatedAt), string(data), ev.XP, weekStart.Unix(),
		s.now().UTC().Format(time.RFC3339Nano),
	).Int64()
	if err != nil {
		logrus.Errorf("failed to award %s to %s: %v", ev.Type, ev.SellerID, err)
		return nil, store.Wrap("award", err)
	}

	switch res {
	case -1:
		return nil, store.ErrAccountNotFound
	case 0:
		return nil, store.ErrDuplicateEvent
	}
	return s.GetAccount(ctx, ev.SellerID)
}

// Transition evaluates fn under WATCH on the seller's account and dedupe keys.
// A concurrent write aborts the transaction, which is retried with backoff against
// a fresh snapshot.
func (s *Store) Transition(ctx context.Context, sellerID string, fn store.TransitionFunc) (*model.Account, error) {
	accKey := makeAccountKey(sellerID)
	dedupeKey := makeDedupeKey(sellerID)
	eventsKey := makeEventsKey(sellerID)
	seqKey := makeEventSeqKey(sellerID)

	var (
		result *model.Account
		fnErr  error
	)

	txf := func(tx *redis.Tx) error {
		fields, err := tx.HGetAll(ctx, accKey).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return store.ErrAccountNotFound
		}
		acc, err := decodeAccount(sellerID, fields)
		if err != nil {
			return err
		}

		done, err := tx.HKeys(ctx, dedupeKey).Result()
		if err != nil {
			return err
		}

		tr, err := fn(acc, completedLessons(done))
		if err != nil {
			fnErr = err
			return err
		}
		if tr == nil {
			result = acc
			return nil
		}

		data, err := json.Marshal(tr.Event)
		if err != nil {
			return err
		}
		updatedAt := s.now().UTC()

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, accKey,
				"current_rank", tr.NewRank,
				"highest_rank", tr.HighestRank,
				"commission_rate", formatRate(tr.CommissionRate),
				"updated_at", updatedAt.Format(time.RFC3339Nano),
			)
			if tr.Event.DedupeKey != "" {
				pipe.HSet(ctx, dedupeKey, dedupeField(tr.Event.Type, tr.Event.DedupeKey), tr.Event.ID)
			}
			// Eval rather than Run: EVALSHA inside MULTI cannot fall back on NOSCRIPT.
			appendScript.Eval(ctx, pipe, []string{eventsKey, seqKey}, eventScore(tr.Event.CreatedAt), string(data))
			return nil
		})
		if err != nil {
			return err
		}

		acc.CurrentRank = tr.NewRank
		acc.HighestRank = tr.HighestRank
		acc.CommissionRate = tr.CommissionRate
		acc.UpdatedAt = updatedAt
		result = acc
		return nil
	}

	attempt := 0
	operation := func() error {
		attempt++
		err := s.client.Watch(ctx, txf, accKey, dedupeKey)
		if errors.Is(err, redis.TxFailedErr) {
			logrus.Debugf("rank transition for %s conflicted (attempt %d), retrying", sellerID, attempt)
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, maxTransitionRetries), ctx)

	if err := backoff.Retry(operation, policy); err != nil {
		if fnErr != nil && errors.Is(err, fnErr) {
			return nil, fnErr
		}
		return nil, store.Wrap("rank transition", err)
	}
	return result, nil
}

// Ping checks the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}
