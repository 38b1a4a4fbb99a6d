// Package queue is the Redis-backed poll-job queue: one list per urgency
// tier, plus a dedupe-key namespace that makes resubmission of in-flight
// work a no-op.
package queue

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	r "github.com/redis/go-redis/v9"

	"shipwatch/internal/domain"
)

const (
	dedupePrefix = "shipwatch:dedupe:"
	listPrefix   = "shipwatch:q:"

	// dedupeTTL bounds how long a submitted-but-unfinished job blocks
	// resubmission. A worker that dies mid-poll, or a submit that failed
	// between claim and push, self-heals once the key expires.
	dedupeTTL = 30 * time.Minute
)

// Envelope is the wire form of a poll job in Redis.
type Envelope struct {
	Name       string `json:"name"`
	ShipmentID string `json:"shipment_id"`
	DedupeKey  string `json:"dedupe_key"`
	Priority   int    `json:"priority"`
	EnqueuedAt int64  `json:"enqueued_at"`
}

type RedisQ struct{ rdb *r.Client }

func New(rdb *r.Client) *RedisQ { return &RedisQ{rdb} }

func tierKey(t domain.UrgencyTier) string { return listPrefix + t.String() }

// tierKeys returns the list keys highest urgency first; BRPOP serves the
// first non-empty key, which is exactly the priority order we want.
func tierKeys() []string {
	tiers := domain.Tiers()
	keys := make([]string, 0, len(tiers))
	for _, t := range tiers {
		keys = append(keys, tierKey(t))
	}
	return keys
}

// BulkSubmit pushes one page of jobs. Dedupe keys are claimed first with
// SETNX; only newly claimed jobs get pushed, so a key already in flight is
// silently skipped. Any Redis failure fails the whole call.
func (q *RedisQ) BulkSubmit(ctx context.Context, jobs []domain.PollJob) error {
	if len(jobs) == 0 {
		return nil
	}

	claims := make([]*r.BoolCmd, len(jobs))
	claim := q.rdb.Pipeline()
	for i, j := range jobs {
		claims[i] = claim.SetNX(ctx, dedupePrefix+j.DedupeKey, 1, dedupeTTL)
	}
	if _, err := claim.Exec(ctx); err != nil {
		return errors.Wrap(err, "claim dedupe keys")
	}

	now := time.Now().Unix()
	push := q.rdb.TxPipeline()
	queued := 0
	for i, j := range jobs {
		if !claims[i].Val() {
			continue
		}
		payload, err := json.Marshal(Envelope{
			Name:       j.Name,
			ShipmentID: j.ShipmentID,
			DedupeKey:  j.DedupeKey,
			Priority:   int(j.Priority),
			EnqueuedAt: now,
		})
		if err != nil {
			return errors.Wrap(err, "encode job")
		}
		push.LPush(ctx, tierKey(j.Priority), payload)
		queued++
	}
	if queued == 0 {
		return nil
	}
	if _, err := push.Exec(ctx); err != nil {
		return errors.Wrap(err, "push jobs")
	}
	return nil
}

// Dequeue blocks up to the given duration for the next job, draining tiers
// in priority order. Returns a nil job (and nil error) on timeout.
func (q *RedisQ) Dequeue(ctx context.Context, block time.Duration) (*domain.PollJob, error) {
	res, err := q.rdb.BRPop(ctx, block, tierKeys()...).Result()
	if err == r.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "brpop")
	}
	if len(res) != 2 {
		return nil, errors.Errorf("unexpected brpop reply of %d elements", len(res))
	}
	return decodeJob([]byte(res[1]))
}

func decodeJob(payload []byte) (*domain.PollJob, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, errors.Wrap(err, "decode job payload")
	}
	if env.ShipmentID == "" {
		return nil, errors.New("job payload missing shipment id")
	}
	return &domain.PollJob{
		Name:       env.Name,
		ShipmentID: env.ShipmentID,
		DedupeKey:  env.DedupeKey,
		Priority:   domain.UrgencyTier(env.Priority),
	}, nil
}

// Complete releases a job's dedupe key once its poll finished, so the next
// scheduler pass can submit the shipment again.
func (q *RedisQ) Complete(ctx context.Context, dedupeKey string) error {
	return errors.Wrap(q.rdb.Del(ctx, dedupePrefix+dedupeKey).Err(), "release dedupe key")
}

// Depths reports the queued job count per tier, for health reporting.
func (q *RedisQ) Depths(ctx context.Context) (map[string]int64, error) {
	tiers := domain.Tiers()
	cmds := make([]*r.IntCmd, len(tiers))
	pipe := q.rdb.Pipeline()
	for i, t := range tiers {
		cmds[i] = pipe.LLen(ctx, tierKey(t))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, errors.Wrap(err, "queue depths")
	}
	out := make(map[string]int64, len(tiers))
	for i, t := range tiers {
		out[t.String()] = cmds[i].Val()
	}
	return out, nil
}
