package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ProductionOrderLockKey builds the redis key serialising postings per production order.
func ProductionOrderLockKey(orderNo string) string {
	return fmt.Sprintf("stock:production-order:%s:lock", orderNo)
}

// ReturnReferenceLockKey builds the redis key serialising return postings per reference document.
func ReturnReferenceLockKey(docType, docNo string) string {
	return fmt.Sprintf("stock:return-ref:%s:%s:lock", docType, docNo)
}

// ErrLockNotAcquired is returned when the critical section is already held.
var ErrLockNotAcquired = errors.New("posting lock not acquired")

// PostingLocker guards stock posting critical sections with redis SET NX.
// Two concurrent submissions against the same production order or reference
// document must not both pass an aggregate quantity check, so the whole
// validate-and-post sequence runs under one of these locks.
type PostingLocker struct {
	client  *redis.Client
	ttl     time.Duration
	retry   time.Duration
	timeout time.Duration
}

// NewPostingLocker constructs a PostingLocker with posting-grade defaults.
func NewPostingLocker(client *redis.Client) *PostingLocker {
	return &PostingLocker{
		client:  client,
		ttl:     30 * time.Second,
		retry:   50 * time.Millisecond,
		timeout: 5 * time.Second,
	}
}

// Acquire blocks until the lock is held or the acquisition window elapses.
// The returned release function is safe to call once.
func (l *PostingLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if l == nil || l.client == nil {
		// Without redis the caller falls back to database isolation only.
		return func() {}, nil
	}
	token := uuid.NewString()
	deadline := time.Now().Add(l.timeout)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("shared: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return nil, ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retry):
		}
	}
	release := func() {
		// Delete only if we still own the lock.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		_ = l.client.Eval(context.Background(), script, []string{key}, token).Err()
	}
	return release, nil
}
