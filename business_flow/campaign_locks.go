package businessflow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	defaultCampaignLockTTL  = 5 * time.Minute
	defaultCampaignLockWait = 30 * time.Second
	campaignLockRetry       = 50 * time.Millisecond
)

// releaseCampaignLock deletes the key only if it still holds our token
var releaseCampaignLock = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// extendCampaignLock pushes the expiry out only while the key still holds our token
var extendCampaignLock = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

// CampaignLocker serializes state-changing operations per campaign
type CampaignLocker interface {
	// Lock blocks until the campaign is free, ctx is done or the wait budget
	// is spent. The returned func releases the lock and is safe to call once.
	Lock(ctx context.Context, campaignID uint) (func(), error)
}

type campaignLock struct {
	ch   chan struct{}
	refs int
}

// CampaignLockerImpl holds an in-process lock per campaign and, when a Redis
// client is configured, a cluster-wide SET NX lock on top of it
type CampaignLockerImpl struct {
	mu     sync.Mutex
	locks  map[uint]*campaignLock
	rc     *redis.Client
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// NewCampaignLocker creates a locker. rc may be nil for single-instance deployments.
func NewCampaignLocker(rc *redis.Client, prefix string, ttl, wait time.Duration) CampaignLocker {
	if ttl <= 0 {
		ttl = defaultCampaignLockTTL
	}
	if wait <= 0 {
		wait = defaultCampaignLockWait
	}
	return &CampaignLockerImpl{
		locks:  make(map[uint]*campaignLock),
		rc:     rc,
		prefix: prefix,
		ttl:    ttl,
		wait:   wait,
	}
}

func (l *CampaignLockerImpl) Lock(ctx context.Context, campaignID uint) (func(), error) {
	waitCtx, cancel := context.WithTimeout(ctx, l.wait)
	defer cancel()

	entry := l.acquireEntry(campaignID)
	select {
	case entry.ch <- struct{}{}:
	case <-waitCtx.Done():
		l.releaseEntry(campaignID, entry, false)
		return nil, lockWaitError(ctx, waitCtx)
	}

	token, err := l.lockRemote(ctx, waitCtx, campaignID)
	if err != nil {
		l.releaseEntry(campaignID, entry, true)
		return nil, err
	}

	stopKeepAlive := l.keepAlive(campaignID, token)

	var once sync.Once
	return func() {
		once.Do(func() {
			stopKeepAlive()
			l.unlockRemote(campaignID, token)
			l.releaseEntry(campaignID, entry, true)
		})
	}, nil
}

func (l *CampaignLockerImpl) acquireEntry(campaignID uint) *campaignLock {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.locks[campaignID]
	if !ok {
		entry = &campaignLock{ch: make(chan struct{}, 1)}
		l.locks[campaignID] = entry
	}
	entry.refs++
	return entry
}

func (l *CampaignLockerImpl) releaseEntry(campaignID uint, entry *campaignLock, held bool) {
	if held {
		<-entry.ch
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	entry.refs--
	if entry.refs == 0 {
		delete(l.locks, campaignID)
	}
}

func (l *CampaignLockerImpl) key(campaignID uint) string {
	return l.prefix + "campaign_lock:" + strconv.FormatUint(uint64(campaignID), 10)
}

func (l *CampaignLockerImpl) lockRemote(ctx, waitCtx context.Context, campaignID uint) (string, error) {
	if l.rc == nil {
		return "", nil
	}

	token := uuid.NewString()
	key := l.key(campaignID)
	for {
		ok, err := l.rc.SetNX(waitCtx, key, token, l.ttl).Result()
		if err != nil {
			if waitCtx.Err() != nil {
				return "", lockWaitError(ctx, waitCtx)
			}
			return "", fmt.Errorf("failed to acquire campaign lock: %w", err)
		}
		if ok {
			return token, nil
		}

		select {
		case <-time.After(campaignLockRetry):
		case <-waitCtx.Done():
			return "", lockWaitError(ctx, waitCtx)
		}
	}
}

// keepAlive extends the Redis key every third of the TTL while the lock is held,
// so a run that outlives the TTL keeps exclusive ownership. The returned func
// stops the extender and waits for it to exit.
func (l *CampaignLockerImpl) keepAlive(campaignID uint, token string) func() {
	if l.rc == nil || token == "" {
		return func() {}
	}

	stop := make(chan struct{})
	exited := make(chan struct{})
	go func() {
		defer close(exited)
		ticker := time.NewTicker(l.ttl / 3)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				extended, err := extendCampaignLock.Run(ctx, l.rc, []string{l.key(campaignID)}, token, l.ttl.Milliseconds()).Int()
				cancel()
				if err != nil {
					log.Printf("Failed to extend campaign lock %d: %v", campaignID, err)
					continue
				}
				if extended == 0 {
					log.Printf("Campaign lock %d expired while held", campaignID)
					return
				}
			}
		}
	}()

	return func() {
		close(stop)
		<-exited
	}
}

func (l *CampaignLockerImpl) unlockRemote(campaignID uint, token string) {
	if l.rc == nil || token == "" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := releaseCampaignLock.Run(ctx, l.rc, []string{l.key(campaignID)}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		log.Printf("Failed to release campaign lock %d: %v", campaignID, err)
	}
}

// lockWaitError distinguishes caller cancellation from an exhausted wait budget
func lockWaitError(ctx, waitCtx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return fmt.Errorf("%w: %v", ErrLockUnavailable, waitCtx.Err())
}
