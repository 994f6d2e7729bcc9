package lock

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dreamware/designsync/internal/apperr"
	"github.com/dreamware/designsync/internal/storage"
)

// DefaultLease is how long a granted lock lives without being released.
const DefaultLease = 5 * time.Minute

// KeyPrefix namespaces lock keys in the ephemeral store.
const KeyPrefix = "lock:"

// Key returns the store key for a resource's lock.
func Key(resourceID string) string {
	return KeyPrefix + resourceID
}

// Result is the outcome of Acquire.
type Result struct {
	// HeldBy is the current holder when the lock was not granted. It equals
	// the caller when the caller already holds the lock.
	HeldBy  string
	Granted bool
}

// Config holds the parameters for NewCoordinator.
type Config struct {
	Store   storage.Store
	Logger  *zap.Logger
	Lease   time.Duration // defaults to DefaultLease
	Timeout time.Duration // per store call, defaults to 2s
}

// Coordinator grants exclusive, time-bounded edit locks on resources.
//
// Mutual exclusion comes from the store's set-if-absent primitive, so it
// holds across processes sharing one Redis. A lock disappears when its holder
// releases it, when the lease runs out, or when the holder's last session
// disconnects. There is no queueing: a denied caller must retry.
type Coordinator struct {
	store   storage.Store
	logger  *zap.Logger
	lease   time.Duration
	timeout time.Duration
}

// NewCoordinator returns a Coordinator over cfg.Store, which is required.
func NewCoordinator(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Lease <= 0 {
		cfg.Lease = DefaultLease
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	return &Coordinator{
		store:   cfg.Store,
		logger:  cfg.Logger,
		lease:   cfg.Lease,
		timeout: cfg.Timeout,
	}
}

// Acquire tries to take the lock on resourceID for userID.
//
// Acquisition process:
// 1. Set-if-absent with the lease as TTL
// 2. On failure, read the current holder
// 3. If the holder vanished in between, try set-if-absent once more
// 4. If it vanished again, fail with a conflict error
//
// A holder re-acquiring its own lock is reported as not granted with
// HeldBy = userID; the lease is not extended.
func (c *Coordinator) Acquire(ctx context.Context, resourceID, userID string) (Result, error) {
	if err := validate("lock-acquire", resourceID, userID); err != nil {
		return Result{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	key := Key(resourceID)
	for attempt := 0; attempt < 2; attempt++ {
		ok, err := c.store.SetNX(ctx, key, []byte(userID), c.lease)
		if err != nil {
			return Result{}, apperr.Dependency("lock-acquire", err)
		}
		if ok {
			c.logger.Debug("lock granted", zap.String("resource_id", resourceID), zap.String("user_id", userID))
			return Result{Granted: true}, nil
		}

		holder, err := c.store.Get(ctx, key)
		if errors.Is(err, storage.ErrKeyNotFound) {
			continue
		}
		if err != nil {
			return Result{}, apperr.Dependency("lock-acquire", err)
		}
		return Result{HeldBy: string(holder)}, nil
	}

	// The holder changed under us twice; there is no holder to report.
	return Result{}, apperr.New(apperr.KindConflict, "lock-acquire", "lock is contended, try again")
}

// Release removes the lock only if userID holds it. Releasing a lock held by
// someone else, or no lock at all, is a silent no-op that returns false.
func (c *Coordinator) Release(ctx context.Context, resourceID, userID string) (bool, error) {
	if err := validate("lock-release", resourceID, userID); err != nil {
		return false, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	released, err := c.store.CompareAndDelete(ctx, Key(resourceID), []byte(userID))
	if err != nil {
		return false, apperr.Dependency("lock-release", err)
	}
	return released, nil
}

// ReleaseAll removes every lock held by userID and returns the resource IDs
// it released. Used when the user's last session disconnects.
func (c *Coordinator) ReleaseAll(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	keys, err := c.store.Scan(ctx, KeyPrefix)
	if err != nil {
		return nil, apperr.Dependency("lock-sweep", err)
	}

	var released []string
	for _, key := range keys {
		ok, err := c.store.CompareAndDelete(ctx, key, []byte(userID))
		if err != nil {
			return released, apperr.Dependency("lock-sweep", err)
		}
		if ok {
			released = append(released, strings.TrimPrefix(key, KeyPrefix))
		}
	}
	return released, nil
}

// Holder returns the current holder of resourceID's lock, if any.
func (c *Coordinator) Holder(ctx context.Context, resourceID string) (string, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	v, err := c.store.Get(ctx, Key(resourceID))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, apperr.Dependency("lock-holder", err)
	}
	return string(v), true, nil
}

func validate(op, resourceID, userID string) error {
	if resourceID == "" {
		return apperr.Validation(op, "resourceId is required")
	}
	if userID == "" {
		return apperr.Validation(op, "session is not authenticated")
	}
	return nil
}
