package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// BumpChannel receives the new version whenever a tenant's snapshots are invalidated.
const BumpChannel = "snapshot.bump"

// Store persists widget snapshots.
type Store interface {
	ReportKey(ctx context.Context, tenantID, reportID, widgetID int64) (string, error)
	AdhocKey(ctx context.Context, tenantID int64, fingerprint string) (string, error)
	Get(ctx context.Context, key string) (*WidgetSnapshot, error)
	Set(ctx context.Context, key string, snap WidgetSnapshot, ttl time.Duration) error
}

// RedisStore keeps snapshots in Redis under per-tenant versioned keys.
type RedisStore struct {
	client   *redis.Client
	adhocTTL time.Duration
}

// NewRedisStore instantiates the store. adhocTTL applies to fingerprint keyed
// snapshots only; report snapshots live until regenerated or invalidated.
func NewRedisStore(client *redis.Client, adhocTTL time.Duration) *RedisStore {
	return &RedisStore{client: client, adhocTTL: adhocTTL}
}

// AdhocTTL returns the expiry used for ad hoc snapshots.
func (s *RedisStore) AdhocTTL() time.Duration {
	return s.adhocTTL
}

func versionKey(tenantID int64) string {
	return "snapshot:" + strconv.FormatInt(tenantID, 10) + ":version"
}

// Version returns the tenant's snapshot version, initialising it when missing.
func (s *RedisStore) Version(ctx context.Context, tenantID int64) (int64, error) {
	key := versionKey(tenantID)
	ver, err := s.client.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so concurrent initialisers agree on the first version.
		if err := s.client.SetNX(ctx, key, 1, 0).Err(); err != nil {
			return 0, fmt.Errorf("snapshot: init version: %w", err)
		}
		return s.client.Get(ctx, key).Int64()
	}
	if err != nil {
		return 0, fmt.Errorf("snapshot: version: %w", err)
	}
	if ver <= 0 {
		ver = 1
		if err := s.client.Set(ctx, key, ver, 0).Err(); err != nil {
			return 0, fmt.Errorf("snapshot: reset version: %w", err)
		}
	}
	return ver, nil
}

func (s *RedisStore) buildKey(ctx context.Context, tenantID int64, parts ...string) (string, error) {
	ver, err := s.Version(ctx, tenantID)
	if err != nil {
		return "", err
	}
	all := append([]string{"snapshot", strconv.FormatInt(tenantID, 10)}, parts...)
	return strings.Join(all, ":") + ":v" + strconv.FormatInt(ver, 10), nil
}

// ReportKey is the key of one report widget snapshot.
func (s *RedisStore) ReportKey(ctx context.Context, tenantID, reportID, widgetID int64) (string, error) {
	return s.buildKey(ctx, tenantID, "report", strconv.FormatInt(reportID, 10), "widget", strconv.FormatInt(widgetID, 10))
}

// AdhocKey is the key of an ad hoc dashboard widget snapshot.
func (s *RedisStore) AdhocKey(ctx context.Context, tenantID int64, fingerprint string) (string, error) {
	return s.buildKey(ctx, tenantID, "adhoc", fingerprint)
}

// Get loads a snapshot. A miss returns nil without error.
func (s *RedisStore) Get(ctx context.Context, key string) (*WidgetSnapshot, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshot: get %s: %w", key, err)
	}
	var snap WidgetSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("snapshot: decode %s: %w", key, err)
	}
	return &snap, nil
}

// Set replaces the snapshot at key with a single write. A zero ttl never expires.
func (s *RedisStore) Set(ctx context.Context, key string, snap WidgetSnapshot, ttl time.Duration) error {
	snap.CacheKey = key
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("snapshot: encode %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("snapshot: set %s: %w", key, err)
	}
	return nil
}

// Invalidate retires every snapshot of a tenant by bumping its version and
// publishing the new version on BumpChannel.
func (s *RedisStore) Invalidate(ctx context.Context, tenantID int64) error {
	ver, err := s.client.Incr(ctx, versionKey(tenantID)).Result()
	if err != nil {
		return fmt.Errorf("snapshot: bump version: %w", err)
	}
	msg := strconv.FormatInt(tenantID, 10) + ":" + strconv.FormatInt(ver, 10)
	return s.client.Publish(ctx, BumpChannel, msg).Err()
}

// InvalidateWidget deletes the current snapshot of one report widget.
func (s *RedisStore) InvalidateWidget(ctx context.Context, tenantID, reportID, widgetID int64) error {
	key, err := s.ReportKey(ctx, tenantID, reportID, widgetID)
	if err != nil {
		return err
	}
	if err := s.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("snapshot: delete %s: %w", key, err)
	}
	return nil
}
