package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/niravscs/multiple-databases-demo/pkg/logger"
)

// DefaultRecordCachePrefix namespaces tenant records in Redis.
const DefaultRecordCachePrefix = "tenant:record:"

// RecordSealer encrypts cached records under a scope. *secrets.Sealer
// satisfies it.
type RecordSealer interface {
	Seal(scope string, plaintext []byte) ([]byte, error)
	Open(scope string, sealed []byte) ([]byte, error)
}

// CachedDirectory serves tenant records from Redis and falls back to the
// wrapped Directory on a miss. Misses are never cached, so a tenant created
// after a 404 becomes reachable immediately. Redis failures degrade to the
// wrapped Directory.
//
// Database descriptors carry credentials and never reach Redis in plaintext:
// with a RecordSealer every record is stored sealed under its routing key,
// without one only shared tenants are cached.
type CachedDirectory struct {
	next   Directory
	client redis.UniversalClient
	ttl    time.Duration
	prefix string
	sealer RecordSealer
	log    *slog.Logger
}

// CachedDirectoryOption configures a CachedDirectory.
type CachedDirectoryOption func(*CachedDirectory)

// WithRecordSealer seals cached records, which lets tenants owning a
// database be cached too.
func WithRecordSealer(s RecordSealer) CachedDirectoryOption {
	return func(d *CachedDirectory) {
		d.sealer = s
	}
}

// NewCachedDirectory wraps next with a Redis record cache.
func NewCachedDirectory(next Directory, client redis.UniversalClient, ttl time.Duration, log *slog.Logger, opts ...CachedDirectoryOption) *CachedDirectory {
	if log == nil {
		log = slog.Default()
	}
	d := &CachedDirectory{
		next:   next,
		client: client,
		ttl:    ttl,
		prefix: DefaultRecordCachePrefix,
		log:    log,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func normalizeKey(routingKey string) string {
	return strings.ToLower(strings.TrimSpace(routingKey))
}

func (d *CachedDirectory) key(routingKey string) string {
	return d.prefix + normalizeKey(routingKey)
}

func (d *CachedDirectory) encode(routingKey string, t *Tenant) ([]byte, bool) {
	if d.sealer == nil && t.HasOwnDatabase {
		return nil, false
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, false
	}
	if d.sealer == nil {
		return data, true
	}
	sealed, err := d.sealer.Seal(normalizeKey(routingKey), data)
	if err != nil {
		return nil, false
	}
	return sealed, true
}

func (d *CachedDirectory) decode(routingKey string, data []byte) (*Tenant, bool) {
	if d.sealer != nil {
		plain, err := d.sealer.Open(normalizeKey(routingKey), data)
		if err != nil {
			return nil, false
		}
		data = plain
	}
	var t Tenant
	if err := json.Unmarshal(data, &t); err != nil || t.Validate() != nil {
		return nil, false
	}
	if d.sealer == nil && t.HasOwnDatabase {
		return nil, false
	}
	return &t, true
}

// Resolve implements Directory.
func (d *CachedDirectory) Resolve(ctx context.Context, routingKey string) (*Tenant, error) {
	key := d.key(routingKey)

	data, err := d.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if t, ok := d.decode(routingKey, data); ok {
			return t, nil
		}
		d.log.WarnContext(ctx, "Discarding malformed cached tenant record", logger.RoutingKey(routingKey))
		_ = d.client.Del(ctx, key).Err()
	case !errors.Is(err, redis.Nil):
		d.log.WarnContext(ctx, "Tenant record cache unavailable", logger.Error(err))
	}

	t, err := d.next.Resolve(ctx, routingKey)
	if err != nil {
		return nil, err
	}

	if data, ok := d.encode(routingKey, t); ok {
		if err := d.client.Set(ctx, key, data, d.ttl).Err(); err != nil {
			d.log.WarnContext(ctx, "Failed to cache tenant record", logger.Error(err))
		}
	}
	return t, nil
}

// Invalidate drops the cached record for routingKey.
func (d *CachedDirectory) Invalidate(ctx context.Context, routingKey string) error {
	return d.client.Del(ctx, d.key(routingKey)).Err()
}
