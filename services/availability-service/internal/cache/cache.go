package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/dockslots/services/availability-service/internal/model"
	"github.com/redis/go-redis/v9"
)

const (
	defaultTTL = 60 * time.Second
	scanCount  = 200
	genSuffix  = ":gen"
)

// Cache stores evaluated slot lists in Redis. Every entry for a facility-day
// is listed in an index set so one booking can drop all appointment types
// at once. A per-day generation counter guards writes: an evaluation that
// read generation g may only store its slots while the day is still at g,
// so a result computed before an invalidation is never stored after it.
type Cache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	prefix string
}

func New(rdb redis.Cmdable, ttl time.Duration, prefix string) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if prefix == "" {
		prefix = "avail"
	}
	return &Cache{rdb: rdb, ttl: ttl, prefix: prefix}
}

func (c *Cache) Key(req availability.Request) string {
	return fmt.Sprintf("%s:%d:%d:%s:%d", c.prefix, req.TenantID, req.FacilityID, req.Date, req.AppointmentTypeID)
}

func (c *Cache) IndexKey(tenantID, facilityID int64, date model.Date) string {
	return fmt.Sprintf("%s:%d:%d:%s:idx", c.prefix, tenantID, facilityID, date)
}

func (c *Cache) GenerationKey(tenantID, facilityID int64, date model.Date) string {
	return fmt.Sprintf("%s:%d:%d:%s%s", c.prefix, tenantID, facilityID, date, genSuffix)
}

// The generation outlives the entries it guards.
func (c *Cache) genTTL() time.Duration { return 2 * c.ttl }

// generationScript creates the counter at 0 when missing and returns it.
var generationScript = redis.NewScript(`
redis.call("SET", KEYS[1], "0", "NX", "PX", ARGV[1])
return redis.call("GET", KEYS[1])
`)

// setScript stores the slots only while the generation still equals ARGV[3].
var setScript = redis.NewScript(`
if redis.call("GET", KEYS[3]) ~= ARGV[3] then
  return 0
end
redis.call("SET", KEYS[1], ARGV[1], "PX", ARGV[2])
redis.call("SADD", KEYS[2], KEYS[1])
redis.call("PEXPIRE", KEYS[2], ARGV[2])
return 1
`)

func (c *Cache) Get(ctx context.Context, req availability.Request) ([]model.Slot, bool, error) {
	raw, err := c.rdb.Get(ctx, c.Key(req)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var slots []model.Slot
	if err := json.Unmarshal(raw, &slots); err != nil {
		return nil, false, fmt.Errorf("decode cached slots: %w", err)
	}
	return slots, true, nil
}

// Generation returns the current generation of the request's facility-day.
// Read it before evaluating and pass it to Set.
func (c *Cache) Generation(ctx context.Context, req availability.Request) (string, error) {
	key := c.GenerationKey(req.TenantID, req.FacilityID, req.Date)
	return generationScript.Run(ctx, c.rdb, []string{key}, c.genTTL().Milliseconds()).Text()
}

// Set stores slots computed at generation gen. It reports false, without
// error, when the day was invalidated since gen was read.
func (c *Cache) Set(ctx context.Context, req availability.Request, gen string, slots []model.Slot) (bool, error) {
	raw, err := json.Marshal(slots)
	if err != nil {
		return false, err
	}
	keys := []string{
		c.Key(req),
		c.IndexKey(req.TenantID, req.FacilityID, req.Date),
		c.GenerationKey(req.TenantID, req.FacilityID, req.Date),
	}
	stored, err := setScript.Run(ctx, c.rdb, keys, raw, c.ttl.Milliseconds(), gen).Int()
	if err != nil {
		return false, err
	}
	return stored == 1, nil
}

// InvalidateDay bumps the day's generation, then drops every appointment
// type cached for it.
func (c *Cache) InvalidateDay(ctx context.Context, tenantID, facilityID int64, date model.Date) error {
	if err := c.bump(ctx, c.GenerationKey(tenantID, facilityID, date)); err != nil {
		return err
	}
	idx := c.IndexKey(tenantID, facilityID, date)
	keys, err := c.rdb.SMembers(ctx, idx).Result()
	if err != nil {
		return err
	}
	return c.rdb.Del(ctx, append(keys, idx)...).Err()
}

// InvalidateFacility drops every cached day of a facility. Used when its
// configuration changes.
func (c *Cache) InvalidateFacility(ctx context.Context, tenantID, facilityID int64) error {
	return c.invalidateMatching(ctx, fmt.Sprintf("%s:%d:%d:*", c.prefix, tenantID, facilityID))
}

// InvalidateTenant drops date for every facility of the tenant, or every
// date when date is zero. Organization default hours and org-wide holidays
// change availability this way.
func (c *Cache) InvalidateTenant(ctx context.Context, tenantID int64, date model.Date) error {
	if date.IsZero() {
		return c.invalidateMatching(ctx, fmt.Sprintf("%s:%d:*", c.prefix, tenantID))
	}
	return c.invalidateMatching(ctx, fmt.Sprintf("%s:%d:*:%s:*", c.prefix, tenantID, date))
}

func (c *Cache) bump(ctx context.Context, genKey string) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.PExpire(ctx, genKey, c.genTTL())
		return nil
	})
	return err
}

// invalidateMatching bumps every generation and deletes every other key that
// matches pattern. Generations are bumped before entries are deleted.
func (c *Cache) invalidateMatching(ctx context.Context, pattern string) error {
	var gens, entries []string
	iter := c.rdb.Scan(ctx, 0, pattern, scanCount).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, genSuffix) {
			gens = append(gens, key)
		} else {
			entries = append(entries, key)
		}
	}
	if err := iter.Err(); err != nil {
		return err
	}
	for _, g := range gens {
		if err := c.bump(ctx, g); err != nil {
			return err
		}
	}
	for start := 0; start < len(entries); start += scanCount {
		end := min(start+scanCount, len(entries))
		if err := c.rdb.Del(ctx, entries[start:end]...).Err(); err != nil {
			return err
		}
	}
	return nil
}

func ReadyCheck(rdb redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
