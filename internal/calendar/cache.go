package calendar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// CachedBusy keeps busy intervals in Redis for a short TTL so repeated slot
// lookups for the same day do not hit the provider every time. Only the read
// path uses it; booking commits always ask the provider directly.
type CachedBusy struct {
	Next   BusyReader
	Client *redis.Client
	TTL    time.Duration
	Log    *zap.Logger
}

func busyCacheKey(hostID string, start, end time.Time) string {
	return fmt.Sprintf("busy:%s:%d:%d", hostID, start.Unix(), end.Unix())
}

func (c *CachedBusy) ListBusyIntervals(ctx context.Context, hostID string, start, end time.Time) ([]BusyInterval, error) {
	key := busyCacheKey(hostID, start, end)

	raw, err := c.Client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if cached, jerr := decodeBusy(raw, start.Location()); jerr == nil {
			return cached, nil
		}
	case !errors.Is(err, redis.Nil):
		c.warn("busy cache read failed", hostID, err)
	}

	busy, err := c.Next.ListBusyIntervals(ctx, hostID, start, end)
	if err != nil {
		// Partial results are not cached.
		return busy, err
	}

	payload, err := json.Marshal(busy)
	if err == nil {
		if err := c.Client.Set(ctx, key, payload, c.TTL).Err(); err != nil {
			c.warn("busy cache write failed", hostID, err)
		}
	}
	return busy, nil
}

// decodeBusy reads a cached payload back into loc. JSON keeps the offset,
// not the zone, and all-day matching needs the zone.
func decodeBusy(raw []byte, loc *time.Location) ([]BusyInterval, error) {
	var cached []BusyInterval
	if err := json.Unmarshal(raw, &cached); err != nil {
		return nil, err
	}
	for i := range cached {
		cached[i].Start = cached[i].Start.In(loc)
		cached[i].End = cached[i].End.In(loc)
	}
	return cached, nil
}

func (c *CachedBusy) warn(msg, hostID string, err error) {
	if c.Log != nil {
		c.Log.Warn(msg, zap.String("host_id", hostID), zap.Error(err))
	}
}
