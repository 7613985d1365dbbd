// README: Driver last-known location index backed by Redis GEO.
package location

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/Sagnify/ambulance-booking/internal/types"
)

const DefaultDriverKey = "geo:drivers"

type RedisIndex struct {
	redis *redis.Client
	key   string
}

func NewRedisIndex(rdb *redis.Client, key string) *RedisIndex {
	if key == "" {
		key = DefaultDriverKey
	}
	return &RedisIndex{redis: rdb, key: key}
}

func (s *RedisIndex) SetDriver(ctx context.Context, id types.ID, p types.Point) error {
	return s.redis.GeoAdd(ctx, s.key, &redis.GeoLocation{
		Name:      string(id),
		Longitude: p.Lng,
		Latitude:  p.Lat,
	}).Err()
}

// Position returns the indexed point, or nil when the driver has never reported.
func (s *RedisIndex) Position(ctx context.Context, id types.ID) (*types.Point, error) {
	pos, err := s.redis.GeoPos(ctx, s.key, string(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(pos) == 0 || pos[0] == nil {
		return nil, nil
	}
	return &types.Point{Lat: pos[0].Latitude, Lng: pos[0].Longitude}, nil
}

func (s *RedisIndex) RemoveDriver(ctx context.Context, id types.ID) error {
	return s.redis.ZRem(ctx, s.key, string(id)).Err()
}
