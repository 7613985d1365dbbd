package location

import (
	"context"
	"fmt"
	"math"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sagnify/ambulance-booking/internal/types"
)

func TestRedisIndexRoundTrip(t *testing.T) {
	redisAddr := os.Getenv("AMB_TEST_REDIS_ADDR")
	if redisAddr == "" {
		t.Skip("AMB_TEST_REDIS_ADDR not set; skipping integration test")
	}

	rdb := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer rdb.Close()

	ctx := context.Background()
	key := fmt.Sprintf("geo:drivers:test:%d", time.Now().UnixNano())
	defer rdb.Del(ctx, key)
	idx := NewRedisIndex(rdb, key)

	p := types.Point{Lat: 22.5726, Lng: 88.3639}
	if err := idx.SetDriver(ctx, "d1", p); err != nil {
		t.Fatalf("SetDriver: %v", err)
	}
	got, err := idx.Position(ctx, "d1")
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if got == nil {
		t.Fatal("expected position in redis, got none")
	}
	// GEO encoding loses a little precision.
	if math.Abs(got.Lat-p.Lat) > 1e-4 || math.Abs(got.Lng-p.Lng) > 1e-4 {
		t.Fatalf("position = %v, want ~%v", got, p)
	}

	if err := idx.RemoveDriver(ctx, "d1"); err != nil {
		t.Fatalf("RemoveDriver: %v", err)
	}
	got, err = idx.Position(ctx, "d1")
	if err != nil {
		t.Fatalf("Position after remove: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil after remove, got %v", got)
	}
}
