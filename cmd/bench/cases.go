// README: Smoke checks for the ambulance API: environment, schema, booking flow, allocation race, and load.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Sagnify/ambulance-booking/internal/infra"
	"github.com/Sagnify/ambulance-booking/internal/modules/booking"
	"github.com/Sagnify/ambulance-booking/internal/modules/location"
	"github.com/Sagnify/ambulance-booking/internal/types"
)

const (
	statusPass = "PASS"
	statusFail = "FAIL"
	statusSkip = "SKIP"
)

type Runner struct {
	cfg   Config
	httpc *http.Client
	db    *pgxpool.Pool
	redis *redis.Client
	runID string
}

type Result struct {
	Status  string
	Latency time.Duration
	Note    string
}

type TestCase struct {
	Name string
	Run  func(ctx context.Context, r *Runner) Result
}

func NewRunner(cfg Config) *Runner {
	return &Runner{
		cfg:   cfg,
		httpc: &http.Client{Timeout: 10 * time.Second},
		runID: fmt.Sprintf("bench-%d", time.Now().UnixNano()),
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.DSN != "" {
		if db, err := infra.NewDB(ctx, r.cfg.DSN); err == nil {
			r.db = db
		} else {
			fmt.Printf("db unavailable: %v\n", err)
		}
	}
	if r.cfg.RedisAddr != "" {
		if rdb, err := infra.NewRedis(ctx, r.cfg.RedisAddr); err == nil {
			r.redis = rdb
		} else {
			fmt.Printf("redis unavailable: %v\n", err)
		}
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		results = append(results, res)
		fmt.Printf("%-5s %s", res.Status, tc.Name)
		if res.Latency > 0 {
			fmt.Printf(" (%s)", res.Latency)
		}
		if res.Note != "" {
			fmt.Printf(" - %s", res.Note)
		}
		fmt.Println()
	}

	if r.db != nil {
		r.db.Close()
	}
	if r.redis != nil {
		_ = r.redis.Close()
	}
	return results
}

func (r *Runner) cases() []TestCase {
	base := r.cfg.BaseURL
	return []TestCase{
		{Name: "Env: Postgres connect", Run: checkDB},
		{Name: "Env: Redis GEO index", Run: checkRedisGeo},
		{Name: "Migration: apply (optional)", Run: applyMigration},
		{Name: "Migration: tables exist", Run: checkTables},
		{Name: "Migration: one-active-booking indexes exist", Run: checkUniqueIndexes},
		{Name: "Race: concurrent allocation of one driver", Run: allocationRace},

		httpCase("API: health", http.MethodGet, base+"/health", "", nil, []int{200}),
		httpCase("API: metrics", http.MethodGet, base+"/metrics", "", nil, []int{200}),
		httpCase("API: missing token -> 401", http.MethodGet, base+"/api/me/booking", "", nil, []int{401}),
		{Name: "Flow: create, duplicate, view, auto-assign, cancel", Run: bookingFlow},
		tokenCase("API: driver bookings", http.MethodGet, base+"/api/drivers/me/bookings", func(c Config) string { return c.DriverToken }, nil, []int{200}),
		tokenCase("API: driver location invalid -> 400", http.MethodPut, base+"/api/drivers/me/location", func(c Config) string { return c.DriverToken },
			map[string]any{"lat": 123.0, "lng": 456.0}, []int{400}),
		tokenCase("API: admin sweep", http.MethodPost, base+"/api/admin/sweep", func(c Config) string { return c.AdminToken }, nil, []int{200, 409}),

		{Name: "Perf: health throughput", Run: func(ctx context.Context, r *Runner) Result {
			return perfLoad(ctx, r, http.MethodGet, base+"/health", "", nil)
		}},
		{Name: "Perf: driver location throughput", Run: func(ctx context.Context, r *Runner) Result {
			if r.cfg.DriverToken == "" {
				return Result{Status: statusSkip, Note: "driver token not set"}
			}
			return perfLoad(ctx, r, http.MethodPut, base+"/api/drivers/me/location", r.cfg.DriverToken,
				map[string]any{"lat": 22.5726, "lng": 88.3639})
		}},
	}
}

func checkDB(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	start := time.Now()
	if err := r.db.Ping(ctx); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	return Result{Status: statusPass, Latency: time.Since(start)}
}

func checkRedisGeo(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: statusSkip, Note: "redis not configured"}
	}
	idx := location.NewRedisIndex(r.redis, "geo:"+r.runID)
	id := types.ID(r.runID)
	start := time.Now()
	if err := idx.SetDriver(ctx, id, types.Point{Lat: 22.5726, Lng: 88.3639}); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	p, err := idx.Position(ctx, id)
	_ = idx.RemoveDriver(ctx, id)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if p == nil {
		return Result{Status: statusFail, Note: "position not stored"}
	}
	return Result{Status: statusPass, Latency: time.Since(start)}
}

func applyMigration(ctx context.Context, r *Runner) Result {
	if !r.cfg.ApplyMigration {
		return Result{Status: statusSkip, Note: "apply-migration=false"}
	}
	if r.db == nil {
		return Result{Status: statusFail, Note: "db not configured"}
	}
	sql, err := os.ReadFile(r.cfg.MigrationPath)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, s := range splitSQL(string(sql)) {
		if _, err := r.db.Exec(ctx, s); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
	}
	return Result{Status: statusPass}
}

func checkTables(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	tables, err := extractNames(r.cfg.MigrationPath, tableRe)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, t := range tables {
		var exists bool
		err := r.db.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name=$1)", t,
		).Scan(&exists)
		if err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing table: " + t}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("tables=%d", len(tables))}
}

func checkUniqueIndexes(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	indexes, err := extractNames(r.cfg.MigrationPath, uniqueIndexRe)
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	for _, name := range indexes {
		var exists bool
		if err := r.db.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname=$1)", name).Scan(&exists); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		if !exists {
			return Result{Status: statusFail, Note: "missing index: " + name}
		}
	}
	return Result{Status: statusPass, Note: fmt.Sprintf("indexes=%d", len(indexes))}
}

// allocationRace seeds one driver and N pending bookings, then allocates the
// driver to every booking at once. Exactly one allocation may win.
func allocationRace(ctx context.Context, r *Runner) Result {
	if r.db == nil {
		return Result{Status: statusSkip, Note: "db not configured"}
	}
	store := booking.NewPostgresStore(r.db)
	hospital := types.ID(r.runID + "-h")
	driverID := types.ID(r.runID + "-d")
	if _, err := r.db.Exec(ctx,
		`INSERT INTO hospitals (id, name) VALUES ($1, $2)`,
		string(hospital), "bench hospital "+r.runID); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if _, err := r.db.Exec(ctx,
		`INSERT INTO drivers (id, hospital_id, name, availability) VALUES ($1, $2, 'bench driver', 'available')`,
		string(driverID), string(hospital)); err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}

	n := r.cfg.Concurrency
	ids := make([]types.ID, 0, n)
	now := time.Now()
	for i := 0; i < n; i++ {
		b := &booking.Booking{
			ID:          types.ID(fmt.Sprintf("%s-b%d", r.runID, i)),
			RequesterID: types.ID(fmt.Sprintf("%s-r%d", r.runID, i)),
			HospitalID:  hospital,
			Details:     booking.Details{PickupLocation: "bench", BookingType: "emergency"},
			Status:      booking.StatusPending,
			RequestedAt: now,
		}
		if err := store.Create(ctx, b); err != nil {
			return Result{Status: statusFail, Note: err.Error()}
		}
		ids = append(ids, b.ID)
	}

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		wins  int
		other []error
	)
	start := time.Now()
	for _, id := range ids {
		wg.Add(1)
		go func(id types.ID) {
			defer wg.Done()
			err := store.Allocate(ctx, booking.Allocation{
				BookingID:  id,
				HospitalID: hospital,
				DriverID:   driverID,
				At:         time.Now(),
				Actor:      booking.SystemActor,
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case errors.Is(err, booking.ErrDriverTaken):
			default:
				other = append(other, err)
			}
		}(id)
	}
	wg.Wait()
	latency := time.Since(start)

	if len(other) > 0 {
		return Result{Status: statusFail, Latency: latency, Note: errors.Join(other...).Error()}
	}
	if wins != 1 {
		return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("winners=%d", wins)}
	}
	return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("contenders=%d", n)}
}

func bookingFlow(ctx context.Context, r *Runner) Result {
	token := r.cfg.RequesterToken
	if token == "" {
		return Result{Status: statusSkip, Note: "requester token not set"}
	}
	base := r.cfg.BaseURL
	start := time.Now()

	code, body, err := r.do(ctx, http.MethodPost, base+"/api/bookings", token, map[string]any{
		"hospital_id":     r.cfg.HospitalID,
		"pickup_location": "Sealdah Station",
		"booking_type":    "emergency",
		"pickup_lat":      22.5678,
		"pickup_lng":      88.3710,
		"emergency_type":  "bench",
	})
	if err != nil {
		return Result{Status: statusFail, Note: err.Error()}
	}
	if code != http.StatusCreated {
		return Result{Status: statusFail, Note: fmt.Sprintf("create status=%d body=%s", code, body)}
	}
	var created struct {
		BookingID string `json:"booking_id"`
	}
	if err := json.Unmarshal(body, &created); err != nil || created.BookingID == "" {
		return Result{Status: statusFail, Note: "create: no booking_id"}
	}
	path := base + "/api/bookings/" + created.BookingID

	steps := []struct {
		name   string
		method string
		url    string
		body   any
		want   []int
	}{
		{"duplicate", http.MethodPost, base + "/api/bookings", map[string]any{"hospital_id": r.cfg.HospitalID, "pickup_location": "again", "booking_type": "emergency"}, []int{409}},
		{"view", http.MethodGet, path, nil, []int{200}},
		{"auto-assign", http.MethodPost, path + "/auto-assign", nil, []int{200, 409}},
		{"cancel", http.MethodPost, path + "/cancel", nil, []int{200}},
		{"cancel again", http.MethodPost, path + "/cancel", nil, []int{409}},
	}
	for _, s := range steps {
		code, body, err := r.do(ctx, s.method, s.url, token, s.body)
		if err != nil {
			return Result{Status: statusFail, Note: s.name + ": " + err.Error()}
		}
		if !contains(s.want, code) {
			return Result{Status: statusFail, Note: fmt.Sprintf("%s status=%d body=%s", s.name, code, body)}
		}
	}
	return Result{Status: statusPass, Latency: time.Since(start)}
}

func (r *Runner) do(ctx context.Context, method, url, token string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	return resp.StatusCode, out, err
}

func httpCase(name, method, url, token string, body any, okStatuses []int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			start := time.Now()
			code, _, err := r.do(ctx, method, url, token, body)
			if err != nil {
				return Result{Status: statusFail, Note: err.Error()}
			}
			latency := time.Since(start)
			if contains(okStatuses, code) {
				return Result{Status: statusPass, Latency: latency, Note: fmt.Sprintf("status=%d", code)}
			}
			return Result{Status: statusFail, Latency: latency, Note: fmt.Sprintf("status=%d", code)}
		},
	}
}

// tokenCase is an httpCase that is skipped when its token is not configured.
func tokenCase(name, method, url string, token func(Config) string, body any, okStatuses []int) TestCase {
	return TestCase{
		Name: name,
		Run: func(ctx context.Context, r *Runner) Result {
			t := token(r.cfg)
			if t == "" {
				return Result{Status: statusSkip, Note: "token not set"}
			}
			return httpCase(name, method, url, t, body, okStatuses).Run(ctx, r)
		},
	}
}

func perfLoad(ctx context.Context, r *Runner, method, url, token string, payload any) Result {
	end := time.Now().Add(r.cfg.Duration)
	var (
		count    int64
		errCount int64
		limited  int64
		mu       sync.Mutex
		wg       sync.WaitGroup
	)
	for i := 0; i < r.cfg.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for time.Now().Before(end) && ctx.Err() == nil {
				code, _, err := r.do(ctx, method, url, token, payload)
				mu.Lock()
				switch {
				case err != nil:
					errCount++
				case code == http.StatusTooManyRequests:
					limited++
				default:
					count++
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if count == 0 {
		return Result{Status: statusFail, Note: fmt.Sprintf("no requests completed (errors=%d limited=%d)", errCount, limited)}
	}
	rps := float64(count) / r.cfg.Duration.Seconds()
	return Result{Status: statusPass, Note: fmt.Sprintf("rps=%.1f errors=%d rate_limited=%d", rps, errCount, limited)}
}

func contains(list []int, v int) bool {
	for _, i := range list {
		if i == v {
			return true
		}
	}
	return false
}

var (
	tableRe       = regexp.MustCompile(`(?i)create\s+table\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
	uniqueIndexRe = regexp.MustCompile(`(?i)create\s+unique\s+index\s+if\s+not\s+exists\s+([a-zA-Z0-9_]+)`)
)

func extractNames(path string, re *regexp.Regexp) ([]string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	matches := re.FindAllStringSubmatch(string(b), -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names, nil
}

func splitSQL(sql string) []string {
	lines := strings.Split(sql, "\n")
	filtered := make([]string, 0, len(lines))
	for _, line := range lines {
		l := strings.TrimSpace(line)
		if strings.HasPrefix(l, "--") || l == "" {
			continue
		}
		filtered = append(filtered, line)
	}
	parts := strings.Split(strings.Join(filtered, "\n"), ";")
	stmts := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}
