// README: Benchmark cases: scorer latency, pool lookups, end-to-end dispatch and optional Redis/HTTP checks.
package main

import (
	"context"
	"fmt"
	"math/rand"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"kwenda/internal/config"
	"kwenda/internal/events"
	"kwenda/internal/modules/assignment"
	"kwenda/internal/modules/dispatch"
	"kwenda/internal/types"
)

const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusSkip = "SKIP"
)

var pickup = types.Point{Lat: -4.3217, Lng: 15.3069}

type Runner struct {
	cfg     Config
	httpc   *http.Client
	redis   *redis.Client
	drivers []dispatch.DriverState
}

type Result struct {
	Name    string
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
		cfg:     cfg,
		httpc:   &http.Client{Timeout: 10 * time.Second},
		drivers: syntheticDrivers(cfg.Drivers, cfg.Seed),
	}
}

func (r *Runner) RunAll(ctx context.Context) []Result {
	if r.cfg.RedisAddr != "" {
		r.redis = redis.NewClient(&redis.Options{Addr: r.cfg.RedisAddr})
		defer r.redis.Close()
	}

	tests := r.cases()
	results := make([]Result, 0, len(tests))
	for _, tc := range tests {
		res := tc.Run(ctx, r)
		res.Name = tc.Name
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
	return results
}

func (r *Runner) cases() []TestCase {
	return []TestCase{
		{Name: "Score: single caller latency", Run: scoreLatency},
		{Name: "Score: concurrent callers", Run: scoreConcurrent},
		{Name: "MemoryPool: radius lookup", Run: memoryPoolLookup},
		{Name: "Dispatch: end to end on memory pool", Run: dispatchEndToEnd},
		{Name: "Redis: pool load and lookup", Run: redisPoolLookup},
		{Name: "API: health", Run: apiHealth},
	}
}

// syntheticDrivers scatters n drivers within about 30km of the pickup.
func syntheticDrivers(n int, seed int64) []dispatch.DriverState {
	rng := rand.New(rand.NewSource(seed))
	out := make([]dispatch.DriverState, n)
	for i := range out {
		rating := 3 + rng.Float64()*2
		out[i] = dispatch.DriverState{
			ID:            types.ID(fmt.Sprintf("bench_driver_%05d", i)),
			Location:      types.Point{Lat: pickup.Lat + (rng.Float64()-0.5)*0.55, Lng: pickup.Lng + (rng.Float64()-0.5)*0.55},
			Rating:        &rating,
			CompletedJobs: rng.Intn(300),
			Available:     rng.Float64() < 0.8,
		}
	}
	return out
}

func (r *Runner) candidates() []dispatch.Candidate {
	out := make([]dispatch.Candidate, len(r.drivers))
	for i, d := range r.drivers {
		out[i] = dispatch.Candidate{ID: d.ID, Location: d.Location, Rating: d.Rating, CompletedJobs: d.CompletedJobs}
	}
	return out
}

func scoreLatency(ctx context.Context, r *Runner) Result {
	candidates := r.candidates()
	req := dispatch.Request{Pickup: pickup, Priority: dispatch.PriorityUrgent}
	samples := make([]time.Duration, 0, r.cfg.Iterations)
	kept := 0
	for i := 0; i < r.cfg.Iterations; i++ {
		if ctx.Err() != nil {
			return Result{Status: StatusFail, Note: ctx.Err().Error()}
		}
		start := time.Now()
		ranked, err := dispatch.Score(req, candidates)
		samples = append(samples, time.Since(start))
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		kept = len(ranked)
	}
	p50, p95, p99 := percentiles(samples)
	res := Result{
		Status:  StatusPass,
		Latency: p50,
		Note:    fmt.Sprintf("n=%d in_radius=%d p95=%s p99=%s", len(candidates), kept, p95, p99),
	}
	if p99 > r.cfg.P99Budget {
		res.Status = StatusFail
		res.Note += fmt.Sprintf(" over budget %s", r.cfg.P99Budget)
	}
	return res
}

// scoreConcurrent checks that parallel callers agree on the winner.
func scoreConcurrent(_ context.Context, r *Runner) Result {
	candidates := r.candidates()
	req := dispatch.Request{Pickup: pickup, Priority: dispatch.PriorityNormal}
	want, _ := dispatch.Score(req, candidates)
	best, ok := dispatch.PickBest(want)
	if !ok {
		return Result{Status: StatusSkip, Note: "no driver in radius"}
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	mismatches := 0
	start := time.Now()
	for g := 0; g < r.cfg.Concurrency; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < r.cfg.Iterations/r.cfg.Concurrency+1; i++ {
				got, err := dispatch.Score(req, candidates)
				b, _ := dispatch.PickBest(got)
				if err != nil || b.Candidate.ID != best.Candidate.ID {
					mu.Lock()
					mismatches++
					mu.Unlock()
				}
			}
		}()
	}
	wg.Wait()
	if mismatches > 0 {
		return Result{Status: StatusFail, Note: fmt.Sprintf("%d runs disagreed on the winner", mismatches)}
	}
	return Result{Status: StatusPass, Latency: time.Since(start), Note: "winner " + string(best.Candidate.ID)}
}

func memoryPoolLookup(ctx context.Context, r *Runner) Result {
	pool := dispatch.NewMemoryPool()
	for _, d := range r.drivers {
		if err := pool.Upsert(ctx, d); err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
	}
	samples := make([]time.Duration, 0, r.cfg.Iterations)
	found := 0
	for i := 0; i < r.cfg.Iterations; i++ {
		start := time.Now()
		got, err := pool.OnlineCandidates(ctx, pickup, dispatch.DefaultMaxDistanceKm, "")
		samples = append(samples, time.Since(start))
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		found = len(got)
	}
	p50, p95, p99 := percentiles(samples)
	return Result{Status: StatusPass, Latency: p50, Note: fmt.Sprintf("found=%d p95=%s p99=%s", found, p95, p99)}
}

func dispatchEndToEnd(ctx context.Context, r *Runner) Result {
	log := zap.NewNop()
	pool := dispatch.NewMemoryPool()
	for _, d := range r.drivers {
		if err := pool.Upsert(ctx, d); err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
	}
	bus := events.NewMemoryBus(16, log)
	assignments := assignment.NewService(assignment.NewMemoryRepository(), bus, 0, log)
	svc := dispatch.NewService(dispatch.ServiceDeps{Source: pool, Recorder: assignments, Bus: bus}, config.DispatchConfig{
		MaxDistanceKm:  dispatch.DefaultMaxDistanceKm,
		RadiusStepKm:   5,
		MaxRadiusKm:    25,
		RetryAttempts:  1,
		RetryInitialMs: 1,
	}, log)

	samples := make([]time.Duration, 0, r.cfg.Iterations)
	for i := 0; i < r.cfg.Iterations; i++ {
		start := time.Now()
		_, err := svc.Dispatch(ctx, dispatch.Command{
			OrderID:  types.ID(fmt.Sprintf("bench_order_%d", i)),
			Pickup:   pickup,
			Priority: dispatch.PriorityHigh,
		})
		samples = append(samples, time.Since(start))
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
	}
	p50, p95, p99 := percentiles(samples)
	return Result{Status: StatusPass, Latency: p50, Note: fmt.Sprintf("p95=%s p99=%s", p95, p99)}
}

func redisPoolLookup(ctx context.Context, r *Runner) Result {
	if r.redis == nil {
		return Result{Status: StatusSkip, Note: "redis not configured"}
	}
	store := dispatch.NewStore(r.redis)
	serviceType := fmt.Sprintf("bench_%d", time.Now().UnixNano())
	for _, d := range r.drivers {
		d.ServiceTypes = []string{serviceType}
		if err := store.Upsert(ctx, d); err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
	}
	defer func() {
		for _, d := range r.drivers {
			_ = store.Remove(ctx, d.ID)
		}
	}()

	iterations := min(r.cfg.Iterations, 100)
	samples := make([]time.Duration, 0, iterations)
	found := 0
	for i := 0; i < iterations; i++ {
		start := time.Now()
		got, err := store.OnlineCandidates(ctx, pickup, dispatch.DefaultMaxDistanceKm, serviceType)
		samples = append(samples, time.Since(start))
		if err != nil {
			return Result{Status: StatusFail, Note: err.Error()}
		}
		found = len(got)
	}
	p50, p95, p99 := percentiles(samples)
	return Result{Status: StatusPass, Latency: p50, Note: fmt.Sprintf("found=%d p95=%s p99=%s", found, p95, p99)}
}

func apiHealth(_ context.Context, r *Runner) Result {
	if r.cfg.BaseURL == "" {
		return Result{Status: StatusSkip, Note: "base-url not set"}
	}
	start := time.Now()
	resp, err := r.httpc.Get(r.cfg.BaseURL + "/health")
	if err != nil {
		return Result{Status: StatusFail, Note: err.Error()}
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Result{Status: StatusFail, Note: fmt.Sprintf("status=%d", resp.StatusCode)}
	}
	return Result{Status: StatusPass, Latency: time.Since(start)}
}

func percentiles(samples []time.Duration) (p50, p95, p99 time.Duration) {
	if len(samples) == 0 {
		return 0, 0, 0
	}
	sorted := slices.Clone(samples)
	slices.Sort(sorted)
	at := func(q float64) time.Duration {
		return sorted[int(q*float64(len(sorted)-1))]
	}
	return at(0.50), at(0.95), at(0.99)
}
