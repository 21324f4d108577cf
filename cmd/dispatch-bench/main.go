// README: Benchmark runner for the dispatch scorer and driver pools; prints per-case results.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

func main() {
	cfg := loadConfig()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	bench := NewRunner(cfg)
	results := bench.RunAll(ctx)

	fmt.Println("\n== Summary ==")
	pass, fail, skipped := 0, 0, 0
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			pass++
		case StatusFail:
			fail++
		case StatusSkip:
			skipped++
		}
	}
	fmt.Printf("PASS=%d FAIL=%d SKIP=%d\n", pass, fail, skipped)

	if fail > 0 || (cfg.Strict && skipped > 0) {
		os.Exit(1)
	}
}

type Config struct {
	BaseURL    string
	RedisAddr  string
	Drivers    int
	Iterations int
	// P99Budget fails the scorer case when its p99 is slower.
	P99Budget   time.Duration
	Concurrency int
	Strict      bool
	Timeout     time.Duration
	Seed        int64
}

func loadConfig() Config {
	var cfg Config
	flag.StringVar(&cfg.BaseURL, "base-url", envOrDefault("KWENDA_BENCH_BASE_URL", ""), "API base URL; empty skips HTTP cases")
	flag.StringVar(&cfg.RedisAddr, "redis", envOrDefault("KWENDA_REDIS_ADDR", ""), "Redis address; empty skips Redis cases")
	flag.IntVar(&cfg.Drivers, "drivers", envOrDefaultInt("KWENDA_BENCH_DRIVERS", 1000), "Synthetic drivers around the pickup")
	flag.IntVar(&cfg.Iterations, "iterations", envOrDefaultInt("KWENDA_BENCH_ITERATIONS", 500), "Iterations per latency case")
	flag.DurationVar(&cfg.P99Budget, "p99", envOrDefaultDuration("KWENDA_BENCH_P99", 20*time.Millisecond), "p99 budget for scoring")
	flag.IntVar(&cfg.Concurrency, "concurrency", envOrDefaultInt("KWENDA_BENCH_CONCURRENCY", 8), "Goroutines for the concurrent case")
	flag.BoolVar(&cfg.Strict, "strict", envOrDefaultBool("KWENDA_BENCH_STRICT", false), "Fail on skipped cases")
	flag.DurationVar(&cfg.Timeout, "timeout", envOrDefaultDuration("KWENDA_BENCH_TIMEOUT", 60*time.Second), "Total timeout")
	flag.Int64Var(&cfg.Seed, "seed", 42, "Random seed for synthetic drivers")
	flag.Parse()
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return cfg
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		v = strings.ToLower(v)
		return v == "1" || v == "true" || v == "yes"
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var n int
		_, _ = fmt.Sscanf(v, "%d", &n)
		if n > 0 {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
