package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPercentiles(t *testing.T) {
	var samples []time.Duration
	for i := 100; i >= 1; i-- {
		samples = append(samples, time.Duration(i)*time.Millisecond)
	}
	p50, p95, p99 := percentiles(samples)
	assert.Equal(t, 50*time.Millisecond, p50)
	assert.Equal(t, 95*time.Millisecond, p95)
	assert.Equal(t, 99*time.Millisecond, p99)
	assert.Equal(t, 100*time.Millisecond, samples[0], "input is not reordered")

	p50, _, _ = percentiles(nil)
	assert.Zero(t, p50)
}

func TestSyntheticDrivers_Deterministic(t *testing.T) {
	a := syntheticDrivers(50, 7)
	b := syntheticDrivers(50, 7)
	assert.Equal(t, a, b)
	for _, d := range a {
		assert.NoError(t, d.Location.Validate())
	}
}

func TestRunner_LocalCases(t *testing.T) {
	r := NewRunner(Config{Drivers: 200, Iterations: 20, Concurrency: 4, P99Budget: time.Second, Seed: 1})
	results := r.RunAll(context.Background())
	byName := map[string]string{}
	for _, res := range results {
		byName[res.Name] = res.Status
	}
	assert.Equal(t, StatusPass, byName["Score: single caller latency"])
	assert.Equal(t, StatusPass, byName["Score: concurrent callers"])
	assert.Equal(t, StatusPass, byName["MemoryPool: radius lookup"])
	assert.Equal(t, StatusPass, byName["Dispatch: end to end on memory pool"])
	assert.Equal(t, StatusSkip, byName["Redis: pool load and lookup"])
	assert.Equal(t, StatusSkip, byName["API: health"])
}
