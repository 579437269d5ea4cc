package ratelimit_test

import (
	"context"
	"fmt"
	"time"

	"httpload/internal/config"
	"httpload/internal/ratelimit"
)

func ExampleNewRateLimiter() {
	// Create a rate limiter allowing 100 requests per second
	limiter := ratelimit.NewRateLimiter(100)

	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 5; i++ {
		if _, err := limiter.Wait(ctx); err != nil {
			fmt.Println("Context cancelled")
			return
		}
	}
	elapsed := time.Since(start)

	fmt.Printf("5 requests completed in under 100ms: %v\n", elapsed < 100*time.Millisecond)
	// Output: 5 requests completed in under 100ms: true
}

func ExampleRateLimiter_SetRate() {
	limiter := ratelimit.NewRateLimiter(10)

	// Dynamically adjust rate during test
	limiter.SetRate(50)

	fmt.Printf("Rate updated to %.0f RPS\n", limiter.Rate())
	// Output: Rate updated to 50 RPS
}

func ExampleNewPhaseManager() {
	phases := []config.Phase{
		{Name: "ramp_up", Duration: 10 * time.Second, StartRPS: 5, EndRPS: 100},
		{Name: "steady", Duration: 30 * time.Second, RPS: 100},
	}

	pm := ratelimit.NewPhaseManager(phases)

	fmt.Printf("Phase: %s, Target rate: %.0f\n", pm.CurrentPhase().Name, pm.TargetRPS())
	// Output: Phase: ramp_up, Target rate: 5
}
