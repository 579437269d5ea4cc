package ratelimit

import (
	"time"

	"httpload/internal/config"
	"httpload/internal/core"
)

// minRampRPS keeps a ramp passing through zero from switching limiting off.
const minRampRPS = 0.01

type PhaseManager struct {
	phases    []config.Phase
	startTime time.Time
	clock     core.Clock
}

// NewPhaseManager creates a PhaseManager with a real clock.
func NewPhaseManager(phases []config.Phase) *PhaseManager {
	return NewPhaseManagerWithClock(phases, core.RealClock{})
}

// NewPhaseManagerWithClock creates a PhaseManager with a custom clock (for testing).
func NewPhaseManagerWithClock(phases []config.Phase, clock core.Clock) *PhaseManager {
	return &PhaseManager{
		phases:    phases,
		startTime: clock.Now(),
		clock:     clock,
	}
}

func (pm *PhaseManager) Elapsed() time.Duration {
	return pm.clock.Since(pm.startTime)
}

// Remaining returns the time left until the last phase ends.
func (pm *PhaseManager) Remaining() time.Duration {
	var total time.Duration
	for _, p := range pm.phases {
		total += p.Duration
	}
	if left := total - pm.Elapsed(); left > 0 {
		return left
	}
	return 0
}

func (pm *PhaseManager) CurrentPhaseIndex() int {
	elapsed := pm.Elapsed()
	var cumulative time.Duration
	for i, p := range pm.phases {
		cumulative += p.Duration
		if elapsed < cumulative {
			return i
		}
	}
	return len(pm.phases)
}

func (pm *PhaseManager) CurrentPhase() *config.Phase {
	idx := pm.CurrentPhaseIndex()
	if idx >= len(pm.phases) {
		return nil
	}
	return &pm.phases[idx]
}

func (pm *PhaseManager) IsComplete() bool {
	return pm.CurrentPhaseIndex() >= len(pm.phases)
}

// TargetRPS returns the rate the current phase asks for at this moment.
// Ramps are interpolated linearly. Zero means unthrottled.
func (pm *PhaseManager) TargetRPS() float64 {
	idx := pm.CurrentPhaseIndex()
	if idx >= len(pm.phases) {
		return 0
	}
	phase := pm.phases[idx]
	if phase.RPS > 0 {
		return phase.RPS
	}
	if !phase.IsRamp() {
		return phase.StartRPS
	}

	var phaseStart time.Duration
	for i := 0; i < idx; i++ {
		phaseStart += pm.phases[i].Duration
	}
	progress := float64(pm.Elapsed()-phaseStart) / float64(phase.Duration)
	if progress > 1 {
		progress = 1
	}
	rps := phase.StartRPS + (phase.EndRPS-phase.StartRPS)*progress
	if rps < minRampRPS {
		rps = minRampRPS
	}
	return rps
}
