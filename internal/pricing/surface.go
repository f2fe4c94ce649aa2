package pricing

import (
	"math"
	"sort"
	"sync"
)

// DefaultSurfaceVol is returned by an empty surface.
const DefaultSurfaceVol = 0.20

type surfaceKey struct {
	strike float64
	expiry float64 // years
}

// SurfacePoint is one implied volatility observation.
type SurfacePoint struct {
	Strike float64 `json:"strike"`
	Expiry float64 `json:"expiry_years"`
	IV     float64 `json:"iv"`
}

// Surface stores implied volatility points keyed by strike and time to expiry.
type Surface struct {
	mu     sync.RWMutex
	points map[surfaceKey]float64
}

// NewSurface creates an empty volatility surface.
func NewSurface() *Surface {
	return &Surface{points: make(map[surfaceKey]float64)}
}

// Set records the implied volatility at (strike, expiry).
func (s *Surface) Set(strike, expiry, iv float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.points[surfaceKey{strike, expiry}] = iv
}

// Len returns the number of points.
func (s *Surface) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.points)
}

// Points returns every point ordered by expiry, then strike.
func (s *Surface) Points() []SurfacePoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SurfacePoint, 0, len(s.points))
	for k, iv := range s.points {
		out = append(out, SurfacePoint{Strike: k.strike, Expiry: k.expiry, IV: iv})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Expiry != out[j].Expiry {
			return out[i].Expiry < out[j].Expiry
		}
		return out[i].Strike < out[j].Strike
	})
	return out
}

// Volatility returns the exact point when present. Otherwise the nearest stored
// strike and the nearest stored expiry are chosen independently and their
// point is used, falling back to DefaultSurfaceVol if that pair was never set.
func (s *Surface) Volatility(strike, expiry float64) float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if iv, ok := s.points[surfaceKey{strike, expiry}]; ok {
		return iv
	}
	if len(s.points) == 0 {
		return DefaultSurfaceVol
	}

	bestStrike, bestExpiry := math.NaN(), math.NaN()
	for k := range s.points {
		if math.IsNaN(bestStrike) || closer(k.strike, bestStrike, strike) {
			bestStrike = k.strike
		}
		if math.IsNaN(bestExpiry) || closer(k.expiry, bestExpiry, expiry) {
			bestExpiry = k.expiry
		}
	}
	if iv, ok := s.points[surfaceKey{bestStrike, bestExpiry}]; ok {
		return iv
	}
	return DefaultSurfaceVol
}

// closer reports whether candidate is nearer target than current, breaking ties
// toward the smaller value so map iteration order never matters.
func closer(candidate, current, target float64) bool {
	dc, dk := math.Abs(candidate-target), math.Abs(current-target)
	if dc != dk {
		return dc < dk
	}
	return candidate < current
}
