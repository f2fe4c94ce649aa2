package pricing

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/sourcegraph/conc/pool"

	"nifty-options-lab/internal/models"
)

// pathsPerChunk fixes how paths are split so the random streams, and therefore
// the result, do not depend on the number of workers.
const pathsPerChunk = 10_000

// SimulationConfig controls a Monte Carlo run.
type SimulationConfig struct {
	Paths   int
	Seed    uint64
	Workers int
}

// SimulationResult is a discounted Monte Carlo estimate.
type SimulationResult struct {
	Price    float64
	StdError float64
	Paths    int
}

type chunkResult struct {
	index int
	n     int
	sum   float64
	sumSq float64
}

// MonteCarlo prices a European option from terminal prices drawn with the exact
// lognormal solution. Chunk i uses a PCG stream seeded with (Seed, i).
func MonteCarlo(p models.OptionParams, optType models.OptionType, cfg SimulationConfig) SimulationResult {
	if p.TimeToExpiry <= 0 || cfg.Paths <= 0 {
		return SimulationResult{Price: optType.Intrinsic(p.Spot, p.Strike)}
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}

	T := p.TimeToExpiry
	drift := (p.RiskFreeRate - p.DividendYield - 0.5*p.Volatility*p.Volatility) * T
	diffusion := p.Volatility * math.Sqrt(T)

	chunks := (cfg.Paths + pathsPerChunk - 1) / pathsPerChunk
	workPool := pool.NewWithResults[chunkResult]().WithMaxGoroutines(workers)
	for i := 0; i < chunks; i++ {
		index := i
		n := pathsPerChunk
		if rem := cfg.Paths - index*pathsPerChunk; rem < n {
			n = rem
		}
		workPool.Go(func() chunkResult {
			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(index)))
			res := chunkResult{index: index, n: n}
			for k := 0; k < n; k++ {
				st := p.Spot * math.Exp(drift+diffusion*rng.NormFloat64())
				payoff := optType.Intrinsic(st, p.Strike)
				res.sum += payoff
				res.sumSq += payoff * payoff
			}
			return res
		})
	}
	results := workPool.Wait()
	sort.Slice(results, func(i, j int) bool { return results[i].index < results[j].index })

	var sum, sumSq float64
	for _, r := range results {
		sum += r.sum
		sumSq += r.sumSq
	}
	m := float64(cfg.Paths)
	mean := sum / m
	variance := math.Max(sumSq/m-mean*mean, 0)
	disc := math.Exp(-p.RiskFreeRate * T)

	return SimulationResult{
		Price:    disc * mean,
		StdError: disc * math.Sqrt(variance) / math.Sqrt(m),
		Paths:    cfg.Paths,
	}
}
