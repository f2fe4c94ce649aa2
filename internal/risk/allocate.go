package risk

import (
	"math"
	"sort"

	"nifty-options-lab/internal/errors"
)

// Candidate is a strategy competing for capital.
type Candidate struct {
	Name           string  `json:"name" yaml:"name"`
	ExpectedReturn float64 `json:"expected_return" yaml:"expected_return"`
	Volatility     float64 `json:"volatility" yaml:"volatility"`
	MaxAllocation  float64 `json:"max_allocation" yaml:"max_allocation"`
}

// Allocation is the capital given to one candidate.
type Allocation struct {
	Name           string  `json:"name" yaml:"name"`
	Weight         float64 `json:"weight" yaml:"weight"`
	Capital        float64 `json:"capital" yaml:"capital"`
	Sharpe         float64 `json:"sharpe" yaml:"sharpe"`
	ExpectedReturn float64 `json:"expected_return" yaml:"expected_return"`
	Volatility     float64 `json:"volatility" yaml:"volatility"`
}

// AllocationPlan is the result of Allocate.
type AllocationPlan struct {
	Allocations        []Allocation `json:"allocations" yaml:"allocations"`
	TotalWeight        float64      `json:"total_weight" yaml:"total_weight"`
	ExpectedReturn     float64      `json:"expected_return" yaml:"expected_return"`
	ExpectedVolatility float64      `json:"expected_volatility" yaml:"expected_volatility"`
}

const defaultMaxAllocation = 0.30

// Allocate splits capital across candidates in proportion to their Sharpe
// ratios, best first, respecting each candidate's cap. Candidates with a
// non-positive Sharpe ratio receive nothing.
func Allocate(candidates []Candidate, capital, riskFreeRate float64) (AllocationPlan, error) {
	if capital <= 0 {
		return AllocationPlan{}, errors.NewValidationError("capital", capital, "must be positive")
	}

	ranked := make([]Allocation, 0, len(candidates))
	var sharpeSum float64
	for _, c := range candidates {
		if c.Volatility <= 0 {
			return AllocationPlan{}, errors.NewValidationError("volatility", c.Volatility, "must be positive for "+c.Name)
		}
		sharpe := (c.ExpectedReturn - riskFreeRate) / c.Volatility
		if sharpe <= 0 {
			continue
		}
		sharpeSum += sharpe
		ranked = append(ranked, Allocation{
			Name:           c.Name,
			Sharpe:         sharpe,
			ExpectedReturn: c.ExpectedReturn,
			Volatility:     c.Volatility,
			Weight:         c.MaxAllocation,
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Sharpe > ranked[j].Sharpe })

	var plan AllocationPlan
	var variance float64
	for _, a := range ranked {
		if plan.TotalWeight >= 1 {
			break
		}
		maxAlloc := a.Weight
		if maxAlloc <= 0 {
			maxAlloc = defaultMaxAllocation
		}
		a.Weight = math.Min(math.Min(a.Sharpe/sharpeSum, maxAlloc), 1-plan.TotalWeight)
		a.Capital = capital * a.Weight
		plan.TotalWeight += a.Weight
		plan.ExpectedReturn += a.Weight * a.ExpectedReturn
		variance += (a.Weight * a.Volatility) * (a.Weight * a.Volatility)
		plan.Allocations = append(plan.Allocations, a)
	}
	plan.ExpectedVolatility = math.Sqrt(variance)
	return plan, nil
}
