package strategy

import (
	"github.com/shopspring/decimal"

	"nifty-options-lab/internal/errors"
)

// StrikeRules control how templates are struck around the spot.
type StrikeRules struct {
	Increment      float64 `mapstructure:"strike_increment"`
	StrangleOffset float64 `mapstructure:"strangle_offset"`
	CondorInner    float64 `mapstructure:"condor_inner"`
	CondorWing     float64 `mapstructure:"condor_wing"`
	ButterflyWing  float64 `mapstructure:"butterfly_wing"`
}

// DefaultStrikeRules matches the NIFTY strike grid.
func DefaultStrikeRules() StrikeRules {
	return StrikeRules{
		Increment:      50,
		StrangleOffset: 100,
		CondorInner:    100,
		CondorWing:     200,
		ButterflyWing:  100,
	}
}

// ATMStrike rounds spot to the nearest multiple of increment.
func ATMStrike(spot, increment float64) float64 {
	if increment <= 0 {
		return spot
	}
	inc := decimal.NewFromFloat(increment)
	return decimal.NewFromFloat(spot).Div(inc).Round(0).Mul(inc).InexactFloat64()
}

// Build strikes a template around spot.
func Build(kind Kind, spot float64, rules StrikeRules) (Strategy, error) {
	if spot <= 0 {
		return nil, errors.NewValidationError("spot", spot, "must be positive")
	}
	atm := ATMStrike(spot, rules.Increment)

	var (
		s   Strategy
		err error
	)
	switch kind {
	case KindStraddle:
		s, err = NewStraddle(atm)
	case KindStrangle:
		s, err = NewStrangle(atm-rules.StrangleOffset, atm+rules.StrangleOffset)
	case KindIronCondor:
		s, err = NewIronCondor(atm-rules.CondorWing, atm-rules.CondorInner, atm+rules.CondorInner, atm+rules.CondorWing)
	case KindButterfly:
		s, err = NewButterfly(atm-rules.ButterflyWing, atm, atm+rules.ButterflyWing)
	default:
		return nil, errors.Wrapf(errors.ErrUnknownStrategy, "build %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}
