// Package strategy models the multi-leg option strategies traded by the lab.
package strategy

import (
	"fmt"
	"strings"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/models"
)

// Kind names a strategy template.
type Kind string

const (
	KindStraddle   Kind = "straddle"
	KindStrangle   Kind = "strangle"
	KindIronCondor Kind = "iron_condor"
	KindButterfly  Kind = "butterfly"
)

// AllKinds lists every supported template.
func AllKinds() []Kind {
	return []Kind{KindStraddle, KindStrangle, KindIronCondor, KindButterfly}
}

// ParseKind parses a strategy name, accepting dashes in place of underscores.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "-", "_"))
	for _, known := range AllKinds() {
		if k == known {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", errors.ErrUnknownStrategy, s)
}

// Bound is a profit or loss limit which may be unbounded.
type Bound struct {
	Value     float64 `json:"value" yaml:"value"`
	Unbounded bool    `json:"unbounded,omitempty" yaml:"unbounded,omitempty"`
}

// Limited returns a finite bound.
func Limited(v float64) Bound { return Bound{Value: v} }

// Unlimited returns an unbounded bound.
func Unlimited() Bound { return Bound{Unbounded: true} }

func (b Bound) String() string {
	if b.Unbounded {
		return "unlimited"
	}
	return fmt.Sprintf("%.2f", b.Value)
}

// Strategy is implemented only by Straddle, Strangle, IronCondor and Butterfly.
// Net premium is per unit, positive for a debit and negative for a credit.
type Strategy interface {
	Kind() Kind
	Legs() []models.Leg
	Breakevens(netPremium float64) []float64
	MaxProfitLoss(netPremium float64) (maxProfit, maxLoss Bound)
	sealed()
}

// Straddle is a long call and a long put at the same strike.
type Straddle struct {
	Strike float64
}

// NewStraddle validates the strike.
func NewStraddle(strike float64) (Straddle, error) {
	if strike <= 0 {
		return Straddle{}, errors.NewValidationError("strike", strike, "must be positive")
	}
	return Straddle{Strike: strike}, nil
}

func (Straddle) Kind() Kind { return KindStraddle }
func (Straddle) sealed()    {}

func (s Straddle) Legs() []models.Leg {
	return []models.Leg{
		{Strike: s.Strike, Type: models.Call, Direction: models.Long, Weight: 1},
		{Strike: s.Strike, Type: models.Put, Direction: models.Long, Weight: 1},
	}
}

func (s Straddle) Breakevens(debit float64) []float64 {
	return []float64{s.Strike - debit, s.Strike + debit}
}

func (s Straddle) MaxProfitLoss(debit float64) (Bound, Bound) {
	return Unlimited(), Limited(debit)
}

// Strangle is a long put below and a long call above the spot.
type Strangle struct {
	PutStrike  float64
	CallStrike float64
}

// NewStrangle validates PutStrike < CallStrike.
func NewStrangle(putStrike, callStrike float64) (Strangle, error) {
	if putStrike <= 0 || putStrike >= callStrike {
		return Strangle{}, errors.NewValidationError("strikes", []float64{putStrike, callStrike}, "need 0 < put strike < call strike")
	}
	return Strangle{PutStrike: putStrike, CallStrike: callStrike}, nil
}

func (Strangle) Kind() Kind { return KindStrangle }
func (Strangle) sealed()    {}

func (s Strangle) Legs() []models.Leg {
	return []models.Leg{
		{Strike: s.CallStrike, Type: models.Call, Direction: models.Long, Weight: 1},
		{Strike: s.PutStrike, Type: models.Put, Direction: models.Long, Weight: 1},
	}
}

func (s Strangle) Breakevens(debit float64) []float64 {
	return []float64{s.PutStrike - debit, s.CallStrike + debit}
}

func (s Strangle) MaxProfitLoss(debit float64) (Bound, Bound) {
	return Unlimited(), Limited(debit)
}

// IronCondor sells the K2 put and K3 call and buys the K1 put and K4 call as wings.
type IronCondor struct {
	K1, K2, K3, K4 float64
}

// NewIronCondor validates K1 < K2 < K3 < K4.
func NewIronCondor(k1, k2, k3, k4 float64) (IronCondor, error) {
	if !(k1 > 0 && k1 < k2 && k2 < k3 && k3 < k4) {
		return IronCondor{}, errors.NewValidationError("strikes", []float64{k1, k2, k3, k4}, "need 0 < K1 < K2 < K3 < K4")
	}
	return IronCondor{K1: k1, K2: k2, K3: k3, K4: k4}, nil
}

func (IronCondor) Kind() Kind { return KindIronCondor }
func (IronCondor) sealed()    {}

func (c IronCondor) Legs() []models.Leg {
	return []models.Leg{
		{Strike: c.K1, Type: models.Put, Direction: models.Long, Weight: 1},
		{Strike: c.K2, Type: models.Put, Direction: models.Short, Weight: 1},
		{Strike: c.K3, Type: models.Call, Direction: models.Short, Weight: 1},
		{Strike: c.K4, Type: models.Call, Direction: models.Long, Weight: 1},
	}
}

func (c IronCondor) Breakevens(netPremium float64) []float64 {
	credit := -netPremium
	return []float64{c.K2 - credit, c.K3 + credit}
}

func (c IronCondor) MaxProfitLoss(netPremium float64) (Bound, Bound) {
	credit := -netPremium
	width := c.K2 - c.K1
	if w := c.K4 - c.K3; w > width {
		width = w
	}
	return Limited(credit), Limited(width - credit)
}

// Butterfly buys K1 and K3 calls and sells two K2 calls.
type Butterfly struct {
	Lower, Middle, Upper float64
}

// NewButterfly validates Lower < Middle < Upper.
func NewButterfly(lower, middle, upper float64) (Butterfly, error) {
	if !(lower > 0 && lower < middle && middle < upper) {
		return Butterfly{}, errors.NewValidationError("strikes", []float64{lower, middle, upper}, "need 0 < K1 < K2 < K3")
	}
	return Butterfly{Lower: lower, Middle: middle, Upper: upper}, nil
}

func (Butterfly) Kind() Kind { return KindButterfly }
func (Butterfly) sealed()    {}

func (b Butterfly) Legs() []models.Leg {
	return []models.Leg{
		{Strike: b.Lower, Type: models.Call, Direction: models.Long, Weight: 1},
		{Strike: b.Middle, Type: models.Call, Direction: models.Short, Weight: 2},
		{Strike: b.Upper, Type: models.Call, Direction: models.Long, Weight: 1},
	}
}

func (b Butterfly) Breakevens(debit float64) []float64 {
	return []float64{b.Lower + debit, b.Upper - debit}
}

func (b Butterfly) MaxProfitLoss(debit float64) (Bound, Bound) {
	return Limited(b.Middle - b.Lower - debit), Limited(debit)
}
