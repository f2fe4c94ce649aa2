package pricing

import (
	"math"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/models"
)

// Volatility search bounds.
const (
	MinImpliedVol = 0.01
	MaxImpliedVol = 5.0
)

// ImpliedVolatility finds the volatility whose closed-form price matches
// marketPrice by bounded Brent minimisation of the squared price error.
// It returns ErrNoSolution when no volatility in the bounds reproduces the price.
func ImpliedVolatility(marketPrice float64, p models.OptionParams, optType models.OptionType) (float64, error) {
	// The input vol is irrelevant; validate the rest with a placeholder.
	if err := Validate(p.WithVolatility(1), optType); err != nil {
		return 0, err
	}
	if math.IsNaN(marketPrice) || marketPrice <= 0 || p.TimeToExpiry <= 0 {
		return 0, errors.ErrNoSolution
	}

	tol := 1e-4 * math.Max(1, marketPrice)
	lo := blackScholesRaw(p.WithVolatility(MinImpliedVol), optType)
	hi := blackScholesRaw(p.WithVolatility(MaxImpliedVol), optType)
	if marketPrice < lo-tol || marketPrice > hi+tol {
		return 0, errors.ErrNoSolution
	}

	objective := func(vol float64) float64 {
		diff := blackScholesRaw(p.WithVolatility(vol), optType) - marketPrice
		return diff * diff
	}
	vol, _ := brentMinimize(objective, MinImpliedVol, MaxImpliedVol, 1e-8, 500)
	if math.Abs(blackScholesRaw(p.WithVolatility(vol), optType)-marketPrice) > tol {
		return 0, errors.ErrNoSolution
	}
	return vol, nil
}

// brentMinimize finds a local minimum of f on [a, b] with Brent's method,
// golden-section steps combined with parabolic interpolation.
func brentMinimize(f func(float64) float64, a, b, xatol float64, maxIter int) (float64, bool) {
	sqrtEps := math.Sqrt(2.2e-16)
	goldenMean := 0.5 * (3 - math.Sqrt(5))

	fulc := a + goldenMean*(b-a)
	nfc, xf := fulc, fulc
	var rat, e float64
	fx := f(xf)
	ffulc, fnfc := fx, fx
	xm := 0.5 * (a + b)
	tol1 := sqrtEps*math.Abs(xf) + xatol/3
	tol2 := 2 * tol1

	for iter := 0; iter < maxIter; iter++ {
		if math.Abs(xf-xm) <= tol2-0.5*(b-a) {
			return xf, true
		}
		golden := true
		if math.Abs(e) > tol1 {
			golden = false
			r := (xf - nfc) * (fx - ffulc)
			q := (xf - fulc) * (fx - fnfc)
			p := (xf-fulc)*q - (xf-nfc)*r
			q = 2 * (q - r)
			if q > 0 {
				p = -p
			}
			q = math.Abs(q)
			r = e
			e = rat

			if math.Abs(p) < math.Abs(0.5*q*r) && p > q*(a-xf) && p < q*(b-xf) {
				rat = p / q
				x := xf + rat
				if (x-a) < tol2 || (b-x) < tol2 {
					rat = tol1 * signOrOne(xm-xf)
				}
			} else {
				golden = true
			}
		}
		if golden {
			if xf >= xm {
				e = a - xf
			} else {
				e = b - xf
			}
			rat = goldenMean * e
		}

		x := xf + signOrOne(rat)*math.Max(math.Abs(rat), tol1)
		fu := f(x)

		if fu <= fx {
			if x >= xf {
				a = xf
			} else {
				b = xf
			}
			fulc, ffulc = nfc, fnfc
			nfc, fnfc = xf, fx
			xf, fx = x, fu
		} else {
			if x < xf {
				a = x
			} else {
				b = x
			}
			if fu <= fnfc || nfc == xf {
				fulc, ffulc = nfc, fnfc
				nfc, fnfc = x, fu
			} else if fu <= ffulc || fulc == xf || fulc == nfc {
				fulc, ffulc = x, fu
			}
		}

		xm = 0.5 * (a + b)
		tol1 = sqrtEps*math.Abs(xf) + xatol/3
		tol2 = 2 * tol1
	}
	return xf, false
}

func signOrOne(x float64) float64 {
	if x < 0 {
		return -1
	}
	return 1
}
