package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"nifty-options-lab/internal/errors"
	"nifty-options-lab/internal/models"
	"nifty-options-lab/internal/pricing"
	"nifty-options-lab/pkg/utils"
)

var formatMoney = utils.FormatIndianCurrency

// marketFlags are the inputs shared by the pricing and strategy commands.
type marketFlags struct {
	spot     float64
	days     float64
	rate     float64
	vol      float64
	dividend float64
}

func (f *marketFlags) register(cmd *cobra.Command, app *App) {
	cmd.Flags().Float64Var(&f.spot, "spot", 0, "underlying price")
	cmd.Flags().Float64Var(&f.days, "days", 30, "calendar days to expiry")
	cmd.Flags().Float64Var(&f.rate, "rate", app.Config.Pricing.RiskFreeRate, "annual risk-free rate")
	cmd.Flags().Float64Var(&f.vol, "vol", 0.20, "annual volatility")
	cmd.Flags().Float64Var(&f.dividend, "dividend", app.Config.Pricing.DividendYield, "annual dividend yield")
	_ = cmd.MarkFlagRequired("spot")
}

func (f *marketFlags) params(strike float64) models.OptionParams {
	return models.OptionParams{
		Spot:          f.spot,
		Strike:        strike,
		TimeToExpiry:  f.days / 365,
		RiskFreeRate:  f.rate,
		Volatility:    f.vol,
		DividendYield: f.dividend,
	}
}

// parseOptionalDate parses YYYY-MM-DD, treating an empty string as unset.
func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return utils.ParseDate(s)
}

// loadSurface reads a JSON array of surface points. A missing file is an
// empty surface when allowMissing is set.
func loadSurface(path string, allowMissing bool) (*pricing.Surface, error) {
	surface := pricing.NewSurface()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) && allowMissing {
		return surface, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read surface: %w", err)
	}
	var points []pricing.SurfacePoint
	if err := json.Unmarshal(raw, &points); err != nil {
		return nil, errors.NewValidationError("surface", path, err.Error())
	}
	for i, p := range points {
		if p.Strike <= 0 || p.Expiry <= 0 || p.IV <= 0 {
			return nil, errors.NewValidationError("surface", i, "strike, expiry_years and iv must be positive")
		}
		surface.Set(p.Strike, p.Expiry, p.IV)
	}
	return surface, nil
}

func saveSurface(path string, surface *pricing.Surface) error {
	raw, err := json.MarshalIndent(surface.Points(), "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, append(raw, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write surface: %w", err)
	}
	return nil
}
