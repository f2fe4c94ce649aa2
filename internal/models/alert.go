package models

import "time"

// Severity grades a risk alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// RiskAction is the recommended response to an alert.
type RiskAction string

const (
	ActionReduce     RiskAction = "reduce"
	ActionHedgeDelta RiskAction = "hedge_delta"
	ActionRoll       RiskAction = "roll"
	ActionCloseAll   RiskAction = "close_all"
)

// AlertKind identifies which limit was breached.
type AlertKind string

const (
	AlertPositionSize  AlertKind = "position_size"
	AlertDailyLoss     AlertKind = "daily_loss"
	AlertDeltaExposure AlertKind = "delta_exposure"
	AlertGammaExposure AlertKind = "gamma_exposure"
	AlertThetaDecay    AlertKind = "theta_decay"
	AlertVaR           AlertKind = "var_limit"
)

// RiskAlert represents a breached risk limit.
type RiskAlert struct {
	Kind     AlertKind  `json:"kind" yaml:"kind"`
	Severity Severity   `json:"severity" yaml:"severity"`
	Message  string     `json:"message" yaml:"message"`
	Action   RiskAction `json:"action" yaml:"action"`
	Current  float64    `json:"current" yaml:"current"`
	Limit    float64    `json:"limit" yaml:"limit"`
	Date     time.Time  `json:"date,omitempty" yaml:"date,omitempty"`
}
