// Package grid holds the loss simulation core: scenario selection, reading synthesis,
// status classification and alert rules for a low-voltage distribution network.
package grid

import (
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// Scenario is an operating condition used to perturb a synthesized reading.
type Scenario string

// Operating scenarios, in selection order.
const (
	ScenarioNormal         Scenario = "normal"
	ScenarioLowVoltage     Scenario = "low_voltage"
	ScenarioHighLoss       Scenario = "high_loss"
	ScenarioTheft          Scenario = "theft"
	ScenarioEquipmentFault Scenario = "equipment_fault"
	ScenarioLineFault      Scenario = "line_fault"
)

// ScenarioWeight pairs a scenario with its selection probability.
type ScenarioWeight struct {
	Scenario    Scenario
	Probability float64
}

// Thresholds are the classification and alerting bounds.
type Thresholds struct {
	// LowVoltage and HighVoltage bound the received voltage in volts.
	LowVoltage  float64
	HighVoltage float64
	// NormalLossPct is the tolerated distribution loss in percent.
	NormalLossPct float64
	// TheftLossPct is the loss above which theft is suspected.
	TheftLossPct float64
	// WarningLossPct escalates a generic power loss alert to warning.
	WarningLossPct float64
}

// Params is the injectable simulation configuration.
type Params struct {
	Scenarios    ScenarioTable
	Thresholds   Thresholds
	RatePerKwh   decimal.Decimal
	HoursPerDay  int
	DaysPerMonth int
}

const probabilityTolerance = 1e-9

var (
	errEmptyScenarioTable  = errors.New("scenario table cannot be empty")
	errNegativeProbability = errors.New("scenario probability cannot be negative")
	errVoltageBounds       = errors.New("low voltage threshold must be below high voltage threshold")
	errLossBounds          = errors.New("normal loss threshold must not exceed theft threshold")
	errNegativeRate        = errors.New("rate per kWh cannot be negative")
	errProjectionWindow    = errors.New("hours per day and days per month must be positive")
)

// DefaultScenarios returns the standard probability table.
func DefaultScenarios() ScenarioTable {
	return ScenarioTable{
		{Scenario: ScenarioNormal, Probability: 0.70},
		{Scenario: ScenarioLowVoltage, Probability: 0.08},
		{Scenario: ScenarioHighLoss, Probability: 0.10},
		{Scenario: ScenarioTheft, Probability: 0.05},
		{Scenario: ScenarioEquipmentFault, Probability: 0.04},
		{Scenario: ScenarioLineFault, Probability: 0.03},
	}
}

// DefaultThresholds returns bounds of ±10% around 230V nominal, 5% normal loss
// and 15% theft suspicion.
func DefaultThresholds() Thresholds {
	return Thresholds{
		LowVoltage:     207,
		HighVoltage:    253,
		NormalLossPct:  5,
		TheftLossPct:   15,
		WarningLossPct: 10,
	}
}

// DefaultParams returns the standard simulation configuration.
func DefaultParams() Params {
	return Params{
		Scenarios:    DefaultScenarios(),
		Thresholds:   DefaultThresholds(),
		RatePerKwh:   decimal.RequireFromString("7.50"),
		HoursPerDay:  24,
		DaysPerMonth: 30,
	}
}

// Validate checks that the configuration is internally consistent.
func (p Params) Validate() error {
	if len(p.Scenarios) == 0 {
		return errEmptyScenarioTable
	}

	for _, w := range p.Scenarios {
		if w.Probability < 0 {
			return fmt.Errorf("%w: %s", errNegativeProbability, w.Scenario)
		}
	}

	if sum := p.Scenarios.Sum(); math.Abs(sum-1) > probabilityTolerance {
		return fmt.Errorf("scenario probabilities must sum to 1, got %v", sum)
	}

	if p.Thresholds.LowVoltage >= p.Thresholds.HighVoltage {
		return errVoltageBounds
	}

	if p.Thresholds.NormalLossPct > p.Thresholds.TheftLossPct {
		return errLossBounds
	}

	if p.RatePerKwh.IsNegative() {
		return errNegativeRate
	}

	if p.HoursPerDay <= 0 || p.DaysPerMonth <= 0 {
		return errProjectionWindow
	}

	return nil
}
