package grid

import "github.com/shopspring/decimal"

// AlertType categorises a loss alert.
type AlertType string

// Alert types.
const (
	AlertVoltageDrop    AlertType = "voltage_drop"
	AlertPowerLoss      AlertType = "power_loss"
	AlertTheftSuspected AlertType = "theft_suspected"
	AlertEquipmentFault AlertType = "equipment_fault"
	AlertOverload       AlertType = "overload"
	AlertLineFault      AlertType = "line_fault"
)

// Severity ranks an alert.
type Severity string

// Alert severities, lowest first.
const (
	SeverityInfo      Severity = "info"
	SeverityWarning   Severity = "warning"
	SeverityCritical  Severity = "critical"
	SeverityEmergency Severity = "emergency"
)

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

// Alert lifecycle states.
const (
	AlertActive        AlertStatus = "active"
	AlertAcknowledged  AlertStatus = "acknowledged"
	AlertInvestigating AlertStatus = "investigating"
	AlertResolved      AlertStatus = "resolved"
	AlertFalseAlarm    AlertStatus = "false_alarm"
)

var alertTransitions = map[AlertStatus][]AlertStatus{
	AlertActive:        {AlertAcknowledged, AlertInvestigating, AlertResolved, AlertFalseAlarm},
	AlertAcknowledged:  {AlertInvestigating, AlertResolved, AlertFalseAlarm},
	AlertInvestigating: {AlertResolved, AlertFalseAlarm},
}

// Terminal reports whether no further transition is allowed from s.
func (s AlertStatus) Terminal() bool {
	return s == AlertResolved || s == AlertFalseAlarm
}

// CanTransition reports whether an alert in state s may move to next.
func (s AlertStatus) CanTransition(next AlertStatus) bool {
	for _, allowed := range alertTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SourcesOf lists the states from which an alert may move to next.
func SourcesOf(next AlertStatus) []AlertStatus {
	var sources []AlertStatus
	for _, from := range []AlertStatus{AlertActive, AlertAcknowledged, AlertInvestigating} {
		if from.CanTransition(next) {
			sources = append(sources, from)
		}
	}
	return sources
}

// AlertFor maps a classified status and the power loss of raw to an alert
// type and severity. The loss percentage is compared unrounded, as in
// Classify. Theft wins over every other rule.
func (t Thresholds) AlertFor(status Status, raw Raw) (AlertType, Severity) {
	pct := derive(raw.PowerSentKw, raw.PowerReceivedKw).pct

	switch {
	case status == StatusTheftSuspected || pct.GreaterThan(decimal.NewFromFloat(t.TheftLossPct)):
		return AlertTheftSuspected, SeverityCritical
	case status == StatusLowVoltage:
		return AlertVoltageDrop, SeverityWarning
	case status == StatusHighVoltage:
		return AlertEquipmentFault, SeverityWarning
	case status == StatusEquipmentFault:
		return AlertEquipmentFault, SeverityCritical
	case pct.GreaterThan(decimal.NewFromFloat(t.WarningLossPct)):
		return AlertPowerLoss, SeverityWarning
	default:
		return AlertPowerLoss, SeverityInfo
	}
}

// MonthlyLoss projects the cost of a constant power loss over a month,
// rounded to two decimal places.
func (p Params) MonthlyLoss(powerLossKw float64) decimal.Decimal {
	return decimal.NewFromFloat(powerLossKw).
		Mul(decimal.NewFromInt(int64(p.HoursPerDay))).
		Mul(p.RatePerKwh).
		Mul(decimal.NewFromInt(int64(p.DaysPerMonth))).
		Round(2)
}

// DailyLoss prices a kW loss sustained over one day.
func (p Params) DailyLoss(powerLossKw float64) decimal.Decimal {
	return decimal.NewFromFloat(powerLossKw).
		Mul(decimal.NewFromInt(int64(p.HoursPerDay))).
		Mul(p.RatePerKwh).
		Round(2)
}
