package grid

import "github.com/shopspring/decimal"

// Status is the classified operational state of a reading.
type Status string

// Reading statuses.
const (
	StatusNormal         Status = "normal"
	StatusLowVoltage     Status = "low_voltage"
	StatusHighVoltage    Status = "high_voltage"
	StatusLossDetected   Status = "loss_detected"
	StatusTheftSuspected Status = "theft_suspected"
	StatusEquipmentFault Status = "equipment_fault"
)

// Classification is the outcome of Classify.
type Classification struct {
	Status    Status
	IsAnomaly bool
}

// Losses are the values derived from a raw reading, rounded to storage precision.
type Losses struct {
	VoltageLoss    float64
	VoltageLossPct float64
	PowerLossKw    float64
	PowerLossPct   float64
	EnergyLossKwh  float64
}

var hundred = decimal.NewFromInt(100)

// Round rounds v half away from zero to the given number of decimal places.
func Round(v float64, places int32) float64 {
	return decimal.NewFromFloat(v).Round(places).InexactFloat64()
}

// DeriveLosses computes absolute and relative losses from raw values.
// Percentages are zero when the sent quantity is not positive.
func DeriveLosses(raw Raw) Losses {
	voltage := derive(raw.VoltageSent, raw.VoltageReceived)
	power := derive(raw.PowerSentKw, raw.PowerReceivedKw)
	energy := decimal.NewFromFloat(raw.EnergySentKwh).Sub(decimal.NewFromFloat(raw.EnergyReceivedKwh))

	return Losses{
		VoltageLoss:    voltage.loss.Round(2).InexactFloat64(),
		VoltageLossPct: voltage.pct.Round(2).InexactFloat64(),
		PowerLossKw:    power.loss.Round(3).InexactFloat64(),
		PowerLossPct:   power.pct.Round(2).InexactFloat64(),
		EnergyLossKwh:  energy.Round(3).InexactFloat64(),
	}
}

// Classify derives the status of a reading from its sent and received values.
// Rules are checked in order and the first match wins: low voltage, high
// voltage, theft-level loss, excess loss, normal.
func (t Thresholds) Classify(raw Raw) Classification {
	power := derive(raw.PowerSentKw, raw.PowerReceivedKw)

	switch {
	case raw.VoltageReceived < t.LowVoltage:
		return Classification{Status: StatusLowVoltage, IsAnomaly: true}
	case raw.VoltageReceived > t.HighVoltage:
		return Classification{Status: StatusHighVoltage, IsAnomaly: true}
	case power.pct.GreaterThan(decimal.NewFromFloat(t.TheftLossPct)):
		return Classification{Status: StatusTheftSuspected, IsAnomaly: true}
	case power.pct.GreaterThan(decimal.NewFromFloat(t.NormalLossPct)):
		return Classification{Status: StatusLossDetected, IsAnomaly: true}
	default:
		return Classification{Status: StatusNormal}
	}
}

type lossPair struct {
	loss decimal.Decimal
	pct  decimal.Decimal
}

func derive(sent, received float64) lossPair {
	s := decimal.NewFromFloat(sent)
	loss := s.Sub(decimal.NewFromFloat(received))

	if !s.IsPositive() {
		return lossPair{loss: loss, pct: decimal.Zero}
	}

	return lossPair{loss: loss, pct: loss.Div(s).Mul(hundred)}
}
