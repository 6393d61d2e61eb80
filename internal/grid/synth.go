package grid

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
)

// Supply describes the transformer side of a connection.
type Supply struct {
	// OutputVoltage is the nominal secondary voltage.
	OutputVoltage float64
	// SiblingCount is the number of endpoints fed by the same transformer.
	// It stands in for line length.
	SiblingCount int
}

// Raw is an unclassified reading. Voltages in V, currents in A, power in kW,
// energy in kWh over a one hour tick, distance in meters.
type Raw struct {
	VoltageSent        float64
	VoltageReceived    float64
	CurrentSent        float64
	CurrentReceived    float64
	PowerSentKw        float64
	PowerReceivedKw    float64
	EnergySentKwh      float64
	EnergyReceivedKwh  float64
	PowerFactor        float64
	Frequency          float64
	LineDistanceMeters float64
}

// Synthesis is the output of Synthesize. ExpectedStatus is the status the
// scenario was meant to provoke; it is diagnostic only and may disagree with
// Classify.
type Synthesis struct {
	Raw            Raw
	Scenario       Scenario
	ExpectedStatus Status
}

var (
	// ErrInvalidVoltage marks a transformer whose output voltage cannot feed a reading.
	ErrInvalidVoltage = errors.New("transformer output voltage must be positive")
	// ErrInvalidLoad marks an endpoint with a negative sanctioned load.
	ErrInvalidLoad = errors.New("connected load cannot be negative")
)

// Synthesize produces a physically consistent reading for an endpoint with the
// given connected load, perturbed according to scenario. All draws come from r.
func Synthesize(r *rand.Rand, supply Supply, loadKw float64, scenario Scenario) (Synthesis, error) {
	if !(supply.OutputVoltage > 0) || math.IsInf(supply.OutputVoltage, 0) {
		return Synthesis{}, fmt.Errorf("%w: %v", ErrInvalidVoltage, supply.OutputVoltage)
	}

	if loadKw < 0 || math.IsNaN(loadKw) {
		return Synthesis{}, fmt.Errorf("%w: %v", ErrInvalidLoad, loadKw)
	}

	voltageSent := supply.OutputVoltage
	baseCurrent := loadKw * 1000 / voltageSent // P = V·I

	distance := float64(supply.SiblingCount*50 + 20 + r.IntN(81))
	distanceFactor := 1 + distance/10000

	var (
		voltageReceived float64
		currentReceived float64
		expected        Status
	)

	switch scenario {
	case ScenarioLowVoltage:
		loss := uniform(r, 0.10, 0.15)
		voltageReceived = voltageSent * (1 - loss)
		currentReceived = baseCurrent * 1.05
		expected = StatusLowVoltage
	case ScenarioHighLoss:
		loss := uniform(r, 0.08, 0.14)
		voltageReceived = voltageSent * (1 - loss*0.4)
		currentReceived = baseCurrent * (1 - loss*0.6)
		expected = StatusLossDetected
	case ScenarioTheft:
		loss := uniform(r, 0.15, 0.35)
		voltageReceived = voltageSent * (1 - uniform(r, 0.02, 0.05))
		currentReceived = baseCurrent * (1 - loss)
		expected = StatusTheftSuspected
	case ScenarioEquipmentFault:
		voltageReceived = voltageSent * uniform(r, 0.85, 1.05)
		currentReceived = baseCurrent * uniform(r, 0.7, 1.2)
		expected = StatusEquipmentFault
	case ScenarioLineFault:
		loss := uniform(r, 0.10, 0.25) * distanceFactor
		voltageReceived = voltageSent * (1 - loss*0.6)
		currentReceived = baseCurrent * (1 - loss*0.4)
		expected = StatusLossDetected
	default:
		scenario = ScenarioNormal
		loss := uniform(r, 0.02, 0.05)
		voltageReceived = voltageSent * (1 - loss*0.3)
		currentReceived = baseCurrent * (1 - loss*0.1)
		expected = StatusNormal
	}

	powerFactor := uniform(r, 0.85, 0.98)
	powerSent := voltageSent * baseCurrent * powerFactor / 1000
	powerReceived := voltageReceived * currentReceived * powerFactor / 1000
	frequency := uniform(r, 49.8, 50.2)

	return Synthesis{
		Raw: Raw{
			VoltageSent:        Round(voltageSent, 2),
			VoltageReceived:    Round(voltageReceived, 2),
			CurrentSent:        Round(baseCurrent, 2),
			CurrentReceived:    Round(currentReceived, 2),
			PowerSentKw:        Round(powerSent, 3),
			PowerReceivedKw:    Round(powerReceived, 3),
			EnergySentKwh:      Round(powerSent, 3),
			EnergyReceivedKwh:  Round(powerReceived, 3),
			PowerFactor:        Round(powerFactor, 2),
			Frequency:          Round(frequency, 2),
			LineDistanceMeters: Round(distance, 2),
		},
		Scenario:       scenario,
		ExpectedStatus: expected,
	}, nil
}

func uniform(r *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*r.Float64()
}
