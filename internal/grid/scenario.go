package grid

import "math/rand/v2"

// ScenarioTable is an ordered probability table. Order matters: selection walks
// the table accumulating probabilities.
type ScenarioTable []ScenarioWeight

// Sum returns the total probability mass of the table.
func (t ScenarioTable) Sum() float64 {
	var sum float64
	for _, w := range t {
		sum += w.Probability
	}
	return sum
}

// Pick draws a scenario from r. It returns the first scenario whose cumulative
// probability reaches the draw, or ScenarioNormal when rounding leaves the sum
// short of the draw.
func (t ScenarioTable) Pick(r *rand.Rand) Scenario {
	draw := r.Float64()

	var cumulative float64
	for _, w := range t {
		cumulative += w.Probability
		if draw <= cumulative {
			return w.Scenario
		}
	}

	return ScenarioNormal
}
