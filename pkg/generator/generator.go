// Package generator produces the synthetic identities and equipment values used
// to seed a distribution network.
package generator

import (
	"fmt"

	"github.com/brianvoe/gofakeit/v7"
)

// Consumer is the identity of one consumer connection.
type Consumer struct {
	Name           string  `fake:"{firstname} {lastname}"`
	Phone          string  `fake:"{phone}"`
	MeterNumber    string  `fake:"skip"`
	ConnectionType string  `fake:"skip"`
	LoadKw         float64 `fake:"skip"`
	Latitude       float64 `fake:"skip"`
	Longitude      float64 `fake:"skip"`
}

// Equipment is the nameplate and state of one transformer.
type Equipment struct {
	Type             string
	Status           string
	CapacityKva      float64
	EfficiencyRating float64
}

var (
	connectionTypes  = []string{"residential", "residential", "residential", "agricultural", "commercial"}
	connectedLoads   = []float64{1, 1.5, 2, 2.5, 3, 5}
	transformerTypes = []string{"distribution", "pole_mounted", "pad_mounted"}
	capacitiesKva    = []float64{25, 63, 100, 250}
)

// Generator draws values from a seedable source. A zero seed picks a random one.
type Generator struct {
	faker *gofakeit.Faker
}

// New creates a Generator.
func New(seed uint64) *Generator {
	return &Generator{faker: gofakeit.New(seed)}
}

// IntRange returns an int in [lo, hi].
func (g *Generator) IntRange(lo, hi int) int {
	return g.faker.IntRange(lo, hi)
}

// Coordinate returns a point within spread degrees of (lat, lon).
func (g *Generator) Coordinate(lat, lon, spread float64) (float64, float64) {
	return lat + g.faker.Float64Range(-spread, spread), lon + g.faker.Float64Range(-spread, spread)
}

// Pincode returns a six digit postal code in the 38xxxx range.
func (g *Generator) Pincode() string {
	return fmt.Sprintf("38%04d", g.faker.IntRange(1000, 9999))
}

// Consumer returns a consumer located near (lat, lon).
func (g *Generator) Consumer(lat, lon float64) (*Consumer, error) {
	var c Consumer
	if err := g.faker.Struct(&c); err != nil {
		return nil, fmt.Errorf("failed to generate consumer: %w", err)
	}

	c.MeterNumber = fmt.Sprintf("MTR%06d", g.faker.IntRange(100000, 999999))
	c.ConnectionType = g.faker.RandomString(connectionTypes)
	c.LoadKw = connectedLoads[g.faker.IntRange(0, len(connectedLoads)-1)]
	c.Latitude, c.Longitude = g.Coordinate(lat, lon, 0.005)

	return &c, nil
}

// Equipment returns a transformer nameplate. Status is active 95% of the time,
// maintenance 3% and faulty 2%.
func (g *Generator) Equipment() Equipment {
	status := "active"
	switch p := g.faker.Float64Range(0, 100); {
	case p >= 98:
		status = "faulty"
	case p >= 95:
		status = "maintenance"
	}

	return Equipment{
		Type:             g.faker.RandomString(transformerTypes),
		Status:           status,
		CapacityKva:      capacitiesKva[g.faker.IntRange(0, len(capacitiesKva)-1)],
		EfficiencyRating: g.faker.Float64Range(96, 99),
	}
}
