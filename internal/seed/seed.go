// Package seed populates the database with a sample distribution network.
package seed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"procodus.dev/gridloss/internal/store"
	"procodus.dev/gridloss/pkg/generator"
)

// CompanyCode identifies the seeded company.
const CompanyCode = "TORRENT"

const (
	minTransformers = 4
	maxTransformers = 6
	minEndpoints    = 8
	maxEndpoints    = 10
	maxPerTrf       = 10
)

var (
	errLoggerRequired = errors.New("logger cannot be nil")
	errStoreRequired  = errors.New("store cannot be nil")
)

// Store is the persistence the seeder needs.
type Store interface {
	CompanyByCode(ctx context.Context, code string) (*store.Company, error)
	CreateTopology(ctx context.Context, plan *store.TopologyPlan) (store.TopologyCounts, error)
}

type villageData struct {
	Name       string
	Code       string
	Population uint
	Households uint
}

type districtData struct {
	Name        string
	Code        string
	Villages    []villageData
	CapacityKva float64
}

var districts = []districtData{
	{
		Name: "Anand", Code: "ANAND", CapacityKva: 50000,
		Villages: []villageData{
			{Name: "Borsad", Code: "BOR", Population: 5000, Households: 1200},
			{Name: "Petlad", Code: "PET", Population: 4500, Households: 1000},
			{Name: "Anklav", Code: "ANK", Population: 3000, Households: 700},
			{Name: "Sojitra", Code: "SOJ", Population: 2500, Households: 600},
		},
	},
	{
		Name: "Kheda", Code: "KHEDA", CapacityKva: 45000,
		Villages: []villageData{
			{Name: "Nadiad", Code: "NAD", Population: 6000, Households: 1400},
			{Name: "Kapadvanj", Code: "KAP", Population: 4000, Households: 900},
			{Name: "Mahudha", Code: "MAH", Population: 3500, Households: 800},
		},
	},
	{
		Name: "Vadodara", Code: "VADODARA", CapacityKva: 75000,
		Villages: []villageData{
			{Name: "Padra", Code: "PAD", Population: 5500, Households: 1300},
			{Name: "Dabhoi", Code: "DAB", Population: 4200, Households: 950},
			{Name: "Karjan", Code: "KAR", Population: 3800, Households: 850},
			{Name: "Savli", Code: "SAV", Population: 3200, Households: 750},
		},
	},
}

// Config holds the seeder configuration.
type Config struct {
	Logger *slog.Logger
	Store  Store
	// Seed makes the generated network reproducible; zero picks a random one.
	Seed uint64
}

// Seeder creates the sample network.
type Seeder struct {
	logger *slog.Logger
	store  Store
	seed   uint64
}

// Result describes a seeding run.
type Result struct {
	Company *store.Company
	Counts  store.TopologyCounts
	// Created is false when the company already existed and nothing was written.
	Created bool
}

// New creates a Seeder.
func New(cfg *Config) (*Seeder, error) {
	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	if cfg.Store == nil {
		return nil, errStoreRequired
	}

	return &Seeder{
		logger: cfg.Logger,
		store:  cfg.Store,
		seed:   cfg.Seed,
	}, nil
}

// Run inserts the sample network unless its company already exists.
func (s *Seeder) Run(ctx context.Context) (*Result, error) {
	existing, err := s.store.CompanyByCode(ctx, CompanyCode)
	switch {
	case err == nil:
		s.logger.Info("company already exists, skipping seed", "company", existing.Code)
		return &Result{Company: existing}, nil
	case !errors.Is(err, store.ErrCompanyNotFound):
		return nil, fmt.Errorf("failed to look up company: %w", err)
	}

	plan, err := s.Plan()
	if err != nil {
		return nil, err
	}

	counts, err := s.store.CreateTopology(ctx, plan)
	if err != nil {
		return nil, fmt.Errorf("failed to create topology: %w", err)
	}

	s.logger.Info("sample network created",
		"company", plan.Company.Code,
		"districts", counts.Districts,
		"villages", counts.Villages,
		"transformers", counts.Transformers,
		"endpoints", counts.Endpoints,
	)

	return &Result{Company: &plan.Company, Counts: counts, Created: true}, nil
}

// Plan builds the sample network without storing it.
func (s *Seeder) Plan() (*store.TopologyPlan, error) {
	gen := generator.New(s.seed)

	plan := &store.TopologyPlan{
		Company: store.Company{
			Code:         CompanyCode,
			Name:         "Torrent Power Limited",
			Address:      "Torrent House, Off Ashram Road, Ahmedabad - 380009, Gujarat",
			ContactEmail: "customercare@torrentpower.com",
			ContactPhone: "+91-79-26500500",
			IsActive:     true,
		},
	}

	for _, ds := range districts {
		dp := store.DistrictPlan{
			District: store.District{
				Code:             ds.Code,
				Name:             ds.Name,
				State:            "Gujarat",
				TotalCapacityKva: ds.CapacityKva,
				IsActive:         true,
			},
		}

		for _, vs := range ds.Villages {
			vp, err := villagePlan(gen, ds, vs)
			if err != nil {
				return nil, err
			}
			dp.Villages = append(dp.Villages, vp)
		}

		plan.Districts = append(plan.Districts, dp)
	}

	return plan, nil
}

func villagePlan(gen *generator.Generator, ds districtData, vs villageData) (store.VillagePlan, error) {
	lat, lon := gen.Coordinate(22.5, 72.5, 0.5)

	vp := store.VillagePlan{
		Village: store.Village{
			Code:            vs.Code,
			Name:            vs.Name,
			Pincode:         gen.Pincode(),
			Latitude:        lat,
			Longitude:       lon,
			Population:      vs.Population,
			TotalHouseholds: vs.Households,
			IsActive:        true,
		},
	}

	transformers := gen.IntRange(minTransformers, maxTransformers)
	for t := 1; t <= transformers; t++ {
		eq := gen.Equipment()
		tLat, tLon := gen.Coordinate(lat, lon, 0.01)
		number := fmt.Sprintf("%02d", t)

		tp := store.TransformerPlan{
			Transformer: store.Transformer{
				Code:             fmt.Sprintf("TRF-%s-%s-%s", ds.Code, vs.Code, number),
				Name:             fmt.Sprintf("%s Transformer %d", vs.Name, t),
				Type:             eq.Type,
				Status:           store.TransformerStatus(eq.Status),
				CapacityKva:      eq.CapacityKva,
				InputVoltage:     11000,
				OutputVoltage:    230,
				EfficiencyRating: eq.EfficiencyRating,
				Latitude:         tLat,
				Longitude:        tLon,
				MaxEndpoints:     maxPerTrf,
				IsActive:         true,
			},
		}

		endpoints := gen.IntRange(minEndpoints, maxEndpoints)
		for h := 1; h <= endpoints; h++ {
			c, err := gen.Consumer(tLat, tLon)
			if err != nil {
				return store.VillagePlan{}, err
			}

			tp.Endpoints = append(tp.Endpoints, store.Endpoint{
				ConsumerID:       fmt.Sprintf("CON-%s-%s-%s-%03d", ds.Code, vs.Code, number, h),
				ConsumerName:     c.Name,
				Address:          fmt.Sprintf("House %d, Near %s, %s", h, tp.Transformer.Name, vs.Name),
				PhoneNumber:      c.Phone,
				ConnectionType:   c.ConnectionType,
				MeterNumber:      c.MeterNumber,
				ConnectionStatus: store.ConnectionActive,
				ConnectedLoadKw:  c.LoadKw,
				Latitude:         c.Latitude,
				Longitude:        c.Longitude,
				IsActive:         true,
			})
		}

		vp.Transformers = append(vp.Transformers, tp)
	}

	return vp, nil
}
