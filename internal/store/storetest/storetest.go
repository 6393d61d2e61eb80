// Package storetest provides in-memory databases and a small topology for tests.
package storetest

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"procodus.dev/gridloss/internal/store"
)

// NewDB opens a private in-memory sqlite database with all tables migrated.
func NewDB(logger *slog.Logger) (*gorm.DB, error) {
	return store.NewDB(&store.DBConfig{
		Logger: logger,
		Driver: store.DriverSQLite,
		Path:   fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
}

// Endpoint returns an active endpoint with the given consumer id and load.
func Endpoint(consumerID string, loadKw float64) store.Endpoint {
	return store.Endpoint{
		ConsumerID:       consumerID,
		ConsumerName:     "Consumer " + consumerID,
		Address:          "House 1, Test Lane",
		ConnectionType:   "residential",
		MeterNumber:      "MTR" + consumerID,
		ConnectionStatus: store.ConnectionActive,
		ConnectedLoadKw:  loadKw,
		IsActive:         true,
	}
}

// Transformer returns an active 230 V transformer.
func Transformer(code string) store.Transformer {
	return store.Transformer{
		Code:          code,
		Name:          "Transformer " + code,
		Type:          "distribution",
		Status:        store.TransformerActive,
		CapacityKva:   100,
		InputVoltage:  11000,
		OutputVoltage: 230,
		MaxEndpoints:  10,
		IsActive:      true,
	}
}

// Plan returns a company with two districts:
//
//	NORTH / ALPHA / TRF-N-A-01: CON-N-A-01-001..003
//	NORTH / BETA  / TRF-N-B-01: CON-N-B-01-001
//	SOUTH / GAMMA / TRF-S-G-01: CON-S-G-01-001..002
func Plan() *store.TopologyPlan {
	return &store.TopologyPlan{
		Company: store.Company{Code: "TST", Name: "Test Power", IsActive: true},
		Districts: []store.DistrictPlan{
			{
				District: store.District{Code: "NORTH", Name: "North", State: "Gujarat", IsActive: true},
				Villages: []store.VillagePlan{
					{
						Village: store.Village{Code: "ALPHA", Name: "Alpha", IsActive: true},
						Transformers: []store.TransformerPlan{{
							Transformer: Transformer("TRF-N-A-01"),
							Endpoints: []store.Endpoint{
								Endpoint("CON-N-A-01-001", 2),
								Endpoint("CON-N-A-01-002", 1.5),
								Endpoint("CON-N-A-01-003", 3),
							},
						}},
					},
					{
						Village: store.Village{Code: "BETA", Name: "Beta", IsActive: true},
						Transformers: []store.TransformerPlan{{
							Transformer: Transformer("TRF-N-B-01"),
							Endpoints:   []store.Endpoint{Endpoint("CON-N-B-01-001", 5)},
						}},
					},
				},
			},
			{
				District: store.District{Code: "SOUTH", Name: "South", State: "Gujarat", IsActive: true},
				Villages: []store.VillagePlan{
					{
						Village: store.Village{Code: "GAMMA", Name: "Gamma", IsActive: true},
						Transformers: []store.TransformerPlan{{
							Transformer: Transformer("TRF-S-G-01"),
							Endpoints: []store.Endpoint{
								Endpoint("CON-S-G-01-001", 2.5),
								Endpoint("CON-S-G-01-002", 1),
							},
						}},
					},
				},
			},
		},
	}
}

// Seed inserts Plan through repo and returns it with ids assigned.
func Seed(ctx context.Context, repo *store.Repository) (*store.TopologyPlan, error) {
	plan := Plan()
	if _, err := repo.CreateTopology(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}
