package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TopologyPlan is a company with everything below it, ready to be inserted.
// Parent ids are assigned by CreateTopology.
type TopologyPlan struct {
	Company   Company
	Districts []DistrictPlan
}

// DistrictPlan is a district with its villages.
type DistrictPlan struct {
	Villages []VillagePlan
	District District
}

// VillagePlan is a village with its transformers.
type VillagePlan struct {
	Transformers []TransformerPlan
	Village      Village
}

// TransformerPlan is a transformer with the endpoints it feeds.
type TransformerPlan struct {
	Endpoints   []Endpoint
	Transformer Transformer
}

// TopologyCounts reports how many rows of each level were inserted.
type TopologyCounts struct {
	Districts    int
	Villages     int
	Transformers int
	Endpoints    int
}

// CompanyByCode returns the company with the given code.
func (r *Repository) CompanyByCode(ctx context.Context, code string) (company *Company, err error) {
	defer func(start time.Time) { r.observe("select", "companies", start, err) }(time.Now())

	company = &Company{}
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(company).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCompanyNotFound, code)
		}
		return nil, fmt.Errorf("failed to fetch company: %w", err)
	}

	return company, nil
}

// CreateTopology inserts plan in a single transaction.
func (r *Repository) CreateTopology(ctx context.Context, plan *TopologyPlan) (counts TopologyCounts, err error) {
	defer func(start time.Time) { r.observe("insert", "companies", start, err) }(time.Now())

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tx = tx.Omit(clause.Associations).Session(&gorm.Session{})

		if err := tx.Create(&plan.Company).Error; err != nil {
			return fmt.Errorf("failed to insert company %s: %w", plan.Company.Code, err)
		}

		for i := range plan.Districts {
			dp := &plan.Districts[i]
			dp.District.CompanyID = plan.Company.ID
			if err := tx.Create(&dp.District).Error; err != nil {
				return fmt.Errorf("failed to insert district %s: %w", dp.District.Code, err)
			}
			counts.Districts++

			for j := range dp.Villages {
				vp := &dp.Villages[j]
				vp.Village.DistrictID = dp.District.ID
				if err := tx.Create(&vp.Village).Error; err != nil {
					return fmt.Errorf("failed to insert village %s: %w", vp.Village.Code, err)
				}
				counts.Villages++

				for k := range vp.Transformers {
					tp := &vp.Transformers[k]
					tp.Transformer.VillageID = vp.Village.ID
					if err := tx.Create(&tp.Transformer).Error; err != nil {
						return fmt.Errorf("failed to insert transformer %s: %w", tp.Transformer.Code, err)
					}
					counts.Transformers++

					if len(tp.Endpoints) == 0 {
						continue
					}
					for e := range tp.Endpoints {
						tp.Endpoints[e].TransformerID = tp.Transformer.ID
					}
					if err := tx.CreateInBatches(tp.Endpoints, 100).Error; err != nil {
						return fmt.Errorf("failed to insert endpoints of %s: %w", tp.Transformer.Code, err)
					}
					counts.Endpoints += len(tp.Endpoints)
				}
			}
		}

		return nil
	})
	if err != nil {
		return TopologyCounts{}, err
	}

	r.logger.Info("topology created",
		"company", plan.Company.Code,
		"districts", counts.Districts,
		"villages", counts.Villages,
		"transformers", counts.Transformers,
		"endpoints", counts.Endpoints,
	)

	return counts, nil
}

// SetConnectionStatus changes the connection status of an endpoint. Only active
// connections take part in simulation.
func (r *Repository) SetConnectionStatus(ctx context.Context, consumerID string, status ConnectionStatus) (err error) {
	defer func(start time.Time) { r.observe("update", "endpoints", start, err) }(time.Now())

	res := r.db.WithContext(ctx).Model(&Endpoint{}).
		Where("consumer_id = ?", consumerID).
		Update("connection_status", status)
	if res.Error != nil {
		return fmt.Errorf("failed to update endpoint: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("endpoint %s not found", consumerID)
	}

	return nil
}
