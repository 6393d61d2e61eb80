package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"procodus.dev/gridloss/internal/grid"
	"procodus.dev/gridloss/pkg/metrics"
)

var (
	// ErrAlertNotFound is returned when no alert has the requested id.
	ErrAlertNotFound = errors.New("alert not found")
	// ErrTransformerNotFound is returned when no transformer has the requested code.
	ErrTransformerNotFound = errors.New("transformer not found")
	// ErrCompanyNotFound is returned when no company has the requested code.
	ErrCompanyNotFound = errors.New("company not found")
	// ErrInvalidTransition is returned when an alert cannot move to the requested status.
	ErrInvalidTransition = errors.New("invalid alert status transition")
)

// Repository wraps the database with the queries the simulator and the API need.
type Repository struct {
	logger     *slog.Logger
	db         *gorm.DB
	metrics    *metrics.StoreMetrics // Optional metrics
	thresholds grid.Thresholds
}

// NewRepository creates a repository. Readings are classified with thresholds
// on insert.
func NewRepository(logger *slog.Logger, db *gorm.DB, thresholds grid.Thresholds) (*Repository, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if db == nil {
		return nil, errors.New("database cannot be nil")
	}

	return &Repository{
		logger:     logger,
		db:         db,
		thresholds: thresholds,
	}, nil
}

// SetMetrics sets the metrics collector for the repository.
func (r *Repository) SetMetrics(m *metrics.StoreMetrics) {
	r.metrics = m
}

// Filter narrows a query to part of the topology. The most specific non-zero
// field wins; a zero Filter matches everything.
type Filter struct {
	CompanyID     uint
	DistrictID    uint
	VillageID     uint
	TransformerID uint
}

// Scope describes the filter for logs.
func (f Filter) Scope() string {
	switch {
	case f.TransformerID != 0:
		return fmt.Sprintf("transformer:%d", f.TransformerID)
	case f.VillageID != 0:
		return fmt.Sprintf("village:%d", f.VillageID)
	case f.DistrictID != 0:
		return fmt.Sprintf("district:%d", f.DistrictID)
	case f.CompanyID != 0:
		return fmt.Sprintf("company:%d", f.CompanyID)
	default:
		return "all"
	}
}

func (r *Repository) observe(operation, table string, start time.Time, err error) {
	if r.metrics == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
	}
	r.metrics.OperationsTotal.WithLabelValues(operation, table, status).Inc()
	r.metrics.OperationDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}

// EligibleEndpoints returns the active endpoints under f with their
// transformer, village and district loaded.
func (r *Repository) EligibleEndpoints(ctx context.Context, f Filter) (endpoints []Endpoint, err error) {
	defer func(start time.Time) { r.observe("select", "endpoints", start, err) }(time.Now())

	q := r.db.WithContext(ctx).
		Model(&Endpoint{}).
		Joins("JOIN transformers ON transformers.id = endpoints.transformer_id").
		Joins("JOIN villages ON villages.id = transformers.village_id").
		Joins("JOIN districts ON districts.id = villages.district_id").
		Where("endpoints.is_active = ? AND endpoints.connection_status = ?", true, ConnectionActive)

	switch {
	case f.TransformerID != 0:
		q = q.Where("endpoints.transformer_id = ?", f.TransformerID)
	case f.VillageID != 0:
		q = q.Where("transformers.village_id = ?", f.VillageID)
	case f.DistrictID != 0:
		q = q.Where("villages.district_id = ?", f.DistrictID)
	case f.CompanyID != 0:
		q = q.Where("districts.company_id = ?", f.CompanyID)
	}

	if err := q.Preload("Transformer.Village.District").Order("endpoints.id").Find(&endpoints).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch endpoints: %w", err)
	}

	return endpoints, nil
}

// SiblingCounts returns, per transformer, the number of endpoints it feeds,
// including inactive ones.
func (r *Repository) SiblingCounts(ctx context.Context, transformerIDs []uint) (counts map[uint]int, err error) {
	defer func(start time.Time) { r.observe("select", "endpoints", start, err) }(time.Now())

	counts = make(map[uint]int, len(transformerIDs))
	if len(transformerIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		TransformerID uint
		Count         int
	}
	if err := r.db.WithContext(ctx).
		Model(&Endpoint{}).
		Select("transformer_id, COUNT(*) AS count").
		Where("transformer_id IN ?", transformerIDs).
		Group("transformer_id").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to count endpoints: %w", err)
	}

	for _, row := range rows {
		counts[row.TransformerID] = row.Count
	}
	return counts, nil
}

// AlertBuilder prepares the alert for an anomalous reading that has just been
// inserted. ReadingID is filled in by the repository.
type AlertBuilder func(reading *Reading) (*Alert, error)

// RecordResult reports what RecordReading persisted. AlertErr is set when the
// reading was stored but its alert could not be.
type RecordResult struct {
	Reading  *Reading
	Alert    *Alert
	AlertErr error
}

// RecordReading derives the loss and status columns of reading, inserts it and,
// when it is anomalous, inserts the alert produced by build. A failure to build
// or insert the alert leaves the reading committed.
func (r *Repository) RecordReading(ctx context.Context, reading *Reading, build AlertBuilder) (result *RecordResult, err error) {
	defer func(start time.Time) { r.observe("insert", "readings", start, err) }(time.Now())

	raw := reading.Raw()
	losses := grid.DeriveLosses(raw)
	class := r.thresholds.Classify(raw)

	reading.VoltageLoss = losses.VoltageLoss
	reading.VoltageLossPct = losses.VoltageLossPct
	reading.PowerLossKw = losses.PowerLossKw
	reading.PowerLossPct = losses.PowerLossPct
	reading.EnergyLossKwh = losses.EnergyLossKwh
	reading.Status = class.Status
	reading.IsAnomaly = class.IsAnomaly
	reading.Timestamp = reading.Timestamp.UTC()

	result = &RecordResult{Reading: reading}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(reading).Error; err != nil {
			return fmt.Errorf("failed to insert reading: %w", err)
		}

		if !reading.IsAnomaly || build == nil {
			return nil
		}

		alert, err := build(reading)
		if err != nil {
			result.AlertErr = fmt.Errorf("failed to build alert: %w", err)
			return nil
		}
		alert.ReadingID = reading.ID

		if err := tx.SavePoint("alert").Error; err != nil {
			return fmt.Errorf("failed to create savepoint: %w", err)
		}

		if err := tx.Omit(clause.Associations).Create(alert).Error; err != nil {
			if rbErr := tx.RollbackTo("alert").Error; rbErr != nil {
				return fmt.Errorf("failed to insert alert: %w; rollback to savepoint failed: %w", err, rbErr)
			}
			result.AlertErr = fmt.Errorf("failed to insert alert: %w", err)
			return nil
		}

		result.Alert = alert
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.AlertErr != nil {
		r.logger.Warn("reading stored without alert",
			"reading_id", reading.ID,
			"endpoint_id", reading.EndpointID,
			"error", result.AlertErr,
		)
	}

	return result, nil
}

// ReadingQuery selects a page of readings, newest first.
type ReadingQuery struct {
	Since           time.Time
	ConsumerID      string
	TransformerCode string
	Limit           int
	Offset          int
	AnomaliesOnly   bool
}

// ListReadings returns the readings matching q, with their endpoint, and
// whether more follow.
func (r *Repository) ListReadings(ctx context.Context, q ReadingQuery) (readings []Reading, more bool, err error) {
	defer func(start time.Time) { r.observe("select", "readings", start, err) }(time.Now())

	if q.Limit <= 0 {
		q.Limit = 100
	}

	db := r.db.WithContext(ctx).Model(&Reading{})
	if q.ConsumerID != "" {
		db = db.Where("endpoint_id IN (?)", r.db.Model(&Endpoint{}).Select("id").Where("consumer_id = ?", q.ConsumerID))
	}
	if q.TransformerCode != "" {
		db = db.Where("transformer_id IN (?)", r.db.Model(&Transformer{}).Select("id").Where("code = ?", q.TransformerCode))
	}
	if !q.Since.IsZero() {
		db = db.Where("readings.timestamp >= ?", q.Since.UTC())
	}
	if q.AnomaliesOnly {
		db = db.Where("is_anomaly = ?", true)
	}

	if err := db.Preload("Endpoint").Order("readings.timestamp DESC").Order("readings.id DESC").
		Limit(q.Limit + 1).Offset(q.Offset).
		Find(&readings).Error; err != nil {
		return nil, false, fmt.Errorf("failed to fetch readings: %w", err)
	}

	if len(readings) > q.Limit {
		return readings[:q.Limit], true, nil
	}
	return readings, false, nil
}
