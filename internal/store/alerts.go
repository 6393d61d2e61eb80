package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"procodus.dev/gridloss/internal/grid"
)

// AlertQuery selects a page of alerts, newest first.
type AlertQuery struct {
	Statuses   []grid.AlertStatus
	Severities []grid.Severity
	Types      []grid.AlertType
	Filter
	Limit  int
	Offset int
}

// scopeAlerts restricts an alert query to the location in f.
func (r *Repository) scopeAlerts(db *gorm.DB, f Filter) *gorm.DB {
	switch {
	case f.TransformerID != 0:
		return db.Where("alerts.transformer_id = ?", f.TransformerID)
	case f.VillageID != 0:
		return db.Where("alerts.village_id = ?", f.VillageID)
	case f.DistrictID != 0:
		return db.Where("alerts.district_id = ?", f.DistrictID)
	case f.CompanyID != 0:
		return db.Where("alerts.district_id IN (?)",
			r.db.Model(&District{}).Select("id").Where("company_id = ?", f.CompanyID))
	default:
		return db
	}
}

// ListAlerts returns the alerts matching q and whether more follow. Endpoint
// and transformer are preloaded.
func (r *Repository) ListAlerts(ctx context.Context, q AlertQuery) (alerts []Alert, more bool, err error) {
	defer func(start time.Time) { r.observe("select", "alerts", start, err) }(time.Now())

	if q.Limit <= 0 {
		q.Limit = 100
	}

	db := r.scopeAlerts(r.db.WithContext(ctx).Model(&Alert{}), q.Filter)
	if len(q.Statuses) > 0 {
		db = db.Where("alerts.status IN ?", q.Statuses)
	}
	if len(q.Severities) > 0 {
		db = db.Where("alerts.severity IN ?", q.Severities)
	}
	if len(q.Types) > 0 {
		db = db.Where("alerts.alert_type IN ?", q.Types)
	}

	if err := db.Preload("Endpoint").Preload("Transformer").
		Order("alerts.created_at DESC").Order("alerts.id DESC").
		Limit(q.Limit + 1).Offset(q.Offset).
		Find(&alerts).Error; err != nil {
		return nil, false, fmt.Errorf("failed to fetch alerts: %w", err)
	}

	if len(alerts) > q.Limit {
		return alerts[:q.Limit], true, nil
	}
	return alerts, false, nil
}

// GetAlert returns one alert with its endpoint and transformer.
func (r *Repository) GetAlert(ctx context.Context, id uint) (alert *Alert, err error) {
	defer func(start time.Time) { r.observe("select", "alerts", start, err) }(time.Now())

	alert = &Alert{}
	if err := r.db.WithContext(ctx).
		Preload("Endpoint").Preload("Transformer").
		First(alert, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrAlertNotFound, id)
		}
		return nil, fmt.Errorf("failed to fetch alert: %w", err)
	}

	return alert, nil
}

// Acknowledge marks an active alert as seen by an operator.
func (r *Repository) Acknowledge(ctx context.Context, id uint, by string) (*Alert, error) {
	return r.transition(ctx, id, grid.AlertAcknowledged, map[string]any{
		"acknowledged_by": by,
		"acknowledged_at": time.Now().UTC(),
	})
}

// Investigate marks an alert as under field investigation.
func (r *Repository) Investigate(ctx context.Context, id uint) (*Alert, error) {
	return r.transition(ctx, id, grid.AlertInvestigating, map[string]any{})
}

// Resolve closes an alert.
func (r *Repository) Resolve(ctx context.Context, id uint, by, notes string) (*Alert, error) {
	return r.transition(ctx, id, grid.AlertResolved, map[string]any{
		"resolved_by":      by,
		"resolved_at":      time.Now().UTC(),
		"resolution_notes": notes,
	})
}

// MarkFalseAlarm closes an alert that turned out not to be a real loss.
func (r *Repository) MarkFalseAlarm(ctx context.Context, id uint, by, notes string) (*Alert, error) {
	return r.transition(ctx, id, grid.AlertFalseAlarm, map[string]any{
		"resolved_by":      by,
		"resolved_at":      time.Now().UTC(),
		"resolution_notes": notes,
	})
}

// transition moves an alert to next only if its current status allows it. The
// status check and the update are a single statement.
func (r *Repository) transition(ctx context.Context, id uint, next grid.AlertStatus, updates map[string]any) (alert *Alert, err error) {
	defer func(start time.Time) { r.observe("update", "alerts", start, err) }(time.Now())
	defer func() { r.countTransition(next, err) }()

	updates["status"] = next

	res := r.db.WithContext(ctx).
		Model(&Alert{}).
		Where("id = ? AND status IN ?", id, grid.SourcesOf(next)).
		Updates(updates)
	if res.Error != nil {
		return nil, fmt.Errorf("failed to update alert: %w", res.Error)
	}

	if res.RowsAffected == 0 {
		current, err := r.GetAlert(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.Status, next)
	}

	r.logger.Info("alert status changed", "alert_id", id, "status", next)

	return r.GetAlert(ctx, id)
}

func (r *Repository) countTransition(next grid.AlertStatus, err error) {
	if r.metrics == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "rejected"
	}
	r.metrics.AlertTransitions.WithLabelValues(string(next), status).Inc()
}
