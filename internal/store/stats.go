package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"procodus.dev/gridloss/internal/grid"
)

// AlertStats summarises alerts by lifecycle state. The severity and type
// breakdowns cover active alerts only.
type AlertStats struct {
	BySeverity    map[grid.Severity]int64
	ByType        map[grid.AlertType]int64
	Total         int64
	Active        int64
	Acknowledged  int64
	Investigating int64
	Resolved      int64
	FalseAlarm    int64
}

// AlertStats counts the alerts under f.
func (r *Repository) AlertStats(ctx context.Context, f Filter) (stats *AlertStats, err error) {
	defer func(start time.Time) { r.observe("select", "alerts", start, err) }(time.Now())

	stats = &AlertStats{
		BySeverity: map[grid.Severity]int64{},
		ByType:     map[grid.AlertType]int64{},
	}

	var byStatus []struct {
		Status grid.AlertStatus
		Count  int64
	}
	if err := r.scopeAlerts(r.db.WithContext(ctx).Model(&Alert{}), f).
		Select("alerts.status AS status, COUNT(*) AS count").
		Group("alerts.status").
		Scan(&byStatus).Error; err != nil {
		return nil, fmt.Errorf("failed to count alerts by status: %w", err)
	}

	for _, row := range byStatus {
		stats.Total += row.Count
		switch row.Status {
		case grid.AlertActive:
			stats.Active = row.Count
		case grid.AlertAcknowledged:
			stats.Acknowledged = row.Count
		case grid.AlertInvestigating:
			stats.Investigating = row.Count
		case grid.AlertResolved:
			stats.Resolved = row.Count
		case grid.AlertFalseAlarm:
			stats.FalseAlarm = row.Count
		}
	}

	var bySeverity []struct {
		Severity grid.Severity
		Count    int64
	}
	if err := r.scopeAlerts(r.db.WithContext(ctx).Model(&Alert{}), f).
		Select("alerts.severity AS severity, COUNT(*) AS count").
		Where("alerts.status = ?", grid.AlertActive).
		Group("alerts.severity").
		Scan(&bySeverity).Error; err != nil {
		return nil, fmt.Errorf("failed to count alerts by severity: %w", err)
	}
	for _, row := range bySeverity {
		stats.BySeverity[row.Severity] = row.Count
	}

	var byType []struct {
		AlertType grid.AlertType
		Count     int64
	}
	if err := r.scopeAlerts(r.db.WithContext(ctx).Model(&Alert{}), f).
		Select("alerts.alert_type AS alert_type, COUNT(*) AS count").
		Where("alerts.status = ?", grid.AlertActive).
		Group("alerts.alert_type").
		Scan(&byType).Error; err != nil {
		return nil, fmt.Errorf("failed to count alerts by type: %w", err)
	}
	for _, row := range byType {
		stats.ByType[row.AlertType] = row.Count
	}

	return stats, nil
}

// TransformerStats summarises the readings of one transformer over a window.
type TransformerStats struct {
	Transformer        Transformer
	TotalEndpoints     int64
	Readings           int64
	EndpointsWithLoss  int64
	ActiveAlerts       int64
	AverageVoltageLoss float64
	AveragePowerLossKw float64
	TotalPowerLossKw   float64
}

// TransformerStats aggregates the readings of the transformer with the given
// code taken at or after since.
func (r *Repository) TransformerStats(ctx context.Context, code string, since time.Time) (stats *TransformerStats, err error) {
	defer func(start time.Time) { r.observe("select", "readings", start, err) }(time.Now())

	stats = &TransformerStats{}
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&stats.Transformer).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTransformerNotFound, code)
		}
		return nil, fmt.Errorf("failed to fetch transformer: %w", err)
	}
	id := stats.Transformer.ID

	if err := r.db.WithContext(ctx).Model(&Endpoint{}).
		Where("transformer_id = ?", id).
		Count(&stats.TotalEndpoints).Error; err != nil {
		return nil, fmt.Errorf("failed to count endpoints: %w", err)
	}

	var agg struct {
		Readings           int64
		EndpointsWithLoss  int64
		AverageVoltageLoss float64
		AveragePowerLossKw float64
		TotalPowerLossKw   float64
	}
	if err := r.db.WithContext(ctx).Model(&Reading{}).
		Select(`COUNT(*) AS readings,
			COUNT(DISTINCT CASE WHEN is_anomaly THEN endpoint_id END) AS endpoints_with_loss,
			COALESCE(AVG(voltage_loss), 0) AS average_voltage_loss,
			COALESCE(AVG(power_loss_kw), 0) AS average_power_loss_kw,
			COALESCE(SUM(power_loss_kw), 0) AS total_power_loss_kw`).
		Where("transformer_id = ? AND readings.timestamp >= ?", id, since.UTC()).
		Scan(&agg).Error; err != nil {
		return nil, fmt.Errorf("failed to aggregate readings: %w", err)
	}

	if err := r.db.WithContext(ctx).Model(&Alert{}).
		Where("transformer_id = ? AND status = ?", id, grid.AlertActive).
		Count(&stats.ActiveAlerts).Error; err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}

	stats.Readings = agg.Readings
	stats.EndpointsWithLoss = agg.EndpointsWithLoss
	stats.AverageVoltageLoss = grid.Round(agg.AverageVoltageLoss, 2)
	stats.AveragePowerLossKw = grid.Round(agg.AveragePowerLossKw, 3)
	stats.TotalPowerLossKw = grid.Round(agg.TotalPowerLossKw, 3)

	return stats, nil
}
