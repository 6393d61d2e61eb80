// Package lossapi is the gRPC contract of the gridloss backend: batch
// simulation, reading history, alert queries and the alert lifecycle.
//
// Messages are plain Go structs carried as google.protobuf.Struct payloads by
// the "struct" codec registered in this package. Calls must use
// CallContentSubtype(CodecName), which the client in this package adds to
// every call.
package lossapi

import "time"

// Scope narrows a request to part of the topology. The most specific non-zero
// field wins.
type Scope struct {
	CompanyID     uint64 `json:"company_id,omitempty"`
	DistrictID    uint64 `json:"district_id,omitempty"`
	VillageID     uint64 `json:"village_id,omitempty"`
	TransformerID uint64 `json:"transformer_id,omitempty"`
}

// RunSnapshotRequest takes one reading per eligible endpoint in Scope.
type RunSnapshotRequest struct {
	Scope          Scope `json:"scope"`
	IncludeResults bool  `json:"include_results,omitempty"`
}

// RunHistoricalRequest backfills Hours hourly readings per eligible endpoint.
type RunHistoricalRequest struct {
	Scope          Scope `json:"scope"`
	Hours          int32 `json:"hours"`
	IncludeResults bool  `json:"include_results,omitempty"`
}

// TickResult is one reading produced by a run.
type TickResult struct {
	Timestamp      time.Time `json:"timestamp"`
	ConsumerID     string    `json:"consumer_id"`
	Scenario       string    `json:"scenario"`
	ExpectedStatus string    `json:"expected_status"`
	Status         string    `json:"status"`
	ReadingID      uint64    `json:"reading_id"`
	AlertID        uint64    `json:"alert_id,omitempty"`
	IsAnomaly      bool      `json:"is_anomaly"`
}

// RunResponse summarises a simulation run.
type RunResponse struct {
	RunID         string       `json:"run_id"`
	Mode          string       `json:"mode"`
	Results       []TickResult `json:"results,omitempty"`
	Errors        []string     `json:"errors,omitempty"`
	Seed          uint64       `json:"seed,string"`
	Endpoints     int64        `json:"endpoints"`
	Hours         int64        `json:"hours"`
	Readings      int64        `json:"readings"`
	Anomalies     int64        `json:"anomalies"`
	Alerts        int64        `json:"alerts"`
	AlertFailures int64        `json:"alert_failures"`
	Failed        int64        `json:"failed"`
	DurationMs    int64        `json:"duration_ms"`
}

// ListReadingsRequest pages through readings, newest first.
type ListReadingsRequest struct {
	Since           time.Time `json:"since,omitzero"`
	ConsumerID      string    `json:"consumer_id,omitempty"`
	TransformerCode string    `json:"transformer_code,omitempty"`
	PageToken       string    `json:"page_token,omitempty"`
	PageSize        int32     `json:"page_size,omitempty"`
	AnomaliesOnly   bool      `json:"anomalies_only,omitempty"`
}

// Reading is a stored measurement with its derived losses.
type Reading struct {
	Timestamp          time.Time `json:"timestamp"`
	RunID              string    `json:"run_id"`
	ConsumerID         string    `json:"consumer_id"`
	Status             string    `json:"status"`
	VoltageSent        float64   `json:"voltage_sent"`
	VoltageReceived    float64   `json:"voltage_received"`
	VoltageLoss        float64   `json:"voltage_loss"`
	VoltageLossPct     float64   `json:"voltage_loss_percentage"`
	CurrentSent        float64   `json:"current_sent"`
	CurrentReceived    float64   `json:"current_received"`
	PowerSentKw        float64   `json:"power_sent_kw"`
	PowerReceivedKw    float64   `json:"power_received_kw"`
	PowerLossKw        float64   `json:"power_loss_kw"`
	PowerLossPct       float64   `json:"power_loss_percentage"`
	EnergyLossKwh      float64   `json:"energy_loss_kwh"`
	PowerFactor        float64   `json:"power_factor"`
	Frequency          float64   `json:"frequency"`
	LineDistanceMeters float64   `json:"line_distance_meters"`
	ID                 uint64    `json:"id"`
	IsAnomaly          bool      `json:"is_anomaly"`
}

// ListReadingsResponse is a page of readings.
type ListReadingsResponse struct {
	NextPageToken string    `json:"next_page_token,omitempty"`
	Readings      []Reading `json:"readings"`
}

// ListAlertsRequest pages through alerts, newest first.
type ListAlertsRequest struct {
	Statuses   []string `json:"statuses,omitempty"`
	Severities []string `json:"severities,omitempty"`
	Types      []string `json:"types,omitempty"`
	PageToken  string   `json:"page_token,omitempty"`
	Scope      Scope    `json:"scope"`
	PageSize   int32    `json:"page_size,omitempty"`
}

// Alert is a raised alert and its lifecycle fields.
type Alert struct {
	CreatedAt              time.Time  `json:"created_at"`
	AcknowledgedAt         *time.Time `json:"acknowledged_at,omitempty"`
	ResolvedAt             *time.Time `json:"resolved_at,omitempty"`
	ConsumerID             string     `json:"consumer_id"`
	TransformerCode        string     `json:"transformer_code"`
	Type                   string     `json:"type"`
	Severity               string     `json:"severity"`
	Status                 string     `json:"status"`
	Title                  string     `json:"title"`
	Description            string     `json:"description"`
	EstimatedFinancialLoss string     `json:"estimated_financial_loss"`
	AcknowledgedBy         string     `json:"acknowledged_by,omitempty"`
	ResolvedBy             string     `json:"resolved_by,omitempty"`
	ResolutionNotes        string     `json:"resolution_notes,omitempty"`
	VoltageLoss            float64    `json:"voltage_loss"`
	PowerLossKw            float64    `json:"power_loss_kw"`
	PowerLossPct           float64    `json:"power_loss_percentage"`
	ID                     uint64     `json:"id"`
	ReadingID              uint64     `json:"reading_id"`
}

// ListAlertsResponse is a page of alerts.
type ListAlertsResponse struct {
	NextPageToken string  `json:"next_page_token,omitempty"`
	Alerts        []Alert `json:"alerts"`
}

// AlertActionRequest moves an alert through its lifecycle. Actor is required
// for acknowledge, resolve and dismiss.
type AlertActionRequest struct {
	Actor string `json:"actor,omitempty"`
	Notes string `json:"notes,omitempty"`
	ID    uint64 `json:"id"`
}

// AlertResponse carries one alert.
type AlertResponse struct {
	Alert Alert `json:"alert"`
}

// AlertStatsRequest counts the alerts in Scope.
type AlertStatsRequest struct {
	Scope Scope `json:"scope"`
}

// AlertStatsResponse holds alert counts. BySeverity and ByType cover active
// alerts only.
type AlertStatsResponse struct {
	BySeverity    map[string]int64 `json:"by_severity"`
	ByType        map[string]int64 `json:"by_type"`
	Total         int64            `json:"total"`
	Active        int64            `json:"active"`
	Acknowledged  int64            `json:"acknowledged"`
	Investigating int64            `json:"investigating"`
	Resolved      int64            `json:"resolved"`
	FalseAlarm    int64            `json:"false_alarm"`
}

// TransformerStatsRequest aggregates a transformer over the trailing Hours.
type TransformerStatsRequest struct {
	Code  string `json:"code"`
	Hours int32  `json:"hours,omitempty"`
}

// TransformerStatsResponse is the loss summary of one transformer.
type TransformerStatsResponse struct {
	Code               string  `json:"code"`
	Name               string  `json:"name"`
	Status             string  `json:"status"`
	CapacityKva        float64 `json:"capacity_kva"`
	AverageVoltageLoss float64 `json:"average_voltage_loss"`
	AveragePowerLossKw float64 `json:"average_power_loss_kw"`
	TotalPowerLossKw   float64 `json:"total_power_loss_kw"`
	TotalEndpoints     int64   `json:"total_endpoints"`
	Readings           int64   `json:"readings"`
	EndpointsWithLoss  int64   `json:"endpoints_with_loss"`
	ActiveAlerts       int64   `json:"active_alerts"`
	Hours              int32   `json:"hours"`
}
