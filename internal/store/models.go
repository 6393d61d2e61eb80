// Package store persists the distribution network topology, the readings
// simulated against it and the alerts raised from those readings.
package store

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"procodus.dev/gridloss/internal/grid"
)

// TransformerStatus is the operational state of a transformer.
type TransformerStatus string

// Transformer states.
const (
	TransformerActive      TransformerStatus = "active"
	TransformerMaintenance TransformerStatus = "maintenance"
	TransformerFaulty      TransformerStatus = "faulty"
	TransformerOffline     TransformerStatus = "offline"
)

// ConnectionStatus is the commercial state of a consumer connection.
type ConnectionStatus string

// Connection states.
const (
	ConnectionActive       ConnectionStatus = "active"
	ConnectionDisconnected ConnectionStatus = "disconnected"
	ConnectionSuspended    ConnectionStatus = "suspended"
	ConnectionPending      ConnectionStatus = "pending"
)

// ErrReadingImmutable is returned when an existing reading is updated.
var ErrReadingImmutable = errors.New("readings are immutable once created")

// Company is a distribution company, the root of the topology.
type Company struct {
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
	Code         string    `gorm:"size:20;uniqueIndex;not null"`
	Name         string    `gorm:"size:200;not null"`
	Address      string
	ContactEmail string `gorm:"size:200"`
	ContactPhone string `gorm:"size:20"`
	ID           uint   `gorm:"primaryKey"`
	IsActive     bool   `gorm:"not null"`
}

// TableName specifies the table name for Company model.
func (Company) TableName() string {
	return "companies"
}

// District is a service area of a company.
type District struct {
	CreatedAt        time.Time `gorm:"autoCreateTime"`
	UpdatedAt        time.Time `gorm:"autoUpdateTime"`
	Company          *Company  `gorm:"constraint:OnDelete:CASCADE"`
	Code             string    `gorm:"size:20;uniqueIndex:idx_district_company_code;not null"`
	Name             string    `gorm:"size:200;not null"`
	State            string    `gorm:"size:100"`
	TotalCapacityKva float64
	ID               uint `gorm:"primaryKey"`
	CompanyID        uint `gorm:"uniqueIndex:idx_district_company_code;not null"`
	IsActive         bool `gorm:"not null"`
}

// TableName specifies the table name for District model.
func (District) TableName() string {
	return "districts"
}

// Village is a settlement within a district.
type Village struct {
	CreatedAt       time.Time `gorm:"autoCreateTime"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime"`
	District        *District `gorm:"constraint:OnDelete:CASCADE"`
	Code            string    `gorm:"size:20;uniqueIndex:idx_village_district_code;not null"`
	Name            string    `gorm:"size:200;not null"`
	Pincode         string    `gorm:"size:10"`
	Latitude        float64
	Longitude       float64
	ID              uint `gorm:"primaryKey"`
	DistrictID      uint `gorm:"uniqueIndex:idx_village_district_code;not null"`
	Population      uint
	TotalHouseholds uint
	IsActive        bool `gorm:"not null"`
}

// TableName specifies the table name for Village model.
func (Village) TableName() string {
	return "villages"
}

// Transformer is a distribution transformer feeding a group of endpoints.
type Transformer struct {
	CreatedAt        time.Time         `gorm:"autoCreateTime"`
	UpdatedAt        time.Time         `gorm:"autoUpdateTime"`
	Village          *Village          `gorm:"constraint:OnDelete:CASCADE"`
	Code             string            `gorm:"size:50;uniqueIndex;not null"`
	Name             string            `gorm:"size:200;not null"`
	Type             string            `gorm:"size:20"`
	Status           TransformerStatus `gorm:"size:20;not null;default:active"`
	CapacityKva      float64           `gorm:"not null"`
	InputVoltage     float64           `gorm:"not null;default:11000"`
	OutputVoltage    float64           `gorm:"not null;default:230"`
	EfficiencyRating float64
	Latitude         float64
	Longitude        float64
	ID               uint `gorm:"primaryKey"`
	VillageID        uint `gorm:"index;not null"`
	MaxEndpoints     int
	IsActive         bool `gorm:"not null"`
}

// TableName specifies the table name for Transformer model.
func (Transformer) TableName() string {
	return "transformers"
}

// Endpoint is a consumer connection fed by one transformer.
type Endpoint struct {
	CreatedAt        time.Time        `gorm:"autoCreateTime"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime"`
	Transformer      *Transformer     `gorm:"constraint:OnDelete:CASCADE"`
	ConsumerID       string           `gorm:"size:50;uniqueIndex;not null"`
	ConsumerName     string           `gorm:"size:200;not null"`
	Address          string           `gorm:"not null"`
	PhoneNumber      string           `gorm:"size:20"`
	ConnectionType   string           `gorm:"size:20"`
	MeterNumber      string           `gorm:"size:50"`
	ConnectionStatus ConnectionStatus `gorm:"size:20;not null;default:active"`
	ConnectedLoadKw  float64          `gorm:"not null;default:2"`
	Latitude         float64
	Longitude        float64
	ID               uint `gorm:"primaryKey"`
	TransformerID    uint `gorm:"index;not null"`
	IsActive         bool `gorm:"not null"`
}

// TableName specifies the table name for Endpoint model.
func (Endpoint) TableName() string {
	return "endpoints"
}

// Eligible reports whether the endpoint takes part in simulation.
func (e *Endpoint) Eligible() bool {
	return e.IsActive && e.ConnectionStatus == ConnectionActive
}

// Reading is one sent/received measurement for an endpoint. Loss and status
// columns are derived from the raw columns on insert.
type Reading struct {
	Timestamp          time.Time    `gorm:"index:idx_reading_endpoint_ts,priority:2;index:idx_reading_transformer_ts,priority:2;not null"`
	CreatedAt          time.Time    `gorm:"autoCreateTime"`
	Endpoint           *Endpoint    `gorm:"constraint:OnDelete:CASCADE"`
	Transformer        *Transformer `gorm:"constraint:OnDelete:CASCADE"`
	RunID              string       `gorm:"size:36;index"`
	Status             grid.Status  `gorm:"size:20;index;not null"`
	VoltageSent        float64      `gorm:"not null"`
	VoltageReceived    float64      `gorm:"not null"`
	VoltageLoss        float64      `gorm:"not null"`
	VoltageLossPct     float64      `gorm:"column:voltage_loss_percentage;not null"`
	CurrentSent        float64      `gorm:"not null"`
	CurrentReceived    float64      `gorm:"not null"`
	PowerSentKw        float64      `gorm:"not null"`
	PowerReceivedKw    float64      `gorm:"not null"`
	PowerLossKw        float64      `gorm:"not null"`
	PowerLossPct       float64      `gorm:"column:power_loss_percentage;not null"`
	EnergySentKwh      float64      `gorm:"not null"`
	EnergyReceivedKwh  float64      `gorm:"not null"`
	EnergyLossKwh      float64      `gorm:"not null"`
	PowerFactor        float64      `gorm:"not null"`
	Frequency          float64      `gorm:"not null"`
	LineDistanceMeters float64      `gorm:"not null"`
	ID                 uint         `gorm:"primaryKey"`
	EndpointID         uint         `gorm:"index:idx_reading_endpoint_ts,priority:1;not null"`
	TransformerID      uint         `gorm:"index:idx_reading_transformer_ts,priority:1;not null"`
	IsAnomaly          bool         `gorm:"index;not null"`
}

// TableName specifies the table name for Reading model.
func (Reading) TableName() string {
	return "readings"
}

// BeforeUpdate rejects any change to a persisted reading.
func (r *Reading) BeforeUpdate(_ *gorm.DB) error {
	return ErrReadingImmutable
}

// Raw returns the measured values of the reading.
func (r *Reading) Raw() grid.Raw {
	return grid.Raw{
		VoltageSent:        r.VoltageSent,
		VoltageReceived:    r.VoltageReceived,
		CurrentSent:        r.CurrentSent,
		CurrentReceived:    r.CurrentReceived,
		PowerSentKw:        r.PowerSentKw,
		PowerReceivedKw:    r.PowerReceivedKw,
		EnergySentKwh:      r.EnergySentKwh,
		EnergyReceivedKwh:  r.EnergyReceivedKwh,
		PowerFactor:        r.PowerFactor,
		Frequency:          r.Frequency,
		LineDistanceMeters: r.LineDistanceMeters,
	}
}

// Losses returns the derived loss columns.
func (r *Reading) Losses() grid.Losses {
	return grid.Losses{
		VoltageLoss:    r.VoltageLoss,
		VoltageLossPct: r.VoltageLossPct,
		PowerLossKw:    r.PowerLossKw,
		PowerLossPct:   r.PowerLossPct,
		EnergyLossKwh:  r.EnergyLossKwh,
	}
}

// NewReading builds an unsaved reading for an endpoint from raw values.
func NewReading(endpoint *Endpoint, raw grid.Raw, ts time.Time, runID string) *Reading {
	return &Reading{
		EndpointID:         endpoint.ID,
		TransformerID:      endpoint.TransformerID,
		RunID:              runID,
		Timestamp:          ts,
		VoltageSent:        raw.VoltageSent,
		VoltageReceived:    raw.VoltageReceived,
		CurrentSent:        raw.CurrentSent,
		CurrentReceived:    raw.CurrentReceived,
		PowerSentKw:        raw.PowerSentKw,
		PowerReceivedKw:    raw.PowerReceivedKw,
		EnergySentKwh:      raw.EnergySentKwh,
		EnergyReceivedKwh:  raw.EnergyReceivedKwh,
		PowerFactor:        raw.PowerFactor,
		Frequency:          raw.Frequency,
		LineDistanceMeters: raw.LineDistanceMeters,
	}
}

// Alert is raised for an anomalous reading. Location references are copied
// from the reading's topology for filtering.
type Alert struct {
	CreatedAt              time.Time        `gorm:"autoCreateTime;index:idx_alert_transformer_created,priority:2;index:idx_alert_village_created,priority:2;index:idx_alert_district_created,priority:2"`
	UpdatedAt              time.Time        `gorm:"autoUpdateTime"`
	AcknowledgedAt         *time.Time
	ResolvedAt             *time.Time
	Reading                *Reading         `gorm:"constraint:OnDelete:CASCADE"`
	Endpoint               *Endpoint        `gorm:"constraint:OnDelete:CASCADE"`
	Transformer            *Transformer     `gorm:"constraint:OnDelete:CASCADE"`
	Village                *Village         `gorm:"constraint:OnDelete:CASCADE"`
	District               *District        `gorm:"constraint:OnDelete:CASCADE"`
	Type                   grid.AlertType   `gorm:"column:alert_type;size:20;index;not null"`
	Severity               grid.Severity    `gorm:"size:20;index:idx_alert_status_severity,priority:2;not null"`
	Status                 grid.AlertStatus `gorm:"size:20;index:idx_alert_status_severity,priority:1;not null;default:active"`
	Title                  string           `gorm:"size:200;not null"`
	Description            string           `gorm:"not null"`
	AcknowledgedBy         string           `gorm:"size:150"`
	ResolvedBy             string           `gorm:"size:150"`
	ResolutionNotes        string
	EstimatedFinancialLoss decimal.Decimal `gorm:"type:numeric(12,2);not null"`
	VoltageLoss            float64         `gorm:"not null"`
	VoltageLossPct         float64         `gorm:"column:voltage_loss_percentage;not null"`
	PowerLossKw            float64         `gorm:"not null"`
	PowerLossPct           float64         `gorm:"column:power_loss_percentage;not null"`
	ID                     uint            `gorm:"primaryKey"`
	ReadingID              uint            `gorm:"index;not null"`
	EndpointID             uint            `gorm:"index;not null"`
	TransformerID          uint            `gorm:"index:idx_alert_transformer_created,priority:1;not null"`
	VillageID              uint            `gorm:"index:idx_alert_village_created,priority:1;not null"`
	DistrictID             uint            `gorm:"index:idx_alert_district_created,priority:1;not null"`
}

// TableName specifies the table name for Alert model.
func (Alert) TableName() string {
	return "alerts"
}
