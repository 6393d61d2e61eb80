// Package events encodes alert notifications as protobuf Struct messages and
// moves them over RabbitMQ.
package events

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// ContentType is the MIME type of encoded events.
const ContentType = "application/protobuf"

// Kind tells what happened to an alert.
type Kind string

// Event kinds.
const (
	KindRaised       Kind = "alert.raised"
	KindTransitioned Kind = "alert.transitioned"
)

// ErrMalformedEvent is returned when a payload is not a valid alert event.
var ErrMalformedEvent = errors.New("malformed alert event")

// AlertEvent is the notification published when an alert is created or
// changes status.
type AlertEvent struct {
	OccurredAt      time.Time
	Kind            Kind
	ConsumerID      string
	TransformerCode string
	Type            string
	Severity        string
	Status          string
	Title           string
	EstimatedLoss   string
	PowerLossKw     float64
	PowerLossPct    float64
	VoltageLoss     float64
	AlertID         uint64
	ReadingID       uint64
}

// Encode serialises ev as a protobuf Struct.
func Encode(ev AlertEvent) ([]byte, error) {
	s, err := structpb.NewStruct(map[string]any{
		"kind":             string(ev.Kind),
		"alert_id":         float64(ev.AlertID),
		"reading_id":       float64(ev.ReadingID),
		"consumer_id":      ev.ConsumerID,
		"transformer_code": ev.TransformerCode,
		"type":             ev.Type,
		"severity":         ev.Severity,
		"status":           ev.Status,
		"title":            ev.Title,
		"estimated_loss":   ev.EstimatedLoss,
		"power_loss_kw":    ev.PowerLossKw,
		"power_loss_pct":   ev.PowerLossPct,
		"voltage_loss":     ev.VoltageLoss,
		"occurred_at":      ev.OccurredAt.UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build event struct: %w", err)
	}

	data, err := proto.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}
	return data, nil
}

// Decode parses a payload produced by Encode.
func Decode(data []byte) (AlertEvent, error) {
	var s structpb.Struct
	if err := proto.Unmarshal(data, &s); err != nil {
		return AlertEvent{}, fmt.Errorf("%w: %w", ErrMalformedEvent, err)
	}

	f := s.GetFields()
	kind := Kind(f["kind"].GetStringValue())
	if kind != KindRaised && kind != KindTransitioned {
		return AlertEvent{}, fmt.Errorf("%w: unknown kind %q", ErrMalformedEvent, kind)
	}

	occurredAt, err := time.Parse(time.RFC3339Nano, f["occurred_at"].GetStringValue())
	if err != nil {
		return AlertEvent{}, fmt.Errorf("%w: occurred_at: %w", ErrMalformedEvent, err)
	}

	return AlertEvent{
		Kind:            kind,
		AlertID:         uint64(f["alert_id"].GetNumberValue()),
		ReadingID:       uint64(f["reading_id"].GetNumberValue()),
		ConsumerID:      f["consumer_id"].GetStringValue(),
		TransformerCode: f["transformer_code"].GetStringValue(),
		Type:            f["type"].GetStringValue(),
		Severity:        f["severity"].GetStringValue(),
		Status:          f["status"].GetStringValue(),
		Title:           f["title"].GetStringValue(),
		EstimatedLoss:   f["estimated_loss"].GetStringValue(),
		PowerLossKw:     f["power_loss_kw"].GetNumberValue(),
		PowerLossPct:    f["power_loss_pct"].GetNumberValue(),
		VoltageLoss:     f["voltage_loss"].GetNumberValue(),
		OccurredAt:      occurredAt,
	}, nil
}
