package store

import (
	"time"

	"procodus.dev/gridloss/pkg/events"
)

// Event describes the alert for subscribers. Consumer and transformer are
// taken from the loaded associations when present.
func (a *Alert) Event(kind events.Kind) events.AlertEvent {
	ev := events.AlertEvent{
		Kind:          kind,
		AlertID:       uint64(a.ID),
		ReadingID:     uint64(a.ReadingID),
		Type:          string(a.Type),
		Severity:      string(a.Severity),
		Status:        string(a.Status),
		Title:         a.Title,
		EstimatedLoss: a.EstimatedFinancialLoss.StringFixed(2),
		PowerLossKw:   a.PowerLossKw,
		PowerLossPct:  a.PowerLossPct,
		VoltageLoss:   a.VoltageLoss,
		OccurredAt:    a.UpdatedAt,
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if a.Endpoint != nil {
		ev.ConsumerID = a.Endpoint.ConsumerID
	}
	if a.Transformer != nil {
		ev.TransformerCode = a.Transformer.Code
	}
	return ev
}
