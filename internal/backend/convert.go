package backend

import (
	"procodus.dev/gridloss/internal/simulator"
	"procodus.dev/gridloss/internal/store"
	"procodus.dev/gridloss/pkg/lossapi"
)

func toFilter(s lossapi.Scope) store.Filter {
	return store.Filter{
		CompanyID:     uint(s.CompanyID),
		DistrictID:    uint(s.DistrictID),
		VillageID:     uint(s.VillageID),
		TransformerID: uint(s.TransformerID),
	}
}

func toRunResponse(r *simulator.Report, withResults bool) *lossapi.RunResponse {
	resp := &lossapi.RunResponse{
		RunID:         r.RunID,
		Mode:          r.Mode,
		Seed:          r.Seed,
		Endpoints:     int64(r.Endpoints),
		Hours:         int64(r.Hours),
		Readings:      int64(r.Readings),
		Anomalies:     int64(r.Anomalies),
		Alerts:        int64(r.Alerts),
		AlertFailures: int64(r.AlertFailures),
		Failed:        int64(r.Failed),
		DurationMs:    r.Duration.Milliseconds(),
	}

	for _, e := range r.Errors {
		resp.Errors = append(resp.Errors, e.Error())
	}

	if !withResults {
		return resp
	}

	resp.Results = make([]lossapi.TickResult, 0, len(r.Results))
	for _, res := range r.Results {
		resp.Results = append(resp.Results, lossapi.TickResult{
			Timestamp:      res.Timestamp,
			ConsumerID:     res.ConsumerID,
			Scenario:       string(res.Scenario),
			ExpectedStatus: string(res.ExpectedStatus),
			Status:         string(res.Status),
			ReadingID:      uint64(res.ReadingID),
			AlertID:        uint64(res.AlertID),
			IsAnomaly:      res.IsAnomaly,
		})
	}
	return resp
}

func toReading(r *store.Reading) lossapi.Reading {
	out := lossapi.Reading{
		Timestamp:          r.Timestamp,
		RunID:              r.RunID,
		Status:             string(r.Status),
		VoltageSent:        r.VoltageSent,
		VoltageReceived:    r.VoltageReceived,
		VoltageLoss:        r.VoltageLoss,
		VoltageLossPct:     r.VoltageLossPct,
		CurrentSent:        r.CurrentSent,
		CurrentReceived:    r.CurrentReceived,
		PowerSentKw:        r.PowerSentKw,
		PowerReceivedKw:    r.PowerReceivedKw,
		PowerLossKw:        r.PowerLossKw,
		PowerLossPct:       r.PowerLossPct,
		EnergyLossKwh:      r.EnergyLossKwh,
		PowerFactor:        r.PowerFactor,
		Frequency:          r.Frequency,
		LineDistanceMeters: r.LineDistanceMeters,
		ID:                 uint64(r.ID),
		IsAnomaly:          r.IsAnomaly,
	}
	if r.Endpoint != nil {
		out.ConsumerID = r.Endpoint.ConsumerID
	}
	return out
}

func toAlert(a *store.Alert) lossapi.Alert {
	out := lossapi.Alert{
		CreatedAt:              a.CreatedAt,
		AcknowledgedAt:         a.AcknowledgedAt,
		ResolvedAt:             a.ResolvedAt,
		Type:                   string(a.Type),
		Severity:               string(a.Severity),
		Status:                 string(a.Status),
		Title:                  a.Title,
		Description:            a.Description,
		EstimatedFinancialLoss: a.EstimatedFinancialLoss.StringFixed(2),
		AcknowledgedBy:         a.AcknowledgedBy,
		ResolvedBy:             a.ResolvedBy,
		ResolutionNotes:        a.ResolutionNotes,
		VoltageLoss:            a.VoltageLoss,
		PowerLossKw:            a.PowerLossKw,
		PowerLossPct:           a.PowerLossPct,
		ID:                     uint64(a.ID),
		ReadingID:              uint64(a.ReadingID),
	}
	if a.Endpoint != nil {
		out.ConsumerID = a.Endpoint.ConsumerID
	}
	if a.Transformer != nil {
		out.TransformerCode = a.Transformer.Code
	}
	return out
}
