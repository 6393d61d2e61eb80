package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"procodus.dev/gridloss/internal/grid"
	"procodus.dev/gridloss/internal/store"
	"procodus.dev/gridloss/pkg/events"
	"procodus.dev/gridloss/pkg/logger"
)

// ticker carries the per-run state shared by every tick.
type ticker struct {
	sim   *Simulator
	log   *slog.Logger
	runID string
	mode  string
	seed  uint64
}

// tick simulates one endpoint at one timestamp. The reading and its alert are
// written with a context detached from cancellation so that a started tick is
// never left half persisted.
func (t *ticker) tick(ctx context.Context, ep *store.Endpoint, ts time.Time, siblings int) tickOutcome {
	log := logger.WithTick(t.log, ep.ConsumerID, ts)

	fail := func(reason string, err error) tickOutcome {
		t.countFailure(reason)
		log.Error("tick failed", "reason", reason, "error", err)
		return tickOutcome{err: &TickError{ConsumerID: ep.ConsumerID, Timestamp: ts, Err: err}}
	}

	if ep.Transformer == nil {
		return fail("topology", fmt.Errorf("%w: %s", ErrMissingTransformer, ep.ConsumerID))
	}

	r := tickRand(t.seed, ep.ID, ts)
	scenario := t.sim.params.Scenarios.Pick(r)
	syn, err := grid.Synthesize(r, grid.Supply{
		OutputVoltage: ep.Transformer.OutputVoltage,
		SiblingCount:  siblings,
	}, ep.ConnectedLoadKw, scenario)
	if err != nil {
		return fail("synthesize", err)
	}

	reading := store.NewReading(ep, syn.Raw, ts, t.runID)
	res, err := t.sim.store.RecordReading(context.WithoutCancel(ctx), reading, t.sim.alertBuilder(ep))
	if err != nil {
		return fail("persist", err)
	}

	out := tickOutcome{result: &TickResult{
		Timestamp:      ts,
		ConsumerID:     ep.ConsumerID,
		Scenario:       syn.Scenario,
		ExpectedStatus: syn.ExpectedStatus,
		Status:         res.Reading.Status,
		ReadingID:      res.Reading.ID,
		IsAnomaly:      res.Reading.IsAnomaly,
	}}

	if m := t.sim.metrics; m != nil {
		m.ReadingsGenerated.WithLabelValues(t.mode, string(res.Reading.Status)).Inc()
		if res.Reading.IsAnomaly {
			m.AnomaliesDetected.WithLabelValues(t.mode, string(res.Reading.Status)).Inc()
		}
	}

	if res.AlertErr != nil {
		out.alertFailed = true
		t.countFailure("alert")
	}

	if res.Alert != nil {
		out.result.AlertID = res.Alert.ID
		if m := t.sim.metrics; m != nil {
			m.AlertsCreated.WithLabelValues(string(res.Alert.Type), string(res.Alert.Severity)).Inc()
		}
		t.publish(ctx, log, res.Alert)
	}

	log.Debug("reading stored",
		"scenario", syn.Scenario,
		"expected_status", syn.ExpectedStatus,
		"status", res.Reading.Status,
		"power_loss_pct", res.Reading.PowerLossPct,
	)

	return out
}

func (t *ticker) countFailure(reason string) {
	if t.sim.metrics != nil {
		t.sim.metrics.TickFailures.WithLabelValues(t.mode, reason).Inc()
	}
}

// publish announces a new alert. A failed publish is logged and does not
// affect the run.
func (t *ticker) publish(ctx context.Context, log *slog.Logger, alert *store.Alert) {
	if t.sim.publisher == nil {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := t.sim.publisher.Publish(pubCtx, alert.Event(events.KindRaised)); err != nil {
		log.Warn("failed to publish alert event", "alert_id", alert.ID, "error", err)
	}
}

// alertBuilder returns the builder RecordReading calls for an anomalous
// reading of ep. The endpoint must have its transformer, village and district
// loaded.
func (s *Simulator) alertBuilder(ep *store.Endpoint) store.AlertBuilder {
	return func(rd *store.Reading) (*store.Alert, error) {
		tr := ep.Transformer
		if tr == nil || tr.Village == nil || tr.Village.District == nil {
			return nil, fmt.Errorf("%w: location of %s is not loaded", grid.ErrIncompleteAlert, ep.ConsumerID)
		}
		village := tr.Village
		district := village.District

		losses := rd.Losses()
		alertType, severity := s.params.Thresholds.AlertFor(rd.Status, rd.Raw())

		title, description, err := s.renderer.Render(grid.AlertContext{
			Type:            alertType,
			Status:          rd.Status,
			ConsumerID:      ep.ConsumerID,
			ConsumerName:    ep.ConsumerName,
			Address:         ep.Address,
			TransformerCode: tr.Code,
			TransformerName: tr.Name,
			Village:         village.Name,
			District:        district.Name,
			Raw:             rd.Raw(),
			Losses:          losses,
			Timestamp:       rd.Timestamp,
		})
		if err != nil {
			return nil, err
		}

		return &store.Alert{
			EndpointID:             ep.ID,
			TransformerID:          tr.ID,
			VillageID:              village.ID,
			DistrictID:             district.ID,
			Type:                   alertType,
			Severity:               severity,
			Status:                 grid.AlertActive,
			Title:                  title,
			Description:            description,
			EstimatedFinancialLoss: s.params.MonthlyLoss(losses.PowerLossKw),
			VoltageLoss:            losses.VoltageLoss,
			VoltageLossPct:         losses.VoltageLossPct,
			PowerLossKw:            losses.PowerLossKw,
			PowerLossPct:           losses.PowerLossPct,
			Endpoint:               ep,
			Transformer:            tr,
		}, nil
	}
}
