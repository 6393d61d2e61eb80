package backend

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"procodus.dev/gridloss/internal/grid"
	"procodus.dev/gridloss/internal/simulator"
	"procodus.dev/gridloss/internal/store"
	"procodus.dev/gridloss/pkg/events"
	"procodus.dev/gridloss/pkg/lossapi"
	"procodus.dev/gridloss/pkg/metrics"
)

const (
	defaultPageSize        = 100
	maxPageSize            = 1000
	defaultStatsHours      = 24
	maxHistoricalHours     = 24 * 31
	transitionEventTimeout = 5 * time.Second
)

// LossService implements the gRPC LossService.
type LossService struct {
	lossapi.UnimplementedLossServiceServer
	logger    *slog.Logger
	repo      *store.Repository
	sim       *simulator.Simulator
	publisher simulator.Publisher     // Optional alert event sink
	metrics   *metrics.BackendMetrics // Optional metrics
}

// NewLossService creates a new LossService instance.
func NewLossService(logger *slog.Logger, repo *store.Repository, sim *simulator.Simulator, m *metrics.BackendMetrics) (*LossService, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if repo == nil {
		return nil, errors.New("repository cannot be nil")
	}

	if sim == nil {
		return nil, errors.New("simulator cannot be nil")
	}

	return &LossService{
		logger:  logger,
		repo:    repo,
		sim:     sim,
		metrics: m,
	}, nil
}

// SetPublisher makes the service announce alert status changes.
func (s *LossService) SetPublisher(p simulator.Publisher) {
	s.publisher = p
}

// track records the in-flight, duration and outcome metrics of one call. The
// returned func must be called with the call's final error.
func (s *LossService) track(method string) func(error) {
	if s.metrics == nil {
		return func(error) {}
	}

	s.metrics.GRPCRequestsInFlight.WithLabelValues(method).Inc()
	timer := prometheus.NewTimer(s.metrics.GRPCRequestDuration.WithLabelValues(method))

	return func(err error) {
		timer.ObserveDuration()
		s.metrics.GRPCRequestsInFlight.WithLabelValues(method).Dec()

		outcome := "success"
		if err != nil {
			outcome = "error"
		}
		s.metrics.GRPCRequestsTotal.WithLabelValues(method, outcome).Inc()
	}
}

// toStatus maps domain errors onto gRPC status codes.
func (s *LossService) toStatus(op string, err error) error {
	var code codes.Code
	switch {
	case errors.Is(err, store.ErrAlertNotFound),
		errors.Is(err, store.ErrTransformerNotFound),
		errors.Is(err, store.ErrCompanyNotFound):
		code = codes.NotFound
	case errors.Is(err, store.ErrInvalidTransition):
		code = codes.FailedPrecondition
	case errors.Is(err, simulator.ErrInvalidHours):
		code = codes.InvalidArgument
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	default:
		code = codes.Internal
		s.logger.Error("request failed", "operation", op, "error", err)
	}

	return status.Errorf(code, "failed to %s: %v", op, err)
}

// RunSnapshot takes one reading per eligible endpoint in scope.
func (s *LossService) RunSnapshot(ctx context.Context, req *lossapi.RunSnapshotRequest) (resp *lossapi.RunResponse, err error) {
	done := s.track("RunSnapshot")
	defer func() { done(err) }()

	filter := toFilter(req.Scope)
	s.logger.Info("RunSnapshot called", "scope", filter.Scope())

	report, err := s.sim.RunSnapshot(ctx, filter)
	if err != nil {
		return nil, s.toStatus("run snapshot", err)
	}

	return toRunResponse(report, req.IncludeResults), nil
}

// RunHistorical backfills hourly readings for the eligible endpoints in scope.
func (s *LossService) RunHistorical(ctx context.Context, req *lossapi.RunHistoricalRequest) (resp *lossapi.RunResponse, err error) {
	done := s.track("RunHistorical")
	defer func() { done(err) }()

	if req.Hours <= 0 || req.Hours > maxHistoricalHours {
		return nil, status.Errorf(codes.InvalidArgument, "hours must be between 1 and %d", maxHistoricalHours)
	}

	filter := toFilter(req.Scope)
	s.logger.Info("RunHistorical called", "scope", filter.Scope(), "hours", req.Hours)

	report, err := s.sim.RunHistoricalFor(ctx, int(req.Hours), filter)
	if err != nil {
		return nil, s.toStatus("run historical simulation", err)
	}

	return toRunResponse(report, req.IncludeResults), nil
}

// ListReadings returns a page of readings, newest first.
func (s *LossService) ListReadings(ctx context.Context, req *lossapi.ListReadingsRequest) (resp *lossapi.ListReadingsResponse, err error) {
	done := s.track("ListReadings")
	defer func() { done(err) }()

	offset, limit, err := page(req.PageToken, req.PageSize)
	if err != nil {
		return nil, err
	}

	readings, more, err := s.repo.ListReadings(ctx, store.ReadingQuery{
		Since:           req.Since,
		ConsumerID:      req.ConsumerID,
		TransformerCode: req.TransformerCode,
		AnomaliesOnly:   req.AnomaliesOnly,
		Limit:           limit,
		Offset:          offset,
	})
	if err != nil {
		return nil, s.toStatus("fetch readings", err)
	}

	resp = &lossapi.ListReadingsResponse{Readings: make([]lossapi.Reading, 0, len(readings))}
	for i := range readings {
		resp.Readings = append(resp.Readings, toReading(&readings[i]))
	}
	if more {
		resp.NextPageToken = strconv.Itoa(offset + limit)
	}

	s.logger.Info("fetched readings",
		"consumer_id", req.ConsumerID,
		"count", len(resp.Readings),
		"has_next_page", more,
	)

	return resp, nil
}

// ListAlerts returns a page of alerts, newest first.
func (s *LossService) ListAlerts(ctx context.Context, req *lossapi.ListAlertsRequest) (resp *lossapi.ListAlertsResponse, err error) {
	done := s.track("ListAlerts")
	defer func() { done(err) }()

	offset, limit, err := page(req.PageToken, req.PageSize)
	if err != nil {
		return nil, err
	}

	q := store.AlertQuery{
		Filter: toFilter(req.Scope),
		Limit:  limit,
		Offset: offset,
	}
	if q.Statuses, err = parseEnum(req.Statuses, knownStatuses, "status"); err != nil {
		return nil, err
	}
	if q.Severities, err = parseEnum(req.Severities, knownSeverities, "severity"); err != nil {
		return nil, err
	}
	if q.Types, err = parseEnum(req.Types, knownTypes, "type"); err != nil {
		return nil, err
	}

	alerts, more, err := s.repo.ListAlerts(ctx, q)
	if err != nil {
		return nil, s.toStatus("fetch alerts", err)
	}

	resp = &lossapi.ListAlertsResponse{Alerts: make([]lossapi.Alert, 0, len(alerts))}
	for i := range alerts {
		resp.Alerts = append(resp.Alerts, toAlert(&alerts[i]))
	}
	if more {
		resp.NextPageToken = strconv.Itoa(offset + limit)
	}

	s.logger.Info("fetched alerts", "count", len(resp.Alerts), "has_next_page", more)

	return resp, nil
}

// AcknowledgeAlert records that an operator has seen an alert.
func (s *LossService) AcknowledgeAlert(ctx context.Context, req *lossapi.AlertActionRequest) (resp *lossapi.AlertResponse, err error) {
	done := s.track("AcknowledgeAlert")
	defer func() { done(err) }()

	if req.Actor == "" {
		return nil, status.Error(codes.InvalidArgument, "actor cannot be empty")
	}

	return s.transition(ctx, "acknowledge alert", func() (*store.Alert, error) {
		return s.repo.Acknowledge(ctx, uint(req.ID), req.Actor)
	})
}

// InvestigateAlert marks an alert as under field investigation.
func (s *LossService) InvestigateAlert(ctx context.Context, req *lossapi.AlertActionRequest) (resp *lossapi.AlertResponse, err error) {
	done := s.track("InvestigateAlert")
	defer func() { done(err) }()

	return s.transition(ctx, "investigate alert", func() (*store.Alert, error) {
		return s.repo.Investigate(ctx, uint(req.ID))
	})
}

// ResolveAlert closes an alert with resolution notes.
func (s *LossService) ResolveAlert(ctx context.Context, req *lossapi.AlertActionRequest) (resp *lossapi.AlertResponse, err error) {
	done := s.track("ResolveAlert")
	defer func() { done(err) }()

	if req.Actor == "" {
		return nil, status.Error(codes.InvalidArgument, "actor cannot be empty")
	}

	return s.transition(ctx, "resolve alert", func() (*store.Alert, error) {
		return s.repo.Resolve(ctx, uint(req.ID), req.Actor, req.Notes)
	})
}

// DismissAlert closes an alert as a false alarm.
func (s *LossService) DismissAlert(ctx context.Context, req *lossapi.AlertActionRequest) (resp *lossapi.AlertResponse, err error) {
	done := s.track("DismissAlert")
	defer func() { done(err) }()

	if req.Actor == "" {
		return nil, status.Error(codes.InvalidArgument, "actor cannot be empty")
	}

	return s.transition(ctx, "dismiss alert", func() (*store.Alert, error) {
		return s.repo.MarkFalseAlarm(ctx, uint(req.ID), req.Actor, req.Notes)
	})
}

func (s *LossService) transition(ctx context.Context, op string, apply func() (*store.Alert, error)) (*lossapi.AlertResponse, error) {
	alert, err := apply()
	if err != nil {
		return nil, s.toStatus(op, err)
	}

	if s.publisher != nil {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), transitionEventTimeout)
		defer cancel()
		if err := s.publisher.Publish(pubCtx, alert.Event(events.KindTransitioned)); err != nil {
			s.logger.Warn("failed to publish alert transition", "alert_id", alert.ID, "error", err)
		}
	}

	return &lossapi.AlertResponse{Alert: toAlert(alert)}, nil
}

// AlertStats counts the alerts in scope.
func (s *LossService) AlertStats(ctx context.Context, req *lossapi.AlertStatsRequest) (resp *lossapi.AlertStatsResponse, err error) {
	done := s.track("AlertStats")
	defer func() { done(err) }()

	stats, err := s.repo.AlertStats(ctx, toFilter(req.Scope))
	if err != nil {
		return nil, s.toStatus("count alerts", err)
	}

	resp = &lossapi.AlertStatsResponse{
		BySeverity:    make(map[string]int64, len(stats.BySeverity)),
		ByType:        make(map[string]int64, len(stats.ByType)),
		Total:         stats.Total,
		Active:        stats.Active,
		Acknowledged:  stats.Acknowledged,
		Investigating: stats.Investigating,
		Resolved:      stats.Resolved,
		FalseAlarm:    stats.FalseAlarm,
	}
	for k, v := range stats.BySeverity {
		resp.BySeverity[string(k)] = v
	}
	for k, v := range stats.ByType {
		resp.ByType[string(k)] = v
	}

	return resp, nil
}

// TransformerStats summarises one transformer over a trailing window.
func (s *LossService) TransformerStats(ctx context.Context, req *lossapi.TransformerStatsRequest) (resp *lossapi.TransformerStatsResponse, err error) {
	done := s.track("TransformerStats")
	defer func() { done(err) }()

	if req.Code == "" {
		return nil, status.Error(codes.InvalidArgument, "code cannot be empty")
	}

	hours := req.Hours
	if hours <= 0 {
		hours = defaultStatsHours
	}
	since := time.Now().UTC().Add(-time.Duration(hours) * time.Hour)

	stats, err := s.repo.TransformerStats(ctx, req.Code, since)
	if err != nil {
		return nil, s.toStatus("aggregate transformer", err)
	}

	return &lossapi.TransformerStatsResponse{
		Code:               stats.Transformer.Code,
		Name:               stats.Transformer.Name,
		Status:             string(stats.Transformer.Status),
		CapacityKva:        stats.Transformer.CapacityKva,
		AverageVoltageLoss: stats.AverageVoltageLoss,
		AveragePowerLossKw: stats.AveragePowerLossKw,
		TotalPowerLossKw:   stats.TotalPowerLossKw,
		TotalEndpoints:     stats.TotalEndpoints,
		Readings:           stats.Readings,
		EndpointsWithLoss:  stats.EndpointsWithLoss,
		ActiveAlerts:       stats.ActiveAlerts,
		Hours:              hours,
	}, nil
}

// page decodes an offset page token and clamps the page size.
func page(token string, size int32) (offset, limit int, err error) {
	if token != "" {
		offset, err = strconv.Atoi(token)
		if err != nil || offset < 0 {
			return 0, 0, status.Error(codes.InvalidArgument, "invalid page_token")
		}
	}

	limit = int(size)
	switch {
	case limit <= 0:
		limit = defaultPageSize
	case limit > maxPageSize:
		limit = maxPageSize
	}

	return offset, limit, nil
}

var (
	knownStatuses = []grid.AlertStatus{
		grid.AlertActive, grid.AlertAcknowledged, grid.AlertInvestigating, grid.AlertResolved, grid.AlertFalseAlarm,
	}
	knownSeverities = []grid.Severity{
		grid.SeverityInfo, grid.SeverityWarning, grid.SeverityCritical, grid.SeverityEmergency,
	}
	knownTypes = []grid.AlertType{
		grid.AlertVoltageDrop, grid.AlertPowerLoss, grid.AlertTheftSuspected,
		grid.AlertEquipmentFault, grid.AlertOverload, grid.AlertLineFault,
	}
)

func parseEnum[T ~string](values []string, known []T, field string) ([]T, error) {
	out := make([]T, 0, len(values))
	for _, v := range values {
		found := false
		for _, k := range known {
			if string(k) == v {
				out = append(out, k)
				found = true
				break
			}
		}
		if !found {
			return nil, status.Errorf(codes.InvalidArgument, "unknown alert %s %q", field, v)
		}
	}
	return out, nil
}
