package backend_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"procodus.dev/gridloss/internal/backend"
	"procodus.dev/gridloss/internal/grid"
	"procodus.dev/gridloss/internal/simulator"
	"procodus.dev/gridloss/internal/store"
	"procodus.dev/gridloss/internal/store/storetest"
	"procodus.dev/gridloss/pkg/events"
	"procodus.dev/gridloss/pkg/lossapi"
)

func codeOf(err error) codes.Code {
	st, ok := status.FromError(err)
	Expect(ok).To(BeTrue(), "expected a gRPC status error, got %v", err)
	return st.Code()
}

var _ = Describe("gRPC Service", func() {
	var (
		ctx context.Context
		e   *env
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	Describe("NewLossService", func() {
		var (
			repo *store.Repository
			sim  *simulator.Simulator
		)

		BeforeEach(func() {
			db, err := storetest.NewDB(testLogger)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() { _ = store.CloseDB(db, testLogger) })

			repo, err = store.NewRepository(testLogger, db, grid.DefaultThresholds())
			Expect(err).NotTo(HaveOccurred())

			sim, err = simulator.New(&simulator.Config{
				Logger: testLogger,
				Store:  repo,
				Params: grid.DefaultParams(),
			})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should create a service without metrics", func() {
			service, err := backend.NewLossService(testLogger, repo, sim, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(service).NotTo(BeNil())
		})

		It("should return error when logger is nil", func() {
			_, err := backend.NewLossService(nil, repo, sim, nil)
			Expect(err).To(MatchError(ContainSubstring("logger")))
		})

		It("should return error when repository is nil", func() {
			_, err := backend.NewLossService(testLogger, nil, sim, nil)
			Expect(err).To(MatchError(ContainSubstring("repository")))
		})

		It("should return error when simulator is nil", func() {
			_, err := backend.NewLossService(testLogger, repo, nil, nil)
			Expect(err).To(MatchError(ContainSubstring("simulator")))
		})
	})

	Context("with a seeded store", func() {
		BeforeEach(func() {
			e = newEnv(ctx)
		})

		Describe("RunSnapshot", func() {
			It("should take one reading per eligible endpoint", func() {
				resp, err := e.client.RunSnapshot(ctx, &lossapi.RunSnapshotRequest{IncludeResults: true})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Mode).To(Equal(simulator.ModeSnapshot))
				Expect(resp.RunID).NotTo(BeEmpty())
				Expect(resp.Seed).To(Equal(uint64(7)))
				Expect(resp.Endpoints).To(Equal(int64(6)))
				Expect(resp.Readings).To(Equal(int64(6)))
				Expect(resp.Failed).To(BeZero())
				Expect(resp.Results).To(HaveLen(6))
				Expect(resp.Alerts).To(Equal(resp.Anomalies))
			})

			It("should omit results unless asked", func() {
				resp, err := e.client.RunSnapshot(ctx, &lossapi.RunSnapshotRequest{})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Readings).To(Equal(int64(6)))
				Expect(resp.Results).To(BeEmpty())
			})

			It("should narrow the run to the requested village", func() {
				beta := e.plan.Districts[0].Villages[1].Village
				resp, err := e.client.RunSnapshot(ctx, &lossapi.RunSnapshotRequest{
					Scope:          lossapi.Scope{VillageID: uint64(beta.ID)},
					IncludeResults: true,
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Readings).To(Equal(int64(1)))
				Expect(resp.Results[0].ConsumerID).To(Equal("CON-N-B-01-001"))
			})

			It("should publish an event per raised alert", func() {
				resp, err := e.client.RunHistorical(ctx, &lossapi.RunHistoricalRequest{Hours: 24})
				Expect(err).NotTo(HaveOccurred())

				evs := e.pub.Events()
				Expect(evs).To(HaveLen(int(resp.Alerts)))
				for _, ev := range evs {
					Expect(ev.Kind).To(Equal(events.KindRaised))
					Expect(ev.Status).To(Equal(string(grid.AlertActive)))
				}
			})
		})

		Describe("RunHistorical", func() {
			It("should backfill hourly readings", func() {
				resp, err := e.client.RunHistorical(ctx, &lossapi.RunHistoricalRequest{Hours: 3})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Mode).To(Equal(simulator.ModeHistorical))
				Expect(resp.Hours).To(Equal(int64(3)))
				Expect(resp.Readings).To(Equal(int64(18)))
			})

			DescribeTable("should reject hours outside the allowed range",
				func(hours int32) {
					_, err := e.client.RunHistorical(ctx, &lossapi.RunHistoricalRequest{Hours: hours})
					Expect(codeOf(err)).To(Equal(codes.InvalidArgument))
				},
				Entry("zero", int32(0)),
				Entry("negative", int32(-5)),
				Entry("more than a month", int32(24*31+1)),
			)
		})

		Describe("ListReadings", func() {
			BeforeEach(func() {
				_, err := e.client.RunHistorical(ctx, &lossapi.RunHistoricalRequest{Hours: 2})
				Expect(err).NotTo(HaveOccurred())
			})

			It("should page through readings newest first", func() {
				first, err := e.client.ListReadings(ctx, &lossapi.ListReadingsRequest{PageSize: 5})
				Expect(err).NotTo(HaveOccurred())
				Expect(first.Readings).To(HaveLen(5))
				Expect(first.NextPageToken).To(Equal("5"))
				for i := 1; i < len(first.Readings); i++ {
					Expect(first.Readings[i-1].Timestamp).NotTo(BeTemporally("<", first.Readings[i].Timestamp))
				}
				Expect(first.Readings[0].ConsumerID).NotTo(BeEmpty())

				rest, err := e.client.ListReadings(ctx, &lossapi.ListReadingsRequest{PageSize: 50, PageToken: first.NextPageToken})
				Expect(err).NotTo(HaveOccurred())
				Expect(rest.Readings).To(HaveLen(7))
				Expect(rest.NextPageToken).To(BeEmpty())
			})

			It("should filter by consumer", func() {
				resp, err := e.client.ListReadings(ctx, &lossapi.ListReadingsRequest{ConsumerID: "CON-S-G-01-002"})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Readings).To(HaveLen(2))
				for _, r := range resp.Readings {
					Expect(r.ConsumerID).To(Equal("CON-S-G-01-002"))
				}
			})

			It("should filter by transformer", func() {
				resp, err := e.client.ListReadings(ctx, &lossapi.ListReadingsRequest{TransformerCode: "TRF-N-A-01"})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Readings).To(HaveLen(6))
			})

			It("should reject an invalid page token", func() {
				_, err := e.client.ListReadings(ctx, &lossapi.ListReadingsRequest{PageToken: "not-a-number"})
				Expect(codeOf(err)).To(Equal(codes.InvalidArgument))
			})
		})

		Describe("alerts", func() {
			var north, south *store.Alert

			BeforeEach(func() {
				ts := time.Now().UTC().Add(-2 * time.Hour).Truncate(time.Second)
				north = e.raiseAlert(ctx, 0, 0, ts)
				south = e.raiseAlert(ctx, 1, 0, ts.Add(time.Hour))
			})

			It("should list alerts newest first", func() {
				resp, err := e.client.ListAlerts(ctx, &lossapi.ListAlertsRequest{})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Alerts).To(HaveLen(2))
				Expect(resp.Alerts[0].ID).To(Equal(uint64(south.ID)))
				Expect(resp.Alerts[0].TransformerCode).To(Equal("TRF-S-G-01"))
				Expect(resp.Alerts[0].EstimatedFinancialLoss).To(Equal("2700.00"))
				Expect(resp.Alerts[1].ID).To(Equal(uint64(north.ID)))
			})

			It("should filter alerts by district", func() {
				resp, err := e.client.ListAlerts(ctx, &lossapi.ListAlertsRequest{
					Scope: lossapi.Scope{DistrictID: uint64(e.plan.Districts[0].District.ID)},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Alerts).To(HaveLen(1))
				Expect(resp.Alerts[0].ID).To(Equal(uint64(north.ID)))
			})

			It("should filter alerts by status and severity", func() {
				resp, err := e.client.ListAlerts(ctx, &lossapi.ListAlertsRequest{
					Statuses:   []string{string(grid.AlertActive)},
					Severities: []string{string(grid.SeverityCritical)},
					Types:      []string{string(grid.AlertTheftSuspected)},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Alerts).To(HaveLen(2))

				resp, err = e.client.ListAlerts(ctx, &lossapi.ListAlertsRequest{
					Statuses: []string{string(grid.AlertResolved)},
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Alerts).To(BeEmpty())
			})

			It("should reject unknown enum values", func() {
				_, err := e.client.ListAlerts(ctx, &lossapi.ListAlertsRequest{Statuses: []string{"closed"}})
				Expect(codeOf(err)).To(Equal(codes.InvalidArgument))
				Expect(err).To(MatchError(ContainSubstring(`unknown alert status "closed"`)))

				_, err = e.client.ListAlerts(ctx, &lossapi.ListAlertsRequest{Severities: []string{"fatal"}})
				Expect(codeOf(err)).To(Equal(codes.InvalidArgument))
			})

			It("should acknowledge an alert and publish the transition", func() {
				resp, err := e.client.AcknowledgeAlert(ctx, &lossapi.AlertActionRequest{ID: uint64(north.ID), Actor: "operator"})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Alert.Status).To(Equal(string(grid.AlertAcknowledged)))
				Expect(resp.Alert.AcknowledgedBy).To(Equal("operator"))
				Expect(resp.Alert.AcknowledgedAt).NotTo(BeNil())
				Expect(resp.Alert.ConsumerID).To(Equal("CON-N-A-01-001"))

				evs := e.pub.Events()
				Expect(evs).To(HaveLen(1))
				Expect(evs[0].Kind).To(Equal(events.KindTransitioned))
				Expect(evs[0].AlertID).To(Equal(uint64(north.ID)))
				Expect(evs[0].Status).To(Equal(string(grid.AlertAcknowledged)))
			})

			It("should require an actor to acknowledge", func() {
				_, err := e.client.AcknowledgeAlert(ctx, &lossapi.AlertActionRequest{ID: uint64(north.ID)})
				Expect(codeOf(err)).To(Equal(codes.InvalidArgument))
				Expect(e.pub.Events()).To(BeEmpty())
			})

			It("should move an alert through investigation to resolution", func() {
				resp, err := e.client.InvestigateAlert(ctx, &lossapi.AlertActionRequest{ID: uint64(north.ID)})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Alert.Status).To(Equal(string(grid.AlertInvestigating)))

				resp, err = e.client.ResolveAlert(ctx, &lossapi.AlertActionRequest{
					ID:    uint64(north.ID),
					Actor: "lineman",
					Notes: "bypass removed",
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Alert.Status).To(Equal(string(grid.AlertResolved)))
				Expect(resp.Alert.ResolvedBy).To(Equal("lineman"))
				Expect(resp.Alert.ResolutionNotes).To(Equal("bypass removed"))
				Expect(resp.Alert.ResolvedAt).NotTo(BeNil())
				Expect(e.pub.Events()).To(HaveLen(2))
			})

			It("should dismiss an alert as a false alarm", func() {
				resp, err := e.client.DismissAlert(ctx, &lossapi.AlertActionRequest{
					ID:    uint64(south.ID),
					Actor: "supervisor",
					Notes: "meter recalibrated",
				})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Alert.Status).To(Equal(string(grid.AlertFalseAlarm)))
			})

			It("should refuse to reopen a closed alert", func() {
				_, err := e.client.ResolveAlert(ctx, &lossapi.AlertActionRequest{ID: uint64(north.ID), Actor: "lineman"})
				Expect(err).NotTo(HaveOccurred())

				_, err = e.client.AcknowledgeAlert(ctx, &lossapi.AlertActionRequest{ID: uint64(north.ID), Actor: "operator"})
				Expect(codeOf(err)).To(Equal(codes.FailedPrecondition))
				Expect(e.pub.Events()).To(HaveLen(1))
			})

			It("should return NotFound for an unknown alert", func() {
				_, err := e.client.InvestigateAlert(ctx, &lossapi.AlertActionRequest{ID: 9999})
				Expect(codeOf(err)).To(Equal(codes.NotFound))
			})

			It("should count alerts by status", func() {
				_, err := e.client.AcknowledgeAlert(ctx, &lossapi.AlertActionRequest{ID: uint64(north.ID), Actor: "operator"})
				Expect(err).NotTo(HaveOccurred())

				resp, err := e.client.AlertStats(ctx, &lossapi.AlertStatsRequest{})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Total).To(Equal(int64(2)))
				Expect(resp.Active).To(Equal(int64(1)))
				Expect(resp.Acknowledged).To(Equal(int64(1)))
				Expect(resp.BySeverity).To(HaveKeyWithValue(string(grid.SeverityCritical), int64(1)))
				Expect(resp.ByType).To(HaveKeyWithValue(string(grid.AlertTheftSuspected), int64(1)))
			})

			It("should summarise a transformer", func() {
				resp, err := e.client.TransformerStats(ctx, &lossapi.TransformerStatsRequest{Code: "TRF-N-A-01"})
				Expect(err).NotTo(HaveOccurred())
				Expect(resp.Code).To(Equal("TRF-N-A-01"))
				Expect(resp.Hours).To(Equal(int32(24)))
				Expect(resp.TotalEndpoints).To(Equal(int64(3)))
				Expect(resp.Readings).To(Equal(int64(1)))
				Expect(resp.EndpointsWithLoss).To(Equal(int64(1)))
				Expect(resp.ActiveAlerts).To(Equal(int64(1)))
				Expect(resp.TotalPowerLossKw).To(BeNumerically("~", 0.5, 1e-9))
			})
		})

		Describe("TransformerStats", func() {
			It("should require a code", func() {
				_, err := e.client.TransformerStats(ctx, &lossapi.TransformerStatsRequest{})
				Expect(codeOf(err)).To(Equal(codes.InvalidArgument))
			})

			It("should return NotFound for an unknown transformer", func() {
				_, err := e.client.TransformerStats(ctx, &lossapi.TransformerStatsRequest{Code: "TRF-NOPE"})
				Expect(codeOf(err)).To(Equal(codes.NotFound))
			})
		})
	})
})
