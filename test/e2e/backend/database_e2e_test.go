package backend

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"procodus.dev/gridloss/internal/grid"
	"procodus.dev/gridloss/internal/store"
	"procodus.dev/gridloss/internal/store/storetest"
)

func measured(received, receivedKw float64) grid.Raw {
	return grid.Raw{
		VoltageSent:        230,
		VoltageReceived:    received,
		CurrentSent:        10,
		CurrentReceived:    9.9,
		PowerSentKw:        2,
		PowerReceivedKw:    receivedKw,
		EnergySentKwh:      2,
		EnergyReceivedKwh:  receivedKw,
		PowerFactor:        0.9,
		Frequency:          50,
		LineDistanceMeters: 200,
	}
}

func alertFor(village *store.Village, district *store.District, loss string) store.AlertBuilder {
	return func(rd *store.Reading) (*store.Alert, error) {
		return &store.Alert{
			EndpointID:             rd.EndpointID,
			TransformerID:          rd.TransformerID,
			VillageID:              village.ID,
			DistrictID:             district.ID,
			Type:                   grid.AlertTheftSuspected,
			Severity:               grid.SeverityCritical,
			Status:                 grid.AlertActive,
			Title:                  "Theft Suspected",
			Description:            "postgres e2e",
			EstimatedFinancialLoss: decimal.RequireFromString(loss),
			PowerLossKw:            rd.PowerLossKw,
			PowerLossPct:           rd.PowerLossPct,
		}, nil
	}
}

var _ = Describe("Repository on PostgreSQL E2E", Ordered, func() {
	var (
		ctx      context.Context
		plan     *store.TopologyPlan
		alpha    *store.Village
		north    *store.District
		endpoint *store.Endpoint
		ts       time.Time
	)

	BeforeAll(func() {
		var err error
		plan, err = storetest.Seed(context.Background(), repo)
		Expect(err).NotTo(HaveOccurred())

		north = &plan.Districts[0].District
		alpha = &plan.Districts[0].Villages[0].Village
		endpoint = &plan.Districts[0].Villages[0].Transformers[0].Endpoints[0]
		ts = time.Now().UTC().Add(-time.Hour).Truncate(time.Second)
	})

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("should find the company by code", func() {
		company, err := repo.CompanyByCode(ctx, "TST")
		Expect(err).NotTo(HaveOccurred())
		Expect(company.ID).To(Equal(plan.Company.ID))

		_, err = repo.CompanyByCode(ctx, "NOPE")
		Expect(err).To(MatchError(store.ErrCompanyNotFound))
	})

	It("should scope eligible endpoints to the company", func() {
		endpoints, err := repo.EligibleEndpoints(ctx, store.Filter{CompanyID: plan.Company.ID})
		Expect(err).NotTo(HaveOccurred())
		Expect(endpoints).To(HaveLen(6))
		Expect(endpoints[0].Transformer.Village.District.Code).To(Equal("NORTH"))
	})

	It("should store a reading with its alert and keep the decimal loss exact", func() {
		res, err := repo.RecordReading(ctx, store.NewReading(endpoint, measured(224, 1.5), ts, "e2e-run"),
			alertFor(alpha, north, "1234.57"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.AlertErr).NotTo(HaveOccurred())
		Expect(res.Reading.Status).To(Equal(grid.StatusTheftSuspected))
		Expect(res.Alert).NotTo(BeNil())

		alert, err := repo.GetAlert(ctx, res.Alert.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(alert.EstimatedFinancialLoss.StringFixed(2)).To(Equal("1234.57"))
		Expect(alert.Transformer.Code).To(Equal("TRF-N-A-01"))
	})

	It("should keep the reading when the alert insert fails", func() {
		orphan := &store.Village{ID: 999999}

		res, err := repo.RecordReading(ctx, store.NewReading(endpoint, measured(224, 1.5), ts.Add(time.Minute), "e2e-run"),
			alertFor(orphan, north, "10.00"))
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Alert).To(BeNil())
		Expect(res.AlertErr).To(HaveOccurred())

		readings, _, err := repo.ListReadings(ctx, store.ReadingQuery{ConsumerID: endpoint.ConsumerID})
		Expect(err).NotTo(HaveOccurred())
		Expect(readings).To(ContainElement(HaveField("ID", res.Reading.ID)))
	})

	It("should reject updates to a stored reading", func() {
		res, err := repo.RecordReading(ctx, store.NewReading(endpoint, measured(228, 1.96), ts.Add(2*time.Minute), "e2e-run"), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(res.Reading.IsAnomaly).To(BeFalse())

		res.Reading.VoltageReceived = 100
		Expect(db.Save(res.Reading).Error).To(MatchError(store.ErrReadingImmutable))
	})

	It("should aggregate transformer stats", func() {
		stats, err := repo.TransformerStats(ctx, "TRF-N-A-01", time.Now().Add(-24*time.Hour))
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.TotalEndpoints).To(BeEquivalentTo(3))
		Expect(stats.Readings).To(BeEquivalentTo(3))
		Expect(stats.EndpointsWithLoss).To(BeEquivalentTo(1))
		Expect(stats.ActiveAlerts).To(BeEquivalentTo(1))
		Expect(stats.TotalPowerLossKw).To(BeNumerically("~", 0.5+0.5+0.04, 1e-9))
	})

	It("should count alerts by status and severity", func() {
		stats, err := repo.AlertStats(ctx, store.Filter{CompanyID: plan.Company.ID})
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Total).To(BeEquivalentTo(1))
		Expect(stats.Active).To(BeEquivalentTo(1))
		Expect(stats.BySeverity).To(HaveKeyWithValue(grid.SeverityCritical, int64(1)))
		Expect(stats.ByType).To(HaveKeyWithValue(grid.AlertTheftSuspected, int64(1)))
	})
})
