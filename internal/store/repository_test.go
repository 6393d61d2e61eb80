package store_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/gridloss/internal/grid"
	"procodus.dev/gridloss/internal/store"
	"procodus.dev/gridloss/internal/store/storetest"
)

var _ = Describe("Repository", func() {
	var (
		ctx context.Context
		e   *env
		ts  time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		e = newEnv(ctx)
		ts = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	})

	Describe("NewRepository", func() {
		It("should require a logger", func() {
			repo, err := store.NewRepository(nil, e.db, grid.DefaultThresholds())
			Expect(err).To(MatchError(ContainSubstring("logger cannot be nil")))
			Expect(repo).To(BeNil())
		})

		It("should require a database", func() {
			repo, err := store.NewRepository(testLogger, nil, grid.DefaultThresholds())
			Expect(err).To(MatchError(ContainSubstring("database cannot be nil")))
			Expect(repo).To(BeNil())
		})
	})

	Describe("CreateTopology", func() {
		It("should insert every level into its own table", func() {
			db, err := storetest.NewDB(testLogger)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(func() {
				Expect(store.CloseDB(db, testLogger)).To(Succeed())
			})

			repo, err := store.NewRepository(testLogger, db, grid.DefaultThresholds())
			Expect(err).NotTo(HaveOccurred())

			counts, err := repo.CreateTopology(ctx, storetest.Plan())
			Expect(err).NotTo(HaveOccurred())
			Expect(counts).To(Equal(store.TopologyCounts{
				Districts:    2,
				Villages:     3,
				Transformers: 3,
				Endpoints:    6,
			}))

			rows := func(model any) int64 {
				var n int64
				Expect(db.Model(model).Count(&n).Error).To(Succeed())
				return n
			}
			Expect(rows(&store.Company{})).To(BeEquivalentTo(1))
			Expect(rows(&store.District{})).To(BeEquivalentTo(2))
			Expect(rows(&store.Village{})).To(BeEquivalentTo(3))
			Expect(rows(&store.Transformer{})).To(BeEquivalentTo(3))
			Expect(rows(&store.Endpoint{})).To(BeEquivalentTo(6))
		})

		It("should assign parent ids down the tree", func() {
			Expect(e.plan.Company.ID).NotTo(BeZero())
			Expect(e.district(0).CompanyID).To(Equal(e.plan.Company.ID))
			Expect(e.village(0, 1).DistrictID).To(Equal(e.district(0).ID))
			Expect(e.endpoint(1, 0, 1).TransformerID).To(Equal(e.plan.Districts[1].Villages[0].Transformers[0].Transformer.ID))
		})

		It("should roll back everything on a duplicate code", func() {
			dup := &store.TopologyPlan{
				Company: store.Company{Code: "DUP", Name: "Duplicate", IsActive: true},
				Districts: []store.DistrictPlan{{
					District: store.District{Code: "D1", Name: "D1", IsActive: true},
					Villages: []store.VillagePlan{{
						Village: store.Village{Code: "V1", Name: "V1", IsActive: true},
						Transformers: []store.TransformerPlan{{
							Transformer: e.plan.Districts[0].Villages[0].Transformers[0].Transformer,
						}},
					}},
				}},
			}
			dup.Districts[0].Villages[0].Transformers[0].Transformer.ID = 0

			_, err := e.repo.CreateTopology(ctx, dup)
			Expect(err).To(MatchError(ContainSubstring("TRF-N-A-01")))

			_, err = e.repo.CompanyByCode(ctx, "DUP")
			Expect(errors.Is(err, store.ErrCompanyNotFound)).To(BeTrue())
		})
	})

	Describe("CompanyByCode", func() {
		It("should find a seeded company", func() {
			company, err := e.repo.CompanyByCode(ctx, "TST")
			Expect(err).NotTo(HaveOccurred())
			Expect(company.Name).To(Equal("Test Power"))
		})

		It("should report a missing company", func() {
			_, err := e.repo.CompanyByCode(ctx, "NONE")
			Expect(errors.Is(err, store.ErrCompanyNotFound)).To(BeTrue())
		})
	})

	Describe("EligibleEndpoints", func() {
		consumerIDs := func(endpoints []store.Endpoint) []string {
			ids := make([]string, len(endpoints))
			for i, ep := range endpoints {
				ids[i] = ep.ConsumerID
			}
			return ids
		}

		It("should return every active endpoint for an empty filter", func() {
			endpoints, err := e.repo.EligibleEndpoints(ctx, store.Filter{})
			Expect(err).NotTo(HaveOccurred())
			Expect(endpoints).To(HaveLen(6))
		})

		It("should preload the location chain", func() {
			endpoints, err := e.repo.EligibleEndpoints(ctx, store.Filter{VillageID: e.village(0, 1).ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(endpoints).To(HaveLen(1))
			Expect(endpoints[0].Transformer).NotTo(BeNil())
			Expect(endpoints[0].Transformer.Village).NotTo(BeNil())
			Expect(endpoints[0].Transformer.Village.District).NotTo(BeNil())
			Expect(endpoints[0].Transformer.Village.District.Code).To(Equal("NORTH"))
		})

		It("should narrow by district", func() {
			endpoints, err := e.repo.EligibleEndpoints(ctx, store.Filter{DistrictID: e.district(1).ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(consumerIDs(endpoints)).To(ConsistOf("CON-S-G-01-001", "CON-S-G-01-002"))
		})

		It("should prefer the most specific filter field", func() {
			endpoints, err := e.repo.EligibleEndpoints(ctx, store.Filter{
				CompanyID:     e.plan.Company.ID,
				DistrictID:    e.district(1).ID,
				TransformerID: e.endpoint(0, 1, 0).TransformerID,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(consumerIDs(endpoints)).To(ConsistOf("CON-N-B-01-001"))
		})

		It("should skip connections that are not active", func() {
			Expect(e.repo.SetConnectionStatus(ctx, "CON-N-A-01-002", store.ConnectionDisconnected)).To(Succeed())

			endpoints, err := e.repo.EligibleEndpoints(ctx, store.Filter{VillageID: e.village(0, 0).ID})
			Expect(err).NotTo(HaveOccurred())
			Expect(consumerIDs(endpoints)).To(ConsistOf("CON-N-A-01-001", "CON-N-A-01-003"))
		})

		It("should return nothing for an unknown scope", func() {
			endpoints, err := e.repo.EligibleEndpoints(ctx, store.Filter{VillageID: 9999})
			Expect(err).NotTo(HaveOccurred())
			Expect(endpoints).To(BeEmpty())
		})
	})

	Describe("SetConnectionStatus", func() {
		It("should report an unknown consumer", func() {
			err := e.repo.SetConnectionStatus(ctx, "CON-NONE", store.ConnectionSuspended)
			Expect(err).To(MatchError(ContainSubstring("not found")))
		})
	})

	Describe("SiblingCounts", func() {
		It("should count every endpoint on the transformer", func() {
			Expect(e.repo.SetConnectionStatus(ctx, "CON-N-A-01-002", store.ConnectionSuspended)).To(Succeed())

			north := e.endpoint(0, 0, 0).TransformerID
			south := e.endpoint(1, 0, 0).TransformerID
			counts, err := e.repo.SiblingCounts(ctx, []uint{north, south})
			Expect(err).NotTo(HaveOccurred())
			Expect(counts).To(Equal(map[uint]int{north: 3, south: 2}))
		})

		It("should return an empty map without ids", func() {
			counts, err := e.repo.SiblingCounts(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(counts).To(BeEmpty())
		})
	})

	Describe("RecordReading", func() {
		It("should derive losses and status before insert", func() {
			res := e.record(ctx, e.endpoint(0, 0, 0), normalRaw(), ts, nil)

			rd := res.Reading
			Expect(rd.ID).NotTo(BeZero())
			Expect(rd.VoltageLoss).To(Equal(2.0))
			Expect(rd.VoltageLossPct).To(Equal(0.87))
			Expect(rd.PowerLossKw).To(Equal(0.04))
			Expect(rd.PowerLossPct).To(Equal(2.0))
			Expect(rd.EnergyLossKwh).To(Equal(0.04))
			Expect(rd.Status).To(Equal(grid.StatusNormal))
			Expect(rd.IsAnomaly).To(BeFalse())
			Expect(res.Alert).To(BeNil())

			var stored store.Reading
			Expect(e.db.First(&stored, rd.ID).Error).NotTo(HaveOccurred())
			Expect(stored.PowerLossPct).To(Equal(2.0))
			Expect(stored.RunID).To(Equal("run-1"))
			Expect(stored.Timestamp).To(BeTemporally("==", ts))
		})

		It("should not build an alert for a normal reading", func() {
			called := false
			build := func(*store.Reading) (*store.Alert, error) {
				called = true
				return nil, errors.New("unexpected")
			}

			res := e.record(ctx, e.endpoint(0, 0, 0), normalRaw(), ts, build)
			Expect(called).To(BeFalse())
			Expect(res.AlertErr).NotTo(HaveOccurred())
		})

		It("should store an alert with an anomalous reading", func() {
			res := e.record(ctx, e.endpoint(0, 0, 0), theftRaw(), ts, theftAlert(e.village(0, 0), e.district(0)))

			Expect(res.Reading.Status).To(Equal(grid.StatusTheftSuspected))
			Expect(res.Reading.IsAnomaly).To(BeTrue())
			Expect(res.AlertErr).NotTo(HaveOccurred())
			Expect(res.Alert).NotTo(BeNil())
			Expect(res.Alert.ReadingID).To(Equal(res.Reading.ID))

			alert, err := e.repo.GetAlert(ctx, res.Alert.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(alert.PowerLossPct).To(Equal(25.0))
			Expect(alert.EstimatedFinancialLoss.StringFixed(2)).To(Equal("2700.00"))
			Expect(alert.Endpoint.ConsumerID).To(Equal("CON-N-A-01-001"))
		})

		It("should keep the reading when the alert cannot be built", func() {
			build := func(*store.Reading) (*store.Alert, error) {
				return nil, grid.ErrIncompleteAlert
			}

			res := e.record(ctx, e.endpoint(0, 0, 0), theftRaw(), ts, build)
			Expect(res.Alert).To(BeNil())
			Expect(errors.Is(res.AlertErr, grid.ErrIncompleteAlert)).To(BeTrue())

			var count int64
			Expect(e.db.Model(&store.Reading{}).Count(&count).Error).NotTo(HaveOccurred())
			Expect(count).To(Equal(int64(1)))
		})

		It("should keep the reading when the alert insert fails", func() {
			missing := &store.District{ID: 9999}
			res := e.record(ctx, e.endpoint(0, 0, 0), theftRaw(), ts, theftAlert(e.village(0, 0), missing))
			Expect(res.Alert).To(BeNil())
			Expect(res.AlertErr).To(MatchError(ContainSubstring("failed to insert alert")))

			var readings, alerts int64
			Expect(e.db.Model(&store.Reading{}).Count(&readings).Error).NotTo(HaveOccurred())
			Expect(e.db.Model(&store.Alert{}).Count(&alerts).Error).NotTo(HaveOccurred())
			Expect(readings).To(Equal(int64(1)))
			Expect(alerts).To(BeZero())
		})

		It("should reject updates to a stored reading", func() {
			res := e.record(ctx, e.endpoint(0, 0, 0), normalRaw(), ts, nil)

			err := e.db.Model(res.Reading).Update("voltage_received", 100).Error
			Expect(errors.Is(err, store.ErrReadingImmutable)).To(BeTrue())

			var stored store.Reading
			Expect(e.db.First(&stored, res.Reading.ID).Error).NotTo(HaveOccurred())
			Expect(stored.VoltageReceived).To(Equal(228.0))
		})
	})

	Describe("ListReadings", func() {
		BeforeEach(func() {
			for i := range 5 {
				raw := normalRaw()
				if i%2 == 0 {
					raw = theftRaw()
				}
				e.record(ctx, e.endpoint(0, 0, 0), raw, ts.Add(time.Duration(i)*time.Hour), nil)
			}
			e.record(ctx, e.endpoint(1, 0, 0), normalRaw(), ts, nil)
		})

		It("should page newest first", func() {
			page, more, err := e.repo.ListReadings(ctx, store.ReadingQuery{ConsumerID: "CON-N-A-01-001", Limit: 2})
			Expect(err).NotTo(HaveOccurred())
			Expect(more).To(BeTrue())
			Expect(page).To(HaveLen(2))
			Expect(page[0].Timestamp).To(BeTemporally("==", ts.Add(4*time.Hour)))
			Expect(page[1].Timestamp).To(BeTemporally("==", ts.Add(3*time.Hour)))

			last, more, err := e.repo.ListReadings(ctx, store.ReadingQuery{ConsumerID: "CON-N-A-01-001", Limit: 2, Offset: 4})
			Expect(err).NotTo(HaveOccurred())
			Expect(more).To(BeFalse())
			Expect(last).To(HaveLen(1))
			Expect(last[0].Timestamp).To(BeTemporally("==", ts))
		})

		It("should filter anomalies and time", func() {
			page, _, err := e.repo.ListReadings(ctx, store.ReadingQuery{
				TransformerCode: "TRF-N-A-01",
				AnomaliesOnly:   true,
				Since:           ts.Add(time.Hour),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(page).To(HaveLen(2))
			for _, rd := range page {
				Expect(rd.IsAnomaly).To(BeTrue())
			}
		})

		It("should return nothing for an unknown consumer", func() {
			page, more, err := e.repo.ListReadings(ctx, store.ReadingQuery{ConsumerID: "CON-NONE"})
			Expect(err).NotTo(HaveOccurred())
			Expect(more).To(BeFalse())
			Expect(page).To(BeEmpty())
		})
	})
})
