package grid_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/gridloss/internal/grid"
)

var _ = Describe("Classify", func() {
	var thresholds grid.Thresholds

	BeforeEach(func() {
		thresholds = grid.DefaultThresholds()
	})

	reading := func(voltageReceived, powerSent, powerReceived float64) grid.Raw {
		return grid.Raw{
			VoltageSent:     230,
			VoltageReceived: voltageReceived,
			PowerSentKw:     powerSent,
			PowerReceivedKw: powerReceived,
		}
	}

	DescribeTable("status precedence",
		func(raw grid.Raw, status grid.Status, anomaly bool) {
			c := thresholds.Classify(raw)
			Expect(c.Status).To(Equal(status))
			Expect(c.IsAnomaly).To(Equal(anomaly))
		},
		Entry("voltage just under the low bound", reading(206.9, 10, 10), grid.StatusLowVoltage, true),
		Entry("low voltage wins over theft-level loss", reading(206.9, 10, 5), grid.StatusLowVoltage, true),
		Entry("voltage just over the high bound", reading(253.1, 10, 10), grid.StatusHighVoltage, true),
		Entry("high voltage wins over loss", reading(253.1, 10, 7), grid.StatusHighVoltage, true),
		Entry("20% power loss", reading(220, 10, 8), grid.StatusTheftSuspected, true),
		Entry("exactly 15% power loss", reading(220, 10, 8.5), grid.StatusLossDetected, true),
		Entry("8% power loss", reading(220, 10, 9.2), grid.StatusLossDetected, true),
		Entry("exactly 5% power loss", reading(220, 10, 9.5), grid.StatusNormal, false),
		Entry("4% power loss", reading(220, 10, 9.6), grid.StatusNormal, false),
		Entry("voltage on the low bound", reading(207, 10, 10), grid.StatusNormal, false),
		Entry("voltage on the high bound", reading(253, 10, 10), grid.StatusNormal, false),
		Entry("received power above sent", reading(229, 10, 10.4), grid.StatusNormal, false),
		Entry("nothing sent", reading(229, 0, 0), grid.StatusNormal, false),
	)

	It("should be deterministic for identical inputs", func() {
		raw := reading(221.37, 2.113, 1.871)
		first := thresholds.Classify(raw)
		for range 100 {
			Expect(thresholds.Classify(raw)).To(Equal(first))
		}
	})

	It("should honour overridden thresholds", func() {
		thresholds.TheftLossPct = 25
		Expect(thresholds.Classify(reading(220, 10, 8)).Status).To(Equal(grid.StatusLossDetected))

		thresholds.LowVoltage = 221
		Expect(thresholds.Classify(reading(220, 10, 8)).Status).To(Equal(grid.StatusLowVoltage))
	})
})

var _ = Describe("DeriveLosses", func() {
	It("should compute absolute and relative losses", func() {
		losses := grid.DeriveLosses(grid.Raw{
			VoltageSent:       230,
			VoltageReceived:   207,
			PowerSentKw:       2.000,
			PowerReceivedKw:   1.700,
			EnergySentKwh:     2.000,
			EnergyReceivedKwh: 1.700,
		})

		Expect(losses.VoltageLoss).To(Equal(23.0))
		Expect(losses.VoltageLossPct).To(Equal(10.0))
		Expect(losses.PowerLossKw).To(Equal(0.3))
		Expect(losses.PowerLossPct).To(Equal(15.0))
		Expect(losses.EnergyLossKwh).To(Equal(0.3))
	})

	It("should round percentages to two decimals", func() {
		losses := grid.DeriveLosses(grid.Raw{
			VoltageSent:     230,
			VoltageReceived: 226.55,
			PowerSentKw:     1.955,
			PowerReceivedKw: 1.902,
		})

		Expect(losses.VoltageLoss).To(Equal(3.45))
		Expect(losses.VoltageLossPct).To(Equal(1.5))
		Expect(losses.PowerLossKw).To(Equal(0.053))
		Expect(losses.PowerLossPct).To(Equal(2.71))
	})

	It("should report zero percentages when nothing was sent", func() {
		losses := grid.DeriveLosses(grid.Raw{VoltageSent: 0, VoltageReceived: 12})
		Expect(losses.VoltageLoss).To(Equal(-12.0))
		Expect(losses.VoltageLossPct).To(BeZero())
		Expect(losses.PowerLossPct).To(BeZero())
	})
})
