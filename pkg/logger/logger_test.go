package logger_test

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/gridloss/pkg/logger"
)

// decode returns the single JSON record written to buf.
func decode(buf *bytes.Buffer) map[string]any {
	var entry map[string]any
	Expect(json.Unmarshal(buf.Bytes(), &entry)).To(Succeed())
	return entry
}

var _ = Describe("Logger", func() {
	var (
		buf *bytes.Buffer
		log *slog.Logger
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		log = logger.New(&logger.Config{Level: slog.LevelInfo, Output: buf})
	})

	Describe("New", func() {
		It("should fall back to defaults for a nil config", func() {
			Expect(logger.New(nil)).NotTo(BeNil())
		})

		It("should write JSON records with the standard keys", func() {
			log.Info("reading stored", "consumer_id", "CON-1", "power_loss_kw", 0.25)

			entry := decode(buf)
			Expect(entry).To(HaveKey("time"))
			Expect(entry).To(HaveKeyWithValue("level", "INFO"))
			Expect(entry).To(HaveKeyWithValue("msg", "reading stored"))
			Expect(entry).To(HaveKeyWithValue("consumer_id", "CON-1"))
			Expect(entry).To(HaveKeyWithValue("power_loss_kw", 0.25))
		})

		It("should attach the service name when set", func() {
			log = logger.New(&logger.Config{Level: slog.LevelInfo, Output: buf, Service: "gridloss-test"})
			log.Info("server started")

			Expect(decode(buf)).To(HaveKeyWithValue("service", "gridloss-test"))
		})

		It("should omit the service key without a service name", func() {
			log.Info("server started")

			Expect(decode(buf)).NotTo(HaveKey("service"))
		})

		It("should add the source position when asked", func() {
			log = logger.New(&logger.Config{Level: slog.LevelInfo, Output: buf, AddSource: true})
			log.Info("with source")

			Expect(decode(buf)).To(HaveKey(slog.SourceKey))
		})
	})

	Describe("DefaultConfig", func() {
		It("should log gridloss records at info without source", func() {
			cfg := logger.DefaultConfig()
			Expect(cfg.Service).To(Equal(logger.ServiceName))
			Expect(cfg.Level).To(Equal(slog.LevelInfo))
			Expect(cfg.AddSource).To(BeFalse())
			Expect(cfg.Output).NotTo(BeNil())
		})
	})

	Describe("ParseLevel", func() {
		DescribeTable("should parse level strings",
			func(input string, expected slog.Level) {
				Expect(logger.ParseLevel(input)).To(Equal(expected))
			},
			Entry("debug", "debug", slog.LevelDebug),
			Entry("info", "info", slog.LevelInfo),
			Entry("warn", "warn", slog.LevelWarn),
			Entry("warning", "warning", slog.LevelWarn),
			Entry("error", "error", slog.LevelError),
			Entry("upper case", "DEBUG", slog.LevelDebug),
			Entry("padded", " error ", slog.LevelError),
			Entry("invalid defaults to info", "verbose", slog.LevelInfo),
			Entry("empty defaults to info", "", slog.LevelInfo),
		)
	})

	Describe("level filtering", func() {
		DescribeTable("should respect the configured level",
			func(level slog.Level, emit func(*slog.Logger), shouldAppear bool) {
				out := &bytes.Buffer{}
				emit(logger.New(&logger.Config{Level: level, Output: out}))
				Expect(len(strings.TrimSpace(out.String())) > 0).To(Equal(shouldAppear))
			},
			Entry("debug hidden at info", slog.LevelInfo, func(l *slog.Logger) { l.Debug("tick") }, false),
			Entry("debug shown at debug", slog.LevelDebug, func(l *slog.Logger) { l.Debug("tick") }, true),
			Entry("warn shown at info", slog.LevelInfo, func(l *slog.Logger) { l.Warn("alert skipped") }, true),
			Entry("info hidden at error", slog.LevelError, func(l *slog.Logger) { l.Info("run finished") }, false),
		)
	})

	Describe("WithComponent", func() {
		It("should tag every record with the component", func() {
			scoped := logger.WithComponent(log, "scheduler")
			scoped.Info("scheduler started")
			scoped.Info("scheduler stopped")

			for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
				var entry map[string]any
				Expect(json.Unmarshal([]byte(line), &entry)).To(Succeed())
				Expect(entry).To(HaveKeyWithValue("component", "scheduler"))
			}
		})
	})

	Describe("WithRun", func() {
		It("should attach the run id and mode", func() {
			logger.WithRun(log, "7f1c", "historical").Info("run finished")

			entry := decode(buf)
			Expect(entry).To(HaveKeyWithValue("run_id", "7f1c"))
			Expect(entry).To(HaveKeyWithValue("mode", "historical"))
		})
	})

	Describe("WithTick", func() {
		It("should attach the consumer and a UTC timestamp", func() {
			ist := time.FixedZone("IST", 5*3600+1800)
			ts := time.Date(2025, 3, 1, 15, 30, 0, 0, ist)

			logger.WithTick(log, "CON-ANAND-BOR-01-001", ts).Info("reading stored")

			entry := decode(buf)
			Expect(entry).To(HaveKeyWithValue("consumer_id", "CON-ANAND-BOR-01-001"))
			Expect(entry).To(HaveKeyWithValue("timestamp", "2025-03-01T10:00:00Z"))
		})
	})
})
