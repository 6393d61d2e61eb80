package mq

import (
	"context"
	"errors"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"procodus.dev/gridloss/pkg/events"
	clientmq "procodus.dev/gridloss/pkg/mq"
)

var _ = Describe("Alert events E2E", func() {
	var (
		ctx       context.Context
		cancel    context.CancelFunc
		queueName string
		pubClient *clientmq.Client
		subClient *clientmq.Client
		publisher *events.Publisher
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		queueName = uniqueQueue("alerts")

		pubClient = clientmq.New(queueName, rabbitmqURL, testLogger,
			clientmq.WithDurableQueue(),
			clientmq.WithPersistentMessages(),
			clientmq.WithContentType(events.ContentType),
		)
		subClient = clientmq.New(queueName, rabbitmqURL, testLogger, clientmq.WithDurableQueue())

		var err error
		publisher, err = events.NewPublisher(pubClient, testLogger)
		Expect(err).NotTo(HaveOccurred())

		DeferCleanup(func() {
			cancel()
			_ = publisher.Close()
			_ = subClient.Close()
		})
	})

	// subscribe keeps a subscription running until the test ends. The queue
	// is durable, so events published before it attaches are kept.
	subscribe := func(handle events.Handler) {
		go func() {
			defer GinkgoRecover()
			for ctx.Err() == nil {
				if err := events.Subscribe(ctx, subClient, testLogger, handle); err != nil {
					time.Sleep(200 * time.Millisecond)
				}
			}
		}()
	}

	It("should deliver a published alert event intact", func() {
		var (
			mu  sync.Mutex
			got []events.AlertEvent
		)
		subscribe(func(_ context.Context, ev events.AlertEvent) error {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, ev)
			return nil
		})

		sent := events.AlertEvent{
			Kind:            events.KindRaised,
			AlertID:         42,
			ReadingID:       4200,
			ConsumerID:      "CON-ANA-BOR-01-003",
			TransformerCode: "TRF-ANA-BOR-01",
			Type:            "theft_suspected",
			Severity:        "critical",
			Status:          "active",
			Title:           "Theft Suspected",
			EstimatedLoss:   "2700.00",
			PowerLossKw:     0.5,
			PowerLossPct:    25,
			VoltageLoss:     6,
			OccurredAt:      time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC),
		}
		Expect(publisher.Publish(ctx, sent)).To(Succeed())

		Eventually(func() []events.AlertEvent {
			mu.Lock()
			defer mu.Unlock()
			return append([]events.AlertEvent(nil), got...)
		}).WithTimeout(10 * time.Second).Should(ConsistOf(sent))
	})

	It("should retry an event once when the handler fails", func() {
		var (
			mu       sync.Mutex
			attempts int
		)
		subscribe(func(_ context.Context, _ events.AlertEvent) error {
			mu.Lock()
			defer mu.Unlock()
			attempts++
			return errors.New("downstream unavailable")
		})

		Expect(publisher.Publish(ctx, events.AlertEvent{
			Kind:       events.KindTransitioned,
			AlertID:    7,
			Status:     "acknowledged",
			OccurredAt: time.Now(),
		})).To(Succeed())

		Eventually(func() int {
			mu.Lock()
			defer mu.Unlock()
			return attempts
		}).WithTimeout(10 * time.Second).Should(Equal(2))

		Consistently(func() int {
			mu.Lock()
			defer mu.Unlock()
			return attempts
		}).WithTimeout(time.Second).Should(Equal(2))
	})
})
