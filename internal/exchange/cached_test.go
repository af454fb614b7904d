package exchange_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/expenseflow/expenseflow/internal/exchange"
)

func TestExchange(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Exchange Suite")
}

type mockRateSource struct {
	rate  decimal.Decimal
	err   error
	calls int
}

func (m *mockRateSource) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	m.calls++
	if m.err != nil {
		return decimal.Decimal{}, m.err
	}
	return m.rate, nil
}

type blockingRateSource struct {
	rate    decimal.Decimal
	release chan struct{}
	calls   int32
}

func (m *blockingRateSource) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	atomic.AddInt32(&m.calls, 1)
	<-m.release
	return m.rate, nil
}

func (m *blockingRateSource) started() int32 {
	return atomic.LoadInt32(&m.calls)
}

var _ = Describe("CachedRateSource", func() {
	var inner *mockRateSource

	BeforeEach(func() {
		inner = &mockRateSource{rate: decimal.RequireFromString("0.85")}
	})

	It("should serve repeated lookups from the cache within the TTL", func() {
		cached := exchange.NewCachedRateSource(inner, time.Hour)

		for i := 0; i < 3; i++ {
			rate, err := cached.Rate(context.Background(), "USD", "EUR")
			Expect(err).ToNot(HaveOccurred())
			Expect(rate.String()).To(Equal("0.85"))
		}

		Expect(inner.calls).To(Equal(1))
	})

	It("should cache each currency pair separately", func() {
		cached := exchange.NewCachedRateSource(inner, time.Hour)

		_, err := cached.Rate(context.Background(), "USD", "EUR")
		Expect(err).ToNot(HaveOccurred())
		_, err = cached.Rate(context.Background(), "USD", "GBP")
		Expect(err).ToNot(HaveOccurred())

		Expect(inner.calls).To(Equal(2))
	})

	It("should share one upstream fetch between concurrent misses", func() {
		blocking := &blockingRateSource{
			rate:    decimal.RequireFromString("0.85"),
			release: make(chan struct{}),
		}
		cached := exchange.NewCachedRateSource(blocking, time.Hour)

		const callers = 5
		results := make(chan error, callers)
		for i := 0; i < callers; i++ {
			go func() {
				_, err := cached.Rate(context.Background(), "USD", "EUR")
				results <- err
			}()
		}

		Eventually(blocking.started).Should(Equal(int32(1)))
		close(blocking.release)

		for i := 0; i < callers; i++ {
			Expect(<-results).ToNot(HaveOccurred())
		}
		Expect(blocking.started()).To(Equal(int32(1)))
	})

	It("should fall back to the expired entry when the refresh fails", func() {
		cached := exchange.NewCachedRateSource(inner, time.Nanosecond)

		_, err := cached.Rate(context.Background(), "USD", "EUR")
		Expect(err).ToNot(HaveOccurred())

		time.Sleep(5 * time.Millisecond)
		inner.err = errors.New("provider down")

		rate, err := cached.Rate(context.Background(), "USD", "EUR")
		Expect(err).ToNot(HaveOccurred())
		Expect(rate.String()).To(Equal("0.85"))
		Expect(inner.calls).To(Equal(2))
	})

	It("should surface the error when there is nothing cached", func() {
		inner.err = errors.New("provider down")
		cached := exchange.NewCachedRateSource(inner, time.Hour)

		_, err := cached.Rate(context.Background(), "USD", "EUR")
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Service", func() {
	var (
		inner   *mockRateSource
		service *exchange.Service
	)

	BeforeEach(func() {
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
		inner = &mockRateSource{rate: decimal.RequireFromString("0.85")}
		service = exchange.NewService(inner, logger)
	})

	It("should convert and round to two decimals", func() {
		amount := decimal.RequireFromString("123.456")

		converted, err := service.Convert(context.Background(), amount, "usd", "EUR")

		Expect(err).ToNot(HaveOccurred())
		Expect(converted.String()).To(Equal("104.94"))
	})

	It("should skip the lookup for a same-currency pair", func() {
		amount := decimal.RequireFromString("50")

		converted, err := service.Convert(context.Background(), amount, "EUR", " eur ")

		Expect(err).ToNot(HaveOccurred())
		Expect(converted).To(Equal(amount))
		Expect(inner.calls).To(Equal(0))
	})
})
