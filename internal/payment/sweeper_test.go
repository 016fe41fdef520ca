package payment_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	paymentpkg "github.com/frahmantamala/payment-hub/internal/payment"
)

type fakeOverdueFinder struct {
	ids   []int64
	err   error
	limit int
}

func (f *fakeOverdueFinder) ListOverduePayments(_ context.Context, _ time.Time, limit int) ([]int64, error) {
	f.limit = limit
	return f.ids, f.err
}

type fakeCanceller struct {
	results map[int64]error
	reasons map[int64]string
}

func (f *fakeCanceller) PaymentSetCancelledStatus(_ context.Context, id int64, reason string) (*paymentpkg.Payment, error) {
	f.reasons[id] = reason
	if err := f.results[id]; err != nil {
		return nil, err
	}
	return &paymentpkg.Payment{ID: id, Status: paymentpkg.StatusCancelled}, nil
}

var _ = ginkgo.Describe("Sweeper", func() {
	var (
		finder    *fakeOverdueFinder
		canceller *fakeCanceller
		sweeper   *paymentpkg.Sweeper
	)

	ginkgo.BeforeEach(func() {
		finder = &fakeOverdueFinder{}
		canceller = &fakeCanceller{results: map[int64]error{}, reasons: map[int64]string{}}
		sweeper = paymentpkg.NewSweeper(finder, canceller, time.Millisecond, 50, slog.New(slog.NewTextHandler(io.Discard, nil)))
	})

	ginkgo.It("should cancel every overdue payment with the timeout reason", func() {
		// Given
		finder.ids = []int64{1, 2}

		// When
		n, err := sweeper.SweepOnce(context.Background())

		// Then
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(n).To(gomega.Equal(2))
		gomega.Expect(finder.limit).To(gomega.Equal(50))
		gomega.Expect(canceller.reasons).To(gomega.HaveKeyWithValue(int64(1), paymentpkg.TimeoutCancelReason))
	})

	ginkgo.It("should skip payments settled in the meantime", func() {
		finder.ids = []int64{1, 2, 3}
		canceller.results[1] = paymentpkg.ErrNotActive
		canceller.results[2] = errors.New("storage down")

		n, err := sweeper.SweepOnce(context.Background())

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(n).To(gomega.Equal(1))
		gomega.Expect(canceller.reasons).To(gomega.HaveLen(3))
	})

	ginkgo.It("should report a failing scan", func() {
		finder.err = errors.New("scan failed")

		_, err := sweeper.SweepOnce(context.Background())

		gomega.Expect(err).To(gomega.MatchError("scan failed"))
	})

	ginkgo.It("should stop when the context ends", func() {
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)

		go func() { done <- sweeper.Run(ctx) }()
		cancel()

		gomega.Eventually(done).Should(gomega.Receive(gomega.BeNil()))
	})
})

var _ = ginkgo.Describe("PaymentSystem", func() {
	items := []paymentpkg.ItemInput{
		{Kind: "product", Quantity: 1, UnitPrice: decimal.NewFromInt(50)},
		{Kind: "product", Quantity: 2, UnitPrice: decimal.NewFromInt(40)},
	}

	ginkgo.It("should compare proposed items against min_pay", func() {
		sys := &paymentpkg.PaymentSystem{MinPay: decimal.NewFromInt(130)}
		gomega.Expect(sys.CheckMinPayItems(items)).To(gomega.BeTrue())

		sys.MinPay = decimal.NewFromInt(131)
		gomega.Expect(sys.CheckMinPayItems(items)).To(gomega.BeFalse())
	})

	ginkgo.It("should accept no items only with a zero minimum", func() {
		gomega.Expect((&paymentpkg.PaymentSystem{}).CheckMinPayItems(nil)).To(gomega.BeTrue())
		gomega.Expect((&paymentpkg.PaymentSystem{MinPay: decimal.NewFromInt(1)}).CheckMinPayItems(nil)).To(gomega.BeFalse())
	})

	ginkgo.It("should expose the timeout policy in minutes", func() {
		sys := &paymentpkg.PaymentSystem{PayTimeout: 30, IsEnabled: true}

		gomega.Expect(sys.HasEnableSystem()).To(gomega.BeTrue())
		gomega.Expect(sys.HasUseTimeout()).To(gomega.BeTrue())
		gomega.Expect(sys.GetTimeout()).To(gomega.Equal(30 * time.Minute))
		gomega.Expect((&paymentpkg.PaymentSystem{}).HasUseTimeout()).To(gomega.BeFalse())
	})
})
