package payment_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/frahmantamala/payment-hub/internal"
	paymentDatamodel "github.com/frahmantamala/payment-hub/internal/core/datamodel/payment"
	"github.com/frahmantamala/payment-hub/internal/core/events"
	paymentpkg "github.com/frahmantamala/payment-hub/internal/payment"
	"github.com/frahmantamala/payment-hub/internal/payment/postgres"
)

func countLogs(logs []*paymentpkg.Log, code string) int {
	n := 0
	for _, l := range logs {
		if l.Code == code {
			n++
		}
	}
	return n
}

var _ = ginkgo.Describe("Manager", func() {
	var (
		ctx       context.Context
		db        *gorm.DB
		repo      paymentpkg.RepositoryAPI
		product   *stubItemKind
		deposit   *stubItemKind
		gateway   *stubGateway
		publisher *recordingPublisher
		items     *paymentpkg.ItemRegistry
		gateways  *paymentpkg.GatewayRegistry
		manager   *paymentpkg.Manager
		system    *paymentpkg.PaymentSystem
	)

	twoItems := func() []paymentpkg.ItemInput {
		return []paymentpkg.ItemInput{
			{Kind: "product", UnitPrice: decimal.NewFromInt(50)},
			{Kind: "product", UnitPrice: decimal.NewFromInt(80)},
		}
	}

	paymentRows := func() int64 {
		var n int64
		gomega.Expect(db.Model(&paymentDatamodel.Payment{}).Count(&n).Error).ToNot(gomega.HaveOccurred())
		return n
	}

	details := func(id int64) *paymentpkg.PaymentDetails {
		d, err := manager.GetPaymentDetails(ctx, id)
		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		return d
	}

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		db = openTestDB()
		repo = postgres.NewPaymentRepository(db)

		product = &stubItemKind{code: "PRD", fillable: []string{"sku"}}
		deposit = &stubItemKind{code: "DEP"}
		items = paymentpkg.NewItemRegistry(testLogger())
		items.Register("test", map[string]paymentpkg.ItemKind{"product": product, "deposit": deposit})

		gateway = &stubGateway{variant: "stub-v1"}
		gateways = paymentpkg.NewGatewayRegistry(testLogger())
		gateways.Register("test", map[string]paymentpkg.GatewayKind{"stub": gateway})

		publisher = &recordingPublisher{}
		manager = paymentpkg.NewManager(repo, items, gateways, testLogger(),
			paymentpkg.WithPublisher(publisher),
			paymentpkg.WithDefaultCancelTimeout(15*time.Minute))

		system = &paymentpkg.PaymentSystem{
			Code:        "stub_main",
			GatewayType: "stub",
			Name:        "Stub",
			IsEnabled:   true,
			MinPay:      decimal.NewFromInt(100),
			PayTimeout:  30,
			Options:     map[string]any{"account": "acc-1"},
		}
		gomega.Expect(repo.CreateSystem(ctx, system)).To(gomega.Succeed())
	})

	ginkgo.AfterEach(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	ginkgo.Describe("full lifecycle", func() {
		ginkgo.It("should create, assign and settle a payment", func() {
			// Given a payment with items priced 50 and 80
			p, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{Description: "order 1"}, twoItems(), true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(p.Amount.StringFixed(2)).To(gomega.Equal("130.00"))
			gomega.Expect(p.Status).To(gomega.Equal(paymentpkg.StatusNew))
			gomega.Expect(p.Hash).To(gomega.HaveLen(32))
			gomega.Expect(p.CancelDeadline).ToNot(gomega.BeNil())

			// When a gateway with min_pay 100 is assigned
			p, err = manager.SetPaymentMethod(ctx, p.ID, system.ID)

			// Then it waits with the gateway's timeout
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(p.Status).To(gomega.Equal(paymentpkg.StatusWaiting))
			gomega.Expect(*p.PaymentSystemID).To(gomega.Equal(system.ID))
			gomega.Expect(p.CancelDeadline).ToNot(gomega.BeNil())
			gomega.Expect(*p.CancelDeadline).To(gomega.BeTemporally("~", time.Now().UTC().Add(30*time.Minute), time.Minute))
			gomega.Expect(p.Variant).To(gomega.Equal("stub-v1"))
			gomega.Expect(p.Options).To(gomega.HaveKeyWithValue("assigned_by", "stub_main"))
			gomega.Expect(p.Options).To(gomega.HaveKeyWithValue("channel", "web"))
			gomega.Expect(gateway.changed).To(gomega.Equal(1))

			// When it succeeds
			p, err = manager.PaymentSetSuccessStatus(ctx, p.ID, map[string]any{"source": "test"})
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(p.Status).To(gomega.Equal(paymentpkg.StatusSuccess))
			gomega.Expect(p.PaidAt).ToNot(gomega.BeNil())
			gomega.Expect(p.CancelDeadline).To(gomega.BeNil())
			gomega.Expect(product.seen).To(gomega.Equal([]paymentpkg.Status{paymentpkg.StatusSuccess, paymentpkg.StatusSuccess}))

			// Then a late cancel is refused without a log entry
			_, err = manager.PaymentSetCancelledStatus(ctx, p.ID, "too late")
			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrNotActive))

			d := details(p.ID)
			gomega.Expect(d.Status).To(gomega.Equal(paymentpkg.StatusSuccess))
			gomega.Expect(d.Logs).To(gomega.HaveLen(1))
			gomega.Expect(d.Logs[0].Code).To(gomega.Equal(paymentpkg.LogCodeSuccess))

			gomega.Expect(publisher.Types()).To(gomega.Equal([]string{
				events.EventTypePaymentCreated,
				events.EventTypePaymentGatewayAssigned,
				events.EventTypePaymentSucceeded,
			}))
		})
	})

	ginkgo.Describe("CreatePaymentWithItems", func() {
		ginkgo.It("should reject an empty item list", func() {
			_, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, nil, true)
			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrNoItems))
			gomega.Expect(paymentRows()).To(gomega.Equal(int64(0)))
		})

		ginkgo.It("should fail fast on an unknown item kind without persisting", func() {
			in := append(twoItems(), paymentpkg.ItemInput{Kind: "ghost", UnitPrice: decimal.NewFromInt(5)})

			_, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, in, true)

			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrUnknownItemKind))
			gomega.Expect(paymentRows()).To(gomega.Equal(int64(0)))
		})

		ginkgo.It("should skip unknown item kinds when not failing fast", func() {
			in := append(twoItems(), paymentpkg.ItemInput{Kind: "ghost", UnitPrice: decimal.NewFromInt(5)})

			p, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, in, false)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(p.Amount.StringFixed(2)).To(gomega.Equal("130.00"))
			gomega.Expect(details(p.ID).Items).To(gomega.HaveLen(2))
		})

		ginkgo.It("should reject a negative price before persisting", func() {
			in := []paymentpkg.ItemInput{{Kind: "product", UnitPrice: decimal.NewFromInt(-1)}}

			_, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, in, true)

			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(paymentRows()).To(gomega.Equal(int64(0)))
		})

		ginkgo.It("should fill item code, default description and fillable options", func() {
			in := []paymentpkg.ItemInput{{
				Kind:      "product",
				Quantity:  3,
				UnitPrice: decimal.NewFromInt(10),
				Options:   map[string]any{"sku": "SKU-1", "color": "red"},
			}}

			p, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, in, true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			it := details(p.ID).Items[0]
			gomega.Expect(it.Code).To(gomega.Equal("PRD"))
			gomega.Expect(it.Description).To(gomega.Equal("Stub item PRD"))
			gomega.Expect(it.TotalPrice.StringFixed(2)).To(gomega.Equal("30.00"))
			gomega.Expect(it.Options).To(gomega.Equal(map[string]any{"sku": "SKU-1"}))
			gomega.Expect(p.Amount.StringFixed(2)).To(gomega.Equal("30.00"))
		})

		ginkgo.It("should run creation hooks", func() {
			manager.OnBeforeCreate(func(ctx context.Context, draft *paymentpkg.Draft) error {
				draft.Data.Description = "rewritten"
				draft.Items = append(draft.Items, paymentpkg.ItemInput{Kind: "deposit", UnitPrice: decimal.NewFromInt(20)})
				return nil
			})
			var seen int
			manager.OnAfterCreate(func(ctx context.Context, p *paymentpkg.Payment, created []*paymentpkg.Item) error {
				seen = len(created)
				return errors.New("after hooks never fail creation")
			})

			p, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{Description: "original"}, twoItems(), true)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(p.Description).To(gomega.Equal("rewritten"))
			gomega.Expect(p.Amount.StringFixed(2)).To(gomega.Equal("150.00"))
			gomega.Expect(seen).To(gomega.Equal(3))
		})

		ginkgo.It("should abort when a before hook fails", func() {
			manager.OnBeforeCreate(func(ctx context.Context, draft *paymentpkg.Draft) error {
				return paymentpkg.ErrBelowMinimumPay
			})

			_, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)

			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrBelowMinimumPay))
			gomega.Expect(paymentRows()).To(gomega.Equal(int64(0)))
		})

		ginkgo.It("should regenerate the hash on collision", func() {
			existing, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			calls := 0
			collide := paymentpkg.NewManager(repo, items, gateways, testLogger(),
				paymentpkg.WithHashGenerator(func() (string, error) {
					calls++
					if calls < 3 {
						return existing.Hash, nil
					}
					return fmt.Sprintf("fresh-%d", calls), nil
				}))

			p, err := collide.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(p.Hash).To(gomega.Equal("fresh-3"))
			gomega.Expect(paymentRows()).To(gomega.Equal(int64(2)))
		})

		ginkgo.It("should produce distinct hashes for concurrent creations", func() {
			const n = 50
			var (
				wg     sync.WaitGroup
				mu     sync.Mutex
				hashes = make(map[string]struct{}, n)
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					defer ginkgo.GinkgoRecover()
					p, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)
					gomega.Expect(err).ToNot(gomega.HaveOccurred())
					mu.Lock()
					hashes[p.Hash] = struct{}{}
					mu.Unlock()
				}()
			}
			wg.Wait()

			gomega.Expect(hashes).To(gomega.HaveLen(n))
		})
	})

	ginkgo.Describe("CreatePaymentWithItemsAndCode", func() {
		ginkgo.It("should fail with GatewayNotFound for an unknown code and create nothing", func() {
			_, err := manager.CreatePaymentWithItemsAndCode(ctx, "unknown_code", paymentpkg.PaymentData{}, twoItems())

			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrGatewayNotFound))
			gomega.Expect(paymentRows()).To(gomega.Equal(int64(0)))
		})

		ginkgo.It("should enforce min_pay over accepted items", func() {
			in := []paymentpkg.ItemInput{{Kind: "product", UnitPrice: decimal.NewFromInt(60)}}

			_, err := manager.CreatePaymentWithItemsAndCode(ctx, "stub_main", paymentpkg.PaymentData{}, in)

			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrBelowMinimumPay))
			gomega.Expect(paymentRows()).To(gomega.Equal(int64(0)))
		})

		ginkgo.It("should refuse a disabled system", func() {
			system.IsEnabled = false
			gomega.Expect(repo.UpdateSystem(ctx, system)).To(gomega.Succeed())

			_, err := manager.CreatePaymentWithItemsAndCode(ctx, "stub_main", paymentpkg.PaymentData{}, twoItems())

			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrGatewayDisabled))
		})

		ginkgo.It("should create and assign in one call", func() {
			p, err := manager.CreatePaymentWithItemsAndCode(ctx, "stub_main", paymentpkg.PaymentData{}, twoItems())

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(p.Status).To(gomega.Equal(paymentpkg.StatusWaiting))
			gomega.Expect(p.Amount.StringFixed(2)).To(gomega.Equal("130.00"))
		})
	})

	ginkgo.Describe("SetPaymentMethod", func() {
		var p *paymentpkg.Payment

		ginkgo.BeforeEach(func() {
			var err error
			p, err = manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
		})

		ginkgo.It("should refuse a second assignment without mutating state", func() {
			assigned, err := manager.SetPaymentMethod(ctx, p.ID, system.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = manager.SetPaymentMethodByCode(ctx, p.ID, "stub_main")

			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrGatewayAlreadyAssigned))
			stored, _ := manager.GetPayment(ctx, p.ID)
			gomega.Expect(stored.Version).To(gomega.Equal(assigned.Version))
			gomega.Expect(stored.Status).To(gomega.Equal(paymentpkg.StatusWaiting))
			gomega.Expect(gateway.changed).To(gomega.Equal(1))
		})

		ginkgo.It("should route a failing gateway hook to ERROR with a generic error", func() {
			gateway.assignErr = errors.New("upstream said: secret-token-123 invalid")

			_, err := manager.SetPaymentMethod(ctx, p.ID, system.ID)

			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrOperationFailed))
			gomega.Expect(err.Error()).ToNot(gomega.ContainSubstring("secret-token-123"))

			d := details(p.ID)
			gomega.Expect(d.Status).To(gomega.Equal(paymentpkg.StatusError))
			gomega.Expect(d.PaymentSystemID).To(gomega.BeNil())
			gomega.Expect(countLogs(d.Logs, paymentpkg.LogCodeError)).To(gomega.Equal(1))
			gomega.Expect(d.Logs[0].RequestSnapshot).To(gomega.HaveKeyWithValue("error", "upstream said: secret-token-123 invalid"))
			gomega.Expect(d.Logs[0].RequestSnapshot).To(gomega.HaveKey("stack"))
		})

		ginkgo.It("should route options that cannot be stored to ERROR", func() {
			// Given a gateway that leaves an unencodable value behind
			gateway.extra = map[string]any{"rate": math.Inf(1)}

			// When
			_, err := manager.SetPaymentMethod(ctx, p.ID, system.ID)

			// Then the caller gets the generic failure and the row stays readable
			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrOperationFailed))
			d := details(p.ID)
			gomega.Expect(d.Status).To(gomega.Equal(paymentpkg.StatusError))
			gomega.Expect(d.PaymentSystemID).To(gomega.BeNil())
			gomega.Expect(countLogs(d.Logs, paymentpkg.LogCodeError)).To(gomega.Equal(1))
			gomega.Expect(d.Logs[0].RequestSnapshot["error"]).To(gomega.ContainSubstring("encode payment options"))
		})

		ginkgo.It("should set the cancel deadline from the gateway timeout", func() {
			fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			clocked := paymentpkg.NewManager(repo, items, gateways, testLogger(),
				paymentpkg.WithClock(func() time.Time { return fixed }))

			assigned, err := clocked.SetPaymentMethod(ctx, p.ID, system.ID)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(*assigned.CancelDeadline).To(gomega.BeTemporally("==", fixed.Add(30*time.Minute)))
			stored, _ := manager.GetPayment(ctx, p.ID)
			gomega.Expect(*stored.CancelDeadline).To(gomega.BeTemporally("~", fixed.Add(30*time.Minute), time.Second))
		})

		ginkgo.It("should route a failing system-changed notification to ERROR", func() {
			gateway.changedErr = errors.New("notify failed")

			_, err := manager.SetPaymentMethod(ctx, p.ID, system.ID)

			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrOperationFailed))
			gomega.Expect(details(p.ID).Status).To(gomega.Equal(paymentpkg.StatusError))
		})

		ginkgo.It("should refuse an unregistered gateway kind before mutating", func() {
			orphan := &paymentpkg.PaymentSystem{Code: "orphan", GatewayType: "gone", Name: "Orphan", IsEnabled: true}
			gomega.Expect(repo.CreateSystem(ctx, orphan)).To(gomega.Succeed())

			_, err := manager.SetPaymentMethod(ctx, p.ID, orphan.ID)

			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrUnknownGatewayKind))
			gomega.Expect(details(p.ID).Status).To(gomega.Equal(paymentpkg.StatusNew))
		})
	})

	ginkgo.Describe("PaymentSetSuccessStatus", func() {
		ginkgo.It("should refuse a zero amount and leave the status unchanged", func() {
			p, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{},
				[]paymentpkg.ItemInput{{Kind: "product", UnitPrice: decimal.Zero}}, true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = manager.PaymentSetSuccessStatus(ctx, p.ID, nil)

			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrInvalidAmount))
			gomega.Expect(details(p.ID).Status).To(gomega.Equal(paymentpkg.StatusNew))
		})

		ginkgo.It("should move to ERROR once when an item rejects the transition", func() {
			// Given
			p, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, []paymentpkg.ItemInput{
				{Kind: "product", UnitPrice: decimal.NewFromInt(50)},
				{Kind: "deposit", UnitPrice: decimal.NewFromInt(80)},
			}, true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			deposit.setReject(errors.New("account closed"))

			// When
			_, err = manager.PaymentSetSuccessStatus(ctx, p.ID, nil)

			// Then
			var rejected *paymentpkg.ItemRejectedError
			gomega.Expect(errors.As(err, &rejected)).To(gomega.BeTrue())
			gomega.Expect(rejected.ItemCode).To(gomega.Equal("DEP"))

			d := details(p.ID)
			gomega.Expect(d.Status).To(gomega.Equal(paymentpkg.StatusError))
			gomega.Expect(d.PaidAt).To(gomega.BeNil())
			gomega.Expect(countLogs(d.Logs, paymentpkg.LogCodeError)).To(gomega.Equal(1))
			gomega.Expect(countLogs(d.Logs, paymentpkg.LogCodeSuccess)).To(gomega.Equal(0))

			// And a second attempt adds no error entry
			_, err = manager.PaymentSetSuccessStatus(ctx, p.ID, nil)
			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrNotActive))
			gomega.Expect(countLogs(details(p.ID).Logs, paymentpkg.LogCodeError)).To(gomega.Equal(1))
		})

		ginkgo.It("should treat a panicking item as a rejection", func() {
			p, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{},
				[]paymentpkg.ItemInput{{Kind: "deposit", UnitPrice: decimal.NewFromInt(10)}}, true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			deposit.panics = true

			_, err = manager.PaymentSetSuccessStatus(ctx, p.ID, nil)

			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(details(p.ID).Status).To(gomega.Equal(paymentpkg.StatusError))
		})

		ginkgo.It("should move to ERROR when an item leaves options that cannot be stored", func() {
			p, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			product.options = map[string]any{"fx": math.NaN()}

			_, err = manager.PaymentSetSuccessStatus(ctx, p.ID, nil)

			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrOperationFailed))
			d := details(p.ID)
			gomega.Expect(d.Status).To(gomega.Equal(paymentpkg.StatusError))
			gomega.Expect(d.PaidAt).To(gomega.BeNil())
			gomega.Expect(countLogs(d.Logs, paymentpkg.LogCodeError)).To(gomega.Equal(1))
			gomega.Expect(countLogs(d.Logs, paymentpkg.LogCodeSuccess)).To(gomega.Equal(0))
		})

		ginkgo.It("should let exactly one of two concurrent confirmations win", func() {
			// Given a database several connections write to at once
			shared := openFileTestDB()
			defer func() {
				sqlDB, _ := shared.DB()
				_ = sqlDB.Close()
			}()
			sharedRepo := postgres.NewPaymentRepository(shared)
			manager = paymentpkg.NewManager(sharedRepo, items, gateways, testLogger())

			p, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			var (
				wg      sync.WaitGroup
				results = make([]error, 2)
			)
			for i := range results {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, results[i] = manager.PaymentSetSuccessStatus(ctx, p.ID, map[string]any{"worker": i})
				}(i)
			}
			wg.Wait()

			succeeded, lost := 0, 0
			for _, err := range results {
				switch {
				case err == nil:
					succeeded++
				case errors.Is(err, paymentpkg.ErrNotActive), errors.Is(err, paymentpkg.ErrConcurrentUpdate):
					lost++
				}
			}
			gomega.Expect(succeeded).To(gomega.Equal(1))
			gomega.Expect(lost).To(gomega.Equal(1))
			gomega.Expect(countLogs(details(p.ID).Logs, paymentpkg.LogCodeSuccess)).To(gomega.Equal(1))
		})
	})

	ginkgo.Describe("PaymentSetCancelledStatus", func() {
		ginkgo.It("should default the reason and log it", func() {
			p, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			p, err = manager.PaymentSetCancelledStatus(ctx, p.ID, "")

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(p.Status).To(gomega.Equal(paymentpkg.StatusCancelled))
			gomega.Expect(p.Message).To(gomega.Equal(paymentpkg.DefaultCancelReason))
			gomega.Expect(p.CancelDeadline).To(gomega.BeNil())

			logs := details(p.ID).Logs
			gomega.Expect(logs).To(gomega.HaveLen(1))
			gomega.Expect(logs[0].RequestSnapshot).To(gomega.HaveKeyWithValue("reason", paymentpkg.DefaultCancelReason))
		})

		ginkgo.It("should record the acting user and client address", func() {
			p, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			actx := internal.ContextWithClientIP(internal.ContextWithUserID(ctx, 7), "192.0.2.10")
			_, err = manager.PaymentSetCancelledStatus(actx, p.ID, "customer request")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			l := details(p.ID).Logs[0]
			gomega.Expect(*l.UserID).To(gomega.Equal(int64(7)))
			gomega.Expect(l.IPAddress).To(gomega.Equal("192.0.2.10"))
		})
	})

	ginkgo.Describe("item operations", func() {
		var p *paymentpkg.Payment

		ginkgo.BeforeEach(func() {
			var err error
			p, err = manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
		})

		ginkgo.It("should subtract a deleted item from the amount", func() {
			its := details(p.ID).Items

			gomega.Expect(manager.DeleteItem(ctx, p.ID, its[1].ID)).To(gomega.Succeed())

			d := details(p.ID)
			gomega.Expect(d.Amount.StringFixed(2)).To(gomega.Equal("50.00"))
			gomega.Expect(d.Items).To(gomega.HaveLen(1))
		})

		ginkgo.It("should add an item and grow the amount", func() {
			_, err := manager.AddItem(ctx, p.ID, paymentpkg.ItemInput{Kind: "deposit", Quantity: 2, UnitPrice: decimal.NewFromInt(5)})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(details(p.ID).Amount.StringFixed(2)).To(gomega.Equal("140.00"))
		})

		ginkgo.It("should apply the total difference on update", func() {
			its := details(p.ID).Items
			qty := 2

			it, err := manager.UpdateItem(ctx, p.ID, its[0].ID, paymentpkg.ItemUpdate{Quantity: &qty})

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(it.TotalPrice.StringFixed(2)).To(gomega.Equal("100.00"))
			gomega.Expect(details(p.ID).Amount.StringFixed(2)).To(gomega.Equal("180.00"))
		})

		ginkgo.It("should refuse item changes once a gateway is assigned", func() {
			_, err := manager.SetPaymentMethod(ctx, p.ID, system.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = manager.AddItem(ctx, p.ID, paymentpkg.ItemInput{Kind: "product", UnitPrice: decimal.NewFromInt(1)})

			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrPaymentNotOpen))
			gomega.Expect(details(p.ID).Amount.StringFixed(2)).To(gomega.Equal("130.00"))
		})

		ginkgo.It("should refuse an item of another payment", func() {
			other, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			foreign := details(other.ID).Items[0]

			err = manager.DeleteItem(ctx, p.ID, foreign.ID)

			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrItemNotFound))
		})
	})

	ginkgo.Describe("PaymentUpdatePay", func() {
		ginkgo.It("should recompute the amount from items", func() {
			p, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(db.Model(&paymentDatamodel.Payment{}).Where("id = ?", p.ID).
				Update("amount", decimal.NewFromInt(1)).Error).To(gomega.Succeed())

			p, err = manager.PaymentUpdatePay(ctx, p.ID)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(p.Amount.StringFixed(2)).To(gomega.Equal("130.00"))
			gomega.Expect(countLogs(details(p.ID).Logs, paymentpkg.LogCodeUpdatePay)).To(gomega.Equal(1))
		})

		ginkgo.It("should refuse terminal payments", func() {
			p, err := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			_, err = manager.PaymentSetCancelledStatus(ctx, p.ID, "stop")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			_, err = manager.PaymentUpdatePay(ctx, p.ID)

			gomega.Expect(err).To(gomega.MatchError(paymentpkg.ErrNotActive))
		})
	})

	ginkgo.Describe("GetOpenedCount", func() {
		ginkgo.It("should count NEW and WAITING payments", func() {
			a, _ := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)
			b, _ := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)
			c, _ := manager.CreatePaymentWithItems(ctx, paymentpkg.PaymentData{}, twoItems(), true)
			_, err := manager.SetPaymentMethod(ctx, b.ID, system.ID)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			_, err = manager.PaymentSetCancelledStatus(ctx, c.ID, "")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			_ = a

			count, err := manager.GetOpenedCount(ctx)

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(count).To(gomega.Equal(int64(2)))
		})
	})

	ginkgo.Describe("kind listings", func() {
		ginkgo.It("should list registered kinds with their fields", func() {
			gomega.Expect(manager.ListItemKinds()).To(gomega.HaveLen(2))

			gws := manager.ListGatewayKinds()
			gomega.Expect(gws).To(gomega.HaveLen(1))
			gomega.Expect(gws[0].Alias).To(gomega.Equal("stub"))
			gomega.Expect(gws[0].Fields).To(gomega.HaveLen(2))

			kind, ok := manager.FindItemKindByAlias("deposit")
			gomega.Expect(ok).To(gomega.BeTrue())
			gomega.Expect(kind.Code()).To(gomega.Equal("DEP"))
			_, ok = manager.FindGatewayByAlias("nope")
			gomega.Expect(ok).To(gomega.BeFalse())
		})
	})

	ginkgo.Describe("RunAccessPoint", func() {
		ginkgo.BeforeEach(func() {
			gateway.points = map[string]paymentpkg.AccessPointFunc{
				"confirm": func(ctx context.Context, call *paymentpkg.AccessCall) (*paymentpkg.AccessResponse, error) {
					p, err := call.Payments.FindPaymentByHash(ctx, string(call.Request.Body))
					if err != nil {
						return nil, err
					}
					if _, err := call.Payments.PaymentSetSuccessStatus(ctx, p.ID, map[string]any{"via": call.System.Code}); err != nil {
						return nil, err
					}
					return paymentpkg.TextResponse(http.StatusOK, "confirmed"), nil
				},
				"explode": func(ctx context.Context, call *paymentpkg.AccessCall) (*paymentpkg.AccessResponse, error) {
					panic("gateway bug")
				},
			}
		})

		ginkgo.It("should answer 403 for anything that cannot be resolved", func() {
			for _, tc := range [][2]string{{"", "confirm"}, {"stub_main", ""}, {"missing", "confirm"}, {"stub_main", "undeclared"}} {
				resp := manager.RunAccessPoint(ctx, tc[0], tc[1], &paymentpkg.AccessRequest{})
				gomega.Expect(resp.StatusCode).To(gomega.Equal(http.StatusForbidden))
				gomega.Expect(string(resp.Body)).To(gomega.MatchJSON(`{"message":"Access Forbidden"}`))
			}
		})

		ginkgo.It("should let a declared endpoint settle a payment", func() {
			p, err := manager.CreatePaymentWithItemsAndCode(ctx, "stub_main", paymentpkg.PaymentData{}, twoItems())
			gomega.Expect(err).ToNot(gomega.HaveOccurred())

			resp := manager.RunAccessPoint(ctx, "stub_main", "confirm", &paymentpkg.AccessRequest{Body: []byte(p.Hash)})

			gomega.Expect(resp.StatusCode).To(gomega.Equal(http.StatusOK))
			gomega.Expect(string(resp.Body)).To(gomega.Equal("confirmed"))
			gomega.Expect(details(p.ID).Status).To(gomega.Equal(paymentpkg.StatusSuccess))
		})

		ginkgo.It("should contain a panicking endpoint", func() {
			resp := manager.RunAccessPoint(ctx, "stub_main", "explode", &paymentpkg.AccessRequest{})

			gomega.Expect(resp.StatusCode).To(gomega.Equal(http.StatusInternalServerError))
			gomega.Expect(string(resp.Body)).ToNot(gomega.ContainSubstring("gateway bug"))
		})
	})
})
