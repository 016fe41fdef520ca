package payment_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"time"

	"github.com/go-chi/chi"
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	paymentpkg "github.com/frahmantamala/payment-hub/internal/payment"
	"github.com/frahmantamala/payment-hub/internal/payment/postgres"
	"github.com/frahmantamala/payment-hub/internal/transport"
)

var _ = ginkgo.Describe("Handler", func() {
	var (
		db       *gorm.DB
		repo     paymentpkg.RepositoryAPI
		gateway  *stubGateway
		manager  *paymentpkg.Manager
		router   chi.Router
		recorder *httptest.ResponseRecorder
	)

	do := func(method, path string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		switch b := body.(type) {
		case nil:
		case string:
			buf.WriteString(b)
		default:
			gomega.Expect(json.NewEncoder(&buf).Encode(b)).To(gomega.Succeed())
		}
		req := httptest.NewRequest(method, path, &buf)
		req.Header.Set("Content-Type", "application/json")
		recorder = httptest.NewRecorder()
		router.ServeHTTP(recorder, req)
		return recorder
	}

	decode := func(rec *httptest.ResponseRecorder) map[string]interface{} {
		var out map[string]interface{}
		gomega.Expect(json.Unmarshal(rec.Body.Bytes(), &out)).To(gomega.Succeed())
		return out
	}

	errorCode := func(rec *httptest.ResponseRecorder) string {
		body := decode(rec)
		errBody, ok := body["error"].(map[string]interface{})
		gomega.Expect(ok).To(gomega.BeTrue())
		return errBody["code"].(string)
	}

	createBody := map[string]interface{}{
		"description": "order 42",
		"items": []map[string]interface{}{
			{"kind": "product", "unit_price": 50},
			{"kind": "product", "unit_price": "80.00"},
		},
	}

	ginkgo.BeforeEach(func() {
		db = openTestDB()
		repo = postgres.NewPaymentRepository(db)

		items := paymentpkg.NewItemRegistry(testLogger())
		items.Register("test", map[string]paymentpkg.ItemKind{"product": &stubItemKind{code: "PRD"}})
		gateway = &stubGateway{}
		gateways := paymentpkg.NewGatewayRegistry(testLogger())
		gateways.Register("test", map[string]paymentpkg.GatewayKind{"stub": gateway})

		manager = paymentpkg.NewManager(repo, items, gateways, testLogger(), paymentpkg.WithDefaultCancelTimeout(time.Hour))
		systems := paymentpkg.NewSystemService(repo, gateways, testLogger())

		base := transport.NewBaseHandler(testLogger())
		h := paymentpkg.NewHandler(base, manager, systems)
		wh := paymentpkg.NewWebhookHandler(base, manager)

		router = chi.NewRouter()
		router.Post("/payments", h.CreatePayment)
		router.Post("/payments/checkout/{code}", h.Checkout)
		router.Get("/payments/opened-count", h.GetOpenedCount)
		router.Get("/payments/{id}", h.GetPayment)
		router.Post("/payments/{id}/gateway", h.AssignGateway)
		router.Post("/payments/{id}/success", h.MarkSuccess)
		router.Post("/payments/{id}/cancel", h.Cancel)
		router.Post("/payments/{id}/update-pay", h.UpdatePay)
		router.Post("/payments/{id}/items", h.AddItem)
		router.Put("/payments/{id}/items/{itemID}", h.UpdateItem)
		router.Delete("/payments/{id}/items/{itemID}", h.DeleteItem)
		router.Get("/payment-systems", h.ListSystems)
		router.Post("/payment-systems", h.CreateSystem)
		router.Get("/payment-systems/{id}", h.GetSystem)
		router.Put("/payment-systems/{id}", h.UpdateSystem)
		router.Delete("/payment-systems/{id}", h.DeleteSystem)
		router.Get("/kinds/gateways", h.ListGatewayKinds)
		router.Get("/kinds/items", h.ListItemKinds)
		router.HandleFunc("/pay/{code}/{endpoint}", wh.HandleAccessPoint)
	})

	ginkgo.AfterEach(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})

	createSystem := func() int64 {
		rec := do(http.MethodPost, "/payment-systems", map[string]interface{}{
			"code":         "stub_main",
			"gateway_type": "stub",
			"name":         "Stub",
			"is_enabled":   true,
			"min_pay":      "10",
			"pay_timeout":  30,
			"options":      map[string]interface{}{"account": "acc-1"},
		})
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusCreated))
		return int64(decode(rec)["id"].(float64))
	}

	createPayment := func() int64 {
		rec := do(http.MethodPost, "/payments", createBody)
		gomega.Expect(rec.Code).To(gomega.Equal(http.StatusCreated))
		return int64(decode(rec)["id"].(float64))
	}

	ginkgo.Describe("CreatePayment", func() {
		ginkgo.It("should create a NEW payment with the summed amount", func() {
			rec := do(http.MethodPost, "/payments", createBody)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusCreated))
			body := decode(rec)
			gomega.Expect(body["status"]).To(gomega.Equal("NEW"))
			gomega.Expect(body["amount"]).To(gomega.Equal("130"))
			gomega.Expect(body["hash"]).To(gomega.HaveLen(32))
		})

		ginkgo.It("should reject a body without items", func() {
			rec := do(http.MethodPost, "/payments", map[string]interface{}{"description": "empty"})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("should reject invalid JSON", func() {
			rec := do(http.MethodPost, "/payments", "{not json")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("should report unknown item kinds", func() {
			rec := do(http.MethodPost, "/payments", map[string]interface{}{
				"items": []map[string]interface{}{{"kind": "ghost", "unit_price": 1}},
			})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
			gomega.Expect(errorCode(rec)).To(gomega.Equal("UNKNOWN_ITEM_KIND"))
		})
	})

	ginkgo.Describe("Checkout", func() {
		ginkgo.It("should answer 404 for an unknown payment system", func() {
			rec := do(http.MethodPost, "/payments/checkout/missing", createBody)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNotFound))
			gomega.Expect(errorCode(rec)).To(gomega.Equal("GATEWAY_NOT_FOUND"))
		})

		ginkgo.It("should create a WAITING payment", func() {
			createSystem()

			rec := do(http.MethodPost, "/payments/checkout/stub_main", createBody)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusCreated))
			gomega.Expect(decode(rec)["status"]).To(gomega.Equal("WAITING"))
		})
	})

	ginkgo.Describe("payment transitions", func() {
		ginkgo.It("should assign, settle and refuse a late cancel", func() {
			systemID := createSystem()
			id := createPayment()
			base := "/payments/" + itoa(id)

			rec := do(http.MethodPost, base+"/gateway", map[string]interface{}{"payment_system_id": systemID})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decode(rec)["status"]).To(gomega.Equal("WAITING"))

			rec = do(http.MethodPost, base+"/gateway", map[string]interface{}{"code": "stub_main"})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusConflict))

			rec = do(http.MethodPost, base+"/success", nil)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decode(rec)["status"]).To(gomega.Equal("SUCCESS"))

			rec = do(http.MethodPost, base+"/cancel", map[string]interface{}{"reason": "too late"})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusConflict))
			gomega.Expect(errorCode(rec)).To(gomega.Equal("PAYMENT_NOT_ACTIVE"))

			rec = do(http.MethodGet, base, nil)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			details := decode(rec)
			gomega.Expect(details["status"]).To(gomega.Equal("SUCCESS"))
			gomega.Expect(details["items"]).To(gomega.HaveLen(2))
			gomega.Expect(details["logs"]).To(gomega.HaveLen(1))
		})

		ginkgo.It("should require a gateway selector", func() {
			id := createPayment()

			rec := do(http.MethodPost, "/payments/"+itoa(id)+"/gateway", map[string]interface{}{})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("should cancel with the default reason", func() {
			id := createPayment()

			rec := do(http.MethodPost, "/payments/"+itoa(id)+"/cancel", nil)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decode(rec)["message"]).To(gomega.Equal(paymentpkg.DefaultCancelReason))
		})

		ginkgo.It("should reject a non numeric id", func() {
			rec := do(http.MethodGet, "/payments/abc", nil)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusBadRequest))
		})

		ginkgo.It("should answer 404 for a missing payment", func() {
			rec := do(http.MethodGet, "/payments/999", nil)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNotFound))
		})

		ginkgo.It("should hide hook failures behind a generic message", func() {
			systemID := createSystem()
			id := createPayment()
			gateway.assignErr = context.DeadlineExceeded

			rec := do(http.MethodPost, "/payments/"+itoa(id)+"/gateway", map[string]interface{}{"payment_system_id": systemID})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnprocessableEntity))
			gomega.Expect(errorCode(rec)).To(gomega.Equal("OPERATION_FAILED"))
			gomega.Expect(rec.Body.String()).ToNot(gomega.ContainSubstring("deadline"))
		})
	})

	ginkgo.Describe("items", func() {
		ginkgo.It("should add, update and delete items of an open payment", func() {
			id := createPayment()
			base := "/payments/" + itoa(id)

			rec := do(http.MethodPost, base+"/items", map[string]interface{}{"kind": "product", "unit_price": 20})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusCreated))
			itemID := int64(decode(rec)["id"].(float64))

			rec = do(http.MethodPut, base+"/items/"+itoa(itemID), map[string]interface{}{"quantity": 3})
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decode(rec)["total_price"]).To(gomega.Equal("60"))

			rec = do(http.MethodDelete, base+"/items/"+itoa(itemID), nil)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusNoContent))

			p, err := manager.GetPayment(context.Background(), id)
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(p.Amount.Equal(decimal.NewFromInt(130))).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("opened count", func() {
		ginkgo.It("should count active payments", func() {
			createPayment()
			createPayment()

			rec := do(http.MethodGet, "/payments/opened-count", nil)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			gomega.Expect(decode(rec)["count"]).To(gomega.BeEquivalentTo(2))
		})
	})

	ginkgo.Describe("payment systems", func() {
		ginkgo.It("should apply instance field defaults", func() {
			id := createSystem()

			rec := do(http.MethodGet, "/payment-systems/"+itoa(id), nil)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
			opts := decode(rec)["options"].(map[string]interface{})
			gomega.Expect(opts).To(gomega.HaveKeyWithValue("mode", "live"))
		})

		ginkgo.It("should reject a duplicate code", func() {
			createSystem()

			rec := do(http.MethodPost, "/payment-systems", map[string]interface{}{
				"code": "stub_main", "gateway_type": "stub", "name": "Again",
				"options": map[string]interface{}{"account": "acc-2"},
			})

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusConflict))
		})

		ginkgo.It("should refuse deleting a system in use", func() {
			systemID := createSystem()
			do(http.MethodPost, "/payments/checkout/stub_main", createBody)

			rec := do(http.MethodDelete, "/payment-systems/"+itoa(systemID), nil)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusConflict))
			gomega.Expect(errorCode(rec)).To(gomega.Equal("PAYMENT_SYSTEM_IN_USE"))
		})

		ginkgo.It("should delete an unused system", func() {
			systemID := createSystem()

			gomega.Expect(do(http.MethodDelete, "/payment-systems/"+itoa(systemID), nil).Code).To(gomega.Equal(http.StatusNoContent))
			gomega.Expect(do(http.MethodGet, "/payment-systems/"+itoa(systemID), nil).Code).To(gomega.Equal(http.StatusNotFound))
		})

		ginkgo.It("should list systems and kinds", func() {
			createSystem()

			gomega.Expect(decode(do(http.MethodGet, "/payment-systems", nil))["data"]).To(gomega.HaveLen(1))
			gomega.Expect(decode(do(http.MethodGet, "/kinds/gateways", nil))["data"]).To(gomega.HaveLen(1))
			gomega.Expect(decode(do(http.MethodGet, "/kinds/items", nil))["data"]).To(gomega.HaveLen(1))
		})
	})

	ginkgo.Describe("access points", func() {
		ginkgo.It("should answer 403 for an unknown system", func() {
			rec := do(http.MethodPost, "/pay/missing/notify", "payload")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))
			gomega.Expect(rec.Body.String()).To(gomega.MatchJSON(`{"message":"Access Forbidden"}`))
		})

		ginkgo.It("should pass method, query and body to the endpoint", func() {
			var seen *paymentpkg.AccessRequest
			gateway.points = map[string]paymentpkg.AccessPointFunc{
				"notify": func(ctx context.Context, call *paymentpkg.AccessCall) (*paymentpkg.AccessResponse, error) {
					seen = call.Request
					return paymentpkg.JSONResponse(http.StatusAccepted, map[string]string{"ok": "yes"}), nil
				},
			}
			createSystem()

			rec := do(http.MethodPost, "/pay/stub_main/notify?ref=abc", "payload")

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusAccepted))
			gomega.Expect(rec.Header().Get("Content-Type")).To(gomega.Equal("application/json"))
			gomega.Expect(seen.Method).To(gomega.Equal(http.MethodPost))
			gomega.Expect(seen.Query.Get("ref")).To(gomega.Equal("abc"))
			gomega.Expect(string(seen.Body)).To(gomega.Equal("payload"))
		})
	})
})

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
