package payment_test

import (
	"sync"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	paymentpkg "github.com/frahmantamala/payment-hub/internal/payment"
)

var _ = ginkgo.Describe("Payment options", func() {
	var p *paymentpkg.Payment

	ginkgo.BeforeEach(func() {
		p = &paymentpkg.Payment{Options: map[string]any{"payment_code": "A", "stripe_intent_id": "pi_1"}}
	})

	ginkgo.It("should keep existing keys without replace", func() {
		p.SetParam(map[string]any{"payment_code": "B", "channel": "web"}, false)

		gomega.Expect(p.Options).To(gomega.Equal(map[string]any{
			"payment_code":     "A",
			"stripe_intent_id": "pi_1",
			"channel":          "web",
		}))
	})

	ginkgo.It("should overwrite only the given keys with replace", func() {
		p.SetParam(map[string]any{"payment_code": "C"}, true)

		code, ok := p.Param("payment_code")
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(code).To(gomega.Equal("C"))
		gomega.Expect(p.ParamString("stripe_intent_id")).To(gomega.Equal("pi_1"))
	})

	ginkgo.It("should start a bag on an empty payment", func() {
		empty := &paymentpkg.Payment{}

		empty.SetParam(map[string]any{"channel": "web"}, false)

		gomega.Expect(empty.ParamString("channel")).To(gomega.Equal("web"))
		_, ok := empty.Param("missing")
		gomega.Expect(ok).To(gomega.BeFalse())
	})
})

var _ = ginkgo.Describe("NewHash", func() {
	ginkgo.It("should stay unique across 10000 concurrent generations", func() {
		const n = 10000
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
				h, err := paymentpkg.NewHash()
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				mu.Lock()
				hashes[h] = struct{}{}
				mu.Unlock()
			}()
		}
		wg.Wait()

		gomega.Expect(hashes).To(gomega.HaveLen(n))
	})
})
