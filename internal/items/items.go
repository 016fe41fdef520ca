// Package items holds the item kinds shipped with the hub.
package items

import (
	"context"
	"fmt"

	"github.com/frahmantamala/payment-hub/internal/payment"
	"github.com/frahmantamala/payment-hub/internal/registry"
)

const (
	Owner = "core"

	ProductAlias = "product"
	DepositAlias = "deposit"
)

// Register adds the built-in item kinds to reg.
func Register(reg *payment.ItemRegistry) {
	reg.Register(Owner, map[string]payment.ItemKind{
		ProductAlias: Product{},
		DepositAlias: Deposit{},
	})
}

// Product is a plain catalogue line.
type Product struct{}

func (Product) Details() registry.Details {
	return registry.Details{Name: "Product", Description: "Catalogue product identified by SKU"}
}

func (Product) Code() string                  { return "product" }
func (Product) DefaultMessage() string        { return "Product purchase" }
func (Product) ExtraFillableFields() []string { return []string{"sku"} }

func (Product) OnPaymentStatusChanged(ctx context.Context, p *payment.Payment, it *payment.Item) error {
	return nil
}

// Deposit tops up an account and refuses to settle without one.
type Deposit struct{}

func (Deposit) Details() registry.Details {
	return registry.Details{Name: "Deposit", Description: "Balance top-up credited to an account"}
}

func (Deposit) Code() string                  { return "deposit" }
func (Deposit) DefaultMessage() string        { return "Account deposit" }
func (Deposit) ExtraFillableFields() []string { return []string{"account_id"} }

func (Deposit) OnPaymentStatusChanged(ctx context.Context, p *payment.Payment, it *payment.Item) error {
	if p.Status != payment.StatusSuccess {
		return nil
	}
	if v, ok := it.Options["account_id"]; !ok || v == nil || v == "" {
		return fmt.Errorf("deposit item %d has no account_id", it.ID)
	}
	return nil
}
