package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	errors "github.com/frahmantamala/payment-hub/internal"
	"github.com/frahmantamala/payment-hub/internal/core/common/validation"
	paymentDatamodel "github.com/frahmantamala/payment-hub/internal/core/datamodel/payment"
)

type Item struct {
	ID          int64           `json:"id"`
	PaymentID   int64           `json:"payment_id"`
	Kind        string          `json:"kind"`
	Code        string          `json:"code"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	TotalPrice  decimal.Decimal `json:"total_price"`
	Description string          `json:"description"`
	Options     map[string]any  `json:"options,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

func (it *Item) ComputeTotal() decimal.Decimal {
	return it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// ItemInput describes a line item proposed by a caller.
type ItemInput struct {
	Kind        string          `json:"kind"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Description string          `json:"description,omitempty"`
	Options     map[string]any  `json:"options,omitempty"`
}

func (in ItemInput) Total() decimal.Decimal {
	qty := in.Quantity
	if qty == 0 {
		qty = 1
	}
	return in.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))
}

// Normalize defaults a missing quantity to one.
func (in *ItemInput) Normalize() {
	if in.Quantity == 0 {
		in.Quantity = 1
	}
}

func (in *ItemInput) Validate() error {
	validator := validation.NewValidator()

	validator.Field("kind", in.Kind).Required()
	validator.Field("quantity", in.Quantity).MinInt(1, errors.ErrCodeInvalidQuantity)
	validator.Field("unit_price", in.UnitPrice).NonNegative(errors.ErrCodeInvalidAmount)
	validator.Field("description", in.Description).MaxLength(500)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

// ItemUpdate carries the mutable fields of an existing item; nil fields are left unchanged.
type ItemUpdate struct {
	Quantity    *int             `json:"quantity,omitempty"`
	UnitPrice   *decimal.Decimal `json:"unit_price,omitempty"`
	Description *string          `json:"description,omitempty"`
	Options     map[string]any   `json:"options,omitempty"`
}

func SumTotals(items []*Item) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.TotalPrice)
	}
	return total
}

func SumInputs(items []ItemInput) decimal.Decimal {
	total := decimal.Zero
	for _, in := range items {
		total = total.Add(in.Total())
	}
	return total
}

// filterOptions keeps only the keys an item kind declares as fillable.
func filterOptions(options map[string]any, allowed []string) map[string]any {
	if len(options) == 0 || len(allowed) == 0 {
		return nil
	}
	out := make(map[string]any, len(allowed))
	for _, key := range allowed {
		if v, ok := options[key]; ok {
			out[key] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func ItemFromDataModel(m *paymentDatamodel.PaymentItem) *Item {
	return &Item{
		ID:          m.ID,
		PaymentID:   m.PaymentID,
		Kind:        m.Kind,
		Code:        m.Code,
		Quantity:    m.Quantity,
		UnitPrice:   m.UnitPrice,
		TotalPrice:  m.TotalPrice,
		Description: m.Description,
		Options:     map[string]any(m.Options),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func (it *Item) ToDataModel() *paymentDatamodel.PaymentItem {
	return &paymentDatamodel.PaymentItem{
		ID:          it.ID,
		PaymentID:   it.PaymentID,
		Kind:        it.Kind,
		Code:        it.Code,
		Quantity:    it.Quantity,
		UnitPrice:   it.UnitPrice,
		TotalPrice:  it.TotalPrice,
		Description: it.Description,
		Options:     datatypes.JSONMap(it.Options),
		CreatedAt:   it.CreatedAt,
		UpdatedAt:   it.UpdatedAt,
	}
}
