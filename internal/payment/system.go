package payment

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	errors "github.com/frahmantamala/payment-hub/internal"
	"github.com/frahmantamala/payment-hub/internal/core/common/validation"
	paymentDatamodel "github.com/frahmantamala/payment-hub/internal/core/datamodel/payment"
)

var systemCodePattern = regexp.MustCompile(`^\w{3,}$`)

// PaymentSystem is a configured instance of a gateway kind.
type PaymentSystem struct {
	ID          int64           `json:"id"`
	Code        string          `json:"code"`
	GatewayType string          `json:"gateway_type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	IsEnabled   bool            `json:"is_enabled"`
	MinPay      decimal.Decimal `json:"min_pay"`
	PayTimeout  int             `json:"pay_timeout"`
	Options     map[string]any  `json:"options,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CheckMinPayItems reports whether the proposed items reach min_pay. Without
// items only a zero minimum is satisfied.
func (s *PaymentSystem) CheckMinPayItems(items []ItemInput) bool {
	if len(items) == 0 {
		return s.MinPay.IsZero()
	}
	return SumInputs(items).GreaterThanOrEqual(s.MinPay)
}

func (s *PaymentSystem) HasEnableSystem() bool {
	return s.IsEnabled
}

func (s *PaymentSystem) HasUseTimeout() bool {
	return s.PayTimeout > 0
}

func (s *PaymentSystem) GetTimeout() time.Duration {
	return time.Duration(s.PayTimeout) * time.Minute
}

func (s *PaymentSystem) Option(key string) (any, bool) {
	v, ok := s.Options[key]
	return v, ok
}

func (s *PaymentSystem) OptionString(key string) string {
	v, ok := s.Option(key)
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// OptionInt accepts JSON numbers and numeric strings.
func (s *PaymentSystem) OptionInt(key string) (int64, bool) {
	return OptionInt(s.Options, key)
}

func OptionInt(options map[string]any, key string) (int64, bool) {
	switch v := options[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		return i, err == nil
	}
	return 0, false
}

// SystemInput is the writable shape of a payment system.
type SystemInput struct {
	Code        string          `json:"code"`
	GatewayType string          `json:"gateway_type"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	IsEnabled   bool            `json:"is_enabled"`
	MinPay      decimal.Decimal `json:"min_pay"`
	PayTimeout  int             `json:"pay_timeout"`
	Options     map[string]any  `json:"options,omitempty"`
}

func (in *SystemInput) Validate() error {
	validator := validation.NewValidator()

	validator.Field("code", in.Code).Required().Matches(systemCodePattern, errors.ErrCodeInvalidCode)
	validator.Field("gateway_type", in.GatewayType).Required()
	validator.Field("name", in.Name).Required().MaxLength(255)
	validator.Field("min_pay", in.MinPay).NonNegative(errors.ErrCodeInvalidAmount)
	validator.Field("pay_timeout", in.PayTimeout).MinInt(0, errors.ErrCodeValidationFailed)

	if appErr := validator.Validate(); appErr != nil {
		return appErr
	}
	return nil
}

func SystemFromDataModel(m *paymentDatamodel.PaymentSystem) *PaymentSystem {
	return &PaymentSystem{
		ID:          m.ID,
		Code:        m.Code,
		GatewayType: m.GatewayType,
		Name:        m.Name,
		Description: m.Description,
		IsEnabled:   m.IsEnabled,
		MinPay:      m.MinPay,
		PayTimeout:  m.PayTimeout,
		Options:     map[string]any(m.Options),
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}

func (s *PaymentSystem) ToDataModel() *paymentDatamodel.PaymentSystem {
	return &paymentDatamodel.PaymentSystem{
		ID:          s.ID,
		Code:        s.Code,
		GatewayType: s.GatewayType,
		Name:        s.Name,
		Description: s.Description,
		IsEnabled:   s.IsEnabled,
		MinPay:      s.MinPay,
		PayTimeout:  s.PayTimeout,
		Options:     datatypes.JSONMap(s.Options),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
}
