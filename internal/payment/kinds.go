package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	errors "github.com/frahmantamala/payment-hub/internal"
	"github.com/frahmantamala/payment-hub/internal/registry"
)

// ItemKind is the behaviour bound to an item alias.
type ItemKind interface {
	registry.Kind
	Code() string
	DefaultMessage() string
	ExtraFillableFields() []string
	// OnPaymentStatusChanged is called for every item when its payment reaches
	// SUCCESS or CANCELLED. A non-nil error rejects the change.
	OnPaymentStatusChanged(ctx context.Context, p *Payment, item *Item) error
}

// GatewayKind is the behaviour bound to a gateway alias.
type GatewayKind interface {
	registry.Kind
	InstanceFields() []Field
	PaymentFields() []Field
	AccessPoints() map[string]AccessPointFunc
	OnAssignedToPayment(ctx context.Context, sys *PaymentSystem, p *Payment) error
	OnPaymentCreatedOrReassigned(ctx context.Context, sys *PaymentSystem, p *Payment) error
	OnPaymentSystemChanged(ctx context.Context, sys *PaymentSystem, p *Payment) error
	PaymentVariant() string
}

// ConfigValidator is implemented by gateway kinds that check instance options
// beyond required-field presence.
type ConfigValidator interface {
	ValidateConfig(options map[string]any) error
}

// BaseGateway supplies no-op hooks for gateway kinds to embed.
type BaseGateway struct{}

func (BaseGateway) PaymentFields() []Field { return nil }

func (BaseGateway) AccessPoints() map[string]AccessPointFunc { return nil }

func (BaseGateway) OnAssignedToPayment(context.Context, *PaymentSystem, *Payment) error { return nil }

func (BaseGateway) OnPaymentCreatedOrReassigned(context.Context, *PaymentSystem, *Payment) error {
	return nil
}

func (BaseGateway) OnPaymentSystemChanged(context.Context, *PaymentSystem, *Payment) error {
	return nil
}

func (BaseGateway) PaymentVariant() string { return "" }

type (
	ItemRegistry    = registry.Registry[ItemKind]
	GatewayRegistry = registry.Registry[GatewayKind]
)

func NewItemRegistry(logger *slog.Logger) *ItemRegistry {
	return registry.New[ItemKind]("item", logger)
}

func NewGatewayRegistry(logger *slog.Logger) *GatewayRegistry {
	return registry.New[GatewayKind]("gateway", logger)
}

// KindInfo is the listing shape of a registered kind.
type KindInfo struct {
	Alias       string  `json:"alias"`
	Owner       string  `json:"owner"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Fields      []Field `json:"fields,omitempty"`
}

func DescribeItemKinds(reg *ItemRegistry) []KindInfo {
	entries := reg.List()
	out := make([]KindInfo, 0, len(entries))
	for _, e := range entries {
		d := e.Kind.Details()
		out = append(out, KindInfo{Alias: e.Alias, Owner: e.Owner, Name: d.Name, Description: d.Description})
	}
	return out
}

// DescribeGatewayKinds lists gateway kinds with their instance option schema.
func DescribeGatewayKinds(reg *GatewayRegistry) []KindInfo {
	entries := reg.List()
	out := make([]KindInfo, 0, len(entries))
	for _, e := range entries {
		d := e.Kind.Details()
		out = append(out, KindInfo{
			Alias:       e.Alias,
			Owner:       e.Owner,
			Name:        d.Name,
			Description: d.Description,
			Fields:      e.Kind.InstanceFields(),
		})
	}
	return out
}

type FieldType string

const (
	FieldString  FieldType = "string"
	FieldSecret  FieldType = "secret"
	FieldInteger FieldType = "integer"
	FieldNumber  FieldType = "number"
	FieldBool    FieldType = "boolean"
)

// Field declares one option a gateway instance or payment carries.
type Field struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
	Default  any       `json:"default,omitempty"`
}

// ApplyFieldDefaults fills options with declared defaults for keys that are absent.
func ApplyFieldDefaults(fields []Field, options map[string]any) map[string]any {
	for _, f := range fields {
		if f.Default == nil {
			continue
		}
		if _, ok := options[f.Name]; ok {
			continue
		}
		if options == nil {
			options = make(map[string]any, len(fields))
		}
		options[f.Name] = f.Default
	}
	return options
}

// ValidateFields checks required presence and basic typing of declared options.
func ValidateFields(fields []Field, options map[string]any) error {
	var invalid []errors.ValidationError
	for _, f := range fields {
		v, ok := options[f.Name]
		if !ok || v == nil || v == "" {
			if f.Required {
				invalid = append(invalid, errors.ValidationError{Field: f.Name, Message: "is required", Code: string(errors.ErrCodeInvalidOptions)})
			}
			continue
		}
		switch f.Type {
		case FieldInteger:
			if _, ok := OptionInt(options, f.Name); !ok {
				invalid = append(invalid, errors.ValidationError{Field: f.Name, Message: "must be an integer", Code: string(errors.ErrCodeInvalidOptions)})
			}
		case FieldBool:
			if _, ok := v.(bool); !ok {
				invalid = append(invalid, errors.ValidationError{Field: f.Name, Message: "must be a boolean", Code: string(errors.ErrCodeInvalidOptions)})
			}
		case FieldString, FieldSecret:
			if _, ok := v.(string); !ok {
				invalid = append(invalid, errors.ValidationError{Field: f.Name, Message: "must be a string", Code: string(errors.ErrCodeInvalidOptions)})
			}
		}
	}
	if len(invalid) == 0 {
		return nil
	}
	return errors.NewValidationError("invalid payment system options", errors.ErrCodeInvalidOptions).
		WithDetails(errors.ValidationErrors{Errors: invalid})
}

// AccessRequest is the transport-neutral view of an inbound access point call.
type AccessRequest struct {
	Method   string
	Header   http.Header
	Query    url.Values
	Body     []byte
	ClientIP string
}

type AccessResponse struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// PaymentOperations is the slice of the manager an access point may drive.
type PaymentOperations interface {
	FindPaymentByHash(ctx context.Context, hash string) (*Payment, error)
	PaymentSetSuccessStatus(ctx context.Context, paymentID int64, snapshot map[string]any) (*Payment, error)
	PaymentSetCancelledStatus(ctx context.Context, paymentID int64, reason string) (*Payment, error)
	PaymentUpdatePay(ctx context.Context, paymentID int64) (*Payment, error)
}

// AccessCall bundles what an access point handler receives.
type AccessCall struct {
	System   *PaymentSystem
	Request  *AccessRequest
	Payments PaymentOperations
}

type AccessPointFunc func(ctx context.Context, call *AccessCall) (*AccessResponse, error)

func JSONResponse(status int, v any) *AccessResponse {
	body, err := json.Marshal(v)
	if err != nil {
		body = []byte(fmt.Sprintf(`{"message":%q}`, err.Error()))
		status = http.StatusInternalServerError
	}
	return &AccessResponse{StatusCode: status, ContentType: "application/json", Body: body}
}

func TextResponse(status int, text string) *AccessResponse {
	return &AccessResponse{StatusCode: status, ContentType: "text/plain; charset=utf-8", Body: []byte(text)}
}

func ForbiddenResponse() *AccessResponse {
	return JSONResponse(http.StatusForbidden, map[string]string{"message": "Access Forbidden"})
}
