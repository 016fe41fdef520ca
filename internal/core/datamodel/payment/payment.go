package payment

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Payment struct {
	ID              int64             `gorm:"primaryKey"`
	Hash            string            `gorm:"column:hash;size:64;not null;uniqueIndex"`
	Status          int16             `gorm:"column:status;not null;index"`
	Amount          decimal.Decimal   `gorm:"column:amount;type:numeric(14,2);not null;default:0"`
	PaymentSystemID *int64            `gorm:"column:payment_system_id;index"`
	UserID          *int64            `gorm:"column:user_id;index"`
	Description     string            `gorm:"column:description"`
	Message         string            `gorm:"column:message"`
	Variant         string            `gorm:"column:variant;size:64"`
	Options         datatypes.JSONMap `gorm:"column:options;type:jsonb"`
	CancelDeadline  *time.Time        `gorm:"column:cancel_deadline;index"`
	PaidAt          *time.Time        `gorm:"column:paid_at"`
	Version         int64             `gorm:"column:version;not null;default:1"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }

type PaymentItem struct {
	ID          int64             `gorm:"primaryKey"`
	PaymentID   int64             `gorm:"column:payment_id;not null;index"`
	Kind        string            `gorm:"column:kind;size:64;not null"`
	Code        string            `gorm:"column:code;size:64"`
	Quantity    int               `gorm:"column:quantity;not null;default:1"`
	UnitPrice   decimal.Decimal   `gorm:"column:unit_price;type:numeric(14,2);not null"`
	TotalPrice  decimal.Decimal   `gorm:"column:total_price;type:numeric(14,2);not null"`
	Description string            `gorm:"column:description"`
	Options     datatypes.JSONMap `gorm:"column:options;type:jsonb"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentItem) TableName() string { return "payment_items" }

type PaymentSystem struct {
	ID          int64             `gorm:"primaryKey"`
	Code        string            `gorm:"column:code;size:64;not null;uniqueIndex"`
	GatewayType string            `gorm:"column:gateway_type;size:64;not null"`
	Name        string            `gorm:"column:name;not null"`
	Description string            `gorm:"column:description"`
	IsEnabled   bool              `gorm:"column:is_enabled;not null;default:false"`
	MinPay      decimal.Decimal   `gorm:"column:min_pay;type:numeric(14,2);not null;default:0"`
	PayTimeout  int               `gorm:"column:pay_timeout;not null;default:0"`
	Options     datatypes.JSONMap `gorm:"column:options;type:jsonb"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (PaymentSystem) TableName() string { return "payment_systems" }

// PaymentLog rows are append-only.
type PaymentLog struct {
	ID              int64             `gorm:"primaryKey"`
	PaymentID       int64             `gorm:"column:payment_id;not null;index"`
	UserID          *int64            `gorm:"column:user_id"`
	Code            string            `gorm:"column:code;size:32;not null"`
	Message         string            `gorm:"column:message"`
	RequestSnapshot datatypes.JSONMap `gorm:"column:request_snapshot;type:jsonb"`
	IPAddress       string            `gorm:"column:ip_address;size:64"`
	CreatedAt       time.Time         `gorm:"column:created_at;autoCreateTime"`
}

func (PaymentLog) TableName() string { return "payment_logs" }
