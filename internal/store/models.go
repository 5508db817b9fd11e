package store

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-food/internal/money"
)

type OrderStatus string

const (
	OrderStatusPENDING    OrderStatus = "PENDING"
	OrderStatusCONFIRMED  OrderStatus = "CONFIRMED"
	OrderStatusDELIVERING OrderStatus = "DELIVERING"
	OrderStatusDONE       OrderStatus = "DONE"
	OrderStatusCANCELLED  OrderStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentStatusPENDING   PaymentStatus = "PENDING"
	PaymentStatusCOMPLETED PaymentStatus = "COMPLETED"
	PaymentStatusFAILED    PaymentStatus = "FAILED"
	PaymentStatusREFUNDED  PaymentStatus = "REFUNDED"
)

// Terminal reports whether no further settlement may change the status.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusCOMPLETED || s == PaymentStatusFAILED || s == PaymentStatusREFUNDED
}

type PaymentMethod string

const (
	PaymentMethodCASH         PaymentMethod = "CASH"
	PaymentMethodCARD         PaymentMethod = "CARD"
	PaymentMethodBANKTRANSFER PaymentMethod = "BANK_TRANSFER"
	PaymentMethodEWALLET      PaymentMethod = "E_WALLET"
)

type DiscountType string

const (
	DiscountTypePERCENTAGE  DiscountType = "PERCENTAGE"
	DiscountTypeFIXEDAMOUNT DiscountType = "FIXED_AMOUNT"
)

type Product struct {
	ID           pgtype.UUID
	Name         string
	Price        money.Money
	SalePrice    money.NullMoney
	SaleStartsAt pgtype.Timestamptz
	SaleEndsAt   pgtype.Timestamptz
	IsAvailable  bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type ProductOption struct {
	ID          pgtype.UUID
	ProductID   pgtype.UUID
	Name        string
	OptionType  string
	Surcharge   money.Money
	IsAvailable bool
}

type ShippingTier struct {
	ID                    pgtype.UUID
	Name                  string
	MinOrderAmount        money.Money
	MaxOrderAmount        money.NullMoney
	FeeAmount             money.Money
	FreeShippingThreshold money.NullMoney
	IsDefault             bool
	SortOrder             int32
	CreatedAt             time.Time
}

type Coupon struct {
	ID                pgtype.UUID
	Code              string
	DiscountType      DiscountType
	DiscountValue     money.Money
	MinOrderAmount    money.Money
	MaxDiscountAmount money.NullMoney
	UsageLimit        pgtype.Int4
	UsedCount         int32
	StartDate         time.Time
	EndDate           time.Time
	IsActive          bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

type CouponUsage struct {
	ID             pgtype.UUID
	CouponID       pgtype.UUID
	OrderID        pgtype.UUID
	UserID         pgtype.UUID
	DiscountAmount money.Money
	CreatedAt      time.Time
}

type Order struct {
	ID              pgtype.UUID
	OrderNumber     string
	UserID          pgtype.UUID
	Status          OrderStatus
	TotalAmount     money.Money
	ShippingFee     money.Money
	DiscountAmount  money.Money
	FinalAmount     money.Money
	PaymentStatus   PaymentStatus
	PaymentMethod   PaymentMethod
	CouponCode      pgtype.Text
	CancelReason    pgtype.Text
	Notes           pgtype.Text
	DeliveryAddress string
	DeliveryArea    pgtype.Text
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type OrderItem struct {
	ID          pgtype.UUID
	OrderID     pgtype.UUID
	ProductID   pgtype.UUID
	ProductName string
	Quantity    int32
	UnitPrice   money.Money
	SalePrice   money.NullMoney
	LineTotal   money.Money
	Position    int32
}

type OrderItemOption struct {
	ID          pgtype.UUID
	OrderItemID pgtype.UUID
	OptionID    pgtype.UUID
	Name        string
	OptionType  string
	Surcharge   money.Money
	Position    int32
}

type Payment struct {
	ID                   pgtype.UUID
	OrderID              pgtype.UUID
	Method               PaymentMethod
	Provider             pgtype.Text
	Amount               money.Money
	Status               PaymentStatus
	TransactionRef       pgtype.Text
	GatewayTransactionNo pgtype.Text
	ResponseCode         pgtype.Text
	Notes                pgtype.Text
	ProviderPayload      []byte
	CreatedAt            time.Time
	UpdatedAt            time.Time
	SettledAt            pgtype.Timestamptz
}

type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
	OccurredAt  time.Time
}
