package order

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-food/internal/money"
	"github.com/noah-isme/backend-food/internal/store"
)

// View is the API representation of an order.
type View struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"orderNumber"`
	Status          store.OrderStatus   `json:"status"`
	PaymentStatus   store.PaymentStatus `json:"paymentStatus"`
	PaymentMethod   store.PaymentMethod `json:"paymentMethod"`
	TotalAmount     money.Money         `json:"totalAmount"`
	ShippingFee     money.Money         `json:"shippingFee"`
	DiscountAmount  money.Money         `json:"discountAmount"`
	FinalAmount     money.Money         `json:"finalAmount"`
	CouponCode      *string             `json:"couponCode,omitempty"`
	CancelReason    *string             `json:"cancelReason,omitempty"`
	Notes           *string             `json:"notes,omitempty"`
	DeliveryAddress string              `json:"deliveryAddress"`
	DeliveryArea    *string             `json:"deliveryArea,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
	Items           []ItemView          `json:"items,omitempty"`
	Payments        []PaymentView       `json:"payments,omitempty"`
}

// ItemView is a persisted order line.
type ItemView struct {
	ID          string       `json:"id"`
	ProductID   string       `json:"productId"`
	ProductName string       `json:"productName"`
	Quantity    int32        `json:"quantity"`
	UnitPrice   money.Money  `json:"unitPrice"`
	SalePrice   *money.Money `json:"salePrice,omitempty"`
	LineTotal   money.Money  `json:"lineTotal"`
	Options     []OptionView `json:"options"`
}

// OptionView is an option recorded on an order line.
type OptionView struct {
	OptionID  string      `json:"optionId"`
	Name      string      `json:"name"`
	Type      string      `json:"type"`
	Surcharge money.Money `json:"surcharge"`
}

// PaymentView is one payment attempt.
type PaymentView struct {
	ID             string              `json:"id"`
	Method         store.PaymentMethod `json:"method"`
	Provider       *string             `json:"provider,omitempty"`
	Amount         money.Money         `json:"amount"`
	Status         store.PaymentStatus `json:"status"`
	TransactionRef *string             `json:"transactionRef,omitempty"`
	ResponseCode   *string             `json:"responseCode,omitempty"`
	Notes          *string             `json:"notes,omitempty"`
	CreatedAt      time.Time           `json:"createdAt"`
	SettledAt      *time.Time          `json:"settledAt,omitempty"`
}

func toView(o store.Order) View {
	return View{
		ID:              store.UUIDString(o.ID),
		OrderNumber:     o.OrderNumber,
		Status:          o.Status,
		PaymentStatus:   o.PaymentStatus,
		PaymentMethod:   o.PaymentMethod,
		TotalAmount:     o.TotalAmount,
		ShippingFee:     o.ShippingFee,
		DiscountAmount:  o.DiscountAmount,
		FinalAmount:     o.FinalAmount,
		CouponCode:      nullableText(o.CouponCode),
		CancelReason:    nullableText(o.CancelReason),
		Notes:           nullableText(o.Notes),
		DeliveryAddress: o.DeliveryAddress,
		DeliveryArea:    nullableText(o.DeliveryArea),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

func toItemViews(items []store.OrderItem, options []store.OrderItemOption) []ItemView {
	byItem := make(map[pgtype.UUID][]OptionView, len(items))
	for _, o := range options {
		byItem[o.OrderItemID] = append(byItem[o.OrderItemID], OptionView{
			OptionID:  store.UUIDString(o.OptionID),
			Name:      o.Name,
			Type:      o.OptionType,
			Surcharge: o.Surcharge,
		})
	}
	out := make([]ItemView, 0, len(items))
	for _, it := range items {
		opts := byItem[it.ID]
		if opts == nil {
			opts = []OptionView{}
		}
		out = append(out, ItemView{
			ID:          store.UUIDString(it.ID),
			ProductID:   store.UUIDString(it.ProductID),
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			SalePrice:   it.SalePrice.Ptr(),
			LineTotal:   it.LineTotal,
			Options:     opts,
		})
	}
	return out
}

func toPaymentView(p store.Payment) PaymentView {
	v := PaymentView{
		ID:             store.UUIDString(p.ID),
		Method:         p.Method,
		Provider:       nullableText(p.Provider),
		Amount:         p.Amount,
		Status:         p.Status,
		TransactionRef: nullableText(p.TransactionRef),
		ResponseCode:   nullableText(p.ResponseCode),
		Notes:          nullableText(p.Notes),
		CreatedAt:      p.CreatedAt,
	}
	if p.SettledAt.Valid {
		t := p.SettledAt.Time
		v.SettledAt = &t
	}
	return v
}

func nullableText(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}
