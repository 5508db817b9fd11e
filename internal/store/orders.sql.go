package store

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-food/internal/money"
)

const orderColumns = `id, order_number, user_id, status, total_amount, shipping_fee, discount_amount, final_amount,
payment_status, payment_method, coupon_code, cancel_reason, notes, delivery_address, delivery_area, created_at, updated_at`

func scanOrder(row interface{ Scan(...any) error }) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &o.Status, &o.TotalAmount, &o.ShippingFee, &o.DiscountAmount, &o.FinalAmount,
		&o.PaymentStatus, &o.PaymentMethod, &o.CouponCode, &o.CancelReason, &o.Notes, &o.DeliveryAddress, &o.DeliveryArea, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

type CreateOrderParams struct {
	OrderNumber     string
	UserID          pgtype.UUID
	TotalAmount     money.Money
	ShippingFee     money.Money
	DiscountAmount  money.Money
	FinalAmount     money.Money
	PaymentMethod   PaymentMethod
	CouponCode      pgtype.Text
	Notes           pgtype.Text
	DeliveryAddress string
	DeliveryArea    pgtype.Text
}

const createOrder = `INSERT INTO orders (order_number, user_id, total_amount, shipping_fee, discount_amount, final_amount,
payment_method, coupon_code, notes, delivery_address, delivery_area)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING ` + orderColumns

func (q *Queries) CreateOrder(ctx context.Context, arg CreateOrderParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, createOrder, arg.OrderNumber, arg.UserID, arg.TotalAmount, arg.ShippingFee, arg.DiscountAmount,
		arg.FinalAmount, arg.PaymentMethod, arg.CouponCode, arg.Notes, arg.DeliveryAddress, arg.DeliveryArea))
}

const getOrderByID = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

func (q *Queries) GetOrderByID(ctx context.Context, id pgtype.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByID, id))
}

const getOrderByIDForUpdate = getOrderByID + ` FOR UPDATE`

func (q *Queries) GetOrderByIDForUpdate(ctx context.Context, id pgtype.UUID) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, getOrderByIDForUpdate, id))
}

type ListOrdersForUserParams struct {
	UserID pgtype.UUID
	Limit  int32
	Offset int32
}

const listOrdersForUser = `SELECT ` + orderColumns + ` FROM orders WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`

func (q *Queries) ListOrdersForUser(ctx context.Context, arg ListOrdersForUserParams) ([]Order, error) {
	rows, err := q.db.Query(ctx, listOrdersForUser, arg.UserID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}

const countOrdersForUser = `SELECT count(*) FROM orders WHERE user_id = $1`

func (q *Queries) CountOrdersForUser(ctx context.Context, userID pgtype.UUID) (int64, error) {
	var n int64
	err := q.db.QueryRow(ctx, countOrdersForUser, userID).Scan(&n)
	return n, err
}

type UpdateOrderStatusParams struct {
	ID           pgtype.UUID
	Status       OrderStatus
	CancelReason pgtype.Text
}

const updateOrderStatus = `UPDATE orders SET status = $2, cancel_reason = COALESCE($3, cancel_reason), updated_at = now()
WHERE id = $1 RETURNING ` + orderColumns

func (q *Queries) UpdateOrderStatus(ctx context.Context, arg UpdateOrderStatusParams) (Order, error) {
	return scanOrder(q.db.QueryRow(ctx, updateOrderStatus, arg.ID, arg.Status, arg.CancelReason))
}

type UpdateOrderPaymentStatusParams struct {
	ID            pgtype.UUID
	PaymentStatus PaymentStatus
}

const updateOrderPaymentStatus = `UPDATE orders SET payment_status = $2, updated_at = now() WHERE id = $1`

func (q *Queries) UpdateOrderPaymentStatus(ctx context.Context, arg UpdateOrderPaymentStatusParams) error {
	_, err := q.db.Exec(ctx, updateOrderPaymentStatus, arg.ID, arg.PaymentStatus)
	return err
}

type CreateOrderItemParams struct {
	OrderID     pgtype.UUID
	ProductID   pgtype.UUID
	ProductName string
	Quantity    int32
	UnitPrice   money.Money
	SalePrice   money.NullMoney
	LineTotal   money.Money
	Position    int32
}

const orderItemColumns = `id, order_id, product_id, product_name, quantity, unit_price, sale_price, line_total, position`

func scanOrderItem(row interface{ Scan(...any) error }) (OrderItem, error) {
	var it OrderItem
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPrice, &it.SalePrice, &it.LineTotal, &it.Position)
	return it, err
}

const createOrderItem = `INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price, sale_price, line_total, position)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING ` + orderItemColumns

func (q *Queries) CreateOrderItem(ctx context.Context, arg CreateOrderItemParams) (OrderItem, error) {
	return scanOrderItem(q.db.QueryRow(ctx, createOrderItem, arg.OrderID, arg.ProductID, arg.ProductName, arg.Quantity,
		arg.UnitPrice, arg.SalePrice, arg.LineTotal, arg.Position))
}

const listOrderItems = `SELECT ` + orderItemColumns + ` FROM order_items WHERE order_id = $1 ORDER BY position`

func (q *Queries) ListOrderItems(ctx context.Context, orderID pgtype.UUID) ([]OrderItem, error) {
	rows, err := q.db.Query(ctx, listOrderItems, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItem
	for rows.Next() {
		it, err := scanOrderItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

type CreateOrderItemOptionParams struct {
	OrderItemID pgtype.UUID
	OptionID    pgtype.UUID
	Name        string
	OptionType  string
	Surcharge   money.Money
	Position    int32
}

const createOrderItemOption = `INSERT INTO order_item_options (order_item_id, option_id, name, option_type, surcharge, position)
VALUES ($1, $2, $3, $4, $5, $6)`

func (q *Queries) CreateOrderItemOption(ctx context.Context, arg CreateOrderItemOptionParams) error {
	_, err := q.db.Exec(ctx, createOrderItemOption, arg.OrderItemID, arg.OptionID, arg.Name, arg.OptionType, arg.Surcharge, arg.Position)
	return err
}

const listOrderItemOptions = `SELECT o.id, o.order_item_id, o.option_id, o.name, o.option_type, o.surcharge, o.position
FROM order_item_options o JOIN order_items i ON i.id = o.order_item_id
WHERE i.order_id = $1 ORDER BY i.position, o.position`

func (q *Queries) ListOrderItemOptions(ctx context.Context, orderID pgtype.UUID) ([]OrderItemOption, error) {
	rows, err := q.db.Query(ctx, listOrderItemOptions, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OrderItemOption
	for rows.Next() {
		var o OrderItemOption
		if err := rows.Scan(&o.ID, &o.OrderItemID, &o.OptionID, &o.Name, &o.OptionType, &o.Surcharge, &o.Position); err != nil {
			return nil, err
		}
		items = append(items, o)
	}
	return items, rows.Err()
}
