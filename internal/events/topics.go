package events

import "slices"

const (
	TopicOrderPlaced        = "order.placed"
	TopicOrderConfirmed     = "order.confirmed"
	TopicOrderStatusChanged = "order.status_changed"
	TopicOrderCancelled     = "order.cancelled"
	TopicPaymentCompleted   = "payment.completed"
	TopicPaymentFailed      = "payment.failed"
	TopicPaymentExpired     = "payment.expired"
	TopicRefundRequired     = "payment.refund_required"
	TopicCouponExhausted    = "coupon.exhausted"
)

// DefaultTopics are the topics handed to the notification collaborator.
// Coupon exhaustion is internal and only logged.
func DefaultTopics() []string {
	return []string{
		TopicOrderPlaced,
		TopicOrderConfirmed,
		TopicOrderStatusChanged,
		TopicOrderCancelled,
		TopicPaymentCompleted,
		TopicPaymentFailed,
		TopicPaymentExpired,
		TopicRefundRequired,
	}
}

// KnownTopic reports whether topic is one the ordering core emits.
func KnownTopic(topic string) bool {
	return topic == TopicCouponExhausted || slices.Contains(DefaultTopics(), topic)
}
