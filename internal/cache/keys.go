package cache

import "strings"

const keyPrefix = "food:"

// KeyShippingTiers is the cache key for the configured tier set.
func KeyShippingTiers() string {
	return keyPrefix + "shipping:tiers"
}

// KeyProduct returns the cache key for a product snapshot.
func KeyProduct(productID string) string {
	return keyPrefix + "product:" + strings.ToLower(strings.TrimSpace(productID))
}
