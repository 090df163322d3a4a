package cache

import "fmt"

// Key scheme in the shared store. All service instances read and write the
// same keys, so the layout is part of the external contract.

func StockKey(itemID int64) string {
	return fmt.Sprintf("promo_item_stock_%d", itemID)
}

func SoldOutKey(itemID int64) string {
	return fmt.Sprintf("promo_item_stock_invalid_%d", itemID)
}

func DoorCountKey(promoID int64) string {
	return fmt.Sprintf("promo_door_count_%d", promoID)
}

func PurchaseTokenKey(promoID, userID, itemID int64) string {
	return fmt.Sprintf("promo_token_%d_userid_%d_itemid_%d", promoID, userID, itemID)
}

func ItemKey(itemID int64) string {
	return fmt.Sprintf("item_validate_%d", itemID)
}

func UserKey(userID int64) string {
	return fmt.Sprintf("user_validate_%d", userID)
}

// SessionKey is written by the login flow (out of scope here); the pipeline
// only reads it back to resolve the authenticated user.
func SessionKey(authToken string) string {
	return fmt.Sprintf("session_%s", authToken)
}
