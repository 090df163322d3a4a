package entity

import "errors"

var (
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrValidationFailed  = errors.New("validation failed")
	ErrStockUnavailable  = errors.New("stock unavailable")
	ErrAdmissionDenied   = errors.New("admission denied")
	ErrCommitFailed      = errors.New("commit failed")
	ErrItemNotFound      = errors.New("item not found")
	ErrUserNotFound      = errors.New("user not found")
	ErrPromoNotFound     = errors.New("promo not found")
	ErrStockLogNotFound  = errors.New("stock log not found")
	ErrStockLogFinalized = errors.New("stock log already finalized")
)
