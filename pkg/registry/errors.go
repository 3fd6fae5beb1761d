package registry

import "errors"

var (
	ErrNotFound            = errors.New("asset not found")
	ErrNotOwner            = errors.New("requester is not the asset owner")
	ErrInvalidPrice        = errors.New("price must be greater than zero")
	ErrNotForSale          = errors.New("asset is not for sale")
	ErrNotListed           = errors.New("asset is not listed")
	ErrInsufficientPayment = errors.New("tendered amount is below the asking price")
	ErrSelfPurchase        = errors.New("owner cannot purchase their own asset")
	ErrSettlementFailure   = errors.New("settlement failed")
	ErrInvalidIdentity     = errors.New("invalid requester identity")
	ErrCorruptSnapshot     = errors.New("corrupt asset snapshot")
)
