package escrow

import coreerrors "energymarket/core/errors"

var (
	ErrNotAuthorized       = coreerrors.New(moduleName, 100, coreerrors.CategoryAuthorization, "not authorized")
	ErrInvalidAmount       = coreerrors.New(moduleName, 101, coreerrors.CategoryValidation, "amount and price must be positive")
	ErrInvalidState        = coreerrors.New(moduleName, 102, coreerrors.CategoryState, "escrow not active")
	ErrEscrowNotFound      = coreerrors.New(moduleName, 103, coreerrors.CategoryState, "escrow not found")
	ErrEscrowExpired       = coreerrors.New(moduleName, 104, coreerrors.CategoryTiming, "escrow expired")
	ErrEscrowNotExpired    = coreerrors.New(moduleName, 105, coreerrors.CategoryTiming, "escrow not expired")
	ErrInsufficientBalance = coreerrors.New(moduleName, 106, coreerrors.CategoryState, "custodial balance missing")
	ErrTokenLockInvalid    = coreerrors.New(moduleName, 107, coreerrors.CategoryState, "linked token lock invalid")
	ErrValueTransferFailed = coreerrors.New(moduleName, 108, coreerrors.CategoryState, "value transfer failed")
	ErrInvalidCurrency     = coreerrors.New(moduleName, 109, coreerrors.CategoryValidation, "unsupported currency")
	ErrDisputeNotAllowed   = coreerrors.New(moduleName, 110, coreerrors.CategoryState, "dispute authority not configured")
	ErrAlreadyResolved     = coreerrors.New(moduleName, 111, coreerrors.CategoryState, "escrow already resolved")
	ErrInvalidParty        = coreerrors.New(moduleName, 112, coreerrors.CategoryValidation, "invalid escrow party")
	ErrEscrowCancelled     = coreerrors.New(moduleName, 113, coreerrors.CategoryState, "escrow cancelled")
	ErrAuthorityAlreadySet = coreerrors.New(moduleName, 114, coreerrors.CategoryState, "dispute authority already set")
	ErrInvalidAuthority    = coreerrors.New(moduleName, 115, coreerrors.CategoryValidation, "invalid dispute authority")
	ErrInvalidExpiry       = coreerrors.New(moduleName, 116, coreerrors.CategoryValidation, "expiry must be in the future")
)
