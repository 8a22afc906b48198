package token

import coreerrors "energymarket/core/errors"

var (
	ErrNotAuthorized       = coreerrors.New(moduleName, 100, coreerrors.CategoryAuthorization, "not authorized")
	ErrInsufficientBalance = coreerrors.New(moduleName, 101, coreerrors.CategoryState, "insufficient balance")
	ErrInvalidAmount       = coreerrors.New(moduleName, 102, coreerrors.CategoryValidation, "amount must be positive")
	ErrProducerNotVerified = coreerrors.New(moduleName, 103, coreerrors.CategoryAuthorization, "producer not verified")
	ErrTokenLocked         = coreerrors.New(moduleName, 104, coreerrors.CategoryTiming, "lock has not expired")
	ErrInvalidRecipient    = coreerrors.New(moduleName, 105, coreerrors.CategoryValidation, "invalid recipient")
	ErrMintLimitExceeded   = coreerrors.New(moduleName, 106, coreerrors.CategoryState, "supply cap exceeded")
	ErrInvalidExpiry       = coreerrors.New(moduleName, 109, coreerrors.CategoryValidation, "expiry must be in the future")
	ErrAuthorityAlreadySet = coreerrors.New(moduleName, 110, coreerrors.CategoryState, "mint authority already set")
	ErrInvalidAuthority    = coreerrors.New(moduleName, 111, coreerrors.CategoryValidation, "invalid mint authority")
	ErrLockNotFound        = coreerrors.New(moduleName, 112, coreerrors.CategoryState, "lock not found")
	ErrMintAuthorityNotSet = coreerrors.New(moduleName, 113, coreerrors.CategoryState, "mint authority not configured")
	ErrSupplyUnderflow     = coreerrors.New(moduleName, 114, coreerrors.CategoryState, "supply underflow")
)
