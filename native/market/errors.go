package market

import coreerrors "energymarket/core/errors"

var (
	ErrNotAuthorized            = coreerrors.New(moduleName, 100, coreerrors.CategoryAuthorization, "not authorized")
	ErrInvalidAmount            = coreerrors.New(moduleName, 101, coreerrors.CategoryValidation, "amount must be positive")
	ErrInvalidPrice             = coreerrors.New(moduleName, 102, coreerrors.CategoryValidation, "price must be positive")
	ErrInvalidEnergyType        = coreerrors.New(moduleName, 103, coreerrors.CategoryValidation, "unsupported energy type")
	ErrInvalidLocation          = coreerrors.New(moduleName, 104, coreerrors.CategoryValidation, "location must be 1-100 characters")
	ErrInvalidExpiry            = coreerrors.New(moduleName, 105, coreerrors.CategoryValidation, "expiry must be in the future")
	ErrOfferMatched             = coreerrors.New(moduleName, 106, coreerrors.CategoryState, "offer already matched")
	ErrOfferNotFound            = coreerrors.New(moduleName, 107, coreerrors.CategoryState, "offer not found")
	ErrBidMatched               = coreerrors.New(moduleName, 108, coreerrors.CategoryState, "bid already matched")
	ErrBidNotFound              = coreerrors.New(moduleName, 109, coreerrors.CategoryState, "bid not found")
	ErrInvalidMatch             = coreerrors.New(moduleName, 110, coreerrors.CategoryValidation, "offer and bid are not compatible")
	ErrTradeFailed              = coreerrors.New(moduleName, 111, coreerrors.CategoryState, "offer and bid are not matched to each other")
	ErrCancelNotAllowed         = coreerrors.New(moduleName, 112, coreerrors.CategoryState, "matched orders cannot be cancelled")
	ErrInvalidStatus            = coreerrors.New(moduleName, 113, coreerrors.CategoryState, "order is closed")
	ErrEscrowFailed             = coreerrors.New(moduleName, 115, coreerrors.CategoryState, "escrow settlement failed")
	ErrInvalidMaxPrice          = coreerrors.New(moduleName, 118, coreerrors.CategoryValidation, "max price must be positive")
	ErrInvalidPreferredType     = coreerrors.New(moduleName, 119, coreerrors.CategoryValidation, "unsupported preferred energy type")
	ErrInvalidPreferredLocation = coreerrors.New(moduleName, 120, coreerrors.CategoryValidation, "preferred location must be \"any\" or 1-100 characters")
	ErrMaxOffersExceeded        = coreerrors.New(moduleName, 121, coreerrors.CategoryState, "offer capacity exceeded")
	ErrMaxBidsExceeded          = coreerrors.New(moduleName, 122, coreerrors.CategoryState, "bid capacity exceeded")
	ErrOrderExpired             = coreerrors.New(moduleName, 123, coreerrors.CategoryTiming, "order expired")
	ErrAuthorityNotVerified     = coreerrors.New(moduleName, 124, coreerrors.CategoryState, "authority contract not configured")
	ErrInvalidCurrency          = coreerrors.New(moduleName, 125, coreerrors.CategoryValidation, "unsupported currency")
	ErrAuthorityAlreadySet      = coreerrors.New(moduleName, 126, coreerrors.CategoryState, "authority contract already set")
	ErrInvalidAuthority         = coreerrors.New(moduleName, 127, coreerrors.CategoryValidation, "invalid authority contract")
	ErrInvalidLimit             = coreerrors.New(moduleName, 128, coreerrors.CategoryValidation, "limit must be positive")
)
