package state

import (
	"encoding/binary"

	"energymarket/core/types"
)

var (
	tokenRegistryKeyBytes     = []byte("token/registry")
	tokenSupplyKeyBytes       = []byte("token/supply")
	tokenBalancePrefix        = []byte("token/balance/")
	tokenProducerPrefix       = []byte("token/producer/")
	tokenMintHistoryPrefix    = []byte("token/minted/")
	tokenLockPrefix           = []byte("token/lock/")
	tokenOwnerLockIndexPrefix = []byte("token/locks-by-owner/")

	escrowRegistryKeyBytes = []byte("escrow/registry")
	escrowRecordPrefix     = []byte("escrow/record/")
	escrowBalancePrefix    = []byte("escrow/balance/")

	marketParamsKeyBytes   = []byte("market/params")
	marketOfferPrefix      = []byte("market/offer/")
	marketBidPrefix        = []byte("market/bid/")
	marketOfferMatchPrefix = []byte("market/offer-match/")
	marketBidMatchPrefix   = []byte("market/bid-match/")

	bankBalancePrefix = []byte("bank/balance/")
)

func principalKey(prefix []byte, p types.Principal) []byte {
	buf := make([]byte, len(prefix)+len(p))
	copy(buf, prefix)
	copy(buf[len(prefix):], p)
	return buf
}

func idKey(prefix []byte, id uint64) []byte {
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], id)
	return buf
}
