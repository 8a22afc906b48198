package rpc

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"energymarket/core/types"
	"energymarket/crypto"
	"energymarket/native/escrow"
	"energymarket/native/market"
	"energymarket/native/token"
)

// decodeParams unmarshals the single parameter object every method takes.
func decodeParams(params []json.RawMessage, out interface{}) error {
	if len(params) != 1 {
		return invalidParams("exactly one parameter object expected")
	}
	if err := json.Unmarshal(params[0], out); err != nil {
		return invalidParams(err.Error())
	}
	return nil
}

func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, invalidParams(field + " required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, invalidParams(fmt.Sprintf("%s must be a base-10 integer", field))
	}
	return value, nil
}

func parsePrincipal(field, raw string) (types.Principal, error) {
	principal, err := crypto.ResolvePrincipal(raw)
	if err != nil {
		return "", invalidParams(fmt.Sprintf("%s: %v", field, err))
	}
	return principal, nil
}

func parseID(field, raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, invalidParams(fmt.Sprintf("%s must be an unsigned integer", field))
	}
	return id, nil
}

func parseCurrency(raw string) (types.Currency, error) {
	currency, err := types.ParseCurrency(raw)
	if err != nil {
		return types.CurrencyUnknown, invalidParams(err.Error())
	}
	return currency, nil
}

func formatID(id uint64) string { return strconv.FormatUint(id, 10) }

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

type IDResult struct {
	ID string `json:"id"`
}

type ReceiptResult struct {
	Receipt *types.Receipt `json:"receipt"`
	ID      string         `json:"id,omitempty"`
}

type BalanceResult struct {
	Owner   string `json:"owner"`
	Balance string `json:"balance"`
}

type LockJSON struct {
	ID     string `json:"id"`
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
	Expiry uint64 `json:"expiry"`
}

func lockJSON(l *token.Lock) LockJSON {
	return LockJSON{
		ID:     formatID(l.ID),
		Owner:  l.Owner.String(),
		Amount: formatAmount(l.Amount),
		Expiry: l.Expiry,
	}
}

type EscrowJSON struct {
	ID          string  `json:"id"`
	OfferID     string  `json:"offerId"`
	BidID       string  `json:"bidId"`
	Producer    string  `json:"producer"`
	Buyer       string  `json:"buyer"`
	Amount      string  `json:"amount"`
	Price       string  `json:"price"`
	Total       string  `json:"total"`
	Currency    string  `json:"currency"`
	Status      string  `json:"status"`
	CreatedAt   uint64  `json:"createdAt"`
	ExpiresAt   uint64  `json:"expiresAt"`
	TokenLockID *string `json:"tokenLockId,omitempty"`
	Balance     string  `json:"balance"`
}

func escrowJSON(e *escrow.Escrow, balance *big.Int) EscrowJSON {
	out := EscrowJSON{
		ID:        formatID(e.ID),
		OfferID:   formatID(e.OfferID),
		BidID:     formatID(e.BidID),
		Producer:  e.Producer.String(),
		Buyer:     e.Buyer.String(),
		Amount:    formatAmount(e.Amount),
		Price:     formatAmount(e.Price),
		Total:     formatAmount(e.Total()),
		Currency:  e.Currency.String(),
		Status:    e.Status.String(),
		CreatedAt: e.CreatedAt,
		ExpiresAt: e.ExpiresAt,
		Balance:   formatAmount(balance),
	}
	if e.HasTokenLock {
		id := formatID(e.TokenLockID)
		out.TokenLockID = &id
	}
	return out
}

type OfferJSON struct {
	ID         string  `json:"id"`
	Producer   string  `json:"producer"`
	Amount     string  `json:"amount"`
	Price      string  `json:"price"`
	EnergyType string  `json:"energyType"`
	Location   string  `json:"location"`
	Expiry     uint64  `json:"expiry"`
	Currency   string  `json:"currency"`
	Status     string  `json:"status"`
	MatchedBid *string `json:"matchedBid,omitempty"`
}

func offerJSON(o *market.Offer) OfferJSON {
	return OfferJSON{
		ID:         formatID(o.ID),
		Producer:   o.Producer.String(),
		Amount:     formatAmount(o.Amount),
		Price:      formatAmount(o.Price),
		EnergyType: o.EnergyType.String(),
		Location:   o.Location,
		Expiry:     o.Expiry,
		Currency:   o.Currency.String(),
		Status:     o.Status.String(),
	}
}

type BidJSON struct {
	ID                string  `json:"id"`
	Buyer             string  `json:"buyer"`
	Amount            string  `json:"amount"`
	MaxPrice          string  `json:"maxPrice"`
	PreferredType     string  `json:"preferredType"`
	PreferredLocation string  `json:"preferredLocation"`
	Expiry            uint64  `json:"expiry"`
	Currency          string  `json:"currency"`
	Status            string  `json:"status"`
	MatchedOffer      *string `json:"matchedOffer,omitempty"`
}

func bidJSON(b *market.Bid) BidJSON {
	return BidJSON{
		ID:                formatID(b.ID),
		Buyer:             b.Buyer.String(),
		Amount:            formatAmount(b.Amount),
		MaxPrice:          formatAmount(b.MaxPrice),
		PreferredType:     b.PreferredType.String(),
		PreferredLocation: b.PreferredLocation,
		Expiry:            b.Expiry,
		Currency:          b.Currency.String(),
		Status:            b.Status.String(),
	}
}

type TradeJSON struct {
	OfferID  string `json:"offerId"`
	BidID    string `json:"bidId"`
	Producer string `json:"producer"`
	Buyer    string `json:"buyer"`
	Amount   string `json:"amount"`
	Price    string `json:"price"`
	Total    string `json:"total"`
	Currency string `json:"currency"`
	Height   uint64 `json:"height"`
}

func tradeJSON(t *market.Trade) TradeJSON {
	return TradeJSON{
		OfferID:  formatID(t.OfferID),
		BidID:    formatID(t.BidID),
		Producer: t.Producer.String(),
		Buyer:    t.Buyer.String(),
		Amount:   formatAmount(t.Amount),
		Price:    formatAmount(t.Price),
		Total:    formatAmount(t.Total()),
		Currency: t.Currency.String(),
		Height:   t.Height,
	}
}

type ParamsJSON struct {
	AuthorityContract string `json:"authorityContract,omitempty"`
	MaxOffers         uint64 `json:"maxOffers"`
	MaxBids           uint64 `json:"maxBids"`
	Fee               uint64 `json:"fee"`
	NextOfferID       string `json:"nextOfferId"`
	NextBidID         string `json:"nextBidId"`
}

func paramsJSON(p *market.Params) ParamsJSON {
	out := ParamsJSON{
		MaxOffers:   p.MaxOffers,
		MaxBids:     p.MaxBids,
		Fee:         p.Fee,
		NextOfferID: formatID(p.NextOfferID),
		NextBidID:   formatID(p.NextBidID),
	}
	if p.HasAuthority {
		out.AuthorityContract = p.AuthorityContract.String()
	}
	return out
}
