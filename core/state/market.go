package state

import (
	"fmt"

	"energymarket/native/market"
)

// MarketParams returns the stored marketplace parameters or the defaults when
// none have been written.
func (m *Manager) MarketParams() (*market.Params, error) {
	params := new(market.Params)
	ok, err := m.KVGet(marketParamsKeyBytes, params)
	if err != nil {
		return nil, err
	}
	if !ok {
		return market.DefaultParams(), nil
	}
	return params, nil
}

func (m *Manager) MarketPutParams(params *market.Params) error {
	if params == nil {
		return fmt.Errorf("market: params must not be nil")
	}
	return m.KVPut(marketParamsKeyBytes, params)
}

func (m *Manager) MarketOfferPut(o *market.Offer) error {
	sanitized, err := market.SanitizeOffer(o)
	if err != nil {
		return err
	}
	return m.KVPut(idKey(marketOfferPrefix, sanitized.ID), sanitized)
}

func (m *Manager) MarketOfferGet(id uint64) (*market.Offer, bool, error) {
	offer := new(market.Offer)
	ok, err := m.KVGet(idKey(marketOfferPrefix, id), offer)
	if err != nil || !ok {
		return nil, false, err
	}
	return offer, true, nil
}

func (m *Manager) MarketBidPut(b *market.Bid) error {
	sanitized, err := market.SanitizeBid(b)
	if err != nil {
		return err
	}
	return m.KVPut(idKey(marketBidPrefix, sanitized.ID), sanitized)
}

func (m *Manager) MarketBidGet(id uint64) (*market.Bid, bool, error) {
	bid := new(market.Bid)
	ok, err := m.KVGet(idKey(marketBidPrefix, id), bid)
	if err != nil || !ok {
		return nil, false, err
	}
	return bid, true, nil
}

func (m *Manager) MarketOfferMatch(offerID uint64) (uint64, bool, error) {
	return m.getID(idKey(marketOfferMatchPrefix, offerID))
}

func (m *Manager) MarketSetOfferMatch(offerID, bidID uint64) error {
	return m.KVPut(idKey(marketOfferMatchPrefix, offerID), bidID)
}

func (m *Manager) MarketDeleteOfferMatch(offerID uint64) error {
	return m.KVDelete(idKey(marketOfferMatchPrefix, offerID))
}

func (m *Manager) MarketBidMatch(bidID uint64) (uint64, bool, error) {
	return m.getID(idKey(marketBidMatchPrefix, bidID))
}

func (m *Manager) MarketSetBidMatch(bidID, offerID uint64) error {
	return m.KVPut(idKey(marketBidMatchPrefix, bidID), offerID)
}

func (m *Manager) MarketDeleteBidMatch(bidID uint64) error {
	return m.KVDelete(idKey(marketBidMatchPrefix, bidID))
}

func (m *Manager) getID(key []byte) (uint64, bool, error) {
	var id uint64
	ok, err := m.KVGet(key, &id)
	if err != nil || !ok {
		return 0, false, err
	}
	return id, true, nil
}
