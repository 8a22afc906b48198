package market

import (
	"math/big"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	coreerrors "energymarket/core/errors"
	"energymarket/core/events"
	"energymarket/core/types"
	nativecommon "energymarket/native/common"
)

const (
	authority types.Principal = "ST2AUTHORITY"
	producer  types.Principal = "ST1PRODUCER"
	buyer     types.Principal = "ST1BUYER"
	stranger  types.Principal = "ST_STRANGER"
)

type mockState struct {
	params     *Params
	offers     map[uint64]*Offer
	bids       map[uint64]*Bid
	offerMatch map[uint64]uint64
	bidMatch   map[uint64]uint64
}

func newMockState() *mockState {
	return &mockState{
		params:     DefaultParams(),
		offers:     make(map[uint64]*Offer),
		bids:       make(map[uint64]*Bid),
		offerMatch: make(map[uint64]uint64),
		bidMatch:   make(map[uint64]uint64),
	}
}

func (m *mockState) MarketParams() (*Params, error) { return m.params.Clone(), nil }

func (m *mockState) MarketPutParams(p *Params) error {
	m.params = p.Clone()
	return nil
}

func (m *mockState) MarketOfferPut(o *Offer) error {
	sanitized, err := SanitizeOffer(o)
	if err != nil {
		return err
	}
	m.offers[o.ID] = sanitized
	return nil
}

func (m *mockState) MarketOfferGet(id uint64) (*Offer, bool, error) {
	o, ok := m.offers[id]
	if !ok {
		return nil, false, nil
	}
	return o.Clone(), true, nil
}

func (m *mockState) MarketBidPut(b *Bid) error {
	sanitized, err := SanitizeBid(b)
	if err != nil {
		return err
	}
	m.bids[b.ID] = sanitized
	return nil
}

func (m *mockState) MarketBidGet(id uint64) (*Bid, bool, error) {
	b, ok := m.bids[id]
	if !ok {
		return nil, false, nil
	}
	return b.Clone(), true, nil
}

func (m *mockState) MarketOfferMatch(offerID uint64) (uint64, bool, error) {
	bidID, ok := m.offerMatch[offerID]
	return bidID, ok, nil
}

func (m *mockState) MarketSetOfferMatch(offerID, bidID uint64) error {
	m.offerMatch[offerID] = bidID
	return nil
}

func (m *mockState) MarketDeleteOfferMatch(offerID uint64) error {
	delete(m.offerMatch, offerID)
	return nil
}

func (m *mockState) MarketBidMatch(bidID uint64) (uint64, bool, error) {
	offerID, ok := m.bidMatch[bidID]
	return offerID, ok, nil
}

func (m *mockState) MarketSetBidMatch(bidID, offerID uint64) error {
	m.bidMatch[bidID] = offerID
	return nil
}

func (m *mockState) MarketDeleteBidMatch(bidID uint64) error {
	delete(m.bidMatch, bidID)
	return nil
}

// checkMatchIndex asserts the two match maps mirror each other and reference
// only open orders.
func (m *mockState) checkMatchIndex(t *testing.T) {
	t.Helper()
	require.Equal(t, len(m.offerMatch), len(m.bidMatch))
	for offerID, bidID := range m.offerMatch {
		back, ok := m.bidMatch[bidID]
		require.True(t, ok)
		require.Equal(t, offerID, back)
		require.Equal(t, OrderOpen, m.offers[offerID].Status)
		require.Equal(t, OrderOpen, m.bids[bidID].Status)
	}
}

type recordingEmitter struct {
	events []*types.Event
}

func (r *recordingEmitter) Emit(evt events.Event) {
	r.events = append(r.events, evt.Event())
}

func newTestEngine(t *testing.T) (*Engine, *mockState, *recordingEmitter) {
	t.Helper()
	state := newMockState()
	emitter := &recordingEmitter{}
	engine := NewEngine()
	engine.SetState(state)
	engine.SetEmitter(emitter)
	return engine, state, emitter
}

func newAuthorizedEngine(t *testing.T) (*Engine, *mockState, *recordingEmitter) {
	t.Helper()
	engine, state, emitter := newTestEngine(t)
	require.NoError(t, engine.SetAuthorityContract(at(stranger, 0), authority))
	return engine, state, emitter
}

func at(caller types.Principal, height uint64) types.CallContext {
	return types.NewCallContext(caller, height)
}

func solarOffer(amount, price int64) OfferParams {
	return OfferParams{
		Amount:     big.NewInt(amount),
		Price:      big.NewInt(price),
		EnergyType: EnergySolar,
		Location:   "LocationA",
		Expiry:     100,
		Currency:   types.CurrencySTX,
	}
}

func solarBid(amount, maxPrice int64) BidParams {
	return BidParams{
		Amount:            big.NewInt(amount),
		MaxPrice:          big.NewInt(maxPrice),
		PreferredType:     EnergySolar,
		PreferredLocation: "LocationA",
		Expiry:            100,
		Currency:          types.CurrencySTX,
	}
}

func listOffer(t *testing.T, engine *Engine, params OfferParams) uint64 {
	t.Helper()
	id, err := engine.ListOffer(at(producer, 0), params)
	require.NoError(t, err)
	return id
}

func createBid(t *testing.T, engine *Engine, params BidParams) uint64 {
	t.Helper()
	id, err := engine.CreateBid(at(buyer, 0), params)
	require.NoError(t, err)
	return id
}

func TestListOffer(t *testing.T) {
	engine, _, emitter := newAuthorizedEngine(t)
	id := listOffer(t, engine, solarOffer(100, 50))
	require.Equal(t, uint64(0), id)

	offer, ok, err := engine.Offer(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, producer, offer.Producer)
	require.Equal(t, int64(100), offer.Amount.Int64())
	require.Equal(t, EnergySolar, offer.EnergyType)
	require.Equal(t, OrderOpen, offer.Status)
	require.Equal(t, types.CurrencySTX, offer.Currency)
	require.Equal(t, EventTypeOfferListed, emitter.events[len(emitter.events)-1].Type)

	producerOf, ok, err := engine.OfferProducer(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, producer, producerOf)
	_, ok, err = engine.OfferProducer(99)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestListOfferRequiresAuthority(t *testing.T) {
	engine, state, _ := newTestEngine(t)
	_, err := engine.ListOffer(at(producer, 0), solarOffer(100, 50))
	require.ErrorIs(t, err, ErrAuthorityNotVerified)
	_, err = engine.CreateBid(at(buyer, 0), solarBid(50, 60))
	require.ErrorIs(t, err, ErrAuthorityNotVerified)
	require.Empty(t, state.offers)
	require.Zero(t, state.params.NextOfferID)
}

func TestListOfferValidationOrder(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	cases := []struct {
		name   string
		mutate func(*OfferParams)
		want   error
	}{
		{"amount", func(p *OfferParams) { p.Amount = big.NewInt(0) }, ErrInvalidAmount},
		{"price", func(p *OfferParams) { p.Price = big.NewInt(0) }, ErrInvalidPrice},
		{"energy type", func(p *OfferParams) { p.EnergyType = EnergyAny }, ErrInvalidEnergyType},
		{"empty location", func(p *OfferParams) { p.Location = "" }, ErrInvalidLocation},
		{"long location", func(p *OfferParams) { p.Location = strings.Repeat("x", 101) }, ErrInvalidLocation},
		{"expiry", func(p *OfferParams) { p.Expiry = 10 }, ErrInvalidExpiry},
		{"currency", func(p *OfferParams) { p.Currency = types.CurrencyUnknown }, ErrInvalidCurrency},
		// Field validation precedes the authority check.
		{"authority", func(p *OfferParams) {}, ErrAuthorityNotVerified},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := solarOffer(100, 50)
			tc.mutate(&params)
			_, err := engine.ListOffer(at(producer, 10), params)
			require.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLocationLengthCountsCharacters(t *testing.T) {
	engine, _, _ := newAuthorizedEngine(t)
	params := solarOffer(1, 1)
	params.Location = strings.Repeat("é", 100)
	listOffer(t, engine, params)
}

func TestCreateBidValidation(t *testing.T) {
	engine, _, _ := newAuthorizedEngine(t)
	cases := []struct {
		name   string
		mutate func(*BidParams)
		want   error
	}{
		{"amount", func(p *BidParams) { p.Amount = nil }, ErrInvalidAmount},
		{"max price", func(p *BidParams) { p.MaxPrice = big.NewInt(-3) }, ErrInvalidMaxPrice},
		{"preferred type", func(p *BidParams) { p.PreferredType = EnergyUnknown }, ErrInvalidPreferredType},
		{"preferred location", func(p *BidParams) { p.PreferredLocation = "" }, ErrInvalidPreferredLocation},
		{"expiry", func(p *BidParams) { p.Expiry = 0 }, ErrInvalidExpiry},
		{"currency", func(p *BidParams) { p.Currency = types.Currency(9) }, ErrInvalidCurrency},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params := solarBid(50, 60)
			tc.mutate(&params)
			_, err := engine.CreateBid(at(buyer, 0), params)
			require.ErrorIs(t, err, tc.want)
		})
	}

	params := solarBid(50, 60)
	params.PreferredType = EnergyAny
	params.PreferredLocation = AnyLocation
	id := createBid(t, engine, params)
	bid, _, err := engine.Bid(id)
	require.NoError(t, err)
	require.Equal(t, EnergyAny, bid.PreferredType)
	require.Equal(t, buyer, bid.Buyer)
}

func TestOfferCapacity(t *testing.T) {
	engine, state, _ := newAuthorizedEngine(t)
	require.NoError(t, engine.SetMaxOffers(at(authority, 0), 1000))
	for i := 0; i < 1000; i++ {
		listOffer(t, engine, solarOffer(1, 1))
	}
	_, err := engine.ListOffer(at(producer, 0), solarOffer(1, 1))
	require.ErrorIs(t, err, ErrMaxOffersExceeded)
	require.Equal(t, uint64(1000), state.params.NextOfferID)
	require.Len(t, state.offers, 1000)

	// Capacity is checked before any field validation.
	_, err = engine.ListOffer(at(producer, 0), OfferParams{})
	require.ErrorIs(t, err, ErrMaxOffersExceeded)
}

func TestBidCapacity(t *testing.T) {
	engine, state, _ := newAuthorizedEngine(t)
	require.NoError(t, engine.SetMaxBids(at(authority, 0), 2))
	createBid(t, engine, solarBid(1, 1))
	createBid(t, engine, solarBid(1, 1))
	_, err := engine.CreateBid(at(buyer, 0), solarBid(1, 1))
	require.ErrorIs(t, err, ErrMaxBidsExceeded)
	require.Equal(t, uint64(2), state.params.NextBidID)
}

func TestAdminSetters(t *testing.T) {
	engine, _, emitter := newTestEngine(t)
	require.ErrorIs(t, engine.SetMaxOffers(at(authority, 0), 5), ErrAuthorityNotVerified)
	require.ErrorIs(t, engine.SetMarketplaceFee(at(authority, 0), 5), ErrAuthorityNotVerified)

	require.ErrorIs(t, engine.SetAuthorityContract(at(stranger, 0), types.NullPrincipal), ErrInvalidAuthority)
	require.NoError(t, engine.SetAuthorityContract(at(stranger, 0), authority))
	require.ErrorIs(t, engine.SetAuthorityContract(at(stranger, 0), stranger), ErrAuthorityAlreadySet)

	require.ErrorIs(t, engine.SetMaxOffers(at(stranger, 0), 5), ErrNotAuthorized)
	require.ErrorIs(t, engine.SetMaxOffers(at(authority, 0), 0), ErrInvalidLimit)
	require.ErrorIs(t, engine.SetMaxBids(at(authority, 0), 0), ErrInvalidLimit)
	require.NoError(t, engine.SetMaxOffers(at(authority, 0), 5))
	require.NoError(t, engine.SetMaxBids(at(authority, 0), 6))
	require.NoError(t, engine.SetMarketplaceFee(at(authority, 0), 0))

	params, err := engine.Params()
	require.NoError(t, err)
	require.Equal(t, authority, params.AuthorityContract)
	require.Equal(t, uint64(5), params.MaxOffers)
	require.Equal(t, uint64(6), params.MaxBids)
	require.Zero(t, params.Fee)
	last := emitter.events[len(emitter.events)-1]
	require.Equal(t, EventTypeParamsUpdated, last.Type)
	require.Equal(t, "0", last.Attributes["fee"])
}

func TestDefaultParams(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	params, err := engine.Params()
	require.NoError(t, err)
	require.Equal(t, DefaultMaxOffers, params.MaxOffers)
	require.Equal(t, DefaultMaxBids, params.MaxBids)
	require.Equal(t, DefaultFee, params.Fee)
	require.False(t, params.HasAuthority)
}

func TestMatchAndExecuteTrade(t *testing.T) {
	engine, state, emitter := newAuthorizedEngine(t)
	offerID := listOffer(t, engine, solarOffer(100, 50))
	bidID := createBid(t, engine, solarBid(50, 60))

	require.NoError(t, engine.MatchOrder(at(stranger, 10), offerID, bidID))
	matched, ok, err := engine.OfferMatch(offerID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, bidID, matched)
	back, ok, err := engine.BidMatch(bidID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, offerID, back)
	state.checkMatchIndex(t)

	trade, err := engine.ExecuteTrade(at(stranger, 20), offerID, bidID)
	require.NoError(t, err)
	require.Equal(t, producer, trade.Producer)
	require.Equal(t, buyer, trade.Buyer)
	require.Equal(t, int64(50), trade.Amount.Int64())
	require.Equal(t, int64(50), trade.Price.Int64())
	require.Equal(t, int64(2500), trade.Total().Int64())

	offer, _, _ := engine.Offer(offerID)
	bid, _, _ := engine.Bid(bidID)
	require.Equal(t, OrderClosed, offer.Status)
	require.Equal(t, OrderClosed, bid.Status)
	_, ok, _ = engine.OfferMatch(offerID)
	require.False(t, ok)
	_, ok, _ = engine.BidMatch(bidID)
	require.False(t, ok)
	state.checkMatchIndex(t)
	require.Equal(t, EventTypeTradeExecuted, emitter.events[len(emitter.events)-1].Type)

	_, err = engine.ExecuteTrade(at(stranger, 20), offerID, bidID)
	require.ErrorIs(t, err, ErrTradeFailed)
	require.ErrorIs(t, engine.MatchOrder(at(stranger, 20), offerID, bidID), ErrInvalidStatus)
	require.ErrorIs(t, engine.CancelOffer(at(producer, 20), offerID), ErrInvalidStatus)
	require.ErrorIs(t, engine.CancelBid(at(buyer, 20), bidID), ErrInvalidStatus)
}

func TestMatchRejectsPriceMismatch(t *testing.T) {
	engine, state, _ := newAuthorizedEngine(t)
	expensive := listOffer(t, engine, solarOffer(100, 70))
	bidID := createBid(t, engine, solarBid(50, 60))
	require.ErrorIs(t, engine.MatchOrder(at(buyer, 0), expensive, bidID), ErrInvalidMatch)
	require.Empty(t, state.offerMatch)
	require.Empty(t, state.bidMatch)
}

func TestCompatibility(t *testing.T) {
	base := func() (*Offer, *Bid) {
		return &Offer{
				Producer: producer, Amount: big.NewInt(100), Price: big.NewInt(50),
				EnergyType: EnergyWind, Location: "North", Expiry: 100, Currency: types.CurrencyUSD,
			}, &Bid{
				Buyer: buyer, Amount: big.NewInt(100), MaxPrice: big.NewInt(50),
				PreferredType: EnergyAny, PreferredLocation: AnyLocation, Expiry: 100, Currency: types.CurrencyUSD,
			}
	}
	offer, bid := base()
	require.NoError(t, Compatible(offer, bid, 99))
	require.ErrorIs(t, Compatible(offer, bid, 100), ErrOrderExpired)

	cases := []struct {
		name   string
		mutate func(*Offer, *Bid)
		want   error
	}{
		{"amount short", func(o *Offer, b *Bid) { b.Amount = big.NewInt(101) }, ErrInvalidMatch},
		{"price above max", func(o *Offer, b *Bid) { b.MaxPrice = big.NewInt(49) }, ErrInvalidMatch},
		{"type", func(o *Offer, b *Bid) { b.PreferredType = EnergySolar }, ErrInvalidMatch},
		{"location", func(o *Offer, b *Bid) { b.PreferredLocation = "South" }, ErrInvalidMatch},
		{"currency", func(o *Offer, b *Bid) { b.Currency = types.CurrencyBTC }, ErrInvalidMatch},
		{"bid expired", func(o *Offer, b *Bid) { b.Expiry = 50 }, ErrOrderExpired},
		{"closed", func(o *Offer, b *Bid) { o.Status = OrderClosed }, ErrInvalidStatus},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			offer, bid := base()
			tc.mutate(offer, bid)
			require.ErrorIs(t, Compatible(offer, bid, 60), tc.want)
		})
	}
	require.Equal(t, coreerrors.CategoryTiming, coreerrors.CategoryOf(ErrOrderExpired))
}

func TestFirstMatchClaimsOrders(t *testing.T) {
	engine, state, _ := newAuthorizedEngine(t)
	offerA := listOffer(t, engine, solarOffer(100, 50))
	offerB := listOffer(t, engine, solarOffer(100, 50))
	bid1 := createBid(t, engine, solarBid(10, 60))
	bid2 := createBid(t, engine, solarBid(10, 60))

	require.NoError(t, engine.MatchOrder(at(buyer, 0), offerA, bid1))
	require.ErrorIs(t, engine.MatchOrder(at(buyer, 0), offerA, bid2), ErrOfferMatched)
	require.ErrorIs(t, engine.MatchOrder(at(buyer, 0), offerB, bid1), ErrBidMatched)
	require.NoError(t, engine.MatchOrder(at(buyer, 0), offerB, bid2))
	state.checkMatchIndex(t)

	_, err := engine.ExecuteTrade(at(buyer, 0), offerA, bid2)
	require.ErrorIs(t, err, ErrTradeFailed)
}

func TestExecuteTradeRevalidatesExpiry(t *testing.T) {
	engine, state, _ := newAuthorizedEngine(t)
	offerID := listOffer(t, engine, solarOffer(100, 50))
	bidID := createBid(t, engine, solarBid(50, 60))
	require.NoError(t, engine.MatchOrder(at(buyer, 10), offerID, bidID))

	_, err := engine.ExecuteTrade(at(buyer, 100), offerID, bidID)
	require.ErrorIs(t, err, ErrOrderExpired)
	require.Equal(t, OrderOpen, state.offers[offerID].Status)
	require.Equal(t, OrderOpen, state.bids[bidID].Status)
	_, ok := state.offerMatch[offerID]
	require.True(t, ok)
}

func TestExecuteTradeMissingOrders(t *testing.T) {
	engine, _, _ := newAuthorizedEngine(t)
	_, err := engine.ExecuteTrade(at(buyer, 0), 1, 1)
	require.ErrorIs(t, err, ErrOfferNotFound)
	offerID := listOffer(t, engine, solarOffer(100, 50))
	_, err = engine.ExecuteTrade(at(buyer, 0), offerID, 5)
	require.ErrorIs(t, err, ErrBidNotFound)
	require.ErrorIs(t, engine.MatchOrder(at(buyer, 0), offerID, 5), ErrBidNotFound)
}

func TestCancelOrders(t *testing.T) {
	engine, state, emitter := newAuthorizedEngine(t)
	offerID := listOffer(t, engine, solarOffer(100, 50))
	bidID := createBid(t, engine, solarBid(50, 60))
	spareBid := createBid(t, engine, solarBid(50, 60))

	require.ErrorIs(t, engine.CancelOffer(at(stranger, 0), offerID), ErrNotAuthorized)
	require.ErrorIs(t, engine.CancelBid(at(producer, 0), bidID), ErrNotAuthorized)
	require.ErrorIs(t, engine.CancelOffer(at(producer, 0), 44), ErrOfferNotFound)

	require.NoError(t, engine.MatchOrder(at(buyer, 0), offerID, bidID))
	require.ErrorIs(t, engine.CancelOffer(at(producer, 0), offerID), ErrCancelNotAllowed)
	require.ErrorIs(t, engine.CancelBid(at(buyer, 0), bidID), ErrCancelNotAllowed)

	require.NoError(t, engine.CancelBid(at(buyer, 0), spareBid))
	require.Equal(t, OrderClosed, state.bids[spareBid].Status)
	require.Equal(t, EventTypeBidCancelled, emitter.events[len(emitter.events)-1].Type)
	require.ErrorIs(t, engine.CancelBid(at(buyer, 0), spareBid), ErrInvalidStatus)
	require.ErrorIs(t, engine.MatchOrder(at(buyer, 0), offerID, spareBid), ErrInvalidStatus)
}

func TestClosedOrdersNeverReopen(t *testing.T) {
	engine, state, _ := newAuthorizedEngine(t)
	offers := make([]uint64, 0, 6)
	bids := make([]uint64, 0, 6)
	for i := 0; i < 6; i++ {
		offers = append(offers, listOffer(t, engine, solarOffer(100, 50)))
		bids = append(bids, createBid(t, engine, solarBid(10, 60)))
	}
	closed := make(map[string]bool)
	snapshot := func() {
		for id, o := range state.offers {
			key := "o" + strconv.FormatUint(id, 10)
			if closed[key] {
				require.Equal(t, OrderClosed, o.Status)
			}
			if o.Status == OrderClosed {
				closed[key] = true
			}
		}
		for id, b := range state.bids {
			key := "b" + strconv.FormatUint(id, 10)
			if closed[key] {
				require.Equal(t, OrderClosed, b.Status)
			}
			if b.Status == OrderClosed {
				closed[key] = true
			}
		}
		state.checkMatchIndex(t)
	}
	for round := 0; round < 3; round++ {
		for i := range offers {
			for j := range bids {
				_ = engine.MatchOrder(at(buyer, 1), offers[i], bids[j])
				snapshot()
				if (i+j+round)%3 == 0 {
					_, _ = engine.ExecuteTrade(at(buyer, 1), offers[i], bids[j])
					snapshot()
				}
				_ = engine.CancelOffer(at(producer, 1), offers[(i+round)%len(offers)])
				_ = engine.CancelBid(at(buyer, 1), bids[(j+round)%len(bids)])
				snapshot()
			}
		}
	}
}

func TestPausedMarketRejectsListing(t *testing.T) {
	engine, _, _ := newAuthorizedEngine(t)
	engine.SetPauses(nativecommon.NewPauseSet("MARKET"))
	_, err := engine.ListOffer(at(producer, 0), solarOffer(1, 1))
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
}

func TestParseEnergyType(t *testing.T) {
	for _, name := range []string{"solar", "Wind", " hydro ", "GEOTHERMAL", "any"} {
		parsed, err := ParseEnergyType(name)
		require.NoError(t, err)
		require.Equal(t, strings.ToLower(strings.TrimSpace(name)), parsed.String())
	}
	_, err := ParseEnergyType("coal")
	require.Error(t, err)
	require.False(t, EnergyAny.Valid())
	require.True(t, EnergyAny.ValidPreference())
}
