package indexer

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"energymarket/core/types"
	"energymarket/native/escrow"
	"energymarket/native/market"
)

const cursorName = "receipts"

// ReceiptSource replays committed receipts, such as the receipt journal.
type ReceiptSource interface {
	Range(from uint64, fn func(*types.Receipt) bool) error
}

// ErrSequenceGap reports a receipt that does not directly follow the cursor.
var ErrSequenceGap = errors.New("indexer: receipt sequence gap")

// Indexer projects committed receipts into SQL tables.
type Indexer struct {
	db     *gorm.DB
	source ReceiptSource
}

// Open connects to dsn and migrates the schema. postgres:// and
// postgresql:// DSNs use PostgreSQL; anything else is opened as SQLite.
func Open(dsn string) (*Indexer, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("indexer: dsn required")
	}
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open: %w", err)
	}
	return New(db)
}

// New wraps an existing connection.
func New(db *gorm.DB) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: nil database")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db}, nil
}

// Close releases the underlying connection pool.
func (x *Indexer) Close() error {
	sqlDB, err := x.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// LastSequence returns the sequence of the last projected receipt.
func (x *Indexer) LastSequence(ctx context.Context) (uint64, error) {
	var cursor Cursor
	err := x.db.WithContext(ctx).Where("name = ?", cursorName).First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return cursor.Sequence, err
}

// SetSource configures where HandleReceipt backfills missed receipts from.
func (x *Indexer) SetSource(src ReceiptSource) { x.source = src }

// HandleReceipt projects one receipt. When earlier receipts were missed and a
// source is configured, the gap is replayed from the source instead.
func (x *Indexer) HandleReceipt(receipt *types.Receipt) error {
	ctx := context.Background()
	err := x.Project(ctx, receipt)
	if errors.Is(err, ErrSequenceGap) && x.source != nil {
		return x.CatchUp(ctx, x.source)
	}
	return err
}

// Project applies the receipt's events in one transaction. Receipts at or
// below the stored cursor are ignored, so replaying is idempotent. Any other
// receipt must carry the sequence directly after the cursor.
func (x *Indexer) Project(ctx context.Context, receipt *types.Receipt) error {
	if receipt == nil {
		return nil
	}
	return x.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cursor Cursor
		err := tx.Where("name = ?", cursorName).First(&cursor).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if receipt.Sequence <= cursor.Sequence {
			return nil
		}
		if receipt.Sequence != cursor.Sequence+1 {
			return fmt.Errorf("%w: have %d, got %d", ErrSequenceGap, cursor.Sequence, receipt.Sequence)
		}
		for _, evt := range receipt.Events {
			if err := project(tx, receipt, evt); err != nil {
				return fmt.Errorf("indexer: project %s: %w", evt.Type, err)
			}
		}
		cursor = Cursor{Name: cursorName, Sequence: receipt.Sequence}
		return tx.Save(&cursor).Error
	})
}

// CatchUp projects every receipt from src newer than the cursor.
func (x *Indexer) CatchUp(ctx context.Context, src ReceiptSource) error {
	last, err := x.LastSequence(ctx)
	if err != nil {
		return err
	}
	var projectErr error
	err = src.Range(last+1, func(r *types.Receipt) bool {
		projectErr = x.Project(ctx, r)
		return projectErr == nil && ctx.Err() == nil
	})
	if err != nil {
		return err
	}
	if projectErr != nil {
		return projectErr
	}
	return ctx.Err()
}

func project(tx *gorm.DB, receipt *types.Receipt, evt *types.Event) error {
	if evt == nil {
		return nil
	}
	attrs := evt.Attributes
	switch evt.Type {
	case market.EventTypeOfferListed, market.EventTypeOfferCancelled:
		row := Offer{
			OfferID:    parseUint(attrs["offerId"]),
			Producer:   attrs["producer"],
			Amount:     attrs["amount"],
			Price:      attrs["price"],
			EnergyType: attrs["energyType"],
			Location:   attrs["location"],
			Expiry:     parseUint(attrs["expiry"]),
			Currency:   attrs["currency"],
			Status:     attrs["status"],
		}
		return upsert(tx, "offer_id", &row)
	case market.EventTypeBidCreated, market.EventTypeBidCancelled:
		row := Bid{
			BidID:             parseUint(attrs["bidId"]),
			Buyer:             attrs["buyer"],
			Amount:            attrs["amount"],
			MaxPrice:          attrs["maxPrice"],
			PreferredType:     attrs["preferredType"],
			PreferredLocation: attrs["preferredLocation"],
			Expiry:            parseUint(attrs["expiry"]),
			Currency:          attrs["currency"],
			Status:            attrs["status"],
		}
		return upsert(tx, "bid_id", &row)
	case market.EventTypeOrderMatched:
		offerID, bidID := parseUint(attrs["offerId"]), parseUint(attrs["bidId"])
		if err := tx.Model(&Offer{}).Where("offer_id = ?", offerID).Update("matched_bid_id", bidID).Error; err != nil {
			return err
		}
		return tx.Model(&Bid{}).Where("bid_id = ?", bidID).Update("matched_offer_id", offerID).Error
	case market.EventTypeTradeExecuted:
		offerID, bidID := parseUint(attrs["offerId"]), parseUint(attrs["bidId"])
		closed := market.OrderClosed.String()
		if err := tx.Model(&Offer{}).Where("offer_id = ?", offerID).
			Updates(map[string]any{"status": closed, "matched_bid_id": nil}).Error; err != nil {
			return err
		}
		if err := tx.Model(&Bid{}).Where("bid_id = ?", bidID).
			Updates(map[string]any{"status": closed, "matched_offer_id": nil}).Error; err != nil {
			return err
		}
		return tx.Create(&Trade{
			OfferID:   offerID,
			BidID:     bidID,
			Producer:  attrs["producer"],
			Buyer:     attrs["buyer"],
			Amount:    attrs["amount"],
			Price:     attrs["price"],
			Total:     attrs["total"],
			Currency:  attrs["currency"],
			Height:    parseUint(attrs["height"]),
			ReceiptID: receipt.ID,
		}).Error
	case escrow.EventTypeEscrowInitiated, escrow.EventTypeEscrowReleased, escrow.EventTypeEscrowRefunded,
		escrow.EventTypeEscrowDisputed, escrow.EventTypeEscrowResolved, escrow.EventTypeEscrowCancelled:
		if _, ok := attrs["id"]; !ok {
			return nil
		}
		row := Escrow{
			EscrowID:      parseUint(attrs["id"]),
			OfferID:       parseUint(attrs["offerId"]),
			BidID:         parseUint(attrs["bidId"]),
			Producer:      attrs["producer"],
			Buyer:         attrs["buyer"],
			Amount:        attrs["amount"],
			Price:         attrs["price"],
			Total:         attrs["total"],
			Currency:      attrs["currency"],
			Status:        attrs["status"],
			CreatedHeight: parseUint(attrs["createdAt"]),
			ExpiresHeight: parseUint(attrs["expiresAt"]),
			Recipient:     attrs["recipient"],
		}
		return upsert(tx, "escrow_id", &row)
	default:
		return nil
	}
}

func upsert(tx *gorm.DB, key string, row any) error {
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: key}},
		DoUpdates: clause.AssignmentColumns(updateColumns(key, row)),
	}).Create(row).Error
}

func updateColumns(key string, row any) []string {
	switch row.(type) {
	case *Offer:
		return []string{"producer", "amount", "price", "energy_type", "location", "expiry", "currency", "status", "updated_at"}
	case *Bid:
		return []string{"buyer", "amount", "max_price", "preferred_type", "preferred_location", "expiry", "currency", "status", "updated_at"}
	case *Escrow:
		return []string{"offer_id", "bid_id", "producer", "buyer", "amount", "price", "total", "currency", "status", "created_height", "expires_height", "recipient", "updated_at"}
	default:
		return []string{key}
	}
}

func parseUint(raw string) uint64 {
	value, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return value
}

// OpenOffersByEnergyType lists open offers of the given type ordered by id.
func (x *Indexer) OpenOffersByEnergyType(ctx context.Context, energyType string) ([]Offer, error) {
	var offers []Offer
	err := x.db.WithContext(ctx).
		Where("status = ? AND energy_type = ?", market.OrderOpen.String(), strings.ToLower(strings.TrimSpace(energyType))).
		Order("offer_id").
		Find(&offers).Error
	return offers, err
}

// EscrowsByBuyer lists the buyer's escrows ordered by id.
func (x *Indexer) EscrowsByBuyer(ctx context.Context, buyer string) ([]Escrow, error) {
	var escrows []Escrow
	err := x.db.WithContext(ctx).Where("buyer = ?", buyer).Order("escrow_id").Find(&escrows).Error
	return escrows, err
}

// Trades lists executed trades, newest first, up to limit.
func (x *Indexer) Trades(ctx context.Context, limit int) ([]Trade, error) {
	if limit <= 0 {
		limit = 100
	}
	var trades []Trade
	err := x.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&trades).Error
	return trades, err
}
