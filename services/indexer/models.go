package indexer

import (
	"time"

	"gorm.io/gorm"
)

// Offer is the read model row of a marketplace offer.
type Offer struct {
	ID           uint   `gorm:"primaryKey"`
	OfferID      uint64 `gorm:"uniqueIndex;not null"`
	Producer     string `gorm:"size:128;index"`
	Amount       string `gorm:"size:80"`
	Price        string `gorm:"size:80"`
	EnergyType   string `gorm:"size:16;index"`
	Location     string `gorm:"size:400"`
	Expiry       uint64
	Currency     string `gorm:"size:8"`
	Status       string `gorm:"size:16;index"`
	MatchedBidID *uint64
	UpdatedAt    time.Time
}

// Bid is the read model row of a marketplace bid.
type Bid struct {
	ID                uint   `gorm:"primaryKey"`
	BidID             uint64 `gorm:"uniqueIndex;not null"`
	Buyer             string `gorm:"size:128;index"`
	Amount            string `gorm:"size:80"`
	MaxPrice          string `gorm:"size:80"`
	PreferredType     string `gorm:"size:16"`
	PreferredLocation string `gorm:"size:400"`
	Expiry            uint64
	Currency          string `gorm:"size:8"`
	Status            string `gorm:"size:16;index"`
	MatchedOfferID    *uint64
	UpdatedAt         time.Time
}

// Escrow is the read model row of an escrow, updated on every transition.
type Escrow struct {
	ID            uint   `gorm:"primaryKey"`
	EscrowID      uint64 `gorm:"uniqueIndex;not null"`
	OfferID       uint64 `gorm:"index"`
	BidID         uint64
	Producer      string `gorm:"size:128;index"`
	Buyer         string `gorm:"size:128;index"`
	Amount        string `gorm:"size:80"`
	Price         string `gorm:"size:80"`
	Total         string `gorm:"size:160"`
	Currency      string `gorm:"size:8"`
	Status        string `gorm:"size:16;index"`
	CreatedHeight uint64
	ExpiresHeight uint64
	Recipient     string `gorm:"size:128"`
	UpdatedAt     time.Time
}

// Trade records one executed trade.
type Trade struct {
	ID        uint   `gorm:"primaryKey"`
	OfferID   uint64 `gorm:"index"`
	BidID     uint64 `gorm:"index"`
	Producer  string `gorm:"size:128;index"`
	Buyer     string `gorm:"size:128;index"`
	Amount    string `gorm:"size:80"`
	Price     string `gorm:"size:80"`
	Total     string `gorm:"size:160"`
	Currency  string `gorm:"size:8"`
	Height    uint64
	ReceiptID string `gorm:"size:64;index"`
	CreatedAt time.Time
}

// Cursor stores the last projected receipt sequence.
type Cursor struct {
	Name     string `gorm:"primaryKey;size:32"`
	Sequence uint64
}

// AutoMigrate applies the read model schema.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&Offer{}, &Bid{}, &Escrow{}, &Trade{}, &Cursor{})
}
