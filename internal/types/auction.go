package types

import (
	"time"

	"gorm.io/gorm"
)

// Auction statuses. Transitions only move forward:
// OPEN -> CLOSED, OPEN -> FINISHED, CLOSED -> FINISHED.
const (
	StatusOpen     = "OPEN"
	StatusClosed   = "CLOSED"
	StatusFinished = "FINISHED"
)

// BidStep is the fixed increment every offer price must be a multiple of.
const BidStep int64 = 250

var statusRank = map[string]int{
	StatusOpen:     0,
	StatusClosed:   1,
	StatusFinished: 2,
}

// CanTransition reports whether an auction may move from one status to another.
// Equal or backward moves are never allowed.
func CanTransition(from, to string) bool {
	fromRank, ok := statusRank[from]
	toRank, ok2 := statusRank[to]
	return ok && ok2 && toRank > fromRank
}

type Auction struct {
	gorm.Model    `json:"-"`
	AuctionID     string    `gorm:"uniqueIndex" json:"auction_id"`
	Title         string    `json:"title"`
	ProductID     string    `json:"product_id"`
	StartingPrice int64     `json:"starting_price"`
	FinalPrice    *int64    `json:"final_price"`
	TotalStock    int64     `json:"total_stock"`
	Status        string    `json:"status"` // OPEN, CLOSED, FINISHED
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Bids          []Bid     `json:"bids,omitempty" gorm:"foreignKey:AuctionID;references:AuctionID"`
}

// IsOpen reports whether the auction still accepts bids. The status field is
// what gates acceptance, not the clock: an expired auction keeps accepting
// bids until the close actually lands.
func (a *Auction) IsOpen() bool {
	return a.Status == StatusOpen
}

// Expired reports whether the auction's end time has passed.
func (a *Auction) Expired(now time.Time) bool {
	return !now.Before(a.EndTime)
}

type Bid struct {
	gorm.Model `json:"-"`
	BidID      string    `gorm:"uniqueIndex" json:"bid_id"`
	AuctionID  string    `gorm:"index" json:"auction_id"`
	BidderID   string    `gorm:"index" json:"bidder_id"`
	OfferPrice int64     `json:"offer_price"`
	IsWinner   bool      `json:"is_winner"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Auction    *Auction  `json:"auction,omitempty" gorm:"foreignKey:AuctionID;references:AuctionID"`
}
