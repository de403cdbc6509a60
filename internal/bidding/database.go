package bidding

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/lelangid/lelang-api/internal/database"
	"github.com/lelangid/lelang-api/internal/types"
)

type Database struct {
	db    *gorm.DB
	locks *database.KeyedLock
}

func NewDatabase(db *gorm.DB, locks *database.KeyedLock) *Database {
	return &Database{db: db, locks: locks}
}

// CreateBidWithRepricing validates and commits a bid as a single atomic
// operation, holding the per-auction lock for the whole read-recompute-write
// sequence. Checks run in a fixed order against the freshly loaded auction:
// existence, open status, starting price floor, bid step. On success the bid
// row is inserted and the auction's running final price recomputed before the
// lock is released, so no concurrent submission sees a stale price.
func (d *Database) CreateBidWithRepricing(bid *types.Bid) error {
	lock := d.locks.Acquire(bid.AuctionID)
	lock.Lock()
	defer lock.Unlock()

	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageConflict, err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var auction types.Auction
	if err := tx.Where("auction_id = ?", bid.AuctionID).First(&auction).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return types.ErrAuctionNotFound
		}
		return err
	}

	if !auction.IsOpen() {
		tx.Rollback()
		return types.ErrAuctionClosed
	}
	if bid.OfferPrice < auction.StartingPrice {
		tx.Rollback()
		return types.ErrBidTooLow
	}
	if bid.OfferPrice <= 0 || bid.OfferPrice%types.BidStep != 0 {
		tx.Rollback()
		return types.ErrInvalidIncrement
	}

	if err := tx.Create(bid).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: %v", types.ErrStorageConflict, err)
	}

	// The running final price is the highest of each bidder's most recent
	// offer, floored at the starting price. Last-bid-per-bidder, not
	// max-bid-per-bidder: a bidder's own earlier higher offer stops counting
	// once they bid again.
	highest, err := d.highestLatestOffer(tx, bid.AuctionID)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: %v", types.ErrStorageConflict, err)
	}

	finalPrice := auction.StartingPrice
	if highest > finalPrice {
		finalPrice = highest
	}

	err = tx.Model(&types.Auction{}).
		Where("auction_id = ?", auction.AuctionID).
		Update("final_price", finalPrice).Error
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("%w: %v", types.ErrStorageConflict, err)
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("%w: %v", types.ErrStorageConflict, err)
	}
	return nil
}

// highestLatestOffer takes each bidder's most recent bid on the auction and
// returns the maximum offer among them, or 0 when there are no bids. Row IDs
// are insertion-ordered, so MAX(id) per bidder is that bidder's latest bid.
func (d *Database) highestLatestOffer(tx *gorm.DB, auctionID string) (int64, error) {
	latestPerBidder := tx.Model(&types.Bid{}).
		Select("MAX(id)").
		Where("auction_id = ?", auctionID).
		Group("bidder_id")

	var highest *int64
	err := tx.Model(&types.Bid{}).
		Select("MAX(offer_price)").
		Where("id IN (?)", latestPerBidder).
		Scan(&highest).Error
	if err != nil {
		return 0, err
	}
	if highest == nil {
		return 0, nil
	}
	return *highest, nil
}

// ListBidsForAuction returns all bids on an auction, highest offer first.
func (d *Database) ListBidsForAuction(auctionID string) ([]types.Bid, error) {
	var bids []types.Bid
	err := d.db.
		Where("auction_id = ?", auctionID).
		Order("offer_price DESC").
		Find(&bids).Error
	if err != nil {
		return nil, err
	}
	return bids, nil
}

// GetLastBid returns the bidder's most recent bid on the auction.
func (d *Database) GetLastBid(auctionID, bidderID string) (*types.Bid, error) {
	var bid types.Bid
	err := d.db.
		Where("auction_id = ? AND bidder_id = ?", auctionID, bidderID).
		Order("id DESC").
		First(&bid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrBidNotFound
		}
		return nil, err
	}
	return &bid, nil
}

// GetWinningBid returns the bid flagged as winner for the auction, or nil
// when no winner has been declared.
func (d *Database) GetWinningBid(auctionID string) (*types.Bid, error) {
	var bid types.Bid
	err := d.db.
		Where("auction_id = ? AND is_winner = ?", auctionID, true).
		First(&bid).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &bid, nil
}

// ListLatestFinishedBids returns the bidder's most recent bid on each finished
// auction they participated in, newest first, with the auction preloaded.
func (d *Database) ListLatestFinishedBids(bidderID string, limit int) ([]types.Bid, error) {
	latestPerAuction := d.db.Model(&types.Bid{}).
		Select("MAX(bids.id)").
		Joins("JOIN auctions ON auctions.auction_id = bids.auction_id").
		Where("bids.bidder_id = ? AND auctions.status = ?", bidderID, types.StatusFinished).
		Group("bids.auction_id")

	var bids []types.Bid
	err := d.db.Preload("Auction").
		Where("id IN (?)", latestPerAuction).
		Order("id DESC").
		Limit(limit).
		Find(&bids).Error
	if err != nil {
		return nil, err
	}
	return bids, nil
}

// CountFinishedAuctions counts the finished auctions the bidder bid on.
func (d *Database) CountFinishedAuctions(bidderID string) (int64, error) {
	var count int64
	err := d.db.Model(&types.Bid{}).
		Joins("JOIN auctions ON auctions.auction_id = bids.auction_id").
		Where("bids.bidder_id = ? AND auctions.status = ?", bidderID, types.StatusFinished).
		Distinct("bids.auction_id").
		Count(&count).Error
	return count, err
}

// CountWonAuctions counts the finished auctions the bidder won.
func (d *Database) CountWonAuctions(bidderID string) (int64, error) {
	var count int64
	err := d.db.Model(&types.Bid{}).
		Joins("JOIN auctions ON auctions.auction_id = bids.auction_id").
		Where("bids.bidder_id = ? AND bids.is_winner = ? AND auctions.status = ?",
			bidderID, true, types.StatusFinished).
		Distinct("bids.auction_id").
		Count(&count).Error
	return count, err
}
