package winner

import (
	"errors"
	"fmt"
	"time"

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

// DeclareWinner flips the winner flag to the target bid and settles its
// auction, all inside one transaction under the per-auction lock: every
// sibling bid is reset first, so at most one bid per auction carries the flag
// afterwards. The auction moves to FINISHED and its final price is frozen to
// the winning offer, overwriting the running maximum.
func (d *Database) DeclareWinner(bidID string) (*types.Bid, error) {
	var bid types.Bid
	if err := d.db.Where("bid_id = ?", bidID).First(&bid).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrBidNotFound
		}
		return nil, err
	}

	lock := d.locks.Acquire(bid.AuctionID)
	lock.Lock()
	defer lock.Unlock()

	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageConflict, err)
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	// Re-read under the lock; the bid may have been re-flagged by a
	// concurrent declaration.
	if err := tx.Where("bid_id = ?", bidID).First(&bid).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrBidNotFound
		}
		return nil, err
	}

	err := tx.Model(&types.Bid{}).
		Where("auction_id = ?", bid.AuctionID).
		Update("is_winner", false).Error
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %v", types.ErrStorageConflict, err)
	}

	err = tx.Model(&types.Bid{}).
		Where("bid_id = ?", bid.BidID).
		Update("is_winner", true).Error
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %v", types.ErrStorageConflict, err)
	}

	err = tx.Model(&types.Auction{}).
		Where("auction_id = ?", bid.AuctionID).
		Updates(map[string]interface{}{
			"status":      types.StatusFinished,
			"final_price": bid.OfferPrice,
			"updated_at":  time.Now(),
		}).Error
	if err != nil {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %v", types.ErrStorageConflict, err)
	}

	if err := tx.Commit().Error; err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrStorageConflict, err)
	}

	bid.IsWinner = true
	return &bid, nil
}
