package auction

import (
	"errors"
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

func (d *Database) CreateAuction(auction *types.Auction) error {
	return d.db.Create(auction).Error
}

func (d *Database) GetAuction(auctionID string) (*types.Auction, error) {
	var auction types.Auction
	if err := d.db.Where("auction_id = ?", auctionID).First(&auction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrAuctionNotFound
		}
		return nil, err
	}
	return &auction, nil
}

func (d *Database) GetAuctionWithBids(auctionID string) (*types.Auction, error) {
	var auction types.Auction
	err := d.db.Preload("Bids", func(db *gorm.DB) *gorm.DB {
		return db.Order("bids.offer_price DESC")
	}).Where("auction_id = ?", auctionID).First(&auction).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrAuctionNotFound
		}
		return nil, err
	}
	return &auction, nil
}

func (d *Database) ListAuctions() ([]types.Auction, error) {
	var auctions []types.Auction
	if err := d.db.Order("created_at DESC").Find(&auctions).Error; err != nil {
		return nil, err
	}
	return auctions, nil
}

// ListActiveAuctions returns open auctions whose bidding window contains now.
func (d *Database) ListActiveAuctions(now time.Time) ([]types.Auction, error) {
	var auctions []types.Auction
	err := d.db.
		Where("status = ? AND start_time <= ? AND end_time >= ?", types.StatusOpen, now, now).
		Order("end_time ASC").
		Find(&auctions).Error
	if err != nil {
		return nil, err
	}
	return auctions, nil
}

// ListOpenAuctions returns every auction still in the OPEN state, regardless
// of its end time. Used to rebuild the close scheduler after a restart.
func (d *Database) ListOpenAuctions() ([]types.Auction, error) {
	var auctions []types.Auction
	if err := d.db.Where("status = ?", types.StatusOpen).Find(&auctions).Error; err != nil {
		return nil, err
	}
	return auctions, nil
}

// ListExpiredOpenAuctions returns open auctions whose end time has passed.
func (d *Database) ListExpiredOpenAuctions(now time.Time) ([]types.Auction, error) {
	var auctions []types.Auction
	err := d.db.
		Where("status = ? AND end_time <= ?", types.StatusOpen, now).
		Find(&auctions).Error
	if err != nil {
		return nil, err
	}
	return auctions, nil
}

func (d *Database) UpdateAuction(auction *types.Auction) error {
	return d.db.Save(auction).Error
}

// TransitionToClosed moves the auction to CLOSED inside a transaction, holding
// the per-auction lock for the read-check-write sequence. When expiredOnly is
// set the transition only happens if the end time has passed. Already-closed
// or finished auctions are left untouched; the bool reports whether the status
// actually changed.
func (d *Database) TransitionToClosed(auctionID string, now time.Time, expiredOnly bool) (*types.Auction, bool, error) {
	lock := d.locks.Acquire(auctionID)
	lock.Lock()
	defer lock.Unlock()

	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return nil, false, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var auction types.Auction
	if err := tx.Where("auction_id = ?", auctionID).First(&auction).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, types.ErrAuctionNotFound
		}
		return nil, false, err
	}

	if !auction.IsOpen() {
		tx.Rollback()
		return &auction, false, nil
	}
	if expiredOnly && !auction.Expired(now) {
		tx.Rollback()
		return &auction, false, nil
	}

	auction.Status = types.StatusClosed
	auction.UpdatedAt = now
	if err := tx.Save(&auction).Error; err != nil {
		tx.Rollback()
		return nil, false, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, false, err
	}
	return &auction, true, nil
}

// UpdateAuctionLocked applies an administrative edit as a read-modify-write
// under the per-auction lock, so end-time or status changes never interleave
// with a bid submission or a scheduled close. The apply callback mutates the
// freshly loaded row; returning an error aborts the update.
func (d *Database) UpdateAuctionLocked(auctionID string, apply func(*types.Auction) error) (*types.Auction, error) {
	lock := d.locks.Acquire(auctionID)
	lock.Lock()
	defer lock.Unlock()

	tx := d.db.Begin()
	if err := tx.Error; err != nil {
		return nil, err
	}
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	var auction types.Auction
	if err := tx.Where("auction_id = ?", auctionID).First(&auction).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, types.ErrAuctionNotFound
		}
		return nil, err
	}

	if err := apply(&auction); err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Save(&auction).Error; err != nil {
		tx.Rollback()
		return nil, err
	}

	if err := tx.Commit().Error; err != nil {
		return nil, err
	}
	return &auction, nil
}
