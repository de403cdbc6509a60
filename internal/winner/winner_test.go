package winner

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lelangid/lelang-api/internal/database"
	"github.com/lelangid/lelang-api/internal/types"
)

// recordingScheduler captures Cancel calls from winner declarations.
type recordingScheduler struct {
	mu        sync.Mutex
	cancelled []string
}

func (r *recordingScheduler) Cancel(auctionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancelled = append(r.cancelled, auctionID)
}

func newTestService(t *testing.T) (*Service, *recordingScheduler, *gorm.DB) {
	t.Helper()

	db, err := database.NewTestDatabase()
	require.NoError(t, err)

	scheduler := &recordingScheduler{}
	return NewService(db, database.NewKeyedLock(), scheduler), scheduler, db
}

func seedAuctionWithBids(t *testing.T, db *gorm.DB, status string, offers map[string]int64) (*types.Auction, map[string]*types.Bid) {
	t.Helper()

	auction := &types.Auction{
		AuctionID:     "AUC_" + uuid.New().String(),
		Title:         "Cabai rawit 30kg",
		ProductID:     "PRD_" + uuid.New().String(),
		StartingPrice: 1000,
		Status:        status,
		StartTime:     time.Now().Add(-time.Hour),
		EndTime:       time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(auction).Error)

	bids := make(map[string]*types.Bid, len(offers))
	for bidderID, offer := range offers {
		bid := &types.Bid{
			BidID:      "BID_" + uuid.New().String(),
			AuctionID:  auction.AuctionID,
			BidderID:   bidderID,
			OfferPrice: offer,
		}
		require.NoError(t, db.Create(bid).Error)
		bids[bidderID] = bid
	}
	return auction, bids
}

func winnerCount(t *testing.T, db *gorm.DB, auctionID string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&types.Bid{}).
		Where("auction_id = ? AND is_winner = ?", auctionID, true).
		Count(&count).Error)
	return count
}

func TestDeclareWinner(t *testing.T) {
	service, scheduler, db := newTestService(t)

	auction, bids := seedAuctionWithBids(t, db, types.StatusClosed, map[string]int64{
		"pembeli-a": 1250,
		"pembeli-b": 1500,
	})

	won, err := service.DeclareWinner(bids["pembeli-b"].BidID)
	require.NoError(t, err)
	require.True(t, won.IsWinner)
	require.Equal(t, "pembeli-b", won.BidderID)

	// Exactly one winner per auction
	require.EqualValues(t, 1, winnerCount(t, db, auction.AuctionID))

	// The auction is finished and its final price frozen to the winning offer
	var settled types.Auction
	require.NoError(t, db.Where("auction_id = ?", auction.AuctionID).First(&settled).Error)
	require.Equal(t, types.StatusFinished, settled.Status)
	require.EqualValues(t, 1500, *settled.FinalPrice)

	require.Equal(t, []string{auction.AuctionID}, scheduler.cancelled)
}

func TestDeclareWinner_BidNotFound(t *testing.T) {
	service, scheduler, _ := newTestService(t)

	_, err := service.DeclareWinner("BID_missing")
	require.ErrorIs(t, err, types.ErrBidNotFound)
	require.Empty(t, scheduler.cancelled)
}

// Re-declaring moves the flag to the new bid and re-freezes the price. No
// guard exists against correcting an earlier declaration.
func TestDeclareWinner_RedeclareMovesFlag(t *testing.T) {
	service, _, db := newTestService(t)

	auction, bids := seedAuctionWithBids(t, db, types.StatusClosed, map[string]int64{
		"pembeli-a": 1250,
		"pembeli-b": 1500,
	})

	_, err := service.DeclareWinner(bids["pembeli-b"].BidID)
	require.NoError(t, err)

	won, err := service.DeclareWinner(bids["pembeli-a"].BidID)
	require.NoError(t, err)
	require.Equal(t, "pembeli-a", won.BidderID)

	require.EqualValues(t, 1, winnerCount(t, db, auction.AuctionID))

	var previous types.Bid
	require.NoError(t, db.Where("bid_id = ?", bids["pembeli-b"].BidID).First(&previous).Error)
	require.False(t, previous.IsWinner)

	var settled types.Auction
	require.NoError(t, db.Where("auction_id = ?", auction.AuctionID).First(&settled).Error)
	require.EqualValues(t, 1250, *settled.FinalPrice)
}

// Declaring a winner on a still-open auction implicitly ends it.
func TestDeclareWinner_OnOpenAuction(t *testing.T) {
	service, scheduler, db := newTestService(t)

	auction, bids := seedAuctionWithBids(t, db, types.StatusOpen, map[string]int64{
		"pembeli-a": 1250,
	})

	_, err := service.DeclareWinner(bids["pembeli-a"].BidID)
	require.NoError(t, err)

	var settled types.Auction
	require.NoError(t, db.Where("auction_id = ?", auction.AuctionID).First(&settled).Error)
	require.Equal(t, types.StatusFinished, settled.Status)

	// A pending close timer for the finished auction gets disarmed
	require.Equal(t, []string{auction.AuctionID}, scheduler.cancelled)
}

func TestDeclareWinner_ConcurrentDeclarations(t *testing.T) {
	service, _, db := newTestService(t)

	auction, bids := seedAuctionWithBids(t, db, types.StatusClosed, map[string]int64{
		"pembeli-a": 1250,
		"pembeli-b": 1500,
		"pembeli-c": 1750,
	})

	var wg sync.WaitGroup
	for _, bid := range bids {
		wg.Add(1)
		go func(bidID string) {
			defer wg.Done()
			_, err := service.DeclareWinner(bidID)
			require.NoError(t, err)
		}(bid.BidID)
	}
	wg.Wait()

	// Whichever declaration lands last, the invariant holds
	require.EqualValues(t, 1, winnerCount(t, db, auction.AuctionID))

	var settled types.Auction
	require.NoError(t, db.Where("auction_id = ?", auction.AuctionID).First(&settled).Error)
	require.Equal(t, types.StatusFinished, settled.Status)
	require.NotNil(t, settled.FinalPrice)
}
