package auction

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/lelangid/lelang-api/internal/types"
)

func createOpenAuction(t *testing.T, db *gorm.DB, end time.Time) *types.Auction {
	t.Helper()

	auction := &types.Auction{
		AuctionID:     "AUC_" + uuid.New().String(),
		Title:         "Wortel 75kg",
		ProductID:     "PRD_" + uuid.New().String(),
		StartingPrice: 1000,
		Status:        types.StatusOpen,
		StartTime:     time.Now().Add(-time.Hour),
		EndTime:       end,
	}
	require.NoError(t, db.Create(auction).Error)
	return auction
}

// statusOf polls the stored status without failing the test on a read error,
// so it is safe inside Eventually conditions.
func statusOf(db *gorm.DB, auctionID string) string {
	var auction types.Auction
	if err := db.Where("auction_id = ?", auctionID).First(&auction).Error; err != nil {
		return ""
	}
	return auction.Status
}

func TestScheduler_ClosesAtEndTime(t *testing.T) {
	service, scheduler, db := newTestService(t)

	auction := createOpenAuction(t, db, time.Now().Add(50*time.Millisecond))
	scheduler.Schedule(auction.AuctionID, auction.EndTime)
	require.Equal(t, 1, scheduler.ScheduledCount())

	require.Eventually(t, func() bool {
		return statusOf(db, auction.AuctionID) == types.StatusClosed
	}, 2*time.Second, 10*time.Millisecond)

	// The fired timer removes itself from the registry
	require.Eventually(t, func() bool {
		return scheduler.ScheduledCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	// A second fire for the same auction is a harmless no-op
	changed, err := service.CloseExpired(auction.AuctionID)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, types.StatusClosed, reload(t, db, auction.AuctionID).Status)
}

func TestScheduler_PastEndTimeFiresImmediately(t *testing.T) {
	_, scheduler, db := newTestService(t)

	auction := createOpenAuction(t, db, time.Now().Add(-time.Minute))
	scheduler.Schedule(auction.AuctionID, auction.EndTime)

	// Closed synchronously, no timer left behind
	require.Equal(t, types.StatusClosed, reload(t, db, auction.AuctionID).Status)
	require.Zero(t, scheduler.ScheduledCount())
}

func TestScheduler_CancelDisarmsTimer(t *testing.T) {
	_, scheduler, db := newTestService(t)

	auction := createOpenAuction(t, db, time.Now().Add(50*time.Millisecond))
	scheduler.Schedule(auction.AuctionID, auction.EndTime)
	scheduler.Cancel(auction.AuctionID)
	require.Zero(t, scheduler.ScheduledCount())

	time.Sleep(150 * time.Millisecond)
	require.Equal(t, types.StatusOpen, reload(t, db, auction.AuctionID).Status)
}

func TestScheduler_RescheduleReplacesTimer(t *testing.T) {
	_, scheduler, db := newTestService(t)

	auction := createOpenAuction(t, db, time.Now().Add(time.Hour))
	scheduler.Schedule(auction.AuctionID, auction.EndTime)
	scheduler.Schedule(auction.AuctionID, time.Now().Add(50*time.Millisecond))

	// Replacement, not accumulation
	require.Equal(t, 1, scheduler.ScheduledCount())

	require.Eventually(t, func() bool {
		return statusOf(db, auction.AuctionID) == types.StatusClosed
	}, 2*time.Second, 10*time.Millisecond)
}

// A manual close racing the timer must not disturb the final state: exactly
// one transition wins and the other is skipped by the fire-time re-check.
func TestScheduler_FireAfterManualCloseIsNoOp(t *testing.T) {
	service, scheduler, db := newTestService(t)

	auction := createOpenAuction(t, db, time.Now().Add(time.Hour))
	scheduler.Schedule(auction.AuctionID, auction.EndTime)

	_, err := service.CloseAuction(auction.AuctionID)
	require.NoError(t, err)

	// Simulate the timer firing anyway
	changed, err := service.CloseExpired(auction.AuctionID)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, types.StatusClosed, reload(t, db, auction.AuctionID).Status)
}

// The fire-time re-check also protects auctions whose end time moved forward
// after the timer was armed: a stale fire finds the auction not yet expired
// and leaves it open.
func TestScheduler_StaleFireLeavesUnexpiredOpen(t *testing.T) {
	service, _, db := newTestService(t)

	auction := createOpenAuction(t, db, time.Now().Add(time.Hour))

	changed, err := service.CloseExpired(auction.AuctionID)
	require.NoError(t, err)
	require.False(t, changed)
	require.Equal(t, types.StatusOpen, reload(t, db, auction.AuctionID).Status)
}

func TestScheduler_Rehydrate(t *testing.T) {
	_, scheduler, db := newTestService(t)

	// Mixed storage state as left behind by a crash: one live open auction,
	// one open auction already past its end, one closed
	live := createOpenAuction(t, db, time.Now().Add(time.Hour))
	expired := createOpenAuction(t, db, time.Now().Add(-time.Minute))
	closed := createOpenAuction(t, db, time.Now().Add(time.Hour))
	require.NoError(t, db.Model(&types.Auction{}).
		Where("auction_id = ?", closed.AuctionID).
		Update("status", types.StatusClosed).Error)

	require.NoError(t, scheduler.Rehydrate())

	// The expired one closes on the spot, the live one gets a timer, the
	// closed one is untouched
	require.Equal(t, types.StatusClosed, reload(t, db, expired.AuctionID).Status)
	require.Equal(t, types.StatusOpen, reload(t, db, live.AuctionID).Status)
	require.Equal(t, 1, scheduler.ScheduledCount())
	require.Contains(t, scheduler.ScheduledAuctionIDs(), live.AuctionID)
}

func TestScheduler_Stop(t *testing.T) {
	_, scheduler, db := newTestService(t)

	for i := 0; i < 3; i++ {
		a := createOpenAuction(t, db, time.Now().Add(time.Hour))
		scheduler.Schedule(a.AuctionID, a.EndTime)
	}
	require.Equal(t, 3, scheduler.ScheduledCount())

	scheduler.Stop()
	require.Zero(t, scheduler.ScheduledCount())
}

func TestScheduler_Info(t *testing.T) {
	_, scheduler, db := newTestService(t)

	a := createOpenAuction(t, db, time.Now().Add(time.Hour))
	scheduler.Schedule(a.AuctionID, a.EndTime)

	info := scheduler.Info()
	require.Equal(t, 1, info.ScheduledCount)
	require.Equal(t, []string{a.AuctionID}, info.ScheduledAuctions)
}

// countingCloser records fire-time callbacks so concurrent schedule and
// cancel traffic can be asserted without touching storage.
type countingCloser struct {
	mu    sync.Mutex
	fired map[string]int
}

func (c *countingCloser) CloseExpired(auctionID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fired == nil {
		c.fired = make(map[string]int)
	}
	c.fired[auctionID]++
	return true, nil
}

func (c *countingCloser) count(auctionID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fired[auctionID]
}

func TestScheduler_ConcurrentScheduleAndCancel(t *testing.T) {
	closer := &countingCloser{}
	scheduler := NewCloseScheduler(closer, nil)
	t.Cleanup(scheduler.Stop)

	end := time.Now().Add(time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			scheduler.Schedule("AUC_contended", end)
			scheduler.Cancel("AUC_contended")
		}()
	}
	wg.Wait()

	// Far-future timers never fire during the race
	require.Zero(t, closer.count("AUC_contended"))
	require.LessOrEqual(t, scheduler.ScheduledCount(), 1)
}
