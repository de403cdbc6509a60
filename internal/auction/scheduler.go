package auction

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lelangid/lelang-api/internal/types"
)

// Closer is the slice of the auction service the scheduler needs at fire time.
type Closer interface {
	CloseExpired(auctionID string) (bool, error)
}

// CloseScheduler owns the process-wide registry of pending close timers, one
// per open auction, keyed by auction ID. Timers are not persisted; Rehydrate
// rebuilds the registry from storage after a restart. Other components never
// touch the map directly, only Schedule, Cancel, Rehydrate and Stop.
type CloseScheduler struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
	closer Closer
	db     *Database
	logger zerolog.Logger
}

func NewCloseScheduler(closer Closer, db *Database) *CloseScheduler {
	return &CloseScheduler{
		timers: make(map[string]*time.Timer),
		closer: closer,
		db:     db,
		logger: log.With().Str("component", "close_scheduler").Logger(),
	}
}

// Schedule arms a one-shot close timer for the auction, replacing any timer
// already registered for it. An end time in the past fires the closure check
// immediately instead of arming a timer.
func (s *CloseScheduler) Schedule(auctionID string, endTime time.Time) {
	s.Cancel(auctionID)

	delay := time.Until(endTime)
	if delay <= 0 {
		s.logger.Info().
			Str("auction_id", auctionID).
			Time("end_time", endTime).
			Msg("auction already expired, closing immediately")
		s.fire(auctionID)
		return
	}

	s.logger.Info().
		Str("auction_id", auctionID).
		Time("end_time", endTime).
		Dur("delay", delay).
		Msg("scheduled close job")

	s.mu.Lock()
	defer s.mu.Unlock()

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		s.fire(auctionID)

		s.mu.Lock()
		// A reschedule may have replaced this timer while it was firing; only
		// remove the registry entry if it is still ours.
		if current, ok := s.timers[auctionID]; ok && current == timer {
			delete(s.timers, auctionID)
		}
		s.mu.Unlock()
	})
	s.timers[auctionID] = timer
}

// Cancel disarms and removes the timer for the auction if one is registered.
// Canceling has no effect on a fire already in progress; the fire-time
// re-check keeps that race harmless.
func (s *CloseScheduler) Cancel(auctionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if timer, ok := s.timers[auctionID]; ok {
		timer.Stop()
		delete(s.timers, auctionID)
		s.logger.Info().Str("auction_id", auctionID).Msg("cancelled scheduled close job")
	}
}

// Rehydrate loads every auction still in the OPEN state and schedules its
// close. Auctions whose end time already passed are closed on the spot. Must
// run once at process start, since timers do not survive a restart.
func (s *CloseScheduler) Rehydrate() error {
	auctions, err := s.db.ListOpenAuctions()
	if err != nil {
		return err
	}

	s.logger.Info().Int("count", len(auctions)).Msg("rehydrating close schedule from storage")

	for _, a := range auctions {
		s.Schedule(a.AuctionID, a.EndTime)
	}
	return nil
}

// Stop disarms every pending timer. Cancellation has no persisted side
// effects, so this is safe to call during graceful shutdown.
func (s *CloseScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, timer := range s.timers {
		timer.Stop()
	}
	s.timers = make(map[string]*time.Timer)
	s.logger.Info().Msg("cleared all scheduled close jobs")
}

// ScheduledCount returns the number of pending close timers.
func (s *CloseScheduler) ScheduledCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// ScheduledAuctionIDs returns the auction IDs with a pending close timer.
func (s *CloseScheduler) ScheduledAuctionIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.timers))
	for id := range s.timers {
		ids = append(ids, id)
	}
	return ids
}

// Info reports registry state for the monitoring endpoint.
func (s *CloseScheduler) Info() types.SchedulerInfo {
	return types.SchedulerInfo{
		ScheduledCount:    s.ScheduledCount(),
		ScheduledAuctions: s.ScheduledAuctionIDs(),
	}
}

// fire runs the closure check. The auction is re-fetched and the transition
// only applied if it is still open and actually expired; a manual close, a
// winner declaration or a reschedule racing this fire leaves it a no-op.
// Failures are logged and swallowed, the auction stays open until the next
// fire or sweep.
func (s *CloseScheduler) fire(auctionID string) {
	closed, err := s.closer.CloseExpired(auctionID)
	if err != nil {
		s.logger.Error().Err(err).Str("auction_id", auctionID).Msg("close job failed")
		return
	}
	if closed {
		s.logger.Info().Str("auction_id", auctionID).Msg("auction closed automatically")
	} else {
		s.logger.Debug().Str("auction_id", auctionID).Msg("close job skipped, auction no longer eligible")
	}
}
