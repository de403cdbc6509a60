package winner

import (
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/lelangid/lelang-api/internal/database"
	"github.com/lelangid/lelang-api/internal/types"
	"github.com/lelangid/lelang-api/pkg/response"
)

// Scheduler is the slice of the close scheduler the winner service needs: a
// finished auction no longer wants its pending close timer.
type Scheduler interface {
	Cancel(auctionID string)
}

// Service resolves auction winners
type Service struct {
	db        *Database
	scheduler Scheduler
}

// NewService creates a new winner service with the given database connection.
// The keyed lock must be shared with the auction and bidding services.
func NewService(gormDB *gorm.DB, locks *database.KeyedLock, scheduler Scheduler) *Service {
	return &Service{
		db:        NewDatabase(gormDB, locks),
		scheduler: scheduler,
	}
}

// DeclareWinner marks the target bid as the auction's winner and finishes the
// auction, freezing its final price to the winning offer. Declaring a winner
// on a still-open auction implicitly ends it. Re-declaring simply moves the
// flag and re-freezes the price; there is deliberately no guard against it.
func (s *Service) DeclareWinner(bidID string) (*types.Bid, error) {
	bid, err := s.db.DeclareWinner(bidID)
	if err != nil {
		return nil, err
	}

	if s.scheduler != nil {
		s.scheduler.Cancel(bid.AuctionID)
	}

	log.Info().
		Str("bid_id", bid.BidID).
		Str("auction_id", bid.AuctionID).
		Str("bidder_id", bid.BidderID).
		Int64("offer_price", bid.OfferPrice).
		Msg("winner declared")

	return bid, nil
}

// GinHandlers contains HTTP handlers for winner resolution endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for winner resolution
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// DeclareWinnerHandler handles POST requests to declare an auction winner
// Requires the admin role; URL parameter: bid_id
func (h *GinHandlers) DeclareWinnerHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bid, err := h.service.DeclareWinner(c.Param("bid_id"))
		response.Handle(c, bid, err)
	}
}
