package auction

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/lelangid/lelang-api/internal/database"
	"github.com/lelangid/lelang-api/internal/types"
	"github.com/lelangid/lelang-api/pkg/response"
)

// Service handles auction management and the lifecycle state machine
type Service struct {
	db        *Database
	scheduler *CloseScheduler
}

// NewService creates a new auction service with the given database connection.
// The keyed lock must be the same instance handed to the bidding and winner
// services, so all status mutations serialize per auction.
func NewService(gormDB *gorm.DB, locks *database.KeyedLock) *Service {
	return &Service{
		db: NewDatabase(gormDB, locks),
	}
}

// AttachScheduler wires the close scheduler into the save path. Every create
// or update that touches end time or status flows through RescheduleIfNeeded.
func (s *Service) AttachScheduler(scheduler *CloseScheduler) {
	s.scheduler = scheduler
}

// GetDB exposes the repository for components constructed around it
func (s *Service) GetDB() *Database {
	return s.db
}

// CreateAuctionInput is the admin payload for opening a new auction
type CreateAuctionInput struct {
	Title         string    `json:"title" binding:"required"`
	ProductID     string    `json:"product_id" binding:"required"`
	StartingPrice int64     `json:"starting_price" binding:"gte=0"`
	TotalStock    int64     `json:"total_stock" binding:"gte=0"`
	StartTime     time.Time `json:"start_time" binding:"required"`
	EndTime       time.Time `json:"end_time" binding:"required"`
}

// UpdateAuctionInput carries a partial administrative edit; nil fields are
// left unchanged
type UpdateAuctionInput struct {
	Title         *string    `json:"title"`
	StartingPrice *int64     `json:"starting_price"`
	TotalStock    *int64     `json:"total_stock"`
	StartTime     *time.Time `json:"start_time"`
	EndTime       *time.Time `json:"end_time"`
	Status        *string    `json:"status"`
}

// CreateAuction opens a new auction and schedules its automatic close
func (s *Service) CreateAuction(input CreateAuctionInput) (*types.Auction, error) {
	if !input.EndTime.After(input.StartTime) {
		return nil, types.ErrInvalidWindow
	}

	auction := &types.Auction{
		AuctionID:     "AUC_" + uuid.New().String(),
		Title:         input.Title,
		ProductID:     input.ProductID,
		StartingPrice: input.StartingPrice,
		TotalStock:    input.TotalStock,
		Status:        types.StatusOpen,
		StartTime:     input.StartTime,
		EndTime:       input.EndTime,
		CreatedAt:     time.Now(),
		UpdatedAt:     time.Now(),
	}

	if err := s.db.CreateAuction(auction); err != nil {
		return nil, fmt.Errorf("failed to create auction: %w", err)
	}

	s.RescheduleIfNeeded(auction)

	log.Info().
		Str("auction_id", auction.AuctionID).
		Int64("starting_price", auction.StartingPrice).
		Time("end_time", auction.EndTime).
		Msg("auction created")

	return auction, nil
}

// UpdateAuction applies an administrative edit. Status changes must follow
// the forward-only state machine; the close timer is re-evaluated afterwards
// against the saved end time and status.
func (s *Service) UpdateAuction(auctionID string, input UpdateAuctionInput) (*types.Auction, error) {
	auction, err := s.db.UpdateAuctionLocked(auctionID, func(a *types.Auction) error {
		if input.Title != nil {
			a.Title = *input.Title
		}
		if input.StartingPrice != nil {
			a.StartingPrice = *input.StartingPrice
		}
		if input.TotalStock != nil {
			a.TotalStock = *input.TotalStock
		}
		if input.StartTime != nil {
			a.StartTime = *input.StartTime
		}
		if input.EndTime != nil {
			a.EndTime = *input.EndTime
		}
		if input.Status != nil && *input.Status != a.Status {
			if !types.CanTransition(a.Status, *input.Status) {
				return fmt.Errorf("%w: %s -> %s", types.ErrInvalidTransition, a.Status, *input.Status)
			}
			a.Status = *input.Status
		}
		if !a.EndTime.After(a.StartTime) {
			return types.ErrInvalidWindow
		}
		a.UpdatedAt = time.Now()
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.RescheduleIfNeeded(auction)

	log.Info().
		Str("auction_id", auction.AuctionID).
		Str("status", auction.Status).
		Time("end_time", auction.EndTime).
		Msg("auction updated")

	return auction, nil
}

// RescheduleIfNeeded keeps the close timer registry consistent with the saved
// auction: open auctions get a (re)armed timer for their end time, anything
// else has its timer cancelled.
func (s *Service) RescheduleIfNeeded(auction *types.Auction) {
	if s.scheduler == nil {
		return
	}
	if auction.IsOpen() {
		s.scheduler.Schedule(auction.AuctionID, auction.EndTime)
	} else {
		s.scheduler.Cancel(auction.AuctionID)
	}
}

// GetAuction retrieves an auction with its bids, highest offer first
func (s *Service) GetAuction(auctionID string) (*types.Auction, error) {
	return s.db.GetAuctionWithBids(auctionID)
}

// ListAuctions returns every auction, newest first
func (s *Service) ListAuctions() ([]types.Auction, error) {
	return s.db.ListAuctions()
}

// ListActiveAuctions returns open auctions currently inside their bidding window
func (s *Service) ListActiveAuctions() ([]types.Auction, error) {
	return s.db.ListActiveAuctions(time.Now())
}

// CloseAuction is the manual administrative close. It moves an open auction to
// CLOSED regardless of its end time and disarms its timer. Calling it on an
// already closed or finished auction is a no-op, not an error.
func (s *Service) CloseAuction(auctionID string) (*types.Auction, error) {
	auction, changed, err := s.db.TransitionToClosed(auctionID, time.Now(), false)
	if err != nil {
		return nil, err
	}

	if s.scheduler != nil {
		s.scheduler.Cancel(auctionID)
	}

	if changed {
		log.Info().Str("auction_id", auctionID).Msg("auction closed manually")
	}
	return auction, nil
}

// CloseExpired is the scheduler's fire-time callback. The transition only
// happens if the auction is still open and its end time has passed; both are
// re-checked against a fresh row under the per-auction lock.
func (s *Service) CloseExpired(auctionID string) (bool, error) {
	_, changed, err := s.db.TransitionToClosed(auctionID, time.Now(), true)
	return changed, err
}

// SweepExpired closes every open auction past its end time and returns how
// many transitions were applied. This is the manual fallback for timers lost
// to scheduler failures.
func (s *Service) SweepExpired() (int, error) {
	now := time.Now()
	expired, err := s.db.ListExpiredOpenAuctions(now)
	if err != nil {
		return 0, err
	}

	log.Info().Int("count", len(expired)).Msg("sweeping expired auctions")

	closed := 0
	for _, a := range expired {
		_, changed, err := s.db.TransitionToClosed(a.AuctionID, now, true)
		if err != nil {
			log.Error().Err(err).Str("auction_id", a.AuctionID).Msg("failed to close expired auction")
			continue
		}
		if changed {
			if s.scheduler != nil {
				s.scheduler.Cancel(a.AuctionID)
			}
			closed++
		}
	}
	return closed, nil
}

// GinHandlers contains HTTP handlers for auction endpoints
type GinHandlers struct {
	service   *Service
	scheduler *CloseScheduler
}

// NewGinHandlers creates a new set of HTTP handlers for auction endpoints
func NewGinHandlers(service *Service, scheduler *CloseScheduler) *GinHandlers {
	return &GinHandlers{
		service:   service,
		scheduler: scheduler,
	}
}

// ListAuctionsHandler handles GET requests for auctions
// Optional query parameter: active=true restricts the list to open auctions
// currently inside their bidding window
func (h *GinHandlers) ListAuctionsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Query("active") == "true" {
			auctions, err := h.service.ListActiveAuctions()
			response.Handle(c, auctions, err)
			return
		}
		auctions, err := h.service.ListAuctions()
		response.Handle(c, auctions, err)
	}
}

// GetAuctionHandler handles GET requests for a single auction with its bids
// URL parameter: auction_id
func (h *GinHandlers) GetAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auction, err := h.service.GetAuction(c.Param("auction_id"))
		response.Handle(c, auction, err)
	}
}

// CreateAuctionHandler handles POST requests to open a new auction
// Requires the admin role
func (h *GinHandlers) CreateAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input CreateAuctionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		auction, err := h.service.CreateAuction(input)
		response.Handle(c, auction, err)
	}
}

// UpdateAuctionHandler handles PUT requests to edit an auction
// Requires the admin role; URL parameter: auction_id
func (h *GinHandlers) UpdateAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input UpdateAuctionInput
		if err := c.ShouldBindJSON(&input); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		auction, err := h.service.UpdateAuction(c.Param("auction_id"), input)
		response.Handle(c, auction, err)
	}
}

// CloseAuctionHandler handles POST requests for a manual close
// Requires the admin role; URL parameter: auction_id
func (h *GinHandlers) CloseAuctionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		auction, err := h.service.CloseAuction(c.Param("auction_id"))
		response.Handle(c, auction, err)
	}
}

// SweepExpiredHandler handles POST requests to close all expired open auctions
// Requires the admin role
func (h *GinHandlers) SweepExpiredHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		closed, err := h.service.SweepExpired()
		response.Handle(c, gin.H{"closed": closed}, err)
	}
}

// SchedulerInfoHandler handles GET requests for close timer registry state
// Requires the admin role
func (h *GinHandlers) SchedulerInfoHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		response.Handle(c, h.scheduler.Info(), nil)
	}
}
