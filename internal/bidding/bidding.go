package bidding

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/lelangid/lelang-api/internal/database"
	"github.com/lelangid/lelang-api/internal/types"
	"github.com/lelangid/lelang-api/pkg/response"
)

// Service implements the bid acceptance protocol and bid queries
type Service struct {
	db *Database
}

// NewService creates a new bidding service with the given database connection.
// The keyed lock must be shared with the auction and winner services.
func NewService(gormDB *gorm.DB, locks *database.KeyedLock) *Service {
	return &Service{
		db: NewDatabase(gormDB, locks),
	}
}

// SubmitBid validates and records a bid against an open auction. Acceptance
// and the final price recomputation commit atomically; a failure anywhere
// rolls the whole attempt back and the caller must retry explicitly.
func (s *Service) SubmitBid(auctionID, bidderID string, offerPrice int64) (*types.Bid, error) {
	if bidderID == "" {
		return nil, types.ErrUnauthenticated
	}

	bid := &types.Bid{
		BidID:      "BID_" + uuid.New().String(),
		AuctionID:  auctionID,
		BidderID:   bidderID,
		OfferPrice: offerPrice,
		IsWinner:   false,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}

	if err := s.db.CreateBidWithRepricing(bid); err != nil {
		return nil, err
	}

	log.Info().
		Str("bid_id", bid.BidID).
		Str("auction_id", auctionID).
		Str("bidder_id", bidderID).
		Int64("offer_price", offerPrice).
		Msg("bid accepted")

	return bid, nil
}

// ListBids returns all bids on an auction, highest offer first.
func (s *Service) ListBids(auctionID string) ([]types.Bid, error) {
	return s.db.ListBidsForAuction(auctionID)
}

// LastBid returns the caller's most recent bid on an auction.
func (s *Service) LastBid(auctionID, bidderID string) (*types.Bid, error) {
	if bidderID == "" {
		return nil, types.ErrUnauthenticated
	}
	return s.db.GetLastBid(auctionID, bidderID)
}

// History builds the bidder's record across finished auctions: their latest
// bid on each, the price the auction settled at, and won/lost totals. The
// summary counts are all-time; only the entry list honours the limit.
func (s *Service) History(bidderID string, limit int) (*types.BidHistory, error) {
	if bidderID == "" {
		return nil, types.ErrUnauthenticated
	}

	totalAuctions, err := s.db.CountFinishedAuctions(bidderID)
	if err != nil {
		return nil, err
	}
	totalWon, err := s.db.CountWonAuctions(bidderID)
	if err != nil {
		return nil, err
	}

	bids, err := s.db.ListLatestFinishedBids(bidderID, limit)
	if err != nil {
		return nil, err
	}

	entries := make([]types.BidHistoryEntry, 0, len(bids))
	for _, bid := range bids {
		entry := types.BidHistoryEntry{
			BidID:      bid.BidID,
			Auction:    bid.Auction,
			OfferPrice: bid.OfferPrice,
		}

		winning, err := s.db.GetWinningBid(bid.AuctionID)
		if err != nil {
			return nil, err
		}
		if winning != nil {
			entry.WinningPrice = &winning.OfferPrice
			entry.Won = winning.BidderID == bidderID
		} else if bid.Auction != nil {
			// No winner declared; fall back to the frozen final price.
			entry.WinningPrice = bid.Auction.FinalPrice
		}

		entries = append(entries, entry)
	}

	return &types.BidHistory{
		Summary: types.BidHistorySummary{
			TotalAuctions: totalAuctions,
			TotalWon:      totalWon,
			TotalLost:     totalAuctions - totalWon,
		},
		Entries: entries,
	}, nil
}

// GinHandlers contains HTTP handlers for bidding endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for bidding endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// submitBidRequest is the request body for bid submission
type submitBidRequest struct {
	OfferPrice int64 `json:"offer_price" binding:"required"`
}

// SubmitBidHandler handles POST requests to place a bid on an auction
// Requires a valid JWT token; URL parameter: auction_id
func (h *GinHandlers) SubmitBidHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req submitBidRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		bid, err := h.service.SubmitBid(c.Param("auction_id"), c.GetString("bidderID"), req.OfferPrice)
		response.Handle(c, bid, err)
	}
}

// ListBidsHandler handles GET requests for all bids on an auction
// URL parameter: auction_id
func (h *GinHandlers) ListBidsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bids, err := h.service.ListBids(c.Param("auction_id"))
		response.Handle(c, bids, err)
	}
}

// MyLastBidHandler handles GET requests for the caller's latest bid on an auction
// Requires a valid JWT token; URL parameter: auction_id
func (h *GinHandlers) MyLastBidHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		bid, err := h.service.LastBid(c.Param("auction_id"), c.GetString("bidderID"))
		response.Handle(c, bid, err)
	}
}

// HistoryHandler handles GET requests for the caller's finished-auction record
// Requires a valid JWT token; optional query parameter: limit (default 50)
func (h *GinHandlers) HistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 50
		if raw := c.Query("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 {
				response.BadRequest(c, "limit must be a positive integer")
				return
			}
			limit = parsed
		}

		history, err := h.service.History(c.GetString("bidderID"), limit)
		response.Handle(c, history, err)
	}
}
