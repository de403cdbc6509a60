package types

// BidHistorySummary aggregates a bidder's record across finished auctions.
type BidHistorySummary struct {
	TotalAuctions int64 `json:"total_auctions"`
	TotalWon      int64 `json:"total_won"`
	TotalLost     int64 `json:"total_lost"`
}

// BidHistoryEntry is the bidder's latest bid on one finished auction, paired
// with the price the auction actually settled at.
type BidHistoryEntry struct {
	BidID        string   `json:"bid_id"`
	Auction      *Auction `json:"auction"`
	OfferPrice   int64    `json:"offer_price"`
	WinningPrice *int64   `json:"winning_price"`
	Won          bool     `json:"won"`
}

// BidHistory is the response payload for the bid history endpoint.
type BidHistory struct {
	Summary BidHistorySummary `json:"summary"`
	Entries []BidHistoryEntry `json:"entries"`
}

// SchedulerInfo reports the close scheduler's in-memory registry state.
type SchedulerInfo struct {
	ScheduledCount    int      `json:"scheduled_count"`
	ScheduledAuctions []string `json:"scheduled_auctions"`
}
