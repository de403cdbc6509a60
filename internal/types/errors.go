package types

import "errors"

// Domain errors shared across services. Handlers never inspect these directly;
// pkg/response maps them to envelope error codes.
var (
	ErrAuctionNotFound   = errors.New("auction not found")
	ErrBidNotFound       = errors.New("bid not found")
	ErrAuctionClosed     = errors.New("auction is no longer open")
	ErrBidTooLow         = errors.New("offer price is below the starting price")
	ErrInvalidIncrement  = errors.New("offer price must be a positive multiple of the bid step")
	ErrUnauthenticated   = errors.New("missing or invalid bidder identity")
	ErrStorageConflict   = errors.New("transaction failed, bid not recorded")
	ErrInvalidTransition = errors.New("invalid auction status transition")
	ErrInvalidWindow     = errors.New("auction end time must be after start time")
)
