package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/lelangid/lelang-api/internal/auction"
	"github.com/lelangid/lelang-api/internal/auth"
	"github.com/lelangid/lelang-api/internal/bidding"
	"github.com/lelangid/lelang-api/internal/database"
	"github.com/lelangid/lelang-api/internal/types"
	"github.com/lelangid/lelang-api/internal/winner"
	"github.com/lelangid/lelang-api/pkg/middleware"
)

const (
	numBidders      = 8
	bidsPerBidder   = 20
	startingPrice   = int64(1000)
	auctionDuration = 30 * time.Second
	serverAddress   = "http://localhost:8081"
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	mu         sync.Mutex
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// addFailure records a failed call for the route
func (rs *routeStats) addFailure() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failures++
}

// calculate computes min, max, mean, median, 95th and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))
	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// simulationClient handles HTTP communication with the auction API
type simulationClient struct {
	baseURL string
	client  *http.Client
	stats   map[string]*routeStats
}

func newSimulationClient() *simulationClient {
	return &simulationClient{
		baseURL: serverAddress,
		client:  &http.Client{Timeout: 10 * time.Second},
		stats: map[string]*routeStats{
			"auth":    {name: "Authentication"},
			"create":  {name: "Create Auction"},
			"bid":     {name: "Submit Bid"},
			"get":     {name: "Get Auction"},
			"winner":  {name: "Declare Winner"},
			"lastbid": {name: "My Last Bid"},
		},
	}
}

// authenticate exchanges API credentials for a JWT token
func (sc *simulationClient) authenticate(apiKey, apiSecret string) (string, error) {
	start := time.Now()
	defer func() {
		sc.stats["auth"].addDuration(time.Since(start))
	}()

	body, err := json.Marshal(auth.Credentials{APIKey: apiKey, APISecret: apiSecret})
	if err != nil {
		return "", err
	}

	resp, err := sc.client.Post(
		fmt.Sprintf("%s/api/v1/auth/token", sc.baseURL),
		"application/json",
		bytes.NewBuffer(body),
	)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("authentication failed with status: %d", resp.StatusCode)
	}

	var result struct {
		Data auth.TokenResponse `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}

	return result.Data.Token, nil
}

// do sends an authenticated request and decodes the envelope data payload
func (sc *simulationClient) do(method, path, token string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s failed with status %d: %s", method, path, resp.StatusCode, string(respBody))
	}

	if out == nil {
		return nil
	}
	envelope := struct {
		Success bool        `json:"success"`
		Data    interface{} `json:"data"`
	}{Data: out}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
	}
	return nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 100))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 100))

	for _, stats := range sc.stats {
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Millisecond),
			max.Round(time.Millisecond),
			mean.Round(time.Millisecond),
			median.Round(time.Millisecond),
			p95.Round(time.Millisecond),
			p99.Round(time.Millisecond))
	}
	fmt.Println(strings.Repeat("-", 100))
}

// main runs the auction simulation: one auction, many concurrent bidders, a
// winner declaration at the end, plus a consistency check of the final price.
func main() {
	// Start the server in a goroutine
	go func() {
		if err := startServer(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for server to start
	time.Sleep(2 * time.Second)

	sc := newSimulationClient()

	adminToken, err := sc.authenticate(auth.TestAdminKey, auth.TestAdminSecret)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to authenticate admin")
	}

	bidderTokens := make(map[string]string, numBidders)
	for i := 0; i < numBidders; i++ {
		key := fmt.Sprintf("bidder-%d", i)
		token, err := sc.authenticate(key, key+"-secret")
		if err != nil {
			log.Fatal().Err(err).Str("bidder", key).Msg("Failed to authenticate bidder")
		}
		bidderTokens[key] = token
	}

	// Create the auction under load
	start := time.Now()
	var created types.Auction
	err = sc.do("POST", "/api/v1/internal/auctions", adminToken, auction.CreateAuctionInput{
		Title:         "Simulated produce auction",
		ProductID:     "PRD_simulation",
		StartingPrice: startingPrice,
		TotalStock:    100,
		StartTime:     time.Now(),
		EndTime:       time.Now().Add(auctionDuration),
	}, &created)
	sc.stats["create"].addDuration(time.Since(start))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create auction")
	}
	log.Info().Str("auction_id", created.AuctionID).Msg("Auction created")

	// Concurrent bidders: mostly valid offers, a few deliberately invalid to
	// exercise the rejection paths
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		accepted  int
		rejected  int
		lastOffer = make(map[string]int64)
	)
	for bidder, token := range bidderTokens {
		wg.Add(1)
		go func(bidder, token string) {
			defer wg.Done()
			for i := 0; i < bidsPerBidder; i++ {
				offer := startingPrice + types.BidStep*int64(rand.Intn(40))
				invalid := rand.Intn(10) == 0
				if invalid {
					offer += 37 // breaks the increment rule
				}

				start := time.Now()
				var bid types.Bid
				err := sc.do("POST",
					fmt.Sprintf("/api/v1/auctions/%s/bids", created.AuctionID),
					token, map[string]int64{"offer_price": offer}, &bid)
				if err != nil {
					sc.stats["bid"].addFailure()
					mu.Lock()
					rejected++
					mu.Unlock()
					if !invalid {
						log.Error().Err(err).Str("bidder", bidder).Msg("Unexpected bid rejection")
					}
				} else {
					sc.stats["bid"].addDuration(time.Since(start))
					mu.Lock()
					accepted++
					lastOffer[bidder] = offer
					mu.Unlock()
				}

				time.Sleep(time.Duration(rand.Intn(100)) * time.Millisecond)
			}
		}(bidder, token)
	}
	wg.Wait()

	// Consistency check: the running final price must equal the highest of
	// each bidder's last accepted offer
	var expected int64 = startingPrice
	for _, offer := range lastOffer {
		if offer > expected {
			expected = offer
		}
	}

	start = time.Now()
	var settled types.Auction
	if err := sc.do("GET", "/api/v1/auctions/"+created.AuctionID, adminToken, nil, &settled); err != nil {
		log.Fatal().Err(err).Msg("Failed to fetch auction")
	}
	sc.stats["get"].addDuration(time.Since(start))

	if settled.FinalPrice == nil || *settled.FinalPrice != expected {
		log.Error().
			Int64("expected", expected).
			Interface("final_price", settled.FinalPrice).
			Msg("CONSISTENCY FAILURE: final price does not match last-bid-per-bidder maximum")
	} else {
		log.Info().Int64("final_price", *settled.FinalPrice).Msg("Final price consistent")
	}

	// Declare the highest bid the winner
	if len(settled.Bids) > 0 {
		top := settled.Bids[0]
		start = time.Now()
		var winningBid types.Bid
		err := sc.do("POST", "/api/v1/internal/bids/"+top.BidID+"/winner", adminToken, nil, &winningBid)
		sc.stats["winner"].addDuration(time.Since(start))
		if err != nil {
			log.Error().Err(err).Msg("Failed to declare winner")
		} else {
			log.Info().
				Str("bid_id", winningBid.BidID).
				Str("bidder_id", winningBid.BidderID).
				Int64("offer_price", winningBid.OfferPrice).
				Msg("Winner declared")
		}
	}

	// Each bidder checks their own last bid
	for bidder, token := range bidderTokens {
		start = time.Now()
		var last types.Bid
		err := sc.do("GET",
			fmt.Sprintf("/api/v1/auctions/%s/bids/mine", created.AuctionID),
			token, nil, &last)
		if err != nil {
			sc.stats["lastbid"].addFailure()
			continue
		}
		sc.stats["lastbid"].addDuration(time.Since(start))
		mu.Lock()
		want, ok := lastOffer[bidder]
		mu.Unlock()
		if ok && last.OfferPrice != want {
			log.Error().
				Str("bidder", bidder).
				Int64("got", last.OfferPrice).
				Int64("want", want).
				Msg("CONSISTENCY FAILURE: last bid mismatch")
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("AUCTION SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf(`
Bids accepted:   %d
Bids rejected:   %d
Final price:     %d
Expected price:  %d
`, accepted, rejected, derefPrice(settled.FinalPrice), expected)

	sc.printPerformanceStats()
}

func derefPrice(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

// startServer initializes and starts the auction API server on an isolated
// in-memory database, mirroring the production wiring in cmd/server.
func startServer() error {
	db, err := database.NewTestDatabase()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	locks := database.NewKeyedLock()

	authService := auth.NewService(middleware.JWTSecret())
	authService.RegisterCredentials(auth.TestAdminKey, auth.TestAdminSecret, auth.RoleAdmin)
	for i := 0; i < numBidders; i++ {
		key := fmt.Sprintf("bidder-%d", i)
		authService.RegisterCredentials(key, key+"-secret", auth.RolePembeli)
	}

	auctionService := auction.NewService(db, locks)
	scheduler := auction.NewCloseScheduler(auctionService, auctionService.GetDB())
	auctionService.AttachScheduler(scheduler)

	biddingService := bidding.NewService(db, locks)
	winnerService := winner.NewService(db, locks, scheduler)

	gin.SetMode(gin.ReleaseMode)
	router := gin.Default()

	authHandlers := auth.NewGinHandlers(authService)
	auctionHandlers := auction.NewGinHandlers(auctionService, scheduler)
	biddingHandlers := bidding.NewGinHandlers(biddingService)
	winnerHandlers := winner.NewGinHandlers(winnerService)

	v1 := router.Group("/api/v1")
	{
		v1.POST("/auth/token", authHandlers.GenerateTokenHandler())

		v1.GET("/auctions/:auction_id", auctionHandlers.GetAuctionHandler())
		v1.GET("/auctions/:auction_id/bids", biddingHandlers.ListBidsHandler())

		bidder := v1.Group("")
		bidder.Use(middleware.JWTAuth())
		{
			bidder.POST("/auctions/:auction_id/bids", biddingHandlers.SubmitBidHandler())
			bidder.GET("/auctions/:auction_id/bids/mine", biddingHandlers.MyLastBidHandler())
		}

		internal := v1.Group("/internal")
		internal.Use(middleware.JWTAuth(), middleware.RequireRole(auth.RoleAdmin))
		{
			internal.POST("/auctions", auctionHandlers.CreateAuctionHandler())
			internal.POST("/bids/:bid_id/winner", winnerHandlers.DeclareWinnerHandler())
		}
	}

	return router.Run(":8081")
}
