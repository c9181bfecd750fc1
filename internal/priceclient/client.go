// Package priceclient fetches daily OHLC bars from the Twelve Data API with
// rate limiting and retry, and adapts them to the history interface the
// prediction flow consumes.
package priceclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	platformhttp "github.com/seestox/predictor/internal/platform/http"
	"github.com/seestox/predictor/models"
)

// Client is a Twelve Data API client.
type Client struct {
	httpClient *platformhttp.Client
	baseURL    string
	apiKey     string
	logger     zerolog.Logger
}

// NewClient creates a new API client with rate limiting.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		httpClient: platformhttp.NewClient(platformhttp.Options{Timeout: timeout}),
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		logger:     log.With().Str("component", "price_client").Logger(),
	}
}

type timeSeriesResponse struct {
	Values []struct {
		Datetime string `json:"datetime"`
		Open     string `json:"open"`
		High     string `json:"high"`
		Low      string `json:"low"`
		Close    string `json:"close"`
		Volume   string `json:"volume"`
	} `json:"values"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// GetPriceHistory fetches daily candles for the period, oldest first.
func (c *Client) GetPriceHistory(ctx context.Context, symbol, period string) ([]models.Candle, error) {
	body, err := c.fetchTimeSeries(ctx, symbol, outputSizeForPeriod(period))
	if err != nil {
		return nil, err
	}
	return parseCandles(symbol, body)
}

// GetActualClose returns the first daily close strictly after the given day.
// ok=false means the next session has not closed yet; the caller retries on
// a later cycle.
func (c *Client) GetActualClose(ctx context.Context, symbol string, after time.Time) (float64, bool, error) {
	// A short window is enough: we only need the first trading day past the
	// prediction date, plus slack for weekends and holidays.
	body, err := c.fetchTimeSeries(ctx, symbol, 10)
	if err != nil {
		return 0, false, err
	}
	candles, err := parseCandles(symbol, body)
	if err != nil {
		return 0, false, err
	}

	cutoff := after.Format("2006-01-02")
	for _, candle := range candles {
		if candle.Date > cutoff {
			return candle.Close, true, nil
		}
	}
	return 0, false, nil
}

func (c *Client) fetchTimeSeries(ctx context.Context, symbol string, outputSize int) ([]byte, error) {
	endpoint := fmt.Sprintf(
		"%s/time_series?symbol=%s&interval=1day&outputsize=%d&apikey=%s",
		c.baseURL,
		url.QueryEscape(symbol),
		outputSize,
		c.apiKey,
	)

	c.logger.Debug().Str("symbol", symbol).Int("output_size", outputSize).Msg("fetching time series")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return body, nil
}

func parseCandles(symbol string, body []byte) ([]models.Candle, error) {
	var data timeSeriesResponse
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}
	if data.Status == "error" {
		return nil, &models.DataError{Symbol: symbol, Msg: data.Message}
	}
	if len(data.Values) == 0 {
		return nil, &models.DataError{Symbol: symbol, Msg: "empty data returned"}
	}

	// Sort candles by datetime (oldest first for proper calculations)
	sort.Slice(data.Values, func(i, j int) bool {
		return data.Values[i].Datetime < data.Values[j].Datetime
	})

	candles := make([]models.Candle, 0, len(data.Values))
	for _, v := range data.Values {
		open, err1 := strconv.ParseFloat(v.Open, 64)
		high, err2 := strconv.ParseFloat(v.High, 64)
		low, err3 := strconv.ParseFloat(v.Low, 64)
		closePrice, err4 := strconv.ParseFloat(v.Close, 64)
		if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
			continue
		}
		volume, _ := strconv.ParseInt(v.Volume, 10, 64)
		candles = append(candles, models.Candle{
			Date:   v.Datetime,
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: volume,
		})
	}
	if len(candles) == 0 {
		return nil, &models.DataError{Symbol: symbol, Msg: "no parsable candles"}
	}
	return candles, nil
}

// outputSizeForPeriod maps a history period label onto a daily bar count.
func outputSizeForPeriod(period string) int {
	switch strings.ToLower(strings.TrimSpace(period)) {
	case "1mo":
		return 22
	case "3mo":
		return 66
	case "1y":
		return 252
	case "2y":
		return 504
	default: // "6mo"
		return 126
	}
}
