// Package exchange reads account state from the external perpetual
// exchange's public API. Data here is untrusted and best-effort: callers must
// treat every read as fallible and never let one failure poison a batch.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"copyvault/models"
)

const defaultBaseURL = "https://api.hyperliquid.xyz"

// Client is a read-only exchange info client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds an info client. An empty baseURL selects the production
// endpoint.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type infoRequest struct {
	Type    string `json:"type"`
	Account string `json:"account"`
}

type accountSummaryResponse struct {
	AccountValue    string `json:"accountValue"`
	MarginUsed      string `json:"marginUsed"`
	AvailableMargin string `json:"availableMargin"`
	TotalPnl        string `json:"totalPnl"`
	PositionCount   uint64 `json:"positionCount"`
}

type assetPositionResponse struct {
	Asset         string `json:"asset"`
	Size          string `json:"size"`
	EntryPrice    string `json:"entryPrice"`
	MarkPrice     string `json:"markPrice"`
	UnrealizedPnl string `json:"unrealizedPnl"`
	Leverage      uint64 `json:"leverage"`
}

// AccountSummary fetches the margin summary for account.
func (c *Client) AccountSummary(ctx context.Context, account common.Address) (*models.AccountSummary, error) {
	var resp accountSummaryResponse
	if err := c.post(ctx, infoRequest{Type: "accountSummary", Account: account.Hex()}, &resp); err != nil {
		return nil, err
	}

	accountValue, err := parseUSD(resp.AccountValue)
	if err != nil {
		return nil, fmt.Errorf("account value: %w", err)
	}
	marginUsed, err := parseUSD(resp.MarginUsed)
	if err != nil {
		return nil, fmt.Errorf("margin used: %w", err)
	}
	available, err := parseUSD(resp.AvailableMargin)
	if err != nil {
		return nil, fmt.Errorf("available margin: %w", err)
	}
	totalPnl, err := parseUSD(resp.TotalPnl)
	if err != nil {
		return nil, fmt.Errorf("total pnl: %w", err)
	}
	return &models.AccountSummary{
		Account:         account,
		AccountValue:    accountValue,
		MarginUsed:      marginUsed,
		AvailableMargin: available,
		TotalPnl:        totalPnl,
		PositionCount:   resp.PositionCount,
	}, nil
}

// AssetPositions fetches per-asset position and price data for account.
func (c *Client) AssetPositions(ctx context.Context, account common.Address) ([]models.AssetPosition, error) {
	var resp []assetPositionResponse
	if err := c.post(ctx, infoRequest{Type: "assetPositions", Account: account.Hex()}, &resp); err != nil {
		return nil, err
	}

	positions := make([]models.AssetPosition, 0, len(resp))
	for _, p := range resp {
		size, err := parseUSD(p.Size)
		if err != nil {
			return nil, fmt.Errorf("size for %s: %w", p.Asset, err)
		}
		entry, err := parseUSD(p.EntryPrice)
		if err != nil {
			return nil, fmt.Errorf("entry price for %s: %w", p.Asset, err)
		}
		mark, err := parseUSD(p.MarkPrice)
		if err != nil {
			return nil, fmt.Errorf("mark price for %s: %w", p.Asset, err)
		}
		upnl, err := parseUSD(p.UnrealizedPnl)
		if err != nil {
			return nil, fmt.Errorf("unrealized pnl for %s: %w", p.Asset, err)
		}
		positions = append(positions, models.AssetPosition{
			Asset:         p.Asset,
			Size:          size,
			EntryPrice:    entry,
			MarkPrice:     mark,
			UnrealizedPnl: upnl,
			Leverage:      p.Leverage,
		})
	}
	return positions, nil
}

func (c *Client) post(ctx context.Context, payload infoRequest, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal info request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/info", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build info request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("exchange request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read exchange response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("exchange returned %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse exchange response: %w", err)
	}
	return nil
}

// parseUSD converts an exchange decimal string to integer micro-USD,
// truncating toward zero past six decimals.
func parseUSD(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return big.NewInt(0), nil
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return nil, fmt.Errorf("invalid decimal %q", s)
	}
	r.Mul(r, big.NewRat(models.UsdScale, 1))
	return new(big.Int).Quo(r.Num(), r.Denom()), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
