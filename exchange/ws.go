package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"copyvault/models"
)

const defaultWSURL = "wss://api.hyperliquid.xyz/ws"

// AccountUpdateHandler receives live summaries as the exchange pushes them.
// Handlers run on the read loop's goroutine and must not block.
type AccountUpdateHandler func(summary models.AccountSummary)

// Feed is a reconnecting WebSocket subscription to live account updates for
// a set of watched accounts.
type Feed struct {
	url     string
	onEvent AccountUpdateHandler

	conn   *websocket.Conn
	connMu sync.Mutex

	watched   map[common.Address]bool
	watchedMu sync.RWMutex

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewFeed builds a feed. An empty url selects the production endpoint.
func NewFeed(url string, onEvent AccountUpdateHandler) *Feed {
	if url == "" {
		url = defaultWSURL
	}
	return &Feed{
		url:     url,
		onEvent: onEvent,
		watched: make(map[common.Address]bool),
	}
}

// Watch adds an account to the live subscription. Safe before or after Start.
func (f *Feed) Watch(account common.Address) {
	f.watchedMu.Lock()
	f.watched[account] = true
	f.watchedMu.Unlock()

	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		if err := f.sendSubscribe(account); err != nil {
			log.Printf("[ExchangeWS] Subscribe for %s failed: %v", account.Hex(), err)
		}
	}
}

// Start connects and begins delivering updates. Returns an error when the
// feed is already running or the first connection attempt fails outright.
// A stopped feed may be started again.
func (f *Feed) Start(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.running {
		return fmt.Errorf("exchange feed already running")
	}
	if err := f.connect(); err != nil {
		return fmt.Errorf("exchange feed connect: %w", err)
	}
	f.running = true
	f.stopCh = make(chan struct{})
	f.doneCh = make(chan struct{})
	go f.run(ctx, f.stopCh, f.doneCh)
	log.Printf("[ExchangeWS] Connected to %s", f.url)
	return nil
}

// Stop closes the connection and waits for the read loop to exit. Safe to
// call even if Start never ran, and safe to call twice.
func (f *Feed) Stop() {
	f.mu.Lock()
	if !f.running {
		f.mu.Unlock()
		return
	}
	f.running = false
	close(f.stopCh)
	done := f.doneCh
	f.mu.Unlock()

	f.connMu.Lock()
	if f.conn != nil {
		f.conn.Close()
	}
	f.connMu.Unlock()

	<-done
	log.Printf("[ExchangeWS] Stopped")
}

func (f *Feed) connect() error {
	conn, _, err := websocket.DefaultDialer.Dial(f.url, nil)
	if err != nil {
		return err
	}
	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	f.watchedMu.RLock()
	defer f.watchedMu.RUnlock()
	f.connMu.Lock()
	defer f.connMu.Unlock()
	for account := range f.watched {
		if err := f.sendSubscribe(account); err != nil {
			return err
		}
	}
	return nil
}

// sendSubscribe requires connMu held.
func (f *Feed) sendSubscribe(account common.Address) error {
	msg := map[string]interface{}{
		"method": "subscribe",
		"subscription": map[string]string{
			"type":    "accountSummary",
			"account": strings.ToLower(account.Hex()),
		},
	}
	return f.conn.WriteJSON(msg)
}

type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type wsAccountSummary struct {
	Account string `json:"account"`
	accountSummaryResponse
}

func (f *Feed) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		default:
		}

		f.connMu.Lock()
		conn := f.conn
		f.connMu.Unlock()

		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-stopCh:
				return
			case <-ctx.Done():
				return
			default:
			}
			log.Printf("[ExchangeWS] Read failed, reconnecting in %s: %v", backoff, err)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			if err := f.connect(); err != nil {
				log.Printf("[ExchangeWS] Reconnect failed: %v", err)
			}
			continue
		}
		backoff = time.Second
		f.dispatch(raw)
	}
}

func (f *Feed) dispatch(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.Channel != "accountSummary" {
		return
	}
	var update wsAccountSummary
	if err := json.Unmarshal(env.Data, &update); err != nil {
		log.Printf("[ExchangeWS] Bad account summary payload: %v", err)
		return
	}
	if !common.IsHexAddress(update.Account) {
		return
	}
	account := common.HexToAddress(update.Account)

	f.watchedMu.RLock()
	watched := f.watched[account]
	f.watchedMu.RUnlock()
	if !watched || f.onEvent == nil {
		return
	}

	accountValue, err := parseUSD(update.AccountValue)
	if err != nil {
		return
	}
	totalPnl, err := parseUSD(update.TotalPnl)
	if err != nil {
		return
	}
	marginUsed, _ := parseUSD(update.MarginUsed)
	available, _ := parseUSD(update.AvailableMargin)

	f.onEvent(models.AccountSummary{
		Account:         account,
		AccountValue:    accountValue,
		MarginUsed:      marginUsed,
		AvailableMargin: available,
		TotalPnl:        totalPnl,
		PositionCount:   update.PositionCount,
	})
}
