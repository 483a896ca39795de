package exchange

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"

	"copyvault/models"
)

// wsTestServer upgrades every request and holds the connection open until
// the client closes it.
func wsTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestFeedStopBeforeStart(t *testing.T) {
	f := NewFeed("ws://127.0.0.1:1", nil)
	f.Stop()
	f.Stop()
}

func TestFeedStartConnectError(t *testing.T) {
	f := NewFeed("ws://127.0.0.1:1", nil)
	if err := f.Start(context.Background()); err == nil {
		t.Fatal("Start with unreachable endpoint should fail")
	}
	f.Stop()
}

func TestFeedRestart(t *testing.T) {
	srv := wsTestServer(t)
	defer srv.Close()

	f := NewFeed(wsURL(srv), nil)
	ctx := context.Background()

	if err := f.Start(ctx); err != nil {
		t.Fatalf("first Start: %v", err)
	}
	if err := f.Start(ctx); err == nil {
		t.Fatal("second Start while running should fail")
	}
	f.Stop()
	f.Stop()

	if err := f.Start(ctx); err != nil {
		t.Fatalf("restart after Stop: %v", err)
	}
	f.Stop()
}

func TestFeedConcurrentStop(t *testing.T) {
	srv := wsTestServer(t)
	defer srv.Close()

	f := NewFeed(wsURL(srv), nil)
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.Stop()
		}()
	}
	wg.Wait()
}

func TestFeedDispatchWatchedAccount(t *testing.T) {
	account := common.HexToAddress("0x1234567890abcdef1234567890abcdef12345678")

	got := make(chan models.AccountSummary, 1)
	f := NewFeed("", func(s models.AccountSummary) { got <- s })
	f.Watch(account)

	data, _ := json.Marshal(wsAccountSummary{
		Account: account.Hex(),
		accountSummaryResponse: accountSummaryResponse{
			AccountValue:  "1500.50",
			TotalPnl:      "-12.25",
			PositionCount: 3,
		},
	})
	raw, _ := json.Marshal(wsEnvelope{Channel: "accountSummary", Data: data})
	f.dispatch(raw)

	select {
	case s := <-got:
		if s.Account != account {
			t.Errorf("account = %s", s.Account.Hex())
		}
		if s.AccountValue.Int64() != 1_500_500_000 {
			t.Errorf("account value = %s", s.AccountValue)
		}
		if s.TotalPnl.Int64() != -12_250_000 {
			t.Errorf("pnl = %s", s.TotalPnl)
		}
		if s.PositionCount != 3 {
			t.Errorf("position count = %d", s.PositionCount)
		}
	case <-time.After(time.Second):
		t.Fatal("no update delivered")
	}
}

func TestFeedDispatchIgnoresUnwatched(t *testing.T) {
	called := false
	f := NewFeed("", func(models.AccountSummary) { called = true })

	data, _ := json.Marshal(wsAccountSummary{
		Account:                "0x1234567890abcdef1234567890abcdef12345678",
		accountSummaryResponse: accountSummaryResponse{AccountValue: "100"},
	})
	raw, _ := json.Marshal(wsEnvelope{Channel: "accountSummary", Data: data})
	f.dispatch(raw)

	if called {
		t.Error("handler ran for an unwatched account")
	}
}
