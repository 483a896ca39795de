package handlers

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"

	"copyvault/guard"
	"copyvault/models"
	"copyvault/oracle"
	"copyvault/storage"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticTiers struct {
	tier models.Tier
}

func (s *staticTiers) GetAgentTier(context.Context, common.Address) (*models.TierInfo, error) {
	return &models.TierInfo{Tier: s.tier}, nil
}

func (s *staticTiers) GetCopyLimits(context.Context, models.Tier) (*models.CopyLimits, error) {
	maxValue := new(big.Int).Mul(big.NewInt(10_000), big.NewInt(models.UsdScale))
	return &models.CopyLimits{MaxTotalValue: maxValue, MaxFollowers: 5, MaxLeverage: 3}, nil
}

func testRouter(h *Handler) *gin.Engine {
	r := gin.New()
	h.Register(r)
	return r
}

func TestHealth(t *testing.T) {
	r := testRouter(NewHandler(nil, nil, nil, nil, nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestDisabledBackendsReturn404(t *testing.T) {
	r := testRouter(NewHandler(nil, nil, nil, nil, nil))
	for _, path := range []string{
		"/api/oracle/metrics",
		"/api/history/cycles",
		"/api/history/resolutions",
		"/api/history/admissions",
	} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("%s status = %d, want 404", path, w.Code)
		}
	}
}

func TestListCycles(t *testing.T) {
	store := storage.NewMemory()
	store.SaveCycle(context.Background(), oracle.CycleStats{Scanned: 7, Changed: 2})

	r := testRouter(NewHandler(nil, nil, nil, nil, store))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/history/cycles", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Count  int                   `json:"count"`
		Cycles []storage.CycleRecord `json:"cycles"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 || len(resp.Cycles) != 1 || resp.Cycles[0].Scanned != 7 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestListAdmissionsRejectsBadAgent(t *testing.T) {
	r := testRouter(NewHandler(nil, nil, nil, nil, storage.NewMemory()))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/history/admissions?agent=bogus", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCheckAdmission(t *testing.T) {
	g := guard.New(&staticTiers{tier: models.TierBronze}, nil)
	r := testRouter(NewHandler(nil, g, nil, nil, nil))

	body := `{"agent":"0x1234567890abcdef1234567890abcdef12345678",` +
		`"copier":"0xabcdefabcdefabcdefabcdefabcdefabcdefabcd",` +
		`"value_usd":100,"leverage":2}`
	req := httptest.NewRequest("POST", "/api/admission/check", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var decision guard.Decision
	if err := json.Unmarshal(w.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decision.Allowed {
		t.Errorf("decision = %+v", decision)
	}
}

func TestCheckAdmissionRecordsDecision(t *testing.T) {
	store := storage.NewMemory()
	g := guard.New(&staticTiers{tier: models.TierBronze}, nil)
	r := testRouter(NewHandler(nil, g, nil, nil, store))

	body := `{"agent":"0x1234567890abcdef1234567890abcdef12345678",` +
		`"copier":"0xabcdefabcdefabcdefabcdefabcdefabcdefabcd",` +
		`"value_usd":100,"leverage":2}`
	req := httptest.NewRequest("POST", "/api/admission/check", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest("GET", "/api/history/admissions", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("admissions status = %d", w.Code)
	}
	var resp struct {
		Count      int                       `json:"count"`
		Admissions []storage.AdmissionRecord `json:"admissions"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Count != 1 {
		t.Fatalf("count = %d, want 1", resp.Count)
	}
	rec := resp.Admissions[0]
	if rec.Agent != "0x1234567890abcdef1234567890abcdef12345678" ||
		!rec.Allowed || rec.ValueUSD != 100 || rec.Tier != "bronze" {
		t.Errorf("recorded admission = %+v", rec)
	}
}

func TestCheckAdmissionDenied(t *testing.T) {
	g := guard.New(&staticTiers{tier: models.TierUnverified}, nil)
	r := testRouter(NewHandler(nil, g, nil, nil, nil))

	body := `{"agent":"0x1234567890abcdef1234567890abcdef12345678",` +
		`"copier":"0xabcdefabcdefabcdefabcdefabcdefabcdefabcd",` +
		`"value_usd":100}`
	req := httptest.NewRequest("POST", "/api/admission/check", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}

	var decision guard.Decision
	if err := json.Unmarshal(w.Body.Bytes(), &decision); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decision.Allowed || decision.Reason == "" {
		t.Errorf("decision = %+v", decision)
	}
}

func TestCheckAdmissionValidation(t *testing.T) {
	g := guard.New(&staticTiers{tier: models.TierBronze}, nil)
	r := testRouter(NewHandler(nil, g, nil, nil, nil))

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ``},
		{"missing fields", `{"agent":"0x1234567890abcdef1234567890abcdef12345678"}`},
		{"bad address", `{"agent":"vitalik","copier":"0xabcdefabcdefabcdefabcdefabcdefabcdefabcd","value_usd":100}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/admission/check", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", w.Code)
			}
		})
	}
}

func TestBadIDParam(t *testing.T) {
	r := testRouter(NewHandler(nil, nil, nil, nil, nil))
	for _, path := range []string{"/api/positions/abc", "/api/positions/0", "/api/disputes/-1"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Code != http.StatusBadRequest {
			t.Errorf("%s status = %d, want 400", path, w.Code)
		}
	}
}
