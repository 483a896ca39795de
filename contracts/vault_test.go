package contracts

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func TestOpenPositionValidation(t *testing.T) {
	agent := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	deposit := big.NewInt(1_000_000)

	tests := []struct {
		name     string
		agent    common.Address
		bps      int64
		lock     uint64
		deposit  *big.Int
		wantCode Code
	}{
		{"zero agent", common.Address{}, 500, MinLockSeconds, deposit, ErrInvalidAddress},
		{"bps too low", agent, -10001, MinLockSeconds, deposit, ErrInvalidParameters},
		{"bps too high", agent, 10001, MinLockSeconds, deposit, ErrInvalidParameters},
		{"lock too short", agent, 500, MinLockSeconds - 1, deposit, ErrInvalidParameters},
		{"lock too long", agent, 500, MaxLockSeconds + 1, deposit, ErrInvalidParameters},
		{"nil deposit", agent, 500, MinLockSeconds, nil, ErrInsufficientDeposit},
		{"zero deposit", agent, 500, MinLockSeconds, big.NewInt(0), ErrInsufficientDeposit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			g := testGateway(t, b)
			_, err := g.OpenPosition(context.Background(), tt.agent, tt.bps, tt.lock, tt.deposit)
			if CodeOf(err) != tt.wantCode {
				t.Errorf("code = %s, want %s", CodeOf(err), tt.wantCode)
			}
			if b.sendCalls != 0 {
				t.Errorf("sendCalls = %d, want 0", b.sendCalls)
			}
		})
	}
}

func TestOpenPositionBoundaryValues(t *testing.T) {
	agent := common.HexToAddress("0x00000000000000000000000000000000000000bb")
	vault := testNetwork().Addresses.CopyVault

	b := newFakeBackend()
	b.callFn = func(ethereum.CallMsg) ([]byte, error) {
		return packOutputs(t, "vault", "minimumDeposit", big.NewInt(1)), nil
	}
	b.logs = []*types.Log{{
		Address: vault,
		Topics: []common.Hash{
			VaultABI.Events["PositionOpened"].ID,
			common.BigToHash(big.NewInt(17)),
			common.Hash{},
			common.Hash{},
		},
	}}
	g := testGateway(t, b)

	// Both bps extremes and both lock extremes are legal.
	for _, bps := range []int64{MinReturnBpsBound, MaxReturnBpsBound} {
		res, err := g.OpenPosition(context.Background(), agent, bps, MinLockSeconds, big.NewInt(100))
		if err != nil {
			t.Fatalf("OpenPosition(bps=%d): %v", bps, err)
		}
		if res.PositionID != 17 {
			t.Errorf("PositionID = %d, want 17", res.PositionID)
		}
	}
	if _, err := g.OpenPosition(context.Background(), agent, 0, MaxLockSeconds, big.NewInt(100)); err != nil {
		t.Fatalf("OpenPosition(max lock): %v", err)
	}
}

func TestOpenPositionMissingEvent(t *testing.T) {
	agent := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	b := newFakeBackend()
	b.callFn = func(ethereum.CallMsg) ([]byte, error) {
		return packOutputs(t, "vault", "minimumDeposit", big.NewInt(1)), nil
	}
	g := testGateway(t, b)

	_, err := g.OpenPosition(context.Background(), agent, 500, MinLockSeconds, big.NewInt(100))
	if CodeOf(err) != ErrTransactionFailed {
		t.Fatalf("code = %s, want %s", CodeOf(err), ErrTransactionFailed)
	}
	// The transaction was mined; the decode failure must not trigger a resend.
	if b.sendCalls != 1 {
		t.Errorf("sendCalls = %d, want 1", b.sendCalls)
	}
}

func TestUpdatePositionValuesValidation(t *testing.T) {
	tests := []struct {
		name   string
		ids    []uint64
		values []*big.Int
	}{
		{"empty", nil, nil},
		{"length mismatch", []uint64{1, 2}, []*big.Int{big.NewInt(1)}},
		{"nil value", []uint64{1}, []*big.Int{nil}},
		{"negative value", []uint64{1}, []*big.Int{big.NewInt(-5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newFakeBackend()
			g := testGateway(t, b)
			_, err := g.UpdatePositionValues(context.Background(), tt.ids, tt.values)
			if CodeOf(err) != ErrInvalidParameters {
				t.Errorf("code = %s, want %s", CodeOf(err), ErrInvalidParameters)
			}
			if b.sendCalls != 0 {
				t.Errorf("sendCalls = %d, want 0", b.sendCalls)
			}
		})
	}
}

func TestUpdatePositionValuesZeroAllowed(t *testing.T) {
	b := newFakeBackend()
	g := testGateway(t, b)

	if _, err := g.UpdatePositionValues(context.Background(), []uint64{3}, []*big.Int{big.NewInt(0)}); err != nil {
		t.Fatalf("UpdatePositionValues: %v", err)
	}
	if b.sendCalls != 1 {
		t.Errorf("sendCalls = %d, want 1", b.sendCalls)
	}
}

func TestFileDisputeExtractsID(t *testing.T) {
	vault := testNetwork().Addresses.CopyVault

	b := newFakeBackend()
	b.callFn = func(ethereum.CallMsg) ([]byte, error) {
		return packOutputs(t, "vault", "disputeFee", big.NewInt(250)), nil
	}
	b.logs = []*types.Log{{
		Address: vault,
		Topics: []common.Hash{
			VaultABI.Events["DisputeFiled"].ID,
			common.BigToHash(big.NewInt(4)),
			common.BigToHash(big.NewInt(9)),
			common.Hash{},
		},
	}}
	g := testGateway(t, b)

	res, err := g.FileDispute(context.Background(), 9)
	if err != nil {
		t.Fatalf("FileDispute: %v", err)
	}
	if res.DisputeID != 4 {
		t.Errorf("DisputeID = %d, want 4", res.DisputeID)
	}
	if res.FeePaid.Int64() != 250 {
		t.Errorf("FeePaid = %s, want 250", res.FeePaid)
	}
}

func TestGetDisputeDecode(t *testing.T) {
	depositor := common.HexToAddress("0x00000000000000000000000000000000000000cc")
	agent := common.HexToAddress("0x00000000000000000000000000000000000000dd")

	b := newFakeBackend()
	b.callFn = func(ethereum.CallMsg) ([]byte, error) {
		return packOutputs(t, "vault", "getDispute",
			big.NewInt(12), depositor, agent, big.NewInt(1_700_000_000),
			big.NewInt(-150), big.NewInt(200), false, false), nil
	}
	g := testGateway(t, b)

	d, err := g.GetDispute(context.Background(), 3)
	if err != nil {
		t.Fatalf("GetDispute: %v", err)
	}
	if d.ID != 3 || d.PositionID != 12 {
		t.Errorf("ids = %d/%d", d.ID, d.PositionID)
	}
	if d.ActualBps != -150 || d.ExpectedBps != 200 {
		t.Errorf("bps = %d/%d", d.ActualBps, d.ExpectedBps)
	}
	if d.Resolved {
		t.Error("expected unresolved")
	}
}

func TestGetCopyLimitsUnverifiedIsLocal(t *testing.T) {
	b := newFakeBackend()
	g := testGateway(t, b)

	limits, err := g.GetCopyLimits(context.Background(), 0)
	if err != nil {
		t.Fatalf("GetCopyLimits: %v", err)
	}
	if limits.MaxTotalValue.Sign() != 0 || limits.MaxFollowers != 0 || limits.MaxLeverage != 0 {
		t.Errorf("unverified limits not zero: %+v", limits)
	}
	if b.calls != 0 {
		t.Errorf("calls = %d, want 0", b.calls)
	}
}

func TestProveReputationValidation(t *testing.T) {
	b := newFakeBackend()
	g := testGateway(t, b)

	if _, err := g.ProveReputation(context.Background(), 0, [32]byte{}, []byte{1}); CodeOf(err) != ErrInvalidParameters {
		t.Errorf("unverified tier: code = %s", CodeOf(err))
	}
	if _, err := g.ProveReputation(context.Background(), 2, [32]byte{}, nil); CodeOf(err) != ErrInvalidParameters {
		t.Errorf("empty proof: code = %s", CodeOf(err))
	}
	if b.sendCalls != 0 {
		t.Errorf("sendCalls = %d, want 0", b.sendCalls)
	}
}
