package contracts

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"copyvault/models"
)

// Typed decoding of contract tuple results lives here so the shape of every
// return value is validated at one boundary. Any mismatch surfaces as a
// TransactionFailed carrying the offending method name.

func decodeErr(method, field string) *Error {
	return newError(ErrTransactionFailed, "decode %s: unexpected type for %s (ABI mismatch?)", method, field)
}

func asBig(out []interface{}, i int, method, field string) (*big.Int, *Error) {
	if i >= len(out) {
		return nil, decodeErr(method, field)
	}
	v, ok := out[i].(*big.Int)
	if !ok || v == nil {
		return nil, decodeErr(method, field)
	}
	return v, nil
}

func asAddr(out []interface{}, i int, method, field string) (common.Address, *Error) {
	if i >= len(out) {
		return common.Address{}, decodeErr(method, field)
	}
	v, ok := out[i].(common.Address)
	if !ok {
		return common.Address{}, decodeErr(method, field)
	}
	return v, nil
}

func asString(out []interface{}, i int, method, field string) (string, *Error) {
	if i >= len(out) {
		return "", decodeErr(method, field)
	}
	v, ok := out[i].(string)
	if !ok {
		return "", decodeErr(method, field)
	}
	return v, nil
}

func asBool(out []interface{}, i int, method, field string) (bool, *Error) {
	if i >= len(out) {
		return false, decodeErr(method, field)
	}
	v, ok := out[i].(bool)
	if !ok {
		return false, decodeErr(method, field)
	}
	return v, nil
}

func asUint8(out []interface{}, i int, method, field string) (uint8, *Error) {
	if i >= len(out) {
		return 0, decodeErr(method, field)
	}
	v, ok := out[i].(uint8)
	if !ok {
		return 0, decodeErr(method, field)
	}
	return v, nil
}

func asBytes32(out []interface{}, i int, method, field string) ([32]byte, *Error) {
	if i >= len(out) {
		return [32]byte{}, decodeErr(method, field)
	}
	v, ok := out[i].([32]byte)
	if !ok {
		return [32]byte{}, decodeErr(method, field)
	}
	return v, nil
}

// bpsInt64 narrows a signed bps value; anything outside int64 is an ABI-level
// anomaly, clamp rather than wrap around.
func bpsInt64(v *big.Int) int64 {
	if v.IsInt64() {
		return v.Int64()
	}
	if v.Sign() < 0 {
		return -1 << 62
	}
	return 1 << 62
}

func unixTime(v *big.Int) time.Time {
	if v.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(v.Int64(), 0).UTC()
}

func decodeAgent(addr common.Address, out []interface{}) (*models.Agent, error) {
	const m = "getAgent"
	owner, err := asAddr(out, 0, m, "owner")
	if err != nil {
		return nil, err
	}
	name, err := asString(out, 1, m, "name")
	if err != nil {
		return nil, err
	}
	stake, err := asBig(out, 2, m, "stake")
	if err != nil {
		return nil, err
	}
	registeredAt, err := asBig(out, 3, m, "registeredAt")
	if err != nil {
		return nil, err
	}
	totalTrades, err := asBig(out, 4, m, "totalTrades")
	if err != nil {
		return nil, err
	}
	totalPnl, err := asBig(out, 5, m, "totalPnl")
	if err != nil {
		return nil, err
	}
	followers, err := asBig(out, 6, m, "followerCount")
	if err != nil {
		return nil, err
	}
	successes, err := asBig(out, 7, m, "successCount")
	if err != nil {
		return nil, err
	}
	active, err := asBool(out, 8, m, "active")
	if err != nil {
		return nil, err
	}
	return &models.Agent{
		Address:       addr,
		Owner:         owner,
		Name:          name,
		Stake:         stake,
		RegisteredAt:  unixTime(registeredAt),
		TotalTrades:   totalTrades.Uint64(),
		TotalPnl:      totalPnl,
		FollowerCount: followers.Uint64(),
		SuccessCount:  successes.Uint64(),
		Active:        active,
	}, nil
}

func decodePosition(id uint64, out []interface{}) (*models.Position, error) {
	const m = "getPosition"
	depositor, err := asAddr(out, 0, m, "depositor")
	if err != nil {
		return nil, err
	}
	agent, err := asAddr(out, 1, m, "agent")
	if err != nil {
		return nil, err
	}
	deposit, err := asBig(out, 2, m, "deposit")
	if err != nil {
		return nil, err
	}
	current, err := asBig(out, 3, m, "currentValue")
	if err != nil {
		return nil, err
	}
	minReturn, err := asBig(out, 4, m, "minReturnBps")
	if err != nil {
		return nil, err
	}
	startTime, err := asBig(out, 5, m, "startTime")
	if err != nil {
		return nil, err
	}
	lock, err := asBig(out, 6, m, "lockDuration")
	if err != nil {
		return nil, err
	}
	endTime, err := asBig(out, 7, m, "endTime")
	if err != nil {
		return nil, err
	}
	active, err := asBool(out, 8, m, "active")
	if err != nil {
		return nil, err
	}
	disputed, err := asBool(out, 9, m, "disputed")
	if err != nil {
		return nil, err
	}
	return &models.Position{
		ID:           id,
		Depositor:    depositor,
		Agent:        agent,
		Deposit:      deposit,
		CurrentValue: current,
		MinReturnBps: bpsInt64(minReturn),
		StartTime:    unixTime(startTime),
		LockDuration: time.Duration(lock.Int64()) * time.Second,
		EndTime:      unixTime(endTime),
		Active:       active,
		Disputed:     disputed,
	}, nil
}

func decodeDispute(id uint64, out []interface{}) (*models.Dispute, error) {
	const m = "getDispute"
	positionID, err := asBig(out, 0, m, "positionId")
	if err != nil {
		return nil, err
	}
	depositor, err := asAddr(out, 1, m, "depositor")
	if err != nil {
		return nil, err
	}
	agent, err := asAddr(out, 2, m, "agent")
	if err != nil {
		return nil, err
	}
	filedAt, err := asBig(out, 3, m, "filedAt")
	if err != nil {
		return nil, err
	}
	actual, err := asBig(out, 4, m, "actualReturnBps")
	if err != nil {
		return nil, err
	}
	expected, err := asBig(out, 5, m, "expectedReturnBps")
	if err != nil {
		return nil, err
	}
	resolved, err := asBool(out, 6, m, "resolved")
	if err != nil {
		return nil, err
	}
	won, err := asBool(out, 7, m, "depositorWon")
	if err != nil {
		return nil, err
	}
	return &models.Dispute{
		ID:           id,
		PositionID:   positionID.Uint64(),
		Depositor:    depositor,
		Agent:        agent,
		FiledAt:      unixTime(filedAt),
		ActualBps:    bpsInt64(actual),
		ExpectedBps:  bpsInt64(expected),
		Resolved:     resolved,
		DepositorWon: won,
	}, nil
}

func decodeVaultStats(out []interface{}) (*models.VaultStats, error) {
	const m = "getVaultStats"
	total, err := asBig(out, 0, m, "totalPositions")
	if err != nil {
		return nil, err
	}
	active, err := asBig(out, 1, m, "activePositions")
	if err != nil {
		return nil, err
	}
	deposits, err := asBig(out, 2, m, "totalDeposits")
	if err != nil {
		return nil, err
	}
	disputes, err := asBig(out, 3, m, "totalDisputes")
	if err != nil {
		return nil, err
	}
	return &models.VaultStats{
		TotalPositions:  total.Uint64(),
		ActivePositions: active.Uint64(),
		TotalDeposits:   deposits,
		TotalDisputes:   disputes.Uint64(),
	}, nil
}
