package contracts

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// PerpInfoPrecompile is the read-only precompile exposing exchange account
// state to contracts and clients on the target chain.
var PerpInfoPrecompile = common.HexToAddress("0x0000000000000000000000000000000000000800")

const agentRegistryABI = `[
  {"type":"function","name":"registerAgent","stateMutability":"payable","inputs":[{"name":"name","type":"string"}],"outputs":[]},
  {"type":"function","name":"addStake","stateMutability":"payable","inputs":[],"outputs":[]},
  {"type":"function","name":"withdrawStake","stateMutability":"nonpayable","inputs":[{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"deactivateAgent","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"minimumStake","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"getAgent","stateMutability":"view","inputs":[{"name":"agent","type":"address"}],"outputs":[
    {"name":"owner","type":"address"},
    {"name":"name","type":"string"},
    {"name":"stake","type":"uint256"},
    {"name":"registeredAt","type":"uint256"},
    {"name":"totalTrades","type":"uint256"},
    {"name":"totalPnl","type":"int256"},
    {"name":"followerCount","type":"uint256"},
    {"name":"successCount","type":"uint256"},
    {"name":"active","type":"bool"}]},
  {"type":"event","name":"AgentRegistered","inputs":[
    {"name":"agent","type":"address","indexed":true},
    {"name":"name","type":"string","indexed":false},
    {"name":"stake","type":"uint256","indexed":false}]},
  {"type":"event","name":"StakeAdded","inputs":[
    {"name":"agent","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"StakeWithdrawn","inputs":[
    {"name":"agent","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"AgentDeactivated","inputs":[
    {"name":"agent","type":"address","indexed":true}]}
]`

const copyVaultABI = `[
  {"type":"function","name":"openPosition","stateMutability":"payable","inputs":[
    {"name":"agent","type":"address"},
    {"name":"minReturnBps","type":"int256"},
    {"name":"lockDuration","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"closePosition","stateMutability":"nonpayable","inputs":[{"name":"positionId","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"fileDispute","stateMutability":"payable","inputs":[{"name":"positionId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"resolveDispute","stateMutability":"nonpayable","inputs":[
    {"name":"disputeId","type":"uint256"},
    {"name":"depositorWins","type":"bool"}],"outputs":[]},
  {"type":"function","name":"updatePositionValues","stateMutability":"nonpayable","inputs":[
    {"name":"positionIds","type":"uint256[]"},
    {"name":"values","type":"uint256[]"}],"outputs":[]},
  {"type":"function","name":"getPosition","stateMutability":"view","inputs":[{"name":"positionId","type":"uint256"}],"outputs":[
    {"name":"depositor","type":"address"},
    {"name":"agent","type":"address"},
    {"name":"deposit","type":"uint256"},
    {"name":"currentValue","type":"uint256"},
    {"name":"minReturnBps","type":"int256"},
    {"name":"startTime","type":"uint256"},
    {"name":"lockDuration","type":"uint256"},
    {"name":"endTime","type":"uint256"},
    {"name":"active","type":"bool"},
    {"name":"disputed","type":"bool"}]},
  {"type":"function","name":"getDispute","stateMutability":"view","inputs":[{"name":"disputeId","type":"uint256"}],"outputs":[
    {"name":"positionId","type":"uint256"},
    {"name":"depositor","type":"address"},
    {"name":"agent","type":"address"},
    {"name":"filedAt","type":"uint256"},
    {"name":"actualReturnBps","type":"int256"},
    {"name":"expectedReturnBps","type":"int256"},
    {"name":"resolved","type":"bool"},
    {"name":"depositorWon","type":"bool"}]},
  {"type":"function","name":"getVaultStats","stateMutability":"view","inputs":[],"outputs":[
    {"name":"totalPositions","type":"uint256"},
    {"name":"activePositions","type":"uint256"},
    {"name":"totalDeposits","type":"uint256"},
    {"name":"totalDisputes","type":"uint256"}]},
  {"type":"function","name":"positionCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"disputeCount","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"minimumDeposit","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"disputeFee","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"event","name":"PositionOpened","inputs":[
    {"name":"positionId","type":"uint256","indexed":true},
    {"name":"depositor","type":"address","indexed":true},
    {"name":"agent","type":"address","indexed":true},
    {"name":"deposit","type":"uint256","indexed":false},
    {"name":"minReturnBps","type":"int256","indexed":false},
    {"name":"lockDuration","type":"uint256","indexed":false}]},
  {"type":"event","name":"PositionClosed","inputs":[
    {"name":"positionId","type":"uint256","indexed":true},
    {"name":"depositor","type":"address","indexed":true},
    {"name":"finalValue","type":"uint256","indexed":false}]},
  {"type":"event","name":"PositionValueUpdated","inputs":[
    {"name":"positionId","type":"uint256","indexed":true},
    {"name":"newValue","type":"uint256","indexed":false}]},
  {"type":"event","name":"DisputeFiled","inputs":[
    {"name":"disputeId","type":"uint256","indexed":true},
    {"name":"positionId","type":"uint256","indexed":true},
    {"name":"depositor","type":"address","indexed":true}]},
  {"type":"event","name":"DisputeResolved","inputs":[
    {"name":"disputeId","type":"uint256","indexed":true},
    {"name":"positionId","type":"uint256","indexed":true},
    {"name":"depositorWon","type":"bool","indexed":false}]}
]`

const reputationLimitsABI = `[
  {"type":"function","name":"getAgentTier","stateMutability":"view","inputs":[{"name":"agent","type":"address"}],"outputs":[
    {"name":"tier","type":"uint8"},
    {"name":"verifiedAt","type":"uint256"},
    {"name":"commitment","type":"bytes32"},
    {"name":"threshold","type":"uint256"}]},
  {"type":"function","name":"getCopyLimits","stateMutability":"view","inputs":[{"name":"tier","type":"uint8"}],"outputs":[
    {"name":"maxTotalValue","type":"uint256"},
    {"name":"maxFollowers","type":"uint256"},
    {"name":"maxLeverage","type":"uint256"}]},
  {"type":"function","name":"canAcceptDeposit","stateMutability":"view","inputs":[
    {"name":"agent","type":"address"},
    {"name":"currentAum","type":"uint256"},
    {"name":"currentFollowers","type":"uint256"},
    {"name":"newDeposit","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"proveReputation","stateMutability":"nonpayable","inputs":[
    {"name":"tier","type":"uint8"},
    {"name":"commitment","type":"bytes32"},
    {"name":"proof","type":"bytes"}],"outputs":[]},
  {"type":"event","name":"TierVerified","inputs":[
    {"name":"agent","type":"address","indexed":true},
    {"name":"tier","type":"uint8","indexed":false},
    {"name":"commitment","type":"bytes32","indexed":false}]}
]`

// Parsed ABIs, shared with the events package for log decoding.
var (
	RegistryABI   = mustABI(agentRegistryABI)
	VaultABI      = mustABI(copyVaultABI)
	ReputationABI = mustABI(reputationLimitsABI)
)

func mustABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("contracts: bad embedded ABI: " + err.Error())
	}
	return parsed
}
