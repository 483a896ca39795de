package contracts

import (
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ContractAddresses holds the deployed addresses the gateway talks to.
type ContractAddresses struct {
	AgentRegistry    common.Address
	CopyVault        common.Address
	ReputationLimits common.Address
}

// NetworkConfig describes one target environment.
type NetworkConfig struct {
	Name        string
	ChainID     int64
	RPCURL      string
	ExplorerURL string
	Addresses   ContractAddresses
}

// Env var names consulted when an address is not set explicitly.
const (
	envAgentRegistry    = "COPYVAULT_AGENT_REGISTRY"
	envCopyVault        = "COPYVAULT_VAULT"
	envReputationLimits = "COPYVAULT_REPUTATION_LIMITS"
	envRPCURL           = "COPYVAULT_RPC_URL"
)

// ResolveNetwork applies the documented precedence to cfg: an explicitly set
// field wins, then the matching environment variable, then the zero default.
func ResolveNetwork(cfg NetworkConfig) NetworkConfig {
	if cfg.RPCURL == "" {
		cfg.RPCURL = os.Getenv(envRPCURL)
	}
	cfg.Addresses.AgentRegistry = resolveAddress(cfg.Addresses.AgentRegistry, envAgentRegistry)
	cfg.Addresses.CopyVault = resolveAddress(cfg.Addresses.CopyVault, envCopyVault)
	cfg.Addresses.ReputationLimits = resolveAddress(cfg.Addresses.ReputationLimits, envReputationLimits)
	return cfg
}

func resolveAddress(explicit common.Address, envKey string) common.Address {
	if explicit != (common.Address{}) {
		return explicit
	}
	raw := strings.TrimSpace(os.Getenv(envKey))
	if raw == "" || !common.IsHexAddress(raw) {
		return common.Address{}
	}
	return common.HexToAddress(raw)
}

// Validate enumerates every missing piece of the network config by name so an
// operator sees the full list at once instead of one failure per run.
func (c NetworkConfig) Validate() error {
	var missing []string
	if c.RPCURL == "" {
		missing = append(missing, "rpc url")
	}
	if c.ChainID == 0 {
		missing = append(missing, "chain id")
	}
	if c.Addresses.AgentRegistry == (common.Address{}) {
		missing = append(missing, "agent registry address")
	}
	if c.Addresses.CopyVault == (common.Address{}) {
		missing = append(missing, "copy vault address")
	}
	if c.Addresses.ReputationLimits == (common.Address{}) {
		missing = append(missing, "reputation limits address")
	}
	if len(missing) > 0 {
		return newError(ErrInvalidParameters, "network %q is missing: %s", c.Name, strings.Join(missing, ", "))
	}
	return nil
}

// ExplorerTxURL renders a transaction link for logs and operator tools.
func (c NetworkConfig) ExplorerTxURL(txHash string) string {
	if c.ExplorerURL == "" {
		return txHash
	}
	return fmt.Sprintf("%s/tx/%s", strings.TrimRight(c.ExplorerURL, "/"), txHash)
}
