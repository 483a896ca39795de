package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"copyvault/contracts"
	"copyvault/exchange"
	"copyvault/models"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: no .env file found")
	}

	addrFlag := flag.String("agent", "", "agent address to inspect")
	infoURL := flag.String("info-url", "", "exchange info endpoint (default Hyperliquid mainnet)")
	flag.Parse()

	if *addrFlag == "" || !common.IsHexAddress(*addrFlag) {
		log.Fatal("usage: check_agent -agent 0x... [-info-url https://...]")
	}
	agent := common.HexToAddress(*addrFlag)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Read-only gateway; addresses and RPC come from COPYVAULT_* env vars
	gw, err := contracts.Dial(ctx, contracts.NetworkConfig{})
	if err != nil {
		log.Fatalf("Failed to connect gateway: %v", err)
	}

	rec, err := gw.GetAgent(ctx, agent)
	if err != nil {
		log.Fatalf("Failed to load agent: %v", err)
	}
	fmt.Printf("Agent:     %s (%s)\n", rec.Name, agent.Hex())
	fmt.Printf("Active:    %v\n", rec.Active)
	fmt.Printf("Stake:     %s\n", formatUSD(rec.Stake))
	fmt.Printf("Trades:    %d (%d successful)\n", rec.TotalTrades, rec.SuccessCount)
	fmt.Printf("Followers: %d\n", rec.FollowerCount)

	tier, err := gw.GetAgentTier(ctx, agent)
	if err != nil {
		log.Fatalf("Failed to load tier: %v", err)
	}
	fmt.Printf("Tier:      %s\n", tier.Tier)
	if tier.Tier.Verified() {
		limits, err := gw.GetCopyLimits(ctx, tier.Tier)
		if err != nil {
			log.Fatalf("Failed to load limits: %v", err)
		}
		fmt.Printf("Limits:    max value %s, max followers %d, max leverage %dx\n",
			formatUSD(limits.MaxTotalValue), limits.MaxFollowers, limits.MaxLeverage)
	}

	// Live exchange snapshot
	ex := exchange.NewClient(*infoURL)
	summary, err := ex.AccountSummary(ctx, agent)
	if err != nil {
		log.Printf("Exchange summary unavailable: %v", err)
		return
	}
	fmt.Printf("Exchange:  value %s, pnl %s, positions %d, pnl ratio %s bps\n",
		formatUSD(summary.AccountValue), formatUSD(summary.TotalPnl),
		summary.PositionCount, summary.PnlRatioBps().String())
}

// formatUSD renders a micro-USD amount as dollars. All vault and exchange
// amounts share the 6-decimal scale.
func formatUSD(v *big.Int) string {
	if v == nil {
		return "$0"
	}
	whole, frac := new(big.Int).QuoRem(v, big.NewInt(models.UsdScale), new(big.Int))
	return fmt.Sprintf("$%s.%06d", whole.String(), new(big.Int).Abs(frac).Int64())
}
