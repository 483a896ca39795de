package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"copyvault/contracts"
	"copyvault/exchange"
	"copyvault/oracle"
)

func main() {
	// Load .env
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: no .env file found")
	}

	idFlag := flag.Uint64("dispute", 0, "dispute ID to evaluate")
	submit := flag.Bool("submit", false, "submit the verdict on-chain (requires COPYVAULT_SIGNER_KEY)")
	flag.Parse()

	if *idFlag == 0 {
		log.Fatal("usage: resolve_dispute -dispute N [-submit]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	var opts []contracts.Option
	if key := os.Getenv("COPYVAULT_SIGNER_KEY"); key != "" {
		opts = append(opts, contracts.WithSigner(key))
	} else if *submit {
		log.Fatal("COPYVAULT_SIGNER_KEY required with -submit")
	}

	gw, err := contracts.Dial(ctx, contracts.NetworkConfig{}, opts...)
	if err != nil {
		log.Fatalf("Failed to connect gateway: %v", err)
	}

	o := oracle.New(gw, exchange.NewClient(""), oracle.Config{})

	ev, err := o.EvaluateDispute(ctx, *idFlag)
	if err != nil {
		log.Fatalf("Failed to evaluate dispute: %v", err)
	}

	fmt.Printf("Dispute:   %d (position %d)\n", ev.DisputeID, ev.PositionID)
	fmt.Printf("Actual:    %d bps\n", ev.ActualReturnBps)
	fmt.Printf("Expected:  %d bps\n", ev.ExpectedReturnBps)
	fmt.Printf("Verdict:   depositor wins = %v\n", ev.UserShouldWin)
	fmt.Printf("Reason:    %s\n", ev.Reason)
	if ev.AlreadyResolved {
		fmt.Println("Status:    already resolved on-chain")
		return
	}

	if !*submit {
		fmt.Println("Status:    dry run, pass -submit to resolve")
		return
	}

	res := o.ResolveDispute(ctx, *idFlag)
	if res.Err != nil {
		log.Fatalf("Failed to resolve: %v", res.Err)
	}
	fmt.Println("Status:    resolved")
}
