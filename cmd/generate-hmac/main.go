package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"relay-backend/internal/security"
)

// Utility to sign relay requests for manual testing with curl.
func main() {
	var (
		op       = flag.String("op", "mint", "operation: mint, award or redeem")
		to       = flag.String("to", "", "recipient address (mint, award)")
		from     = flag.String("from", "", "holder address (redeem)")
		amount   = flag.String("amount", "", "token amount as decimal string")
		rewardID = flag.String("reward", "", "reward or badge identifier (award, redeem)")
		secret   = flag.String("secret", os.Getenv("HMAC_SECRET"), "HMAC secret, defaults to HMAC_SECRET env")
	)
	flag.Parse()

	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Error: no HMAC secret given (use -secret or HMAC_SECRET)")
		os.Exit(1)
	}

	ts := time.Now().Unix()
	var message string
	switch *op {
	case "mint":
		message = security.MintMessage(*to, *amount, ts)
	case "award":
		message = security.AwardMessage(*to, *rewardID, *amount, ts)
	case "redeem":
		message = security.RedeemMessage(*from, *amount, *rewardID, ts)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown operation %q\n", *op)
		os.Exit(1)
	}

	validator := security.NewSignatureValidator(*secret)
	sig, err := validator.Sign(message)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("============================================================")
	fmt.Println("Signed Relay Request")
	fmt.Println("============================================================")
	fmt.Println()
	fmt.Printf("  Operation: %s\n", *op)
	fmt.Printf("  Message:   %s\n", message)
	fmt.Printf("  Timestamp: %d\n", ts)
	fmt.Printf("  Signature: %s\n", sig)
	fmt.Println()
	fmt.Println("Include timestamp and signature in the request body.")
}
