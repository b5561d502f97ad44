package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/openbid/auctionapi"
	"github.com/cloudx-io/openbid/validation"
)

func main() {
	var (
		eventInput   = flag.String("event", "", "Settlement event JSON carrying the receipt (file path or inline JSON)")
		bidInput     = flag.String("bid", "", "Your bid JSON: {\"id\", \"amount\"} (file path or inline JSON)")
		publicKey    = flag.String("public-key", "", "Receipt public key PEM file (key-signed receipts)")
		pcrsPath     = flag.String("pcrs", "", "Known PCR sets JSON file (Nitro receipts)")
		isWinner     = flag.Bool("winner", false, "Expect the bid to have won")
		outputFormat = flag.String("format", "text", "Output format: text or json")
		help         = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	if *help {
		showUsage()
		os.Exit(0)
	}

	if *eventInput == "" || *bidInput == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --event and --bid are required\n")
		os.Exit(1)
	}

	eventJSON, err := readJSONInput(*eventInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading event: %v\n", err)
		os.Exit(2)
	}

	bidJSON, err := readJSONInput(*bidInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading bid: %v\n", err)
		os.Exit(2)
	}

	input, err := extractValidationInput(eventJSON, bidJSON, *isWinner)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error extracting validation data: %v\n", err)
		os.Exit(2)
	}

	if *publicKey != "" {
		data, err := os.ReadFile(*publicKey)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading public key: %v\n", err)
			os.Exit(2)
		}
		input.PublicKeyPEM = string(data)
	}
	if *pcrsPath != "" {
		input.KnownPCRs, err = validation.LoadPCRsFromFile(*pcrsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading PCRs: %v\n", err)
			os.Exit(2)
		}
	}

	result, err := validation.ValidateSettlementReceipt(input)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	if *outputFormat == "json" {
		outputJSON(result)
	} else {
		outputText(result)
	}

	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	fmt.Println("Settlement Receipt Validator")
	fmt.Println()
	fmt.Println("Checks that a settlement receipt is authentic and that your bid was counted.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  receipt-validator --event <json> --bid <json> [--public-key <pem> | --pcrs <json>] [options]")
	fmt.Println()
	fmt.Println("Required Flags:")
	fmt.Println("  --event <json>                    auction.sold / auction.ended event with a receipt")
	fmt.Println("  --bid <json>                      Your bid: {\"id\": \"...\", \"amount\": \"1200.00\"}")
	fmt.Println()
	fmt.Println("Optional Flags:")
	fmt.Println("  --public-key <path>               Receipt key PEM (required for key-signed receipts)")
	fmt.Println("  --pcrs <path>                     Known PCR sets (required for Nitro receipts)")
	fmt.Println("  --winner                          Expect the bid to have won")
	fmt.Println("  --format <text|json>              Output format (default: text)")
	fmt.Println("  --help                            Show this help message")
	fmt.Println()
	fmt.Println("Event Format:")
	fmt.Println("  {")
	fmt.Println("    \"topic\": \"auction.sold\",")
	fmt.Println("    \"auction_id\": \"6f1c...\",")
	fmt.Println("    \"final_price\": \"1300\",")
	fmt.Println("    \"receipt\": {\"signer\": \"key\", \"key_id\": \"9a1b...\", \"cose_base64\": \"hEOhASa...\"}")
	fmt.Println("  }")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  receipt-validator --event sold.json --bid '{\"id\":\"b-1\",\"amount\":\"1300\"}' \\")
	fmt.Println("    --public-key receipt_key.pem --winner")
	fmt.Println()
	fmt.Println("Exit Codes:")
	fmt.Println("  0 - Validation passed")
	fmt.Println("  1 - Validation failed")
	fmt.Println("  2 - Invalid input or runtime error")
}

func readJSONInput(input string) ([]byte, error) {
	// Try reading as file first
	if data, err := os.ReadFile(input); err == nil {
		return data, nil
	}
	// Treat as inline JSON
	return []byte(input), nil
}

type ownBid struct {
	ID     string          `json:"id"`
	Amount decimal.Decimal `json:"amount"`
}

func extractValidationInput(eventJSON, bidJSON []byte, isWinner bool) (*validation.ReceiptValidationInput, error) {
	var event auctionapi.Event
	if err := json.Unmarshal(eventJSON, &event); err != nil {
		return nil, fmt.Errorf("parse event: %w", err)
	}
	if event.Receipt == nil || event.Receipt.COSEBase64 == "" {
		return nil, fmt.Errorf("event %q carries no receipt", event.Topic)
	}

	var bid ownBid
	if err := json.Unmarshal(bidJSON, &bid); err != nil {
		return nil, fmt.Errorf("parse bid: %w", err)
	}
	if bid.ID == "" {
		return nil, fmt.Errorf("missing bid id")
	}

	input := &validation.ReceiptValidationInput{
		Receipt:   *event.Receipt,
		AuctionID: event.AuctionID,
		BidID:     bid.ID,
		BidAmount: bid.Amount,
		IsWinner:  isWinner,
	}
	if event.WinningBidID != "" {
		price, err := decimal.NewFromString(event.FinalPrice)
		if err != nil {
			return nil, fmt.Errorf("parse final_price: %w", err)
		}
		input.FinalPrice = &price
	}
	return input, nil
}

func outputText(result *validation.ReceiptValidationResult) {
	fmt.Println("Settlement Receipt Validator")
	fmt.Println("============================")
	fmt.Println()

	fmt.Println("Summary:")
	if result.Attested {
		fmt.Printf("  PCRs Valid:              %v\n", result.PCRsValid)
		fmt.Printf("  Certificate Valid:       %v\n", result.CertificateValid)
	}
	fmt.Printf("  Signature Valid:         %v\n", result.SignatureValid)
	fmt.Printf("  Auction ID Valid:        %v\n", result.AuctionIDValid)
	fmt.Printf("  Bid Hash Valid:          %v\n", result.BidHashValid)
	fmt.Printf("  Final Price Valid:       %v\n", result.FinalPriceValid)
	fmt.Printf("  Winner Valid:            %v\n", result.WinnerValid)

	fmt.Println()
	fmt.Println("Details:")
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}

	fmt.Println()
	fmt.Println("============================")
	if result.IsValid() {
		fmt.Println("VALIDATION: ✓ PASSED")
		fmt.Println("Exit Code: 0")
	} else {
		fmt.Println("VALIDATION: ✗ FAILED")
		fmt.Println("Exit Code: 1")
	}
}

func outputJSON(result *validation.ReceiptValidationResult) {
	output := map[string]any{
		"valid":             result.IsValid(),
		"attested":          result.Attested,
		"pcrs_valid":        result.PCRsValid,
		"certificate_valid": result.CertificateValid,
		"signature_valid":   result.SignatureValid,
		"auction_id_valid":  result.AuctionIDValid,
		"bid_hash_valid":    result.BidHashValid,
		"final_price_valid": result.FinalPriceValid,
		"winner_valid":      result.WinnerValid,
		"details":           result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(string(data))
}
