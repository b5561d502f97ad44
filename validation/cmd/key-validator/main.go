package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/cloudx-io/openbid/auctionapi"
	"github.com/cloudx-io/openbid/validation"
)

const (
	exitValid   = 0
	exitInvalid = 1
	exitError   = 2
)

func main() {
	var (
		responsePath  = flag.String("response", "", "Path to a receipt_key response JSON file")
		addr          = flag.String("addr", "", "Fetch the receipt_key response from a server at host:port instead")
		publicKeyPath = flag.String("public-key", "", "Public key PEM file you expect the server to use (required)")
		pcrsPath      = flag.String("pcrs", "", "Known PCR sets JSON file (required)")
		outputFormat  = flag.String("format", "text", "Output format: text or json")
		help          = flag.Bool("help", false, "Show usage information")
	)
	flag.Parse()

	if *help {
		showUsage()
		os.Exit(exitValid)
	}
	if (*responsePath == "") == (*addr == "") || *publicKeyPath == "" || *pcrsPath == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: exactly one of --response or --addr, plus --public-key and --pcrs, are required\n")
		os.Exit(exitInvalid)
	}

	var (
		resp *auctionapi.ReceiptKeyResponse
		err  error
	)
	if *addr != "" {
		resp, err = fetchKeyResponse(*addr)
	} else {
		resp, err = readKeyResponse(*responsePath)
	}
	if err != nil {
		fail("Error reading key response: %v", err)
	}

	publicKey, err := os.ReadFile(*publicKeyPath)
	if err != nil {
		fail("Error reading public key: %v", err)
	}
	knownPCRs, err := validation.LoadPCRsFromFile(*pcrsPath)
	if err != nil {
		fail("Error loading PCRs: %v", err)
	}

	result, err := validation.ValidateKeyAttestation(resp, string(publicKey), knownPCRs)
	if err != nil {
		fail("Validation error: %v", err)
	}

	if *outputFormat == "json" {
		outputJSON(result)
	} else {
		outputText(resp, result)
	}

	if !result.IsValid() {
		os.Exit(exitInvalid)
	}
	os.Exit(exitValid)
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(exitError)
}

func showUsage() {
	fmt.Println("Receipt Key Attestation Validator")
	fmt.Println()
	fmt.Println("Checks that the key signing settlement receipts was generated inside an")
	fmt.Println("enclave whose measurements you trust.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  key-validator (--response <path> | --addr <host:port>) --public-key <pem> --pcrs <path> [options]")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --response <path>                 receipt_key response saved as JSON")
	fmt.Println("  --addr <host:port>                Ask a running server for its receipt_key response")
	fmt.Println("  --public-key <path>               Expected receipt public key (PEM)")
	fmt.Println("  --pcrs <path>                     Known PCR sets: {\"pcr_sets\": [{\"pcr0\": ..., \"pcr1\": ..., \"pcr2\": ...}]}")
	fmt.Println("  --format <text|json>              Output format (default: text)")
	fmt.Println("  --help                            Show this help message")
	fmt.Println()
	fmt.Println("Exit Codes:")
	fmt.Println("  0 - Validation passed")
	fmt.Println("  1 - Validation failed")
	fmt.Println("  2 - Invalid input or runtime error")
}

func readKeyResponse(path string) (*auctionapi.ReceiptKeyResponse, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	var resp auctionapi.ReceiptKeyResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &resp, nil
}

// fetchKeyResponse sends one receipt_key request using the server's framing:
// the request is terminated by closing the write side.
func fetchKeyResponse(addr string) (*auctionapi.ReceiptKeyResponse, error) {
	conn, err := net.DialTimeout("tcp", addr, 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	if err := json.NewEncoder(conn).Encode(map[string]string{"type": auctionapi.TypeReceiptKey}); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.CloseWrite()
	}

	var envelope struct {
		Success bool                          `json:"success"`
		Code    string                        `json:"code"`
		Reason  string                        `json:"reason"`
		Data    auctionapi.ReceiptKeyResponse `json:"data"`
	}
	if err := json.NewDecoder(conn).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !envelope.Success {
		return nil, fmt.Errorf("server refused: %s (%s)", envelope.Reason, envelope.Code)
	}
	return &envelope.Data, nil
}

func outputText(resp *auctionapi.ReceiptKeyResponse, result *validation.KeyValidationResult) {
	fmt.Println("Receipt Key Attestation Validator")
	fmt.Println("=================================")
	fmt.Printf("Key ID: %s\n", resp.KeyID)
	fmt.Println()

	fmt.Println("Summary:")
	fmt.Printf("  PCRs Valid:        %v\n", result.PCRsValid)
	fmt.Printf("  Certificate Valid: %v\n", result.CertificateValid)
	fmt.Printf("  Signature Valid:   %v\n", result.SignatureValid)
	fmt.Printf("  Public Key Match:  %v\n", result.PublicKeyMatch)
	fmt.Printf("  Key ID Match:      %v\n", result.KeyIDMatch)

	fmt.Println()
	fmt.Println("Details:")
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}

	fmt.Println()
	if result.IsValid() {
		fmt.Println("VALIDATION: ✓ PASSED")
	} else {
		fmt.Println("VALIDATION: ✗ FAILED")
	}
}

func outputJSON(result *validation.KeyValidationResult) {
	data, err := json.MarshalIndent(map[string]any{
		"valid":             result.IsValid(),
		"pcrs_valid":        result.PCRsValid,
		"certificate_valid": result.CertificateValid,
		"signature_valid":   result.SignatureValid,
		"public_key_match":  result.PublicKeyMatch,
		"key_id_match":      result.KeyIDMatch,
		"details":           result.ValidationDetails,
	}, "", "  ")
	if err != nil {
		fail("Error marshaling JSON: %v", err)
	}
	fmt.Println(string(data))
}
