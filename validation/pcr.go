package validation

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/cloudx-io/openbid/auctionapi"
)

// LoadPCRsFromFile reads the known-good enclave measurements verifiers accept.
// Every set must carry PCR0 through PCR2.
func LoadPCRsFromFile(path string) ([]PCRSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read PCR config file: %w", err)
	}

	var cfg PCRConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse PCR config: %w", err)
	}
	if len(cfg.PCRSets) == 0 {
		return nil, fmt.Errorf("no PCR sets in %s", path)
	}
	for i := range cfg.PCRSets {
		set := &cfg.PCRSets[i]
		if set.PCR0 == "" || set.PCR1 == "" || set.PCR2 == "" {
			return nil, fmt.Errorf("PCR set #%d is incomplete", i)
		}
		set.PCR0 = strings.ToLower(set.PCR0)
		set.PCR1 = strings.ToLower(set.PCR1)
		set.PCR2 = strings.ToLower(set.PCR2)
	}
	return cfg.PCRSets, nil
}

func (s PCRSet) matches(pcrs auctionapi.PCRs) bool {
	return pcrs.ImageFileHash == s.PCR0 &&
		pcrs.KernelHash == s.PCR1 &&
		pcrs.ApplicationHash == s.PCR2
}

// ValidatePCRs reports whether pcrs equal one of knownSets and, if so, which.
// The index is -1 when nothing matches.
func ValidatePCRs(pcrs auctionapi.PCRs, knownSets []PCRSet) (bool, int) {
	for i, set := range knownSets {
		if set.matches(pcrs) {
			return true, i
		}
	}
	return false, -1
}
