package model

import (
	"fmt"
	"regexp"
	"strings"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// NormalizeAddress validates a 20-byte hex address and lowercases it,
// matching spec.md §3's "normalized to lowercase on write and on lookup".
func NormalizeAddress(addr string) (string, error) {
	if !addressPattern.MatchString(addr) {
		return "", fmt.Errorf("invalid address %q: must match ^0x[0-9a-fA-F]{40}$", addr)
	}
	return strings.ToLower(addr), nil
}
