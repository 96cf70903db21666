package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ahmetcoskunkizilkaya/hydrogen-credits/internal/models"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// HashMetadata returns the 0x-prefixed keccak-256 of the JSON encoding of v.
func HashMetadata(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return crypto.Keccak256Hash(b).Hex(), nil
}

// RoleID is the bytes32 identifier the contract uses for role.
func RoleID(role models.Role) common.Hash {
	return crypto.Keccak256Hash([]byte(role.LedgerName()))
}

// NormalizeAddress validates a hex wallet address and lower-cases it.
func NormalizeAddress(addr string) (string, error) {
	lower := strings.ToLower(addr)
	if !strings.HasPrefix(lower, "0x") || !common.IsHexAddress(addr) {
		return "", fmt.Errorf("invalid wallet address %q", addr)
	}
	return lower, nil
}
