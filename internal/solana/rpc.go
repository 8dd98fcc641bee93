// Package solana is a minimal JSON-RPC client for the account and
// transaction reads the notification service needs.
package solana

import (
	"context"
	"encoding/json"
)

// AccountReader reads raw account data.
type AccountReader interface {
	// GetAccountInfo returns nil, nil when the account does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)
}

// TransactionReader reads a confirmed transaction as the RPC node returns it.
type TransactionReader interface {
	// GetTransactionRaw returns nil, nil when the node does not know the signature.
	GetTransactionRaw(ctx context.Context, signature string) (json.RawMessage, error)
}

// AccountInfo represents Solana account information.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64 encoded
	Executable bool   `json:"executable"`
	RentEpoch  uint64 `json:"rentEpoch"`
}
