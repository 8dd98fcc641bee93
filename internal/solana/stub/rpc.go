// Package stub provides an in-memory Solana RPC for tests.
package stub

import (
	"context"
	"encoding/json"
	"sync"

	"wallet-alerts/internal/solana"
)

// RPCClient implements solana.AccountReader and solana.TransactionReader from maps.
type RPCClient struct {
	mu           sync.Mutex
	Accounts     map[string]*solana.AccountInfo
	Transactions map[string]json.RawMessage
	// Err, when set, is returned by every call.
	Err   error
	calls map[string]int
}

// NewRPCClient creates an empty stub.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Accounts:     make(map[string]*solana.AccountInfo),
		Transactions: make(map[string]json.RawMessage),
		calls:        make(map[string]int),
	}
}

// GetAccountInfo returns the configured account or nil.
func (c *RPCClient) GetAccountInfo(_ context.Context, pubkey string) (*solana.AccountInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls["getAccountInfo"]++
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Accounts[pubkey], nil
}

// GetTransactionRaw returns the configured transaction or nil.
func (c *RPCClient) GetTransactionRaw(_ context.Context, signature string) (json.RawMessage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.calls["getTransaction"]++
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Transactions[signature], nil
}

// Calls returns how many times method was invoked.
func (c *RPCClient) Calls(method string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[method]
}

var (
	_ solana.AccountReader     = (*RPCClient)(nil)
	_ solana.TransactionReader = (*RPCClient)(nil)
)
