package solana

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// LamportsPerSOL converts lamports to SOL.
const LamportsPerSOL = 1_000_000_000

// ConfirmedTransaction is the getTransaction result in json or jsonParsed encoding.
type ConfirmedTransaction struct {
	Slot        int64               `json:"slot"`
	BlockTime   *int64              `json:"blockTime"`
	Meta        *TransactionMeta    `json:"meta"`
	Transaction TransactionEnvelope `json:"transaction"`
}

// TransactionEnvelope holds signatures and the message.
type TransactionEnvelope struct {
	Signatures []string           `json:"signatures"`
	Message    TransactionMessage `json:"message"`
}

// TransactionMessage holds the account keys. Keys may be plain strings
// (json encoding) or objects (jsonParsed encoding).
type TransactionMessage struct {
	AccountKeys []AccountKey `json:"accountKeys"`
}

// AccountKey is one message account.
type AccountKey struct {
	Pubkey string
	Signer bool
}

// UnmarshalJSON accepts both the string and the object form.
func (k *AccountKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		k.Pubkey = s
		return nil
	}
	var obj struct {
		Pubkey string `json:"pubkey"`
		Signer bool   `json:"signer"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return fmt.Errorf("account key: %w", err)
	}
	k.Pubkey, k.Signer = obj.Pubkey, obj.Signer
	return nil
}

// TransactionMeta holds balance snapshots around execution.
type TransactionMeta struct {
	Err               any            `json:"err"`
	Fee               uint64         `json:"fee"`
	PreBalances       []uint64       `json:"preBalances"`
	PostBalances      []uint64       `json:"postBalances"`
	PreTokenBalances  []TokenBalance `json:"preTokenBalances"`
	PostTokenBalances []TokenBalance `json:"postTokenBalances"`
}

// TokenBalance is one token account balance snapshot.
type TokenBalance struct {
	AccountIndex  int         `json:"accountIndex"`
	Mint          string      `json:"mint"`
	Owner         string      `json:"owner"`
	UITokenAmount TokenAmount `json:"uiTokenAmount"`
}

// TokenAmount is a raw amount with its decimals.
type TokenAmount struct {
	Amount         string `json:"amount"`
	Decimals       int    `json:"decimals"`
	UIAmountString string `json:"uiAmountString"`
}

// UIAmount returns the amount in UI units.
func (a TokenAmount) UIAmount() float64 {
	if a.UIAmountString != "" {
		if v, err := strconv.ParseFloat(a.UIAmountString, 64); err == nil {
			return v
		}
	}
	raw, err := strconv.ParseFloat(a.Amount, 64)
	if err != nil {
		return 0
	}
	for i := 0; i < a.Decimals; i++ {
		raw /= 10
	}
	return raw
}

// FeePayer returns the first account key, which always pays the fee.
func (t *ConfirmedTransaction) FeePayer() string {
	if len(t.Transaction.Message.AccountKeys) == 0 {
		return ""
	}
	return t.Transaction.Message.AccountKeys[0].Pubkey
}
