package domain

// NativeMint is the wrapped SOL mint. The chain's native asset is priced and
// labelled under this id so native and wrapped legs collapse to one asset.
const NativeMint = "So11111111111111111111111111111111111111112"

// EventType is the coarse transaction type reported by the event source.
type EventType string

// Event type constants.
const (
	EventTypeSwap     EventType = "SWAP"
	EventTypeBuy      EventType = "BUY"
	EventTypeSell     EventType = "SELL"
	EventTypeTransfer EventType = "TRANSFER"
	EventTypeUnknown  EventType = "UNKNOWN"
)

// TransactionEvent is the canonical form of one raw webhook item.
// Every payload variant is decoded into this shape once at ingestion.
type TransactionEvent struct {
	Signature       string    // globally unique, idempotency key
	Type            EventType // SWAP | BUY | SELL | other
	Signer          string    // fee payer / actor address
	Timestamp       int64     // block time (unix seconds), 0 if unknown
	Source          string    // program or venue label reported upstream (may be empty)
	NativeTransfers []NativeTransfer
	TokenTransfers  []TokenTransfer
	Swap            *SwapEvent      // structured swap sub-event (nullable)
	AccountChanges  []AccountChange // per-account native balance deltas
}

// NativeTransfer is a SOL movement between two accounts.
type NativeTransfer struct {
	From   string
	To     string
	Amount float64 // SOL
}

// TokenTransfer is a fungible token movement between two owners.
type TokenTransfer struct {
	From   string
	To     string
	Mint   string
	Amount float64 // UI units (decimals applied)
}

// SwapEvent holds the structured legs of a swap.
type SwapEvent struct {
	NativeInput  *NativeLeg // SOL spent by the user (nullable)
	NativeOutput *NativeLeg // SOL received by the user (nullable)
	TokenInputs  []TokenLeg
	TokenOutputs []TokenLeg
}

// NativeLeg is the SOL side of a swap.
type NativeLeg struct {
	Account string
	Amount  float64 // SOL
}

// TokenLeg is one fungible side of a swap.
type TokenLeg struct {
	Account string
	Mint    string
	Amount  float64 // UI units
}

// AccountChange is the net native balance change of one account.
type AccountChange struct {
	Account     string
	NativeDelta float64 // SOL, negative when the account paid
}

// NativeDeltaOf returns the net native balance change of account and
// whether the event carried one.
func (e *TransactionEvent) NativeDeltaOf(account string) (float64, bool) {
	for _, c := range e.AccountChanges {
		if c.Account == account {
			return c.NativeDelta, true
		}
	}
	return 0, false
}

// AssetIDs returns every distinct asset id the event references, in first-seen order.
// Native legs and transfers are reported as NativeMint.
func (e *TransactionEvent) AssetIDs() []string {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if id == "" {
			return
		}
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	if len(e.NativeTransfers) > 0 {
		add(NativeMint)
	}
	for _, t := range e.TokenTransfers {
		add(t.Mint)
	}
	if e.Swap != nil {
		if e.Swap.NativeInput != nil || e.Swap.NativeOutput != nil {
			add(NativeMint)
		}
		for _, l := range e.Swap.TokenInputs {
			add(l.Mint)
		}
		for _, l := range e.Swap.TokenOutputs {
			add(l.Mint)
		}
	}
	if len(e.AccountChanges) > 0 {
		add(NativeMint)
	}
	return ids
}
