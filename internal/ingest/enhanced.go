package ingest

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/solana"
)

// enhancedTx is the parsed-transaction webhook item. Native amounts are
// lamports; token transfer amounts are already in UI units.
type enhancedTx struct {
	Signature       string            `json:"signature"`
	Type            string            `json:"type"`
	FeePayer        string            `json:"feePayer"`
	Timestamp       int64             `json:"timestamp"`
	Source          string            `json:"source"`
	NativeTransfers []enhancedNative  `json:"nativeTransfers"`
	TokenTransfers  []enhancedToken   `json:"tokenTransfers"`
	AccountData     []enhancedAccount `json:"accountData"`
	Events          enhancedEvents    `json:"events"`
}

type enhancedNative struct {
	From   string    `json:"fromUserAccount"`
	To     string    `json:"toUserAccount"`
	Amount flexFloat `json:"amount"`
}

type enhancedToken struct {
	From        string    `json:"fromUserAccount"`
	To          string    `json:"toUserAccount"`
	Mint        string    `json:"mint"`
	TokenAmount flexFloat `json:"tokenAmount"`
}

type enhancedAccount struct {
	Account             string    `json:"account"`
	NativeBalanceChange flexFloat `json:"nativeBalanceChange"`
}

type enhancedEvents struct {
	Swap *enhancedSwap `json:"swap"`
}

type enhancedSwap struct {
	NativeInput  *enhancedNativeLeg `json:"nativeInput"`
	NativeOutput *enhancedNativeLeg `json:"nativeOutput"`
	TokenInputs  []enhancedTokenLeg `json:"tokenInputs"`
	TokenOutputs []enhancedTokenLeg `json:"tokenOutputs"`
}

type enhancedNativeLeg struct {
	Account string    `json:"account"`
	Amount  flexFloat `json:"amount"`
}

type enhancedTokenLeg struct {
	UserAccount    string `json:"userAccount"`
	Mint           string `json:"mint"`
	RawTokenAmount struct {
		TokenAmount flexFloat `json:"tokenAmount"`
		Decimals    int       `json:"decimals"`
	} `json:"rawTokenAmount"`
}

func (l enhancedTokenLeg) uiAmount() float64 {
	return float64(l.RawTokenAmount.TokenAmount) / math.Pow10(l.RawTokenAmount.Decimals)
}

func lamports(v flexFloat) float64 {
	return float64(v) / solana.LamportsPerSOL
}

func decodeEnhanced(raw json.RawMessage) (*domain.TransactionEvent, error) {
	var tx enhancedTx
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode enhanced item: %w", err)
	}

	ev := &domain.TransactionEvent{
		Signature: tx.Signature,
		Type:      eventType(tx.Type),
		Signer:    tx.FeePayer,
		Timestamp: tx.Timestamp,
		Source:    tx.Source,
	}
	for _, t := range tx.NativeTransfers {
		ev.NativeTransfers = append(ev.NativeTransfers, domain.NativeTransfer{
			From:   t.From,
			To:     t.To,
			Amount: lamports(t.Amount),
		})
	}
	for _, t := range tx.TokenTransfers {
		ev.TokenTransfers = append(ev.TokenTransfers, domain.TokenTransfer{
			From:   t.From,
			To:     t.To,
			Mint:   t.Mint,
			Amount: float64(t.TokenAmount),
		})
	}
	for _, a := range tx.AccountData {
		if a.NativeBalanceChange == 0 {
			continue
		}
		ev.AccountChanges = append(ev.AccountChanges, domain.AccountChange{
			Account:     a.Account,
			NativeDelta: lamports(a.NativeBalanceChange),
		})
	}
	if s := tx.Events.Swap; s != nil {
		ev.Swap = convertSwap(s)
	}
	return ev, nil
}

func convertSwap(s *enhancedSwap) *domain.SwapEvent {
	out := &domain.SwapEvent{}
	if s.NativeInput != nil && s.NativeInput.Amount != 0 {
		out.NativeInput = &domain.NativeLeg{Account: s.NativeInput.Account, Amount: lamports(s.NativeInput.Amount)}
	}
	if s.NativeOutput != nil && s.NativeOutput.Amount != 0 {
		out.NativeOutput = &domain.NativeLeg{Account: s.NativeOutput.Account, Amount: lamports(s.NativeOutput.Amount)}
	}
	for _, l := range s.TokenInputs {
		out.TokenInputs = append(out.TokenInputs, domain.TokenLeg{Account: l.UserAccount, Mint: l.Mint, Amount: l.uiAmount()})
	}
	for _, l := range s.TokenOutputs {
		out.TokenOutputs = append(out.TokenOutputs, domain.TokenLeg{Account: l.UserAccount, Mint: l.Mint, Amount: l.uiAmount()})
	}
	if out.NativeInput == nil && out.NativeOutput == nil && len(out.TokenInputs) == 0 && len(out.TokenOutputs) == 0 {
		return nil
	}
	return out
}

func eventType(s string) domain.EventType {
	t := domain.EventType(strings.ToUpper(strings.TrimSpace(s)))
	if t == "" {
		return domain.EventTypeUnknown
	}
	return t
}
