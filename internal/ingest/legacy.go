package ingest

import (
	"errors"
	"math"
	"sort"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/solana"
)

// dust below this is treated as no movement
const epsilon = 1e-9

type ownerMint struct {
	owner string
	mint  string
}

// fromConfirmed rebuilds an event from balance snapshots. Only the signer's
// own movements become transfers; a signer who both paid and received is
// reported as a SWAP with structured legs.
func fromConfirmed(tx *solana.ConfirmedTransaction) (*domain.TransactionEvent, error) {
	if len(tx.Transaction.Signatures) == 0 {
		return nil, errors.New("missing signature")
	}
	if tx.Meta == nil {
		return nil, errors.New("missing meta")
	}
	if tx.Meta.Err != nil {
		return nil, errors.New("transaction failed on chain")
	}

	keys := tx.Transaction.Message.AccountKeys
	signer := tx.FeePayer()
	meta := tx.Meta

	ev := &domain.TransactionEvent{
		Signature: tx.Transaction.Signatures[0],
		Signer:    signer,
	}
	if tx.BlockTime != nil {
		ev.Timestamp = *tx.BlockTime
	}

	var signerDelta float64
	for i, k := range keys {
		if i >= len(meta.PreBalances) || i >= len(meta.PostBalances) {
			break
		}
		d := (float64(meta.PostBalances[i]) - float64(meta.PreBalances[i])) / solana.LamportsPerSOL
		if math.Abs(d) < epsilon {
			continue
		}
		ev.AccountChanges = append(ev.AccountChanges, domain.AccountChange{Account: k.Pubkey, NativeDelta: d})
		if i == 0 {
			signerDelta = d
		}
	}

	tokenDeltas := tokenDeltas(keys, meta)

	// fee is not part of the trade; wrapped SOL is
	native := signerDelta + float64(meta.Fee)/solana.LamportsPerSOL
	var inputs, outputs []domain.TokenLeg
	var mints []string
	for k, d := range tokenDeltas {
		if k.owner != signer || math.Abs(d) < epsilon {
			continue
		}
		if k.mint == domain.NativeMint {
			native += d
			continue
		}
		mints = append(mints, k.mint)
	}
	sort.Strings(mints)
	for _, m := range mints {
		d := tokenDeltas[ownerMint{signer, m}]
		if d < 0 {
			inputs = append(inputs, domain.TokenLeg{Account: signer, Mint: m, Amount: -d})
			ev.TokenTransfers = append(ev.TokenTransfers, domain.TokenTransfer{From: signer, Mint: m, Amount: -d})
		} else {
			outputs = append(outputs, domain.TokenLeg{Account: signer, Mint: m, Amount: d})
			ev.TokenTransfers = append(ev.TokenTransfers, domain.TokenTransfer{To: signer, Mint: m, Amount: d})
		}
	}
	if math.Abs(native) < epsilon {
		native = 0
	}
	switch {
	case native < 0:
		ev.NativeTransfers = append(ev.NativeTransfers, domain.NativeTransfer{From: signer, Amount: -native})
	case native > 0:
		ev.NativeTransfers = append(ev.NativeTransfers, domain.NativeTransfer{To: signer, Amount: native})
	}

	paid := native < 0 || len(inputs) > 0
	received := native > 0 || len(outputs) > 0
	if !paid || !received {
		ev.Type = domain.EventTypeTransfer
		return ev, nil
	}

	ev.Type = domain.EventTypeSwap
	swap := &domain.SwapEvent{TokenInputs: inputs, TokenOutputs: outputs}
	switch {
	case native < 0:
		swap.NativeInput = &domain.NativeLeg{Account: signer, Amount: -native}
	case native > 0:
		swap.NativeOutput = &domain.NativeLeg{Account: signer, Amount: native}
	}
	ev.Swap = swap
	return ev, nil
}

// tokenDeltas returns post minus pre UI balance per (owner, mint).
func tokenDeltas(keys []solana.AccountKey, meta *solana.TransactionMeta) map[ownerMint]float64 {
	owner := func(b solana.TokenBalance) string {
		if b.Owner != "" {
			return b.Owner
		}
		if b.AccountIndex >= 0 && b.AccountIndex < len(keys) {
			return keys[b.AccountIndex].Pubkey
		}
		return ""
	}

	out := make(map[ownerMint]float64)
	for _, b := range meta.PreTokenBalances {
		out[ownerMint{owner(b), b.Mint}] -= b.UITokenAmount.UIAmount()
	}
	for _, b := range meta.PostTokenBalances {
		out[ownerMint{owner(b), b.Mint}] += b.UITokenAmount.UIAmount()
	}
	return out
}
