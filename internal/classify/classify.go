// Package classify derives the economic meaning of a transaction event.
package classify

import (
	"math"

	"wallet-alerts/internal/domain"
)

// Analysis is the price-independent part of a classification.
type Analysis struct {
	Direction domain.NotificationType
	// PrimaryAsset is empty when the event moves no asset at all.
	PrimaryAsset string
	// Amount of PrimaryAsset, UI units.
	Amount float64
}

// Classification is an Analysis plus the event's fiat value.
type Classification struct {
	Analysis
	ValueUSD float64
	// ValueSource names the rule that produced ValueUSD.
	ValueSource ValueSource
}

// ValueSource identifies how a fiat value was computed.
type ValueSource string

// Value sources, in SWAP precedence order.
const (
	ValueFromSignerDelta ValueSource = "signer_delta"
	ValueFromSwapLeg     ValueSource = "swap_native_leg"
	ValueFromLegSum      ValueSource = "leg_sum"
)

// Classifier is stateless; the native asset id is the only parameter.
type Classifier struct {
	native string
}

// New creates a Classifier that treats nativeAsset as the chain's native
// asset. An empty id defaults to domain.NativeMint.
func New(nativeAsset string) *Classifier {
	if nativeAsset == "" {
		nativeAsset = domain.NativeMint
	}
	return &Classifier{native: nativeAsset}
}

// NativeAsset returns the id native legs are priced under.
func (c *Classifier) NativeAsset() string {
	return c.native
}

// Analyze determines direction and primary asset.
func (c *Classifier) Analyze(e *domain.TransactionEvent) Analysis {
	dir := c.direction(e)
	asset, amount := c.primaryAsset(e, dir)
	return Analysis{Direction: dir, PrimaryAsset: asset, Amount: amount}
}

// Classify analyzes e and computes its fiat value from prices. Ids missing
// from prices are valued at zero.
func (c *Classifier) Classify(e *domain.TransactionEvent, prices map[string]float64) Classification {
	a := c.Analyze(e)
	value, src := c.fiatValue(e, prices)
	return Classification{Analysis: a, ValueUSD: value, ValueSource: src}
}

func (c *Classifier) direction(e *domain.TransactionEvent) domain.NotificationType {
	switch e.Type {
	case domain.EventTypeBuy:
		return domain.NotificationTypeBuy
	case domain.EventTypeSell:
		return domain.NotificationTypeSell
	case domain.EventTypeSwap:
		return c.swapDirection(e.Swap)
	default:
		return domain.NotificationTypeOther
	}
}

// swapDirection reads the structured legs. Native spent for a non-native
// output is a buy, the mirror image is a sell, anything else stays a swap.
func (c *Classifier) swapDirection(s *domain.SwapEvent) domain.NotificationType {
	if s == nil {
		return domain.NotificationTypeSwap
	}

	nativeIn := s.NativeInput != nil && s.NativeInput.Amount > 0
	nativeOut := s.NativeOutput != nil && s.NativeOutput.Amount > 0
	var tokenIn, tokenOut bool
	for _, l := range s.TokenInputs {
		if l.Mint == c.native {
			nativeIn = true
		} else {
			tokenIn = true
		}
	}
	for _, l := range s.TokenOutputs {
		if l.Mint == c.native {
			nativeOut = true
		} else {
			tokenOut = true
		}
	}

	// other tokens spent alongside native do not change the direction
	switch {
	case nativeIn && !nativeOut && tokenOut:
		return domain.NotificationTypeBuy
	case nativeOut && !nativeIn && tokenIn:
		return domain.NotificationTypeSell
	default:
		return domain.NotificationTypeSwap
	}
}

func (c *Classifier) primaryAsset(e *domain.TransactionEvent, dir domain.NotificationType) (string, float64) {
	if s := e.Swap; s != nil {
		var legs []domain.TokenLeg
		switch dir {
		case domain.NotificationTypeSell:
			legs = s.TokenInputs
		default:
			legs = s.TokenOutputs
		}
		if mint, amt, ok := c.largestLeg(legs); ok {
			return mint, amt
		}
		// generic swaps may only name the non-native side as an input
		if mint, amt, ok := c.largestLeg(s.TokenInputs); ok && dir != domain.NotificationTypeBuy {
			return mint, amt
		}
	}

	var (
		best    string
		bestAmt float64
	)
	for _, t := range e.TokenTransfers {
		if t.Mint == "" || t.Mint == c.native {
			continue
		}
		if amt := math.Abs(t.Amount); best == "" || amt > bestAmt {
			best, bestAmt = t.Mint, amt
		}
	}
	if best != "" {
		return best, bestAmt
	}

	if amt, ok := c.nativeAmount(e); ok {
		return c.native, amt
	}
	return "", 0
}

func (c *Classifier) largestLeg(legs []domain.TokenLeg) (string, float64, bool) {
	var (
		best    string
		bestAmt float64
	)
	for _, l := range legs {
		if l.Mint == "" || l.Mint == c.native {
			continue
		}
		if amt := math.Abs(l.Amount); best == "" || amt > bestAmt {
			best, bestAmt = l.Mint, amt
		}
	}
	return best, bestAmt, best != ""
}

// nativeAmount picks the headline native amount: the largest native or
// wrapped transfer, then a native swap leg, then the signer's delta.
func (c *Classifier) nativeAmount(e *domain.TransactionEvent) (float64, bool) {
	var (
		amt   float64
		found bool
	)
	for _, t := range e.NativeTransfers {
		if a := math.Abs(t.Amount); !found || a > amt {
			amt, found = a, true
		}
	}
	for _, t := range e.TokenTransfers {
		if t.Mint != c.native {
			continue
		}
		if a := math.Abs(t.Amount); !found || a > amt {
			amt, found = a, true
		}
	}
	if found {
		return amt, true
	}
	if leg, ok := c.swapNativeLeg(e.Swap); ok {
		return leg, true
	}
	if d, ok := e.NativeDeltaOf(e.Signer); ok && d != 0 {
		return math.Abs(d), true
	}
	return 0, false
}

// fiatValue keeps the SWAP and BUY/SELL rules apart: swaps with a native
// leg prefer the signer's native delta, every other case sums legs. Without
// a native leg the signer's delta is only the fee.
func (c *Classifier) fiatValue(e *domain.TransactionEvent, prices map[string]float64) (float64, ValueSource) {
	nativePrice := prices[c.native]

	if e.Type == domain.EventTypeSwap {
		leg, hasNative := c.swapNativeLeg(e.Swap)
		if hasNative && nativePrice > 0 {
			if d, ok := e.NativeDeltaOf(e.Signer); ok && d != 0 {
				return math.Abs(d) * nativePrice, ValueFromSignerDelta
			}
			return leg * nativePrice, ValueFromSwapLeg
		}
		// token-to-token: value one side of the swap, not both transfer legs
		if e.Swap != nil {
			if v := c.swapLegSum(e.Swap, prices); v > 0 {
				return v, ValueFromLegSum
			}
		}
	}

	sum := c.legSum(e, prices)
	if sum == 0 && e.Swap != nil {
		sum = c.swapLegSum(e.Swap, prices)
	}
	return sum, ValueFromLegSum
}

func (c *Classifier) legSum(e *domain.TransactionEvent, prices map[string]float64) float64 {
	var sum float64
	for _, t := range e.TokenTransfers {
		sum += math.Abs(t.Amount) * prices[t.Mint]
	}
	for _, t := range e.NativeTransfers {
		sum += math.Abs(t.Amount) * prices[c.native]
	}
	return sum
}

// swapLegSum values the output side, or the input side when outputs are
// unpriced.
func (c *Classifier) swapLegSum(s *domain.SwapEvent, prices map[string]float64) float64 {
	side := func(native *domain.NativeLeg, legs []domain.TokenLeg) float64 {
		var v float64
		if native != nil {
			v += math.Abs(native.Amount) * prices[c.native]
		}
		for _, l := range legs {
			v += math.Abs(l.Amount) * prices[l.Mint]
		}
		return v
	}
	if v := side(s.NativeOutput, s.TokenOutputs); v > 0 {
		return v
	}
	return side(s.NativeInput, s.TokenInputs)
}

func (c *Classifier) swapNativeLeg(s *domain.SwapEvent) (float64, bool) {
	if s == nil {
		return 0, false
	}
	if s.NativeInput != nil && s.NativeInput.Amount != 0 {
		return math.Abs(s.NativeInput.Amount), true
	}
	if s.NativeOutput != nil && s.NativeOutput.Amount != 0 {
		return math.Abs(s.NativeOutput.Amount), true
	}
	for _, l := range s.TokenInputs {
		if l.Mint == c.native && l.Amount != 0 {
			return math.Abs(l.Amount), true
		}
	}
	for _, l := range s.TokenOutputs {
		if l.Mint == c.native && l.Amount != 0 {
			return math.Abs(l.Amount), true
		}
	}
	return 0, false
}
