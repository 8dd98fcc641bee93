// Package ingest decodes webhook bodies into canonical transaction events.
// Each item's payload shape is detected once here; nothing downstream
// looks at raw JSON.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"wallet-alerts/internal/domain"
	"wallet-alerts/internal/solana"
)

// ErrNotJSON is returned when the body is not a JSON object or array.
var ErrNotJSON = errors.New("body is not a JSON object or array")

// Shape names the payload variant of one item.
type Shape string

// Known shapes.
const (
	ShapeEnhanced Shape = "enhanced"
	ShapeLegacy   Shape = "legacy"
	ShapeUnknown  Shape = "unknown"
)

// ItemError records why one item was rejected.
type ItemError struct {
	Index int
	Shape Shape
	Err   error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("item %d (%s): %v", e.Index, e.Shape, e.Err)
}

// Batch is a decoded webhook body.
type Batch struct {
	// Total counts every item in the body, decodable or not.
	Total    int
	Events   []*domain.TransactionEvent
	Rejected []ItemError
}

// DecodeBatch decodes a single item or an array of items. A body that is
// not JSON fails as a whole; bad items are only recorded in Rejected.
func DecodeBatch(body []byte) (*Batch, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || !json.Valid(trimmed) {
		return nil, ErrNotJSON
	}

	var items []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotJSON, err)
		}
	case '{':
		items = []json.RawMessage{trimmed}
	default:
		return nil, ErrNotJSON
	}

	batch := &Batch{Total: len(items)}
	for i, raw := range items {
		shape, ev, err := decodeItem(raw)
		if err != nil {
			batch.Rejected = append(batch.Rejected, ItemError{Index: i, Shape: shape, Err: err})
			continue
		}
		batch.Events = append(batch.Events, ev)
	}
	return batch, nil
}

// DecodeTransaction decodes one raw getTransaction result.
func DecodeTransaction(raw []byte) (*domain.TransactionEvent, error) {
	var tx solana.ConfirmedTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return fromConfirmed(&tx)
}

type probe struct {
	Signature   json.RawMessage `json:"signature"`
	Transaction json.RawMessage `json:"transaction"`
	Meta        json.RawMessage `json:"meta"`
}

func detect(raw json.RawMessage) (Shape, error) {
	if len(raw) == 0 || raw[0] != '{' {
		return ShapeUnknown, errors.New("item is not an object")
	}
	var p probe
	if err := json.Unmarshal(raw, &p); err != nil {
		return ShapeUnknown, err
	}
	switch {
	case p.Transaction != nil && p.Meta != nil:
		return ShapeLegacy, nil
	case p.Signature != nil:
		return ShapeEnhanced, nil
	default:
		return ShapeUnknown, errors.New("unrecognized item shape")
	}
}

func decodeItem(raw json.RawMessage) (Shape, *domain.TransactionEvent, error) {
	shape, err := detect(raw)
	if err != nil {
		return shape, nil, err
	}

	var ev *domain.TransactionEvent
	switch shape {
	case ShapeLegacy:
		ev, err = DecodeTransaction(raw)
	default:
		ev, err = decodeEnhanced(raw)
	}
	if err != nil {
		return shape, nil, err
	}
	if err := validate(ev); err != nil {
		return shape, nil, err
	}
	return shape, ev, nil
}

func validate(ev *domain.TransactionEvent) error {
	if ev.Signature == "" {
		return errors.New("missing signature")
	}
	if !solana.IsValidAddress(ev.Signer) {
		return fmt.Errorf("invalid signer %q", ev.Signer)
	}
	return nil
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parse number %q: %w", s, err)
		}
		*f = flexFloat(v)
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}
