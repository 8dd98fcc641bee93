package ingest

import (
	"errors"
	"fmt"
	"testing"

	"github.com/mr-tron/base58"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-alerts/internal/domain"
)

func addr(b byte) string {
	var k [32]byte
	k[0], k[31] = b, b
	return base58.Encode(k[:])
}

var (
	wallet = addr(1)
	pool   = addr(2)
	mintX  = addr(3)
)

func enhancedSwapJSON(sig string) string {
	return fmt.Sprintf(`{
		"signature": %q,
		"type": "swap",
		"feePayer": %q,
		"timestamp": 1700000000,
		"source": "JUPITER",
		"nativeTransfers": [{"fromUserAccount": %q, "toUserAccount": %q, "amount": 2000000000}],
		"tokenTransfers": [{"fromUserAccount": %q, "toUserAccount": %q, "mint": %q, "tokenAmount": 1000}],
		"accountData": [
			{"account": %q, "nativeBalanceChange": -2000005000},
			{"account": %q, "nativeBalanceChange": 0}
		],
		"events": {"swap": {
			"nativeInput": {"account": %q, "amount": "2000000000"},
			"tokenOutputs": [{"userAccount": %q, "mint": %q, "rawTokenAmount": {"tokenAmount": "1000000000", "decimals": 6}}]
		}}
	}`, sig, wallet, wallet, pool, pool, wallet, mintX, wallet, pool, wallet, wallet, mintX)
}

func TestDecodeBatch_SingleEnhancedObject(t *testing.T) {
	batch, err := DecodeBatch([]byte(enhancedSwapJSON("sig1")))
	require.NoError(t, err)
	require.Equal(t, 1, batch.Total)
	require.Len(t, batch.Events, 1)
	assert.Empty(t, batch.Rejected)

	ev := batch.Events[0]
	assert.Equal(t, "sig1", ev.Signature)
	assert.Equal(t, domain.EventTypeSwap, ev.Type)
	assert.Equal(t, wallet, ev.Signer)
	assert.Equal(t, int64(1700000000), ev.Timestamp)
	assert.Equal(t, "JUPITER", ev.Source)

	require.Len(t, ev.NativeTransfers, 1)
	assert.InDelta(t, 2.0, ev.NativeTransfers[0].Amount, 1e-12)
	require.Len(t, ev.TokenTransfers, 1)
	assert.Equal(t, 1000.0, ev.TokenTransfers[0].Amount)

	require.Len(t, ev.AccountChanges, 1, "zero changes are dropped")
	d, ok := ev.NativeDeltaOf(wallet)
	require.True(t, ok)
	assert.InDelta(t, -2.000005, d, 1e-12)

	require.NotNil(t, ev.Swap)
	require.NotNil(t, ev.Swap.NativeInput)
	assert.InDelta(t, 2.0, ev.Swap.NativeInput.Amount, 1e-12)
	require.Len(t, ev.Swap.TokenOutputs, 1)
	assert.Equal(t, mintX, ev.Swap.TokenOutputs[0].Mint)
	assert.InDelta(t, 1000.0, ev.Swap.TokenOutputs[0].Amount, 1e-9)
}

func TestDecodeBatch_ArrayWithBadItems(t *testing.T) {
	body := "[" + enhancedSwapJSON("sig1") + `,
		{"type": "SWAP", "feePayer": "` + wallet + `", "signature": ""},
		42,
		{"hello": "world"},
		{"signature": "sig5", "type": "SWAP", "feePayer": "not-an-address"}
	]`

	batch, err := DecodeBatch([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, 5, batch.Total)
	require.Len(t, batch.Events, 1)
	assert.Equal(t, "sig1", batch.Events[0].Signature)
	require.Len(t, batch.Rejected, 4)
	assert.Equal(t, 1, batch.Rejected[0].Index)
	assert.Equal(t, ShapeUnknown, batch.Rejected[1].Shape)
	assert.Equal(t, ShapeUnknown, batch.Rejected[2].Shape)
	assert.Equal(t, ShapeEnhanced, batch.Rejected[3].Shape)
}

func TestDecodeBatch_NotJSON(t *testing.T) {
	for _, body := range []string{"", "   ", "not json", `"a string"`, "42", `{"broken":`} {
		_, err := DecodeBatch([]byte(body))
		assert.True(t, errors.Is(err, ErrNotJSON), "body %q: got %v", body, err)
	}
}

func TestDecodeBatch_EmptyArray(t *testing.T) {
	batch, err := DecodeBatch([]byte(`[]`))
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Total)
	assert.Empty(t, batch.Events)
}

func TestDecodeBatch_MissingEventsIsPlainEvent(t *testing.T) {
	body := fmt.Sprintf(`{"signature":"sig1","type":"TRANSFER","feePayer":%q,"events":{}}`, wallet)
	batch, err := DecodeBatch([]byte(body))
	require.NoError(t, err)
	require.Len(t, batch.Events, 1)
	assert.Nil(t, batch.Events[0].Swap)
	assert.Equal(t, domain.EventTypeTransfer, batch.Events[0].Type)
}

func TestFlexFloat(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{`12.5`, 12.5, false},
		{`"12.5"`, 12.5, false},
		{`""`, 0, false},
		{`"abc"`, 0, true},
		{`true`, 0, true},
	}
	for _, tt := range tests {
		var f flexFloat
		err := f.UnmarshalJSON([]byte(tt.in))
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, float64(f), tt.in)
	}
}
