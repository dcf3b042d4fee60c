package kafka

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnwrapPayload(t *testing.T) {
	type payload struct {
		OrderID string `json:"order_id"`
	}
	got, err := UnwrapPayload[payload](json.RawMessage(`{"order_id":"o1"}`))
	require.NoError(t, err)
	assert.Equal(t, "o1", got.OrderID)

	_, err = UnwrapPayload[payload](json.RawMessage(`{`))
	assert.ErrorContains(t, err, "decode payload")
}

func TestMustMarshal_Panics(t *testing.T) {
	assert.Panics(t, func() { MustMarshal(make(chan int)) })
	assert.JSONEq(t, `{"a":1}`, string(MustMarshal(map[string]int{"a": 1})))
}
