package kafka

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Type    string `json:"type"`
	Results int    `json:"results"`
}

func TestEncodeSetsTypeHeader(t *testing.T) {
	msg, err := encode(Event{Key: "query", Type: "pico_query", Value: sample{Type: "pico_query", Results: 3}})
	require.NoError(t, err)

	assert.Equal(t, []byte("query"), msg.Key)
	require.Len(t, msg.Headers, 1)
	assert.Equal(t, TypeHeader, msg.Headers[0].Key)
	assert.Equal(t, "pico_query", string(msg.Headers[0].Value))

	decoded, err := DecodeJSON[sample](msg.Value)
	require.NoError(t, err)
	assert.Equal(t, 3, decoded.Results)
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	_, err := encode(Event{Value: make(chan int)})
	assert.Error(t, err)
}

func TestDecodeJSONError(t *testing.T) {
	_, err := DecodeJSON[sample]([]byte("{not json"))
	assert.ErrorContains(t, err, "decoding kafka message")
}
