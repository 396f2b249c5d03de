package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeModelJSONPlainObject(t *testing.T) {
	var out struct {
		Topics []string `json:"topics"`
	}
	err := decodeModelJSON(`{"topics":["A","B"]}`, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B"}, out.Topics)
}

func TestDecodeModelJSONStripsCodeFences(t *testing.T) {
	raw := "```json\n{\"topics\":[\"A\"]}\n```"
	var out struct {
		Topics []string `json:"topics"`
	}
	err := decodeModelJSON(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, out.Topics)
}

func TestDecodeModelJSONRecoversEmbeddedObject(t *testing.T) {
	raw := "Here is the JSON you asked for: {\"topics\":[\"A\"]} hope it helps!"
	var out struct {
		Topics []string `json:"topics"`
	}
	err := decodeModelJSON(raw, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, out.Topics)
}

func TestDecodeModelJSONMalformed(t *testing.T) {
	var out map[string]any
	err := decodeModelJSON("not json at all", &out)
	assert.Error(t, err)
}
