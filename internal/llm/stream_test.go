package llm

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTextStreamDeliversOneFragment(t *testing.T) {
	s := NewTextStream("hello")

	fragment, err := s.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hello", fragment)

	_, err = s.Recv()
	assert.Equal(t, io.EOF, err)
	assert.NoError(t, s.Close())
}

func TestTextStreamEmptyIsValidEmptyCompletion(t *testing.T) {
	s := NewTextStream("")
	_, err := s.Recv()
	assert.Equal(t, io.EOF, err)
}

func TestDrainConcatenates(t *testing.T) {
	text, err := Drain(NewTextStream("all at once"))
	require.NoError(t, err)
	assert.Equal(t, "all at once", text)
}
