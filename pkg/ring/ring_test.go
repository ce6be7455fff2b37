package ring

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBufferEvictsOldestBytes(t *testing.T) {
	b := New(8)
	n, err := b.Write([]byte("abcdefgh"))
	assert.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.Equal(t, []byte("abcdefgh"), b.Bytes())

	_, err = b.Write([]byte("ij"))
	assert.NoError(t, err)
	assert.Equal(t, []byte("cdefghij"), b.Bytes())
}

func TestBufferResetClears(t *testing.T) {
	b := New(16)
	b.Write([]byte("hello"))
	b.Reset()
	assert.Empty(t, b.Bytes())
}

func TestBufferDefaultCapacity(t *testing.T) {
	b := New(0)
	assert.Equal(t, DefaultMaxBytes, b.maxBytes)
}
