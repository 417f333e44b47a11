package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordFraming(t *testing.T) {
	mtime := time.UnixMilli(1_700_000_000_123)
	payload := []byte("hello")

	value := encodeRecord(payload, mtime)

	require.Len(t, value, headerSize+len(payload))
	assert.Equal(t, []byte{0, 0, 0, 5}, value[:4])

	h, err := decodeHeader(value[:headerSize])
	require.NoError(t, err)
	assert.Equal(t, int32(5), h.Length)
	assert.True(t, h.ModTime.Equal(mtime))

	got, _, err := decodeRecord(value)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestRecordEmptyPayload(t *testing.T) {
	got, h, err := decodeRecord(encodeRecord(nil, time.UnixMilli(1)))
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Equal(t, int32(0), h.Length)
}

func TestRecordCorruption(t *testing.T) {
	_, err := decodeHeader([]byte{0, 0, 1})
	assert.ErrorIs(t, err, errCorruptRecord)

	value := encodeRecord([]byte("abc"), time.Now())
	_, _, err = decodeRecord(value[:len(value)-1])
	assert.ErrorIs(t, err, errCorruptRecord)

	value[0] = 0xff
	_, err = decodeHeader(value)
	assert.ErrorIs(t, err, errCorruptRecord)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "r:/docs/a.txt", string(keyRecord("docs//x/../a.txt")))
	assert.Equal(t, "r:/", string(keyChildPrefix("/")))
	assert.Equal(t, "r:/docs/", string(keyChildPrefix("/docs")))

	name, dir := childOf([]byte("r:/docs/img/b.png"), keyChildPrefix("/docs"))
	assert.Equal(t, "img", name)
	assert.True(t, dir)

	name, dir = childOf([]byte("r:/docs/a.txt"), keyChildPrefix("/docs"))
	assert.Equal(t, "a.txt", name)
	assert.False(t, dir)
}
