package kv

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"
)

// Record Framing
// ==============
//
// Every file is stored as one value:
//
//	+----------------+----------------------+-----------------+
//	| length (int32) | mtime (int64 millis) | payload (bytes) |
//	+----------------+----------------------+-----------------+
//	  4 bytes BE        8 bytes BE            length bytes
//
// The length field always equals len(payload). Probes that only need the
// size or the modification time decode the 12 byte header and never touch
// the payload.

// headerSize is the fixed size of the record header.
const headerSize = 4 + 8

// errCorruptRecord is returned when a stored value does not match the framing.
var errCorruptRecord = errors.New("corrupt kv record")

// recordHeader is the decoded fixed-size prefix of a record.
type recordHeader struct {
	Length  int32
	ModTime time.Time
}

// encodeRecord frames payload with its length and modification time.
func encodeRecord(payload []byte, mtime time.Time) []byte {
	buf := make([]byte, headerSize+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(int32(len(payload))))
	binary.BigEndian.PutUint64(buf[4:12], uint64(mtime.UnixMilli()))
	copy(buf[headerSize:], payload)
	return buf
}

// decodeHeader reads the header of value without copying the payload.
func decodeHeader(value []byte) (recordHeader, error) {
	if len(value) < headerSize {
		return recordHeader{}, fmt.Errorf("%w: %d bytes, header needs %d", errCorruptRecord, len(value), headerSize)
	}
	length := int32(binary.BigEndian.Uint32(value[0:4]))
	if length < 0 {
		return recordHeader{}, fmt.Errorf("%w: negative length %d", errCorruptRecord, length)
	}
	millis := int64(binary.BigEndian.Uint64(value[4:12]))
	return recordHeader{Length: length, ModTime: time.UnixMilli(millis)}, nil
}

// decodeRecord returns a copy of the payload of value.
func decodeRecord(value []byte) ([]byte, recordHeader, error) {
	h, err := decodeHeader(value)
	if err != nil {
		return nil, recordHeader{}, err
	}
	if int(h.Length) != len(value)-headerSize {
		return nil, recordHeader{}, fmt.Errorf("%w: length field %d, payload %d", errCorruptRecord, h.Length, len(value)-headerSize)
	}
	payload := make([]byte, h.Length)
	copy(payload, value[headerSize:])
	return payload, h, nil
}
