// Package wireheader implements the 80-byte block-header wire codec
// plus the trailing varint transaction count, per spec.md §6.
// Grounded on the teacher's legacy wire-level header handling
// (services/legacy/netsync/manager.go, services/legacy/p2p/BlockMessage.go).
package wireheader

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"io"

	"github.com/chainforge/core/internal/chainparams"
	"github.com/chainforge/core/internal/errors"
	"github.com/chainforge/core/internal/target"
	"github.com/libsv/go-bt/v2/chainhash"
)

const HeaderSize = 80

// Encode writes h's 80-byte wire form to w.
func Encode(w io.Writer, h chainparams.BlockHeader) error {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], uint32(h.Version))
	copy(buf[4:36], h.PrevHash[:])
	copy(buf[36:68], h.MerkleRoot[:])
	binary.LittleEndian.PutUint32(buf[68:72], h.Timestamp)
	binary.LittleEndian.PutUint32(buf[72:76], uint32(h.Bits))
	binary.LittleEndian.PutUint32(buf[76:80], h.Nonce)
	_, err := w.Write(buf[:])
	return err
}

// Decode reads an 80-byte wire-form header from r.
func Decode(r io.Reader) (chainparams.BlockHeader, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return chainparams.BlockHeader{}, err
	}

	var h chainparams.BlockHeader
	h.Version = int32(binary.LittleEndian.Uint32(buf[0:4]))
	copy(h.PrevHash[:], buf[4:36])
	copy(h.MerkleRoot[:], buf[36:68])
	h.Timestamp = binary.LittleEndian.Uint32(buf[68:72])
	h.Bits = target.CompactTarget(binary.LittleEndian.Uint32(buf[72:76]))
	h.Nonce = binary.LittleEndian.Uint32(buf[76:80])
	return h, nil
}

// DecodeBatch reads a "headers" message body: a varint count of
// headers, each followed by its own trailing varint transaction count
// (always 0 for bare header messages; any nonzero value is rejected,
// per spec.md §6).
func DecodeBatch(r io.Reader) ([]chainparams.BlockHeader, error) {
	count, err := readVarInt(r)
	if err != nil {
		return nil, err
	}

	headers := make([]chainparams.BlockHeader, 0, count)
	for i := uint64(0); i < count; i++ {
		h, err := Decode(r)
		if err != nil {
			return nil, err
		}
		txCount, err := readVarInt(r)
		if err != nil {
			return nil, err
		}
		if txCount != 0 {
			return nil, errors.New(errors.ERR_INVALID_ARGUMENT, "headers message: non-zero trailing tx count %d", txCount)
		}
		headers = append(headers, h)
	}
	return headers, nil
}

// EncodeBatch is the inverse of DecodeBatch.
func EncodeBatch(w io.Writer, headers []chainparams.BlockHeader) error {
	if err := writeVarInt(w, uint64(len(headers))); err != nil {
		return err
	}
	for _, h := range headers {
		if err := Encode(w, h); err != nil {
			return err
		}
		if err := writeVarInt(w, 0); err != nil {
			return err
		}
	}
	return nil
}

func readVarInt(r io.Reader) (uint64, error) {
	var prefix [1]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return 0, err
	}
	switch prefix[0] {
	case 0xfd:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint16(b[:])), nil
	case 0xfe:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return uint64(binary.LittleEndian.Uint32(b[:])), nil
	case 0xff:
		var b [8]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		return binary.LittleEndian.Uint64(b[:]), nil
	default:
		return uint64(prefix[0]), nil
	}
}

func writeVarInt(w io.Writer, v uint64) error {
	switch {
	case v < 0xfd:
		_, err := w.Write([]byte{byte(v)})
		return err
	case v <= 0xffff:
		buf := make([]byte, 3)
		buf[0] = 0xfd
		binary.LittleEndian.PutUint16(buf[1:], uint16(v))
		_, err := w.Write(buf)
		return err
	case v <= 0xffffffff:
		buf := make([]byte, 5)
		buf[0] = 0xfe
		binary.LittleEndian.PutUint32(buf[1:], uint32(v))
		_, err := w.Write(buf)
		return err
	default:
		buf := make([]byte, 9)
		buf[0] = 0xff
		binary.LittleEndian.PutUint64(buf[1:], v)
		_, err := w.Write(buf)
		return err
	}
}

// Hash computes the double-SHA256 of h's 80-byte wire form — the
// header's identity hash used throughout the timechain.
func Hash(h chainparams.BlockHeader) chainhash.Hash {
	var buf bytes.Buffer
	buf.Grow(HeaderSize)
	_ = Encode(&buf, h)
	first := sha256.Sum256(buf.Bytes())
	second := sha256.Sum256(first[:])
	return chainhash.Hash(second)
}
