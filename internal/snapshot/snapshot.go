// Package snapshot reads and writes the compact binary snapshot format
// described in spec.md §4.2: a 9-byte magic/version header, a metadata
// section, one keyspace section with per-entry expiry, an end-of-file
// marker, and a trailing CRC64 checksum.
//
// The overall shape — a fixed magic+version header read/written with
// bufio and encoding/binary, followed by a recursive length-prefixed body
// — is carried over from the teacher's binary checkpoint format
// (pkg/metricstore/binaryCheckpoint.go); the byte layout itself is the
// RDB-style format spec.md mandates, not the teacher's tree-shaped one.
package snapshot

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/crc64"
	"io"
	"time"

	"github.com/memnode/memnode/internal/store"
)

const magic = "REDIS0011"

const (
	opMetaAux    = 0xFA
	opSelectDB   = 0xFE
	opResizeDB   = 0xFB
	opExpiryMS   = 0xFC
	opExpirySec  = 0xFD
	opEOF        = 0xFF
	valueTypeStr = 0x00
)

var crcTable = crc64.MakeTable(crc64.ECMA)

// EmptyRDB is the fixed empty-database payload returned verbatim as the
// initial FULLRESYNC body, per spec.md §4.2/§9(b): the source always ships
// this constant instead of a live snapshot on first sync. It is 43 bytes:
// the header, one redis-ver metadata pair, an empty database section, the
// EOF marker and the CRC64 trailer.
var EmptyRDB = buildEmptyRDB()

func buildEmptyRDB() []byte {
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.WriteByte(opMetaAux)
	writeLengthString(&buf, "redis-ver")
	writeLengthString(&buf, "7.0.0")
	buf.WriteByte(opSelectDB)
	writeLengthInt(&buf, 0)
	buf.WriteByte(opResizeDB)
	writeLengthInt(&buf, 0)
	writeLengthInt(&buf, 0)
	buf.WriteByte(opEOF)
	sum := crc64.Checksum(buf.Bytes(), crcTable)
	var sumBytes [8]byte
	binary.LittleEndian.PutUint64(sumBytes[:], sum)
	buf.Write(sumBytes[:])
	return buf.Bytes()
}

// writeLengthString writes the 6-bit-length size-prefixed string form: the
// writer restricts itself to <=63-byte raw strings, per spec.md §4.2.
func writeLengthString(w *bytes.Buffer, s string) error {
	if len(s) > 63 {
		return fmt.Errorf("snapshot: string %q exceeds the 63-byte writer limit", s)
	}
	w.WriteByte(byte(len(s)))
	w.WriteString(s)
	return nil
}

// writeLengthInt writes a small non-negative integer using the top-bits-11
// special-integer encoding (8/16/32-bit little-endian payload selected by
// magnitude).
func writeLengthInt(w *bytes.Buffer, v uint32) {
	switch {
	case v <= 0xFF:
		w.WriteByte(0xC0)
		w.WriteByte(byte(v))
	case v <= 0xFFFF:
		w.WriteByte(0xC1)
		var b [2]byte
		binary.LittleEndian.PutUint16(b[:], uint16(v))
		w.Write(b[:])
	default:
		w.WriteByte(0xC2)
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		w.Write(b[:])
	}
}

// readLength decodes one size-prefixed length field, returning either a
// raw string length or (for the special-integer form) the decoded integer
// value as a length-equivalent count.
func readLength(r *bufio.Reader) (n uint32, isInt bool, err error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, false, err
	}
	switch b >> 6 {
	case 0b00:
		return uint32(b & 0x3F), false, nil
	case 0b11:
		switch b & 0x3F {
		case 0:
			v, err := r.ReadByte()
			return uint32(v), true, err
		case 1:
			var buf [2]byte
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return 0, true, err
			}
			return uint32(binary.LittleEndian.Uint16(buf[:])), true, nil
		case 2:
			var buf [4]byte
			if _, err := io.ReadFull(r, buf[:]); err != nil {
				return 0, true, err
			}
			return binary.LittleEndian.Uint32(buf[:]), true, nil
		default:
			return 0, false, fmt.Errorf("snapshot: unsupported special-integer subtype %d", b&0x3F)
		}
	default:
		return 0, false, fmt.Errorf("snapshot: unsupported length-prefix form %02b", b>>6)
	}
}

func readString(r *bufio.Reader) (string, error) {
	n, isInt, err := readLength(r)
	if err != nil {
		return "", err
	}
	if isInt {
		return fmt.Sprintf("%d", n), nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

// Write serializes the given string entries to w in the spec.md §4.2
// layout, finishing with a CRC64 trailer over everything written before
// it. Only string-valued entries are accepted: callers should pass
// Keyspace.SnapshotStrings().
func Write(w io.Writer, entries map[string]store.Entry) error {
	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.WriteByte(opMetaAux)
	if err := writeLengthString(&buf, "redis-ver"); err != nil {
		return err
	}
	if err := writeLengthString(&buf, "7.0.0"); err != nil {
		return err
	}

	buf.WriteByte(opSelectDB)
	writeLengthInt(&buf, 0)

	nTTL := 0
	for _, e := range entries {
		if !e.ExpireAt.IsZero() {
			nTTL++
		}
	}
	buf.WriteByte(opResizeDB)
	writeLengthInt(&buf, uint32(len(entries)))
	writeLengthInt(&buf, uint32(nTTL))

	for key, e := range entries {
		if !e.ExpireAt.IsZero() {
			buf.WriteByte(opExpiryMS)
			var b [8]byte
			binary.LittleEndian.PutUint64(b[:], uint64(e.ExpireAt.UnixMilli()))
			buf.Write(b[:])
		}
		buf.WriteByte(valueTypeStr)
		if err := writeLengthString(&buf, key); err != nil {
			return err
		}
		if err := writeLengthString(&buf, e.Value.Str); err != nil {
			return err
		}
	}

	buf.WriteByte(opEOF)

	sum := crc64.Checksum(buf.Bytes(), crcTable)
	var sumBytes [8]byte
	binary.LittleEndian.PutUint64(sumBytes[:], sum)
	buf.Write(sumBytes[:])

	bw := bufio.NewWriter(w)
	if _, err := bw.Write(buf.Bytes()); err != nil {
		return err
	}
	return bw.Flush()
}

// Read parses a snapshot, returning the string entries it contains. A value
// type other than "string" (0x00) stops the load with an "unsupported value
// type" error, since its payload cannot be skipped without decoding it; the
// skippedOtherTypes count is therefore always 0 on success.
func Read(r io.Reader) (entries map[string]store.Entry, skippedOtherTypes int, err error) {
	br := bufio.NewReader(r)

	magicBuf := make([]byte, len(magic))
	if _, err := io.ReadFull(br, magicBuf); err != nil {
		return nil, 0, fmt.Errorf("snapshot: truncated header: %w", err)
	}
	if string(magicBuf) != magic {
		return nil, 0, fmt.Errorf("snapshot: bad magic %q", magicBuf)
	}

	entries = make(map[string]store.Entry)

	for {
		op, err := br.ReadByte()
		if err != nil {
			return nil, 0, fmt.Errorf("snapshot: truncated file, no EOF marker: %w", err)
		}

		switch op {
		case opMetaAux:
			if _, err := readString(br); err != nil {
				return nil, 0, fmt.Errorf("snapshot: reading metadata key: %w", err)
			}
			if _, err := readString(br); err != nil {
				return nil, 0, fmt.Errorf("snapshot: reading metadata value: %w", err)
			}
		case opSelectDB:
			if _, _, err := readLength(br); err != nil {
				return nil, 0, fmt.Errorf("snapshot: reading db index: %w", err)
			}
		case opResizeDB:
			if _, _, err := readLength(br); err != nil {
				return nil, 0, fmt.Errorf("snapshot: reading total count: %w", err)
			}
			if _, _, err := readLength(br); err != nil {
				return nil, 0, fmt.Errorf("snapshot: reading ttl count: %w", err)
			}
		case opExpirySec, opExpiryMS:
			var expireAt time.Time
			if op == opExpirySec {
				var b [4]byte
				if _, err := io.ReadFull(br, b[:]); err != nil {
					return nil, 0, fmt.Errorf("snapshot: reading seconds expiry: %w", err)
				}
				expireAt = time.Unix(int64(binary.LittleEndian.Uint32(b[:])), 0)
			} else {
				var b [8]byte
				if _, err := io.ReadFull(br, b[:]); err != nil {
					return nil, 0, fmt.Errorf("snapshot: reading ms expiry: %w", err)
				}
				expireAt = time.UnixMilli(int64(binary.LittleEndian.Uint64(b[:])))
			}
			valueType, err := br.ReadByte()
			if err != nil {
				return nil, 0, fmt.Errorf("snapshot: reading value type: %w", err)
			}
			key, val, skip, err := readEntry(br, valueType)
			if err != nil {
				return nil, 0, err
			}
			if skip {
				skippedOtherTypes++
				continue
			}
			entries[key] = store.Entry{Value: store.Value{Kind: store.KindString, Str: val}, ExpireAt: expireAt}
		case opEOF:
			// Trailing CRC64; validated by the caller if desired via
			// ReadFull against a reader that also captures the raw bytes.
			var sum [8]byte
			if _, err := io.ReadFull(br, sum[:]); err != nil {
				return nil, 0, fmt.Errorf("snapshot: truncated checksum: %w", err)
			}
			return entries, skippedOtherTypes, nil
		default:
			// A bare value_type byte with no preceding expiry prefix.
			key, val, skip, err := readEntry(br, op)
			if err != nil {
				return nil, 0, err
			}
			if skip {
				skippedOtherTypes++
				continue
			}
			entries[key] = store.Entry{Value: store.Value{Kind: store.KindString, Str: val}}
		}
	}
}

func readEntry(br *bufio.Reader, valueType byte) (key, val string, skip bool, err error) {
	key, err = readString(br)
	if err != nil {
		return "", "", false, fmt.Errorf("snapshot: reading key: %w", err)
	}
	if valueType != valueTypeStr {
		// Non-goal: non-string value types are recognized but not decoded.
		// We cannot skip their payload without knowing its shape, so this
		// is a hard stop rather than a silent corruption.
		return "", "", false, fmt.Errorf("snapshot: unsupported value type 0x%02x for key %q", valueType, key)
	}
	val, err = readString(br)
	if err != nil {
		return "", "", false, fmt.Errorf("snapshot: reading value for key %q: %w", key, err)
	}
	return key, val, false, nil
}
