// Package cursor implements the opaque page token handed to callers of the
// raw-record path.
//
// A token is base64url(version byte || protowire message). Version 1 carries:
//
//	1: sort key start time, unix nanoseconds (zigzag varint)
//	2: sort key record id (16 bytes)
//	3: query fingerprint (bytes)
//
// Unknown fields are skipped on decode so later versions can add fields without
// breaking holders of old tokens.
package cursor

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/encoding/protowire"
)

// ErrInvalidCursor is returned for undecodable tokens and for tokens issued by a different query.
var ErrInvalidCursor = errors.New("invalid cursor")

// Version is the current token format.
const Version byte = 1

const (
	fieldStartTime   protowire.Number = 1
	fieldRecordID    protowire.Number = 2
	fieldFingerprint protowire.Number = 3
)

// fingerprintSize is the truncated SHA-256 length embedded in tokens.
const fingerprintSize = 16

// SortKey is the position of the last record returned on a page.
type SortKey struct {
	StartTime time.Time
	ID        uuid.UUID
}

// Query is the set of parameters a cursor is bound to.
type Query struct {
	MetricType string
	Start      time.Time
	End        time.Time
	Limit      int
}

// Fingerprint returns a stable digest of q.
func (q Query) Fingerprint() []byte {
	h := sha256.New()
	var buf [8]byte
	h.Write([]byte(q.MetricType))
	h.Write([]byte{0})
	binary.BigEndian.PutUint64(buf[:], uint64(q.Start.UnixNano()))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(q.End.UnixNano()))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(int64(q.Limit)))
	h.Write(buf[:])
	return h.Sum(nil)[:fingerprintSize]
}

// Cursor is the decoded token.
type Cursor struct {
	After       SortKey
	Fingerprint []byte
}

// New binds key to the query that produced it.
func New(q Query, key SortKey) Cursor {
	return Cursor{After: key, Fingerprint: q.Fingerprint()}
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	b := []byte{Version}
	b = protowire.AppendTag(b, fieldStartTime, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(c.After.StartTime.UnixNano()))
	b = protowire.AppendTag(b, fieldRecordID, protowire.BytesType)
	b = protowire.AppendBytes(b, c.After.ID[:])
	b = protowire.AppendTag(b, fieldFingerprint, protowire.BytesType)
	b = protowire.AppendBytes(b, c.Fingerprint)
	return base64.RawURLEncoding.EncodeToString(b)
}

// Decode parses a token without checking which query it belongs to.
func Decode(token string) (Cursor, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: not base64url", ErrInvalidCursor)
	}
	if len(raw) == 0 {
		return Cursor{}, fmt.Errorf("%w: empty token", ErrInvalidCursor)
	}
	if raw[0] != Version {
		return Cursor{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidCursor, raw[0])
	}

	var c Cursor
	var haveStart, haveID, haveFP bool
	b := raw[1:]
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldStartTime && typ == protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, protowire.ParseError(m))
			}
			c.After.StartTime = time.Unix(0, protowire.DecodeZigZag(v)).UTC()
			haveStart = true
			b = b[m:]
		case num == fieldRecordID && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, protowire.ParseError(m))
			}
			id, err := uuid.FromBytes(v)
			if err != nil {
				return Cursor{}, fmt.Errorf("%w: bad record id", ErrInvalidCursor)
			}
			c.After.ID = id
			haveID = true
			b = b[m:]
		case num == fieldFingerprint && typ == protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, protowire.ParseError(m))
			}
			c.Fingerprint = append([]byte(nil), v...)
			haveFP = true
			b = b[m:]
		default:
			m := protowire.ConsumeFieldValue(num, typ, b)
			if m < 0 {
				return Cursor{}, fmt.Errorf("%w: %v", ErrInvalidCursor, protowire.ParseError(m))
			}
			b = b[m:]
		}
	}

	if !haveStart || !haveID || !haveFP {
		return Cursor{}, fmt.Errorf("%w: missing fields", ErrInvalidCursor)
	}
	return c, nil
}

// DecodeFor parses a token and checks it was issued for q.
func DecodeFor(token string, q Query) (Cursor, error) {
	c, err := Decode(token)
	if err != nil {
		return Cursor{}, err
	}
	if !bytes.Equal(c.Fingerprint, q.Fingerprint()) {
		return Cursor{}, fmt.Errorf("%w: issued for a different query", ErrInvalidCursor)
	}
	return c, nil
}
