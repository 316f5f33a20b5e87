// Package codec serializes and parses the binary record format stored in the
// index: an optional "DELETED" tombstone marker, an optional "HASH"+32 hex
// digest, followed by comma-separated volume ids. The grammar is positional,
// not delimiter-based — see Parse.
package codec

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mkvstore/coordinator/pkg/types"
)

const (
	deletedPrefix = "DELETED"
	hashPrefix    = "HASH"
	hashLen       = 32
)

// ErrHardDelete is returned by Serialize when asked to persist a Hard record.
// Hard is a transient, in-memory-only label for "about to be removed from the
// index" — see types.Hard.
var ErrHardDelete = errors.New("codec: refusing to serialize a HARD record")

// ErrMalformed is returned by Parse when the input doesn't match the grammar.
var ErrMalformed = errors.New("codec: malformed record")

// Serialize encodes rec into the on-disk byte layout. It returns
// ErrHardDelete if rec.Deleted is types.Hard.
func Serialize(rec types.Record) ([]byte, error) {
	if rec.Deleted == types.Hard {
		return nil, ErrHardDelete
	}
	if len(rec.Volumes) == 0 && rec.Deleted != types.Soft {
		return nil, fmt.Errorf("%w: empty volumes on a live record", ErrMalformed)
	}
	if rec.Hash != "" && len(rec.Hash) != hashLen {
		return nil, fmt.Errorf("%w: hash must be %d hex characters", ErrMalformed, hashLen)
	}

	var buf bytes.Buffer
	if rec.Deleted == types.Soft {
		buf.WriteString(deletedPrefix)
	}
	if rec.Hash != "" {
		buf.WriteString(hashPrefix)
		buf.WriteString(rec.Hash)
	}
	buf.WriteString(joinVolumes(rec.Volumes))
	return buf.Bytes(), nil
}

// Parse decodes the on-disk byte layout into a Record. The grammar is parsed
// positionally: an optional literal "DELETED" prefix, then an optional
// literal "HASH" followed by exactly 32 hex bytes with no delimiter before
// the first volume id, then the comma-separated volume list.
func Parse(data []byte) (types.Record, error) {
	var rec types.Record
	rec.Deleted = types.Live

	rest := data
	if bytes.HasPrefix(rest, []byte(deletedPrefix)) {
		rec.Deleted = types.Soft
		rest = rest[len(deletedPrefix):]
	}

	if bytes.HasPrefix(rest, []byte(hashPrefix)) {
		rest = rest[len(hashPrefix):]
		if len(rest) < hashLen {
			return types.Record{}, fmt.Errorf("%w: truncated hash", ErrMalformed)
		}
		rec.Hash = string(rest[:hashLen])
		rest = rest[hashLen:]
	}

	rec.Volumes = splitVolumes(rest)
	if len(rec.Volumes) == 0 && rec.Deleted != types.Soft {
		return types.Record{}, fmt.Errorf("%w: empty volumes on a live record", ErrMalformed)
	}
	return rec, nil
}

func joinVolumes(volumes []string) string {
	var buf bytes.Buffer
	for i, v := range volumes {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString(v)
	}
	return buf.String()
}

func splitVolumes(rest []byte) []string {
	if len(rest) == 0 {
		return nil
	}
	parts := bytes.Split(rest, []byte(","))
	volumes := make([]string, 0, len(parts))
	for _, p := range parts {
		if len(p) == 0 {
			continue
		}
		volumes = append(volumes, string(p))
	}
	return volumes
}
