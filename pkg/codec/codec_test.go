package codec

import (
	"fmt"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkvstore/coordinator/pkg/types"
)

func TestSerializeParse_RoundTrip(t *testing.T) {
	cases := []types.Record{
		{Volumes: []string{"v0", "v1"}, Hash: "", Deleted: types.Live},
		{Volumes: []string{"v0"}, Hash: "0123456789abcdef0123456789abcdef", Deleted: types.Live},
		{Volumes: []string{"v0", "v1", "v2"}, Hash: "ffffffffffffffffffffffffffffffff", Deleted: types.Live},
		{Volumes: nil, Hash: "", Deleted: types.Soft},
		{Volumes: []string{"v0"}, Hash: "0123456789abcdef0123456789abcdef", Deleted: types.Soft},
	}

	for i, want := range cases {
		data, err := Serialize(want)
		require.NoErrorf(t, err, "case %d", i)

		got, err := Parse(data)
		require.NoErrorf(t, err, "case %d", i)

		assert.Equalf(t, want.Deleted, got.Deleted, "case %d", i)
		assert.Equalf(t, want.Hash, got.Hash, "case %d", i)
		assert.Equalf(t, want.Volumes, got.Volumes, "case %d", i)
	}
}

func TestSerializeParse_RandomRoundTrip(t *testing.T) {
	for i := 0; i < 1000; i++ {
		n := rand.IntN(5) + 1
		volumes := make([]string, n)
		for j := range volumes {
			volumes[j] = fmt.Sprintf("vol-%d", rand.IntN(50))
		}

		rec := types.Record{Volumes: volumes, Deleted: types.Live}
		if rand.IntN(2) == 0 {
			rec.Hash = randHex(32)
		}
		if rand.IntN(4) == 0 {
			rec.Deleted = types.Soft
		}

		data, err := Serialize(rec)
		require.NoErrorf(t, err, "iter %d: serialize %+v", i, rec)

		got, err := Parse(data)
		require.NoErrorf(t, err, "iter %d: parse %q", i, data)

		assert.Equalf(t, rec.Deleted, got.Deleted, "iter %d", i)
		assert.Equalf(t, rec.Hash, got.Hash, "iter %d", i)
		assert.Equalf(t, rec.Volumes, got.Volumes, "iter %d", i)
	}
}

func TestSerialize_RefusesHardDelete(t *testing.T) {
	_, err := Serialize(types.Record{Deleted: types.Hard})
	assert.Equal(t, ErrHardDelete, err)
}

func TestSerialize_RejectsBadHashLength(t *testing.T) {
	_, err := Serialize(types.Record{Volumes: []string{"v0"}, Hash: "tooshort"})
	assert.Error(t, err)
}

func TestParse_TruncatedHashIsMalformed(t *testing.T) {
	_, err := Parse([]byte("HASHabc"))
	assert.Error(t, err)
}

func TestParse_EmptyLiveRecordIsMalformed(t *testing.T) {
	_, err := Parse([]byte(""))
	assert.Error(t, err)
}

func TestParse_DeletedWithNoVolumesIsValid(t *testing.T) {
	rec, err := Parse([]byte("DELETED"))
	require.NoError(t, err)
	assert.Equal(t, types.Soft, rec.Deleted)
	assert.Empty(t, rec.Volumes)
}

func randHex(n int) string {
	const digits = "0123456789abcdef"
	b := make([]byte, n)
	for i := range b {
		b[i] = digits[rand.IntN(len(digits))]
	}
	return string(b)
}
