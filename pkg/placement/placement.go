// Package placement implements the coordinator's rendezvous-hash placement
// algorithm: which volumes hold a given key, and where on a volume's
// filesystem its bytes live. Both functions are pure and allocation-light so
// writers and readers agree on placement without any shared state beyond the
// static volume list.
package placement

import (
	"crypto/md5"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"sort"
)

// Key2Volume picks the N volumes that should hold key, using rendezvous
// (highest-random-weight) hashing: score(v) = MD5(key || v), volumes sorted
// by score descending, top N taken. When subvolumes > 1 each chosen volume id
// is suffixed with a deterministic "/svHH" sub-volume derived from the same
// score, so the partition is a pure function of the key rather than random
// state the reader would need to be told about.
//
// Key2Volume is deterministic and minimally disruptive: adding or removing a
// volume unrelated to a key's current placement does not change that key's
// chosen set.
func Key2Volume(key []byte, volumes []string, replicas, subvolumes int) []string {
	if replicas > len(volumes) {
		replicas = len(volumes)
	}

	type scored struct {
		volume string
		score  [md5.Size]byte
	}

	scores := make([]scored, len(volumes))
	for i, v := range volumes {
		buf := make([]byte, 0, len(key)+len(v))
		buf = append(buf, key...)
		buf = append(buf, v...)
		scores[i] = scored{volume: v, score: md5.Sum(buf)}
	}

	sort.Slice(scores, func(i, j int) bool {
		// Descending bytewise comparison of the score.
		for b := 0; b < md5.Size; b++ {
			if scores[i].score[b] != scores[j].score[b] {
				return scores[i].score[b] > scores[j].score[b]
			}
		}
		return false
	})

	chosen := make([]string, replicas)
	for i := 0; i < replicas; i++ {
		v := scores[i].volume
		if subvolumes > 1 {
			sv := binary.BigEndian.Uint32(scores[i].score[12:16]) % uint32(subvolumes)
			v = fmt.Sprintf("%s/sv%02X", v, sv)
		}
		chosen[i] = v
	}
	return chosen
}

// Key2Path maps a key to the path a volume server stores it under:
// "/XX/YY/<base64url(key)>", where XX and YY are the first two bytes of
// MD5(key) as lowercase hex. The two hex levels shard files across
// filesystem directories on the volume.
func Key2Path(key []byte) string {
	sum := md5.Sum(key)
	b64 := base64.URLEncoding.EncodeToString(key)
	return fmt.Sprintf("/%s/%s/%s", hex.EncodeToString(sum[0:1]), hex.EncodeToString(sum[1:2]), b64)
}

// NeedsRebalance reports whether actual differs from desired — ordered
// comparison, since placement order encodes replica preference.
func NeedsRebalance(actual, desired []string) bool {
	if len(actual) != len(desired) {
		return true
	}
	for i := range actual {
		if actual[i] != desired[i] {
			return true
		}
	}
	return false
}
