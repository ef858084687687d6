package cache

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// TTL is how long a timestamped entry stays readable. Legacy entries carry no
// timestamp and never expire.
const TTL = 3600 * time.Second

// ErrNotFound is returned by a Backend when no record exists for a digest.
var ErrNotFound = errors.New("cache: entry not found")

var errUnknownRecord = errors.New("cache: unrecognized record format")

// Entry is one persisted record, addressed by the digest of its key.
type Entry struct {
	Digest   string
	Key      string
	StoredAt time.Time // zero for legacy records
	Record   []byte
}

// Stats summarizes the contents of a backend.
type Stats struct {
	Entries int
	Legacy  int
	Expired int
	Size    int64
}

// Digest maps an arbitrary key to the fixed-length identifier used for storage.
// MD5 keeps legacy cache file names addressable.
func Digest(key string) string {
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])
}

type record struct {
	Timestamp int64           `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

func encodeRecord(storedAt time.Time, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return json.Marshal(record{Timestamp: storedAt.Unix(), Data: data})
}

// decodeRecord understands both record layouts: the current
// {"timestamp", "data"} object and the legacy bare JSON list.
func decodeRecord(b []byte) (data json.RawMessage, storedAt time.Time, legacy bool, err error) {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return nil, time.Time{}, false, errUnknownRecord
	}

	switch b[0] {
	case '[':
		if !json.Valid(b) {
			return nil, time.Time{}, false, errUnknownRecord
		}
		return json.RawMessage(b), time.Time{}, true, nil
	case '{':
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(b, &fields); err != nil {
			return nil, time.Time{}, false, err
		}
		raw, ok := fields["timestamp"]
		if !ok {
			return nil, time.Time{}, false, errUnknownRecord
		}
		var ts float64
		if err := json.Unmarshal(raw, &ts); err != nil {
			return nil, time.Time{}, false, fmt.Errorf("decoding timestamp: %w", err)
		}
		sec, frac := math.Modf(ts)
		data = fields["data"]
		if len(data) == 0 {
			data = json.RawMessage("null")
		}
		return data, time.Unix(int64(sec), int64(frac*1e9)), false, nil
	default:
		return nil, time.Time{}, false, errUnknownRecord
	}
}

func expired(storedAt, now time.Time) bool {
	return now.Sub(storedAt) >= TTL
}
