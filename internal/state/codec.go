package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/crypto/blake2b"
)

// DecodeOptions control migration and pruning during Decode.
type DecodeOptions struct {
	Now time.Time
	// TTL drops entries whose last notification is older than Now-TTL. 0 keeps everything.
	TTL time.Duration
	// Location resolves the local date of migrated timestamps.
	Location *time.Location
	// DefaultMerchant is assigned to legacy keys that predate multi-venue support.
	DefaultMerchant string
}

// DecodeStats describes what Decode did to the stored blob.
type DecodeStats struct {
	Loaded   int
	Migrated int
	Pruned   int
	Dropped  int
}

// Decode parses a stored blob, upgrading older record shapes and pruning
// expired entries. An empty blob decodes to an empty snapshot. Individual
// records that cannot be parsed are dropped and counted.
func Decode(data []byte, opts DecodeOptions) (Snapshot, DecodeStats, error) {
	var stats DecodeStats
	snap := Snapshot{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return snap, stats, nil
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return snap, stats, fmt.Errorf("decode state: %w", err)
	}

	var cutoff int64
	if opts.TTL > 0 {
		cutoff = opts.Now.Add(-opts.TTL).Unix()
	}
	for ks, rv := range raw {
		rec, err := decodeRecord(rv)
		if err != nil {
			stats.Dropped++
			continue
		}
		key, keyMigrated, err := parseStoredKey(ks, opts.DefaultMerchant, opts.Now)
		if err != nil {
			stats.Dropped++
			continue
		}
		st := rec.upgrade(opts.Location)
		if opts.TTL > 0 && st.LastNotified < cutoff {
			stats.Pruned++
			continue
		}
		if keyMigrated || rec.version() != currentVersion {
			stats.Migrated++
		}
		if prev, ok := snap[key]; ok && prev.LastNotified > st.LastNotified {
			continue
		}
		snap[key] = st
	}
	stats.Loaded = len(snap)
	return snap, stats, nil
}

// Encode serializes a snapshot in the current schema. Output is
// deterministic: keys are sorted.
func Encode(snap Snapshot) ([]byte, error) {
	out := make(map[string]recordV2, len(snap))
	for k, v := range snap {
		out[k.String()] = fromState(v)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return b, nil
}

// Digest fingerprints the encoded form of a snapshot.
func Digest(snap Snapshot) ([32]byte, error) {
	b, err := Encode(snap)
	if err != nil {
		return [32]byte{}, err
	}
	return blake2b.Sum256(b), nil
}
