package changelog

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/cockroachdb/pebble"
)

var pebblePrefix = []byte("cl/")

// PebbleLog stores entries in Pebble keyed by sequence so iteration is in
// append order.
type PebbleLog struct {
	db *pebble.DB
}

func OpenPebbleLog(dir string) (*PebbleLog, error) {
	opts := &pebble.Options{
		MemTableSize:             64 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    4,
		L0StopWritesThreshold:    8,
		WALBytesPerSync:          1 << 20,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleLog{db: d}, nil
}

func (p *PebbleLog) Close() error { return p.db.Close() }

func pebbleKey(seq int64) []byte {
	k := make([]byte, len(pebblePrefix)+8)
	copy(k, pebblePrefix)
	binary.BigEndian.PutUint64(k[len(pebblePrefix):], uint64(seq))
	return k
}

func (p *PebbleLog) Append(e Entry) error {
	b, err := json.Marshal(&e)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	// WAL covers durability; no fsync per entry
	if err := p.db.Set(pebbleKey(e.Seq), b, pebble.NoSync); err != nil {
		return fmt.Errorf("pebble set: %w", err)
	}
	return nil
}

// Scan visits entries with Seq > afterSeq in sequence order.
func (p *PebbleLog) Scan(afterSeq int64, fn func(e Entry) error) error {
	lower := pebbleKey(afterSeq + 1)
	if afterSeq < 0 {
		lower = pebbleKey(0)
	}
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: []byte("cl0"), // first key after the "cl/" prefix
	})
	if err != nil {
		return fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		var e Entry
		if err := json.Unmarshal(it.Value(), &e); err != nil {
			return fmt.Errorf("decode seq key %x: %w", it.Key(), err)
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return it.Error()
}

// LastSeq returns the highest stored sequence, or 0 for an empty log.
func (p *PebbleLog) LastSeq() (int64, error) {
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: pebblePrefix, UpperBound: []byte("cl0")})
	if err != nil {
		return 0, fmt.Errorf("pebble iter: %w", err)
	}
	defer it.Close()
	if !it.Last() {
		return 0, it.Error()
	}
	k := it.Key()
	return int64(binary.BigEndian.Uint64(k[len(pebblePrefix):])), nil
}
