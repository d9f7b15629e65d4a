package changelog

import (
	"testing"
)

func TestPebbleLog_AppendScanInSeqOrder(t *testing.T) {
	log, err := OpenPebbleLog(t.TempDir())
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })

	// appended out of order on purpose; keys sort by seq
	for _, seq := range []int64{3, 1, 256, 2} {
		if err := log.Append(Entry{Seq: seq, Kind: KindCreated, OrderID: "o", TS: seq}); err != nil {
			t.Fatalf("append %d: %v", seq, err)
		}
	}

	var seqs []int64
	if err := log.Scan(0, func(e Entry) error { seqs = append(seqs, e.Seq); return nil }); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(seqs) != 4 || seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 || seqs[3] != 256 {
		t.Fatalf("scan order=%v", seqs)
	}

	seqs = nil
	if err := log.Scan(2, func(e Entry) error { seqs = append(seqs, e.Seq); return nil }); err != nil {
		t.Fatalf("scan after 2: %v", err)
	}
	if len(seqs) != 2 || seqs[0] != 3 || seqs[1] != 256 {
		t.Fatalf("scan after 2=%v", seqs)
	}

	last, err := log.LastSeq()
	if err != nil || last != 256 {
		t.Fatalf("last=%d err=%v", last, err)
	}
}

func TestPebbleLog_EmptyLastSeq(t *testing.T) {
	log, err := OpenPebbleLog(t.TempDir())
	if err != nil {
		t.Fatalf("pebble open: %v", err)
	}
	t.Cleanup(func() { _ = log.Close() })
	last, err := log.LastSeq()
	if err != nil || last != 0 {
		t.Fatalf("last=%d err=%v", last, err)
	}
}
