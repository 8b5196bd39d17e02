package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"royaltyPool/internal/model"
)

func TestJsonlStorageAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs.jsonl")
	store := NewJsonlStorage(path)
	ctx := context.Background()

	first := []model.LogRecord{{BlockNumber: 1, TxHash: "0xaa", LogIndex: 0, Topics: []string{"0x01"}, Source: model.SourceChain}}
	second := []model.LogRecord{{BlockNumber: 2, TxHash: "0xbb", LogIndex: 1, Topics: []string{"0x02"}, Source: model.SourceSimulated}}

	if err := store.PutLogBatch(ctx, first); err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if err := store.PutLogBatch(ctx, nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if err := store.PutLogBatch(ctx, second); err != nil {
		t.Fatalf("second batch: %v", err)
	}

	got, err := ReadLogRecords(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	want := append(append([]model.LogRecord{}, first...), second...)
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("records mismatch: %+v != %+v", got, want)
	}
}

func TestScanJSONLSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "in.jsonl")
	if err := os.WriteFile(path, []byte("{\"a\":1}\n\n  \n{\"a\":2}\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	var lines int
	if err := ScanJSONL(path, func([]byte) error { lines++; return nil }); err != nil {
		t.Fatalf("scan: %v", err)
	}
	if lines != 2 {
		t.Fatalf("expected 2 lines, got %d", lines)
	}

	stop := errors.New("stop")
	if err := ScanJSONL(path, func([]byte) error { return stop }); !errors.Is(err, stop) {
		t.Fatalf("expected callback error, got %v", err)
	}
}

func TestJSONLWriterTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	for i := 0; i < 2; i++ {
		w, err := NewJSONLWriter(path, false)
		if err != nil {
			t.Fatalf("open: %v", err)
		}
		if err := w.Write(map[string]int{"run": i}); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("close: %v", err)
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "{\"run\":1}\n" {
		t.Fatalf("unexpected content: %q", data)
	}
}

type failingSink struct{ calls int }

func (f *failingSink) PutLogBatch(context.Context, []model.LogRecord) error {
	f.calls++
	return errors.New("down")
}

func TestMultiSinkStopsOnError(t *testing.T) {
	failing := &failingSink{}
	after := &failingSink{}
	sink := MultiSink{nil, failing, after}
	if err := sink.PutLogBatch(context.Background(), []model.LogRecord{{}}); err == nil {
		t.Fatalf("expected error")
	}
	if failing.calls != 1 || after.calls != 0 {
		t.Fatalf("unexpected calls: %d %d", failing.calls, after.calls)
	}
}
