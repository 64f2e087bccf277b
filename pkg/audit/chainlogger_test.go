package audit

import (
	"context"
	"testing"
)

func TestChainLogger(t *testing.T) {
	logger := NewChainLogger()

	e1 := logger.Append("bank.import", "bank=santander batch=1 movements=42")
	e2 := logger.Append("receivable.pay", "client=c-15 mode=oldest-first applied=150.00")
	e3 := logger.Append("sales.import", "batch=2 rows=310 period=05/03/2024")

	// Verify chain integrity
	chain := []*LogEntry{e1, e2, e3}
	if !VerifyChain(chain) {
		t.Error("VerifyChain failed for valid chain")
	}

	// Tamper with e2 payload
	originalPayload := e2.Payload
	e2.Payload = "client=c-15 mode=oldest-first applied=1.00"
	if VerifyChain(chain) {
		t.Error("VerifyChain succeeded for tampered payload")
	}

	// Restore payload, tamper with hash
	e2.Payload = originalPayload
	originalHash := e2.Hash
	e2.Hash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	if VerifyChain(chain) {
		t.Error("VerifyChain succeeded for tampered hash")
	}

	// Restore hash
	e2.Hash = originalHash

	// Tamper with e3 previous hash
	e3.PreviousHash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	if VerifyChain(chain) {
		t.Error("VerifyChain succeeded for broken link")
	}
}

func TestChainLoggerSeeding(t *testing.T) {
	first := NewChainLogger()
	e1 := first.Append("bank.import", "batch=1")

	// A logger seeded with the chain tip keeps the chain intact.
	second := NewChainLoggerFrom(e1.Hash)
	e2 := second.Append("bank.import", "batch=2")

	if !VerifyChain([]*LogEntry{e1, e2}) {
		t.Error("VerifyChain failed for seeded continuation")
	}
}

func TestJournal(t *testing.T) {
	journal, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer journal.Close()

	ctx := context.Background()
	if err := journal.Record(ctx, "bank.import", "batch=1 movements=10"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if err := journal.Record(ctx, "receivable.pay", "client=c-1 applied=50.00"); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	entries, err := journal.Entries(ctx)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Operation != "bank.import" {
		t.Errorf("unexpected first operation: %s", entries[0].Operation)
	}

	ok, err := journal.Verify(ctx)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if !ok {
		t.Error("Verify reported a broken chain for a valid journal")
	}
}
