// Package audit records every ledger mutation in a hash-chained journal
// so an operator can prove the import and payment history was not
// edited after the fact.
package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"
)

// LogEntry is a single journal entry. Each entry's hash covers the
// previous entry's hash, chaining the whole journal together.
type LogEntry struct {
	Timestamp    string `json:"timestamp"`
	Operation    string `json:"operation"`
	PreviousHash string `json:"previous_hash"`
	Payload      string `json:"payload"`
	Hash         string `json:"hash"`
}

// ChainLogger produces hash-chained entries.
type ChainLogger struct {
	mu           sync.Mutex
	previousHash string
}

// NewChainLogger creates a ChainLogger initialized with a zero hash.
func NewChainLogger() *ChainLogger {
	return NewChainLoggerFrom(strings.Repeat("0", 64))
}

// NewChainLoggerFrom creates a ChainLogger continuing an existing
// chain from its last hash.
func NewChainLoggerFrom(previousHash string) *ChainLogger {
	return &ChainLogger{previousHash: previousHash}
}

// Append adds a new entry to the chain.
func (c *ChainLogger) Append(operation, payload string) *LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := &LogEntry{
		Timestamp:    time.Now().UTC().Format(time.RFC3339),
		Operation:    operation,
		PreviousHash: c.previousHash,
		Payload:      payload,
	}
	entry.Hash = entryHash(entry.PreviousHash, entry.Timestamp, entry.Operation, entry.Payload)

	c.previousHash = entry.Hash
	return entry
}

func entryHash(previousHash, timestamp, operation, payload string) string {
	hashInput := fmt.Sprintf("%s|%s|%s|%s", previousHash, timestamp, operation, payload)
	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

// VerifyChain checks if a slice of entries forms a valid hash chain.
func VerifyChain(entries []*LogEntry) bool {
	if len(entries) == 0 {
		return true
	}

	for i, entry := range entries {
		prevHash := entry.PreviousHash
		if i > 0 {
			prevHash = entries[i-1].Hash
			if entry.PreviousHash != prevHash {
				return false
			}
		}
		if entryHash(prevHash, entry.Timestamp, entry.Operation, entry.Payload) != entry.Hash {
			return false
		}
	}
	return true
}
