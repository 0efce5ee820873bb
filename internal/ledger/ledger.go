package ledger

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"stepci/internal/security"
)

// Ledger is an append-only JSONL file of signed, hash-chained blocks
type Ledger struct {
	mu     sync.Mutex
	blocks []*Block
	path   string
	signer *security.Signer
}

// Open loads an existing ledger file or creates an empty one.
// signer may be nil for read-only use (inspect, verify).
func Open(path string, signer *security.Signer) (*Ledger, error) {
	l := &Ledger{path: path, signer: signer}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0644)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := json.NewDecoder(bufio.NewReader(f))
	for dec.More() {
		var blk Block
		if err := dec.Decode(&blk); err != nil {
			return nil, fmt.Errorf("decode ledger entry %d: %w", len(l.blocks), err)
		}
		l.blocks = append(l.blocks, &blk)
	}
	return l, nil
}

// Append chains, signs and persists a new block for e
func (l *Ledger) Append(e Entry) (*Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.signer == nil {
		return nil, fmt.Errorf("ledger %s opened without a signer", l.path)
	}

	prev := ""
	if n := len(l.blocks); n > 0 {
		prev = l.blocks[n-1].Hash
	}
	b, err := NewBlock(len(l.blocks), e, prev)
	if err != nil {
		return nil, err
	}
	b.Signature = l.signer.Sign([]byte(b.Hash))
	b.PubKey = l.signer.PublicHex()

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open ledger file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(b); err != nil {
		return nil, fmt.Errorf("write ledger file: %w", err)
	}

	l.blocks = append(l.blocks, b)
	return b, nil
}

// Blocks returns a copy of the chain
func (l *Ledger) Blocks() []Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Block, len(l.blocks))
	for i, b := range l.blocks {
		out[i] = *b
	}
	return out
}

func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.blocks)
}

func (l *Ledger) Path() string { return l.path }
