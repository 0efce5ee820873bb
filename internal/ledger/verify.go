package ledger

import (
	"fmt"
	"os"

	"stepci/internal/security"
	"stepci/pkg/utils"
)

// Verify re-computes every hash, link and signature to detect tampering
func (l *Ledger) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return verifyBlocks(l.blocks)
}

func verifyBlocks(blocks []*Block) error {
	for i, b := range blocks {
		if b.Index != i {
			return fmt.Errorf("index mismatch: expected %d got %d", i, b.Index)
		}

		h, err := b.ComputeHash()
		if err != nil {
			return fmt.Errorf("compute hash for index %d: %w", b.Index, err)
		}
		if h != b.Hash {
			return fmt.Errorf("hash mismatch at index %d", b.Index)
		}

		if i > 0 && b.PrevHash != blocks[i-1].Hash {
			return fmt.Errorf("prev hash mismatch at index %d", b.Index)
		}
		if i == 0 && b.PrevHash != "" {
			return fmt.Errorf("first block has a prev hash")
		}

		ok, err := security.VerifySignatureFromHex(b.PubKey, []byte(b.Hash), b.Signature)
		if err != nil {
			return fmt.Errorf("signature at index %d: %w", b.Index, err)
		}
		if !ok {
			return fmt.Errorf("bad signature at index %d", b.Index)
		}
	}
	return nil
}

// VerifyLogs checks that every log file a block points at still has the
// recorded hash. Missing files are reported, not skipped.
func (l *Ledger) VerifyLogs() error {
	for _, b := range l.Blocks() {
		if b.LogPath == "" {
			continue
		}
		h, err := utils.HashFile(b.LogPath)
		if os.IsNotExist(err) {
			return fmt.Errorf("log for index %d missing: %s", b.Index, b.LogPath)
		}
		if err != nil {
			return fmt.Errorf("hash log for index %d: %w", b.Index, err)
		}
		if h != b.LogHash {
			return fmt.Errorf("log hash mismatch at index %d", b.Index)
		}
	}
	return nil
}
