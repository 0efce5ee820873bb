package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Block is a tamper-evident record of one executed step
type Block struct {
	Index     int    `json:"index"`
	Timestamp string `json:"timestamp"`
	Job       string `json:"job"`
	Step      string `json:"step"`
	ExitCode  int    `json:"exitCode"`
	Status    string `json:"status"`
	LogPath   string `json:"logPath"`
	LogHash   string `json:"logHash"`
	PrevHash  string `json:"prevHash"`
	Hash      string `json:"hash"`
	RunnerID  string `json:"runnerId"`
	Signature string `json:"signature"`
	PubKey    string `json:"pubKey"`
}

// canonicalData returns the JSON bytes used to compute the block hash.
// Hash, Signature and PubKey are not part of it.
func (b *Block) canonicalData() ([]byte, error) {
	view := struct {
		Index     int    `json:"index"`
		Timestamp string `json:"timestamp"`
		Job       string `json:"job"`
		Step      string `json:"step"`
		ExitCode  int    `json:"exitCode"`
		Status    string `json:"status"`
		LogPath   string `json:"logPath"`
		LogHash   string `json:"logHash"`
		PrevHash  string `json:"prevHash"`
		RunnerID  string `json:"runnerId"`
	}{
		Index:     b.Index,
		Timestamp: b.Timestamp,
		Job:       b.Job,
		Step:      b.Step,
		ExitCode:  b.ExitCode,
		Status:    b.Status,
		LogPath:   b.LogPath,
		LogHash:   b.LogHash,
		PrevHash:  b.PrevHash,
		RunnerID:  b.RunnerID,
	}
	return json.Marshal(view)
}

// ComputeHash calculates SHA256 over canonicalData
func (b *Block) ComputeHash() (string, error) {
	data, err := b.canonicalData()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Entry is what the runner knows about a step when it is recorded
type Entry struct {
	Job      string
	Step     string
	ExitCode int
	Status   string
	LogPath  string
	LogHash  string
	RunnerID string
}

// NewBlock builds an unsigned block with its hash computed
func NewBlock(index int, e Entry, prevHash string) (*Block, error) {
	blk := &Block{
		Index:     index,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Job:       e.Job,
		Step:      e.Step,
		ExitCode:  e.ExitCode,
		Status:    e.Status,
		LogPath:   e.LogPath,
		LogHash:   e.LogHash,
		PrevHash:  prevHash,
		RunnerID:  e.RunnerID,
	}

	h, err := blk.ComputeHash()
	if err != nil {
		return nil, fmt.Errorf("compute block hash: %w", err)
	}
	blk.Hash = h
	return blk, nil
}
