package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// LogStorage saves step output to files under BaseDir
type LogStorage struct {
	BaseDir string
	now     func() time.Time
}

// NewLogStorage creates a log storage handler rooted at baseDir
func NewLogStorage(baseDir string) *LogStorage {
	return &LogStorage{BaseDir: baseDir, now: time.Now}
}

// SaveLog writes the output of one step and returns the file path
func (ls *LogStorage) SaveLog(job, step string, output []byte) (string, error) {
	if err := os.MkdirAll(ls.BaseDir, 0775); err != nil {
		return "", err
	}

	// Timestamp keeps reruns of the same job apart; nanoseconds keep fast reruns apart.
	timestamp := ls.now().UTC().Format("20060102_150405.000000000")
	filename := fmt.Sprintf("%s_%s_%s.log", sanitize(job), sanitize(step), timestamp)
	filePath := filepath.Join(ls.BaseDir, filename)

	if err := os.WriteFile(filePath, output, 0644); err != nil {
		return "", err
	}
	return filePath, nil
}

// sanitize strips anything that is not safe in a filename
func sanitize(name string) string {
	clean := make([]rune, 0, len(name))
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' {
			clean = append(clean, r)
		}
	}
	if len(clean) == 0 {
		return "step"
	}
	return string(clean)
}
