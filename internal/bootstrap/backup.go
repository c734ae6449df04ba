package bootstrap

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// CreateBackup copies the data file into the backup directory under a
// timestamped name before anything mutates it. A missing source is not
// an error; there is nothing to protect yet.
func CreateBackup(path, backupDir string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	if err := os.MkdirAll(backupDir, 0o755); err != nil {
		return "", err
	}
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext == "" {
		ext = ".json"
	}
	stamp := time.Now().Format("20060102T150405")
	suffix := uuid.NewString()[:8]
	backupPath := filepath.Join(backupDir, fmt.Sprintf("%s_backup_%s_%s%s", stem, stamp, suffix, ext))
	if err := os.WriteFile(backupPath, data, 0o644); err != nil {
		return "", err
	}
	return backupPath, nil
}
