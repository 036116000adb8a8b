package cli

import (
	"fmt"
	"io"
	"os"
	"time"
)

// backupFile copies path to a timestamped .bak sibling if it exists, so an
// earlier expansion output is never silently overwritten.
//
// Returns the backup path, or "" when there was nothing to back up.
func backupFile(path string) (string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("checking file existence: %w", err)
	}

	backupPath := fmt.Sprintf("%s.%s.bak", path, time.Now().Format("20060102_150405"))

	in, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening source file: %w", err)
	}
	defer in.Close()

	out, err := os.Create(backupPath)
	if err != nil {
		return "", fmt.Errorf("creating backup file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return "", fmt.Errorf("copying file: %w", err)
	}

	return backupPath, nil
}
