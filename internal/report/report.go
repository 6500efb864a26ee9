package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/session"
)

// WriteJSON writes the session snapshot as an indented JSON file
// under dir and returns the file path.
func WriteJSON(dir string, snap session.Snapshot) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create report dir: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("session-%s.json", snap.ID))
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write report: %w", err)
	}
	return path, nil
}
