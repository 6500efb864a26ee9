package report

import (
	"encoding/json"
	"os"
	"testing"

	"github.com/devesh1104/Quinine-Testing-Environment/internal/session"
)

func TestWriteJSON(t *testing.T) {
	sess := session.New([]string{"a"})
	sess.Seal(false)

	path, err := WriteJSON(t.TempDir(), sess.Snapshot())
	if err != nil {
		t.Fatalf("write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	var snap session.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		t.Fatalf("report is not valid json: %v", err)
	}
	if snap.ID != sess.ID() || snap.Status != session.StatusCompleted {
		t.Fatalf("report content wrong: %+v", snap)
	}
}
