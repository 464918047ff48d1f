package logger_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/adamwoolhether/utxochain/foundation/logger"
)

func TestNewWritesService(t *testing.T) {
	path := filepath.Join(t.TempDir(), "node.log")

	log, err := logger.New("NODE", path)
	if err != nil {
		t.Fatal(err)
	}

	log.Infow("startup", "height", 7)
	log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("decoding %q: %s", data, err)
	}

	tt := []struct {
		key  string
		want any
	}{
		{"service", "NODE"},
		{"msg", "startup"},
		{"level", "info"},
		{"height", float64(7)},
	}

	for i, tst := range tt {
		if entry[tst.key] != tst.want {
			t.Errorf("[case:%d] expected %s to be %v, got %v", i, tst.key, tst.want, entry[tst.key])
		}
	}

	if _, exists := entry["ts"]; !exists {
		t.Error("expected a timestamp")
	}
}
