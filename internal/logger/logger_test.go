package logger

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	l := New(Options{Dir: dir, Prefix: "ledger-test", MinLevel: INFO})

	l.LogLedger("REFUND", "txn-1", "refunded 20.00")
	l.Debug("CART", "below threshold")
	l.Close()

	matches, err := filepath.Glob(filepath.Join(dir, "ledger-test-*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	f, err := os.Open(matches[0])
	require.NoError(t, err)
	defer f.Close()

	var entries []LogEntry
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e LogEntry
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		entries = append(entries, e)
	}

	var ledger *LogEntry
	for i := range entries {
		assert.NotEqual(t, "DEBUG", entries[i].Level)
		if entries[i].Category == "LEDGER" {
			ledger = &entries[i]
		}
	}
	require.NotNil(t, ledger)
	assert.Equal(t, "INFO", ledger.Level)
	assert.Equal(t, "[REFUND] txn-1 - refunded 20.00", ledger.Message)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("debug"))
	assert.Equal(t, ERROR, ParseLevel("ERROR"))
	assert.Equal(t, INFO, ParseLevel(""))
}

func TestDiscardIsSilent(t *testing.T) {
	l := Discard()
	l.Error("TEST", "nothing happens")
	l.Close()

	var nilLogger *Logger
	nilLogger.Info("TEST", "nil receivers are ignored")
}
