package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()

	var entries []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := map[string]any{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}

	return entries
}

func TestZerologLogger(t *testing.T) {
	t.Run("writes service and fields", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(zerolog.New(&buf), "gameserver", zerolog.DebugLevel)

		l.Info("connection accepted", Field{Key: "conn_id", Value: 7})

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 1)
		assert.Equal(t, "gameserver", entries[0]["service"])
		assert.Equal(t, "connection accepted", entries[0]["message"])
		assert.Equal(t, float64(7), entries[0]["conn_id"])
		assert.Equal(t, "info", entries[0]["level"])
	})

	t.Run("filters below level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewZerologLogger(zerolog.New(&buf), "gameserver", zerolog.WarnLevel)

		l.Debug("dropped")
		l.Info("dropped")
		l.Warn("kept")
		l.Error("kept")

		assert.Len(t, decodeLines(t, &buf), 2)
	})

	t.Run("With attaches fields without changing the parent", func(t *testing.T) {
		var buf bytes.Buffer
		parent := NewZerologLogger(zerolog.New(&buf), "gameserver", zerolog.InfoLevel)
		child := parent.With(Field{Key: "remote_addr", Value: "127.0.0.1:5000"})

		child.Info("child")
		parent.Info("parent")

		entries := decodeLines(t, &buf)
		require.Len(t, entries, 2)
		assert.Equal(t, "127.0.0.1:5000", entries[0]["remote_addr"])
		_, ok := entries[1]["remote_addr"]
		assert.False(t, ok)
	})
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"":        zerolog.InfoLevel,
		"info":    zerolog.InfoLevel,
		"DEBUG":   zerolog.DebugLevel,
		"warn":    zerolog.WarnLevel,
		"warning": zerolog.WarnLevel,
		" error ": zerolog.ErrorLevel,
	}

	for name, want := range cases {
		got, err := ParseLevel(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	t.Run("rejects an unknown level", func(t *testing.T) {
		_, err := New(Options{Service: "gameserver", Level: "loud"})
		assert.Error(t, err)
	})

	t.Run("writes to a daily file when a directory is set", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "logs")
		l, err := New(Options{Service: "gameserver", Level: "info", Dir: dir})
		require.NoError(t, err)

		l.Info("server started")
		require.NoError(t, l.Close())
		require.NoError(t, l.Close())

		name := filepath.Join(dir, "gameserver_"+time.Now().Format(dateLayout)+".log")
		data, err := os.ReadFile(name)
		require.NoError(t, err)
		assert.Contains(t, string(data), "server started")
	})
}

func TestNopLogger(t *testing.T) {
	l := NewNopLogger()
	assert.NotPanics(t, func() {
		l.Debug("x")
		l.With(Field{Key: "k", Value: 1}).Error("y")
	})
	assert.NoError(t, l.Close())
}

func TestDailyFileWriter(t *testing.T) {
	t.Run("rolls over when the date changes", func(t *testing.T) {
		dir := t.TempDir()
		w, err := NewDailyFileWriter("gameserver", dir)
		require.NoError(t, err)
		defer w.Close()

		first := w.CurrentLogFile()
		_, err = w.Write([]byte("day one\n"))
		require.NoError(t, err)

		w.mu.Lock()
		w.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
		w.mu.Unlock()

		_, err = w.Write([]byte("day three\n"))
		require.NoError(t, err)

		second := w.CurrentLogFile()
		assert.NotEqual(t, first, second)

		data, err := os.ReadFile(second)
		require.NoError(t, err)
		assert.Equal(t, "day three\n", string(data))
	})

	t.Run("write after close fails", func(t *testing.T) {
		w, err := NewDailyFileWriter("gameserver", t.TempDir())
		require.NoError(t, err)
		require.NoError(t, w.Close())

		_, err = w.Write([]byte("late"))
		assert.Error(t, err)
		assert.Empty(t, w.CurrentLogFile())
	})
}
