package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRotatingWriterRollsOver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "report.log")
	writer, err := NewRotatingWriter(path, 1, 2)
	require.NoError(t, err)
	defer writer.Close()

	// shrink the limit so a few writes force rotation
	writer.maxSize = 16
	for _, line := range []string{"first line\n", "second line\n", "third line\n"} {
		_, err := writer.Write([]byte(line))
		require.NoError(t, err)
	}

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "third line\n", string(current))

	backup, err := os.ReadFile(path + ".1")
	require.NoError(t, err)
	assert.Equal(t, "second line\n", string(backup))

	backup, err = os.ReadFile(path + ".2")
	require.NoError(t, err)
	assert.Equal(t, "first line\n", string(backup))
}

func TestRotatingWriterWithoutBackupsTruncates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.log")
	writer, err := NewRotatingWriter(path, 1, 0)
	require.NoError(t, err)
	defer writer.Close()

	writer.maxSize = 8
	_, err = writer.Write([]byte("aaaaaa\n"))
	require.NoError(t, err)
	_, err = writer.Write([]byte("bbbbbb\n"))
	require.NoError(t, err)

	current, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "bbbbbb\n", string(current))
	_, err = os.Stat(path + ".1")
	assert.True(t, os.IsNotExist(err))
}

func TestNewHandlerFormats(t *testing.T) {
	var buf bytes.Buffer
	slog.New(NewHandler(&buf, "json", slog.LevelInfo)).Info("connecting to endpoint", "endpoint", "wss://rpc.polkadot.io")
	assert.True(t, strings.HasPrefix(buf.String(), "{"))
	assert.Contains(t, buf.String(), `"endpoint":"wss://rpc.polkadot.io"`)

	buf.Reset()
	slog.New(NewHandler(&buf, "", slog.LevelInfo)).Debug("hidden")
	assert.Empty(t, buf.String())
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelError, ParseLevel(" error "))
	assert.Equal(t, slog.LevelInfo, ParseLevel("verbose"))
}
