package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jsonLogger(level slog.Level) (*SlogLogger, *bytes.Buffer) {
	var buf bytes.Buffer
	h := slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: level})
	return NewSlogLogger(slog.New(h)), &buf
}

func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(buf)
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestSlogLogger_Levels(t *testing.T) {
	log, buf := jsonLogger(slog.LevelDebug)
	ctx := context.Background()

	log.Debug(ctx, "anchor cache miss", "hash", "ab12")
	log.Info(ctx, "signature request created", "token", "t1")
	log.Warn(ctx, "duplicate anchors ignored", "count", 2)
	log.Error(ctx, "anchor page out of range", "page", 7)

	recs := records(t, buf)
	require.Len(t, recs, 4)
	assert.Equal(t, []string{"DEBUG", "INFO", "WARN", "ERROR"},
		[]string{recs[0]["level"].(string), recs[1]["level"].(string), recs[2]["level"].(string), recs[3]["level"].(string)})
	assert.Equal(t, "ab12", recs[0]["hash"])
	assert.Equal(t, "t1", recs[1]["token"])
	assert.EqualValues(t, 2, recs[2]["count"])
	assert.EqualValues(t, 7, recs[3]["page"])
}

func TestSlogLogger_LevelFilter(t *testing.T) {
	log, buf := jsonLogger(slog.LevelInfo)
	log.Debug(context.Background(), "dropped")
	log.Info(context.Background(), "kept")

	recs := records(t, buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "kept", recs[0]["msg"])
}

func TestSlogLogger_With(t *testing.T) {
	log, buf := jsonLogger(slog.LevelInfo)

	child := log.With("module", "signatures")
	child.With("token", "t1").Info(context.Background(), "signed")
	log.Info(context.Background(), "parent")

	recs := records(t, buf)
	require.Len(t, recs, 2)
	assert.Equal(t, "signatures", recs[0]["module"])
	assert.Equal(t, "t1", recs[0]["token"])
	assert.NotContains(t, recs[1], "module")
}

func TestDiscard(t *testing.T) {
	var l Logger = Discard()
	assert.NotPanics(t, func() {
		l.With("module", "x").Error(context.TODO(), "nothing written")
	})
}

func TestParseLevel(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"":        slog.LevelInfo,
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		" error ": slog.LevelError,
	} {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewJSON(&buf, slog.LevelWarn)
	log.Info(context.Background(), "dropped")
	log.Warn(context.Background(), "kept", "ref", "documents/x")

	recs := records(t, &buf)
	require.Len(t, recs, 1)
	assert.Equal(t, "documents/x", recs[0]["ref"])
}
