package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rzbill/seglog/internal/logstore"
)

func run(t *testing.T, dir string, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRoot()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--data-dir", dir, "--log-level", "error"}, args...))
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func decodeLines(t *testing.T, s string) []map[string]any {
	t.Helper()
	var out []map[string]any
	dec := json.NewDecoder(strings.NewReader(s))
	for dec.More() {
		var m map[string]any
		require.NoError(t, dec.Decode(&m))
		out = append(out, m)
	}
	return out
}

func TestAppendReadRange(t *testing.T) {
	dir := t.TempDir()
	out, _, err := run(t, dir, "", "append", "-s", "chat", "hello", `{"user":"ana"}`, "bye")
	require.NoError(t, err)
	seqs := decodeLines(t, out)
	require.Len(t, seqs, 3)
	assert.Equal(t, 1.0, seqs[0]["seq"])
	assert.Equal(t, 3.0, seqs[2]["seq"])

	out, _, err = run(t, dir, "", "read", "-s", "chat", "2")
	require.NoError(t, err)
	e := decodeLines(t, out)[0]
	assert.Equal(t, map[string]any{"user": "ana"}, e["payload_json"])

	out, _, err = run(t, dir, "", "range", "-s", "chat", "1", "3")
	require.NoError(t, err)
	entries := decodeLines(t, out)
	require.Len(t, entries, 3)
	assert.Equal(t, "hello", entries[0]["payload_text"])

	out, _, err = run(t, dir, "", "range", "-s", "chat", "1", "3", "--filter", `text.startsWith("b")`)
	require.NoError(t, err)
	entries = decodeLines(t, out)
	require.Len(t, entries, 1)
	assert.Equal(t, 3.0, entries[0]["seq"])

	_, _, err = run(t, dir, "", "read", "-s", "chat", "9")
	require.Error(t, err)
}

func TestAppendFromStdin(t *testing.T) {
	dir := t.TempDir()
	out, _, err := run(t, dir, "a\nb\nc\n", "append")
	require.NoError(t, err)
	assert.Len(t, decodeLines(t, out), 3)

	out, _, err = run(t, dir, "", "range", "1", "100", "--limit", "2")
	require.NoError(t, err)
	assert.Len(t, decodeLines(t, out), 2)
}

func TestRangeRejectsBadFilter(t *testing.T) {
	_, _, err := run(t, t.TempDir(), "", "range", "1", "2", "--filter", "size +")
	require.Error(t, err)
}

func TestStreamCreateList(t *testing.T) {
	dir := t.TempDir()
	out, _, err := run(t, dir, "", "stream", "create", "orders", "--max-segment-bytes", "4096")
	require.NoError(t, err)
	m := decodeLines(t, out)[0]
	assert.Equal(t, "orders", m["name"])
	assert.Equal(t, 4096.0, m["maxSegmentBytes"])

	_, _, err = run(t, dir, "", "stream", "create", "Bad Name")
	require.Error(t, err)

	out, _, err = run(t, dir, "", "stream", "list")
	require.NoError(t, err)
	list := decodeLines(t, out)
	require.Len(t, list, 1)
	assert.Equal(t, "orders", list[0]["name"])

	_, _, err = run(t, dir, "", "stream", "delete", "orders")
	require.Error(t, err)
	_, _, err = run(t, dir, "", "stream", "delete", "orders", "--confirm")
	require.NoError(t, err)
	out, _, err = run(t, dir, "", "stream", "list")
	require.NoError(t, err)
	assert.Empty(t, decodeLines(t, out))
}

// smallStream registers a stream holding three 30-byte records per segment and
// appends ten entries: segments 1-3 sealed, segment 4 open with one entry.
func smallStream(t *testing.T, dir string) {
	t.Helper()
	_, _, err := run(t, dir, "", "stream", "create", "small", "--max-segment-bytes", "100")
	require.NoError(t, err)
	args := []string{"append", "-s", "small"}
	for i := 0; i < 10; i++ {
		args = append(args, "abcdef")
	}
	_, _, err = run(t, dir, "", args...)
	require.NoError(t, err)
}

func TestSegmentsRotateVerify(t *testing.T) {
	dir := t.TempDir()
	smallStream(t, dir)

	out, _, err := run(t, dir, "", "segments", "-s", "small")
	require.NoError(t, err)
	segs := decodeLines(t, out)
	require.Len(t, segs, 4)
	assert.Equal(t, true, segs[0]["sealed"])
	assert.Equal(t, false, segs[3]["sealed"])

	out, _, err = run(t, dir, "", "rotate", "-s", "small")
	require.NoError(t, err)
	assert.Equal(t, 5.0, decodeLines(t, out)[0]["open_segment"])

	out, _, err = run(t, dir, "", "verify", "-s", "small", "--all")
	require.NoError(t, err)
	results := decodeLines(t, out)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.Equal(t, true, r["ok"])
	}

	out, _, err = run(t, dir, "", "verify", "-s", "small", "2")
	require.NoError(t, err)
	assert.Equal(t, 3.0, decodeLines(t, out)[0]["entries"])

	_, _, err = run(t, dir, "", "verify", "-s", "small")
	require.Error(t, err)
}

func TestRetentionAndUsage(t *testing.T) {
	dir := t.TempDir()
	smallStream(t, dir)

	out, _, err := run(t, dir, "", "usage", "-s", "small")
	require.NoError(t, err)
	u := decodeLines(t, out)[0]
	assert.Equal(t, 10.0, u["entryCount"])
	assert.Equal(t, float64(4*80+10*30), u["totalBytes"])

	out, _, err = run(t, dir, "", "retention", "-s", "small", "--max-bytes", "200")
	require.NoError(t, err)
	res := decodeLines(t, out)[0]
	assert.Equal(t, []any{1.0, 2.0, 3.0}, res["deleted"])
	assert.Equal(t, 9.0, res["entries_removed"])

	out, _, err = run(t, dir, "", "retention", "-s", "small", "--max-bytes", "200")
	require.NoError(t, err)
	assert.Equal(t, []any{}, decodeLines(t, out)[0]["deleted"])

	out, _, err = run(t, dir, "", "range", "-s", "small", "1", "100")
	require.NoError(t, err)
	entries := decodeLines(t, out)
	require.Len(t, entries, 1)
	assert.Equal(t, 10.0, entries[0]["seq"])
}

func TestReport(t *testing.T) {
	dir := t.TempDir()
	smallStream(t, dir)

	out, _, err := run(t, dir, "", "report", "-s", "small", "--verify")
	require.NoError(t, err)
	assert.Contains(t, out, "small")
	assert.Contains(t, out, "4 segments checked, ok")

	out, _, err = run(t, dir, "", "report", "-s", "small", "--json")
	require.NoError(t, err)
	r := decodeLines(t, out)[0]
	assert.Equal(t, 10.0, r["entryCount"])
	assert.NotContains(t, r, "integrity")
}

func TestMaintainOnce(t *testing.T) {
	dir := t.TempDir()
	smallStream(t, dir)
	_, _, err := run(t, dir, "", "maintain", "--once")
	require.NoError(t, err)
}

func TestSeek(t *testing.T) {
	dir := t.TempDir()
	_, _, err := run(t, dir, "", "append", "x", "y")
	require.NoError(t, err)
	out, _, err := run(t, dir, "", "seek", "0")
	require.NoError(t, err)
	assert.Equal(t, 1.0, decodeLines(t, out)[0]["seq"])

	_, _, err = run(t, dir, "", "seek", "yesterday")
	require.Error(t, err)
}

func TestParseTime(t *testing.T) {
	got, err := parseTime("1726833600000")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.UnixMilli(1726833600000)))

	got, err = parseTime("2024-09-20T12:00:00Z")
	require.NoError(t, err)
	assert.True(t, got.Equal(time.Date(2024, 9, 20, 12, 0, 0, 0, time.UTC)))
}

func TestDecodedEntry(t *testing.T) {
	e := decodedEntry(logEntry([]byte{0xff, 0xfe}))
	assert.Equal(t, "//4=", e["payload_b64"])
	e = decodedEntry(logEntry([]byte("[1,2]")))
	assert.Equal(t, []any{1.0, 2.0}, e["payload_json"])
}

func logEntry(p []byte) logstore.Entry {
	return logstore.Entry{Seq: 1, Timestamp: time.Unix(0, 0), Payload: p}
}

var errBrokenPipe = errors.New("broken pipe")

type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) { return 0, errBrokenPipe }

func TestOutputWriteErrorsAreReturned(t *testing.T) {
	dir := t.TempDir()
	for _, args := range [][]string{
		{"append", "-s", "chat", "a", "b"},
		{"verify", "-s", "chat", "--all"},
	} {
		cmd := NewRoot()
		cmd.SetOut(brokenWriter{})
		cmd.SetErr(&bytes.Buffer{})
		cmd.SetArgs(append([]string{"--data-dir", dir, "--log-level", "error"}, args...))
		require.ErrorIs(t, cmd.Execute(), errBrokenPipe, "%v", args)
	}

	// the entries were stored even though reporting their seqs failed
	out, _, err := run(t, dir, "", "range", "-s", "chat", "1", "2")
	require.NoError(t, err)
	assert.Len(t, decodeLines(t, out), 2)
}
