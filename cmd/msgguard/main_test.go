package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PhucNguyen204/msgguard/internal/detect"
	"github.com/PhucNguyen204/msgguard/pkg/matcher"
)

// setupEnv points the store at a temp SQLite file and keeps fuzzy matching
// off so outputs are exact.
func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("MSGGUARD_STORE_DSN", filepath.Join(dir, "msgguard.db"))
	t.Setenv("MSGGUARD_LOG_LEVEL", "error")
	t.Setenv("MSGGUARD_MATCHER_FUZZY_ENABLED", "false")
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	out, _, err := runWithStderr(t, stdin, args...)
	return out, err
}

func runWithStderr(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func mustRun(t *testing.T, stdin string, args ...string) string {
	t.Helper()
	out, err := run(t, stdin, args...)
	require.NoError(t, err, "msgguard %s", strings.Join(args, " "))
	return out
}

func TestKeywordsLifecycle(t *testing.T) {
	setupEnv(t)

	out := mustRun(t, "", "keywords", "add", "--category", "fraud", "免费领取", "spam")
	assert.Equal(t, "added\t免费领取\nadded\tspam\n", out)
	out = mustRun(t, "", "kw", "add", "spam")
	assert.Equal(t, "exists\tspam\n", out)

	out = mustRun(t, "", "keywords", "list")
	assert.Equal(t, "spam\tfraud\tfraud\n免费领取\tfraud\tfraud\n", out)

	out = mustRun(t, "", "keywords", "search", "免费")
	assert.Equal(t, "免费领取\tfraud\tfraud\n", out)

	out = mustRun(t, "", "keywords", "remove", "spam", "ghost")
	assert.Equal(t, "removed\tspam\nmissing\tghost\n", out)

	_, err := run(t, "", "keywords", "clear")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--yes")

	assert.Equal(t, "cleared 1 keywords\n", mustRun(t, "", "keywords", "clear", "--yes"))
	assert.Equal(t, "no keywords\n", mustRun(t, "", "keywords", "list"))
}

func TestKeywordsImport(t *testing.T) {
	setupEnv(t)
	out := mustRun(t, "", "keywords", "import", "../../internal/rules/testdata")
	assert.Equal(t, "imported 4 keywords from 2 files\n", out)

	out = mustRun(t, "", "keywords", "list")
	assert.Contains(t, out, "python\tlang\tlang\n")
	assert.Contains(t, out, "spaced\tkeyword\tgeneral keyword\n")
}

func TestScan_StoredKeywordsAndBuiltinPatterns(t *testing.T) {
	setupEnv(t)
	mustRun(t, "", "keywords", "add", "--category", "ads", "spam")

	out := mustRun(t, "", "scan", "buy", "spam", "at", "123-456-7890")
	assert.Equal(t,
		"exact\t4-7\tspam\tads\t\"spam\"\n"+
			"regex\t12-23\t\\d{3}-\\d{3}-\\d{4}\tphone\t\"123-456-7890\"\n",
		out)

	assert.Equal(t, "no matches\n", mustRun(t, "", "scan", "all clean"))
}

func TestScan_JSONFromStdin(t *testing.T) {
	setupEnv(t)
	mustRun(t, "", "keywords", "add", "SPAM")

	out := mustRun(t, "Spam here\nclean\n", "scan", "--json")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)

	var first, second scanOutput
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "Spam here", first.Text)
	require.Len(t, first.Matches, 1)
	assert.Equal(t, matcher.KindExact, first.Matches[0].Kind)
	assert.Equal(t, "SPAM", first.Matches[0].Keyword.Text)
	assert.Equal(t, 0, first.Matches[0].Start)
	assert.Equal(t, 3, first.Matches[0].End)
	assert.Empty(t, second.Matches)
}

func TestRedact(t *testing.T) {
	setupEnv(t)
	mustRun(t, "", "keywords", "add", "spam")

	assert.Equal(t, "buy # at #\n", mustRun(t, "", "redact", "--placeholder", "#", "buy spam at 123-456-7890"))
	assert.Equal(t, "[***] mail me: [***]\n", mustRun(t, "", "redact", "spam mail me: joe@example.com"))
}

func TestRulesFromConfigFile(t *testing.T) {
	dir := setupEnv(t)
	cfgPath := filepath.Join(dir, "msgguard.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(`
matcher:
  builtin_patterns: false
rules:
  path: ../../internal/rules/testdata/nested
`), 0o644))

	out := mustRun(t, "", "--config", cfgPath, "redact", "点击免费领取 Secret-abc secret-abc 123-456-7890")
	assert.Equal(t, "点击[***] [***] secret-abc 123-456-7890\n", out)
}

func TestNoStoreConfigured(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("MSGGUARD_LOG_LEVEL", "error")
	cfgPath := filepath.Join(dir, "msgguard.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("store:\n  driver: \"\"\n"), 0o644))

	_, err := run(t, "", "-c", cfgPath, "keywords", "list")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no keyword store configured")

	// matching still works from the built-in patterns alone
	assert.Equal(t, "call [***]\n", mustRun(t, "", "-c", cfgPath, "redact", "call 123-456-7890"))

	var stats map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "", "-c", cfgPath, "stats")), &stats))
	assert.Contains(t, stats, "matcher")
	assert.NotContains(t, stats, "store")
}

func TestSnapshot_FileRoundTrip(t *testing.T) {
	dir := setupEnv(t)
	mustRun(t, "", "keywords", "add", "spam")
	path := filepath.Join(dir, "state.json")

	out := mustRun(t, "", "snapshot", "save", "--file", path)
	assert.Equal(t, "saved "+path+": 1 keywords, 5 patterns\n", out)

	var st matcher.Stats
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "", "snapshot", "show", "--file", path)), &st))
	assert.Equal(t, 1, st.Keywords)
	assert.Equal(t, 5, st.Patterns)
	assert.False(t, st.FuzzyEnabled)

	// the snapshot is picked up by every command once configured
	t.Setenv("MSGGUARD_SNAPSHOT_PATH", path)
	mustRun(t, "", "keywords", "clear", "--yes")
	assert.Equal(t, "[***]\n", mustRun(t, "", "redact", "spam"))
}

func TestSnapshot_BoltDB(t *testing.T) {
	dir := setupEnv(t)
	mustRun(t, "", "keywords", "add", "spam")
	db := filepath.Join(dir, "snapshots.db")

	assert.Equal(t, "saved "+db+"#v1: 1 keywords, 5 patterns\n",
		mustRun(t, "", "snapshot", "save", "--db", db, "--name", "v1"))

	out := mustRun(t, "", "snapshot", "list", "--db", db)
	assert.True(t, strings.HasPrefix(out, "v1\t"), out)
	assert.Contains(t, out, "\t1 keywords\t5 patterns\n")

	var st matcher.Stats
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "", "snapshot", "show", "--db", db, "--name", "v1")), &st))
	assert.Equal(t, 1, st.Keywords)

	assert.Equal(t, "deleted v1\n", mustRun(t, "", "snapshot", "delete", "--db", db, "v1"))
	_, err := run(t, "", "snapshot", "delete", "--db", db, "v1")
	require.Error(t, err)
	assert.Equal(t, "no snapshots\n", mustRun(t, "", "snapshot", "list", "--db", db))
}

func TestWatch_StoresDetections(t *testing.T) {
	setupEnv(t)
	mustRun(t, "", "keywords", "add", "spam")

	input := "alice\tbuy spam now\nbob\thello\n\ncarol\tcall 123-456-7890\nno tab here\n"
	out, stderr, err := runWithStderr(t, input, "watch")
	require.NoError(t, err)
	assert.Equal(t,
		"alice\tbuy [***] now\tspam\n"+
			"carol\tcall [***]\t\\d{3}-\\d{3}-\\d{4}\n",
		out)
	assert.Contains(t, stderr, "inspected 4 messages, flagged 2")
	assert.Contains(t, stderr, "  alice\t1/1 flagged\n")
	assert.Contains(t, stderr, "  carol\t1/1 flagged\n")
	assert.NotContains(t, stderr, "bob")

	out = mustRun(t, "", "detections", "--json")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	users := map[string]string{}
	for _, line := range lines {
		var d detect.Detection
		require.NoError(t, json.Unmarshal([]byte(line), &d))
		users[d.User] = d.Redacted
		assert.NotEmpty(t, d.ID)
		assert.NotEmpty(t, d.Matches)
	}
	assert.Equal(t, map[string]string{"alice": "buy [***] now", "carol": "call [***]"}, users)

	var stats struct {
		Store struct {
			Keywords   int `json:"keywords"`
			Detections int `json:"detections"`
		} `json:"store"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "", "stats")), &stats))
	assert.Equal(t, 1, stats.Store.Keywords)
	assert.Equal(t, 2, stats.Store.Detections)
}

func TestParseLine(t *testing.T) {
	msg := parseLine("alice\thi\tthere")
	assert.Equal(t, "alice", msg.User)
	assert.Equal(t, "hi\tthere", msg.Text)
	assert.False(t, msg.ReceivedAt.IsZero())

	msg = parseLine("just text")
	assert.Empty(t, msg.User)
	assert.Equal(t, "just text", msg.Text)
}

func TestInvalidConfig(t *testing.T) {
	t.Setenv("MSGGUARD_STORE_DRIVER", "mysql")
	_, err := run(t, "", "scan", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
}
