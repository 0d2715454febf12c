package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"engagemeter/internal/types"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
app:
  logLevel: error
  progressBar: false
observability:
  enabled: false
`

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := Execute(t.Context())
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := runCommand(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "engagemeter version "+Version)
}

func TestEstimateCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestFile(t, dir, "config.yaml", testConfig)
	frames := writeTestFile(t, dir, "capture.json", `[
  {"expressions": {"happy": 0.9, "neutral": 0.05}},
  {"detected": false}
]`)
	outPath := filepath.Join(dir, "metrics.json")

	_, err := runCommand(t, "--config", cfgPath, "estimate", frames, "--output", outPath, "--format", "JSON")
	require.NoError(t, err)

	content, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var metrics []types.EngagementMetrics
	require.NoError(t, json.Unmarshal(content, &metrics))
	require.Len(t, metrics, 2)
	assert.True(t, metrics[0].FaceDetected)
	assert.Equal(t, "happy", metrics[0].DominantEmotion)
	assert.False(t, metrics[1].FaceDetected)
	assert.Equal(t, 50, metrics[1].Attention)
}

func TestSummarizeCommand(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestFile(t, dir, "config.yaml", testConfig)
	frames := writeTestFile(t, dir, "capture.jsonl",
		`{"expressions": {"happy": 0.9}}`+"\n"+
			`{"expressions": {"happy": 0.8}}`+"\n"+
			`{"expressions": {"sad": 0.7}}`+"\n")
	outPath := filepath.Join(dir, "summary.json")

	_, err := runCommand(t, "--config", cfgPath, "summarize", frames, "--output", outPath, "--format", "json", "--top", "1")
	require.NoError(t, err)

	content, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var summary types.SessionSummary
	require.NoError(t, json.Unmarshal(content, &summary))
	assert.Equal(t, 3, summary.Samples)
	assert.Equal(t, 3, summary.FaceDetected)
	require.Len(t, summary.TopEmotions, 1)
	assert.Equal(t, types.EmotionCount{Emotion: "happy", Count: 2}, summary.TopEmotions[0])
}

func TestEstimateRejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestFile(t, dir, "config.yaml", testConfig)
	frames := writeTestFile(t, dir, "capture.json", `[{"detected": false}]`)

	_, err := runCommand(t, "--config", cfgPath, "estimate", frames, "--format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported output format 'xml'")
}

func TestCollectFlagBindings(t *testing.T) {
	parent := &cobra.Command{Use: "parent"}
	parent.PersistentFlags().String("log-level", "", "")
	bindConfigFlag(parent.PersistentFlags(), "log-level", "app.logLevel")

	child := &cobra.Command{Use: "child", Run: func(*cobra.Command, []string) {}}
	child.Flags().String("port", "", "")
	child.Flags().String("unbound", "", "")
	bindConfigFlag(child.Flags(), "port", "server.port")
	parent.AddCommand(child)

	keys := map[string]string{}
	for _, b := range collectFlagBindings(child) {
		keys[b.Key] = b.Flag.Name
	}
	assert.Equal(t, map[string]string{
		"app.logLevel": "log-level",
		"server.port":  "port",
	}, keys)
}

func TestSummarizeZeroTimestamps(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeTestFile(t, dir, "config.yaml", testConfig)
	frames := writeTestFile(t, dir, "capture.jsonl",
		`{"expressions": {"happy": 0.9}, "timestamp": "0001-01-01T00:00:00Z"}`+"\n"+
			`{"expressions": {"happy": 0.9}, "timestamp": "2020-03-01T10:00:05Z"}`+"\n")
	outPath := filepath.Join(dir, "summary.json")

	before := time.Now().UTC().Add(-time.Second)
	_, err := runCommand(t, "--config", cfgPath, "summarize", frames, "--output", outPath, "--format", "json")
	require.NoError(t, err)

	content, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var summary types.SessionSummary
	require.NoError(t, json.Unmarshal(content, &summary))

	assert.False(t, summary.StartedAt.IsZero(), "zero timestamp must not become the session start")
	assert.Equal(t, time.Date(2020, 3, 1, 10, 0, 5, 0, time.UTC), summary.StartedAt.UTC())
	assert.True(t, summary.UpdatedAt.After(before), "zero timestamp is replaced by the replay time")
}
