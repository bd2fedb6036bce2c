package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfig = `
governor:
  name: replay-test
  limiters:
    - scope: check
      selection: name
      limit: 2
    - scope: instance
      selection: [name, tags]
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateCmd(t *testing.T) {
	out, err := execute(t, "", "validate", "--config", writeFile(t, "config.yaml", testConfig))
	require.NoError(t, err)
	assert.Contains(t, out, `configuration OK: governor "replay-test", 2 limiters`)
	assert.Contains(t, out, "- check")
	assert.Contains(t, out, "limit: 2")
}

func TestValidateCmd_InvalidRule(t *testing.T) {
	_, err := execute(t, "", "validate", "-c", writeFile(t, "config.yaml", `
governor:
  limiters:
    - scope: check
      selection: colour
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `limiters[0].selection: unknown atom "colour"`)
}

const replayInput = `{"name":"m1","check":"disk","instance":"a"}
{"name":"m2","check":"disk","instance":"a"}

{"name":"m3","check":"disk","instance":"a"}
{"name":"m1","check":"disk","instance":"b","tags":["env:prod"]}
`

func TestReplayCmd(t *testing.T) {
	configPath := writeFile(t, "config.yaml", testConfig)
	inputPath := writeFile(t, "metrics.jsonl", replayInput)

	tests := []struct {
		name  string
		stdin string
		args  []string
	}{
		{name: "from file", args: []string{"replay", "-c", configPath, inputPath}},
		{name: "from stdin", stdin: replayInput, args: []string{"replay", "-c", configPath}},
		{name: "dash reads stdin", stdin: replayInput, args: []string{"replay", "-c", configPath, "-"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, tt.stdin, tt.args...)
			require.NoError(t, err)

			var result replayResult
			require.NoError(t, json.Unmarshal([]byte(out), &result))
			assert.Equal(t, uint64(3), result.Stats.Accepted)
			assert.Equal(t, uint64(1), result.Stats.Suppressed)
			assert.Equal(t, "replay-test", result.Report.Source)
			require.Len(t, result.Report.Limiters, 2)

			checkTrace := result.Report.Limiters[0].Trace
			assert.Equal(t, 1, checkTrace.ScopeCardinal)
			assert.Equal(t, int64(1), checkTrace.BlockedMetrics)
			assert.Equal(t, 1, checkTrace.ScopeOverflowCardinal)
			assert.Equal(t, 2, checkTrace.MaxSelectionCardinal)

			instanceTrace := result.Report.Limiters[1].Trace
			assert.Equal(t, 2, instanceTrace.ScopeCardinal)
			assert.Equal(t, int64(0), instanceTrace.BlockedMetrics)
		})
	}
}

func TestReplayCmd_ShowAccepted(t *testing.T) {
	out, err := execute(t, replayInput, "replay", "-c", writeFile(t, "config.yaml", testConfig), "--show-accepted")
	require.NoError(t, err)

	dec := json.NewDecoder(strings.NewReader(out))
	var names []string
	for i := 0; i < 3; i++ {
		var m struct {
			Name string `json:"name"`
		}
		require.NoError(t, dec.Decode(&m))
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"m1", "m2", "m1"}, names)
}

func TestReplayCmd_Errors(t *testing.T) {
	configPath := writeFile(t, "config.yaml", testConfig)

	tests := []struct {
		name   string
		stdin  string
		args   []string
		errMsg string
	}{
		{
			name:   "malformed line",
			stdin:  "{\"name\":\"m1\"}\n{oops\n",
			args:   []string{"replay", "-c", configPath},
			errMsg: "line 2",
		},
		{
			name:   "missing name",
			stdin:  "{\"value\":1}\n",
			args:   []string{"replay", "-c", configPath},
			errMsg: "invalid input",
		},
		{
			name:   "missing file",
			args:   []string{"replay", "-c", configPath, filepath.Join(t.TempDir(), "missing.jsonl")},
			errMsg: "failed to open input",
		},
		{
			name:   "too many args",
			args:   []string{"replay", "a", "b"},
			errMsg: "accepts at most 1 arg",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.stdin, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestExampleConfigCmd(t *testing.T) {
	t.Run("prints", func(t *testing.T) {
		out, err := execute(t, "", "example-config")
		require.NoError(t, err)
		assert.Contains(t, out, "governor:")
		assert.Contains(t, out, "limiters:")
	})

	t.Run("writes a loadable file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "example.yaml")
		out, err := execute(t, "", "example-config", path)
		require.NoError(t, err)
		assert.Contains(t, out, path)

		out, err = execute(t, "", "validate", "-c", path)
		require.NoError(t, err)
		assert.Contains(t, out, "2 limiters")
	})
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "", "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "metricgovernor "))
}
