// File: cmd/analyze_test.go
package cmd

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

const fixtureDir = "../internal/oom/testdata"

func fixturePath(name string) string {
	return filepath.Join(fixtureDir, name)
}

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(fixturePath(name))
	require.NoError(t, err)
	return string(data)
}

func TestAnalyzeCommandFormats(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		unmarshal func([]byte, interface{}) error
	}{
		{"yaml", "yaml", yaml.Unmarshal},
		{"json", "json", json.Unmarshal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr, err := executeCommand(t, "analyze", fixturePath("rhel7.log"), "--format", tt.format)
			require.NoError(t, err)
			assert.Empty(t, stderr)

			var out map[string]interface{}
			require.NoError(t, tt.unmarshal([]byte(stdout), &out))
			assert.Equal(t, "3.10 (RHEL/CentOS 7)", out["ruleset"])
			assert.Equal(t, "complete", out["state"])
			assert.Equal(t, "kernel_automatic", out["analysis_type"])
			assert.Equal(t, "below_low_watermark", out["alloc_failure"])
			assert.NotEmpty(t, out["analysis_id"])
		})
	}
}

func TestAnalyzeCommandTextReport(t *testing.T) {
	stdout, _, err := executeCommand(t, "analyze", fixturePath("rhel7.log"), "--format", "text", "--top", "3")
	require.NoError(t, err)

	for _, want := range []string{
		"OOM Killer Analysis",
		"Kernel:   3.10.0-514.6.1.el7.x86_64 (ruleset 3.10 (RHEL/CentOS 7))",
		"sed (pid 29481)",
		"GFP mask 0x201da: GFP_HIGHUSER_MOVABLE | __GFP_COLD",
		"java (pid 6576, score 651)",
		"below_low_watermark",
		"Zone watermarks:",
		"Free memory by zone:",
		"killed process",
		"3 of 85 processes, sorted by rss_pages",
	} {
		assert.Contains(t, stdout, want)
	}
}

func TestAnalyzeCommandTextReportBadSortColumn(t *testing.T) {
	_, _, err := executeCommand(t, "analyze", fixturePath("rhel7.log"), "--format", "text", "--sort", "colour")
	assert.Error(t, err)
}

func TestAnalyzeCommandStdin(t *testing.T) {
	orig := stdinInput
	defer func() { stdinInput = orig }()

	for _, args := range [][]string{{"analyze"}, {"analyze", "-"}} {
		stdinInput = strings.NewReader(readFixture(t, "ubuntu-5.15.log"))
		stdout, _, err := executeCommand(t, append(args, "--format", "json")...)
		require.NoError(t, err)

		var out map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(stdout), &out))
		assert.Equal(t, "5.14", out["ruleset"])
		assert.Equal(t, "5.15.0-91-generic", out["kernel_version"])
	}
}

func TestAnalyzeCommandDmesg(t *testing.T) {
	t.Run("ring buffer", func(t *testing.T) {
		mock := &MockCommander{Outputs: map[string]string{"dmesg": readFixture(t, "ubuntu-5.15.log")}}
		useCommander(t, mock)

		stdout, _, err := executeCommand(t, "analyze", "--dmesg", "--format", "yaml")
		require.NoError(t, err)
		assert.Equal(t, []string{"dmesg"}, mock.GetCommands())
		assert.Contains(t, stdout, "kernel_version: 5.15.0-91-generic")
	})

	t.Run("dmesg fails", func(t *testing.T) {
		mock := &MockCommander{Errors: map[string]error{"dmesg": errors.New("operation not permitted")}}
		useCommander(t, mock)

		_, _, err := executeCommand(t, "analyze", "--dmesg")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "operation not permitted")
	})

	t.Run("file and dmesg", func(t *testing.T) {
		_, _, err := executeCommand(t, "analyze", "--dmesg", fixturePath("rhel7.log"))
		assert.Error(t, err)
	})
}

func TestAnalyzeCommandErrors(t *testing.T) {
	tmpDir := t.TempDir()
	notOOM := filepath.Join(tmpDir, "messages")
	require.NoError(t, os.WriteFile(notOOM, []byte("kernel: eth0: link is up\n"), 0644))
	empty := filepath.Join(tmpDir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0644))

	tests := []struct {
		name     string
		args     []string
		contains string
	}{
		{"missing file", []string{"analyze", filepath.Join(tmpDir, "nope.log")}, "failed to read"},
		{"no OOM report", []string{"analyze", notOOM}, "cannot analyse"},
		{"empty input", []string{"analyze", empty}, "cannot analyse"},
		{"invalid format", []string{"analyze", fixturePath("rhel7.log"), "--format", "xml"}, "invalid format"},
		{"invalid log level", []string{"analyze", fixturePath("rhel7.log"), "--log-level", "loud"}, "loud"},
		{"too many args", []string{"analyze", "a", "b"}, "accepts at most 1 arg"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := executeCommand(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.contains)
		})
	}
}

func TestAnalyzeCommandErrorSummary(t *testing.T) {
	input := strings.Replace(readFixture(t, "rhel7.log"),
		"CPU: 4 PID: 29481 Comm: sed Not tainted 3.10.0-514.6.1.el7.x86_64 #1\n", "", 1)
	path := filepath.Join(t.TempDir(), "oom.log")
	require.NoError(t, os.WriteFile(path, []byte(input), 0644))

	stdout, stderr, err := executeCommand(t, "analyze", path)
	require.NoError(t, err)
	assert.Contains(t, stdout, "ruleset: \"3.10\"")
	assert.Contains(t, stderr, "Summary of errors:")
	assert.Contains(t, stderr, "kernel version not identified")
}

func TestAnalyzeCommandCatalog(t *testing.T) {
	tmpDir := t.TempDir()

	t.Run("missing catalog", func(t *testing.T) {
		_, _, err := executeCommand(t, "analyze", fixturePath("rhel7.log"), "--catalog", filepath.Join(tmpDir, "none.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read catalog")
	})

	t.Run("invalid catalog", func(t *testing.T) {
		path := filepath.Join(tmpDir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("rulesets:\n  - name: x\n    colour: red\n"), 0644))
		_, _, err := executeCommand(t, "analyze", fixturePath("rhel7.log"), "--catalog", path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to load catalog")
	})
}

func TestKBString(t *testing.T) {
	tests := []struct {
		kb       int64
		expected string
	}{
		{0, "0 B"},
		{4, "4.0 KiB"},
		{36692, "36 MiB"},
		{20629004, "20 GiB"},
		{-2048, "-2.0 MiB"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, kbString(tt.kb))
		})
	}
}
