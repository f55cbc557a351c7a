// File: internal/oom/text_test.go
package oom

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readFixture(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	require.NoError(t, err)
	return string(data)
}

// rsyslogVariant rewrites a plain capture the way rsyslog stores it: every
// line gets a syslog prefix and the Mem-Info block is joined with #012.
func rsyslogVariant(raw string) string {
	const prefix = "Jan 12 03:04:05 db01 kernel: "
	var out, memInfo []string
	for _, line := range strings.Split(strings.TrimRight(raw, "\n"), "\n") {
		switch {
		case line == "Mem-Info:":
			memInfo = []string{line}
			continue
		case memInfo != nil:
			memInfo = append(memInfo, line)
			if strings.HasPrefix(line, " free:") {
				out = append(out, prefix+strings.Join(memInfo, "#012"))
				memInfo = nil
			}
			continue
		}
		out = append(out, prefix+line)
	}
	return strings.Join(out, "\n")
}

func TestNormalizeTextState(t *testing.T) {
	rhel7 := readFixture(t, "rhel7.log")
	truncated := rhel7[:strings.Index(rhel7, "Killed process")]

	tests := []struct {
		name     string
		input    string
		expected State
	}{
		{"empty", "", StateEmpty},
		{"whitespace only", " \r\n\t\n", StateEmpty},
		{"no begin marker", "kernel: eth0: link up\nkernel: usb 1-1: new device", StateInvalid},
		{"no end marker", truncated, StateStarted},
		{"complete", rhel7, StateComplete},
		{"crlf line endings", strings.ReplaceAll(rhel7, "\n", "\r\n"), StateComplete},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text := NormalizeText(tt.input)
			assert.Equal(t, tt.expected, text.State)
		})
	}
}

func TestNormalizeTextFixtures(t *testing.T) {
	tests := []struct {
		fixture   string
		first     string
		last      string
		contains  []string
		forbidden []string
	}{
		{
			fixture: "rhel7.log",
			first:   "sed invoked oom-killer: gfp_mask=0x201da, order=0, oom_score_adj=0",
			last:    "Killed process 6576 (java) total-vm:33914892kB, anon-rss:20629004kB, file-rss:0kB, shmem-rss:0kB",
			contains: []string{
				" active_file:1263 inactive_file:1167 isolated_file:32",
				"[ 6576] 12345  6576  8478546  5157063   15483  1527848             0 java",
			},
		},
		{
			fixture: "ubuntu-5.15.log",
			first:   "stress-ng invoked oom-killer: gfp_mask=0x100cca(GFP_HIGHUSER_MOVABLE), order=0, oom_score_adj=1000",
			last:    "oom_reaper: reaped process 4242 (stress-ng), now anon-rss:0kB, file-rss:0kB, shmem-rss:0kB",
			contains: []string{
				" <TASK>",
				" kernel_misc_reclaimable:0",
				"lowmem_reserve[]: 0 0 0 0 0",
			},
			forbidden: []string{"audit:", "systemd-journald[312]", "[ 5433."},
		},
		{
			fixture: "cgroup-4.15.log",
			first:   "java invoked oom-killer: gfp_mask=0x14000c0(GFP_KERNEL), nodemask=(null), order=0, oom_score_adj=0",
			last:    "oom_reaper: reaped process 8123 (java), now anon-rss:0kB, file-rss:0kB, shmem-rss:0kB",
			contains: []string{
				" dump_stack+0x6d/0x8b",
				"memory: usage 524288kB, limit 524288kB, failcnt 1234",
				"[ 8123]  1000  8123   912345   128000  1536000        0             0 java",
			},
			forbidden: []string{"web01", "kernel:", "dockerd"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.fixture, func(t *testing.T) {
			text := NormalizeText(readFixture(t, tt.fixture))
			require.Equal(t, StateComplete, text.State)

			lines := text.Lines()
			require.NotEmpty(t, lines)
			assert.Equal(t, tt.first, lines[0])
			assert.Equal(t, tt.last, lines[len(lines)-1])
			for _, want := range tt.contains {
				assert.Contains(t, lines, want)
			}
			for _, bad := range tt.forbidden {
				assert.NotContains(t, text.String(), bad)
			}
		})
	}
}

func TestNormalizeTextRsyslog(t *testing.T) {
	raw := readFixture(t, "rhel7.log")
	variant := rsyslogVariant(raw)
	require.Contains(t, variant, "#012")

	plain := NormalizeText(raw)
	escaped := NormalizeText(variant)
	assert.Equal(t, StateComplete, escaped.State)
	assert.Equal(t, plain.Lines(), escaped.Lines())
}

func TestNormalizeTextIdempotent(t *testing.T) {
	raw := readFixture(t, "rhel7.log")
	inputs := map[string]string{
		"rhel7":   raw,
		"rsyslog": rsyslogVariant(raw),
		"ubuntu":  readFixture(t, "ubuntu-5.15.log"),
		"cgroup":  readFixture(t, "cgroup-4.15.log"),
	}

	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			once := NormalizeText(input)
			twice := NormalizeText(once.String())
			assert.Equal(t, once.State, twice.State)
			assert.Equal(t, once.Lines(), twice.Lines())
		})
	}
}

func TestRemoveNoise(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"[ 1234.567890] Mem-Info:", "Mem-Info:"},
		{"[12345.000001]  active_file:1", " active_file:1"},
		{"[Mon Jan  2 10:00:00 2023] Mem-Info:", "Mem-Info:"},
		{"kernel: Mem-Info:", "Mem-Info:"},
		{"kernel:Mem-Info:", "Mem-Info:"},
		{"host kernel: [ 1.5] sed invoked oom-killer:", "host sed invoked oom-killer:"},
		{"Node 0 DMA: 1*4kB", "Node 0 DMA: 1*4kB"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, removeNoise(tt.input))
		})
	}
}

func TestStripColumns(t *testing.T) {
	tests := []struct {
		name     string
		line     string
		n        int
		expected string
	}{
		{"no columns", "CPU: 1 PID: 2", 0, "CPU: 1 PID: 2"},
		{"syslog prefix", "Jul  3 11:02:33 web01 CPU: 1 PID: 2", 4, "CPU: 1 PID: 2"},
		{"keeps indentation", "Jul  3 11:02:33 web01  dump_stack+0x6d/0x8b", 4, " dump_stack+0x6d/0x8b"},
		{"mem-info continuation", "   active_file:95 inactive_file:41", 4, "   active_file:95 inactive_file:41"},
		{"short line", "Jul  3", 4, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, stripColumns(tt.line, tt.n))
		})
	}
}

func TestTextCursor(t *testing.T) {
	text := NormalizeText(readFixture(t, "rhel7.log"))

	require.True(t, text.FindText("Mem-Info:"))
	assert.Equal(t, "Mem-Info:", text.Current())

	line, ok := text.Next()
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(line, "active_anon:"))

	require.True(t, text.Back())
	assert.Equal(t, "Mem-Info:", text.Current())

	assert.False(t, text.FindText("no such marker"))
	assert.Equal(t, "Mem-Info:", text.Current(), "cursor must not move on a miss")

	text.Reset()
	assert.False(t, text.Back())
	assert.Equal(t, 145, text.Len())
}

func TestTextBlock(t *testing.T) {
	text := NormalizeText(readFixture(t, "rhel7.log"))

	trace := strings.Split(strings.TrimSuffix(text.Block("Call Trace:"), "\n"), "\n")
	assert.Len(t, trace, 23)
	assert.Equal(t, " [<ffffffff8168e288>] page_fault+0x28/0x30", trace[len(trace)-1])
	assert.Equal(t, "Mem-Info:", mustNext(t, text))

	hw := strings.Split(strings.TrimSuffix(text.Block("Hardware name:"), "\n"), "\n")
	assert.Len(t, hw, 4)

	assert.Empty(t, text.Block("no such marker"))
}

func mustNext(t *testing.T, text *Text) string {
	t.Helper()
	line, ok := text.Next()
	require.True(t, ok)
	return line
}
