// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// File: internal/oom/text.go
// Purpose: Turns a raw dmesg, syslog, journalctl or rsyslog capture into the
// canonical line sequence of a single OOM report.

package oom

import (
	"fmt"
	"regexp"
	"strings"
)

// State describes how much of an OOM report the input contains.
type State int

const (
	StateUnknown State = iota
	StateEmpty
	StateInvalid
	StateStarted
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateUnknown:
		return "unknown"
	case StateEmpty:
		return "empty"
	case StateInvalid:
		return "invalid"
	case StateStarted:
		return "started"
	case StateComplete:
		return "complete"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

const (
	beginMarker    = "invoked oom-killer:"
	endMarker      = "Killed process"
	reaperMarker   = "oom_reaper"
	rsyslogNewline = "#012"
)

var (
	// "[ 1234.567890] " and the dmesg -T form "[Mon Jan  2 10:00:00 2023] "
	timestampRE = regexp.MustCompile(
		`\[\s*\d+\.\d+\] |\[[A-Z][a-z]{2} [A-Z][a-z]{2} [ \d]\d \d{2}:\d{2}:\d{2} \d{4}\] `)

	// Continuation lines of the Mem-Info block keep exactly one leading space.
	memInfoSecondPartRE = regexp.MustCompile(
		`^\s+((?:active_file|unevictable|slab_reclaimable|mapped|sec_pagetables|kernel_misc_reclaimable|free):.+)$`)
)

// Text is a normalized OOM report with a line cursor for block scanning.
type Text struct {
	State State

	lines []string
	pos   int
}

// NormalizeText cleans raw and classifies its completeness. Normalizing the
// String() of the result again yields the same lines and state.
func NormalizeText(raw string) *Text {
	t := &Text{State: StateUnknown}

	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.State = StateEmpty
		return t
	}
	if !strings.Contains(raw, beginMarker) {
		t.State = StateInvalid
		return t
	}

	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		if strings.Contains(line, beginMarker) {
			lines = lines[i:]
			break
		}
	}
	for i, line := range lines {
		lines[i] = removeNoise(line)
	}

	cols := prefixColumns(lines)
	var canonical []string
	for _, line := range lines {
		line = stripColumns(line, cols)
		for _, part := range strings.Split(line, rsyslogNewline) {
			part = strings.TrimRight(normalizeMemInfoLine(part), " \t")
			if strings.TrimSpace(part) == "" {
				continue
			}
			canonical = append(canonical, part)
		}
	}

	var complete bool
	t.lines, complete = cutAtEnd(canonical)
	if complete {
		t.State = StateComplete
	} else {
		t.State = StateStarted
	}
	return t
}

// cutAtEnd drops everything after the end marker line. A reaper line directly
// after it still belongs to the report.
func cutAtEnd(lines []string) ([]string, bool) {
	for i, line := range lines {
		if !strings.Contains(line, endMarker) {
			continue
		}
		end := i + 1
		if end < len(lines) && strings.Contains(lines[end], reaperMarker) {
			end++
		}
		return lines[:end], true
	}
	return lines, false
}

func removeNoise(line string) string {
	line = timestampRE.ReplaceAllString(line, "")
	line = strings.ReplaceAll(line, "kernel: ", "")
	return strings.ReplaceAll(line, "kernel:", "")
}

// prefixColumns counts the syslog columns in front of "CPU:".
func prefixColumns(lines []string) int {
	for _, line := range lines {
		if idx := strings.Index(line, "CPU:"); idx >= 0 {
			return len(strings.Fields(line[:idx]))
		}
	}
	return 0
}

func stripColumns(line string, n int) string {
	if n == 0 || memInfoSecondPartRE.MatchString(line) {
		return line
	}

	rest := line
	for i := 0; i < n; i++ {
		rest = strings.TrimLeft(rest, " \t")
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return ""
		}
		rest = rest[idx:]
	}
	return strings.TrimPrefix(rest, " ")
}

func normalizeMemInfoLine(line string) string {
	if m := memInfoSecondPartRE.FindStringSubmatch(line); m != nil {
		return " " + strings.TrimSpace(m[1])
	}
	return line
}

// String joins the canonical lines.
func (t *Text) String() string {
	return strings.Join(t.lines, "\n")
}

// Lines returns a copy of the canonical lines.
func (t *Text) Lines() []string {
	return append([]string(nil), t.lines...)
}

func (t *Text) Len() int {
	return len(t.lines)
}

// FindText moves the cursor to the first line containing marker. The cursor
// stays where it was if no line matches.
func (t *Text) FindText(marker string) bool {
	for i, line := range t.lines {
		if strings.Contains(line, marker) {
			t.pos = i
			return true
		}
	}
	return false
}

// Current returns the line under the cursor.
func (t *Text) Current() string {
	if t.pos < 0 || t.pos >= len(t.lines) {
		return ""
	}
	return t.lines[t.pos]
}

// Next advances the cursor and returns the new current line.
func (t *Text) Next() (string, bool) {
	if t.pos+1 >= len(t.lines) {
		return "", false
	}
	t.pos++
	return t.lines[t.pos], true
}

// Back moves the cursor one line up.
func (t *Text) Back() bool {
	if t.pos <= 0 {
		return false
	}
	t.pos--
	return true
}

func (t *Text) Reset() {
	t.pos = 0
}

// Block returns the line containing marker and all directly following lines
// that start with a space.
func (t *Text) Block(marker string) string {
	if !t.FindText(marker) {
		return ""
	}
	var b strings.Builder
	b.WriteString(t.Current())
	b.WriteByte('\n')
	for {
		line, ok := t.Next()
		if !ok {
			break
		}
		if !strings.HasPrefix(line, " ") {
			t.Back()
			break
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
