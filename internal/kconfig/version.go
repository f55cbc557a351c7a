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

// File: internal/kconfig/version.go
// Purpose: Parses kernel version strings found in OOM reports and compares them
// against the minimum version of a ruleset.

package kconfig

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// MinVersion is the lowest kernel release a ruleset applies to. A non-empty
// Suffix must appear literally in the full version string (e.g. ".el7.").
type MinVersion struct {
	Major  int    `json:"major" yaml:"major"`
	Minor  int    `json:"minor" yaml:"minor"`
	Suffix string `json:"suffix,omitempty" yaml:"suffix,omitempty"`
}

func (m MinVersion) String() string {
	if m.Suffix == "" {
		return fmt.Sprintf("%d.%d", m.Major, m.Minor)
	}
	return fmt.Sprintf("%d.%d (%s)", m.Major, m.Minor, m.Suffix)
}

// KernelVersion is a parsed kernel release like "3.10.0-514.6.1.el7.x86_64".
type KernelVersion struct {
	Full   string `json:"full" yaml:"full"`
	Major  int    `json:"major" yaml:"major"`
	Minor  int    `json:"minor" yaml:"minor"`
	Patch  int    `json:"patch" yaml:"patch"` // -1 when the release has no patch level
	Suffix string `json:"suffix,omitempty" yaml:"suffix,omitempty"`
}

var versionRE = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?(.*)$`)

// kernelVersionRE matches the "CPU: ... Comm: ..." line of the stack dump header.
// Kernels >= 6.13 print the UID between CPU and PID.
var kernelVersionRE = regexp.MustCompile(
	`(?m)^CPU: \d+ (?:UID: \d+ )?PID: \d+ Comm: .* (?:Not tainted|Tainted:.*) (?P<kernel_version>\d[\w.+-]*) #\d`)

// ParseVersion splits a kernel release into major, minor, optional patch and suffix.
func ParseVersion(s string) (KernelVersion, error) {
	s = strings.TrimSpace(s)
	m := versionRE.FindStringSubmatch(s)
	if m == nil {
		return KernelVersion{}, errors.Wrapf(ErrVersionNotIdentified, "unparsable kernel version %q", s)
	}

	v := KernelVersion{Full: s, Patch: -1, Suffix: m[4]}
	v.Major, _ = strconv.Atoi(m[1])
	v.Minor, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		v.Patch, _ = strconv.Atoi(m[3])
	}
	return v, nil
}

// ExtractKernelVersion finds the kernel release in a normalized OOM text.
func ExtractKernelVersion(text string) (KernelVersion, error) {
	m := kernelVersionRE.FindStringSubmatch(text)
	if m == nil {
		return KernelVersion{}, errors.Wrap(ErrVersionNotIdentified, "no CPU/PID/Comm line with a kernel version")
	}
	return ParseVersion(m[kernelVersionRE.SubexpIndex("kernel_version")])
}

// AtLeast reports whether v satisfies the minimum version req.
func (v KernelVersion) AtLeast(req MinVersion) bool {
	if req.Major > v.Major {
		return false
	}
	if req.Major == v.Major && req.Minor > v.Minor {
		return false
	}
	if req.Suffix != "" && !strings.Contains(v.Full, req.Suffix) {
		return false
	}
	return true
}

func (v KernelVersion) String() string {
	return v.Full
}
