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

// File: internal/oom/analyzer.go
// Purpose: Runs the analysis pipeline over one OOM report.
//
// Stages:
//   - normalize the text and reject empty, invalid or incomplete input
//   - resolve the kernel version and its ruleset
//   - detect the analysis type and extract the pattern fields
//   - parse buddy info, watermarks and the process table
//   - derive values and classify the allocation failure

package oom

import (
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/edespino/oomtoolbox/internal/kconfig"
	"github.com/edespino/oomtoolbox/internal/log"
)

type options struct {
	catalog *kconfig.Catalog
	logger  *zap.SugaredLogger
}

// Option configures Analyze.
type Option func(*options)

// WithCatalog analyses with rulesets other than the embedded ones.
func WithCatalog(c *kconfig.Catalog) Option {
	return func(o *options) { o.catalog = c }
}

// WithLogger replaces the package logger for one analysis.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *options) { o.logger = l }
}

// Analyze extracts everything it can from raw. The returned error is non-nil
// only for fatal input states; the result is returned in every case and
// carries the non-fatal errors in Errors.
func Analyze(raw string, opts ...Option) (*Result, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.catalog == nil {
		o.catalog = kconfig.DefaultCatalog()
	}

	res := newResult(uuid.NewString())
	var logger *zap.SugaredLogger
	if o.logger != nil {
		logger = o.logger.With("analysis", res.AnalysisID)
	} else {
		logger = log.Logger.With("analysis", res.AnalysisID)
	}

	text := NormalizeText(raw)
	res.State = text.State
	switch text.State {
	case StateEmpty:
		return res, fatal(res, logger, ErrEmptyInput)
	case StateInvalid:
		return res, fatal(res, logger, ErrInvalidInput)
	case StateStarted:
		return res, fatal(res, logger, ErrIncompleteInput)
	}
	canonical := text.String()
	logger.Debugw("normalized OOM text", "lines", text.Len())

	warn := func(stage string, errs ...error) {
		for _, err := range errs {
			if err == nil {
				continue
			}
			logger.Warnw("analysis step failed", "stage", stage, "error", err)
			res.addError(err)
		}
	}

	var ruleset *kconfig.Ruleset
	kv, err := kconfig.ExtractKernelVersion(canonical)
	if err != nil {
		warn("version", err)
		ruleset = o.catalog.Base()
	} else {
		res.KernelVersion = kv.Full
		ruleset, err = o.catalog.Resolve(kv)
		warn("ruleset", err)
	}
	res.Ruleset = ruleset.Name
	res.AnalysisType = ruleset.DetectAnalysisType(canonical)
	logger.Debugw("ruleset selected", "kernel", res.KernelVersion, "ruleset", res.Ruleset, "type", res.AnalysisType.String())

	fields, errs := extractFields(canonical, ruleset, res.AnalysisType)
	warn("extract", errs...)
	res.Details = fields

	numbers, errs := coerceNumbers(fields)
	warn("coerce", errs...)
	res.Numbers = numbers

	buddy, errs := parseBuddyInfo(text, ruleset)
	warn("buddyinfo", errs...)
	res.BuddyInfo = buddy
	res.MaxOrder = buddy.MaxOrder()

	wms, errs := parseWatermarks(text, ruleset)
	warn("watermarks", errs...)
	res.Watermarks = wms

	pt, errs := parseProcessTable(text, ruleset)
	warn("pstable", errs...)
	if pid, ok := res.Number("trigger_proc_pid"); ok {
		pt.annotate(pid, NoteTriggerProcess)
	}
	if pid, ok := res.Number("killed_proc_pid"); ok {
		pt.annotate(pid, NoteKilledProcess)
	}
	res.Processes = pt

	calculate(res, ruleset, text)
	analyseAllocFailure(res, ruleset)

	logger.Infow("analysis finished",
		"ruleset", res.Ruleset,
		"alloc_failure", res.AllocFailure.String(),
		"errors", len(res.Errors),
	)
	return res, nil
}

func fatal(res *Result, logger *zap.SugaredLogger, err error) error {
	logger.Errorw("analysis aborted", "state", res.State.String(), "error", err)
	res.addError(err)
	return err
}
