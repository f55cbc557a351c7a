// File: internal/oom/extract.go
// Purpose: Applies the ruleset patterns to the normalized text and converts
// the captured values to integers by their name suffix.

package oom

import (
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/edespino/oomtoolbox/internal/kconfig"
)

// numericSuffixes select the fields converted into Result.Numbers.
var numericSuffixes = []string{"_bytes", "_kb", "_pages", "_pid", "_uid", "_score", "_order", "_oomscore"}

// extractFields runs every pattern applicable to the analysis type. A missing
// mandatory match is reported and its fields are set to NotFound unless an
// earlier pattern already provided them.
func extractFields(text string, r *kconfig.Ruleset, t kconfig.AnalysisType) (FieldMap, []error) {
	fields := FieldMap{}
	var errs []error

	for _, p := range r.Patterns {
		if !p.Kind.Applies(t) {
			continue
		}
		names := p.Regex.SubexpNames()
		loc := p.Regex.FindStringSubmatchIndex(text)
		if loc == nil {
			if !p.Kind.Mandatory() {
				continue
			}
			errs = append(errs, errors.Wrapf(ErrExtraction, "mandatory pattern %q (%s) did not match", p.Name, p.Kind))
			for _, name := range names {
				if _, ok := fields.Get(name); name != "" && !ok {
					fields[name] = NotFound
				}
			}
			continue
		}

		for i, name := range names {
			if i == 0 || name == "" || loc[2*i] < 0 {
				continue
			}
			fields[name] = text[loc[2*i]:loc[2*i+1]]
		}
	}
	return fields, errs
}

func isNumericField(name string) bool {
	for _, s := range numericSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

// coerceNumbers converts numeric fields. NotFound values are skipped; they
// surface later as unavailable derived values.
func coerceNumbers(fields FieldMap) (map[string]int64, []error) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	numbers := make(map[string]int64)
	var errs []error
	for _, k := range keys {
		v, ok := fields.Get(k)
		if !ok || !isNumericField(k) {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			errs = append(errs, errors.Wrapf(ErrNumericCoercion, "field %s=%q", k, v))
			continue
		}
		numbers[k] = n
	}
	return numbers, errs
}
