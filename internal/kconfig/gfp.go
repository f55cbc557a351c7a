// File: internal/kconfig/gfp.go
// Purpose: Converts GFP allocation masks to flag names and back.
//
// Flag expressions follow the kernel headers but are evaluated strictly from
// left to right: "A | B & ~C" means ((A | B) & ^C). Parentheses are not supported.

package kconfig

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	usefulPrefix   = "GFP_"
	modifierPrefix = "__GFP_"
	bitmaskPrefix  = "___GFP_"
)

// FlagValue returns the resolved value of a flag name.
func (r *Ruleset) FlagValue(name string) (uint64, error) {
	f, ok := r.GFPFlags[name]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownFlag, "%s in ruleset %s", name, r.Name)
	}
	return f.Value, nil
}

// EncodeFlags ORs the values of the named flags.
func (r *Ruleset) EncodeFlags(names ...string) (uint64, error) {
	var mask uint64
	for _, n := range names {
		v, err := r.FlagValue(strings.TrimSpace(n))
		if err != nil {
			return 0, err
		}
		mask |= v
	}
	return mask, nil
}

// DecodeMask splits mask into flag names using greedy subset subtraction over
// the reverse lookup list. The names are sorted; bits no flag accounts for are
// returned as residual.
func (r *Ruleset) DecodeMask(mask uint64) (names []string, residual uint64) {
	remaining := mask
	for _, name := range r.ReverseLookup {
		if remaining == 0 {
			break
		}
		v := r.GFPFlags[name].Value
		if remaining&v == v {
			remaining &^= v
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, remaining
}

// DecodeFlags parses a hex mask like "0x201da" and returns the flag names plus
// a trailing hex literal for any unclassified bits.
func (r *Ruleset) DecodeFlags(hexMask string) ([]string, error) {
	mask, err := ParseMask(hexMask)
	if err != nil {
		return nil, err
	}
	names, residual := r.DecodeMask(mask)
	if residual != 0 {
		names = append(names, FormatMask(residual))
	}
	return names, nil
}

// ParseMask parses a GFP mask with or without the 0x prefix.
func ParseMask(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid GFP mask %q", s)
	}
	return v, nil
}

// FormatMask renders a mask the way the kernel prints it.
func FormatMask(v uint64) string {
	return fmt.Sprintf("%#x", v)
}

// resolveFlags evaluates every expression of the table. Unknown names and
// reference cycles are errors.
func resolveFlags(exprs map[string]string) (map[string]GFPFlag, error) {
	memo := make(map[string]uint64, len(exprs))
	visiting := make(map[string]bool)

	var resolve func(name string) (uint64, error)
	resolve = func(name string) (uint64, error) {
		if v, ok := memo[name]; ok {
			return v, nil
		}
		expr, ok := exprs[name]
		if !ok {
			return 0, errors.Wrapf(ErrUnknownFlag, "%s", name)
		}
		if visiting[name] {
			return 0, errors.Errorf("cyclic GFP flag definition at %s", name)
		}
		visiting[name] = true
		defer delete(visiting, name)

		v, err := evalExpr(expr, resolve)
		if err != nil {
			return 0, errors.Wrapf(err, "flag %s", name)
		}
		memo[name] = v
		return v, nil
	}

	flags := make(map[string]GFPFlag, len(exprs))
	for name, expr := range exprs {
		v, err := resolve(name)
		if err != nil {
			return nil, err
		}
		flags[name] = GFPFlag{Expr: expr, Value: v}
	}
	return flags, nil
}

// evalExpr folds the operands of expr from left to right.
func evalExpr(expr string, resolve func(string) (uint64, error)) (uint64, error) {
	if strings.ContainsAny(expr, "()") {
		return 0, errors.Errorf("parentheses are not supported in %q", expr)
	}

	var (
		acc     uint64
		op      byte = '|'
		operand strings.Builder
		seen    bool
	)

	apply := func() error {
		tok := strings.TrimSpace(operand.String())
		operand.Reset()
		if tok == "" {
			return errors.Errorf("missing operand in %q", expr)
		}
		v, err := evalOperand(tok, resolve)
		if err != nil {
			return err
		}
		switch op {
		case '|':
			acc |= v
		case '&':
			acc &= v
		}
		seen = true
		return nil
	}

	for i := 0; i < len(expr); i++ {
		c := expr[i]
		if c == '|' || c == '&' {
			if err := apply(); err != nil {
				return 0, err
			}
			op = c
			continue
		}
		operand.WriteByte(c)
	}
	if err := apply(); err != nil {
		return 0, err
	}
	if !seen {
		return 0, errors.Errorf("empty expression")
	}
	return acc, nil
}

func evalOperand(tok string, resolve func(string) (uint64, error)) (uint64, error) {
	negate := false
	if strings.HasPrefix(tok, "~") {
		negate = true
		tok = strings.TrimSpace(tok[1:])
	}

	v, ok := parseLiteral(tok)
	if !ok {
		var err error
		if v, err = resolve(tok); err != nil {
			return 0, err
		}
	}
	if negate {
		v = ^v
	}
	return v, nil
}

// parseLiteral accepts hex and decimal literals with an optional C "u" suffix.
func parseLiteral(tok string) (uint64, bool) {
	if tok == "" || tok[0] < '0' || tok[0] > '9' {
		return 0, false
	}
	tok = strings.TrimRight(tok, "uUlL")
	v, err := strconv.ParseUint(tok, 0, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// buildReverseLookup lists useful GFP_* combinations before __GFP_* modifiers,
// each group by descending value and then by name. Zero values never match
// usefully and are left out.
func buildReverseLookup(flags map[string]GFPFlag) []string {
	var useful, modifiers []string
	for name, f := range flags {
		if f.Value == 0 {
			continue
		}
		switch {
		case strings.HasPrefix(name, bitmaskPrefix):
		case strings.HasPrefix(name, modifierPrefix):
			modifiers = append(modifiers, name)
		case strings.HasPrefix(name, usefulPrefix):
			useful = append(useful, name)
		}
	}

	byValue := func(names []string) {
		sort.Slice(names, func(i, j int) bool {
			vi, vj := flags[names[i]].Value, flags[names[j]].Value
			if vi != vj {
				return vi > vj
			}
			return names[i] < names[j]
		})
	}
	byValue(useful)
	byValue(modifiers)
	return append(useful, modifiers...)
}
