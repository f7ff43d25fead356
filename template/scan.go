// Copyright (c) Cascade Authors.
// Licensed under the MIT License.

package template

import "strings"

// Form classifies how a string uses template syntax.
type Form int

const (
	// FormNone means the string contains no template expressions.
	FormNone Form = iota
	// FormSimple means the whole string is a single expression, so the
	// referenced value substitutes with its type preserved.
	FormSimple
	// FormComplex means expressions are embedded in surrounding text and
	// every resolved value is stringified into place.
	FormComplex
)

// Expr is one ${...} occurrence found by the scanner.
type Expr struct {
	// Raw is the full expression text including delimiters, "${a.b}".
	Raw string
	// Inner is the path text between the braces.
	Inner string
	// Path is the parsed path. When ParseErr is non-nil, Path is zero.
	Path Path
	// ParseErr records an inner text that is not a valid path. The
	// expression still counts as template syntax: a malformed reference is
	// a resolution failure, not literal text.
	ParseErr error
}

// chunk is a piece of a scanned string: either literal text or one
// expression. Escapes are already collapsed, so lit never contains "$${".
type chunk struct {
	lit  string
	expr *Expr
}

// scan splits s into literal and expression chunks. "$${" collapses to the
// literal "${" and never opens an expression. An unterminated "${" is kept
// as literal text.
func scan(s string) []chunk {
	var chunks []chunk
	var lit strings.Builder

	flush := func() {
		if lit.Len() > 0 {
			chunks = append(chunks, chunk{lit: lit.String()})
			lit.Reset()
		}
	}

	i := 0
	for i < len(s) {
		if strings.HasPrefix(s[i:], "$${") {
			end := strings.IndexByte(s[i+3:], '}')
			if end < 0 {
				lit.WriteString(s[i:])
				i = len(s)
				continue
			}
			lit.WriteString("${")
			lit.WriteString(s[i+3 : i+3+end])
			lit.WriteByte('}')
			i += 3 + end + 1
			continue
		}
		if strings.HasPrefix(s[i:], "${") {
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				lit.WriteString(s[i:])
				i = len(s)
				continue
			}
			inner := s[i+2 : i+2+end]
			expr := &Expr{Raw: s[i : i+2+end+1], Inner: inner}
			expr.Path, expr.ParseErr = ParsePath(inner)
			flush()
			chunks = append(chunks, chunk{expr: expr})
			i += 2 + end + 1
			continue
		}
		lit.WriteByte(s[i])
		i++
	}
	flush()
	return chunks
}

// Classify returns the template form of s and its expressions in order.
func Classify(s string) (Form, []Expr) {
	chunks := scan(s)
	var exprs []Expr
	literal := false
	for _, c := range chunks {
		if c.expr != nil {
			exprs = append(exprs, *c.expr)
		} else if c.lit != "" {
			literal = true
		}
	}
	switch {
	case len(exprs) == 0:
		return FormNone, nil
	case len(exprs) == 1 && !literal:
		return FormSimple, exprs
	default:
		return FormComplex, exprs
	}
}

// HasExpr reports whether s contains at least one non-escaped expression.
func HasExpr(s string) bool {
	form, _ := Classify(s)
	return form != FormNone
}
