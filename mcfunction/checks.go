// Copyright © 2018 The ELPS authors

package mcfunction

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ErrAssertion is the cause of every failed assert command.
var ErrAssertion = errors.New("assertion failed")

// maxAssertStack is the number of frames an assertion failure lists.
const maxAssertStack = 10

// AssertionError describes a failed assert command. Stack lists the
// function invocations in progress, innermost first.
type AssertionError struct {
	Expr   string
	Reason string
	Stack  []string
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%v: %s\n  expression: %s\n  stack:", ErrAssertion, e.Reason, e.Expr)
	if len(e.Stack) == 0 {
		b.WriteString(" (none)")
	}
	for _, line := range e.Stack {
		b.WriteString("\n    ")
		b.WriteString(line)
	}
	return b.String()
}

func (e *AssertionError) Unwrap() error { return ErrAssertion }

// cmdAssert evaluates an expression and fails unless the result is a
// non-zero byte.
func (s *Server) cmdAssert(cx *commandContext, rd *cmdReader) error {
	text := rd.rest()
	fail := func(reason string) error {
		return &AssertionError{Expr: text, Reason: reason, Stack: assertStack(cx.run)}
	}
	if text == "" {
		return errors.New("expected expression")
	}
	v, err := s.Eval(text, cx.source)
	if err != nil {
		return fail(err.Error())
	}
	n, ok := v.(Number)
	if !ok || n.K != KindByte {
		return fail("result is not a byte: " + v.String())
	}
	if n.I == 0 {
		return fail("result is 0")
	}
	return nil
}

func assertStack(r *Run) []string {
	frames := r.Frames()
	var out []string
	for i, f := range frames {
		if i == maxAssertStack {
			out = append(out, fmt.Sprintf("... %d more", len(frames)-i))
			break
		}
		out = append(out, fmt.Sprintf("at %v line %d", f.FunctionID(), f.Line+1))
	}
	return out
}

// logPart is a literal run of a log message, or an expression when expr is
// set.
type logPart struct {
	text string
	expr *Expr
}

// parseLog splits a log message into literal text and {expression}
// segments. Braces nest, and braces inside quoted strings are literal.
func parseLog(text string) ([]logPart, error) {
	var parts []logPart
	var lit strings.Builder
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			lit.WriteByte(text[i])
			continue
		}
		end, err := closingBrace(text, i)
		if err != nil {
			return nil, err
		}
		x, err := ParseExpr(text[i+1 : end])
		if err != nil {
			return nil, err
		}
		if lit.Len() > 0 {
			parts = append(parts, logPart{text: lit.String()})
			lit.Reset()
		}
		parts = append(parts, logPart{text: text[i : end+1], expr: x})
		i = end
	}
	if lit.Len() > 0 {
		parts = append(parts, logPart{text: lit.String()})
	}
	return parts, nil
}

// closingBrace returns the index of the brace closing the one at open.
func closingBrace(text string, open int) (int, error) {
	depth := 0
	var quote byte
	for i := open; i < len(text); i++ {
		c := text[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, errors.Errorf("unterminated expression at column %d", open+1)
}

// cmdLog prints a message with every {expression} replaced by its value.
func (s *Server) cmdLog(cx *commandContext, rd *cmdReader) error {
	parts, err := parseLog(rd.rest())
	if err != nil {
		return err
	}
	var b strings.Builder
	for _, p := range parts {
		if p.expr == nil {
			b.WriteString(p.text)
			continue
		}
		v, err := p.expr.Eval(s, cx.source)
		if err != nil {
			return errors.Wrapf(err, "log %s", p.text)
		}
		b.WriteString(Text(v))
	}
	s.printf("[log] %s\n", b.String())
	return nil
}
