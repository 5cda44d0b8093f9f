// Copyright © 2018 The ELPS authors

package mcfunction

import (
	"bufio"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// Location identifies where a function's source is stored: a plain file
// when Archive is empty, otherwise a member of the Archive zip.
type Location struct {
	Archive string
	Path    string
}

// InArchive reports whether the source is an archive member.
func (l Location) InArchive() bool {
	return l.Archive != ""
}

func (l Location) String() string {
	if l.InArchive() {
		return l.Archive + "!/" + l.Path
	}
	return l.Path
}

// Command is one executable line of a function.
type Command struct {
	Line  int // 0-indexed source line
	Text  string
	Macro bool
}

// Function is a parsed function source.
type Function struct {
	ID       ResourceID
	Lines    []string
	Commands []Command
	Location Location
}

// ParseError is a syntax error in a function source. Line is 1-based.
// Path is set when the source was read from a datapack and is relative to
// the datapack root.
type ParseError struct {
	Function ResourceID
	Path     string
	Line     int
	Msg      string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%v:%d: %s", e.Function, e.Line, e.Msg)
}

var macroPlaceholder = regexp.MustCompile(`\$\(([A-Za-z0-9_]+)\)`)

// ParseFunction reads a function body. Blank lines and # comments are
// skipped, a line ending in a backslash continues on the next line, and a
// leading $ marks a macro line.
func ParseFunction(id ResourceID, r io.Reader) (*Function, error) {
	fn := &Function{ID: id}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	var pending strings.Builder
	pendingLine := -1
	for scanner.Scan() {
		raw := scanner.Text()
		lineNo := len(fn.Lines)
		fn.Lines = append(fn.Lines, raw)
		text := strings.TrimSpace(raw)
		if pendingLine < 0 && (text == "" || strings.HasPrefix(text, "#")) {
			continue
		}
		if pendingLine < 0 {
			pendingLine = lineNo
		}
		if strings.HasSuffix(text, "\\") {
			pending.WriteString(strings.TrimSuffix(text, "\\"))
			continue
		}
		pending.WriteString(text)
		if err := fn.addCommand(pendingLine, pending.String()); err != nil {
			return nil, err
		}
		pending.Reset()
		pendingLine = -1
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading %v", id)
	}
	if pendingLine >= 0 {
		return nil, &ParseError{Function: id, Line: pendingLine + 1, Msg: "line continuation at end of file"}
	}
	return fn, nil
}

func (fn *Function) addCommand(line int, text string) error {
	cmd := Command{Line: line, Text: text}
	if strings.HasPrefix(text, "$") {
		cmd.Macro = true
		cmd.Text = strings.TrimSpace(text[1:])
		if !macroPlaceholder.MatchString(cmd.Text) {
			return &ParseError{Function: fn.ID, Line: line + 1, Msg: "macro line without arguments"}
		}
	}
	fn.Commands = append(fn.Commands, cmd)
	return nil
}

// IsMacro reports whether any command of fn needs arguments.
func (fn *Function) IsMacro() bool {
	for _, c := range fn.Commands {
		if c.Macro {
			return true
		}
	}
	return false
}

// Expand substitutes $(key) placeholders in a macro command from args.
func (c Command) Expand(args *Compound) (string, error) {
	if !c.Macro {
		return c.Text, nil
	}
	var missing string
	out := macroPlaceholder.ReplaceAllStringFunc(c.Text, func(m string) string {
		key := macroPlaceholder.FindStringSubmatch(m)[1]
		if args == nil {
			missing = key
			return m
		}
		v, ok := args.Get(key)
		if !ok {
			missing = key
			return m
		}
		return Text(v)
	})
	if missing != "" {
		return "", errors.Errorf("missing macro argument %q", missing)
	}
	return out, nil
}

// Doc returns the comment block at the top of fn without the # markers.
func (fn *Function) Doc() string {
	var doc []string
	for _, raw := range fn.Lines {
		text := strings.TrimSpace(raw)
		if !strings.HasPrefix(text, "#") {
			break
		}
		doc = append(doc, strings.TrimSpace(strings.TrimPrefix(text, "#")))
	}
	return strings.Join(doc, "\n")
}

// Source returns the function's source text.
func (fn *Function) Source() string {
	return strings.Join(fn.Lines, "\n")
}
