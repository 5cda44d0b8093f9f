// Copyright © 2024 The ELPS authors

package diagnostic

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// archiveSep separates a zip archive from the member path in a file name.
const archiveSep = "!/"

// tabWidth is the number of columns a tab is expanded to.
const tabWidth = 4

// Renderer formats diagnostics as annotated source snippets in the style of
// rustc.
type Renderer struct {
	Color ColorMode

	// SourceReader returns the contents of a span's file. The default reads
	// plain files and members of zip archives.
	SourceReader func(string) ([]byte, error)

	// MaxWidth elides source lines wider than this many columns so that
	// the underlined region stays visible. Zero shows lines in full.
	MaxWidth int
}

// Render writes a single diagnostic to w.
func (r *Renderer) Render(w io.Writer, d Diagnostic) error {
	return r.RenderAll(w, []Diagnostic{d})
}

// RenderAll writes diags to w separated by blank lines. Every source file
// is read at most once.
func (r *Renderer) RenderAll(w io.Writer, diags []Diagnostic) error {
	bw := bufio.NewWriter(w)
	pr := &printer{
		w:        bw,
		p:        choosePalette(r.Color, fileFromWriter(w)),
		src:      newSourceCache(r.reader()),
		maxWidth: r.MaxWidth,
	}
	for i, d := range diags {
		if i > 0 {
			pr.print("\n")
		}
		pr.diagnostic(d)
	}
	if pr.err != nil {
		return pr.err
	}
	return bw.Flush()
}

func (r *Renderer) reader() func(string) ([]byte, error) {
	if r.SourceReader != nil {
		return r.SourceReader
	}
	return readSource
}

// readSource reads a plain file or, for "archive!/member", a member of a
// zip archive.
func readSource(name string) ([]byte, error) {
	i := strings.Index(name, archiveSep)
	if i < 0 {
		return os.ReadFile(name) //nolint:gosec // datapack sources named by the user
	}
	zr, err := zip.OpenReader(name[:i])
	if err != nil {
		return nil, err
	}
	defer zr.Close() //nolint:errcheck
	f, err := zr.Open(name[i+len(archiveSep):])
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck
	return io.ReadAll(f)
}

// sourceCache holds the lines of every file read so far. A file that could
// not be read is cached as nil.
type sourceCache struct {
	read  func(string) ([]byte, error)
	files map[string][]string
}

func newSourceCache(read func(string) ([]byte, error)) *sourceCache {
	return &sourceCache{read: read, files: make(map[string][]string)}
}

// line returns line n (1-based) of file.
func (c *sourceCache) line(file string, n int) (string, bool) {
	if file == "" || n <= 0 {
		return "", false
	}
	lines, ok := c.files[file]
	if !ok {
		if data, err := c.read(file); err == nil {
			text := strings.ReplaceAll(string(data), "\r\n", "\n")
			lines = strings.Split(strings.TrimSuffix(text, "\n"), "\n")
		}
		c.files[file] = lines
	}
	if n > len(lines) {
		return "", false
	}
	return lines[n-1], true
}

// printer writes to w and keeps the first write error; later writes are
// dropped.
type printer struct {
	w        io.Writer
	p        palette
	src      *sourceCache
	maxWidth int
	err      error
}

func (pr *printer) printf(format string, a ...interface{}) {
	if pr.err == nil {
		_, pr.err = fmt.Fprintf(pr.w, format, a...)
	}
}

func (pr *printer) print(s string) {
	if pr.err == nil {
		_, pr.err = io.WriteString(pr.w, s)
	}
}

func (pr *printer) diagnostic(d Diagnostic) {
	p := pr.p
	pr.printf("%s%s%s: %s%s%s\n", p.severity(d.Severity), d.Severity, p.reset, p.bold, d.Message, p.reset)
	for _, s := range d.Spans {
		pr.span(s)
	}
	for _, note := range d.Notes {
		pr.printf("   %s=%s note: %s\n", p.boldCyan, p.reset, note)
	}
}

func (pr *printer) span(s Span) {
	p := pr.p
	pr.printf("  %s-->%s %s\n", p.boldBlue, p.reset, s.Location())
	src, ok := pr.src.line(s.File, s.Line)
	if !ok {
		pr.printf("   %s|%s\n", p.boldBlue, p.reset)
		return
	}

	col := s.Col
	if col <= 0 {
		col = 1
	}
	end := s.EndCol
	if end <= 0 {
		end = tokenEnd(src, col)
	}
	if end < col {
		end = col
	}
	shown := []rune(expandTabs(src))
	start := columnWidth(src, col)
	width := end - col + 1
	shown, start = elide(shown, start, width, pr.maxWidth)

	num := strconv.Itoa(s.Line)
	gutter := strings.Repeat(" ", len(num))
	pr.printf(" %s%s |%s\n", p.boldBlue, gutter, p.reset)
	pr.printf(" %s%s |%s  %s\n", p.boldBlue, num, p.reset, string(shown))
	pr.printf(" %s%s |%s  %s%s%s%s", p.boldBlue, gutter, p.reset,
		strings.Repeat(" ", start), p.boldRed, strings.Repeat("^", width), p.reset)
	if s.Label != "" {
		pr.printf(" %s%s%s", p.boldRed, s.Label, p.reset)
	}
	pr.print("\n")
	pr.printf(" %s%s |%s\n", p.boldBlue, gutter, p.reset)
}

// tokenEnd returns the 1-based column of the last character of the value
// starting at col. A bracketed value ends at its matching bracket, any
// other word at the next space or opening bracket.
func tokenEnd(src string, col int) int {
	i := col - 1
	if i >= len(src) {
		return col
	}
	if strings.IndexByte("{[(", src[i]) >= 0 {
		if j := matchBracket(src, i); j >= 0 {
			return j + 1
		}
	}
	j := i
	for j < len(src) && strings.IndexByte(" \t{[", src[j]) < 0 {
		j++
	}
	if j == i {
		return col
	}
	return j
}

// matchBracket returns the index of the bracket closing the one at open,
// skipping quoted strings, or -1 when it is not closed on the line.
func matchBracket(src string, open int) int {
	var stack []byte
	var quote byte
	for i := open; i < len(src); i++ {
		c := src[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '{' || c == '[' || c == '(':
			stack = append(stack, c)
		case c == '}' || c == ']' || c == ')':
			if len(stack) == 0 {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

// elide cuts line down to maxWidth runes around the underline starting at
// start, marking cut ends with "...". It returns the new line and start.
func elide(line []rune, start, width, maxWidth int) ([]rune, int) {
	const dots = "..."
	if maxWidth <= 2*len(dots) || len(line) <= maxWidth {
		return line, start
	}
	left := 0
	if start+width > maxWidth-len(dots) {
		left = start - maxWidth/4
		if left < 0 {
			left = 0
		}
	}
	out := line[left:]
	if left > 0 {
		out = append([]rune(dots), out...)
		start = start - left + len(dots)
	}
	if len(out) > maxWidth {
		out = append(out[:maxWidth-len(dots):maxWidth-len(dots)], []rune(dots)...)
	}
	return out, start
}

func expandTabs(s string) string {
	return strings.ReplaceAll(s, "\t", strings.Repeat(" ", tabWidth))
}

// columnWidth returns the display width of src before the 1-based col.
func columnWidth(src string, col int) int {
	n := col - 1
	if n > len(src) {
		return len([]rune(expandTabs(src))) + n - len(src)
	}
	return len([]rune(expandTabs(src[:n])))
}

// fileFromWriter returns the *os.File behind w, if any, for terminal
// detection.
func fileFromWriter(w io.Writer) *os.File {
	if f, ok := w.(*os.File); ok {
		return f
	}
	return nil
}
