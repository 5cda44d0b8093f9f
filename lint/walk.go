// Copyright © 2024 The ELPS authors

package lint

import "strings"

// Word is a whitespace separated word of a command. Brackets, braces and
// quoted strings nest, so a selector or compound with spaces stays whole.
type Word struct {
	Text string
	Col  int // 1-based
}

// Words splits command text into words.
func Words(text string) []Word {
	var words []Word
	depth := 0
	var quote byte
	start := -1
	for i := 0; i < len(text); i++ {
		ch := text[i]
		switch {
		case quote != 0:
			if ch == '\\' {
				i++
			} else if ch == quote {
				quote = 0
			}
			continue
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '[' || ch == '{' || ch == '(':
			depth++
		case ch == ']' || ch == '}' || ch == ')':
			if depth > 0 {
				depth--
			}
		case (ch == ' ' || ch == '\t') && depth == 0:
			if start >= 0 {
				words = append(words, Word{Text: text[start:i], Col: start + 1})
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		words = append(words, Word{Text: text[start:], Col: start + 1})
	}
	return words
}

// Ref is a function reference found in a command.
type Ref struct {
	Word

	// Tag is set when the reference names a function tag. Text keeps the
	// leading #.
	Tag bool

	// Args is set when macro arguments follow the reference.
	Args bool

	Scheduled bool
}

// Refs returns the function references of a command, following
// "execute ... run" and "return run" chains.
func Refs(text string) []Ref {
	return refs(Words(text))
}

func refs(words []Word) []Ref {
	if len(words) == 0 {
		return nil
	}
	switch words[0].Text {
	case "function":
		if len(words) < 2 {
			return nil
		}
		return []Ref{newRef(words[1], len(words) > 2, false)}
	case "schedule":
		if len(words) < 3 || words[1].Text != "function" {
			return nil
		}
		return []Ref{newRef(words[2], false, true)}
	case "execute":
		for i, w := range words {
			if w.Text == "run" {
				return refs(words[i+1:])
			}
		}
	case "return":
		if len(words) > 1 && words[1].Text == "run" {
			return refs(words[2:])
		}
	}
	return nil
}

func newRef(w Word, args bool, scheduled bool) Ref {
	return Ref{
		Word:      w,
		Tag:       strings.HasPrefix(w.Text, "#"),
		Args:      args,
		Scheduled: scheduled,
	}
}

// Head returns the command name, the first word of text.
func Head(text string) string {
	words := Words(text)
	if len(words) == 0 {
		return ""
	}
	return words[0].Text
}
