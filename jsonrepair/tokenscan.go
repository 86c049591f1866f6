package jsonrepair

import "fmt"

// tokenScanner is the state of a single TokenScan pass.
type tokenScanner struct {
	out       []byte
	stack     []byte
	inString  bool
	quote     byte
	expectKey bool
}

// TokenScan walks the text once, tracking string/escape/nesting state, and
// emits a corrected token stream. It strips comments, drops trailing commas,
// converts single-quoted strings, quotes bare object keys, maps Python-style
// literals, escapes raw control characters inside strings, drops unmatched
// closers, and finally closes any dangling string and open containers.
func TokenScan(text string) string {
	ts := &tokenScanner{out: make([]byte, 0, len(text)+16)}
	for i := 0; i < len(text); i++ {
		if ts.inString {
			i = ts.stringByte(text, i)
			continue
		}
		i = ts.structuralByte(text, i)
	}
	return ts.finish()
}

func (ts *tokenScanner) stringByte(text string, i int) int {
	c := text[i]
	switch {
	case c == '\\':
		if i+1 >= len(text) {
			return i
		}
		next := text[i+1]
		// \' is not a JSON escape in either quote style.
		if next == '\'' {
			ts.out = append(ts.out, '\'')
		} else {
			ts.out = append(ts.out, '\\', next)
		}
		return i + 1
	case c == ts.quote:
		ts.out = append(ts.out, '"')
		ts.inString = false
	case c == '"':
		// Only reachable inside a single-quoted string.
		ts.out = append(ts.out, '\\', '"')
	case c == '\n':
		ts.out = append(ts.out, '\\', 'n')
	case c == '\r':
		ts.out = append(ts.out, '\\', 'r')
	case c == '\t':
		ts.out = append(ts.out, '\\', 't')
	case c < 0x20:
		ts.out = append(ts.out, fmt.Sprintf("\\u%04x", c)...)
	default:
		ts.out = append(ts.out, c)
	}
	return i
}

func (ts *tokenScanner) structuralByte(text string, i int) int {
	c := text[i]
	switch {
	case c == '/' && i+1 < len(text) && text[i+1] == '/':
		for i < len(text) && text[i] != '\n' {
			i++
		}
		return i - 1
	case c == '/' && i+1 < len(text) && text[i+1] == '*':
		for i+1 < len(text) && !(text[i] == '*' && text[i+1] == '/') {
			i++
		}
		return i + 1
	case c == '"' || c == '\'':
		ts.inString = true
		ts.quote = c
		ts.expectKey = false
		ts.out = append(ts.out, '"')
	case c == '{' || c == '[':
		ts.stack = append(ts.stack, c)
		ts.expectKey = c == '{'
		ts.out = append(ts.out, c)
	case c == '}' || c == ']':
		ts.close(c)
	case c == ',':
		ts.out = append(ts.out, c)
		ts.expectKey = ts.top() == '{'
	case c == ':':
		ts.out = append(ts.out, c)
		ts.expectKey = false
	case isIdentStart(c):
		j := i
		for j < len(text) && isIdentPart(text[j]) {
			j++
		}
		ts.word(text[i:j])
		return j - 1
	default:
		ts.out = append(ts.out, c)
	}
	return i
}

func (ts *tokenScanner) word(w string) {
	if ts.expectKey && ts.top() == '{' {
		ts.out = append(ts.out, '"')
		ts.out = append(ts.out, w...)
		ts.out = append(ts.out, '"')
		ts.expectKey = false
		return
	}
	switch w {
	case "True":
		w = "true"
	case "False":
		w = "false"
	case "None", "undefined":
		w = "null"
	}
	ts.out = append(ts.out, w...)
}

// close handles a closing brace or bracket. A closer matching a deeper frame
// also closes every frame above it; a closer matching nothing is dropped.
func (ts *tokenScanner) close(c byte) {
	depth := -1
	for k := len(ts.stack) - 1; k >= 0; k-- {
		if closerFor(ts.stack[k]) == c {
			depth = k
			break
		}
	}
	if depth < 0 {
		return
	}
	for len(ts.stack) > depth {
		ts.trimDangling()
		ts.out = append(ts.out, closerFor(ts.stack[len(ts.stack)-1]))
		ts.stack = ts.stack[:len(ts.stack)-1]
	}
	ts.expectKey = false
}

// trimDangling removes a trailing comma and completes a dangling colon
// before a container is closed.
func (ts *tokenScanner) trimDangling() {
	end := len(ts.out)
	for end > 0 && isSpace(ts.out[end-1]) {
		end--
	}
	if end == 0 {
		return
	}
	switch ts.out[end-1] {
	case ',':
		ts.out = ts.out[:end-1]
	case ':':
		ts.out = append(ts.out[:end], "null"...)
	}
}

func (ts *tokenScanner) finish() string {
	if ts.inString {
		ts.out = append(ts.out, '"')
	}
	for len(ts.stack) > 0 {
		ts.trimDangling()
		ts.out = append(ts.out, closerFor(ts.stack[len(ts.stack)-1]))
		ts.stack = ts.stack[:len(ts.stack)-1]
	}
	ts.trimDangling()
	return string(ts.out)
}

func (ts *tokenScanner) top() byte {
	if len(ts.stack) == 0 {
		return 0
	}
	return ts.stack[len(ts.stack)-1]
}

func isIdentStart(c byte) bool {
	return c == '_' || c == '$' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}
