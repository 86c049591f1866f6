package jsonrepair

import (
	"encoding/json"
	"strings"
)

// Strategy names a single text-level repair heuristic.
type Strategy string

const (
	StrategyNone           Strategy = ""
	StrategyBalance        Strategy = "balance_brackets"
	StrategyCloseQuote     Strategy = "close_quote"
	StrategyTrailingCommas Strategy = "trailing_commas"
	StrategyStripComments  Strategy = "strip_comments"
	StrategyTokenScan      Strategy = "token_scan"
)

// Result is the outcome of Repair.
type Result struct {
	Text     string   `json:"text"`
	Strategy Strategy `json:"strategy"`
	OK       bool     `json:"ok"`
}

type strategy struct {
	name Strategy
	fn   func(string) string
}

// strategies in increasing order of invasiveness.
var strategies = []strategy{
	{StrategyBalance, BalanceBrackets},
	{StrategyCloseQuote, CloseQuote},
	{StrategyTrailingCommas, RemoveTrailingCommas},
	{StrategyStripComments, StripComments},
	{StrategyTokenScan, TokenScan},
}

// Repair tries each strategy against the original text and returns the first
// output that parses. Strategies are never chained: stacking independent
// heuristics compounds false corrections. Text that already parses is
// returned as-is with StrategyNone.
func Repair(raw string) Result {
	if json.Valid([]byte(raw)) {
		return Result{Text: raw, OK: true}
	}
	for _, s := range strategies {
		out := s.fn(raw)
		if out == raw {
			continue
		}
		if json.Valid([]byte(out)) {
			return Result{Text: out, Strategy: s.name, OK: true}
		}
	}
	return Result{Text: raw}
}

// scanner tracks whether a position is inside a string literal.
type scanner struct {
	inString bool
	escaped  bool
}

// step advances over c and reports whether c is structural (outside strings,
// not part of a literal's delimiters).
func (s *scanner) step(c byte) bool {
	if s.inString {
		switch {
		case s.escaped:
			s.escaped = false
		case c == '\\':
			s.escaped = true
		case c == '"':
			s.inString = false
		}
		return false
	}
	if c == '"' {
		s.inString = true
		return false
	}
	return true
}

func closerFor(open byte) byte {
	if open == '{' {
		return '}'
	}
	return ']'
}

// BalanceBrackets drops closers that have no matching opener and appends the
// closers still missing at the end of the text.
func BalanceBrackets(text string) string {
	var (
		sc    scanner
		stack []byte
		out   = make([]byte, 0, len(text)+8)
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !sc.step(c) {
			out = append(out, c)
			continue
		}
		switch c {
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 || closerFor(stack[len(stack)-1]) != c {
				continue
			}
			stack = stack[:len(stack)-1]
		}
		out = append(out, c)
	}
	if len(stack) == 0 {
		return string(out)
	}
	out = []byte(strings.TrimRight(string(out), " \t\r\n"))
	for i := len(stack) - 1; i >= 0; i-- {
		out = append(out, closerFor(stack[i]))
	}
	return string(out)
}

// CloseQuote terminates a string literal left open at the end of the text and
// closes the containers that were open at that point. Text that does not end
// inside a string is returned unchanged.
func CloseQuote(text string) string {
	var (
		sc    scanner
		stack []byte
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if !sc.step(c) {
			continue
		}
		switch c {
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if !sc.inString {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	if sc.escaped {
		// A lone trailing backslash would escape the closing quote.
		b.WriteByte('\\')
	}
	b.WriteByte('"')
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(closerFor(stack[i]))
	}
	return b.String()
}

// RemoveTrailingCommas drops commas that directly precede a closing brace or
// bracket.
func RemoveTrailingCommas(text string) string {
	var (
		sc  scanner
		out = make([]byte, 0, len(text))
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if sc.step(c) && c == ',' {
			j := i + 1
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			if j < len(text) && (text[j] == '}' || text[j] == ']') {
				continue
			}
		}
		out = append(out, c)
	}
	return string(out)
}

// StripComments removes // line comments and /* */ block comments outside of
// string literals.
func StripComments(text string) string {
	var (
		sc  scanner
		out = make([]byte, 0, len(text))
	)
	for i := 0; i < len(text); i++ {
		c := text[i]
		if sc.step(c) && c == '/' && i+1 < len(text) {
			switch text[i+1] {
			case '/':
				for i < len(text) && text[i] != '\n' {
					i++
				}
				if i < len(text) {
					out = append(out, '\n')
				}
				continue
			case '*':
				end := strings.Index(text[i+2:], "*/")
				if end < 0 {
					i = len(text)
				} else {
					i += 2 + end + 1
				}
				out = append(out, ' ')
				continue
			}
		}
		out = append(out, c)
	}
	return string(out)
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}
