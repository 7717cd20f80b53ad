package sandbox

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// The validator reasons about token streams rather than raw text so that
// imports, calls and attribute access cannot be hidden inside string
// literals or split across lines.

type tokenKind int

const (
	tokenName tokenKind = iota
	tokenNumber
	tokenString
	tokenOp
	tokenNewline
)

type token struct {
	kind  tokenKind
	value string
	line  int
}

type scanError struct {
	msg  string
	line int
}

func (e *scanError) Error() string {
	return fmt.Sprintf("%s (line %d)", e.msg, e.line)
}

type scanner struct {
	src    string
	pos    int
	line   int
	tokens []token
	// bracket nesting suppresses logical newlines, mirroring how the
	// interpreter joins implicit line continuations.
	brackets []rune
}

// tokenize splits source text into a flat Python token stream. It is a
// lexical pass only; grammar errors beyond lexical structure are left to
// the interpreter inside the sandbox.
func tokenize(src string) ([]token, error) {
	s := &scanner{src: src, line: 1}
	if err := s.run(); err != nil {
		return nil, err
	}
	return s.tokens, nil
}

func (s *scanner) run() error {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		switch {
		case c == '\r':
			s.pos++
		case c == '\n':
			s.emitNewline()
			s.pos++
			s.line++
		case c == ' ' || c == '\t' || c == '\f':
			s.pos++
		case c == '\\':
			if err := s.scanContinuation(); err != nil {
				return err
			}
		case c == '#':
			for s.pos < len(s.src) && s.src[s.pos] != '\n' {
				s.pos++
			}
		case c == '\'' || c == '"':
			if err := s.scanString("", false); err != nil {
				return err
			}
		case isIdentStart(rune(c)) || c >= utf8.RuneSelf:
			if err := s.scanNameOrPrefixedString(); err != nil {
				return err
			}
		case c >= '0' && c <= '9':
			s.scanNumber()
		case c == '.':
			if s.pos+1 < len(s.src) && s.src[s.pos+1] >= '0' && s.src[s.pos+1] <= '9' {
				s.scanNumber()
			} else {
				s.emitOp(".")
				s.pos++
			}
		default:
			if err := s.scanOp(); err != nil {
				return err
			}
		}
	}
	if len(s.brackets) > 0 {
		return &scanError{msg: fmt.Sprintf("unexpected EOF, unclosed '%c'", s.brackets[len(s.brackets)-1]), line: s.line}
	}
	s.emitNewline()
	return nil
}

func (s *scanner) emitNewline() {
	// Newlines inside brackets are implicit continuations; consecutive
	// logical newlines collapse.
	if len(s.brackets) > 0 {
		return
	}
	if n := len(s.tokens); n > 0 && s.tokens[n-1].kind != tokenNewline {
		s.tokens = append(s.tokens, token{kind: tokenNewline, line: s.line})
	}
}

func (s *scanner) emitOp(op string) {
	s.tokens = append(s.tokens, token{kind: tokenOp, value: op, line: s.line})
}

func (s *scanner) scanContinuation() error {
	// A backslash must be immediately followed by a line break.
	s.pos++
	if s.pos < len(s.src) && s.src[s.pos] == '\r' {
		s.pos++
	}
	if s.pos >= len(s.src) || s.src[s.pos] != '\n' {
		return &scanError{msg: "unexpected character after line continuation character", line: s.line}
	}
	s.pos++
	s.line++
	return nil
}

func (s *scanner) scanNameOrPrefixedString() error {
	start := s.pos
	for s.pos < len(s.src) {
		r, size := utf8.DecodeRuneInString(s.src[s.pos:])
		if !isIdentPart(r) {
			break
		}
		s.pos += size
	}
	name := s.src[start:s.pos]

	// A short identifier directly followed by a quote is a string prefix
	// (r, b, u, f and their combinations).
	if len(name) <= 2 && s.pos < len(s.src) && (s.src[s.pos] == '\'' || s.src[s.pos] == '"') {
		if isStringPrefix(name) {
			return s.scanString(strings.ToLower(name), true)
		}
	}

	s.tokens = append(s.tokens, token{kind: tokenName, value: name, line: s.line})
	return nil
}

func isStringPrefix(p string) bool {
	switch strings.ToLower(p) {
	case "r", "b", "u", "f", "rb", "br", "fr", "rf":
		return true
	}
	return false
}

func (s *scanner) scanString(prefix string, _ bool) error {
	raw := strings.Contains(prefix, "r")
	quote := s.src[s.pos]
	startLine := s.line
	s.pos++

	triple := false
	if s.pos+1 < len(s.src) && s.src[s.pos] == quote && s.src[s.pos+1] == quote {
		triple = true
		s.pos += 2
	} else if s.pos < len(s.src) && s.src[s.pos] == quote {
		// Empty short string.
		s.tokens = append(s.tokens, token{kind: tokenString, value: "", line: startLine})
		s.pos++
		return nil
	}

	var value strings.Builder
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if c == '\\' && s.pos+1 < len(s.src) {
			next := s.src[s.pos+1]
			if next == '\n' {
				if !raw {
					// Escaped newline disappears from the value.
				} else {
					value.WriteByte('\\')
					value.WriteByte('\n')
				}
				s.pos += 2
				s.line++
				continue
			}
			if raw {
				value.WriteByte('\\')
				value.WriteByte(next)
			} else {
				value.WriteString(decodeEscape(next))
			}
			s.pos += 2
			continue
		}
		if c == quote {
			if !triple {
				s.pos++
				s.tokens = append(s.tokens, token{kind: tokenString, value: value.String(), line: startLine})
				return nil
			}
			if s.pos+2 < len(s.src) && s.src[s.pos+1] == quote && s.src[s.pos+2] == quote {
				s.pos += 3
				s.tokens = append(s.tokens, token{kind: tokenString, value: value.String(), line: startLine})
				return nil
			}
			value.WriteByte(c)
			s.pos++
			continue
		}
		if c == '\n' {
			if !triple {
				return &scanError{msg: "unterminated string literal", line: startLine}
			}
			s.line++
		}
		value.WriteByte(c)
		s.pos++
	}
	return &scanError{msg: "unterminated string literal", line: startLine}
}

func decodeEscape(c byte) string {
	switch c {
	case 'n':
		return "\n"
	case 't':
		return "\t"
	case 'r':
		return "\r"
	case '0':
		return "\x00"
	case '\\':
		return "\\"
	case '\'':
		return "'"
	case '"':
		return "\""
	default:
		// Unrecognized escapes keep the backslash, as the interpreter does.
		return "\\" + string(c)
	}
}

func (s *scanner) scanNumber() {
	for s.pos < len(s.src) {
		c := s.src[s.pos]
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '.' || c == '_' {
			s.pos++
			continue
		}
		// Exponent sign.
		if (c == '+' || c == '-') && s.pos > 0 && (s.src[s.pos-1] == 'e' || s.src[s.pos-1] == 'E') {
			s.pos++
			continue
		}
		break
	}
	s.tokens = append(s.tokens, token{kind: tokenNumber, line: s.line})
}

func (s *scanner) scanOp() error {
	c := s.src[s.pos]
	switch c {
	case '(', '[', '{':
		s.brackets = append(s.brackets, rune(c))
		s.emitOp(string(c))
		s.pos++
		return nil
	case ')', ']', '}':
		if len(s.brackets) == 0 {
			return &scanError{msg: fmt.Sprintf("unmatched '%c'", c), line: s.line}
		}
		open := s.brackets[len(s.brackets)-1]
		if !bracketsMatch(open, rune(c)) {
			return &scanError{msg: fmt.Sprintf("closing parenthesis '%c' does not match opening parenthesis '%c'", c, open), line: s.line}
		}
		s.brackets = s.brackets[:len(s.brackets)-1]
		s.emitOp(string(c))
		s.pos++
		return nil
	case '+', '-', '*', '/', '%', '@', '<', '>', '&', '|', '^', '~', '=', ',', ':', ';':
		s.emitOp(string(c))
		s.pos++
		return nil
	case '!':
		if s.pos+1 < len(s.src) && s.src[s.pos+1] == '=' {
			s.emitOp("!=")
			s.pos += 2
			return nil
		}
		return &scanError{msg: "invalid character '!'", line: s.line}
	default:
		return &scanError{msg: fmt.Sprintf("invalid character %q", rune(c)), line: s.line}
	}
}

func bracketsMatch(open, close rune) bool {
	switch open {
	case '(':
		return close == ')'
	case '[':
		return close == ']'
	case '{':
		return close == '}'
	}
	return false
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}

func isIdentPart(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
