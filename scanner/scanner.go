// Package scanner implements a lexer for tinyc source text. It takes a
// []byte as source which can then be tokenized through repeated calls to
// Scan. Grounded on cue/scanner's rune-cursor design (next/ch/offset),
// simplified for a language with no string interpolation and line-only
// position tracking. Identifier letters and digits include Unicode
// letters and digits as well as ASCII ones.
package scanner

import (
	"unicode"
	"unicode/utf8"

	"github.com/tinyc-lang/tinyc/errors"
	"github.com/tinyc-lang/tinyc/token"
)

// Scanner holds the scanner's state while tokenizing a source buffer. It
// must be initialized via Init before use.
type Scanner struct {
	filename string
	src      []byte
	err      errors.Handler

	ch       rune // current character, -1 at EOF
	offset   int  // offset of ch
	rdOffset int  // offset of the character after ch
	line     int  // current line number, 1-based

	ErrorCount int
}

const eof = -1

// Init prepares s to scan src. err, if non-nil, is invoked for every
// illegal character encountered; it does not stop scanning (spec.md §7:
// "traversal continues so further errors surface").
func (s *Scanner) Init(filename string, src []byte, err errors.Handler) {
	s.filename = filename
	s.src = src
	s.err = err
	s.ch = ' '
	s.offset = 0
	s.rdOffset = 0
	s.line = 1
	s.ErrorCount = 0
	s.next()
}

func (s *Scanner) pos() token.Pos {
	return token.Pos{Filename: s.filename, Line: s.line}
}

func (s *Scanner) error(msg string) {
	s.ErrorCount++
	if s.err != nil {
		s.err(s.pos(), msg)
	}
}

// next reads the next Unicode code point into s.ch. s.ch == eof means
// end-of-file.
func (s *Scanner) next() {
	if s.rdOffset >= len(s.src) {
		s.offset = len(s.src)
		s.ch = eof
		return
	}
	s.offset = s.rdOffset
	if s.ch == '\n' {
		s.line++
	}
	r, w := rune(s.src[s.rdOffset]), 1
	if r >= utf8.RuneSelf {
		r, w = utf8.DecodeRune(s.src[s.rdOffset:])
		if r == utf8.RuneError && w == 1 {
			s.error("illegal UTF-8 encoding")
		}
	}
	s.rdOffset += w
	s.ch = r
}

func isLetter(ch rune) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_' ||
		ch >= utf8.RuneSelf && unicode.IsLetter(ch)
}

func isDigit(ch rune) bool {
	return '0' <= ch && ch <= '9' || ch >= utf8.RuneSelf && unicode.IsDigit(ch)
}

func isSpace(ch rune) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r'
}

func (s *Scanner) skipWhitespaceAndComments() {
	for {
		for isSpace(s.ch) {
			s.next()
		}
		if s.ch == '/' && s.peek() == '*' {
			s.skipBlockComment()
			continue
		}
		if s.ch == '/' && s.peek() == '/' {
			for s.ch != '\n' && s.ch != eof {
				s.next()
			}
			continue
		}
		return
	}
}

// peek returns the byte after the current character without consuming it.
func (s *Scanner) peek() byte {
	if s.rdOffset < len(s.src) {
		return s.src[s.rdOffset]
	}
	return 0
}

func (s *Scanner) skipBlockComment() {
	startLine := s.line
	s.next() // consume '/'
	s.next() // consume '*'
	for {
		if s.ch == eof {
			s.error("comment starting on line " + itoa(startLine) + " not terminated")
			return
		}
		if s.ch == '*' && s.peek() == '/' {
			s.next()
			s.next()
			return
		}
		s.next()
	}
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func (s *Scanner) scanIdentifier() string {
	start := s.offset
	for isLetter(s.ch) || isDigit(s.ch) {
		s.next()
	}
	return string(s.src[start:s.offset])
}

func (s *Scanner) scanNumber() string {
	start := s.offset
	for isDigit(s.ch) {
		s.next()
	}
	return string(s.src[start:s.offset])
}

// Scan reads the next token from the source and returns its position,
// kind, and literal text (meaningful for IDENT and NUMBER).
func (s *Scanner) Scan() (pos token.Pos, tok token.Token, lit string) {
	s.skipWhitespaceAndComments()
	pos = s.pos()

	ch := s.ch
	switch {
	case isLetter(ch):
		lit = s.scanIdentifier()
		tok = token.Lookup(lit)
		return pos, tok, lit
	case isDigit(ch):
		lit = s.scanNumber()
		return pos, token.NUMBER, lit
	}

	s.next()
	switch ch {
	case eof:
		return pos, token.EOF, ""
	case '+':
		return pos, token.ADD, "+"
	case '-':
		return pos, token.SUB, "-"
	case '*':
		return pos, token.MUL, "*"
	case '/':
		return pos, token.QUO, "/"
	case '<':
		if s.ch == '=' {
			s.next()
			return pos, token.LEQ, "<="
		}
		return pos, token.LSS, "<"
	case '>':
		if s.ch == '=' {
			s.next()
			return pos, token.GEQ, ">="
		}
		return pos, token.GTR, ">"
	case '=':
		if s.ch == '=' {
			s.next()
			return pos, token.EQL, "=="
		}
		return pos, token.ASSIGN, "="
	case '!':
		if s.ch == '=' {
			s.next()
			return pos, token.NEQ, "!="
		}
		s.error("illegal character '!'")
		return pos, token.ILLEGAL, "!"
	case '(':
		return pos, token.LPAREN, "("
	case ')':
		return pos, token.RPAREN, ")"
	case '[':
		return pos, token.LBRACK, "["
	case ']':
		return pos, token.RBRACK, "]"
	case '{':
		return pos, token.LBRACE, "{"
	case '}':
		return pos, token.RBRACE, "}"
	case ';':
		return pos, token.SEMI, ";"
	case ',':
		return pos, token.COMMA, ","
	default:
		s.error("illegal character " + string(ch))
		return pos, token.ILLEGAL, string(ch)
	}
}
