package ir

import (
	"fmt"
	"strconv"
)

type tokKind uint8

const (
	tokEOF    tokKind = iota
	tokWord           // keyword, type or bare identifier
	tokLocal          // %name
	tokGlobal         // @name
	tokLabel          // name:
	tokInt            // decimal integer
	tokString         // "..."
	tokPunct          // one of ( ) [ ] { } , = !
)

type token struct {
	kind tokKind
	text string
	line int
	col  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of file"
	case tokLocal:
		return "%" + t.text
	case tokGlobal:
		return "@" + t.text
	case tokLabel:
		return t.text + ":"
	case tokString:
		return strconv.Quote(t.text)
	}
	return fmt.Sprintf("%q", t.text)
}

// SyntaxError reports malformed .gcir text.
type SyntaxError struct {
	File string
	Line int
	Col  int
	Msg  string
}

func (e *SyntaxError) Error() string {
	file := e.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d: %s", file, e.Line, e.Col, e.Msg)
}

type lexer struct {
	file string
	src  []byte
	off  int
	line int
	col  int
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '.' || c == '-' || c == '$'
}

func isInteger(s string) bool {
	if s != "" && s[0] == '-' {
		s = s[1:]
	}
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (lx *lexer) errorf(line, col int, format string, args ...any) error {
	return &SyntaxError{File: lx.file, Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (lx *lexer) advance() byte {
	c := lx.src[lx.off]
	lx.off++
	if c == '\n' {
		lx.line++
		lx.col = 1
	} else {
		lx.col++
	}
	return c
}

func (lx *lexer) ident() string {
	start := lx.off
	for lx.off < len(lx.src) && isIdentByte(lx.src[lx.off]) {
		lx.advance()
	}
	return string(lx.src[start:lx.off])
}

// tokenize splits the whole input into tokens.
func tokenize(file string, src []byte) ([]token, error) {
	lx := &lexer{file: file, src: src, line: 1, col: 1}
	var toks []token
	for {
		// Skip blanks and comments.
		for lx.off < len(lx.src) {
			c := lx.src[lx.off]
			if c == ';' {
				for lx.off < len(lx.src) && lx.src[lx.off] != '\n' {
					lx.advance()
				}
				continue
			}
			if c != ' ' && c != '\t' && c != '\r' && c != '\n' {
				break
			}
			lx.advance()
		}
		line, col := lx.line, lx.col
		if lx.off >= len(lx.src) {
			toks = append(toks, token{kind: tokEOF, line: line, col: col})
			return toks, nil
		}
		c := lx.src[lx.off]
		switch {
		case c == '%' || c == '@':
			lx.advance()
			name := lx.ident()
			if name == "" {
				return nil, lx.errorf(line, col, "expected name after %q", string(c))
			}
			kind := tokLocal
			if c == '@' {
				kind = tokGlobal
			}
			toks = append(toks, token{kind: kind, text: name, line: line, col: col})
		case c == '"':
			lx.advance()
			start := lx.off
			for lx.off < len(lx.src) && lx.src[lx.off] != '"' && lx.src[lx.off] != '\n' {
				lx.advance()
			}
			if lx.off >= len(lx.src) || lx.src[lx.off] != '"' {
				return nil, lx.errorf(line, col, "unterminated string")
			}
			text := string(lx.src[start:lx.off])
			lx.advance()
			toks = append(toks, token{kind: tokString, text: text, line: line, col: col})
		case isIdentByte(c):
			word := lx.ident()
			switch {
			case lx.off < len(lx.src) && lx.src[lx.off] == ':':
				lx.advance()
				toks = append(toks, token{kind: tokLabel, text: word, line: line, col: col})
			case isInteger(word):
				toks = append(toks, token{kind: tokInt, text: word, line: line, col: col})
			default:
				toks = append(toks, token{kind: tokWord, text: word, line: line, col: col})
			}
		default:
			switch c {
			case '(', ')', '[', ']', '{', '}', ',', '=', '!':
				lx.advance()
				toks = append(toks, token{kind: tokPunct, text: string(c), line: line, col: col})
			default:
				return nil, lx.errorf(line, col, "unexpected character %q", string(c))
			}
		}
	}
}
