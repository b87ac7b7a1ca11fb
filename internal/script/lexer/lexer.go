package lexer

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/holla2040/droidscript/internal/script/token"
)

// LexError records a character the lexer skipped. Lex errors never stop
// tokenization; callers surface them as warnings.
type LexError struct {
	Line    int
	Column  int
	Message string
}

// Error implements the error interface.
func (e LexError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Message)
}

// Lexer scans source text into tokens.
type Lexer struct {
	source []rune
	pos    int // index into source
	line   int // 1-based
	col    int // 1-based
	tokens []token.Token
	errors []LexError
}

// New creates a Lexer for the given source string.
func New(source string) *Lexer {
	return &Lexer{
		source: []rune(source),
		line:   1,
		col:    1,
	}
}

// Tokenize scans the entire source and returns the resulting tokens and the
// characters it had to skip. The token slice always ends with TOKEN_EOF.
func (l *Lexer) Tokenize() ([]token.Token, []LexError) {
	for {
		l.skipWhitespace()

		if l.atEnd() {
			l.emitAt(token.TOKEN_EOF, "", l.savePos())
			break
		}

		ch := l.peek()

		switch {
		case ch == '#':
			l.skipComment()

		case ch == '\n':
			pos := l.savePos()
			l.advance()
			l.emitAt(token.TOKEN_NEWLINE, "\n", pos)

		case ch == '"' || ch == '\'':
			l.scanString(ch)

		case isDigit(ch) || (ch == '-' && isDigit(l.peekAt(1))):
			l.scanNumber()

		case isIdentStart(ch):
			l.scanIdentifier()

		default:
			l.scanDelimiter()
		}
	}

	return l.tokens, l.errors
}

// ---------------------------------------------------------------------------
// Character helpers
// ---------------------------------------------------------------------------

func (l *Lexer) atEnd() bool {
	return l.pos >= len(l.source)
}

func (l *Lexer) peek() rune {
	if l.atEnd() {
		return 0
	}
	return l.source[l.pos]
}

func (l *Lexer) peekAt(offset int) rune {
	idx := l.pos + offset
	if idx >= len(l.source) {
		return 0
	}
	return l.source[idx]
}

// advance consumes one rune and updates position tracking.
func (l *Lexer) advance() rune {
	ch := l.source[l.pos]
	l.pos++
	if ch == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return ch
}

func (l *Lexer) emitAt(tt token.TokenType, literal string, pos token.Position) {
	l.tokens = append(l.tokens, token.Token{
		Type:    tt,
		Literal: literal,
		Pos:     pos,
	})
}

func (l *Lexer) savePos() token.Position {
	return token.Position{Line: l.line, Column: l.col, Offset: l.pos}
}

// ---------------------------------------------------------------------------
// Whitespace & comments
// ---------------------------------------------------------------------------

func (l *Lexer) skipWhitespace() {
	for !l.atEnd() {
		switch l.peek() {
		case ' ', '\t', '\r':
			l.advance()
		default:
			return
		}
	}
}

func (l *Lexer) skipComment() {
	for !l.atEnd() && l.peek() != '\n' {
		l.advance()
	}
}

// ---------------------------------------------------------------------------
// Strings
// ---------------------------------------------------------------------------

// scanString reads a string delimited by quote. A missing closing quote ends
// the string at EOF.
func (l *Lexer) scanString(quote rune) {
	pos := l.savePos()
	l.advance()
	var sb strings.Builder

	for !l.atEnd() && l.peek() != quote {
		ch := l.advance()
		if ch != '\\' || l.atEnd() {
			sb.WriteRune(ch)
			continue
		}
		esc := l.advance()
		switch esc {
		case 'n':
			sb.WriteRune('\n')
		case 't':
			sb.WriteRune('\t')
		case 'r':
			sb.WriteRune('\r')
		default:
			// \\, \" and \' as well as unknown escapes keep the escaped rune.
			sb.WriteRune(esc)
		}
	}
	if !l.atEnd() {
		l.advance()
	}
	l.emitAt(token.TOKEN_STRING, sb.String(), pos)
}

// ---------------------------------------------------------------------------
// Numbers
// ---------------------------------------------------------------------------

func isDigit(ch rune) bool {
	return ch >= '0' && ch <= '9'
}

func (l *Lexer) scanNumber() {
	pos := l.savePos()
	start := l.pos
	if l.peek() == '-' {
		l.advance()
	}
	hasDot := false
	for !l.atEnd() {
		ch := l.peek()
		if isDigit(ch) {
			l.advance()
			continue
		}
		if ch == '.' && !hasDot {
			hasDot = true
			l.advance()
			continue
		}
		break
	}
	literal := string(l.source[start:l.pos])
	if hasDot {
		l.emitAt(token.TOKEN_FLOAT, literal, pos)
	} else {
		l.emitAt(token.TOKEN_INT, literal, pos)
	}
}

// ---------------------------------------------------------------------------
// Identifiers, keywords and selectors
// ---------------------------------------------------------------------------

func isIdentStart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch)
}

func isIdentPart(ch rune) bool {
	return ch == '_' || unicode.IsLetter(ch) || unicode.IsDigit(ch)
}

// scanIdentifier reads a word. Command and control keywords are recognised
// case-insensitively and emitted lower-cased. A selector keyword becomes a
// selector token only when the next non-blank character is ':'.
func (l *Lexer) scanIdentifier() {
	pos := l.savePos()
	start := l.pos
	for !l.atEnd() && isIdentPart(l.peek()) {
		l.advance()
	}
	literal := string(l.source[start:l.pos])
	lower := strings.ToLower(literal)

	l.skipWhitespace()

	if tt, ok := token.SelectorLookup(lower); ok && l.peek() == ':' {
		l.emitAt(tt, lower, pos)
		return
	}

	tt := token.KeywordLookup(lower)
	if tt == token.TOKEN_IDENT {
		l.emitAt(tt, literal, pos)
		return
	}
	l.emitAt(tt, lower, pos)
}

// ---------------------------------------------------------------------------
// Delimiters
// ---------------------------------------------------------------------------

func (l *Lexer) scanDelimiter() {
	pos := l.savePos()
	ch := l.advance()
	switch ch {
	case ':':
		l.emitAt(token.TOKEN_COLON, ":", pos)
	case ',':
		l.emitAt(token.TOKEN_COMMA, ",", pos)
	case '(':
		l.emitAt(token.TOKEN_LPAREN, "(", pos)
	case ')':
		l.emitAt(token.TOKEN_RPAREN, ")", pos)
	case '=':
		l.emitAt(token.TOKEN_ASSIGN, "=", pos)
	default:
		l.errors = append(l.errors, LexError{
			Line:    pos.Line,
			Column:  pos.Column,
			Message: fmt.Sprintf("skipped unexpected character %q", ch),
		})
	}
}
