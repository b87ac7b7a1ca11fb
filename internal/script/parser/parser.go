// Package parser implements a recursive descent parser for droidscript
// automation scripts. It consumes a token slice produced by the lexer and
// builds an AST together with a list of diagnostics.
package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/holla2040/droidscript/internal/script/ast"
	"github.com/holla2040/droidscript/internal/script/lexer"
	"github.com/holla2040/droidscript/internal/script/token"
)

// Diagnostic severities.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// ---------------------------------------------------------------------------
// ParseError
// ---------------------------------------------------------------------------

// ParseError records a single diagnostic. Errors make the program unusable;
// warnings only note tokens that were skipped.
type ParseError struct {
	Line     int
	Column   int
	Severity string // "error" or "warning"
	Message  string
}

// Error implements the error interface.
func (e ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s: %s", e.Line, e.Column, e.Severity, e.Message)
}

// IsFatal reports whether the diagnostic prevents execution.
func (e ParseError) IsFatal() bool {
	return e.Severity == SeverityError
}

// FirstFatal returns the first error-severity diagnostic, if any.
func FirstFatal(errs []ParseError) (ParseError, bool) {
	for _, e := range errs {
		if e.IsFatal() {
			return e, true
		}
	}
	return ParseError{}, false
}

// ---------------------------------------------------------------------------
// Parser
// ---------------------------------------------------------------------------

// Parser converts a token stream into an AST.
type Parser struct {
	tokens []token.Token
	pos    int
	errors []ParseError
}

// New creates a Parser for the given token slice (must end with TOKEN_EOF).
func New(tokens []token.Token) *Parser {
	return &Parser{tokens: tokens}
}

// Parse runs the parser and returns the program together with every
// diagnostic it produced. The program is best-effort even when errors exist.
func (p *Parser) Parse() (*ast.Program, []ParseError) {
	prog := &ast.Program{}
	if len(p.tokens) > 0 {
		prog.Position = p.tokens[0].Pos
	}

	for {
		p.skipNewlines()
		if p.atEnd() {
			break
		}
		if stmt := p.parseStatement(); stmt != nil {
			prog.Statements = append(prog.Statements, stmt)
		}
	}

	return prog, p.errors
}

// ParseSource lexes and parses source in one step. Characters the lexer
// skipped are reported as warnings ahead of the parser's diagnostics.
func ParseSource(source string) (*ast.Program, []ParseError) {
	tokens, lexErrs := lexer.New(source).Tokenize()
	var diags []ParseError
	for _, le := range lexErrs {
		diags = append(diags, ParseError{
			Line:     le.Line,
			Column:   le.Column,
			Severity: SeverityWarning,
			Message:  le.Message,
		})
	}
	prog, errs := New(tokens).Parse()
	return prog, append(diags, errs...)
}

// ---------------------------------------------------------------------------
// Token navigation
// ---------------------------------------------------------------------------

func (p *Parser) peek() token.Token {
	if p.pos >= len(p.tokens) {
		if len(p.tokens) > 0 {
			last := p.tokens[len(p.tokens)-1]
			return token.Token{Type: token.TOKEN_EOF, Pos: last.Pos}
		}
		return token.Token{Type: token.TOKEN_EOF}
	}
	return p.tokens[p.pos]
}

func (p *Parser) peekType() token.TokenType {
	return p.peek().Type
}

func (p *Parser) peekIs(types ...token.TokenType) bool {
	tt := p.peekType()
	for _, t := range types {
		if tt == t {
			return true
		}
	}
	return false
}

func (p *Parser) advance() token.Token {
	tok := p.peek()
	if p.pos < len(p.tokens) {
		p.pos++
	}
	return tok
}

// expect consumes a token of type tt or records a fatal error.
func (p *Parser) expect(tt token.TokenType) (token.Token, bool) {
	tok := p.peek()
	if tok.Type == tt {
		return p.advance(), true
	}
	p.addError(tok.Pos, fmt.Sprintf("expected %s, got %s", tt, tok.Type))
	return tok, false
}

func (p *Parser) skipNewlines() {
	for p.peekType() == token.TOKEN_NEWLINE {
		p.advance()
	}
}

func (p *Parser) atEnd() bool {
	return p.peekType() == token.TOKEN_EOF
}

func (p *Parser) addError(pos token.Position, msg string) {
	p.errors = append(p.errors, ParseError{
		Line:     pos.Line,
		Column:   pos.Column,
		Severity: SeverityError,
		Message:  msg,
	})
}

func (p *Parser) addWarning(pos token.Position, msg string) {
	p.errors = append(p.errors, ParseError{
		Line:     pos.Line,
		Column:   pos.Column,
		Severity: SeverityWarning,
		Message:  msg,
	})
}

// synchronize drops the rest of the current line after a fatal error.
func (p *Parser) synchronize() {
	for !p.atEnd() {
		if p.advance().Type == token.TOKEN_NEWLINE {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Block parsing
// ---------------------------------------------------------------------------

// parseBlock collects statements until one of ends (not consumed) or EOF.
func (p *Parser) parseBlock(ends ...token.TokenType) []ast.Statement {
	var stmts []ast.Statement
	for {
		p.skipNewlines()
		if p.atEnd() || p.peekIs(ends...) {
			return stmts
		}
		if stmt := p.parseStatement(); stmt != nil {
			stmts = append(stmts, stmt)
		}
	}
}

// consumeEnd eats the END closing a block. A missing END at EOF is accepted.
func (p *Parser) consumeEnd() {
	if p.peekType() == token.TOKEN_END {
		p.advance()
	}
}

// ---------------------------------------------------------------------------
// Statement dispatch
// ---------------------------------------------------------------------------

func (p *Parser) parseStatement() ast.Statement {
	tok := p.peek()
	switch tok.Type {
	case token.TOKEN_COMMAND:
		return p.parseCommand()
	case token.TOKEN_SET:
		return p.parseSetStmt()
	case token.TOKEN_IF:
		return p.parseIfStmt()
	case token.TOKEN_LOOP:
		return p.parseLoopStmt()
	case token.TOKEN_WHILE:
		return p.parseWhileStmt()
	case token.TOKEN_TRY:
		return p.parseTryStmt()
	case token.TOKEN_CALL:
		return p.parseCallStmt()
	case token.TOKEN_BREAK:
		p.advance()
		return &ast.BreakStmt{Position: tok.Pos}
	case token.TOKEN_CONTINUE:
		p.advance()
		return &ast.ContinueStmt{Position: tok.Pos}
	default:
		p.addWarning(tok.Pos, fmt.Sprintf("skipped unexpected token %s %q", tok.Type, tok.Literal))
		p.advance()
		return nil
	}
}

// ---------------------------------------------------------------------------
// Commands and arguments
// ---------------------------------------------------------------------------

func (p *Parser) parseCommand() ast.Statement {
	tok := p.advance() // consume COMMAND
	if stmt := p.commandBody(tok, true); stmt != nil {
		return stmt
	}
	return nil
}

// commandBody parses the arguments following a command token. Modifiers are
// only recognised on standalone commands.
func (p *Parser) commandBody(tok token.Token, withModifiers bool) *ast.CommandStmt {
	stmt := &ast.CommandStmt{
		Command:  ast.LookupCommand(tok.Literal),
		Name:     tok.Literal,
		Position: tok.Pos,
	}
	args, ok := p.parseArgs(withModifiers)
	if !ok {
		p.synchronize()
		return nil
	}
	stmt.Args = args.values
	stmt.Selector = args.selector
	if len(args.modifiers) > 0 {
		stmt.Modifiers = args.modifiers
	}
	return stmt
}

type argList struct {
	values    []interface{}
	selector  *ast.Selector
	modifiers map[string]interface{}
}

// parseArgs reads selectors, positional values and name=value pairs until
// the end of the line or a token that cannot be an argument. Extra stop
// tokens end the list early. It returns false after a fatal error.
func (p *Parser) parseArgs(withModifiers bool, stops ...token.TokenType) (argList, bool) {
	var out argList
	for {
		if p.peekIs(token.TOKEN_NEWLINE, token.TOKEN_EOF) || p.peekIs(stops...) {
			return out, true
		}
		tok := p.peek()
		switch tok.Type {
		case token.TOKEN_ID, token.TOKEN_TEXT, token.TOKEN_XPATH, token.TOKEN_CLASS, token.TOKEN_COORD:
			sel, ok := p.parseSelector()
			if !ok {
				return out, false
			}
			out.selector = sel

		case token.TOKEN_PARENT, token.TOKEN_SIBLING, token.TOKEN_SIBLING_RELATION:
			if !withModifiers {
				return out, true
			}
			p.advance()
			if _, ok := p.expect(token.TOKEN_COLON); !ok {
				return out, false
			}
			if v, ok := p.modifierValue(); ok {
				out.setModifier(tok.Literal, v)
			} else {
				p.addWarning(tok.Pos, fmt.Sprintf("missing value for %s", tok.Literal))
			}

		case token.TOKEN_STRING:
			out.values = append(out.values, p.advance().Literal)

		case token.TOKEN_INT, token.TOKEN_FLOAT:
			out.values = append(out.values, numberValue(p.advance()))

		case token.TOKEN_IDENT:
			name := p.advance().Literal
			if p.peekType() != token.TOKEN_ASSIGN {
				out.values = append(out.values, name)
				continue
			}
			p.advance() // consume '='
			if withModifiers && ast.IsModifier(name) {
				if v, ok := p.modifierValue(); ok {
					out.setModifier(strings.ToLower(name), v)
				} else {
					out.values = append(out.values, name)
				}
				continue
			}
			if isValueToken(p.peekType()) {
				out.values = append(out.values, name+"="+p.advance().Literal)
			} else {
				out.values = append(out.values, name)
			}

		case token.TOKEN_COMMA:
			p.advance()

		default:
			return out, true
		}
	}
}

// parseSelector parses `kind: value`. A missing value is a warning and yields
// an empty value.
func (p *Parser) parseSelector() (*ast.Selector, bool) {
	kindTok := p.advance()
	if _, ok := p.expect(token.TOKEN_COLON); !ok {
		return nil, false
	}
	sel := &ast.Selector{Kind: ast.SelectorKind(kindTok.Literal)}

	if sel.Kind == ast.SelectorCoord && p.peekIs(token.TOKEN_INT, token.TOKEN_FLOAT) {
		x := p.advance().Literal
		if p.peekType() == token.TOKEN_COMMA {
			p.advance()
		}
		if !p.peekIs(token.TOKEN_INT, token.TOKEN_FLOAT) {
			p.addWarning(p.peek().Pos, "coord selector needs two numbers")
			sel.Value = x
			return sel, true
		}
		sel.Value = x + "," + p.advance().Literal
		return sel, true
	}

	if isValueToken(p.peekType()) {
		sel.Value = p.advance().Literal
		return sel, true
	}
	p.addWarning(kindTok.Pos, fmt.Sprintf("missing value for %s selector", kindTok.Literal))
	return sel, true
}

// modifierValue reads the value of a modifier. An unquoted selector such as
// `parent=id:toolbar` is accepted and turned into "id:toolbar".
func (p *Parser) modifierValue() (interface{}, bool) {
	tok := p.peek()
	switch {
	case tok.Type == token.TOKEN_INT || tok.Type == token.TOKEN_FLOAT:
		return numberValue(p.advance()), true
	case tok.Type == token.TOKEN_STRING || tok.Type == token.TOKEN_IDENT:
		return p.advance().Literal, true
	case tok.Type.IsSelector():
		p.advance()
		if p.peekType() == token.TOKEN_COLON {
			p.advance()
		}
		if isValueToken(p.peekType()) {
			return tok.Literal + ":" + p.advance().Literal, true
		}
		return tok.Literal, true
	}
	return nil, false
}

func (a *argList) setModifier(name string, value interface{}) {
	if a.modifiers == nil {
		a.modifiers = make(map[string]interface{})
	}
	switch name {
	case "offset_x", "offset_y", "offset":
		if s, ok := value.(string); ok && isAllDigits(s) {
			n, _ := strconv.ParseInt(s, 10, 64)
			value = n
		}
		a.modifiers[name] = value
	case "parent", "sibling":
		// "kind:value"; the value itself may contain colons (resource ids).
		kind, rest, found := strings.Cut(fmt.Sprint(value), ":")
		if found && isElementKind(strings.ToLower(kind)) {
			a.modifiers[name+"_type"] = strings.ToLower(kind)
			a.modifiers[name+"_value"] = rest
		} else {
			a.modifiers[name] = value
		}
	default:
		a.modifiers[name] = value
	}
}

func isElementKind(kind string) bool {
	switch ast.SelectorKind(kind) {
	case ast.SelectorID, ast.SelectorText, ast.SelectorClass, ast.SelectorXPath:
		return true
	}
	return false
}

func isValueToken(tt token.TokenType) bool {
	switch tt {
	case token.TOKEN_STRING, token.TOKEN_INT, token.TOKEN_FLOAT, token.TOKEN_IDENT:
		return true
	}
	return false
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// numberValue converts an INT or FLOAT token to int64 or float64.
func numberValue(tok token.Token) interface{} {
	if tok.Type == token.TOKEN_INT {
		if n, err := strconv.ParseInt(tok.Literal, 10, 64); err == nil {
			return n
		}
	}
	f, err := strconv.ParseFloat(tok.Literal, 64)
	if err != nil {
		return tok.Literal
	}
	return f
}

// ---------------------------------------------------------------------------
// set
// ---------------------------------------------------------------------------

func (p *Parser) parseSetStmt() ast.Statement {
	tok := p.advance() // consume SET

	nameTok, ok := p.expect(token.TOKEN_IDENT)
	if !ok {
		p.synchronize()
		return nil
	}
	if _, ok := p.expect(token.TOKEN_ASSIGN); !ok {
		p.synchronize()
		return nil
	}

	stmt := &ast.SetStmt{Name: nameTok.Literal, Position: tok.Pos}
	switch p.peekType() {
	case token.TOKEN_COMMAND:
		cmdTok := p.advance()
		cmd := p.commandBody(cmdTok, false)
		if cmd == nil {
			return nil
		}
		stmt.Command = cmd
	case token.TOKEN_STRING, token.TOKEN_IDENT:
		stmt.Value = p.advance().Literal
	case token.TOKEN_INT, token.TOKEN_FLOAT:
		stmt.Value = numberValue(p.advance())
	}
	return stmt
}

// ---------------------------------------------------------------------------
// Conditions and control flow
// ---------------------------------------------------------------------------

func (p *Parser) parseCondition() (*ast.Condition, bool) {
	cond := &ast.Condition{Position: p.peek().Pos}
	if p.peekType() == token.TOKEN_NOT {
		p.advance()
		cond.Negated = true
	}
	if p.peekType() != token.TOKEN_COMMAND {
		return cond, true
	}
	cmdTok := p.advance()
	cond.Command = ast.LookupCommand(cmdTok.Literal)
	cond.Name = cmdTok.Literal

	args, ok := p.parseArgs(false, token.TOKEN_IF, token.TOKEN_ELIF, token.TOKEN_ELSE, token.TOKEN_END)
	if !ok {
		return nil, false
	}
	cond.Args = args.values
	cond.Selector = args.selector
	return cond, true
}

func (p *Parser) parseIfStmt() ast.Statement {
	tok := p.advance() // consume IF
	cond, ok := p.parseCondition()
	if !ok {
		p.synchronize()
		return nil
	}

	stmt := &ast.IfStmt{Condition: cond, Position: tok.Pos}
	stmt.Body = p.parseBlock(token.TOKEN_ELIF, token.TOKEN_ELSE, token.TOKEN_END)

	for p.peekType() == token.TOKEN_ELIF {
		p.advance() // consume ELIF
		eiCond, ok := p.parseCondition()
		if !ok {
			p.synchronize()
			eiCond = &ast.Condition{Position: p.peek().Pos}
		}
		eiBody := p.parseBlock(token.TOKEN_ELIF, token.TOKEN_ELSE, token.TOKEN_END)
		stmt.ElseIfs = append(stmt.ElseIfs, ast.ElseIf{Condition: eiCond, Body: eiBody})
	}

	if p.peekType() == token.TOKEN_ELSE {
		p.advance() // consume ELSE
		stmt.ElseBody = p.parseBlock(token.TOKEN_END)
	}

	p.consumeEnd()
	return stmt
}

func (p *Parser) parseLoopStmt() ast.Statement {
	tok := p.advance() // consume LOOP
	stmt := &ast.LoopStmt{Position: tok.Pos}

	switch p.peekType() {
	case token.TOKEN_INT, token.TOKEN_FLOAT:
		switch n := numberValue(p.advance()).(type) {
		case int64:
			stmt.Count = n
		case float64:
			stmt.Count = int64(n)
		}
	default:
		p.addWarning(tok.Pos, "loop without a count runs zero times")
	}
	if p.peekType() == token.TOKEN_IDENT {
		stmt.IterVar = p.advance().Literal
	}

	stmt.Body = p.parseBlock(token.TOKEN_END)
	p.consumeEnd()
	return stmt
}

func (p *Parser) parseWhileStmt() ast.Statement {
	tok := p.advance() // consume WHILE
	cond, ok := p.parseCondition()
	if !ok {
		p.synchronize()
		return nil
	}
	stmt := &ast.WhileStmt{Condition: cond, Position: tok.Pos}
	stmt.Body = p.parseBlock(token.TOKEN_END)
	p.consumeEnd()
	return stmt
}

func (p *Parser) parseTryStmt() ast.Statement {
	tok := p.advance() // consume TRY
	stmt := &ast.TryStmt{Position: tok.Pos}

	stmt.Body = p.parseBlock(token.TOKEN_CATCH, token.TOKEN_END)
	if p.peekType() == token.TOKEN_CATCH {
		p.advance() // consume CATCH
		stmt.CatchBody = p.parseBlock(token.TOKEN_END)
	}
	p.consumeEnd()
	return stmt
}

func (p *Parser) parseCallStmt() ast.Statement {
	tok := p.advance() // consume CALL
	stmt := &ast.CallStmt{Position: tok.Pos}

	if p.peekIs(token.TOKEN_IDENT, token.TOKEN_STRING) {
		stmt.Script = p.advance().Literal
	} else {
		p.addWarning(tok.Pos, "call without a script name")
	}

	for {
		switch p.peekType() {
		case token.TOKEN_STRING:
			stmt.Args = append(stmt.Args, p.advance().Literal)
		case token.TOKEN_INT, token.TOKEN_FLOAT:
			stmt.Args = append(stmt.Args, numberValue(p.advance()))
		case token.TOKEN_IDENT:
			name := p.advance().Literal
			if p.peekType() == token.TOKEN_ASSIGN {
				p.advance()
				if isValueToken(p.peekType()) {
					name += "=" + p.advance().Literal
				}
			}
			stmt.Args = append(stmt.Args, name)
		case token.TOKEN_COMMA:
			p.advance()
		default:
			return stmt
		}
	}
}
