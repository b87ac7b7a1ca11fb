// Package ast defines the abstract syntax tree node types for droidscript
// automation scripts (.script files).
package ast

import (
	"strings"

	"github.com/holla2040/droidscript/internal/script/token"
)

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// Node is the common interface for every AST node.
type Node interface {
	Pos() token.Position
}

// Statement is a node that represents a statement.
type Statement interface {
	Node
	stmtNode()
}

// ---------------------------------------------------------------------------
// Program (root)
// ---------------------------------------------------------------------------

// Program is the top-level AST node representing an entire script.
type Program struct {
	Statements []Statement
	Position   token.Position
}

func (p *Program) Pos() token.Position { return p.Position }

// ---------------------------------------------------------------------------
// Selectors
// ---------------------------------------------------------------------------

// SelectorKind names how a selector locates a UI element.
type SelectorKind string

const (
	SelectorID    SelectorKind = "id"
	SelectorText  SelectorKind = "text"
	SelectorXPath SelectorKind = "xpath"
	SelectorClass SelectorKind = "class"
	SelectorCoord SelectorKind = "coord"
)

// Selector is a `kind: value` element locator. Coord values are "x,y".
type Selector struct {
	Kind  SelectorKind
	Value string
}

// Modifier names accepted as `name=value` pairs on a command.
var modifierNames = map[string]bool{
	"parent":           true,
	"parent_id":        true,
	"parent_text":      true,
	"parent_class":     true,
	"sibling":          true,
	"sibling_id":       true,
	"sibling_text":     true,
	"sibling_class":    true,
	"sibling_relation": true,
	"offset_x":         true,
	"offset_y":         true,
	"offset":           true,
}

// IsModifier reports whether name is a selector modifier.
func IsModifier(name string) bool {
	return modifierNames[strings.ToLower(name)]
}

// ---------------------------------------------------------------------------
// Statements
// ---------------------------------------------------------------------------

// CommandStmt is a device command with its arguments, optional selector and
// selector modifiers. Args hold int64, float64 or string values.
type CommandStmt struct {
	Command   Command
	Name      string
	Args      []interface{}
	Selector  *Selector
	Modifiers map[string]interface{}
	Position  token.Position
}

func (n *CommandStmt) Pos() token.Position { return n.Position }
func (n *CommandStmt) stmtNode()           {}

// SetStmt represents `set name = value`. Exactly one of Value and Command is
// meaningful; both are nil for `set name =` with nothing after it.
type SetStmt struct {
	Name     string
	Value    interface{}
	Command  *CommandStmt
	Position token.Position
}

func (n *SetStmt) Pos() token.Position { return n.Position }
func (n *SetStmt) stmtNode()           {}

// Condition is the test of an if, elif or while. Command is CmdUnknown when
// no command followed the keyword.
type Condition struct {
	Negated  bool
	Command  Command
	Name     string
	Selector *Selector
	Args     []interface{}
	Position token.Position
}

func (n *Condition) Pos() token.Position { return n.Position }

// AsCommand returns the condition's command as a standalone statement.
func (n *Condition) AsCommand() *CommandStmt {
	return &CommandStmt{
		Command:  n.Command,
		Name:     n.Name,
		Args:     n.Args,
		Selector: n.Selector,
		Position: n.Position,
	}
}

// ElseIf is one elif branch.
type ElseIf struct {
	Condition *Condition
	Body      []Statement
}

// IfStmt represents if / elif / else / end.
type IfStmt struct {
	Condition *Condition
	Body      []Statement
	ElseIfs   []ElseIf
	ElseBody  []Statement
	Position  token.Position
}

func (n *IfStmt) Pos() token.Position { return n.Position }
func (n *IfStmt) stmtNode()           {}

// LoopStmt represents `loop N [var]` ... end.
type LoopStmt struct {
	Count    int64
	IterVar  string // may be empty
	Body     []Statement
	Position token.Position
}

func (n *LoopStmt) Pos() token.Position { return n.Position }
func (n *LoopStmt) stmtNode()           {}

// WhileStmt represents `while condition` ... end.
type WhileStmt struct {
	Condition *Condition
	Body      []Statement
	Position  token.Position
}

func (n *WhileStmt) Pos() token.Position { return n.Position }
func (n *WhileStmt) stmtNode()           {}

// TryStmt represents try ... catch ... end.
type TryStmt struct {
	Body      []Statement
	CatchBody []Statement
	Position  token.Position
}

func (n *TryStmt) Pos() token.Position { return n.Position }
func (n *TryStmt) stmtNode()           {}

// CallStmt runs another script file from the script directory.
type CallStmt struct {
	Script   string
	Args     []interface{}
	Position token.Position
}

func (n *CallStmt) Pos() token.Position { return n.Position }
func (n *CallStmt) stmtNode()           {}

// BreakStmt exits the innermost loop.
type BreakStmt struct {
	Position token.Position
}

func (n *BreakStmt) Pos() token.Position { return n.Position }
func (n *BreakStmt) stmtNode()           {}

// ContinueStmt skips to the next iteration of the innermost loop.
type ContinueStmt struct {
	Position token.Position
}

func (n *ContinueStmt) Pos() token.Position { return n.Position }
func (n *ContinueStmt) stmtNode()           {}
