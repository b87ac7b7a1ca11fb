package token

import "strings"

// TokenType represents the type of a lexical token.
type TokenType int

const (
	// Special tokens
	TOKEN_EOF     TokenType = iota
	TOKEN_NEWLINE           // statement separator

	// Identifiers and literals
	TOKEN_IDENT  // identifier, case preserved
	TOKEN_INT    // integer literal, optionally negative
	TOKEN_FLOAT  // decimal literal with one '.'
	TOKEN_STRING // single- or double-quoted string

	// Device commands. Every command keyword lexes to TOKEN_COMMAND; the
	// literal carries the lower-cased command name.
	TOKEN_COMMAND

	// ----- Control keywords -----
	TOKEN_SET
	TOKEN_NOT
	TOKEN_IF
	TOKEN_ELIF
	TOKEN_ELSE
	TOKEN_END
	TOKEN_LOOP
	TOKEN_WHILE
	TOKEN_TRY
	TOKEN_CATCH
	TOKEN_CALL
	TOKEN_BREAK
	TOKEN_CONTINUE

	// ----- Selector keywords (only when followed by ':') -----
	TOKEN_ID
	TOKEN_TEXT
	TOKEN_XPATH
	TOKEN_CLASS
	TOKEN_COORD
	TOKEN_PARENT
	TOKEN_SIBLING
	TOKEN_SIBLING_RELATION

	// ----- Delimiters -----
	TOKEN_COLON  // :
	TOKEN_COMMA  // ,
	TOKEN_LPAREN // (
	TOKEN_RPAREN // )
	TOKEN_ASSIGN // =
)

// Position records where a token was found in the source text.
type Position struct {
	Line   int // 1-based line number
	Column int // 1-based column number
	Offset int // 0-based rune offset into source
}

// Token is a single lexical token produced by the lexer.
type Token struct {
	Type    TokenType
	Literal string
	Pos     Position
}

// commands lists every device command keyword.
var commands = map[string]bool{
	"click":              true,
	"click_text":         true,
	"click_id":           true,
	"input":              true,
	"clear":              true,
	"swipe":              true,
	"wait":               true,
	"wait_element":       true,
	"wait_gone":          true,
	"back":               true,
	"home":               true,
	"menu":               true,
	"recent":             true,
	"start_app":          true,
	"stop_app":           true,
	"clear_app":          true,
	"screen_on":          true,
	"screen_off":         true,
	"unlock":             true,
	"get_text":           true,
	"get_info":           true,
	"find_element":       true,
	"find_elements":      true,
	"dump_hierarchy":     true,
	"exists":             true,
	"log":                true,
	"shell":              true,
	"human_click":        true,
	"human_double_click": true,
	"human_long_press":   true,
	"human_drag":         true,
	"connect":            true,
	"get_status":         true,
	"disconnect":         true,
	"get_app_version":    true,
	"get_current_app":    true,
}

// keywords maps lower-cased control keywords to their token types.
var keywords = map[string]TokenType{
	"set":      TOKEN_SET,
	"not":      TOKEN_NOT,
	"if":       TOKEN_IF,
	"elif":     TOKEN_ELIF,
	"else":     TOKEN_ELSE,
	"end":      TOKEN_END,
	"loop":     TOKEN_LOOP,
	"while":    TOKEN_WHILE,
	"try":      TOKEN_TRY,
	"catch":    TOKEN_CATCH,
	"call":     TOKEN_CALL,
	"break":    TOKEN_BREAK,
	"continue": TOKEN_CONTINUE,
}

var selectors = map[string]TokenType{
	"id":               TOKEN_ID,
	"text":             TOKEN_TEXT,
	"xpath":            TOKEN_XPATH,
	"class":            TOKEN_CLASS,
	"coord":            TOKEN_COORD,
	"parent":           TOKEN_PARENT,
	"sibling":          TOKEN_SIBLING,
	"sibling_relation": TOKEN_SIBLING_RELATION,
}

// KeywordLookup returns the command or control TokenType for ident
// (case-insensitive), or TOKEN_IDENT if it is neither.
func KeywordLookup(ident string) TokenType {
	lower := strings.ToLower(ident)
	if commands[lower] {
		return TOKEN_COMMAND
	}
	if tt, ok := keywords[lower]; ok {
		return tt
	}
	return TOKEN_IDENT
}

// SelectorLookup reports the selector TokenType for ident (case-insensitive).
func SelectorLookup(ident string) (TokenType, bool) {
	tt, ok := selectors[strings.ToLower(ident)]
	return tt, ok
}

// IsCommand reports whether name is a device command keyword.
func IsCommand(name string) bool {
	return commands[strings.ToLower(name)]
}

// IsSelector reports whether t is one of the selector keyword types.
func (t TokenType) IsSelector() bool {
	return t >= TOKEN_ID && t <= TOKEN_SIBLING_RELATION
}

// tokenNames gives a human-readable name for each TokenType.
var tokenNames = map[TokenType]string{
	TOKEN_EOF:     "EOF",
	TOKEN_NEWLINE: "NEWLINE",

	TOKEN_IDENT:  "IDENT",
	TOKEN_INT:    "NUMBER",
	TOKEN_FLOAT:  "NUMBER",
	TOKEN_STRING: "STRING",

	TOKEN_COMMAND: "COMMAND",

	TOKEN_SET:      "SET",
	TOKEN_NOT:      "NOT",
	TOKEN_IF:       "IF",
	TOKEN_ELIF:     "ELIF",
	TOKEN_ELSE:     "ELSE",
	TOKEN_END:      "END",
	TOKEN_LOOP:     "LOOP",
	TOKEN_WHILE:    "WHILE",
	TOKEN_TRY:      "TRY",
	TOKEN_CATCH:    "CATCH",
	TOKEN_CALL:     "CALL",
	TOKEN_BREAK:    "BREAK",
	TOKEN_CONTINUE: "CONTINUE",

	TOKEN_ID:               "ID",
	TOKEN_TEXT:             "TEXT",
	TOKEN_XPATH:            "XPATH",
	TOKEN_CLASS:            "CLASS",
	TOKEN_COORD:            "COORD",
	TOKEN_PARENT:           "PARENT",
	TOKEN_SIBLING:          "SIBLING",
	TOKEN_SIBLING_RELATION: "SIBLING_RELATION",

	TOKEN_COLON:  "COLON",
	TOKEN_COMMA:  "COMMA",
	TOKEN_LPAREN: "LPAREN",
	TOKEN_RPAREN: "RPAREN",
	TOKEN_ASSIGN: "EQUALS",
}

// String returns a human-readable name for the token type.
func (t TokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return "UNKNOWN"
}
