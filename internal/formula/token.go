package formula

import (
	"fmt"
	"strings"
)

// TokenType classifies a formula token
type TokenType int

const (
	TokenNumber TokenType = iota
	TokenIdent
	TokenString
	TokenOperator // + - * / == != > < >= <=
	TokenLParen
	TokenRParen
	TokenQuestion
	TokenColon
	TokenComma
)

// Token is a single lexical unit of a formula
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// keywords that read as identifiers but are not field references
var keywords = map[string]bool{
	"sum": true, "avg": true, "count": true, "min": true, "max": true,
	"date_diff": true, "where": true,
	"days": true, "hours": true, "minutes": true, "weeks": true,
	"months": true, "years": true,
	"true": true, "false": true, "null": true,
}

// Tokenize splits a formula into an explicit token stream. Field references
// are always extracted from tokens, never from raw substring search, so slugs
// that are substrings of other tokens cannot be misread.
func Tokenize(formula string) ([]Token, error) {
	var tokens []Token
	pos := 0

	for pos < len(formula) {
		ch := formula[pos]

		switch {
		case ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r':
			pos++

		case ch >= '0' && ch <= '9':
			start := pos
			seenDot := false
			for pos < len(formula) && (isDigit(formula[pos]) || (formula[pos] == '.' && !seenDot)) {
				if formula[pos] == '.' {
					seenDot = true
				}
				pos++
			}
			tokens = append(tokens, Token{Type: TokenNumber, Value: formula[start:pos], Pos: start})

		case isIdentStart(ch):
			start := pos
			for pos < len(formula) && isIdentPart(formula[pos]) {
				pos++
			}
			tokens = append(tokens, Token{Type: TokenIdent, Value: formula[start:pos], Pos: start})

		case ch == '\'' || ch == '"':
			quote := ch
			start := pos
			pos++
			for pos < len(formula) && formula[pos] != quote {
				pos++
			}
			if pos >= len(formula) {
				return nil, fmt.Errorf("%w: unterminated string at position %d", ErrSyntax, start)
			}
			tokens = append(tokens, Token{Type: TokenString, Value: formula[start+1 : pos], Pos: start})
			pos++

		case ch == '+' || ch == '-' || ch == '*' || ch == '/':
			tokens = append(tokens, Token{Type: TokenOperator, Value: string(ch), Pos: pos})
			pos++

		case ch == '=' || ch == '!' || ch == '<' || ch == '>':
			start := pos
			op := string(ch)
			pos++
			if pos < len(formula) && formula[pos] == '=' {
				op += "="
				pos++
			}
			if op == "=" || op == "!" {
				return nil, fmt.Errorf("%w: unexpected character %q at position %d", ErrSyntax, op, start)
			}
			tokens = append(tokens, Token{Type: TokenOperator, Value: op, Pos: start})

		case ch == '(':
			tokens = append(tokens, Token{Type: TokenLParen, Value: "(", Pos: pos})
			pos++

		case ch == ')':
			tokens = append(tokens, Token{Type: TokenRParen, Value: ")", Pos: pos})
			pos++

		case ch == '?':
			tokens = append(tokens, Token{Type: TokenQuestion, Value: "?", Pos: pos})
			pos++

		case ch == ':':
			tokens = append(tokens, Token{Type: TokenColon, Value: ":", Pos: pos})
			pos++

		case ch == ',':
			tokens = append(tokens, Token{Type: TokenComma, Value: ",", Pos: pos})
			pos++

		default:
			return nil, fmt.Errorf("%w: unexpected character %q at position %d", ErrSyntax, string(ch), pos)
		}
	}

	return tokens, nil
}

// References returns the field slugs a token stream refers to, keywords
// excluded, in first-seen order without duplicates.
func References(tokens []Token) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, tok := range tokens {
		if tok.Type != TokenIdent {
			continue
		}
		if keywords[strings.ToLower(tok.Value)] {
			continue
		}
		if !seen[tok.Value] {
			seen[tok.Value] = true
			refs = append(refs, tok.Value)
		}
	}
	return refs
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isIdentStart(ch byte) bool {
	return ch == '_' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch)
}
