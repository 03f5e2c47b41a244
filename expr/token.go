package expr

import (
	"fmt"
	"strconv"
	"strings"
)

type tokenType int

const (
	tokEOF tokenType = iota
	tokNumber
	tokString
	tokIdent
	tokTrue
	tokFalse
	tokAnd
	tokOr
	tokNot
	tokLParen
	tokRParen
	tokComma
	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokEq
	tokNeq
	tokLt
	tokLe
	tokGt
	tokGe
)

var tokenNames = map[tokenType]string{
	tokEOF:    "end of expression",
	tokNumber: "number",
	tokString: "string",
	tokIdent:  "identifier",
	tokTrue:   "true",
	tokFalse:  "false",
	tokAnd:    "AND",
	tokOr:     "OR",
	tokNot:    "NOT",
	tokLParen: "'('",
	tokRParen: "')'",
	tokComma:  "','",
	tokPlus:   "'+'",
	tokMinus:  "'-'",
	tokStar:   "'*'",
	tokSlash:  "'/'",
	tokEq:     "'=='",
	tokNeq:    "'!='",
	tokLt:     "'<'",
	tokLe:     "'<='",
	tokGt:     "'>'",
	tokGe:     "'>='",
}

func (t tokenType) String() string {
	if name, ok := tokenNames[t]; ok {
		return name
	}
	return fmt.Sprintf("token(%d)", int(t))
}

// token is one lexeme. pos is the byte offset of its first character.
type token struct {
	typ  tokenType
	pos  int
	text string  // identifier name, decoded string literal or raw number text
	num  float64 // tokNumber only
}

func (t token) describe() string {
	switch t.typ {
	case tokIdent:
		return fmt.Sprintf("identifier %q", t.text)
	case tokNumber:
		return fmt.Sprintf("number %s", t.text)
	case tokString:
		return fmt.Sprintf("string %q", t.text)
	default:
		return t.typ.String()
	}
}

var keywords = map[string]tokenType{
	"AND":   tokAnd,
	"OR":    tokOr,
	"NOT":   tokNot,
	"true":  tokTrue,
	"false": tokFalse,
}

// tokenize splits src into tokens, ending with tokEOF.
func tokenize(src string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(src) {
		c := src[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++

		case isDigit(c) || (c == '.' && i+1 < len(src) && isDigit(src[i+1])):
			start := i
			for i < len(src) && isDigit(src[i]) {
				i++
			}
			if i < len(src) && src[i] == '.' {
				i++
				if i >= len(src) || !isDigit(src[i]) {
					return nil, &ParseError{Position: start, Message: fmt.Sprintf("malformed number %q", src[start:i])}
				}
				for i < len(src) && isDigit(src[i]) {
					i++
				}
			}
			if i < len(src) && (src[i] == 'e' || src[i] == 'E') {
				j := i + 1
				if j < len(src) && (src[j] == '+' || src[j] == '-') {
					j++
				}
				if j < len(src) && isDigit(src[j]) {
					for j < len(src) && isDigit(src[j]) {
						j++
					}
					i = j
				}
			}
			if i < len(src) && isIdentStart(src[i]) {
				return nil, &ParseError{Position: start, Message: fmt.Sprintf("malformed number %q", src[start:i+1])}
			}
			text := src[start:i]
			f, err := strconv.ParseFloat(text, 64)
			if err != nil {
				return nil, &ParseError{Position: start, Message: fmt.Sprintf("malformed number %q", text)}
			}
			toks = append(toks, token{typ: tokNumber, pos: start, text: text, num: f})

		case isIdentStart(c):
			start := i
			for i < len(src) && isIdentPart(src[i]) {
				i++
			}
			word := src[start:i]
			if kw, ok := keywords[word]; ok {
				toks = append(toks, token{typ: kw, pos: start, text: word})
			} else {
				toks = append(toks, token{typ: tokIdent, pos: start, text: word})
			}

		case c == '"' || c == '\'':
			s, next, err := lexString(src, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{typ: tokString, pos: i, text: s})
			i = next

		default:
			typ, width := lexOperator(src, i)
			if width == 0 {
				msg := fmt.Sprintf("unexpected character %q", c)
				switch c {
				case '=':
					msg = "unexpected '=', use '==' for equality"
				case '!':
					msg = "unexpected '!', use NOT for negation or '!=' for inequality"
				case '&', '|':
					msg = fmt.Sprintf("unexpected %q, use AND / OR", c)
				}
				return nil, &ParseError{Position: i, Message: msg}
			}
			toks = append(toks, token{typ: typ, pos: i, text: src[i : i+width]})
			i += width
		}
	}
	toks = append(toks, token{typ: tokEOF, pos: len(src)})
	return toks, nil
}

func lexOperator(src string, i int) (tokenType, int) {
	c := src[i]
	var next byte
	if i+1 < len(src) {
		next = src[i+1]
	}
	switch c {
	case '(':
		return tokLParen, 1
	case ')':
		return tokRParen, 1
	case ',':
		return tokComma, 1
	case '+':
		return tokPlus, 1
	case '-':
		return tokMinus, 1
	case '*':
		return tokStar, 1
	case '/':
		return tokSlash, 1
	case '=':
		if next == '=' {
			return tokEq, 2
		}
	case '!':
		if next == '=' {
			return tokNeq, 2
		}
	case '<':
		if next == '=' {
			return tokLe, 2
		}
		return tokLt, 1
	case '>':
		if next == '=' {
			return tokGe, 2
		}
		return tokGt, 1
	}
	return tokEOF, 0
}

// lexString reads a quoted literal starting at src[start] and returns the decoded
// text and the offset just past the closing quote.
func lexString(src string, start int) (string, int, error) {
	quote := src[start]
	var b strings.Builder
	i := start + 1
	for i < len(src) {
		c := src[i]
		switch {
		case c == quote:
			return b.String(), i + 1, nil
		case c == '\\':
			if i+1 >= len(src) {
				return "", 0, &ParseError{Position: i, Message: "unterminated escape sequence"}
			}
			switch esc := src[i+1]; esc {
			case '\\', '"', '\'':
				b.WriteByte(esc)
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			default:
				return "", 0, &ParseError{Position: i, Message: fmt.Sprintf("invalid escape sequence \\%c", esc)}
			}
			i += 2
		default:
			b.WriteByte(c)
			i++
		}
	}
	return "", 0, &ParseError{Position: start, Message: "unterminated string literal"}
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentPart(c byte) bool { return isIdentStart(c) || isDigit(c) }
