package lexer

import (
	"strconv"
	"strings"

	"github.com/raymyers/kuicc/pkg/diag"
	"github.com/raymyers/kuicc/pkg/intern"
)

// Lexer tokenizes C source code held entirely in memory
type Lexer struct {
	file    string
	input   []byte
	pos     int  // current position in input
	readPos int  // next reading position
	ch      byte // current character, 0 past the end
	line    int
	column  int
	strings *intern.Interner

	// start of the token being scanned
	startPos    int
	startLine   int
	startColumn int

	prev TokenType
}

// New creates a new Lexer for the given input. Identifiers, strings and
// numeric constants are interned into in.
func New(file string, input []byte, in *intern.Interner) *Lexer {
	l := &Lexer{file: file, input: input, line: 1, column: 0, strings: in, prev: TokenError}
	l.readChar()
	return l
}

func (l *Lexer) readChar() {
	if l.ch == '\n' {
		l.line++
		l.column = 0
	}
	l.pos = l.readPos
	if l.readPos >= len(l.input) {
		l.ch = 0 // EOF
	} else {
		l.ch = l.input[l.readPos]
	}
	l.readPos++
	l.column++
}

func (l *Lexer) peekChar() byte {
	if l.readPos >= len(l.input) {
		return 0
	}
	return l.input[l.readPos]
}

func (l *Lexer) atEOF() bool {
	return l.pos >= len(l.input)
}

func (l *Lexer) here() diag.Pos {
	return diag.Pos{File: l.file, Line: l.line, Column: l.column}
}

func (l *Lexer) errorf(format string, args ...any) error {
	return diag.Errorf(diag.LexSyntax, l.here(), format, args...)
}

// Tokenize scans the whole input. The returned slice ends with a TokenEOF.
func (l *Lexer) Tokenize() ([]Token, error) {
	var toks []Token
	for {
		tok, err := l.NextToken()
		if err != nil {
			return nil, err
		}
		toks = append(toks, tok)
		if tok.Type == TokenEOF {
			return toks, nil
		}
	}
}

// NextToken returns the next token from the input
func (l *Lexer) NextToken() (Token, error) {
	if err := l.skipBlank(); err != nil {
		return Token{}, err
	}
	l.startPos, l.startLine, l.startColumn = l.pos, l.line, l.column

	var tok Token
	var err error
	switch {
	case l.atEOF():
		tok = l.finish(TokenEOF)
	case l.ch == '"':
		tok, err = l.readString()
	case isDigit(l.ch), l.ch == '.' && isDigit(l.peekChar()):
		tok, err = l.readNumber()
	case (l.ch == '+' || l.ch == '-') && isDigit(l.peekChar()) && !endsOperand(l.prev):
		tok, err = l.readNumber()
	case isLetter(l.ch):
		tok = l.readIdentifier()
	case isPunctStart(l.ch):
		tok, err = l.readPunct()
	default:
		err = l.errorf("invalid character %q at position %d", rune(l.ch), l.pos)
	}
	if err != nil {
		return Token{}, err
	}
	l.prev = tok.Type
	return tok, nil
}

// finish builds a token spanning from the token start to the current position
func (l *Lexer) finish(typ TokenType) Token {
	return Token{
		Type:    typ,
		Literal: string(l.input[l.startPos:l.pos]),
		Span: Span{
			File:      l.file,
			Line:      l.startLine,
			Column:    l.startColumn,
			EndLine:   l.line,
			EndColumn: l.column,
		},
	}
}

// endsOperand reports whether a token of type t can end an operand. A sign
// after such a token is a binary operator, not part of a number.
func endsOperand(t TokenType) bool {
	switch t {
	case TokenIdent, TokenInt, TokenFloat, TokenString,
		TokenRParen, TokenRBracket, TokenIncrement, TokenDecrement,
		TokenTrue, TokenFalse, TokenNullptr:
		return true
	}
	return false
}

func (l *Lexer) skipBlank() error {
	for {
		switch {
		case isSpace(l.ch):
			l.readChar()
		case l.ch == '/' && l.peekChar() == '/':
			for l.ch != '\n' && !l.atEOF() {
				l.readChar()
			}
		case l.ch == '/' && l.peekChar() == '*':
			start := l.here()
			l.readChar() // consume /
			l.readChar() // consume *
			for {
				if l.atEOF() {
					return diag.Errorf(diag.LexSyntax, start, "unterminated block comment")
				}
				if l.ch == '*' && l.peekChar() == '/' {
					l.readChar() // consume *
					l.readChar() // consume /
					break
				}
				l.readChar()
			}
		default:
			return nil
		}
	}
}

func (l *Lexer) readPunct() (Token, error) {
	for n := maxPunctLen; n > 0; n-- {
		if l.pos+n > len(l.input) {
			continue
		}
		typ, ok := punctuation[string(l.input[l.pos:l.pos+n])]
		if !ok {
			continue
		}
		for i := 0; i < n; i++ {
			l.readChar()
		}
		return l.finish(typ), nil
	}
	return Token{}, l.errorf("invalid character %q at position %d", rune(l.ch), l.pos)
}

func (l *Lexer) readIdentifier() Token {
	for isLetter(l.ch) || isDigit(l.ch) {
		l.readChar()
	}
	tok := l.finish(LookupIdent(string(l.input[l.startPos:l.pos])))
	if tok.Type == TokenIdent {
		tok.ID = l.strings.String(tok.Literal)
	}
	return tok
}

// readString scans a string literal. A closing quote followed by nothing
// but whitespace and another quote continues the same literal.
func (l *Lexer) readString() (Token, error) {
	var sb strings.Builder
	for {
		l.readChar() // consume opening quote
		for l.ch != '"' {
			if l.atEOF() || l.ch == '\n' {
				return Token{}, diag.Errorf(diag.LexSyntax,
					diag.Pos{File: l.file, Line: l.startLine, Column: l.startColumn},
					"unterminated string literal")
			}
			if l.ch == '\\' {
				l.readChar()
				switch l.ch {
				case 'n':
					sb.WriteByte('\n')
				case 'v':
					sb.WriteByte('\v')
				case 't':
					sb.WriteByte('\t')
				case '"':
					sb.WriteByte('"')
				case '\\':
					sb.WriteByte('\\')
				default:
					return Token{}, l.errorf("invalid escape sequence \\%c in string literal", l.ch)
				}
				l.readChar()
				continue
			}
			sb.WriteByte(l.ch)
			l.readChar()
		}
		l.readChar() // consume closing quote

		// Adjacent literal separated only by whitespace
		next := l.pos
		for next < len(l.input) && isSpace(l.input[next]) {
			next++
		}
		if next >= len(l.input) || l.input[next] != '"' {
			break
		}
		for l.pos < next {
			l.readChar()
		}
	}
	tok := l.finish(TokenString)
	tok.ID = l.strings.String(sb.String())
	return tok, nil
}

// readNumber scans an integer literal, switching to a floating literal when
// the digits are followed by one of . e E p P.
func (l *Lexer) readNumber() (Token, error) {
	if l.ch == '+' || l.ch == '-' {
		l.readChar()
	}
	hex := l.ch == '0' && (l.peekChar() == 'x' || l.peekChar() == 'X')
	if hex {
		l.readChar()
		l.readChar()
		for isHexDigit(l.ch) {
			l.readChar()
		}
	} else {
		for isDigit(l.ch) {
			l.readChar()
		}
	}

	if l.ch == '.' || l.ch == 'e' || l.ch == 'E' || l.ch == 'p' || l.ch == 'P' {
		return l.readFloatRest(hex)
	}

	digits := string(l.input[l.startPos:l.pos])
	for l.ch == 'u' || l.ch == 'U' || l.ch == 'l' || l.ch == 'L' {
		l.readChar()
	}
	v, err := parseInt(digits)
	if err != nil {
		return Token{}, diag.Errorf(diag.LexSyntax,
			diag.Pos{File: l.file, Line: l.startLine, Column: l.startColumn},
			"invalid integer literal %s", digits)
	}
	tok := l.finish(TokenInt)
	tok.Int = v
	tok.ID = l.strings.Int(v)
	return tok, nil
}

func (l *Lexer) readFloatRest(hex bool) (Token, error) {
	digit := isDigit
	if hex {
		digit = isHexDigit
	}
	if l.ch == '.' {
		l.readChar()
		for digit(l.ch) {
			l.readChar()
		}
	}
	if l.ch == 'e' || l.ch == 'E' || l.ch == 'p' || l.ch == 'P' {
		l.readChar()
		if l.ch == '+' || l.ch == '-' {
			l.readChar()
		}
		for isDigit(l.ch) {
			l.readChar()
		}
	}
	text := string(l.input[l.startPos:l.pos])
	for l.ch == 'f' || l.ch == 'F' || l.ch == 'l' || l.ch == 'L' {
		l.readChar()
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return Token{}, diag.Errorf(diag.LexSyntax,
			diag.Pos{File: l.file, Line: l.startLine, Column: l.startColumn},
			"invalid floating literal %s", text)
	}
	tok := l.finish(TokenFloat)
	tok.Float = v
	tok.ID = l.strings.Float(v)
	return tok, nil
}

// parseInt parses a C integer with an optional sign and a 0x or 0 prefix.
// Values that only fit in 64 unsigned bits wrap the way C constants do.
func parseInt(s string) (int64, error) {
	neg := false
	body := s
	switch {
	case strings.HasPrefix(body, "-"):
		neg = true
		body = body[1:]
	case strings.HasPrefix(body, "+"):
		body = body[1:]
	}
	base := 10
	switch {
	case strings.HasPrefix(body, "0x"), strings.HasPrefix(body, "0X"):
		base = 16
		body = body[2:]
	case len(body) > 1 && body[0] == '0':
		base = 8
		body = body[1:]
	}
	u, err := strconv.ParseUint(body, base, 64)
	if err != nil {
		return 0, err
	}
	v := int64(u)
	if neg {
		v = -v
	}
	return v, nil
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\v' || ch == '\f'
}

func isLetter(ch byte) bool {
	return 'a' <= ch && ch <= 'z' || 'A' <= ch && ch <= 'Z' || ch == '_'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

func isHexDigit(ch byte) bool {
	return isDigit(ch) || 'a' <= ch && ch <= 'f' || 'A' <= ch && ch <= 'F'
}

func isPunctStart(ch byte) bool {
	return strings.IndexByte("!%&()*+,-./:;<=>?[]^{|}~", ch) >= 0
}
