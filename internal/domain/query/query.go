// Package query tokenizes raw autocomplete input into typed components.
package query

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Kind classifies a query token.
type Kind int

// Token kinds.
const (
	KindText Kind = iota
	KindHouseNumber
	KindPostcode
	KindAdmin
)

func (k Kind) String() string {
	switch k {
	case KindHouseNumber:
		return "housenumber"
	case KindPostcode:
		return "postcode"
	case KindAdmin:
		return "admin"
	default:
		return "text"
	}
}

// Token is one classified piece of the query.
type Token struct {
	Kind Kind
	Text string
}

// HouseNumber is an integer with an optional letter suffix ("27", "12a").
type HouseNumber struct {
	Number int
	Suffix string
}

// String renders the canonical form used for exact matching.
func (h HouseNumber) String() string {
	return strconv.Itoa(h.Number) + h.Suffix
}

// PostcodeFormat describes a country's fixed-width numeric postcode.
type PostcodeFormat struct {
	Country string
	Digits  int
}

// DefaultPostcodeFormat is the German five-digit postcode.
var DefaultPostcodeFormat = PostcodeFormat{Country: "DE", Digits: 5}

var houseNumberRe = regexp.MustCompile(`^(\d{1,4})([a-zA-Z]{0,2})$`)

// Parsed is the structured form of a query. Immutable after Parse.
type Parsed struct {
	raw         string
	tokens      []Token
	houseNumber *HouseNumber
	postcode    string
	freeText    string
	adminText   string
}

// Raw returns the original input.
func (p Parsed) Raw() string { return p.raw }

// Tokens returns the classified tokens in input order.
func (p Parsed) Tokens() []Token { return p.tokens }

// HouseNumber returns the detected housenumber, nil if none.
func (p Parsed) HouseNumber() *HouseNumber { return p.houseNumber }

// Postcode returns the detected postcode, empty if none.
func (p Parsed) Postcode() string { return p.postcode }

// FreeText returns the name component (street, place or POI name).
func (p Parsed) FreeText() string { return p.freeText }

// AdminText returns the administrative-name component (text after the first comma).
func (p Parsed) AdminText() string { return p.adminText }

// HasAnchor reports whether the query names something beyond a bare postcode.
func (p Parsed) HasAnchor() bool {
	return p.freeText != "" || p.adminText != "" || p.houseNumber != nil
}

// Parser splits raw input into typed tokens.
type Parser struct {
	postcode PostcodeFormat
}

// NewParser creates a parser for the given postcode format.
func NewParser(postcode PostcodeFormat) *Parser {
	if postcode.Digits <= 0 {
		postcode = DefaultPostcodeFormat
	}
	return &Parser{postcode: postcode}
}

// Parse classifies the tokens of raw. It never fails: anything unrecognized is free text.
//
// Rules: tokens after the first comma are admin-name candidates; the rightmost
// fixed-width numeric token is the postcode; the leftmost short numeric token that
// leads the query or touches an alphabetic token is the housenumber.
func (p *Parser) Parse(raw string) Parsed {
	out := Parsed{raw: raw}

	street, admin, _ := strings.Cut(raw, ",")
	tokens := make([]Token, 0, 8)
	for _, f := range strings.Fields(street) {
		tokens = append(tokens, Token{Kind: KindText, Text: f})
	}
	streetLen := len(tokens)
	for _, f := range strings.Fields(strings.ReplaceAll(admin, ",", " ")) {
		tokens = append(tokens, Token{Kind: KindAdmin, Text: f})
	}

	if i := p.findPostcode(tokens[:streetLen]); i >= 0 {
		tokens[i].Kind = KindPostcode
		out.postcode = tokens[i].Text
	}
	if i := findHouseNumber(tokens[:streetLen]); i >= 0 {
		hn := parseHouseNumber(tokens[i].Text)
		tokens[i].Kind = KindHouseNumber
		out.houseNumber = &hn
	}

	var text, adminText []string
	for _, t := range tokens {
		switch t.Kind {
		case KindText:
			text = append(text, t.Text)
		case KindAdmin:
			adminText = append(adminText, t.Text)
		}
	}
	out.tokens = tokens
	out.freeText = strings.Join(text, " ")
	out.adminText = strings.Join(adminText, " ")
	return out
}

func (p *Parser) findPostcode(tokens []Token) int {
	for i := len(tokens) - 1; i >= 0; i-- {
		if p.isPostcode(tokens[i].Text) {
			return i
		}
	}
	return -1
}

func (p *Parser) isPostcode(s string) bool {
	if len(s) != p.postcode.Digits {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func findHouseNumber(tokens []Token) int {
	// Adjacency ignores the postcode token.
	rest := make([]int, 0, len(tokens))
	for i, t := range tokens {
		if t.Kind == KindText {
			rest = append(rest, i)
		}
	}
	for pos, i := range rest {
		if !houseNumberRe.MatchString(tokens[i].Text) {
			continue
		}
		if pos == 0 {
			return i
		}
		if isAlphabetic(tokens[rest[pos-1]].Text) {
			return i
		}
		if pos+1 < len(rest) && isAlphabetic(tokens[rest[pos+1]].Text) {
			return i
		}
	}
	return -1
}

func parseHouseNumber(s string) HouseNumber {
	m := houseNumberRe.FindStringSubmatch(s)
	n, _ := strconv.Atoi(m[1])
	return HouseNumber{Number: n, Suffix: strings.ToLower(m[2])}
}

func isAlphabetic(s string) bool {
	if houseNumberRe.MatchString(s) {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
