// Package parser turns free-text sale messages into line items.
//
// A message reads "<customer> <items>", where items are windows of tokens
// ending in a unit price, optionally separated by commas:
//
//	Maria 2 refri 5, 1 bolo 20
//	2 coxinha 5 1 suco 3
//	cerveja 2 5            (quantity after the description)
//	duas cervejas 5        (spelled-out quantity)
package parser

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"fiado/backend/internal/domain"
	"fiado/backend/internal/textnorm"
)

// MaxNameWords bounds the customer part of a sale; longer prefixes are
// treated as ordinary chat that happens to contain a number.
const MaxNameWords = 4

const maxIntegerDigits = 9

// MaxAmount is the first value too large to be a price or quantity typed in
// a chat message.
var MaxAmount = decimal.New(1, maxIntegerDigits)

// InRange reports whether d is below MaxAmount. It looks at the digit count
// only, so values like 1e50000000 are rejected without being expanded.
func InRange(d decimal.Decimal) bool {
	return d.NumDigits()+int(d.Exponent()) <= maxIntegerDigits
}

// plainAmount is the only number shape accepted: digits with an optional
// fraction of up to three digits after a single dot or comma. Exponents,
// signs, hex and NaN/Inf never reach the decimal parser.
var plainAmount = regexp.MustCompile(`^[0-9]{1,9}(?:[.,][0-9]{1,3})?$`)

// ParseItems returns the line items found in an order text, in order.
// Windows that do not end in a price, have no description or a
// non-positive quantity are dropped without error.
func ParseItems(text string) []domain.LineItem {
	var items []domain.LineItem
	for _, segment := range splitSegments(text) {
		tokens := textnorm.NumberWords(strings.Fields(segment))
		items = append(items, parseSegment(tokens)...)
	}
	return items
}

// SplitSale separates the customer name from the order text. ok is false
// when there is no name before the first number or the name is too long.
func SplitSale(text string) (name string, order string, ok bool) {
	tokens := textnorm.NumberWords(strings.Fields(text))
	first := -1
	for i, tok := range tokens {
		if _, isNum := ParseAmount(strings.TrimRight(tok, ",")); isNum {
			first = i
			break
		}
	}
	if first <= 0 || first > MaxNameWords {
		return "", "", false
	}
	name = cleanName(tokens[:first])
	if name == "" {
		return "", "", false
	}
	return name, strings.Join(tokens[first:], " "), true
}

// cleanName drops punctuation typed after name words ("Maria, 2 refri 5").
func cleanName(tokens []string) string {
	words := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if w := strings.TrimRight(tok, ",.;:"); w != "" {
			words = append(words, w)
		}
	}
	return strings.Join(words, " ")
}

// ParseAmount parses a plain non-negative decimal, accepting a comma as
// decimal separator ("2,50"). The result is always below MaxAmount.
func ParseAmount(tok string) (decimal.Decimal, bool) {
	if !plainAmount.MatchString(tok) {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(strings.Replace(tok, ",", ".", 1))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// splitSegments cuts on commas that are not decimal separators ("2,50").
func splitSegments(text string) []string {
	var (
		segments []string
		b        strings.Builder
	)
	for i, r := range text {
		if r == ',' && !isDecimalComma(text, i) {
			segments = append(segments, b.String())
			b.Reset()
			continue
		}
		b.WriteRune(r)
	}
	return append(segments, b.String())
}

func isDecimalComma(text string, i int) bool {
	if i == 0 || i+1 >= len(text) {
		return false
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:i])
	next, _ := utf8.DecodeRuneInString(text[i+1:])
	return isDigit(prev) && isDigit(next)
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}

func parseSegment(tokens []string) []domain.LineItem {
	var items []domain.LineItem
	window := make([]string, 0, len(tokens))
	for i, tok := range tokens {
		window = append(window, tok)
		if len(window) < 2 {
			continue
		}
		if _, ok := ParseAmount(tok); !ok {
			continue
		}
		if i < len(tokens)-1 {
			if _, nextIsNum := ParseAmount(tokens[i+1]); !nextIsNum {
				continue
			}
			// "cerveja 2 5": the 2 is a trailing quantity, the 5 the price.
			if i+1 == len(tokens)-1 && !isNumber(window[0]) {
				continue
			}
		}
		if item, ok := buildItem(window); ok {
			items = append(items, item)
		}
		window = window[:0]
	}
	return items
}

func buildItem(window []string) (domain.LineItem, bool) {
	price, ok := ParseAmount(window[len(window)-1])
	if !ok || price.IsNegative() {
		return domain.LineItem{}, false
	}

	rest := window[:len(window)-1]
	qty := decimal.NewFromInt(1)
	if len(rest) > 0 {
		if q, ok := ParseAmount(rest[0]); ok {
			qty, rest = q, rest[1:]
		} else if q, ok := ParseAmount(rest[len(rest)-1]); ok {
			qty, rest = q, rest[:len(rest)-1]
		}
	}
	if !qty.IsPositive() {
		return domain.LineItem{}, false
	}

	description := strings.Join(rest, " ")
	if description == "" {
		return domain.LineItem{}, false
	}
	return domain.NewLineItem(qty, description, price), true
}

func isNumber(tok string) bool {
	_, ok := ParseAmount(tok)
	return ok
}
