// Package catalog holds the fixed set of currencies the bot can convert between.
package catalog

import (
	"fmt"
	"strings"
)

// MatchMode selects how free text is matched against currency labels.
type MatchMode string

const (
	// MatchSubstring accepts any text containing a currency label.
	MatchSubstring MatchMode = "substring"
	// MatchExact accepts only the full label or the ISO code.
	MatchExact MatchMode = "exact"
)

// ParseMatchMode normalizes a configured match mode; empty selects MatchSubstring.
func ParseMatchMode(raw string) (MatchMode, error) {
	switch MatchMode(strings.ToLower(strings.TrimSpace(raw))) {
	case "", MatchSubstring:
		return MatchSubstring, nil
	case MatchExact:
		return MatchExact, nil
	}
	return "", fmt.Errorf("catalog: invalid match mode %q; allowed: substring, exact", raw)
}

// Currency is a supported currency code with its display label.
type Currency struct {
	Code  string
	Label string
}

// Catalog is an ordered, read-only list of currencies.
type Catalog struct {
	items  []Currency
	byCode map[string]Currency
}

// Default returns the catalog shipped with the bot.
func Default() *Catalog {
	return New([]Currency{
		{Code: "USD", Label: "🇺🇸 US Dollar"},
		{Code: "EUR", Label: "🇪🇺 Euro"},
		{Code: "GBP", Label: "🇬🇧 British Pound"},
		{Code: "GHS", Label: "🇬🇭 Ghanaian Cedi"},
		{Code: "CAD", Label: "🇨🇦 Canadian Dollar"},
		{Code: "AUD", Label: "🇦🇺 Australian Dollar"},
	})
}

// New builds a catalog preserving the given order. Later duplicates of a code are ignored.
func New(items []Currency) *Catalog {
	c := &Catalog{byCode: make(map[string]Currency, len(items))}
	for _, it := range items {
		code := strings.ToUpper(strings.TrimSpace(it.Code))
		if code == "" {
			continue
		}
		if _, dup := c.byCode[code]; dup {
			continue
		}
		it.Code = code
		c.items = append(c.items, it)
		c.byCode[code] = it
	}
	return c
}

// All returns a copy of the catalog entries in display order.
func (c *Catalog) All() []Currency {
	out := make([]Currency, len(c.items))
	copy(out, c.items)
	return out
}

// Len reports the number of currencies.
func (c *Catalog) Len() int { return len(c.items) }

// Lookup returns the currency for an ISO code.
func (c *Catalog) Lookup(code string) (Currency, bool) {
	cur, ok := c.byCode[strings.ToUpper(strings.TrimSpace(code))]
	return cur, ok
}

// Valid reports whether code belongs to the catalog.
func (c *Catalog) Valid(code string) bool {
	_, ok := c.Lookup(code)
	return ok
}

// Label returns the display label for code, or the code itself when unknown.
func (c *Catalog) Label(code string) string {
	if cur, ok := c.Lookup(code); ok {
		return cur.Label
	}
	return code
}

// Match resolves user input to a currency. In substring mode the first entry
// whose label occurs inside the trimmed text wins, in catalog order.
func (c *Catalog) Match(text string, mode MatchMode) (Currency, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Currency{}, false
	}
	if mode == MatchExact {
		for _, it := range c.items {
			if text == it.Label || strings.EqualFold(text, it.Code) {
				return it, true
			}
		}
		return Currency{}, false
	}
	for _, it := range c.items {
		if strings.Contains(text, it.Label) {
			return it, true
		}
	}
	return Currency{}, false
}

// Rows lays labels out in rows of perRow buttons for a reply keyboard.
func (c *Catalog) Rows(perRow int) [][]string {
	if perRow <= 0 {
		perRow = 2
	}
	var rows [][]string
	for i := 0; i < len(c.items); i += perRow {
		end := min(i+perRow, len(c.items))
		row := make([]string, 0, end-i)
		for _, it := range c.items[i:end] {
			row = append(row, it.Label)
		}
		rows = append(rows, row)
	}
	return rows
}
