package tokens

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Token describes one supported token.
type Token struct {
	Symbol   string
	Decimals int32
}

// Registry is the injected supported-token table. The engine and the
// order service consult it instead of a hardcoded list, so deployments
// can change the token set without touching code.
type Registry struct {
	tokens map[string]Token
}

// NewRegistry builds a registry from a symbol-to-decimals map. Symbols
// are normalized to upper case.
func NewRegistry(supported map[string]int32) *Registry {
	r := &Registry{tokens: make(map[string]Token, len(supported))}
	for symbol, decimals := range supported {
		sym := strings.ToUpper(symbol)
		r.tokens[sym] = Token{Symbol: sym, Decimals: decimals}
	}
	return r
}

// Supports reports whether the symbol is in the supported set.
func (r *Registry) Supports(symbol string) bool {
	_, ok := r.tokens[strings.ToUpper(symbol)]
	return ok
}

// Get returns the token for a symbol.
func (r *Registry) Get(symbol string) (Token, bool) {
	t, ok := r.tokens[strings.ToUpper(symbol)]
	return t, ok
}

// Normalize rounds an amount to the token's decimal precision. Unknown
// symbols leave the amount unchanged.
func (r *Registry) Normalize(symbol string, amount decimal.Decimal) decimal.Decimal {
	t, ok := r.Get(symbol)
	if !ok {
		return amount
	}
	return amount.Round(t.Decimals)
}

// Symbols returns the supported symbols, unordered.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.tokens))
	for sym := range r.tokens {
		out = append(out, sym)
	}
	return out
}
