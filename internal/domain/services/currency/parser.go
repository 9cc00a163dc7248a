// Package currency resolves composite tickers such as USDTTRC20 into the
// (coin, network) pair each provider expects.
package currency

import (
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/cryptogate/gateway_service/pkg/metrics"
)

// Pair is a base coin and the network it lives on
type Pair struct {
	Coin    string `json:"coin"`
	Network string `json:"network"`
}

// Tier names the rule that resolved a ticker
type Tier string

const (
	TierSeparator Tier = "separator"
	TierExact     Tier = "exact"
	TierSuffix    Tier = "suffix"
	TierNative    Tier = "native"
	TierFallback  Tier = "fallback"
)

// Suffix maps a trailing network marker onto a provider network name
type Suffix struct {
	Suffix  string
	Network string
}

// Resolution is the outcome of Table.Resolve
type Resolution struct {
	Pair
	Tier Tier
}

// Matched is false only for the fallback guess
func (r Resolution) Matched() bool {
	return r.Tier != TierFallback
}

// Table is one provider's ticker vocabulary. Keys are upper-case.
type Table struct {
	Name string

	// Separator splits COIN<sep>NETWORK codes before any lookup when set.
	// NetworkAliases renames the network half.
	Separator      string
	NetworkAliases map[string]string

	Exact    map[string]Pair
	Suffixes []Suffix
	Native   map[string]Pair

	// Lower lower-cases both halves of the output
	Lower bool
}

var upper = cases.Upper(language.Und)

// Normalize trims and upper-cases a ticker
func Normalize(code string) string {
	return upper.String(strings.TrimSpace(code))
}

// Resolve runs the lookup tiers in order, first match wins: separator split,
// exact table, suffix strip with a non-empty remainder, native table. When
// nothing matches it returns (code, code) with TierFallback.
func (t *Table) Resolve(code string) Resolution {
	code = Normalize(code)

	if t.Separator != "" && strings.Contains(code, t.Separator) {
		parts := strings.SplitN(code, t.Separator, 2)
		if parts[0] != "" && parts[1] != "" {
			network := parts[1]
			if alias, ok := t.NetworkAliases[network]; ok {
				network = alias
			}
			return t.finish(Pair{Coin: parts[0], Network: network}, TierSeparator)
		}
	}

	if pair, ok := t.Exact[code]; ok {
		return t.finish(pair, TierExact)
	}

	for _, s := range t.Suffixes {
		if len(code) > len(s.Suffix) && strings.HasSuffix(code, s.Suffix) {
			return t.finish(Pair{Coin: code[:len(code)-len(s.Suffix)], Network: s.Network}, TierSuffix)
		}
	}

	if pair, ok := t.Native[code]; ok {
		return t.finish(pair, TierNative)
	}

	return t.finish(Pair{Coin: code, Network: code}, TierFallback)
}

// Parse is Resolve reduced to the pair and whether it was a real match
func (t *Table) Parse(code string) (Pair, bool) {
	r := t.Resolve(code)
	return r.Pair, r.Matched()
}

func (t *Table) finish(p Pair, tier Tier) Resolution {
	if t.Lower {
		p.Coin = strings.ToLower(p.Coin)
		p.Network = strings.ToLower(p.Network)
	}
	return Resolution{Pair: p, Tier: tier}
}

// Parser wraps a Table and makes the fallback path visible
type Parser struct {
	table  *Table
	logger *zap.Logger
}

// NewParser creates a parser for the given table
func NewParser(table *Table, logger *zap.Logger) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Parser{table: table, logger: logger}
}

// Parse resolves code. An unknown ticker is not an error: the (code, code)
// guess is returned, a warning is logged and the fallback counter is bumped.
func (p *Parser) Parse(code string) Pair {
	return p.Resolve(code).Pair
}

// Resolve exposes the tier for callers that branch on it
func (p *Parser) Resolve(code string) Resolution {
	r := p.table.Resolve(code)
	if !r.Matched() {
		metrics.CurrencyFallbackTotal.WithLabelValues(p.table.Name).Inc()
		p.logger.Warn("Unknown ticker, using it as both coin and network",
			zap.String("provider", p.table.Name),
			zap.String("code", code))
		return r
	}
	p.logger.Debug("Resolved ticker",
		zap.String("provider", p.table.Name),
		zap.String("code", code),
		zap.String("coin", r.Coin),
		zap.String("network", r.Network),
		zap.String("tier", string(r.Tier)))
	return r
}

// Table returns the underlying table
func (p *Parser) Table() *Table {
	return p.table
}
