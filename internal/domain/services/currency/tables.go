package currency

type chainSet struct {
	coin     string
	networks []string
}

// Tokens issued on several chains, in the order tickers are tried
var multiChain = []chainSet{
	{"USDT", []string{"TRX", "ETH", "BSC", "POLYGON", "SOL", "AVAX", "ARBITRUM", "OPTIMISM", "BASE", "TON"}},
	{"USDC", []string{"TRX", "ETH", "BSC", "POLYGON", "SOL", "AVAX", "ARBITRUM", "OPTIMISM", "BASE"}},
	{"DAI", []string{"ETH", "BSC", "POLYGON", "AVAX", "ARBITRUM", "OPTIMISM"}},
	{"BUSD", []string{"BSC", "ETH"}},
	{"WBTC", []string{"ETH", "BSC", "POLYGON", "AVAX", "ARBITRUM"}},
	{"WETH", []string{"ETH", "BSC", "POLYGON", "ARBITRUM", "OPTIMISM"}},
	{"ETH", []string{"ETH", "BSC", "POLYGON", "ARBITRUM", "OPTIMISM", "BASE"}},
	{"BTC", []string{"BTC", "BSC", "POLYGON"}},
	{"BNB", []string{"BSC", "ETH"}},
	{"SHIB", []string{"ETH", "BSC"}},
	{"LINK", []string{"ETH", "BSC", "POLYGON", "ARBITRUM"}},
	{"UNI", []string{"ETH", "BSC", "POLYGON", "ARBITRUM"}},
	{"MATIC", []string{"POLYGON", "ETH", "BSC"}},
}

var nativeCoins = []string{
	"BTC", "ETH", "LTC", "BCH", "DOGE", "XRP", "ADA", "DOT", "TRX", "BNB",
	"SOL", "MATIC", "AVAX", "XMR", "ATOM", "XLM", "NEAR", "FTM", "ALGO",
	"VET", "ICP", "FIL", "HBAR", "APT", "SUI", "TON",
}

// expandMultiChain produces COIN+NETWORK tickers plus the overlapping
// spelling used when the coin ends with the network's first letter
// (USDT+TRX gives USDTRX). The first spelling registered wins.
func expandMultiChain(sets []chainSet, names map[string]string) map[string]Pair {
	out := make(map[string]Pair)
	add := func(code string, p Pair) {
		if _, exists := out[code]; !exists {
			out[code] = p
		}
	}
	for _, set := range sets {
		for _, network := range set.networks {
			name, ok := names[network]
			if !ok {
				name = network
			}
			p := Pair{Coin: set.coin, Network: name}
			add(set.coin+network, p)
			if set.coin[len(set.coin)-1] == network[0] {
				add(set.coin+network[1:], p)
			}
		}
	}
	return out
}

// natives maps every coin to itself unless overridden
func natives(coins []string, overrides map[string]string) map[string]Pair {
	out := make(map[string]Pair, len(coins)+len(overrides))
	for _, c := range coins {
		out[c] = Pair{Coin: c, Network: c}
	}
	for c, network := range overrides {
		out[c] = Pair{Coin: c, Network: network}
	}
	return out
}

func withCoins(extra ...string) []string {
	out := make([]string, 0, len(nativeCoins)+len(extra))
	out = append(out, nativeCoins...)
	return append(out, extra...)
}

// LetsExchangeTable uses TRC20/BEP20 style network names
func LetsExchangeTable() *Table {
	sets := make([]chainSet, len(multiChain))
	copy(sets, multiChain)
	sets[0] = chainSet{"USDT", append(append([]string{}, multiChain[0].networks...), "NEAR")}

	return &Table{
		Name: "letsexchange",
		Exact: expandMultiChain(sets, map[string]string{
			"TRX": "TRC20", "BSC": "BEP20", "AVAX": "AVAXC",
		}),
		Suffixes: []Suffix{
			{"TRC20", "TRC20"},
			{"ERC20", "ERC20"},
			{"BEP20", "BEP20"},
			{"POLYGON", "POLYGON"},
			{"MATIC", "POLYGON"},
			{"SOL", "SOL"},
			{"AVAX", "AVAXC"},
			{"ARBITRUM", "ARBITRUM"},
			{"OPTIMISM", "OPTIMISM"},
			{"BASE", "BASE"},
		},
		Native: natives(withCoins("OP", "ARB", "DASH", "ZEC", "ETC"), map[string]string{
			"TRX":   "TRC20",
			"BNB":   "BEP20",
			"MATIC": "POLYGON",
			"AVAX":  "AVAXC",
			"OP":    "OPTIMISM",
			"ARB":   "ARBITRUM",
		}),
	}
}

// ExolixTable uses chain tickers (TRX, ETH, BSC) as network names
func ExolixTable() *Table {
	exact := map[string]Pair{
		"USDTTRC20":    {"USDT", "TRX"},
		"USDTERC20":    {"USDT", "ETH"},
		"USDTBEP20":    {"USDT", "BSC"},
		"USDTPOLYGON":  {"USDT", "POLYGON"},
		"USDTMATIC":    {"USDT", "POLYGON"},
		"USDTSOL":      {"USDT", "SOL"},
		"USDTAVAX":     {"USDT", "AVAX"},
		"USDTARBITRUM": {"USDT", "ARBITRUM"},
		"USDTOPTIMISM": {"USDT", "OPTIMISM"},
		"USDCTRC20":    {"USDC", "TRX"},
		"USDCERC20":    {"USDC", "ETH"},
		"USDCBEP20":    {"USDC", "BSC"},
		"USDCPOLYGON":  {"USDC", "POLYGON"},
		"USDCMATIC":    {"USDC", "POLYGON"},
		"USDCSOL":      {"USDC", "SOL"},
		"USDCAVAX":     {"USDC", "AVAX"},
		"USDCARBITRUM": {"USDC", "ARBITRUM"},
		"USDCOPTIMISM": {"USDC", "OPTIMISM"},
		"DAIERC20":     {"DAI", "ETH"},
		"DAIBEP20":     {"DAI", "BSC"},
		"DAIPOLYGON":   {"DAI", "POLYGON"},
		"BUSDBEP20":    {"BUSD", "BSC"},
		"BUSDERC20":    {"BUSD", "ETH"},
		"WBTCERC20":    {"WBTC", "ETH"},
		"WBTCBEP20":    {"WBTC", "BSC"},
		"WBTCPOLYGON":  {"WBTC", "POLYGON"},
		"WETHERC20":    {"WETH", "ETH"},
		"WETHBEP20":    {"WETH", "BSC"},
		"WETHPOLYGON":  {"WETH", "POLYGON"},
		"ETHBEP20":     {"ETH", "BSC"},
		"ETHPOLYGON":   {"ETH", "POLYGON"},
		"ETHARBITRUM":  {"ETH", "ARBITRUM"},
		"ETHOPTIMISM":  {"ETH", "OPTIMISM"},
		"BTCBEP20":     {"BTC", "BSC"},
		"BTCPOLYGON":   {"BTC", "POLYGON"},
		"BNBBEP20":     {"BNB", "BSC"},
		"BNBERC20":     {"BNB", "ETH"},
		"SHIBERC20":    {"SHIB", "ETH"},
		"SHIBBEP20":    {"SHIB", "BSC"},
		"LINKERC20":    {"LINK", "ETH"},
		"LINKBEP20":    {"LINK", "BSC"},
		"UNIERC20":     {"UNI", "ETH"},
		"UNIBEP20":     {"UNI", "BSC"},
	}

	return &Table{
		Name:  "exolix",
		Exact: exact,
		Suffixes: []Suffix{
			{"TRC20", "TRX"},
			{"ERC20", "ETH"},
			{"BEP20", "BSC"},
			{"POLYGON", "POLYGON"},
			{"MATIC", "POLYGON"},
			{"SOL", "SOL"},
			{"SOLANA", "SOL"},
			{"AVAX", "AVAX"},
			{"AVALANCHE", "AVAX"},
			{"ARBITRUM", "ARBITRUM"},
			{"OPTIMISM", "OPTIMISM"},
			{"BASE", "BASE"},
		},
		Native: natives(nativeCoins, map[string]string{
			"BNB":   "BSC",
			"MATIC": "POLYGON",
		}),
	}
}

// SimpleSwapTable emits lower-case tickers and networks
func SimpleSwapTable() *Table {
	return &Table{
		Name: "simpleswap",
		Exact: expandMultiChain(multiChain, map[string]string{
			"TRX": "trc20",
		}),
		Suffixes: []Suffix{
			{"TRC20", "trc20"},
			{"ERC20", "eth"},
			{"BEP20", "bsc"},
		},
		Native: natives(withCoins("DASH", "ZEC", "ETC"), map[string]string{
			"TRX":   "trc20",
			"BNB":   "bsc",
			"MATIC": "polygon",
		}),
		Lower: true,
	}
}

// ChangellyTable follows Changelly's own tickers (usdtrx, usdt20, ethbsc)
func ChangellyTable() *Table {
	exact := expandMultiChain(multiChain, nil)
	exact["USDT20"] = Pair{Coin: "USDT", Network: "ETH"}
	exact["USDC20"] = Pair{Coin: "USDC", Network: "ETH"}

	return &Table{
		Name:  "changelly",
		Exact: exact,
		Suffixes: []Suffix{
			{"TRC20", "TRX"},
			{"ERC20", "ETH"},
			{"BEP20", "BSC"},
		},
		Native: natives(nativeCoins, map[string]string{
			"BNB":   "BSC",
			"MATIC": "POLYGON",
		}),
		Lower: true,
	}
}

// OnRampTable uses OnRamp chain codes (bep20, matic20, spl)
func OnRampTable() *Table {
	return &Table{
		Name:      "onramp",
		Separator: "_",
		NetworkAliases: map[string]string{
			"TRON":    "TRC20",
			"POLYGON": "MATIC20",
			"SOL":     "SPL",
		},
		Suffixes: []Suffix{
			{"TRC20", "TRC20"},
			{"ERC20", "ERC20"},
			{"BEP20", "BEP20"},
			{"POLYGON", "MATIC20"},
			{"MATIC", "MATIC20"},
			{"SOL", "SPL"},
		},
		Native: natives([]string{"BTC", "LTC", "DOGE", "XRP", "ADA", "DOT"}, map[string]string{
			"ETH":   "ERC20",
			"BNB":   "BEP20",
			"TRX":   "TRC20",
			"SOL":   "SPL",
			"MATIC": "MATIC20",
		}),
		Lower: true,
	}
}

// FinchPayTable splits COIN_NETWORK codes, renaming TRON to TRC20
func FinchPayTable() *Table {
	return &Table{
		Name:           "finchpay",
		Separator:      "_",
		NetworkAliases: map[string]string{"TRON": "TRC20"},
		Suffixes: []Suffix{
			{"TRC20", "TRC20"},
			{"ERC20", "ERC20"},
			{"BEP20", "BEP20"},
			{"POLYGON", "POLYGON"},
		},
		Native: natives(nativeCoins, nil),
	}
}

// MoonPayTable matches MoonPay codes such as usdt_trx and eth_polygon
func MoonPayTable() *Table {
	return &Table{
		Name:      "moonpay",
		Separator: "_",
		Suffixes: []Suffix{
			{"TRC20", "TRX"},
			{"ERC20", "ETH"},
			{"BEP20", "BSC"},
		},
		Native: natives(nativeCoins, map[string]string{
			"BNB":   "BSC",
			"MATIC": "POLYGON",
		}),
		Lower: true,
	}
}

// MeldTable matches Meld codes such as USDT_TRON and USDC_POLYGON
func MeldTable() *Table {
	return &Table{
		Name:      "meld",
		Separator: "_",
		Suffixes: []Suffix{
			{"TRC20", "TRON"},
			{"ERC20", "ETHEREUM"},
			{"BEP20", "BSC"},
		},
		Native: natives(nativeCoins, map[string]string{
			"ETH": "ETHEREUM",
			"TRX": "TRON",
			"BNB": "BSC",
		}),
	}
}
