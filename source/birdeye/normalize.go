package birdeye

import (
	"time"

	"tokenflow/models"
)

type listResponse struct {
	Success bool `json:"success"`
	Data    struct {
		UpdateUnixTime int64  `json:"updateUnixTime"`
		Tokens         []item `json:"tokens"`
	} `json:"data"`
}

// item mirrors one Birdeye token list entry. lastTradeUnixTime is epoch
// seconds, unlike the millisecond timestamps other providers use.
type item struct {
	Address           string  `json:"address"`
	Symbol            string  `json:"symbol"`
	Name              string  `json:"name"`
	Decimals          int     `json:"decimals"`
	Price             float64 `json:"price"`
	MC                float64 `json:"mc"`
	Liquidity         float64 `json:"liquidity"`
	V24hUSD           float64 `json:"v24hUSD"`
	Trade24h          int     `json:"trade24h"`
	Holder            int     `json:"holder"`
	LogoURI           string  `json:"logoURI"`
	LastTradeUnixTime int64   `json:"lastTradeUnixTime"`
}

// normalizeItem converts one Birdeye entry into the canonical token, or nil
// when identity fields are missing. Birdeye does not report a launch time,
// so CreatedAt stays zero and fills in from other sources during the merge.
func normalizeItem(it *item) *models.Token {
	if it == nil || it.Address == "" || it.Symbol == "" {
		return nil
	}

	tok := &models.Token{
		Address:          it.Address,
		Symbol:           it.Symbol,
		Name:             it.Name,
		PriceUsd:         it.Price,
		MarketCapUsd:     it.MC,
		LiquidityUsd:     it.Liquidity,
		Volume24hUsd:     it.V24hUSD,
		HolderCount:      it.Holder,
		TransactionCount: it.Trade24h,
		LogoURL:          it.LogoURI,
		Source:           models.SourceBirdeye,
	}

	if it.LastTradeUnixTime > 0 {
		tok.ObservedAt = time.Unix(it.LastTradeUnixTime, 0).UTC()
	} else {
		tok.ObservedAt = time.Now().UTC()
	}

	return tok
}
