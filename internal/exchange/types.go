package exchange

import "encoding/json"

// Wire side codes used by the venue.
const (
	SideCodeOpenLong  = 1
	SideCodeOpenShort = 2
)

// Order types on the wire.
const (
	OrderTypeLimit  = 0
	OrderTypeMarket = 1
)

// successCode is the venue's application-level OK. The HTTP layer can
// return 200 with any other code; those are still rejections.
const successCode = 1000

// apiEnvelope wraps every REST response body.
type apiEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// Instrument describes the contract spec needed for sizing and quantization.
type Instrument struct {
	Symbol          string  `json:"symbol"`
	ContractSize    float64 `json:"contract_size,string"`
	TickSize        float64 `json:"tick_size,string"`
	QtyStep         float64 `json:"qty_step,string"`
	MinVolume       int     `json:"min_volume"`
	MaxVolume       int     `json:"max_volume"`
	MarketMaxVolume int     `json:"market_max_volume"`
	LeverageCap     int     `json:"leverage_cap"`
}

// Position is the venue's view of an open position.
type Position struct {
	Symbol     string  `json:"symbol"`
	Side       int     `json:"side"`
	Size       float64 `json:"size,string"`
	EntryPrice float64 `json:"entry_price,string"`
	Leverage   int     `json:"leverage"`
}

// OpenOrder is a resting order on the venue.
type OpenOrder struct {
	Symbol        string  `json:"symbol"`
	OrderID       string  `json:"order_id"`
	ClientOrderID string  `json:"client_oid"`
	Side          int     `json:"side"`
	Price         float64 `json:"price,string"`
	Size          int     `json:"size"`
}

// OrderRequest is the submit payload. Prices travel as strings already
// quantized to the instrument's tick.
type OrderRequest struct {
	Symbol                string `json:"symbol"`
	ClientOrderID         string `json:"client_oid"`
	Side                  int    `json:"side"`
	Type                  int    `json:"type"`
	Size                  int    `json:"size"`
	Price                 string `json:"price,omitempty"`
	Leverage              int    `json:"leverage,omitempty"`
	PresetTakeProfitPrice string `json:"preset_take_profit_price,omitempty"`
	PresetStopLossPrice   string `json:"preset_stop_loss_price,omitempty"`
	ReduceOnly            bool   `json:"reduce_only,omitempty"`
	OCO                   bool   `json:"oco,omitempty"`
}

// OrderAck is the data portion of a successful submit.
type OrderAck struct {
	OrderID       string `json:"order_id"`
	ClientOrderID string `json:"client_oid"`
}

type wireKline struct {
	Ts     int64  `json:"ts"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
	Closed bool   `json:"closed"`
}

type wireTicker struct {
	Symbol    string `json:"symbol"`
	MarkPrice string `json:"mark_price"`
	LastPrice string `json:"last_price"`
}
