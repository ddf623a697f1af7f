package polymarket

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// DTOs raw de la API de Polymarket. Solo se usan dentro de este paquete.
// La conversión a domain se hace en mapping.go.

// optFloat acepta número JSON, número entre comillas, "" o null.
// Gamma mezcla los tres formatos según el campo y el mercado.
type optFloat struct {
	V  float64
	OK bool
}

func (f *optFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = optFloat{}
		return nil
	}
	s := strings.Trim(string(b), `"`)
	if s == "" {
		*f = optFloat{}
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		// valor no numérico: se trata como ausente
		*f = optFloat{}
		return nil
	}
	*f = optFloat{V: v, OK: true}
	return nil
}

// ptr devuelve nil si el campo no vino.
func (f optFloat) ptr() *float64 {
	if !f.OK {
		return nil
	}
	v := f.V
	return &v
}

// jsonList es un array JSON serializado dentro de un string
// (outcomes, outcomePrices, clobTokenIds en Gamma).
type jsonList []string

func (l *jsonList) UnmarshalJSON(b []byte) error {
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		// algunos endpoints ya lo mandan como array
		var arr []string
		if err2 := json.Unmarshal(b, &arr); err2 != nil {
			*l = nil
			return nil
		}
		*l = arr
		return nil
	}
	if raw == "" {
		*l = nil
		return nil
	}
	var arr []string
	if err := json.Unmarshal([]byte(raw), &arr); err != nil {
		*l = nil
		return nil
	}
	*l = arr
	return nil
}

// --- Gamma API ---

// gammaMarket es un mercado de GET /markets.
type gammaMarket struct {
	ID                 string       `json:"id"`
	ConditionID        string       `json:"conditionId"`
	Question           string       `json:"question"`
	Slug               string       `json:"slug"`
	Outcomes           jsonList     `json:"outcomes"`
	OutcomePrices      jsonList     `json:"outcomePrices"`
	ClobTokenIDs       jsonList     `json:"clobTokenIds"`
	BestBid            optFloat     `json:"bestBid"`
	BestAsk            optFloat     `json:"bestAsk"`
	Spread             optFloat     `json:"spread"`
	Volume24h          optFloat     `json:"volume24hr"`
	Liquidity          optFloat     `json:"liquidityNum"`
	OneHourPriceChange optFloat     `json:"oneHourPriceChange"`
	OneDayPriceChange  optFloat     `json:"oneDayPriceChange"`
	NegRisk            bool         `json:"negRisk"`
	Active             bool         `json:"active"`
	Closed             bool         `json:"closed"`
	AcceptingOrders    *bool        `json:"acceptingOrders"`
	Events             []gammaEvent `json:"events"`
}

// gammaEvent agrupa mercados correlacionados (p.ej. un neg-risk multi-outcome).
type gammaEvent struct {
	ID string `json:"id"`
}

// --- CLOB API ---

// orderBookRequest es un item del body de POST /books.
type orderBookRequest struct {
	TokenID string `json:"token_id"`
}

// orderBookResponse es un item de la respuesta de POST /books.
type orderBookResponse struct {
	AssetID string         `json:"asset_id"`
	Bids    []bookEntryRaw `json:"bids"`
	Asks    []bookEntryRaw `json:"asks"`
}

// bookEntryRaw viene con strings para no perder precisión.
type bookEntryRaw struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// feeRateResponse es GET /fee-rate. base_fee está en bps.
type feeRateResponse struct {
	BaseFee optFloat `json:"base_fee"`
}

// clobOrderRequest es el body de POST /order.
type clobOrderRequest struct {
	Order     clobOrderBody `json:"order"`
	Owner     string        `json:"owner"`
	OrderType string        `json:"orderType"`
}

type clobOrderBody struct {
	Salt          json.Number `json:"salt"`
	Maker         string      `json:"maker"`
	Signer        string      `json:"signer"`
	Taker         string      `json:"taker"`
	TokenID       string      `json:"tokenId"`
	MakerAmount   string      `json:"makerAmount"`
	TakerAmount   string      `json:"takerAmount"`
	Expiration    string      `json:"expiration"`
	Nonce         string      `json:"nonce"`
	FeeRateBps    string      `json:"feeRateBps"`
	Side          string      `json:"side"`
	SignatureType int         `json:"signatureType"`
	Signature     string      `json:"signature"`
}

type clobOrderResponse struct {
	ErrorMsg     string   `json:"errorMsg"`
	OrderID      string   `json:"orderID"`
	TakingAmount string   `json:"takingAmount"`
	MakingAmount string   `json:"makingAmount"`
	Status       string   `json:"status"`
	Success      bool     `json:"success"`
	TxHashes     []string `json:"transactionsHashes"`
}

// clobOrder es GET /data/order/{id}. Los tamaños vienen en shares decimales.
type clobOrder struct {
	ID           string `json:"id"`
	Status       string `json:"status"`
	Market       string `json:"market"`
	AssetID      string `json:"asset_id"`
	Side         string `json:"side"`
	OriginalSize string `json:"original_size"`
	SizeMatched  string `json:"size_matched"`
	Price        string `json:"price"`
}
