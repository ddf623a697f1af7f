package strategy

import "github.com/alejandrodnm/polytrader/internal/domain"

// Filters son los criterios de admisión comunes a todas las estrategias.
// Un valor 0 desactiva el filtro.
type Filters struct {
	MaxSpreadBps  float64 `yaml:"max_spread_bps"`
	MinVolume24h  float64 `yaml:"min_volume_24h"`
	MinLiquidity  float64 `yaml:"min_liquidity"`
	MinConfidence float64 `yaml:"min_confidence"`
}

// Admit devuelve false si el mercado es demasiado fino o ilíquido para evaluar.
func (f Filters) Admit(s domain.MarketSnapshot) bool {
	if f.MaxSpreadBps > 0 {
		if spread, ok := s.QuotedSpread(); ok && spread*10_000 > f.MaxSpreadBps {
			return false
		}
	}
	if f.MinVolume24h > 0 && s.Volume24h != nil && *s.Volume24h < f.MinVolume24h {
		return false
	}
	if f.MinLiquidity > 0 && (s.LiquidityYes != nil || s.LiquidityNo != nil) {
		yesOK := s.LiquidityYes != nil && *s.LiquidityYes >= f.MinLiquidity
		noOK := s.LiquidityNo != nil && *s.LiquidityNo >= f.MinLiquidity
		if !yesOK && !noOK {
			return false
		}
	}
	return true
}
