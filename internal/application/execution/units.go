package execution

import (
	"github.com/shopspring/decimal"
)

// Venue precision: shares a 2 decimales, precio al tick de 0.001.
const (
	shareDecimals = 2
	priceDecimals = 3
)

// venueAmounts es una orden expresada en la precisión que acepta el CLOB.
type venueAmounts struct {
	Price  float64
	Shares float64
	Lossy  bool // true si truncar/redondear cambió algún valor
}

// toVenueUnits trunca las shares y redondea el precio al tick. Las shares
// nunca se redondean hacia arriba para no pedir más de lo que cubre el notional.
func toVenueUnits(price, shares float64) venueAmounts {
	p := decimal.NewFromFloat(price)
	s := decimal.NewFromFloat(shares)
	rp := p.Round(priceDecimals)
	ts := s.Truncate(shareDecimals)

	outP, _ := rp.Float64()
	outS, _ := ts.Float64()
	return venueAmounts{
		Price:  outP,
		Shares: outS,
		Lossy:  !rp.Equal(p) || !ts.Equal(s),
	}
}
