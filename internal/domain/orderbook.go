package domain

// OrderBook representa el libro de órdenes de un token.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64 // shares
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// AskSharesWithin devuelve las shares ofrecidas hasta bestAsk+slippage.
// Es la liquidez disponible para comprar el token sin barrer el book.
func (ob OrderBook) AskSharesWithin(slippage float64) float64 {
	best := ob.BestAsk()
	if best == 0 {
		return 0
	}
	var total float64
	for _, a := range ob.Asks {
		if a.Price-best > slippage {
			break
		}
		total += a.Size
	}
	return total
}
