package domain

import "time"

// DailySummary agrega las salidas realizadas de un día (UTC).
type DailySummary struct {
	Date        time.Time
	Exits       int
	Wins        int
	Notional    float64
	RealizedPnL float64
	AvgReturn   float64
}

// WinRate es wins/exits; 0 sin salidas.
func (d DailySummary) WinRate() float64 {
	if d.Exits == 0 {
		return 0
	}
	return float64(d.Wins) / float64(d.Exits)
}
