package wrgate

import "math"

// z for a 95% two-sided interval.
const z95 = 1.959963984540054

// WilsonLower95 returns the lower bound of the 95% Wilson score interval
// for a win rate, in percent. Metadata providers use it when the upstream
// snapshot carries only wins and trade counts.
func WilsonLower95(wins, trades int) float64 {
	if trades <= 0 || wins < 0 {
		return 0
	}
	if wins > trades {
		wins = trades
	}
	n := float64(trades)
	p := float64(wins) / n
	z2 := z95 * z95
	denom := 1 + z2/n
	center := p + z2/(2*n)
	margin := z95 * math.Sqrt(p*(1-p)/n+z2/(4*n*n))
	lower := (center - margin) / denom
	if lower < 0 {
		lower = 0
	}
	return lower * 100
}
