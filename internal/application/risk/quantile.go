package risk

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mathext"
	"gonum.org/v1/gonum/stat"
)

var errDegenerate = errors.New("degenerate quantile estimate")

// harrellDavis estima el cuantil p de sorted (ascendente) ponderando todos los
// order statistics con la masa que Beta(p(n+1), (1-p)(n+1)) asigna a cada
// intervalo [(i-1)/n, i/n].
func harrellDavis(sorted []float64, p float64) (est float64, err error) {
	n := len(sorted)
	if n == 0 {
		return 0, errDegenerate
	}
	defer func() {
		// mathext entra en pánico con parámetros fuera de dominio
		if r := recover(); r != nil {
			est, err = 0, fmt.Errorf("harrell-davis: %v", r)
		}
	}()
	a := p * float64(n+1)
	b := (1 - p) * float64(n+1)
	prev := 0.0
	for i := 1; i <= n; i++ {
		cdf := mathext.RegIncBeta(a, b, float64(i)/float64(n))
		est += (cdf - prev) * sorted[i-1]
		prev = cdf
	}
	if math.IsNaN(est) || math.IsInf(est, 0) {
		return 0, errDegenerate
	}
	return est, nil
}

// percentile es el fallback: interpolación lineal sobre la muestra ordenada.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	return stat.Quantile(p, stat.LinInterp, sorted, nil)
}

// quantile usa Harrell-Davis y cae a percentile si falla.
func quantile(sorted []float64, p float64) (float64, string) {
	if v, err := harrellDavis(sorted, p); err == nil {
		return v, MethodHarrellDavis
	}
	return percentile(sorted, p), MethodPercentile
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// clean toma los últimos lookback retornos finitos, quita outliers por MAD y
// recorta las colas. Devuelve la muestra ordenada.
func clean(returns []float64, lookback int) (sample []float64, outliers int, trimmed bool) {
	if lookback > 0 && len(returns) > lookback {
		returns = returns[len(returns)-lookback:]
	}
	sample = make([]float64, 0, len(returns))
	for _, r := range returns {
		if !math.IsNaN(r) && !math.IsInf(r, 0) {
			sample = append(sample, r)
		}
	}
	sort.Float64s(sample)
	if len(sample) == 0 {
		return sample, 0, false
	}

	med := median(sample)
	dev := make([]float64, len(sample))
	for i, r := range sample {
		dev[i] = math.Abs(r - med)
	}
	sort.Float64s(dev)
	mad := median(dev)
	if mad > 0 {
		kept := make([]float64, 0, len(sample))
		for _, r := range sample {
			if math.Abs(r-med) <= outlierMADs*mad {
				kept = append(kept, r)
			}
		}
		if len(kept) >= minSample {
			outliers = len(sample) - len(kept)
			sample = kept
		}
	}

	k := int(math.Floor(trimFraction * float64(len(sample))))
	if k > 0 && len(sample)-2*k >= minSample {
		sample = sample[k : len(sample)-k]
		trimmed = true
	}
	return sample, outliers, trimmed
}
