package indicators

import "math"

// Stochastic returns %K over kPeriod and %D as the SMA of the last dPeriod %K
// values. A window with no range reads 50.
func Stochastic(high, low, close []float64, kPeriod, dPeriod int) (k, d float64, ok bool) {
	n := len(close)
	if kPeriod <= 0 || dPeriod <= 0 || len(high) != n || len(low) != n || n < kPeriod+dPeriod-1 {
		return 0, 0, false
	}
	ks := make([]float64, 0, dPeriod)
	for end := n - dPeriod + 1; end <= n; end++ {
		ks = append(ks, percentK(high[end-kPeriod:end], low[end-kPeriod:end], close[end-1]))
	}
	return ks[len(ks)-1], SMA(ks, dPeriod), true
}

func percentK(high, low []float64, last float64) float64 {
	hh, ll := high[0], low[0]
	for i := range high {
		hh = math.Max(hh, high[i])
		ll = math.Min(ll, low[i])
	}
	if hh == ll {
		return 50
	}
	return (last - ll) / (hh - ll) * 100
}

// ADX computes the Average Directional Index with Wilder smoothing. It needs
// at least 2*period candles.
func ADX(high, low, close []float64, period int) (float64, bool) {
	n := len(close)
	if period <= 0 || len(high) != n || len(low) != n || n < 2*period {
		return 0, false
	}

	var smTR, smPlus, smMinus float64
	p := float64(period)
	var adx float64
	dxCount := 0

	for i := 1; i < n; i++ {
		up := high[i] - high[i-1]
		down := low[i-1] - low[i]
		plusDM, minusDM := 0.0, 0.0
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}
		tr := math.Max(high[i]-low[i], math.Max(math.Abs(high[i]-close[i-1]), math.Abs(low[i]-close[i-1])))

		if i <= period {
			smTR += tr
			smPlus += plusDM
			smMinus += minusDM
			if i < period {
				continue
			}
		} else {
			smTR = smTR - smTR/p + tr
			smPlus = smPlus - smPlus/p + plusDM
			smMinus = smMinus - smMinus/p + minusDM
		}

		dx := directionalIndex(smPlus, smMinus, smTR)
		dxCount++
		switch {
		case dxCount < period:
			adx += dx
		case dxCount == period:
			adx = (adx + dx) / p
		default:
			adx = (adx*(p-1) + dx) / p
		}
	}
	if dxCount < period {
		return 0, false
	}
	return adx, true
}

func directionalIndex(plusDM, minusDM, tr float64) float64 {
	if tr == 0 {
		return 0
	}
	plusDI := 100 * plusDM / tr
	minusDI := 100 * minusDM / tr
	if plusDI+minusDI == 0 {
		return 0
	}
	return 100 * math.Abs(plusDI-minusDI) / (plusDI + minusDI)
}

// ROC is the percent rate of change against the value period bars back.
func ROC(values []float64, period int) (float64, bool) {
	n := len(values)
	if period <= 0 || n <= period {
		return 0, false
	}
	ref := values[n-1-period]
	if ref == 0 {
		return 0, false
	}
	return (values[n-1] - ref) / ref * 100, true
}
