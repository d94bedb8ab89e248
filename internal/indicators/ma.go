package indicators

// SMA calculates the simple moving average for the last period values.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// EMASeries returns the exponential moving average seeded with the SMA of the
// first period values. out[0] lines up with values[period-1]; nil when there
// is not enough data.
func EMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	k := 2.0 / float64(period+1)
	out := make([]float64, 0, len(values)-period+1)
	prev := SMA(values[:period], period)
	out = append(out, prev)
	for _, v := range values[period:] {
		prev = prev + k*(v-prev)
		out = append(out, prev)
	}
	return out
}

// EMA returns the latest EMA value and false when it cannot be computed.
func EMA(values []float64, period int) (float64, bool) {
	s := EMASeries(values, period)
	if len(s) == 0 {
		return 0, false
	}
	return s[len(s)-1], true
}

// MACD returns the MACD line, its signal line and the histogram. Both EMAs are
// SMA-seeded; the signal is an EMA over the MACD series.
func MACD(values []float64, fast, slow, signal int) (line, sig, hist float64, ok bool) {
	if fast <= 0 || slow <= fast || signal <= 0 {
		return 0, 0, 0, false
	}
	fastS := EMASeries(values, fast)
	slowS := EMASeries(values, slow)
	if len(slowS) == 0 {
		return 0, 0, 0, false
	}
	// fastS starts slow-fast entries earlier than slowS
	offset := slow - fast
	series := make([]float64, len(slowS))
	for i := range slowS {
		series[i] = fastS[i+offset] - slowS[i]
	}
	sigS := EMASeries(series, signal)
	if len(sigS) == 0 {
		return 0, 0, 0, false
	}
	line = series[len(series)-1]
	sig = sigS[len(sigS)-1]
	return line, sig, line - sig, true
}
