package indicators

// Periods configures the indicator basket used by the technical scorer.
type Periods struct {
	RSI        int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	StochK     int
	StochD     int
	ADX        int
	ROC        int
}

func DefaultPeriods() Periods {
	return Periods{RSI: 14, MACDFast: 12, MACDSlow: 26, MACDSignal: 9, StochK: 14, StochD: 3, ADX: 14, ROC: 10}
}

// Readings holds the latest value of each indicator. The *OK flags are false
// when the series was too short for that indicator.
type Readings struct {
	RSI        float64 `json:"rsi"`
	RSIOK      bool    `json:"rsi_ok"`
	MACD       float64 `json:"macd"`
	MACDSignal float64 `json:"macd_signal"`
	MACDOK     bool    `json:"macd_ok"`
	StochK     float64 `json:"stoch_k"`
	StochD     float64 `json:"stoch_d"`
	StochOK    bool    `json:"stoch_ok"`
	ADX        float64 `json:"adx"`
	ADXOK      bool    `json:"adx_ok"`
	ROC        float64 `json:"roc"`
	ROCOK      bool    `json:"roc_ok"`
}

// Compute evaluates every indicator in p over the given series.
func Compute(high, low, close []float64, p Periods) Readings {
	var r Readings
	r.RSI, r.RSIOK = RSI(close, p.RSI)
	r.MACD, r.MACDSignal, _, r.MACDOK = MACD(close, p.MACDFast, p.MACDSlow, p.MACDSignal)
	r.StochK, r.StochD, r.StochOK = Stochastic(high, low, close, p.StochK, p.StochD)
	r.ADX, r.ADXOK = ADX(high, low, close, p.ADX)
	r.ROC, r.ROCOK = ROC(close, p.ROC)
	return r
}
