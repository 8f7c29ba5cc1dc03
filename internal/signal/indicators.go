package signal

// indicators.go — cálculo de indicadores sobre series de cierre.
// Todas las funciones devuelven la serie completa alineada con la entrada;
// las posiciones sin suficiente histórico quedan en 0.

// EMA devuelve la media móvil exponencial del periodo dado.
func EMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}

	// Semilla: SMA de los primeros `period` valores
	var sum float64
	for i := 0; i < period; i++ {
		sum += values[i]
	}
	out[period-1] = sum / float64(period)

	k := 2.0 / float64(period+1)
	for i := period; i < len(values); i++ {
		out[i] = values[i]*k + out[i-1]*(1-k)
	}
	return out
}

// RSI devuelve el índice de fuerza relativa (suavizado de Wilder).
func RSI(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) <= period {
		return out
	}

	var gain, loss float64
	for i := 1; i <= period; i++ {
		diff := values[i] - values[i-1]
		if diff > 0 {
			gain += diff
		} else {
			loss -= diff
		}
	}
	avgGain := gain / float64(period)
	avgLoss := loss / float64(period)
	out[period] = rsiFrom(avgGain, avgLoss)

	for i := period + 1; i < len(values); i++ {
		diff := values[i] - values[i-1]
		g, l := 0.0, 0.0
		if diff > 0 {
			g = diff
		} else {
			l = -diff
		}
		avgGain = (avgGain*float64(period-1) + g) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + l) / float64(period)
		out[i] = rsiFrom(avgGain, avgLoss)
	}
	return out
}

func rsiFrom(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// MACD devuelve la línea MACD, la línea de señal y el histograma
// para los periodos fast/slow/signal dados.
func MACD(values []float64, fast, slow, signalPeriod int) (macd, signalLine, hist []float64) {
	macd = make([]float64, len(values))
	emaFast := EMA(values, fast)
	emaSlow := EMA(values, slow)
	for i := range values {
		if emaFast[i] != 0 && emaSlow[i] != 0 {
			macd[i] = emaFast[i] - emaSlow[i]
		}
	}

	// Señal: EMA del MACD a partir del primer valor válido
	start := slow - 1
	if start >= len(values) {
		return macd, make([]float64, len(values)), make([]float64, len(values))
	}
	sig := EMA(macd[start:], signalPeriod)
	signalLine = make([]float64, len(values))
	copy(signalLine[start:], sig)

	hist = make([]float64, len(values))
	for i := start; i < len(values); i++ {
		if signalLine[i] != 0 {
			hist[i] = macd[i] - signalLine[i]
		}
	}
	return macd, signalLine, hist
}

// SMA devuelve la media móvil simple del periodo dado.
func SMA(values []float64, period int) []float64 {
	out := make([]float64, len(values))
	if period <= 0 || len(values) < period {
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		if i >= period {
			sum -= values[i-period]
		}
		if i >= period-1 {
			out[i] = sum / float64(period)
		}
	}
	return out
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}
