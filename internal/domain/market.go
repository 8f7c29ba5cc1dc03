package domain

import (
	"strings"
	"time"
)

// Timeframe identifica la resolución de las velas OHLCV.
type Timeframe string

const (
	TFM1  Timeframe = "M1"
	TFM5  Timeframe = "M5"
	TFM15 Timeframe = "M15"
	TFM30 Timeframe = "M30"
	TFH1  Timeframe = "H1"
	TFH4  Timeframe = "H4"
	TFD1  Timeframe = "D1"
)

// Candle es una vela OHLCV.
type Candle struct {
	Time   time.Time
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// MarketSnapshot es la foto del mercado para un símbolo en un ciclo de análisis.
// Inmutable: se crea por ciclo y se descarta después.
type MarketSnapshot struct {
	Symbol       string
	CurrentPrice float64
	Bars         map[Timeframe][]Candle
	FetchedAt    time.Time
}

// BarsFor devuelve las velas del timeframe dado, o nil si no se obtuvieron.
func (m MarketSnapshot) BarsFor(tf Timeframe) []Candle {
	return m.Bars[tf]
}

// --- convenciones por símbolo ---
//
// Las convenciones direccionales (pip, contrato, techo de movimiento) se
// derivan por pattern-matching sobre el string del símbolo. Frágil pero
// funcional: es la tabla de convenciones que usa todo el sistema.

// IsJPYQuoted indica si el símbolo cotiza en yenes (pips de 2 decimales).
func IsJPYQuoted(symbol string) bool {
	return strings.Contains(strings.ToUpper(symbol), "JPY")
}

// IsCryptoLike indica si el símbolo es cripto (pares -USD o USDT).
func IsCryptoLike(symbol string) bool {
	s := strings.ToUpper(symbol)
	return strings.Contains(s, "-USD") || strings.Contains(s, "USDT")
}

// IsForex indica si el símbolo es un par de divisas (sufijo =X).
func IsForex(symbol string) bool {
	return strings.HasSuffix(strings.ToUpper(symbol), "=X")
}

// IsFuture indica si el símbolo es un futuro (sufijo =F).
func IsFuture(symbol string) bool {
	return strings.HasSuffix(strings.ToUpper(symbol), "=F")
}

// PipScale devuelve el multiplicador precio→pips para el símbolo:
// 100 para pares JPY, 10000 para el resto.
func PipScale(symbol string) float64 {
	if IsJPYQuoted(symbol) {
		return 100
	}
	return 10000
}

// ContractSize devuelve el tamaño de contrato por lote. La política del
// producto es lote unitario (1 lote = 1 unidad del instrumento) para
// todas las clases: el dimensionado por coste de entrada y el balance
// virtual de 100 cuentan con ello. Centralizado aquí para que una
// calibración futura a lotes estándar toque un solo sitio.
func ContractSize(symbol string) float64 {
	return 1
}

// MaxMovePct devuelve el techo de movimiento plausible para niveles SL/TP:
// 30% para cripto, 5% para el resto. Niveles más allá son alucinaciones.
func MaxMovePct(symbol string) float64 {
	if IsCryptoLike(symbol) {
		return 0.30
	}
	return 0.05
}
