package risk

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// Offsets por defecto cuando el modelo no da niveles o los da del lado
// equivocado: 1% adverso para el stop, 1.5% favorable para el target.
const (
	defaultStopPct = 0.01
	defaultTakePct = 0.015
)

// Config controla los umbrales del validador.
type Config struct {
	MinRiskReward float64
	RiskRewardCap float64
}

// DefaultConfig devuelve los umbrales estándar.
func DefaultConfig() Config {
	return Config{MinRiskReward: 1.5, RiskRewardCap: 10.0}
}

// Result es el veredicto del validador, con los niveles ya corregidos.
type Result struct {
	Valid      bool
	Reason     string
	RiskReward float64
	StopLoss   float64
	TakeProfit float64
}

// Validator sanea los niveles propuestos por el modelo de juicio y
// calcula el risk/reward final. Es autocurativo por diseño: los niveles
// imposibles se corrigen en vez de rechazarse, y solo un ratio final por
// debajo del mínimo invalida el trade. Función pura e idempotente: con
// los niveles ya corregidos de una pasada, una segunda pasada devuelve
// exactamente lo mismo.
type Validator struct {
	cfg Config
}

// NewValidator crea el validador con la configuración dada.
func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate corrige stop/target para el símbolo y decide si el trade es
// aceptable.
func (v *Validator) Validate(symbol string, verdict domain.Verdict, entry, stopLoss, takeProfit float64) Result {
	if !verdict.IsTrade() {
		return Result{Reason: "no trade decision"}
	}
	if entry <= 0 {
		return Result{Reason: "entry price 0.0 — cannot price the trade"}
	}

	sl, tp := stopLoss, takeProfit
	buy := verdict == domain.VerdictBuy

	// Niveles ausentes: sintetizar offsets por defecto
	if sl == 0 {
		sl = adverse(entry, buy, defaultStopPct)
	}
	if tp == 0 {
		tp = favorable(entry, buy, defaultTakePct)
	}

	// Lado equivocado: corregir con el offset por defecto
	if buy {
		if sl >= entry {
			sl = entry * (1 - defaultStopPct)
		}
		if tp <= entry {
			tp = entry * (1 + defaultTakePct)
		}
	} else {
		if sl <= entry {
			sl = entry * (1 + defaultStopPct)
		}
		if tp >= entry {
			tp = entry * (1 - defaultTakePct)
		}
	}

	// Techo de movimiento plausible: un nivel más allá es una alucinación
	// del modelo, no una opinión de mercado
	maxMove := domain.MaxMovePct(symbol)
	if math.Abs(entry-sl)/entry > maxMove {
		if buy {
			sl = entry * 0.98
		} else {
			sl = entry * 1.02
		}
	}
	if math.Abs(tp-entry)/entry > maxMove {
		dist := 2 * math.Abs(entry-sl)
		if buy {
			tp = entry + dist
		} else {
			tp = entry - dist
		}
	}

	rr := math.Abs(tp-entry) / math.Abs(entry-sl)
	if rr > v.cfg.RiskRewardCap {
		rr = v.cfg.RiskRewardCap
	}
	rr = round2(rr)

	res := Result{RiskReward: rr, StopLoss: sl, TakeProfit: tp}
	if rr < v.cfg.MinRiskReward {
		res.Reason = fmt.Sprintf("risk/reward %.2f below minimum %.2f", rr, v.cfg.MinRiskReward)
		return res
	}
	res.Valid = true
	res.Reason = fmt.Sprintf("risk/reward %.2f", rr)
	return res
}

func adverse(entry float64, buy bool, pct float64) float64 {
	if buy {
		return entry * (1 - pct)
	}
	return entry * (1 + pct)
}

func favorable(entry float64, buy bool, pct float64) float64 {
	if buy {
		return entry * (1 + pct)
	}
	return entry * (1 - pct)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
