package risk

// Sizing sigue la política de "riesgo = coste de la posición": el
// presupuesto de riesgo se divide por el precio de entrada, no por la
// distancia al stop. Es poco convencional (dimensionar por stop haría
// que tocar el stop pierda exactamente el presupuesto), pero es la
// política del producto y el resto del pipeline cuenta con ella.

const fallbackBalance = 100.0

// SizerConfig controla el cálculo de tamaño de posición.
type SizerConfig struct {
	RiskPercent float64
	MinLot      float64
}

// Size calcula el lote para el balance y la entrada dados. Nunca falla:
// cualquier entrada degenerada devuelve el lote mínimo, porque el sistema
// prefiere abrir el tamaño mínimo antes que saltarse una señal por
// "demasiado pequeña".
func Size(cfg SizerConfig, entry, balance float64) float64 {
	if cfg.MinLot <= 0 {
		cfg.MinLot = 0.01
	}
	if balance <= 0 {
		balance = fallbackBalance
	}
	if entry <= 0 || cfg.RiskPercent <= 0 {
		return cfg.MinLot
	}

	riskAmount := balance * cfg.RiskPercent / 100
	lot := round2(riskAmount / entry)
	if lot < cfg.MinLot {
		return cfg.MinLot
	}
	return lot
}
