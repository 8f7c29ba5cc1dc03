package risk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/sniperbot/internal/domain"
	"github.com/alejandrodnm/sniperbot/internal/risk"
)

func newValidator() *risk.Validator {
	return risk.NewValidator(risk.DefaultConfig())
}

func TestValidatePassVerdictNeverTrades(t *testing.T) {
	v := newValidator()

	res := v.Validate("EURUSD=X", domain.VerdictPass, 1.0854, 1.07, 1.10)
	assert.False(t, res.Valid)
	assert.Equal(t, "no trade decision", res.Reason)
}

func TestValidateRejectsZeroEntry(t *testing.T) {
	v := newValidator()

	res := v.Validate("EURUSD=X", domain.VerdictBuy, 0, 1.07, 1.10)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Reason, "entry price")
}

func TestValidateSynthesizesMissingLevels(t *testing.T) {
	v := newValidator()

	res := v.Validate("EURUSD=X", domain.VerdictBuy, 100, 0, 0)
	require.True(t, res.Valid)

	assert.InDelta(t, 99.0, res.StopLoss, 1e-9)
	assert.InDelta(t, 101.5, res.TakeProfit, 1e-9)
	assert.InDelta(t, 1.5, res.RiskReward, 1e-9)
}

func TestValidateSynthesizesMissingLevelsSell(t *testing.T) {
	v := newValidator()

	res := v.Validate("USDJPY=X", domain.VerdictSell, 100, 0, 0)
	require.True(t, res.Valid)

	assert.InDelta(t, 101.0, res.StopLoss, 1e-9)
	assert.InDelta(t, 98.5, res.TakeProfit, 1e-9)
	assert.InDelta(t, 1.5, res.RiskReward, 1e-9)
}

func TestValidateCorrectsWrongSideLevels(t *testing.T) {
	v := newValidator()

	// BUY con el stop por encima y el target por debajo de la entrada:
	// el modelo confundió los lados, se corrigen con los offsets default.
	res := v.Validate("EURUSD=X", domain.VerdictBuy, 100, 105, 95)
	require.True(t, res.Valid)

	assert.InDelta(t, 99.0, res.StopLoss, 1e-9)
	assert.InDelta(t, 101.5, res.TakeProfit, 1e-9)
}

func TestValidateClampsImplausibleLevels(t *testing.T) {
	v := newValidator()

	// Stop a mitad de precio y target al doble: alucinación del modelo.
	res := v.Validate("EURUSD=X", domain.VerdictBuy, 100, 50, 200)
	require.True(t, res.Valid)

	assert.InDelta(t, 98.0, res.StopLoss, 1e-9)
	assert.InDelta(t, 104.0, res.TakeProfit, 1e-9)
	assert.InDelta(t, 2.0, res.RiskReward, 1e-9)
}

func TestValidateCryptoAllowsWiderMoves(t *testing.T) {
	v := newValidator()

	// Un 10% de distancia al stop es plausible en cripto, no en FX.
	res := v.Validate("BTC-USD", domain.VerdictBuy, 100, 90, 120)
	require.True(t, res.Valid)
	assert.InDelta(t, 90.0, res.StopLoss, 1e-9)
	assert.InDelta(t, 2.0, res.RiskReward, 1e-9)

	fx := v.Validate("EURUSD=X", domain.VerdictBuy, 100, 90, 103)
	assert.InDelta(t, 98.0, fx.StopLoss, 1e-9)
}

func TestValidateCapsRiskReward(t *testing.T) {
	v := newValidator()

	// Stop casi pegado a la entrada: el ratio bruto sería 12.
	res := v.Validate("EURUSD=X", domain.VerdictBuy, 100, 99.6, 104.8)
	require.True(t, res.Valid)
	assert.InDelta(t, 10.0, res.RiskReward, 1e-9)
}

func TestValidateRejectsLowRiskReward(t *testing.T) {
	v := newValidator()

	res := v.Validate("EURUSD=X", domain.VerdictBuy, 100, 98, 101)
	assert.False(t, res.Valid)
	assert.Contains(t, res.Reason, "below minimum")
	assert.InDelta(t, 0.5, res.RiskReward, 1e-9)
}

// Los niveles ya corregidos de una validación tienen que sobrevivir una
// segunda pasada sin cambios.
func TestValidateIdempotent(t *testing.T) {
	v := newValidator()

	cases := []struct {
		name    string
		verdict domain.Verdict
		entry   float64
		sl, tp  float64
	}{
		{"buy wrong side", domain.VerdictBuy, 100, 150, 90},
		{"sell wrong side", domain.VerdictSell, 100, 50, 120},
		{"buy hallucinated", domain.VerdictBuy, 100, 50, 200},
		{"missing levels", domain.VerdictBuy, 1.0854, 0, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			first := v.Validate("EURUSD=X", tc.verdict, tc.entry, tc.sl, tc.tp)
			second := v.Validate("EURUSD=X", tc.verdict, tc.entry, first.StopLoss, first.TakeProfit)

			assert.Equal(t, first.Valid, second.Valid)
			assert.InDelta(t, first.StopLoss, second.StopLoss, 1e-9)
			assert.InDelta(t, first.TakeProfit, second.TakeProfit, 1e-9)
			assert.InDelta(t, first.RiskReward, second.RiskReward, 1e-9)
		})
	}
}

func TestSizeRiskBudgetOverEntry(t *testing.T) {
	cfg := risk.SizerConfig{RiskPercent: 10, MinLot: 0.01}

	// 10% de 100 = 10 de presupuesto; entre 1.0854 son 9.21 lotes.
	assert.InDelta(t, 9.21, risk.Size(cfg, 1.0854, 100), 1e-9)

	// Entrada cara: el lote calculado cae por debajo del mínimo.
	assert.InDelta(t, 0.01, risk.Size(cfg, 1950.0, 100), 1e-9)
}

func TestSizeNeverFails(t *testing.T) {
	cfg := risk.SizerConfig{RiskPercent: 10, MinLot: 0.01}

	assert.InDelta(t, 0.01, risk.Size(cfg, 0, 100), 1e-9)
	assert.InDelta(t, 0.01, risk.Size(cfg, -5, 100), 1e-9)

	// Balance degenerado usa el fallback de 100.
	assert.InDelta(t, 9.21, risk.Size(cfg, 1.0854, 0), 1e-9)

	// Sin presupuesto de riesgo, lote mínimo.
	assert.InDelta(t, 0.01, risk.Size(risk.SizerConfig{MinLot: 0.01}, 1.0854, 100), 1e-9)
}
