package judge

// parser.go — recuperación de decisiones desde texto de modelo poco fiable.
//
// El modelo local responde texto libre: bloques <think>, JSON truncado por
// el límite de tokens, keys en turco o inglés, números entre comillas,
// JSON anidado dentro de un string (DeepSeek). La estrategia es por capas:
//   1. quitar los bloques de razonamiento,
//   2. parseo estricto del mayor bloque entre llaves,
//   3. auto-cierre progresivo para recuperar objetos truncados,
//   4. extracción campo a campo por regex como último recurso.
// Un campo irrecuperable recibe su default (0 / PASS), nunca aborta el
// registro completo: información parcial vale más que un fallo total en
// un pipeline que reintenta con confianza baja de todas formas.

import (
	"encoding/json"
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// ErrNoDecision indica que no se pudo localizar ningún campo de decisión
// en la respuesta. Es el único caso en que Parse devuelve nil.
var ErrNoDecision = errors.New("judge.Parse: no decision field in response")

const reasoningPlaceholder = "model provided no reasoning"

var thinkRe = regexp.MustCompile(`(?s)<think>.*?</think>`)

// keyAliases mapea cada key aceptada (turco o inglés, con las variantes
// con errata vistas en producción) a su nombre canónico.
var keyAliases = map[string]string{
	"karar": "decision", "decision": "decision", "action": "decision",
	"guven": "confidence", "güven": "confidence", "confidence": "confidence",
	"giris_fiyati": "entry", "giriş_fiyatı": "entry", "iris_fiyati": "entry",
	"entry_price": "entry", "entry": "entry",
	"zarar_kes": "stop_loss", "stop_loss": "stop_loss", "sl": "stop_loss",
	"kar_al": "take_profit", "take_profit": "take_profit", "tp": "take_profit",
	"risk_odul_orani": "risk_reward", "risk_reward_ratio": "risk_reward", "risk_reward": "risk_reward",
	"risk_skoru": "risk_score", "risk_score": "risk_score",
	"analiz_vadesi": "timeframe", "timeframe": "timeframe",
	"beklenen_sure": "duration", "expected_duration": "duration",
	"neden": "reasoning", "gerekce": "reasoning", "gerekçe": "reasoning",
	"reasoning": "reasoning", "reason": "reasoning",
}

// Sufijos de auto-cierre, del más simple al más agresivo. Cubren cortes
// dentro de un string, de un array y de objetos anidados.
var closers = []string{`}`, `"}`, `"]}`, `]}`, `}}`, `"}}`, `0}`}

const numberPat = `"?\s*[:=]\s*"?\s*([-+]?\d+(?:[.,]\d+)?)`

var (
	decisionRe   = regexp.MustCompile(`(?i)"?(?:karar|decision|action)"?\s*[:=]\s*"?\s*([A-Za-zÇĞİÖŞÜçğıöşü]+)`)
	confidenceRe = regexp.MustCompile(`(?i)"?(?:guven|güven|confidence)"?\s*[:=]\s*"?\s*(\d{1,3})`)
	entryRe      = regexp.MustCompile(`(?i)"?(?:giris_fiyati|giriş_fiyatı|iris_fiyati|entry_price|entry)` + numberPat)
	stopRe       = regexp.MustCompile(`(?i)"?(?:zarar_kes|stop_loss)` + numberPat)
	takeRe       = regexp.MustCompile(`(?i)"?(?:kar_al|take_profit)` + numberPat)
	rrRe         = regexp.MustCompile(`(?i)"?(?:risk_odul_orani|risk_reward_ratio|risk_reward)` + numberPat)
	riskScoreRe  = regexp.MustCompile(`(?i)"?(?:risk_skoru|risk_score)` + numberPat)
	timeframeRe  = regexp.MustCompile(`(?i)"?(?:analiz_vadesi|timeframe)"?\s*[:=]\s*"?\s*([A-Za-z0-9]+)`)
	durationRe   = regexp.MustCompile(`(?i)"(?:beklenen_sure|expected_duration)"\s*:\s*"([^"]*)`)
	reasoningRe  = regexp.MustCompile(`(?i)"(?:neden|gerekce|gerekçe|reasoning|reason)"\s*:\s*"([^"]*)`)
)

// Parse recupera una Decision estructurada del texto crudo del modelo.
// Devuelve (nil, ErrNoDecision) solo si no localiza ningún campo de
// decisión; cualquier otra respuesta produce una Decision con defaults
// seguros en los campos irrecuperables.
func Parse(raw string) (*domain.Decision, error) {
	text := stripThink(raw)
	if strings.TrimSpace(text) == "" {
		return nil, ErrNoDecision
	}

	fields := extractObject(text)
	if fields == nil && !strings.Contains(text, "{") && !decisionRe.MatchString(text) {
		// Ni objeto estructurado (aunque sea truncado) ni campo de
		// decisión suelto: no hay nada que recuperar.
		return nil, ErrNoDecision
	}

	vals := canonicalize(fields)
	fillFromText(vals, text)

	d := &domain.Decision{
		Verdict:          normalizeVerdict(asString(vals["decision"])),
		Confidence:       clampInt(asInt(vals["confidence"]), 0, 100),
		EntryPrice:       asFloat(vals["entry"]),
		StopLoss:         asFloat(vals["stop_loss"]),
		TakeProfit:       asFloat(vals["take_profit"]),
		RiskReward:       asFloat(vals["risk_reward"]),
		RiskScore:        clampInt(asInt(vals["risk_score"]), 0, 10),
		Timeframe:        asString(vals["timeframe"]),
		ExpectedDuration: asString(vals["duration"]),
		Reasoning:        asString(vals["reasoning"]),
	}
	if d.Reasoning == "" {
		d.Reasoning = reasoningPlaceholder
	}
	return d, nil
}

// stripThink elimina los bloques <think>...</think>. Un <think> sin
// cerrar (respuesta cortada dentro del razonamiento) descarta todo lo
// que le sigue.
func stripThink(raw string) string {
	text := thinkRe.ReplaceAllString(raw, "")
	if i := strings.Index(text, "<think>"); i >= 0 {
		text = text[:i]
	}
	return text
}

// extractObject intenta parsear el mayor bloque entre llaves del texto.
// Si el parseo estricto falla, prueba auto-cierre progresivo y, sobre el
// resultado, recuperación de JSON anidado en un string.
func extractObject(text string) map[string]any {
	start := strings.Index(text, "{")
	if start < 0 {
		return nil
	}

	candidates := []string{}
	if end := strings.LastIndex(text, "}"); end > start {
		candidates = append(candidates, text[start:end+1])
	}
	tail := text[start:]
	for _, c := range closers {
		candidates = append(candidates, tail+c)
	}
	// Corte dentro de un par key/value: retroceder hasta la última coma
	// y cerrar ahí.
	if i := strings.LastIndex(tail, ","); i > 0 {
		for _, c := range closers {
			candidates = append(candidates, tail[:i]+c)
		}
	}

	for _, cand := range candidates {
		var m map[string]any
		if err := json.Unmarshal([]byte(cand), &m); err == nil {
			return unwrapNested(m)
		}
	}
	return nil
}

// unwrapNested resuelve el caso DeepSeek: el objeto externo tiene un solo
// string que a su vez contiene el JSON real.
func unwrapNested(m map[string]any) map[string]any {
	if hasDecisionKey(m) {
		return m
	}
	for _, v := range m {
		s, ok := v.(string)
		if !ok || !strings.Contains(s, "{") {
			continue
		}
		if inner := extractObject(s); inner != nil && hasDecisionKey(inner) {
			return inner
		}
	}
	return m
}

func hasDecisionKey(m map[string]any) bool {
	for k := range m {
		if keyAliases[normKey(k)] == "decision" {
			return true
		}
	}
	return false
}

// canonicalize traduce las keys del objeto a nombres canónicos.
func canonicalize(m map[string]any) map[string]any {
	vals := make(map[string]any, len(m))
	for k, v := range m {
		if canon, ok := keyAliases[normKey(k)]; ok {
			vals[canon] = v
		}
	}
	return vals
}

func normKey(k string) string {
	return strings.ToLower(strings.TrimSpace(k))
}

// fillFromText completa por regex los campos que el parseo estructural
// no consiguió, extrayendo cada uno de forma independiente del texto.
func fillFromText(vals map[string]any, text string) {
	type pattern struct {
		key string
		re  *regexp.Regexp
	}
	for _, p := range []pattern{
		{"decision", decisionRe},
		{"confidence", confidenceRe},
		{"entry", entryRe},
		{"stop_loss", stopRe},
		{"take_profit", takeRe},
		{"risk_reward", rrRe},
		{"risk_score", riskScoreRe},
		{"timeframe", timeframeRe},
		{"duration", durationRe},
		{"reasoning", reasoningRe},
	} {
		if _, ok := vals[p.key]; ok {
			continue
		}
		if m := p.re.FindStringSubmatch(text); m != nil {
			vals[p.key] = m[1]
		}
	}
}

// normalizeVerdict mapea el token de decisión a BUY/SELL/PASS por
// substring contra los sinónimos conocidos en turco e inglés. Todo lo
// no reconocido es PASS: el parser falla cerrado.
func normalizeVerdict(token string) domain.Verdict {
	up := strings.ToUpper(strings.TrimSpace(token))
	switch {
	case strings.Contains(up, "AL") || strings.Contains(up, "BUY") || strings.Contains(up, "LONG"):
		return domain.VerdictBuy
	case strings.Contains(up, "SAT") || strings.Contains(up, "SELL") || strings.Contains(up, "SHORT"):
		return domain.VerdictSell
	default:
		return domain.VerdictPass
	}
}

// --- casts defensivos: un campo malo nunca tumba el registro entero ---

func asString(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	default:
		return ""
	}
}

func asFloat(v any) float64 {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(n), ",", ".")
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}
		return int(n)
	case string:
		s := strings.TrimSpace(n)
		if i := strings.IndexAny(s, ".,"); i >= 0 {
			s = s[:i]
		}
		parsed, err := strconv.Atoi(s)
		if err != nil {
			return 0
		}
		return parsed
	default:
		return 0
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
