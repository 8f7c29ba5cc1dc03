package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/sniperbot/internal/adapters/storage"
	"github.com/alejandrodnm/sniperbot/internal/domain"
	"github.com/alejandrodnm/sniperbot/internal/judge"
	"github.com/alejandrodnm/sniperbot/internal/ports"
	"github.com/alejandrodnm/sniperbot/internal/risk"
	"github.com/alejandrodnm/sniperbot/internal/signal"
)

// Config controla el orquestador y el bucle de escaneo.
type Config struct {
	Symbols []string

	MinConfidence       int
	DisplayFloor        int
	MaxRetries          int
	RetryDelay          time.Duration
	SelfAssessAfterZero int
	Temperature         float64

	VirtualBalance   float64
	RiskPercent      float64
	MinLot           float64
	Leverage         float64
	MaxOpenPositions int
	MaxDailyTrades   int
	CooldownWindow   time.Duration
	PriceTolerance   float64
	ForceCloseAge    time.Duration

	Passes      int
	PassWait    time.Duration
	Interval    time.Duration
	SymbolDelay time.Duration
	FeedCap     int
	StopFile    string

	BarCount int // velas pedidas por timeframe
}

// DefaultConfig devuelve la configuración estándar del orquestador.
func DefaultConfig() Config {
	return Config{
		MinConfidence:       70,
		DisplayFloor:        10,
		MaxRetries:          5,
		RetryDelay:          5 * time.Second,
		SelfAssessAfterZero: 5,
		VirtualBalance:      100,
		RiskPercent:         10,
		MinLot:              0.01,
		Leverage:            100,
		MaxOpenPositions:    5,
		MaxDailyTrades:      10,
		CooldownWindow:      5 * time.Hour,
		PriceTolerance:      0.001,
		ForceCloseAge:       48 * time.Hour,
		Passes:              3,
		PassWait:            5 * time.Minute,
		Interval:            time.Minute,
		SymbolDelay:         time.Second,
		FeedCap:             200,
		BarCount:            250,
	}
}

// Deps agrupa los colaboradores del orquestador.
type Deps struct {
	Market    ports.MarketData
	Model     ports.Judge
	Calendar  ports.Calendar
	Technical *signal.Technical
	Sentiment *signal.Sentiment
	Validator *risk.Validator
	Store     *storage.Store
	Book      *Book
	Notifier  ports.Notifier
}

// Orchestrator ejecuta el pipeline por símbolo y el bucle multi-pasada.
// Etapas por símbolo y ciclo:
//
//	FETCH → TECHNICAL → SENTIMENT → JUDGMENT → (retry por confianza)* →
//	RISK_VALIDATE → SIZE → PUBLISH/OPEN
//
// Cualquier fallo de un símbolo se registra y el bucle sigue con el
// siguiente; el estado de reintentos vive por símbolo en `states`.
type Orchestrator struct {
	cfg Config
	d   Deps
	log *slog.Logger

	states    map[string]*symbolState
	firstScan bool
	wasPaused bool
}

// New crea el orquestador.
func New(cfg Config, d Deps) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		d:         d,
		log:       slog.Default().With("component", "orchestrator"),
		states:    make(map[string]*symbolState),
		firstScan: true,
	}
}

// processSymbol corre el pipeline completo de un símbolo. Devuelve la
// señal publicada, o nil cuando el símbolo se salta sin publicar (sin
// precio, o con posición ya abierta).
func (o *Orchestrator) processSymbol(ctx context.Context, symbol string) (*domain.Signal, error) {
	// Una posición abierta por símbolo: se impone aquí, no en el libro
	if o.d.Book.HasOpen(symbol) {
		o.log.Debug("skip, position already open", "symbol", symbol)
		return nil, nil
	}

	snap, err := o.fetchSnapshot(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("orchestrator: fetch %s: %w", symbol, err)
	}

	tech := o.d.Technical.Evaluate(*snap)
	if !tech.Pass {
		return o.publish(ctx, waitSignal(symbol, domain.VerdictPass, 0, tech.Reason)), nil
	}

	// El sentimiento informa al juicio pero no bloquea: el único caso
	// duro (dirección NEUTRAL) ya lo cortó el filtro técnico.
	sent := o.d.Sentiment.Evaluate(ctx, symbol, tech.Direction)

	pctx := judge.Context{
		Symbol:    symbol,
		Price:     snap.CurrentPrice,
		Technical: tech,
		Sentiment: sent,
	}
	if o.d.Calendar != nil {
		pctx.Calendar = o.d.Calendar.Upcoming(ctx, symbol)
	}

	dec := o.judgeCycle(ctx, &pctx)

	st := o.state(symbol)
	st.recordConfidence(dec.Confidence)

	if dec.Confidence < o.cfg.MinConfidence {
		switch {
		case st.shouldSelfAssess(o.cfg.SelfAssessAfterZero):
			st.selfAssessed = true
			o.log.Info("escalating to self-assessment", "symbol", symbol, "zero_streak", st.zeroStreak)
			sa := o.askModel(ctx, judge.BuildSelfAssessmentPrompt(pctx, st.zeroStreak))
			if sa.Confidence >= o.cfg.MinConfidence {
				dec = sa
				st.recordConfidence(sa.Confidence)
			} else {
				dec = o.heuristicDecision(pctx)
			}
		case st.shouldFallback(o.cfg.SelfAssessAfterZero):
			dec = o.heuristicDecision(pctx)
		default:
			reason := fmt.Sprintf("confidence %d below minimum %d", dec.Confidence, o.cfg.MinConfidence)
			return o.publish(ctx, waitSignal(symbol, dec.Verdict, dec.Confidence, reason)), nil
		}
	}

	if !dec.Verdict.IsTrade() {
		return o.publish(ctx, waitSignal(symbol, dec.Verdict, dec.Confidence, dec.Reasoning)), nil
	}

	return o.openFromDecision(ctx, symbol, snap, tech, sent, dec)
}

// openFromDecision valida, dimensiona y abre (en simulación) el trade
// decidido. Todo rechazo se publica como señal "held" con su motivo.
func (o *Orchestrator) openFromDecision(ctx context.Context, symbol string, snap *domain.MarketSnapshot, tech domain.TechnicalResult, sent domain.SentimentResult, dec *domain.Decision) (*domain.Signal, error) {
	now := time.Now().UTC()

	if n, err := o.d.Store.TradesToday(ctx, now); err != nil {
		o.log.Warn("daily trade count unavailable", "err", err)
	} else if n >= o.cfg.MaxDailyTrades {
		return o.publish(ctx, waitSignal(symbol, dec.Verdict, dec.Confidence, "daily trade cap reached")), nil
	}
	if o.d.Book.OpenCount() >= o.cfg.MaxOpenPositions {
		return o.publish(ctx, waitSignal(symbol, dec.Verdict, dec.Confidence, "max open positions reached")), nil
	}

	vres := o.d.Validator.Validate(symbol, dec.Verdict, dec.EntryPrice, dec.StopLoss, dec.TakeProfit)
	if !vres.Valid {
		reason := "held — " + vres.Reason
		return o.publish(ctx, waitSignal(symbol, dec.Verdict, dec.Confidence, reason)), nil
	}

	free, err := o.d.Book.FreeBalance(ctx)
	if err != nil {
		o.log.Warn("free balance unavailable, using starting balance", "err", err)
		free = o.cfg.VirtualBalance
	}

	lot := risk.Size(risk.SizerConfig{RiskPercent: o.cfg.RiskPercent, MinLot: o.cfg.MinLot}, dec.EntryPrice, free)
	margin := domain.Notional(symbol, lot, dec.EntryPrice) / o.cfg.Leverage
	if margin > free {
		reason := fmt.Sprintf("held — margin %.2f exceeds free balance %.2f", margin, free)
		return o.publish(ctx, waitSignal(symbol, dec.Verdict, dec.Confidence, reason)), nil
	}

	allowed, coolReason, err := o.d.Store.IsEntryAllowed(ctx, symbol, dec.EntryPrice, now)
	if err != nil {
		o.log.Warn("cooldown check failed", "symbol", symbol, "err", err)
	} else if !allowed {
		return o.publish(ctx, waitSignal(symbol, dec.Verdict, dec.Confidence, "held — "+coolReason)), nil
	}

	sig := domain.Signal{
		Symbol:     symbol,
		Verdict:    dec.Verdict,
		Confidence: dec.Confidence,
		EntryPrice: dec.EntryPrice,
		StopLoss:   vres.StopLoss,
		TakeProfit: vres.TakeProfit,
		Lot:        lot,
		RiskReward: vres.RiskReward,
		Reason:     dec.Reasoning,
		Tradeable:  true,
	}

	trade := domain.PendingTrade{
		Symbol:         symbol,
		Direction:      dec.Verdict,
		EntryPrice:     dec.EntryPrice,
		StopLoss:       vres.StopLoss,
		TakeProfit:     vres.TakeProfit,
		PositionSize:   lot,
		TechnicalScore: tech.Score,
		NewsSentiment:  sent.Sentiment,
		Confidence:     dec.Confidence,
		Reasoning:      dec.Reasoning,
		TrendH1:        tech.TrendH1,
		TrendH4:        tech.TrendH4,
		TrendD1:        tech.TrendD1,
		RSIValue:       tech.RSI,
		MACDSignal:     tech.MACD,
		CreatedAt:      now,
	}

	ledgerID, err := o.d.Store.LogTrade(ctx, trade, o.cfg.PriceTolerance)
	if err != nil {
		// La señal sigue siendo usable para el plan de esta pasada,
		// pero escrituras fallidas repetidas desincronizan el ledger:
		// esto tiene que sonar fuerte, no quedarse en debug.
		o.log.Error("LEDGER WRITE FAILED — ledger may drift", "symbol", symbol, "err", err)
		return o.publish(ctx, &sig), nil
	}

	if _, err := o.d.Book.Open(ctx, OpenSpec{
		LedgerID:   ledgerID,
		Symbol:     symbol,
		Direction:  dec.Verdict,
		Lot:        lot,
		EntryPrice: dec.EntryPrice,
		StopLoss:   vres.StopLoss,
		TakeProfit: vres.TakeProfit,
	}); err != nil {
		o.log.Error("BOOK WRITE FAILED — book may drift from ledger", "symbol", symbol, "err", err)
	}

	return o.publish(ctx, &sig), nil
}

// judgeCycle llama al modelo y reintenta mientras la confianza no llegue
// al mínimo, refrescando el precio entre intentos.
func (o *Orchestrator) judgeCycle(ctx context.Context, pctx *judge.Context) *domain.Decision {
	dec := o.askModel(ctx, judge.BuildDecisionPrompt(*pctx))
	for attempt := 1; dec.Confidence < o.cfg.MinConfidence && attempt < o.cfg.MaxRetries; attempt++ {
		if ctx.Err() != nil {
			return dec
		}
		o.log.Debug("confidence below minimum, retrying",
			"symbol", pctx.Symbol, "confidence", dec.Confidence, "attempt", attempt)
		o.sleep(ctx, o.cfg.RetryDelay)

		if price, err := o.d.Market.CurrentPrice(ctx, pctx.Symbol); err == nil && price > 0 {
			pctx.Price = price
		}
		dec = o.askModel(ctx, judge.BuildDecisionPrompt(*pctx))
	}
	return dec
}

// askModel hace una llamada de juicio y degrada cualquier fallo (timeout,
// respuesta imposible de recuperar) a una decisión de confianza cero.
// Nunca propaga el fallo: el pipeline siempre termina en una decisión.
func (o *Orchestrator) askModel(ctx context.Context, prompt string) *domain.Decision {
	raw, err := o.d.Model.Generate(ctx, prompt, judge.SystemPrompt, o.cfg.Temperature)
	if err != nil {
		o.log.Warn("judgment call failed", "err", err)
		return zeroDecision("judgment unavailable: " + err.Error())
	}
	dec, err := judge.Parse(raw)
	if err != nil {
		o.log.Warn("judgment response unparseable", "err", err)
		return zeroDecision("judgment response unparseable")
	}
	return dec
}

// heuristicDecision construye una decisión local mezclando el score
// técnico con el sentimiento. Baja confianza asumida, pero usable: el
// pipeline no se queda colgado esperando una buena respuesta del modelo.
func (o *Orchestrator) heuristicDecision(pctx judge.Context) *domain.Decision {
	verdict := domain.VerdictPass
	switch pctx.Technical.Direction {
	case domain.DirectionBuy:
		verdict = domain.VerdictBuy
	case domain.DirectionSell:
		verdict = domain.VerdictSell
	}

	// sentimiento -100..100 normalizado a 0..100 y promediado con el score
	confidence := (pctx.Technical.Score + int(50+pctx.Sentiment.Sentiment/2)) / 2
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	o.log.Info("using heuristic fallback decision",
		"symbol", pctx.Symbol, "verdict", verdict, "confidence", confidence)
	return &domain.Decision{
		Verdict:    verdict,
		Confidence: confidence,
		EntryPrice: pctx.Price,
		Reasoning: fmt.Sprintf("Heuristic: technical %s score %d blended with sentiment %.0f",
			pctx.Technical.Direction, pctx.Technical.Score, pctx.Sentiment.Sentiment),
	}
}

// fetchSnapshot obtiene precio y velas. Sin precio no hay pipeline; las
// velas que falten las tolera el filtro técnico.
func (o *Orchestrator) fetchSnapshot(ctx context.Context, symbol string) (*domain.MarketSnapshot, error) {
	price, err := o.d.Market.CurrentPrice(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("current price: %w", err)
	}
	if price <= 0 {
		return nil, fmt.Errorf("current price: provider returned %.5f", price)
	}

	snap := &domain.MarketSnapshot{
		Symbol:       symbol,
		CurrentPrice: price,
		Bars:         make(map[domain.Timeframe][]domain.Candle, 3),
		FetchedAt:    time.Now().UTC(),
	}
	for _, tf := range []domain.Timeframe{domain.TFH1, domain.TFH4, domain.TFD1} {
		bars, err := o.d.Market.Bars(ctx, symbol, tf, o.cfg.BarCount)
		if err != nil {
			o.log.Debug("bars unavailable", "symbol", symbol, "tf", tf, "err", err)
			continue
		}
		snap.Bars[tf] = bars
	}
	return snap, nil
}

// publish completa la señal (id, confianza presentada, mensaje) y la
// añade al feed. La primera pasada tras un arranque fuerza la publicación
// aunque sea un estado de espera repetido.
func (o *Orchestrator) publish(ctx context.Context, sig *domain.Signal) *domain.Signal {
	sig.ID = uuid.NewString()
	sig.CreatedAt = time.Now().UTC()
	sig.Presented = sig.Confidence
	if sig.Presented < o.cfg.DisplayFloor {
		// suelo cosmético de confianza presentada, ver config
		sig.Presented = o.cfg.DisplayFloor
	}
	sig.Message = composeMessage(*sig)

	if _, err := o.d.Store.AppendSignal(ctx, *sig, o.cfg.FeedCap, o.firstScan); err != nil {
		o.log.Error("FEED WRITE FAILED", "symbol", sig.Symbol, "err", err)
	}
	return sig
}

func (o *Orchestrator) state(symbol string) *symbolState {
	st, ok := o.states[symbol]
	if !ok {
		st = &symbolState{}
		o.states[symbol] = st
	}
	return st
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

func waitSignal(symbol string, verdict domain.Verdict, confidence int, reason string) *domain.Signal {
	return &domain.Signal{
		Symbol:     symbol,
		Verdict:    verdict,
		Confidence: confidence,
		Reason:     reason,
	}
}

func zeroDecision(reason string) *domain.Decision {
	return &domain.Decision{Verdict: domain.VerdictPass, Reasoning: reason}
}

func composeMessage(sig domain.Signal) string {
	if sig.Tradeable {
		return fmt.Sprintf("%s %s @ %.5f | SL %.5f | TP %.5f | lot %.2f | R:R %.2f | confidence %d%%",
			sig.Symbol, sig.Verdict, sig.EntryPrice, sig.StopLoss, sig.TakeProfit,
			sig.Lot, sig.RiskReward, sig.Presented)
	}
	return fmt.Sprintf("%s: %s (confidence %d%%)", sig.Symbol, sig.Reason, sig.Presented)
}
