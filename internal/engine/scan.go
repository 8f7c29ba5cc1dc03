package engine

import (
	"context"
	"os"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// ReconcileSummary resume una pasada de reconciliación tras un arranque
// o una pausa.
type ReconcileSummary struct {
	Checked int
	Closed  int
	Skipped int
	Errors  int
}

// Run ejecuta el bucle multi-pasada hasta que el contexto se cancele.
// Cada iteración: N pasadas de generación de señales (monitorizando las
// posiciones abiertas entre pasadas), el plan de posiciones sobre el
// snapshot de señales más fresco, y la espera entre sets.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.log.Info("scan loop starting",
		"symbols", len(o.cfg.Symbols), "passes", o.cfg.Passes, "pass_wait", o.cfg.PassWait)

	sum := o.Reconcile(ctx)
	o.log.Info("startup reconcile",
		"checked", sum.Checked, "closed", sum.Closed, "skipped", sum.Skipped, "errors", sum.Errors)

	for {
		if ctx.Err() != nil {
			return nil
		}

		if o.paused() {
			if !o.wasPaused {
				o.log.Info("scan paused by stop file", "file", o.cfg.StopFile)
				o.wasPaused = true
			}
			o.sleep(ctx, o.cfg.Interval)
			continue
		}
		if o.wasPaused {
			o.wasPaused = false
			sum := o.Reconcile(ctx)
			o.log.Info("resume reconcile",
				"checked", sum.Checked, "closed", sum.Closed, "skipped", sum.Skipped, "errors", sum.Errors)
		}

		for pass := 1; pass <= o.cfg.Passes; pass++ {
			if ctx.Err() != nil {
				return nil
			}
			signals := o.runPass(ctx)
			o.firstScan = false // solo la primera pasada publica sin dedup
			o.log.Info("pass complete", "pass", pass, "signals", len(signals))

			if o.d.Notifier != nil && len(signals) > 0 {
				if err := o.d.Notifier.Notify(ctx, signals); err != nil {
					o.log.Warn("notifier error", "err", err)
				}
			}

			o.monitor(ctx)
			o.forceCloseAged(ctx)

			if pass < o.cfg.Passes {
				o.sleep(ctx, o.cfg.PassWait)
			}
		}

		legs, err := o.buildPlan(ctx)
		if err != nil {
			o.log.Warn("position plan failed", "err", err)
		} else if len(legs) > 0 {
			opened := o.executePlan(ctx, legs)
			o.log.Info("position plan executed", "legs", len(legs), "opened", opened)
		}

		if o.d.Notifier != nil {
			if summary, err := o.d.Book.Summary(ctx); err == nil {
				if err := o.d.Notifier.NotifyBook(ctx, o.d.Book.Positions(), summary); err != nil {
					o.log.Warn("notifier error", "err", err)
				}
			}
		}

		o.sleep(ctx, o.cfg.Interval)
	}
}

// RunOnce ejecuta una sola pasada completa con monitorización. Útil para
// el modo -once y para los tests de integración.
func (o *Orchestrator) RunOnce(ctx context.Context) []domain.Signal {
	signals := o.runPass(ctx)
	o.monitor(ctx)
	o.forceCloseAged(ctx)
	o.firstScan = false
	return signals
}

// runPass corre el pipeline de cada símbolo en el orden configurado.
// El fallo de un símbolo — incluido un panic — se registra con contexto
// y el resto de la pasada continúa.
func (o *Orchestrator) runPass(ctx context.Context) []domain.Signal {
	var signals []domain.Signal
	for i, symbol := range o.cfg.Symbols {
		if ctx.Err() != nil {
			return signals
		}
		if i > 0 {
			o.sleep(ctx, o.cfg.SymbolDelay)
		}
		if sig := o.safeProcess(ctx, symbol); sig != nil {
			signals = append(signals, *sig)
		}
	}
	return signals
}

// safeProcess es la frontera de fallos por símbolo.
func (o *Orchestrator) safeProcess(ctx context.Context, symbol string) (sig *domain.Signal) {
	defer func() {
		if r := recover(); r != nil {
			o.log.Error("symbol pipeline panicked", "symbol", symbol, "panic", r)
			sig = nil
		}
	}()

	s, err := o.processSymbol(ctx, symbol)
	if err != nil {
		o.log.Warn("symbol skipped", "symbol", symbol, "err", err)
		return nil
	}
	return s
}

// monitor refresca las marcas del libro y cierra (ledger y libro a la
// vez) toda posición cuyo precio ya cruzó su TP o SL.
func (o *Orchestrator) monitor(ctx context.Context) {
	o.d.Book.Refresh(ctx, o.d.Market)
	for _, p := range o.d.Book.Crossed() {
		if _, err := o.d.Book.Close(ctx, p.ID, p.CurrentPrice); err != nil {
			o.log.Error("failed to close crossed position", "symbol", p.Symbol, "err", err)
		}
	}
}

// Reconcile recorre las filas PENDING y liquida las que cruzaron su nivel
// mientras la monitorización estaba parada. Un símbolo sin precio se
// salta; el error de cierre cuenta pero no corta el recorrido.
func (o *Orchestrator) Reconcile(ctx context.Context) ReconcileSummary {
	var sum ReconcileSummary

	trades, err := o.d.Store.PendingTrades(ctx)
	if err != nil {
		o.log.Error("reconcile: cannot list pending trades", "err", err)
		sum.Errors++
		return sum
	}

	for _, t := range trades {
		sum.Checked++

		price, err := o.d.Market.CurrentPrice(ctx, t.Symbol)
		if err != nil || price <= 0 {
			sum.Skipped++
			continue
		}
		if !tradeLevelCrossed(t, price) {
			continue
		}

		if err := o.closeTrade(ctx, t, price); err != nil {
			o.log.Error("reconcile: close failed", "symbol", t.Symbol, "id", t.ID, "err", err)
			sum.Errors++
			continue
		}
		sum.Closed++
	}
	return sum
}

// forceCloseAged cierra a precio de mercado los trades PENDING más viejos
// que la edad máxima, y deja un cooldown en el precio de cierre para no
// re-entrar oscilando sobre el mismo nivel.
func (o *Orchestrator) forceCloseAged(ctx context.Context) {
	trades, err := o.d.Store.PendingTrades(ctx)
	if err != nil {
		o.log.Error("force close: cannot list pending trades", "err", err)
		return
	}

	now := time.Now().UTC()
	for _, t := range trades {
		if t.AgeAt(now) < o.cfg.ForceCloseAge {
			continue
		}

		price, err := o.d.Market.CurrentPrice(ctx, t.Symbol)
		if err != nil || price <= 0 {
			// sin precio, cerrar plano en la entrada: BREAKEVEN
			price = t.EntryPrice
		}

		o.log.Info("force closing aged trade",
			"symbol", t.Symbol, "id", t.ID, "age", t.AgeAt(now).Round(time.Hour))
		if err := o.closeTrade(ctx, t, price); err != nil {
			o.log.Error("force close failed", "symbol", t.Symbol, "id", t.ID, "err", err)
			continue
		}

		cool := domain.EntryCooldown{
			Symbol:       t.Symbol,
			BlockedPrice: price,
			BlockedFrom:  now,
			BlockedUntil: now.Add(o.cfg.CooldownWindow),
			Tolerance:    o.cfg.PriceTolerance,
			Reason:       "force close after max age",
		}
		if err := o.d.Store.AddCooldown(ctx, cool); err != nil {
			o.log.Warn("failed to record cooldown", "symbol", t.Symbol, "err", err)
		}
	}
}

// closeTrade liquida un trade del ledger y, si existe, su espejo en el
// libro — siempre por la vía combinada cuando hay espejo.
func (o *Orchestrator) closeTrade(ctx context.Context, t domain.PendingTrade, price float64) error {
	for _, p := range o.d.Book.Positions() {
		if p.LedgerID == t.ID {
			_, err := o.d.Book.Close(ctx, p.ID, price)
			return err
		}
	}

	// Fila sin espejo en el libro (el open del libro falló en su día):
	// cerrar solo el ledger.
	outcome, pips := ClassifyOutcome(t.Symbol, t.Direction, t.EntryPrice, price)
	amount := profitAmount(t, price)
	return o.d.Store.UpdateOutcome(ctx, t.ID, outcome, pips, amount, price, time.Now().UTC())
}

// tradeLevelCrossed reporta si el precio ya alcanzó el TP o SL del trade.
func tradeLevelCrossed(t domain.PendingTrade, price float64) bool {
	if t.Direction == domain.VerdictBuy {
		return (t.TakeProfit > 0 && price >= t.TakeProfit) || (t.StopLoss > 0 && price <= t.StopLoss)
	}
	return (t.TakeProfit > 0 && price <= t.TakeProfit) || (t.StopLoss > 0 && price >= t.StopLoss)
}

func profitAmount(t domain.PendingTrade, price float64) float64 {
	diff := price - t.EntryPrice
	if t.Direction == domain.VerdictSell {
		diff = -diff
	}
	return diff * t.PositionSize * domain.ContractSize(t.Symbol)
}

// paused consulta la señal de pausa del operador: la existencia del
// stop file.
func (o *Orchestrator) paused() bool {
	if o.cfg.StopFile == "" {
		return false
	}
	_, err := os.Stat(o.cfg.StopFile)
	return err == nil
}
