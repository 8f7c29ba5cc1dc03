package engine

import (
	"context"
	"sort"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/domain"
	"github.com/alejandrodnm/sniperbot/internal/risk"
)

// PlanLeg is one allocation of the position plan: a published signal with
// the lot and margin it gets against the free balance at planning time.
type PlanLeg struct {
	Signal domain.Signal
	Lot    float64
	Margin float64
}

// buildPlan recomputes the aggregate position plan from the freshest
// published signal per symbol. Allocation happens here, once per pass
// set and against the freshest snapshot, instead of greedily consuming
// balance symbol-by-symbol in generation order: highest confidence is
// funded first.
func (o *Orchestrator) buildPlan(ctx context.Context) ([]PlanLeg, error) {
	sigs, err := o.d.Store.LatestSignals(ctx, o.cfg.FeedCap)
	if err != nil {
		return nil, err
	}

	// el feed viene de más reciente a más antiguo: la primera aparición
	// de cada símbolo es su señal más fresca
	seen := make(map[string]bool)
	var candidates []domain.Signal
	for _, s := range sigs {
		if seen[s.Symbol] {
			continue
		}
		seen[s.Symbol] = true
		if !s.Tradeable || o.d.Book.HasOpen(s.Symbol) {
			continue
		}
		candidates = append(candidates, s)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Confidence > candidates[j].Confidence
	})

	free, err := o.d.Book.FreeBalance(ctx)
	if err != nil {
		return nil, err
	}

	var legs []PlanLeg
	for _, s := range candidates {
		lot := risk.Size(risk.SizerConfig{RiskPercent: o.cfg.RiskPercent, MinLot: o.cfg.MinLot}, s.EntryPrice, free)
		margin := domain.Notional(s.Symbol, lot, s.EntryPrice) / o.cfg.Leverage
		if margin > free {
			o.log.Debug("plan leg skipped, margin over free balance",
				"symbol", s.Symbol, "margin", margin, "free", free)
			continue
		}
		free -= margin
		legs = append(legs, PlanLeg{Signal: s, Lot: lot, Margin: margin})
	}
	return legs, nil
}

// executePlan opens the still-unopened legs of the plan. A leg whose
// ledger row already exists reuses it (LogTrade is idempotent), which
// also recovers a trade whose book mirror failed to open in-pass.
func (o *Orchestrator) executePlan(ctx context.Context, legs []PlanLeg) int {
	opened := 0
	now := time.Now().UTC()
	for _, leg := range legs {
		s := leg.Signal
		if o.d.Book.HasOpen(s.Symbol) {
			continue
		}
		if o.d.Book.OpenCount() >= o.cfg.MaxOpenPositions {
			break
		}

		allowed, reason, err := o.d.Store.IsEntryAllowed(ctx, s.Symbol, s.EntryPrice, now)
		if err != nil {
			o.log.Warn("plan cooldown check failed", "symbol", s.Symbol, "err", err)
		} else if !allowed {
			o.log.Info("plan leg blocked by cooldown", "symbol", s.Symbol, "reason", reason)
			continue
		}

		ledgerID, err := o.d.Store.LogTrade(ctx, domain.PendingTrade{
			Symbol:       s.Symbol,
			Direction:    s.Verdict,
			EntryPrice:   s.EntryPrice,
			StopLoss:     s.StopLoss,
			TakeProfit:   s.TakeProfit,
			PositionSize: leg.Lot,
			Confidence:   s.Confidence,
			Reasoning:    s.Reason,
			CreatedAt:    now,
		}, o.cfg.PriceTolerance)
		if err != nil {
			o.log.Error("LEDGER WRITE FAILED — plan leg not opened", "symbol", s.Symbol, "err", err)
			continue
		}

		if _, err := o.d.Book.Open(ctx, OpenSpec{
			LedgerID:   ledgerID,
			Symbol:     s.Symbol,
			Direction:  s.Verdict,
			Lot:        leg.Lot,
			EntryPrice: s.EntryPrice,
			StopLoss:   s.StopLoss,
			TakeProfit: s.TakeProfit,
		}); err != nil {
			o.log.Error("BOOK WRITE FAILED — plan leg has ledger row only", "symbol", s.Symbol, "err", err)
			continue
		}
		opened++
	}
	return opened
}
