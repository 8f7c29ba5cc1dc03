// Package calendar expone los eventos macro próximos que se inyectan en
// el contexto del modelo de juicio. La fuente es una plantilla estática
// de publicaciones recurrentes (NFP, CPI, decisiones de tipos) proyectada
// sobre la semana en curso; suficiente para que el modelo pondere el
// riesgo de evento sin depender de un scraper externo.
package calendar

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

const cacheTTL = 6 * time.Hour

// lookahead limita cuántos eventos futuros se incluyen por símbolo.
const lookahead = 3

// Static sirve eventos desde la plantilla recurrente, con caché.
type Static struct {
	mu      sync.Mutex
	cached  []domain.CalendarEvent
	expires time.Time
	now     func() time.Time
}

// NewStatic crea el calendario estático.
func NewStatic() *Static {
	return &Static{now: time.Now}
}

// recurring describe una publicación periódica: día de la semana y hora
// UTC a la que suele salir.
type recurring struct {
	weekday  time.Weekday
	hour     int
	country  string
	name     string
	impact   domain.NewsImpact
	forecast string
	previous string
}

var template = []recurring{
	{time.Friday, 12, "US", "Non-Farm Payrolls", domain.ImpactHigh, "180K", "175K"},
	{time.Wednesday, 12, "US", "CPI m/m", domain.ImpactHigh, "0.3%", "0.2%"},
	{time.Wednesday, 18, "US", "FOMC Rate Decision", domain.ImpactHigh, "5.50%", "5.50%"},
	{time.Thursday, 12, "EU", "ECB Rate Decision", domain.ImpactHigh, "4.25%", "4.25%"},
	{time.Tuesday, 9, "EU", "ZEW Economic Sentiment", domain.ImpactMedium, "20.1", "19.5"},
	{time.Thursday, 11, "UK", "BoE Rate Decision", domain.ImpactHigh, "5.25%", "5.25%"},
	{time.Wednesday, 6, "UK", "CPI y/y", domain.ImpactHigh, "3.2%", "3.4%"},
	{time.Friday, 3, "JP", "BoJ Policy Statement", domain.ImpactHigh, "-0.10%", "-0.10%"},
	{time.Monday, 23, "JP", "Tankan Manufacturing Index", domain.ImpactMedium, "11", "10"},
	{time.Thursday, 12, "US", "Initial Jobless Claims", domain.ImpactMedium, "215K", "212K"},
}

// Upcoming implementa ports.Calendar: devuelve hasta lookahead eventos
// futuros de los países relevantes para el símbolo.
func (s *Static) Upcoming(_ context.Context, symbol string) []domain.CalendarEvent {
	all := s.events()
	countries := countriesFor(symbol)

	var out []domain.CalendarEvent
	for _, ev := range all {
		if !countries[ev.Country] {
			continue
		}
		out = append(out, ev)
		if len(out) >= lookahead {
			break
		}
	}
	return out
}

// events proyecta la plantilla sobre los próximos 7 días, cacheado.
func (s *Static) events() []domain.CalendarEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if now.Before(s.expires) {
		return s.cached
	}

	var out []domain.CalendarEvent
	for _, r := range template {
		out = append(out, domain.CalendarEvent{
			Time:     nextOccurrence(now, r.weekday, r.hour),
			Country:  r.country,
			Name:     r.name,
			Impact:   r.impact,
			Forecast: r.forecast,
			Previous: r.previous,
		})
	}
	sortByTime(out)

	s.cached = out
	s.expires = now.Add(cacheTTL)
	return out
}

// nextOccurrence devuelve la siguiente vez que toca weekday a la hora
// dada, en UTC.
func nextOccurrence(now time.Time, wd time.Weekday, hour int) time.Time {
	now = now.UTC()
	days := (int(wd) - int(now.Weekday()) + 7) % 7
	candidate := time.Date(now.Year(), now.Month(), now.Day(), hour, 30, 0, 0, time.UTC).AddDate(0, 0, days)
	if !candidate.After(now) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}

func sortByTime(events []domain.CalendarEvent) {
	sort.Slice(events, func(i, j int) bool {
		return events[i].Time.Before(events[j].Time)
	})
}

// countriesFor mapea el símbolo a los países cuyos eventos le afectan.
// Los metales se mueven con la política monetaria de EEUU.
func countriesFor(symbol string) map[string]bool {
	out := map[string]bool{"US": true}
	switch {
	case strings.HasPrefix(symbol, "EUR"):
		out["EU"] = true
	case strings.HasPrefix(symbol, "GBP"):
		out["UK"] = true
	case strings.Contains(symbol, "JPY"):
		out["JP"] = true
	}
	return out
}
