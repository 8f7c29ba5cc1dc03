package domain

import "time"

// NewsImpact clasifica la relevancia esperada de una noticia.
type NewsImpact string

const (
	ImpactHigh   NewsImpact = "HIGH"
	ImpactMedium NewsImpact = "MEDIUM"
	ImpactLow    NewsImpact = "LOW"
)

// NewsItem es una noticia almacenada con su sentimiento ya puntuado.
type NewsItem struct {
	ID          int64
	Symbol      string
	Title       string
	Source      string
	Sentiment   float64 // -100..100
	Impact      NewsImpact
	PublishedAt time.Time
}

// SentimentSummary agrega el sentimiento de las noticias de un símbolo
// en la ventana consultada.
type SentimentSummary struct {
	Average    float64
	Count      int
	HighImpact int
}

// CalendarEvent es un evento del calendario económico que se incluye en
// el contexto del modelo de juicio.
type CalendarEvent struct {
	Time     time.Time
	Country  string
	Name     string
	Impact   NewsImpact
	Forecast string
	Previous string
}
