package ports

import (
	"context"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// Notifier presenta al operador los resultados de cada pasada.
type Notifier interface {
	// Notify muestra las señales publicadas en la pasada.
	// En la implementación de consola, imprime una tabla formateada.
	Notify(ctx context.Context, signals []domain.Signal) error

	// NotifyBook muestra el estado del libro de posiciones simuladas.
	NotifyBook(ctx context.Context, positions []domain.SimulatedPosition, summary domain.BookSummary) error
}
