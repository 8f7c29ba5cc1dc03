package ports

import (
	"context"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// Calendar expone los eventos económicos próximos relevantes para un
// símbolo, para incluirlos en el contexto del modelo de juicio.
type Calendar interface {
	Upcoming(ctx context.Context, symbol string) []domain.CalendarEvent
}
