package ports

import (
	"context"

	"github.com/alejandrodnm/sniperbot/internal/domain"
)

// MarketData obtiene precios y velas de un proveedor externo. Los
// adapters devuelven error ante cualquier caída del proveedor; el
// pipeline trata el error como "dato no disponible" y salta el símbolo.
// Un adapter sin capacidad real implementa el método devolviendo error,
// nunca se detecta por reflexión.
type MarketData interface {
	// CurrentPrice devuelve el último precio del símbolo.
	CurrentPrice(ctx context.Context, symbol string) (float64, error)

	// Bars devuelve hasta count velas del timeframe dado, de más antigua
	// a más reciente.
	Bars(ctx context.Context, symbol string, tf domain.Timeframe, count int) ([]domain.Candle, error)
}
