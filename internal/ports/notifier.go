package ports

import (
	"context"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

// Notifier presenta el resultado de cada tick al usuario.
type Notifier interface {
	// NotifyTick en la implementación de consola imprime tablas formateadas.
	NotifyTick(ctx context.Context, report domain.TickReport) error
}
