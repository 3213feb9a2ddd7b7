package folio

import (
	"context"

	"github.com/jhoicas/dte-sii/internal/domain/repository"
)

// TxRunner ejecuta fn dentro de una transacción con los repositorios de folios atados a ella.
type TxRunner interface {
	RunFolio(ctx context.Context, fn func(
		ranges repository.FolioRangeRepository,
		voids repository.FolioVoidRepository,
	) error) error
}
