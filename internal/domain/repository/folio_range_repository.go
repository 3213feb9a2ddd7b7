package repository

import (
	"context"

	"github.com/jhoicas/dte-sii/internal/domain/entity"
)

// FolioRangeRepository define el puerto de persistencia para rangos CAF.
type FolioRangeRepository interface {
	Create(ctx context.Context, r *entity.FolioRange) error
	GetByID(ctx context.Context, tenantID, id string) (*entity.FolioRange, error)
	ListByTenant(ctx context.Context, tenantID string) ([]*entity.FolioRange, error)

	// LockForAllocation bloquea (FOR UPDATE) todos los rangos de (tenant, tipo) ordenados por inicio.
	// Solo tiene sentido dentro de una transacción.
	LockForAllocation(ctx context.Context, tenantID string, docType entity.DocumentType) ([]*entity.FolioRange, error)

	// Advance mueve next_available de expected a expected+1. Devuelve false si el valor ya no era expected.
	Advance(ctx context.Context, rangeID string, expected int64) (bool, error)

	SetActive(ctx context.Context, tenantID, id string, active bool) error
}

// FolioVoidRepository registro append-only de folios anulados.
type FolioVoidRepository interface {
	Create(ctx context.Context, v *entity.FolioVoid) error
	ListByTenant(ctx context.Context, tenantID string, docType entity.DocumentType) ([]*entity.FolioVoid, error)
}
