package storage

import (
	"context"

	"github.com/md-rashed-zaman/slotbook/libs/db"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

type CatalogRepository struct {
	pool *db.Pool
}

var _ booking.Catalog = (*CatalogRepository)(nil)

func NewCatalogRepository(pool *db.Pool) *CatalogRepository {
	return &CatalogRepository{pool: pool}
}

func (r *CatalogRepository) Business(ctx context.Context, businessID string) (model.Business, error) {
	var b model.Business
	err := r.pool.QueryRow(ctx, `
		SELECT id, slug, name FROM businesses WHERE id = $1
	`, businessID).Scan(&b.ID, &b.Slug, &b.Name)
	if IsNotFound(err) {
		return model.Business{}, apperror.NotFound("business")
	}
	return b, err
}

func (r *CatalogRepository) BusinessBySlug(ctx context.Context, slug string) (model.Business, error) {
	var b model.Business
	err := r.pool.QueryRow(ctx, `
		SELECT id, slug, name FROM businesses WHERE lower(slug) = lower($1)
	`, slug).Scan(&b.ID, &b.Slug, &b.Name)
	if IsNotFound(err) {
		return model.Business{}, apperror.NotFound("business")
	}
	return b, err
}

func (r *CatalogRepository) Service(ctx context.Context, businessID, serviceID string) (model.Service, error) {
	var s model.Service
	err := r.pool.QueryRow(ctx, `
		SELECT id, business_id, name, duration_minutes, price, is_active
		FROM business_services
		WHERE business_id = $1 AND id = $2
	`, businessID, serviceID).Scan(&s.ID, &s.BusinessID, &s.Name, &s.DurationMinutes, &s.Price, &s.IsActive)
	if IsNotFound(err) {
		return model.Service{}, apperror.NotFound("service")
	}
	return s, err
}
