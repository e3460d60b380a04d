package store

import (
	"context"
	"strings"
	"time"

	"github.com/atendai/conversation-pipeline/internal/model"
)

// SearchProducts looks up catalog entries matching a term and optionally a
// color. Matching is case-insensitive substring on name and description.
func (s *Store) SearchProducts(ctx context.Context, tenantID, term, color string) ([]model.Product, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if term != "" {
		like := "%" + strings.ToLower(term) + "%"
		q = q.Where("lower(name) LIKE ? OR lower(description) LIKE ?", like, like)
	}
	if color != "" {
		q = q.Where("lower(color) = ?", strings.ToLower(color))
	}

	var products []model.Product
	err := q.Order("name asc").Limit(10).Find(&products).Error
	return products, err
}

// CreateProduct adds a catalog entry.
func (s *Store) CreateProduct(ctx context.Context, p *model.Product) error {
	return s.db.WithContext(ctx).Create(p).Error
}

// ListProducts returns a tenant's catalog.
func (s *Store) ListProducts(ctx context.Context, tenantID string) ([]model.Product, error) {
	var products []model.Product
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("name asc").
		Find(&products).Error
	return products, err
}

// CreateOrder persists a sale.
func (s *Store) CreateOrder(ctx context.Context, order *model.Order) error {
	return s.db.WithContext(ctx).Create(order).Error
}

// HasActiveOrder reports whether the conversation produced a non-cancelled
// order.
func (s *Store) HasActiveOrder(ctx context.Context, conversationID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Order{}).
		Where("conversation_id = ? AND status <> ?", conversationID, model.OrderCancelled).
		Count(&count).Error
	return count > 0, err
}

// CreateDeal persists a CRM deal.
func (s *Store) CreateDeal(ctx context.Context, deal *model.Deal) error {
	return s.db.WithContext(ctx).Create(deal).Error
}

// ListDeals returns a tenant's CRM pipeline, optionally filtered to one
// customer.
func (s *Store) ListDeals(ctx context.Context, tenantID, customerID string) ([]model.Deal, error) {
	q := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID)
	if customerID != "" {
		q = q.Where("customer_id = ?", customerID)
	}

	var deals []model.Deal
	err := q.Order("created_at desc").Find(&deals).Error
	return deals, err
}

// HasAdvancedDeal reports whether the customer has a deal past
// qualification.
func (s *Store) HasAdvancedDeal(ctx context.Context, tenantID, customerID string) (bool, error) {
	var deals []model.Deal
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND customer_id = ?", tenantID, customerID).
		Find(&deals).Error
	if err != nil {
		return false, err
	}
	for _, d := range deals {
		if d.Stage.Advanced() {
			return true, nil
		}
	}
	return false, nil
}

// HasSettledAppointment reports whether the customer has a confirmed or
// completed appointment.
func (s *Store) HasSettledAppointment(ctx context.Context, tenantID, customerID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.Appointment{}).
		Where("tenant_id = ? AND customer_id = ? AND status IN ?",
			tenantID, customerID,
			[]model.AppointmentStatus{model.AppointmentConfirmed, model.AppointmentCompleted}).
		Count(&count).Error
	return count > 0, err
}

// CreateInterest records a captured customer interest.
func (s *Store) CreateInterest(ctx context.Context, interest *model.CustomerInterest) error {
	return s.db.WithContext(ctx).Create(interest).Error
}

// HasRecentInterest reports whether an interest was captured on the
// conversation after the cutoff.
func (s *Store) HasRecentInterest(ctx context.Context, conversationID string, since time.Time) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&model.CustomerInterest{}).
		Where("conversation_id = ? AND created_at >= ?", conversationID, since).
		Count(&count).Error
	return count > 0, err
}

// CreateLead persists captured lead contact data.
func (s *Store) CreateLead(ctx context.Context, lead *model.Lead) error {
	return s.db.WithContext(ctx).Create(lead).Error
}
