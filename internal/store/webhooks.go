package store

import (
	"context"

	"github.com/atendai/conversation-pipeline/internal/model"
)

// CreateWebhook registers a webhook subscription.
func (s *Store) CreateWebhook(ctx context.Context, wh *model.Webhook) error {
	return s.db.WithContext(ctx).Create(wh).Error
}

// GetWebhook retrieves a webhook scoped to its tenant.
func (s *Store) GetWebhook(ctx context.Context, tenantID, id string) (*model.Webhook, error) {
	var wh model.Webhook
	err := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		First(&wh).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &wh, nil
}

// ListWebhooks returns all webhooks of a tenant.
func (s *Store) ListWebhooks(ctx context.Context, tenantID string) ([]model.Webhook, error) {
	var whs []model.Webhook
	err := s.db.WithContext(ctx).Where("tenant_id = ?", tenantID).Find(&whs).Error
	return whs, err
}

// ActiveWebhooksFor returns the active webhooks of a tenant subscribed to
// the given event.
func (s *Store) ActiveWebhooksFor(ctx context.Context, tenantID string, event model.EventType) ([]model.Webhook, error) {
	var whs []model.Webhook
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND active = ?", tenantID, true).
		Find(&whs).Error
	if err != nil {
		return nil, err
	}

	matched := whs[:0]
	for _, wh := range whs {
		if wh.SubscribedTo(event) {
			matched = append(matched, wh)
		}
	}
	return matched, nil
}

// DeleteWebhook removes a webhook subscription.
func (s *Store) DeleteWebhook(ctx context.Context, tenantID, id string) error {
	res := s.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", id, tenantID).
		Delete(&model.Webhook{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateDeliveryLog appends a webhook delivery attempt record.
func (s *Store) CreateDeliveryLog(ctx context.Context, log *model.WebhookDeliveryLog) error {
	return s.db.WithContext(ctx).Create(log).Error
}

// ListDeliveryLogs returns a webhook's delivery attempts in order.
func (s *Store) ListDeliveryLogs(ctx context.Context, webhookID string) ([]model.WebhookDeliveryLog, error) {
	var logs []model.WebhookDeliveryLog
	err := s.db.WithContext(ctx).
		Where("webhook_id = ?", webhookID).
		Order("created_at asc, attempt asc").
		Find(&logs).Error
	return logs, err
}
