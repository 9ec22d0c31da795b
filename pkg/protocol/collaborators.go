package protocol

import (
	"context"
	"time"
)

// DeliveryResult describes an outbound message handed to the gateway.
type DeliveryResult struct {
	MessageID string `json:"message_id"`
	Status    string `json:"status"`
}

// MessageGateway sends messages to contacts (WhatsApp, SMS, ...).
type MessageGateway interface {
	SendMessage(ctx context.Context, recipient, content string) (DeliveryResult, error)
}

// Task is a follow-up item created for a CRM user.
type Task struct {
	ContactID   string     `json:"contact_id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	AssigneeID  string     `json:"assignee_id,omitempty"`
	DueAt       *time.Time `json:"due_at,omitempty"`
}

// ContactStore is the CRM data store the actions write to.
type ContactStore interface {
	UpdateContact(ctx context.Context, contactID string, fields map[string]any) error
	CreateTask(ctx context.Context, task Task) (string, error)
	AdjustLeadScore(ctx context.Context, contactID string, delta int) (int, error)
}

// AIProvider runs an AI task and returns a structured result.
type AIProvider interface {
	RunTask(ctx context.Context, taskType string, input map[string]any) (map[string]any, error)
}

// Notification is an internal alert for CRM users.
type Notification struct {
	Channel string         `json:"channel"`
	UserID  string         `json:"user_id,omitempty"`
	Title   string         `json:"title"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// Notifier delivers internal notifications.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}
