package notify

import "context"

// AlertMessage represents a notification payload.
type AlertMessage struct {
	FileID   string            `json:"file_id,omitempty"`
	BranchID string            `json:"branch_id,omitempty"`
	OrderID  string            `json:"order_id,omitempty"`
	Date     string            `json:"date,omitempty"`
	Failed   int               `json:"failed"`
	Skipped  int               `json:"skipped"`
	Reason   string            `json:"reason,omitempty"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// Notifier sends notifications.
type Notifier interface {
	Notify(ctx context.Context, msg AlertMessage) error
}
