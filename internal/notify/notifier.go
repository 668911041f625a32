// Package notify abstracts the delivery capability the dispatcher emits
// into. Delivery is best-effort: a failed send is logged by the caller,
// never escalated. The day still counts as fired, so a flaky transport
// cannot cause duplicate notifications.
package notify

import "context"

// Notification is one rendered reminder ready for delivery.
type Notification struct {
	JobID     string
	SubjectID string
	Time      string // HH:MM
	Title     string
	Body      string
}

type Notifier interface {
	Send(ctx context.Context, n Notification) error
}
