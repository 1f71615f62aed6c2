package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyRead is returned when marking a read notification again.
var ErrAlreadyRead = errors.New("notification already read")

// NotificationType tags a notification so the client can pick an icon.
type NotificationType string

const (
	NotifRequestCreated     NotificationType = "REQUEST_CREATED"
	NotifRequestApproved    NotificationType = "REQUEST_APPROVED"
	NotifRequestRejected    NotificationType = "REQUEST_REJECTED"
	NotifRequestCancelled   NotificationType = "REQUEST_CANCELLED"
	NotifRequestStarted     NotificationType = "REQUEST_STARTED"
	NotifRequestCompleted   NotificationType = "REQUEST_COMPLETED"
	NotifUsageReminder      NotificationType = "USAGE_REMINDER"
	NotifDriverAssigned     NotificationType = "DRIVER_ASSIGNED"
	NotifCheckPointRecorded NotificationType = "CHECKPOINT_RECORDED"
)

// NotificationTypes lists every NotificationType.
var NotificationTypes = []NotificationType{
	NotifRequestCreated,
	NotifRequestApproved,
	NotifRequestRejected,
	NotifRequestCancelled,
	NotifRequestStarted,
	NotifRequestCompleted,
	NotifUsageReminder,
	NotifDriverAssigned,
	NotifCheckPointRecorded,
}

// NotificationTypeDisplay maps a NotificationType to its icon and color.
func NotificationTypeDisplay(t NotificationType) (Display, error) {
	switch t {
	case NotifRequestCreated:
		return Display{Label: "New request", Color: "blue", Icon: "file-plus"}, nil
	case NotifRequestApproved:
		return Display{Label: "Approved", Color: "green", Icon: "check-circle"}, nil
	case NotifRequestRejected:
		return Display{Label: "Rejected", Color: "red", Icon: "x-circle"}, nil
	case NotifRequestCancelled:
		return Display{Label: "Cancelled", Color: "gray", Icon: "slash"}, nil
	case NotifRequestStarted:
		return Display{Label: "Trip started", Color: "blue", Icon: "truck"}, nil
	case NotifRequestCompleted:
		return Display{Label: "Trip finished", Color: "teal", Icon: "flag"}, nil
	case NotifUsageReminder:
		return Display{Label: "Reminder", Color: "orange", Icon: "bell"}, nil
	case NotifDriverAssigned:
		return Display{Label: "Driver assigned", Color: "indigo", Icon: "steering-wheel"}, nil
	case NotifCheckPointRecorded:
		return Display{Label: "Checkpoint", Color: "cyan", Icon: "map-pin"}, nil
	}
	return Display{}, fmt.Errorf("notification type %q: %w", string(t), ErrUnknownEnum)
}

// AffectsRequestStatus reports whether the notification announces a status
// change, after which any cached snapshot of the request is stale.
func (t NotificationType) AffectsRequestStatus() bool {
	switch t {
	case NotifRequestApproved, NotifRequestRejected, NotifRequestCancelled,
		NotifRequestStarted, NotifRequestCompleted:
		return true
	default:
		return false
	}
}

// Notification is an append-only event addressed to a user.
type Notification struct {
	NotificationID string           `bson:"_id,omitempty" json:"notificationId"`
	UserID         string           `bson:"user_id" json:"userId"`
	User           *User            `bson:"user,omitempty" json:"user,omitempty"`
	Type           NotificationType `bson:"type" json:"type"`
	Message        string           `bson:"message" json:"message"`
	RequestID      string           `bson:"request_id,omitempty" json:"requestId,omitempty"`
	IsRead         bool             `bson:"is_read" json:"isRead"`
	CreatedAt      time.Time        `bson:"created_at" json:"createdAt"`
}

// MarkRead flips IsRead from false to true exactly once.
func (n *Notification) MarkRead() error {
	if n.IsRead {
		return ErrAlreadyRead
	}
	n.IsRead = true
	return nil
}
