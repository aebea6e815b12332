// Package notify sends desktop notifications via D-Bus. calweave uses them
// when a commit batch suspends on a conflict or finishes while the terminal
// may be in the background.
package notify

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	notifyInterface = "org.freedesktop.Notifications"
	notifyPath      = "/org/freedesktop/Notifications"
)

// Urgency levels for notifications.
type Urgency byte

const (
	UrgencyLow      Urgency = 0
	UrgencyNormal   Urgency = 1
	UrgencyCritical Urgency = 2
)

// Notifier sends desktop notifications via D-Bus.
type Notifier struct {
	conn    *dbus.Conn
	obj     dbus.BusObject
	appName string
}

// New creates a new notifier.
func New(appName string) (*Notifier, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}

	return &Notifier{
		conn:    conn,
		obj:     conn.Object(notifyInterface, notifyPath),
		appName: appName,
	}, nil
}

// Close closes the D-Bus connection.
func (n *Notifier) Close() error {
	return n.conn.Close()
}

// Send sends a notification and returns the notification ID.
func (n *Notifier) Send(summary, body string, urgency Urgency, timeout time.Duration) (uint32, error) {
	hints := map[string]dbus.Variant{
		"urgency": dbus.MakeVariant(byte(urgency)),
	}

	expire := int32(-1) // server default
	if timeout > 0 {
		expire = int32(timeout.Milliseconds())
	}

	call := n.obj.Call(
		notifyInterface+".Notify",
		0,
		n.appName,           // app_name
		uint32(0),           // replaces_id (0 = new notification)
		"x-office-calendar", // app_icon
		summary,             // summary
		body,                // body
		[]string{},          // actions
		hints,               // hints
		expire,              // expire_timeout
	)

	if call.Err != nil {
		return 0, fmt.Errorf("send notification: %w", call.Err)
	}

	var id uint32
	if err := call.Store(&id); err != nil {
		return 0, fmt.Errorf("get notification id: %w", err)
	}

	slog.Debug("sent notification", "id", id, "summary", summary)
	return id, nil
}
