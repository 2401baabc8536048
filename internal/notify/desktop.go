package notify

import (
	"context"
	"fmt"

	"github.com/godbus/dbus/v5"
)

const (
	notificationsDest  = "org.freedesktop.Notifications"
	notificationsPath  = "/org/freedesktop/Notifications"
	notificationsCall  = "org.freedesktop.Notifications.Notify"
	urgencyNormal      = byte(1)
	urgencyCritical    = byte(2)
	defaultExpireMsecs = int32(-1)
)

// Desktop shows notices through the freedesktop notification service on the
// session bus.
type Desktop struct {
	conn    *dbus.Conn
	appName string
}

// NewDesktop opens a private session bus connection.
func NewDesktop(appName string) (*Desktop, error) {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	return &Desktop{conn: conn, appName: appName}, nil
}

func (d *Desktop) Name() string { return "desktop" }

func (d *Desktop) Send(ctx context.Context, n Notice) error {
	msg := Compose(n)
	urgency := urgencyNormal
	if n.Kind == KindDeferralWarning {
		urgency = urgencyCritical
	}
	hints := map[string]dbus.Variant{
		"urgency":  dbus.MakeVariant(urgency),
		"category": dbus.MakeVariant("x-focusloop." + string(n.Kind)),
	}

	obj := d.conn.Object(notificationsDest, dbus.ObjectPath(notificationsPath))
	call := obj.CallWithContext(ctx, notificationsCall, 0,
		d.appName, uint32(0), "", msg.Title, msg.Body, []string{}, hints, defaultExpireMsecs)
	if call.Err != nil {
		return fmt.Errorf("desktop notify: %w", call.Err)
	}
	return nil
}

func (d *Desktop) Close() error {
	return d.conn.Close()
}
