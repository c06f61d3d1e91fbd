package dbusapi

import (
	"context"
	"fmt"
	"time"

	"github.com/bryanchriswhite/taskstrip/internal/scheduler"
	"github.com/bryanchriswhite/taskstrip/internal/taskbar"
	"github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"
)

// Serve claims ServiceName on the session bus and exports the taskbar until
// ctx is done.
func Serve(ctx context.Context, loop *scheduler.Loop, svc *taskbar.Service) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	t := newTaskbar(loop, svc, func(name string, values ...any) error {
		return conn.Emit(ObjectPath, name, values...)
	})
	if err := export(conn, t); err != nil {
		return err
	}

	reply, err := conn.RequestName(ServiceName, dbus.NameFlagDoNotQueue)
	if err != nil {
		return fmt.Errorf("failed to request %s: %w", ServiceName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		return fmt.Errorf("%s is already owned", ServiceName)
	}

	if err := loop.Call(ctx, t.attach); err != nil {
		return err
	}
	t.log.Info().Str("name", ServiceName).Str("path", string(ObjectPath)).Msg("Exported on session bus")

	<-ctx.Done()

	// the loop may already be gone
	detachCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := loop.Call(detachCtx, t.detach); err != nil {
		t.log.Debug().Err(err).Msg("Skipped bus client detach")
	}
	return nil
}

func export(conn *dbus.Conn, t *Taskbar) error {
	if err := conn.Export(t, ObjectPath, Interface); err != nil {
		return fmt.Errorf("failed to export taskbar: %w", err)
	}
	if err := conn.Export(introspect.NewIntrospectable(node()), ObjectPath, "org.freedesktop.DBus.Introspectable"); err != nil {
		return fmt.Errorf("failed to export introspection: %w", err)
	}
	return nil
}
