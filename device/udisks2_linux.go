package device

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	udisksBus             = "org.freedesktop.UDisks2"
	udisksRoot            = dbus.ObjectPath("/org/freedesktop/UDisks2")
	udisksManagerPath     = dbus.ObjectPath("/org/freedesktop/UDisks2/Manager")
	udisksManagerIface    = "org.freedesktop.UDisks2.Manager"
	udisksBlockIface      = "org.freedesktop.UDisks2.Block"
	udisksFilesystemIface = "org.freedesktop.UDisks2.Filesystem"
	objectManagerIface    = "org.freedesktop.DBus.ObjectManager"
)

// udisks talks to the UDisks2 daemon on the system bus.
type udisks struct {
	conn *dbus.Conn
}

func connectUDisks() (*udisks, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("cannot connect to the system bus: %w", err)
	}
	return &udisks{conn: conn}, nil
}

func (u *udisks) Close() error {
	return u.conn.Close()
}

// resolve returns the block object of the device at path.
func (u *udisks) resolve(ctx context.Context, path string) (dbus.ObjectPath, error) {
	logger.WithField("path", path).Debug("resolving device path through UDisks2")
	spec := map[string]dbus.Variant{"path": dbus.MakeVariant(path)}
	var objects []dbus.ObjectPath
	err := u.conn.Object(udisksBus, udisksManagerPath).
		CallWithContext(ctx, udisksManagerIface+".ResolveDevice", 0, spec, map[string]dbus.Variant{}).
		Store(&objects)
	if err != nil {
		return "", fmt.Errorf("could not resolve %s: %w", path, err)
	}
	if len(objects) == 0 {
		return "", fmt.Errorf("no device found for path: %s", path)
	}
	return objects[len(objects)-1], nil
}

// unmountAll unmounts every mounted filesystem whose object path starts with
// the device object path, so partitions of the device are included.
func (u *udisks) unmountAll(ctx context.Context, device dbus.ObjectPath) error {
	logger.WithField("object", device).Debug("unmounting all filesystems on device")
	var managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	err := u.conn.Object(udisksBus, udisksRoot).
		CallWithContext(ctx, objectManagerIface+".GetManagedObjects", 0).
		Store(&managed)
	if err != nil {
		return fmt.Errorf("could not enumerate block devices: %w", err)
	}
	for obj, ifaces := range managed {
		if !strings.HasPrefix(string(obj), string(device)) {
			continue
		}
		props, ok := ifaces[udisksFilesystemIface]
		if !ok {
			continue
		}
		if points, _ := props["MountPoints"].Value().([][]byte); len(points) == 0 {
			continue
		}
		logger.WithField("object", obj).Info("unmounting filesystem")
		err := u.conn.Object(udisksBus, obj).
			CallWithContext(ctx, udisksFilesystemIface+".Unmount", 0, map[string]dbus.Variant{}).
			Store()
		if err != nil {
			return fmt.Errorf("failed to unmount %s: %w", obj, err)
		}
	}
	return nil
}

// openDevice asks UDisks2 to open the block device and hand over the descriptor.
func (u *udisks) openDevice(ctx context.Context, obj dbus.ObjectPath, path, mode string, flags int) (*os.File, error) {
	opts := map[string]dbus.Variant{"flags": dbus.MakeVariant(int32(flags))}
	var fd dbus.UnixFD
	err := u.conn.Object(udisksBus, obj).
		CallWithContext(ctx, udisksBlockIface+".OpenDevice", 0, mode, opts).
		Store(&fd)
	if err != nil {
		return nil, fmt.Errorf("OpenDevice on %s failed: %w", obj, err)
	}
	if fd < 0 {
		return nil, fmt.Errorf("UDisks2 did not provide an owned file descriptor for %s", path)
	}
	return os.NewFile(uintptr(fd), path), nil
}
