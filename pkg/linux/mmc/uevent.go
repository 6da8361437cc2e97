//go:build linux

package mmc

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/ardnew/softmmc/pkg"
)

// Netlink parameters.
const (
	ueventBufferSize = 4096
	kernelGroup      = 1       // kernel broadcast group
	readTimeoutUsec  = 250_000 // receive timeout between context checks
)

// =============================================================================
// UEvent Types
// =============================================================================

// Action is a kernel uevent action.
type Action uint8

// Actions.
const (
	ActionUnknown Action = iota
	ActionAdd
	ActionRemove
	ActionChange
	ActionBind
	ActionUnbind
)

var actionNames = map[string]Action{
	"add":    ActionAdd,
	"remove": ActionRemove,
	"change": ActionChange,
	"bind":   ActionBind,
	"unbind": ActionUnbind,
}

// String returns the kernel name of the action.
func (a Action) String() string {
	for name, v := range actionNames {
		if v == a {
			return name
		}
	}
	return "unknown"
}

// uevent is a parsed netlink uevent.
type uevent struct {
	action    Action
	devpath   string // DEVPATH
	subsystem string // SUBSYSTEM
	mmcType   string // MMC_TYPE
	mmcName   string // MMC_NAME
}

// parseUEvent parses a netlink uevent message: a header "action@devpath"
// followed by NUL-separated KEY=value pairs.
func parseUEvent(data []byte) uevent {
	var evt uevent
	for _, field := range bytes.Split(data, []byte{0}) {
		if len(field) == 0 {
			continue
		}
		s := string(field)

		key, value, ok := strings.Cut(s, "=")
		if !ok {
			if action, devpath, ok := strings.Cut(s, "@"); ok {
				evt.action = actionNames[action]
				evt.devpath = devpath
			}
			continue
		}
		switch key {
		case "ACTION":
			evt.action = actionNames[value]
		case "DEVPATH":
			evt.devpath = value
		case "SUBSYSTEM":
			evt.subsystem = value
		case "MMC_TYPE":
			evt.mmcType = value
		case "MMC_NAME":
			evt.mmcName = value
		}
	}
	return evt
}

// =============================================================================
// Hotplug Monitor
// =============================================================================

// Event is a card insertion or removal.
type Event struct {
	Action Action
	// Card is fully parsed for ActionAdd. For ActionRemove only Name, Path,
	// Host and Type are set.
	Card Card
}

// Monitor reports cards the kernel adds and removes.
type Monitor struct {
	fd   int
	root string
	buf  [ueventBufferSize]byte
}

// NewMonitor opens a kernel uevent socket. root is the sysfs card
// directory used to parse added cards, normally [SysfsPath].
func NewMonitor(root string) (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, err
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: kernelGroup}); err != nil {
		unix.Close(fd)
		return nil, err
	}
	tv := unix.NsecToTimeval(readTimeoutUsec * 1000)
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, err
	}
	return &Monitor{fd: fd, root: root}, nil
}

// Close closes the socket.
func (m *Monitor) Close() error {
	return unix.Close(m.fd)
}

// Next blocks until a card is added or removed, or ctx is done.
func (m *Monitor) Next(ctx context.Context) (Event, error) {
	for {
		if err := ctx.Err(); err != nil {
			return Event{}, err
		}
		n, err := unix.Read(m.fd, m.buf[:])
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			continue
		}
		if err != nil {
			return Event{}, err
		}
		if evt, ok := m.event(parseUEvent(m.buf[:n])); ok {
			return evt, nil
		}
	}
}

// event converts a uevent of the mmc subsystem into an Event.
func (m *Monitor) event(u uevent) (Event, bool) {
	if u.subsystem != "mmc" || (u.action != ActionAdd && u.action != ActionRemove) {
		return Event{}, false
	}
	name := filepath.Base(u.devpath)
	path := filepath.Join(m.root, name)

	if u.action == ActionAdd {
		c, err := Parse(path)
		if err == nil {
			return Event{Action: ActionAdd, Card: c}, true
		}
		pkg.LogWarn(pkg.ComponentSysfs, "cannot parse added card",
			"path", path,
			"error", err)
	}

	host, _, _ := strings.Cut(name, ":")
	return Event{
		Action: u.action,
		Card:   Card{Name: name, Path: path, Host: host, Type: u.mmcType},
	}, true
}
