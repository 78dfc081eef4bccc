// Package publish broadcasts resolved tokens on the D-Bus session bus.
//
// Every resolved token is emitted as the signal <interface>.Resolved with
// a single string argument. The engine object is also exported so clients
// can query the current mode and last resolved outcome.
package publish

import (
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/godbus/dbus/v5"

	"chorder/internal/chord"
	"chorder/internal/engine"
)

// Defaults match the configuration defaults.
const (
	DefaultBusName    = "org.chorder.Engine"
	DefaultObjectPath = dbus.ObjectPath("/org/chorder/Engine")
)

var ErrNameTaken = errors.New("publish: bus name already owned")

// Emitter sends signals. *dbus.Conn implements it.
type Emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...interface{}) error
}

// StateView is the engine state exported on the bus.
type StateView interface {
	Mode() chord.Mode
	LastResolved() engine.Outcome
}

// Publisher is an engine subscriber that emits Resolved signals.
type Publisher struct {
	emitter Emitter
	path    dbus.ObjectPath
	iface   string
	logger  *slog.Logger
	failed  atomic.Uint64
	closer  func() error
}

// NewPublisher emits through e. iface is also the signal prefix, usually
// the bus name.
func NewPublisher(e Emitter, path dbus.ObjectPath, iface string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Publisher{emitter: e, path: path, iface: iface, logger: logger}
}

// Connect opens a private session bus connection, claims busName and
// exports view at path. The returned publisher owns the connection.
func Connect(busName string, path dbus.ObjectPath, view StateView, logger *slog.Logger) (*Publisher, error) {
	if !path.IsValid() {
		return nil, fmt.Errorf("invalid object path %q", path)
	}
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect to session bus: %w", err)
	}

	reply, err := conn.RequestName(busName, dbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("request name %s: %w", busName, err)
	}
	if reply != dbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("%w: %s", ErrNameTaken, busName)
	}

	if view != nil {
		if err := conn.Export(&Object{view: view}, path, busName); err != nil {
			conn.Close()
			return nil, fmt.Errorf("export engine object: %w", err)
		}
	}

	p := NewPublisher(conn, path, busName, logger)
	p.closer = conn.Close
	p.logger.Info("publishing on session bus", "name", busName, "path", path)
	return p, nil
}

// Signal is the full name of the emitted signal.
func (p *Publisher) Signal() string {
	return p.iface + ".Resolved"
}

// OnResolved emits the token. Failures are logged and counted.
func (p *Publisher) OnResolved(token chord.Token) {
	if err := p.emitter.Emit(p.path, p.Signal(), string(token)); err != nil {
		p.failed.Add(1)
		p.logger.Warn("emit resolved signal", "token", token, "error", err)
	}
}

// Failed returns the number of signals that could not be sent.
func (p *Publisher) Failed() uint64 {
	return p.failed.Load()
}

// Close releases the bus connection when the publisher owns one.
func (p *Publisher) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}

// Object is the exported engine object.
type Object struct {
	view StateView
}

// Mode returns the current mode.
func (o *Object) Mode() (string, *dbus.Error) {
	return string(o.view.Mode()), nil
}

// LastResolved returns the last outcome as shown on the status display and
// whether it was a miss.
func (o *Object) LastResolved() (string, bool, *dbus.Error) {
	last := o.view.LastResolved()
	return last.String(), last.Miss, nil
}
