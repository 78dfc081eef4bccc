//go:build linux

package source

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sys/unix"

	"chorder/internal/engine"
	"chorder/internal/keys"
)

// eviocgrab is _IOW('E', 0x90, int).
const eviocgrab = 0x40044590

// inputEvent matches the Linux input_event struct.
type inputEvent struct {
	Time  unix.Timeval
	Type  uint16
	Code  uint16
	Value int32
}

var inputEventSize = binary.Size(inputEvent{})

// Evdev reads key events from a /dev/input/event* device without blocking.
type Evdev struct {
	fd      int
	path    string
	grabbed bool
	codes   map[uint16]keys.Index
	buf     []byte
	pending []engine.Event
}

// OpenEvdev opens the device at path. Each registry pin must be a key code
// (see ParseKeyCode). With grab set the device is grabbed exclusively so
// its keys do not also reach other applications.
func OpenEvdev(path string, reg *keys.Registry, grab bool) (*Evdev, error) {
	codes, err := KeyCodeMap(reg)
	if err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	d := &Evdev{
		fd:    fd,
		path:  path,
		codes: codes,
		buf:   make([]byte, inputEventSize*64),
	}
	if grab {
		if err := unix.IoctlSetInt(fd, eviocgrab, 1); err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("grab %s: %w", path, err)
		}
		d.grabbed = true
	}
	return d, nil
}

// Poll returns the next key event, reading the device when nothing is
// buffered. A vanished device is reported as an error.
func (d *Evdev) Poll() (engine.Event, bool, error) {
	if len(d.pending) == 0 {
		if err := d.fill(); err != nil {
			return engine.Event{}, false, err
		}
	}
	if len(d.pending) == 0 {
		return engine.Event{}, false, nil
	}
	ev := d.pending[0]
	d.pending = d.pending[1:]
	return ev, true, nil
}

func (d *Evdev) fill() error {
	if d.fd < 0 {
		return ErrClosed
	}
	n, err := unix.Read(d.fd, d.buf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("read %s: %w", d.path, err)
	}
	d.pending = append(d.pending, decodeEvents(d.codes, d.buf[:n])...)
	return nil
}

// decodeEvents decodes whole input_event records from buf.
func decodeEvents(codes map[uint16]keys.Index, buf []byte) []engine.Event {
	var out []engine.Event
	r := bytes.NewReader(buf)
	for r.Len() >= inputEventSize {
		var raw inputEvent
		if err := binary.Read(r, binary.NativeEndian, &raw); err != nil {
			break
		}
		ev, ok := translate(codes, raw.Type, raw.Code, raw.Value)
		if !ok {
			continue
		}
		ev.At = time.Unix(raw.Time.Unix())
		out = append(out, ev)
	}
	return out
}

// Close releases the grab and closes the device.
func (d *Evdev) Close() error {
	if d.fd < 0 {
		return nil
	}
	if d.grabbed {
		_ = unix.IoctlSetInt(d.fd, eviocgrab, 0)
	}
	err := unix.Close(d.fd)
	d.fd = -1
	return err
}
