package sensor

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"florafi/internal/logging"
)

// devicePrefixes are the node names a USB serial sensor shows up under.
var devicePrefixes = []string{"ttyUSB", "ttyACM", "cu.usbmodem", "cu.usbserial"}

// IsDeviceNode reports whether a file name looks like a serial sensor node.
func IsDeviceNode(name string) bool {
	base := filepath.Base(name)
	for _, p := range devicePrefixes {
		if strings.HasPrefix(base, p) {
			return true
		}
	}
	return false
}

// Watcher reports serial device nodes appearing in a device directory, so a
// session started without hardware can hot-attach when the sensor is plugged
// in.
type Watcher struct {
	dir     string
	watcher *fsnotify.Watcher
	devices chan string
}

// NewWatcher watches dir (typically /dev) for new device nodes.
func NewWatcher(dir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("sensor: create watcher: %w", err)
	}
	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("sensor: watch %s: %w", dir, err)
	}
	return &Watcher{dir: dir, watcher: fsw, devices: make(chan string, 4)}, nil
}

// Devices delivers paths of newly appeared device nodes.
func (w *Watcher) Devices() <-chan string {
	return w.devices
}

// Run forwards create events for device-looking nodes until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	defer close(w.devices)
	logging.Sensor("watching %s for sensor devices", w.dir)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) || !IsDeviceNode(ev.Name) {
				continue
			}
			logging.Sensor("sensor device appeared: %s", ev.Name)
			select {
			case w.devices <- ev.Name:
			case <-ctx.Done():
				return ctx.Err()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			logging.SensorWarn("device watch error: %v", err)
		}
	}
}

// Close stops the underlying fsnotify watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
