package sensor

import (
	"context"

	"florafi/internal/logging"
)

// HotplugSource runs a fallback source while watching a device directory, and
// switches to the serial device when one is plugged in. A session started
// without hardware keeps the simulator until the sensor appears.
type HotplugSource struct {
	dir      string
	fallback Source

	// open turns a device path into a source. Overridable in tests.
	open func(path string) (Source, error)

	// Attached, when set, is called with the device path on hot-attach.
	Attached func(path string)
}

// NewHotplugSource watches dir for serial device nodes, emitting from fallback
// until one appears.
func NewHotplugSource(dir string, fallback Source) *HotplugSource {
	return &HotplugSource{
		dir:      dir,
		fallback: fallback,
		open: func(path string) (Source, error) {
			return OpenSerial(path)
		},
	}
}

// Run emits fallback readings until a device node appears, then hands the
// channel over to the device source. When the directory cannot be watched the
// fallback runs alone.
func (h *HotplugSource) Run(ctx context.Context, out chan<- Reading) error {
	w, err := NewWatcher(h.dir)
	if err != nil {
		logging.SensorWarn("hotplug watch unavailable: %v", err)
		return h.fallback.Run(ctx, out)
	}
	defer w.Close()

	wctx, wcancel := context.WithCancel(ctx)
	defer wcancel()
	go w.Run(wctx)

	fbCtx, stopFallback := context.WithCancel(ctx)
	fbErr := make(chan error, 1)
	go func() { fbErr <- h.fallback.Run(fbCtx, out) }()

	for {
		select {
		case <-ctx.Done():
			stopFallback()
			<-fbErr
			return ctx.Err()
		case path, ok := <-w.Devices():
			if !ok {
				// Watcher gone; stay on the fallback.
				err := <-fbErr
				stopFallback()
				return err
			}
			src, err := h.open(path)
			if err != nil {
				logging.SensorWarn("open hotplugged %s: %v", path, err)
				continue
			}
			stopFallback()
			<-fbErr
			logging.Sensor("hot-attached sensor device: %s", path)
			if h.Attached != nil {
				h.Attached(path)
			}
			return src.Run(ctx, out)
		}
	}
}
