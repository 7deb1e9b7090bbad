package sensor

import (
	"bufio"
	"context"
	"io"
	"math"
	"math/rand"
	"os"
	"time"

	"florafi/internal/logging"
)

// Source emits sensor readings until its context is cancelled.
type Source interface {
	// Run reads frames and sends them on out. Returns when ctx is done or
	// the underlying device fails. Run closes nothing; the caller owns out.
	Run(ctx context.Context, out chan<- Reading) error
}

// SerialSource reads newline-delimited frames from a serial device node.
type SerialSource struct {
	r io.ReadCloser
}

// NewSerialSource wraps an opened device.
func NewSerialSource(r io.ReadCloser) *SerialSource {
	return &SerialSource{r: r}
}

// OpenSerial opens a device node for reading. Baud and mode are assumed to be
// configured by the OS default or a prior stty; the protocol is plain ASCII
// lines either way.
func OpenSerial(device string) (*SerialSource, error) {
	f, err := os.Open(device)
	if err != nil {
		return nil, err
	}
	return NewSerialSource(f), nil
}

// Run scans lines until EOF, device error, or cancellation. The reader is
// closed on the way out so a blocked Read unblocks when ctx fires.
func (s *SerialSource) Run(ctx context.Context, out chan<- Reading) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.r.Close()
		case <-done:
		}
	}()

	scanner := bufio.NewScanner(s.r)
	for scanner.Scan() {
		reading, ok := ParseLine(scanner.Text(), time.Now())
		if !ok {
			continue
		}
		select {
		case out <- reading:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := scanner.Err(); err != nil {
		logging.SensorWarn("serial read ended: %v", err)
		return err
	}
	logging.Sensor("serial device closed")
	return nil
}

// SimSource synthesizes frames with a smoothed random walk, useful with no
// hardware attached. The walk drifts around the baseline with occasional
// touch-like spikes.
type SimSource struct {
	Interval time.Duration
	rng      *rand.Rand
}

// NewSimSource creates a simulator emitting on the given interval.
func NewSimSource(interval time.Duration) *SimSource {
	if interval <= 0 {
		interval = 50 * time.Millisecond
	}
	return &SimSource{
		Interval: interval,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *SimSource) Run(ctx context.Context, out chan<- Reading) error {
	const top = 512.0
	value := top
	intensity := 0.0

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	logging.Sensor("simulated sensor started: interval=%v", s.Interval)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			// Smooth drift toward baseline plus noise.
			value += (top-value)*0.05 + (s.rng.Float64()-0.5)*4
			if s.rng.Float64() < 0.02 {
				// Simulated touch.
				value += 40 + s.rng.Float64()*60
			}
			intensity = math.Abs(value-top) / top

			select {
			case out <- Reading{Top: top, Value: value, Intensity: intensity, At: now}:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}
