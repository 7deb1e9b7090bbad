package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"florafi/internal/sensor"
)

var sensorCmd = &cobra.Command{
	Use:   "sensor",
	Short: "Sensor utilities",
}

var sensorWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print parsed sensor frames from the device or simulator",
	RunE:  sensorWatch,
}

func init() {
	sensorCmd.AddCommand(sensorWatchCmd)
}

// pickSource opens the configured device. Without one it runs the simulator
// and watches the device directory, hot-attaching when a sensor is plugged in.
func pickSource() (sensor.Source, string) {
	sim := func() *sensor.SimSource { return sensor.NewSimSource(cfg.GetSensorSyncInterval()) }
	if cfg.Sensor.Simulate {
		return sim(), "simulator"
	}
	if cfg.Sensor.Device != "" {
		if src, err := sensor.OpenSerial(cfg.Sensor.Device); err == nil {
			return src, cfg.Sensor.Device
		} else {
			fmt.Printf("open %s: %v; falling back to simulator\n", cfg.Sensor.Device, err)
		}
	}
	dir := cfg.GetSensorDeviceDir()
	hp := sensor.NewHotplugSource(dir, sim())
	hp.Attached = func(path string) {
		fmt.Printf("sensor attached: %s\n", path)
	}
	return hp, fmt.Sprintf("simulator (watching %s)", dir)
}

func sensorWatch(cmd *cobra.Command, args []string) error {
	src, name := pickSource()
	fmt.Printf("Reading from %s (Ctrl+C to stop)\n", name)

	ctx, cancel := signalContext()
	defer cancel()

	readings := make(chan sensor.Reading, 16)
	errc := make(chan error, 1)
	go func() { errc <- src.Run(ctx, readings) }()

	for {
		select {
		case r := <-readings:
			fmt.Printf("%s  top=%7.2f val=%7.2f int=%5.3f dev=%6.2f\n",
				r.At.Format("15:04:05.000"), r.Top, r.Value, r.Intensity, r.Deviation())
		case err := <-errc:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		}
	}
}
