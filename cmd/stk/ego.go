package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/openadas/stk/internal/canlog"
	"github.com/openadas/stk/internal/config"
	"github.com/openadas/stk/internal/ego"
	"github.com/openadas/stk/internal/plotting"
	"github.com/openadas/stk/internal/units"
)

func handleEgo(args []string) {
	fs := flag.NewFlagSet("ego", flag.ExitOnError)
	plots := fs.Bool("plots", false, "Write path, speed and speed band plots")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Error: need one CAN log. Usage: stk ego [options] <candump.log>")
		os.Exit(1)
	}

	cfg, done := setup()
	defer done()

	if err := runEgo(cfg, fs.Arg(0), *plots, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Ego motion failed: %v\n", err)
		os.Exit(1)
	}
}

// runEgo decodes a candump log with the configured frame mapping, integrates
// the ego path and prints a drive summary on w. With plots set it also
// renders the path, the speed trace and the speed distribution as PNGs
// under the plot folder.
func runEgo(cfg config.Config, logPath string, plots bool, w io.Writer) error {
	if cfg.CAN.Speed.ID == 0 {
		return fmt.Errorf("no CAN mapping configured, set can.speed/accel/yaw_rate in the config file")
	}

	k, err := canlog.ReadLog(logPath, cfg.CAN)
	if err != nil {
		return err
	}
	m, err := k.Motion(ego.DefaultConfig())
	if err != nil {
		return err
	}

	span := time.Duration(k.Timestamps[len(k.Timestamps)-1]-k.Timestamps[0]) * time.Microsecond
	speed := m.SpeedStats()
	cycles := m.CycleTimeStats()

	fmt.Fprintf(w, "%s\n", logPath)
	fmt.Fprintf(w, "  cycles:   %d over %s (mean cycle %.1f ms)\n",
		len(k.Timestamps), span.Round(time.Millisecond), cycles.Mean*1e3)
	fmt.Fprintf(w, "  distance: %.1f m\n", m.DrivenDistance())
	fmt.Fprintf(w, "  speed:    %.1f km/h mean, %.1f km/h max\n",
		units.ConvertSpeed(speed.Mean, units.KPH), units.ConvertSpeed(speed.Max, units.KPH))
	if k.Skipped > 0 {
		fmt.Fprintf(w, "  skipped:  %d malformed line(s)\n", k.Skipped)
	}

	if !plots {
		return nil
	}
	dir, err := writeEgoPlots(cfg, logPath, k, m)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "  plots:    %s\n", dir)
	return nil
}

// writeEgoPlots renders the drive plots into a fresh run directory and
// returns its path.
func writeEgoPlots(cfg config.Config, logPath string, k *canlog.Kinematics, m *ego.Motion) (string, error) {
	dir := plotting.RunDir(cfg.PlotDir(), logPath, time.Now())
	p, err := plotting.New(dir)
	if err != nil {
		return "", err
	}

	x, y := m.Coordinates()
	if _, err := p.SaveScatter("path", "Driven path", "x [m]", "y [m]",
		plotting.Series{Name: "ego", X: x, Y: y}); err != nil {
		return "", err
	}

	elapsed := make([]float64, len(k.Timestamps))
	for i, ts := range k.Timestamps {
		elapsed[i] = float64(ts-k.Timestamps[0]) / 1e6
	}
	kph := m.SpeedKPH()
	if _, err := p.SaveLine("speed", "Speed over time", "t [s]", "v [km/h]",
		plotting.Series{Name: "speed", X: elapsed, Y: kph}); err != nil {
		return "", err
	}
	if _, err := p.SaveHistogram("speed_hist", "Speed distribution", "v [km/h]", kph, 20); err != nil {
		return "", err
	}

	// Driving time per configured speed band, in minutes.
	bins := ego.DefaultConfig().SpeedBins
	minutes := m.TimeSpeedHistogram(bins)
	labels := make([]string, len(minutes))
	for i := range minutes {
		minutes[i] *= 60
		labels[i] = fmt.Sprintf("%g-%g", bins[i], bins[i+1])
	}
	if _, err := p.SaveBars("speed_bands", "Time per speed band [km/h]", "t [min]", labels, minutes); err != nil {
		return "", err
	}
	return dir, nil
}
