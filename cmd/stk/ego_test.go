package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/openadas/stk/internal/canlog"
	"github.com/openadas/stk/internal/config"
)

// canLine formats one candump -L line carrying a big-endian 16 bit raw value.
func canLine(ts int64, id uint32, raw uint16) string {
	return fmt.Sprintf("(%d.%06d) can0 %03X#%04X", ts/1_000_000, ts%1_000_000, id, raw)
}

// writeDriveLog synthesizes a straight drive at a constant 10 m/s with 20 ms
// cycles, plus one malformed trailing line.
func writeDriveLog(t *testing.T, cycles int) string {
	t.Helper()
	var b strings.Builder
	ts := int64(1_700_000_000_000_000)
	for i := 0; i < cycles; i++ {
		b.WriteString(canLine(ts, 0x1B0, 32000) + "\n")
		b.WriteString(canLine(ts+100, 0x1C0, 0) + "\n")
		b.WriteString(canLine(ts+200, 0x1A0, 1000) + "\n")
		ts += 20_000
	}
	b.WriteString("interrupted transfer\n")
	path := filepath.Join(t.TempDir(), "drive_0423.log")
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func egoTestConfig(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	cfg.CAN = canlog.Mapping{
		Speed:   canlog.Signal{ID: 0x1A0, Byte: 0, Factor: 0.01},
		Accel:   canlog.Signal{ID: 0x1B0, Byte: 0, Factor: 0.01, Offset: -320},
		YawRate: canlog.Signal{ID: 0x1C0, Byte: 0, Factor: 0.0001, Signed: true},
	}
	return cfg
}

func TestRunEgo(t *testing.T) {
	cfg := egoTestConfig(t)
	logPath := writeDriveLog(t, 50)

	var buf bytes.Buffer
	if err := runEgo(cfg, logPath, false, &buf); err != nil {
		t.Fatalf("runEgo: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"cycles:   50",
		"36.0 km/h mean",
		"distance:",
		"skipped:  1 malformed line(s)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "plots:") {
		t.Errorf("plots line present without -plots:\n%s", out)
	}
}

func TestRunEgoPlots(t *testing.T) {
	cfg := egoTestConfig(t)
	logPath := writeDriveLog(t, 50)

	var buf bytes.Buffer
	if err := runEgo(cfg, logPath, true, &buf); err != nil {
		t.Fatalf("runEgo: %v", err)
	}
	if !strings.Contains(buf.String(), "plots:") {
		t.Fatalf("summary missing plots line:\n%s", buf.String())
	}

	pngs, err := filepath.Glob(filepath.Join(cfg.PlotDir(), "*", "*", "*.png"))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, p := range pngs {
		names = append(names, filepath.Base(p))
	}
	sort.Strings(names)
	want := []string{"path.png", "speed.png", "speed_bands.png", "speed_hist.png"}
	if fmt.Sprint(names) != fmt.Sprint(want) {
		t.Fatalf("plot files = %v, want %v", names, want)
	}
}

func TestRunEgoErrors(t *testing.T) {
	cfg := egoTestConfig(t)

	t.Run("no mapping", func(t *testing.T) {
		bare := config.Default()
		err := runEgo(bare, writeDriveLog(t, 5), false, new(bytes.Buffer))
		if err == nil || !strings.Contains(err.Error(), "no CAN mapping") {
			t.Fatalf("err = %v, want CAN mapping error", err)
		}
	})

	t.Run("missing log", func(t *testing.T) {
		if err := runEgo(cfg, filepath.Join(t.TempDir(), "gone.log"), false, new(bytes.Buffer)); err == nil {
			t.Fatal("expected error for missing log")
		}
	})

	t.Run("too short", func(t *testing.T) {
		if err := runEgo(cfg, writeDriveLog(t, 1), false, new(bytes.Buffer)); err == nil {
			t.Fatal("expected error for a single-cycle log")
		}
	})
}
