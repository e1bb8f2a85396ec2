// Package canlog turns candump text logs of the vehicle bus into the
// kinematic timeline the ego-motion integration consumes. Signal placement
// is configured per vehicle platform since frame layouts differ between
// projects.
package canlog

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"

	"github.com/brutella/can"

	"github.com/openadas/stk/internal/ego"
	"github.com/openadas/stk/internal/monitoring"
)

// Signal locates one physical value inside a frame: a big-endian 16 bit raw
// value at Byte, scaled as physical = raw*Factor + Offset.
type Signal struct {
	ID     uint32  `yaml:"id"`
	Byte   int     `yaml:"byte"`
	Factor float64 `yaml:"factor"`
	Offset float64 `yaml:"offset"`
	Signed bool    `yaml:"signed"`
}

// Decode extracts the signal from a frame. The second return is false when
// the frame does not carry this signal.
func (s Signal) Decode(f can.Frame) (float64, bool) {
	if f.ID != s.ID || s.Byte < 0 || int(f.Length) < s.Byte+2 {
		return 0, false
	}
	raw := binary.BigEndian.Uint16(f.Data[s.Byte : s.Byte+2])
	if s.Signed {
		return float64(int16(raw))*s.Factor + s.Offset, true
	}
	return float64(raw)*s.Factor + s.Offset, true
}

// Mapping names the frames carrying the ego kinematics. Speed frames drive
// the timeline; acceleration and yaw rate are sample-held between frames.
type Mapping struct {
	Speed   Signal `yaml:"speed"`
	Accel   Signal `yaml:"accel"`
	YawRate Signal `yaml:"yaw_rate"`
}

// Kinematics is the decoded timeline, one row per speed cycle. Timestamps
// are microseconds from the log clock and strictly increasing.
type Kinematics struct {
	Timestamps []int64
	Speed      []float64
	Accel      []float64
	YawRate    []float64

	// Skipped counts malformed or out-of-order lines dropped during the read.
	Skipped int
}

// Motion integrates the timeline into an ego path.
func (k *Kinematics) Motion(cfg ego.Config) (*ego.Motion, error) {
	return ego.New(k.Timestamps, k.Speed, k.Accel, k.YawRate, cfg)
}

// candump -L line: (1436509052.249713) can0 123#DEADBEEF
var lineRE = regexp.MustCompile(`^\((\d+)\.(\d+)\)\s+\S+\s+([0-9A-Fa-f]{1,8})#([0-9A-Fa-f]*)$`)

// ParseLine decodes one candump log line into a timestamp in microseconds
// and a frame.
func ParseLine(line string) (int64, can.Frame, error) {
	m := lineRE.FindStringSubmatch(line)
	if m == nil {
		return 0, can.Frame{}, fmt.Errorf("canlog: malformed line %q", line)
	}
	sec, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, can.Frame{}, fmt.Errorf("canlog: bad seconds in %q: %w", line, err)
	}
	frac := m[2]
	if len(frac) > 6 {
		frac = frac[:6]
	}
	for len(frac) < 6 {
		frac += "0"
	}
	micros, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, can.Frame{}, fmt.Errorf("canlog: bad fraction in %q: %w", line, err)
	}
	id, err := strconv.ParseUint(m[3], 16, 32)
	if err != nil {
		return 0, can.Frame{}, fmt.Errorf("canlog: bad frame id in %q: %w", line, err)
	}
	if len(m[4])%2 != 0 || len(m[4]) > 16 {
		return 0, can.Frame{}, fmt.Errorf("canlog: bad payload in %q", line)
	}
	f := can.Frame{ID: uint32(id), Length: uint8(len(m[4]) / 2)}
	for i := 0; i < len(m[4]); i += 2 {
		b, err := strconv.ParseUint(m[4][i:i+2], 16, 8)
		if err != nil {
			return 0, can.Frame{}, fmt.Errorf("canlog: bad payload in %q: %w", line, err)
		}
		f.Data[i/2] = uint8(b)
	}
	return sec*1_000_000 + micros, f, nil
}

// ReadLog reads a candump log file and decodes it with the mapping.
func ReadLog(path string, m Mapping) (*Kinematics, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	k, err := Read(f, m)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return k, nil
}

// Read decodes candump lines from r. A row is emitted per speed frame once
// all three signals have been seen; acceleration and yaw rate hold their
// latest sample between frames. Malformed and non-increasing lines are
// skipped and counted.
func Read(r io.Reader, m Mapping) (*Kinematics, error) {
	k := &Kinematics{}
	var (
		accel, yaw       float64
		haveAcc, haveYaw bool
		lastTS           int64 = -1
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		ts, frame, err := ParseLine(line)
		if err != nil {
			k.Skipped++
			continue
		}
		if v, ok := m.Accel.Decode(frame); ok {
			accel, haveAcc = v, true
		}
		if v, ok := m.YawRate.Decode(frame); ok {
			yaw, haveYaw = v, true
		}
		v, ok := m.Speed.Decode(frame)
		if !ok || !haveAcc || !haveYaw {
			continue
		}
		if ts <= lastTS {
			k.Skipped++
			continue
		}
		lastTS = ts
		k.Timestamps = append(k.Timestamps, ts)
		k.Speed = append(k.Speed, v)
		k.Accel = append(k.Accel, accel)
		k.YawRate = append(k.YawRate, yaw)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if k.Skipped > 0 {
		monitoring.Logf("canlog: skipped %d lines", k.Skipped)
	}
	return k, nil
}
