// Package rfe drives the external RecFileExtractor executable that pulls
// images, video and timing information out of .rec recordings. The decode
// work lives entirely in that binary; this package builds its argument
// list, spawns it and parses the text output.
package rfe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"

	"github.com/openadas/stk/internal/monitoring"
)

// Format selects the extractor output container.
type Format string

// Output formats supported by the extractor.
const (
	FormatJPEG Format = "jpeg"
	FormatBMP  Format = "bmp"
	FormatAVI  Format = "avi"
	FormatPGM  Format = "pgm"
	FormatPFDS Format = "pfds"
)

// Brightness selects the extractor's brightness enhancement.
type Brightness string

// Brightness modes: downshift, full dynamic and 90 percent dynamic.
const (
	BrightnessDownshift   Brightness = "DO"
	BrightnessFullDynamic Brightness = "FD"
	Brightness90Dynamic   Brightness = "90"
)

var (
	// Extract Image: 12345678.jpeg / Already existing: 12345678.jpeg
	fileRE = regexp.MustCompile(`(Extract Image|Already existing):\s((?i)\d*\.\w{3,4})`)
	infoRE = regexp.MustCompile(`StartTime:\s(\d+)\sStopTime:\s(\d+)`)
)

// ExitError reports a non-zero extractor exit.
type ExitError struct {
	Code      int
	Recording string
	Output    string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("rfe: extractor exited with code %d on %s", e.Code, e.Recording)
}

// ExtractOptions carries the extraction parameters. Timestamps are in
// microseconds of the recording clock; negative values are omitted from the
// command line, a zero Start is passed through since recordings may begin
// at timestamp zero.
type ExtractOptions struct {
	Start int64
	Stop  int64
	Step  int64

	// Folder receives the output files, created on demand. Empty keeps
	// the extractor default next to the recording.
	Folder string

	Format  Format
	Codec   string
	Device  string
	Channel string

	// Color enables bayer decoding instead of grayscale output.
	Color      bool
	Brightness Brightness
}

// DefaultExtractOptions returns the extractor defaults: jpeg images from
// the video device, full recording range.
func DefaultExtractOptions() ExtractOptions {
	return ExtractOptions{
		Start:  -1,
		Stop:   -1,
		Step:   -1,
		Format: FormatJPEG,
		Device: "video",
	}
}

func (o ExtractOptions) validate() error {
	switch o.Format {
	case "", FormatJPEG, FormatBMP, FormatAVI, FormatPGM, FormatPFDS:
	default:
		return fmt.Errorf("rfe: unknown format %q", o.Format)
	}
	switch o.Brightness {
	case "", BrightnessDownshift, BrightnessFullDynamic, Brightness90Dynamic:
	default:
		return fmt.Errorf("rfe: unknown brightness mode %q", o.Brightness)
	}
	return nil
}

// args renders the option flags in the extractor's expected order.
func (o ExtractOptions) args(recording string) []string {
	args := []string{recording}
	if o.Start >= 0 {
		args = append(args, "/T:"+strconv.FormatInt(o.Start, 10))
	}
	if o.Stop >= 0 {
		args = append(args, "/U:"+strconv.FormatInt(o.Stop, 10))
	}
	if o.Step > 0 {
		args = append(args, "/S:"+strconv.FormatInt(o.Step, 10))
	}
	if o.Folder != "" {
		args = append(args, "/O:"+o.Folder)
	}
	if o.Format != "" {
		args = append(args, "/F:"+string(o.Format))
	}
	if o.Codec != "" {
		args = append(args, "/G:"+o.Codec)
	}
	if o.Device != "" {
		args = append(args, "/D:"+o.Device)
	}
	if o.Channel != "" {
		args = append(args, "/C:"+o.Channel)
	}
	if o.Color {
		args = append(args, "/R")
	}
	if o.Brightness != "" {
		args = append(args, "/B:"+string(o.Brightness))
	}
	return args
}

// Result holds the parsed output of one extraction run.
type Result struct {
	// Extracted lists files written by this run, Existing the files the
	// extractor found already on disk and skipped.
	Extracted []string
	Existing  []string

	// Output is the raw tool output with form feeds stripped.
	Output string
}

// Files returns extracted and already-existing names as one list, in
// output order.
func (r *Result) Files() []string {
	return append(append([]string{}, r.Extracted...), r.Existing...)
}

// RecInfo holds the time range of a recording in microseconds.
type RecInfo struct {
	Start int64
	Stop  int64
}

// Extractor wraps one RecFileExtractor installation.
type Extractor struct {
	path string
}

// New checks that the executable exists and returns an Extractor for it.
func New(path string) (*Extractor, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("rfe: extractor not found at %s: %w", path, err)
	}
	return &Extractor{path: path}, nil
}

// Path returns the wrapped executable path.
func (e *Extractor) Path() string { return e.path }

// run spawns the extractor and returns its stdout with form feeds removed.
// The extractor emits continuous line lists; the pipe concatenation injects
// form feeds between buffers, so they are stripped before parsing.
func (e *Extractor) run(ctx context.Context, recording string, args []string) (string, error) {
	monitoring.Debugf("rfe: %s %s", e.path, strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, e.path, args...)
	out, err := cmd.Output()
	cleaned := strings.ReplaceAll(string(out), "\f", "")
	if err != nil {
		var xe *exec.ExitError
		if errors.As(err, &xe) {
			return cleaned, &ExitError{Code: xe.ExitCode(), Recording: recording, Output: cleaned}
		}
		return cleaned, fmt.Errorf("failed to run extractor: %w", err)
	}
	return cleaned, nil
}

// ExtractImages extracts everything between the option timestamps from the
// recording.
func (e *Extractor) ExtractImages(ctx context.Context, recording string, opts ExtractOptions) (*Result, error) {
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if opts.Folder != "" {
		if err := os.MkdirAll(opts.Folder, 0755); err != nil {
			return nil, fmt.Errorf("failed to create output folder: %w", err)
		}
	}
	out, err := e.run(ctx, recording, opts.args(recording))
	if err != nil {
		return nil, err
	}
	return parseFiles(out), nil
}

// ExtractImage extracts the single image at the given timestamp.
func (e *Extractor) ExtractImage(ctx context.Context, recording string, timestamp int64, opts ExtractOptions) (*Result, error) {
	opts.Start = timestamp
	opts.Stop = -1
	opts.Step = -1
	return e.ExtractImages(ctx, recording, opts)
}

// CreateAVI renders the timestamp range into one avi file.
func (e *Extractor) CreateAVI(ctx context.Context, recording string, opts ExtractOptions) (*Result, error) {
	opts.Format = FormatAVI
	return e.ExtractImages(ctx, recording, opts)
}

// CreatePFDS generates a pfds file and returns the absolute packet
// timestamps reported by the extractor.
func (e *Extractor) CreatePFDS(ctx context.Context, recording string, opts ExtractOptions) ([]string, error) {
	opts.Format = FormatPFDS
	if err := opts.validate(); err != nil {
		return nil, err
	}
	out, err := e.run(ctx, recording, opts.args(recording))
	if err != nil {
		return nil, err
	}
	return parsePacketInfo(out), nil
}

// Info reads the start and stop timestamps of a recording. A recording the
// extractor cannot time yields a zero RecInfo.
func (e *Extractor) Info(ctx context.Context, recording string) (RecInfo, error) {
	out, err := e.run(ctx, recording, []string{recording, "/I"})
	if err != nil {
		return RecInfo{}, err
	}
	m := infoRE.FindStringSubmatch(out)
	if m == nil {
		return RecInfo{}, nil
	}
	start, _ := strconv.ParseInt(m[1], 10, 64)
	stop, _ := strconv.ParseInt(m[2], 10, 64)
	return RecInfo{Start: start, Stop: stop}, nil
}

// Codecs lists the compression codecs installed on this station.
func (e *Extractor) Codecs(ctx context.Context) (map[string]string, error) {
	out, err := e.run(ctx, "", []string{"/L:C"})
	if err != nil {
		return nil, err
	}
	return parseCodecs(out), nil
}

// Devices lists the devices recorded inside the recording.
func (e *Extractor) Devices(ctx context.Context, recording string) (map[string]string, error) {
	out, err := e.run(ctx, recording, []string{recording, "/L:D"})
	if err != nil {
		return nil, err
	}
	return parseDevices(out), nil
}

func parseFiles(out string) *Result {
	res := &Result{Output: out}
	for _, m := range fileRE.FindAllStringSubmatch(out, -1) {
		if m[1] == "Extract Image" {
			res.Extracted = append(res.Extracted, m[2])
		} else {
			res.Existing = append(res.Existing, m[2])
		}
	}
	return res
}

func parsePacketInfo(out string) []string {
	var info []string
	for _, line := range strings.Split(out, "\r") {
		line = strings.Trim(line, "\n")
		line = strings.TrimPrefix(line, "Extract Info: ")
		if line != "" {
			info = append(info, line)
		}
	}
	return info
}

// parseCodecs reads the /L:C listing: three header lines, then one codec
// per line with the fourCC in the first four columns and the description
// from column eight. The list ends at the first line carrying '='.
func parseCodecs(out string) map[string]string {
	codecs := make(map[string]string)
	for i, line := range strings.Split(out, "\n") {
		if i < 3 {
			continue
		}
		line = strings.TrimRight(line, "\r")
		if len(line) < 8 || strings.Contains(line, "=") {
			break
		}
		codecs[line[:4]] = line[8:]
	}
	return codecs
}

// parseDevices reads the /L:D listing: two header lines, then tab-separated
// device name and class per line. Repeated names collect their classes
// semicolon-joined.
func parseDevices(out string) map[string]string {
	devices := make(map[string]string)
	for i, line := range strings.Split(out, "\n") {
		if i < 2 {
			continue
		}
		line = strings.TrimRight(line, "\r")
		key, rest, ok := strings.Cut(line, "\t")
		if !ok || key == "" {
			continue
		}
		value := strings.TrimPrefix(rest, "\t")
		if prev, dup := devices[key]; dup {
			devices[key] = prev + ";" + value
		} else {
			devices[key] = value
		}
	}
	return devices
}
