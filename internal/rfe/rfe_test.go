package rfe

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"
)

// fakeExtractor installs a shell script that answers like the real binary.
func fakeExtractor(t *testing.T) *Extractor {
	t.Helper()
	script := `#!/bin/sh
case "$*" in
*"/L:C"*)
  printf 'RecFileExtractor V3.5\r\nInstalled codecs:\r\n\r\nXVID    Xvid MPEG-4 Codec\r\nDIV3    DivX 3 Low-Motion\r\nUsage = see manual\r\n'
  ;;
*"/L:D"*)
  printf 'Devices in recording:\r\nname\tclass\r\nvideo\tMFC3xx_long_image\r\nvideo\t\tMFC3xx_short_image\r\ncan\tbus_raw\r\n'
  ;;
*"/I"*)
  printf 'Reading recording\r\nStartTime: 1000 StopTime: 9000\r\n'
  ;;
*bad.rec*)
  printf 'cannot open recording\r\n'
  exit 3
  ;;
*slow.rec*)
  sleep 2
  ;;
*)
  printf 'Extract Image: 12345678.jpeg\r\n'
  printf '\fExtract Image: 12345738.jpeg\r\n'
  printf 'Already existing: 12345798.JPEG\r\n'
  ;;
esac
`
	path := filepath.Join(t.TempDir(), "RecFileExtractor")
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatal(err)
	}
	e, err := New(path)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return e
}

func TestNewMissingBinary(t *testing.T) {
	if _, err := New("/no/such/extractor.exe"); err == nil {
		t.Error("New() accepted a missing executable")
	}
}

func TestExtractOptionsArgs(t *testing.T) {
	opts := ExtractOptions{
		Start:      0,
		Stop:       5_000_000,
		Step:       60_000,
		Folder:     "out/images",
		Format:     FormatBMP,
		Codec:      "XVID",
		Device:     "video",
		Channel:    "MFC3xx_long_image",
		Color:      true,
		Brightness: BrightnessFullDynamic,
	}
	got := opts.args("drive.rec")
	want := []string{
		"drive.rec", "/T:0", "/U:5000000", "/S:60000", "/O:out/images",
		"/F:bmp", "/G:XVID", "/D:video", "/C:MFC3xx_long_image", "/R", "/B:FD",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("args() = %v, want %v", got, want)
	}

	// unset timestamps are omitted
	got = DefaultExtractOptions().args("drive.rec")
	want = []string{"drive.rec", "/F:jpeg", "/D:video"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("default args() = %v, want %v", got, want)
	}
}

func TestExtractOptionsValidate(t *testing.T) {
	opts := DefaultExtractOptions()
	opts.Format = "tiff"
	if _, err := fakeExtractor(t).ExtractImages(context.Background(), "drive.rec", opts); err == nil {
		t.Error("ExtractImages() accepted unknown format")
	}

	opts = DefaultExtractOptions()
	opts.Brightness = "XX"
	if _, err := fakeExtractor(t).ExtractImages(context.Background(), "drive.rec", opts); err == nil {
		t.Error("ExtractImages() accepted unknown brightness")
	}
}

func TestExtractImages(t *testing.T) {
	e := fakeExtractor(t)
	folder := filepath.Join(t.TempDir(), "images")
	opts := DefaultExtractOptions()
	opts.Start = 1_000_000
	opts.Stop = 2_000_000
	opts.Folder = folder

	res, err := e.ExtractImages(context.Background(), "drive.rec", opts)
	if err != nil {
		t.Fatalf("ExtractImages() error = %v", err)
	}
	wantNew := []string{"12345678.jpeg", "12345738.jpeg"}
	if !reflect.DeepEqual(res.Extracted, wantNew) {
		t.Errorf("Extracted = %v, want %v", res.Extracted, wantNew)
	}
	wantOld := []string{"12345798.JPEG"}
	if !reflect.DeepEqual(res.Existing, wantOld) {
		t.Errorf("Existing = %v, want %v", res.Existing, wantOld)
	}
	if strings.Contains(res.Output, "\f") {
		t.Error("form feeds not stripped from output")
	}
	if _, err := os.Stat(folder); err != nil {
		t.Errorf("output folder not created: %v", err)
	}
	if got := res.Files(); len(got) != 3 {
		t.Errorf("Files() = %v, want 3 names", got)
	}
}

func TestExtractImage(t *testing.T) {
	e := fakeExtractor(t)
	res, err := e.ExtractImage(context.Background(), "drive.rec", 12345678, DefaultExtractOptions())
	if err != nil {
		t.Fatalf("ExtractImage() error = %v", err)
	}
	if len(res.Extracted) == 0 {
		t.Error("ExtractImage() parsed no files")
	}
}

func TestInfo(t *testing.T) {
	e := fakeExtractor(t)
	info, err := e.Info(context.Background(), "drive.rec")
	if err != nil {
		t.Fatalf("Info() error = %v", err)
	}
	if info.Start != 1000 || info.Stop != 9000 {
		t.Errorf("Info() = %+v, want {1000 9000}", info)
	}
}

func TestCodecs(t *testing.T) {
	e := fakeExtractor(t)
	codecs, err := e.Codecs(context.Background())
	if err != nil {
		t.Fatalf("Codecs() error = %v", err)
	}
	want := map[string]string{
		"XVID": "Xvid MPEG-4 Codec",
		"DIV3": "DivX 3 Low-Motion",
	}
	if !reflect.DeepEqual(codecs, want) {
		t.Errorf("Codecs() = %v, want %v", codecs, want)
	}
}

func TestDevices(t *testing.T) {
	e := fakeExtractor(t)
	devices, err := e.Devices(context.Background(), "drive.rec")
	if err != nil {
		t.Fatalf("Devices() error = %v", err)
	}
	want := map[string]string{
		"video": "MFC3xx_long_image;MFC3xx_short_image",
		"can":   "bus_raw",
	}
	if !reflect.DeepEqual(devices, want) {
		t.Errorf("Devices() = %v, want %v", devices, want)
	}
}

func TestExitError(t *testing.T) {
	e := fakeExtractor(t)
	_, err := e.ExtractImages(context.Background(), "bad.rec", DefaultExtractOptions())
	if err == nil {
		t.Fatal("ExtractImages() on failing recording: expected error")
	}
	var xe *ExitError
	if !errors.As(err, &xe) {
		t.Fatalf("error type = %T, want *ExitError", err)
	}
	if xe.Code != 3 {
		t.Errorf("exit code = %d, want 3", xe.Code)
	}
	if !strings.Contains(xe.Output, "cannot open recording") {
		t.Errorf("ExitError output = %q, want captured tool output", xe.Output)
	}
}

func TestRunHonorsContext(t *testing.T) {
	e := fakeExtractor(t)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.ExtractImages(ctx, "slow.rec", DefaultExtractOptions())
	if err == nil {
		t.Fatal("ExtractImages() survived context timeout")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("context timeout not honored, took %s", elapsed)
	}
}
