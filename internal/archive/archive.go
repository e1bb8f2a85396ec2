// Package archive packs and unpacks the zip and 7z containers recordings and
// result bundles travel in. Zip handling is native; 7z archives shell out to
// the station's 7z installation.
package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/openadas/stk/internal/deprecate"
	"github.com/openadas/stk/internal/monitoring"
	"github.com/openadas/stk/internal/security"
)

// SevenZipBinary is the executable used for .7z archives. Stations with a
// non-standard install can point it elsewhere.
var SevenZipBinary = "7z"

// Unzip extracts a zip archive into dest, creating it on demand. Existing
// files are overwritten. Returns the extracted paths.
func Unzip(src, dest string) ([]string, error) {
	r, err := zip.OpenReader(src)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer r.Close()

	if err := os.MkdirAll(dest, 0755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dest, err)
	}

	var extracted []string
	for _, f := range r.File {
		target := filepath.Join(dest, filepath.FromSlash(f.Name))
		if err := security.WithinDir(dest, target); err != nil {
			return extracted, fmt.Errorf("refusing entry %q: %w", f.Name, err)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return extracted, fmt.Errorf("failed to create %s: %w", target, err)
			}
			continue
		}
		if err := extractOne(f, target); err != nil {
			return extracted, err
		}
		extracted = append(extracted, target)
	}
	return extracted, nil
}

func extractOne(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(target), err)
	}
	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("failed to open entry %s: %w", f.Name, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, f.Mode().Perm()|0200)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, rc); err != nil {
		return fmt.Errorf("failed to extract %s: %w", f.Name, err)
	}
	return out.Close()
}

// Zip packs the tree rooted at root into a zip archive at dest. Entry names
// are slash paths relative to root; the archive file itself is skipped when
// it lives inside root.
func Zip(root, dest string) error {
	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()

	absDest, _ := filepath.Abs(dest)
	w := zip.NewWriter(out)
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}
		if abs, _ := filepath.Abs(path); abs == absDest {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		entry, err := w.Create(filepath.ToSlash(rel))
		if err != nil {
			return fmt.Errorf("failed to add %s: %w", rel, err)
		}
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", path, err)
		}
		defer f.Close()
		_, err = io.Copy(entry, f)
		return err
	})
	if err != nil {
		w.Close()
		return fmt.Errorf("failed to pack %s: %w", root, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish %s: %w", dest, err)
	}
	return out.Close()
}

// Un7zip extracts a 7z archive into dest using the station's 7z binary with
// overwrite and auto-rename. Quiet discards the tool's console output.
func Un7zip(ctx context.Context, src, dest string, quiet bool) error {
	bin, err := exec.LookPath(SevenZipBinary)
	if err != nil {
		return fmt.Errorf("7z executable not found: %w", err)
	}
	if err := os.MkdirAll(dest, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	// x: extract with paths, -aot: auto rename existing, -y: assume yes
	cmd := exec.CommandContext(ctx, bin, "x", src, "-aot", "-y", "-o"+dest)
	if quiet {
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
	} else {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to unpack %s: %w", src, err)
	}
	return nil
}

// UnpackAll extracts every *.zip and *.7z under srcDir into dest and returns
// how many archives were unpacked. The walk is recursive; 7z archives need
// the external binary and are skipped with a log line when extraction fails.
func UnpackAll(ctx context.Context, srcDir, dest string, quiet bool) (int, error) {
	count := 0
	err := filepath.WalkDir(srcDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".zip":
			if _, err := Unzip(path, dest); err != nil {
				return err
			}
			count++
		case ".7z":
			if err := Un7zip(ctx, path, dest, quiet); err != nil {
				monitoring.Logf("skipping %s: %v", path, err)
				return nil
			}
			count++
		}
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("failed to unpack %s: %w", srcDir, err)
	}
	return count, nil
}

// UnzipFile extracts a zip archive.
//
// Deprecated: use Unzip.
func UnzipFile(src, dest string) error {
	deprecate.Warn("archive.UnzipFile", "archive.Unzip")
	_, err := Unzip(src, dest)
	return err
}

// Un7zipFile extracts a 7z archive.
//
// Deprecated: use Un7zip.
func Un7zipFile(src, dest string, quiet bool) error {
	deprecate.Warn("archive.Un7zipFile", "archive.Un7zip")
	return Un7zip(context.Background(), src, dest, quiet)
}

// UnpackAllFiles extracts every archive under srcDir.
//
// Deprecated: use UnpackAll.
func UnpackAllFiles(srcDir, dest string, quiet bool) error {
	deprecate.Warn("archive.UnpackAllFiles", "archive.UnpackAll")
	_, err := UnpackAll(context.Background(), srcDir, dest, quiet)
	return err
}
