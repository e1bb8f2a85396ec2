// Package checksum fingerprints files, directory trees and string lists for
// recording and result bookkeeping. Walks are sorted so a tree hashes to the
// same value on every station regardless of filesystem enumeration order.
package checksum

import (
	"context"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/openadas/stk/internal/deprecate"
)

// Per-file read caps of the named modes.
const (
	fastLimit    = 1024
	contentLimit = 128_000_000
)

// Mode selects how much of each file feeds the hash.
type Mode int

const (
	// ModeFull hashes complete file contents.
	ModeFull Mode = iota
	// ModeFast hashes only the first KiB of each file.
	ModeFast
	// ModeContent caps reads at 128 MB, halved while the cap still covers
	// the whole file. Used for content hashes stored in the results DB.
	ModeContent
)

// ParseMode maps a mode name to its Mode. The empty string selects ModeFull.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "full":
		return ModeFull, nil
	case "fast":
		return ModeFast, nil
	case "content":
		return ModeContent, nil
	}
	return ModeFull, fmt.Errorf("checksum: unknown mode %q", s)
}

// Options tunes a hashing run. The zero value hashes everything with SHA-256.
type Options struct {
	Mode Mode

	// Limit caps the bytes read per file. Zero selects the mode default.
	Limit int64

	// Ignore lists glob patterns; a file or directory is skipped when a
	// pattern matches its base name or its slash-separated path.
	Ignore []string

	// New constructs the hash. Nil selects sha256.New.
	New func() hash.Hash
}

func (o Options) hasher() hash.Hash {
	if o.New != nil {
		return o.New()
	}
	return sha256.New()
}

func (o Options) ignored(path string) bool {
	base := filepath.Base(path)
	slash := filepath.ToSlash(path)
	for _, pat := range o.Ignore {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pat, slash); ok {
			return true
		}
	}
	return false
}

// limitFor returns the byte cap for a file of the given size.
func (o Options) limitFor(size int64) int64 {
	if o.Limit > 0 {
		if o.Limit < size {
			return o.Limit
		}
		return size
	}
	switch o.Mode {
	case ModeFast:
		if size < fastLimit {
			return size
		}
		return fastLimit
	case ModeContent:
		limit := int64(contentLimit)
		for size <= limit {
			limit /= 2
		}
		return limit
	default:
		return size
	}
}

// Files hashes the given files and directories in sorted order and returns
// the hex digest. Directories are walked recursively; zero-size files and
// ignored entries do not contribute.
func Files(paths []string, opt Options) (string, error) {
	h := opt.hasher()
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	for _, p := range sorted {
		info, err := os.Stat(p)
		if err != nil {
			return "", fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if info.IsDir() {
			err = walkTree(p, opt, func(path string, size int64) error {
				return hashFile(h, path, size, opt)
			})
		} else if !opt.ignored(p) && info.Size() > 0 {
			err = hashFile(h, p, info.Size(), opt)
		}
		if err != nil {
			return "", err
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Strings hashes the given strings in order, each capped at the mode limit,
// and returns the hex digest.
func Strings(values []string, opt Options) string {
	h := opt.hasher()
	for _, v := range values {
		limit := int64(len(v))
		switch {
		case opt.Limit > 0 && opt.Limit < limit:
			limit = opt.Limit
		case opt.Mode == ModeFast && fastLimit < limit:
			limit = fastLimit
		case opt.Mode == ModeContent && contentLimit < limit:
			limit = contentLimit
		}
		io.WriteString(h, v[:limit])
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Tree hashes every regular file under root concurrently, then folds the
// per-file digests in path order into one tree digest. Workers bounds the
// concurrency; zero selects the CPU count. The digest differs from Files,
// which streams all bytes through a single hash.
func Tree(ctx context.Context, root string, workers int, opt Options) (string, error) {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	var paths []string
	var sizes []int64
	err := walkTree(root, opt, func(path string, size int64) error {
		paths = append(paths, path)
		sizes = append(sizes, size)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to walk %s: %w", root, err)
	}

	digests := make([][]byte, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			h := opt.hasher()
			if err := hashFile(h, paths[i], sizes[i], opt); err != nil {
				return err
			}
			digests[i] = h.Sum(nil)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	h := opt.hasher()
	for i, d := range digests {
		rel, err := filepath.Rel(root, paths[i])
		if err != nil {
			rel = paths[i]
		}
		io.WriteString(h, filepath.ToSlash(rel))
		h.Write(d)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// walkTree calls fn for every regular non-empty file under root in lexical
// order. Ignored directories are pruned whole.
func walkTree(root string, opt Options, fn func(path string, size int64) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && opt.ignored(path) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || opt.ignored(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if info.Size() == 0 {
			return nil
		}
		return fn(path, info.Size())
	})
}

func hashFile(h hash.Hash, path string, size int64, opt Options) error {
	limit := opt.limitFor(size)
	if limit <= 0 {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.CopyN(h, f, limit); err != nil && err != io.EOF {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	return nil
}

// CreateFromString hashes a single string with MD5.
//
// Deprecated: use Strings.
func CreateFromString(s string) string {
	deprecate.Warn("checksum.CreateFromString", "checksum.Strings")
	return Strings([]string{s}, Options{New: md5.New})
}

// CreateFromFile hashes a whole file with MD5.
//
// Deprecated: use Files.
func CreateFromFile(path string) (string, error) {
	deprecate.Warn("checksum.CreateFromFile", "checksum.Files")
	return Files([]string{path}, Options{New: md5.New})
}

// CreateFromFolder hashes a directory tree with SHA-256, skipping entries
// matching the ignore patterns.
//
// Deprecated: use Files.
func CreateFromFolder(root string, ignore []string) (string, error) {
	deprecate.Warn("checksum.CreateFromFolder", "checksum.Files")
	return Files([]string{root}, Options{Ignore: ignore})
}
