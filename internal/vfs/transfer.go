package vfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
)

// SelectTimeout bounds how long ImportFile waits for a selection.
const SelectTimeout = 30 * time.Minute

// PickedFile is a file chosen by a Picker.
type PickedFile struct {
	Name string
	Data []byte
}

// Picker asks the user for local files. filter is a comma separated list
// of accepted suffixes such as ".js,.lua"; empty accepts anything. When
// multiple is false at most one file is returned.
type Picker interface {
	Pick(ctx context.Context, filter string, multiple bool) ([]PickedFile, error)
}

// Downloader hands a file to the user.
type Downloader interface {
	Download(name string, data []byte) error
}

// ImportFile asks picker for files and writes them below target. With
// autoGuessName each file keeps its own name inside the target directory;
// otherwise target is the destination file itself. It returns the paths
// written.
func (f *FS) ImportFile(ctx context.Context, picker Picker, target string, autoGuessName, bulk bool, filter string) ([]string, error) {
	files, err := pick(ctx, picker, filter, bulk)
	if err != nil {
		return nil, err
	}

	target = Clean(target)
	var written []string
	for _, file := range files {
		dest := target
		if autoGuessName {
			dest = path.Join(target, localBase(file.Name))
		}
		if err := f.WriteFile(dest, file.Data); err != nil {
			return written, err
		}
		f.log.Debugw("Imported file", "path", dest, "size", len(file.Data))
		written = append(written, dest)
	}
	return written, nil
}

// localBase returns the last element of a local path from any platform.
func localBase(name string) string {
	return path.Base(strings.ReplaceAll(name, `\`, "/"))
}

// pick runs the picker under SelectTimeout.
func pick(ctx context.Context, picker Picker, filter string, multiple bool) ([]PickedFile, error) {
	ctx, cancel := context.WithTimeout(ctx, SelectTimeout)
	defer cancel()

	type result struct {
		files []PickedFile
		err   error
	}
	done := make(chan result, 1)
	go func() {
		files, err := picker.Pick(ctx, filter, multiple)
		done <- result{files, err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return nil, ErrSelectTimeout
			}
			return nil, r.err
		}
		if len(r.files) == 0 {
			return nil, ErrNoSelection
		}
		if !multiple {
			r.files = r.files[:1]
		}
		return r.files, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrSelectTimeout
		}
		return nil, ctx.Err()
	}
}

// ExportFile reads name and hands it to d under its base name.
func (f *FS) ExportFile(name string, d Downloader) error {
	name = Clean(name)
	data, err := f.ReadFile(name)
	if err != nil {
		return err
	}
	return d.Download(path.Base(name), data)
}

// PathPicker picks from a fixed list of local files, as given on a command
// line.
type PathPicker struct {
	Paths []string
}

// Pick implements Picker. Files not matching filter are skipped.
func (p PathPicker) Pick(ctx context.Context, filter string, multiple bool) ([]PickedFile, error) {
	accept := acceptFilter(filter)
	var files []PickedFile
	for _, name := range p.Paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !accept(name) {
			continue
		}
		data, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		files = append(files, PickedFile{Name: filepath.Base(name), Data: data})
		if !multiple {
			break
		}
	}
	return files, nil
}

// acceptFilter builds a matcher for a comma separated suffix list.
func acceptFilter(filter string) func(string) bool {
	suffixes := lo.FilterMap(strings.Split(filter, ","), func(s string, _ int) (string, bool) {
		s = strings.ToLower(strings.TrimSpace(s))
		return s, s != "" && s != "*"
	})
	return func(name string) bool {
		if len(suffixes) == 0 {
			return true
		}
		name = strings.ToLower(name)
		return lo.SomeBy(suffixes, func(s string) bool {
			return strings.HasSuffix(name, s)
		})
	}
}

// DirDownloader saves downloads into a local directory.
type DirDownloader struct {
	Dir string
}

// Download implements Downloader.
func (d DirDownloader) Download(name string, data []byte) error {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return err
	}
	dest := filepath.Join(d.Dir, filepath.Base(name))
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return fmt.Errorf("saving %s: %w", name, err)
	}
	return nil
}
