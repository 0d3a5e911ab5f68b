package vfs

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"
)

// DumpName is the file name DownloadZip saves under.
const DumpName = "filesystem-dump.zip"

// ExportZip writes the whole tree to w as a ZIP archive. Entries are the
// absolute paths without the leading slash; directories are zero byte
// entries with a trailing slash.
func (f *FS) ExportZip(w io.Writer) error {
	zw := zip.NewWriter(w)
	count := 0
	err := f.Walk("/", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == "/" {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}

		name := strings.TrimPrefix(p, "/")
		if d.IsDir() {
			_, err := zw.CreateHeader(&zip.FileHeader{
				Name:     name + "/",
				Method:   zip.Store,
				Modified: info.ModTime(),
			})
			return err
		}

		data, err := f.backend.ReadFile(p)
		if err != nil {
			return err
		}
		out, err := zw.CreateHeader(&zip.FileHeader{
			Name:     name,
			Method:   zip.Deflate,
			Modified: info.ModTime(),
		})
		if err != nil {
			return err
		}
		if _, err := out.Write(data); err != nil {
			return err
		}
		count++
		return nil
	})
	if err != nil {
		zw.Close()
		return fmt.Errorf("exporting archive: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("exporting archive: %w", err)
	}
	f.log.Infow("ZIP export finished", "files", count)
	return nil
}

// ImportZip replaces the whole tree with the contents of a ZIP archive.
// The archive is opened first, so an unreadable archive leaves the tree
// alone; after that the tree is wiped and entries are written one by one.
// A failure part way leaves whatever was written so far.
func (f *FS) ImportZip(r io.ReaderAt, size int64) error {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return fmt.Errorf("reading archive: %w", err)
	}

	start := time.Now()
	if err := f.Format(); err != nil {
		return fmt.Errorf("clearing filesystem: %w", err)
	}

	count := 0
	for _, entry := range zr.File {
		isDir := strings.HasSuffix(entry.Name, "/") && entry.UncompressedSize64 == 0
		dir := path.Dir(Clean(entry.Name))
		if isDir {
			dir = Clean(entry.Name)
		}
		if err := f.MkdirRecursive(dir); err != nil {
			return fmt.Errorf("importing %s: %w", entry.Name, err)
		}
		if isDir {
			continue
		}

		data, err := readEntry(entry)
		if err != nil {
			return fmt.Errorf("importing %s: %w", entry.Name, err)
		}
		if err := f.WriteFile(entry.Name, data); err != nil {
			return fmt.Errorf("importing %s: %w", entry.Name, err)
		}
		count++
	}
	f.log.Infow("ZIP import finished", "files", count, "took", time.Since(start))
	return nil
}

func readEntry(entry *zip.File) ([]byte, error) {
	rc, err := entry.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// DownloadZip exports the tree and hands it to d as DumpName.
func (f *FS) DownloadZip(d Downloader) error {
	var buf bytes.Buffer
	if err := f.ExportZip(&buf); err != nil {
		return err
	}
	return d.Download(DumpName, buf.Bytes())
}
