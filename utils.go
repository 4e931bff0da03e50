package yolotv

import (
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

// filesByExtInDir returns all regular files with file extension ext found in directory dirPath,
// sorted by path. Subdirectories are searched too if recursive is true. All files are returned if
// ext is empty.
func filesByExtInDir(dirPath, ext string, recursive bool) ([]string, error) {
	dirInfo, err := os.Stat(dirPath)
	if err != nil {
		return nil, fmt.Errorf("cannot read directory %q: %w", dirPath, err)
	}
	if !dirInfo.IsDir() {
		return nil, fmt.Errorf("cannot read directory %q: not a directory", dirPath)
	}

	files := make([]string, 0, 100)
	err = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("Failed to access %q: %v", path, err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != dirPath && !recursive {
				return fs.SkipDir
			}
			return nil
		}
		// Must be a regular file or a symlink and have the requested extension.
		if (!d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0) ||
				(ext != "" && !strings.EqualFold(filepath.Ext(d.Name()), ext)) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.Sort(files)
	return files, nil
}

// splitPath splits the given file path into the dir name, the base name without extension and the
// extension (without the dot).
func splitPath(path string) (dir, baseNoExt, ext string, err error) {
	dir, file := filepath.Split(path)
	ext = filepath.Ext(file)
	if ext == "" {
		return "", "", "", fmt.Errorf("missing file extension in %q", path)
	}

	dir = strings.TrimSuffix(dir, string(os.PathSeparator))
	baseNoExt = file[0 : len(file)-len(ext)]
	ext = ext[1:]

	return dir, baseNoExt, ext, nil
}

// tempPath returns a unique hidden path in the directory of path. It keeps the file extension of
// path, which some encoders use to select the output format.
func tempPath(path string) string {
	dir, file := filepath.Split(path)
	return filepath.Join(dir, "."+uuid.NewString()+"-"+file)
}

// writeFileAtomic writes data to a temporary file next to path and renames it to path, so that
// path never holds partial content.
func writeFileAtomic(path string, data []byte) error {
	return replaceFile(path, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

// replaceFile creates a temporary file next to path, calls write on it and, if that succeeds,
// renames the file to path. The temporary file is removed on failure.
func replaceFile(path string, write func(w io.Writer) error) (err error) {
	tmp := tempPath(path)
	if err := writeNewFile(tmp, write); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("cannot write file %q: %w", path, err)
	}
	return nil
}

// writeNewFile creates the file at path and calls write on it.
func writeNewFile(path string, write func(w io.Writer) error) (err error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(file, &err)

	return write(file)
}

// copyFile copies the file at src to dst, replacing dst atomically.
func copyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer closeWithErrCheck(in, &err)

	return replaceFile(dst, func(w io.Writer) error {
		_, err := io.Copy(w, in)
		return err
	})
}

// closeWithErrCheck calls c.Close(). If it returns an error, and (*e == nil), e is set to that
// error.
func closeWithErrCheck(c io.Closer, e *error) {
	err := c.Close()
	if err != nil && *e == nil {
		*e = err
	}
}
