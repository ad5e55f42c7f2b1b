package driver

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Input is one class file to translate.
type Input struct {
	// Name identifies the input in diagnostics: a file path, or
	// "archive!entry" for archive members.
	Name string
	// ClassPath is the slash-separated path the class name is checked
	// against, such as "p/A.class".
	ClassPath string
	load      func() ([]byte, error)
}

// Read returns the class file bytes.
func (in Input) Read() ([]byte, error) { return in.load() }

// Resource is a non-class file carried into archive output.
type Resource struct {
	Name string
	load func() ([]byte, error)
}

func (r Resource) Read() ([]byte, error) { return r.load() }

// Inputs is the result of discovery. Close releases open archives.
type Inputs struct {
	Classes   []Input
	Resources []Resource
	closers   []io.Closer
}

func (in *Inputs) Close() error {
	var errs []error
	for _, c := range in.closers {
		errs = append(errs, c.Close())
	}
	in.closers = nil
	return errors.Join(errs...)
}

func isArchive(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jar", ".zip", ".apk":
		return true
	}
	return false
}

func isClass(name string) bool { return strings.HasSuffix(name, ".class") }

func fileLoader(path string) func() ([]byte, error) {
	return func() ([]byte, error) { return os.ReadFile(path) }
}

// Discover expands paths into class inputs, in argument order. Directories
// are walked and archives listed in sorted name order.
func Discover(paths []string) (*Inputs, error) {
	out := &Inputs{}
	for _, p := range paths {
		st, err := os.Stat(p)
		if err != nil {
			_ = out.Close()
			return nil, err
		}
		switch {
		case st.IsDir():
			err = out.addDir(p)
		case isArchive(p):
			err = out.addArchive(p)
		case isClass(p):
			out.Classes = append(out.Classes, Input{Name: p, ClassPath: filepath.ToSlash(p), load: fileLoader(p)})
		default:
			err = fmt.Errorf("%s: not a class file, directory or archive", p)
		}
		if err != nil {
			_ = out.Close()
			return nil, err
		}
	}
	return out, nil
}

func (in *Inputs) addDir(dir string) error {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return err
	}
	slices.Sort(files)
	for _, path := range files {
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if isClass(path) {
			in.Classes = append(in.Classes, Input{Name: path, ClassPath: rel, load: fileLoader(path)})
		} else {
			in.Resources = append(in.Resources, Resource{Name: rel, load: fileLoader(path)})
		}
	}
	return nil
}

func (in *Inputs) addArchive(path string) error {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	in.closers = append(in.closers, zr)
	entries := slices.Clone(zr.File)
	slices.SortStableFunc(entries, func(a, b *zip.File) int { return strings.Compare(a.Name, b.Name) })
	for _, f := range entries {
		if f.FileInfo().IsDir() {
			continue
		}
		load := func() ([]byte, error) {
			rc, err := f.Open()
			if err != nil {
				return nil, err
			}
			defer rc.Close()
			return io.ReadAll(rc)
		}
		if isClass(f.Name) {
			in.Classes = append(in.Classes, Input{Name: path + "!" + f.Name, ClassPath: f.Name, load: load})
		} else {
			in.Resources = append(in.Resources, Resource{Name: f.Name, load: load})
		}
	}
	return nil
}
