package driver

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"classdex/internal/version"
)

const (
	dexEntry     = "classes.dex"
	manifestName = "META-INF/MANIFEST.MF"
)

// OutputKind is how the output path is interpreted.
type OutputKind uint8

const (
	OutputDex OutputKind = iota
	OutputArchive
	OutputDir
	OutputStdout
)

func (k OutputKind) String() string {
	switch k {
	case OutputArchive:
		return "archive"
	case OutputDir:
		return "directory"
	case OutputStdout:
		return "stdout"
	}
	return "dex"
}

// ClassifyOutput decides what writing to path means: "-" is stdout, an
// existing directory receives classes.dex, .jar/.zip/.apk is an archive and
// anything ending in .dex is a bare container.
func ClassifyOutput(path string) (OutputKind, error) {
	if path == "-" {
		return OutputStdout, nil
	}
	if st, err := os.Stat(path); err == nil && st.IsDir() {
		return OutputDir, nil
	}
	if isArchive(path) {
		return OutputArchive, nil
	}
	if strings.EqualFold(filepath.Ext(path), ".dex") {
		return OutputDex, nil
	}
	return 0, fmt.Errorf("%s: output must be a .dex file, an archive, a directory or -", path)
}

// writeOutput stores dex at path. Resources are only kept for archives.
func writeOutput(path string, dex []byte, resources []Resource, stdout io.Writer) error {
	kind, err := ClassifyOutput(path)
	if err != nil {
		return err
	}
	switch kind {
	case OutputStdout:
		_, err := stdout.Write(dex)
		return err
	case OutputDir:
		return writeFileAtomic(filepath.Join(path, dexEntry), dex)
	case OutputArchive:
		var buf bytes.Buffer
		if err := writeArchive(&buf, dex, resources); err != nil {
			return err
		}
		return writeFileAtomic(path, buf.Bytes())
	}
	return writeFileAtomic(path, dex)
}

type archiveEntry struct {
	name string
	data func() ([]byte, error)
}

func writeArchive(w io.Writer, dex []byte, resources []Resource) error {
	zw := zip.NewWriter(w)
	var manifest []byte
	for _, r := range resources {
		if r.Name == manifestName {
			b, err := r.Read()
			if err != nil {
				return fmt.Errorf("%s: %w", r.Name, err)
			}
			manifest = b
		}
	}
	entries := []archiveEntry{
		{manifestName, func() ([]byte, error) { return Manifest(manifest), nil }},
		{dexEntry, func() ([]byte, error) { return dex, nil }},
	}
	for _, r := range resources {
		if r.Name == manifestName || r.Name == dexEntry {
			continue
		}
		entries = append(entries, archiveEntry{r.Name, r.Read})
	}
	for _, e := range entries {
		data, err := e.data()
		if err != nil {
			return fmt.Errorf("%s: %w", e.name, err)
		}
		fw, err := zw.Create(e.name)
		if err != nil {
			return err
		}
		if _, err := fw.Write(data); err != nil {
			return err
		}
	}
	return zw.Close()
}

// Manifest rewrites the main section of an input manifest, or starts a new
// one, recording this tool in Created-By.
func Manifest(in []byte) []byte {
	var main, rest []string
	text := strings.ReplaceAll(string(in), "\r\n", "\n")
	head, tail, _ := strings.Cut(text, "\n\n")
	for _, line := range strings.Split(head, "\n") {
		key, _, _ := strings.Cut(line, ":")
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "", "manifest-version", "created-by", "dex-location":
			continue
		}
		main = append(main, line)
	}
	if tail = strings.TrimSpace(tail); tail != "" {
		rest = strings.Split(tail, "\n")
	}

	var sb strings.Builder
	sb.WriteString("Manifest-Version: 1.0\r\n")
	sb.WriteString("Created-By: classdex " + version.Get().Version + "\r\n")
	sb.WriteString("Dex-Location: " + dexEntry + "\r\n")
	for _, l := range main {
		sb.WriteString(l + "\r\n")
	}
	sb.WriteString("\r\n")
	for _, l := range rest {
		sb.WriteString(l + "\r\n")
	}
	return []byte(sb.String())
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, ".classdex-*")
	if err != nil {
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return err
	}
	return os.Rename(f.Name(), path)
}
