package driver

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classdex/internal/buildpipeline"
	"classdex/internal/classfile/classfiletest"
	"classdex/internal/diag"
	"classdex/internal/dexfile"
	"classdex/internal/translate"
)

// classBytes builds a public class with a default constructor.
func classBytes(name, super string) []byte {
	b := classfiletest.New()
	ctor := b.Method(super, "<init>", "()V")
	return b.Bytes(classfiletest.Class{
		Flags: 0x21,
		This:  name,
		Super: super,
		Methods: []classfiletest.Member{{Flags: 0x1, Name: "<init>", Desc: "()V", Attrs: []classfiletest.Attr{
			b.Code(1, 1, classfiletest.Cat([]byte{0x2a, 0xb7}, classfiletest.U2(ctor), []byte{0xb1}), nil),
		}}},
	})
}

func writeFiles(t *testing.T, dir string, files map[string][]byte) {
	t.Helper()
	for name, data := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, data, 0o644))
	}
}

func testOptions(out string, inputs ...string) Options {
	cf := translate.DefaultOptions()
	cf.Optimize = true
	return Options{Inputs: inputs, Output: out, Cf: cf, Stderr: &bytes.Buffer{}}
}

func sampleTree(t *testing.T) string {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{
		"p/A.class": classBytes("p/A", "java/lang/Object"),
		"p/B.class": classBytes("p/B", "p/A"),
	})
	return dir
}

type recordingSink struct {
	mu     sync.Mutex
	events []buildpipeline.Event
}

func (s *recordingSink) OnEvent(evt buildpipeline.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, evt)
}

func (s *recordingSink) finished() []buildpipeline.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []buildpipeline.Event
	for _, e := range s.events {
		if e.Status.Finished() {
			out = append(out, e)
		}
	}
	return out
}

func TestCheckClassName(t *testing.T) {
	tests := []struct {
		path string
		core bool
	}{
		{"java/lang/String.class", true},
		{"javax/Foo.class", true},
		{"javax/swing/JFrame.class", true},
		{"javax/xml/parsers/X.class", true},
		{"javax/inject/Inject.class", false},
		{"javafx/Foo.class", false},
		{"p/java/X.class", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := checkClassName(tt.path, false)
			if tt.core {
				assert.ErrorIs(t, err, ErrCoreClass)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, checkClassName(tt.path, true))
		})
	}
}

func TestClassifyOutput(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		path string
		want OutputKind
	}{
		{"-", OutputStdout},
		{dir, OutputDir},
		{"out.jar", OutputArchive},
		{"out.APK", OutputArchive},
		{"out.dex", OutputDex},
	}
	for _, tt := range tests {
		got, err := ClassifyOutput(tt.path)
		require.NoError(t, err, tt.path)
		assert.Equal(t, tt.want, got, tt.path)
	}
	_, err := ClassifyOutput("out.txt")
	assert.Error(t, err)
}

func TestManifest(t *testing.T) {
	in := "Manifest-Version: 1.0\r\nCreated-By: javac\r\nMain-Class: p.Main\r\n\r\nName: p/A.class\r\nSealed: true\r\n"
	got := string(Manifest([]byte(in)))
	assert.Contains(t, got, "Created-By: classdex ")
	assert.NotContains(t, got, "javac")
	assert.Contains(t, got, "Main-Class: p.Main\r\n")
	assert.Contains(t, got, "Dex-Location: classes.dex\r\n")
	assert.Contains(t, got, "\r\n\r\nName: p/A.class\r\nSealed: true\r\n")

	fresh := string(Manifest(nil))
	assert.Equal(t, "Manifest-Version: 1.0\r\n", fresh[:len("Manifest-Version: 1.0\r\n")])
}

func TestFingerprint(t *testing.T) {
	data := []byte{1, 2, 3}
	opts := translate.DefaultOptions()
	a, err := Fingerprint(opts, "p/A.class", data)
	require.NoError(t, err)
	b, err := Fingerprint(opts, "p/A.class", data)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	c, err := Fingerprint(opts, "q/A.class", data)
	require.NoError(t, err)
	assert.NotEqual(t, a, c, "path is checked under the strict name check")

	opts.Optimize = true
	d, err := Fingerprint(opts, "p/A.class", data)
	require.NoError(t, err)
	assert.NotEqual(t, a, d)

	opts.StrictNameCheck = false
	e, _ := Fingerprint(opts, "p/A.class", data)
	f, _ := Fingerprint(opts, "q/A.class", data)
	assert.Equal(t, e, f)
}

func TestRunWritesDex(t *testing.T) {
	dir := sampleTree(t)
	out := filepath.Join(t.TempDir(), "classes.dex")
	sink := &recordingSink{}
	opts := testOptions(out, dir)
	opts.Progress = sink
	var phases []string
	opts.OnPhase = func(e PhaseEvent) {
		if e.Status == PhaseEnd {
			phases = append(phases, e.Name)
		}
	}

	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Classes)
	assert.Zero(t, res.Failed)
	assert.Equal(t, []string{PhaseDiscover, PhaseTranslate, PhaseWrite}, phases)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, res.Bytes, len(data))
	dex, err := dexfile.Read(data)
	require.NoError(t, err)
	require.Len(t, dex.Classes, 2)
	assert.Equal(t, "Lp/A;", dex.Classes[0].Class.Descriptor)
	assert.Equal(t, "Lp/B;", dex.Classes[1].Class.Descriptor)

	done := sink.finished()
	require.Len(t, done, 2)
	assert.Equal(t, filepath.Join(dir, "p", "A.class"), done[0].File)
	assert.Equal(t, buildpipeline.StatusDone, done[1].Status)
}

func TestRunIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	files := map[string][]byte{}
	for _, n := range []string{"a", "b", "c", "d", "e", "f", "g", "h"} {
		files["p/"+n+".class"] = classBytes("p/"+n, "java/lang/Object")
	}
	writeFiles(t, dir, files)

	var outputs [][]byte
	for _, jobs := range []int{1, 8} {
		var buf bytes.Buffer
		opts := testOptions("-", dir)
		opts.Jobs = jobs
		opts.Stdout = &buf
		_, err := Run(context.Background(), opts)
		require.NoError(t, err)
		outputs = append(outputs, buf.Bytes())
	}
	assert.Equal(t, outputs[0], outputs[1])
}

func TestRunArchiveRoundTrip(t *testing.T) {
	tmp := t.TempDir()
	in := filepath.Join(tmp, "in.jar")
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, data := range map[string][]byte{
		"p/A.class":  classBytes("p/A", "java/lang/Object"),
		"res/a.txt":  []byte("hello"),
		manifestName: []byte("Manifest-Version: 1.0\r\nMain-Class: p.A\r\n\r\n"),
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write(data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, os.WriteFile(in, buf.Bytes(), 0o644))

	out := filepath.Join(tmp, "out.jar")
	res, err := Run(context.Background(), testOptions(out, in))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Classes)

	zr, err := zip.OpenReader(out)
	require.NoError(t, err)
	defer zr.Close()
	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Equal(t, []string{manifestName, dexEntry, "res/a.txt"}, names)
}

func TestRunStopsAtErrorThreshold(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{
		"a/X.class": {0xca, 0xfe},
		"b/X.class": {0xca, 0xfe},
		"c/X.class": {0xca, 0xfe},
	})
	opts := testOptions(filepath.Join(t.TempDir(), "out.dex"), dir)
	opts.MaxErrors = 2
	opts.Jobs = 1
	res, err := Run(context.Background(), opts)
	require.ErrorIs(t, err, ErrTooManyErrors)
	assert.Equal(t, 2, res.Failed)
	for _, d := range res.Bag.Items() {
		assert.Equal(t, diag.ParseMalformed, d.Code)
	}
}

func TestRunWithFailuresWritesNothing(t *testing.T) {
	dir := sampleTree(t)
	writeFiles(t, dir, map[string][]byte{"q/Bad.class": {0xca, 0xfe, 0xba, 0xbe}})
	out := filepath.Join(t.TempDir(), "out.dex")
	res, err := Run(context.Background(), testOptions(out, dir))
	require.ErrorIs(t, err, ErrClassErrors)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 2, res.Classes)
	assert.NoFileExists(t, out)
	require.Equal(t, 1, res.Bag.Len())
	assert.Equal(t, filepath.Join(dir, "q", "Bad.class"), res.Bag.Items()[0].Input)
}

// uninitializedRead is p/K whose static f()I returns a local it never stored.
func uninitializedRead() []byte {
	b := classfiletest.New()
	return b.Bytes(classfiletest.Class{
		Flags: 0x21,
		This:  "p/K",
		Super: "java/lang/Object",
		Methods: []classfiletest.Member{{Flags: 0x9, Name: "f", Desc: "()I", Attrs: []classfiletest.Attr{
			b.Code(1, 2, []byte{0x1b, 0xac}, nil),
		}}},
	})
}

func TestRunCountsUninitializedReadAsClassFailure(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{
		"p/A.class": classBytes("p/A", "java/lang/Object"),
		"p/K.class": uninitializedRead(),
	})
	opts := testOptions(filepath.Join(t.TempDir(), "out.dex"), dir)
	opts.Jobs = 1

	res, err := Run(context.Background(), opts)
	require.ErrorIs(t, err, ErrClassErrors)
	assert.NotErrorIs(t, err, ErrTooManyErrors)
	assert.Equal(t, 1, res.Failed)
	assert.Equal(t, 1, res.Classes)
	require.Equal(t, 1, res.Bag.Len())
	assert.Equal(t, diag.TransMalformed, res.Bag.Items()[0].Code)
	assert.Empty(t, opts.Stderr.(*bytes.Buffer).String())
}

func TestRunNameMismatch(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{"q/A.class": classBytes("p/A", "java/lang/Object")})
	res, err := Run(context.Background(), testOptions(filepath.Join(t.TempDir(), "out.dex"), dir))
	require.ErrorIs(t, err, ErrClassErrors)
	assert.Equal(t, diag.ParseNameMismatch, res.Bag.Items()[0].Code)
}

func TestRunRejectsCoreClasses(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string][]byte{"java/lang/Foo.class": classBytes("java/lang/Foo", "java/lang/Object")})
	out := filepath.Join(t.TempDir(), "out.dex")

	res, err := Run(context.Background(), testOptions(out, dir))
	require.ErrorIs(t, err, ErrCoreClass)
	assert.Equal(t, diag.InputCoreClass, res.Bag.Items()[0].Code)

	opts := testOptions(out, dir)
	opts.CoreLibrary = true
	_, err = Run(context.Background(), opts)
	require.NoError(t, err)
	assert.FileExists(t, out)
}

func TestRunUsesCache(t *testing.T) {
	dir := sampleTree(t)
	cache, err := OpenCache(filepath.Join(t.TempDir(), "cache"))
	require.NoError(t, err)

	var first, second bytes.Buffer
	opts := testOptions("-", dir)
	opts.Cache = cache
	opts.Stdout = &first
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Zero(t, res.Cached)

	opts.Stdout = &second
	res, err = Run(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Cached)
	assert.Equal(t, first.Bytes(), second.Bytes())

	require.NoError(t, cache.Clean())
	assert.NoDirExists(t, cache.Dir())
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, testOptions(filepath.Join(t.TempDir(), "out.dex"), sampleTree(t)))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunTimings(t *testing.T) {
	opts := testOptions("-", sampleTree(t))
	opts.Stdout = &bytes.Buffer{}
	opts.Timings = true
	res, err := Run(context.Background(), opts)
	require.NoError(t, err)
	require.Equal(t, 1, res.Bag.Len())
	d := res.Bag.Items()[0]
	assert.Equal(t, diag.ObsTimings, d.Code)
	require.Len(t, d.Notes, 1)
	assert.Contains(t, d.Notes[0], `"classes":2`)
	assert.Len(t, res.Report.Phases, 3)
}
