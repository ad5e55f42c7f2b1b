package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"classdex/internal/classfile/classfiletest"
)

// sampleClass is p/A with a constructor and a static int field.
func sampleClass() []byte {
	b := classfiletest.New()
	ctor := b.Method("java/lang/Object", "<init>", "()V")
	return b.Bytes(classfiletest.Class{
		Flags:  0x21,
		This:   "p/A",
		Super:  "java/lang/Object",
		Fields: []classfiletest.Member{{Flags: 0x19, Name: "N", Desc: "I"}},
		Methods: []classfiletest.Member{{Flags: 0x1, Name: "<init>", Desc: "()V", Attrs: []classfiletest.Attr{
			b.Code(1, 1, classfiletest.Cat([]byte{0x2a, 0xb7}, classfiletest.U2(ctor), []byte{0xb1}), nil),
		}}},
		Attrs: []classfiletest.Attr{{Name: "SourceFile", Data: classfiletest.U2(b.Utf8("A.java"))}},
	})
}

func writeSample(t *testing.T, dir string) string {
	t.Helper()
	p := filepath.Join(dir, "p", "A.class")
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, sampleClass(), 0o644))
	return p
}
