// Package classfile reads stack-machine class files: the two-pass constant
// pool, attributes dispatched per context, annotations and member tables.
//
// Every failure is a *ParseError whose trail names the enclosing structures,
// innermost frame first.
package classfile

import (
	"strings"

	"classdex/internal/attrib"
	"classdex/internal/bytestream"
	"classdex/internal/cst"
)

// Magic is the first word of every class file.
const Magic = 0xcafebabe

const (
	minMajorVersion = 45
	maxMajorVersion = 52
)

// Options controls validation performed by Parse.
type Options struct {
	// StrictNameCheck requires the class name to match the input path.
	StrictNameCheck bool
}

// ClassFile is a fully parsed class.
type ClassFile struct {
	Path         string
	MinorVersion int
	MajorVersion int
	Pool         *cst.StdPool
	AccessFlags  int
	ThisClass    cst.Type
	// SuperClass is nil only for java.lang.Object.
	SuperClass *cst.Type
	Interfaces []cst.Type
	Fields     []Member
	Methods    []Member
	Attributes attrib.List
}

// SourceFile returns the SourceFile attribute value, or "".
func (cf *ClassFile) SourceFile() string {
	if sf, ok := cf.Attributes.FindFirst(attrib.NameSourceFile).(*attrib.SourceFile); ok {
		return sf.Value.Value
	}
	return ""
}

func (cf *ClassFile) IsInterface() bool { return cf.AccessFlags&AccInterface != 0 }

// Parse decodes a complete class file read from path.
func Parse(b []byte, path string, opts Options) (*ClassFile, error) {
	cf, err := parse(bytestream.New(b), path, opts)
	if err != nil {
		if path != "" {
			return nil, withContext(err, "...while parsing %s", path)
		}
		return nil, err
	}
	return cf, nil
}

func parse(data bytestream.Array, path string, opts Options) (*ClassFile, error) {
	if data.Len() < 10 {
		return nil, malformed("severely truncated class file")
	}
	magic, _ := data.U4(0)
	if magic != Magic {
		return nil, malformed("bad class file magic (%08x)", magic)
	}
	minor, _ := data.U2(4)
	major, _ := data.U2(6)
	if major < minMajorVersion || major > maxMajorVersion {
		return nil, unsupported("unsupported class file version %d.%d", major, minor)
	}

	pool, at, err := ParseConstantPool(data)
	if err != nil {
		return nil, err
	}
	cf := &ClassFile{Path: path, MinorVersion: minor, MajorVersion: major, Pool: pool}

	in := data.Reader()
	in.Skip(at)
	cf.AccessFlags = in.U2()
	thisIdx, superIdx := in.U2(), in.U2()
	ifaceCount := in.U2()
	if err := in.Err(); err != nil {
		return nil, asParseError(err)
	}
	if cf.ThisClass, err = poolType(pool, thisIdx); err != nil {
		return nil, withContext(err, "...while parsing this_class")
	}
	if cf.SuperClass, err = poolType0(pool, superIdx); err != nil {
		return nil, withContext(err, "...while parsing super_class")
	}
	cf.Interfaces = make([]cst.Type, ifaceCount)
	for i := range cf.Interfaces {
		idx := in.U2()
		if err := in.Err(); err != nil {
			return nil, withContext(err, "...while parsing interfaces[%d]", i)
		}
		if cf.Interfaces[i], err = poolType(pool, idx); err != nil {
			return nil, withContext(err, "...while parsing interfaces[%d]", i)
		}
	}
	at = in.Pos()

	if opts.StrictNameCheck && path != "" {
		want := strings.TrimSuffix(strings.ReplaceAll(path, "\\", "/"), ".class")
		if got := cf.ThisClass.ClassName(); !strings.HasSuffix(want, got) || (len(want) > len(got) && want[len(want)-len(got)-1] != '/') {
			pe := malformed("class name (%s) does not match path (%s)", got, path)
			pe.Err = ErrNameMismatch
			return nil, pe
		}
	}

	if cf.Fields, at, err = ParseMembers(data, pool, cf.ThisClass, MemberField, at); err != nil {
		return nil, err
	}
	if cf.Methods, at, err = ParseMembers(data, pool, cf.ThisClass, MemberMethod, at); err != nil {
		return nil, err
	}
	if cf.Attributes, at, err = ParseAttributeList(data, pool, ContextClass, at); err != nil {
		return nil, err
	}
	if at != data.Len() {
		return nil, malformed("extra bytes at end of class file, at offset %08x", at)
	}
	return cf, nil
}
