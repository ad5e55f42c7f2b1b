package dexfile

import (
	"crypto/sha1" //nolint:gosec // the container signature is defined as SHA-1
	"encoding/binary"
	"errors"
	"fmt"
	"hash/adler32"
	"io"
	"slices"
	"strings"

	"fortio.org/safecast"

	"classdex/internal/cst"
	"classdex/internal/leb128"
	"classdex/internal/mutf8"
)

// ClassDef is one class as stored in the container.
type ClassDef struct {
	Class       cst.Type
	AccessFlags int
	// Super is nil only for the root class.
	Super      *cst.Type
	Interfaces []cst.Type
	SourceFile string
	Data       *ClassDataItem
}

// ErrDuplicateClass is returned by Add for a class already in the file.
var ErrDuplicateClass = errors.New("duplicate class")

// File is a container being assembled. It is not safe for concurrent use;
// callers funnel every Add through a single writer.
type File struct {
	ids     *IDs
	classes []*ClassDef
	byName  map[string]bool
}

// NewFile returns an empty container.
func NewFile() *File {
	return &File{ids: NewIDs(), byName: map[string]bool{}}
}

func (f *File) IDs() *IDs { return f.ids }

func (f *File) Classes() []*ClassDef { return f.classes }

// Add interns everything def refers to and appends it. On error the file is
// unchanged.
func (f *File) Add(def *ClassDef) error {
	if f.byName[def.Class.Descriptor] {
		return fmt.Errorf("%w %s", ErrDuplicateClass, def.Class)
	}
	if def.Data == nil {
		def.Data = &ClassDataItem{}
	}
	refs, err := classRefs(def)
	if err != nil {
		return err
	}
	// Intern into scratch tables first so a bad reference leaves f intact.
	scratch := NewIDs()
	for _, c := range refs {
		if err := scratch.Intern(c); err != nil {
			return fmt.Errorf("class %s: %w", def.Class, err)
		}
	}
	for _, c := range refs {
		if err := f.ids.Intern(c); err != nil {
			return err
		}
	}
	f.byName[def.Class.Descriptor] = true
	f.classes = append(f.classes, def)
	return nil
}

func classRefs(def *ClassDef) ([]cst.Constant, error) {
	refs := []cst.Constant{def.Class}
	if def.Super != nil {
		refs = append(refs, *def.Super)
	}
	for _, t := range def.Interfaces {
		refs = append(refs, t)
	}
	if def.SourceFile != "" {
		refs = append(refs, cst.String{Value: def.SourceFile})
	}
	data := def.Data
	data.Sort()
	for _, l := range [][]*EncodedField{data.StaticFields, data.InstanceFields} {
		for _, fd := range l {
			refs = append(refs, fd.Ref)
		}
	}
	for _, l := range [][]*EncodedMethod{data.DirectMethods, data.VirtualMethods} {
		for _, m := range l {
			refs = append(refs, m.Ref)
			if m.Code != nil {
				refs = append(refs, m.Code.Refs()...)
			}
		}
	}
	statics, err := data.StaticValues()
	if err != nil {
		return nil, err
	}
	if statics != nil {
		refs = append(refs, *statics)
	}
	return refs, nil
}

// WriteTo finalizes the id tables and writes the container.
func (f *File) WriteTo(w io.Writer) (int64, error) {
	b, err := f.Bytes()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n), err
}

// Bytes finalizes the id tables and returns the encoded container. Classes
// cannot be added afterwards.
func (f *File) Bytes() ([]byte, error) {
	f.ids.Finalize()
	w := &writer{ids: f.ids, classes: orderClasses(f.classes)}
	return w.write()
}

// orderClasses puts every superclass and interface defined in the file
// before the classes that extend it, keeping insertion order otherwise.
func orderClasses(classes []*ClassDef) []*ClassDef {
	byName := make(map[string]*ClassDef, len(classes))
	for _, c := range classes {
		byName[c.Class.Descriptor] = c
	}
	out := make([]*ClassDef, 0, len(classes))
	done := map[string]bool{}
	var visit func(c *ClassDef)
	visit = func(c *ClassDef) {
		if done[c.Class.Descriptor] {
			return
		}
		done[c.Class.Descriptor] = true
		if c.Super != nil {
			if s, ok := byName[c.Super.Descriptor]; ok {
				visit(s)
			}
		}
		for _, t := range c.Interfaces {
			if s, ok := byName[t.Descriptor]; ok {
				visit(s)
			}
		}
		out = append(out, c)
	}
	for _, c := range classes {
		visit(c)
	}
	return out
}

type mapItem struct {
	typ, size, off int
}

type writer struct {
	ids     *IDs
	classes []*ClassDef

	dataOff   int
	data      []byte
	items     []mapItem
	err       error
	stringOff []int
	listOff   map[string]int
	codeOff   map[*EncodedMethod]int
	dataOffs  map[*ClassDef]int
	valueOffs map[*ClassDef]int
}

func (w *writer) pos() int { return w.dataOff + len(w.data) }

func (w *writer) align4() {
	for w.pos()%4 != 0 {
		w.data = append(w.data, 0)
	}
}

func (w *writer) fail(err error) {
	if w.err == nil {
		w.err = err
	}
}

func (w *writer) u32(v int) uint32 {
	u, err := safecast.Conv[uint32](v)
	if err != nil {
		w.fail(err)
	}
	return u
}

func (w *writer) u16(v int) uint16 {
	u, err := safecast.Conv[uint16](v)
	if err != nil {
		w.fail(fmt.Errorf("index %d does not fit 16 bits", v))
	}
	return u
}

// index resolves lookups that cannot fail once every class has been added.
func (w *writer) index(i int, err error) int {
	if err != nil {
		w.fail(err)
	}
	return i
}

func (w *writer) item(typ, size, off int) {
	if size > 0 {
		w.items = append(w.items, mapItem{typ: typ, size: size, off: off})
	}
}

func typeListKey(types []cst.Type) string {
	var sb strings.Builder
	for _, t := range types {
		sb.WriteString(t.Descriptor)
	}
	return sb.String()
}

func (w *writer) write() ([]byte, error) {
	ids := w.ids
	ns, nt, np, nf, nm := len(ids.stringList), len(ids.typeList), len(ids.protoList), len(ids.fieldList), len(ids.methodList)
	nc := len(w.classes)

	stringIDsOff := SizeOfHeader
	typeIDsOff := stringIDsOff + SizeOfStringID*ns
	protoIDsOff := typeIDsOff + SizeOfTypeID*nt
	fieldIDsOff := protoIDsOff + SizeOfProtoID*np
	methodIDsOff := fieldIDsOff + SizeOfFieldID*nf
	classDefsOff := methodIDsOff + SizeOfMethodID*nm
	w.dataOff = classDefsOff + SizeOfClassDef*nc

	w.item(TypeHeaderItem, 1, 0)
	w.item(TypeStringIDItem, ns, stringIDsOff)
	w.item(TypeTypeIDItem, nt, typeIDsOff)
	w.item(TypeProtoIDItem, np, protoIDsOff)
	w.item(TypeFieldIDItem, nf, fieldIDsOff)
	w.item(TypeMethodIDItem, nm, methodIDsOff)
	w.item(TypeClassDefItem, nc, classDefsOff)

	w.writeTypeLists()
	w.writeCode()
	w.writeStrings()
	w.writeClassData()
	w.writeStaticValues()
	mapOff := w.writeMap()
	if w.err != nil {
		return nil, w.err
	}

	var out []byte
	out = append(out, make([]byte, SizeOfHeader)...)
	le := binary.LittleEndian
	for _, off := range w.stringOff {
		out = le.AppendUint32(out, w.u32(off))
	}
	for _, t := range ids.typeList {
		out = le.AppendUint32(out, w.u32(w.index(ids.StringIndex(t.Descriptor))))
	}
	for _, p := range ids.protoList {
		out = le.AppendUint32(out, w.u32(w.index(ids.StringIndex(p.Shorty()))))
		out = le.AppendUint32(out, w.u32(w.index(ids.TypeIndex(p.Return))))
		out = le.AppendUint32(out, w.u32(w.listOff[typeListKey(p.Params)]))
	}
	for _, f := range ids.fieldList {
		out = le.AppendUint16(out, w.u16(w.index(ids.TypeIndex(f.Class))))
		out = le.AppendUint16(out, w.u16(w.index(ids.TypeIndex(f.Type()))))
		out = le.AppendUint32(out, w.u32(w.index(ids.StringIndex(f.NAT.Name.Value))))
	}
	for _, m := range ids.methodList {
		p, err := m.Prototype()
		if err != nil {
			return nil, err
		}
		out = le.AppendUint16(out, w.u16(w.index(ids.TypeIndex(m.Class))))
		out = le.AppendUint16(out, w.u16(w.index(ids.ProtoIndex(p))))
		out = le.AppendUint32(out, w.u32(w.index(ids.StringIndex(m.NAT.Name.Value))))
	}
	for _, c := range w.classes {
		out = w.appendClassDef(out, c)
	}
	if w.err != nil {
		return nil, w.err
	}
	out = append(out, w.data...)

	h := out[:SizeOfHeader]
	copy(h, Magic[:])
	put := func(off, v int) { le.PutUint32(h[off:], w.u32(v)) }
	put(32, len(out))
	put(36, SizeOfHeader)
	put(40, endianTag)
	put(52, mapOff)
	sizes := []struct{ n, off int }{
		{ns, stringIDsOff}, {nt, typeIDsOff}, {np, protoIDsOff},
		{nf, fieldIDsOff}, {nm, methodIDsOff}, {nc, classDefsOff},
		{len(out) - w.dataOff, w.dataOff},
	}
	for i, s := range sizes {
		put(56+8*i, s.n)
		if s.n > 0 {
			put(60+8*i, s.off)
		}
	}
	sum := sha1.Sum(out[32:]) //nolint:gosec // format-defined signature
	copy(h[12:32], sum[:])
	le.PutUint32(h[8:], adler32.Checksum(out[12:]))
	return out, w.err
}

func (w *writer) appendClassDef(out []byte, c *ClassDef) []byte {
	le := binary.LittleEndian
	ids := w.ids
	out = le.AppendUint32(out, w.u32(w.index(ids.TypeIndex(c.Class))))
	out = le.AppendUint32(out, w.u32(c.AccessFlags))
	super := uint32(noIndex)
	if c.Super != nil {
		super = w.u32(w.index(ids.TypeIndex(*c.Super)))
	}
	out = le.AppendUint32(out, super)
	out = le.AppendUint32(out, w.u32(w.listOff[typeListKey(c.Interfaces)]))
	source := uint32(noIndex)
	if c.SourceFile != "" {
		source = w.u32(w.index(ids.StringIndex(c.SourceFile)))
	}
	out = le.AppendUint32(out, source)
	out = le.AppendUint32(out, 0) // annotations
	out = le.AppendUint32(out, w.u32(w.dataOffs[c]))
	return le.AppendUint32(out, w.u32(w.valueOffs[c]))
}

func (w *writer) writeTypeLists() {
	w.listOff = map[string]int{"": 0}
	var lists [][]cst.Type
	for _, p := range w.ids.protoList {
		lists = append(lists, p.Params)
	}
	for _, c := range w.classes {
		lists = append(lists, c.Interfaces)
	}
	start, n := -1, 0
	le := binary.LittleEndian
	for _, l := range lists {
		key := typeListKey(l)
		if _, seen := w.listOff[key]; seen {
			continue
		}
		w.align4()
		if start < 0 {
			start = w.pos()
		}
		w.listOff[key] = w.pos()
		n++
		w.data = le.AppendUint32(w.data, w.u32(len(l)))
		for _, t := range l {
			w.data = le.AppendUint16(w.data, w.u16(w.index(w.ids.TypeIndex(t))))
		}
	}
	w.item(TypeTypeList, n, start)
}

func (w *writer) methods() []*EncodedMethod {
	var out []*EncodedMethod
	for _, c := range w.classes {
		c.Data.Sort()
		out = append(out, c.Data.DirectMethods...)
		out = append(out, c.Data.VirtualMethods...)
	}
	return out
}

func (w *writer) writeCode() {
	methods := w.methods()
	debugOff := map[*EncodedMethod]int{}
	start, n := w.pos(), 0
	for _, m := range methods {
		if m.Code == nil {
			continue
		}
		p, err := m.Ref.Prototype()
		if err != nil {
			w.fail(err)
			return
		}
		info, err := m.Code.DebugInfo(len(p.Params), w.ids)
		if err != nil {
			w.fail(err)
			return
		}
		if info != nil {
			debugOff[m] = w.pos()
			w.data = append(w.data, info...)
			n++
		}
	}
	w.item(TypeDebugInfoItem, n, start)

	w.codeOff = map[*EncodedMethod]int{}
	le := binary.LittleEndian
	start, n = -1, 0
	for _, m := range methods {
		if m.Code == nil {
			continue
		}
		units, err := m.Code.Units(w.ids)
		if err != nil {
			w.fail(fmt.Errorf("%s: %w", m.Ref, err))
			return
		}
		w.align4()
		if start < 0 {
			start = w.pos()
		}
		w.codeOff[m] = w.pos()
		n++
		w.data = le.AppendUint16(w.data, w.u16(m.Code.RegistersSize))
		w.data = le.AppendUint16(w.data, w.u16(m.Code.InsSize))
		w.data = le.AppendUint16(w.data, w.u16(m.Code.OutsSize))
		w.data = le.AppendUint16(w.data, 0) // tries
		w.data = le.AppendUint32(w.data, w.u32(debugOff[m]))
		w.data = le.AppendUint32(w.data, w.u32(len(units)))
		for _, u := range units {
			w.data = le.AppendUint16(w.data, u)
		}
	}
	w.item(TypeCodeItem, n, start)
}

func (w *writer) writeStrings() {
	start := w.pos()
	w.stringOff = make([]int, len(w.ids.stringList))
	for i, s := range w.ids.stringList {
		w.stringOff[i] = w.pos()
		enc, err := mutf8.Encode(s)
		if err != nil {
			w.fail(err)
			return
		}
		w.data = leb128.AppendUnsigned(w.data, w.u32(mutf8.UTF16Len(s)))
		w.data = append(append(w.data, enc...), 0)
	}
	w.item(TypeStringDataItem, len(w.ids.stringList), start)
}

func (w *writer) writeClassData() {
	w.dataOffs = map[*ClassDef]int{}
	start, n := w.pos(), 0
	codeOff := func(m *EncodedMethod) int { return w.codeOff[m] }
	for _, c := range w.classes {
		if c.Data.IsEmpty() {
			continue
		}
		b, err := c.Data.Encode(w.ids, codeOff)
		if err != nil {
			w.fail(fmt.Errorf("class %s: %w", c.Class, err))
			return
		}
		w.dataOffs[c] = w.pos()
		w.data = append(w.data, b...)
		n++
	}
	w.item(TypeClassDataItem, n, start)
}

func (w *writer) writeStaticValues() {
	w.valueOffs = map[*ClassDef]int{}
	start, n := w.pos(), 0
	for _, c := range w.classes {
		values, err := c.Data.StaticValues()
		if err != nil {
			w.fail(err)
			return
		}
		if values == nil {
			continue
		}
		w.valueOffs[c] = w.pos()
		if w.data, err = AppendArray(w.data, values, w.ids); err != nil {
			w.fail(fmt.Errorf("class %s static values: %w", c.Class, err))
			return
		}
		n++
	}
	w.item(TypeEncodedArrayItem, n, start)
}

func (w *writer) writeMap() int {
	w.align4()
	off := w.pos()
	w.item(TypeMapList, 1, off)
	slices.SortStableFunc(w.items, func(a, b mapItem) int { return a.off - b.off })
	le := binary.LittleEndian
	w.data = le.AppendUint32(w.data, w.u32(len(w.items)))
	for _, it := range w.items {
		w.data = le.AppendUint16(w.data, w.u16(it.typ))
		w.data = le.AppendUint16(w.data, 0)
		w.data = le.AppendUint32(w.data, w.u32(it.size))
		w.data = le.AppendUint32(w.data, w.u32(it.off))
	}
	return off
}
