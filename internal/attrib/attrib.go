// Package attrib defines the decoded forms of class file attributes.
package attrib

import (
	"classdex/internal/bytestream"
	"classdex/internal/cst"
)

// Attribute names recognised by the class file reader.
const (
	NameAnnotationDefault                    = "AnnotationDefault"
	NameCode                                 = "Code"
	NameConstantValue                        = "ConstantValue"
	NameDeprecated                           = "Deprecated"
	NameEnclosingMethod                      = "EnclosingMethod"
	NameExceptions                           = "Exceptions"
	NameInnerClasses                         = "InnerClasses"
	NameLineNumberTable                      = "LineNumberTable"
	NameLocalVariableTable                   = "LocalVariableTable"
	NameLocalVariableTypeTable               = "LocalVariableTypeTable"
	NameRuntimeInvisibleAnnotations          = "RuntimeInvisibleAnnotations"
	NameRuntimeVisibleAnnotations            = "RuntimeVisibleAnnotations"
	NameRuntimeInvisibleParameterAnnotations = "RuntimeInvisibleParameterAnnotations"
	NameRuntimeVisibleParameterAnnotations   = "RuntimeVisibleParameterAnnotations"
	NameSignature                            = "Signature"
	NameSourceFile                           = "SourceFile"
	NameSynthetic                            = "Synthetic"
)

// headerSize covers the u2 name index and u4 length preceding attribute data.
const headerSize = 6

// Attribute is implemented by every decoded attribute and by Raw.
type Attribute interface {
	Name() string
	// ByteLength is the encoded size including the six-byte header.
	ByteLength() int
}

// List is an ordered attribute list.
type List []Attribute

// ByteLength is the encoded size of the list including its u2 count.
func (l List) ByteLength() int {
	n := 2
	for _, a := range l {
		n += a.ByteLength()
	}
	return n
}

// FindFirst returns the first attribute with the given name, or nil.
func (l List) FindFirst(name string) Attribute {
	for _, a := range l {
		if a.Name() == name {
			return a
		}
	}
	return nil
}

// Has reports whether an attribute with the given name is present.
func (l List) Has(name string) bool { return l.FindFirst(name) != nil }

// Raw is an attribute retained as opaque bytes.
type Raw struct {
	AttrName string
	Data     bytestream.Array
}

func (a *Raw) Name() string    { return a.AttrName }
func (a *Raw) ByteLength() int { return headerSize + a.Data.Len() }

// CatchEntry is one exception table row covering [StartPC, EndPC).
type CatchEntry struct {
	StartPC   int
	EndPC     int
	HandlerPC int
	// CatchType is the zero Type for a catch-all handler.
	CatchType cst.Type
}

// IsCatchAll reports whether the entry catches every exception type.
func (e CatchEntry) IsCatchAll() bool { return e.CatchType.Descriptor == "" }

// Covers reports whether pc falls in the half-open range.
func (e CatchEntry) Covers(pc int) bool { return pc >= e.StartPC && pc < e.EndPC }

// Code is a method body.
type Code struct {
	MaxStack   int
	MaxLocals  int
	Bytecode   bytestream.Array
	Catches    []CatchEntry
	Attributes List
}

func (a *Code) Name() string { return NameCode }
func (a *Code) ByteLength() int {
	return headerSize + 8 + a.Bytecode.Len() + 2 + 8*len(a.Catches) + a.Attributes.ByteLength()
}

// LineNumbers returns the entries of the first LineNumberTable, if any.
func (a *Code) LineNumbers() []LineNumber {
	if t, ok := a.Attributes.FindFirst(NameLineNumberTable).(*LineNumberTable); ok {
		return t.Lines
	}
	return nil
}

// ConstantValue is the initial value of a static field.
type ConstantValue struct {
	Value cst.Typed
}

func (a *ConstantValue) Name() string    { return NameConstantValue }
func (a *ConstantValue) ByteLength() int { return headerSize + 2 }

type Deprecated struct{}

func (*Deprecated) Name() string    { return NameDeprecated }
func (*Deprecated) ByteLength() int { return headerSize }

type Synthetic struct{}

func (*Synthetic) Name() string    { return NameSynthetic }
func (*Synthetic) ByteLength() int { return headerSize }

// EnclosingMethod names the class and, optionally, the method that encloses a
// local or anonymous class.
type EnclosingMethod struct {
	Class  cst.Type
	Method *cst.NameAndType
}

func (a *EnclosingMethod) Name() string    { return NameEnclosingMethod }
func (a *EnclosingMethod) ByteLength() int { return headerSize + 4 }

// Exceptions lists the checked exceptions a method declares.
type Exceptions struct {
	Types []cst.Type
}

func (a *Exceptions) Name() string    { return NameExceptions }
func (a *Exceptions) ByteLength() int { return headerSize + 2 + 2*len(a.Types) }

// InnerClass is one InnerClasses row. Outer and InnerName are nil when the
// pool index is zero.
type InnerClass struct {
	Inner       cst.Type
	Outer       *cst.Type
	InnerName   *cst.String
	AccessFlags int
}

type InnerClasses struct {
	Classes []InnerClass
}

func (a *InnerClasses) Name() string    { return NameInnerClasses }
func (a *InnerClasses) ByteLength() int { return headerSize + 2 + 8*len(a.Classes) }

type LineNumber struct {
	StartPC int
	Line    int
}

type LineNumberTable struct {
	Lines []LineNumber
}

func (a *LineNumberTable) Name() string    { return NameLineNumberTable }
func (a *LineNumberTable) ByteLength() int { return headerSize + 2 + 4*len(a.Lines) }

// LocalVariable is a live range of a named local. Exactly one of Descriptor
// and Signature is set, depending on the table it came from.
type LocalVariable struct {
	StartPC    int
	Length     int
	Name       cst.String
	Descriptor *cst.String
	Signature  *cst.String
	Index      int
}

type LocalVariableTable struct {
	Vars []LocalVariable
}

func (a *LocalVariableTable) Name() string    { return NameLocalVariableTable }
func (a *LocalVariableTable) ByteLength() int { return headerSize + 2 + 10*len(a.Vars) }

type LocalVariableTypeTable struct {
	Vars []LocalVariable
}

func (a *LocalVariableTypeTable) Name() string    { return NameLocalVariableTypeTable }
func (a *LocalVariableTypeTable) ByteLength() int { return headerSize + 2 + 10*len(a.Vars) }

type Signature struct {
	Value cst.String
}

func (a *Signature) Name() string    { return NameSignature }
func (a *Signature) ByteLength() int { return headerSize + 2 }

type SourceFile struct {
	Value cst.String
}

func (a *SourceFile) Name() string    { return NameSourceFile }
func (a *SourceFile) ByteLength() int { return headerSize + 2 }

// AnnotationDefault is the default value of an annotation interface element.
type AnnotationDefault struct {
	Value  cst.Constant
	Length int
}

func (a *AnnotationDefault) Name() string    { return NameAnnotationDefault }
func (a *AnnotationDefault) ByteLength() int { return headerSize + a.Length }

// Annotations is a RuntimeVisibleAnnotations or RuntimeInvisibleAnnotations
// attribute, distinguished by AttrName.
type Annotations struct {
	AttrName    string
	Annotations *cst.Annotations
	Length      int
}

func (a *Annotations) Name() string    { return a.AttrName }
func (a *Annotations) ByteLength() int { return headerSize + a.Length }

// ParameterAnnotations is the per-parameter counterpart of Annotations.
type ParameterAnnotations struct {
	AttrName string
	List     cst.AnnotationsList
	Length   int
}

func (a *ParameterAnnotations) Name() string    { return a.AttrName }
func (a *ParameterAnnotations) ByteLength() int { return headerSize + a.Length }
