// Package dexfile assembles the register-VM container: id tables, class
// definitions and their class data, code items and static values. The
// reader in Read decodes the same layout.
package dexfile

// Access flags as stored in the container. The low bits match the class
// file; the constructor and declared-synchronized bits are container-only.
const (
	AccPublic               = 0x00001
	AccPrivate              = 0x00002
	AccProtected            = 0x00004
	AccStatic               = 0x00008
	AccFinal                = 0x00010
	AccSynchronized         = 0x00020
	AccVolatile             = 0x00040
	AccBridge               = 0x00040
	AccTransient            = 0x00080
	AccVarargs              = 0x00080
	AccNative               = 0x00100
	AccInterface            = 0x00200
	AccAbstract             = 0x00400
	AccStrict               = 0x00800
	AccSynthetic            = 0x01000
	AccAnnotation           = 0x02000
	AccEnum                 = 0x04000
	AccConstructor          = 0x10000
	AccDeclaredSynchronized = 0x20000
)

// Magic opens every container file.
var Magic = [8]byte{'d', 'e', 'x', '\n', '0', '3', '5', 0}

const (
	endianTag = 0x12345678
	noIndex   = 0xffffffff
)

// Fixed item sizes in bytes.
const (
	SizeOfHeader   = 0x70
	SizeOfStringID = 4
	SizeOfTypeID   = 4
	SizeOfProtoID  = 12
	SizeOfFieldID  = 8
	SizeOfMethodID = 8
	SizeOfClassDef = 32
	SizeOfMapItem  = 12
	// SizeOfCodeHeader precedes the instructions of a code item.
	SizeOfCodeHeader = 16
)

// Map item types.
const (
	TypeHeaderItem       = 0x0000
	TypeStringIDItem     = 0x0001
	TypeTypeIDItem       = 0x0002
	TypeProtoIDItem      = 0x0003
	TypeFieldIDItem      = 0x0004
	TypeMethodIDItem     = 0x0005
	TypeClassDefItem     = 0x0006
	TypeMapList          = 0x1000
	TypeTypeList         = 0x1001
	TypeClassDataItem    = 0x2000
	TypeCodeItem         = 0x2001
	TypeStringDataItem   = 0x2002
	TypeDebugInfoItem    = 0x2003
	TypeEncodedArrayItem = 0x2005
)

// Encoded value types.
const (
	valueByte       = 0x00
	valueShort      = 0x02
	valueChar       = 0x03
	valueInt        = 0x04
	valueLong       = 0x06
	valueFloat      = 0x10
	valueDouble     = 0x11
	valueString     = 0x17
	valueType       = 0x18
	valueField      = 0x19
	valueMethod     = 0x1a
	valueEnum       = 0x1b
	valueArray      = 0x1c
	valueAnnotation = 0x1d
	valueNull       = 0x1e
	valueBoolean    = 0x1f
)
