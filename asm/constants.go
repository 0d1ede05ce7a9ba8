package asm

// Magic is the first four bytes of every packed module ("asmb" on the wire).
const Magic uint32 = 0x626D7361

// Type is a numeric value type.
type Type byte

// Value type codes as they appear on the wire.
const (
	TypeVoid Type = 0x00
	TypeI32  Type = 0x01
	TypeF32  Type = 0x02
	TypeF64  Type = 0x03
)

func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeI32:
		return "i32"
	case TypeF32:
		return "f32"
	case TypeF64:
		return "f64"
	default:
		return "unknown"
	}
}

// Valid reports whether t is a representable value type (not void).
func (t Type) Valid() bool {
	return t == TypeI32 || t == TypeF32 || t == TypeF64
}

// Opcode identifies a statement or expression operation.
type Opcode byte

// Statement opcodes.
const (
	OpBlock          Opcode = 0x01
	OpIf             Opcode = 0x02
	OpIfElse         Opcode = 0x03
	OpWhile          Opcode = 0x04
	OpReturn         Opcode = 0x05
	OpSetLocal       Opcode = 0x06
	OpSetGlobal      Opcode = 0x07
	OpStoreI32       Opcode = 0x08
	OpStoreF32       Opcode = 0x09
	OpStoreF64       Opcode = 0x0A
	OpCallStmt       Opcode = 0x0B
	OpCallImportStmt Opcode = 0x0C
)

// Expression opcodes.
const (
	OpGetLocal     Opcode = 0x20
	OpGetGlobal    Opcode = 0x21
	OpLitI32       Opcode = 0x22
	OpConstI32     Opcode = 0x23
	OpConstF32     Opcode = 0x24
	OpConstF64     Opcode = 0x25
	OpLoadI32      Opcode = 0x26
	OpLoadF32      Opcode = 0x27
	OpLoadF64      Opcode = 0x28
	OpAddI32       Opcode = 0x29
	OpSubI32       Opcode = 0x2A
	OpMulI32       Opcode = 0x2B
	OpAddF32       Opcode = 0x2C
	OpMulF32       Opcode = 0x2D
	OpAddF64       Opcode = 0x2E
	OpMulF64       Opcode = 0x2F
	OpCallExpr     Opcode = 0x30
	OpCallIndirect Opcode = 0x31
)

// Export discriminator bytes.
const (
	ExportDefaultCode byte = 0x00
	ExportRecordCode  byte = 0x01
)

// Local-count header encoding. A function whose locals are I32-only and
// number at most PackedLocalMax encodes its header as a single byte with
// LocalHeaderPacked set and the count in the low seven bits. Otherwise the
// header is a presence-flags byte followed by a varint count per present
// type.
const (
	LocalHeaderPacked byte = 0x80
	PackedLocalMax         = 0x7F

	LocalFlagI32 byte = 0x01
	LocalFlagF32 byte = 0x02
	LocalFlagF64 byte = 0x04
)
