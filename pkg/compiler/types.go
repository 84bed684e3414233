package compiler

import (
	"fmt"
	"strings"
)

// TypeKind tags a Type.
type TypeKind int

const (
	TyVoid TypeKind = iota
	TyBool
	TyChar
	TyShort
	TyInt
	TyLong
	TyFloat
	TyDouble
	TyEnum
	TyPtr
	TyFunc
	TyArray
	TyStruct
	TyUnion
)

// PointerSize is the machine pointer width in bytes.
const PointerSize = 8

// Type describes a C type. Size is -1 while an aggregate or array is
// incomplete; every other field is meaningful only for the kinds noted.
type Type struct {
	Kind  TypeKind
	Size  int
	Align int

	// Pointee for TyPtr, element for TyArray.
	Base *Type

	// Declared name, set on function types and on parameter types.
	Name *Token

	ArrayLen int // TyArray; -1 for "[]"

	// TyStruct / TyUnion.
	Members  []*Member
	Flexible bool

	// TyFunc.
	ReturnTy *Type
	Params   []*Type
}

// Member is one field of a struct or union.
type Member struct {
	Name   Token
	Ty     *Type
	Idx    int
	Offset int
}

func newType(kind TypeKind, size, align int) *Type {
	return &Type{Kind: kind, Size: size, Align: align}
}

// Scalar singletons. They are never mutated; declarators wrap them.
var (
	tyVoid   = newType(TyVoid, 1, 1)
	tyBool   = newType(TyBool, 1, 1)
	tyChar   = newType(TyChar, 1, 1)
	tyShort  = newType(TyShort, 2, 2)
	tyInt    = newType(TyInt, 4, 4)
	tyLong   = newType(TyLong, 8, 8)
	tyFloat  = newType(TyFloat, 4, 4)
	tyDouble = newType(TyDouble, 8, 8)
)

func pointerTo(base *Type) *Type {
	ty := newType(TyPtr, PointerSize, PointerSize)
	ty.Base = base
	return ty
}

func funcType(ret *Type) *Type {
	ty := newType(TyFunc, 1, 1)
	ty.ReturnTy = ret
	return ty
}

// arrayOf builds an array of n elements. n < 0 or an incomplete element
// produces an incomplete array.
func arrayOf(base *Type, n int) *Type {
	size := base.Size * n
	if n < 0 || base.Size < 0 {
		size = -1
	}
	ty := newType(TyArray, size, base.Align)
	ty.Base = base
	ty.ArrayLen = n
	return ty
}

func enumType() *Type {
	return newType(TyEnum, 4, 4)
}

func structType() *Type {
	return newType(TyStruct, 0, 1)
}

// copyType returns a shallow copy, used when a declarator must attach a
// name to a type that may be shared.
func copyType(ty *Type) *Type {
	c := *ty
	return &c
}

func (ty *Type) IsInteger() bool {
	switch ty.Kind {
	case TyBool, TyChar, TyShort, TyInt, TyLong, TyEnum:
		return true
	}
	return false
}

func (ty *Type) IsFloat() bool {
	return ty.Kind == TyFloat || ty.Kind == TyDouble
}

func (ty *Type) IsNumeric() bool {
	return ty.IsInteger() || ty.IsFloat()
}

// IsAggregate reports whether values of ty live in memory rather than a register.
func (ty *Type) IsAggregate() bool {
	return ty.Kind == TyArray || ty.Kind == TyStruct || ty.Kind == TyUnion
}

// hasBase reports whether ty can be dereferenced.
func (ty *Type) hasBase() bool {
	return ty.Base != nil
}

func alignUp(n, align int) int {
	return (n + align - 1) / align * align
}

// layoutStruct assigns member offsets and computes size and alignment.
func layoutStruct(ty *Type) {
	offset := 0
	ty.Align = 1
	for _, m := range ty.Members {
		offset = alignUp(offset, m.Ty.Align)
		m.Offset = offset
		offset += m.Ty.Size
		if ty.Align < m.Ty.Align {
			ty.Align = m.Ty.Align
		}
	}
	ty.Size = alignUp(offset, ty.Align)
}

// layoutUnion places every member at offset zero.
func layoutUnion(ty *Type) {
	ty.Align = 1
	ty.Size = 0
	for _, m := range ty.Members {
		m.Offset = 0
		if ty.Align < m.Ty.Align {
			ty.Align = m.Ty.Align
		}
		if ty.Size < m.Ty.Size {
			ty.Size = m.Ty.Size
		}
	}
	ty.Size = alignUp(ty.Size, ty.Align)
}

// findMember does a linear search by name.
func (ty *Type) findMember(name string) *Member {
	for _, m := range ty.Members {
		if m.Name.Lexeme == name {
			return m
		}
	}
	return nil
}

func (ty *Type) String() string {
	if ty == nil {
		return "<untyped>"
	}
	switch ty.Kind {
	case TyVoid:
		return "void"
	case TyBool:
		return "_Bool"
	case TyChar:
		return "char"
	case TyShort:
		return "short"
	case TyInt:
		return "int"
	case TyLong:
		return "long"
	case TyFloat:
		return "float"
	case TyDouble:
		return "double"
	case TyEnum:
		return "enum"
	case TyPtr:
		return ty.Base.String() + "*"
	case TyArray:
		if ty.ArrayLen < 0 {
			return ty.Base.String() + "[]"
		}
		return fmt.Sprintf("%s[%d]", ty.Base, ty.ArrayLen)
	case TyFunc:
		params := make([]string, len(ty.Params))
		for i, p := range ty.Params {
			params[i] = p.String()
		}
		return fmt.Sprintf("%s(%s)", ty.ReturnTy, strings.Join(params, ", "))
	case TyStruct, TyUnion:
		kw := "struct"
		if ty.Kind == TyUnion {
			kw = "union"
		}
		if ty.Size < 0 {
			return kw + " <incomplete>"
		}
		return fmt.Sprintf("%s{size=%d}", kw, ty.Size)
	}
	return fmt.Sprintf("TypeKind(%d)", int(ty.Kind))
}
