package compiler

import (
	"fmt"
	"sort"
	"strings"
)

// VarScope is what an ordinary identifier is bound to: a variable, a
// typedef, or an enum constant. Exactly one of the three is set.
type VarScope struct {
	Var     *Obj
	Typedef *Type
	EnumTy  *Type
	EnumVal int64
}

type scopeFrame struct {
	vars map[string]*VarScope
	tags map[string]*Type // struct, union and enum tags
}

// Scope is the stack of lexical frames. Frame 0 is file scope and is never
// popped.
type Scope struct {
	frames []*scopeFrame
}

func NewScope() *Scope {
	s := &Scope{}
	s.EnterScope()
	return s
}

// EnterScope pushes a new innermost frame.
func (s *Scope) EnterScope() {
	s.frames = append(s.frames, &scopeFrame{
		vars: make(map[string]*VarScope),
		tags: make(map[string]*Type),
	})
}

// LeaveScope pops the innermost frame.
func (s *Scope) LeaveScope() {
	if len(s.frames) > 1 {
		s.frames = s.frames[:len(s.frames)-1]
	}
}

// Depth is the number of frames on the stack, file scope included.
func (s *Scope) Depth() int {
	return len(s.frames)
}

func (s *Scope) inner() *scopeFrame {
	return s.frames[len(s.frames)-1]
}

// PushVar binds name in the innermost frame, shadowing outer bindings.
func (s *Scope) PushVar(name string) *VarScope {
	vs := &VarScope{}
	s.inner().vars[name] = vs
	return vs
}

// PushTag binds a tag in the innermost frame.
func (s *Scope) PushTag(name string, ty *Type) {
	s.inner().tags[name] = ty
}

// LookupVar walks innermost-first and returns nil when name is unbound.
func (s *Scope) LookupVar(name string) *VarScope {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if vs, ok := s.frames[i].vars[name]; ok {
			return vs
		}
	}
	return nil
}

// LookupTag walks innermost-first and returns nil when the tag is unbound.
func (s *Scope) LookupTag(name string) *Type {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if ty, ok := s.frames[i].tags[name]; ok {
			return ty
		}
	}
	return nil
}

// LookupTagInCurrent only consults the innermost frame. A struct body for a
// tag found here completes that type instead of declaring a new one.
func (s *Scope) LookupTagInCurrent(name string) *Type {
	return s.inner().tags[name]
}

// String returns a deterministically ordered dump of every frame.
func (s *Scope) String() string {
	var sb strings.Builder
	for i, f := range s.frames {
		if i == 0 {
			sb.WriteString("File scope:\n")
		} else {
			fmt.Fprintf(&sb, "Block scope %d:\n", i)
		}
		names := make([]string, 0, len(f.vars))
		for name := range f.vars {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			vs := f.vars[name]
			switch {
			case vs.Var != nil:
				where := "global"
				if vs.Var.IsLocal {
					where = fmt.Sprintf("local offset %d", vs.Var.Offset)
				}
				fmt.Fprintf(&sb, "  %-20s  %s (%s)\n", name, vs.Var.Ty, where)
			case vs.Typedef != nil:
				fmt.Fprintf(&sb, "  %-20s  typedef %s\n", name, vs.Typedef)
			default:
				fmt.Fprintf(&sb, "  %-20s  enum constant %d\n", name, vs.EnumVal)
			}
		}
		tags := make([]string, 0, len(f.tags))
		for name := range f.tags {
			tags = append(tags, name)
		}
		sort.Strings(tags)
		for _, name := range tags {
			fmt.Fprintf(&sb, "  tag %-16s  %s\n", name, f.tags[name])
		}
	}
	return sb.String()
}
