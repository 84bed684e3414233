package compiler

import "testing"

// parseGlobals runs the front end and indexes the named globals.
func parseGlobals(t *testing.T, src string) map[string]*Obj {
	t.Helper()
	prog, err := Frontend(src)
	if err != nil {
		t.Fatalf("Frontend failed: %v\nSource:\n%s", err, src)
	}
	globals := make(map[string]*Obj)
	for _, g := range prog.Globals {
		globals[g.Name] = g
	}
	return globals
}

func TestDeclarator_Types(t *testing.T) {
	tests := []struct {
		decl  string
		want  string
		size  int
		align int
	}{
		{"int x;", "int", 4, 4},
		{"char *x;", "char*", 8, 8},
		{"int **x;", "int**", 8, 8},
		{"long x[3];", "long[3]", 24, 8},
		{"int x[2][3];", "int[3][2]", 24, 4},
		{"char *x[4];", "char*[4]", 32, 8},
		{"int (*x)[4];", "int[4]*", 8, 8},
		{"int (*x[6])(int);", "int(int)*[6]", 48, 8},
		{"short x;", "short", 2, 2},
		{"short int x;", "short", 2, 2},
		{"long int x;", "long", 8, 8},
		{"long long x;", "long", 8, 8},
		{"_Bool x;", "_Bool", 1, 1},
		{"double x;", "double", 8, 8},
		{"const int x;", "int", 4, 4},
		{"int const * volatile x;", "int*", 8, 8},
	}
	for _, tt := range tests {
		g := parseGlobals(t, tt.decl)["x"]
		if g == nil {
			t.Errorf("%s: global x not found", tt.decl)
			continue
		}
		if got := g.Ty.String(); got != tt.want {
			t.Errorf("%s: type %s, want %s", tt.decl, got, tt.want)
		}
		if g.Ty.Size != tt.size || g.Ty.Align != tt.align {
			t.Errorf("%s: size/align %d/%d, want %d/%d", tt.decl, g.Ty.Size, g.Ty.Align, tt.size, tt.align)
		}
	}
}

func TestDeclarator_FunctionPointerArray(t *testing.T) {
	g := parseGlobals(t, "int (*a[6])(int);")["a"]
	ty := g.Ty
	if ty.Kind != TyArray || ty.ArrayLen != 6 {
		t.Fatalf("expected array of 6, got %s", ty)
	}
	if ty.Base.Kind != TyPtr || ty.Base.Base.Kind != TyFunc {
		t.Fatalf("expected element pointer to function, got %s", ty.Base)
	}
	fn := ty.Base.Base
	if fn.ReturnTy.Kind != TyInt || len(fn.Params) != 1 || fn.Params[0].Kind != TyInt {
		t.Errorf("expected int(int), got %s", fn)
	}
}

func TestStructLayout(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		size    int
		align   int
		offsets []int
	}{
		{"padding", "struct { char a; int b; char c; } x;", 12, 4, []int{0, 4, 8}},
		{"long member", "struct { char a; long b; } x;", 16, 8, []int{0, 8}},
		{"chars only", "struct { char a; char b; char c; } x;", 3, 1, []int{0, 1, 2}},
		{"nested", "struct { char a; struct { short s; char c; } in; } x;", 6, 2, []int{0, 2}},
		{"array member", "struct { int n; char buf[5]; } x;", 12, 4, []int{0, 4}},
		{"union", "union { char a; int b; long c; } x;", 8, 8, []int{0, 0, 0}},
		{"union rounds up", "union { char a[5]; int b; } x;", 8, 4, []int{0, 0}},
		{"flexible member", "struct { int n; int data[]; } x;", 4, 4, []int{0, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ty := parseGlobals(t, tt.src)["x"].Ty
			if ty.Size != tt.size || ty.Align != tt.align {
				t.Errorf("size/align %d/%d, want %d/%d", ty.Size, ty.Align, tt.size, tt.align)
			}
			if len(ty.Members) != len(tt.offsets) {
				t.Fatalf("expected %d members, got %d", len(tt.offsets), len(ty.Members))
			}
			for i, m := range ty.Members {
				if m.Offset != tt.offsets[i] {
					t.Errorf("member %s offset %d, want %d", m.Name.Lexeme, m.Offset, tt.offsets[i])
				}
				if m.Idx != i {
					t.Errorf("member %s index %d, want %d", m.Name.Lexeme, m.Idx, i)
				}
			}
		})
	}
}

func TestStructTagCompletion(t *testing.T) {
	src := `
struct S *early;
struct S { int a; long b; };
struct S late;
`
	g := parseGlobals(t, src)
	if g["early"].Ty.Base != g["late"].Ty {
		t.Fatalf("pointer declared before the body does not share the completed type")
	}
	if size := g["early"].Ty.Base.Size; size != 16 {
		t.Errorf("completed struct size %d, want 16", size)
	}
}

func TestStructTagShadowing(t *testing.T) {
	src := `
struct S { int a; } outer;
int main() {
	struct S { char c; } inner;
	return sizeof(inner);
}
`
	prog, err := Frontend(src)
	if err != nil {
		t.Fatalf("Frontend failed: %v", err)
	}
	fn := prog.Functions()[0]
	var inner *Obj
	for _, v := range fn.Locals {
		if v.Name == "inner" {
			inner = v
		}
	}
	if inner == nil || inner.Ty.Size != 1 {
		t.Fatalf("inner struct should use the block-scope tag, got %v", inner)
	}
	if outer := prog.Globals[0]; outer.Ty.Size != 4 {
		t.Errorf("outer struct size %d, want 4", outer.Ty.Size)
	}
}

func TestTypedefAndEnum(t *testing.T) {
	src := `
typedef int *intptr;
typedef struct { char c; short s; } pair;
enum E { A, B = 10, C };
intptr p;
pair q;
enum E e;
int arr[C];
`
	g := parseGlobals(t, src)
	if got := g["p"].Ty.String(); got != "int*" {
		t.Errorf("typedef pointer: got %s", got)
	}
	if g["q"].Ty.Size != 4 {
		t.Errorf("typedef struct size %d, want 4", g["q"].Ty.Size)
	}
	if g["e"].Ty.Kind != TyEnum || g["e"].Ty.Size != 4 {
		t.Errorf("enum variable: got %s size %d", g["e"].Ty, g["e"].Ty.Size)
	}
	if g["arr"].Ty.ArrayLen != 11 {
		t.Errorf("array sized by enum constant: len %d, want 11", g["arr"].Ty.ArrayLen)
	}
}

func TestArrayDimensionsFromConstants(t *testing.T) {
	g := parseGlobals(t, "int a[2 * 3 + 1]; char b[sizeof(long) << 1]; int c[1 ? 4 : 8];")
	want := map[string]int{"a": 7, "b": 16, "c": 4}
	for name, n := range want {
		if g[name].Ty.ArrayLen != n {
			t.Errorf("%s: len %d, want %d", name, g[name].Ty.ArrayLen, n)
		}
	}
}
