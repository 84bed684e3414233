package compiler

import "testing"

func TestPointers_E2E(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"store through pointer", `
int main() { int x = 3; int *p = &x; *p = 5; return x; }`, 5},
		{"pointer to pointer", `
int main() { int x = 1; int *p = &x; int **pp = &p; **pp = 9; return x; }`, 9},
		{"pointer arithmetic scales", `
int main() { int a[4]; a[0] = 1; a[1] = 2; a[2] = 3; a[3] = 4; int *p = a + 1; return *(p + 2) - *p; }`, 2},
		{"integer plus pointer", `
int main() { long a[3]; a[2] = 11; return *(2 + a); }`, 11},
		{"pointer minus integer", `
int main() { int a[4]; a[1] = 8; int *p = &a[3]; return *(p - 2); }`, 8},
		{"pointer difference", `
int main() { int a[8]; return &a[6] - &a[1]; }`, 5},
		{"char pointer walk", `
int main() { char *s = "hello"; int n = 0; while (*s) { n++; s++; } return n; }`, 5},
		{"string index", `
int main() { char *s = "hello"; return s[1]; }`, 'e'},
		{"string escapes", `
int main() { char *s = "a\tb\n"; return s[1] + s[3]; }`, 9 + 10},
		{"sizeof string", `
int main() { return sizeof("abc"); }`, 4},
		{"array decays in call", `
int sum(int *a, int n) { int s = 0; for (int i = 0; i < n; i++) s += a[i]; return s; }
int main() { int a[5]; for (int i = 0; i < 5; i++) a[i] = i * i; return sum(a, 5); }`, 30},
		{"index commutes", `
int main() { int a[3]; a[2] = 4; return 2[a]; }`, 4},
		{"global pointer", `
int g = 7;
int *gp;
int main() { gp = &g; *gp += 1; return g; }`, 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runCode(t, tt.src); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestStructsArrays_E2E(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"struct copy", `
struct P { int x; int y; };
int main() { struct P a, b; a.x = 3; a.y = 9; b = a; return b.y - b.x; }`, 6},
		{"arrow", `
struct P { int x; int y; };
int main() { struct P p; struct P *q = &p; q->x = 7; q->y = 1; return p.x + p.y; }`, 8},
		{"nested struct", `
struct In { char c; int v; };
struct Out { int a; struct In in; long b; };
int main() { struct Out o; o.in.v = 5; o.b = 6; o.a = 1; return o.a + o.in.v + o.b; }`, 12},
		{"array of structs", `
struct P { int x; int y; };
int main() {
	struct P ps[3];
	for (int i = 0; i < 3; i++) { ps[i].x = i; ps[i].y = i * 10; }
	return ps[2].x + ps[1].y;
}`, 12},
		{"struct through function", `
struct P { int x; int y; };
int area(struct P *p) { return p->x * p->y; }
int main() { struct P p; p.x = 6; p.y = 7; return area(&p); }`, 42},
		{"union shares storage", `
union U { int i; char c; };
int main() { union U u; u.i = 0x141; return u.c; }`, 0x41},
		{"two dimensional array", `
int main() {
	int m[2][3];
	for (int i = 0; i < 2; i++)
		for (int j = 0; j < 3; j++)
			m[i][j] = i * 3 + j;
	return m[1][2] + sizeof(m) + sizeof(m[0]);
}`, 5 + 24 + 12},
		{"self referential struct", `
struct Node { int v; struct Node *next; };
int main() {
	struct Node a, b;
	a.v = 1; b.v = 2;
	a.next = &b; b.next = 0;
	int s = 0;
	for (struct Node *n = &a; n; n = n->next)
		s += n->v;
	return s;
}`, 3},
		{"typedef", `
typedef int myint;
typedef struct { myint x; } Box;
int main() { Box b; b.x = 4; myint y = b.x; return y * y; }`, 16},
		{"enum constants", `
enum Color { RED, GREEN = 5, BLUE };
int main() { enum Color c = BLUE; return c + RED; }`, 6},
		{"large frame", `
int main() { char buf[5000]; buf[4999] = 7; buf[0] = 1; return buf[4999] + buf[0]; }`, 8},
		{"large struct assignment", `
struct B { char a[3000]; };
int main() {
	struct B x, y;
	x.a[0] = 1; x.a[2048] = 2; x.a[2999] = 3;
	y = x;
	return y.a[0] + y.a[2048] * 10 + y.a[2999] * 100;
}`, 321},
		{"large struct copy initializer", `
struct B { long n; char a[4000]; };
int main() {
	struct B x;
	x.n = 5; x.a[3999] = 9;
	struct B y = x;
	struct B *p = &y;
	return p->n + p->a[3999];
}`, 14},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runCode(t, tt.src); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
