package compiler

import "testing"

func TestLocalInitializers_E2E(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"partial array is zero filled", `
int main() { int a[4] = {1, 2}; return a[0] + a[1] * 10 + a[2] + a[3]; }`, 21},
		{"array length from initializer", `
int main() { int a[] = {4, 5, 6}; return sizeof(a) + a[2]; }`, 12 + 6},
		{"char array from string", `
int main() { char s[] = "hi"; return sizeof(s) * 100 + s[1]; }`, 300 + 'i'},
		{"string truncated to array", `
int main() { char s[2] = "hello"; return s[0] + s[1]; }`, 'h' + 'e'},
		{"struct", `
struct P { int x; int y; };
int main() { struct P p = {3, 4}; return p.x * p.y; }`, 12},
		{"struct from struct", `
struct P { int x; int y; };
int main() { struct P a = {2, 5}; struct P b = a; return b.x + b.y; }`, 7},
		{"nested with brace elision", `
int main() { int m[2][2] = {1, 2, 3, 4}; return m[0][0] + m[0][1] * 2 + m[1][0] * 3 + m[1][1] * 4; }`, 30},
		{"nested with braces", `
int main() { int m[2][3] = {{1}, {4, 5}}; return m[0][0] + m[0][1] + m[1][0] + m[1][1] + m[1][2]; }`, 10},
		{"excess elements ignored", `
int main() { int a[2] = {1, 2, 3, 4}; return a[0] + a[1]; }`, 3},
		{"union first member", `
union U { int i; char c[4]; };
int main() { union U u = {0x01020304}; return u.c[0]; }`, 4},
		{"braced scalar", `
int main() { int x = {9}; return x; }`, 9},
		{"large zero fill", `
int main() { char buf[3000] = {1}; return buf[0] * 10 + buf[2999] + buf[1500]; }`, 10},
		{"trailing comma", `
int main() { int a[] = {1, 2, 3,}; return sizeof(a) / sizeof(a[0]); }`, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runCode(t, tt.src); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestGlobalInitializers_E2E(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want int64
	}{
		{"scalar", `
int g = 5;
int main() { return g; }`, 5},
		{"array", `
int arr[3] = {1, 2, 3};
int main() { return arr[0] + arr[1] + arr[2]; }`, 6},
		{"uninitialized is zero", `
int z[4];
int main() { return z[0] + z[3]; }`, 0},
		{"constant expression", `
int g = (3 + 4) * 2 - (10 >> 1);
int main() { return g; }`, 9},
		{"pointer to element", `
int arr[3] = {1, 2, 3};
int *p = arr + 1;
int main() { return *p; }`, 2},
		{"address of member", `
struct P { int x; int y; };
struct P pt = {10, 20};
int *py = &pt.y;
int main() { return *py; }`, 20},
		{"string pointer", `
char *msg = "abc";
int main() { return msg[2]; }`, 'c'},
		{"char array", `
char name[] = "hey";
int main() { return sizeof(name) + name[1]; }`, 4 + 'e'},
		{"struct with padding", `
struct S { char c; long l; short s; };
struct S s = {1, 2, 3};
int main() { return s.c + s.l + s.s + sizeof(s); }`, 6 + 24},
		{"flexible array member", `
struct F { int n; int data[]; };
struct F f = {3, {7, 8, 9}};
int main() { return f.n + f.data[2]; }`, 12},
		{"pointer array", `
int a = 1, b = 2;
int *ptrs[2] = {&a, &b};
int main() { return *ptrs[0] + *ptrs[1] * 10; }`, 21},
		{"static global", `
static int hidden = 4;
int main() { hidden++; return hidden; }`, 5},
		{"negative values", `
short s = -2;
char c = -3;
int main() { return s + c; }`, -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runCode(t, tt.src); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
