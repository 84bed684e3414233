package compiler

import "testing"

// scalarSource covers enums, a static global, switch dispatch and a for
// loop with a block-scoped counter.
const scalarSource = `
enum Op { ADD, SUB, MUL };
static int bias = 2;

int apply(enum Op op, int a, int b) {
	switch (op) {
	case ADD: return a + b;
	case SUB: return a - b;
	case MUL: return a * b;
	}
	return 0;
}

int main() {
	int acc = 1;
	for (int i = 0; i < 3; i++)
		acc = apply(i, acc, 3);
	return acc + bias;
}
`

// aggregateSource leans on the initializer engine: nested struct and array
// braces, string members, brace elision, relocations, struct copies and goto.
const aggregateSource = `
struct Item {
	char name[8];
	int qty;
	short price;
};

typedef struct {
	int count;
	struct Item items[3];
} Order;

Order order = {3, {{"nut", 4, 5}, {"bolt", 2, 7}, {"gear", 1, 20}}};
char *labels[] = {"low", "mid", "high"};
long table[2][3] = {{1, 2, 3}, {4, 5}};

int total(Order *o) {
	int sum = 0;
	for (int i = 0; i < o->count; i++)
		sum += o->items[i].qty * o->items[i].price;
	return sum;
}

int grade(int v) {
	if (v < 20)
		goto low;
	if (v < 50)
		return 1;
	return 2;
low:
	return 0;
}

int main() {
	int local[5] = {1, 2};
	struct Item copy = order.items[1];
	int t = total(&order);
	int g = grade(t);
	int n = sizeof(labels) / sizeof(*labels);
	return t + g + n + labels[g][0] + copy.qty + local[1] + local[4] + table[1][2];
}
`

var benchSources = []struct {
	name string
	src  string
}{
	{"Scalar", scalarSource},
	{"Aggregate", aggregateSource},
}

func BenchmarkLex(b *testing.B) {
	for _, bs := range benchSources {
		b.Run(bs.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Lex(bs.src); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// Tokens are pre-computed outside the timed region.
func BenchmarkParse(b *testing.B) {
	for _, bs := range benchSources {
		b.Run(bs.name, func(b *testing.B) {
			tokens, err := Lex(bs.src)
			if err != nil {
				b.Fatal(err)
			}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := Parse(tokens, bs.src); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

// Generate writes frame offsets into the Program, so each run parses a
// fresh one with the timer stopped.
func BenchmarkGenerate(b *testing.B) {
	for _, bs := range benchSources {
		b.Run(bs.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				b.StopTimer()
				prog, err := Frontend(bs.src)
				if err != nil {
					b.Fatal(err)
				}
				b.StartTimer()
				if _, err := Generate(prog); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkCompile(b *testing.B) {
	for _, bs := range benchSources {
		b.Run(bs.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if _, err := Compile(bs.src); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
