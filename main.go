package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"rvcc/pkg/asm"
	"rvcc/pkg/compiler"
	"rvcc/pkg/cpu"
	"rvcc/pkg/utils"
)

var (
	outDir   string
	verbose  bool
	showAsm  bool
	maxSteps int
)

var rootCmd = &cobra.Command{
	Use:   "rvcc",
	Short: "rvcc compiles a subset of C to RV64 assembly",
	Long: `rvcc is a small C compiler targeting RV64 assembly, with a built-in
assembler and simulator for running the result.

Commands:
  build  Compile C files to .s assembly
  run    Compile a C file and run it on the simulator
  asm    Assemble a .s file and run it on the simulator
`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var buildCmd = &cobra.Command{
	Use:   "build [-o dir] <file.c>...",
	Short: "Compile C files to .s assembly",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		outs, err := buildFiles(cmd.Context(), args, outDir)
		if err != nil {
			return err
		}
		for i, out := range outs {
			fmt.Printf("%s -> %s\n", args[i], out)
		}
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <file.c>",
	Short: "Compile a C file and run it on the simulator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		code, err := compileFile(args[0])
		if err != nil {
			return err
		}
		if showAsm {
			fmt.Print(code)
		}
		ret, err := runAssembly(args[0], code, maxSteps)
		if err != nil {
			return err
		}
		fmt.Printf("%s returned %d\n", args[0], ret)
		os.Exit(int(uint8(ret)))
		return nil
	},
}

var asmCmd = &cobra.Command{
	Use:   "asm <file.s>",
	Short: "Assemble a .s file and run it on the simulator",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		source, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read input file %q: %w", args[0], err)
		}
		ret, err := runAssembly(args[0], string(source), maxSteps)
		if err != nil {
			return err
		}
		fmt.Printf("%s returned %d\n", args[0], ret)
		os.Exit(int(uint8(ret)))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outDir, "out", "o", "", "output directory for .s files (default: next to the input)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log per-file stage timings")
	rootCmd.PersistentFlags().BoolVar(&showAsm, "show-asm", false, "print the generated assembly before running")
	rootCmd.PersistentFlags().IntVar(&maxSteps, "max-steps", cpu.DefaultMaxSteps, "instruction budget for the simulator")

	rootCmd.AddCommand(buildCmd, runCmd, asmCmd)
}

func main() {
	log.SetFlags(0)
	log.SetPrefix("rvcc: ")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}

// compileFile reads and compiles one translation unit.
func compileFile(path string) (string, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input file %q: %w", path, err)
	}

	start := time.Now()
	code, err := compiler.Compile(string(source))
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}
	if verbose {
		log.Printf("%s: compiled in %s", path, time.Since(start))
	}
	return code, nil
}

// buildFiles compiles every path to a .s file and returns the output paths
// in input order. Translation units share nothing, so they compile in
// parallel; the first failure cancels the rest.
func buildFiles(ctx context.Context, paths []string, dir string) ([]string, error) {
	if dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	outs := make([]string, len(paths))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())

	for i, path := range paths {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out, err := utils.OutputPath(path, dir, ".s")
			if err != nil {
				return err
			}
			code, err := compileFile(path)
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, []byte(code), 0o644); err != nil {
				return fmt.Errorf("failed to write %q: %w", out, err)
			}
			outs[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return outs, nil
}

// runAssembly assembles code and runs it from its entry point, returning a0.
func runAssembly(name, code string, steps int) (int64, error) {
	start := time.Now()
	img, _, err := asm.Assemble(code)
	if err != nil {
		return 0, fmt.Errorf("%s: assembly failed: %w", name, err)
	}
	if verbose {
		log.Printf("%s: assembled %d instructions, %d data bytes in %s", name, len(img.Text), len(img.Data), time.Since(start))
	}

	vm := cpu.NewCPU()
	if err := vm.Load(img); err != nil {
		return 0, fmt.Errorf("%s: %w", name, err)
	}

	start = time.Now()
	ret, err := vm.Run(img.Entry, steps)
	if err != nil {
		return 0, fmt.Errorf("%s: run failed: %w", name, err)
	}
	if verbose {
		log.Printf("%s: ran %d instructions in %s", name, vm.Steps, time.Since(start))
	}
	return ret, nil
}
