// Command vslang compiles a small JavaScript-like language to a flat IR and
// either interprets it directly or emits assembly/WAT for one of three
// backends. Orchestration pattern (read source, dispatch stage by stage,
// write output) adapted from the teacher's src/main.go
// run/main split, driven by cobra.Command instead of util.ParseArgs.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"vslang/src/backend/arm64"
	"vslang/src/backend/wasm"
	"vslang/src/backend/x86"
	"vslang/src/frontend"
	"vslang/src/ir"
	"vslang/src/util"
	"vslang/src/vm"
)

// exampleSource is the built-in fib(10) program run when vslang is invoked
// with no positional file arguments, restored from
// original_source/src/main.rs's EXAMPLE_JS (spec §4.8).
const exampleSource = `
function fibonacci(n) {
	if (n <= 1) {
		return n;
	}
	return fibonacci(n - 1) + fibonacci(n - 2);
}

function main() {
	let n = 10;
	let fib = fibonacci(n);
	print(n);
	print(fib);
	return fib;
}
`

var (
	target  string
	out     string
	verbose bool
	tokens  bool
)

func main() {
	root := &cobra.Command{
		Use:   "vslang [files...]",
		Short: "Compile and run a small JavaScript-like language",
		RunE:  runRoot,
	}
	root.Flags().StringVar(&target, "target", "", "backend target: vm (default), x86-64, arm64, wasm")
	root.Flags().StringVar(&out, "out", "", "output path (defaults to stdout / <source>.<ext>)")
	root.Flags().BoolVar(&verbose, "verbose", false, "log debug-level pipeline detail (per-stage counts; the AST and IR are not printed)")
	root.Flags().BoolVar(&tokens, "tokens", false, "dump the token stream and exit")

	util.NewLogger(verbose)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runRoot(cmd *cobra.Command, args []string) error {
	util.NewLogger(verbose)

	if len(out) > 0 {
		f, err := os.OpenFile(out, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return fmt.Errorf("could not open output file: %w", err)
		}
		defer f.Close()
		util.ListenWrite(f)
	} else {
		util.ListenWrite(nil)
	}
	defer util.Close()

	if len(args) == 0 {
		return compile("", exampleSource)
	}

	if len(args) == 1 {
		src, err := util.ReadSource(args[0])
		if err != nil {
			return fmt.Errorf("could not read %s: %w", args[0], err)
		}
		return compile(args[0], src)
	}

	// Multiple files: compile each independently, collecting failures
	// rather than aborting the batch (SPEC_FULL §11).
	collector := util.NewCollector(len(args))
	defer collector.Stop()
	for _, path := range args {
		src, err := util.ReadSource(path)
		if err != nil {
			collector.Append(fmt.Errorf("%s: %w", path, err))
			continue
		}
		if err := compile(path, src); err != nil {
			collector.Append(fmt.Errorf("%s: %w", path, err))
		}
	}

	if collector.Len() > 0 {
		for _, e := range collector.Errors() {
			fmt.Fprintln(os.Stderr, colorizeError(e))
		}
		return fmt.Errorf("%d of %d files failed", collector.Len(), len(args))
	}
	return nil
}

// compile runs one source through the pipeline: lex, (optionally dump
// tokens and stop), parse, lower, log stage counts, then either interpret
// on the VM or emit the selected backend's text.
func compile(path, src string) error {
	toks, err := frontend.Lex(src)
	if err != nil {
		return colorizeError(err)
	}
	util.Log.Debug().Int("tokens", len(toks)).Msg("lex done")

	if tokens {
		for _, t := range toks {
			fmt.Printf("%s %q (line %d)\n", t.Kind, t.Str, t.Line)
		}
		return nil
	}

	prog, err := frontend.Parse(src)
	if err != nil {
		return colorizeError(err)
	}
	if verbose {
		util.Log.Debug().Int("statements", len(prog.Statements)).Msg("parse done")
	}

	mod, err := ir.LowerProgram(prog)
	if err != nil {
		return colorizeError(err)
	}
	count := 0
	for _, fn := range mod.Functions {
		count += len(fn.Instructions)
	}
	util.Log.Debug().Int("functions", len(mod.Functions)).Int("instructions", count).Msg("lowering done")

	switch target {
	case "", "vm":
		return runVM(mod)
	case "x86-64":
		return emit(path, ".s", func() (string, error) { return x86.Generate(mod) })
	case "arm64":
		return emit(path, ".s", func() (string, error) { return arm64.Generate(mod) })
	case "wasm":
		return emit(path, ".wat", func() (string, error) { return wasm.Generate(mod) })
	default:
		return fmt.Errorf("unknown target %q", target)
	}
}

func runVM(mod *ir.IRModule) error {
	machine := vm.New(mod)
	result, err := machine.RunMain()
	if err != nil {
		return colorizeError(err)
	}
	fmt.Println(result)
	return nil
}

func emit(path, ext string, gen func() (string, error)) error {
	text, err := gen()
	if err != nil {
		return colorizeError(err)
	}
	util.Log.Debug().Str("target", target).Msg("codegen done")

	// With an explicit --out or no source file (stdin/built-in example),
	// route through the shared writer (stdout or the --out file). With a
	// source file and no --out, write alongside it using the backend's
	// extension (spec §4.8/§6).
	if len(out) == 0 && len(path) > 0 {
		dest := strings.TrimSuffix(path, filepath.Ext(path)) + ext
		return os.WriteFile(dest, []byte(text), 0644)
	}

	w := util.NewWriter()
	w.WriteString(text)
	w.Close()
	return nil
}

// colorizeError prefixes a *util.StageError with its Kind, colored red for
// hard failures and yellow for IR/codegen issues, matching the pack's
// convention of class-tagged CLI diagnostics (SPEC_FULL §10).
func colorizeError(err error) error {
	se, ok := err.(*util.StageError)
	if !ok {
		return err
	}
	var c *color.Color
	switch se.Kind {
	case util.IRError, util.CodeGenError:
		c = color.New(color.FgYellow)
	default:
		c = color.New(color.FgRed)
	}
	return fmt.Errorf("%s: %s", c.Sprint(se.Kind.String()), se.Error())
}
