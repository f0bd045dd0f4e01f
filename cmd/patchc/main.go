// Command patchc compiles and inspects dataflow patches (spec.md §6):
// subcommands compile/check/watch/repl/bench over the pipeline
// internal/compiler wires together, following the shape of the teacher's
// cmd/ailang/main.go.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"

	"github.com/flowpatch/corec/internal/compiler"
	"github.com/flowpatch/corec/internal/config"
	"github.com/flowpatch/corec/internal/patchio"
	"github.com/flowpatch/corec/internal/registry"
	"github.com/flowpatch/corec/internal/repl"
	"github.com/flowpatch/corec/internal/schedule"
)

// Version, Commit, and BuildTime are set by ldflags during release builds
// (go build -ldflags "-X main.Version=... -X main.Commit=... -X main.BuildTime=...").
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

func main() {
	var (
		versionFlag = flag.Bool("version", false, "Print version information")
		helpFlag    = flag.Bool("help", false, "Show help")
		outFlag     = flag.String("out", "", "Write the compiled schedule JSON to this path (compile only)")
		jsonFlag    = flag.Bool("json", false, "Print diagnostics as JSON instead of text")
		nFlag       = flag.Int("n", 20, "Number of compiles to run (bench only)")
	)
	flag.Parse()

	if config.Version != "" && Version == "dev" {
		Version = config.Version
	}

	if *versionFlag {
		printVersion()
		return
	}
	if *helpFlag || flag.NArg() == 0 {
		printHelp()
		return
	}

	command := flag.Arg(0)
	switch command {
	case "compile":
		requireFile(command)
		compileFile(flag.Arg(1), *outFlag, *jsonFlag)
	case "check":
		requireFile(command)
		checkFile(flag.Arg(1), *jsonFlag)
	case "watch":
		requireFile(command)
		watchFile(flag.Arg(1), *jsonFlag)
	case "repl":
		runREPL()
	case "bench":
		requireFile(command)
		benchFile(flag.Arg(1), *nFlag)
	default:
		fmt.Fprintf(os.Stderr, "%s: unknown command %q\n", red("Error"), command)
		printHelp()
		os.Exit(1)
	}
}

func requireFile(command string) {
	if flag.NArg() < 2 {
		fmt.Fprintf(os.Stderr, "%s: missing file argument\n", red("Error"))
		fmt.Printf("Usage: patchc %s <patch.json|patch.yaml>\n", command)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("patchc %s\n", bold(Version))
	if Commit != "unknown" {
		fmt.Printf("Commit: %s\n", Commit)
	}
	if BuildTime != "unknown" {
		fmt.Printf("Built:  %s\n", BuildTime)
	}
}

func printHelp() {
	fmt.Println(bold("patchc - dataflow patch compiler"))
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  patchc <command> [arguments]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Printf("  %s <file>    Compile a patch and print a schedule summary\n", cyan("compile"))
	fmt.Printf("  %s <file>      Compile a patch and print diagnostics only\n", cyan("check"))
	fmt.Printf("  %s <file>      Recompile a patch on every file change\n", cyan("watch"))
	fmt.Printf("  %s               Start the interactive patch inspector\n", cyan("repl"))
	fmt.Printf("  %s <file>      Time repeated compiles of a patch\n", cyan("bench"))
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  --version        Print version information")
	fmt.Println("  --help           Show this help message")
	fmt.Println("  --out <path>     Write the compiled schedule JSON (compile only)")
	fmt.Println("  --json           Print diagnostics as JSON")
	fmt.Println("  -n <count>       Number of compiles to run (bench only, default 20)")
}

func loadAndCompile(path string) (p patchio.PatchDoc, fr compiler.FrontendResult, br schedule.Result, err error) {
	pp, err := patchio.LoadFile(path)
	if err != nil {
		return patchio.PatchDoc{}, compiler.FrontendResult{}, schedule.Result{}, err
	}
	reg, catalog := registry.LoadBuiltins()
	fr2, br2, cerr := compiler.Compile(pp, reg, catalog)
	return patchio.FromPatch(pp), fr2, br2, cerr
}

func compileFile(path, outPath string, asJSON bool) {
	_, fr, br, err := loadAndCompile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("Error"), err)
		os.Exit(1)
	}
	printDiagnostics(fr, asJSON)
	if !fr.TypedPatch.BackendReady {
		os.Exit(1)
	}
	fmt.Printf("%s %d schedule steps, %d slots\n", green("Compiled"), len(br.Steps), len(br.SlotPlan.Assignments))

	if outPath != "" {
		data, err := br.ToJSON()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", red("Error"), err)
			os.Exit(1)
		}
		if err := os.WriteFile(outPath, data, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", red("Error"), err)
			os.Exit(1)
		}
		fmt.Printf("%s %s\n", green("Wrote"), outPath)
	}
}

func checkFile(path string, asJSON bool) {
	_, fr, _, err := loadAndCompile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("Error"), err)
		os.Exit(1)
	}
	printDiagnostics(fr, asJSON)
	if !fr.TypedPatch.BackendReady {
		os.Exit(1)
	}
	fmt.Println(green("OK"))
}

func printDiagnostics(fr compiler.FrontendResult, asJSON bool) {
	for _, d := range fr.TypedPatch.Diagnostics {
		if asJSON {
			data, err := d.ToJSON()
			if err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", red("Error"), err)
				continue
			}
			fmt.Println(string(data))
			continue
		}
		fmt.Printf("%s %s: %s\n", red(string(d.Kind)), cyan(string(d.NodeKind)), d.Message)
	}
}

// watchFile polls the patch file's mtime and recompiles on change. The
// teacher's watchFile is a stub that just runs the file once; this one is
// implemented because spec.md names watch mode as a real authoring
// workflow, not a demo command.
func watchFile(path string, asJSON bool) {
	fmt.Printf("%s Watching %s for changes (Ctrl+C to stop)\n", cyan("watch"), path)

	var lastMod time.Time
	for {
		info, err := os.Stat(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", red("Error"), err)
			time.Sleep(time.Second)
			continue
		}
		if info.ModTime().After(lastMod) {
			lastMod = info.ModTime()
			fmt.Printf("%s %s\n", yellow("Recompiling"), path)
			// Not checkFile: a failing compile is reported, not a process exit.
			if _, fr, _, err := loadAndCompile(path); err != nil {
				fmt.Fprintf(os.Stderr, "%s: %v\n", red("Error"), err)
			} else {
				printDiagnostics(fr, asJSON)
				if fr.TypedPatch.BackendReady {
					fmt.Println(green("OK"))
				}
			}
		}
		time.Sleep(500 * time.Millisecond)
	}
}

func runREPL() {
	config.IsREPLMode = true
	reg, catalog := registry.LoadBuiltins()
	repl.New(reg, catalog).Start(os.Stdin, os.Stdout)
}

func benchFile(path string, n int) {
	p, err := patchio.LoadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", red("Error"), err)
		os.Exit(1)
	}
	reg, catalog := registry.LoadBuiltins()

	start := time.Now()
	for i := 0; i < n; i++ {
		if _, _, err := compiler.Compile(p, reg, catalog); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", red("Error"), err)
			os.Exit(1)
		}
	}
	elapsed := time.Since(start)
	fmt.Printf("%s %d compiles in %s (%s/compile)\n", green("Bench"), n, elapsed, elapsed/time.Duration(n))
}
