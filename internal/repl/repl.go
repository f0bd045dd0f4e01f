// Package repl implements the interactive patch inspector (spec.md
// SPEC_FULL ambient stack): a peterh/liner-backed line editor that loads a
// patch document, recompiles it through internal/compiler on demand, and
// prints the resulting diagnostics or schedule — the same shape as the
// teacher's internal/repl, generalized from evaluating expressions to
// compiling patches.
package repl

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/peterh/liner"

	"github.com/flowpatch/corec/internal/compiler"
	"github.com/flowpatch/corec/internal/config"
	"github.com/flowpatch/corec/internal/patch"
	"github.com/flowpatch/corec/internal/patchio"
	"github.com/flowpatch/corec/internal/registry"
	"github.com/flowpatch/corec/internal/schedule"
)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	cyan   = color.New(color.FgCyan).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
	dim    = color.New(color.Faint).SprintFunc()
)

// REPL holds everything one interactive session needs: the frozen
// registry and adapter catalog it compiles against, the currently loaded
// patch, and the most recent compile results so commands like :schedule
// can print without recompiling.
type REPL struct {
	reg     *registry.Registry
	catalog *registry.AdapterCatalog

	path    string
	current patch.Patch
	front   compiler.FrontendResult
	back    schedule.Result
	history []string
}

// New creates a REPL bound to reg/catalog. Callers typically pass
// registry.LoadBuiltins()'s two return values.
func New(reg *registry.Registry, catalog *registry.AdapterCatalog) *REPL {
	return &REPL{reg: reg, catalog: catalog}
}

// Start runs the read-eval-print loop until EOF or :quit.
func (r *REPL) Start(in io.Reader, out io.Writer) {
	line := liner.NewLiner()
	defer line.Close()
	line.SetMultiLineMode(false)

	historyFile := filepath.Join(os.TempDir(), ".patchc_history")
	if f, err := os.Open(historyFile); err == nil {
		_, _ = line.ReadHistory(f)
		f.Close()
	}

	fmt.Fprintf(out, "%s %s\n", bold("patchc"), bold(config.Version))
	fmt.Fprintln(out, dim("Type :help for commands, :quit to exit"))
	fmt.Fprintln(out)

	line.SetCompleter(func(input string) (c []string) {
		if !strings.HasPrefix(input, ":") {
			return nil
		}
		for _, cmd := range []string{
			":help", ":quit", ":load", ":reload", ":compile", ":check",
			":schedule", ":slots", ":blocks", ":add", ":history", ":clear",
		} {
			if strings.HasPrefix(cmd, input) {
				c = append(c, cmd)
			}
		}
		return
	})

	for {
		input, err := line.Prompt(r.prompt())
		if err == io.EOF {
			fmt.Fprintln(out, green("\nGoodbye!"))
			break
		}
		if err != nil {
			fmt.Fprintf(out, "%s: %v\n", red("Error"), err)
			continue
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)
		r.history = append(r.history, input)

		if strings.HasPrefix(input, ":") {
			if strings.HasPrefix(input, ":quit") || strings.HasPrefix(input, ":q") || strings.HasPrefix(input, ":exit") {
				fmt.Fprintln(out, green("Goodbye!"))
				break
			}
			r.HandleCommand(input, out)
			continue
		}

		fmt.Fprintf(out, "%s: not a command (expressions aren't evaluated here — patches are loaded with :load)\n", yellow("Note"))
	}

	if f, err := os.Create(historyFile); err == nil {
		_, _ = line.WriteHistory(f)
		f.Close()
	}
}

func (r *REPL) prompt() string {
	if r.path == "" {
		return "patch> "
	}
	return fmt.Sprintf("patch[%s]> ", filepath.Base(r.path))
}

// HandleCommand dispatches one ":"-prefixed command. Exported so a caller
// can drive a command without the interactive line editor (this package's
// tests do); cmd/patchc's subcommands format their own output.
func (r *REPL) HandleCommand(cmdline string, out io.Writer) {
	parts := strings.Fields(cmdline)
	if len(parts) == 0 {
		return
	}

	switch parts[0] {
	case ":help", ":h":
		r.printHelp(out)

	case ":load", ":l":
		if len(parts) < 2 {
			fmt.Fprintln(out, "Usage: :load <path>")
			return
		}
		r.load(parts[1], out)

	case ":reload":
		if r.path == "" {
			fmt.Fprintln(out, yellow("No patch loaded, nothing to reload"))
			return
		}
		r.load(r.path, out)

	case ":compile", ":c":
		r.compile(out)

	case ":check":
		r.compile(out)
		r.printDiagnostics(out)

	case ":schedule", ":s":
		r.printSchedule(out)

	case ":slots":
		r.printSlots(out)

	case ":blocks":
		for _, name := range r.reg.SortedTypeNames() {
			fmt.Fprintln(out, name)
		}

	case ":add":
		if len(parts) < 2 {
			fmt.Fprintln(out, "Usage: :add <BlockType>")
			return
		}
		r.addBlock(parts[1], out)

	case ":history":
		for i, h := range r.history {
			fmt.Fprintf(out, "%4d  %s\n", i+1, h)
		}

	case ":clear":
		fmt.Fprint(out, "\033[H\033[2J")

	default:
		fmt.Fprintf(out, "%s: unknown command %q (:help for a list)\n", red("Error"), parts[0])
	}
}

func (r *REPL) load(path string, out io.Writer) {
	p, err := patchio.LoadFile(path)
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", red("Error"), err)
		return
	}
	r.path = path
	r.current = p
	fmt.Fprintf(out, "%s %s (%d blocks, %d edges)\n", green("Loaded"), path, len(p.Blocks), len(p.Edges))
	r.compile(out)
}

// addBlock mints a fresh block with a random id and appends it to the
// in-memory patch — the one place in this module a stable, content-derived
// id would be actively wrong: two interactively-added blocks of the same
// type must never collide, and there is no patch-authored id to derive
// stability from the way internal/solver's minted instances do.
func (r *REPL) addBlock(blockType string, out io.Writer) {
	if _, ok := r.reg.Lookup(blockType); !ok {
		fmt.Fprintf(out, "%s: unregistered block type %q\n", red("Error"), blockType)
		return
	}
	id := patch.BlockID(fmt.Sprintf("%s-%s", strings.ToLower(blockType), uuid.New().String()[:8]))
	r.current.Blocks = append(r.current.Blocks, patch.Block{ID: id, Type: blockType})
	fmt.Fprintf(out, "%s block %s (%s)\n", green("Added"), id, blockType)
}

func (r *REPL) compile(out io.Writer) {
	fr, br, err := compiler.Compile(r.current, r.reg, r.catalog)
	r.front = fr
	r.back = br
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", red("Error"), err)
		return
	}
	if fr.TypedPatch.BackendReady {
		fmt.Fprintf(out, "%s: %d schedule steps, %d slots\n", green("OK"), len(br.Steps), len(br.SlotPlan.Assignments))
	} else {
		fmt.Fprintf(out, "%s: %d diagnostics (stage=%s)\n", yellow("Not backend-ready"), len(fr.TypedPatch.Diagnostics), stageOrFrontend(fr.Stage))
	}
}

func stageOrFrontend(stage string) string {
	if stage == "" {
		return "frontend"
	}
	return stage
}

func (r *REPL) printDiagnostics(out io.Writer) {
	for _, d := range r.front.TypedPatch.Diagnostics {
		fmt.Fprintf(out, "%s %s: %s\n", red(string(d.Kind)), cyan(string(d.NodeKind)), d.Message)
	}
}

func (r *REPL) printSchedule(out io.Writer) {
	for _, s := range r.back.Steps {
		fmt.Fprintf(out, "%-22s block=%-12s slot=%-4v expr=%v\n", s.Kind, s.Block, s.Slot, s.Expr)
	}
}

func (r *REPL) printSlots(out io.Writer) {
	for _, a := range r.back.SlotPlan.Assignments {
		fmt.Fprintf(out, "%-6v %s.%s -> slot %d\n", a.Kind, a.Block, a.Port, a.Slot)
	}
}

func (r *REPL) printHelp(out io.Writer) {
	fmt.Fprintln(out, bold("Commands:"))
	for _, line := range []string{
		":load <path>     load a .patch.json/.patch.yaml document and compile it",
		":reload          reload the currently loaded file",
		":compile         recompile the in-memory patch",
		":check           recompile and print every diagnostic",
		":schedule        print the backend's lowered step list",
		":slots           print the allocated slot plan",
		":blocks          list every registered block type",
		":add <Type>      append a fresh block occurrence to the in-memory patch",
		":history         show command history",
		":clear           clear the screen",
		":quit            exit",
	} {
		fmt.Fprintln(out, "  "+line)
	}
}
