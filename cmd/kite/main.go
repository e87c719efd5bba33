// kite is an interactive shell for the bytecode engine: assemble
// instructions line by line, run them against an in-memory store, and
// save or load compiled program images.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/peterh/liner"

	"github.com/kitedb/kite/internal/VM"
	"github.com/kitedb/kite/pkg/kite"
)

const (
	appName     = "kite"
	historyFile = ".kite_history"
	promptMain  = "kite> "
)

var configPath = flag.String("config", "", "TOML configuration file")

func main() {
	flag.Parse()

	var (
		engine *kite.Engine
		err    error
	)
	if *configPath != "" {
		engine, err = kite.OpenWithConfigFile(*configPath)
	} else {
		engine, err = kite.Open(nil)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}

	if flag.NArg() > 0 {
		os.Exit(runImage(engine, flag.Arg(0)))
	}
	os.Exit(repl(engine))
}

// runImage executes a saved program image and prints any result rows.
func runImage(engine *kite.Engine, path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	stmt, err := engine.PrepareImage(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	status, err := stmt.Exec(func(row []VM.Value) error {
		fmt.Println(formatRow(row))
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		return 1
	}
	if status != VM.StatusOK {
		fmt.Fprintf(os.Stderr, "%s: halted with status %s\n", appName, status)
		return 1
	}
	return 0
}

// shell holds the program under construction. A fresh Program is built
// for every run so edits after a run take effect.
type shell struct {
	engine     *kite.Engine
	ins        []VM.Instruction
	numRegs    int
	numCursors int
}

func repl(engine *kite.Engine) int {
	fmt.Printf("%s bytecode shell\nType .help for commands, .quit to exit.\n\n", appName)

	home, _ := os.UserHomeDir()
	histPath := filepath.Join(home, historyFile)

	ln := liner.NewLiner()
	defer ln.Close()
	ln.SetCtrlCAborts(true)

	defer func() {
		if f, err := os.Create(histPath); err == nil {
			_, _ = ln.WriteHistory(f)
			_ = f.Close()
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigc)
	go func() {
		<-sigc
		ln.Close()
		os.Exit(130)
	}()

	if f, err := os.Open(histPath); err == nil {
		_, _ = ln.ReadHistory(f)
		_ = f.Close()
	}

	sh := &shell{engine: engine, numRegs: 16, numCursors: 4}

	for {
		line, err := ln.Prompt(promptMain)
		if errors.Is(err, io.EOF) {
			fmt.Println()
			return 0
		}
		if errors.Is(err, liner.ErrPromptAborted) {
			continue
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
			return 1
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ln.AppendHistory(line)

		if strings.HasPrefix(line, ".") {
			if sh.meta(line) {
				return 0
			}
			continue
		}

		in, err := assemble(line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}
		sh.ins = append(sh.ins, in)
		fmt.Printf("%4d  %s\n", len(sh.ins)-1, in)
	}
}

// meta handles dot commands. Returns true to exit the shell.
func (sh *shell) meta(line string) bool {
	parts := strings.Fields(line)
	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case ".quit", ".exit":
		return true

	case ".help":
		printHelp()

	case ".new":
		sh.ins = nil
		fmt.Println("program cleared")

	case ".regs":
		sh.setCount(&sh.numRegs, args, ".regs N")

	case ".cursors":
		sh.setCount(&sh.numCursors, args, ".cursors N")

	case ".dis":
		for i, in := range sh.ins {
			fmt.Printf("%4d  %s\n", i, in)
		}

	case ".run":
		sh.run()

	case ".save":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "Usage: .save FILE")
			return false
		}
		sh.save(args[0])

	case ".load":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "Usage: .load FILE")
			return false
		}
		sh.load(args[0])

	case ".table":
		root := sh.engine.CreateTable()
		fmt.Printf("table root %d\n", root)

	case ".index":
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "Usage: .index NFIELD")
			return false
		}
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			fmt.Fprintln(os.Stderr, "Usage: .index NFIELD")
			return false
		}
		root := sh.engine.CreateIndex(&VM.KeyInfo{NField: n})
		fmt.Printf("index root %d\n", root)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s (try .help)\n", parts[0])
	}
	return false
}

func (sh *shell) setCount(dst *int, args []string, usage string) {
	if len(args) != 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
		return
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		fmt.Fprintf(os.Stderr, "Usage: %s\n", usage)
		return
	}
	*dst = n
}

// program assembles the shell state into a fresh unresolved Program.
func (sh *shell) program() *VM.Program {
	p := VM.NewProgram()
	p.Instructions = append(p.Instructions, sh.ins...)
	p.NumRegs = sh.numRegs
	p.NumCursors = sh.numCursors
	return p
}

func (sh *shell) run() {
	stmt, err := sh.engine.Prepare(sh.program())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	rows := 0
	status, err := stmt.Exec(func(row []VM.Value) error {
		fmt.Println(formatRow(row))
		rows++
		return nil
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Printf("%d row(s), status %s\n", rows, status)
}

func (sh *shell) save(path string) {
	data, err := VM.MarshalProgram(sh.program())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	fmt.Printf("wrote %d bytes to %s\n", len(data), path)
}

func (sh *shell) load(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	p, err := VM.UnmarshalProgram(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}
	sh.ins = p.Instructions
	sh.numRegs = p.NumRegs
	sh.numCursors = p.NumCursors
	fmt.Printf("loaded %d instruction(s)\n", len(sh.ins))
}

// assemble parses one instruction line:
//
//	OPCODE [P1 [P2 [P3 [P4] [#P5]]]]
//
// P4 may be an integer, a real, or a double-quoted string. A trailing
// #N token sets P5.
func assemble(line string) (VM.Instruction, error) {
	toks, err := tokenize(line)
	if err != nil {
		return VM.Instruction{}, err
	}
	op, ok := VM.OpcodeByName(toks[0])
	if !ok {
		return VM.Instruction{}, fmt.Errorf("unknown opcode %q", toks[0])
	}
	in := VM.Instruction{Op: op}
	toks = toks[1:]

	// Trailing #N is P5 regardless of how many operands precede it.
	if n := len(toks); n > 0 && strings.HasPrefix(toks[n-1], "#") {
		p5, err := strconv.ParseUint(toks[n-1][1:], 0, 16)
		if err != nil {
			return VM.Instruction{}, fmt.Errorf("bad p5 %q", toks[n-1])
		}
		in.P5 = uint16(p5)
		toks = toks[:n-1]
	}

	ops := []*int32{&in.P1, &in.P2, &in.P3}
	for i := 0; i < len(toks) && i < 3; i++ {
		v, err := strconv.ParseInt(toks[i], 10, 32)
		if err != nil {
			return VM.Instruction{}, fmt.Errorf("operand %d: %q is not an integer", i+1, toks[i])
		}
		*ops[i] = int32(v)
	}

	if len(toks) > 4 {
		return VM.Instruction{}, fmt.Errorf("too many operands")
	}
	if len(toks) == 4 {
		in.P4, err = parseP4(toks[3])
		if err != nil {
			return VM.Instruction{}, err
		}
	}
	return in, nil
}

func parseP4(tok string) (interface{}, error) {
	if strings.HasPrefix(tok, `"`) {
		s, err := strconv.Unquote(tok)
		if err != nil {
			return nil, fmt.Errorf("bad string literal %s", tok)
		}
		return s, nil
	}
	if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return int(n), nil
	}
	if r, err := strconv.ParseFloat(tok, 64); err == nil {
		return r, nil
	}
	return nil, fmt.Errorf("bad P4 literal %q", tok)
}

// tokenize splits on whitespace but keeps double-quoted strings whole.
func tokenize(line string) ([]string, error) {
	var (
		toks []string
		b    strings.Builder
		inQ  bool
	)
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case inQ:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(line) {
				i++
				b.WriteByte(line[i])
			} else if c == '"' {
				inQ = false
			}
		case c == '"':
			inQ = true
			b.WriteByte(c)
		case c == ' ' || c == '\t':
			if b.Len() > 0 {
				toks = append(toks, b.String())
				b.Reset()
			}
		default:
			b.WriteByte(c)
		}
	}
	if inQ {
		return nil, fmt.Errorf("unterminated string")
	}
	if b.Len() > 0 {
		toks = append(toks, b.String())
	}
	if len(toks) == 0 {
		return nil, fmt.Errorf("empty line")
	}
	return toks, nil
}

func formatRow(row []VM.Value) string {
	cols := make([]string, len(row))
	for i, v := range row {
		cols[i] = v.String()
	}
	return strings.Join(cols, "|")
}

func printHelp() {
	fmt.Println("Assembly:")
	fmt.Println("  OPCODE [P1 [P2 [P3 [P4] [#P5]]]]   Append one instruction")
	fmt.Println("                                     P4: integer, real, or \"string\"")
	fmt.Println("                                     #N sets the P5 flag word")
	fmt.Println()
	fmt.Println("Program:")
	fmt.Println("  .dis               Disassemble the current program")
	fmt.Println("  .run               Resolve and execute, printing result rows")
	fmt.Println("  .new               Discard the current program")
	fmt.Println("  .regs N            Declare N registers (default 16)")
	fmt.Println("  .cursors N         Declare N cursor slots (default 4)")
	fmt.Println("  .save FILE         Write the program image")
	fmt.Println("  .load FILE         Replace the program from an image")
	fmt.Println()
	fmt.Println("Store:")
	fmt.Println("  .table             Create a table tree, print its root")
	fmt.Println("  .index NFIELD      Create an index tree over NFIELD columns")
	fmt.Println()
	fmt.Println("Other:")
	fmt.Println("  .help              Show this help")
	fmt.Println("  .quit, .exit       Exit the shell")
}
