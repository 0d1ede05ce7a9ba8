package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/wippyai/asmpack/asm"
	"github.com/wippyai/asmpack/pack"
)

func main() {
	var (
		file        = flag.String("file", "", "Path to packed module")
		funcIdx     = flag.Int("func", -1, "Print one function's statement tree and exit")
		verbose     = flag.Bool("v", false, "Verbose writer logging")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "Usage: asmdump -file <module> [-func n]")
		fmt.Fprintln(os.Stderr, "       asmdump -file <module> -i  (interactive mode)")
		os.Exit(1)
	}

	if *verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		pack.SetLogger(logger)
	}

	if *interactive {
		if err := runInteractive(*file); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := dump(*file, *funcIdx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func dump(file string, funcIdx int) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	a, err := pack.Decode(data)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}

	// Styled output only when attached to a terminal.
	heading := func(s string) string { return s }
	if term.IsTerminal(int(os.Stdout.Fd())) {
		style := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#87CEEB"))
		heading = func(s string) string { return style.Render(s) }
	}

	if funcIdx >= 0 {
		if funcIdx >= len(a.Functions) {
			return fmt.Errorf("module has %d functions", len(a.Functions))
		}
		fmt.Println(heading(functionHeading(a, funcIdx)))
		fmt.Print(formatBody(a.Functions[funcIdx]))
		return nil
	}

	fmt.Printf("%s %s (%d bytes)\n\n", heading("Module:"), file, len(data))
	fmt.Printf("Constants: %d i32, %d f32, %d f64\n",
		len(a.I32Consts), len(a.F32Consts), len(a.F64Consts))
	fmt.Printf("Signatures: %d\n", len(a.Signatures))
	for i, sig := range a.Signatures {
		fmt.Printf("  [%d] %s\n", i, formatSignature(sig))
	}
	fmt.Printf("Imports: %d\n", len(a.Imports))
	for _, imp := range a.Imports {
		fmt.Printf("  %s, %d signatures\n", imp.Name, len(imp.SigIndexes))
	}
	fmt.Printf("Globals: %d\n", len(a.Globals))
	for i, g := range a.Globals {
		if g.Imported {
			fmt.Printf("  [%d] %s import %q\n", i, g.Type, g.ImportName)
		} else {
			fmt.Printf("  [%d] %s\n", i, g.Type)
		}
	}
	fmt.Printf("Pointer tables: %d\n", len(a.PointerTables))
	for i, tbl := range a.PointerTables {
		fmt.Printf("  [%d] signature %d, %d elements\n", i, tbl.SigIndex, len(tbl.Elements))
	}

	fmt.Printf("\n%s\n", heading("Functions:"))
	for i := range a.Functions {
		fmt.Printf("  %s\n", functionHeading(a, i))
	}

	fmt.Printf("\n%s\n", heading("Export:"))
	switch a.Export.Kind {
	case asm.ExportDefault:
		fmt.Printf("  default -> function %d\n", a.Export.FuncIndex)
	case asm.ExportRecord:
		for _, e := range a.Export.Entries {
			fmt.Printf("  %s -> function %d\n", e.Name, e.FuncIndex)
		}
	}
	return nil
}

func functionHeading(a *asm.Assembly, idx int) string {
	fn := a.Functions[idx]
	return fmt.Sprintf("[%d] %s  locals: %d i32, %d f32, %d f64  %d bytes at %d",
		idx, formatSignature(fn.Sig),
		fn.NumI32Locals, fn.NumF32Locals, fn.NumF64Locals,
		fn.ByteLength, fn.ByteOffset)
}

func formatSignature(sig *asm.FunctionSignature) string {
	args := make([]string, len(sig.Args))
	for i, t := range sig.Args {
		args[i] = t.String()
	}
	return fmt.Sprintf("%s(%s)", sig.Ret, strings.Join(args, ", "))
}

func formatBody(fn *asm.FunctionDefinition) string {
	var b strings.Builder
	for _, n := range fn.Body {
		formatNode(&b, n, 0)
	}
	return b.String()
}

func formatNode(b *strings.Builder, n *asm.Node, depth int) {
	b.WriteString(strings.Repeat("  ", depth))
	b.WriteString(asm.OpcodeName(n.Op))
	switch n.Op {
	case asm.OpLitI32:
		fmt.Fprintf(b, " %d", n.Lit)
	case asm.OpCallImportStmt:
		fmt.Fprintf(b, " import=%d sig=%d", n.Index, n.SigIndex)
	case asm.OpGetLocal, asm.OpGetGlobal, asm.OpSetLocal, asm.OpSetGlobal,
		asm.OpConstI32, asm.OpConstF32, asm.OpConstF64,
		asm.OpCallStmt, asm.OpCallExpr, asm.OpCallIndirect:
		fmt.Fprintf(b, " %d", n.Index)
	}
	if n.IsExpression() && n.Type != asm.TypeVoid {
		fmt.Fprintf(b, " :%s", n.Type)
	}
	b.WriteByte('\n')
	for _, kid := range n.Kids {
		formatNode(b, kid, depth+1)
	}
}
