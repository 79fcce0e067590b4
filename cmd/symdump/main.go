// Command symdump is a minimal collaborating driver for the sym library: it
// opens a file, runs one query, and prints the result. It is not the
// interactive menu-driven front end the library's spec explicitly puts out
// of scope (spec.md §1) — it exists only to give the façade a runnable
// entry point.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/jsherman212/libsym"
)

var colorErr = color.New(color.FgRed, color.Bold)
var colorHeader = color.New(color.FgWhite, color.Bold, color.Underline)
var colorAddr = color.New(color.FgCyan)
var colorName = color.New(color.FgGreen)
var colorType = color.New(color.FgYellow)

var rootCmd = &cobra.Command{
	Use:   "symdump",
	Short: "Inspect DWARF debugging information in an ELF binary",
}

func openOrDie(path string) *sym.Context {
	ctx, err := sym.Open(path)
	if err != nil {
		colorErr.Fprintf(os.Stderr, "symdump: %v\n", err)
		os.Exit(1)
	}
	return ctx
}

func main() {
	rootCmd.AddCommand(cusCmd, funcCmd, pc2lineCmd, line2pcCmd, varsCmd, typeCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var cusCmd = &cobra.Command{
	Use:   "cus <binary>",
	Short: "List every compilation unit",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := openOrDie(args[0])
		defer ctx.Close()

		colorHeader.Println("Compilation Units")
		for _, cu := range ctx.CUs() {
			fmt.Printf("  %s (addr size %d)\n", colorName.Sprint(cu.Name()), cu.AddressSize)
		}
	},
}

var funcCmd = &cobra.Command{
	Use:   "func <binary> <pc>",
	Short: "Find the function enclosing a program counter",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := openOrDie(args[0])
		defer ctx.Close()

		pc := parseAddr(args[1])
		fn, err := ctx.FunctionByPC(pc)
		if err != nil {
			colorErr.Fprintf(os.Stderr, "symdump: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(colorName.Sprint(fn.Name()), fn.Pretty())
	},
}

var pc2lineCmd = &cobra.Command{
	Use:   "pc2line <binary> <pc>",
	Short: "Resolve a program counter to (file, function, line)",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := openOrDie(args[0])
		defer ctx.Close()

		pc := parseAddr(args[1])
		file, fn, line, err := ctx.PCToSourceLocation(pc)
		if err != nil {
			colorErr.Fprintf(os.Stderr, "symdump: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s:%d in %s\n", file, line, colorName.Sprint(fn))
	},
}

var line2pcCmd = &cobra.Command{
	Use:   "line2pc <binary> <file> <line>",
	Short: "Resolve a (file, line) pair to an address, adjusting to the nearest line if needed",
	Args:  cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := openOrDie(args[0])
		defer ctx.Close()

		line := parseInt(args[2])
		pc, used, err := ctx.LineToPC(args[1], line)
		if err != nil {
			colorErr.Fprintf(os.Stderr, "symdump: %v\n", err)
			os.Exit(1)
		}
		if used != line {
			fmt.Printf("%s adjusted %d -> %d\n", color.YellowString("note:"), line, used)
		}
		fmt.Println(colorAddr.Sprintf("%#x", pc))
	},
}

var varsCmd = &cobra.Command{
	Use:   "vars <binary> <function>",
	Short: "Enumerate the variables in a function's scope",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := openOrDie(args[0])
		defer ctx.Close()

		fn, err := ctx.FindByName(args[1])
		if err != nil {
			colorErr.Fprintf(os.Stderr, "symdump: %v\n", err)
			os.Exit(1)
		}
		for _, v := range fn.Variables() {
			typeStr, _ := v.TypeName()
			fmt.Printf("  %s : %s\n", colorName.Sprint(v.Name()), colorType.Sprint(typeStr))
		}
	},
}

var typeCmd = &cobra.Command{
	Use:   "type <binary> <die-offset>",
	Short: "Print the canonical type string for a DIE by offset",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := openOrDie(args[0])
		defer ctx.Close()

		off := sym.Offset(parseAddr(args[1]))
		d, err := ctx.FindByOffset(off)
		if err != nil {
			colorErr.Fprintf(os.Stderr, "symdump: %v\n", err)
			os.Exit(1)
		}
		typeStr, ok := d.TypeName()
		if !ok {
			fmt.Println("(no type)")
			return
		}
		fmt.Println(colorType.Sprint(typeStr))
	},
}

func parseAddr(s string) uint64 {
	var v uint64
	fmt.Sscanf(s, "0x%x", &v)
	if v == 0 {
		fmt.Sscanf(s, "%d", &v)
	}
	return v
}

func parseInt(s string) int {
	var v int
	fmt.Sscanf(s, "%d", &v)
	return v
}
