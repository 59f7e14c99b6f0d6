// Package inspector is a read-only terminal browser over a finished
// LayoutResult: it lets a user step through the emitted instructions and
// their addresses/bytes alongside the resolved symbol table. Unlike the
// teacher's execution-time debugger TUI, it never runs the assembled code -
// there is nothing to single-step, only a static layout to browse.
package inspector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/lookbusy1344/nasm8086/asm"
	"github.com/lookbusy1344/nasm8086/parser"
)

// Run launches the interactive inspector over result, blocking until the
// user quits (q or Ctrl-C). sourcePath is shown in the title bar only.
func Run(result *asm.LayoutResult, sourcePath string) error {
	app := tview.NewApplication()

	itemList := tview.NewList().ShowSecondaryText(false)
	itemList.SetBorder(true).SetTitle(fmt.Sprintf(" %s (bits=%d, org=0x%04X) ", sourcePath, result.Bits, result.Origin))

	detail := tview.NewTextView().SetDynamicColors(true).SetWrap(true)
	detail.SetBorder(true).SetTitle(" Detail ")

	symbols := tview.NewTextView().SetDynamicColors(true)
	symbols.SetBorder(true).SetTitle(" Symbols ")
	symbols.SetText(renderSymbols(result.Symbols))

	for i, item := range result.Items {
		label := fmt.Sprintf("%04X  %-20s  %s", item.Address, hexBytes(item.Bytes), sourceText(item.Node))
		idx := i
		itemList.AddItem(label, "", 0, func() {
			showDetail(detail, result.Items[idx])
		})
	}
	if len(result.Items) > 0 {
		showDetail(detail, result.Items[0])
	}

	left := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(itemList, 0, 3, true).
		AddItem(symbols, 0, 1, false)

	root := tview.NewFlex().
		AddItem(left, 0, 2, true).
		AddItem(detail, 0, 1, false)

	app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Rune() == 'q' {
			app.Stop()
			return nil
		}
		return event
	})

	return app.SetRoot(root, true).SetFocus(itemList).Run()
}

func showDetail(detail *tview.TextView, item asm.InstructionLayout) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "[yellow]Address:[-] 0x%04X\n", item.Address)
	fmt.Fprintf(&sb, "[yellow]Length:[-] %d bytes\n", len(item.Bytes))
	fmt.Fprintf(&sb, "[yellow]Bytes:[-] %s\n\n", hexBytes(item.Bytes))
	fmt.Fprintf(&sb, "[yellow]Source:[-] %s\n", sourceText(item.Node))
	detail.SetText(sb.String())
}

func sourceText(node parser.Node) string {
	switch n := node.(type) {
	case *parser.InstructionNode:
		return n.RawLine
	case *parser.DefineNode:
		return n.Directive + " " + strings.Join(n.Args, ", ")
	default:
		return ""
	}
}

func hexBytes(b []byte) string {
	parts := make([]string, len(b))
	for i, c := range b {
		parts[i] = fmt.Sprintf("%02X", c)
	}
	return strings.Join(parts, " ")
}

func renderSymbols(syms *parser.SymbolTable) string {
	if syms == nil {
		return ""
	}
	var sb strings.Builder
	names := make([]string, 0)
	values := map[string]uint32{}
	for _, s := range syms.All() {
		names = append(names, s.Name)
		values[s.Name] = s.Value
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&sb, "%-20s 0x%04X\n", n, values[n])
	}
	return sb.String()
}
