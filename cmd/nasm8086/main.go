// Command nasm8086 assembles NASM-syntax 8086/80186/80386/80486 source
// files into flat binary images.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/lookbusy1344/nasm8086/asm"
	"github.com/lookbusy1344/nasm8086/asmconfig"
	"github.com/lookbusy1344/nasm8086/inspector"
	"github.com/lookbusy1344/nasm8086/parser"
)

// Version information - can be overridden at build time with:
// go build -ldflags "-X main.Version=v1.2.3"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

func main() {
	var (
		showVersion   = flag.Bool("version", false, "Show version information")
		showHelp      = flag.Bool("help", false, "Show help information")
		outputPath    = flag.String("o", "", "Output file path (default: <input> with extension replaced)")
		format        = flag.String("f", "", "Output format: bin, com, hex (default: from config)")
		bitsFlag      = flag.Int("bits", 0, "Default operand-size mode if the source has no [bits] directive (16 or 32)")
		orgFlag       = flag.String("org", "", "Default origin address if the source has no [org] directive")
		maxPasses     = flag.Int("max-passes", 0, "Maximum layout passes before giving up (default: from config)")
		listingPath   = flag.String("listing", "", "Write an address/bytes listing to this file")
		mapPath       = flag.String("map", "", "Write a symbol map to this file")
		inspectMode   = flag.Bool("inspect", false, "Launch the interactive layout inspector instead of writing output")
		noPreprocess  = flag.Bool("no-preprocess", false, "Disable the %%include/%%define/%%macro preprocessor")
		configPath    = flag.String("config", "", "Load settings from this TOML file instead of the default location")
		verboseMode   = flag.Bool("verbose", false, "Verbose output")
	)

	flag.Usage = printHelp
	flag.Parse()

	if *showVersion {
		fmt.Printf("nasm8086 %s\n", Version)
		if Commit != "unknown" {
			fmt.Printf("Commit: %s\n", Commit)
		}
		if Date != "unknown" {
			fmt.Printf("Built: %s\n", Date)
		}
		os.Exit(0)
	}

	if *showHelp || flag.NArg() == 0 {
		flag.Usage()
		os.Exit(0)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	opts := assembleOptions{
		format:       firstNonEmpty(*format, cfg.Output.Format),
		bits:         firstNonZero(*bitsFlag, cfg.Assembler.DefaultBits),
		org:          firstNonEmpty(*orgFlag, cfg.Assembler.DefaultOrg),
		maxPasses:    firstNonZero(*maxPasses, cfg.Assembler.MaxPasses),
		preprocess:   !*noPreprocess && cfg.Assembler.EnablePreproc,
		listingPath:  *listingPath,
		mapPath:      *mapPath,
		inspect:      *inspectMode,
		verbose:      *verboseMode,
		outputPath:   *outputPath,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	for _, file := range flag.Args() {
		select {
		case <-ctx.Done():
			fmt.Fprintln(os.Stderr, "assembly cancelled")
			os.Exit(1)
		default:
		}
		if err := assembleFile(ctx, file, opts); err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
			os.Exit(1)
		}
	}
}

type assembleOptions struct {
	format      string
	bits        int
	org         string
	maxPasses   int
	preprocess  bool
	listingPath string
	mapPath     string
	inspect     bool
	verbose     bool
	outputPath  string
}

func loadConfig(path string) (*asmconfig.Config, error) {
	if path != "" {
		return asmconfig.LoadFrom(path)
	}
	return asmconfig.Load()
}

func assembleFile(ctx context.Context, path string, opts assembleOptions) error {
	if opts.verbose {
		fmt.Printf("Parsing %s\n", path)
	}

	popts := parser.DefaultParseFileOptions()
	popts.EnablePreprocessor = opts.preprocess
	prog, _, err := parser.ParseFile(path, popts)
	if err != nil {
		return fmt.Errorf("parse error:\n%w", err)
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	layouter := asm.NewLayouter()
	if opts.maxPasses > 0 {
		layouter.MaxPasses = opts.maxPasses
	}
	if opts.bits == 32 {
		layouter.DefaultBits = 32
	}
	if opts.org != "" {
		if v, err := asm.ParseNumberLiteral(strings.TrimSpace(opts.org)); err == nil {
			layouter.DefaultOrigin = uint32(v)
		}
	}

	result, err := layouter.Layout(prog)
	if err != nil {
		return fmt.Errorf("layout error: %w", err)
	}

	if opts.verbose {
		fmt.Printf("Assembled %d bytes in %d passes\n", len(result.Bytes), result.Passes)
	}

	if opts.inspect {
		return inspector.Run(result, path)
	}

	outPath := opts.outputPath
	if outPath == "" {
		outPath = defaultOutputPath(path, opts.format)
	}
	if err := writeOutput(result, outPath, opts.format); err != nil {
		return err
	}

	if opts.listingPath != "" {
		if err := writeListing(result, opts.listingPath, path); err != nil {
			return err
		}
	}
	if opts.mapPath != "" {
		if err := writeMap(result, opts.mapPath); err != nil {
			return err
		}
	}
	return nil
}

func defaultOutputPath(inputPath, format string) string {
	ext := ".bin"
	switch format {
	case "com":
		ext = ".com"
	case "hex":
		ext = ".hex"
	}
	base := strings.TrimSuffix(inputPath, filepath.Ext(inputPath))
	return base + ext
}

func writeOutput(result *asm.LayoutResult, path, format string) error {
	var data []byte
	switch format {
	case "hex":
		data = []byte(hex.EncodeToString(result.Bytes))
	default: // bin, com: both are flat binary images
		data = result.Bytes
	}
	return os.WriteFile(path, data, 0644) // #nosec G306 -- assembler output is not sensitive
}

func writeListing(result *asm.LayoutResult, path, sourcePath string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "; listing for %s\n", sourcePath)
	for _, item := range result.Items {
		fmt.Fprintf(&sb, "%04X  %-24s\n", item.Address, hex.EncodeToString(item.Bytes))
	}
	return os.WriteFile(path, []byte(sb.String()), 0644) // #nosec G306
}

func writeMap(result *asm.LayoutResult, path string) error {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Origin: 0x%04X  Bits: %d\n\n", result.Origin, result.Bits)

	var symbols []*parser.Symbol
	if result.Symbols != nil {
		symbols = result.Symbols.All()
	}
	sort.Slice(symbols, func(i, j int) bool { return symbols[i].Value < symbols[j].Value })
	for _, sym := range symbols {
		fmt.Fprintf(&sb, "%08X  %s\n", sym.Value, sym.Name)
	}

	return os.WriteFile(path, []byte(sb.String()), 0644) // #nosec G306
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstNonZero(vals ...int) int {
	for _, v := range vals {
		if v != 0 {
			return v
		}
	}
	return 0
}

func printHelp() {
	fmt.Printf(`nasm8086 %s

Usage: nasm8086 [options] <source-file> [<source-file> ...]
       nasm8086 -inspect <source-file>

Options:
  -help               Show this help message
  -version            Show version information
  -o FILE              Output file path (default: input name with .bin/.com/.hex)
  -f FORMAT            Output format: bin, com, hex (default: from config, bin)
  -bits N              Default operand-size mode if source omits [bits] (16 or 32)
  -org ADDR            Default origin if source omits [org] (hex, e.g. 0x7C00)
  -max-passes N        Maximum layout passes before giving up (default: 50)
  -listing FILE        Write an address/bytes listing to FILE
  -map FILE             Write a symbol map to FILE
  -inspect             Launch the interactive layout inspector
  -no-preprocess       Disable the preprocessor (%%include/%%define/%%macro)
  -config FILE          Load settings from FILE instead of the default config path
  -verbose             Verbose output
`, Version)
}
