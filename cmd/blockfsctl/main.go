// blockfsctl is an administrative shell for block_fs stores: an
// interactive REPL for exploring a mounted store from a terminal, and a
// single-shot mode for scripting one operation at a time.
//
// Usage:
//
//	blockfsctl [flags] <mount-map-path>                 Open, then start the REPL
//	blockfsctl [flags] <mount-map-path> <command> [args] Run one command and exit
//
// Flags:
//
//	--block-size N              Allocation quantum for new stores (default 4096)
//	--max-cache-size N          Payload size above which nodes are not cached
//	--fragmentation-threshold F Configured rotation ratio (validated, never consulted)
//	--preload                   Populate every node's cache immediately on mount
//	--fail-if-not-owner         Fail instead of mounting read-only when already locked
//	--config FILE               Load store defaults from a JSONC config file
//	--json                      Emit ls output as YAML instead of one name per line
//
// REPL commands:
//
//	put <name> <file-or-literal>   Write a payload (prefix with @ for a file path)
//	get <name>                     Print a payload to stdout
//	del <name>                     Unlink a name
//	has <name>                     Report whether a name exists
//	size <name>                    Print a name's payload size
//	ls                              List every live name
//	stat                            Print store aggregate counters as YAML
//	rotate                          Manually invoke the dormant rotate path
//	help                             Show this help
//	exit / quit / q                  Exit
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"
	"github.com/tailscale/hujson"
	"gopkg.in/yaml.v3"

	"github.com/blockfs/blockfs/pkg/blockfs"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// fileConfig is the shape of a JSONC store-defaults config file, parsed
// with hujson so comments and trailing commas are tolerated.
type fileConfig struct {
	BlockSize              int64   `json:"block_size"`
	MaxCacheSize           int64   `json:"max_cache_size"`
	FragmentationThreshold float64 `json:"fragmentation_threshold"`
	Preload                bool    `json:"preload"`
}

func loadFileConfig(path string) (fileConfig, error) {
	var cfg fileConfig

	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config %q: %w", path, err)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return cfg, fmt.Errorf("parsing config %q: %w", path, err)
	}

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return cfg, fmt.Errorf("decoding config %q: %w", path, err)
	}

	return cfg, nil
}

func run(args []string) error {
	fs := flag.NewFlagSet("blockfsctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	blockSize := fs.Int64("block-size", 4096, "allocation quantum for new stores")
	maxCacheSize := fs.Int64("max-cache-size", 1<<20, "payload size above which nodes are not cached")
	fragThreshold := fs.Float64("fragmentation-threshold", 0.5, "configured fragmentation ratio (validated, never consulted)")
	preload := fs.Bool("preload", false, "populate every node's cache on mount")
	configPath := fs.String("config", "", "JSONC file supplying store defaults")
	asJSON := fs.Bool("json", false, "emit ls output as YAML")
	failIfNotOwner := fs.Bool("fail-if-not-owner", false, "fail instead of mounting read-only when already locked")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: blockfsctl [flags] <mount-map-path> [command] [args]")
		fmt.Fprintln(os.Stderr)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}

		return err
	}

	rest := fs.Args()
	if len(rest) == 0 {
		fs.Usage()
		return errors.New("missing mount-map path")
	}

	fileCfg, err := loadFileConfig(*configPath)
	if err != nil {
		return err
	}

	opts := blockfs.MountOptions{
		MountMapPath:           rest[0],
		BlockSize:              *blockSize,
		MaxCacheSize:           *maxCacheSize,
		FragmentationThreshold: *fragThreshold,
		Preload:                *preload,
		FailIfNotOwner:         *failIfNotOwner,
	}

	if !fs.Changed("block-size") && fileCfg.BlockSize != 0 {
		opts.BlockSize = fileCfg.BlockSize
	}

	if !fs.Changed("max-cache-size") && fileCfg.MaxCacheSize != 0 {
		opts.MaxCacheSize = fileCfg.MaxCacheSize
	}

	if !fs.Changed("fragmentation-threshold") && fileCfg.FragmentationThreshold != 0 {
		opts.FragmentationThreshold = fileCfg.FragmentationThreshold
	}

	if !fs.Changed("preload") && fileCfg.Preload {
		opts.Preload = true
	}

	store, err := blockfs.Mount(opts)
	if err != nil {
		return fmt.Errorf("mounting %q: %w", opts.MountMapPath, err)
	}

	defer func() { _ = store.Close(false) }()

	shell := &shell{store: store, asYAML: *asJSON}

	if len(rest) > 1 {
		return shell.exec(rest[1:])
	}

	return shell.runREPL()
}

// shell bundles the mounted store with the command implementations shared
// between single-shot mode and the REPL.
type shell struct {
	store  *blockfs.Store
	asYAML bool
	liner  *liner.State
}

func (s *shell) exec(args []string) error {
	cmd, rest := strings.ToLower(args[0]), args[1:]

	switch cmd {
	case "put":
		return s.cmdPut(rest)
	case "get":
		return s.cmdGet(rest)
	case "del", "delete", "unlink":
		return s.cmdDel(rest)
	case "has":
		return s.cmdHas(rest)
	case "size", "filesize":
		return s.cmdSize(rest)
	case "ls", "list":
		return s.cmdLs(rest)
	case "stat":
		return s.cmdStat(rest)
	case "rotate":
		return s.cmdRotate(rest)
	case "help", "?":
		printHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd)
	}
}

func (s *shell) cmdPut(args []string) error {
	if len(args) < 2 {
		return errors.New("usage: put <name> <file-or-literal>")
	}

	name := args[0]

	payload, err := resolvePayload(args[1])
	if err != nil {
		return err
	}

	if err := s.store.Write(name, payload); err != nil {
		return err
	}

	fmt.Printf("wrote %d bytes to %q\n", len(payload), name)

	return nil
}

// resolvePayload reads @path as a file, otherwise treats the argument as a
// literal string payload.
func resolvePayload(arg string) ([]byte, error) {
	if !strings.HasPrefix(arg, "@") {
		return []byte(arg), nil
	}

	data, err := os.ReadFile(arg[1:])
	if err != nil {
		return nil, fmt.Errorf("reading %q: %w", arg[1:], err)
	}

	return data, nil
}

func (s *shell) cmdGet(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: get <name>")
	}

	var buf []byte
	if err := s.store.ReadIntoBuffer(args[0], &buf); err != nil {
		return err
	}

	_, err := os.Stdout.Write(buf)

	return err
}

func (s *shell) cmdDel(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: del <name>")
	}

	if err := s.store.Unlink(args[0]); err != nil {
		return err
	}

	fmt.Printf("unlinked %q\n", args[0])

	return nil
}

func (s *shell) cmdHas(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: has <name>")
	}

	fmt.Println(s.store.Has(args[0]))

	return nil
}

func (s *shell) cmdSize(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: size <name>")
	}

	size, err := s.store.Filesize(args[0])
	if err != nil {
		return err
	}

	fmt.Println(size)

	return nil
}

func (s *shell) cmdLs(_ []string) error {
	names := s.store.Names()
	sort.Strings(names)

	if s.asYAML {
		out, err := yaml.Marshal(names)
		if err != nil {
			return err
		}

		fmt.Print(string(out))

		return nil
	}

	for _, name := range names {
		fmt.Println(name)
	}

	return nil
}

// statView mirrors [blockfs.Stats] with snake_case field names matching
// the on-disk attribute names from spec.md §3, for YAML display.
type statView struct {
	DataFileSize int64 `yaml:"data_file_size"`
	FreeSize     int64 `yaml:"free_size"`
	WriteCount   int64 `yaml:"write_count"`
	LiveCount    int   `yaml:"live_count"`
	FreeCount    int   `yaml:"free_count"`
}

func (s *shell) cmdStat(_ []string) error {
	stats := s.store.Stats()

	view := statView{
		DataFileSize: stats.DataFileSize,
		FreeSize:     stats.FreeSize,
		WriteCount:   stats.WriteCount,
		LiveCount:    stats.LiveCount,
		FreeCount:    stats.FreeCount,
	}

	out, err := yaml.Marshal(view)
	if err != nil {
		return err
	}

	fmt.Print(string(out))

	return nil
}

func (s *shell) cmdRotate(_ []string) error {
	if err := s.store.Rotate(); err != nil {
		return err
	}

	fmt.Println("rotated")

	return nil
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  put <name> <file-or-literal>   Write a payload (@path reads a file)")
	fmt.Println("  get <name>                     Print a payload to stdout")
	fmt.Println("  del <name>                     Unlink a name")
	fmt.Println("  has <name>                     Report whether a name exists")
	fmt.Println("  size <name>                    Print a name's payload size")
	fmt.Println("  ls                             List every live name")
	fmt.Println("  stat                           Print store aggregate counters as YAML")
	fmt.Println("  rotate                         Manually invoke the dormant rotate path")
	fmt.Println("  help                           Show this help")
	fmt.Println("  exit / quit / q                Exit")
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".blockfsctl_history")
}

func (s *shell) runREPL() error {
	s.liner = liner.NewLiner()
	defer s.liner.Close()

	s.liner.SetCtrlCAborts(true)
	s.liner.SetCompleter(s.completer)

	if f, err := os.Open(historyFile()); err == nil {
		_, _ = s.liner.ReadHistory(f)
		_ = f.Close()
	}

	fmt.Printf("blockfsctl - block_fs CLI (%s)\n", s.store.MountPoint())
	fmt.Println("Type 'help' for available commands.")
	fmt.Println()

	for {
		line, err := s.liner.Prompt("blockfsctl> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				fmt.Println("\nBye!")
				break
			}

			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		s.liner.AppendHistory(line)

		parts := strings.Fields(line)
		cmd := strings.ToLower(parts[0])

		if cmd == "exit" || cmd == "quit" || cmd == "q" {
			fmt.Println("Bye!")
			break
		}

		if err := s.exec(parts); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
	}

	s.saveHistory()

	return nil
}

func (s *shell) saveHistory() {
	path := historyFile()
	if path == "" {
		return
	}

	f, err := os.Create(path)
	if err != nil {
		return
	}
	defer f.Close()

	_, _ = s.liner.WriteHistory(f)
}

func (s *shell) completer(line string) []string {
	commands := []string{
		"put", "get", "del", "delete", "unlink",
		"has", "size", "filesize", "ls", "list",
		"stat", "rotate", "help", "exit", "quit", "q",
	}

	var completions []string

	lower := strings.ToLower(line)
	for _, cmd := range commands {
		if strings.HasPrefix(cmd, lower) {
			completions = append(completions, cmd)
		}
	}

	return completions
}
