package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/esm-dev/esm-resolver/config"
	"github.com/esm-dev/esm-resolver/esbuildplugin"
	"github.com/esm-dev/esm-resolver/resolver"
	"github.com/esm-dev/esm-resolver/resultcache"
	"github.com/esm-dev/esm-resolver/vfs"
	"github.com/evanw/esbuild/pkg/api"
	"github.com/goccy/go-json"
	logx "github.com/ije/gox/log"
	"github.com/ije/gox/term"
	"github.com/joho/godotenv"
	"github.com/spf13/afero"
)

const helpMessage = "\033[30mesm-resolve - Resolve JavaScript module specifiers the way bundlers do.\033[0m" + `

Usage: esm-resolve [command] [options]

Commands:
  resolve [...specifiers]   Resolve specifiers from a file and print the results as JSON
  watch [...specifiers]     Resolve specifiers again whenever the project changes
  build [entry]             Bundle an entry with esbuild using the resolver

Options:
  --config                  Path to a JSON config file
  --from                    The importing file (default: ./index.js)
  --mode                    "esm" or "cjs"
  --memfs                   Resolve against an in-memory copy-on-write view of the disk
  --help, -h                Display this help message
`

var log *logx.Logger

type output struct {
	Specifier string                   `json:"specifier"`
	Result    *resolver.ResolvedModule `json:"result,omitempty"`
	Error     string                   `json:"error,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Print(helpMessage)
		return
	}
	switch command := os.Args[1]; command {
	case "resolve":
		run(command, resolveCommand)
	case "watch":
		run(command, watchCommand)
	case "build":
		run(command, buildCommand)
	default:
		fmt.Print(helpMessage)
	}
}

type commandContext struct {
	config *config.Config
	cache  *resultcache.Cache
	from   string
	mode   resolver.Mode
	args   []string
}

func run(command string, fn func(ctx *commandContext) error) {
	flags := flag.NewFlagSet(command, flag.ExitOnError)
	configFile := flags.String("config", "", "path to a JSON config file")
	from := flags.String("from", "", "the importing file")
	mode := flags.String("mode", "", "\"esm\" or \"cjs\"")
	memfs := flags.Bool("memfs", false, "copy the project into memory before resolving")
	flags.Parse(os.Args[2:])

	// load .env of the working directory if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintln(os.Stderr, term.Red(err.Error()))
	}

	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.Load(*configFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, term.Red(err.Error()))
			os.Exit(1)
		}
	} else {
		cfg = config.Default()
	}
	if *mode != "" {
		cfg.Mode = *mode
	}

	log, err = newLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, term.Red("failed to initialize logger: "+err.Error()))
		os.Exit(1)
	}
	resolver.SetLogger(log)
	resultcache.SetLogger(log)

	root := cfg.Root
	if root == "" {
		root, _ = os.Getwd()
	}
	if *from == "" {
		*from = filepath.Join(root, "index.js")
	}

	var fsys vfs.FileSystem = vfs.OSFileSystem{}
	if *memfs {
		// a copy-on-write layer keeps the project on disk untouched
		fsys = vfs.NewAferoFileSystem(afero.NewCopyOnWriteFs(afero.NewReadOnlyFs(afero.NewOsFs()), afero.NewMemMapFs()))
	}
	cache, err := resultcache.New(resolver.New(fsys, cfg.Options()), cfg.CacheCapacity)
	if err != nil {
		log.Fatalf("init cache: %v", err)
	}

	ctx := &commandContext{
		config: cfg,
		cache:  cache,
		from:   *from,
		mode:   cache.Resolver().Mode(),
		args:   flags.Args(),
	}
	if err := fn(ctx); err != nil {
		fmt.Fprintln(os.Stderr, term.Red(err.Error()))
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) (*logx.Logger, error) {
	var logger *logx.Logger
	if cfg.LogDir != "" {
		var err error
		logger, err = logx.New(fmt.Sprintf("file:%s?buffer=32k", filepath.Join(cfg.LogDir, "resolver.log")))
		if err != nil {
			return nil, err
		}
	} else {
		logger = &logx.Logger{}
	}
	logger.SetLevelByName(cfg.LogLevel)
	return logger, nil
}

func resolveAll(ctx *commandContext) []output {
	outputs := make([]output, len(ctx.args))
	for i, spec := range ctx.args {
		outputs[i].Specifier = spec
		m, _, err := ctx.cache.Resolve(spec, ctx.from, ctx.mode)
		if err != nil {
			outputs[i].Error = err.Error()
		} else {
			outputs[i].Result = m
		}
	}
	return outputs
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func resolveCommand(ctx *commandContext) error {
	if len(ctx.args) == 0 {
		return fmt.Errorf("no specifiers")
	}
	outputs := resolveAll(ctx)
	if err := printJSON(outputs); err != nil {
		return err
	}
	for _, o := range outputs {
		if o.Error != "" {
			return fmt.Errorf("failed to resolve %d specifiers", countErrors(outputs))
		}
	}
	return nil
}

func countErrors(outputs []output) int {
	n := 0
	for _, o := range outputs {
		if o.Error != "" {
			n++
		}
	}
	return n
}

func watchCommand(ctx *commandContext) error {
	if len(ctx.args) == 0 {
		return fmt.Errorf("no specifiers")
	}
	root := ctx.config.Root
	if root == "" {
		root = filepath.Dir(ctx.from)
	}

	c, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	printJSON(resolveAll(ctx))
	fmt.Println(term.Green("Watching " + root + " for changes..."))
	return ctx.cache.Watch(c, root, resultcache.WatchOptions{
		OnInvalidate: func(events []resolver.FileEvent, n int) {
			if n == 0 {
				return
			}
			names := make([]string, len(events))
			for i, e := range events {
				names[i] = e.Type.String() + " " + e.Path
			}
			fmt.Println(term.Dim(strings.Join(names, "\n")))
			printJSON(resolveAll(ctx))
		},
	})
}

func buildCommand(ctx *commandContext) error {
	if len(ctx.args) != 1 {
		return fmt.Errorf("expected exactly one entry")
	}
	entry, err := filepath.Abs(ctx.args[0])
	if err != nil {
		return err
	}
	platform := api.PlatformNode
	if ctx.config.Browser {
		platform = api.PlatformBrowser
	}
	ret := api.Build(api.BuildOptions{
		EntryPoints:   []string{entry},
		AbsWorkingDir: filepath.Dir(entry),
		Bundle:        true,
		Write:         false,
		Format:        api.FormatESModule,
		Platform:      platform,
		Target:        api.ESNext,
		Plugins:       []api.Plugin{esbuildplugin.New(ctx.cache)},
	})
	for _, w := range ret.Warnings {
		log.Warn(w.Text)
	}
	if len(ret.Errors) > 0 {
		return fmt.Errorf("build %s: %s", entry, ret.Errors[0].Text)
	}
	for _, file := range ret.OutputFiles {
		os.Stdout.Write(file.Contents)
	}
	return nil
}
