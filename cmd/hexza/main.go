package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"hexza/internal/ast"
	"hexza/internal/engine"
	"hexza/internal/util"
)

var (
	// Version is stamped by the linker at release time.
	Version   = "dev"
	BuildDate = "unknown"
	Commit    = "unknown"

	help    bool
	version bool
	// engine config
	engineName string
	compare    bool
	configPath string
	// log config
	logLevel string
	logFile  string
)

func init() {
	flag.BoolVar(&help, "help", false, "Display help information and exit")
	flag.BoolVar(&help, "h", false, "Display help information and exit")
	flag.BoolVar(&version, "version", false, "Display version information and exit")
	flag.BoolVar(&version, "v", false, "Display version information and exit")
	// engine config
	flag.StringVar(&engineName, "engine", "", "Execution engine: eval or vm (default vm)")
	flag.BoolVar(&compare, "compare", false, "Run both engines, check agreement, report timings")
	flag.StringVar(&configPath, "config", "", "Path to a TOML config file (default ./hexza.toml if present)")
	// log config
	flag.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error. Default is 'error'")
	flag.StringVar(&logFile, "log-file", "", "Log file path (if not set, logs to stderr)")
}

func main() {
	flag.Parse()

	config := loadConfig()

	loggerOptions := &slog.HandlerOptions{
		AddSource: false,
		Level:     logLevelFromString(config.LogLevel),
	}
	logWriter := configureLogWriter(config.LogFile)
	defaultLogger := slog.New(slog.NewJSONHandler(logWriter, loggerOptions))
	slog.SetDefault(defaultLogger)

	if version {
		printVersion()
		return
	}
	if help || flag.Arg(0) == "" {
		printHelp()
		return
	}

	program, err := decodeProgram(flag.Arg(0))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if compare || config.Engine == "both" {
		runCompare(program)
		return
	}

	switch config.Engine {
	case "eval":
		if _, errObj := engine.Evaluate(program, os.Stdout); errObj != nil {
			fmt.Fprintln(os.Stderr, errObj.Error())
			os.Exit(1)
		}
	case "", "vm":
		if _, errObj := engine.RunCompiled(program, os.Stdout); errObj != nil {
			fmt.Fprintln(os.Stderr, errObj.Error())
			os.Exit(1)
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown engine %q (want eval, vm or both)\n", config.Engine)
		os.Exit(2)
	}
}

// loadConfig merges the optional TOML file with command-line flags; flags
// win.
func loadConfig() util.Configuration {
	config := util.Configuration{
		Version:   Version,
		BuildDate: BuildDate,
		Commit:    Commit,
	}
	path := configPath
	if path == "" {
		if _, err := os.Stat(util.DefaultConfigFile); err == nil {
			path = util.DefaultConfigFile
		}
	}
	if path != "" {
		if err := config.LoadFile(path); err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config '%s': %v\n", path, err)
			os.Exit(2)
		}
	}
	if engineName != "" {
		config.Engine = engineName
	}
	if logLevel != "" {
		config.LogLevel = logLevel
	}
	if logFile != "" {
		config.LogFile = logFile
	}
	return config
}

func decodeProgram(path string) (*ast.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ast.Decode(f, filepath.Base(path))
}

func runCompare(program *ast.Program) {
	cmp := engine.RunBoth(program, os.Stdout)
	fmt.Fprintf(os.Stderr, "eval: %v  vm: %v  agree: %v\n",
		cmp.Eval.Elapsed, cmp.VM.Elapsed, cmp.Match)
	if cmp.Eval.Err != nil {
		fmt.Fprintln(os.Stderr, cmp.Eval.Err.Error())
	}
	if !cmp.Match {
		os.Exit(1)
	}
	if cmp.Eval.Err != nil {
		os.Exit(1)
	}
}

func configureLogWriter(logFile string) *os.File {
	if logFile == "" {
		return os.Stderr
	}
	if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create log directory for '%s': %v; falling back to stderr\n", logFile, err)
		return os.Stderr
	}
	logWriter, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open log file '%s': %v; falling back to stderr\n", logFile, err)
		return os.Stderr
	}
	return logWriter
}

func printVersion() {
	fmt.Printf("hexza version 'v%s' %s %s\n", Version, BuildDate, Commit)
}

func printHelp() {
	fmt.Printf(`Usage: hexza [options] <program.ast.json>

Options:
  -engine <name>     Execution engine: eval or vm. Default is 'vm'.
  -compare           Run both engines, verify they agree, report timings.
  -config <path>     Path to a TOML config file. Default is './hexza.toml' if present.
  -help              Display this help information and exit.
  -version           Display version information and exit.
  -log-level <level> Set the log level: debug, info, warn, error. Default is 'error'.
  -log-file <path>   Specify a log file to write logs. Default is stderr.

Details:
Hexza executes location-annotated AST programs produced by an external
front end, either by tree-walking evaluation or by compiling to bytecode.

Examples:
  hexza program.ast.json            Run on the bytecode VM
  hexza -engine=eval program.ast.json
  hexza -compare program.ast.json   Cross-check both engines

Version Information:
  Version:    %s
  Build Date: %s
  Commit:     %s
`, Version, BuildDate, Commit)
}

func logLevelFromString(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelError
	}
}
