package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// scrollback is a transparent proxy between the real terminal and a
// shell running inside a pty. Bytes pass through unchanged in both
// directions while printed output is mirrored into a private buffer,
// so the scroll keys can bring previously displayed rows back even on
// terminals that keep no history of their own.

// Version is set at build time via ldflags
var version = "dev"

const defaultBufferCells = 8 * 1024

// Config is the persisted per-user configuration. Zero fields fall
// back to defaults at session start.
type Config struct {
	BufferCells int    `json:"buffer_cells,omitempty"`
	ScrollLines int    `json:"scroll_lines,omitempty"`
	SingleChar  bool   `json:"single_char,omitempty"`
	ScrollUp    string `json:"scroll_up,omitempty"`
	ScrollDown  string `json:"scroll_down,omitempty"`
	KeycodeUp   int    `json:"keycode_up,omitempty"`
	KeycodeDown int    `json:"keycode_down,omitempty"`
	Pager       string `json:"pager,omitempty"`
	WatchAddr   string `json:"watch_addr,omitempty"`
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version", "-v":
			fmt.Printf("scrollback v%s\n", version)
			return
		case "--wrap":
			if err := RunWrap(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "scrollback --wrap: %v\n", err)
				os.Exit(1)
			}
			return
		}
	}

	cfg, err := loadConfig()
	if err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg == nil {
		cfg = &Config{}
	}

	debug, argv, err := applyFlags(cfg, os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		usage()
		os.Exit(1)
	}

	if err := run(cfg, argv, debug); err != nil {
		fmt.Fprintf(os.Stderr, "scrollback: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: scrollback [options] [command args...]

options:
  -size N        scrollback buffer capacity in characters
  -lines N       lines scrolled per key press (default: half a screen)
  -single        single-byte cells instead of UTF-8
  -pager CMD     pager for the save-and-page hot-key
  -watch ADDR    serve a read-only live history view on ADDR
  -save          persist the options given so far to the config file
  -debug         trace escape processing to %s
  --wrap PROG... run PROG with direct access to the real terminal
  --version      print version

Without a command, $SHELL is started. F11/F12 (or shift-pageup/pagedown
on a Linux console) scroll; in the history view %q saves the buffer and
%q pages it.
`, logFilePath(), string(keySaveHistory), string(keyPageHistory))
}

// applyFlags overlays command-line options onto the configuration and
// returns the remaining command line, which becomes the program to run.
func applyFlags(cfg *Config, args []string) (debug bool, argv []string, err error) {
	i := 0
	for ; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			break
		}
		needValue := func() (string, error) {
			if i+1 >= len(args) {
				return "", fmt.Errorf("%s requires a value", arg)
			}
			i++
			return args[i], nil
		}
		switch arg {
		case "-size":
			v, e := needValue()
			if e != nil {
				return false, nil, e
			}
			if cfg.BufferCells, err = strconv.Atoi(v); err != nil {
				return false, nil, fmt.Errorf("-size: %q is not a number", v)
			}
		case "-lines":
			v, e := needValue()
			if e != nil {
				return false, nil, e
			}
			if cfg.ScrollLines, err = strconv.Atoi(v); err != nil {
				return false, nil, fmt.Errorf("-lines: %q is not a number", v)
			}
		case "-single":
			cfg.SingleChar = true
		case "-pager":
			v, e := needValue()
			if e != nil {
				return false, nil, e
			}
			cfg.Pager = v
		case "-watch":
			v, e := needValue()
			if e != nil {
				return false, nil, e
			}
			cfg.WatchAddr = v
		case "-debug":
			debug = true
		case "-save":
			if err := saveConfig(cfg); err != nil {
				return false, nil, fmt.Errorf("saving config: %w", err)
			}
		case "--":
			i++
			return debug, args[i:], nil
		default:
			return false, nil, fmt.Errorf("unknown option %s", arg)
		}
	}
	return debug, args[i:], nil
}

func run(cfg *Config, argv []string, debug bool) error {
	// Running a proxy inside its own pty would double every query and
	// reply; refuse.
	if os.Getenv("SCROLLBACK") != "" {
		return fmt.Errorf("already running inside a scrollback session")
	}

	// Resolve the scroll keys while the terminal is still in its
	// normal mode, so the announcement lines print cleanly.
	keycodeUp, keycodeDown := cfg.KeycodeUp, cfg.KeycodeDown
	if keycodeUp == 0 {
		keycodeUp = defaultKeycodeUp
	}
	if keycodeDown == 0 {
		keycodeDown = defaultKeycodeDown
	}
	var up, down []byte
	if cfg.ScrollUp != "" || cfg.ScrollDown != "" {
		up, down = []byte(cfg.ScrollUp), []byte(cfg.ScrollDown)
	} else {
		resolver := &ConsoleKeymap{Fd: int(os.Stdin.Fd())}
		up, down = ResolveScrollKeys(resolver, keycodeUp, keycodeDown)
	}

	// Let the shell and its descendants know where they really are.
	if path, err := os.Readlink("/proc/self/fd/0"); err == nil {
		os.Setenv("SCROLLBACKTTY", path)
		if no, ok := ttyNumber(path); ok {
			os.Setenv("SCROLLBACKNO", no)
		}
	}

	rt, err := OpenRealTerminal()
	if err != nil {
		return err
	}
	defer rt.Restore()
	geo := rt.Geometry()

	// Raw mode from here on: anything logged would garble the screen,
	// so logging goes to the debug file or nowhere.
	var dbg *log.Logger
	if debug {
		f, err := os.OpenFile(logFilePath(), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			rt.Restore()
			return fmt.Errorf("debug log: %w", err)
		}
		defer f.Close()
		log.SetOutput(f)
		dbg = log.New(f, "escape: ", log.LstdFlags)
	} else {
		log.SetOutput(io.Discard)
	}

	shell, err := SpawnShell(argv, geo, rt.In)
	if err != nil {
		rt.Restore()
		return err
	}
	defer shell.Close()

	if cfg.ScrollLines <= 0 {
		cfg.ScrollLines = geo.Rows / 2
	}
	if cfg.BufferCells <= 0 {
		cfg.BufferCells = defaultBufferCells
	}
	if cfg.Pager == "" {
		if cfg.Pager = os.Getenv("PAGER"); cfg.Pager == "" {
			cfg.Pager = "less"
		}
	}

	session := NewSession(cfg, geo, rt.Out, shell.Master())
	session.SetScrollKeys(up, down)
	session.debug = dbg
	session.pager = func(path string) error {
		cmd := exec.Command(cfg.Pager, path)
		cmd.Stdin = rt.In
		cmd.Stdout = rt.Out
		cmd.Stderr = rt.Out
		return cmd.Run()
	}

	if cfg.WatchAddr != "" {
		watch := NewWatchServer(cfg.WatchAddr)
		watch.Start()
		session.publish = watch.Publish
	}

	bridge := NewBridge(session, int(rt.In.Fd()), int(shell.Master().Fd()))
	runErr := bridge.Run()

	rt.Restore()
	shell.Wait()
	resetTerminal(rt)
	return runErr
}

// ttyNumber extracts the trailing device number from a terminal path
// such as /dev/pts/3 or /dev/tty2.
func ttyNumber(path string) (string, bool) {
	i := len(path)
	for i > 0 && path[i-1] >= '0' && path[i-1] <= '9' {
		i--
	}
	if i == len(path) {
		return "", false
	}
	return path[i:], true
}

// resetTerminal runs reset -I so the terminal is sane whatever the
// shell left behind.
func resetTerminal(rt *RealTerminal) {
	cmd := exec.Command("reset", "-I")
	cmd.Stdin = rt.In
	cmd.Stdout = rt.Out
	cmd.Stderr = rt.Out
	cmd.Run()
}

// configPathOverride allows tests to redirect config to a temp directory
var configPathOverride string

func getConfigPath() string {
	if configPathOverride != "" {
		dir := filepath.Dir(configPathOverride)
		os.MkdirAll(dir, 0700)
		return configPathOverride
	}
	home, _ := os.UserHomeDir()
	configDir := filepath.Join(home, ".scrollback")
	os.MkdirAll(configDir, 0700)
	return filepath.Join(configDir, "config.json")
}

func getConfigDir() string {
	return filepath.Dir(getConfigPath())
}

func logFilePath() string {
	return filepath.Join(getConfigDir(), "scrollback.log")
}

func historyFilePath() string {
	return filepath.Join(getConfigDir(), "history.txt")
}

func loadConfig() (*Config, error) {
	data, err := os.ReadFile(getConfigPath())
	if err != nil {
		return nil, err
	}

	var config Config
	err = json.Unmarshal(data, &config)
	return &config, err
}

func saveConfig(config *Config) error {
	data, err := json.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(getConfigPath(), data, 0600)
}
