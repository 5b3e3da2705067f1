package service

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"text/template"

	"github.com/chris/chloe/config"
	"github.com/joho/godotenv"
)

const (
	label     = "com.chloe.bot"
	binDest   = "/usr/local/bin/chloe"
	plistName = label + ".plist"
)

// Paths are the locations the launchd agent is installed to.
type Paths struct {
	Plist     string
	StdoutLog string
	StderrLog string
}

func DefaultPaths() Paths {
	home, _ := os.UserHomeDir()
	logs := filepath.Join(home, "Library", "Logs")
	return Paths{
		Plist:     filepath.Join(home, "Library", "LaunchAgents", plistName),
		StdoutLog: filepath.Join(logs, "chloe-stdout.log"),
		StderrLog: filepath.Join(logs, "chloe-stderr.log"),
	}
}

// Install copies the binary to /usr/local/bin, seeds ~/.chloe/config from
// .env if needed, writes a launchd plist that keeps the bot running, and
// bootstraps it into the user's GUI domain.
func Install() error {
	p := DefaultPaths()
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving executable path: %w", err)
	}
	exe, err = filepath.EvalSymlinks(exe)
	if err != nil {
		return fmt.Errorf("resolving symlinks: %w", err)
	}
	if err := copyFile(exe, binDest, 0755); err != nil {
		return err
	}
	fmt.Printf("installed binary to %s\n", binDest)

	seeded, err := SeedConfig(".env", config.ConfigFile())
	if err != nil {
		return err
	}
	if seeded {
		fmt.Printf("seeded config from .env -> %s\n", config.ConfigFile())
	}

	plist, err := RenderPlist(p, ResolveWorkDir(config.ConfigFile()))
	if err != nil {
		return fmt.Errorf("generating plist: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p.Plist), 0755); err != nil {
		return fmt.Errorf("creating LaunchAgents dir: %w", err)
	}
	if err := os.WriteFile(p.Plist, []byte(plist), 0644); err != nil {
		return fmt.Errorf("writing plist: %w", err)
	}
	fmt.Printf("wrote plist to %s\n", p.Plist)

	_ = launchctl(false, "bootout", target())
	if err := launchctl(false, "bootstrap", domain(), p.Plist); err != nil {
		return err
	}
	fmt.Println("chloe is running and will start on login")
	return nil
}

func copyFile(src, dst string, perm os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("reading %s: %w", src, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
	}
	if err := os.WriteFile(dst, data, perm); err != nil {
		return fmt.Errorf("copying to %s: %w", dst, err)
	}
	return nil
}

// SeedConfig copies envFile to configFile unless configFile already exists.
// A missing envFile is not an error.
func SeedConfig(envFile, configFile string) (bool, error) {
	if _, err := os.Stat(configFile); err == nil {
		return false, nil
	}
	data, err := os.ReadFile(envFile)
	if err != nil {
		return false, nil
	}
	if err := os.MkdirAll(filepath.Dir(configFile), 0700); err != nil {
		return false, fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(configFile, data, 0600); err != nil {
		return false, fmt.Errorf("writing config: %w", err)
	}
	return true, nil
}

// ResolveWorkDir picks the agent's working directory. Relative store paths
// in the config resolve against the current directory; otherwise the config
// directory is used.
func ResolveWorkDir(configFile string) string {
	envVars, _ := godotenv.Read(configFile)
	for _, key := range []string{"MEMORY_FILE", "DATABASE_PATH"} {
		if path, ok := envVars[key]; ok && !filepath.IsAbs(path) {
			if wd, err := os.Getwd(); err == nil {
				return wd
			}
		}
	}
	return filepath.Dir(configFile)
}

// Uninstall boots the agent out, then removes the plist and the binary.
func Uninstall() error {
	p := DefaultPaths()
	if err := launchctl(false, "bootout", target()); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
	}
	for _, path := range []string{p.Plist, binDest} {
		err := os.Remove(path)
		switch {
		case err == nil:
			fmt.Printf("removed %s\n", path)
		case !os.IsNotExist(err):
			return fmt.Errorf("removing %s: %w", path, err)
		}
	}
	fmt.Println("uninstalled")
	return nil
}

// Command returns the service subcommand called name.
func Command(name string) (func() error, bool) {
	cmd, ok := map[string]func() error{
		"install":   Install,
		"uninstall": Uninstall,
		"start":     func() error { return launchctl(false, "kickstart", target()) },
		"stop":      func() error { return launchctl(false, "kill", "SIGTERM", target()) },
		"restart":   func() error { return launchctl(false, "kickstart", "-k", target()) },
		"status":    Status,
		"logs":      Logs,
	}[name]
	return cmd, ok
}

// Status prints launchd's view of the agent.
func Status() error {
	if err := launchctl(true, "print", target()); err != nil {
		fmt.Println("chloe is not loaded")
	}
	return nil
}

// Logs follows both log files, starting with their last lines.
func Logs() error {
	p := DefaultPaths()
	return run(true, "tail", "-n", "100", "-F", p.StdoutLog, p.StderrLog)
}

func domain() string { return fmt.Sprintf("gui/%d", os.Getuid()) }

func target() string { return domain() + "/" + label }

// run executes a command. With stream set its output goes to the terminal;
// otherwise stderr is folded into the error.
var run = func(stream bool, name string, args ...string) error {
	cmd := exec.Command(name, args...)
	if stream {
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr
		return cmd.Run()
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %s", name, strings.Join(args, " "), strings.TrimSpace(stderr.String()))
	}
	return nil
}

func launchctl(stream bool, args ...string) error {
	return run(stream, "launchctl", args...)
}

var plistTemplate = template.Must(template.New("plist").Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{.Label}}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{.BinPath}}</string>
	</array>
	<key>WorkingDirectory</key>
	<string>{{.WorkDir}}</string>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<dict>
		<key>SuccessfulExit</key>
		<false/>
	</dict>
	<key>ThrottleInterval</key>
	<integer>{{.Throttle}}</integer>
	<key>ExitTimeOut</key>
	<integer>{{.ExitTimeout}}</integer>
	<key>StandardOutPath</key>
	<string>{{.StdoutLog}}</string>
	<key>StandardErrorPath</key>
	<string>{{.StderrLog}}</string>
</dict>
</plist>
`))

type plistData struct {
	Label       string
	BinPath     string
	WorkDir     string
	StdoutLog   string
	StderrLog   string
	Throttle    int // seconds between restarts
	ExitTimeout int // seconds launchd waits after SIGTERM
}

func RenderPlist(p Paths, workDir string) (string, error) {
	var buf bytes.Buffer
	err := plistTemplate.Execute(&buf, plistData{
		Label:       label,
		BinPath:     binDest,
		WorkDir:     workDir,
		StdoutLog:   p.StdoutLog,
		StderrLog:   p.StderrLog,
		Throttle:    30,
		ExitTimeout: 20,
	})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}
