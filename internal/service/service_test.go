package service

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRenderPlist(t *testing.T) {
	p := Paths{Plist: "/tmp/x.plist", StdoutLog: "/logs/out.log", StderrLog: "/logs/err.log"}
	out, err := RenderPlist(p, "/srv/chloe")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"<string>com.chloe.bot</string>",
		"<string>/usr/local/bin/chloe</string>",
		"<string>/srv/chloe</string>",
		"<string>/logs/out.log</string>",
		"<string>/logs/err.log</string>",
		"<key>SuccessfulExit</key>",
		"<key>ExitTimeOut</key>\n\t<integer>20</integer>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("plist missing %s", want)
		}
	}
}

func TestSeedConfig(t *testing.T) {
	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	cfg := filepath.Join(dir, "home", ".chloe", "config")
	if err := os.WriteFile(env, []byte("LLM_PROVIDER=openai\n"), 0600); err != nil {
		t.Fatal(err)
	}

	seeded, err := SeedConfig(env, cfg)
	if err != nil || !seeded {
		t.Fatalf("seeded = %v, err = %v", seeded, err)
	}
	data, err := os.ReadFile(cfg)
	if err != nil || string(data) != "LLM_PROVIDER=openai\n" {
		t.Fatalf("config = %q, err = %v", data, err)
	}

	seeded, err = SeedConfig(env, cfg)
	if err != nil || seeded {
		t.Errorf("second seed: seeded = %v, err = %v", seeded, err)
	}
}

func TestSeedConfig_NoEnvFile(t *testing.T) {
	dir := t.TempDir()
	seeded, err := SeedConfig(filepath.Join(dir, ".env"), filepath.Join(dir, "config"))
	if err != nil || seeded {
		t.Errorf("seeded = %v, err = %v", seeded, err)
	}
}

func TestResolveWorkDir(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "config")

	if got := ResolveWorkDir(cfg); got != dir {
		t.Errorf("no config: got %q, want %q", got, dir)
	}

	if err := os.WriteFile(cfg, []byte("MEMORY_FILE=/var/lib/chloe/memory.json\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if got := ResolveWorkDir(cfg); got != dir {
		t.Errorf("absolute path: got %q, want %q", got, dir)
	}

	if err := os.WriteFile(cfg, []byte("MEMORY_FILE=./memory.json\n"), 0600); err != nil {
		t.Fatal(err)
	}
	wd, _ := os.Getwd()
	if got := ResolveWorkDir(cfg); got != wd {
		t.Errorf("relative path: got %q, want %q", got, wd)
	}
}

type recordedCall struct {
	stream bool
	argv   string
}

func recordRuns(t *testing.T, err error) *[]recordedCall {
	t.Helper()
	var calls []recordedCall
	prev := run
	run = func(stream bool, name string, args ...string) error {
		calls = append(calls, recordedCall{stream: stream, argv: strings.Join(append([]string{name}, args...), " ")})
		return err
	}
	t.Cleanup(func() { run = prev })
	return &calls
}

func TestCommand_Launchctl(t *testing.T) {
	tgt := fmt.Sprintf("gui/%d/com.chloe.bot", os.Getuid())
	tests := []struct {
		name string
		want string
	}{
		{"start", "launchctl kickstart " + tgt},
		{"stop", "launchctl kill SIGTERM " + tgt},
		{"restart", "launchctl kickstart -k " + tgt},
		{"status", "launchctl print " + tgt},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := recordRuns(t, nil)
			cmd, ok := Command(tt.name)
			if !ok {
				t.Fatalf("Command(%q) not found", tt.name)
			}
			if err := cmd(); err != nil {
				t.Fatal(err)
			}
			if len(*calls) != 1 || (*calls)[0].argv != tt.want {
				t.Errorf("ran %+v, want %q", *calls, tt.want)
			}
		})
	}
}

func TestCommand_Unknown(t *testing.T) {
	if _, ok := Command("export"); ok {
		t.Error("export is not a service command")
	}
}

func TestStatus_NotLoaded(t *testing.T) {
	recordRuns(t, errors.New("could not find service"))
	if err := Status(); err != nil {
		t.Errorf("Status() = %v, want nil when the agent is not loaded", err)
	}
}

func TestLogs_FollowsBothFiles(t *testing.T) {
	calls := recordRuns(t, nil)
	if err := Logs(); err != nil {
		t.Fatal(err)
	}
	p := DefaultPaths()
	c := (*calls)[0]
	if !c.stream || !strings.HasPrefix(c.argv, "tail -n 100 -F ") || !strings.HasSuffix(c.argv, p.StdoutLog+" "+p.StderrLog) {
		t.Errorf("ran %+v", c)
	}
}
