package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/example/kvc-indicator/internal/logging"
)

type commandRunner interface {
	CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) CombinedOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "LC_ALL=C", "SYSTEMD_PAGER=")
	return cmd.CombinedOutput()
}

// systemctl drives a unit through the systemctl binary.
type systemctl struct {
	runner   commandRunner
	unit     string
	user     bool
	unitsDir string
}

func newSystemctl(unit string, user bool) (*systemctl, error) {
	if _, err := exec.LookPath("systemctl"); err != nil {
		return nil, fmt.Errorf("systemctl not found: %w", err)
	}
	return &systemctl{
		runner:   execRunner{},
		unit:     unit,
		user:     user,
		unitsDir: unitsDir(user),
	}, nil
}

func (s *systemctl) Unit() string { return s.unit }

func (s *systemctl) Probe(ctx context.Context) (State, error) {
	raw, err := s.runner.CombinedOutput(ctx, "systemctl", s.args("show", s.unit, "--property=LoadState", "--property=ActiveState")...)
	if err != nil {
		return 0, &ProbeError{Unit: s.unit, Err: fmt.Errorf("systemctl show: %w: %s", err, strings.TrimSpace(string(raw)))}
	}

	props := parseProperties(raw)
	switch props["LoadState"] {
	case "":
		return 0, &ProbeError{Unit: s.unit, Err: errors.New("LoadState missing from systemctl output")}
	case "not-found":
		return 0, &ProbeError{Unit: s.unit, Err: ErrUnknownUnit}
	}

	state, err := ParseActiveState(props["ActiveState"])
	if err != nil {
		return 0, &ProbeError{Unit: s.unit, Err: err}
	}
	logging.Debugf("systemctl: %s LoadState=%s ActiveState=%s", s.unit, props["LoadState"], props["ActiveState"])
	return state, nil
}

func (s *systemctl) Stop(ctx context.Context) error {
	return s.control(ctx, "stop")
}

func (s *systemctl) Restart(ctx context.Context) error {
	return s.control(ctx, "restart")
}

func (s *systemctl) control(ctx context.Context, verb string) error {
	raw, err := s.runner.CombinedOutput(ctx, "systemctl", s.args(verb, s.unit)...)
	if err != nil {
		return &CommandError{Unit: s.unit, Op: verb, Output: string(raw), Err: err}
	}
	if out := strings.TrimSpace(string(raw)); out != "" {
		logging.Warnf("systemctl %s %s: %s", verb, s.unit, out)
	}
	return nil
}

func (s *systemctl) args(verb string, extra ...string) []string {
	args := make([]string, 0, len(extra)+3)
	if s.user {
		args = append(args, "--user")
	}
	args = append(args, verb)
	return append(args, extra...)
}

// Watch follows systemd's runtime units directory, where an
// invocation:<unit> link exists exactly while the unit has an active
// invocation.
func (s *systemctl) Watch(ctx context.Context, nudge func()) error {
	if s.unitsDir == "" {
		return errors.New("systemd runtime directory unknown")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := watcher.Add(s.unitsDir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", s.unitsDir, err)
	}

	marker := "invocation:" + s.unit
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != marker {
					continue
				}
				logging.Debugf("systemctl: %s changed (%s)", marker, ev.Op)
				nudge()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warnf("systemctl: watcher error: %v", err)
			}
		}
	}()
	return nil
}

func unitsDir(user bool) string {
	if !user {
		return "/run/systemd/units"
	}
	runtimeDir := os.Getenv("XDG_RUNTIME_DIR")
	if runtimeDir == "" {
		runtimeDir = fmt.Sprintf("/run/user/%d", os.Getuid())
	}
	return filepath.Join(runtimeDir, "systemd", "units")
}

func parseProperties(raw []byte) map[string]string {
	props := make(map[string]string)
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	for scanner.Scan() {
		parts := strings.SplitN(scanner.Text(), "=", 2)
		if len(parts) != 2 {
			continue
		}
		props[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return props
}
