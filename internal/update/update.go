// Package update keeps a git checkout of the kiosk current: it compares
// the local HEAD with the remote branch, pulls when they differ and
// re-executes the binary.
package update

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
)

// BannerFile marks a pending update. The renderer shows a banner while it
// exists.
const BannerFile = ".update_required"

// Runner runs a command in dir and returns its combined output.
type Runner func(ctx context.Context, dir, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.Bytes(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(out.String()))
	}
	return out.Bytes(), nil
}

// Config describes the checkout.
type Config struct {
	// Dir is the working tree. Default: current directory.
	Dir string `yaml:"dir"`
	// Remote is a remote name or URL for ls-remote. Default: origin.
	Remote string `yaml:"remote"`
	Branch string `yaml:"branch"`
	// Preserve lists files (relative to Dir) kept across a pull, such as
	// site-specific logos.
	Preserve []string `yaml:"preserve"`
	// Rebuild runs after a successful pull, e.g. ["go", "build", "./cmd/slotwatch"].
	Rebuild []string `yaml:"rebuild"`
	// CheckEvery is the number of runs between checks.
	CheckEvery int `yaml:"check_every"`
}

func (c *Config) defaults() {
	if c.Dir == "" {
		c.Dir = "."
	}
	if c.Remote == "" {
		c.Remote = "origin"
	}
	if c.Branch == "" {
		c.Branch = "main"
	}
	if c.CheckEvery <= 0 {
		c.CheckEvery = 10
	}
}

// Updater checks for and applies updates.
type Updater struct {
	cfg    Config
	run    Runner
	logger *slog.Logger
}

// New creates an Updater. A nil run uses ExecRunner.
func New(cfg Config, run Runner, logger *slog.Logger) *Updater {
	cfg.defaults()
	if run == nil {
		run = ExecRunner
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Updater{cfg: cfg, run: run, logger: logger}
}

// CheckEvery is the number of runs between update checks.
func (u *Updater) CheckEvery() int { return u.cfg.CheckEvery }

// Available reports whether the remote branch points at a different
// commit than the local HEAD.
func (u *Updater) Available(ctx context.Context) (bool, error) {
	out, err := u.run(ctx, u.cfg.Dir, "git", "ls-remote", u.cfg.Remote, u.cfg.Branch)
	if err != nil {
		return false, fmt.Errorf("update: ls-remote: %w", err)
	}
	remote, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\t")
	remote = strings.TrimSpace(remote)

	out, err = u.run(ctx, u.cfg.Dir, "git", "rev-parse", "HEAD")
	if err != nil {
		return false, fmt.Errorf("update: rev-parse: %w", err)
	}
	local := strings.TrimSpace(string(out))

	u.logger.Info("update: checked", "local", local, "remote", remote)
	return remote != "" && local != "" && remote != local, nil
}

// Apply pulls the branch, keeping preserved files, then runs the rebuild
// command and clears the banner.
func (u *Updater) Apply(ctx context.Context) error {
	restore, err := u.stash()
	if err != nil {
		return err
	}
	out, err := u.run(ctx, u.cfg.Dir, "git", "pull", u.cfg.Remote, u.cfg.Branch)
	restore()
	if err != nil {
		return fmt.Errorf("update: pull: %w", err)
	}
	u.logger.Info("update: pulled", "output", strings.TrimSpace(string(out)))

	if len(u.cfg.Rebuild) > 0 {
		if _, err := u.run(ctx, u.cfg.Dir, u.cfg.Rebuild[0], u.cfg.Rebuild[1:]...); err != nil {
			return fmt.Errorf("update: rebuild: %w", err)
		}
		u.logger.Info("update: rebuilt", "command", strings.Join(u.cfg.Rebuild, " "))
	}
	return u.SetBanner(false)
}

// stash moves preserved files aside. The returned func puts them back.
func (u *Updater) stash() (func(), error) {
	var moved [][2]string
	restore := func() {
		for _, m := range moved {
			if err := os.Rename(m[1], m[0]); err != nil {
				u.logger.Warn("update: restore preserved file", "file", m[0], "error", err)
			}
		}
	}
	for _, name := range u.cfg.Preserve {
		orig := filepath.Join(u.cfg.Dir, name)
		if _, err := os.Stat(orig); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		bak := orig + ".bak"
		if err := os.Rename(orig, bak); err != nil {
			restore()
			return nil, fmt.Errorf("update: preserve %s: %w", name, err)
		}
		moved = append(moved, [2]string{orig, bak})
	}
	return restore, nil
}

func (u *Updater) bannerPath() string { return filepath.Join(u.cfg.Dir, BannerFile) }

// SetBanner creates or removes the banner marker.
func (u *Updater) SetBanner(on bool) error {
	if on {
		if err := os.WriteFile(u.bannerPath(), []byte("Update required\n"), 0o644); err != nil {
			return fmt.Errorf("update: set banner: %w", err)
		}
		return nil
	}
	if err := os.Remove(u.bannerPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("update: clear banner: %w", err)
	}
	return nil
}

// BannerSet reports whether an update is pending.
func (u *Updater) BannerSet() bool {
	_, err := os.Stat(u.bannerPath())
	return err == nil
}

// Restart replaces the current process with a fresh copy of the binary.
// It only returns on failure.
func Restart() error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("update: executable: %w", err)
	}
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		return fmt.Errorf("update: exec: %w", err)
	}
	return nil
}
