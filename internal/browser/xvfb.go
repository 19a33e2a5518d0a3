package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/hazyhaar/slotwatch/internal/poll"
)

// xvfbReady bounds the wait for a fresh display to accept clients.
const xvfbReady = 5 * time.Second

// x11Dir holds the per-display sockets of the X server.
var x11Dir = "/tmp/.X11-unix"

// displaySocket returns the socket path of a display such as ":99" or
// ":99.0".
func displaySocket(display string) (string, error) {
	num := strings.TrimPrefix(display, ":")
	if i := strings.IndexByte(num, '.'); i >= 0 {
		num = num[:i]
	}
	if _, err := strconv.Atoi(num); err != nil || !strings.HasPrefix(display, ":") {
		return "", fmt.Errorf("invalid display %q", display)
	}
	return filepath.Join(x11Dir, "X"+num), nil
}

// startXvfb makes the configured display available for headful mode. An
// X server already answering on it (a kiosk desktop, a previous run) is
// reused; otherwise Xvfb is started sized to the window and the call
// returns once its socket exists.
func (s *Session) startXvfb(ctx context.Context) error {
	if s.xvfb != nil {
		return nil
	}
	display := s.cfg.XvfbDisplay
	sock, err := displaySocket(display)
	if err != nil {
		return err
	}
	if _, err := os.Stat(sock); err == nil {
		s.cfg.Logger.Info("browser: reusing display", "display", display)
		return nil
	}

	screen := fmt.Sprintf("%dx%dx24", s.cfg.WindowWidth, s.cfg.WindowHeight)
	cmd := exec.Command("Xvfb", display, "-screen", "0", screen, "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start xvfb: %w", err)
	}
	exited := make(chan error, 1)
	go func() { exited <- cmd.Wait() }()

	var exitErr error
	ready := poll.For(ctx, xvfbReady, 50*time.Millisecond, func() bool {
		select {
		case exitErr = <-exited:
			if exitErr == nil {
				exitErr = errors.New("exited")
			}
			return true
		default:
		}
		_, err := os.Stat(sock)
		return err == nil
	})
	switch {
	case exitErr != nil:
		return fmt.Errorf("xvfb on %s: %w", display, exitErr)
	case !ready:
		cmd.Process.Kill()
		<-exited
		return fmt.Errorf("xvfb on %s: no socket after %s", display, xvfbReady)
	}
	s.xvfb = cmd
	s.xvfbExited = exited
	s.cfg.Logger.Info("browser: xvfb started", "display", display, "screen", screen, "pid", cmd.Process.Pid)
	return nil
}

// stopXvfb kills an Xvfb this session started. A reused display is left
// running.
func (s *Session) stopXvfb() {
	if s.xvfb == nil {
		return
	}
	s.xvfb.Process.Kill()
	<-s.xvfbExited
	s.cfg.Logger.Info("browser: xvfb stopped", "display", s.cfg.XvfbDisplay)
	s.xvfb = nil
}
