package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// DesktopChannel delivers notifications through the OS notifier binary:
// terminal-notifier on macOS, notify-send elsewhere. It is configured
// whenever the binary is found on PATH.
type DesktopChannel struct {
	binary string
}

// NewDesktop creates a DesktopChannel for the current platform.
func NewDesktop() *DesktopChannel {
	name := "notify-send"
	if runtime.GOOS == "darwin" {
		name = "terminal-notifier"
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return &DesktopChannel{}
	}
	return &DesktopChannel{binary: path}
}

func (c *DesktopChannel) Name() string       { return "desktop" }
func (c *DesktopChannel) IsConfigured() bool { return c.binary != "" }

func (c *DesktopChannel) Send(ctx context.Context, evt Event) error {
	if c.binary == "" {
		return fmt.Errorf("no desktop notifier binary available")
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "darwin" {
		args := []string{"-title", evt.Title, "-message", evt.Body, "-sound", "Blow"}
		if evt.URL != "" {
			args = append(args, "-open", evt.URL)
		}
		cmd = exec.CommandContext(ctx, c.binary, args...)
	} else {
		body := evt.Body
		if evt.URL != "" {
			body += "\n" + evt.URL
		}
		cmd = exec.CommandContext(ctx, c.binary, evt.Title, body)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("running %s: %w (%s)", c.binary, err, out)
	}
	return nil
}
