package cdpilot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/sysutil"
	"github.com/google/uuid"
)

// Allocator creates and manages browser processes, abstracting away
// whether a browser is a freshly spawned local child process or an
// already-running remote one.
type Allocator interface {
	// Allocate blocks until a Browser is ready, or ctx is done, or launch
	// fails.
	Allocate(ctx context.Context) (*Browser, error)
	// Wait blocks until every resource (temp dirs, child processes) the
	// Allocator owns has been released. Call only after the Browser
	// returned by Allocate has been closed.
	Wait()
}

// ExecAllocator is an Allocator that spawns a local Chromium-family
// process per Allocate call (the Process Supervisor).
type ExecAllocator struct {
	cfg Config
	wg  sync.WaitGroup
}

// NewExecAllocator builds an ExecAllocator from the given options, applied
// over DefaultConfig.
func NewExecAllocator(opts ...ExecAllocatorOption) *ExecAllocator {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.ExecPath == "" {
		cfg.ExecPath = findExecPath()
	}
	return &ExecAllocator{cfg: cfg}
}

func (a *ExecAllocator) buildArgs(dataDir string) []string {
	var args []string
	if !a.cfg.DisableDefaultArgs {
		args = append(args,
			"--no-first-run",
			"--no-default-browser-check",
		)
		if a.cfg.Headless {
			args = append(args, "--headless")
		}
		if !a.cfg.Sandbox {
			args = append(args, "--no-sandbox")
		}
	}
	if a.cfg.HasWindowSize {
		args = append(args, fmt.Sprintf("--window-size=%d,%d", a.cfg.WindowWidth, a.cfg.WindowHeight))
	}
	for _, ext := range a.cfg.Extensions {
		args = append(args, "--load-extension="+ext)
	}
	args = append(args, a.cfg.Args...)
	args = append(args, "--user-data-dir="+dataDir)
	args = append(args, fmt.Sprintf("--remote-debugging-port=%d", a.cfg.Port))
	return args
}

// Allocate spawns the browser process, waits (bounded by cfg.LaunchTimeout)
// for it to publish its debugger WebSocket URL on stderr, and dials it.
func (a *ExecAllocator) Allocate(ctx context.Context) (*Browser, error) {
	launchCtx := ctx
	var cancelLaunch context.CancelFunc
	if a.cfg.LaunchTimeout > 0 {
		launchCtx, cancelLaunch = context.WithTimeout(ctx, a.cfg.LaunchTimeout)
		defer cancelLaunch()
	}

	dataDir := a.cfg.UserDataDir
	removeDir := false
	if dataDir == "" {
		// A uuid suffix (rather than os.MkdirTemp's own random one) lets
		// this directory be correlated with the launch in logs.
		tmp, err := os.MkdirTemp("", "cdpilot-"+uuid.NewString()+"-")
		if err != nil {
			return nil, wrapf(ErrLaunchFailed, "create user data dir: %v", err)
		}
		dataDir, removeDir = tmp, true
	}

	cmd := exec.Command(a.cfg.ExecPath, a.buildArgs(dataDir)...)
	if len(a.cfg.Env) > 0 {
		cmd.Env = os.Environ()
		for k, v := range a.cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
	}
	allocateCmdOptions(cmd)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, wrapf(ErrLaunchFailed, "stderr pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, wrapf(ErrExecutableNotFound, "start %s: %v", a.cfg.ExecPath, err)
		}
		return nil, wrapf(ErrLaunchFailed, "start %s: %v", a.cfg.ExecPath, err)
	}

	wsURL, scanErr := scanForDebuggerURL(launchCtx, stderr)
	if scanErr != nil {
		_ = sysutil.KillProcessGroup(cmd)
		return nil, scanErr
	}

	browser, err := NewBrowser(ctx, wsURL, nil, nil, nil)
	if err != nil {
		_ = sysutil.KillProcessGroup(cmd)
		return nil, err
	}

	a.wg.Add(1)
	browser.closer = func() error {
		defer a.wg.Done()
		waited := make(chan struct{})
		go func() {
			cmd.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(5 * time.Second):
			sysutil.KillProcessGroup(cmd)
			<-waited
		}
		if removeDir {
			os.RemoveAll(dataDir)
		}
		return nil
	}
	return browser, nil
}

// scanForDebuggerURL reads cmd's stderr line by line looking for the
// "DevTools listening on ws://..." line Chromium prints once its debugger
// endpoint is ready.
func scanForDebuggerURL(ctx context.Context, stderr io.Reader) (string, error) {
	type result struct {
		url string
		err error
	}
	ch := make(chan result, 1)
	go func() {
		const prefix = "DevTools listening on "
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			line := scanner.Text()
			if s := strings.TrimPrefix(line, prefix); s != line {
				ch <- result{url: strings.TrimSpace(s)}
				return
			}
		}
		if err := scanner.Err(); err != nil {
			ch <- result{err: wrapf(ErrLaunchFailed, "reading stderr: %v", err)}
			return
		}
		ch <- result{err: wrapf(ErrLaunchFailed, "process exited before publishing a debugger URL")}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			return "", r.err
		}
		return r.url, nil
	case <-ctx.Done():
		return "", wrapf(ErrLaunchFailed, "timed out waiting for debugger URL: %v", ctx.Err())
	}
}

// Wait blocks until every process/temp-dir this allocator owns has been
// released by a prior Browser.Close.
func (a *ExecAllocator) Wait() {
	a.wg.Wait()
}

// findExecPath performs a best-effort search for a Chromium-family binary,
// in the same aggressive, cross-platform order the teacher uses.
func findExecPath() string {
	for _, path := range [...]string{
		"headless_shell",
		"chromium",
		"chromium-browser",
		"google-chrome",
		"google-chrome-stable",
		"google-chrome-beta",
		"google-chrome-unstable",
		"/usr/bin/google-chrome",

		"chrome",
		"chrome.exe",
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,

		`/Applications/Google Chrome.app/Contents/MacOS/Google Chrome`,
	} {
		if found, err := exec.LookPath(path); err == nil {
			return found
		}
	}
	return "google-chrome"
}
