package cdpilot

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExecAllocatorBuildArgsDefaults(t *testing.T) {
	a := NewExecAllocator(Port(9222))
	args := a.buildArgs("/tmp/profile")

	require.Contains(t, args, "--no-first-run")
	require.Contains(t, args, "--no-default-browser-check")
	require.Contains(t, args, "--headless")
	require.NotContains(t, args, "--no-sandbox")
	require.Contains(t, args, "--user-data-dir=/tmp/profile")
	require.Contains(t, args, "--remote-debugging-port=9222")
}

func TestExecAllocatorBuildArgsHeadedAndSandboxed(t *testing.T) {
	a := NewExecAllocator(Headless(false))
	args := a.buildArgs("/tmp/profile")

	require.NotContains(t, args, "--headless")
	require.NotContains(t, args, "--no-sandbox")
}

func TestExecAllocatorBuildArgsWindowSizeAndExtensions(t *testing.T) {
	a := NewExecAllocator(
		WindowSize(1024, 768),
		LoadExtension("/opt/ext-a"),
		LoadExtension("/opt/ext-b"),
		Flag("proxy-server", "localhost:8080"),
		Flag("enable-logging", true),
	)
	args := a.buildArgs("/tmp/profile")

	require.Contains(t, args, "--window-size=1024,768")
	require.Contains(t, args, "--load-extension=/opt/ext-a")
	require.Contains(t, args, "--load-extension=/opt/ext-b")
	require.Contains(t, args, "--proxy-server=localhost:8080")
	require.Contains(t, args, "--enable-logging")
}

func TestExecAllocatorBuildArgsDisableDefaultArgs(t *testing.T) {
	a := NewExecAllocator(DisableDefaultArgs())
	args := a.buildArgs("/tmp/profile")

	require.NotContains(t, args, "--no-first-run")
	require.NotContains(t, args, "--headless")
	require.NotContains(t, args, "--no-sandbox")
	require.Contains(t, args, "--user-data-dir=/tmp/profile")
}

func TestScanForDebuggerURLFindsLine(t *testing.T) {
	r := strings.NewReader("Starting up\nDevTools listening on ws://127.0.0.1:9222/devtools/browser/abc\nmore noise\n")
	url, err := scanForDebuggerURL(context.Background(), r)
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", url)
}

func TestScanForDebuggerURLProcessExitsWithoutURL(t *testing.T) {
	r := strings.NewReader("some unrelated startup noise\nno debugger url here\n")
	_, err := scanForDebuggerURL(context.Background(), r)
	require.ErrorIs(t, err, ErrLaunchFailed)
}

func TestScanForDebuggerURLContextTimeout(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := scanForDebuggerURL(ctx, blockingReader{})
	require.ErrorIs(t, err, ErrLaunchFailed)
}

// blockingReader never returns, simulating a process that never writes
// anything further to stderr before the caller's context expires.
type blockingReader struct{}

func (blockingReader) Read(p []byte) (int, error) {
	select {}
}
