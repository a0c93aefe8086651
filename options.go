package cdpilot

import (
	"fmt"
	"time"
)

// Config holds the launch configuration enumerated in spec §6. It is built
// up by ExecAllocatorOption values and consumed by ExecAllocator.Allocate.
type Config struct {
	Headless            bool
	Sandbox              bool
	WindowWidth          uint32
	WindowHeight         uint32
	HasWindowSize        bool
	Port                 uint16
	ExecPath             string
	UserDataDir          string
	Extensions           []string
	Args                 []string
	DisableDefaultArgs   bool
	Env                  map[string]string
	LaunchTimeout        time.Duration
	RequestTimeout       time.Duration
}

// DefaultConfig mirrors the defaults named in spec §6.
func DefaultConfig() Config {
	return Config{
		Headless:       true,
		Sandbox:        true,
		Port:           0,
		LaunchTimeout:  20 * time.Second,
		RequestTimeout: 30 * time.Second,
		Env:            map[string]string{},
	}
}

// ExecAllocatorOption configures an ExecAllocator's Config.
type ExecAllocatorOption func(*Config)

// Headless sets headless mode (default true); false runs a headed browser.
func Headless(v bool) ExecAllocatorOption {
	return func(c *Config) { c.Headless = v }
}

// NoSandbox disables the sandbox (adds --no-sandbox). Sandbox defaults to
// true, meaning --no-sandbox is omitted.
func NoSandbox() ExecAllocatorOption {
	return func(c *Config) { c.Sandbox = false }
}

// WindowSize sets the initial window size.
func WindowSize(width, height uint32) ExecAllocatorOption {
	return func(c *Config) {
		c.WindowWidth, c.WindowHeight, c.HasWindowSize = width, height, true
	}
}

// Port pins the remote debugging port (default 0, OS-assigned).
func Port(port uint16) ExecAllocatorOption {
	return func(c *Config) { c.Port = port }
}

// ExecPath sets an explicit path to the Chromium-family binary, bypassing
// the platform search.
func ExecPath(path string) ExecAllocatorOption {
	return func(c *Config) { c.ExecPath = path }
}

// UserDataDir pins the profile directory. When unset, an ephemeral
// directory is created and removed on graceful close.
func UserDataDir(dir string) ExecAllocatorOption {
	return func(c *Config) { c.UserDataDir = dir }
}

// LoadExtension adds a path to be loaded as an unpacked extension.
func LoadExtension(path string) ExecAllocatorOption {
	return func(c *Config) { c.Extensions = append(c.Extensions, path) }
}

// Flag adds an arbitrary command-line argument, either "--name" for a bool
// flag or "--name=value" for a string-valued one.
func Flag(name string, value interface{}) ExecAllocatorOption {
	return func(c *Config) {
		switch v := value.(type) {
		case bool:
			if v {
				c.Args = append(c.Args, "--"+name)
			}
		default:
			c.Args = append(c.Args, fmt.Sprintf("--%s=%v", name, v))
		}
	}
}

// DisableDefaultArgs skips the implicit flags cdpilot would otherwise add
// (no-first-run, no-default-browser-check, headless, no-sandbox), leaving
// what Flag/LoadExtension/WindowSize add explicitly plus --user-data-dir and
// --remote-debugging-port, which are always passed.
func DisableDefaultArgs() ExecAllocatorOption {
	return func(c *Config) { c.DisableDefaultArgs = true }
}

// Env sets an environment variable for the child process.
func Env(key, value string) ExecAllocatorOption {
	return func(c *Config) {
		if c.Env == nil {
			c.Env = map[string]string{}
		}
		c.Env[key] = value
	}
}

// LaunchTimeout bounds how long Allocate waits for the debugger URL to
// appear on stderr before failing with ErrLaunchFailed (default 20s).
func LaunchTimeout(d time.Duration) ExecAllocatorOption {
	return func(c *Config) { c.LaunchTimeout = d }
}

// RequestTimeout sets Config.RequestTimeout (default 30s). ExecAllocator does
// not pass this value on to the Browser or its Handler: a command's only
// deadline is the one on the context it is executed with.
func RequestTimeout(d time.Duration) ExecAllocatorOption {
	return func(c *Config) { c.RequestTimeout = d }
}
