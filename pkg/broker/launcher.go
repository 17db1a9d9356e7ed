package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/rs/zerolog"
)

// chromePaths is the ordered list of known browser install locations tried
// before falling back to rod's managed download.
var chromePaths = []string{
	"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
	"/Applications/Chromium.app/Contents/MacOS/Chromium",
	"/usr/bin/google-chrome",
	"/usr/bin/google-chrome-stable",
	"/usr/bin/chromium",
	"/usr/bin/chromium-browser",
	"/snap/bin/chromium",
}

// LauncherConfig configures the process launcher.
type LauncherConfig struct {
	// DebugPort is the fixed remote debugging port.
	DebugPort int
	// ProfileDir is the reused user-data directory, so cookies and logins
	// persist across relaunches.
	ProfileDir string
	// ChromePath overrides binary discovery when set.
	ChromePath string
	// Headless runs the browser without a window.
	Headless bool
	// ReadyAttempts bounds the readiness polling loop.
	ReadyAttempts int
	// ReadyInterval is the delay between readiness probes.
	ReadyInterval time.Duration
}

// ProcessLauncher spawns a browser with remote debugging enabled and waits
// until its debugging endpoint accepts connections.
type ProcessLauncher struct {
	cfg    LauncherConfig
	logger zerolog.Logger
}

// NewProcessLauncher creates a launcher with the given configuration.
func NewProcessLauncher(cfg LauncherConfig, logger zerolog.Logger) *ProcessLauncher {
	if cfg.ReadyAttempts <= 0 {
		cfg.ReadyAttempts = 15
	}
	if cfg.ReadyInterval <= 0 {
		cfg.ReadyInterval = time.Second
	}
	return &ProcessLauncher{cfg: cfg, logger: logger}
}

// ResolveBinary finds a browser binary via the known install locations, then
// falls back to rod's managed browser download.
func (pl *ProcessLauncher) ResolveBinary() (string, error) {
	if pl.cfg.ChromePath != "" {
		if _, err := os.Stat(pl.cfg.ChromePath); err == nil {
			return pl.cfg.ChromePath, nil
		}
		pl.logger.Warn().Str("path", pl.cfg.ChromePath).Msg("configured browser path not found, falling back to discovery")
	}

	for _, path := range chromePaths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	// No system install; use the managed browser rod downloads on demand.
	pl.logger.Info().Msg("no system browser found, resolving managed browser")
	bin, err := launcher.NewBrowser().Get()
	if err != nil {
		return "", &Error{
			Code:    ErrCodeBinaryNotFound,
			Message: fmt.Sprintf("No browser binary located: %v", err),
		}
	}
	return bin, nil
}

// Launch spawns the browser detached from this process and polls the debugging
// endpoint until it is ready. It returns the process id and the websocket
// debugging endpoint.
func (pl *ProcessLauncher) Launch(ctx context.Context) (*LaunchResult, error) {
	bin, err := pl.ResolveBinary()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(pl.cfg.ProfileDir, 0755); err != nil {
		return nil, &Error{
			Code:    ErrCodeConfiguration,
			Message: fmt.Sprintf("Failed to create profile directory: %v", err),
		}
	}

	args := []string{
		fmt.Sprintf("--user-data-dir=%s", pl.cfg.ProfileDir),
		fmt.Sprintf("--remote-debugging-port=%d", pl.cfg.DebugPort),
		"--disable-blink-features=AutomationControlled",
		"--no-first-run",
		"--no-default-browser-check",
	}
	if pl.cfg.Headless {
		args = append(args, "--headless=new")
	}

	cmd := exec.Command(bin, args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	// New session so the browser survives this short-lived step process.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return nil, &Error{
			Code:    ErrCodeBinaryNotFound,
			Message: fmt.Sprintf("Failed to spawn browser %s: %v", bin, err),
		}
	}
	pid := cmd.Process.Pid
	_ = cmd.Process.Release()

	pl.logger.Info().Str("binary", bin).Int("pid", pid).Int("port", pl.cfg.DebugPort).Msg("browser spawned, waiting for debugging endpoint")

	endpoint, err := pl.waitReady(ctx)
	if err != nil {
		return nil, err
	}

	return &LaunchResult{Pid: pid, Endpoint: endpoint}, nil
}

// waitReady polls the version endpoint with bounded retries and fixed backoff.
func (pl *ProcessLauncher) waitReady(ctx context.Context) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= pl.cfg.ReadyAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pl.cfg.ReadyInterval):
		}

		endpoint, err := FetchDebugEndpoint(ctx, pl.cfg.DebugPort)
		if err == nil {
			return endpoint, nil
		}
		lastErr = err
	}

	return "", &Error{
		Code:    ErrCodeLaunchTimeout,
		Message: fmt.Sprintf("Browser not ready after %d attempts: %v", pl.cfg.ReadyAttempts, lastErr),
	}
}

// FetchDebugEndpoint queries the browser's version endpoint on the given port
// and returns its websocket debugging endpoint.
func FetchDebugEndpoint(ctx context.Context, port int) (string, error) {
	url := fmt.Sprintf("http://127.0.0.1:%d/json/version", port)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", &Error{
			Code:    ErrCodeConnectionRefused,
			Message: fmt.Sprintf("Debug endpoint not reachable on port %d: %v", port, err),
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", &Error{
			Code:    ErrCodeConnectionRefused,
			Message: fmt.Sprintf("Debug endpoint returned status %d", resp.StatusCode),
		}
	}

	var version struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&version); err != nil {
		return "", fmt.Errorf("decode version response: %w", err)
	}
	if version.WebSocketDebuggerURL == "" {
		return "", &Error{
			Code:    ErrCodeConnectionRefused,
			Message: "Version response missing webSocketDebuggerUrl",
		}
	}

	return version.WebSocketDebuggerURL, nil
}
