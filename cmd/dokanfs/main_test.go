package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dokan "github.com/godokan/go-dokan"
	"github.com/godokan/go-dokan/config"
)

type fakeMount struct {
	ops       dokan.Operations
	once      sync.Once
	done      chan struct{}
	unmounted bool
}

func (m *fakeMount) Unmount() error {
	m.once.Do(func() {
		m.ops.Unmounted(context.Background())
		m.unmounted = true
		close(m.done)
	})
	return nil
}

func (m *fakeMount) Done() <-chan struct{} { return m.done }

type fakeHost struct {
	opts    *dokan.MountOptions
	mounted chan *fakeMount
	resets  int
}

func newFakeHost() *fakeHost {
	return &fakeHost{mounted: make(chan *fakeMount, 1)}
}

func (h *fakeHost) Mount(ctx context.Context, ops dokan.Operations, opts *dokan.MountOptions) (dokan.Mount, error) {
	if status := ops.Mounted(ctx, opts.MountPoint); status != dokan.Success {
		return nil, status
	}
	h.opts = opts
	m := &fakeMount{ops: ops, done: make(chan struct{})}
	h.mounted <- m
	return m, nil
}

func (h *fakeHost) ResetTimeout(*dokan.FileInfo) bool {
	h.resets++
	return true
}

func testConfig(t *testing.T) *config.Config {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := config.Default()
	cfg.Mount.MountPoint = "M:"
	cfg.Mount.KeepAlive = time.Second
	cfg.Logging.Output = filepath.Join(t.TempDir(), "dokanfs.log")
	return &cfg
}

func discardLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestRunUntilCancelled(t *testing.T) {
	assert := assert.New(t)
	cfg := testConfig(t)
	host := newFakeHost()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- run(ctx, cfg, host, discardLogger()) }()

	m := <-host.mounted
	assert.Equal(`M:\`, host.opts.MountPoint)
	assert.Equal("Dokan Volume", host.opts.VolumeLabel)

	info := &dokan.FileInfo{}
	_, status := m.ops.CreateFile(context.Background(), `\hello.txt`, &dokan.CreateRequest{
		DesiredAccess:     dokan.GENERIC_WRITE,
		CreateDisposition: dokan.FILE_CREATE,
	}, info)
	assert.Equal(dokan.Success, status)
	m.ops.Cleanup(context.Background(), `\hello.txt`, info)
	m.ops.CloseFile(context.Background(), `\hello.txt`, info)

	cancel()
	require.NoError(t, <-errCh)
	assert.True(m.unmounted)
}

func TestRunUnmountedExternally(t *testing.T) {
	cfg := testConfig(t)
	cfg.Mount.ReadOnly = true
	host := newFakeHost()

	errCh := make(chan error, 1)
	go func() { errCh <- run(context.Background(), cfg, host, discardLogger()) }()
	m := <-host.mounted
	assert.True(t, host.opts.ReadOnly)

	info := &dokan.FileInfo{}
	_, status := m.ops.CreateFile(context.Background(), `\denied.txt`, &dokan.CreateRequest{
		DesiredAccess:     dokan.GENERIC_WRITE,
		CreateDisposition: dokan.FILE_CREATE,
	}, info)
	assert.Equal(t, dokan.AccessDenied, status)

	require.NoError(t, m.Unmount())
	assert.NoError(t, <-errCh)
}

func TestRunBadBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backend.Type = "os"
	cfg.Backend.OS = map[string]any{"dir": filepath.Join(t.TempDir(), "missing")}
	assert.Error(t, run(context.Background(), cfg, newFakeHost(), discardLogger()))
}

func resetFlags(t *testing.T, cmd *cobra.Command) {
	t.Cleanup(func() {
		flags = mountFlags{}
		cmd.Flags().VisitAll(func(f *pflag.Flag) {
			f.Changed = false
		})
	})
}

func TestApplyFlags(t *testing.T) {
	assert := assert.New(t)
	resetFlags(t, mountCmd)
	cfg := testConfig(t)
	require.NoError(t, mountCmd.ParseFlags([]string{
		"--mount", "/mnt/volume", "--backend", "Badger", "--read-only", "--debug",
	}))
	require.NoError(t, applyFlags(mountCmd, cfg))
	assert.Equal("/mnt/volume", cfg.Mount.MountPoint)
	assert.Equal("badger", cfg.Backend.Type)
	assert.True(cfg.Mount.ReadOnly)
	assert.Equal("DEBUG", cfg.Logging.Level)
	assert.Len(cfg.Logging.Topics, 4)

	cfg = testConfig(t)
	require.NoError(t, mountCmd.ParseFlags([]string{"--mount", "relative"}))
	assert.Error(applyFlags(mountCmd, cfg))
}

func TestNewLogger(t *testing.T) {
	assert := assert.New(t)
	path := filepath.Join(t.TempDir(), "logs", "dokanfs.log")
	logger, closer, err := newLogger(config.LoggingConfig{
		Level:  "WARN",
		Format: "json",
		Output: path,
	})
	require.NoError(t, err)
	assert.Equal(logrus.WarnLevel, logger.GetLevel())
	logger.Info("hidden")
	logger.Warn("shown")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(string(data), `"msg":"shown"`)
	assert.NotContains(string(data), "hidden")

	_, _, err = newLogger(config.LoggingConfig{Level: "LOUD", Format: "text", Output: "stderr"})
	assert.Error(err)
}

func TestStartMetrics(t *testing.T) {
	assert := assert.New(t)
	recorder, server, err := startMetrics(config.MetricsConfig{}, discardLogger())
	require.NoError(t, err)
	assert.Nil(server)
	recorder.RecordCall("ReadFile", dokan.Success, time.Millisecond)

	recorder, server, err = startMetrics(config.MetricsConfig{
		Enabled: true,
		Listen:  "127.0.0.1:0",
		Path:    "/metrics",
	}, discardLogger())
	require.NoError(t, err)
	recorder.RecordCall("ReadFile", dokan.Success, time.Millisecond)
	recorder.SetOpenHandles(3)

	resp, err := http.Get("http://" + server.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(string(body), `dokanfs_calls_total{operation="ReadFile",status="Success"} 1`)
	assert.Contains(string(body), "dokanfs_open_handles 3")
	assert.Contains(string(body), "go_goroutines")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	assert.NoError(server.Shutdown(ctx))
}

func TestConfigCommands(t *testing.T) {
	assert := assert.New(t)
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	path := filepath.Join(t.TempDir(), "config.yaml")
	t.Cleanup(func() {
		configPath = ""
		forceInit = false
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "init", "--config", path})
	require.NoError(t, rootCmd.Execute())
	assert.FileExists(path)
	assert.Contains(out.String(), path)

	rootCmd.SetArgs([]string{"config", "init", "--config", path})
	assert.Error(rootCmd.Execute())

	out.Reset()
	rootCmd.SetArgs([]string{"config", "show", "--config", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(out.String(), "type: memory")
	assert.Contains(out.String(), "volume_label: Dokan Volume")
}
