package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CRISalid-esr/crisalid-ikg/graph"
	"github.com/CRISalid-esr/crisalid-ikg/pkg/worker"
)

func TestSetupLogger(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		format   string
		enabled  slog.Level
		disabled slog.Level
		wantJSON bool
	}{
		{"debug text", "debug", "text", slog.LevelDebug, slog.LevelDebug - 1, false},
		{"info json", "info", "json", slog.LevelInfo, slog.LevelDebug, true},
		{"warn", "warn", "json", slog.LevelWarn, slog.LevelInfo, true},
		{"unknown level falls back to info", "verbose", "", slog.LevelInfo, slog.LevelDebug, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := setupLogger(&buf, test.level, test.format)

			assert.True(t, logger.Enabled(context.Background(), test.enabled))
			assert.False(t, logger.Enabled(context.Background(), test.disabled))

			logger.Log(context.Background(), test.enabled, "hello")
			if test.wantJSON {
				assert.Contains(t, buf.String(), `"msg":"hello"`)
				assert.Contains(t, buf.String(), `"service":"crisalid-ikg"`)
			} else {
				assert.Contains(t, buf.String(), "msg=hello")
			}
		})
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCmd(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "crisalid-ikg version "+Version)
}

func TestGraphCommands_MemoryStore(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		args    []string
		refused bool
	}{
		{"setup in prod", "prod", []string{"setup-graph", "--store", "memory"}, false},
		{"reset in dev", "dev", []string{"reset-graph", "--store", "memory"}, false},
		{"reset in test", "test", []string{"reset-graph", "--store", "memory"}, false},
		{"reset in prod", "prod", []string{"reset-graph", "--store", "memory"}, true},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv("IKG_APP_ENV", test.env)

			_, err := execute(t, test.args...)
			if test.refused {
				require.Error(t, err)
				assert.ErrorIs(t, err, graph.ErrResetRefused)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestStoreFlagIsValidated(t *testing.T) {
	_, err := execute(t, "setup-graph", "--store", "sqlite")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "app.store")
}

func TestRootCmd_Subcommands(t *testing.T) {
	names := map[string]bool{}
	for _, c := range newRootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "setup-graph", "reset-graph", "version"} {
		assert.True(t, names[want], "missing %s", want)
	}
}

type fakeQueue struct {
	startErr error
	stopErr  error
	started  bool
	stopped  bool
}

func (q *fakeQueue) Start(ctx context.Context) error {
	q.started = ctx.Err() == nil
	return q.startErr
}

func (q *fakeQueue) Stop(time.Duration) error {
	q.stopped = true
	return q.stopErr
}

func TestRunQueue(t *testing.T) {
	tests := []struct {
		name        string
		queue       *fakeQueue
		wantErr     bool
		wantStopped bool
	}{
		{"clean drain", &fakeQueue{}, false, true},
		{"drain timeout is tolerated", &fakeQueue{stopErr: worker.ErrStopTimeout}, false, true},
		{"stop failure", &fakeQueue{stopErr: fmt.Errorf("stuck")}, true, true},
		{"start failure", &fakeQueue{startErr: worker.ErrPoolAlreadyStarted}, true, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			err := runQueue(ctx, "test", test.queue, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
			if test.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.True(t, test.queue.started, "workers outlive the cancelled context")
			assert.Equal(t, test.wantStopped, test.queue.stopped)
		})
	}
}
