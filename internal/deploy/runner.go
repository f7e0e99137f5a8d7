// Package deploy wraps the docker and uncloud CLIs used to ship the app,
// plus the fixed-interval health polling that gates each rollout.
package deploy

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	applog "github.com/Tomlord1122/takeout/internal/logger"
)

// Runner runs one external command and returns its combined output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (string, error)
}

// ExecRunner runs commands as subprocesses, each bounded by StepTimeout.
type ExecRunner struct {
	Dir         string
	Env         []string
	StepTimeout time.Duration
	log         *zap.Logger
}

func NewExecRunner(dir string, stepTimeout time.Duration) *ExecRunner {
	return &ExecRunner{Dir: dir, StepTimeout: stepTimeout, log: applog.Named("deploy")}
}

func (r *ExecRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	if r.StepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.StepTimeout)
		defer cancel()
	}
	step := strings.TrimSpace(name + " " + strings.Join(args, " "))
	log := r.logger().With(applog.Step(step))

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(cmd.Environ(), r.Env...)
	}
	var out bytes.Buffer
	lw := &lineWriter{log: log}
	cmd.Stdout = &teeWriter{buf: &out, lw: lw}
	cmd.Stderr = cmd.Stdout

	start := time.Now()
	log.Info("running")
	err := cmd.Run()
	lw.flush()
	if r.StepTimeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return out.String(), fmt.Errorf("%s: timed out after %s", step, r.StepTimeout)
	}
	if err != nil {
		log.Error("failed", applog.Err(err), applog.Duration(time.Since(start)))
		return out.String(), fmt.Errorf("%s: %w\n%s", step, err, strings.TrimSpace(out.String()))
	}
	log.Info("done", applog.Duration(time.Since(start)))
	return out.String(), nil
}

func (r *ExecRunner) logger() *zap.Logger {
	if r.log == nil {
		return applog.Named("deploy")
	}
	return r.log
}

// teeWriter keeps the full output and streams it line by line to the log.
// exec may write stdout and stderr from separate goroutines.
type teeWriter struct {
	mu  sync.Mutex
	buf *bytes.Buffer
	lw  *lineWriter
}

func (t *teeWriter) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	t.lw.write(p)
	return len(p), nil
}

type lineWriter struct {
	log     *zap.Logger
	pending []byte
}

func (w *lineWriter) write(p []byte) {
	w.pending = append(w.pending, p...)
	for {
		i := bytes.IndexByte(w.pending, '\n')
		if i < 0 {
			return
		}
		if line := strings.TrimRight(string(w.pending[:i]), "\r"); line != "" {
			w.log.Debug(line)
		}
		w.pending = w.pending[i+1:]
	}
}

func (w *lineWriter) flush() {
	if len(w.pending) > 0 {
		w.log.Debug(string(w.pending))
		w.pending = nil
	}
}
