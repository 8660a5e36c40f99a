package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/shpitdev/couch-xray/internal/errors"
	"github.com/shpitdev/couch-xray/internal/logger"
	"github.com/shpitdev/couch-xray/pkg/pipeline/redact"
)

const (
	exitOK    = 0
	exitRun   = 1
	exitUsage = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	logger.Cleanup()
	os.Exit(code)
}

func execute(ctx context.Context, args []string, out, errOut io.Writer) int {
	root := newRootCmd(out, errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	_, _ = fmt.Fprintf(errOut, "Error: %s\n", redact.Secrets(err.Error()))
	for _, hint := range errors.GetAllHints(err) {
		_, _ = fmt.Fprintf(errOut, "Hint: %s\n", hint)
	}
	return exitCode(err)
}

// usageError marks failures caused by flags, arguments or configuration.
type usageError struct{ err error }

func (e usageError) Error() string { return e.err.Error() }
func (e usageError) Unwrap() error { return e.err }

func exitCode(err error) int {
	var ue usageError
	switch {
	case errors.As(err, &ue),
		errors.Is(err, errors.ErrInvalidConfig),
		errors.Is(err, errors.ErrNoHosts),
		strings.HasPrefix(err.Error(), "unknown command"):
		return exitUsage
	default:
		return exitRun
	}
}
