// Package app wires configuration, transport, pipeline and rendering into
// one inspection run.
package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/shpitdev/couch-xray/internal/config"
	"github.com/shpitdev/couch-xray/internal/display"
	"github.com/shpitdev/couch-xray/internal/logger"
	"github.com/shpitdev/couch-xray/internal/pipeline"
	"github.com/shpitdev/couch-xray/internal/report"
	"github.com/shpitdev/couch-xray/internal/version"
	"github.com/shpitdev/couch-xray/pkg/couch"
	"github.com/shpitdev/couch-xray/pkg/pipeline/batch"
)

// Mode selects the report a run produces.
type Mode int

const (
	ModeDatabases Mode = iota
	ModeIndexes
)

func (m Mode) String() string {
	switch m {
	case ModeDatabases:
		return "databases"
	case ModeIndexes:
		return "indexes"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Streams are where a run writes. Out receives only the report.
type Streams struct {
	Out io.Writer
	Err io.Writer
}

// RunDatabases reports per-database statistics for every configured host.
func RunDatabases(ctx context.Context, cfg *config.Config, s Streams) error {
	return run(ctx, cfg, ModeDatabases, s)
}

// RunIndexes lists every index of every database. Index data is fetched for
// all databases; the limit applies to listed rows.
func RunIndexes(ctx context.Context, cfg *config.Config, s Streams) error {
	return run(ctx, cfg, ModeIndexes, s)
}

func run(ctx context.Context, cfg *config.Config, mode Mode, s Streams) error {
	runID := uuid.NewString()
	log := logger.Named("app").With(logger.FieldRunID, runID)
	start := time.Now()

	client, err := couch.NewClient(couch.Options{
		Username:        cfg.Username,
		Password:        cfg.Password,
		CAPath:          cfg.CAPath,
		Timeout:         cfg.Timeout,
		MaxConnsPerHost: cfg.Connections,
		UserAgent:       version.UserAgent(),
		Logger:          log.Named("couch"),
	})
	if err != nil {
		return err
	}

	exec := batch.New(client, batch.Options{
		Workers:      cfg.Connections,
		RateLimitRPS: cfg.RateLimitRPS,
		Progress:     display.NewProgress(cfg.Progress, s.Err),
		Logger:       log.Named("batch"),
	})

	opts := pipeline.Options{
		Hosts:         cfg.Hosts,
		Limit:         cfg.Limit,
		Shards:        cfg.Shards,
		Indexes:       cfg.Indexes,
		DocsPerShard:  cfg.DocsPerShard,
		BytesPerShard: cfg.BytesPerShard,
		Logger:        log.Named("pipeline"),
	}
	if mode == ModeIndexes {
		opts.Limit = 0
		opts.Shards = false
		opts.Indexes = true
	}

	log.Infow("run start",
		"mode", mode.String(),
		"hosts", len(opts.Hosts),
		"connections", cfg.Connections,
		"limit", cfg.Limit,
		"rate_limit_rps", cfg.RateLimitRPS,
	)
	rep, err := pipeline.New(client, exec, opts).Run(ctx)
	if err != nil {
		return err
	}

	printer := display.NewPrinter(s.Err)
	ropts := report.Options{Format: cfg.OutputFormat(), Limit: cfg.Limit}
	var sheet report.Sheet
	switch mode {
	case ModeIndexes:
		sheet = report.Indexes(rep, ropts)
		printer.Info(report.Showing(sheet, "indexes"))
	default:
		sheet = report.Databases(rep, ropts)
	}
	if err := report.Write(s.Out, sheet); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if rep.ServerErrors > 0 {
		printer.Warn(report.ServerErrorSummary(rep.ServerErrors))
	}

	log.Infow("run complete",
		"mode", mode.String(),
		"discovered", rep.Discovered,
		"reported", len(sheet.Rows),
		"server_errors", rep.ServerErrors,
		logger.FieldDuration, time.Since(start).Round(time.Millisecond),
	)
	return nil
}
