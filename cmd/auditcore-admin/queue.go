package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/openregistrar/auditcore/internal/data"
	"github.com/openregistrar/auditcore/internal/domain/model"
	"github.com/openregistrar/auditcore/internal/service"
)

const queueCommandTimeout = 30 * time.Second

// newQueueService builds a queue service over a fresh DB connection. The
// returned cleanup closes the connection.
func newQueueService(cmdCtx *commandContext) (*service.QueueService, func(), error) {
	db, err := connectDB(cmdCtx.Logger, &cmdCtx.Config)
	if err != nil {
		return nil, nil, err
	}

	repo := data.NewQueueRepo(db, data.RepoConfig{Logger: cmdCtx.Logger})
	svc := service.MustNewQueueService(service.QueueServiceOptions{
		Repo:         repo,
		DefaultLease: 30 * time.Second,
		Logger:       cmdCtx.Logger,
	})
	cleanup := func() {
		svc.StopAllListeners()
		closeDB(cmdCtx.Logger, db)
	}
	return svc, cleanup, nil
}

func runQueueStats(cmdCtx *commandContext, _ []string) error {
	svc, cleanup, err := newQueueService(cmdCtx)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, queueCommandTimeout)
	defer cancel()

	stats, err := svc.Stats(ctx)
	if err != nil {
		return err
	}
	return printQueueStats(stats)
}

func printQueueStats(stats *model.QueueStats) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writef(w, "STATE\tCOUNT\n"); err != nil {
		return err
	}
	rows := []struct {
		state string
		count int
	}{
		{"pending", stats.Pending},
		{"claimed", stats.Claimed},
		{"dead", stats.Dead},
		{"blocked", stats.Blocked},
	}
	for _, row := range rows {
		if err := writef(w, "%s\t%d\n", row.state, row.count); err != nil {
			return err
		}
	}
	return w.Flush()
}

type lineageOptions struct {
	Lineage model.Lineage
	Reason  string
}

func parseLineageFlags(name string, args []string) (lineageOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	student := fs.String("student", "", "student id (required)")
	area := fs.String("area", "", "area code (required)")
	reason := fs.String("reason", "", "reason recorded with the block")
	if err := fs.Parse(args); err != nil {
		return lineageOptions{}, fmt.Errorf("parse %s flags: %w", name, err)
	}

	opts := lineageOptions{
		Lineage: model.Lineage{StudentID: *student, AreaCode: *area},
		Reason:  *reason,
	}
	if err := opts.Lineage.Validate(); err != nil {
		return lineageOptions{}, errors.Join(err, errors.New("pass -student and -area"))
	}
	return opts, nil
}

func runQueueBlock(cmdCtx *commandContext, args []string) error {
	opts, err := parseLineageFlags("queue-block", args)
	if err != nil {
		return err
	}

	svc, cleanup, err := newQueueService(cmdCtx)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, queueCommandTimeout)
	defer cancel()

	if err := svc.Block(ctx, opts.Lineage, opts.Reason); err != nil {
		return err
	}
	return writef(os.Stdout, "blocked %s/%s\n", opts.Lineage.StudentID, opts.Lineage.AreaCode)
}

func runQueueUnblock(cmdCtx *commandContext, args []string) error {
	opts, err := parseLineageFlags("queue-unblock", args)
	if err != nil {
		return err
	}

	svc, cleanup, err := newQueueService(cmdCtx)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, queueCommandTimeout)
	defer cancel()

	removed, err := svc.Unblock(ctx, opts.Lineage)
	if err != nil {
		return err
	}
	if !removed {
		return writef(os.Stdout, "no block found for %s/%s\n", opts.Lineage.StudentID, opts.Lineage.AreaCode)
	}
	return writef(os.Stdout, "unblocked %s/%s\n", opts.Lineage.StudentID, opts.Lineage.AreaCode)
}

func runListDeadJobs(cmdCtx *commandContext, args []string) error {
	fs := flag.NewFlagSet("list-dead-jobs", flag.ContinueOnError)
	limit := fs.Int("limit", 50, "maximum number of jobs to list")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("parse list-dead-jobs flags: %w", err)
	}

	svc, cleanup, err := newQueueService(cmdCtx)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, queueCommandTimeout)
	defer cancel()

	dead := model.JobStatusDead
	jobs, err := svc.List(ctx, model.JobListOptions{Status: &dead, Limit: *limit})
	if err != nil {
		return err
	}
	return printDeadJobs(jobs)
}

func printDeadJobs(jobs []*model.Job) error {
	if len(jobs) == 0 {
		return writeln(os.Stdout, "no dead jobs")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writef(w, "ID\tSTUDENT\tAREA\tRUN\tATTEMPTS\tLAST ERROR\n"); err != nil {
		return err
	}
	for _, job := range jobs {
		lastErr := ""
		if job.LastError != nil {
			lastErr = *job.LastError
		}
		err := writef(w, "%s\t%s\t%s\t%d\t%d/%d\t%s\n",
			job.ID, job.StudentID, job.AreaCode, job.Run, job.AttemptCount, job.MaxAttempts, lastErr)
		if err != nil {
			return err
		}
	}
	return w.Flush()
}
