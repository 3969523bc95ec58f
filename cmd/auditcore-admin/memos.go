package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/redis/go-redis/v9"
)

// memoKeyPattern matches the keys MemoCacheService writes.
const memoKeyPattern = "memo:*"

const memoScanBatch = 1000

type memoKeyOptions struct {
	Student string
	DryRun  bool
}

func parseMemoKeyFlags(name string, args []string) (memoKeyOptions, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	student := fs.String("student", "", "restrict to one student's memo entries")
	dryRun := fs.Bool("dry-run", false, "report matches without deleting")
	if err := fs.Parse(args); err != nil {
		return memoKeyOptions{}, fmt.Errorf("parse %s flags: %w", name, err)
	}
	return memoKeyOptions{Student: *student, DryRun: *dryRun}, nil
}

func (o memoKeyOptions) pattern() string {
	if o.Student != "" {
		return "memo:" + o.Student + ":*"
	}
	return memoKeyPattern
}

func scanMemoKeys(ctx context.Context, client redis.UniversalClient, pattern string) ([]string, error) {
	iter := client.Scan(ctx, 0, pattern, memoScanBatch).Iterator()
	keys := make([]string, 0)
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan redis: %w", err)
	}
	sort.Strings(keys)
	return keys, nil
}

func runListMemoKeys(cmdCtx *commandContext, args []string) error {
	opts, err := parseMemoKeyFlags("list-memo-keys", args)
	if err != nil {
		return err
	}

	client, err := connectRedis(cmdCtx.Logger, &cmdCtx.Config.Redis)
	if err != nil {
		if errors.Is(err, errRedisNotConfigured) {
			return errors.New("memo cache commands require a redis configuration")
		}
		return err
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.Error("close redis failed", "error", cerr)
		}
	}()

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, queueCommandTimeout)
	defer cancel()

	keys, err := scanMemoKeys(ctx, client, opts.pattern())
	if err != nil {
		return err
	}
	return printMemoKeys(ctx, client, keys)
}

func printMemoKeys(ctx context.Context, client redis.UniversalClient, keys []string) error {
	if len(keys) == 0 {
		return writeln(os.Stdout, "no memo cache entries")
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	if err := writef(w, "KEY\tTTL\n"); err != nil {
		return err
	}
	for _, key := range keys {
		ttl, err := client.TTL(ctx, key).Result()
		if err != nil {
			return fmt.Errorf("ttl for %s: %w", key, err)
		}
		if err := writef(w, "%s\t%s\n", key, ttl.Round(time.Second)); err != nil {
			return err
		}
	}
	return w.Flush()
}

func runClearMemoKeys(cmdCtx *commandContext, args []string) error {
	opts, err := parseMemoKeyFlags("clear-memo-keys", args)
	if err != nil {
		return err
	}

	client, err := connectRedis(cmdCtx.Logger, &cmdCtx.Config.Redis)
	if err != nil {
		if errors.Is(err, errRedisNotConfigured) {
			return errors.New("memo cache commands require a redis configuration")
		}
		return err
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			cmdCtx.Logger.Error("close redis failed", "error", cerr)
		}
	}()

	ctx, cancel := context.WithTimeout(cmdCtx.Ctx, queueCommandTimeout)
	defer cancel()

	keys, err := scanMemoKeys(ctx, client, opts.pattern())
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return writeln(os.Stdout, "no memo cache entries")
	}
	if opts.DryRun {
		return writef(os.Stdout, "would delete %d memo cache entries\n", len(keys))
	}

	const deleteBatch = 100
	for start := 0; start < len(keys); start += deleteBatch {
		end := min(start+deleteBatch, len(keys))
		if err := client.Del(ctx, keys[start:end]...).Err(); err != nil {
			return fmt.Errorf("delete redis keys: %w", err)
		}
	}
	return writef(os.Stdout, "deleted %d memo cache entries\n", len(keys))
}
