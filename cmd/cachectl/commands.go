package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dfe-analytical-services/ees-cache/cache"
	"github.com/dfe-analytical-services/ees-cache/cancellation"
	"github.com/dfe-analytical-services/ees-cache/tui"
	"github.com/spf13/cobra"
	str2duration "github.com/xhit/go-str2duration/v2"
)

const blobArgs = "<service> <container> <path>"

// withStorage runs fn against the named blob service with the --timeout
// applied, releasing everything afterwards.
func (a *app) withStorage(cmd *cobra.Command, args []string, fn func(ctx context.Context, svc cache.BlobService, key cache.BlobKey) error) error {
	if err := a.open(cmd); err != nil {
		return err
	}
	defer a.close()
	svc, err := a.blobService(args[0])
	if err != nil {
		return err
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := cancellation.WithRequestTimeout(cmd.Context(), timeout)
	defer cancel()
	if err := fn(ctx, svc, cache.NewBlobKey(cache.Container(args[1]), args[2])); err != nil {
		if cancellation.IsCancelled(err) {
			return errors.Mark(err, cache.ErrCancelled)
		}
		return err
	}
	return nil
}

func newGetCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get " + blobArgs,
		Short: "Print a cached blob as JSON",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStorage(cmd, args, func(ctx context.Context, svc cache.BlobService, key cache.BlobKey) error {
				var value any
				found, err := svc.GetItem(ctx, key, &value)
				if err != nil {
					return err
				}
				if !found {
					tui.ShowWarning(cmd.ErrOrStderr(), "nothing cached at %s/%s", key.Container(), key.Key())
					return nil
				}
				buf, err := json.MarshalIndent(value, "", "  ")
				if err != nil {
					return errors.Wrap(err, "formatting value")
				}
				fmt.Fprintln(cmd.OutOrStdout(), string(buf))
				return nil
			})
		},
	}
}

func newDeleteCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete " + blobArgs,
		Short: "Remove one cached blob",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStorage(cmd, args, func(ctx context.Context, svc cache.BlobService, key cache.BlobKey) error {
				if err := svc.DeleteItem(ctx, key); err != nil {
					return err
				}
				tui.ShowSuccess(cmd.OutOrStdout(), "deleted %s/%s", key.Container(), key.Key())
				return nil
			})
		},
	}
}

func newDeleteFolderCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-folder " + blobArgs,
		Short: "Remove every cached blob below a folder",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStorage(cmd, args, func(ctx context.Context, svc cache.BlobService, key cache.BlobKey) error {
				if err := svc.DeleteCacheFolder(ctx, key); err != nil {
					return err
				}
				tui.ShowSuccess(cmd.OutOrStdout(), "deleted everything below %s/%s/", key.Container(), key.Key())
				return nil
			})
		},
	}
}

func newExpiryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "expiry",
		Short: "Show when a value stored now (or --at) would expire",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			durationFlag, _ := cmd.Flags().GetString("duration")
			scheduleFlag, _ := cmd.Flags().GetString("schedule")
			atFlag, _ := cmd.Flags().GetString("at")

			duration, err := str2duration.ParseDuration(durationFlag)
			if err != nil {
				return errors.Mark(errors.Wrapf(err, "invalid --duration %q", durationFlag), cache.ErrConfiguration)
			}
			schedule, err := cache.ParseSchedule(scheduleFlag)
			if err != nil {
				return err
			}
			storedAt := time.Now().UTC()
			if atFlag != "" {
				if storedAt, err = time.Parse(time.RFC3339, atFlag); err != nil {
					return errors.Mark(errors.Wrapf(err, "invalid --at %q", atFlag), cache.ErrConfiguration)
				}
			}
			policy := cache.ExpiryPolicy{Duration: duration, Schedule: schedule}
			if err := policy.Validate(); err != nil {
				return err
			}

			boundary := "-"
			if next, ok := cache.NextScheduleBoundaryAfter(storedAt, schedule); ok {
				boundary = next.Format(time.RFC3339)
			}
			expiresAt := policy.EffectiveExpiry(storedAt)
			tui.Table(cmd.OutOrStdout(),
				[]string{"Stored", "Policy", "Next boundary", "Expires", "Lifetime"},
				[][]string{{
					storedAt.Format(time.RFC3339),
					policy.String(),
					boundary,
					expiresAt.Format(time.RFC3339),
					str2duration.String(expiresAt.Sub(storedAt)),
				}},
			)
			return nil
		},
	}
	cmd.Flags().String("duration", "0s", "expiry duration, e.g. 10m or 1d")
	cmd.Flags().String("schedule", "none", "none, hourly or halfhourly")
	cmd.Flags().String("at", "", "store time as RFC3339, defaults to now")
	return cmd
}
