package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/Abraxas-365/remodel/pkg/broadcastx"
	"github.com/Abraxas-365/remodel/pkg/broadcastx/bxredis"
	"github.com/Abraxas-365/remodel/pkg/cachesync"
	"github.com/Abraxas-365/remodel/pkg/jobs"
	"github.com/Abraxas-365/remodel/pkg/jobx"
	"github.com/Abraxas-365/remodel/pkg/logx"
	"github.com/Abraxas-365/remodel/pkg/sessiontoken"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var withWorkers bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API (enqueue, job status, session event stream)",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := containerMode{database: withWorkers, workers: withWorkers}
			return withContainer(cmd, mode, func(ctx context.Context, c *Container) error {
				logx.Info("🚀 Starting Remodel API Server...")

				deps := serverDeps{
					Jobs:        c.Jobs,
					DeadLetters: c.DeadLetters,
					Broadcaster: c.Broadcaster,
					Tokens:      c.Tokens,
					Health:      c.HealthCheck,
					CORSOrigins: c.Config.Server.CORSOrigins,
					Debug:       c.Config.Server.Debug,
				}
				if c.Config.Storage.Mode == "local" {
					deps.UploadDir = c.Config.Storage.UploadDir
				}

				var wg sync.WaitGroup
				if withWorkers {
					wg.Add(1)
					go func() {
						defer wg.Done()
						if err := c.Jobs.Start(ctx); err != nil {
							logx.WithError(err).Error("jobx: workers stopped with error")
						}
					}()
				}

				err := startServer(ctx, newServer(deps), c.Config.Server.Port)
				wg.Wait()
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&withWorkers, "with-workers", false, "Also run the job workers in this process")
	return cmd
}

func workerCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Process jobs of every queue until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, containerMode{database: true, workers: true}, func(ctx context.Context, c *Container) error {
				if once {
					return drain(ctx, c.Jobs)
				}
				logx.Info("🔄 Starting workers...")
				return c.Jobs.Start(ctx)
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Process every job currently due, then exit")
	return cmd
}

// drain processes ready jobs queue by queue until each is empty.
func drain(ctx context.Context, client *jobx.Client) error {
	for _, queue := range client.Queues() {
		n := 0
		for ctx.Err() == nil {
			processed, err := client.RunOnce(ctx, queue, time.Second)
			if err != nil {
				return err
			}
			if !processed {
				break
			}
			n++
		}
		logx.Infof("jobx: drained %d jobs from %s", n, queue)
	}
	return nil
}

func enqueueCmd() *cobra.Command {
	var (
		delay    time.Duration
		attempts int
	)

	cmd := &cobra.Command{
		Use:   "enqueue <queue> <json-payload>",
		Short: "Validate and enqueue one job",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			queue, payload := args[0], json.RawMessage(args[1])
			if err := jobs.Validate(queue, payload); err != nil {
				return err
			}
			return withContainer(cmd, containerMode{}, func(ctx context.Context, c *Container) error {
				var opts []jobx.EnqueueOption
				if delay > 0 {
					opts = append(opts, jobx.WithDelay(delay))
				}
				if attempts > 0 {
					opts = append(opts, jobx.WithAttempts(attempts))
				}
				id, err := c.Jobs.Enqueue(ctx, queue, payload, opts...)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&delay, "delay", 0, "Make the job available only after this delay")
	cmd.Flags().IntVar(&attempts, "attempts", 0, "Override the queue's max attempts")
	return cmd
}

func dlqCmd() *cobra.Command {
	var limit int

	list := &cobra.Command{
		Use:   "list <queue>",
		Short: "List the newest dead letters of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withContainer(cmd, containerMode{}, func(ctx context.Context, c *Container) error {
				if c.DeadLetters == nil {
					return fmt.Errorf("dead letters are disabled (DLQ_ENABLED=false)")
				}
				entries, err := c.DeadLetters.List(ctx, args[0], limit)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "FAILED AT\tJOB\tATTEMPTS\tREASON")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", e.FailedAt.Format(time.RFC3339), e.OriginalJobID, e.AttemptsMade, e.Reason)
				}
				return w.Flush()
			})
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum entries to show")

	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect dead letters",
	}
	cmd.AddCommand(list)
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <sessionId>",
		Short: "Issue a token for the event stream of a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			token, err := sessiontoken.NewService(cfg.Broadcast.JWTSecret, ttl).Issue(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

// watchCmd follows a session channel through a cache-sync bridge and
// reports each event and the keys it invalidates.
func watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch <sessionId>",
		Short: "Follow the events of a session and the cache keys they invalidate",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			return withContainer(cmd, containerMode{}, func(ctx context.Context, c *Container) error {
				src := bxredis.NewSource(c.Redis, broadcastx.SessionChannel(sessionID))
				logx.Infof("👀 Watching session %s (Ctrl+C to stop)", sessionID)
				return watchSession(ctx, cmd.OutOrStdout(), sessionID, src)
			})
		},
	}
}

// watchedEvents are printed by watch.
var watchedEvents = []string{
	broadcastx.EventRenderStarted,
	broadcastx.EventRenderProgress,
	broadcastx.EventRenderComplete,
	broadcastx.EventRenderFailed,
	broadcastx.EventDocGenerated,
	broadcastx.EventSessionRoomsUpdated,
	broadcastx.EventSessionPhaseChanged,
}

// watchSession prints each event of src and the keys a cache-sync bridge
// invalidates for it until ctx ends.
func watchSession(ctx context.Context, out io.Writer, sessionID string, src cachesync.Source) error {
	var mu sync.Mutex
	printf := func(format string, args ...any) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	cache := cachesync.NewCache(func(context.Context, string) (any, error) {
		return time.Now(), nil
	}, nil)
	bridge := cachesync.NewBridge(cache, sessionID, cachesync.WithInvalidationHook(func(keys []string) {
		printf("%s invalidated %s\n", time.Now().Format(time.TimeOnly), strings.Join(keys, " "))
	}))
	defer bridge.Close()

	for _, eventType := range watchedEvents {
		bridge.OnEvent(eventType, func(ev broadcastx.Event) {
			printf("%s %s %s\n", time.Now().Format(time.TimeOnly), ev.Type, ev.Payload)
		})
	}

	err := bridge.Run(ctx, src)
	printf("invalidations: %d\n", cache.Stats().Invalidations)
	return err
}
