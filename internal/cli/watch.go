package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nerrad567/netpulse/internal/session"
	"github.com/nerrad567/netpulse/internal/telemetry"
)

func watchCmd(g *globals) *cobra.Command {
	var (
		url      string
		group    string
		capacity int
		duration time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Subscribe to a device group and print telemetry as it arrives",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := g.config()
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("url") {
				url = cfg.Client.URL
			}
			if !cmd.Flags().Changed("group") {
				group = cfg.Client.Group
			}
			if !cmd.Flags().Changed("capacity") {
				capacity = cfg.Client.BufferCapacity
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if duration > 0 {
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}

			return watch(ctx, g, session.Options{
				URL:            url,
				BufferCapacity: capacity,
				RetryDelays:    cfg.GetRetryDelays(),
				Logger:         g.logger(),
			}, group)
		},
	}

	cmd.Flags().StringVar(&url, "url", "", "hub websocket URL (default from config)")
	cmd.Flags().StringVar(&group, "group", "", "device to subscribe to (default from config)")
	cmd.Flags().IntVar(&capacity, "capacity", 0, "samples kept in the local buffer (default from config)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "stop after this long; 0 runs until interrupted")
	return cmd
}

// watch runs a session until ctx ends or the session gives up
// reconnecting, printing each sample and notification, then prints a
// summary of the buffered samples. Giving up is reported as an error.
func watch(ctx context.Context, g *globals, opts session.Options, group string) error {
	s, err := session.New(opts)
	if err != nil {
		return err
	}

	var (
		outMu    sync.Mutex
		received int
	)
	printf := func(format string, args ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(g.stdout, format, args...)
	}

	s.OnSample(func(sample telemetry.Sample) {
		outMu.Lock()
		received++
		outMu.Unlock()
		printf("%s  %-10s cpu=%5.1f%%  mem=%5.1f%%\n",
			sample.At.Format(time.TimeOnly), sample.DeviceID, sample.CPU, sample.Mem)
	})
	s.OnNotification(func(text string) {
		printf("** %s\n", text)
	})
	ended := make(chan struct{})
	var endOnce sync.Once
	s.OnStateChange(func(_, to session.State) {
		printf("-- %s\n", to)
		if to == session.StateDisconnected {
			endOnce.Do(func() { close(ended) })
		}
	})

	if err := s.Start(ctx, group); err != nil {
		return fmt.Errorf("connecting to %s: %w", opts.URL, err)
	}

	var runErr error
	select {
	case <-ctx.Done():
	case <-ended:
		if ctx.Err() == nil {
			runErr = fmt.Errorf("%w: connection to %s lost", session.ErrRetriesExhausted, opts.URL)
		}
	}
	s.Stop()

	samples := s.Samples()
	outMu.Lock()
	total := received
	outMu.Unlock()
	printf("received %d samples, %d buffered (capacity %d)\n", total, len(samples), s.Capacity())
	if len(samples) > 0 {
		latest := samples[0]
		printf("latest %s cpu=%.1f mem=%.1f at %s\n",
			latest.DeviceID, latest.CPU, latest.Mem, latest.At.Format(time.RFC3339))
	}
	return runErr
}
