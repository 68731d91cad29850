package driver

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/youthclub/notification-queue/internal/model"
)

type Processor interface {
	ProcessNext(ctx context.Context) (*model.QueueItem, error)
}

type Options struct {
	// Once stops after a single processed item.
	Once bool
	// Sleep is the pause between items. Negative values are treated as zero.
	Sleep time.Duration
	// MaxItems stops after that many items; zero means unbounded.
	MaxItems int
	// Name prefixes output lines when several drivers share a writer.
	Name string
	// QuietEmpty suppresses the "queue empty" line; Summary.Empty is still set.
	QuietEmpty bool
}

type Summary struct {
	Processed int
	Sent      int
	Failed    int
	// Empty is set when the queue had nothing to claim on the first check.
	Empty bool
}

func (s Summary) Add(o Summary) Summary {
	return Summary{
		Processed: s.Processed + o.Processed,
		Sent:      s.Sent + o.Sent,
		Failed:    s.Failed + o.Failed,
		Empty:     s.Empty && o.Empty,
	}
}

func (s Summary) String() string {
	return fmt.Sprintf("processing finished: %d item(s) processed, %d sent, %d failed", s.Processed, s.Sent, s.Failed)
}

// Driver repeatedly asks a Processor for one item, pacing between items.
type Driver struct {
	proc   Processor
	opts   Options
	out    io.Writer
	logger *slog.Logger
}

func New(proc Processor, opts Options, out io.Writer, logger *slog.Logger) *Driver {
	if opts.Sleep < 0 {
		opts.Sleep = 0
	}
	if opts.MaxItems < 0 {
		opts.MaxItems = 0
	}
	if out == nil {
		out = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Driver{proc: proc, opts: opts, out: out, logger: logger}
}

// Run stops on an empty queue, Once, MaxItems, or ctx cancellation. A
// cancelled ctx interrupts the pause between items but never an item in
// flight. The error is non-nil only for storage failures.
func (d *Driver) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	for ctx.Err() == nil {
		item, err := d.proc.ProcessNext(context.WithoutCancel(ctx))
		if err != nil {
			return sum, errors.Wrap(err, "process next item")
		}
		if item == nil {
			if sum.Processed == 0 {
				sum.Empty = true
				if !d.opts.QuietEmpty {
					d.printf("queue empty")
				}
			}
			break
		}

		sum.Processed++
		if item.Status == model.Sent {
			sum.Sent++
			d.printf("sent to %s (%s)", item.PhoneNumber, item.Category)
		} else {
			sum.Failed++
			d.printf("failed for %s: %s", item.PhoneNumber, item.LastError)
		}

		if d.opts.Once {
			break
		}
		if d.opts.MaxItems > 0 && sum.Processed >= d.opts.MaxItems {
			break
		}
		if !sleep(ctx, d.opts.Sleep) {
			d.logger.Info("driver interrupted", slog.Int("processed", sum.Processed))
			break
		}
	}

	return sum, nil
}

func (d *Driver) printf(format string, args ...any) {
	if d.opts.Name != "" {
		format = "[" + d.opts.Name + "] " + format
	}
	_, _ = fmt.Fprintf(d.out, format+"\n", args...)
}

// sleep reports false when ctx ends before d elapses.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
