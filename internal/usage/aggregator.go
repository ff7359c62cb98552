package usage

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/vnmchuo/usage-meter/internal/message"
	"github.com/vnmchuo/usage-meter/internal/report"
)

// Record is one priced message in the usage report. ReportName is set only
// when the source message referenced a report that resolved.
type Record struct {
	MessageID   int64   `json:"message_id"`
	Timestamp   string  `json:"timestamp"`
	ReportName  string  `json:"report_name,omitempty"`
	CreditsUsed float64 `json:"credits_used"`
}

// Aggregator turns a billing period's raw messages into usage records. The
// report cache is shared across requests; everything else is per-call.
type Aggregator struct {
	cache    *report.Cache
	logger   *slog.Logger
	failFast bool
	workers  int
}

type Option func(*Aggregator)

// WithFailFast makes the first per-message failure abort the whole batch
// instead of being skipped.
func WithFailFast() Option {
	return func(a *Aggregator) { a.failFast = true }
}

func WithWorkers(n int) Option {
	return func(a *Aggregator) {
		if n > 0 {
			a.workers = n
		}
	}
}

func NewAggregator(cache *report.Cache, logger *slog.Logger, opts ...Option) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Aggregator{
		cache:   cache,
		logger:  logger,
		workers: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BuildUsage prices every record in fetch order. Malformed records and
// unresolvable report references are logged and excluded; a report-lookup
// failure aborts the batch. All referenced reports are resolved in a single
// batched cache call before any message is priced.
func (a *Aggregator) BuildUsage(ctx context.Context, records []message.Record) ([]Record, error) {
	msgs := make([]*message.Message, len(records))
	for i, rec := range records {
		msg, err := rec.Validate()
		if err != nil {
			if a.failFast {
				return nil, err
			}
			a.logger.Warn("skipping malformed message", "message_id", rec.MessageID, "error", err)
			continue
		}
		msgs[i] = &msg
	}

	var reportIDs []int64
	seen := make(map[int64]struct{})
	for _, msg := range msgs {
		if msg == nil || msg.Kind() != message.KindReport {
			continue
		}
		if _, ok := seen[msg.ReportID()]; ok {
			continue
		}
		seen[msg.ReportID()] = struct{}{}
		reportIDs = append(reportIDs, msg.ReportID())
	}

	resolved := map[int64]report.Report{}
	if len(reportIDs) > 0 {
		var err error
		resolved, err = a.cache.ResolveMany(ctx, reportIDs)
		if err != nil {
			return nil, fmt.Errorf("building usage: %w", err)
		}
	}

	// Pricing is pure, so messages are scored in parallel into indexed
	// slots and order falls out of the slice.
	results := make([]*Record, len(records))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for i, msg := range msgs {
		if msg == nil {
			continue
		}
		g.Go(func() error {
			var rep *report.Report
			var name string
			if msg.Kind() == message.KindReport {
				if r, ok := resolved[msg.ReportID()]; ok {
					rep = &r
					name = r.Name
				}
			}

			credits, err := Compute(*msg, rep)
			if err != nil {
				if a.failFast {
					return err
				}
				a.logger.Warn("skipping unpriceable message", "message_id", msg.ID(), "error", err)
				return nil
			}

			results[i] = &Record{
				MessageID:   msg.ID(),
				Timestamp:   msg.Timestamp(),
				ReportName:  name,
				CreditsUsed: credits,
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	usage := make([]Record, 0, len(records))
	for _, r := range results {
		if r != nil {
			usage = append(usage, *r)
		}
	}
	return usage, nil
}
