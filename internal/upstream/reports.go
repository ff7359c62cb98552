package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vnmchuo/usage-meter/internal/report"
)

// reportFetchConcurrency bounds parallel per-id lookups in one batch.
const reportFetchConcurrency = 8

// ReportClient resolves report ids against the report service. The service
// only exposes per-id GETs, so a batch is a bounded fan-out of those.
type ReportClient struct {
	client
	baseURL string
	logger  *slog.Logger
}

func NewReportClient(baseURL string, timeout time.Duration, logger *slog.Logger) *ReportClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReportClient{
		client:  newClient(timeout, 4*timeout),
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// FetchBatch resolves the given ids. Ids the service does not know (404) are
// absent from the result and do not fail the batch; any other failure wraps
// ErrUnavailable and aborts it.
func (c *ReportClient) FetchBatch(ctx context.Context, ids []int64) (map[int64]report.Report, error) {
	out := make(map[int64]report.Report, len(ids))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reportFetchConcurrency)

	for _, id := range ids {
		g.Go(func() error {
			var rep report.Report
			url := c.baseURL + "/" + strconv.FormatInt(id, 10)
			if err := c.getJSON(ctx, url, &rep); err != nil {
				if errors.Is(err, errNotFound) {
					c.logger.Warn("report not found upstream", "report_id", id)
					return nil
				}
				return fmt.Errorf("%w: fetching report %d: %v", ErrUnavailable, id, err)
			}
			if rep.ID == 0 {
				rep.ID = id
			}

			mu.Lock()
			out[id] = rep
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}
