package dashboard

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"missionboard/shared/cachex"
	"missionboard/shared/influxx"
)

type Summary struct {
	OrgID             uuid.UUID `json:"org_id"`
	ActiveMissions    int64     `json:"active_missions"`
	CompletedMissions int64     `json:"completed_missions"`
	CheckIns          int64     `json:"check_ins"`
	AvgConfidence7d   *float64  `json:"avg_confidence_7d,omitempty"`
}

type SummaryReader struct {
	influx *influxx.Client
	cache  *cachex.Client
}

func NewSummaryReader(influx *influxx.Client, cache *cachex.Client) *SummaryReader {
	return &SummaryReader{influx: influx, cache: cache}
}

func (s *SummaryReader) Summary(ctx context.Context, orgID uuid.UUID) (Summary, error) {
	out := Summary{OrgID: orgID}

	if s.cache != nil {
		prefix := fmt.Sprintf("dash:%s:", orgID.String())
		if n, ok, err := s.cache.GetInt(ctx, prefix+"missions_active"); err == nil && ok {
			out.ActiveMissions = n
		}
		if n, ok, err := s.cache.GetInt(ctx, prefix+"missions_completed"); err == nil && ok {
			out.CompletedMissions = n
		}
		if n, ok, err := s.cache.GetInt(ctx, prefix+"checkins"); err == nil && ok {
			out.CheckIns = n
		}
	}

	if s.influx != nil {
		if avg, ok, err := s.avgConfidence(ctx, orgID, 7*24*time.Hour); err == nil && ok {
			out.AvgConfidence7d = &avg
		}
	}

	return out, nil
}

func (s *SummaryReader) avgConfidence(ctx context.Context, orgID uuid.UUID, window time.Duration) (float64, bool, error) {
	flux := fmt.Sprintf(`
from(bucket: %q)
  |> range(start: -%ds)
  |> filter(fn: (r) => r._measurement == "checkins" and r.org_id == %q and r._field == "confidence")
  |> mean()
`, s.influx.Bucket(), int(window.Seconds()), orgID.String())

	result, err := s.influx.Query(ctx, flux)
	if err != nil {
		return 0, false, err
	}
	defer result.Close()

	for result.Next() {
		if v, ok := result.Record().Value().(float64); ok {
			return v, true, nil
		}
	}
	return 0, false, result.Err()
}
