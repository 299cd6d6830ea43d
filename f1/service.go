package f1

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shaharia-lab/f1mcp/cache"
	"github.com/shaharia-lab/f1mcp/fetch"
	"github.com/shaharia-lab/f1mcp/observability"
)

const (
	defaultTTL    = 15 * time.Minute
	historicalTTL = 24 * time.Hour
)

// Service answers domain queries by reading through the cache; on a miss the
// backoff client fetches from the provider. It owns no protocol concerns.
type Service struct {
	provider Provider
	retrier  *fetch.Client
	store    cache.Store
	logger   observability.Logger

	// Runtime-adjustable via the configure_cache tool, stored as nanoseconds.
	currentTTL atomic.Int64
	now        func() time.Time
}

// NewService creates a Service. A non-positive ttl falls back to the default.
func NewService(provider Provider, retrier *fetch.Client, store cache.Store, logger observability.Logger, ttl time.Duration) *Service {
	if logger == nil {
		logger = observability.NewNullLogger()
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}

	s := &Service{
		provider: provider,
		retrier:  retrier,
		store:    store,
		logger:   logger,
		now:      time.Now,
	}
	s.currentTTL.Store(int64(ttl))
	return s
}

// fetchCached reads one query through the cache; misses go through the
// backoff client to the provider.
func (s *Service) fetchCached(ctx context.Context, q Query, ttl time.Duration) (json.RawMessage, error) {
	return s.store.GetOrCompute(ctx, q.CacheKey(), ttl, func(ctx context.Context) (json.RawMessage, error) {
		return s.retrier.Call(ctx, func(ctx context.Context) (json.RawMessage, error) {
			return s.provider.Fetch(ctx, q)
		})
	})
}

// ttlFor picks the entry lifetime for a season: finished seasons are
// immutable and cache much longer than the current one.
func (s *Service) ttlFor(season int) time.Duration {
	if season > 0 && season < s.now().Year() {
		return historicalTTL
	}
	return time.Duration(s.currentTTL.Load())
}

// EventSchedule returns the event calendar for a season.
func (s *Service) EventSchedule(ctx context.Context, season int) (json.RawMessage, error) {
	if season <= 0 {
		season = s.now().Year()
	}
	return s.fetchCached(ctx, Query{Kind: QuerySchedule, Season: season}, s.ttlFor(season))
}

// SessionData returns metadata for one session of a Grand Prix weekend.
func (s *Service) SessionData(ctx context.Context, season int, gp, session string) (json.RawMessage, error) {
	q := Query{Kind: QuerySessions, Season: season, Round: gp, Session: session}
	return s.fetchCached(ctx, q, s.ttlFor(season))
}

// SessionResults returns the classified results of one session.
func (s *Service) SessionResults(ctx context.Context, season int, gp, session string) (json.RawMessage, error) {
	q := Query{Kind: QueryRaceResults, Season: season, Round: gp, Session: session}
	return s.fetchCached(ctx, q, s.ttlFor(season))
}

// LapTimes returns lap times for a session, optionally for one driver.
func (s *Service) LapTimes(ctx context.Context, season int, gp, session, driver string) (json.RawMessage, error) {
	q := Query{Kind: QueryLaps, Season: season, Round: gp, Session: session, Driver: driver}
	return s.fetchCached(ctx, q, s.ttlFor(season))
}

// Telemetry returns car telemetry channels for a driver, optionally for one lap.
func (s *Service) Telemetry(ctx context.Context, season int, gp, session, driver string, lap int) (json.RawMessage, error) {
	q := Query{Kind: QueryCarTelemetry, Season: season, Round: gp, Session: session, Driver: driver, Lap: lap}
	return s.fetchCached(ctx, q, s.ttlFor(season))
}

// Weather returns the weather readings recorded during a session.
func (s *Service) Weather(ctx context.Context, season int, gp, session string) (json.RawMessage, error) {
	q := Query{Kind: QueryWeather, Season: season, Round: gp, Session: session}
	return s.fetchCached(ctx, q, s.ttlFor(season))
}

// TrackStatus returns race-control events (flags, safety cars) for a session.
func (s *Service) TrackStatus(ctx context.Context, season int, gp, session string) (json.RawMessage, error) {
	q := Query{Kind: QueryRaceControl, Season: season, Round: gp, Session: session}
	return s.fetchCached(ctx, q, s.ttlFor(season))
}

// DriverInfo returns the driver roster of a season; the tool layer filters
// by driver identifier.
func (s *Service) DriverInfo(ctx context.Context, season int) (json.RawMessage, error) {
	return s.fetchCached(ctx, Query{Kind: QueryDrivers, Season: season}, s.ttlFor(season))
}

// TeamInfo returns the constructor roster of a season; the tool layer
// filters by team name.
func (s *Service) TeamInfo(ctx context.Context, season int) (json.RawMessage, error) {
	return s.fetchCached(ctx, Query{Kind: QueryConstructors, Season: season}, s.ttlFor(season))
}

// DriverStandings returns the drivers' championship table, optionally as of
// a given round.
func (s *Service) DriverStandings(ctx context.Context, season int, round string) (json.RawMessage, error) {
	if season <= 0 {
		season = s.now().Year()
	}
	q := Query{Kind: QueryDriverStandings, Season: season, Round: round}
	return s.fetchCached(ctx, q, s.ttlFor(season))
}

// ConstructorStandings returns the constructors' championship table,
// optionally as of a given round.
func (s *Service) ConstructorStandings(ctx context.Context, season int, round string) (json.RawMessage, error) {
	if season <= 0 {
		season = s.now().Year()
	}
	q := Query{Kind: QueryConstructorStandings, Season: season, Round: round}
	return s.fetchCached(ctx, q, s.ttlFor(season))
}

// HistoricalResults returns race results for a season, optionally narrowed
// to one Grand Prix.
func (s *Service) HistoricalResults(ctx context.Context, season int, gp string) (json.RawMessage, error) {
	q := Query{Kind: QueryRaceResults, Season: season, Round: gp}
	return s.fetchCached(ctx, q, s.ttlFor(season))
}

// LapRecords returns the fastest recorded race laps for a circuit.
func (s *Service) LapRecords(ctx context.Context, circuit string) (json.RawMessage, error) {
	q := Query{Kind: QueryCircuit, Circuit: circuit}
	return s.fetchCached(ctx, q, historicalTTL)
}

// DriverStats aggregates a driver's performance, either over one race
// (lap-level statistics) or over a whole season (result-level statistics).
type DriverStats struct {
	Driver      string  `json:"driver"`
	Season      int     `json:"season"`
	Round       string  `json:"round,omitempty"`
	TotalLaps   int     `json:"totalLaps"`
	BestLapTime string  `json:"bestLapTime,omitempty"`
	MeanLapTime string  `json:"meanLapTime,omitempty"`
	Races       int     `json:"races,omitempty"`
	Wins        int     `json:"wins"`
	Podiums     int     `json:"podiums"`
	Points      float64 `json:"points"`

	meanLap time.Duration
}

// DriverComparison is the pairwise result of comparing two drivers.
type DriverComparison struct {
	Season        int         `json:"season"`
	Round         string      `json:"round,omitempty"`
	Driver1       DriverStats `json:"driver1"`
	Driver2       DriverStats `json:"driver2"`
	MeanLapDelta  string      `json:"meanLapDelta,omitempty"`
	TotalLapDelta int         `json:"totalLapDelta"`
	PointsDelta   float64     `json:"pointsDelta"`
}

// DriverStatistics computes aggregate statistics for one driver. With a
// round it parses the race's lap data; without one it aggregates the
// driver's season results.
func (s *Service) DriverStatistics(ctx context.Context, season int, driver, round string) (DriverStats, error) {
	stats := DriverStats{Driver: driver, Season: season, Round: round}

	if round != "" {
		payload, err := s.LapTimes(ctx, season, round, "", driver)
		if err != nil {
			return DriverStats{}, err
		}

		laps, err := parseLapTimings(payload, driver)
		if err != nil {
			return DriverStats{}, err
		}
		if len(laps) == 0 {
			return DriverStats{}, fmt.Errorf("no lap data found for driver %s", driver)
		}

		var total time.Duration
		best := laps[0]
		for _, lap := range laps {
			total += lap
			if lap < best {
				best = lap
			}
		}
		mean := total / time.Duration(len(laps))

		stats.TotalLaps = len(laps)
		stats.BestLapTime = formatLapTime(best)
		stats.MeanLapTime = formatLapTime(mean)
		stats.meanLap = mean
		return stats, nil
	}

	payload, err := s.fetchCached(ctx,
		Query{Kind: QueryDriverResults, Season: season, Driver: driver}, s.ttlFor(season))
	if err != nil {
		return DriverStats{}, err
	}

	results, err := parseDriverResults(payload)
	if err != nil {
		return DriverStats{}, err
	}
	if len(results) == 0 {
		return DriverStats{}, fmt.Errorf("no results found for driver %s in season %d", driver, season)
	}

	for _, r := range results {
		stats.Races++
		stats.Points += r.points
		if r.position == 1 {
			stats.Wins++
		}
		if r.position >= 1 && r.position <= 3 {
			stats.Podiums++
		}
		stats.TotalLaps += r.laps
	}
	return stats, nil
}

// CompareDrivers computes statistics for two drivers and their deltas.
func (s *Service) CompareDrivers(ctx context.Context, season int, driver1, driver2, round string) (DriverComparison, error) {
	stats1, err := s.DriverStatistics(ctx, season, driver1, round)
	if err != nil {
		return DriverComparison{}, fmt.Errorf("statistics for %s: %w", driver1, err)
	}
	stats2, err := s.DriverStatistics(ctx, season, driver2, round)
	if err != nil {
		return DriverComparison{}, fmt.Errorf("statistics for %s: %w", driver2, err)
	}

	comparison := DriverComparison{
		Season:        season,
		Round:         round,
		Driver1:       stats1,
		Driver2:       stats2,
		TotalLapDelta: stats1.TotalLaps - stats2.TotalLaps,
		PointsDelta:   stats1.Points - stats2.Points,
	}

	if stats1.meanLap > 0 && stats2.meanLap > 0 {
		delta := stats1.meanLap - stats2.meanLap
		if delta < 0 {
			delta = -delta
		}
		comparison.MeanLapDelta = formatLapTime(delta)
	}

	return comparison, nil
}

// CacheControl describes the outcome of a configure_cache call.
type CacheControl struct {
	Cleared    int64  `json:"clearedEntries"`
	DefaultTTL string `json:"defaultTtl"`
}

// ConfigureCache optionally clears entries under prefix and adjusts the
// default TTL for current-season data.
func (s *Service) ConfigureCache(ctx context.Context, clear bool, prefix string, ttl time.Duration) (CacheControl, error) {
	var cleared int64
	if clear {
		n, err := s.store.Invalidate(ctx, prefix)
		if err != nil {
			return CacheControl{}, err
		}
		cleared = n
	}

	if ttl > 0 {
		s.currentTTL.Store(int64(ttl))
		s.logger.WithFields(map[string]interface{}{
			"ttl": ttl.String(),
		}).Info("Default cache TTL updated")
	}

	return CacheControl{
		Cleared:    cleared,
		DefaultTTL: time.Duration(s.currentTTL.Load()).String(),
	}, nil
}

// CacheInfo returns the cache store's live statistics.
func (s *Service) CacheInfo(ctx context.Context) (cache.Stats, error) {
	return s.store.Stats(ctx)
}

// Ergast payload fragments needed for the derived statistics.

type ergastLapsPayload struct {
	MRData struct {
		RaceTable struct {
			Races []struct {
				Laps []struct {
					Number  string `json:"number"`
					Timings []struct {
						DriverID string `json:"driverId"`
						Time     string `json:"time"`
					} `json:"Timings"`
				} `json:"Laps"`
			} `json:"Races"`
		} `json:"RaceTable"`
	} `json:"MRData"`
}

type ergastResultsPayload struct {
	MRData struct {
		RaceTable struct {
			Races []struct {
				Results []struct {
					Position string `json:"position"`
					Points   string `json:"points"`
					Laps     string `json:"laps"`
				} `json:"Results"`
			} `json:"Races"`
		} `json:"RaceTable"`
	} `json:"MRData"`
}

type driverResult struct {
	position int
	points   float64
	laps     int
}

func parseLapTimings(payload json.RawMessage, driver string) ([]time.Duration, error) {
	var parsed ergastLapsPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse lap data: %w", err)
	}

	var laps []time.Duration
	for _, race := range parsed.MRData.RaceTable.Races {
		for _, lap := range race.Laps {
			for _, timing := range lap.Timings {
				if driver != "" && !strings.EqualFold(timing.DriverID, driver) {
					continue
				}
				d, err := parseLapTime(timing.Time)
				if err != nil {
					continue
				}
				laps = append(laps, d)
			}
		}
	}
	return laps, nil
}

func parseDriverResults(payload json.RawMessage) ([]driverResult, error) {
	var parsed ergastResultsPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse results data: %w", err)
	}

	var results []driverResult
	for _, race := range parsed.MRData.RaceTable.Races {
		for _, r := range race.Results {
			position, _ := strconv.Atoi(r.Position)
			points, _ := strconv.ParseFloat(r.Points, 64)
			laps, _ := strconv.Atoi(r.Laps)
			results = append(results, driverResult{position: position, points: points, laps: laps})
		}
	}
	return results, nil
}

// parseLapTime parses Ergast timing strings such as "1:32.402" or "58.109".
func parseLapTime(value string) (time.Duration, error) {
	if value == "" {
		return 0, fmt.Errorf("empty lap time")
	}

	var minutes int
	seconds := value
	if idx := strings.Index(value, ":"); idx >= 0 {
		m, err := strconv.Atoi(value[:idx])
		if err != nil {
			return 0, fmt.Errorf("malformed lap time %q", value)
		}
		minutes = m
		seconds = value[idx+1:]
	}

	secs, err := strconv.ParseFloat(seconds, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed lap time %q", value)
	}

	return time.Duration(minutes)*time.Minute + time.Duration(secs*float64(time.Second)), nil
}

// formatLapTime renders a duration as "m:ss.mmm", the timing convention of
// the upstream data.
func formatLapTime(d time.Duration) string {
	minutes := int(d / time.Minute)
	remainder := d - time.Duration(minutes)*time.Minute
	return fmt.Sprintf("%d:%06.3f", minutes, remainder.Seconds())
}
