// Package f1 supplies the Formula-1 domain layer: the upstream provider
// adapter, the cached data service, and the tool/resource definitions
// registered with the protocol server.
package f1

import "fmt"

// QueryKind selects which upstream dataset a Query addresses.
type QueryKind string

const (
	QuerySchedule             QueryKind = "schedule"
	QueryRaceResults          QueryKind = "race_results"
	QueryDriverStandings      QueryKind = "driver_standings"
	QueryConstructorStandings QueryKind = "constructor_standings"
	QueryDrivers              QueryKind = "drivers"
	QueryConstructors         QueryKind = "constructors"
	QueryDriverResults        QueryKind = "driver_results"
	QueryCircuit              QueryKind = "circuit"
	QueryLaps                 QueryKind = "laps"
	QuerySessions             QueryKind = "sessions"
	QueryCarTelemetry         QueryKind = "car_data"
	QueryWeather              QueryKind = "weather"
	QueryRaceControl          QueryKind = "race_control"
)

// Query describes one upstream fetch. Zero fields are omitted from the
// upstream request and the cache key, so two queries differing in any
// parameter never share an entry.
type Query struct {
	Kind    QueryKind
	Season  int
	Round   string
	Session string
	Driver  string
	Circuit string
	Lap     int
}

// CacheKey deterministically encodes every parameter that affects the
// query result.
func (q Query) CacheKey() string {
	return fmt.Sprintf("f1:%s:%d:%s:%s:%s:%s:%d",
		q.Kind, q.Season, q.Round, q.Session, q.Driver, q.Circuit, q.Lap)
}
