package f1

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shaharia-lab/f1mcp/mcp"
)

// Tools builds every tool definition backed by the given service, in the
// order clients see them from tools/list.
func Tools(svc *Service) []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        "get_event_schedule",
			Description: "Get the F1 event schedule for a season",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"year": {"type": "integer", "description": "Season year, defaults to the current year"}
				}
			}`),
			Handler: svc.handleEventSchedule,
		},
		{
			Name:        "get_session",
			Description: "Get metadata for a session of a Grand Prix weekend",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"year": {"type": "integer", "description": "Season year"},
					"gp": {"type": "string", "description": "Grand Prix name or round number"},
					"session": {"type": "string", "description": "Session type (FP1, FP2, FP3, Q, SQ, R, Sprint)"}
				},
				"required": ["year", "gp", "session"]
			}`),
			Handler: svc.handleSession,
		},
		{
			Name:        "get_session_results",
			Description: "Get the classified results of a session",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"year": {"type": "integer", "description": "Season year"},
					"gp": {"type": "string", "description": "Grand Prix name or round number"},
					"session": {"type": "string", "description": "Session type (FP1, FP2, FP3, Q, SQ, R, Sprint)"}
				},
				"required": ["year", "gp", "session"]
			}`),
			Handler: svc.handleSessionResults,
		},
		{
			Name:        "get_lap_times",
			Description: "Get lap times for a session, optionally for one driver",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"year": {"type": "integer", "description": "Season year"},
					"gp": {"type": "string", "description": "Grand Prix name or round number"},
					"session": {"type": "string", "description": "Session type"},
					"driver": {"type": "string", "description": "Driver identifier (optional)"}
				},
				"required": ["year", "gp", "session"]
			}`),
			Handler: svc.handleLapTimes,
		},
		{
			Name:        "get_telemetry",
			Description: "Get car telemetry for a driver, optionally for one lap",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"year": {"type": "integer", "description": "Season year"},
					"gp": {"type": "string", "description": "Grand Prix name or round number"},
					"session": {"type": "string", "description": "Session type"},
					"driver": {"type": "string", "description": "Driver identifier"},
					"lap": {"type": "integer", "description": "Lap number (optional)"}
				},
				"required": ["year", "gp", "session", "driver"]
			}`),
			Handler: svc.handleTelemetry,
		},
		{
			Name:        "get_weather_data",
			Description: "Get weather readings recorded during a session",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"year": {"type": "integer", "description": "Season year"},
					"gp": {"type": "string", "description": "Grand Prix name or round number"},
					"session": {"type": "string", "description": "Session type"}
				},
				"required": ["year", "gp", "session"]
			}`),
			Handler: svc.handleWeather,
		},
		{
			Name:        "get_track_status",
			Description: "Get track status changes (flags, safety cars) for a session",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"year": {"type": "integer", "description": "Season year"},
					"gp": {"type": "string", "description": "Grand Prix name or round number"},
					"session": {"type": "string", "description": "Session type"}
				},
				"required": ["year", "gp", "session"]
			}`),
			Handler: svc.handleTrackStatus,
		},
		{
			Name:        "get_driver_info",
			Description: "Get information about a driver",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"year": {"type": "integer", "description": "Season year"},
					"driver": {"type": "string", "description": "Driver identifier, code, number, or name"}
				},
				"required": ["year", "driver"]
			}`),
			Handler: svc.handleDriverInfo,
		},
		{
			Name:        "get_team_info",
			Description: "Get information about a team",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"year": {"type": "integer", "description": "Season year"},
					"team": {"type": "string", "description": "Team name"}
				},
				"required": ["year", "team"]
			}`),
			Handler: svc.handleTeamInfo,
		},
		{
			Name:        "get_driver_standings",
			Description: "Get the drivers' championship standings",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"year": {"type": "integer", "description": "Season year"},
					"round": {"type": "integer", "description": "Round number (optional)"}
				},
				"required": ["year"]
			}`),
			Handler: svc.handleDriverStandings,
		},
		{
			Name:        "get_constructor_standings",
			Description: "Get the constructors' championship standings",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"year": {"type": "integer", "description": "Season year"},
					"round": {"type": "integer", "description": "Round number (optional)"}
				},
				"required": ["year"]
			}`),
			Handler: svc.handleConstructorStandings,
		},
		{
			Name:        "get_historical_results",
			Description: "Get historical race results for a season",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"year": {"type": "integer", "description": "Season year"},
					"gp": {"type": "string", "description": "Grand Prix name or round number (optional)"}
				},
				"required": ["year"]
			}`),
			Handler: svc.handleHistoricalResults,
		},
		{
			Name:        "get_lap_records",
			Description: "Get the fastest recorded race laps for a circuit",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"circuit": {"type": "string", "description": "Circuit identifier"}
				},
				"required": ["circuit"]
			}`),
			Handler: svc.handleLapRecords,
		},
		{
			Name:        "calculate_driver_statistics",
			Description: "Calculate aggregate statistics for a driver",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"year": {"type": "integer", "description": "Season year"},
					"driver": {"type": "string", "description": "Driver identifier"},
					"gp": {"type": "string", "description": "Grand Prix name or round number (optional)"}
				},
				"required": ["year", "driver"]
			}`),
			Handler: svc.handleDriverStatistics,
		},
		{
			Name:        "compare_drivers",
			Description: "Compare the performance of two drivers",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"year": {"type": "integer", "description": "Season year"},
					"driver1": {"type": "string", "description": "First driver identifier"},
					"driver2": {"type": "string", "description": "Second driver identifier"},
					"gp": {"type": "string", "description": "Grand Prix name or round number (optional)"}
				},
				"required": ["year", "driver1", "driver2"]
			}`),
			Handler: svc.handleCompareDrivers,
		},
		{
			Name:        "configure_cache",
			Description: "Clear cached data and adjust the default cache TTL",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {
					"clear_cache": {"type": "boolean", "description": "Clear cached entries"},
					"key_prefix": {"type": "string", "description": "Only clear entries under this key prefix"},
					"default_ttl_seconds": {"type": "integer", "description": "New default TTL in seconds for current-season data"}
				}
			}`),
			Handler: svc.handleConfigureCache,
		},
		{
			Name:        "get_cache_info",
			Description: "Get cache entry and hit/miss statistics",
			InputSchema: json.RawMessage(`{
				"type": "object",
				"properties": {}
			}`),
			Handler: svc.handleCacheInfo,
		},
	}
}

// Register adds every tool and resource to the server.
func Register(server *mcp.BaseServer, svc *Service) error {
	if err := server.AddTools(Tools(svc)...); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}
	if err := server.AddResources(Resources(svc)...); err != nil {
		return fmt.Errorf("failed to register resources: %w", err)
	}
	return nil
}

type sessionArgs struct {
	Year    int    `json:"year"`
	GP      string `json:"gp"`
	Session string `json:"session"`
	Driver  string `json:"driver"`
	Lap     int    `json:"lap"`
}

func (s *Service) handleEventSchedule(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args struct {
		Year int `json:"year"`
	}
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}
	if args.Year <= 0 {
		args.Year = s.now().Year()
	}

	payload, err := s.EventSchedule(ctx, args.Year)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(map[string]interface{}{
		"year":     args.Year,
		"schedule": payload,
	})
}

func (s *Service) handleSession(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args sessionArgs
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	payload, err := s.SessionData(ctx, args.Year, args.GP, args.Session)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(map[string]interface{}{
		"year":    args.Year,
		"gp":      args.GP,
		"session": args.Session,
		"data":    payload,
	})
}

func (s *Service) handleSessionResults(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args sessionArgs
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	payload, err := s.SessionResults(ctx, args.Year, args.GP, args.Session)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(map[string]interface{}{
		"session": args.Session,
		"results": payload,
	})
}

func (s *Service) handleLapTimes(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args sessionArgs
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	payload, err := s.LapTimes(ctx, args.Year, args.GP, args.Session, args.Driver)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(map[string]interface{}{
		"session":   args.Session,
		"driver":    args.Driver,
		"lap_times": payload,
	})
}

func (s *Service) handleTelemetry(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args sessionArgs
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	payload, err := s.Telemetry(ctx, args.Year, args.GP, args.Session, args.Driver, args.Lap)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(map[string]interface{}{
		"driver":    args.Driver,
		"lap":       args.Lap,
		"telemetry": payload,
	})
}

func (s *Service) handleWeather(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args sessionArgs
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	payload, err := s.Weather(ctx, args.Year, args.GP, args.Session)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(map[string]interface{}{
		"session":      args.Session,
		"weather_data": payload,
	})
}

func (s *Service) handleTrackStatus(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args sessionArgs
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	payload, err := s.TrackStatus(ctx, args.Year, args.GP, args.Session)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(map[string]interface{}{
		"session":      args.Session,
		"track_status": payload,
	})
}

func (s *Service) handleDriverInfo(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args struct {
		Year   int    `json:"year"`
		Driver string `json:"driver"`
	}
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	payload, err := s.DriverInfo(ctx, args.Year)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	driver, err := findDriver(payload, args.Driver)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(map[string]interface{}{
		"year":        args.Year,
		"driver_info": driver,
	})
}

func (s *Service) handleTeamInfo(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args struct {
		Year int    `json:"year"`
		Team string `json:"team"`
	}
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	payload, err := s.TeamInfo(ctx, args.Year)
	if err != nil {
		return mcp.CallToolResult{}, err
	}

	teams, err := findConstructors(payload, args.Team)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(map[string]interface{}{
		"year":      args.Year,
		"team_name": args.Team,
		"teams":     teams,
	})
}

func (s *Service) handleDriverStandings(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args struct {
		Year  int `json:"year"`
		Round int `json:"round"`
	}
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	payload, err := s.DriverStandings(ctx, args.Year, roundString(args.Round))
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(map[string]interface{}{
		"year":      args.Year,
		"round":     args.Round,
		"standings": payload,
	})
}

func (s *Service) handleConstructorStandings(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args struct {
		Year  int `json:"year"`
		Round int `json:"round"`
	}
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	payload, err := s.ConstructorStandings(ctx, args.Year, roundString(args.Round))
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(map[string]interface{}{
		"year":      args.Year,
		"round":     args.Round,
		"standings": payload,
	})
}

func (s *Service) handleHistoricalResults(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args struct {
		Year int    `json:"year"`
		GP   string `json:"gp"`
	}
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	payload, err := s.HistoricalResults(ctx, args.Year, args.GP)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(map[string]interface{}{
		"year":    args.Year,
		"gp":      args.GP,
		"results": payload,
	})
}

func (s *Service) handleLapRecords(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args struct {
		Circuit string `json:"circuit"`
	}
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	payload, err := s.LapRecords(ctx, args.Circuit)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(map[string]interface{}{
		"circuit": args.Circuit,
		"records": payload,
	})
}

func (s *Service) handleDriverStatistics(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args struct {
		Year   int    `json:"year"`
		Driver string `json:"driver"`
		GP     string `json:"gp"`
	}
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	stats, err := s.DriverStatistics(ctx, args.Year, args.Driver, args.GP)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(stats)
}

func (s *Service) handleCompareDrivers(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args struct {
		Year    int    `json:"year"`
		Driver1 string `json:"driver1"`
		Driver2 string `json:"driver2"`
		GP      string `json:"gp"`
	}
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	comparison, err := s.CompareDrivers(ctx, args.Year, args.Driver1, args.Driver2, args.GP)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(comparison)
}

func (s *Service) handleConfigureCache(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	var args struct {
		ClearCache        bool   `json:"clear_cache"`
		KeyPrefix         string `json:"key_prefix"`
		DefaultTTLSeconds int    `json:"default_ttl_seconds"`
	}
	if err := decodeArgs(params.Arguments, &args); err != nil {
		return mcp.CallToolResult{}, err
	}

	control, err := s.ConfigureCache(ctx, args.ClearCache, args.KeyPrefix,
		time.Duration(args.DefaultTTLSeconds)*time.Second)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(control)
}

func (s *Service) handleCacheInfo(ctx context.Context, params mcp.CallToolParams) (mcp.CallToolResult, error) {
	stats, err := s.CacheInfo(ctx)
	if err != nil {
		return mcp.CallToolResult{}, err
	}
	return textResult(stats)
}

func decodeArgs(arguments json.RawMessage, v interface{}) error {
	if len(arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(arguments, v); err != nil {
		return fmt.Errorf("failed to decode arguments: %w", err)
	}
	return nil
}

func textResult(v interface{}) (mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.CallToolResult{}, fmt.Errorf("failed to marshal result: %w", err)
	}

	return mcp.CallToolResult{
		Content: []mcp.ToolResultContent{{
			Type: "text",
			Text: string(data),
		}},
	}, nil
}

func roundString(round int) string {
	if round <= 0 {
		return ""
	}
	return fmt.Sprintf("%d", round)
}

type ergastDriversPayload struct {
	MRData struct {
		DriverTable struct {
			Drivers []json.RawMessage `json:"Drivers"`
		} `json:"DriverTable"`
	} `json:"MRData"`
}

type ergastDriver struct {
	DriverID        string `json:"driverId"`
	Code            string `json:"code"`
	PermanentNumber string `json:"permanentNumber"`
	GivenName       string `json:"givenName"`
	FamilyName      string `json:"familyName"`
}

// findDriver matches a driver by id, code, permanent number, or name.
func findDriver(payload json.RawMessage, identifier string) (json.RawMessage, error) {
	var parsed ergastDriversPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse driver roster: %w", err)
	}

	for _, raw := range parsed.MRData.DriverTable.Drivers {
		var driver ergastDriver
		if err := json.Unmarshal(raw, &driver); err != nil {
			continue
		}

		fullName := driver.GivenName + " " + driver.FamilyName
		if strings.EqualFold(driver.DriverID, identifier) ||
			strings.EqualFold(driver.Code, identifier) ||
			driver.PermanentNumber == identifier ||
			strings.EqualFold(fullName, identifier) ||
			strings.EqualFold(driver.FamilyName, identifier) {
			return raw, nil
		}
	}

	return nil, fmt.Errorf("driver %s not found", identifier)
}

type ergastConstructorsPayload struct {
	MRData struct {
		ConstructorTable struct {
			Constructors []json.RawMessage `json:"Constructors"`
		} `json:"ConstructorTable"`
	} `json:"MRData"`
}

// findConstructors matches constructors whose name contains the given team
// string, case-insensitively.
func findConstructors(payload json.RawMessage, team string) ([]json.RawMessage, error) {
	var parsed ergastConstructorsPayload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse constructor roster: %w", err)
	}

	var matches []json.RawMessage
	for _, raw := range parsed.MRData.ConstructorTable.Constructors {
		var constructor struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &constructor); err != nil {
			continue
		}
		if strings.Contains(strings.ToLower(constructor.Name), strings.ToLower(team)) {
			matches = append(matches, raw)
		}
	}

	if len(matches) == 0 {
		return nil, fmt.Errorf("team %s not found", team)
	}
	return matches, nil
}
