package f1

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/f1mcp/cache"
	"github.com/shaharia-lab/f1mcp/fetch"
	"github.com/shaharia-lab/f1mcp/mcp"
)

const driversFixture = `{
	"MRData": {
		"DriverTable": {
			"Drivers": [
				{"driverId": "leclerc", "code": "LEC", "permanentNumber": "16", "givenName": "Charles", "familyName": "Leclerc"},
				{"driverId": "max_verstappen", "code": "VER", "permanentNumber": "1", "givenName": "Max", "familyName": "Verstappen"}
			]
		}
	}
}`

const constructorsFixture = `{
	"MRData": {
		"ConstructorTable": {
			"Constructors": [
				{"constructorId": "ferrari", "name": "Ferrari"},
				{"constructorId": "red_bull", "name": "Red Bull"},
				{"constructorId": "rb", "name": "RB F1 Team"}
			]
		}
	}
}`

func TestRegisterExposesEveryToolAndResource(t *testing.T) {
	svc := newTestService(t, &fakeProvider{})
	server, err := mcp.NewBaseServer()
	require.NoError(t, err)

	require.NoError(t, Register(server, svc))

	wantTools := []string{
		"get_event_schedule",
		"get_session",
		"get_session_results",
		"get_lap_times",
		"get_telemetry",
		"get_weather_data",
		"get_track_status",
		"get_driver_info",
		"get_team_info",
		"get_driver_standings",
		"get_constructor_standings",
		"get_historical_results",
		"get_lap_records",
		"calculate_driver_statistics",
		"compare_drivers",
		"configure_cache",
		"get_cache_info",
	}

	tools := Tools(svc)
	require.Len(t, tools, len(wantTools))
	for i, want := range wantTools {
		assert.Equal(t, want, tools[i].Name)
	}

	wantResources := []string{
		"f1://schedule/current",
		"f1://standings/drivers",
		"f1://standings/constructors",
	}
	resources := Resources(svc)
	require.Len(t, resources, len(wantResources))
	for i, want := range wantResources {
		assert.Equal(t, want, resources[i].URI)
		assert.Equal(t, "application/json", resources[i].MimeType)
	}
}

func TestToolSchemasRequireDeclaredFields(t *testing.T) {
	svc := newTestService(t, &fakeProvider{})
	tm := mcp.NewToolManager()
	require.NoError(t, tm.RegisterTools(Tools(svc)...))

	// Calling get_session without its required fields must fail validation
	// before the handler runs.
	_, err := tm.CallTool(context.Background(), mcp.CallToolParams{
		Name:      "get_session",
		Arguments: json.RawMessage(`{"year": 2024}`),
	})

	var validationErr *mcp.ValidationError
	require.ErrorAs(t, err, &validationErr)
}

func TestHandleEventScheduleWrapsResultAsText(t *testing.T) {
	provider := &fakeProvider{payloads: map[QueryKind]json.RawMessage{
		QuerySchedule: json.RawMessage(`{"MRData":{"total":"24"}}`),
	}}
	svc := newTestService(t, provider)

	result, err := svc.handleEventSchedule(context.Background(), mcp.CallToolParams{
		Arguments: json.RawMessage(`{"year": 2024}`),
	})
	require.NoError(t, err)

	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)

	var wrapped struct {
		Year     int             `json:"year"`
		Schedule json.RawMessage `json:"schedule"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &wrapped))
	assert.Equal(t, 2024, wrapped.Year)
	assert.JSONEq(t, `{"MRData":{"total":"24"}}`, string(wrapped.Schedule))
}

func TestHandleDriverInfoFiltersRoster(t *testing.T) {
	provider := &fakeProvider{payloads: map[QueryKind]json.RawMessage{
		QueryDrivers: json.RawMessage(driversFixture),
	}}
	svc := newTestService(t, provider)

	tests := []struct {
		name       string
		identifier string
		wantID     string
	}{
		{"by driver id", "leclerc", "leclerc"},
		{"by code", "VER", "max_verstappen"},
		{"by permanent number", "16", "leclerc"},
		{"by full name", "Max Verstappen", "max_verstappen"},
		{"by family name", "leclerc", "leclerc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.handleDriverInfo(context.Background(), mcp.CallToolParams{
				Arguments: json.RawMessage(`{"year": 2024, "driver": "` + tt.identifier + `"}`),
			})
			require.NoError(t, err)

			var wrapped struct {
				DriverInfo struct {
					DriverID string `json:"driverId"`
				} `json:"driver_info"`
			}
			require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &wrapped))
			assert.Equal(t, tt.wantID, wrapped.DriverInfo.DriverID)
		})
	}
}

func TestHandleDriverInfoUnknownDriver(t *testing.T) {
	provider := &fakeProvider{payloads: map[QueryKind]json.RawMessage{
		QueryDrivers: json.RawMessage(driversFixture),
	}}
	svc := newTestService(t, provider)

	_, err := svc.handleDriverInfo(context.Background(), mcp.CallToolParams{
		Arguments: json.RawMessage(`{"year": 2024, "driver": "nobody"}`),
	})
	assert.ErrorContains(t, err, "not found")
}

func TestHandleTeamInfoMatchesSubstring(t *testing.T) {
	provider := &fakeProvider{payloads: map[QueryKind]json.RawMessage{
		QueryConstructors: json.RawMessage(constructorsFixture),
	}}
	svc := newTestService(t, provider)

	result, err := svc.handleTeamInfo(context.Background(), mcp.CallToolParams{
		Arguments: json.RawMessage(`{"year": 2024, "team": "red bull"}`),
	})
	require.NoError(t, err)

	var wrapped struct {
		Teams []struct {
			Name string `json:"name"`
		} `json:"teams"`
	}
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &wrapped))
	require.Len(t, wrapped.Teams, 1)
	assert.Equal(t, "Red Bull", wrapped.Teams[0].Name)
}

func TestHandleConfigureCache(t *testing.T) {
	svc := newTestService(t, &fakeProvider{})
	ctx := context.Background()

	_, err := svc.EventSchedule(ctx, 2024)
	require.NoError(t, err)

	result, err := svc.handleConfigureCache(ctx, mcp.CallToolParams{
		Arguments: json.RawMessage(`{"clear_cache": true, "default_ttl_seconds": 120}`),
	})
	require.NoError(t, err)

	var control CacheControl
	require.NoError(t, json.Unmarshal([]byte(result.Content[0].Text), &control))
	assert.Equal(t, int64(1), control.Cleared)
	assert.Equal(t, "2m0s", control.DefaultTTL)
}

func TestResourcesReadCurrentSeason(t *testing.T) {
	provider := &fakeProvider{payloads: map[QueryKind]json.RawMessage{
		QuerySchedule:        json.RawMessage(`{"MRData":{"total":"24"}}`),
		QueryDriverStandings: json.RawMessage(`{"MRData":{"total":"20"}}`),
	}}
	svc := newTestService(t, provider)
	resources := Resources(svc)

	text, err := resources[0].Handler(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"MRData":{"total":"24"}}`, text)
	assert.Equal(t, 2024, provider.lastQ.Season)

	text, err = resources[1].Handler(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, `{"MRData":{"total":"20"}}`, text)
}

func TestDecodeArgsToleratesMissingArguments(t *testing.T) {
	var args struct {
		Year int `json:"year"`
	}
	require.NoError(t, decodeArgs(nil, &args))
	assert.Zero(t, args.Year)
}

func TestFullServerCallThroughStdIOTypes(t *testing.T) {
	provider := &fakeProvider{payloads: map[QueryKind]json.RawMessage{
		QuerySchedule: json.RawMessage(`{"MRData":{}}`),
	}}

	retrier := fetch.NewClient(fetch.Config{MaxAttempts: 1, Timeout: time.Minute}, nil)
	svc := NewService(provider, retrier, cache.NewMemoryStore(nil), nil, 0)

	tm := mcp.NewToolManager()
	require.NoError(t, tm.RegisterTools(Tools(svc)...))

	result, err := tm.CallTool(context.Background(), mcp.CallToolParams{
		Name:      "get_event_schedule",
		Arguments: json.RawMessage(`{"year": 2023}`),
	})
	require.NoError(t, err)
	require.Len(t, result.Content, 1)
	assert.Equal(t, "text", result.Content[0].Type)
}
