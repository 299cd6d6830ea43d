package f1

import (
	"context"
	"encoding/json"

	"github.com/shaharia-lab/f1mcp/mcp"
)

// Resources builds the URI-addressed payloads backed by the given service.
func Resources(svc *Service) []mcp.Resource {
	return []mcp.Resource{
		{
			URI:         "f1://schedule/current",
			Name:        "Current season schedule",
			Description: "The event schedule of the current F1 season",
			MimeType:    "application/json",
			Handler: func(ctx context.Context) (string, error) {
				payload, err := svc.EventSchedule(ctx, svc.now().Year())
				if err != nil {
					return "", err
				}
				return indentJSON(payload)
			},
		},
		{
			URI:         "f1://standings/drivers",
			Name:        "Current driver standings",
			Description: "The drivers' championship standings of the current season",
			MimeType:    "application/json",
			Handler: func(ctx context.Context) (string, error) {
				payload, err := svc.DriverStandings(ctx, svc.now().Year(), "")
				if err != nil {
					return "", err
				}
				return indentJSON(payload)
			},
		},
		{
			URI:         "f1://standings/constructors",
			Name:        "Current constructor standings",
			Description: "The constructors' championship standings of the current season",
			MimeType:    "application/json",
			Handler: func(ctx context.Context) (string, error) {
				payload, err := svc.ConstructorStandings(ctx, svc.now().Year(), "")
				if err != nil {
					return "", err
				}
				return indentJSON(payload)
			},
		},
	}
}

func indentJSON(raw json.RawMessage) (string, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw), nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return string(raw), nil
	}
	return string(data), nil
}
