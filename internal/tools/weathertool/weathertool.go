// Package weathertool implements the built-in get_weather tool on top of a
// weather.Forecaster.
package weathertool

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/daytrip-ai/daytrip/internal/tools"
	"github.com/daytrip-ai/daytrip/pkg/provider/weather"
	"github.com/daytrip-ai/daytrip/pkg/types"
)

// Name is the tool identifier offered to the model.
const Name = "get_weather"

const defaultDays = 1

// args is the decoded get_weather argument object.
type args struct {
	City string `json:"city"`
	Days int    `json:"days"`
}

// response is the JSON result handed back to the model.
type response struct {
	City    string        `json:"city"`
	Country string        `json:"country"`
	Days    []responseDay `json:"days"`
}

type responseDay struct {
	Date         string  `json:"date"`
	Condition    string  `json:"condition"`
	MaxTempC     float64 `json:"max_temp_c"`
	MinTempC     float64 `json:"min_temp_c"`
	ChanceOfRain int     `json:"chance_of_rain"`
}

// New builds the get_weather tool backed by the given forecaster.
func New(f weather.Forecaster) tools.Tool {
	return tools.Tool{
		Definition: types.ToolDefinition{
			Name:        Name,
			Description: "Get current weather and forecast data for a specified city. Supports multi-day forecasts up to 7 days ahead with detailed conditions, temperature, and weather metrics.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"city": map[string]any{
						"type":        "string",
						"description": "The name of the city to get weather for (e.g., 'London', 'New York', 'Tokyo'). Supports international cities worldwide.",
					},
					"days": map[string]any{
						"type":        "integer",
						"description": "Number of forecast days to retrieve (1-7). Includes current day plus future days.",
						"minimum":     1,
						"maximum":     7,
						"default":     defaultDays,
					},
				},
				"required":             []any{"city"},
				"additionalProperties": false,
			},
		},
		Handler: handler(f),
	}
}

func handler(f weather.Forecaster) tools.Handler {
	return func(ctx context.Context, rawArgs string) (string, error) {
		var a args
		if err := json.Unmarshal([]byte(rawArgs), &a); err != nil {
			return "", fmt.Errorf("weathertool: decode arguments: %w", err)
		}
		if a.City == "" {
			return "", fmt.Errorf("weathertool: city must not be empty")
		}
		if a.Days == 0 {
			a.Days = defaultDays
		}
		if a.Days < 1 || a.Days > 7 {
			return "", fmt.Errorf("weathertool: days must be between 1 and 7, got %d", a.Days)
		}

		fc, err := f.Forecast(ctx, a.City, a.Days)
		if err != nil {
			return "", fmt.Errorf("weathertool: fetch forecast: %w", err)
		}

		resp := response{
			City:    fc.City,
			Country: fc.Country,
			Days:    make([]responseDay, 0, len(fc.Days)),
		}
		for _, d := range fc.Days {
			resp.Days = append(resp.Days, responseDay{
				Date:         d.Date.Format("2006-01-02"),
				Condition:    d.Condition,
				MaxTempC:     d.MaxTempC,
				MinTempC:     d.MinTempC,
				ChanceOfRain: d.ChanceOfRain,
			})
		}

		out, err := json.Marshal(resp)
		if err != nil {
			return "", fmt.Errorf("weathertool: encode response: %w", err)
		}
		return string(out), nil
	}
}
