package main

import (
	"context"
	"time"

	"github.com/petasbytes/go-openrouter/tools"
)

type currentTimeInput struct {
	Timezone string `json:"timezone,omitempty" jsonschema:"description=IANA time zone name such as Europe/Paris; defaults to UTC"`
}

type currentTimeOutput struct {
	Timezone string `json:"timezone"`
	Time     string `json:"time,omitempty"`
	Error    string `json:"error,omitempty"`
}

func currentTimeTool(now func() time.Time) tools.Definition {
	return tools.Definition{
		Name:        "current_time",
		Description: "Current date and time in an IANA time zone.",
		Parameters:  tools.GenerateSchema[currentTimeInput](),
		Function: tools.Typed(func(_ context.Context, in currentTimeInput) (any, error) {
			loc := time.UTC
			if in.Timezone != "" {
				l, err := time.LoadLocation(in.Timezone)
				if err != nil {
					return currentTimeOutput{Timezone: in.Timezone, Error: "unknown time zone"}, nil
				}
				loc = l
			}
			return currentTimeOutput{Timezone: loc.String(), Time: now().In(loc).Format(time.RFC3339)}, nil
		}),
	}
}
