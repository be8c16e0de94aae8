package tools

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"wpmcp/internal/gateway"
	"wpmcp/internal/schema"
	"wpmcp/internal/tool"
)

var educationTags = []string{"Education", "College", "High School", "Homeschool", "School Board"}

const (
	schoolTagPrefix = "School:"
	maxSchoolEvents = 500
)

type eventRow struct {
	ID           json.RawMessage `json:"id"`
	EventName    string          `json:"event_name"`
	EventDate    string          `json:"event_date"`
	State        string          `json:"state"`
	CategoryTags []any           `json:"category_tags"`
}

type schoolEvent struct {
	ID   json.RawMessage `json:"id"`
	Name string          `json:"name"`
	Date string          `json:"date"`
}

type schoolSummary struct {
	Tag        string        `json:"tag"`
	Name       string        `json:"name"`
	EventCount int           `json:"event_count"`
	States     []string      `json:"states"`
	Events     []schoolEvent `json:"events,omitempty"`

	stateSet map[string]struct{}
}

type knownSchool struct {
	Tag         string `json:"tag"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func schoolsHandler(deps Deps) tool.Handler {
	return func(ctx context.Context, args schema.Args) (tool.Result, error) {
		dateRange := args.Object("date_range")
		includeEvents := args.Bool("include_events")

		q := gateway.Query{
			Order: []gateway.Order{{Column: "event_date", Descending: true}},
			Limit: maxSchoolEvents,
		}
		if start := dateRange.String("start_date"); start != "" {
			q.Filters = append(q.Filters, gateway.Gte("event_date", start))
		}
		if end := dateRange.String("end_date"); end != "" {
			q.Filters = append(q.Filters, gateway.Lte("event_date", end))
		}
		var clauses []string
		for _, tag := range educationTags {
			quoted, _ := json.Marshal(tag)
			clauses = append(clauses, "category_tags.cs.["+string(quoted)+"]")
		}
		q.Or = strings.Join(clauses, ",")

		raw, err := selectFrom(ctx, deps.Primary, "v2_events", q)
		if err != nil {
			return tool.SoftError("%v", err), nil
		}
		var rawEvents []json.RawMessage
		if err := json.Unmarshal(raw, &rawEvents); err != nil {
			return tool.SoftError("unexpected events response: %v", err), nil
		}

		schools := map[string]*schoolSummary{}
		for _, rawEvent := range rawEvents {
			var ev eventRow
			if err := json.Unmarshal(rawEvent, &ev); err != nil {
				continue
			}
			for _, t := range ev.CategoryTags {
				tag, ok := t.(string)
				if !ok || !strings.HasPrefix(tag, schoolTagPrefix) {
					continue
				}
				s := schools[tag]
				if s == nil {
					s = &schoolSummary{
						Tag:      tag,
						Name:     strings.ReplaceAll(strings.TrimPrefix(tag, schoolTagPrefix), "_", " "),
						stateSet: map[string]struct{}{},
					}
					schools[tag] = s
				}
				s.EventCount++
				if includeEvents {
					s.Events = append(s.Events, schoolEvent{ID: ev.ID, Name: ev.EventName, Date: ev.EventDate})
				}
				if ev.State != "" {
					s.stateSet[ev.State] = struct{}{}
				}
			}
		}

		withEvents := make([]*schoolSummary, 0, len(schools))
		for _, s := range schools {
			s.States = make([]string, 0, len(s.stateSet))
			for st := range s.stateSet {
				s.States = append(s.States, st)
			}
			sort.Strings(s.States)
			withEvents = append(withEvents, s)
		}
		sort.SliceStable(withEvents, func(i, j int) bool {
			if withEvents[i].EventCount != withEvents[j].EventCount {
				return withEvents[i].EventCount > withEvents[j].EventCount
			}
			return withEvents[i].Tag < withEvents[j].Tag
		})

		// The catalog of known schools is best effort.
		known := []knownSchool{}
		if rawKnown, err := selectFrom(ctx, deps.Primary, "dynamic_slugs", gateway.Query{
			Columns: "full_slug,label,description",
			Filters: []gateway.Filter{gateway.Eq("parent_tag", "School")},
		}); err == nil {
			var slugs []struct {
				FullSlug    string `json:"full_slug"`
				Label       string `json:"label"`
				Description string `json:"description"`
			}
			if json.Unmarshal(rawKnown, &slugs) == nil {
				for _, s := range slugs {
					known = append(known, knownSchool{Tag: s.FullSlug, Name: s.Label, Description: s.Description})
				}
			}
		}

		var scope any = "all time"
		if len(dateRange) > 0 {
			scope = dateRange
		}
		result := map[string]any{
			"summary": map[string]any{
				"total_education_events":    len(rawEvents),
				"unique_schools_in_events":  len(schools),
				"total_schools_in_database": len(known),
				"date_range":                scope,
			},
			"schools_with_events": withEvents,
			"all_known_schools":   known,
		}
		if includeEvents {
			result["events"] = rawEvents
		}
		return tool.JSON(result)
	}
}
