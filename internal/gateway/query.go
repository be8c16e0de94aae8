package gateway

import (
	"encoding/json"
	"net/url"
	"strconv"
)

// Query describes a PostgREST table read.
type Query struct {
	// Columns is the select list; empty selects every column.
	Columns string
	Filters []Filter
	// Or holds a raw PostgREST disjunction such as "a.eq.1,b.cs.{x}".
	Or     string
	Order  []Order
	Limit  int
	Single bool
}

// Filter is one horizontal filter, rendered as column=op.value.
type Filter struct {
	Column string
	Op     string
	Value  string
}

type Order struct {
	Column     string
	Descending bool
}

func Eq(column string, value any) Filter {
	return Filter{Column: column, Op: "eq", Value: formatValue(value)}
}

func ILike(column, pattern string) Filter {
	return Filter{Column: column, Op: "ilike", Value: pattern}
}

func Gte(column string, value any) Filter {
	return Filter{Column: column, Op: "gte", Value: formatValue(value)}
}

func Lte(column string, value any) Filter {
	return Filter{Column: column, Op: "lte", Value: formatValue(value)}
}

func (q Query) values() url.Values {
	v := url.Values{}
	columns := q.Columns
	if columns == "" {
		columns = "*"
	}
	v.Set("select", columns)
	for _, f := range q.Filters {
		v.Add(f.Column, f.Op+"."+f.Value)
	}
	if q.Or != "" {
		v.Set("or", "("+q.Or+")")
	}
	if len(q.Order) > 0 {
		var order string
		for i, o := range q.Order {
			if i > 0 {
				order += ","
			}
			dir := "asc"
			if o.Descending {
				dir = "desc"
			}
			order += o.Column + "." + dir
		}
		v.Set("order", order)
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	return v
}

func formatValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		raw, _ := json.Marshal(v)
		return string(raw)
	}
}

// Rows normalizes a gateway result into a row list: arrays yield their
// elements, null yields no rows, and any other value is a single row.
func Rows(raw json.RawMessage) ([]json.RawMessage, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if raw[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, err
		}
		return rows, nil
	}
	return []json.RawMessage{raw}, nil
}
