package core

import "strings"

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// AllowedOrderings drops the orderings whose field is not in fields.
func AllowedOrderings(ords []DBOrdering, fields ...string) []DBOrdering {
	allowed := make([]DBOrdering, 0, len(ords))
	for _, ord := range ords {
		for _, f := range fields {
			if strings.EqualFold(ord.Field, f) {
				allowed = append(allowed, DBOrdering{Field: f, Ascending: ord.Ascending})
				break
			}
		}
	}
	return allowed
}
