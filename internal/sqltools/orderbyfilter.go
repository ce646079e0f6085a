package sqltools

import (
	"errors"
	"strings"
)

// ErrDuplicatedField a field can only be used once in an ORDER BY clause
var ErrDuplicatedField = errors.New("sql sort filter field already exists")

// SQLFieldName is a column a query can be sorted by. Only constants should be converted to it.
type SQLFieldName string

// OrderByFilter sorts by Field, ascending unless Desc is set
type OrderByFilter struct {
	Field     SQLFieldName
	Desc      bool
	NullsLast bool
}

func (f OrderByFilter) String() string {
	var b strings.Builder
	b.WriteString(string(f.Field))
	if f.Desc {
		b.WriteString(" DESC")
	} else {
		b.WriteString(" ASC")
	}
	if f.NullsLast {
		b.WriteString(" NULLS LAST")
	}
	return b.String()
}

// OrderByFilters renders an ORDER BY clause, without the ORDER BY keywords
type OrderByFilters []OrderByFilter

// Add appends a sort field. It fails if the field is already present.
func (s *OrderByFilters) Add(f SQLFieldName, desc bool) error {
	return s.add(OrderByFilter{Field: f, Desc: desc})
}

// AddWithNullsLast appends a sort field that puts NULLs at the end
func (s *OrderByFilters) AddWithNullsLast(f SQLFieldName, desc bool) error {
	return s.add(OrderByFilter{Field: f, Desc: desc, NullsLast: true})
}

// String returns the comma separated sort expressions, empty when there are none
func (s *OrderByFilters) String() string {
	fields := make([]string, 0, len(*s))
	for _, f := range *s {
		fields = append(fields, f.String())
	}
	return strings.Join(fields, ", ")
}

func (s *OrderByFilters) add(f OrderByFilter) error {
	for _, v := range *s {
		if v.Field == f.Field {
			return ErrDuplicatedField
		}
	}
	*s = append(*s, f)
	return nil
}
