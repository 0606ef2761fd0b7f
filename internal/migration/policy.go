// internal/migration/policy.go
package migration

import (
	"errors"
	"fmt"

	"github.com/Annany2002/nebula-migrate/internal/domain"
)

// Type is what a migration run does on the target.
type Type string

const (
	TypeSchema          Type = "schema"
	TypeSchemaMissing   Type = "schema-missing"
	TypeData            Type = "data"
	TypeSelectiveData   Type = "selective-data"
	TypeSchemaSelective Type = "schema-selective"
	TypeBoth            Type = "both"
)

var ErrInvalidType = errors.New("invalid migration type")

// Types lists every migration type in display order.
var Types = []Type{TypeSchema, TypeSchemaMissing, TypeData, TypeSelectiveData, TypeSchemaSelective, TypeBoth}

// ParseType validates a migration type name.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if _, ok := transitions[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidType, s)
	}
	return t, nil
}

type filterRule int

const (
	keepFilter         filterRule = iota
	filterOnlyNew                 // force "new"
	relaxRestrictive              // new/modified -> all
	preferModifiedThenNew         // modified if any column diff, else new if any new table
)

type selectRule int

const (
	keepSelection selectRule = iota
	selectOnlyNew            // exactly tables_only_in_source
)

type rule struct {
	filter    filterRule
	selection selectRule
	needsDiff bool
	effects   []string
}

// transitions is the whole type -> {filter, selection} state machine.
var transitions = map[Type]rule{
	TypeSchema: {
		filter:  preferModifiedThenNew,
		effects: []string{"Update schema structure"},
	},
	TypeSchemaMissing: {
		filter:    filterOnlyNew,
		selection: selectOnlyNew,
		needsDiff: true,
		effects:   []string{"Add only missing schema elements (columns, tables)"},
	},
	TypeData: {
		filter:  relaxRestrictive,
		effects: []string{"Copy all data records"},
	},
	TypeSelectiveData: {
		filter:  preferModifiedThenNew,
		effects: []string{"Copy only data records that don't exist in target"},
	},
	TypeSchemaSelective: {
		filter:  preferModifiedThenNew,
		effects: []string{"Update schema structure", "Copy only data records that don't exist in target"},
	},
	TypeBoth: {
		filter:  relaxRestrictive,
		effects: []string{"Update schema structure", "Copy all data records"},
	},
}

// Outcome is the result of applying a type transition to a view.
type Outcome struct {
	Filter     Filter
	Tables     []domain.TableInfo
	Changed    bool // selection changed
	NeedsDiff  bool // the type wants a diff that is not available
	Selectable int  // number of tables the transition selected, when it selects
}

// Transition is a pure function of the requested type, the current diff, the
// current filter and the current tables. Selection flags only change for tables
// whose membership in the diff justifies it; tables with no diff entry are
// never force-selected.
func Transition(t Type, diff *domain.SchemaDiff, current Filter, tables []domain.TableInfo) Outcome {
	r, ok := transitions[t]
	out := Outcome{Filter: current, Tables: tables}
	if !ok {
		return out
	}
	if r.needsDiff && diff == nil {
		out.NeedsDiff = true
		return out
	}

	switch r.filter {
	case filterOnlyNew:
		out.Filter = FilterNew
	case relaxRestrictive:
		if current == FilterNew || current == FilterModified {
			out.Filter = FilterAll
		}
	case preferModifiedThenNew:
		switch {
		case diff != nil && len(diff.ColumnsDiff) > 0:
			out.Filter = FilterModified
		case diff != nil && len(diff.TablesOnlyInSource) > 0:
			out.Filter = FilterNew
		}
	}

	if r.selection == selectOnlyNew {
		next := make([]domain.TableInfo, len(tables))
		for i, tbl := range tables {
			want := diff.IsNew(tbl.TableName)
			if want != tbl.Selected {
				out.Changed = true
			}
			if want {
				out.Selectable++
			}
			tbl.Selected = want
			next[i] = tbl
		}
		out.Tables = next
	}
	return out
}

// Plan renders the confirmation summary shown before a migration runs.
func Plan(t Type, tableCount int, sourceLabel, targetLabel string) []string {
	lines := []string{
		fmt.Sprintf("Are you sure you want to migrate %d table(s) from %s to %s?", tableCount, sourceLabel, targetLabel),
		"",
		"This will:",
	}
	for _, e := range transitions[t].effects {
		lines = append(lines, "- "+e)
	}
	return append(lines, "", "This action cannot be undone.")
}
