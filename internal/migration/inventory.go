// internal/migration/inventory.go
package migration

import (
	"errors"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/Annany2002/nebula-migrate/internal/domain"
)

// Filter narrows the visible table list against the current SchemaDiff.
type Filter string

const (
	FilterAll      Filter = "all"
	FilterNew      Filter = "new"      // only in source
	FilterModified Filter = "modified" // has column differences
	FilterExisting Filter = "existing" // present on both sides
)

// ParseFilter validates a filter name.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(s)); f {
	case FilterAll, FilterNew, FilterModified, FilterExisting:
		return f, nil
	}
	return "", ErrInvalidFilter
}

// Sort orders the visible table list.
type Sort struct {
	Field string `json:"field"` // name, rows or size
	Desc  bool   `json:"desc"`
}

var (
	ErrInvalidFilter = errors.New("invalid table filter")
	ErrInvalidSort   = errors.New("invalid table sort field")
	ErrTableNotFound = errors.New("table not in current inventory")
)

// Inventory is the table list of the last load plus its view state. Every
// mutation replaces entries in place; it is never shared between panels.
type Inventory struct {
	Tables []domain.TableInfo `json:"tables"`
	Filter Filter             `json:"filter"`
	Search string             `json:"search"`
	Sort   Sort               `json:"sort"`
}

// NewInventory returns an empty inventory with the default view.
func NewInventory() *Inventory {
	return &Inventory{Tables: []domain.TableInfo{}, Filter: FilterAll, Sort: Sort{Field: "name"}}
}

// Replace discards the previous list. Every new table starts selected. Names
// are unique within a load; later duplicates are dropped.
func (inv *Inventory) Replace(tables []domain.TableInfo) {
	fresh := make([]domain.TableInfo, 0, len(tables))
	seen := make(map[string]bool, len(tables))
	for _, t := range tables {
		if seen[t.TableName] {
			continue
		}
		seen[t.TableName] = true
		t.Selected = true
		fresh = append(fresh, t)
	}
	inv.Tables = fresh
}

// ApplyDiff runs the diff-driven auto-select. When the diff has differences,
// changed tables are selected and the rest deselected, and the filter follows
// whichever category is non-empty. A diff with no differences resets the
// filter to all and leaves selection alone, so the list never collapses to empty.
func (inv *Inventory) ApplyDiff(diff *domain.SchemaDiff) {
	if diff == nil {
		return
	}
	if !diff.HasDifferences() {
		inv.Filter = FilterAll
		return
	}

	for i := range inv.Tables {
		name := inv.Tables[i].TableName
		inv.Tables[i].Selected = diff.IsNew(name) || diff.IsModified(name)
	}

	hasNew := len(diff.TablesOnlyInSource) > 0
	hasModified := len(diff.ColumnsDiff) > 0
	switch {
	case hasNew && hasModified:
		inv.Filter = FilterAll
	case hasNew:
		inv.Filter = FilterNew
	default:
		inv.Filter = FilterModified
	}
}

// DiffCounts returns how many loaded tables are new or modified under diff.
func (inv *Inventory) DiffCounts(diff *domain.SchemaDiff) (changed int) {
	for _, t := range inv.Tables {
		if diff.IsNew(t.TableName) || diff.IsModified(t.TableName) {
			changed++
		}
	}
	return changed
}

// Toggle flips one table's selection.
func (inv *Inventory) Toggle(name string) error {
	for i := range inv.Tables {
		if inv.Tables[i].TableName == name {
			inv.Tables[i].Selected = !inv.Tables[i].Selected
			return nil
		}
	}
	return ErrTableNotFound
}

// SelectExactly selects the named tables and clears the rest. Unknown names
// fail the whole call without changing anything.
func (inv *Inventory) SelectExactly(names []string) error {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	found := 0
	for _, t := range inv.Tables {
		if want[t.TableName] {
			found++
		}
	}
	if found != len(want) {
		return ErrTableNotFound
	}
	for i := range inv.Tables {
		inv.Tables[i].Selected = want[inv.Tables[i].TableName]
	}
	return nil
}

// ToggleAll selects every table unless all are already selected, in which
// case it clears the selection.
func (inv *Inventory) ToggleAll() {
	all := len(inv.Tables) > 0
	for _, t := range inv.Tables {
		if !t.Selected {
			all = false
			break
		}
	}
	for i := range inv.Tables {
		inv.Tables[i].Selected = !all
	}
}

// SelectOnlyMissing selects exactly the tables that exist only in the source.
func (inv *Inventory) SelectOnlyMissing(diff *domain.SchemaDiff) int {
	n := 0
	for i := range inv.Tables {
		missing := diff.IsNew(inv.Tables[i].TableName)
		inv.Tables[i].Selected = missing
		if missing {
			n++
		}
	}
	return n
}

// Selected returns the names of the selected tables in inventory order.
func (inv *Inventory) Selected() []string {
	names := make([]string, 0, len(inv.Tables))
	for _, t := range inv.Tables {
		if t.Selected {
			names = append(names, t.TableName)
		}
	}
	return names
}

// Visible returns the filtered, searched and sorted view. It does not
// mutate the inventory.
func (inv *Inventory) Visible(diff *domain.SchemaDiff) []domain.TableInfo {
	search := strings.ToLower(strings.TrimSpace(inv.Search))
	out := make([]domain.TableInfo, 0, len(inv.Tables))
	for _, t := range inv.Tables {
		if search != "" && !strings.Contains(strings.ToLower(t.TableName), search) {
			continue
		}
		if !matchesFilter(inv.Filter, diff, t.TableName) {
			continue
		}
		out = append(out, t)
	}

	less := lessFunc(inv.Sort.Field)
	sort.SliceStable(out, func(i, j int) bool {
		if inv.Sort.Desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

// matchesFilter treats a missing diff as "no information": every filter
// other than all hides nothing until a comparison exists.
func matchesFilter(f Filter, diff *domain.SchemaDiff, name string) bool {
	if diff == nil {
		return true
	}
	switch f {
	case FilterNew:
		return diff.IsNew(name)
	case FilterModified:
		return diff.IsModified(name)
	case FilterExisting:
		return diff.InBoth(name)
	default:
		return true
	}
}

func lessFunc(field string) func(a, b domain.TableInfo) bool {
	switch field {
	case "rows":
		return func(a, b domain.TableInfo) bool { return a.RowCount < b.RowCount }
	case "size":
		return func(a, b domain.TableInfo) bool { return SizeBytes(a.Size) < SizeBytes(b.Size) }
	default:
		return func(a, b domain.TableInfo) bool { return a.TableName < b.TableName }
	}
}

// pg_size_pretty units are powers of 1024.
var prettyUnits = map[string]string{
	"bytes": "B",
	"kB":    "KiB",
	"MB":    "MiB",
	"GB":    "GiB",
	"TB":    "TiB",
	"PB":    "PiB",
}

// SizeBytes parses a pg_size_pretty string such as "24 kB" or "8192 bytes".
// Unparseable sizes sort as zero.
func SizeBytes(pretty string) uint64 {
	fields := strings.Fields(pretty)
	if len(fields) == 2 {
		if unit, ok := prettyUnits[fields[1]]; ok {
			fields[1] = unit
		}
	}
	n, err := humanize.ParseBytes(strings.Join(fields, " "))
	if err != nil {
		return 0
	}
	return n
}
