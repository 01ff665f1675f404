// Package analyzer derives usage facts from parsed SQL statements and turns
// aggregated filter statistics into platform-specific optimization suggestions.
//
// The walk functions in this file are pure: they consume a sqlast tree and
// return counted facts. Storage access and per-query orchestration live in
// analyzer.go.
package analyzer

import (
	"strings"

	"github.com/querylens-labs/querylens/internal/sqlast"
	"github.com/querylens-labs/querylens/pkg/models"
)

// TableRef is a resolved (database, schema, table) triple.
// The Table node's catalog maps to Database and its DB to Schema; the swap
// matches the platform's own catalog/schema nesting and is intentional.
type TableRef struct {
	Database string
	Schema   string
	Table    string
}

func tableRef(n *sqlast.Node) TableRef {
	return TableRef{Database: n.Catalog, Schema: n.DB, Table: n.Name}
}

// cteNames collects every CTE alias defined anywhere in the statement.
// A CTE's alias is never a base table, no matter where it is referenced.
func cteNames(root *sqlast.Node) map[string]bool {
	names := make(map[string]bool)
	for _, cte := range sqlast.FindAll(root, sqlast.KindCTE) {
		if cte.Name != "" {
			names[cte.Name] = true
		}
	}
	return names
}

// ReadTables returns every physical table read by the statement with the
// number of references to it. Tables inside CTE bodies count; references to
// CTE aliases do not. A MERGE target is a write, not a read: only its USING
// sources count.
func ReadTables(root *sqlast.Node) map[TableRef]int {
	ctes := cteNames(root)
	counts := make(map[TableRef]int)

	var visit func(n *sqlast.Node)
	visit = func(n *sqlast.Node) {
		if n == nil {
			return
		}
		switch n.Kind {
		case sqlast.KindMerge:
			for _, c := range n.Using {
				visit(c)
			}
			return
		case sqlast.KindTable:
			if n.Name == "" || ctes[n.Name] {
				return
			}
			counts[tableRef(n)]++
			return
		}
		for _, c := range n.Children {
			visit(c)
		}
		for _, c := range n.On {
			visit(c)
		}
		for _, c := range n.Using {
			visit(c)
		}
	}
	visit(root)
	return counts
}

// StarOccurrences returns the base tables wide-scanned by the statement.
// A Select counts when its projection is a bare "*" or an alias-qualified
// "alias.*". The alias resolves against that Select's own FROM/JOIN candidate
// set only; CTE aliases and subquery results never count.
func StarOccurrences(root *sqlast.Node) map[TableRef]int {
	ctes := cteNames(root)
	found := make(map[TableRef]int)

	sqlast.Walk(root, func(n *sqlast.Node) bool {
		if n.Kind != sqlast.KindSelect {
			return true
		}
		star := projectionStar(n)
		if star == nil {
			return true
		}
		from := directChild(n, sqlast.KindFrom)
		if from == nil {
			return true
		}
		for _, cand := range fromCandidates(from) {
			if star.Qualifier != "" && star.Qualifier != cand.AliasOrName() {
				continue
			}
			if cand.Name == "" || ctes[cand.Name] {
				continue
			}
			found[tableRef(cand)]++
		}
		return true
	})
	return found
}

// projectionStar returns the first Star in the Select's own projection list.
func projectionStar(sel *sqlast.Node) *sqlast.Node {
	for _, c := range sel.Children {
		if c.Kind == sqlast.KindStar {
			return c
		}
	}
	return nil
}

func directChild(n *sqlast.Node, kind sqlast.Kind) *sqlast.Node {
	for _, c := range n.Children {
		if c.Kind == kind {
			return c
		}
	}
	return nil
}

// fromCandidates collects the Table nodes of one FROM clause, descending
// through joins but not into subqueries: a subquery result is never a
// wide-scan target and its own scope is analyzed separately.
func fromCandidates(from *sqlast.Node) []*sqlast.Node {
	var out []*sqlast.Node
	var visit func(n *sqlast.Node)
	visit = func(n *sqlast.Node) {
		switch n.Kind {
		case sqlast.KindTable:
			out = append(out, n)
		case sqlast.KindFrom, sqlast.KindJoin:
			for _, c := range n.Children {
				visit(c)
			}
		}
	}
	visit(from)
	return out
}

// CandidateKey identifies one partition-candidate combination.
type CandidateKey struct {
	Database   string
	Schema     string
	Table      string
	FilterType string
	Column     string
}

// buildAliasMap maps every table alias, and every bare table name, to its
// resolved triple. Built from all Table nodes in the statement.
func buildAliasMap(root *sqlast.Node) map[string]TableRef {
	aliases := make(map[string]TableRef)
	for _, t := range sqlast.FindAll(root, sqlast.KindTable) {
		ref := tableRef(t)
		if t.Alias != "" {
			aliases[t.Alias] = ref
		}
		if t.Name != "" {
			aliases[t.Name] = ref
		}
	}
	return aliases
}

// soleTableName returns the lowercased table name when every alias-map entry
// points at the same base table, "" otherwise. An unqualified filter column
// can only belong to that table.
func soleTableName(aliases map[string]TableRef) string {
	name := ""
	for _, ref := range aliases {
		if ref.Table == "" {
			continue
		}
		t := strings.ToLower(ref.Table)
		if name == "" {
			name = t
			continue
		}
		if t != name {
			return ""
		}
	}
	return name
}

// resolveColumn resolves a column's owning table through the alias map.
// An unqualified column resolves to nothing; an unknown qualifier keeps the
// qualifier as the table name with database/schema unresolved.
func resolveColumn(col *sqlast.Node, aliases map[string]TableRef) TableRef {
	if col.Qualifier == "" {
		return TableRef{}
	}
	if ref, ok := aliases[col.Qualifier]; ok {
		return ref
	}
	return TableRef{Table: col.Qualifier}
}

// clauseColumns returns the Column nodes directly referenced by a clause.
// Subqueries nested in the clause are not descended into: their clauses are
// counted in their own right.
func clauseColumns(nodes []*sqlast.Node) []*sqlast.Node {
	var out []*sqlast.Node
	for _, c := range nodes {
		if c.Kind == sqlast.KindColumn {
			out = append(out, c)
		}
	}
	return out
}

// PartitionCandidates returns the (table, filter_type, column) combinations
// seen in the statement's WHERE/ON/ORDER BY/GROUP BY clauses with use counts.
// HAVING conditions are folded into the WHERE statistics: predicate
// semantics, not clause label, drive the recommendation.
func PartitionCandidates(root *sqlast.Node) map[CandidateKey]int {
	aliases := buildAliasMap(root)
	counts := make(map[CandidateKey]int)

	add := func(cols []*sqlast.Node, filterType string) {
		for _, col := range cols {
			ref := resolveColumn(col, aliases)
			counts[CandidateKey{
				Database:   ref.Database,
				Schema:     ref.Schema,
				Table:      ref.Table,
				FilterType: filterType,
				Column:     col.Name,
			}]++
		}
	}

	for _, wh := range sqlast.FindAll(root, sqlast.KindWhere) {
		add(clauseColumns(wh.Children), models.FilterWhere)
	}
	for _, hv := range sqlast.FindAll(root, sqlast.KindHaving) {
		add(clauseColumns(hv.Children), models.FilterWhere)
	}
	for _, jn := range sqlast.FindAll(root, sqlast.KindJoin) {
		add(clauseColumns(jn.On), models.FilterJoin)
	}
	for _, ord := range sqlast.FindAll(root, sqlast.KindOrder) {
		add(clauseColumns(ord.Children), models.FilterOrderBy)
	}
	for _, grp := range sqlast.FindAll(root, sqlast.KindGroup) {
		add(clauseColumns(grp.Children), models.FilterGroupBy)
	}
	return counts
}

// FilterColumns returns the lowercased table.column strings referenced by the
// statement's WHERE, JOIN ON, and HAVING clauses, one entry per reference.
// Unqualified columns resolve to the statement's sole base table when it
// reads exactly one; otherwise they stay bare. Columns whose qualifier
// cannot be resolved fall back to the qualifier as written.
func FilterColumns(root *sqlast.Node) []string {
	aliases := buildAliasMap(root)
	sole := soleTableName(aliases)
	var out []string

	collect := func(cols []*sqlast.Node) {
		for _, col := range cols {
			name := strings.ToLower(col.Name)
			if col.Qualifier == "" {
				if sole != "" {
					out = append(out, sole+"."+name)
				} else {
					out = append(out, name)
				}
				continue
			}
			if ref, ok := aliases[col.Qualifier]; ok && ref.Table != "" {
				out = append(out, strings.ToLower(ref.Table)+"."+name)
				continue
			}
			out = append(out, strings.ToLower(col.Qualifier)+"."+name)
		}
	}

	for _, wh := range sqlast.FindAll(root, sqlast.KindWhere) {
		collect(clauseColumns(wh.Children))
	}
	for _, jn := range sqlast.FindAll(root, sqlast.KindJoin) {
		collect(clauseColumns(jn.On))
	}
	for _, hv := range sqlast.FindAll(root, sqlast.KindHaving) {
		collect(clauseColumns(hv.Children))
	}
	return out
}
