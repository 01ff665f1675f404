package analyzer

import (
	"testing"

	"github.com/querylens-labs/querylens/internal/sqlast"
	"github.com/querylens-labs/querylens/internal/sqlast/vitess"
	"github.com/querylens-labs/querylens/pkg/models"
)

func mustParse(t *testing.T, sql string) *sqlast.Node {
	t.Helper()
	root, err := vitess.NewParser().Parse(sql, "test")
	if err != nil {
		t.Fatalf("failed to parse %q: %v", sql, err)
	}
	return root
}

func TestReadTables_JoinCountsBothTables(t *testing.T) {
	root := mustParse(t,
		"SELECT o.id FROM orders o JOIN customers c ON o.cust_id = c.id WHERE o.created_at > '2024-01-01'")

	counts := ReadTables(root)
	if len(counts) != 2 {
		t.Fatalf("expected 2 tables, got %d: %v", len(counts), counts)
	}
	if counts[TableRef{Table: "orders"}] != 1 {
		t.Errorf("expected orders count 1, got %d", counts[TableRef{Table: "orders"}])
	}
	if counts[TableRef{Table: "customers"}] != 1 {
		t.Errorf("expected customers count 1, got %d", counts[TableRef{Table: "customers"}])
	}
}

func TestReadTables_SelfJoinCountsTwice(t *testing.T) {
	root := mustParse(t,
		"SELECT a.id FROM events a JOIN events b ON a.parent_id = b.id")

	counts := ReadTables(root)
	if counts[TableRef{Table: "events"}] != 2 {
		t.Errorf("expected events count 2, got %d", counts[TableRef{Table: "events"}])
	}
}

func TestReadTables_QualifiedTable(t *testing.T) {
	root := mustParse(t, "SELECT id FROM sales.orders")

	counts := ReadTables(root)
	want := TableRef{Schema: "sales", Table: "orders"}
	if counts[want] != 1 {
		t.Errorf("expected %v count 1, got %v", want, counts)
	}
}

func TestReadTables_SubqueryTablesCounted(t *testing.T) {
	root := mustParse(t,
		"SELECT t.n FROM (SELECT count(*) AS n FROM orders) t WHERE t.n > (SELECT avg(total) FROM stats)")

	counts := ReadTables(root)
	if counts[TableRef{Table: "orders"}] != 1 {
		t.Errorf("expected orders counted inside derived table, got %v", counts)
	}
	if counts[TableRef{Table: "stats"}] != 1 {
		t.Errorf("expected stats counted inside scalar subquery, got %v", counts)
	}
}

// CTE aliases are never base tables: the body's reads count, references to
// the alias do not. Built by hand because the parser grammar has no WITH.
func TestReadTables_CTEAliasNotCounted(t *testing.T) {
	root := &sqlast.Node{Kind: sqlast.KindSelect, Children: []*sqlast.Node{
		{Kind: sqlast.KindCTE, Name: "recent", Children: []*sqlast.Node{
			{Kind: sqlast.KindSelect, Children: []*sqlast.Node{
				{Kind: sqlast.KindFrom, Children: []*sqlast.Node{
					{Kind: sqlast.KindTable, Name: "events"},
				}},
			}},
		}},
		{Kind: sqlast.KindFrom, Children: []*sqlast.Node{
			{Kind: sqlast.KindTable, Name: "recent"},
		}},
	}}

	counts := ReadTables(root)
	if len(counts) != 1 {
		t.Fatalf("expected only the CTE body's table, got %v", counts)
	}
	if counts[TableRef{Table: "events"}] != 1 {
		t.Errorf("expected events count 1, got %v", counts)
	}
}

// A statement that only selects from its own CTE reads no physical tables
// beyond the CTE body; a body-less CTE reference yields nothing at all.
func TestReadTables_CTEOnlyReferenceYieldsNoFacts(t *testing.T) {
	root := &sqlast.Node{Kind: sqlast.KindSelect, Children: []*sqlast.Node{
		{Kind: sqlast.KindCTE, Name: "src", Children: []*sqlast.Node{
			{Kind: sqlast.KindSelect},
		}},
		{Kind: sqlast.KindFrom, Children: []*sqlast.Node{
			{Kind: sqlast.KindTable, Name: "src"},
		}},
	}}

	if counts := ReadTables(root); len(counts) != 0 {
		t.Errorf("expected no read tables, got %v", counts)
	}
}

// A MERGE target is written, not read; only USING sources count.
func TestReadTables_MergeTargetNotRead(t *testing.T) {
	root := &sqlast.Node{Kind: sqlast.KindMerge,
		Children: []*sqlast.Node{
			{Kind: sqlast.KindTable, Name: "dim_customers"},
		},
		Using: []*sqlast.Node{
			{Kind: sqlast.KindTable, Name: "staging_customers"},
		},
	}

	counts := ReadTables(root)
	if len(counts) != 1 {
		t.Fatalf("expected 1 table, got %v", counts)
	}
	if counts[TableRef{Table: "staging_customers"}] != 1 {
		t.Errorf("expected staging_customers count 1, got %v", counts)
	}
}

func TestStarOccurrences_BareStar(t *testing.T) {
	root := mustParse(t, "SELECT * FROM orders")

	found := StarOccurrences(root)
	if found[TableRef{Table: "orders"}] != 1 {
		t.Errorf("expected orders star count 1, got %v", found)
	}
}

func TestStarOccurrences_AliasStarMatchesOneTable(t *testing.T) {
	root := mustParse(t,
		"SELECT o.* FROM orders o JOIN customers c ON o.cust_id = c.id")

	found := StarOccurrences(root)
	if len(found) != 1 {
		t.Fatalf("expected exactly one wide-scanned table, got %v", found)
	}
	if found[TableRef{Table: "orders"}] != 1 {
		t.Errorf("expected orders star count 1, got %v", found)
	}
}

func TestStarOccurrences_BareStarOverJoinHitsAllTables(t *testing.T) {
	root := mustParse(t,
		"SELECT * FROM orders o JOIN customers c ON o.cust_id = c.id")

	found := StarOccurrences(root)
	if found[TableRef{Table: "orders"}] != 1 || found[TableRef{Table: "customers"}] != 1 {
		t.Errorf("expected both joined tables wide-scanned, got %v", found)
	}
}

// An outer star over a derived table is not a wide scan of any base table:
// the subquery already constrained the projection.
func TestStarOccurrences_StarOverSubqueryNotRecorded(t *testing.T) {
	root := mustParse(t, "SELECT * FROM (SELECT id FROM orders) t")

	if found := StarOccurrences(root); len(found) != 0 {
		t.Errorf("expected no wide scans, got %v", found)
	}
}

// An inner star inside a derived table is a wide scan of its base table.
func TestStarOccurrences_InnerStarRecorded(t *testing.T) {
	root := mustParse(t, "SELECT t.id FROM (SELECT * FROM orders) t")

	found := StarOccurrences(root)
	if found[TableRef{Table: "orders"}] != 1 {
		t.Errorf("expected inner star on orders, got %v", found)
	}
}

func TestStarOccurrences_CTEAliasNotRecorded(t *testing.T) {
	root := &sqlast.Node{Kind: sqlast.KindSelect, Children: []*sqlast.Node{
		{Kind: sqlast.KindCTE, Name: "recent", Children: []*sqlast.Node{
			{Kind: sqlast.KindSelect, Children: []*sqlast.Node{
				{Kind: sqlast.KindFrom, Children: []*sqlast.Node{
					{Kind: sqlast.KindTable, Name: "events"},
				}},
			}},
		}},
		{Kind: sqlast.KindStar},
		{Kind: sqlast.KindFrom, Children: []*sqlast.Node{
			{Kind: sqlast.KindTable, Name: "recent"},
		}},
	}}

	if found := StarOccurrences(root); len(found) != 0 {
		t.Errorf("expected no wide scans for a CTE reference, got %v", found)
	}
}

func TestPartitionCandidates_JoinScenario(t *testing.T) {
	root := mustParse(t,
		"SELECT o.id FROM orders o JOIN customers c ON o.cust_id = c.id WHERE o.created_at > '2024-01-01'")

	counts := PartitionCandidates(root)

	want := map[CandidateKey]int{
		{Table: "orders", FilterType: models.FilterWhere, Column: "created_at"}: 1,
		{Table: "orders", FilterType: models.FilterJoin, Column: "cust_id"}:     1,
		{Table: "customers", FilterType: models.FilterJoin, Column: "id"}:       1,
	}
	if len(counts) != len(want) {
		t.Fatalf("expected %d candidates, got %d: %v", len(want), len(counts), counts)
	}
	for key, n := range want {
		if counts[key] != n {
			t.Errorf("candidate %+v: expected %d, got %d", key, n, counts[key])
		}
	}
}

func TestPartitionCandidates_GroupAndOrder(t *testing.T) {
	root := mustParse(t,
		"SELECT region, count(*) FROM orders GROUP BY region ORDER BY region")

	counts := PartitionCandidates(root)
	grp := CandidateKey{FilterType: models.FilterGroupBy, Column: "region"}
	ord := CandidateKey{FilterType: models.FilterOrderBy, Column: "region"}
	if counts[grp] != 1 {
		t.Errorf("expected GROUP_BY candidate, got %v", counts)
	}
	if counts[ord] != 1 {
		t.Errorf("expected ORDER_BY candidate, got %v", counts)
	}
}

// HAVING predicates fold into the WHERE statistics.
func TestPartitionCandidates_HavingFoldsIntoWhere(t *testing.T) {
	root := mustParse(t,
		"SELECT region, count(*) AS n FROM orders o GROUP BY region HAVING o.total > 10")

	counts := PartitionCandidates(root)
	key := CandidateKey{Table: "orders", FilterType: models.FilterWhere, Column: "total"}
	if counts[key] != 1 {
		t.Errorf("expected HAVING column counted as WHERE, got %v", counts)
	}
}

// An unresolvable qualifier keeps the qualifier as the table name with
// database and schema left empty.
func TestPartitionCandidates_UnknownQualifier(t *testing.T) {
	root := mustParse(t, "SELECT 1 FROM orders WHERE ghost.id = 5")

	counts := PartitionCandidates(root)
	key := CandidateKey{Table: "ghost", FilterType: models.FilterWhere, Column: "id"}
	if counts[key] != 1 {
		t.Errorf("expected unresolved qualifier kept as table, got %v", counts)
	}
}

func TestPartitionCandidates_UnqualifiedColumn(t *testing.T) {
	root := mustParse(t, "SELECT id FROM orders WHERE status = 'DONE'")

	counts := PartitionCandidates(root)
	key := CandidateKey{FilterType: models.FilterWhere, Column: "status"}
	if counts[key] != 1 {
		t.Errorf("expected unqualified column with empty table ref, got %v", counts)
	}
}

// Columns inside a predicate subquery belong to the subquery's own clauses,
// not to the outer WHERE.
func TestPartitionCandidates_SubqueryColumnsNotDoubleCounted(t *testing.T) {
	root := mustParse(t,
		"SELECT id FROM orders o WHERE o.total > (SELECT avg(s.total) FROM stats s WHERE s.region = 'EU')")

	counts := PartitionCandidates(root)
	outer := CandidateKey{Table: "orders", FilterType: models.FilterWhere, Column: "total"}
	inner := CandidateKey{Table: "stats", FilterType: models.FilterWhere, Column: "region"}
	if counts[outer] != 1 {
		t.Errorf("expected outer WHERE column once, got %v", counts)
	}
	if counts[inner] != 1 {
		t.Errorf("expected inner WHERE column once, got %v", counts)
	}
}

func TestFilterColumns_LowercasedAndResolved(t *testing.T) {
	root := mustParse(t,
		"SELECT O.ID FROM Orders O JOIN Customers C ON O.Cust_ID = C.ID WHERE O.Created_At > '2024-01-01'")

	cols := FilterColumns(root)
	seen := make(map[string]int)
	for _, c := range cols {
		seen[c]++
	}
	if seen["orders.created_at"] != 1 {
		t.Errorf("expected orders.created_at, got %v", seen)
	}
	if seen["orders.cust_id"] != 1 {
		t.Errorf("expected orders.cust_id, got %v", seen)
	}
	if seen["customers.id"] != 1 {
		t.Errorf("expected customers.id, got %v", seen)
	}
}

func TestFilterColumns_UnqualifiedResolvesToSoleTable(t *testing.T) {
	root := mustParse(t, "SELECT id FROM Orders WHERE Status = 1")

	cols := FilterColumns(root)
	if len(cols) != 1 || cols[0] != "orders.status" {
		t.Errorf("expected column qualified by the sole table, got %v", cols)
	}
}

func TestFilterColumns_UnqualifiedStaysBareOverMultipleTables(t *testing.T) {
	root := mustParse(t,
		"SELECT id FROM orders JOIN customers ON orders.cust_id = customers.id WHERE status = 1")

	cols := FilterColumns(root)
	seen := make(map[string]int)
	for _, c := range cols {
		seen[c]++
	}
	if seen["status"] != 1 {
		t.Errorf("expected ambiguous column to stay bare, got %v", cols)
	}
}
