// Package sqlast defines the statement tree consumed by the fact extractor,
// together with the Parser and Optimizer collaborator contracts.
//
// The node set is closed: every kind the extractor understands is listed in
// the Kind enum, and the extractor dispatches on Kind rather than on Go types.
// An unhandled kind is a test-time gap, not a silent miss.
package sqlast

// Kind identifies a node variant.
type Kind int

const (
	KindSelect Kind = iota
	KindFrom
	KindJoin
	KindWhere
	KindHaving
	KindOrder
	KindGroup
	KindTable
	KindColumn
	KindIdentifier
	KindSubquery
	KindCTE
	KindStar
	KindMerge
)

var kindNames = map[Kind]string{
	KindSelect:     "Select",
	KindFrom:       "From",
	KindJoin:       "Join",
	KindWhere:      "Where",
	KindHaving:     "Having",
	KindOrder:      "Order",
	KindGroup:      "Group",
	KindTable:      "Table",
	KindColumn:     "Column",
	KindIdentifier: "Identifier",
	KindSubquery:   "Subquery",
	KindCTE:        "CTE",
	KindStar:       "Star",
	KindMerge:      "Merge",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Node is one tagged variant in a statement tree. Which fields are meaningful
// depends on Kind:
//
//   - Table: Catalog, DB, Name, Alias. Catalog maps to the "database" field
//     and DB to "schema" in derived facts. The swap matches the platform's own
//     catalog/schema nesting and is intentional.
//   - Column: Name plus Qualifier (the table qualifier as written, possibly
//     an alias; empty for unqualified columns).
//   - Star: Qualifier holds the alias for "alias.*", empty for a bare "*".
//   - Identifier: Name holds the raw identifier text.
//   - CTE: Name is the definition's alias; Children holds the body.
//   - Subquery: Alias names the derived table; Children holds the inner select.
//   - Select: Children holds CTE definitions, projection items (Star, Column,
//     Identifier), and clause nodes (From, Where, Having, Group, Order).
//   - From: Children holds table expressions (Table, Subquery, Join).
//   - Join: Children holds the joined table expressions; On holds the columns
//     and subqueries of the ON condition.
//   - Where, Having, Group, Order: Children holds the Column and Subquery
//     nodes referenced by the clause. Operator structure is not preserved:
//     predicate semantics, not expression shape, drive the analysis.
//   - Merge: Children holds the write target; Using holds the read sources.
type Node struct {
	Kind      Kind
	Name      string
	Qualifier string
	Catalog   string
	DB        string
	Alias     string
	Children  []*Node
	On        []*Node
	Using     []*Node
}

// AliasOrName returns the node's alias, falling back to its name.
// Mirrors how an unaliased table is referenced by its bare name.
func (n *Node) AliasOrName() string {
	if n.Alias != "" {
		return n.Alias
	}
	return n.Name
}

// Walk visits n and every descendant in pre-order, including On and Using
// subtrees. Traversal stops descending below a node when fn returns false.
func Walk(n *Node, fn func(*Node) bool) {
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		Walk(c, fn)
	}
	for _, c := range n.On {
		Walk(c, fn)
	}
	for _, c := range n.Using {
		Walk(c, fn)
	}
}

// FindAll returns every node of the given kind in pre-order.
func FindAll(n *Node, kind Kind) []*Node {
	var out []*Node
	Walk(n, func(c *Node) bool {
		if c.Kind == kind {
			out = append(out, c)
		}
		return true
	})
	return out
}
