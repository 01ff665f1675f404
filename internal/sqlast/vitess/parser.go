// Package vitess adapts the vitess-derived sqlparser to the sqlast node model.
//
// Grammar limits of the upstream parser (no WITH clause, no MERGE) surface as
// ParseError; the analyzer records those statements as error facts and moves
// on, so a partial grammar degrades coverage per-statement, never the batch.
package vitess

import (
	"fmt"

	"github.com/xwb1989/sqlparser"

	"github.com/querylens-labs/querylens/internal/sqlast"
)

// Parser implements sqlast.Parser on top of xwb1989/sqlparser.
type Parser struct{}

// NewParser creates a new vitess-backed parser.
func NewParser() *Parser {
	return &Parser{}
}

// Parse parses a SQL statement into a sqlast tree.
// The dialect tag is carried into ParseError for diagnostics; the underlying
// grammar itself is fixed.
func (p *Parser) Parse(sql, dialect string) (*sqlast.Node, error) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return nil, sqlast.NewParseError(sql, dialect, err)
	}

	node := convertStatement(stmt)
	if node == nil {
		return nil, sqlast.NewParseError(sql, dialect,
			fmt.Errorf("unsupported statement type %T", stmt))
	}
	return node, nil
}

func convertStatement(stmt sqlparser.Statement) *sqlast.Node {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return convertSelect(s)
	case *sqlparser.Union:
		return convertUnion(s)
	case *sqlparser.ParenSelect:
		return convertStatement(s.Select)
	case *sqlparser.Insert:
		// INSERT ... SELECT reads tables; INSERT ... VALUES reads nothing.
		if sel, ok := s.Rows.(sqlparser.SelectStatement); ok {
			return convertSelectStatement(sel)
		}
		return &sqlast.Node{Kind: sqlast.KindSelect}
	case *sqlparser.Update:
		return convertModify(s.TableExprs, s.Where, s.OrderBy)
	case *sqlparser.Delete:
		return convertModify(s.TableExprs, s.Where, s.OrderBy)
	default:
		return nil
	}
}

func convertSelectStatement(stmt sqlparser.SelectStatement) *sqlast.Node {
	switch s := stmt.(type) {
	case *sqlparser.Select:
		return convertSelect(s)
	case *sqlparser.Union:
		return convertUnion(s)
	case *sqlparser.ParenSelect:
		return convertSelectStatement(s.Select)
	default:
		return nil
	}
}

func convertSelect(s *sqlparser.Select) *sqlast.Node {
	node := &sqlast.Node{Kind: sqlast.KindSelect}

	for _, se := range s.SelectExprs {
		switch e := se.(type) {
		case *sqlparser.StarExpr:
			node.Children = append(node.Children, &sqlast.Node{
				Kind:      sqlast.KindStar,
				Qualifier: e.TableName.Name.String(),
			})
		case *sqlparser.AliasedExpr:
			node.Children = append(node.Children, convertExpr(e.Expr)...)
		}
	}

	if len(s.From) > 0 {
		from := &sqlast.Node{Kind: sqlast.KindFrom}
		for _, te := range s.From {
			from.Children = append(from.Children, convertTableExpr(te)...)
		}
		node.Children = append(node.Children, from)
	}

	if s.Where != nil {
		node.Children = append(node.Children, &sqlast.Node{
			Kind:     sqlast.KindWhere,
			Children: convertExpr(s.Where.Expr),
		})
	}
	if len(s.GroupBy) > 0 {
		group := &sqlast.Node{Kind: sqlast.KindGroup}
		for _, expr := range s.GroupBy {
			group.Children = append(group.Children, convertExpr(expr)...)
		}
		node.Children = append(node.Children, group)
	}
	if s.Having != nil {
		node.Children = append(node.Children, &sqlast.Node{
			Kind:     sqlast.KindHaving,
			Children: convertExpr(s.Having.Expr),
		})
	}
	if len(s.OrderBy) > 0 {
		node.Children = append(node.Children, convertOrderBy(s.OrderBy))
	}

	return node
}

// convertUnion wraps both sides in a parent node so each branch's projection
// is evaluated in its own scope. The wrapper itself projects nothing.
func convertUnion(u *sqlparser.Union) *sqlast.Node {
	node := &sqlast.Node{Kind: sqlast.KindSelect}
	if left := convertSelectStatement(u.Left); left != nil {
		node.Children = append(node.Children, left)
	}
	if right := convertSelectStatement(u.Right); right != nil {
		node.Children = append(node.Children, right)
	}
	if len(u.OrderBy) > 0 {
		node.Children = append(node.Children, convertOrderBy(u.OrderBy))
	}
	return node
}

// convertModify shapes UPDATE/DELETE into the same tree a SELECT produces:
// the modified tables behave as read references for analysis purposes.
func convertModify(exprs sqlparser.TableExprs, where *sqlparser.Where, orderBy sqlparser.OrderBy) *sqlast.Node {
	node := &sqlast.Node{Kind: sqlast.KindSelect}

	if len(exprs) > 0 {
		from := &sqlast.Node{Kind: sqlast.KindFrom}
		for _, te := range exprs {
			from.Children = append(from.Children, convertTableExpr(te)...)
		}
		node.Children = append(node.Children, from)
	}
	if where != nil {
		node.Children = append(node.Children, &sqlast.Node{
			Kind:     sqlast.KindWhere,
			Children: convertExpr(where.Expr),
		})
	}
	if len(orderBy) > 0 {
		node.Children = append(node.Children, convertOrderBy(orderBy))
	}
	return node
}

func convertOrderBy(orderBy sqlparser.OrderBy) *sqlast.Node {
	order := &sqlast.Node{Kind: sqlast.KindOrder}
	for _, o := range orderBy {
		order.Children = append(order.Children, convertExpr(o.Expr)...)
	}
	return order
}

func convertTableExpr(te sqlparser.TableExpr) []*sqlast.Node {
	switch e := te.(type) {
	case *sqlparser.AliasedTableExpr:
		switch inner := e.Expr.(type) {
		case sqlparser.TableName:
			// The grammar carries two qualification levels: qualifier.name.
			// The outermost (catalog) level is absent and stays empty.
			return []*sqlast.Node{{
				Kind:  sqlast.KindTable,
				Name:  inner.Name.String(),
				DB:    inner.Qualifier.String(),
				Alias: e.As.String(),
			}}
		case *sqlparser.Subquery:
			sub := &sqlast.Node{Kind: sqlast.KindSubquery, Alias: e.As.String()}
			if sel := convertSelectStatement(inner.Select); sel != nil {
				sub.Children = []*sqlast.Node{sel}
			}
			return []*sqlast.Node{sub}
		}
		return nil
	case *sqlparser.ParenTableExpr:
		var out []*sqlast.Node
		for _, inner := range e.Exprs {
			out = append(out, convertTableExpr(inner)...)
		}
		return out
	case *sqlparser.JoinTableExpr:
		join := &sqlast.Node{Kind: sqlast.KindJoin}
		join.Children = append(join.Children, convertTableExpr(e.LeftExpr)...)
		join.Children = append(join.Children, convertTableExpr(e.RightExpr)...)
		join.On = convertExpr(e.Condition.On)
		for _, col := range e.Condition.Using {
			join.On = append(join.On, &sqlast.Node{
				Kind: sqlast.KindColumn,
				Name: col.String(),
			})
		}
		return []*sqlast.Node{join}
	default:
		return nil
	}
}

// convertExpr flattens an expression into its Column and Subquery nodes.
// Operator structure is dropped; the analyzer only consumes references.
// Traversal does not descend into subqueries here: their internals are
// converted recursively and analyzed in their own scope.
func convertExpr(expr sqlparser.Expr) []*sqlast.Node {
	if expr == nil {
		return nil
	}
	var out []*sqlast.Node
	sqlparser.Walk(func(node sqlparser.SQLNode) (bool, error) {
		switch n := node.(type) {
		case *sqlparser.ColName:
			out = append(out, &sqlast.Node{
				Kind:      sqlast.KindColumn,
				Name:      n.Name.String(),
				Qualifier: n.Qualifier.Name.String(),
			})
			return false, nil
		case *sqlparser.Subquery:
			sub := &sqlast.Node{Kind: sqlast.KindSubquery}
			if sel := convertSelectStatement(n.Select); sel != nil {
				sub.Children = []*sqlast.Node{sel}
			}
			out = append(out, sub)
			return false, nil
		}
		return true, nil
	}, expr)
	return out
}

var _ sqlast.Parser = (*Parser)(nil)
