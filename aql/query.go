// Package aql builds ArangoDB queries out of trusted line fragments and bind
// variables. Query text is assembled exclusively from code-owned fragments;
// every caller-supplied value travels as a bind variable, never as text.
package aql

import (
	"fmt"
	"strings"

	"github.com/c360/kgraph/types"
)

// Query accumulates AQL lines plus their bind variables.
type Query struct {
	lines    []string
	indent   int
	bindVars map[string]any
}

// New returns an empty query.
func New() *Query {
	return &Query{bindVars: map[string]any{}}
}

// AddLine appends a line of trusted AQL at the current indentation.
func (q *Query) AddLine(line string) *Query {
	q.lines = append(q.lines, strings.Repeat("  ", q.indent)+line)
	return q
}

// Addf appends a formatted line of trusted AQL. The format arguments must be
// code-owned fragments such as collection references, never user input.
func (q *Query) Addf(format string, args ...any) *Query {
	return q.AddLine(fmt.Sprintf(format, args...))
}

// Indent increases the indentation of subsequent lines.
func (q *Query) Indent() *Query {
	q.indent++
	return q
}

// Outdent decreases the indentation of subsequent lines.
func (q *Query) Outdent() *Query {
	if q.indent > 0 {
		q.indent--
	}
	return q
}

// Bind registers a bind variable. Collection bind variables use the "@"-name
// convention of the wire protocol ("@@coll" in the query text binds "@coll").
func (q *Query) Bind(name string, value any) *Query {
	q.bindVars[name] = value
	return q
}

// BindVars returns the accumulated bind variables.
func (q *Query) BindVars() map[string]any {
	return q.bindVars
}

// String renders the query text.
func (q *Query) String() string {
	return strings.Join(q.lines, "\n")
}

// AddPagination emits a LIMIT clause for the window. An unbounded window with
// offset zero emits nothing.
func (q *Query) AddPagination(p types.Pagination) *Query {
	switch {
	case p.IsBounded():
		q.AddLine("LIMIT @paginationFrom, @paginationSize")
		q.Bind("paginationFrom", p.From)
		q.Bind("paginationSize", *p.Size)
	case p.From > 0:
		// AQL has no offset-only form; fall back to a huge page.
		q.AddLine("LIMIT @paginationFrom, @paginationSize")
		q.Bind("paginationFrom", p.From)
		q.Bind("paginationSize", int64(1<<40))
	}
	return q
}

// AddDocumentFilter restricts a loop variable to readable documents. The
// whitelist travels as two bind variables: collections readable as a whole
// and individually granted document ids.
func (q *Query) AddDocumentFilter(alias string, whitelist *ReadWhitelist) *Query {
	if whitelist == nil {
		return q
	}
	q.Addf("FILTER %s.`_collection` IN @readAccessBySpace OR %s.`_id` IN @readAccessByInvitation", alias, alias)
	q.Bind("readAccessBySpace", whitelist.Collections)
	q.Bind("readAccessByInvitation", whitelist.DocumentIDs)
	return q
}

// ReadWhitelist is the materialized read permission of a caller: whole
// collections plus individually invited documents. A nil whitelist means
// unrestricted read.
type ReadWhitelist struct {
	Collections []string
	DocumentIDs []string
}
