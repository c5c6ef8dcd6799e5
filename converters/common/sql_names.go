package common

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	TablePrefix  = "tb"
	ColumnPrefix = "cl"
)

var (
	runsOfSpace   = regexp.MustCompile(`\s+`)
	disallowedSQL = regexp.MustCompile(`[^a-zA-Z0-9 _]+`)
)

// sqliteKeywords holds the lowercase SQLite keywords (https://sqlite.org/lang_keywords.html)
// that cannot be used as bare identifiers.
var sqliteKeywords = makeSet(
	"abort", "action", "add", "after", "all", "alter", "always", "analyze", "and", "as",
	"asc", "attach", "autoincrement", "before", "begin", "between", "by", "cascade", "case", "cast",
	"check", "collate", "column", "commit", "conflict", "constraint", "create", "cross", "current", "current_date",
	"current_time", "current_timestamp", "database", "default", "deferrable", "deferred", "delete", "desc", "detach", "distinct",
	"do", "drop", "each", "else", "end", "escape", "except", "exclude", "exclusive", "exists",
	"explain", "fail", "filter", "first", "following", "for", "foreign", "from", "full", "generated",
	"glob", "group", "groups", "having", "if", "ignore", "immediate", "in", "index", "indexed",
	"initially", "inner", "insert", "instead", "intersect", "into", "is", "isnull", "join", "key",
	"last", "left", "like", "limit", "match", "materialized", "natural", "no", "not", "nothing",
	"notnull", "null", "nulls", "of", "offset", "on", "or", "order", "others", "outer",
	"over", "partition", "plan", "pragma", "preceding", "primary", "query", "raise", "range", "recursive",
	"references", "regexp", "reindex", "release", "rename", "replace", "restrict", "returning", "right", "rollback",
	"row", "rows", "savepoint", "select", "set", "table", "temp", "temporary", "then", "ties",
	"to", "transaction", "trigger", "unbounded", "union", "unique", "update", "using", "vacuum", "values",
	"view", "virtual", "when", "where", "window", "with", "without",
)

func makeSet(words ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}

// GenCompliantNames turns raw header or table names into SQLite identifiers:
// lower snake case, disallowed characters stripped, keywords suffixed with
// "_", and duplicates numbered. A name that ends up empty becomes
// {prefix}{idx}; one starting with a digit is prefixed with {prefix}{idx}.
func GenCompliantNames(rawnames []string, prefix string) []string {
	out := make([]string, len(rawnames))
	seen := map[string]int{}
	for idx, item := range rawnames {
		item = strings.TrimSpace(item)
		item = disallowedSQL.ReplaceAllString(item, "")
		item = runsOfSpace.ReplaceAllString(item, "_")
		item = strings.ToLower(item)

		switch {
		case item == "":
			item = fmt.Sprintf("%s%d", prefix, idx)
		case item[0] >= '0' && item[0] <= '9':
			item = fmt.Sprintf("%s%d%s", prefix, idx, item)
		}
		if _, ok := sqliteKeywords[item]; ok {
			item += "_"
		}

		seen[item]++
		if n := seen[item]; n > 1 {
			item = fmt.Sprintf("%s%d", item, n)
		}
		out[idx] = item
	}
	return out
}

// GenColumnNames sanitizes raw headers into column names (cl0, cl1, ... for junk).
func GenColumnNames(rawheaders []string) []string {
	return GenCompliantNames(rawheaders, ColumnPrefix)
}

// GenTableNames sanitizes raw table names (tb0, tb1, ... for junk).
func GenTableNames(rawtables []string) []string {
	return GenCompliantNames(rawtables, TablePrefix)
}

// GenCreateTableSQL generates a CREATE TABLE statement with every column typed TEXT.
// CSV fields are text; typing them is left to queries.
func GenCreateTableSQL(tableName string, columnNames []string) string {
	var b strings.Builder
	b.Grow(len(tableName) + len(columnNames)*16)
	b.WriteString("CREATE TABLE ")
	b.WriteString(tableName)
	b.WriteString(" (")
	for i, name := range columnNames {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteString(" TEXT")
	}
	b.WriteByte(')')
	return b.String()
}

// GenInsertSQL generates a prepared INSERT statement for the given columns.
func GenInsertSQL(tableName string, columnNames []string) (string, error) {
	if tableName == "" || len(columnNames) == 0 {
		return "", fmt.Errorf("table name and fields are required")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableName,
		strings.Join(columnNames, ","),
		strings.Repeat("?,", len(columnNames)-1)+"?",
	), nil
}
