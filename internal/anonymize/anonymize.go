// Package anonymize replaces warehouse identifiers with reversible,
// class-namespaced hash tokens before statistics leave the process, and
// restores the original names in text that comes back.
package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"

	"github.com/querylens-labs/querylens/pkg/models"
)

// Identifier classes. The class prefix keeps equal names in different roles
// from colliding on the same token.
const (
	ClassTable    = "TBL"
	ClassColumn   = "COL"
	ClassDatabase = "DB"
	ClassSchema   = "SCH"
	ClassPlatform = "PLATFORM"
	ClassProject  = "PROJECT"
)

// Token derives the anonymized token for an identifier: the class name and
// the first eight hex digits of the identifier's SHA-256, wrapped in double
// underscores. Deterministic and unsalted so repeated runs agree.
func Token(class, name string) string {
	sum := sha256.Sum256([]byte(name))
	return "__" + class + "_" + strings.ToUpper(hex.EncodeToString(sum[:4])) + "__"
}

// Map holds the token mappings for one advisory exchange. The reverse
// direction (token to original) is authoritative; the forward map is its
// inverse and is what anonymization consults.
type Map struct {
	forward map[string]string // class \x00 name -> token
	reverse map[string]string // token -> original name
}

// NewMap returns an empty mapping.
func NewMap() *Map {
	return &Map{
		forward: make(map[string]string),
		reverse: make(map[string]string),
	}
}

// Add registers an identifier and returns its token. Registering the same
// class and name again returns the existing token. Empty names map to the
// empty string.
func (m *Map) Add(class, name string) string {
	if name == "" {
		return ""
	}
	key := class + "\x00" + name
	if tok, ok := m.forward[key]; ok {
		return tok
	}
	tok := Token(class, name)
	m.forward[key] = tok
	m.reverse[tok] = name
	return tok
}

// TokenFor returns the token registered for an identifier, registering it
// on first sight.
func (m *Map) TokenFor(class, name string) string {
	return m.Add(class, name)
}

// Original returns the identifier behind a token.
func (m *Map) Original(token string) (string, bool) {
	name, ok := m.reverse[token]
	return name, ok
}

// Reverse returns a copy of the token-to-original mapping.
func (m *Map) Reverse() map[string]string {
	out := make(map[string]string, len(m.reverse))
	for tok, name := range m.reverse {
		out[tok] = name
	}
	return out
}

// Len reports the number of registered identifiers.
func (m *Map) Len() int {
	return len(m.reverse)
}

// BuildMap registers every identifier a statistics bundle can expose: the
// table's scope fields, the partition-statistic columns, and the metadata
// columns.
func BuildMap(stats models.TableStats, platform, project, database, schema, table string) *Map {
	m := NewMap()
	m.Add(ClassPlatform, platform)
	m.Add(ClassProject, project)
	m.Add(ClassDatabase, database)
	m.Add(ClassSchema, schema)
	m.Add(ClassTable, table)
	for _, bucket := range stats.PartitionStats {
		for _, col := range bucket.Columns {
			m.Add(ClassColumn, col.Column)
		}
	}
	if stats.Metadata != nil {
		for _, col := range stats.Metadata.Columns {
			m.Add(ClassColumn, col.Name)
		}
	}
	return m
}

// AnonymizePartitionStats returns a deep copy of the buckets with every
// column name replaced by its token. Columns not yet registered are added.
func AnonymizePartitionStats(buckets []models.PartitionBucketStat, m *Map) []models.PartitionBucketStat {
	out := make([]models.PartitionBucketStat, len(buckets))
	for i, bucket := range buckets {
		out[i].BucketStart = bucket.BucketStart
		out[i].Columns = make([]models.ColumnStat, len(bucket.Columns))
		for j, col := range bucket.Columns {
			out[i].Columns[j].Column = m.Add(ClassColumn, col.Column)
			out[i].Columns[j].FilterTypes = append([]models.FilterTypeCount(nil), col.FilterTypes...)
		}
	}
	return out
}

// AnonymizeMetadata returns a copy of the metadata with all identifying
// fields tokenized. Column types are kept; an empty type becomes "unknown".
func AnonymizeMetadata(meta *models.TableMetadata, m *Map) *models.TableMetadata {
	if meta == nil {
		return nil
	}
	out := &models.TableMetadata{
		Platform:  m.Add(ClassPlatform, meta.Platform),
		Project:   m.Add(ClassProject, meta.Project),
		Database:  m.Add(ClassDatabase, meta.Database),
		Schema:    m.Add(ClassSchema, meta.Schema),
		Table:     m.Add(ClassTable, meta.Table),
		SizeBytes: meta.SizeBytes,
		RowCount:  meta.RowCount,
	}
	for _, col := range meta.Columns {
		colType := col.Type
		if colType == "" {
			colType = "unknown"
		}
		out.Columns = append(out.Columns, models.TableColumn{
			Name: m.Add(ClassColumn, col.Name),
			Type: colType,
		})
	}
	return out
}

// Restore substitutes original identifiers for tokens in free-form text.
// Longer tokens are replaced first so a token that embeds another is never
// half-restored. Each token is matched case-insensitively in its bare,
// backtick-quoted, double-quoted, and single-quoted forms, and after SQL
// keywords that take an identifier.
func Restore(text string, reverse map[string]string) string {
	tokens := make([]string, 0, len(reverse))
	for tok := range reverse {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if len(tokens[i]) != len(tokens[j]) {
			return len(tokens[i]) > len(tokens[j])
		}
		return tokens[i] < tokens[j]
	})

	for _, tok := range tokens {
		// "$" is legal in identifiers on some platforms and would read as a
		// capture reference in the replacement template.
		original := strings.ReplaceAll(reverse[tok], "$", "$$")
		quoted := regexp.QuoteMeta(tok)
		patterns := []struct {
			re          *regexp.Regexp
			replacement string
		}{
			{regexp.MustCompile("(?i)`" + quoted + "`"), original},
			{regexp.MustCompile(`(?i)"` + quoted + `"`), original},
			{regexp.MustCompile(`(?i)'` + quoted + `'`), original},
			{regexp.MustCompile(`(?i)\b(ON|BY|FROM|INTO|TABLE)\s+` + quoted + `\b`), "${1} " + original},
			{regexp.MustCompile(`(?i)\b` + quoted + `\b`), original},
		}
		for _, p := range patterns {
			text = p.re.ReplaceAllString(text, p.replacement)
		}
	}
	return text
}
