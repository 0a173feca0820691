package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Rana718/seedgraph/internal/fixerr"
)

const ident = "[\"`\\[]?(\\w+)[\"`\\]]?"

var (
	commentRegex      = regexp.MustCompile(`--.*|/\*[\s\S]*?\*/`)
	whitespaceRegex   = regexp.MustCompile(`\s+`)
	createTableRe     = regexp.MustCompile(`(?i)^CREATE\s+(?:TEMP(?:ORARY)?\s+)?TABLE\s+(?:IF\s+NOT\s+EXISTS\s+)?(?:\w+\.)?` + ident + `\s*\(`)
	constraintRe      = regexp.MustCompile(`(?i)^CONSTRAINT\s+` + ident + `\s+`)
	tablePKRe         = regexp.MustCompile(`(?i)^PRIMARY\s+KEY\s*\(([^)]+)\)`)
	tableFKRe         = regexp.MustCompile(`(?i)^FOREIGN\s+KEY\s*\(([^)]+)\)\s*REFERENCES\s+(?:\w+\.)?` + ident + `\s*(?:\(([^)]+)\))?`)
	tableConstraintRe = regexp.MustCompile(`(?i)^(?:PRIMARY\s+KEY|FOREIGN\s+KEY|UNIQUE|CHECK|CONSTRAINT|EXCLUDE)\b`)
	inlineRefRe       = regexp.MustCompile(`(?i)\bREFERENCES\s+(?:\w+\.)?` + ident + `\s*(?:\(\s*` + ident + `\s*\))?`)
)

// LoadDDLFiles parses CREATE TABLE statements from every file and builds a schema.
func LoadDDLFiles(paths []string) (*Schema, error) {
	b := NewBuilder()
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema file %s: %w", path, err)
		}
		entities, err := ParseDDL(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse schema file %s: %w", filepath.Base(path), err)
		}
		for _, e := range entities {
			b.Add(e)
		}
	}
	return b.Build()
}

// SchemaFiles returns the .sql files of dir in name order.
func SchemaFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema directory %s: %w", dir, err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// ParseDDL extracts entity descriptors from CREATE TABLE statements. Other statements
// are ignored. References are not validated until the entities are built into a Schema.
func ParseDDL(sql string) ([]*Entity, error) {
	var entities []*Entity
	for _, stmt := range Statements(sql) {
		if !createTableRe.MatchString(stmt) {
			continue
		}
		e, err := parseCreateTable(stmt)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// Statements strips comments from sql and splits it into single statements.
func Statements(sql string) []string {
	return splitStatements(cleanSQL(sql))
}

func cleanSQL(sql string) string {
	sql = commentRegex.ReplaceAllString(sql, "")
	return strings.TrimSpace(whitespaceRegex.ReplaceAllString(sql, " "))
}

func splitStatements(sql string) []string {
	statements := strings.Split(sql, ";")
	result := make([]string, 0, len(statements))
	for _, stmt := range statements {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			result = append(result, stmt)
		}
	}
	return result
}

func parseCreateTable(stmt string) (*Entity, error) {
	matches := createTableRe.FindStringSubmatch(stmt)
	name := matches[1]

	start, end := strings.Index(stmt, "("), strings.LastIndex(stmt, ")")
	if start == -1 || end <= start {
		return nil, fixerr.NewSchemaError(name, "invalid CREATE TABLE syntax")
	}

	e := &Entity{Name: name}
	for _, def := range splitDefinitions(stmt[start+1 : end]) {
		if def = strings.TrimSpace(def); def == "" {
			continue
		}
		if isTableConstraint(def) {
			parseTableConstraint(e, def)
			continue
		}
		if err := parseColumn(e, def); err != nil {
			return nil, err
		}
	}

	// primary key columns are implicitly NOT NULL
	for i := range e.Columns {
		if e.IsPrimaryKey(e.Columns[i].Name) {
			e.Columns[i].Nullable = false
		}
	}
	NameNavigations(e)
	return e, nil
}

func splitDefinitions(defs string) []string {
	var result []string
	var current strings.Builder
	parenLevel := 0

	for _, char := range defs {
		switch char {
		case '(':
			parenLevel++
			current.WriteRune(char)
		case ')':
			parenLevel--
			current.WriteRune(char)
		case ',':
			if parenLevel == 0 {
				result = append(result, current.String())
				current.Reset()
			} else {
				current.WriteRune(char)
			}
		default:
			current.WriteRune(char)
		}
	}

	if current.Len() > 0 {
		result = append(result, current.String())
	}
	return result
}

func isTableConstraint(def string) bool {
	return tableConstraintRe.MatchString(def)
}

func parseTableConstraint(e *Entity, def string) {
	var constraintName string
	if m := constraintRe.FindStringSubmatch(def); m != nil {
		constraintName = m[1]
		def = strings.TrimSpace(def[len(m[0]):])
	}

	if m := tablePKRe.FindStringSubmatch(def); m != nil {
		e.PrimaryKey = splitIdentifiers(m[1])
		return
	}
	if m := tableFKRe.FindStringSubmatch(def); m != nil {
		fk := ForeignKey{Name: constraintName, Principal: m[2]}
		dependent := splitIdentifiers(m[1])
		var principal []string
		if m[3] != "" {
			principal = splitIdentifiers(m[3])
		}
		for i, col := range dependent {
			mapping := ColumnMapping{Dependent: col}
			if i < len(principal) {
				mapping.Principal = principal[i]
			}
			fk.Columns = append(fk.Columns, mapping)
		}
		e.ForeignKeys = append(e.ForeignKeys, fk)
	}
}

func parseColumn(e *Entity, def string) error {
	spaceIdx := strings.IndexAny(def, " \t")
	if spaceIdx == -1 {
		return fixerr.NewSchemaError(e.Name, "invalid column definition: %s", def)
	}
	colName := trimIdentifier(def[:spaceIdx])
	rest := strings.TrimSpace(def[spaceIdx+1:])
	restUpper := strings.ToUpper(rest)

	col := Column{
		Name:     colName,
		Type:     ParseSQLType(columnType(rest)),
		Nullable: !strings.Contains(restUpper, "NOT NULL"),
	}
	e.Columns = append(e.Columns, col)

	if strings.Contains(restUpper, "PRIMARY KEY") {
		e.PrimaryKey = append(e.PrimaryKey, colName)
	}
	if m := inlineRefRe.FindStringSubmatch(rest); m != nil {
		e.ForeignKeys = append(e.ForeignKeys, ForeignKey{
			Principal: m[1],
			Columns:   []ColumnMapping{{Dependent: colName, Principal: m[2]}},
		})
	}
	return nil
}

// columnType returns the type token of a column definition, including any parenthesized
// length or precision.
func columnType(rest string) string {
	restUpper := strings.ToUpper(rest)
	for _, multi := range []string{"TIMESTAMP WITH TIME ZONE", "TIMESTAMP WITHOUT TIME ZONE", "DOUBLE PRECISION", "CHARACTER VARYING"} {
		if strings.HasPrefix(restUpper, multi) {
			return multi
		}
	}
	parenDepth := 0
	for i, ch := range rest {
		switch {
		case ch == '(':
			parenDepth++
		case ch == ')':
			parenDepth--
			if parenDepth == 0 {
				return rest[:i+1]
			}
		case parenDepth == 0 && (ch == ' ' || ch == '\t'):
			return rest[:i]
		}
	}
	return rest
}

func splitIdentifiers(list string) []string {
	var out []string
	for _, part := range strings.Split(list, ",") {
		if part = trimIdentifier(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func trimIdentifier(s string) string {
	return strings.Trim(strings.TrimSpace(s), "\"`[]")
}

// NameNavigations gives each foreign key a navigation named after its principal, suffixed
// with the dependent column when several keys point at the same principal.
func NameNavigations(e *Entity) {
	count := make(map[string]int)
	for _, fk := range e.ForeignKeys {
		count[fk.Principal]++
	}
	for i := range e.ForeignKeys {
		fk := &e.ForeignKeys[i]
		if count[fk.Principal] == 1 {
			fk.Navigation = fk.Principal
			continue
		}
		fk.Navigation = fk.Principal + "_" + strings.TrimSuffix(fk.Columns[0].Dependent, "_id")
	}
}
