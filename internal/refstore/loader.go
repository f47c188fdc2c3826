package refstore

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite"

	"github.com/sells-group/counselling-resolver/internal/fetcher"
)

// Loader supplies raw reference records.
type Loader interface {
	Load(ctx context.Context) ([]Record, error)
}

// aliasSep separates aliases inside a single sheet or table cell.
const aliasSep = "|"

// referenceQuery selects reference rows; aliases are a single |-separated
// text column.
const referenceQuery = `SELECT id, entity_type, name,
	COALESCE(aliases, ''), COALESCE(state, ''), COALESCE(city, ''), COALESCE(region, '')
FROM reference_entities
ORDER BY entity_type, id`

// FileLoader reads reference records from a YAML, CSV, TSV, or XLSX file.
type FileLoader struct {
	Path string
}

// Load implements Loader.
func (l FileLoader) Load(ctx context.Context) ([]Record, error) {
	switch strings.ToLower(filepath.Ext(l.Path)) {
	case ".yaml", ".yml":
		return l.loadYAML()
	case ".csv", ".tsv", ".xlsx":
		return l.loadSheet(ctx)
	default:
		return nil, eris.Errorf("refstore: unsupported reference file %q", l.Path)
	}
}

func (l FileLoader) loadYAML() ([]Record, error) {
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, eris.Wrapf(err, "refstore: read %s", l.Path)
	}
	var doc struct {
		Entities []Record `yaml:"entities"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "refstore: parse %s", l.Path)
	}
	return doc.Entities, nil
}

func (l FileLoader) loadSheet(ctx context.Context) ([]Record, error) {
	sheet, err := fetcher.ReadSheet(ctx, l.Path)
	if err != nil {
		return nil, eris.Wrap(err, "refstore: read sheet")
	}
	cols := struct{ id, typ, name, aliases, state, city, region int }{
		id:      sheet.Column("id", "code"),
		typ:     sheet.Column("type", "entity type"),
		name:    sheet.Column("name", "canonical name"),
		aliases: sheet.Column("aliases", "alias", "variations"),
		state:   sheet.Column("state"),
		city:    sheet.Column("city"),
		region:  sheet.Column("region"),
	}
	if cols.id < 0 || cols.typ < 0 || cols.name < 0 {
		return nil, eris.Errorf("refstore: %s must have id, type, and name columns", l.Path)
	}

	records := make([]Record, 0, len(sheet.Rows))
	for _, row := range sheet.Rows {
		records = append(records, Record{
			ID:      fetcher.Value(row, cols.id),
			Type:    fetcher.Value(row, cols.typ),
			Name:    fetcher.Value(row, cols.name),
			Aliases: splitAliases(fetcher.Value(row, cols.aliases)),
			State:   fetcher.Value(row, cols.state),
			City:    fetcher.Value(row, cols.city),
			Region:  fetcher.Value(row, cols.region),
		})
	}
	return records, nil
}

// Querier is the subset of pgxpool.Pool the Postgres loader needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresLoader reads reference records from the reference_entities table.
type PostgresLoader struct {
	db Querier
}

// NewPostgresLoader creates a loader over a pgx pool or connection.
func NewPostgresLoader(db Querier) *PostgresLoader {
	return &PostgresLoader{db: db}
}

// Load implements Loader.
func (l *PostgresLoader) Load(ctx context.Context) ([]Record, error) {
	rows, err := l.db.Query(ctx, referenceQuery)
	if err != nil {
		return nil, eris.Wrap(err, "refstore: query reference_entities")
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var aliases string
		if err := rows.Scan(&r.ID, &r.Type, &r.Name, &aliases, &r.State, &r.City, &r.Region); err != nil {
			return nil, eris.Wrap(err, "refstore: scan reference row")
		}
		r.Aliases = splitAliases(aliases)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "refstore: iterate reference rows")
	}
	return records, nil
}

// SQLiteLoader reads reference records from a SQLite database file.
type SQLiteLoader struct {
	DSN string
}

// Load implements Loader.
func (l SQLiteLoader) Load(ctx context.Context) ([]Record, error) {
	db, err := sql.Open("sqlite", l.DSN)
	if err != nil {
		return nil, eris.Wrap(err, "refstore: open sqlite")
	}
	defer db.Close() //nolint:errcheck

	rows, err := db.QueryContext(ctx, referenceQuery)
	if err != nil {
		return nil, eris.Wrap(err, "refstore: query reference_entities")
	}
	defer rows.Close() //nolint:errcheck

	var records []Record
	for rows.Next() {
		var r Record
		var aliases string
		if err := rows.Scan(&r.ID, &r.Type, &r.Name, &aliases, &r.State, &r.City, &r.Region); err != nil {
			return nil, eris.Wrap(err, "refstore: scan reference row")
		}
		r.Aliases = splitAliases(aliases)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "refstore: iterate reference rows")
	}
	return records, nil
}

// StaticLoader returns a fixed record set.
type StaticLoader []Record

// Load implements Loader.
func (l StaticLoader) Load(context.Context) ([]Record, error) {
	return l, nil
}

func splitAliases(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, a := range strings.Split(s, aliasSep) {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}
