// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package database persists articles, their tables, activations and
// NeuroVault links in SQLite. Two drivers are supported: the cgo driver
// github.com/mattn/go-sqlite3 and the pure Go modernc.org/sqlite.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/pdiddy/ace/pkg/types"
)

// ErrArticleNotFound is returned when an article ID is not in the database.
var ErrArticleNotFound = errors.New("article not found")

// now is replaced in tests.
var now = func() time.Time { return time.Now().UTC() }

// Store is the article database.
type Store struct {
	db *sql.DB
}

// NewStore opens or creates the database described by cfg and creates the
// schema if it does not exist.
func NewStore(cfg types.DatabaseConfig) (*Store, error) {
	driver, dsn, err := dataSource(cfg)
	if err != nil {
		return nil, err
	}
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("creating database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps an
	// in-memory database shared across calls.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

func dataSource(cfg types.DatabaseConfig) (driver, dsn string, err error) {
	path := cfg.Path
	if path == "" {
		path = "ace.db"
	}
	switch cfg.Adapter {
	case types.AdapterSQLite3, "":
		return "sqlite3", path + "?_journal_mode=WAL&_foreign_keys=on", nil
	case types.AdapterSQLite:
		if path == ":memory:" {
			return "sqlite", ":memory:", nil
		}
		return "sqlite", "file:" + path + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)", nil
	default:
		return "", "", fmt.Errorf("unsupported database adapter %q", cfg.Adapter)
	}
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS articles (
			id INTEGER PRIMARY KEY,
			title TEXT,
			text TEXT,
			journal TEXT,
			space TEXT,
			publisher TEXT,
			doi TEXT,
			year INTEGER,
			authors TEXT,
			abstract TEXT,
			citation TEXT,
			pubmed_metadata TEXT,
			created_at TEXT,
			updated_at TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS tables (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
			position INTEGER,
			number TEXT,
			label TEXT,
			caption TEXT,
			notes TEXT,
			n_activations INTEGER,
			n_columns INTEGER,
			original_html TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS activations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
			table_id INTEGER NOT NULL REFERENCES tables(id) ON DELETE CASCADE,
			columns TEXT,
			"groups" TEXT,
			problems TEXT,
			x REAL,
			y REAL,
			z REAL,
			number INTEGER,
			region TEXT,
			hemisphere TEXT,
			ba TEXT,
			size TEXT,
			statistic TEXT,
			p_value TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS neurovault_links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			article_id INTEGER NOT NULL REFERENCES articles(id) ON DELETE CASCADE,
			type TEXT,
			neurovault_id TEXT,
			url TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tables_article_id ON tables(article_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activations_table_id ON activations(table_id)`,
		`CREATE INDEX IF NOT EXISTS idx_activations_article_id ON activations(article_id)`,
		`CREATE INDEX IF NOT EXISTS idx_neurovault_links_article_id ON neurovault_links(article_id)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// AddArticle saves an article with its tables, activations and links,
// replacing any stored article with the same ID. The creation time of a
// replaced article is kept. Database IDs are written back into a.
func (s *Store) AddArticle(ctx context.Context, a *types.Article) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ts := now()
	created := ts
	var storedCreated string
	err = tx.QueryRowContext(ctx, `SELECT created_at FROM articles WHERE id = ?`, a.ID).Scan(&storedCreated)
	switch {
	case err == nil:
		if t, perr := time.Parse(time.RFC3339Nano, storedCreated); perr == nil {
			created = t
		}
		if err := deleteArticleTx(ctx, tx, a.ID); err != nil {
			return err
		}
	case !errors.Is(err, sql.ErrNoRows):
		return fmt.Errorf("checking article %d: %w", a.ID, err)
	}
	a.CreatedAt, a.UpdatedAt = created, ts

	var metadataJSON sql.NullString
	if a.Metadata != nil {
		data, err := json.Marshal(a.Metadata)
		if err != nil {
			return fmt.Errorf("encoding metadata: %w", err)
		}
		metadataJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO articles (id, title, text, journal, space, publisher, doi, year,
			authors, abstract, citation, pubmed_metadata, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Text, a.Journal, string(a.Space), a.Publisher, a.DOI, a.Year,
		a.Authors, a.Abstract, a.Citation, metadataJSON,
		created.Format(time.RFC3339Nano), ts.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting article %d: %w", a.ID, err)
	}

	for _, t := range a.Tables {
		if err := insertTable(ctx, tx, a.ID, t); err != nil {
			return err
		}
	}

	for i := range a.NeurovaultLinks {
		l := &a.NeurovaultLinks[i]
		res, err := tx.ExecContext(ctx,
			`INSERT INTO neurovault_links (article_id, type, neurovault_id, url) VALUES (?, ?, ?, ?)`,
			a.ID, l.Type, l.NeurovaultID, l.URL)
		if err != nil {
			return fmt.Errorf("inserting NeuroVault link: %w", err)
		}
		if l.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func insertTable(ctx context.Context, tx *sql.Tx, articleID int64, t *types.Table) error {
	t.Finalize()
	t.ArticleID = articleID
	res, err := tx.ExecContext(ctx,
		`INSERT INTO tables (article_id, position, number, label, caption, notes,
			n_activations, n_columns, original_html)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		articleID, t.Position, t.Number, t.Label, t.Caption, t.Notes,
		t.NActivations, t.NColumns, t.OriginalHTML,
	)
	if err != nil {
		return fmt.Errorf("inserting table %d: %w", t.Position, err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO activations (article_id, table_id, columns, "groups", problems,
			x, y, z, number, region, hemisphere, ba, size, statistic, p_value)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, act := range t.Activations {
		act.ArticleID, act.TableID = articleID, t.ID
		columnsJSON, err := json.Marshal(act.Columns)
		if err != nil {
			return fmt.Errorf("encoding columns: %w", err)
		}
		groupsJSON, _ := json.Marshal(act.Groups)
		problemsJSON, _ := json.Marshal(act.Problems)
		res, err := stmt.ExecContext(ctx,
			articleID, t.ID, string(columnsJSON), string(groupsJSON), string(problemsJSON),
			nullFloat(act.X), nullFloat(act.Y), nullFloat(act.Z), act.Number,
			act.Region, act.Hemisphere, act.BA, act.Size, act.Statistic, act.PValue,
		)
		if err != nil {
			return fmt.Errorf("inserting activation: %w", err)
		}
		if act.ID, err = res.LastInsertId(); err != nil {
			return err
		}
	}
	return nil
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

// ArticleExists reports whether an article with the given PubMed ID is stored.
func (s *Store) ArticleExists(ctx context.Context, pmid int64) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM articles WHERE id = ?`, pmid).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("querying article %d: %w", pmid, err)
	}
	return n > 0, nil
}

// DeleteArticle removes an article and everything extracted from it.
func (s *Store) DeleteArticle(ctx context.Context, pmid int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT count(*) FROM articles WHERE id = ?`, pmid).Scan(&n); err != nil {
		return fmt.Errorf("querying article %d: %w", pmid, err)
	}
	if n == 0 {
		return fmt.Errorf("article %d: %w", pmid, ErrArticleNotFound)
	}
	if err := deleteArticleTx(ctx, tx, pmid); err != nil {
		return err
	}
	return tx.Commit()
}

// deleteArticleTx deletes children explicitly so removal does not depend
// on the driver enforcing foreign keys.
func deleteArticleTx(ctx context.Context, tx *sql.Tx, pmid int64) error {
	for _, stmt := range []string{
		`DELETE FROM activations WHERE article_id = ?`,
		`DELETE FROM tables WHERE article_id = ?`,
		`DELETE FROM neurovault_links WHERE article_id = ?`,
		`DELETE FROM articles WHERE id = ?`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, pmid); err != nil {
			return fmt.Errorf("deleting article %d: %w", pmid, err)
		}
	}
	return nil
}

// Stats counts the rows of each table.
type Stats struct {
	Articles        int `json:"articles" yaml:"articles"`
	Tables          int `json:"tables" yaml:"tables"`
	Activations     int `json:"activations" yaml:"activations"`
	NeurovaultLinks int `json:"neurovault_links" yaml:"neurovault_links"`
}

func (st Stats) String() string {
	return fmt.Sprintf("The database currently contains:\n\t%d articles\n\t%d tables\n\t%d activations\n\t%d NeuroVault links",
		st.Articles, st.Tables, st.Activations, st.NeurovaultLinks)
}

// Stats summarises the current state of the database.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	counts := []struct {
		table string
		dst   *int
	}{
		{"articles", &st.Articles},
		{"tables", &st.Tables},
		{"activations", &st.Activations},
		{"neurovault_links", &st.NeurovaultLinks},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM `+c.table).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("counting %s: %w", c.table, err)
		}
	}
	return st, nil
}

// Filter selects articles. The zero Filter selects every article.
type Filter struct {
	// IDs restricts the result to these PubMed IDs.
	IDs []int64

	// Journal matches the journal name exactly.
	Journal string

	// Space matches the guessed stereotactic space.
	Space types.Space

	// Query matches a substring of the title or abstract, case-insensitively.
	Query string

	// Limit caps the number of articles. Zero means no limit.
	Limit int
}

func (f Filter) where() (string, []any) {
	var (
		clauses []string
		args    []any
	)
	if len(f.IDs) > 0 {
		ph := strings.TrimSuffix(strings.Repeat("?,", len(f.IDs)), ",")
		clauses = append(clauses, "id IN ("+ph+")")
		for _, id := range f.IDs {
			args = append(args, id)
		}
	}
	if f.Journal != "" {
		clauses = append(clauses, "journal = ?")
		args = append(args, f.Journal)
	}
	if f.Space != "" {
		clauses = append(clauses, "space = ?")
		args = append(args, string(f.Space))
	}
	if f.Query != "" {
		clauses = append(clauses, "(lower(title) LIKE ? OR lower(abstract) LIKE ?)")
		like := "%" + strings.ToLower(f.Query) + "%"
		args = append(args, like, like)
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// Articles returns the articles matching f ordered by ID, each with its
// tables, activations and links loaded.
func (s *Store) Articles(ctx context.Context, f Filter) ([]*types.Article, error) {
	where, args := f.where()
	q := `SELECT id, title, text, journal, space, publisher, doi, year, authors,
		abstract, citation, pubmed_metadata, created_at, updated_at
		FROM articles` + where + ` ORDER BY id`
	if f.Limit > 0 {
		q += " LIMIT ?"
		args = append(args, f.Limit)
	}

	articles, err := s.queryArticles(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	for _, a := range articles {
		if err := s.loadChildren(ctx, a); err != nil {
			return nil, err
		}
	}
	return articles, nil
}

// Article returns one article with everything extracted from it.
func (s *Store) Article(ctx context.Context, pmid int64) (*types.Article, error) {
	articles, err := s.Articles(ctx, Filter{IDs: []int64{pmid}})
	if err != nil {
		return nil, err
	}
	if len(articles) == 0 {
		return nil, fmt.Errorf("article %d: %w", pmid, ErrArticleNotFound)
	}
	return articles[0], nil
}

// queryArticles reads article rows completely before returning, so that
// child queries can reuse the single connection.
func (s *Store) queryArticles(ctx context.Context, q string, args ...any) ([]*types.Article, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying articles: %w", err)
	}
	defer rows.Close()

	var out []*types.Article
	for rows.Next() {
		var (
			a                    types.Article
			title, text, journal sql.NullString
			space, publisher     sql.NullString
			doi, authors         sql.NullString
			abstract, citation   sql.NullString
			metadata             sql.NullString
			created, updated     sql.NullString
			year                 sql.NullInt64
		)
		if err := rows.Scan(&a.ID, &title, &text, &journal, &space, &publisher, &doi, &year,
			&authors, &abstract, &citation, &metadata, &created, &updated); err != nil {
			return nil, fmt.Errorf("scanning article: %w", err)
		}
		a.Title, a.Text, a.Journal = title.String, text.String, journal.String
		a.Space, a.Publisher, a.DOI = types.Space(space.String), publisher.String, doi.String
		a.Year = int(year.Int64)
		a.Authors, a.Abstract, a.Citation = authors.String, abstract.String, citation.String
		if metadata.Valid && metadata.String != "" {
			var md types.PubMedMetadata
			if err := json.Unmarshal([]byte(metadata.String), &md); err != nil {
				return nil, fmt.Errorf("decoding metadata of article %d: %w", a.ID, err)
			}
			a.Metadata = &md
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, created.String)
		a.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated.String)
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *Store) loadChildren(ctx context.Context, a *types.Article) error {
	tables, err := s.tables(ctx, a.ID)
	if err != nil {
		return err
	}
	byID := make(map[int64]*types.Table, len(tables))
	for _, t := range tables {
		byID[t.ID] = t
	}

	acts, err := s.activations(ctx, a.ID)
	if err != nil {
		return err
	}
	for _, act := range acts {
		if t, ok := byID[act.TableID]; ok {
			t.Activations = append(t.Activations, act)
		}
	}
	a.Tables = tables

	links, err := s.links(ctx, a.ID)
	if err != nil {
		return err
	}
	a.NeurovaultLinks = links
	return nil
}

func (s *Store) tables(ctx context.Context, articleID int64) ([]*types.Table, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, position, number, label, caption, notes, n_activations, n_columns, original_html
		 FROM tables WHERE article_id = ? ORDER BY position, id`, articleID)
	if err != nil {
		return nil, fmt.Errorf("querying tables: %w", err)
	}
	defer rows.Close()

	var out []*types.Table
	for rows.Next() {
		t := &types.Table{ArticleID: articleID}
		var number, label, caption, notes, html sql.NullString
		if err := rows.Scan(&t.ID, &t.Position, &number, &label, &caption, &notes,
			&t.NActivations, &t.NColumns, &html); err != nil {
			return nil, fmt.Errorf("scanning table: %w", err)
		}
		t.Number, t.Label, t.Caption, t.Notes = number.String, label.String, caption.String, notes.String
		t.OriginalHTML = html.String
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) activations(ctx context.Context, articleID int64) ([]*types.Activation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, table_id, columns, "groups", problems, x, y, z, number,
			region, hemisphere, ba, size, statistic, p_value
		 FROM activations WHERE article_id = ? ORDER BY id`, articleID)
	if err != nil {
		return nil, fmt.Errorf("querying activations: %w", err)
	}
	defer rows.Close()

	var out []*types.Activation
	for rows.Next() {
		act := &types.Activation{ArticleID: articleID}
		var (
			columns, groups, problems sql.NullString
			x, y, z                   sql.NullFloat64
			number                    sql.NullInt64
			region, hemisphere, ba    sql.NullString
			size, statistic, pValue   sql.NullString
		)
		if err := rows.Scan(&act.ID, &act.TableID, &columns, &groups, &problems, &x, &y, &z, &number,
			&region, &hemisphere, &ba, &size, &statistic, &pValue); err != nil {
			return nil, fmt.Errorf("scanning activation: %w", err)
		}
		if err := decodeJSON(columns, &act.Columns); err != nil {
			return nil, fmt.Errorf("decoding columns of activation %d: %w", act.ID, err)
		}
		if err := decodeJSON(groups, &act.Groups); err != nil {
			return nil, fmt.Errorf("decoding groups of activation %d: %w", act.ID, err)
		}
		if err := decodeJSON(problems, &act.Problems); err != nil {
			return nil, fmt.Errorf("decoding problems of activation %d: %w", act.ID, err)
		}
		act.X, act.Y, act.Z = floatPtr(x), floatPtr(y), floatPtr(z)
		act.Number = int(number.Int64)
		act.Region, act.Hemisphere, act.BA = region.String, hemisphere.String, ba.String
		act.Size, act.Statistic, act.PValue = size.String, statistic.String, pValue.String
		out = append(out, act)
	}
	return out, rows.Err()
}

func (s *Store) links(ctx context.Context, articleID int64) ([]types.NeurovaultLink, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, type, neurovault_id, url FROM neurovault_links WHERE article_id = ? ORDER BY id`, articleID)
	if err != nil {
		return nil, fmt.Errorf("querying NeuroVault links: %w", err)
	}
	defer rows.Close()

	var out []types.NeurovaultLink
	for rows.Next() {
		var l types.NeurovaultLink
		if err := rows.Scan(&l.ID, &l.Type, &l.NeurovaultID, &l.URL); err != nil {
			return nil, fmt.Errorf("scanning NeuroVault link: %w", err)
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func decodeJSON(v sql.NullString, dst any) error {
	if !v.Valid || v.String == "" || v.String == "null" {
		return nil
	}
	return json.Unmarshal([]byte(v.String), dst)
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
