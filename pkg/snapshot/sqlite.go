package snapshot

import (
	"database/sql"
	"fmt"
	"os"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS senses (
	id       TEXT NOT NULL,
	lemma    TEXT NOT NULL,
	gloss    TEXT NOT NULL DEFAULT '',
	position INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_senses_position ON senses(position);
CREATE TABLE IF NOT EXISTS sense_options (
	sense_position INTEGER NOT NULL,
	position       INTEGER NOT NULL,
	type           TEXT NOT NULL,
	value          TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS sense_links (
	sense_position INTEGER NOT NULL,
	target_id      TEXT NOT NULL,
	type           TEXT NOT NULL
);
`

// Executor lets schema and write helpers accept either *sql.DB or *sql.Tx.
type Executor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
}

// InitSchema creates the snapshot tables if they do not exist.
func InitSchema(db Executor) error {
	for _, s := range strings.Split(schemaSQL, ";") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

// WriteSnapshot appends records to a SQLite snapshot inside one transaction.
// Positions continue after any records already present.
func WriteSnapshot(db *sql.DB, records []SenseRecord) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback() // ignored if committed
	}()

	var base int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(position) + 1, 0) FROM senses`).Scan(&base); err != nil {
		return err
	}
	for i, r := range records {
		pos := base + i
		if _, err := tx.Exec(`INSERT INTO senses (id, lemma, gloss, position) VALUES (?, ?, ?, ?)`,
			r.ID, r.Lemma, r.Gloss, pos); err != nil {
			return fmt.Errorf("insert sense %q: %w", r.ID, err)
		}
		for j, o := range r.Options {
			if _, err := tx.Exec(`INSERT INTO sense_options (sense_position, position, type, value) VALUES (?, ?, ?, ?)`,
				pos, j, o.Type, o.Value); err != nil {
				return fmt.Errorf("insert option for %q: %w", r.ID, err)
			}
		}
		for target, typ := range r.Links {
			if _, err := tx.Exec(`INSERT INTO sense_links (sense_position, target_id, type) VALUES (?, ?, ?)`,
				pos, target, typ); err != nil {
				return fmt.Errorf("insert link for %q: %w", r.ID, err)
			}
		}
	}
	return tx.Commit()
}

// LoadSQLite reads a SQLite snapshot opened read-only.
func LoadSQLite(path string) ([]SenseRecord, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, err
	}
	defer db.Close()
	return ReadSnapshot(db)
}

// ReadSnapshot reads every record from an open snapshot database.
func ReadSnapshot(db Executor) ([]SenseRecord, error) {
	rows, err := db.Query(`SELECT id, lemma, gloss, position FROM senses ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("query senses: %w", err)
	}
	var records []SenseRecord
	byPos := make(map[int]int)
	for rows.Next() {
		var r SenseRecord
		var pos int
		if err := rows.Scan(&r.ID, &r.Lemma, &r.Gloss, &pos); err != nil {
			rows.Close()
			return nil, err
		}
		byPos[pos] = len(records)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	optRows, err := db.Query(`SELECT sense_position, type, value FROM sense_options ORDER BY sense_position, position`)
	if err != nil {
		return nil, fmt.Errorf("query options: %w", err)
	}
	for optRows.Next() {
		var pos int
		var o Option
		if err := optRows.Scan(&pos, &o.Type, &o.Value); err != nil {
			optRows.Close()
			return nil, err
		}
		if i, ok := byPos[pos]; ok {
			records[i].Options = append(records[i].Options, o)
		}
	}
	if err := optRows.Err(); err != nil {
		optRows.Close()
		return nil, err
	}
	optRows.Close()

	linkRows, err := db.Query(`SELECT sense_position, target_id, type FROM sense_links`)
	if err != nil {
		return nil, fmt.Errorf("query links: %w", err)
	}
	defer linkRows.Close()
	for linkRows.Next() {
		var pos int
		var target, typ string
		if err := linkRows.Scan(&pos, &target, &typ); err != nil {
			return nil, err
		}
		i, ok := byPos[pos]
		if !ok {
			continue
		}
		if records[i].Links == nil {
			records[i].Links = make(map[string]string)
		}
		records[i].Links[target] = typ
	}
	return records, linkRows.Err()
}
