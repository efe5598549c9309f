package formats

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/digitloom/digitloom/digits"
)

// writeSQLite exports the sequence to a SQLite database with a meta
// table and one row per digit position.
func writeSQLite(path string, out Output) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS digit (
			position INTEGER PRIMARY KEY,
			value    INTEGER NOT NULL
		);
	`); err != nil {
		return err
	}

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	metaStmt, err := tx.Prepare(`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer metaStmt.Close()
	for _, kv := range [][2]string{
		{"spec", out.Spec},
		{"base", fmt.Sprintf("%d", out.Base)},
		{"integer", out.IntPart},
		{"count", fmt.Sprintf("%d", len(out.Frac))},
	} {
		if _, err := metaStmt.Exec(kv[0], kv[1]); err != nil {
			return err
		}
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO digit (position, value) VALUES (?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for i, c := range out.Frac {
		v := digits.DigitValue(c, out.Base)
		if v < 0 {
			return fmt.Errorf("formats: invalid digit %q at position %d", c, i)
		}
		if _, err := stmt.Exec(i, v); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// ReadSQLite loads a previously exported database back into an Output.
func ReadSQLite(path string) (Output, error) {
	var out Output
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return out, err
	}
	defer db.Close()

	rows, err := db.Query(`SELECT key, value FROM meta`)
	if err != nil {
		return out, err
	}
	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return out, err
		}
		meta[k] = v
	}
	if err := rows.Close(); err != nil {
		return out, err
	}
	out.Spec = meta["spec"]
	out.IntPart = meta["integer"]
	if _, err := fmt.Sscanf(meta["base"], "%d", &out.Base); err != nil {
		return out, fmt.Errorf("formats: invalid base in sqlite meta: %w", err)
	}

	drows, err := db.Query(`SELECT position, value FROM digit ORDER BY position`)
	if err != nil {
		return out, err
	}
	defer drows.Close()
	for drows.Next() {
		var pos, v int
		if err := drows.Scan(&pos, &v); err != nil {
			return out, err
		}
		if v < 0 || v >= out.Base {
			return out, fmt.Errorf("formats: digit %d out of range at position %d", v, pos)
		}
		out.Frac = append(out.Frac, digits.Alphabet[v])
	}
	return out, drows.Err()
}
