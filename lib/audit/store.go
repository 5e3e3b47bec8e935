// Package audit keeps terminal outcomes of pursuits in SQLite for offline analysis
package audit

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/op/go-logging"
	"github.com/pkg/errors"
	"github.com/unioproject/tbpromoter/lib/pursuit"
)

const sqlCreateTable = `CREATE TABLE IF NOT EXISTS outcomes (
		bundle char(81) not null,
		tx char(81) not null,
		outcome char(12) not null,
		value integer,
		started integer not null,
		elapsed_sec integer,
		rounds integer,
		promotions integer,
		reattachments integer,
		reason varchar(100)
	)`

const sqlCreateIndex = `CREATE INDEX IF NOT EXISTS outcomes_started ON outcomes (started)`

type Store struct {
	dbconn *sql.DB
	log    *logging.Logger
}

// Open opens or creates the database file
func Open(dbPathName string, log *logging.Logger) (*Store, error) {
	dbconn, err := sql.Open("sqlite3", dbPathName+"?_timeout=5000")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db at %v", dbPathName)
	}
	// sqlite allows one writer
	dbconn.SetMaxOpenConns(1)
	for _, stmt := range []string{sqlCreateTable, sqlCreateIndex} {
		if _, err = dbconn.Exec(stmt); err != nil {
			_ = dbconn.Close()
			return nil, errors.Wrapf(err, "failed to create table in %v", dbPathName)
		}
	}
	if log != nil {
		log.Infof("AUDIT: database file '%v'", dbPathName)
	}
	return &Store{dbconn: dbconn, log: log}, nil
}

func (st *Store) Close() error {
	return st.dbconn.Close()
}

func (st *Store) Record(out *pursuit.Outcome) error {
	_, err := st.dbconn.Exec(
		`INSERT INTO outcomes (bundle, tx, outcome, value, started, elapsed_sec, rounds, promotions, reattachments, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		out.BundleHash, out.TxHash, string(out.State), out.Value, out.Started.Unix(),
		int64(out.Elapsed/time.Second), out.Rounds, out.Promotions, out.Reattachments, out.Reason)
	if err != nil {
		return errors.Wrapf(err, "recording outcome of %v", out.BundleHash)
	}
	return nil
}

// OnOutcome records and logs the error, if any
func (st *Store) OnOutcome(out *pursuit.Outcome) {
	if err := st.Record(out); err != nil && st.log != nil {
		st.log.Errorf("AUDIT: %v", err)
	}
}

// Summary returns number of outcomes of pursuits started since the time, per state
func (st *Store) Summary(since time.Time) (map[pursuit.State]int, error) {
	rows, err := st.dbconn.Query(
		`SELECT outcome, count(*) FROM outcomes WHERE started >= ? GROUP BY outcome`, since.Unix())
	if err != nil {
		return nil, errors.Wrap(err, "querying outcomes")
	}
	defer rows.Close()

	ret := make(map[pursuit.State]int)
	for rows.Next() {
		var state string
		var count int
		if err = rows.Scan(&state, &count); err != nil {
			return nil, errors.Wrap(err, "scanning outcomes")
		}
		ret[pursuit.State(state)] = count
	}
	return ret, rows.Err()
}
