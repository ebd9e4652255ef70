// Package resultstore persists search runs, their Pareto candidates and
// response summaries in a local sqlite database. Hyperparameter and
// decomposition payloads are stored as zstd-compressed JSON blobs.
package resultstore

import (
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/brandwave-data/mixmodel/internal/model"
	"github.com/brandwave-data/mixmodel/internal/monitoring"
	"github.com/brandwave-data/mixmodel/internal/pareto"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrCandidateNotFound is raised when a lookup names a solution ID absent
// from the run.
var ErrCandidateNotFound = errors.New("resultstore: candidate not found")

// RunMeta describes one stored search run.
type RunMeta struct {
	RunID      string
	DepVar     string
	DepVarType string
	Adstock    string
	Trials     int
	Iterations int
	Seed       int64
	BestSolID  string
}

// Store is a sqlite-backed result archive.
type Store struct {
	db  *sql.DB
	enc *zstd.Encoder
	dec *zstd.Decoder
}

// Open opens (or creates) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("resultstore: open %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;`); err != nil {
		db.Close()
		return nil, fmt.Errorf("resultstore: set pragmas: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, enc: enc, dec: dec}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database and codec resources.
func (s *Store) Close() error {
	s.enc.Close()
	s.dec.Close()
	return s.db.Close()
}

func (s *Store) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("resultstore: load migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("resultstore: create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("resultstore: create migrate instance: %w", err)
	}
	// Not closed: closing would close the shared DB connection.
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("resultstore: migration up failed: %w", err)
	}
	return nil
}

// CreateRun inserts a run row, assigning a fresh UUID when RunID is empty.
// The assigned ID is written back into meta.
func (s *Store) CreateRun(meta *RunMeta) error {
	if meta.RunID == "" {
		meta.RunID = uuid.NewString()
	}
	_, err := s.db.Exec(`
		INSERT INTO runs (run_id, dep_var, dep_var_type, adstock, trials, iterations, seed, best_sol_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		meta.RunID, meta.DepVar, meta.DepVarType, meta.Adstock,
		meta.Trials, meta.Iterations, meta.Seed, meta.BestSolID)
	if err != nil {
		return fmt.Errorf("resultstore: insert run: %w", err)
	}
	return nil
}

// SetBestSolution records the winning solution ID on a run.
func (s *Store) SetBestSolution(runID, solID string) error {
	res, err := s.db.Exec(`UPDATE runs SET best_sol_id = ? WHERE run_id = ?`, solID, runID)
	if err != nil {
		return fmt.Errorf("resultstore: update best solution: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("resultstore: run %q not found", runID)
	}
	return nil
}

// Runs lists all stored runs, newest first.
func (s *Store) Runs() ([]RunMeta, error) {
	rows, err := s.db.Query(`
		SELECT run_id, dep_var, dep_var_type, adstock, trials, iterations, seed, COALESCE(best_sol_id, '')
		FROM runs ORDER BY created_at DESC, run_id`)
	if err != nil {
		return nil, fmt.Errorf("resultstore: list runs: %w", err)
	}
	defer rows.Close()

	var out []RunMeta
	for rows.Next() {
		var m RunMeta
		if err := rows.Scan(&m.RunID, &m.DepVar, &m.DepVarType, &m.Adstock,
			&m.Trials, &m.Iterations, &m.Seed, &m.BestSolID); err != nil {
			return nil, fmt.Errorf("resultstore: scan run: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveCandidates stores selected candidates for a run in one transaction.
func (s *Store) SaveCandidates(runID string, cands []pareto.Candidate) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("resultstore: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO candidates (run_id, sol_id, trial, iteration, nrmse, decomp_rssd, mape, front, error_score, params_blob, decomp_blob)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("resultstore: prepare candidate insert: %w", err)
	}
	defer stmt.Close()

	for _, c := range cands {
		paramsBlob, err := s.compressJSON(c.Params)
		if err != nil {
			return fmt.Errorf("resultstore: encode params for %s: %w", c.SolID, err)
		}
		decompBlob, err := s.compressJSON(c.Decomp)
		if err != nil {
			return fmt.Errorf("resultstore: encode decomp for %s: %w", c.SolID, err)
		}
		if _, err := stmt.Exec(runID, c.SolID, c.Trial, c.Iteration,
			c.NRMSE, c.DecompRSSD, c.MAPE, c.Front, c.ErrorScore,
			paramsBlob, decompBlob); err != nil {
			return fmt.Errorf("resultstore: insert candidate %s: %w", c.SolID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("resultstore: commit candidates: %w", err)
	}
	monitoring.Logf("stored %d candidates for run %s", len(cands), runID)
	return nil
}

// Candidate fetches one stored candidate by solution ID.
func (s *Store) Candidate(runID, solID string) (*pareto.Candidate, error) {
	row := s.db.QueryRow(`
		SELECT sol_id, trial, iteration, nrmse, decomp_rssd, mape, front, error_score, params_blob, decomp_blob
		FROM candidates WHERE run_id = ? AND sol_id = ?`, runID, solID)
	c, err := s.scanCandidate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrCandidateNotFound, runID, solID)
	}
	return c, err
}

// Candidates lists all stored candidates of a run, best error score first.
func (s *Store) Candidates(runID string) ([]pareto.Candidate, error) {
	rows, err := s.db.Query(`
		SELECT sol_id, trial, iteration, nrmse, decomp_rssd, mape, front, error_score, params_blob, decomp_blob
		FROM candidates WHERE run_id = ? ORDER BY error_score, sol_id`, runID)
	if err != nil {
		return nil, fmt.Errorf("resultstore: list candidates: %w", err)
	}
	defer rows.Close()

	var out []pareto.Candidate
	for rows.Next() {
		c, err := s.scanCandidate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (s *Store) scanCandidate(row rowScanner) (*pareto.Candidate, error) {
	var c pareto.Candidate
	var paramsBlob, decompBlob []byte
	if err := row.Scan(&c.SolID, &c.Trial, &c.Iteration, &c.NRMSE, &c.DecompRSSD,
		&c.MAPE, &c.Front, &c.ErrorScore, &paramsBlob, &decompBlob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("resultstore: scan candidate: %w", err)
	}
	if err := s.decompressJSON(paramsBlob, &c.Params); err != nil {
		return nil, fmt.Errorf("resultstore: decode params for %s: %w", c.SolID, err)
	}
	var decomp []model.DecompRow
	if err := s.decompressJSON(decompBlob, &decomp); err != nil {
		return nil, fmt.Errorf("resultstore: decode decomp for %s: %w", c.SolID, err)
	}
	c.Decomp = decomp
	c.Admissible = true
	return &c, nil
}

// SaveResponses stores response summaries for a run in one transaction.
func (s *Store) SaveResponses(runID string, summaries []pareto.ResponseSummary) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("resultstore: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO response_summaries (run_id, sol_id, channel, mean_spend, mean_adstocked, mean_carryover, mean_response, roi, cpa)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("resultstore: prepare response insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range summaries {
		if _, err := stmt.Exec(runID, r.SolID, r.Channel,
			r.MeanSpend, r.MeanAdstocked, r.MeanCarryover, r.MeanResponse,
			r.ROI, r.CPA); err != nil {
			return fmt.Errorf("resultstore: insert response %s/%s: %w", r.SolID, r.Channel, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("resultstore: commit responses: %w", err)
	}
	return nil
}

// Responses lists the stored response summaries of one solution, in channel
// order.
func (s *Store) Responses(runID, solID string) ([]pareto.ResponseSummary, error) {
	rows, err := s.db.Query(`
		SELECT sol_id, channel, mean_spend, mean_adstocked, mean_carryover, mean_response, roi, cpa
		FROM response_summaries WHERE run_id = ? AND sol_id = ? ORDER BY channel`, runID, solID)
	if err != nil {
		return nil, fmt.Errorf("resultstore: list responses: %w", err)
	}
	defer rows.Close()

	var out []pareto.ResponseSummary
	for rows.Next() {
		var r pareto.ResponseSummary
		if err := rows.Scan(&r.SolID, &r.Channel, &r.MeanSpend, &r.MeanAdstocked,
			&r.MeanCarryover, &r.MeanResponse, &r.ROI, &r.CPA); err != nil {
			return nil, fmt.Errorf("resultstore: scan response: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) compressJSON(v interface{}) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return s.enc.EncodeAll(raw, nil), nil
}

func (s *Store) decompressJSON(blob []byte, v interface{}) error {
	raw, err := s.dec.DecodeAll(blob, nil)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
