// Package ledger records training runs and evaluations in a sqlite file.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// Ledger is a sqlite-backed record of training runs.
type Ledger struct {
	*sql.DB
}

// Run is one completed training run.
type Run struct {
	ID              string
	Started         time.Time
	Finished        time.Time
	DataDir         string
	ArtifactPath    string
	Labels          []string
	TrainSamples    int
	ValSamples      int
	EpochsRun       int
	BestEpoch       int
	StoppedEarly    bool
	FinalLoss       float64
	FinalAccuracy   float64
	BestValLoss     float64
	BestValAccuracy float64
	// History is the per-epoch record, stored as JSON.
	History json.RawMessage
}

// Evaluation is one evaluation of an artifact on a labelled directory.
type Evaluation struct {
	ID           int64
	At           time.Time
	ArtifactPath string
	DataDir      string
	Samples      int
	Loss         float64
	Accuracy     float64
}

// Open opens (creating if needed) the ledger at path and migrates it to the
// latest schema.
func Open(path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	l := &Ledger{db}
	if err := l.MigrateUp(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

// RecordRun inserts r.
func (l *Ledger) RecordRun(ctx context.Context, r Run) error {
	if r.ID == "" {
		return errors.New("run id is required")
	}
	history := r.History
	if len(history) == 0 {
		history = json.RawMessage("null")
	}
	query := `
		INSERT INTO training_runs (
			run_id, started_unix, finished_unix, data_dir, artifact_path, labels,
			train_samples, val_samples, epochs_run, best_epoch, stopped_early,
			final_loss, final_accuracy, best_val_loss, best_val_accuracy, history_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := l.ExecContext(ctx, query,
		r.ID, r.Started.Unix(), r.Finished.Unix(), r.DataDir, r.ArtifactPath, strings.Join(r.Labels, ","),
		r.TrainSamples, r.ValSamples, r.EpochsRun, r.BestEpoch, r.StoppedEarly,
		r.FinalLoss, r.FinalAccuracy, r.BestValLoss, r.BestValAccuracy, string(history),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.ID, err)
	}
	return nil
}

const runColumns = `run_id, started_unix, finished_unix, data_dir, artifact_path, labels,
	train_samples, val_samples, epochs_run, best_epoch, stopped_early,
	final_loss, final_accuracy, best_val_loss, best_val_accuracy, history_json`

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM training_runs ORDER BY started_unix DESC, run_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := l.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRun returns the run with id.
func (l *Ledger) GetRun(ctx context.Context, id string) (Run, error) {
	row := l.QueryRowContext(ctx, `SELECT `+runColumns+` FROM training_runs WHERE run_id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                 Run
		started, finished int64
		labels, history   string
	)
	err := s.Scan(&r.ID, &started, &finished, &r.DataDir, &r.ArtifactPath, &labels,
		&r.TrainSamples, &r.ValSamples, &r.EpochsRun, &r.BestEpoch, &r.StoppedEarly,
		&r.FinalLoss, &r.FinalAccuracy, &r.BestValLoss, &r.BestValAccuracy, &history)
	if err != nil {
		return Run{}, err
	}
	r.Started = time.Unix(started, 0)
	r.Finished = time.Unix(finished, 0)
	if labels != "" {
		r.Labels = strings.Split(labels, ",")
	}
	r.History = json.RawMessage(history)
	return r, nil
}

// RecordEvaluation inserts e and returns its id.
func (l *Ledger) RecordEvaluation(ctx context.Context, e Evaluation) (int64, error) {
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	res, err := l.ExecContext(ctx, `
		INSERT INTO evaluations (evaluated_unix, artifact_path, data_dir, samples, loss, accuracy)
		VALUES (?, ?, ?, ?, ?, ?)
	`, at.Unix(), e.ArtifactPath, e.DataDir, e.Samples, e.Loss, e.Accuracy)
	if err != nil {
		return 0, fmt.Errorf("failed to insert evaluation: %w", err)
	}
	return res.LastInsertId()
}

// ListEvaluations returns evaluations of artifactPath (all when empty),
// newest first.
func (l *Ledger) ListEvaluations(ctx context.Context, artifactPath string) ([]Evaluation, error) {
	query := `SELECT id, evaluated_unix, artifact_path, data_dir, samples, loss, accuracy FROM evaluations`
	var args []any
	if artifactPath != "" {
		query += ` WHERE artifact_path = ?`
		args = append(args, artifactPath)
	}
	query += ` ORDER BY evaluated_unix DESC, id DESC`
	rows, err := l.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluations: %w", err)
	}
	defer rows.Close()
	var out []Evaluation
	for rows.Next() {
		var (
			e  Evaluation
			at int64
		)
		if err := rows.Scan(&e.ID, &at, &e.ArtifactPath, &e.DataDir, &e.Samples, &e.Loss, &e.Accuracy); err != nil {
			return nil, err
		}
		e.At = time.Unix(at, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}
