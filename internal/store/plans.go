package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/roach88/stencil/internal/ir"
	"github.com/roach88/stencil/internal/planquery"
)

// ErrNotFound is returned when no plan matches a lookup.
var ErrNotFound = errors.New("plan not found")

// PlanRecord is the catalog metadata of one stored plan.
type PlanRecord struct {
	ID        string `json:"id"`
	Stencil   string `json:"stencil"`
	SpecHash  string `json:"spec_hash"`
	PlanHash  string `json:"plan_hash"`
	Color     int    `json:"color"`
	Mode      string `json:"mode"`
	Timesteps int    `json:"timesteps"`
	Base      string `json:"base"`
	Rank      int    `json:"rank"`
	Regions   int    `json:"regions"`
	Epochs    int    `json:"epochs"`
}

// WritePlan records plan with its metadata in one transaction and returns
// the completed record. An empty rec.ID gets a UUIDv7; plan hash, color,
// rank and sizes are taken from plan.
func (s *Store) WritePlan(ctx context.Context, rec PlanRecord, plan *ir.Plan) (PlanRecord, error) {
	if err := plan.Validate(); err != nil {
		return PlanRecord{}, fmt.Errorf("write plan: %w", err)
	}
	hash, err := planHash(plan)
	if err != nil {
		return PlanRecord{}, fmt.Errorf("write plan: %w", err)
	}
	if rec.ID == "" {
		rec.ID = uuid.Must(uuid.NewV7()).String()
	}
	rec.PlanHash = hash
	rec.Color = plan.Color
	rec.Rank = plan.Rank()
	rec.Regions = len(plan.Regions)
	rec.Epochs = len(plan.Sync) - 1

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PlanRecord{}, fmt.Errorf("write plan: begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO plans
		(id, stencil, spec_hash, plan_hash, color, mode, timesteps, base_path, rank, regions, epochs)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID, rec.Stencil, rec.SpecHash, rec.PlanHash, rec.Color, rec.Mode,
		rec.Timesteps, rec.Base, rec.Rank, rec.Regions, rec.Epochs,
	)
	if err != nil {
		return PlanRecord{}, fmt.Errorf("write plan %s: %w", rec.ID, err)
	}

	regionStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO plan_regions (plan_id, pos, idx, t0, t1, grid) VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return PlanRecord{}, fmt.Errorf("write plan %s: %w", rec.ID, err)
	}
	defer regionStmt.Close()
	for pos, r := range plan.Regions {
		grid, err := json.Marshal(r.Grid)
		if err != nil {
			return PlanRecord{}, fmt.Errorf("write plan %s: region %d: %w", rec.ID, pos, err)
		}
		if _, err := regionStmt.ExecContext(ctx, rec.ID, pos, r.Index, r.T0, r.T1, string(grid)); err != nil {
			return PlanRecord{}, fmt.Errorf("write plan %s: region %d: %w", rec.ID, pos, err)
		}
	}

	for pos, end := range plan.Sync[:len(plan.Sync)-1] {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO plan_epochs (plan_id, pos, end_offset) VALUES (?, ?, ?)
		`, rec.ID, pos, end); err != nil {
			return PlanRecord{}, fmt.Errorf("write plan %s: epoch %d: %w", rec.ID, pos, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return PlanRecord{}, fmt.Errorf("write plan %s: commit: %w", rec.ID, err)
	}
	return rec, nil
}

const recordColumns = `id, stencil, spec_hash, plan_hash, color, mode, timesteps, base_path, rank, regions, epochs`

var catalog = planquery.Compiler{Table: "plans", Columns: recordColumns}

func scanRecord(row interface{ Scan(...any) error }) (PlanRecord, error) {
	var r PlanRecord
	err := row.Scan(&r.ID, &r.Stencil, &r.SpecHash, &r.PlanHash, &r.Color, &r.Mode,
		&r.Timesteps, &r.Base, &r.Rank, &r.Regions, &r.Epochs)
	return r, err
}

// ReadPlan returns the record and plan stored under id. The plan is
// checked against its recorded hash.
func (s *Store) ReadPlan(ctx context.Context, id string) (PlanRecord, *ir.Plan, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM plans WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return PlanRecord{}, nil, fmt.Errorf("read plan %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return PlanRecord{}, nil, fmt.Errorf("read plan %s: %w", id, err)
	}
	plan, err := s.readBody(ctx, rec)
	if err != nil {
		return PlanRecord{}, nil, err
	}
	return rec, plan, nil
}

// LatestPlan returns the most recently written plan for specHash.
func (s *Store) LatestPlan(ctx context.Context, specHash string) (PlanRecord, *ir.Plan, error) {
	rec, err := scanRecord(s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+` FROM plans
		WHERE spec_hash = ?
		ORDER BY rowid DESC
		LIMIT 1
	`, specHash))
	if errors.Is(err, sql.ErrNoRows) {
		return PlanRecord{}, nil, fmt.Errorf("latest plan for %s: %w", specHash, ErrNotFound)
	}
	if err != nil {
		return PlanRecord{}, nil, fmt.Errorf("latest plan for %s: %w", specHash, err)
	}
	plan, err := s.readBody(ctx, rec)
	if err != nil {
		return PlanRecord{}, nil, err
	}
	return rec, plan, nil
}

// ListPlans returns every record in insertion order.
// Returns an empty slice (not nil) for an empty catalog.
func (s *Store) ListPlans(ctx context.Context) ([]PlanRecord, error) {
	return s.QueryPlans(ctx, planquery.Select{})
}

// QueryPlans returns the records q selects, in insertion order.
func (s *Store) QueryPlans(ctx context.Context, q planquery.Select) ([]PlanRecord, error) {
	query, args, err := catalog.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	records := []PlanRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return records, nil
}

// CountPlans counts the records matching filter (nil = all).
func (s *Store) CountPlans(ctx context.Context, filter planquery.Predicate) (int, error) {
	query, args, err := catalog.Compile(planquery.Count{Filter: filter})
	if err != nil {
		return 0, fmt.Errorf("count plans: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count plans: %w", err)
	}
	return n, nil
}

// NextColor returns one past the largest recorded color, or 0 for an empty
// catalog, so new plans never reuse a stored plan's color.
func (s *Store) NextColor(ctx context.Context) (int, error) {
	var maxColor sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(color) FROM plans`).Scan(&maxColor); err != nil {
		return 0, fmt.Errorf("next color: %w", err)
	}
	if !maxColor.Valid {
		return 0, nil
	}
	return int(maxColor.Int64) + 1, nil
}

// DeletePlan removes a plan and its regions and epochs.
func (s *Store) DeletePlan(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM plans WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete plan %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete plan %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("delete plan %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) readBody(ctx context.Context, rec PlanRecord) (*ir.Plan, error) {
	plan := &ir.Plan{Color: rec.Color}

	rows, err := s.db.QueryContext(ctx, `
		SELECT idx, t0, t1, grid FROM plan_regions WHERE plan_id = ? ORDER BY pos ASC
	`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("read plan %s regions: %w", rec.ID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var r ir.Region
		var grid string
		if err := rows.Scan(&r.Index, &r.T0, &r.T1, &grid); err != nil {
			return nil, fmt.Errorf("scan region: %w", err)
		}
		if err := json.Unmarshal([]byte(grid), &r.Grid); err != nil {
			return nil, fmt.Errorf("read plan %s: region %d grid: %w", rec.ID, len(plan.Regions), err)
		}
		plan.Regions = append(plan.Regions, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate regions: %w", err)
	}

	epochRows, err := s.db.QueryContext(ctx, `
		SELECT end_offset FROM plan_epochs WHERE plan_id = ? ORDER BY pos ASC
	`, rec.ID)
	if err != nil {
		return nil, fmt.Errorf("read plan %s epochs: %w", rec.ID, err)
	}
	defer epochRows.Close()
	for epochRows.Next() {
		var end int
		if err := epochRows.Scan(&end); err != nil {
			return nil, fmt.Errorf("scan epoch: %w", err)
		}
		plan.Sync = append(plan.Sync, end)
	}
	if err := epochRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate epochs: %w", err)
	}
	plan.Sync = append(plan.Sync, ir.SyncEnd)

	hash, err := planHash(plan)
	if err != nil {
		return nil, fmt.Errorf("read plan %s: %w", rec.ID, err)
	}
	if hash != rec.PlanHash {
		return nil, fmt.Errorf("read plan %s: hash %s does not match recorded %s", rec.ID, hash, rec.PlanHash)
	}
	return plan, nil
}

// planHash hashes p with an empty region list and a nil one treated alike.
func planHash(p *ir.Plan) (string, error) {
	if len(p.Regions) == 0 && p.Regions != nil {
		c := *p
		c.Regions = nil
		p = &c
	}
	return ir.PlanHash(p)
}
