package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/piwi3910/ReelCut/internal/model"
	"github.com/piwi3910/ReelCut/internal/store"
)

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements the requirement, inventory and plan stores on SQLite.
type Store struct {
	db  *sql.DB
	ids model.IDGenerator
	now func() time.Time
}

// New wraps an open, migrated database. A nil id generator falls back to
// random ids.
func New(db *sql.DB, ids model.IDGenerator) *Store {
	if ids == nil {
		ids = model.UUIDGenerator{}
	}
	return &Store{db: db, ids: ids, now: time.Now}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) timestamp() string {
	return s.now().UTC().Format(timeLayout)
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ─── Requirements ──────────────────────────────────────────

// AddRequirements inserts requirements in one transaction. A requirement
// without a state is pending.
func (s *Store) AddRequirements(ctx context.Context, reqs ...model.PendingRequirement) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range reqs {
			if r.State == "" {
				r.State = model.StatePending
			}
			if err := r.Validate(); err != nil {
				return err
			}
			if !r.State.Valid() {
				return &model.InputError{Kind: model.InvalidRequirement, Detail: fmt.Sprintf("requirement %s: unknown state %q", r.ID, r.State)}
			}
			spec := r.Spec.Normalize()
			_, err := tx.ExecContext(ctx, `
				INSERT INTO requirements (id, order_id, width, gsm, bf, shade, quantity, reason, state, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				r.ID, r.OrderID, r.Width, spec.GSM, spec.BF, spec.Shade, r.Quantity, r.Reason, string(r.State), s.timestamp())
			if err != nil {
				if isConstraintError(err) {
					return &model.InputError{Kind: model.InvalidRequirement, Detail: fmt.Sprintf("duplicate requirement id %s", r.ID)}
				}
				return fmt.Errorf("insert requirement %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// ListRequirements returns every requirement in insertion order.
func (s *Store) ListRequirements(ctx context.Context) ([]model.PendingRequirement, error) {
	return s.queryRequirements(ctx, `
		SELECT id, order_id, width, gsm, bf, shade, quantity, reason, state
		FROM requirements ORDER BY rowid`)
}

// ListPending returns the pending requirements matching f in insertion order.
func (s *Store) ListPending(ctx context.Context, f store.Filter) ([]model.PendingRequirement, error) {
	var (
		where = []string{"state = ?"}
		args  = []any{string(model.StatePending)}
	)
	if len(f.OrderIDs) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(f.OrderIDs)), ",")
		where = append(where, "order_id IN ("+placeholders+")")
		for _, id := range f.OrderIDs {
			args = append(args, id)
		}
	}
	if f.Spec != nil {
		spec := f.Spec.Normalize()
		where = append(where, "gsm = ?", "bf = ?", "shade = ?")
		args = append(args, spec.GSM, spec.BF, spec.Shade)
	}
	query := `
		SELECT id, order_id, width, gsm, bf, shade, quantity, reason, state
		FROM requirements WHERE ` + strings.Join(where, " AND ") + ` ORDER BY rowid`
	return s.queryRequirements(ctx, query, args...)
}

func (s *Store) queryRequirements(ctx context.Context, query string, args ...any) ([]model.PendingRequirement, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query requirements: %w", err)
	}
	defer rows.Close()

	out := []model.PendingRequirement{}
	for rows.Next() {
		var (
			r     model.PendingRequirement
			state string
		)
		if err := rows.Scan(&r.ID, &r.OrderID, &r.Width, &r.Spec.GSM, &r.Spec.BF, &r.Spec.Shade, &r.Quantity, &r.Reason, &state); err != nil {
			return nil, fmt.Errorf("scan requirement: %w", err)
		}
		r.State = model.RequirementState(state)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate requirements: %w", err)
	}
	return out, nil
}

// MarkInProduction moves the given requirements to in_production in one
// transaction.
func (s *Store) MarkInProduction(ctx context.Context, ids []string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return markInProduction(ctx, tx, ids)
	})
}

func markInProduction(ctx context.Context, tx *sql.Tx, ids []string) error {
	for _, id := range ids {
		var state string
		err := tx.QueryRowContext(ctx, `SELECT state FROM requirements WHERE id = ?`, id).Scan(&state)
		if errors.Is(err, sql.ErrNoRows) {
			return &model.NotFoundError{Kind: "requirement", ID: id}
		}
		if err != nil {
			return fmt.Errorf("read requirement %s: %w", id, err)
		}
		current := model.RequirementState(state)
		if !current.CanTransition(model.StateInProduction) {
			return fmt.Errorf("requirement %s: %w: %s -> %s", id, model.ErrInvalidTransition, current, model.StateInProduction)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE requirements SET state = ? WHERE id = ?`, string(model.StateInProduction), id); err != nil {
			return fmt.Errorf("update requirement %s: %w", id, err)
		}
	}
	return nil
}

// ─── Stock ─────────────────────────────────────────────────

// AddStock inserts stock rolls, replacing rolls with the same id.
func (s *Store) AddStock(ctx context.Context, rolls ...model.ExistingStockRoll) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, r := range rolls {
			if r.ID == "" {
				return &model.InputError{Kind: model.InvalidWidth, Detail: "stock roll needs an id"}
			}
			if r.Width <= 0 {
				return &model.InputError{Kind: model.InvalidWidth, Detail: fmt.Sprintf("stock roll %s: width must be positive, got %g", r.ID, r.Width)}
			}
			if err := r.Spec.Validate(); err != nil {
				return fmt.Errorf("stock roll %s: %w", r.ID, err)
			}
			spec := r.Spec.Normalize()
			_, err := tx.ExecContext(ctx, `
				INSERT INTO stock_rolls (id, width, gsm, bf, shade, source, updated_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
				ON CONFLICT (id) DO UPDATE SET
					width = excluded.width, gsm = excluded.gsm, bf = excluded.bf,
					shade = excluded.shade, source = excluded.source, updated_at = excluded.updated_at`,
				r.ID, r.Width, spec.GSM, spec.BF, spec.Shade, r.Source, s.timestamp())
			if err != nil {
				return fmt.Errorf("upsert stock roll %s: %w", r.ID, err)
			}
		}
		return nil
	})
}

// ListStock returns every stock roll ordered by id.
func (s *Store) ListStock(ctx context.Context) ([]model.ExistingStockRoll, error) {
	return s.queryStock(ctx, `SELECT id, width, gsm, bf, shade, source FROM stock_rolls ORDER BY id`)
}

// ListExistingStock returns the rolls of the given spec ordered by id.
func (s *Store) ListExistingStock(ctx context.Context, spec model.PaperSpec) ([]model.ExistingStockRoll, error) {
	spec = spec.Normalize()
	return s.queryStock(ctx, `
		SELECT id, width, gsm, bf, shade, source FROM stock_rolls
		WHERE gsm = ? AND bf = ? AND shade = ? ORDER BY id`,
		spec.GSM, spec.BF, spec.Shade)
}

func (s *Store) queryStock(ctx context.Context, query string, args ...any) ([]model.ExistingStockRoll, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query stock rolls: %w", err)
	}
	defer rows.Close()

	out := []model.ExistingStockRoll{}
	for rows.Next() {
		var r model.ExistingStockRoll
		if err := rows.Scan(&r.ID, &r.Width, &r.Spec.GSM, &r.Spec.BF, &r.Spec.Shade, &r.Source); err != nil {
			return nil, fmt.Errorf("scan stock roll: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock rolls: %w", err)
	}
	return out, nil
}

// Consume cuts widthUsed from a roll. The roll keeps the leftover width, or
// is deleted when the leftover is narrower than model.MinRemnantWidth.
func (s *Store) Consume(ctx context.Context, rollID string, widthUsed float64) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.consume(ctx, tx, rollID, widthUsed)
	})
}

func (s *Store) consume(ctx context.Context, tx *sql.Tx, rollID string, widthUsed float64) error {
	var roll model.ExistingStockRoll
	err := tx.QueryRowContext(ctx, `SELECT id, width FROM stock_rolls WHERE id = ?`, rollID).Scan(&roll.ID, &roll.Width)
	if errors.Is(err, sql.ErrNoRows) {
		return &model.NotFoundError{Kind: "roll", ID: rollID}
	}
	if err != nil {
		return fmt.Errorf("read stock roll %s: %w", rollID, err)
	}
	if widthUsed <= 0 || !model.FitsWidth(0, widthUsed, roll.Width, model.DefaultSettings().Epsilon) {
		return &model.InputError{Kind: model.InvalidWidth, Detail: fmt.Sprintf("cannot use %.2f from roll %s of width %.2f", widthUsed, rollID, roll.Width)}
	}

	remaining, keep := store.RemainingAfter(roll, widthUsed)
	if !keep {
		if _, err := tx.ExecContext(ctx, `DELETE FROM stock_rolls WHERE id = ?`, rollID); err != nil {
			return fmt.Errorf("retire stock roll %s: %w", rollID, err)
		}
		return nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE stock_rolls SET width = ?, updated_at = ? WHERE id = ?`, remaining, s.timestamp(), rollID); err != nil {
		return fmt.Errorf("update stock roll %s: %w", rollID, err)
	}
	return nil
}

// ─── Plans ─────────────────────────────────────────────────

// SavePlan records a committed suggestion and its cuts.
func (s *Store) SavePlan(ctx context.Context, sug model.Suggestion) (store.PlanRef, error) {
	ref := store.NewPlanRef(s.ids.NewID("plan"), sug, s.now())
	if err := s.PutPlan(ctx, store.Plan{Ref: ref, Suggestion: sug}); err != nil {
		return store.PlanRef{}, err
	}
	return ref, nil
}

// CommitPlan moves requirementIDs to in_production, applies the
// suggestion's stock consumptions and records it as a plan, all in one
// transaction. Nothing changes when any step fails.
func (s *Store) CommitPlan(ctx context.Context, sug model.Suggestion, requirementIDs []string) (store.PlanRef, error) {
	p := store.Plan{Ref: store.NewPlanRef(s.ids.NewID("plan"), sug, s.now()), Suggestion: sug}
	payload, err := json.Marshal(p.Suggestion)
	if err != nil {
		return store.PlanRef{}, fmt.Errorf("encode plan %s: %w", p.Ref.ID, err)
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := markInProduction(ctx, tx, requirementIDs); err != nil {
			return err
		}
		for _, c := range sug.Consumptions {
			if err := s.consume(ctx, tx, c.RollID, c.WidthUsed); err != nil {
				return fmt.Errorf("consume roll %s: %w", c.RollID, err)
			}
		}
		return insertPlan(ctx, tx, p, payload)
	})
	if err != nil {
		return store.PlanRef{}, err
	}
	return p.Ref, nil
}

// PutPlan stores a plan under its existing reference.
func (s *Store) PutPlan(ctx context.Context, p store.Plan) error {
	payload, err := json.Marshal(p.Suggestion)
	if err != nil {
		return fmt.Errorf("encode plan %s: %w", p.Ref.ID, err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return insertPlan(ctx, tx, p, payload)
	})
}

func insertPlan(ctx context.Context, tx *sql.Tx, p store.Plan, payload []byte) error {
	spec := p.Ref.Spec.Normalize()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO production_plans (id, suggestion_id, gsm, bf, shade, jumbo_count, cut_count, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Ref.ID, p.Ref.SuggestionID, spec.GSM, spec.BF, spec.Shade,
		p.Ref.JumboCount, p.Ref.CutCount, string(payload), p.Ref.CreatedAt.UTC().Format(timeLayout))
	if err != nil {
		if isConstraintError(err) {
			return &model.InputError{Kind: model.InvalidRequirement, Detail: fmt.Sprintf("duplicate plan id %s", p.Ref.ID)}
		}
		return fmt.Errorf("insert plan %s: %w", p.Ref.ID, err)
	}

	insertCut := func(c model.Cut, jumboID, setID string) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO plan_cuts (plan_id, cut_id, jumbo_id, set_id, width, order_id, requirement_id, uses_existing, source_roll_id)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			p.Ref.ID, c.ID, jumboID, setID, c.Width, c.OrderID, c.RequirementID, c.UsesExisting, c.SourceRollID)
		if err != nil {
			return fmt.Errorf("insert plan cut %s: %w", c.ID, err)
		}
		return nil
	}
	for _, c := range p.Suggestion.ExistingCuts {
		if err := insertCut(c, "", ""); err != nil {
			return err
		}
	}
	for _, j := range p.Suggestion.Jumbos {
		for _, set := range j.Sets {
			for _, c := range set.Cuts {
				if err := insertCut(c, j.ID, set.ID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// ListPlans returns plan references in commit order.
func (s *Store) ListPlans(ctx context.Context) ([]store.PlanRef, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, suggestion_id, gsm, bf, shade, jumbo_count, cut_count, created_at
		FROM production_plans ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("query plans: %w", err)
	}
	defer rows.Close()

	out := []store.PlanRef{}
	for rows.Next() {
		ref, err := scanPlanRef(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate plans: %w", err)
	}
	return out, nil
}

// GetPlan returns a committed plan by id.
func (s *Store) GetPlan(ctx context.Context, id string) (store.Plan, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, suggestion_id, gsm, bf, shade, jumbo_count, cut_count, created_at, payload
		FROM production_plans WHERE id = ?`, id)

	var (
		p       store.Plan
		created string
		payload string
	)
	err := row.Scan(&p.Ref.ID, &p.Ref.SuggestionID, &p.Ref.Spec.GSM, &p.Ref.Spec.BF, &p.Ref.Spec.Shade,
		&p.Ref.JumboCount, &p.Ref.CutCount, &created, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Plan{}, &model.NotFoundError{Kind: "plan", ID: id}
	}
	if err != nil {
		return store.Plan{}, fmt.Errorf("read plan %s: %w", id, err)
	}
	if p.Ref.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
		return store.Plan{}, fmt.Errorf("parse plan %s timestamp: %w", id, err)
	}
	if err := json.Unmarshal([]byte(payload), &p.Suggestion); err != nil {
		return store.Plan{}, fmt.Errorf("decode plan %s: %w", id, err)
	}
	return p, nil
}

// OrderCuts returns the committed cuts attributed to an order, across plans.
func (s *Store) OrderCuts(ctx context.Context, orderID string) ([]model.Cut, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT cut_id, width, order_id, requirement_id, uses_existing, source_roll_id
		FROM plan_cuts WHERE order_id = ? ORDER BY plan_id, cut_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order cuts: %w", err)
	}
	defer rows.Close()

	out := []model.Cut{}
	for rows.Next() {
		var c model.Cut
		if err := rows.Scan(&c.ID, &c.Width, &c.OrderID, &c.RequirementID, &c.UsesExisting, &c.SourceRollID); err != nil {
			return nil, fmt.Errorf("scan order cut: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order cuts: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPlanRef(row scanner) (store.PlanRef, error) {
	var (
		ref     store.PlanRef
		created string
	)
	if err := row.Scan(&ref.ID, &ref.SuggestionID, &ref.Spec.GSM, &ref.Spec.BF, &ref.Spec.Shade,
		&ref.JumboCount, &ref.CutCount, &created); err != nil {
		return store.PlanRef{}, fmt.Errorf("scan plan: %w", err)
	}
	t, err := time.Parse(timeLayout, created)
	if err != nil {
		return store.PlanRef{}, fmt.Errorf("parse plan %s timestamp: %w", ref.ID, err)
	}
	ref.CreatedAt = t
	return ref, nil
}

func isConstraintError(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "constraint failed")
}
