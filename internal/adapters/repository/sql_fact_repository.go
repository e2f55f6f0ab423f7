package repository

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
)

const criticalFactColumns = `id, patient_id, menu_day_id, breach_type, delta, limit_value, actual, context,
	severity, resolved, resolved_by, resolved_at, created_at`

// CriticalFactRepository implementation

func (r *SQLRepository) SaveCriticalFact(ctx context.Context, fact *domain.CriticalFact) error {
	_, err := r.factCB.Execute(func() (interface{}, error) {
		return nil, r.executeWithRetry(ctx, func() error {
			query := `INSERT INTO critical_facts (` + criticalFactColumns + `)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
			_, err := r.db.ExecContext(ctx, query,
				fact.ID, fact.PatientID, fact.MenuDayID, string(fact.BreachType), fact.Delta, fact.Limit, fact.Actual,
				string(fact.Context), string(fact.Severity), fact.Resolved, nullUUID(fact.ResolvedBy), nullTime(fact.ResolvedAt), fact.CreatedAt)
			return err
		})
	})
	return err
}

func (r *SQLRepository) GetCriticalFact(ctx context.Context, factID uuid.UUID) (*domain.CriticalFact, error) {
	result, err := r.factCB.Execute(func() (interface{}, error) {
		var fact *domain.CriticalFact
		err := r.executeWithRetry(ctx, func() error {
			row := r.db.QueryRowContext(ctx, `SELECT `+criticalFactColumns+` FROM critical_facts WHERE id = $1`, factID)
			var scanErr error
			fact, scanErr = scanCriticalFact(row)
			return scanErr
		})
		if err != nil {
			return nil, err
		}
		return fact, nil
	})
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFoundError("critical fact", factID)
		}
		return nil, err
	}
	return result.(*domain.CriticalFact), nil
}

func (r *SQLRepository) ListCriticalFacts(ctx context.Context, patientID uuid.UUID, unresolvedOnly bool) ([]*domain.CriticalFact, error) {
	result, err := r.factCB.Execute(func() (interface{}, error) {
		var facts []*domain.CriticalFact
		err := r.executeWithRetry(ctx, func() error {
			facts = []*domain.CriticalFact{}
			query := `SELECT ` + criticalFactColumns + ` FROM critical_facts WHERE patient_id = $1`
			if unresolvedOnly {
				query += ` AND resolved = false`
			}
			query += ` ORDER BY created_at DESC`

			rows, err := r.db.QueryContext(ctx, query, patientID)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				fact, err := scanCriticalFact(rows)
				if err != nil {
					return err
				}
				facts = append(facts, fact)
			}
			return rows.Err()
		})
		if err != nil {
			return nil, err
		}
		return facts, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*domain.CriticalFact), nil
}

// ResolveCriticalFact persists the resolution; an already resolved row is left untouched
func (r *SQLRepository) ResolveCriticalFact(ctx context.Context, fact *domain.CriticalFact) error {
	_, err := r.factCB.Execute(func() (interface{}, error) {
		return nil, r.executeWithRetry(ctx, func() error {
			query := `UPDATE critical_facts SET resolved = true, resolved_by = $1, resolved_at = $2
				WHERE id = $3 AND resolved = false`
			res, err := r.db.ExecContext(ctx, query, nullUUID(fact.ResolvedBy), nullTime(fact.ResolvedAt), fact.ID)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n == 0 {
				return sql.ErrNoRows
			}
			return nil
		})
	})
	if err != nil && isNoRows(err) {
		return domain.ErrAlreadyResolved
	}
	return err
}

func scanCriticalFact(row rowScanner) (*domain.CriticalFact, error) {
	var f domain.CriticalFact
	var breachType, totalsCtx, severity string
	var resolvedBy uuid.NullUUID
	var resolvedAt sql.NullTime
	err := row.Scan(&f.ID, &f.PatientID, &f.MenuDayID, &breachType, &f.Delta, &f.Limit, &f.Actual, &totalsCtx,
		&severity, &f.Resolved, &resolvedBy, &resolvedAt, &f.CreatedAt)
	if err != nil {
		return nil, err
	}
	f.BreachType = domain.BreachType(breachType)
	f.Context = domain.TotalsContext(totalsCtx)
	f.Severity = domain.Severity(severity)
	if resolvedBy.Valid {
		id := resolvedBy.UUID
		f.ResolvedBy = &id
	}
	if resolvedAt.Valid {
		t := resolvedAt.Time
		f.ResolvedAt = &t
	}
	return &f, nil
}
