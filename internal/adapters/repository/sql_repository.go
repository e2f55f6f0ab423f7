package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
	"github.com/IANDYI/pku-menu-service/internal/core/ports"
)

// Options tunes the circuit breakers and retry loop; zero values take defaults
type Options struct {
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
	MaxRetries         int
	RetryDelay         time.Duration
}

func (o Options) withDefaults() Options {
	if o.BreakerMaxRequests == 0 {
		o.BreakerMaxRequests = 5
	}
	if o.BreakerInterval == 0 {
		o.BreakerInterval = 60 * time.Second
	}
	if o.BreakerTimeout == 0 {
		o.BreakerTimeout = 30 * time.Second
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay == 0 {
		o.RetryDelay = 1 * time.Second
	}
	return o
}

// SQLRepository implements the persistence ports on PostgreSQL.
// Every call goes through a circuit breaker and a retry loop.
type SQLRepository struct {
	db         *sql.DB
	patientCB  *gobreaker.CircuitBreaker
	catalogCB  *gobreaker.CircuitBreaker
	menuCB     *gobreaker.CircuitBreaker
	factCB     *gobreaker.CircuitBreaker
	maxRetries int
	retryDelay time.Duration
}

var (
	_ ports.PatientRepository      = (*SQLRepository)(nil)
	_ ports.NormRepository         = (*SQLRepository)(nil)
	_ ports.CatalogRepository      = (*SQLRepository)(nil)
	_ ports.PantryRepository       = (*SQLRepository)(nil)
	_ ports.PriceRepository        = (*SQLRepository)(nil)
	_ ports.MenuRepository         = (*SQLRepository)(nil)
	_ ports.CriticalFactRepository = (*SQLRepository)(nil)
)

// NewSQLRepository creates a new PostgreSQL repository with circuit breakers
func NewSQLRepository(db *sql.DB, opts Options) *SQLRepository {
	opts = opts.withDefaults()

	breaker := func(name string) *gobreaker.CircuitBreaker {
		return gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: opts.BreakerMaxRequests,
			Interval:    opts.BreakerInterval,
			Timeout:     opts.BreakerTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			// a missing row is an answer, not a database failure
			IsSuccessful: func(err error) bool {
				return err == nil || isNoRows(err)
			},
		})
	}

	return &SQLRepository{
		db:         db,
		patientCB:  breaker("patients"),
		catalogCB:  breaker("catalog"),
		menuCB:     breaker("menus"),
		factCB:     breaker("critical_facts"),
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
	}
}

// executeWithRetry executes a database operation with retry logic
func (r *SQLRepository) executeWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error
	for i := 0; i < r.maxRetries; i++ {
		err := operation()
		if err == nil {
			return nil
		}
		lastErr = err
		// sql.ErrNoRows is not transient
		if isNoRows(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if i < r.maxRetries-1 {
			time.Sleep(r.retryDelay)
		}
	}
	return fmt.Errorf("operation failed after %d retries: %w", r.maxRetries, lastErr)
}

// inTx runs fn inside a transaction, rolling back on any error
func (r *SQLRepository) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows) || strings.Contains(strings.ToLower(err.Error()), "no rows")
}

// PatientRepository implementation

func (r *SQLRepository) GetPatient(ctx context.Context, patientID uuid.UUID) (*domain.Patient, error) {
	result, err := r.patientCB.Execute(func() (interface{}, error) {
		var p domain.Patient
		err := r.executeWithRetry(ctx, func() error {
			query := `SELECT id, display_name, allergens, created_at FROM patients WHERE id = $1`
			return r.db.QueryRowContext(ctx, query, patientID).
				Scan(&p.ID, &p.DisplayName, pq.Array(&p.Allergens), &p.CreatedAt)
		})
		if err != nil {
			return nil, err
		}
		return &p, nil
	})
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("patient %s: %w", patientID, domain.ErrPatientNotFound)
		}
		return nil, err
	}
	return result.(*domain.Patient), nil
}

// NormRepository implementation

func (r *SQLRepository) GetCurrentNorm(ctx context.Context, patientID uuid.UUID) (*domain.NormPrescription, error) {
	result, err := r.patientCB.Execute(func() (interface{}, error) {
		var n domain.NormPrescription
		err := r.executeWithRetry(ctx, func() error {
			query := `SELECT id, patient_id, phe_limit_mg, protein_limit_g, kcal_min, fat_limit_g, issued_at
				FROM norm_prescriptions
				WHERE patient_id = $1 AND superseded_at IS NULL
				ORDER BY issued_at DESC
				LIMIT 1`
			return r.db.QueryRowContext(ctx, query, patientID).
				Scan(&n.ID, &n.PatientID, &n.PheLimitMg, &n.ProteinLimitG, &n.KcalMin, &n.FatLimitG, &n.IssuedAt)
		})
		if err != nil {
			return nil, err
		}
		return &n, nil
	})
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	return result.(*domain.NormPrescription), nil
}

// CatalogRepository implementation

const catalogColumns = `kind, id, name, category, phe_mg, leucine_mg, tyrosine_mg, methionine_mg,
	energy_kj, energy_kcal, protein_g, carbohydrate_g, fat_g, default_unit, nominal_serving_grams`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCatalogItem(row rowScanner) (domain.CatalogItem, error) {
	var item domain.CatalogItem
	var kind, unit string
	var phe, kcal, nominal sql.NullFloat64
	err := row.Scan(
		&kind, &item.Ref.ID, &item.Name, &item.Category,
		&phe, &item.Profile.LeucineMg, &item.Profile.TyrosineMg, &item.Profile.MethionineMg,
		&item.Profile.EnergyKJ, &kcal, &item.Profile.ProteinG, &item.Profile.CarbohydrateG, &item.Profile.FatG,
		&unit, &nominal,
	)
	if err != nil {
		return item, err
	}
	item.Ref.Kind = domain.ItemKind(kind)
	item.DefaultUnit = domain.Unit(unit)
	item.Profile.PheMg = nullableFloat(phe)
	item.Profile.EnergyKcal = nullableFloat(kcal)
	item.NominalServingGrams = nullableFloat(nominal)
	return item, nil
}

func (r *SQLRepository) FindAllItems(ctx context.Context) ([]domain.CatalogItem, error) {
	result, err := r.catalogCB.Execute(func() (interface{}, error) {
		var items []domain.CatalogItem
		err := r.executeWithRetry(ctx, func() error {
			items = nil
			rows, err := r.db.QueryContext(ctx, `SELECT `+catalogColumns+` FROM catalog_items ORDER BY name, id`)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				item, err := scanCatalogItem(rows)
				if err != nil {
					return err
				}
				items = append(items, item)
			}
			return rows.Err()
		})
		if err != nil {
			return nil, err
		}
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.CatalogItem), nil
}

func (r *SQLRepository) GetItem(ctx context.Context, ref domain.ItemRef) (*domain.CatalogItem, error) {
	result, err := r.catalogCB.Execute(func() (interface{}, error) {
		var item domain.CatalogItem
		err := r.executeWithRetry(ctx, func() error {
			row := r.db.QueryRowContext(ctx, `SELECT `+catalogColumns+` FROM catalog_items WHERE kind = $1 AND id = $2`, string(ref.Kind), ref.ID)
			var scanErr error
			item, scanErr = scanCatalogItem(row)
			return scanErr
		})
		if err != nil {
			return nil, err
		}
		return &item, nil
	})
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFoundError("catalog item", ref.ID)
		}
		return nil, err
	}
	return result.(*domain.CatalogItem), nil
}

// PantryRepository implementation

func (r *SQLRepository) FindAvailableLots(ctx context.Context, patientID uuid.UUID, item domain.ItemRef) ([]domain.PantryLot, error) {
	result, err := r.catalogCB.Execute(func() (interface{}, error) {
		var lots []domain.PantryLot
		err := r.executeWithRetry(ctx, func() error {
			lots = nil
			query := `SELECT id, patient_id, item_kind, item_id, quantity_grams, cost_per_gram, expires_at
				FROM pantry_lots
				WHERE patient_id = $1 AND item_kind = $2 AND item_id = $3 AND quantity_grams > 0
				ORDER BY expires_at ASC NULLS LAST, id`
			rows, err := r.db.QueryContext(ctx, query, patientID, string(item.Kind), item.ID)
			if err != nil {
				return err
			}
			defer rows.Close()

			for rows.Next() {
				var lot domain.PantryLot
				var kind string
				var expires sql.NullTime
				if err := rows.Scan(&lot.ID, &lot.PatientID, &kind, &lot.Item.ID, &lot.QuantityGrams, &lot.CostPerGram, &expires); err != nil {
					return err
				}
				lot.Item.Kind = domain.ItemKind(kind)
				if expires.Valid {
					t := expires.Time
					lot.ExpiresAt = &t
				}
				lots = append(lots, lot)
			}
			return rows.Err()
		})
		if err != nil {
			return nil, err
		}
		return lots, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.PantryLot), nil
}

// PriceRepository implementation

func (r *SQLRepository) FindBestPrice(ctx context.Context, item domain.ItemRef) (*decimal.Decimal, error) {
	result, err := r.catalogCB.Execute(func() (interface{}, error) {
		var price decimal.NullDecimal
		err := r.executeWithRetry(ctx, func() error {
			query := `SELECT MIN(price_per_gram) FROM market_prices WHERE item_kind = $1 AND item_id = $2`
			return r.db.QueryRowContext(ctx, query, string(item.Kind), item.ID).Scan(&price)
		})
		if err != nil {
			return nil, err
		}
		return price, nil
	})
	if err != nil {
		return nil, err
	}
	price := result.(decimal.NullDecimal)
	if !price.Valid {
		return nil, nil
	}
	return &price.Decimal, nil
}

func nullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
