package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/IANDYI/pku-menu-service/internal/core/domain"
)

const menuDayColumns = `id, patient_id, week_id, menu_date, planned_totals, consumed_totals, created_at, updated_at`

// MenuRepository implementation

func (r *SQLRepository) FindDaysInRange(ctx context.Context, patientID uuid.UUID, start, end time.Time) ([]*domain.MenuDay, error) {
	result, err := r.menuCB.Execute(func() (interface{}, error) {
		var days []*domain.MenuDay
		err := r.executeWithRetry(ctx, func() error {
			query := `SELECT ` + menuDayColumns + ` FROM menu_days
				WHERE patient_id = $1 AND menu_date BETWEEN $2 AND $3
				ORDER BY menu_date DESC`
			rows, err := r.db.QueryContext(ctx, query, patientID, domain.DateOnly(start), domain.DateOnly(end))
			if err != nil {
				return err
			}
			days, err = scanMenuDays(rows)
			if err != nil {
				return err
			}
			return r.loadSlots(ctx, days)
		})
		if err != nil {
			return nil, err
		}
		return days, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]*domain.MenuDay), nil
}

func (r *SQLRepository) GetDay(ctx context.Context, dayID uuid.UUID) (*domain.MenuDay, error) {
	return r.getDay(ctx, `SELECT `+menuDayColumns+` FROM menu_days WHERE id = $1`, dayID, "menu day")
}

func (r *SQLRepository) GetDayByEntryID(ctx context.Context, entryID uuid.UUID) (*domain.MenuDay, error) {
	query := `SELECT d.id, d.patient_id, d.week_id, d.menu_date, d.planned_totals, d.consumed_totals, d.created_at, d.updated_at
		FROM menu_days d
		JOIN meal_slots s ON s.day_id = d.id
		JOIN menu_entries e ON e.slot_id = s.id
		WHERE e.id = $1`
	return r.getDay(ctx, query, entryID, "menu entry")
}

func (r *SQLRepository) getDay(ctx context.Context, query string, id uuid.UUID, resource string) (*domain.MenuDay, error) {
	result, err := r.menuCB.Execute(func() (interface{}, error) {
		var day *domain.MenuDay
		err := r.executeWithRetry(ctx, func() error {
			rows, err := r.db.QueryContext(ctx, query, id)
			if err != nil {
				return err
			}
			days, err := scanMenuDays(rows)
			if err != nil {
				return err
			}
			if len(days) == 0 {
				return sql.ErrNoRows
			}
			day = days[0]
			return r.loadSlots(ctx, days[:1])
		})
		if err != nil {
			return nil, err
		}
		return day, nil
	})
	if err != nil {
		if isNoRows(err) {
			return nil, domain.NewNotFoundError(resource, id)
		}
		return nil, err
	}
	return result.(*domain.MenuDay), nil
}

// SaveDay upserts a day with all slots and entries in one transaction
func (r *SQLRepository) SaveDay(ctx context.Context, day *domain.MenuDay) error {
	_, err := r.menuCB.Execute(func() (interface{}, error) {
		return nil, r.executeWithRetry(ctx, func() error {
			return r.inTx(ctx, func(tx *sql.Tx) error {
				if err := saveDayTx(ctx, tx, day); err != nil {
					return err
				}
				if day.WeekID != nil {
					return refreshWeekTotalsTx(ctx, tx, *day.WeekID)
				}
				return nil
			})
		})
	})
	return err
}

// SaveWeek inserts a week and its days in one transaction
func (r *SQLRepository) SaveWeek(ctx context.Context, week *domain.MenuWeek) error {
	_, err := r.menuCB.Execute(func() (interface{}, error) {
		return nil, r.executeWithRetry(ctx, func() error {
			return r.inTx(ctx, func(tx *sql.Tx) error {
				planned, consumed, err := marshalTotals(week.PlannedTotals, week.ConsumedTotals)
				if err != nil {
					return err
				}
				query := `INSERT INTO menu_weeks (id, patient_id, start_date, planned_totals, consumed_totals, created_at)
					VALUES ($1, $2, $3, $4, $5, $6)`
				if _, err := tx.ExecContext(ctx, query, week.ID, week.PatientID, week.StartDate, planned, consumed, week.CreatedAt); err != nil {
					return fmt.Errorf("insert menu week: %w", err)
				}
				for _, day := range week.Days {
					if err := saveDayTx(ctx, tx, day); err != nil {
						return err
					}
				}
				return nil
			})
		})
	})
	return err
}

func saveDayTx(ctx context.Context, tx *sql.Tx, day *domain.MenuDay) error {
	planned, consumed, err := marshalTotals(day.PlannedTotals, day.ConsumedTotals)
	if err != nil {
		return err
	}

	upsert := `INSERT INTO menu_days (id, patient_id, week_id, menu_date, planned_totals, consumed_totals, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			planned_totals = EXCLUDED.planned_totals,
			consumed_totals = EXCLUDED.consumed_totals,
			updated_at = EXCLUDED.updated_at`
	if _, err := tx.ExecContext(ctx, upsert, day.ID, day.PatientID, nullUUID(day.WeekID), day.Date, planned, consumed, day.CreatedAt, day.UpdatedAt); err != nil {
		return fmt.Errorf("upsert menu day: %w", err)
	}

	// slots are rewritten wholesale; entries cascade
	if _, err := tx.ExecContext(ctx, `DELETE FROM meal_slots WHERE day_id = $1`, day.ID); err != nil {
		return fmt.Errorf("clear meal slots: %w", err)
	}

	for _, slot := range day.Slots {
		totals, err := json.Marshal(slot.Totals)
		if err != nil {
			return err
		}
		query := `INSERT INTO meal_slots (id, day_id, slot_type, position, target_phe_mg, target_kcal, totals, underfilled)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
		if _, err := tx.ExecContext(ctx, query, slot.ID, day.ID, string(slot.Type), slot.Type.Position(), slot.TargetPheMg, slot.TargetKcal, totals, slot.Underfilled); err != nil {
			return fmt.Errorf("insert meal slot %s: %w", slot.Type, err)
		}

		for _, e := range slot.Entries {
			nutrition, err := json.Marshal(e.Nutrition)
			if err != nil {
				return err
			}
			query := `INSERT INTO menu_entries (id, slot_id, item_kind, item_id, item_name, serving_qty, unit,
				actual_serving_grams, consumed_qty, consumed, nutrition, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`
			_, err = tx.ExecContext(ctx, query, e.ID, slot.ID, string(e.Item.Ref.Kind), e.Item.Ref.ID, e.Item.Name,
				e.ServingQty, string(e.Unit), nullFloat(e.ActualServingGrams), nullFloat(e.ConsumedQty), e.Consumed, nutrition, e.CreatedAt)
			if err != nil {
				return fmt.Errorf("insert menu entry: %w", err)
			}
		}
	}
	return nil
}

// refreshWeekTotalsTx recomputes week totals from its stored days
func refreshWeekTotalsTx(ctx context.Context, tx *sql.Tx, weekID uuid.UUID) error {
	rows, err := tx.QueryContext(ctx, `SELECT planned_totals, consumed_totals FROM menu_days WHERE week_id = $1`, weekID)
	if err != nil {
		return fmt.Errorf("load week days: %w", err)
	}
	defer rows.Close()

	var planned, consumed domain.NutritionBreakdown
	for rows.Next() {
		var p, c []byte
		if err := rows.Scan(&p, &c); err != nil {
			return err
		}
		var dp, dc domain.NutritionBreakdown
		if err := unmarshalTotals(p, c, &dp, &dc); err != nil {
			return err
		}
		planned = planned.Add(dp)
		consumed = consumed.Add(dc)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	p, c, err := marshalTotals(planned.Rounded(), consumed.Rounded())
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE menu_weeks SET planned_totals = $1, consumed_totals = $2 WHERE id = $3`, p, c, weekID)
	return err
}

func scanMenuDays(rows *sql.Rows) ([]*domain.MenuDay, error) {
	defer rows.Close()

	var days []*domain.MenuDay
	for rows.Next() {
		var d domain.MenuDay
		var weekID uuid.NullUUID
		var planned, consumed []byte
		if err := rows.Scan(&d.ID, &d.PatientID, &weekID, &d.Date, &planned, &consumed, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if weekID.Valid {
			id := weekID.UUID
			d.WeekID = &id
		}
		d.Date = domain.DateOnly(d.Date)
		if err := unmarshalTotals(planned, consumed, &d.PlannedTotals, &d.ConsumedTotals); err != nil {
			return nil, err
		}
		days = append(days, &d)
	}
	return days, rows.Err()
}

// loadSlots attaches slots and entries to the given days
func (r *SQLRepository) loadSlots(ctx context.Context, days []*domain.MenuDay) error {
	if len(days) == 0 {
		return nil
	}
	ids := make([]string, len(days))
	byDay := make(map[uuid.UUID]*domain.MenuDay, len(days))
	for i, d := range days {
		ids[i] = d.ID.String()
		d.Slots = nil
		byDay[d.ID] = d
	}

	slotRows, err := r.db.QueryContext(ctx, `SELECT id, day_id, slot_type, target_phe_mg, target_kcal, totals, underfilled
		FROM meal_slots WHERE day_id = ANY($1::uuid[]) ORDER BY day_id, position`, pq.Array(ids))
	if err != nil {
		return err
	}
	bySlot := make(map[uuid.UUID]*domain.MealSlot)
	err = func() error {
		defer slotRows.Close()
		for slotRows.Next() {
			var s domain.MealSlot
			var dayID uuid.UUID
			var slotType string
			var totals []byte
			if err := slotRows.Scan(&s.ID, &dayID, &slotType, &s.TargetPheMg, &s.TargetKcal, &totals, &s.Underfilled); err != nil {
				return err
			}
			s.Type = domain.SlotType(slotType)
			if len(totals) > 0 {
				if err := json.Unmarshal(totals, &s.Totals); err != nil {
					return err
				}
			}
			if day, ok := byDay[dayID]; ok {
				slot := s
				day.Slots = append(day.Slots, &slot)
				bySlot[slot.ID] = &slot
			}
		}
		return slotRows.Err()
	}()
	if err != nil {
		return err
	}

	entryRows, err := r.db.QueryContext(ctx, `SELECT e.slot_id, e.id, e.item_kind, e.item_id, e.item_name, e.serving_qty, e.unit,
			e.actual_serving_grams, e.consumed_qty, e.consumed, e.nutrition, e.created_at,
			c.category, c.phe_mg, c.leucine_mg, c.tyrosine_mg, c.methionine_mg, c.energy_kj, c.energy_kcal,
			c.protein_g, c.carbohydrate_g, c.fat_g, c.default_unit, c.nominal_serving_grams
		FROM menu_entries e
		JOIN meal_slots s ON s.id = e.slot_id
		LEFT JOIN catalog_items c ON c.kind = e.item_kind AND c.id = e.item_id
		WHERE s.day_id = ANY($1::uuid[])
		ORDER BY e.created_at, e.id`, pq.Array(ids))
	if err != nil {
		return err
	}
	defer entryRows.Close()

	for entryRows.Next() {
		var slotID uuid.UUID
		var e domain.MenuEntry
		var kind, unit string
		var actual, consumedQty sql.NullFloat64
		var nutrition []byte
		var category, defaultUnit sql.NullString
		var phe, leucine, tyrosine, methionine, kj, kcal, protein, carbs, fat, nominal sql.NullFloat64
		err := entryRows.Scan(&slotID, &e.ID, &kind, &e.Item.Ref.ID, &e.Item.Name, &e.ServingQty, &unit,
			&actual, &consumedQty, &e.Consumed, &nutrition, &e.CreatedAt,
			&category, &phe, &leucine, &tyrosine, &methionine, &kj, &kcal,
			&protein, &carbs, &fat, &defaultUnit, &nominal)
		if err != nil {
			return err
		}
		e.Item.Ref.Kind = domain.ItemKind(kind)
		e.Unit = domain.Unit(unit)
		e.ActualServingGrams = nullableFloat(actual)
		e.ConsumedQty = nullableFloat(consumedQty)
		e.Item.Category = category.String
		e.Item.DefaultUnit = domain.Unit(defaultUnit.String)
		e.Item.NominalServingGrams = nullableFloat(nominal)
		e.Item.Profile = domain.NutrientProfile{
			PheMg:         nullableFloat(phe),
			LeucineMg:     leucine.Float64,
			TyrosineMg:    tyrosine.Float64,
			MethionineMg:  methionine.Float64,
			EnergyKJ:      kj.Float64,
			EnergyKcal:    nullableFloat(kcal),
			ProteinG:      protein.Float64,
			CarbohydrateG: carbs.Float64,
			FatG:          fat.Float64,
		}
		if len(nutrition) > 0 {
			if err := json.Unmarshal(nutrition, &e.Nutrition); err != nil {
				return err
			}
		}
		if slot, ok := bySlot[slotID]; ok {
			entry := e
			slot.Entries = append(slot.Entries, &entry)
		}
	}
	if err := entryRows.Err(); err != nil {
		return err
	}

	for _, d := range days {
		d.SortSlots()
	}
	return nil
}

func marshalTotals(planned, consumed domain.NutritionBreakdown) ([]byte, []byte, error) {
	p, err := json.Marshal(planned)
	if err != nil {
		return nil, nil, err
	}
	c, err := json.Marshal(consumed)
	if err != nil {
		return nil, nil, err
	}
	return p, c, nil
}

func unmarshalTotals(p, c []byte, planned, consumed *domain.NutritionBreakdown) error {
	if len(p) > 0 {
		if err := json.Unmarshal(p, planned); err != nil {
			return err
		}
	}
	if len(c) > 0 {
		if err := json.Unmarshal(c, consumed); err != nil {
			return err
		}
	}
	return nil
}

func nullUUID(id *uuid.UUID) uuid.NullUUID {
	if id == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: *id, Valid: true}
}
