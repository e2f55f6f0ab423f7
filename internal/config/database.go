package config

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/lib/pq"
)

// menuTables lists the schema in creation order; drops run in reverse
var menuTables = []struct {
	name   string
	schema string
}{
	{"patients", `
	CREATE TABLE IF NOT EXISTS patients (
		id UUID PRIMARY KEY,
		display_name TEXT NOT NULL,
		allergens TEXT[] NOT NULL DEFAULT '{}',
		created_at TIMESTAMP DEFAULT now()
	);`},
	{"norm_prescriptions", `
	CREATE TABLE IF NOT EXISTS norm_prescriptions (
		id UUID PRIMARY KEY,
		patient_id UUID NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
		phe_limit_mg NUMERIC NOT NULL CHECK (phe_limit_mg >= 0),
		protein_limit_g NUMERIC NOT NULL DEFAULT 0,
		kcal_min NUMERIC NOT NULL DEFAULT 0,
		fat_limit_g NUMERIC NOT NULL DEFAULT 0,
		issued_at TIMESTAMP NOT NULL DEFAULT now(),
		superseded_at TIMESTAMP
	);`},
	{"catalog_items", `
	CREATE TABLE IF NOT EXISTS catalog_items (
		kind TEXT NOT NULL CHECK (kind IN ('product', 'custom_product', 'dish', 'custom_dish')),
		id UUID NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		-- nutrient values per 100g; NULL means never measured
		phe_mg NUMERIC,
		leucine_mg NUMERIC NOT NULL DEFAULT 0,
		tyrosine_mg NUMERIC NOT NULL DEFAULT 0,
		methionine_mg NUMERIC NOT NULL DEFAULT 0,
		energy_kj NUMERIC NOT NULL DEFAULT 0,
		energy_kcal NUMERIC,
		protein_g NUMERIC NOT NULL DEFAULT 0,
		carbohydrate_g NUMERIC NOT NULL DEFAULT 0,
		fat_g NUMERIC NOT NULL DEFAULT 0,
		default_unit TEXT NOT NULL DEFAULT 'g',
		nominal_serving_grams NUMERIC,
		PRIMARY KEY (kind, id)
	);`},
	{"pantry_lots", `
	CREATE TABLE IF NOT EXISTS pantry_lots (
		id UUID PRIMARY KEY,
		patient_id UUID NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
		item_kind TEXT NOT NULL,
		item_id UUID NOT NULL,
		quantity_grams NUMERIC NOT NULL CHECK (quantity_grams >= 0),
		cost_per_gram NUMERIC NOT NULL DEFAULT 0,
		expires_at TIMESTAMP
	);`},
	{"market_prices", `
	CREATE TABLE IF NOT EXISTS market_prices (
		id UUID PRIMARY KEY,
		item_kind TEXT NOT NULL,
		item_id UUID NOT NULL,
		price_per_gram NUMERIC NOT NULL CHECK (price_per_gram >= 0),
		observed_at TIMESTAMP DEFAULT now()
	);`},
	{"menu_weeks", `
	CREATE TABLE IF NOT EXISTS menu_weeks (
		id UUID PRIMARY KEY,
		patient_id UUID NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
		start_date DATE NOT NULL,
		planned_totals JSONB NOT NULL DEFAULT '{}',
		consumed_totals JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP DEFAULT now()
	);`},
	{"menu_days", `
	CREATE TABLE IF NOT EXISTS menu_days (
		id UUID PRIMARY KEY,
		patient_id UUID NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
		week_id UUID REFERENCES menu_weeks(id) ON DELETE CASCADE,
		menu_date DATE NOT NULL,
		planned_totals JSONB NOT NULL DEFAULT '{}',
		consumed_totals JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP DEFAULT now(),
		updated_at TIMESTAMP DEFAULT now()
	);`},
	{"meal_slots", `
	CREATE TABLE IF NOT EXISTS meal_slots (
		id UUID PRIMARY KEY,
		day_id UUID NOT NULL REFERENCES menu_days(id) ON DELETE CASCADE,
		slot_type TEXT NOT NULL,
		position INTEGER NOT NULL,
		target_phe_mg NUMERIC NOT NULL DEFAULT 0,
		target_kcal NUMERIC NOT NULL DEFAULT 0,
		totals JSONB NOT NULL DEFAULT '{}',
		underfilled BOOLEAN NOT NULL DEFAULT false,
		UNIQUE (day_id, slot_type)
	);`},
	{"menu_entries", `
	CREATE TABLE IF NOT EXISTS menu_entries (
		id UUID PRIMARY KEY,
		slot_id UUID NOT NULL REFERENCES meal_slots(id) ON DELETE CASCADE,
		item_kind TEXT NOT NULL,
		item_id UUID NOT NULL,
		item_name TEXT NOT NULL,
		serving_qty NUMERIC NOT NULL CHECK (serving_qty > 0),
		unit TEXT NOT NULL,
		actual_serving_grams NUMERIC CHECK (actual_serving_grams >= 0),
		consumed_qty NUMERIC CHECK (consumed_qty >= 0),
		consumed BOOLEAN NOT NULL DEFAULT false,
		nutrition JSONB NOT NULL DEFAULT '{}',
		created_at TIMESTAMP DEFAULT now()
	);`},
	{"critical_facts", `
	CREATE TABLE IF NOT EXISTS critical_facts (
		id UUID PRIMARY KEY,
		patient_id UUID NOT NULL REFERENCES patients(id) ON DELETE CASCADE,
		menu_day_id UUID NOT NULL REFERENCES menu_days(id) ON DELETE CASCADE,
		breach_type TEXT NOT NULL,
		delta NUMERIC NOT NULL,
		limit_value NUMERIC NOT NULL,
		actual NUMERIC NOT NULL,
		context TEXT NOT NULL,
		severity TEXT NOT NULL,
		resolved BOOLEAN NOT NULL DEFAULT false,
		resolved_by UUID,
		resolved_at TIMESTAMP,
		created_at TIMESTAMP DEFAULT now()
	);`},
}

// InitDatabase creates the database schema if it does not exist.
// Set DROP_TABLES_ON_STARTUP=true environment variable to drop existing tables
func InitDatabase(db *sql.DB) error {
	// Only drop tables if explicitly requested (via env var)
	if os.Getenv("DROP_TABLES_ON_STARTUP") == "true" {
		log.Println("Dropping existing tables (DROP_TABLES_ON_STARTUP=true)...")
		for i := len(menuTables) - 1; i >= 0; i-- {
			if _, err := db.Exec("DROP TABLE IF EXISTS " + menuTables[i].name + " CASCADE"); err != nil {
				log.Printf("Warning: Failed to drop %s table: %v", menuTables[i].name, err)
			}
		}
	} else {
		log.Println("Skipping table drop (set DROP_TABLES_ON_STARTUP=true to drop tables on startup)")
	}

	for _, t := range menuTables {
		log.Printf("Creating %s table...", t.name)
		if _, err := db.Exec(t.schema); err != nil {
			return fmt.Errorf("failed to create %s table: %w", t.name, err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_norm_prescriptions_patient ON norm_prescriptions(patient_id, issued_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_catalog_items_name ON catalog_items(name)",
		"CREATE INDEX IF NOT EXISTS idx_pantry_lots_item ON pantry_lots(patient_id, item_kind, item_id)",
		"CREATE INDEX IF NOT EXISTS idx_market_prices_item ON market_prices(item_kind, item_id)",
		"CREATE INDEX IF NOT EXISTS idx_menu_days_patient_date ON menu_days(patient_id, menu_date)",
		"CREATE INDEX IF NOT EXISTS idx_menu_days_week_id ON menu_days(week_id)",
		"CREATE INDEX IF NOT EXISTS idx_meal_slots_day_id ON meal_slots(day_id)",
		"CREATE INDEX IF NOT EXISTS idx_menu_entries_slot_id ON menu_entries(slot_id)",
		"CREATE INDEX IF NOT EXISTS idx_critical_facts_patient ON critical_facts(patient_id, created_at DESC)",
		"CREATE INDEX IF NOT EXISTS idx_critical_facts_unresolved ON critical_facts(patient_id) WHERE resolved = false",
	}

	for _, indexSQL := range indexes {
		if _, err := db.Exec(indexSQL); err != nil {
			log.Printf("Warning: Failed to create index: %v", err)
		}
	}

	log.Println("Database schema initialized successfully")
	return nil
}

// ConnectDatabase establishes a connection to PostgreSQL with retry logic
func ConnectDatabase(databaseURL string, maxRetries int, retryDelay time.Duration) (*sql.DB, error) {
	var db *sql.DB
	var err error

	for i := 0; i < maxRetries; i++ {
		db, err = sql.Open("postgres", databaseURL)
		if err != nil {
			log.Printf("Failed to open database connection (attempt %d/%d): %v", i+1, maxRetries, err)
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
				continue
			}
			return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
		}

		// Test the connection
		if err = db.Ping(); err != nil {
			log.Printf("Failed to ping database (attempt %d/%d): %v", i+1, maxRetries, err)
			db.Close()
			if i < maxRetries-1 {
				time.Sleep(retryDelay)
				continue
			}
			return nil, fmt.Errorf("failed to ping database after %d attempts: %w", maxRetries, err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		log.Println("Database connection established successfully")
		return db, nil
	}

	return nil, fmt.Errorf("failed to connect to database: %w", err)
}

