package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/tandemhq/tandem/internal/cache"

	"github.com/tandemhq/tandem/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		newCache, errCache := cache.NewCache()
		if errCache != nil {
			log.Printf("cache unavailable, reads go straight to the database: %v", errCache)
		}
		instance = &Datasource{Conn: con, Cache: newCache}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createInventoryTable(db)
	if err != nil {
		return nil, err
	}
	err = createReservationTable(db)
	if err != nil {
		return nil, err
	}
	err = createSagaTable(db)
	if err != nil {
		return nil, err
	}
	err = createLedgerEntryTable(db)
	if err != nil {
		return nil, err
	}
	err = createSagaEventTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createInventoryTable creates a PostgreSQL table for the InventoryItem struct
func createInventoryTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS inventory_items (
			id SERIAL PRIMARY KEY,
			inventory_id TEXT NOT NULL UNIQUE,
			sku TEXT NOT NULL UNIQUE,
			quantity_on_hand BIGINT NOT NULL DEFAULT 0,
			quantity_reserved BIGINT NOT NULL DEFAULT 0,
			quantity_committed BIGINT NOT NULL DEFAULT 0,
			track_quantity BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		log.Printf("Error creating inventory_items table: %v", err)
	}
	return err
}

// createReservationTable creates a PostgreSQL table for the InventoryReservation struct.
// The partial unique index enforces one live hold per reservation key; terminal
// rows stay behind for audit without blocking a new hold on the same key.
func createReservationTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS reservations (
			id SERIAL PRIMARY KEY,
			reservation_id TEXT NOT NULL UNIQUE,
			reservation_key TEXT NOT NULL,
			inventory_id TEXT NOT NULL REFERENCES inventory_items(inventory_id),
			quantity BIGINT NOT NULL CHECK (quantity > 0),
			status TEXT NOT NULL CHECK (status IN ('ACTIVE', 'COMMITTED', 'RELEASED', 'EXPIRED')),
			reference_type TEXT NOT NULL CHECK (reference_type IN ('CART', 'ORDER', 'QUOTE', 'SYSTEM')),
			reference_id TEXT NOT NULL,
			parent_reservation_id TEXT,
			created_by TEXT,
			expires_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			meta_data JSONB
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_reservations_active_key ON reservations(reservation_key) WHERE status = 'ACTIVE';
		CREATE INDEX IF NOT EXISTS idx_reservations_expiry ON reservations(expires_at) WHERE status = 'ACTIVE';
	`)
	if err != nil {
		log.Printf("Error creating reservations table: %v", err)
	}
	return err
}

// createSagaTable creates a PostgreSQL table for the SagaInstance struct
func createSagaTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sagas (
			id SERIAL PRIMARY KEY,
			saga_id TEXT NOT NULL UNIQUE,
			saga_type TEXT NOT NULL,
			correlation_id TEXT,
			status TEXT NOT NULL CHECK (status IN ('PENDING', 'RUNNING', 'COMPENSATING', 'COMPENSATED', 'COMPLETED', 'FAILED')),
			current_step INT NOT NULL DEFAULT 0,
			data JSONB,
			step_results JSONB,
			tenant_id TEXT,
			actor_id TEXT,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMP NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_sagas_status ON sagas(status);
	`)
	if err != nil {
		log.Printf("Error creating sagas table: %v", err)
	}
	return err
}

// createLedgerEntryTable creates a PostgreSQL table for the LedgerEntry struct
func createLedgerEntryTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS ledger_entries (
			id SERIAL PRIMARY KEY,
			entry_id TEXT NOT NULL UNIQUE,
			subject_id TEXT NOT NULL,
			entry_type TEXT NOT NULL,
			account_type TEXT NOT NULL CHECK (account_type IN ('CUSTOMER', 'MERCHANT', 'PLATFORM', 'GATEWAY', 'ESCROW')),
			account_id TEXT NOT NULL DEFAULT '',
			amount NUMERIC(20, 4) NOT NULL CHECK (amount <> 0),
			currency TEXT NOT NULL,
			running_balance NUMERIC(20, 4) NOT NULL,
			description TEXT NOT NULL,
			reference TEXT,
			created_by TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_subject ON ledger_entries(subject_id);
		CREATE INDEX IF NOT EXISTS idx_ledger_entries_account ON ledger_entries(account_type, account_id);
	`)
	if err != nil {
		log.Printf("Error creating ledger_entries table: %v", err)
	}
	return err
}

// createSagaEventTable creates a PostgreSQL table for the DomainEvent struct
func createSagaEventTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS saga_events (
			id SERIAL PRIMARY KEY,
			event_id TEXT NOT NULL UNIQUE,
			aggregate_id TEXT NOT NULL,
			version BIGINT NOT NULL,
			event_type TEXT NOT NULL,
			payload JSONB,
			dispatched BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (aggregate_id, version)
		);
		CREATE INDEX IF NOT EXISTS idx_saga_events_dispatched ON saga_events(dispatched) WHERE dispatched = FALSE;
	`)
	if err != nil {
		log.Printf("Error creating saga_events table: %v", err)
	}
	return err
}
