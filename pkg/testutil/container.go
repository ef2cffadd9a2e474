// Package testutil provides testing utilities for the pharmacy backend.
// It includes testcontainers for PostgreSQL, sqlmock helpers and common
// test fixtures.
package testutil

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PostgresContainer wraps a testcontainers PostgreSQL instance
type PostgresContainer struct {
	*postgres.PostgresContainer
	DSN string
}

// PostgresContainerConfig configures the test PostgreSQL container
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string // Optional: defaults to postgres:15-alpine
}

// DefaultPostgresConfig returns sensible defaults for test containers
func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "pharmacy_test",
		Username: "test",
		Password: "test",
		Image:    "postgres:15-alpine",
	}
}

// NewPostgresContainer creates a new PostgreSQL test container.
//
// Usage:
//
//	func TestMain(m *testing.M) {
//	    ctx := context.Background()
//	    container, err := testutil.NewPostgresContainer(ctx, testutil.DefaultPostgresConfig())
//	    if err != nil {
//	        log.Fatal(err)
//	    }
//	    defer container.Terminate(ctx)
//
//	    // Run tests
//	    code := m.Run()
//	    os.Exit(code)
//	}
func NewPostgresContainer(ctx context.Context, cfg PostgresContainerConfig) (*PostgresContainer, error) {
	if cfg.Image == "" {
		cfg.Image = "postgres:15-alpine"
	}
	if cfg.Database == "" {
		cfg.Database = "pharmacy_test"
	}
	if cfg.Username == "" {
		cfg.Username = "test"
	}
	if cfg.Password == "" {
		cfg.Password = "test"
	}

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage(cfg.Image),
		postgres.WithDatabase(cfg.Database),
		postgres.WithUsername(cfg.Username),
		postgres.WithPassword(cfg.Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to start postgres container: %w", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("failed to get connection string: %w", err)
	}

	return &PostgresContainer{
		PostgresContainer: container,
		DSN:               dsn,
	}, nil
}

// Connect returns a sqlx.DB connection to the container
func (c *PostgresContainer) Connect(ctx context.Context) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", c.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to test database: %w", err)
	}
	return db, nil
}

// Terminate stops and removes the container
func (c *PostgresContainer) Terminate(ctx context.Context) error {
	return c.PostgresContainer.Terminate(ctx)
}

// CreatePharmacySchema creates the pharmacy tables in the test database.
// The DDL mirrors the production migrations.
func (c *PostgresContainer) CreatePharmacySchema(ctx context.Context, db *sqlx.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS medicines (
			id UUID PRIMARY KEY,
			name VARCHAR(255) UNIQUE NOT NULL,
			generic_name VARCHAR(255),
			dosage VARCHAR(100),
			unit VARCHAR(50),
			quantity INTEGER NOT NULL DEFAULT 0 CHECK (quantity >= 0),
			min_stock_level INTEGER NOT NULL DEFAULT 10 CHECK (min_stock_level >= 0),
			supplier VARCHAR(255),
			cost_per_unit NUMERIC(10, 2),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS medicine_batches (
			id UUID PRIMARY KEY,
			medicine_id UUID NOT NULL REFERENCES medicines(id),
			batch_number VARCHAR(100) NOT NULL,
			quantity INTEGER NOT NULL CHECK (quantity >= 0),
			available_quantity INTEGER NOT NULL CHECK (available_quantity >= 0),
			expiry_date DATE NOT NULL,
			shelf_location VARCHAR(100) NOT NULL DEFAULT '',
			cost_per_unit NUMERIC(10, 2),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (medicine_id, batch_number)
		);

		CREATE INDEX IF NOT EXISTS idx_batches_allocation
			ON medicine_batches (medicine_id, expiry_date, created_at)
			WHERE available_quantity > 0;

		CREATE TABLE IF NOT EXISTS dummy_medicines (
			id UUID PRIMARY KEY,
			name VARCHAR(255) NOT NULL,
			generic_name VARCHAR(255),
			dosage VARCHAR(100),
			unit VARCHAR(50),
			supplier VARCHAR(255),
			estimated_cost NUMERIC(10, 2),
			notes TEXT,
			replaced_by_id UUID REFERENCES medicines(id),
			is_replaced BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS prescriptions (
			id UUID PRIMARY KEY,
			student_id VARCHAR(100) NOT NULL,
			visit_id VARCHAR(100),
			created_by_id VARCHAR(100) NOT NULL,
			notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS prescription_items (
			id UUID PRIMARY KEY,
			prescription_id UUID NOT NULL REFERENCES prescriptions(id),
			medicine_id UUID REFERENCES medicines(id),
			dummy_medicine_id UUID REFERENCES dummy_medicines(id),
			dosage VARCHAR(100),
			frequency VARCHAR(100),
			duration_days INTEGER,
			quantity_prescribed INTEGER NOT NULL CHECK (quantity_prescribed > 0),
			quantity_dispensed INTEGER NOT NULL DEFAULT 0 CHECK (quantity_dispensed >= 0),
			instructions TEXT,
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			dispensed_date TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (quantity_dispensed <= quantity_prescribed),
			CHECK (
				(medicine_id IS NOT NULL AND dummy_medicine_id IS NULL)
				OR (medicine_id IS NULL AND dummy_medicine_id IS NOT NULL)
			)
		);

		CREATE TABLE IF NOT EXISTS stock_movements (
			id UUID PRIMARY KEY,
			medicine_id UUID NOT NULL REFERENCES medicines(id),
			user_id VARCHAR(100) NOT NULL,
			movement_type VARCHAR(20) NOT NULL CHECK (movement_type IN ('ADD', 'DISPENSE', 'LOSS')),
			quantity INTEGER NOT NULL CHECK (quantity > 0),
			reason TEXT,
			reference_item_id UUID REFERENCES prescription_items(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS batch_dispensings (
			id UUID PRIMARY KEY,
			prescription_item_id UUID NOT NULL REFERENCES prescription_items(id),
			batch_id UUID NOT NULL REFERENCES medicine_batches(id),
			quantity_dispensed INTEGER NOT NULL CHECK (quantity_dispensed > 0),
			dispensed_by_id VARCHAR(100) NOT NULL,
			dispensed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			notes TEXT
		);
	`

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to create pharmacy schema: %w", err)
	}

	return nil
}
