package auth

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// uniqueViolation is the Postgres error code for unique-constraint failures.
const uniqueViolation = "23505"

// PostgresProvider is a Provider backed by an accounts table in PostgreSQL.
// Passwords are stored as bcrypt hashes.
type PostgresProvider struct {
	db *sql.DB
}

// Open connects to PostgreSQL with the given DSN and verifies the connection.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("auth: open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("auth: postgres connection failed: %w", err)
	}
	return db, nil
}

// Migrate applies the embedded schema migrations to the database. Already
// up-to-date schemas are a no-op.
func Migrate(db *sql.DB) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("auth: migrate driver: %w", err)
	}
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("auth: migrate source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("auth: migrate init: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("auth: migrate up: %w", err)
	}
	return nil
}

// NewPostgresProvider creates a provider on top of an existing database
// handle. Callers run Migrate before first use.
func NewPostgresProvider(db *sql.DB) *PostgresProvider {
	return &PostgresProvider{db: db}
}

// CreateAccount inserts a new account with a generated id and a bcrypt
// password hash. A duplicate email fails with ErrEmailTaken.
func (p *PostgresProvider) CreateAccount(ctx context.Context, email, password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}

	id := uuid.NewString()
	const query = `
		INSERT INTO accounts (id, email, password_hash)
		VALUES ($1, $2, $3)`

	if _, err := p.db.ExecContext(ctx, query, id, email, string(hash)); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return "", ErrEmailTaken
		}
		return "", fmt.Errorf("auth: insert account: %w", err)
	}
	return id, nil
}

// SignIn looks up the account by email and verifies the password against the
// stored hash. Unknown emails and mismatched passwords both fail with
// ErrInvalidCredentials so callers cannot probe for registered addresses.
func (p *PostgresProvider) SignIn(ctx context.Context, email, password string) (string, error) {
	const query = `
		SELECT id, password_hash
		FROM accounts
		WHERE email = $1`

	var id, hash string
	err := p.db.QueryRowContext(ctx, query, email).Scan(&id, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("auth: select account: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return id, nil
}
