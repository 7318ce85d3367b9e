package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ahmadzakiakmal/scrumchain/repository/models"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// PostgreSQL error codes as constants
const (
	// Class 23: Integrity Constraint Violation
	PgErrForeignKeyViolation = "23503" // foreign_key_violation
	PgErrUniqueViolation     = "23505" // unique_violation
	PgErrCheckViolation      = "23514" // check_violation
	PgErrNotNullViolation    = "23502" // not_null_violation

	// Class 22: Data Exception
	PgErrDataException         = "22000" // data_exception
	PgErrInvalidDatetimeFormat = "22007" // invalid_datetime_format

	// Class 08: Connection Exception
	PgErrConnectionException = "08000" // connection_exception
	PgErrConnectionFailure   = "08006" // connection_failure

	// Class 40: Transaction Rollback
	PgErrTransactionRollback  = "40000" // transaction_rollback
	PgErrSerializationFailure = "40001" // serialization_failure
)

// Repository level codes
const (
	CodeEntityNotFound       = "ENTITY_NOT_FOUND"
	CodeTransactionNotFound  = "TRANSACTION_NOT_FOUND"
	CodeDuplicateTransaction = "DUPLICATE_TRANSACTION"
	CodeInvalidField         = "INVALID_FIELD"
	CodeConflict             = "CONFLICT"
	CodeDatabaseError        = "DATABASE_ERROR"
)

var (
	ErrEntityNotFound       = errors.New("entity not found")
	ErrTransactionNotFound  = errors.New("transaction not found")
	ErrDuplicateTransaction = errors.New("duplicate transaction hash")
)

// RepositoryError represent an error in the repository layer
type RepositoryError struct {
	Code    string
	Message string
	Detail  string

	err error
}

func (e *RepositoryError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
}

func (e *RepositoryError) Unwrap() error {
	return e.err
}

// newRepositoryError maps a database error, keeping the PostgreSQL code when there is one
func newRepositoryError(err error) *RepositoryError {
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &RepositoryError{
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Detail:  pgErr.Detail,
			err:     err,
		}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &RepositoryError{
			Code:    PgErrUniqueViolation,
			Message: "Duplicate key",
			Detail:  err.Error(),
			err:     err,
		}
	}
	if errors.Is(err, gorm.ErrForeignKeyViolated) {
		return &RepositoryError{
			Code:    PgErrForeignKeyViolation,
			Message: "Referenced entity does not exist",
			Detail:  err.Error(),
			err:     err,
		}
	}
	return &RepositoryError{
		Code:    CodeDatabaseError,
		Message: "a database error occured",
		Detail:  err.Error(),
		err:     err,
	}
}

func notFound(kind models.Kind, id uint64) *RepositoryError {
	return &RepositoryError{
		Code:    CodeEntityNotFound,
		Message: fmt.Sprintf("%s does not exist", kind),
		Detail:  fmt.Sprintf("%s with id %d does not exist", kind, id),
		err:     ErrEntityNotFound,
	}
}

// Repository owns the relational store: entity tables and the ledger transaction history
type Repository struct {
	db     *gorm.DB
	logger cmtlog.Logger
}

func New(db *gorm.DB, logger cmtlog.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger.With("module", "repository"),
	}
}

// ConnectDB opens PostgreSQL, retrying while the server comes up
func ConnectDB(ctx context.Context, dsn string, maxAttempts int, logger cmtlog.Logger) (*gorm.DB, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for i := range maxAttempts {
		logger.Info("Connecting to Postgres", "attempt", i+1)
		db, err := gorm.Open(postgres.Open(dsn), GormConfig())
		if err == nil {
			sqlDB, err := db.DB()
			if err == nil {
				err = sqlDB.PingContext(ctx)
			}
			if err == nil {
				logger.Info("Connected to Postgres")
				return db, nil
			}
			lastErr = err
		} else {
			lastErr = err
		}
		logger.Error("Connection attempt failed", "attempt", i+1, "err", lastErr)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, fmt.Errorf("connecting to postgres after %d attempts: %w", maxAttempts, lastErr)
}

// GormConfig is shared by every connection: driver errors are translated and
// timestamps are written in UTC.
func GormConfig() *gorm.Config {
	return &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	}
}

func (r *Repository) Migrate() error {
	err := r.db.AutoMigrate(
		&models.Team{},
		&models.BacklogItem{},
		&models.Sprint{},
		&models.Task{},
		&models.Transaction{},
	)
	if err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	r.logger.Info("Database migration completed successfully")
	return nil
}

// DB exposes the underlying handle, used by health checks
func (r *Repository) DB() *gorm.DB {
	return r.db
}

// Ping checks database connectivity
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
