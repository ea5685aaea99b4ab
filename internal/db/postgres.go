package db

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"receipt-drop/internal/receipts"
)

// OpenDB opens a PostgreSQL connection pool for databaseURL and pings it.
func OpenDB(ctx context.Context, databaseURL string) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, errors.New("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// PostgresStore keeps receipts in the receipts table created by
// RunMigrations.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open, migrated pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// OpenPostgres connects to databaseURL and applies pending migrations.
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := OpenDB(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgresStore(db), nil
}

const receiptColumns = `id, file_path, file_name, object_key, original_name, content_type,
	size_bytes, checksum, employee_name, department, purchase_date, vendor, amount,
	payment_method, category, project_code, description, upload_date, status,
	created_at, updated_at`

func (s *PostgresStore) Backend() string { return "postgres" }

func (s *PostgresStore) Insert(ctx context.Context, r *receipts.Receipt) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO receipts (`+receiptColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)`,
		r.ID, r.FilePath, r.FileName, r.ObjectKey, r.OriginalName, r.ContentType,
		r.SizeBytes, r.Checksum, r.EmployeeName, r.Department, r.PurchaseDate, r.Vendor, r.Amount,
		string(r.PaymentMethod), r.Category, r.ProjectCode, r.Description, r.UploadDate, string(r.Status),
		r.CreatedAt, r.UpdatedAt,
	)
	if err != nil {
		return pgError("insert receipt", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReceipt(row rowScanner) (receipts.Receipt, error) {
	var (
		r             receipts.Receipt
		paymentMethod string
		status        string
	)
	err := row.Scan(
		&r.ID, &r.FilePath, &r.FileName, &r.ObjectKey, &r.OriginalName, &r.ContentType,
		&r.SizeBytes, &r.Checksum, &r.EmployeeName, &r.Department, &r.PurchaseDate, &r.Vendor, &r.Amount,
		&paymentMethod, &r.Category, &r.ProjectCode, &r.Description, &r.UploadDate, &status,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return receipts.Receipt{}, err
	}
	r.PaymentMethod = receipts.PaymentMethod(paymentMethod)
	r.Status = receipts.Status(status)
	r.PurchaseDate = r.PurchaseDate.UTC()
	r.UploadDate = r.UploadDate.UTC()
	r.CreatedAt = r.CreatedAt.UTC()
	r.UpdatedAt = r.UpdatedAt.UTC()
	return r, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*receipts.Receipt, error) {
	// Malformed ids cannot exist in a uuid column.
	if _, err := uuid.Parse(id); err != nil {
		return nil, receipts.ErrNotFound
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+receiptColumns+` FROM receipts WHERE id = $1`, id)
	r, err := scanReceipt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, receipts.ErrNotFound
	}
	if err != nil {
		return nil, pgError("get receipt", err)
	}
	return &r, nil
}

// listQuery builds the SELECT for q. Text terms are OR-ed, matching any
// word in the generated search column.
func listQuery(q receipts.ListQuery) (string, []any) {
	var (
		where []string
		args  []any
	)
	if q.Status != "" {
		args = append(args, string(q.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	if terms := searchTerms(q.Text); len(terms) > 0 {
		args = append(args, strings.Join(terms, " | "))
		where = append(where, fmt.Sprintf("search @@ to_tsquery('simple', $%d)", len(args)))
	}

	query := `SELECT ` + receiptColumns + ` FROM receipts`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, q.EffectiveLimit())
	query += fmt.Sprintf(` ORDER BY upload_date DESC, id ASC LIMIT $%d`, len(args))
	return query, args
}

func (s *PostgresStore) List(ctx context.Context, q receipts.ListQuery) ([]receipts.Receipt, error) {
	query, args := listQuery(q)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pgError("list receipts", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]receipts.Receipt, 0)
	for rows.Next() {
		r, err := scanReceipt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan receipt: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, pgError("list receipts", err)
	}
	return out, nil
}

func (s *PostgresStore) HasObject(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM receipts WHERE object_key = $1)`, key).Scan(&exists)
	if err != nil {
		return false, pgError("check object", err)
	}
	return exists, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &receipts.ConnectivityError{Err: err}
	}
	return nil
}

func (s *PostgresStore) Close(context.Context) error { return s.db.Close() }

// pgError marks connection-level failures as connectivity errors.
func pgError(op string, err error) error {
	wrapped := fmt.Errorf("%s: %w", op, err)

	var (
		netErr     net.Error
		connectErr *pgconn.ConnectError
	)
	if errors.As(err, &netErr) || errors.As(err, &connectErr) ||
		errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || pgconn.Timeout(err) {
		return &receipts.ConnectivityError{Err: wrapped}
	}
	return wrapped
}
