package accounts

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrAccountNotFound = errors.New("account not found")

type AccountRepository interface {
	CreateAccount(ctx context.Context, uuid, name, email string) (Account, error)
	GetAccountByUUID(ctx context.Context, uuid string) (Account, error)
	GetAccountByEmail(ctx context.Context, email string) (Account, error)
	ListAccounts(ctx context.Context, limit, offset int) ([]Account, int64, error)
}

type postgresAccountRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresAccountRepository(pool *pgxpool.Pool) AccountRepository {
	return &postgresAccountRepository{pool: pool}
}

func (r *postgresAccountRepository) CreateAccount(ctx context.Context, uuid, name, email string) (Account, error) {
	query := `INSERT INTO accounts (uuid, name, email, created_at)
              VALUES ($1, $2, $3, NOW())
              RETURNING id, uuid::text, name, email, created_at`
	row := r.pool.QueryRow(ctx, query, uuid, name, email)

	var a Account
	if err := row.Scan(&a.ID, &a.UUID, &a.Name, &a.Email, &a.CreatedAt); err != nil {
		return Account{}, err
	}
	return a, nil
}

func (r *postgresAccountRepository) GetAccountByUUID(ctx context.Context, uuid string) (Account, error) {
	query := `SELECT id, uuid::text, name, email, created_at
			  FROM accounts
			  WHERE uuid = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, uuid))
}

func (r *postgresAccountRepository) GetAccountByEmail(ctx context.Context, email string) (Account, error) {
	query := `SELECT id, uuid::text, name, email, created_at
			  FROM accounts
			  WHERE email = $1`
	return r.scanOne(r.pool.QueryRow(ctx, query, email))
}

func (r *postgresAccountRepository) scanOne(row pgx.Row) (Account, error) {
	var a Account
	if err := row.Scan(&a.ID, &a.UUID, &a.Name, &a.Email, &a.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *postgresAccountRepository) ListAccounts(ctx context.Context, limit, offset int) ([]Account, int64, error) {
	query := `SELECT id, uuid::text, name, email, created_at
              FROM accounts
              ORDER BY id
              LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	list := make([]Account, 0)
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.UUID, &a.Name, &a.Email, &a.CreatedAt); err != nil {
			return nil, 0, err
		}
		list = append(list, a)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM accounts").Scan(&total); err != nil {
		return nil, 0, err
	}

	return list, total, nil
}
