package accounts

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"assetledger/pkg/registry"
)

var (
	ErrEmailTaken   = errors.New("account exists with that email")
	ErrInvalidInput = errors.New("name and email are required")
)

type AccountService interface {
	CreateAccount(ctx context.Context, name, email string) (Account, error)
	GetAccountByUUID(ctx context.Context, uuid string) (Account, error)
	ListAccounts(ctx context.Context, page, limit int) ([]Account, int64, error)
	EmailFor(ctx context.Context, id registry.Identity) (string, error)
}

type accountService struct {
	repo AccountRepository
}

func NewAccountService(repo AccountRepository) AccountService {
	return &accountService{repo: repo}
}

func (s *accountService) CreateAccount(ctx context.Context, name, email string) (Account, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" || email == "" {
		return Account{}, ErrInvalidInput
	}

	a, err := s.repo.CreateAccount(ctx, uuid.NewString(), name, email)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrEmailTaken
		}
		return Account{}, err
	}
	return a, nil
}

func (s *accountService) GetAccountByUUID(ctx context.Context, id string) (Account, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Account{}, ErrAccountNotFound
	}
	return s.repo.GetAccountByUUID(ctx, parsed.String())
}

func (s *accountService) ListAccounts(ctx context.Context, page, limit int) ([]Account, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 10
	}
	offset := (page - 1) * limit
	return s.repo.ListAccounts(ctx, limit, offset)
}

// EmailFor resolves the mailbox of a registry identity.
func (s *accountService) EmailFor(ctx context.Context, id registry.Identity) (string, error) {
	a, err := s.GetAccountByUUID(ctx, string(id))
	if err != nil {
		return "", err
	}
	return a.Email, nil
}
