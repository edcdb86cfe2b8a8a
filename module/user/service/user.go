package service

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerr "github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"

	"mdzgate/module/user/model"
	errs "mdzgate/tools/errs"
)

const pgUniqueViolation = "23505"

// Store is the pgx-backed account store. The gateway only needs it for
// credential issuance; everything else about accounts lives elsewhere.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// EnsureSchema creates the users table if it is missing. Development
// convenience only.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id              BIGSERIAL PRIMARY KEY,
			email           TEXT NOT NULL UNIQUE,
			hashed_password TEXT NOT NULL,
			created_at      TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	return pkgerr.Wrap(err, "ensure users schema")
}

// Create registers a new account with a bcrypt-hashed password.
func (s *Store) Create(ctx context.Context, email, password string) (*model.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, pkgerr.Wrap(err, "hash password")
	}

	u := &model.User{Email: email, HashedPassword: string(hashed)}
	err = s.pool.QueryRow(ctx,
		`INSERT INTO users (email, hashed_password) VALUES ($1, $2) RETURNING id, created_at`,
		email, string(hashed),
	).Scan(&u.ID, &u.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			e := errs.ErrDuplicateKey.WithDetail("email already registered")
			return nil, &e
		}
		return nil, pkgerr.Wrap(err, "insert user")
	}
	return u, nil
}

// Authenticate verifies the credentials and returns the account.
// Unknown email and wrong password are deliberately indistinguishable.
func (s *Store) Authenticate(ctx context.Context, email, password string) (*model.User, error) {
	u := &model.User{Email: email}
	err := s.pool.QueryRow(ctx,
		`SELECT id, hashed_password, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&u.ID, &u.HashedPassword, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &errs.ErrAuthFailed
		}
		return nil, pkgerr.Wrap(err, "select user")
	}
	if bcrypt.CompareHashAndPassword([]byte(u.HashedPassword), []byte(password)) != nil {
		return nil, &errs.ErrAuthFailed
	}
	return u, nil
}

// GetByID fetches one account by primary key.
func (s *Store) GetByID(ctx context.Context, id int64) (*model.User, error) {
	u := &model.User{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT email, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&u.Email, &u.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, &errs.ErrRecordNotFound
		}
		return nil, pkgerr.Wrap(err, "select user by id")
	}
	return u, nil
}

// Ping reports whether the database answers. Used by the health endpoint.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
