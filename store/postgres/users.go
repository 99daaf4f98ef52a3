package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/c360/socialgate/errors"
	"github.com/c360/socialgate/pkg/retry"
	"github.com/c360/socialgate/user"
)

const userColumns = `id, username, email, password, role, name, bio,
	avatar_id, cover_id, follower_ids, following_ids, created_at, updated_at`

type userStore struct {
	s *Store
}

func scanUser(row pgx.Row) (*user.User, error) {
	u := &user.User{}
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.Password, &u.Role, &u.Name,
		&u.Bio, &u.AvatarID, &u.CoverID, &u.FollowerIDs, &u.FollowingIDs,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

// mapUniqueViolation converts unique-constraint violations into validation
// errors carrying the domain message only.
func mapUniqueViolation(err error, method string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		switch pgErr.ConstraintName {
		case "users_username_key":
			return errors.WrapValidation(errors.ErrUsernameTaken, "postgres", method,
				"username is already taken")
		case "users_email_key":
			return errors.WrapValidation(errors.ErrEmailTaken, "postgres", method,
				"email is already taken")
		}
	}
	return nil
}

func (r *userStore) Create(ctx context.Context, u *user.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	// Explicit pre-persist pipeline step: hash before the write commits.
	if err := u.HashPassword(); err != nil {
		return err
	}

	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	_, err := r.s.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, password, role, name, bio,
			avatar_id, cover_id, follower_ids, following_ids, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, u.ID, u.Username, u.Email, u.Password, u.Role, u.Name, u.Bio,
		u.AvatarID, u.CoverID, u.FollowerIDs, u.FollowingIDs, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		if verr := mapUniqueViolation(err, "Create"); verr != nil {
			return verr
		}
		return errors.WrapTransient(err, "postgres", "Create", "insert user")
	}
	return nil
}

func (r *userStore) Update(ctx context.Context, u *user.User) error {
	if err := u.Validate(); err != nil {
		return err
	}
	// Re-hash only when the password field itself changed.
	if err := u.HashPassword(); err != nil {
		return err
	}

	u.UpdatedAt = time.Now()

	res, err := r.s.pool.Exec(ctx, `
		UPDATE users
		SET username = $2, email = $3, password = $4, role = $5, name = $6,
			bio = $7, avatar_id = $8, cover_id = $9, follower_ids = $10,
			following_ids = $11, updated_at = $12
		WHERE id = $1
	`, u.ID, u.Username, u.Email, u.Password, u.Role, u.Name, u.Bio,
		u.AvatarID, u.CoverID, u.FollowerIDs, u.FollowingIDs, u.UpdatedAt)
	if err != nil {
		if verr := mapUniqueViolation(err, "Update"); verr != nil {
			return verr
		}
		return errors.WrapTransient(err, "postgres", "Update", "update user")
	}
	if res.RowsAffected() == 0 {
		return errors.WrapNotFound(errors.ErrUserNotFound, "postgres", "Update", "user not found")
	}
	return nil
}

// Delete runs the removal cascade in one transaction: pull the id from every
// other user's relation sets, purge authored messages, delete the row. The
// transaction is retried on transient failures; it either fully applies or
// leaves nothing behind, so a partial cascade is never visible.
func (r *userStore) Delete(ctx context.Context, id string) error {
	return retry.Do(ctx, retry.Cascade(), func() error {
		err := r.deleteOnce(ctx, id)
		if err != nil && (errors.IsNotFound(err) || errors.IsValidation(err)) {
			return retry.NonRetryable(err)
		}
		return err
	})
}

func (r *userStore) deleteOnce(ctx context.Context, id string) error {
	tx, err := r.s.pool.Begin(ctx)
	if err != nil {
		return errors.WrapTransient(err, "postgres", "Delete", "begin transaction")
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE users
		SET follower_ids = array_remove(follower_ids, $1),
			following_ids = array_remove(following_ids, $1)
		WHERE $1 = ANY(follower_ids) OR $1 = ANY(following_ids)
	`, id)
	if err != nil {
		return errors.WrapTransient(err, "postgres", "Delete", "pull relation ids")
	}

	_, err = tx.Exec(ctx, `DELETE FROM messages WHERE author_id = $1`, id)
	if err != nil {
		return errors.WrapTransient(err, "postgres", "Delete", "delete authored messages")
	}

	res, err := tx.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return errors.WrapTransient(err, "postgres", "Delete", "delete user")
	}
	if res.RowsAffected() == 0 {
		return errors.WrapNotFound(errors.ErrUserNotFound, "postgres", "Delete", "user not found")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.WrapTransient(err, "postgres", "Delete", "commit cascade")
	}
	return nil
}

func (r *userStore) ByID(ctx context.Context, id string) (*user.User, error) {
	row := r.s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WrapNotFound(errors.ErrUserNotFound, "postgres", "ByID", "user not found")
		}
		return nil, errors.WrapTransient(err, "postgres", "ByID", "query user")
	}
	return u, nil
}

// ByIDs resolves the whole id set in one query. Order is unspecified and
// missing ids are absent from the result.
func (r *userStore) ByIDs(ctx context.Context, ids []string) ([]*user.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, errors.WrapTransient(err, "postgres", "ByIDs", "query users")
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.WrapTransient(err, "postgres", "ByIDs", "scan user")
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WrapTransient(err, "postgres", "ByIDs", "iterate users")
	}
	return users, nil
}

// ByLogin tries a username match first, then falls back to email.
func (r *userStore) ByLogin(ctx context.Context, login string) (*user.User, error) {
	row := r.s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, login)
	u, err := scanUser(row)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, errors.WrapTransient(err, "postgres", "ByLogin", "query by username")
	}

	row = r.s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, login)
	u, err = scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.WrapNotFound(errors.ErrUserNotFound, "postgres", "ByLogin", "user not found")
		}
		return nil, errors.WrapTransient(err, "postgres", "ByLogin", "query by email")
	}
	return u, nil
}

func (r *userStore) All(ctx context.Context) ([]*user.User, error) {
	rows, err := r.s.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, errors.WrapTransient(err, "postgres", "All", "query users")
	}
	defer rows.Close()

	var users []*user.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, errors.WrapTransient(err, "postgres", "All", "scan user")
		}
		users = append(users, u)
	}
	return users, rows.Err()
}
