package repo

import (
	"context"
	"database/sql"
	"errors"

	"trackline/internal/domain"
)

func (r Repo) InsertUser(ctx context.Context, tx *sql.Tx, u domain.User) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT INTO users(id,username,display_name,email,created_at) VALUES (?,?,?,?,?)`,
		u.ID, u.Username, nullable(u.DisplayName), nullable(u.Email), u.CreatedAt)
	if err != nil {
		return err
	}
	for _, role := range u.Roles {
		if err := r.GrantRole(ctx, tx, u.ID, role); err != nil {
			return err
		}
	}
	return nil
}

func (r Repo) GetUser(ctx context.Context, id string) (domain.User, error) {
	return r.getUser(ctx, r.DB, `id=?`, id)
}

func (r Repo) GetUserTx(ctx context.Context, tx *sql.Tx, id string) (domain.User, error) {
	return r.getUser(ctx, r.q(tx), `id=?`, id)
}

func (r Repo) GetUserByUsername(ctx context.Context, username string) (domain.User, error) {
	return r.getUser(ctx, r.DB, `username=?`, username)
}

func (r Repo) getUser(ctx context.Context, q querier, where string, arg string) (domain.User, error) {
	var u domain.User
	var display, email sql.NullString
	err := q.QueryRowContext(ctx, `SELECT id,username,display_name,email,created_at FROM users WHERE `+where, arg).
		Scan(&u.ID, &u.Username, &display, &email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return u, NotFound("user", arg)
	}
	if err != nil {
		return u, err
	}
	u.DisplayName = display.String
	u.Email = email.String
	roles, err := r.userRoles(ctx, q, u.ID)
	if err != nil {
		return u, err
	}
	u.Roles = roles
	return u, nil
}

func (r Repo) ListUsers(ctx context.Context) ([]domain.User, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,username,COALESCE(display_name,''),COALESCE(email,''),created_at FROM users ORDER BY username`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.User
	for rows.Next() {
		var u domain.User
		if err := rows.Scan(&u.ID, &u.Username, &u.DisplayName, &u.Email, &u.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range res {
		roles, err := r.userRoles(ctx, r.DB, res[i].ID)
		if err != nil {
			return nil, err
		}
		res[i].Roles = roles
	}
	return res, nil
}

// UserRoles returns the global roles held by a user.
func (r Repo) UserRoles(ctx context.Context, userID string) ([]string, error) {
	return r.userRoles(ctx, r.DB, userID)
}

func (r Repo) userRoles(ctx context.Context, q querier, userID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT role FROM user_roles WHERE user_id=? ORDER BY role`, userID)
	if err != nil {
		return nil, err
	}
	return scanStrings(rows)
}

func (r Repo) GrantRole(ctx context.Context, tx *sql.Tx, userID, role string) error {
	_, err := r.q(tx).ExecContext(ctx, `INSERT OR IGNORE INTO user_roles(user_id, role) VALUES (?,?)`, userID, role)
	return err
}

func (r Repo) RevokeRole(ctx context.Context, tx *sql.Tx, userID, role string) error {
	_, err := r.q(tx).ExecContext(ctx, `DELETE FROM user_roles WHERE user_id=? AND role=?`, userID, role)
	return err
}
