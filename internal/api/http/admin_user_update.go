package http

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/helloclass/helloclass-lms/internal/rbac"
)

type updateUserReq struct {
	Role      *string `json:"role,omitempty"`
	IsPremium *bool   `json:"is_premium,omitempty"`
	AddPoints int     `json:"add_points,omitempty"`
}

// PATCH /users/{userID}  admin-only: role, premium flag, point grants.
func AdminUpdateUserHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target := chi.URLParam(r, "userID") // id or username
		var req updateUserReq
		if !decode(w, r, &req) {
			return
		}

		var id, curRole string
		err := db.QueryRowContext(r.Context(),
			`SELECT id, role FROM users WHERE id=$1 OR username=$1`, target).Scan(&id, &curRole)
		if errors.Is(err, sql.ErrNoRows) {
			http.Error(w, "user not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		tx, err := db.BeginTx(r.Context(), nil)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer tx.Rollback()

		if req.Role != nil {
			role := strings.ToLower(strings.TrimSpace(*req.Role))
			if !rbac.Default.Known(role) {
				http.Error(w, "invalid role", http.StatusBadRequest)
				return
			}
			// never demote the last admin
			if curRole == "admin" && role != "admin" {
				var adminCount int
				if err := tx.QueryRowContext(r.Context(),
					`SELECT COUNT(1) FROM users WHERE role='admin'`).Scan(&adminCount); err != nil {
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				if adminCount <= 1 {
					http.Error(w, "cannot demote the last admin", http.StatusBadRequest)
					return
				}
			}
			if _, err := tx.ExecContext(r.Context(), `UPDATE users SET role=$1 WHERE id=$2`, role, id); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		if req.IsPremium != nil {
			if _, err := tx.ExecContext(r.Context(),
				`UPDATE users SET is_premium=$1 WHERE id=$2`, boolInt(*req.IsPremium), id); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		if req.AddPoints != 0 {
			// points never go below zero
			if _, err := tx.ExecContext(r.Context(),
				`UPDATE users SET points=CASE WHEN points+$1 < 0 THEN 0 ELSE points+$1 END WHERE id=$2`,
				req.AddPoints, id); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		if err := tx.Commit(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
