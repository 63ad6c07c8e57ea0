package http

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/helloclass/helloclass-lms/internal/rbac"
)

const bcryptCost = 12

type userRow struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`               // usually "student"
	Password  string `json:"password,omitempty"` // plaintext, hashed on the way in
	IsPremium *bool  `json:"is_premium,omitempty"`
}

func BulkUpsertUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Accept either multipart file= (CSV/JSON) OR raw JSON array in body
		var rows []userRow
		ct := r.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "multipart/form-data") {
			f, _, err := r.FormFile("file")
			if err != nil {
				http.Error(w, "file required", 400)
				return
			}
			defer f.Close()
			// sniff simple CSV vs JSON by first non-space byte
			buf := make([]byte, 1)
			if _, err := f.Read(buf); err != nil {
				http.Error(w, "empty file", 400)
				return
			}
			if _, err := f.Seek(0, io.SeekStart); err != nil {
				http.Error(w, "unreadable file", 400)
				return
			}
			if buf[0] == '[' || buf[0] == '{' {
				if err := json.NewDecoder(f).Decode(&rows); err != nil {
					http.Error(w, "bad json", 400)
					return
				}
			} else {
				rs, err := parseCSV(f)
				if err != nil {
					http.Error(w, "bad csv: "+err.Error(), 400)
					return
				}
				rows = rs
			}
		} else {
			if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
				http.Error(w, "expected JSON array or multipart file", 400)
				return
			}
		}
		if len(rows) == 0 {
			writeJSON(w, http.StatusOK, map[string]any{"inserted": 0, "updated": 0})
			return
		}

		ins, upd, err := upsertUsers(r.Context(), db, rows)
		if err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"inserted": ins, "updated": upd})
	}
}

type userInfo struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
	Points    int    `json:"points"`
	IsPremium bool   `json:"is_premium"`
}

func ListUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := r.URL.Query().Get("role")
		q := `SELECT id,username,role,points,is_premium FROM users`
		var args []any
		if role != "" {
			q += ` WHERE role=$1`
			args = append(args, role)
		}
		rows, err := db.QueryContext(r.Context(), q+` ORDER BY username`, args...)
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		defer rows.Close()
		out := []userInfo{}
		for rows.Next() {
			var (
				u       userInfo
				premium int
			)
			if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.Points, &premium); err != nil {
				http.Error(w, err.Error(), 500)
				return
			}
			u.IsPremium = premium != 0
			out = append(out, u)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func parseCSV(r io.Reader) ([]userRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	idx := map[string]int{}
	for i, h := range hdr {
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	required := []string{"username"}
	for _, k := range required {
		if _, ok := idx[k]; !ok {
			return nil, errors.New("missing column: " + k)
		}
	}
	var rows []userRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := userRow{Username: rec[idx["username"]]}
		if i, ok := idx["id"]; ok {
			row.ID = rec[i]
		}
		if i, ok := idx["role"]; ok {
			row.Role = strings.ToLower(strings.TrimSpace(rec[i]))
		}
		if i, ok := idx["password"]; ok {
			row.Password = rec[i]
		}
		if i, ok := idx["is_premium"]; ok && rec[i] != "" {
			p := rec[i] == "1" || strings.EqualFold(rec[i], "true")
			row.IsPremium = &p
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func upsertUsers(ctx context.Context, db *sql.DB, rows []userRow) (inserted, updated int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	now := time.Now().Unix()
	for _, r := range rows {
		if r.Role == "" {
			r.Role = "student"
		}
		if !rbac.Default.Known(r.Role) {
			return inserted, updated, errors.New("invalid role: " + r.Role)
		}
		// Hash password if provided (LAN-only flow). If empty, keep existing hash or reject if new.
		var phash string
		if r.Password != "" {
			b, e := bcrypt.GenerateFromPassword([]byte(r.Password), bcryptCost)
			if e != nil {
				return inserted, updated, e
			}
			phash = string(b)
		}

		r.Username = strings.TrimSpace(r.Username)
		if r.Username == "" {
			return inserted, updated, errors.New("username required")
		}

		// Upsert: match on id, then username; new users need a password
		var existingID string
		err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id=$1 OR username=$2`, r.ID, r.Username).Scan(&existingID)
		exists := err == nil
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return inserted, updated, err
		}
		if exists {
			r.ID = existingID
		} else if r.ID == "" {
			r.ID = uuid.NewString()
		}
		if exists {
			if phash != "" {
				_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, role=$2, password_hash=$3 WHERE id=$4`,
					r.Username, r.Role, phash, r.ID)
			} else {
				_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, role=$2 WHERE id=$3`,
					r.Username, r.Role, r.ID)
			}
			if err != nil {
				return inserted, updated, err
			}
			if r.IsPremium != nil {
				if _, err = tx.ExecContext(ctx, `UPDATE users SET is_premium=$1 WHERE id=$2`, boolInt(*r.IsPremium), r.ID); err != nil {
					return inserted, updated, err
				}
			}
			updated++
		} else {
			if phash == "" {
				return inserted, updated, errors.New("password required for new user: " + r.Username)
			}
			premium := r.IsPremium != nil && *r.IsPremium
			_, err = tx.ExecContext(ctx,
				`INSERT INTO users (id, username, password_hash, role, is_premium, created_at) VALUES ($1,$2,$3,$4,$5,$6)`,
				r.ID, r.Username, phash, r.Role, boolInt(premium), now)
			if err != nil {
				return inserted, updated, err
			}
			inserted++
		}
	}
	return
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
