package http

import (
	"database/sql"
	"net/http"
)

type leaderRow struct {
	Rank     int    `json:"rank"`
	ID       string `json:"id"`
	Username string `json:"username"`
	Points   int    `json:"points"`
	Streak   int    `json:"streak"`
}

// GET /leaderboard?limit=  students ranked by points; ties share a rank.
func LeaderboardHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntDefault(r.URL.Query().Get("limit"), 20)
		if limit <= 0 || limit > 100 {
			limit = 20
		}
		rows, err := db.QueryContext(r.Context(),
			`SELECT id, username, points, streak FROM users WHERE role='student'
			 ORDER BY points DESC, username LIMIT $1`, limit)
		if err != nil {
			writeError(w, err)
			return
		}
		defer rows.Close()

		out := []leaderRow{}
		for rows.Next() {
			var lr leaderRow
			if err := rows.Scan(&lr.ID, &lr.Username, &lr.Points, &lr.Streak); err != nil {
				writeError(w, err)
				return
			}
			lr.Rank = len(out) + 1
			if n := len(out); n > 0 && out[n-1].Points == lr.Points {
				lr.Rank = out[n-1].Rank
			}
			out = append(out, lr)
		}
		if err := rows.Err(); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, out)
	}
}
