package db

import (
	"compress/gzip"
	"database/sql"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/tailscale/tailsql/server/tailsql"
	"gonum.org/v1/gonum/stat"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
}

func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			source            TEXT,
			notes             TEXT,
			started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			ended_at          TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS estimates (
			session_id        TEXT,
			heart_rate_bpm    DOUBLE,
			fps               DOUBLE,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE INDEX IF NOT EXISTS estimates_session ON estimates(session_id);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// StartSession records the beginning of a capture session and returns its id.
func (db *DB) StartSession(source, notes string) (string, error) {
	id := uuid.New().String()
	_, err := db.Exec("INSERT INTO sessions (session_id, source, notes) VALUES (?, ?, ?)", id, source, notes)
	if err != nil {
		return "", fmt.Errorf("failed to start session: %w", err)
	}
	return id, nil
}

// EndSession marks a session as finished.
func (db *DB) EndSession(sessionID string) error {
	res, err := db.Exec("UPDATE sessions SET ended_at = CURRENT_TIMESTAMP WHERE session_id = ? AND ended_at IS NULL", sessionID)
	if err != nil {
		return fmt.Errorf("failed to end session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("no open session with id %s", sessionID)
	}
	return nil
}

// RecordEstimate stores one estimation cycle's output. A rate of 0 marks an
// indeterminate cycle and is stored as-is so gaps stay visible in the history.
func (db *DB) RecordEstimate(sessionID string, heartRateBPM, fps float64) error {
	_, err := db.Exec("INSERT INTO estimates (session_id, heart_rate_bpm, fps) VALUES (?, ?, ?)",
		sessionID, heartRateBPM, fps)
	if err != nil {
		return fmt.Errorf("failed to record estimate: %w", err)
	}
	return nil
}

type Estimate struct {
	SessionID    string
	HeartRateBPM float64
	FPS          float64
	Timestamp    time.Time
}

func (e *Estimate) String() string {
	return fmt.Sprintf("Session: %s, HeartRateBPM: %f, FPS: %f, Timestamp: %s",
		e.SessionID, e.HeartRateBPM, e.FPS, e.Timestamp.Format(time.RFC3339))
}

// Estimates returns the most recent estimates for a session, newest first.
func (db *DB) Estimates(sessionID string, limit int) ([]Estimate, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := db.Query(`SELECT session_id, heart_rate_bpm, fps, timestamp FROM estimates
			WHERE session_id = ? ORDER BY timestamp DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var estimates []Estimate
	for rows.Next() {
		var (
			id        string
			rate      float64
			fps       float64
			timestamp string
		)
		if err := rows.Scan(&id, &rate, &fps, &timestamp); err != nil {
			return nil, err
		}
		estimates = append(estimates, Estimate{
			SessionID:    id,
			HeartRateBPM: rate,
			FPS:          fps,
			Timestamp:    parseTimestamp(timestamp),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return estimates, nil
}

type SessionStats struct {
	SessionID     string  `json:"session_id"`
	Cycles        int     `json:"cycles"`
	Indeterminate int     `json:"indeterminate"`
	P50BPM        float64 `json:"p50_bpm"`
	P85BPM        float64 `json:"p85_bpm"`
	P98BPM        float64 `json:"p98_bpm"`
	MeanFPS       float64 `json:"mean_fps"`
}

// Stats summarizes a session's estimates. Indeterminate cycles (rate 0) are
// counted but excluded from the percentiles so a few bad windows do not drag
// the distribution toward zero.
func (db *DB) Stats(sessionID string) (*SessionStats, error) {
	rows, err := db.Query("SELECT heart_rate_bpm, fps FROM estimates WHERE session_id = ?", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	stats := &SessionStats{SessionID: sessionID}
	var rates []float64
	var fpsSum float64
	for rows.Next() {
		var rate, fps float64
		if err := rows.Scan(&rate, &fps); err != nil {
			return nil, err
		}
		stats.Cycles++
		fpsSum += fps
		if rate == 0 {
			stats.Indeterminate++
			continue
		}
		rates = append(rates, rate)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.Cycles > 0 {
		stats.MeanFPS = fpsSum / float64(stats.Cycles)
	}
	if len(rates) > 0 {
		sort.Float64s(rates)
		stats.P50BPM = stat.Quantile(0.50, stat.Empirical, rates, nil)
		stats.P85BPM = stat.Quantile(0.85, stat.Empirical, rates, nil)
		stats.P98BPM = stat.Quantile(0.98, stat.Empirical, rates, nil)
	}

	return stats, nil
}

// Sessions lists recorded sessions, newest first.
func (db *DB) Sessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`SELECT session_id, source, notes, started_at, ended_at FROM sessions
			ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var (
			s         Session
			notes     sql.NullString
			startedAt string
			endedAt   sql.NullString
		)
		if err := rows.Scan(&s.SessionID, &s.Source, &notes, &startedAt, &endedAt); err != nil {
			return nil, err
		}
		s.Notes = notes.String
		s.StartedAt = parseTimestamp(startedAt)
		if endedAt.Valid {
			t := parseTimestamp(endedAt.String)
			s.EndedAt = &t
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

type Session struct {
	SessionID string     `json:"session_id"`
	Source    string     `json:"source"`
	Notes     string     `json:"notes,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// parseTimestamp parses sqlite's CURRENT_TIMESTAMP text form. A value that
// fails to parse yields the zero time rather than an error; timestamps here
// are informational.
func parseTimestamp(s string) time.Time {
	if t, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}

func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://pulse.db", db.DB, &tailsql.DBOptions{
		Label: "Pulse DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s.gz", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gz := gzip.NewWriter(w)
		defer gz.Close()
		if _, err := io.Copy(gz, backupFile); err != nil {
			log.Printf("Failed to stream backup: %v", err)
		}
	}))
}
