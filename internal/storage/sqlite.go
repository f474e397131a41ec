package storage

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

var db *sql.DB

// InitDB initializes the SQLite database connection with WAL mode
func InitDB(dbPath string) error {
	var err error

	path := dbPath
	if dbPath != ":memory:" {
		path, err = filepath.Abs(dbPath)
		if err != nil {
			return err
		}
	}

	db, err = sql.Open("sqlite", path)
	if err != nil {
		return err
	}

	// Enable WAL mode for better concurrency
	_, err = db.Exec("PRAGMA journal_mode=WAL")
	if err != nil {
		return err
	}

	// Run migrations
	if err := runMigrations(); err != nil {
		return err
	}

	return nil
}

// DB returns the database connection
func DB() *sql.DB {
	return db
}

// runMigrations creates the necessary tables
func runMigrations() error {
	contestsTable := `
		CREATE TABLE IF NOT EXISTS contests (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			creator_id INTEGER NOT NULL,
			title TEXT NOT NULL,
			stake_amount INTEGER NOT NULL,
			start_date DATETIME NOT NULL,
			end_date DATETIME NOT NULL,
			schedule_type TEXT NOT NULL,
			distance_km REAL NOT NULL,
			days TEXT,
			time_of_day TEXT,
			status TEXT NOT NULL DEFAULT 'pending',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`

	participantsTable := `
		CREATE TABLE IF NOT EXISTS participants (
			contest_id INTEGER NOT NULL,
			athlete_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			paid INTEGER NOT NULL DEFAULT 0,
			completed_days INTEGER NOT NULL DEFAULT 0,
			last_verified DATETIME,
			strava_connected INTEGER NOT NULL DEFAULT 0,
			joined_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (contest_id, athlete_id),
			FOREIGN KEY (contest_id) REFERENCES contests(id)
		)
	`

	tokensTable := `
		CREATE TABLE IF NOT EXISTS strava_tokens (
			athlete_id INTEGER PRIMARY KEY,
			athlete_name TEXT,
			access_token TEXT NOT NULL,
			refresh_token TEXT NOT NULL,
			expires_at INTEGER NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`

	createIndexes := `
		CREATE INDEX IF NOT EXISTS idx_participants_athlete_id ON participants(athlete_id);
		CREATE INDEX IF NOT EXISTS idx_contests_status ON contests(status);
	`

	for _, stmt := range []string{contestsTable, participantsTable, tokensTable, createIndexes} {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	return nil
}

// CloseDB closes the database connection
func CloseDB() error {
	if db != nil {
		return db.Close()
	}
	return nil
}

// CreateContest inserts a new contest and enrolls the creator as its first
// participant in a single transaction. The contest id comes from the sqlite
// sequence, so concurrent creates and prior deletions never collide.
func CreateContest(creatorID int64, creatorName, title string, stakeAmount int64, schedule Schedule, startDate, endDate time.Time) (*Contest, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		INSERT INTO contests (creator_id, title, stake_amount, start_date, end_date, schedule_type, distance_km, days, time_of_day, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, creatorID, title, stakeAmount, startDate, endDate,
		string(schedule.Type), schedule.DistanceKm, strings.Join(schedule.Days, ","), schedule.TimeOfDay,
		string(ContestStatusPending))
	if err != nil {
		return nil, fmt.Errorf("failed to insert contest: %w", err)
	}

	contestID, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO participants (contest_id, athlete_id, name)
		VALUES (?, ?, ?)
	`, contestID, creatorID, creatorName)
	if err != nil {
		return nil, fmt.Errorf("failed to insert creator participant: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return GetContestByID(contestID)
}

// GetContestByID retrieves a contest with its participants.
// Returns (nil, nil) when the contest does not exist.
func GetContestByID(id int64) (*Contest, error) {
	contest, err := scanContest(db.QueryRow(`
		SELECT id, creator_id, title, stake_amount, start_date, end_date, schedule_type, distance_km, days, time_of_day, status
		FROM contests
		WHERE id = ?
	`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contest by id: %w", err)
	}

	if err := loadParticipants(contest); err != nil {
		return nil, err
	}
	return contest, nil
}

// ListContests returns all contests with participants, oldest first.
func ListContests() ([]*Contest, error) {
	rows, err := db.Query(`
		SELECT id, creator_id, title, stake_amount, start_date, end_date, schedule_type, distance_km, days, time_of_day, status
		FROM contests
		ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list contests: %w", err)
	}
	defer rows.Close()

	var contests []*Contest
	for rows.Next() {
		contest, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contest: %w", err)
		}
		contests = append(contests, contest)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, contest := range contests {
		if err := loadParticipants(contest); err != nil {
			return nil, err
		}
	}
	return contests, nil
}

// ListContestsEndedBefore returns unsettled contests whose window closed
// before the given time. Used by the settlement worker.
func ListContestsEndedBefore(t time.Time) ([]*Contest, error) {
	rows, err := db.Query(`
		SELECT id, creator_id, title, stake_amount, start_date, end_date, schedule_type, distance_km, days, time_of_day, status
		FROM contests
		WHERE status != ? AND end_date < ?
		ORDER BY id
	`, string(ContestStatusSettled), t)
	if err != nil {
		return nil, fmt.Errorf("failed to list ended contests: %w", err)
	}
	defer rows.Close()

	var contests []*Contest
	for rows.Next() {
		contest, err := scanContest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contest: %w", err)
		}
		contests = append(contests, contest)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, contest := range contests {
		if err := loadParticipants(contest); err != nil {
			return nil, err
		}
	}
	return contests, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanContest(row rowScanner) (*Contest, error) {
	var contest Contest
	var scheduleType, status string
	var days, timeOfDay sql.NullString

	err := row.Scan(
		&contest.ID,
		&contest.CreatorID,
		&contest.Title,
		&contest.StakeAmount,
		&contest.StartDate,
		&contest.EndDate,
		&scheduleType,
		&contest.Schedule.DistanceKm,
		&days,
		&timeOfDay,
		&status,
	)
	if err != nil {
		return nil, err
	}

	contest.Schedule.Type = ScheduleType(scheduleType)
	if days.Valid && days.String != "" {
		contest.Schedule.Days = strings.Split(days.String, ",")
	}
	if timeOfDay.Valid {
		contest.Schedule.TimeOfDay = timeOfDay.String
	}
	contest.Status = ContestStatus(status)
	return &contest, nil
}

func loadParticipants(contest *Contest) error {
	rows, err := db.Query(`
		SELECT athlete_id, name, paid, completed_days, last_verified, strava_connected
		FROM participants
		WHERE contest_id = ?
		ORDER BY joined_at, athlete_id
	`, contest.ID)
	if err != nil {
		return fmt.Errorf("failed to load participants: %w", err)
	}
	defer rows.Close()

	contest.Participants = nil
	for rows.Next() {
		var p Participant
		var lastVerified sql.NullTime
		if err := rows.Scan(&p.AthleteID, &p.Name, &p.Paid, &p.CompletedDays, &lastVerified, &p.StravaConnected); err != nil {
			return fmt.Errorf("failed to scan participant: %w", err)
		}
		if lastVerified.Valid {
			p.LastVerified = lastVerified.Time
		}
		contest.Participants = append(contest.Participants, p)
	}
	return rows.Err()
}

// AddParticipant appends a new participant with default (unverified) state.
// The athlete's linkage flag is seeded from any stored Strava token.
func AddParticipant(contestID, athleteID int64, name string) error {
	var linked int
	err := db.QueryRow(`SELECT COUNT(1) FROM strava_tokens WHERE athlete_id = ?`, athleteID).Scan(&linked)
	if err != nil {
		return fmt.Errorf("failed to check token linkage: %w", err)
	}

	_, err = db.Exec(`
		INSERT INTO participants (contest_id, athlete_id, name, strava_connected)
		VALUES (?, ?, ?, ?)
	`, contestID, athleteID, name, linked)
	if err != nil {
		return fmt.Errorf("failed to insert participant: %w", err)
	}
	return nil
}

// GetParticipant retrieves one athlete's record in a contest.
// Returns (nil, nil) when the athlete is not participating.
func GetParticipant(contestID, athleteID int64) (*Participant, error) {
	var p Participant
	var lastVerified sql.NullTime
	err := db.QueryRow(`
		SELECT athlete_id, name, paid, completed_days, last_verified, strava_connected
		FROM participants
		WHERE contest_id = ? AND athlete_id = ?
	`, contestID, athleteID).Scan(&p.AthleteID, &p.Name, &p.Paid, &p.CompletedDays, &lastVerified, &p.StravaConnected)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get participant: %w", err)
	}
	if lastVerified.Valid {
		p.LastVerified = lastVerified.Time
	}
	return &p, nil
}

// RecordVerification bumps completed_days by exactly one and stamps the
// verification time. Callers serialize per contest; the row is the single
// source of truth for the counter.
func RecordVerification(contestID, athleteID int64, verifiedAt time.Time) error {
	result, err := db.Exec(`
		UPDATE participants
		SET completed_days = completed_days + 1, last_verified = ?
		WHERE contest_id = ? AND athlete_id = ?
	`, verifiedAt, contestID, athleteID)
	if err != nil {
		return fmt.Errorf("failed to record verification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("participant not found for contest %d", contestID)
	}
	return nil
}

// SetStravaConnected marks every participant row for the athlete as linked.
func SetStravaConnected(athleteID int64) error {
	_, err := db.Exec(`
		UPDATE participants
		SET strava_connected = 1
		WHERE athlete_id = ?
	`, athleteID)
	if err != nil {
		return fmt.Errorf("failed to set strava_connected: %w", err)
	}
	return nil
}

// UpdateContestStatus moves a contest to a new lifecycle state.
func UpdateContestStatus(contestID int64, status ContestStatus) error {
	result, err := db.Exec(`
		UPDATE contests
		SET status = ?
		WHERE id = ?
	`, string(status), contestID)
	if err != nil {
		return fmt.Errorf("failed to update contest status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("contest %d not found", contestID)
	}
	return nil
}

// SaveStravaToken upserts the stored OAuth credentials for an athlete.
func SaveStravaToken(athleteID int64, athleteName, accessToken, refreshToken string, expiresAt int64) error {
	_, err := db.Exec(`
		INSERT INTO strava_tokens (athlete_id, athlete_name, access_token, refresh_token, expires_at, updated_at)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(athlete_id) DO UPDATE SET
			athlete_name = excluded.athlete_name,
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			expires_at = excluded.expires_at,
			updated_at = CURRENT_TIMESTAMP
	`, athleteID, athleteName, accessToken, refreshToken, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to save strava token: %w", err)
	}
	return nil
}

// GetStravaToken retrieves the stored OAuth credentials for an athlete.
// Returns (nil, nil) when the athlete never linked Strava.
func GetStravaToken(athleteID int64) (*StravaToken, error) {
	var token StravaToken
	err := db.QueryRow(`
		SELECT athlete_id, athlete_name, access_token, refresh_token, expires_at, updated_at
		FROM strava_tokens
		WHERE athlete_id = ?
	`, athleteID).Scan(&token.AthleteID, &token.AthleteName, &token.AccessToken, &token.RefreshToken, &token.ExpiresAt, &token.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strava token: %w", err)
	}
	return &token, nil
}
