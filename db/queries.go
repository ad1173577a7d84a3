package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx pgx.Tx) *Queries {
	return &Queries{db: tx}
}

const createUser = `
INSERT INTO users (id, email, password_hash)
VALUES ($1, $2, $3)
RETURNING id, email, password_hash, created_at
`

type CreateUserParams struct {
	ID           uuid.UUID
	Email        string
	PasswordHash string
}

func (q *Queries) CreateUser(ctx context.Context, arg CreateUserParams) (User, error) {
	row := q.db.QueryRow(ctx, createUser, arg.ID, arg.Email, arg.PasswordHash)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

const getUserByEmail = `
SELECT id, email, password_hash, created_at
FROM users
WHERE email = $1
`

func (q *Queries) GetUserByEmail(ctx context.Context, email string) (User, error) {
	row := q.db.QueryRow(ctx, getUserByEmail, email)
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.CreatedAt)
	return u, err
}

const createSession = `
INSERT INTO sessions (
    id, user_id, title, source_lang, target_lang,
    started_at, duration_seconds, speaker_count, avg_confidence
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id, user_id, title, source_lang, target_lang, started_at,
    duration_seconds, speaker_count, avg_confidence, created_at
`

type CreateSessionParams struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	Title           string
	SourceLang      string
	TargetLang      string
	StartedAt       time.Time
	DurationSeconds float64
	SpeakerCount    int32
	AvgConfidence   float64
}

func (q *Queries) CreateSession(ctx context.Context, arg CreateSessionParams) (Session, error) {
	row := q.db.QueryRow(ctx, createSession,
		arg.ID,
		arg.UserID,
		arg.Title,
		arg.SourceLang,
		arg.TargetLang,
		arg.StartedAt,
		arg.DurationSeconds,
		arg.SpeakerCount,
		arg.AvgConfidence,
	)
	return scanSession(row)
}

const getSession = `
SELECT id, user_id, title, source_lang, target_lang, started_at,
    duration_seconds, speaker_count, avg_confidence, created_at
FROM sessions
WHERE id = $1
`

func (q *Queries) GetSession(ctx context.Context, id uuid.UUID) (Session, error) {
	return scanSession(q.db.QueryRow(ctx, getSession, id))
}

const listSessionsByUser = `
SELECT id, user_id, title, source_lang, target_lang, started_at,
    duration_seconds, speaker_count, avg_confidence, created_at
FROM sessions
WHERE user_id = $1
ORDER BY started_at DESC
`

func (q *Queries) ListSessionsByUser(ctx context.Context, userID uuid.UUID) ([]Session, error) {
	rows, err := q.db.Query(ctx, listSessionsByUser, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

const deleteSession = `
DELETE FROM sessions
WHERE id = $1 AND user_id = $2
`

type DeleteSessionParams struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

func (q *Queries) DeleteSession(ctx context.Context, arg DeleteSessionParams) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteSession, arg.ID, arg.UserID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const insertUtterance = `
INSERT INTO utterances (
    id, session_id, position, speaker, original_text,
    translated_text, start_time, end_time, confidence
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

type InsertUtteranceParams struct {
	ID             uuid.UUID
	SessionID      uuid.UUID
	Position       int32
	Speaker        string
	OriginalText   string
	TranslatedText string
	StartTime      float64
	EndTime        float64
	Confidence     float64
}

func (q *Queries) InsertUtterance(ctx context.Context, arg InsertUtteranceParams) error {
	_, err := q.db.Exec(ctx, insertUtterance,
		arg.ID,
		arg.SessionID,
		arg.Position,
		arg.Speaker,
		arg.OriginalText,
		arg.TranslatedText,
		arg.StartTime,
		arg.EndTime,
		arg.Confidence,
	)
	return err
}

const getUtterancesForSession = `
SELECT id, session_id, position, speaker, original_text,
    translated_text, start_time, end_time, confidence
FROM utterances
WHERE session_id = $1
ORDER BY position ASC
`

func (q *Queries) GetUtterancesForSession(ctx context.Context, sessionID uuid.UUID) ([]Utterance, error) {
	rows, err := q.db.Query(ctx, getUtterancesForSession, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var utterances []Utterance
	for rows.Next() {
		var u Utterance
		err := rows.Scan(
			&u.ID,
			&u.SessionID,
			&u.Position,
			&u.Speaker,
			&u.OriginalText,
			&u.TranslatedText,
			&u.StartTime,
			&u.EndTime,
			&u.Confidence,
		)
		if err != nil {
			return nil, err
		}
		utterances = append(utterances, u)
	}
	return utterances, rows.Err()
}

const getAllSessionsWithDetails = `
SELECT s.id, s.title, s.source_lang, s.target_lang, s.started_at,
    s.duration_seconds, s.speaker_count, s.avg_confidence,
    u.email, COUNT(ut.id) AS utterance_count
FROM sessions s
JOIN users u ON u.id = s.user_id
LEFT JOIN utterances ut ON ut.session_id = s.id
GROUP BY s.id, u.email
ORDER BY s.started_at DESC
`

type GetAllSessionsWithDetailsRow struct {
	ID              uuid.UUID
	Title           string
	SourceLang      string
	TargetLang      string
	StartedAt       time.Time
	DurationSeconds float64
	SpeakerCount    int32
	AvgConfidence   float64
	Email           string
	UtteranceCount  int64
}

func (q *Queries) GetAllSessionsWithDetails(ctx context.Context) ([]GetAllSessionsWithDetailsRow, error) {
	rows, err := q.db.Query(ctx, getAllSessionsWithDetails)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var details []GetAllSessionsWithDetailsRow
	for rows.Next() {
		var d GetAllSessionsWithDetailsRow
		err := rows.Scan(
			&d.ID,
			&d.Title,
			&d.SourceLang,
			&d.TargetLang,
			&d.StartedAt,
			&d.DurationSeconds,
			&d.SpeakerCount,
			&d.AvgConfidence,
			&d.Email,
			&d.UtteranceCount,
		)
		if err != nil {
			return nil, err
		}
		details = append(details, d)
	}
	return details, rows.Err()
}

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Title,
		&s.SourceLang,
		&s.TargetLang,
		&s.StartedAt,
		&s.DurationSeconds,
		&s.SpeakerCount,
		&s.AvgConfidence,
		&s.CreatedAt,
	)
	return s, err
}
