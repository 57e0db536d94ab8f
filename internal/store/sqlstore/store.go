package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver
	"github.com/mattn/go-sqlite3"      // SQLite driver
	"github.com/pliu/pinchat/internal/models"
	"github.com/pliu/pinchat/internal/store"
)

// pgUniqueViolation is the SQLSTATE Postgres reports for unique index
// violations.
const pgUniqueViolation = "23505"

type SQLStore struct {
	db         *sql.DB
	driverName string
}

var _ store.Store = (*SQLStore)(nil)

// New opens a store on the "sqlite3" or "pgx" driver ("postgres" is accepted
// for pgx) and creates the schema if needed.
func New(driverName, dataSourceName string) (*SQLStore, error) {
	if driverName == "postgres" {
		driverName = "pgx"
	}
	db, err := sql.Open(driverName, dataSourceName)
	if err != nil {
		return nil, err
	}
	if driverName == "sqlite3" {
		// Every connection to ":memory:" is its own database.
		db.SetMaxOpenConns(1)
	}
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLStore{db: db, driverName: driverName}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return s, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) createTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS owners (
		id TEXT PRIMARY KEY,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS app_users (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES owners(id),
		username TEXT NOT NULL,
		display_name TEXT NOT NULL,
		password_hash TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at DATETIME NOT NULL,
		UNIQUE (owner_id, username)
	);

	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL REFERENCES owners(id),
		title TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS chat_participants (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL REFERENCES chats(id),
		owner_id TEXT REFERENCES owners(id),
		user_id TEXT REFERENCES app_users(id),
		role TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS chat_participants_one_dm
		ON chat_participants (user_id) WHERE role = 'girlfriend';

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL REFERENCES chats(id),
		sender_id TEXT NOT NULL,
		sender_type TEXT NOT NULL,
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		edited BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS messages_chat_created ON messages (chat_id, created_at);

	CREATE TABLE IF NOT EXISTS reactions (
		id TEXT PRIMARY KEY,
		message_id TEXT NOT NULL REFERENCES messages(id),
		user_id TEXT NOT NULL,
		user_type TEXT NOT NULL,
		reaction_type TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS reactions_one_per_user
		ON reactions (message_id, user_id, user_type);
	`

	if s.driverName == "pgx" {
		query = strings.ReplaceAll(query, "DATETIME", "TIMESTAMPTZ")
	}

	_, err := s.db.Exec(query)
	return err
}

// Helper to handle placeholders
func (s *SQLStore) rebind(query string) string {
	if s.driverName == "pgx" {
		n := strings.Count(query, "?")
		for i := 1; i <= n; i++ {
			query = strings.Replace(query, "?", fmt.Sprintf("$%d", i), 1)
		}
	}
	return query
}

// wrapErr maps driver errors onto the store error taxonomy.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return store.ErrNotFound
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) &&
		(liteErr.ExtendedCode == sqlite3.ErrConstraintUnique || liteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey) {
		return fmt.Errorf("%w: %w", store.ErrConflict, err)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return fmt.Errorf("%w: %w", store.ErrConflict, err)
	}
	return fmt.Errorf("%w: %w", store.ErrUnavailable, err)
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

func (s *SQLStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapErr(err)
	}
	defer tx.Rollback()
	if err := fn(tx); err != nil {
		return wrapErr(err)
	}
	return wrapErr(tx.Commit())
}

func (s *SQLStore) CreateOwner(ctx context.Context, owner *models.Owner) error {
	if owner.ID == "" {
		owner.ID = newID()
	}
	if owner.CreatedAt.IsZero() {
		owner.CreatedAt = now()
	}
	query := s.rebind("INSERT INTO owners (id, email, password_hash, created_at) VALUES (?, ?, ?, ?)")
	_, err := s.db.ExecContext(ctx, query, owner.ID, owner.Email, owner.PasswordHash, owner.CreatedAt)
	return wrapErr(err)
}

func (s *SQLStore) GetOwnerByEmail(ctx context.Context, email string) (*models.Owner, error) {
	var o models.Owner
	query := s.rebind("SELECT id, email, password_hash, created_at FROM owners WHERE email = ?")
	err := s.db.QueryRowContext(ctx, query, email).Scan(&o.ID, &o.Email, &o.PasswordHash, &o.CreatedAt)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &o, nil
}

const appUserColumns = "id, owner_id, username, display_name, password_hash, active, created_at"

func scanAppUser(row interface{ Scan(...any) error }) (*models.AppUser, error) {
	var u models.AppUser
	if err := row.Scan(&u.ID, &u.OwnerID, &u.Username, &u.DisplayName, &u.PasswordHash, &u.Active, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *SQLStore) CreateAppUser(ctx context.Context, user *models.AppUser) error {
	if user.ID == "" {
		user.ID = newID()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now()
	}
	query := s.rebind("INSERT INTO app_users (" + appUserColumns + ") VALUES (?, ?, ?, ?, ?, ?, ?)")
	_, err := s.db.ExecContext(ctx, query, user.ID, user.OwnerID, user.Username, user.DisplayName, user.PasswordHash, user.Active, user.CreatedAt)
	return wrapErr(err)
}

func (s *SQLStore) GetAppUser(ctx context.Context, id string) (*models.AppUser, error) {
	query := s.rebind("SELECT " + appUserColumns + " FROM app_users WHERE id = ?")
	u, err := scanAppUser(s.db.QueryRowContext(ctx, query, id))
	return u, wrapErr(err)
}

func (s *SQLStore) GetActiveAppUserByUsername(ctx context.Context, username string) (*models.AppUser, error) {
	query := s.rebind("SELECT " + appUserColumns + " FROM app_users WHERE username = ? AND active = ? ORDER BY created_at LIMIT 1")
	u, err := scanAppUser(s.db.QueryRowContext(ctx, query, username, true))
	return u, wrapErr(err)
}

func (s *SQLStore) ListAppUsers(ctx context.Context, ownerID string) ([]models.AppUser, error) {
	query := s.rebind("SELECT " + appUserColumns + " FROM app_users WHERE owner_id = ? ORDER BY created_at DESC, id DESC")
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var users []models.AppUser
	for rows.Next() {
		u, err := scanAppUser(rows)
		if err != nil {
			return nil, wrapErr(err)
		}
		users = append(users, *u)
	}
	return users, wrapErr(rows.Err())
}

func (s *SQLStore) SetAppUserActive(ctx context.Context, id string, active bool) error {
	query := s.rebind("UPDATE app_users SET active = ? WHERE id = ?")
	result, err := s.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return wrapErr(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return wrapErr(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *SQLStore) CreateChat(ctx context.Context, chat *models.Chat) error {
	if chat.ID == "" {
		chat.ID = newID()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now()
	}
	query := s.rebind("INSERT INTO chats (id, owner_id, title, created_at) VALUES (?, ?, ?, ?)")
	_, err := s.db.ExecContext(ctx, query, chat.ID, chat.OwnerID, chat.Title, chat.CreatedAt)
	return wrapErr(err)
}

// CreateDMChat inserts the chat and its owner and girlfriend participant rows
// in a single transaction. A second DM for the same user fails with
// store.ErrConflict and leaves nothing behind.
func (s *SQLStore) CreateDMChat(ctx context.Context, chat *models.Chat, userID string) error {
	if chat.ID == "" {
		chat.ID = newID()
	}
	if chat.CreatedAt.IsZero() {
		chat.CreatedAt = now()
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		query := s.rebind("INSERT INTO chats (id, owner_id, title, created_at) VALUES (?, ?, ?, ?)")
		if _, err := tx.ExecContext(ctx, query, chat.ID, chat.OwnerID, chat.Title, chat.CreatedAt); err != nil {
			return err
		}
		query = s.rebind("INSERT INTO chat_participants (id, chat_id, owner_id, user_id, role, created_at) VALUES (?, ?, ?, ?, ?, ?)")
		if _, err := tx.ExecContext(ctx, query, newID(), chat.ID, chat.OwnerID, nil, models.RoleOwner, chat.CreatedAt); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, query, newID(), chat.ID, nil, userID, models.RoleGirlfriend, chat.CreatedAt)
		return err
	})
}

func (s *SQLStore) GetChat(ctx context.Context, id string) (*models.Chat, error) {
	var c models.Chat
	query := s.rebind("SELECT id, owner_id, title, created_at FROM chats WHERE id = ?")
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt); err != nil {
		return nil, wrapErr(err)
	}
	return &c, nil
}

func (s *SQLStore) ListOwnerChats(ctx context.Context, ownerID string) ([]models.Chat, error) {
	query := s.rebind("SELECT id, owner_id, title, created_at FROM chats WHERE owner_id = ? ORDER BY created_at DESC, id DESC")
	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var chats []models.Chat
	for rows.Next() {
		var c models.Chat
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Title, &c.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		chats = append(chats, c)
	}
	return chats, wrapErr(rows.Err())
}

func (s *SQLStore) DeleteChat(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		// Children first; foreign keys reference the chat.
		stmts := []string{
			"DELETE FROM reactions WHERE message_id IN (SELECT id FROM messages WHERE chat_id = ?)",
			"DELETE FROM messages WHERE chat_id = ?",
			"DELETE FROM chat_participants WHERE chat_id = ?",
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, s.rebind(stmt), id); err != nil {
				return err
			}
		}
		result, err := tx.ExecContext(ctx, s.rebind("DELETE FROM chats WHERE id = ?"), id)
		if err != nil {
			return err
		}
		n, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

func (s *SQLStore) AddParticipant(ctx context.Context, p *models.ChatParticipant) error {
	if p.ID == "" {
		p.ID = newID()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now()
	}
	query := s.rebind("INSERT INTO chat_participants (id, chat_id, owner_id, user_id, role, created_at) VALUES (?, ?, ?, ?, ?, ?)")
	_, err := s.db.ExecContext(ctx, query, p.ID, p.ChatID, nullString(p.OwnerID), nullString(p.UserID), p.Role, p.CreatedAt)
	return wrapErr(err)
}

func (s *SQLStore) GetChatParticipants(ctx context.Context, chatID string) ([]models.ChatParticipant, error) {
	query := s.rebind("SELECT id, chat_id, owner_id, user_id, role, created_at FROM chat_participants WHERE chat_id = ? ORDER BY created_at, id")
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var participants []models.ChatParticipant
	for rows.Next() {
		var p models.ChatParticipant
		var ownerID, userID sql.NullString
		if err := rows.Scan(&p.ID, &p.ChatID, &ownerID, &userID, &p.Role, &p.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		p.OwnerID, p.UserID = ownerID.String, userID.String
		participants = append(participants, p)
	}
	return participants, wrapErr(rows.Err())
}

func (s *SQLStore) IsParticipant(ctx context.Context, chatID string, role models.Role, memberID string) (bool, error) {
	column := "user_id"
	if role == models.RoleOwner {
		column = "owner_id"
	}
	var exists bool
	query := s.rebind("SELECT EXISTS(SELECT 1 FROM chat_participants WHERE chat_id = ? AND role = ? AND " + column + " = ?)")
	err := s.db.QueryRowContext(ctx, query, chatID, role, memberID).Scan(&exists)
	return exists, wrapErr(err)
}

func (s *SQLStore) FindDMChatID(ctx context.Context, userID string) (string, error) {
	var chatID string
	query := s.rebind("SELECT chat_id FROM chat_participants WHERE user_id = ? AND role = ?")
	err := s.db.QueryRowContext(ctx, query, userID, models.RoleGirlfriend).Scan(&chatID)
	return chatID, wrapErr(err)
}

func (s *SQLStore) SaveMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = newID()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now()
	}
	query := s.rebind("INSERT INTO messages (id, chat_id, sender_id, sender_type, content, created_at, edited) VALUES (?, ?, ?, ?, ?, ?, ?)")
	_, err := s.db.ExecContext(ctx, query, msg.ID, msg.ChatID, msg.SenderID, msg.SenderType, msg.Content, msg.CreatedAt, msg.Edited)
	return wrapErr(err)
}

const messageColumns = "id, chat_id, sender_id, sender_type, content, created_at, edited"

func (s *SQLStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	var m models.Message
	query := s.rebind("SELECT " + messageColumns + " FROM messages WHERE id = ?")
	err := s.db.QueryRowContext(ctx, query, id).Scan(&m.ID, &m.ChatID, &m.SenderID, &m.SenderType, &m.Content, &m.CreatedAt, &m.Edited)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &m, nil
}

func (s *SQLStore) GetChatMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	query := s.rebind("SELECT " + messageColumns + " FROM messages WHERE chat_id = ? ORDER BY created_at ASC, id ASC")
	rows, err := s.db.QueryContext(ctx, query, chatID)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.SenderID, &m.SenderType, &m.Content, &m.CreatedAt, &m.Edited); err != nil {
			return nil, wrapErr(err)
		}
		messages = append(messages, m)
	}
	return messages, wrapErr(rows.Err())
}

const reactionColumns = "id, message_id, user_id, user_type, reaction_type, created_at"

func (s *SQLStore) AddReaction(ctx context.Context, r *models.Reaction) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now()
	}
	query := s.rebind("INSERT INTO reactions (" + reactionColumns + ") VALUES (?, ?, ?, ?, ?, ?)")
	_, err := s.db.ExecContext(ctx, query, r.ID, r.MessageID, r.UserID, r.UserType, r.ReactionType, r.CreatedAt)
	return wrapErr(err)
}

func (s *SQLStore) FindReaction(ctx context.Context, messageID, userID string, userType models.Role) (*models.Reaction, error) {
	var r models.Reaction
	query := s.rebind("SELECT " + reactionColumns + " FROM reactions WHERE message_id = ? AND user_id = ? AND user_type = ?")
	err := s.db.QueryRowContext(ctx, query, messageID, userID, userType).
		Scan(&r.ID, &r.MessageID, &r.UserID, &r.UserType, &r.ReactionType, &r.CreatedAt)
	if err != nil {
		return nil, wrapErr(err)
	}
	return &r, nil
}

func (s *SQLStore) GetReactions(ctx context.Context, messageIDs []string) ([]models.Reaction, error) {
	if len(messageIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(messageIDs)), ", ")
	args := make([]any, len(messageIDs))
	for i, id := range messageIDs {
		args[i] = id
	}
	query := s.rebind("SELECT " + reactionColumns + " FROM reactions WHERE message_id IN (" + placeholders + ") ORDER BY created_at, id")
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wrapErr(err)
	}
	defer rows.Close()

	var reactions []models.Reaction
	for rows.Next() {
		var r models.Reaction
		if err := rows.Scan(&r.ID, &r.MessageID, &r.UserID, &r.UserType, &r.ReactionType, &r.CreatedAt); err != nil {
			return nil, wrapErr(err)
		}
		reactions = append(reactions, r)
	}
	return reactions, wrapErr(rows.Err())
}

func (s *SQLStore) DeleteReaction(ctx context.Context, id string) error {
	query := s.rebind("DELETE FROM reactions WHERE id = ?")
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return wrapErr(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return wrapErr(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
