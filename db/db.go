package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"time"

	"github.com/deemkeen/anancus/domain"
	"github.com/deemkeen/anancus/util"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"modernc.org/sqlite"
	sqlitelib "modernc.org/sqlite/lib"
)

// DB is the database struct.
type DB struct {
	db *sql.DB
}

var (
	dbInstance *DB
	dbOnce     sync.Once
	dbPath     = "database.db"
)

const (
	//Accounts
	sqlCreateUserTable = `CREATE TABLE IF NOT EXISTS accounts(
                        id uuid NOT NULL PRIMARY KEY,
                        username varchar(100) UNIQUE NOT NULL,
                        created_at timestamp default current_timestamp,
                        display_name varchar(255),
                        summary text,
                        avatar_url text,
                        web_public_key text,
                        web_private_key text
                        )`
	sqlInsertUser           = `INSERT INTO accounts(id, username, display_name, summary, avatar_url, web_public_key, web_private_key, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateUserProfile    = `UPDATE accounts SET display_name = ?, summary = ?, avatar_url = ? WHERE id = ?`
	sqlSelectUserById       = `SELECT id, username, created_at, COALESCE(display_name, ''), COALESCE(summary, ''), COALESCE(avatar_url, ''), web_public_key, web_private_key FROM accounts WHERE id = ?`
	sqlSelectUserByUsername = `SELECT id, username, created_at, COALESCE(display_name, ''), COALESCE(summary, ''), COALESCE(avatar_url, ''), web_public_key, web_private_key FROM accounts WHERE username = ?`
	sqlSelectAllUsers       = `SELECT id, username, created_at, COALESCE(display_name, ''), COALESCE(summary, ''), COALESCE(avatar_url, ''), web_public_key, web_private_key FROM accounts ORDER BY username ASC`

	//Notes
	sqlCreateNotesTable = `CREATE TABLE IF NOT EXISTS notes(
                        id uuid NOT NULL PRIMARY KEY,
                        user_id uuid NOT NULL,
                        message varchar(1000),
                        created_at timestamp default current_timestamp,
                        edited_at timestamp,
                        visibility varchar(20) default 'public',
                        in_reply_to_uri text,
                        object_uri text,
                        federated int default 1,
                        sensitive int default 0,
                        content_warning text
                        )`
	sqlInsertNote     = `INSERT INTO notes(id, user_id, message, visibility, sensitive, content_warning, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateNote     = `UPDATE notes SET message = ?, edited_at = ? WHERE id = ?`
	sqlDeleteNote     = `DELETE FROM notes WHERE id = ?`
	sqlSelectNoteCols = `SELECT notes.id, accounts.username, notes.message, notes.created_at, notes.edited_at,
                               COALESCE(notes.visibility, 'public'), COALESCE(notes.in_reply_to_uri, ''), COALESCE(notes.object_uri, ''),
                               notes.federated, notes.sensitive, COALESCE(notes.content_warning, '')
                        FROM notes INNER JOIN accounts ON accounts.id = notes.user_id`
	sqlSelectNoteById        = sqlSelectNoteCols + ` WHERE notes.id = ?`
	sqlSelectNotesByUserId   = sqlSelectNoteCols + ` WHERE notes.user_id = ? ORDER BY notes.created_at DESC`
	sqlSelectNotesByUsername = sqlSelectNoteCols + ` WHERE accounts.username = ? ORDER BY notes.created_at DESC`
	sqlSelectAllNotes        = sqlSelectNoteCols + ` ORDER BY notes.created_at DESC`
	sqlSelectPublicNotes     = sqlSelectNoteCols + ` WHERE accounts.username = ? AND notes.visibility = 'public' ORDER BY notes.created_at DESC LIMIT ? OFFSET ?`
)

// SetDatabasePath overrides the sqlite file location. Must be called
// before the first GetDB.
func SetDatabasePath(dir string) {
	dbPath = filepath.Join(dir, "database.db")
}

func GetDB() *DB {
	dbOnce.Do(func() {
		db, err := sql.Open("sqlite", dbPath)
		if err != nil {
			panic(err)
		}

		// Configure connection pool for concurrent access
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)

		// Try to enable WAL2 mode, fall back to WAL if not supported
		var journalMode string
		err = db.QueryRow("PRAGMA journal_mode=WAL2").Scan(&journalMode)
		if err != nil || journalMode == "delete" {
			err = db.QueryRow("PRAGMA journal_mode=WAL").Scan(&journalMode)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to enable WAL mode")
			} else {
				log.Info().Str("mode", journalMode).Msg("Database journal mode (WAL2 not supported)")
			}
		} else {
			log.Info().Str("mode", journalMode).Msg("Database journal mode")
		}

		// Connection defaults for the concurrent federation workload
		db.Exec("PRAGMA synchronous = NORMAL")
		db.Exec("PRAGMA cache_size = -64000")
		db.Exec("PRAGMA temp_store = MEMORY")
		db.Exec("PRAGMA busy_timeout = 5000")
		db.Exec("PRAGMA foreign_keys = ON")
		db.Exec("PRAGMA auto_vacuum = INCREMENTAL")

		log.Info().Str("path", dbPath).Msg("Database initialized with connection pooling (max 25 connections)")

		dbInstance = &DB{db: db}

		if err := dbInstance.CreateDB(); err != nil {
			panic(err)
		}
	})

	return dbInstance
}

// CreateDB creates the base tables.
func (db *DB) CreateDB() error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlCreateUserTable); err != nil {
			return err
		}
		if _, err := tx.Exec(sqlCreateNotesTable); err != nil {
			return err
		}
		return nil
	})
}

// CreateAccount creates a local account with a fresh signing keypair,
// or returns the existing one when the username is already taken.
func (db *DB) CreateAccount(username string) (error, *domain.Account) {
	err, existing := db.ReadAccByUsername(username)
	if err == nil && existing != nil {
		return nil, existing
	}

	keypair := util.GeneratePemKeypair()
	acc := &domain.Account{
		Id:            uuid.New(),
		Username:      username,
		CreatedAt:     time.Now(),
		WebPublicKey:  keypair.Public,
		WebPrivateKey: keypair.Private,
	}

	err = db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertUser, acc.Id, acc.Username, acc.DisplayName, acc.Summary, acc.AvatarURL, acc.WebPublicKey, acc.WebPrivateKey, acc.CreatedAt)
		return err
	})
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("Creating new account failed")
		return err, nil
	}
	return nil, acc
}

func (db *DB) UpdateAccountProfile(id uuid.UUID, displayName, summary, avatarURL string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateUserProfile, displayName, summary, avatarURL, id)
		return err
	})
}

func (db *DB) ReadAccById(id uuid.UUID) (error, *domain.Account) {
	return db.scanAccount(db.db.QueryRow(sqlSelectUserById, id))
}

func (db *DB) ReadAccByUsername(username string) (error, *domain.Account) {
	return db.scanAccount(db.db.QueryRow(sqlSelectUserByUsername, username))
}

func (db *DB) ReadAllAccounts() (error, *[]domain.Account) {
	rows, err := db.db.Query(sqlSelectAllUsers)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var acc domain.Account
		if err := rows.Scan(&acc.Id, &acc.Username, &acc.CreatedAt, &acc.DisplayName, &acc.Summary, &acc.AvatarURL, &acc.WebPublicKey, &acc.WebPrivateKey); err != nil {
			return err, &accounts
		}
		accounts = append(accounts, acc)
	}
	if err = rows.Err(); err != nil {
		return err, &accounts
	}
	return nil, &accounts
}

func (db *DB) scanAccount(row *sql.Row) (error, *domain.Account) {
	var acc domain.Account
	err := row.Scan(&acc.Id, &acc.Username, &acc.CreatedAt, &acc.DisplayName, &acc.Summary, &acc.AvatarURL, &acc.WebPublicKey, &acc.WebPrivateKey)
	if err != nil {
		return err, nil
	}
	return nil, &acc
}

func (db *DB) CreateNote(note domain.SaveNote) (error, uuid.UUID) {
	noteId := uuid.New()
	err := db.wrapTransaction(func(tx *sql.Tx) error {
		visibility := note.Visibility
		if visibility == "" {
			visibility = "public"
		}
		_, err := tx.Exec(sqlInsertNote, noteId, note.UserId, note.Message, visibility, note.Sensitive, note.ContentWarning, time.Now())
		return err
	})
	if err != nil {
		return err, uuid.Nil
	}
	return nil, noteId
}

func (db *DB) UpdateNote(id uuid.UUID, message string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateNote, message, time.Now(), id)
		return err
	})
}

func (db *DB) DeleteNoteById(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteNote, id)
		return err
	})
}

func (db *DB) ReadNoteId(id uuid.UUID) (error, *domain.Note) {
	row := db.db.QueryRow(sqlSelectNoteById, id)
	var note domain.Note
	err := scanNote(row.Scan, &note)
	if err != nil {
		return err, nil
	}
	return nil, &note
}

func (db *DB) ReadNotesByUserId(userId uuid.UUID) (error, *[]domain.Note) {
	return db.queryNotes(sqlSelectNotesByUserId, userId)
}

func (db *DB) ReadNotesByUsername(username string) (error, *[]domain.Note) {
	return db.queryNotes(sqlSelectNotesByUsername, username)
}

func (db *DB) ReadAllNotes() (error, *[]domain.Note) {
	return db.queryNotes(sqlSelectAllNotes)
}

// ReadPublicNotesByUsername returns one page of a user's public notes,
// newest first.
func (db *DB) ReadPublicNotesByUsername(username string, limit int, offset int) (error, *[]domain.Note) {
	return db.queryNotes(sqlSelectPublicNotes, username, limit, offset)
}

func (db *DB) queryNotes(query string, args ...interface{}) (error, *[]domain.Note) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var notes []domain.Note
	for rows.Next() {
		var note domain.Note
		if err := scanNote(rows.Scan, &note); err != nil {
			return err, &notes
		}
		notes = append(notes, note)
	}
	if err = rows.Err(); err != nil {
		return err, &notes
	}
	return nil, &notes
}

func scanNote(scan func(...interface{}) error, note *domain.Note) error {
	return scan(&note.Id, &note.CreatedBy, &note.Message, &note.CreatedAt, &note.EditedAt,
		&note.Visibility, &note.InReplyToURI, &note.ObjectURI, &note.Federated, &note.Sensitive, &note.ContentWarning)
}

// wrapTransaction runs the given function within a transaction.
func (db *DB) wrapTransaction(f func(tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	tx, err := db.db.BeginTx(ctx, nil)
	if err != nil {
		log.Error().Err(err).Msg("error starting transaction")
		return err
	}
	for {
		err = f(tx)
		if err != nil {
			serr, ok := err.(*sqlite.Error)
			if ok && serr.Code() == sqlitelib.SQLITE_BUSY {
				continue
			}
			log.Error().Err(err).Msg("error in transaction")
			tx.Rollback()
			return err
		}
		err = tx.Commit()
		if err != nil {
			log.Error().Err(err).Msg("error committing transaction")
			return err
		}
		break
	}
	return nil
}

// Remote Accounts queries
const (
	sqlInsertRemoteAccount      = `INSERT INTO remote_accounts(id, username, domain, actor_uri, display_name, summary, inbox_uri, outbox_uri, public_key_pem, avatar_url, last_fetched_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlSelectRemoteAccountByURI = `SELECT id, username, domain, actor_uri, display_name, summary, inbox_uri, outbox_uri, public_key_pem, avatar_url, last_fetched_at FROM remote_accounts WHERE actor_uri = ?`
	sqlSelectRemoteAccountById  = `SELECT id, username, domain, actor_uri, display_name, summary, inbox_uri, outbox_uri, public_key_pem, avatar_url, last_fetched_at FROM remote_accounts WHERE id = ?`
	sqlUpdateRemoteAccount      = `UPDATE remote_accounts SET display_name = ?, summary = ?, inbox_uri = ?, outbox_uri = ?, public_key_pem = ?, avatar_url = ?, last_fetched_at = ? WHERE actor_uri = ?`
	sqlDeleteRemoteAccount      = `DELETE FROM remote_accounts WHERE id = ?`
)

func (db *DB) CreateRemoteAccount(acc *domain.RemoteAccount) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertRemoteAccount,
			acc.Id.String(),
			acc.Username,
			acc.Domain,
			acc.ActorURI,
			acc.DisplayName,
			acc.Summary,
			acc.InboxURI,
			acc.OutboxURI,
			acc.PublicKeyPem,
			acc.AvatarURL,
			acc.LastFetchedAt,
		)
		return err
	})
}

func (db *DB) ReadRemoteAccountByActorURI(uri string) (error, *domain.RemoteAccount) {
	return db.scanRemoteAccount(db.db.QueryRow(sqlSelectRemoteAccountByURI, uri))
}

func (db *DB) ReadRemoteAccountById(id uuid.UUID) (error, *domain.RemoteAccount) {
	return db.scanRemoteAccount(db.db.QueryRow(sqlSelectRemoteAccountById, id.String()))
}

func (db *DB) scanRemoteAccount(row *sql.Row) (error, *domain.RemoteAccount) {
	var acc domain.RemoteAccount
	var idStr string
	err := row.Scan(
		&idStr,
		&acc.Username,
		&acc.Domain,
		&acc.ActorURI,
		&acc.DisplayName,
		&acc.Summary,
		&acc.InboxURI,
		&acc.OutboxURI,
		&acc.PublicKeyPem,
		&acc.AvatarURL,
		&acc.LastFetchedAt,
	)
	if err != nil {
		return err, nil
	}
	acc.Id, _ = uuid.Parse(idStr)
	return nil, &acc
}

func (db *DB) UpdateRemoteAccount(acc *domain.RemoteAccount) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateRemoteAccount,
			acc.DisplayName,
			acc.Summary,
			acc.InboxURI,
			acc.OutboxURI,
			acc.PublicKeyPem,
			acc.AvatarURL,
			acc.LastFetchedAt,
			acc.ActorURI,
		)
		return err
	})
}

func (db *DB) DeleteRemoteAccount(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteRemoteAccount, id.String())
		return err
	})
}

// Follow queries
//
// A follow row always reads "account_id follows target_account_id", so
// the followers of X live in rows with target_account_id = X and the
// accounts X follows live in rows with account_id = X.
const (
	sqlInsertFollow            = `INSERT INTO follows(id, account_id, target_account_id, uri, accepted, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectFollowByURI       = `SELECT id, account_id, target_account_id, uri, accepted, created_at FROM follows WHERE uri = ?`
	sqlSelectFollowByAccounts  = `SELECT id, account_id, target_account_id, uri, accepted, created_at FROM follows WHERE account_id = ? AND target_account_id = ?`
	sqlSelectFollowersByTarget = `SELECT id, account_id, target_account_id, uri, accepted, created_at FROM follows WHERE target_account_id = ? AND accepted = 1`
	sqlSelectFollowingByAcc    = `SELECT id, account_id, target_account_id, uri, accepted, created_at FROM follows WHERE account_id = ? AND accepted = 1`
	sqlAcceptFollowByURI       = `UPDATE follows SET accepted = 1 WHERE uri = ?`
	sqlDeleteFollowByURI       = `DELETE FROM follows WHERE uri = ?`
	sqlDeleteFollowsByRemote   = `DELETE FROM follows WHERE account_id = ? OR target_account_id = ?`

	sqlSelectFollowingActorURIs = `SELECT remote_accounts.actor_uri FROM follows
                        INNER JOIN remote_accounts ON remote_accounts.id = follows.target_account_id
                        WHERE follows.account_id = ? AND follows.accepted = 1
                        ORDER BY remote_accounts.actor_uri ASC`
	sqlSelectFollowerActorURIs = `SELECT remote_accounts.actor_uri FROM follows
                        INNER JOIN remote_accounts ON remote_accounts.id = follows.account_id
                        WHERE follows.target_account_id = ? AND follows.accepted = 1
                        ORDER BY remote_accounts.actor_uri ASC`
)

func (db *DB) CreateFollow(follow *domain.Follow) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertFollow,
			follow.Id.String(),
			follow.AccountId.String(),
			follow.TargetAccountId.String(),
			follow.URI,
			follow.Accepted,
			follow.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadFollowByURI(uri string) (error, *domain.Follow) {
	return db.scanFollow(db.db.QueryRow(sqlSelectFollowByURI, uri))
}

func (db *DB) ReadFollowByAccountIds(accountId uuid.UUID, targetAccountId uuid.UUID) (error, *domain.Follow) {
	return db.scanFollow(db.db.QueryRow(sqlSelectFollowByAccounts, accountId.String(), targetAccountId.String()))
}

func (db *DB) scanFollow(row *sql.Row) (error, *domain.Follow) {
	var follow domain.Follow
	var idStr, accountIdStr, targetIdStr string
	err := row.Scan(
		&idStr,
		&accountIdStr,
		&targetIdStr,
		&follow.URI,
		&follow.Accepted,
		&follow.CreatedAt,
	)
	if err != nil {
		return err, nil
	}
	follow.Id, _ = uuid.Parse(idStr)
	follow.AccountId, _ = uuid.Parse(accountIdStr)
	follow.TargetAccountId, _ = uuid.Parse(targetIdStr)
	return nil, &follow
}

func (db *DB) AcceptFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlAcceptFollowByURI, uri)
		return err
	})
}

func (db *DB) DeleteFollowByURI(uri string) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowByURI, uri)
		return err
	})
}

func (db *DB) DeleteFollowsByRemoteAccountId(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteFollowsByRemote, id.String(), id.String())
		return err
	})
}

// ReadFollowersByAccountId returns accepted follows targeting the given
// account, i.e. its followers.
func (db *DB) ReadFollowersByAccountId(accountId uuid.UUID) (error, *[]domain.Follow) {
	return db.queryFollows(sqlSelectFollowersByTarget, accountId.String())
}

// ReadFollowingByAccountId returns accepted follows created by the given
// account, i.e. who it follows.
func (db *DB) ReadFollowingByAccountId(accountId uuid.UUID) (error, *[]domain.Follow) {
	return db.queryFollows(sqlSelectFollowingByAcc, accountId.String())
}

func (db *DB) queryFollows(query string, args ...interface{}) (error, *[]domain.Follow) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var follows []domain.Follow
	for rows.Next() {
		var follow domain.Follow
		var idStr, accountIdStr, targetIdStr string
		if err := rows.Scan(&idStr, &accountIdStr, &targetIdStr, &follow.URI, &follow.Accepted, &follow.CreatedAt); err != nil {
			return err, &follows
		}
		follow.Id, _ = uuid.Parse(idStr)
		follow.AccountId, _ = uuid.Parse(accountIdStr)
		follow.TargetAccountId, _ = uuid.Parse(targetIdStr)
		follows = append(follows, follow)
	}
	if err = rows.Err(); err != nil {
		return err, &follows
	}
	return nil, &follows
}

// ReadFollowingActorURIs returns the actor URIs of every remote account
// the local account follows, sorted for deterministic serving.
func (db *DB) ReadFollowingActorURIs(accountId uuid.UUID) (error, []string) {
	return db.queryActorURIs(sqlSelectFollowingActorURIs, accountId.String())
}

// ReadFollowerActorURIs returns the actor URIs of every remote account
// following the local account.
func (db *DB) ReadFollowerActorURIs(accountId uuid.UUID) (error, []string) {
	return db.queryActorURIs(sqlSelectFollowerActorURIs, accountId.String())
}

func (db *DB) queryActorURIs(query string, args ...interface{}) (error, []string) {
	rows, err := db.db.Query(query, args...)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var uris []string
	for rows.Next() {
		var uri string
		if err := rows.Scan(&uri); err != nil {
			return err, uris
		}
		uris = append(uris, uri)
	}
	if err = rows.Err(); err != nil {
		return err, uris
	}
	return nil, uris
}

// Activity queries
const (
	sqlInsertActivity            = `INSERT INTO activities(id, activity_uri, activity_type, actor_uri, object_uri, raw_json, processed, local, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	sqlUpdateActivity            = `UPDATE activities SET processed = ?, object_uri = ?, raw_json = ? WHERE id = ?`
	sqlDeleteActivity            = `DELETE FROM activities WHERE id = ?`
	sqlSelectActivityByURI       = `SELECT id, activity_uri, activity_type, actor_uri, object_uri, raw_json, processed, local, created_at FROM activities WHERE activity_uri = ?`
	sqlSelectActivityByObjectURI = `SELECT id, activity_uri, activity_type, actor_uri, object_uri, raw_json, processed, local, created_at FROM activities WHERE object_uri = ?`
	sqlSelectFederatedActivities = `SELECT id, activity_uri, activity_type, actor_uri, object_uri, raw_json, processed, local, created_at FROM activities WHERE activity_type = 'Create' AND local = 0 ORDER BY created_at DESC LIMIT ?`
)

func (db *DB) CreateActivity(activity *domain.Activity) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertActivity,
			activity.Id.String(),
			activity.ActivityURI,
			activity.ActivityType,
			activity.ActorURI,
			activity.ObjectURI,
			activity.RawJSON,
			activity.Processed,
			activity.Local,
			activity.CreatedAt,
		)
		return err
	})
}

func (db *DB) UpdateActivity(activity *domain.Activity) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateActivity,
			activity.Processed,
			activity.ObjectURI,
			activity.RawJSON,
			activity.Id.String(),
		)
		return err
	})
}

func (db *DB) DeleteActivity(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteActivity, id.String())
		return err
	})
}

func (db *DB) ReadActivityByURI(uri string) (error, *domain.Activity) {
	return db.scanActivity(db.db.QueryRow(sqlSelectActivityByURI, uri))
}

func (db *DB) ReadActivityByObjectURI(uri string) (error, *domain.Activity) {
	return db.scanActivity(db.db.QueryRow(sqlSelectActivityByObjectURI, uri))
}

func (db *DB) scanActivity(row *sql.Row) (error, *domain.Activity) {
	var activity domain.Activity
	var idStr string
	err := row.Scan(
		&idStr,
		&activity.ActivityURI,
		&activity.ActivityType,
		&activity.ActorURI,
		&activity.ObjectURI,
		&activity.RawJSON,
		&activity.Processed,
		&activity.Local,
		&activity.CreatedAt,
	)
	if err != nil {
		return err, nil
	}
	activity.Id, _ = uuid.Parse(idStr)
	return nil, &activity
}

// ReadFederatedActivities returns recent Create activities from remote actors.
func (db *DB) ReadFederatedActivities(limit int) (error, *[]domain.Activity) {
	rows, err := db.db.Query(sqlSelectFederatedActivities, limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var activities []domain.Activity
	for rows.Next() {
		var activity domain.Activity
		var idStr string
		if err := rows.Scan(&idStr, &activity.ActivityURI, &activity.ActivityType, &activity.ActorURI, &activity.ObjectURI, &activity.RawJSON, &activity.Processed, &activity.Local, &activity.CreatedAt); err != nil {
			return err, &activities
		}
		activity.Id, _ = uuid.Parse(idStr)
		activities = append(activities, activity)
	}
	if err = rows.Err(); err != nil {
		return err, &activities
	}
	return nil, &activities
}

// Delivery Queue queries
const (
	sqlInsertDeliveryQueue     = `INSERT INTO delivery_queue(id, inbox_uri, activity_json, attempts, next_retry_at, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	sqlSelectPendingDeliveries = `SELECT id, inbox_uri, activity_json, attempts, next_retry_at, created_at FROM delivery_queue WHERE next_retry_at <= ? ORDER BY created_at ASC LIMIT ?`
	sqlUpdateDeliveryAttempt   = `UPDATE delivery_queue SET attempts = ?, next_retry_at = ? WHERE id = ?`
	sqlDeleteDelivery          = `DELETE FROM delivery_queue WHERE id = ?`
)

func (db *DB) EnqueueDelivery(item *domain.DeliveryQueueItem) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlInsertDeliveryQueue,
			item.Id.String(),
			item.InboxURI,
			item.ActivityJSON,
			item.Attempts,
			item.NextRetryAt,
			item.CreatedAt,
		)
		return err
	})
}

func (db *DB) ReadPendingDeliveries(limit int) (error, *[]domain.DeliveryQueueItem) {
	rows, err := db.db.Query(sqlSelectPendingDeliveries, time.Now(), limit)
	if err != nil {
		return err, nil
	}
	defer rows.Close()

	var items []domain.DeliveryQueueItem
	for rows.Next() {
		var item domain.DeliveryQueueItem
		var idStr string
		if err := rows.Scan(&idStr, &item.InboxURI, &item.ActivityJSON, &item.Attempts, &item.NextRetryAt, &item.CreatedAt); err != nil {
			return err, &items
		}
		item.Id, _ = uuid.Parse(idStr)
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		return err, &items
	}
	return nil, &items
}

func (db *DB) UpdateDeliveryAttempt(id uuid.UUID, attempts int, nextRetry time.Time) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpdateDeliveryAttempt, attempts, nextRetry, id.String())
		return err
	})
}

func (db *DB) DeleteDelivery(id uuid.UUID) error {
	return db.wrapTransaction(func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlDeleteDelivery, id.String())
		return err
	})
}
