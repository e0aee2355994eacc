package contacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/arturoeanton/witness-runtime/model"
	"github.com/lib/pq"
)

// ErrNotFound is returned when a contact does not exist for the owner
var ErrNotFound = errors.New("contact not found")

// Store persists emergency contacts per owner
type Store interface {
	// Create inserts contact unless its owner already has limit contacts, in
	// which case it returns ErrLimitReached. limit <= 0 disables the cap.
	Create(ctx context.Context, contact model.EmergencyContact, limit int) error
	List(ctx context.Context, ownerID string) ([]model.EmergencyContact, error)
	Delete(ctx context.Context, ownerID, id string) error
}

// FieldCipher seals personal fields before they are stored. The context
// binds a value to its row and column.
type FieldCipher interface {
	EncryptField(plaintext, context string) (string, error)
	DecryptField(ciphertext, context string) (string, error)
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS emergency_contacts (
		id           VARCHAR(36) PRIMARY KEY,
		owner_id     VARCHAR(128) NOT NULL,
		name         VARCHAR(100) NOT NULL,
		phone        TEXT NOT NULL,
		email        TEXT NOT NULL DEFAULT '',
		relationship VARCHAR(100) NOT NULL DEFAULT '',
		created_at   TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_emergency_contacts_owner ON emergency_contacts (owner_id)`,
}

// SQLStore stores contacts through database/sql. Queries use $n placeholders,
// which both the sqlite3 and postgres drivers accept.
//
// The per-owner cap is checked and applied in one transaction. On postgres
// the transaction holds an advisory lock keyed by owner; other drivers are
// serialized in process.
type SQLStore struct {
	db       *sql.DB
	cipher   FieldCipher
	postgres bool

	createMu sync.Mutex
}

// NewSQLStore creates a store. A nil cipher stores phone and email in clear.
func NewSQLStore(db *sql.DB, cipher FieldCipher) *SQLStore {
	_, postgres := db.Driver().(*pq.Driver)
	return &SQLStore{db: db, cipher: cipher, postgres: postgres}
}

// Migrate creates the table and index when missing
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range migrations {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate contacts: %w", err)
		}
	}
	return nil
}

func fieldContext(id, field string) string {
	return "contact:" + id + ":" + field
}

func (s *SQLStore) seal(id, field, value string) (string, error) {
	if s.cipher == nil {
		return value, nil
	}
	return s.cipher.EncryptField(value, fieldContext(id, field))
}

func (s *SQLStore) open(id, field, value string) (string, error) {
	if s.cipher == nil {
		return value, nil
	}
	return s.cipher.DecryptField(value, fieldContext(id, field))
}

// Create inserts a contact, holding the owner to limit contacts
func (s *SQLStore) Create(ctx context.Context, c model.EmergencyContact, limit int) error {
	phone, err := s.seal(c.ID, "phone", c.Phone)
	if err != nil {
		return fmt.Errorf("seal phone: %w", err)
	}
	email, err := s.seal(c.ID, "email", c.Email)
	if err != nil {
		return fmt.Errorf("seal email: %w", err)
	}

	if !s.postgres {
		s.createMu.Lock()
		defer s.createMu.Unlock()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer tx.Rollback()

	if s.postgres {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, c.OwnerID); err != nil {
			return fmt.Errorf("lock owner: %w", err)
		}
	}

	if limit > 0 {
		var n int
		err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM emergency_contacts WHERE owner_id = $1`, c.OwnerID).Scan(&n)
		if err != nil {
			return fmt.Errorf("count contacts: %w", err)
		}
		if n >= limit {
			return ErrLimitReached
		}
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO emergency_contacts (id, owner_id, name, phone, email, relationship, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		c.ID, c.OwnerID, c.Name, phone, email, c.Relationship, c.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return tx.Commit()
}

// List returns the owner's contacts, oldest first
func (s *SQLStore) List(ctx context.Context, ownerID string) ([]model.EmergencyContact, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx,
		`SELECT id, owner_id, name, phone, email, relationship, created_at
		 FROM emergency_contacts WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list contacts: %w", err)
	}
	defer rows.Close()

	contacts := make([]model.EmergencyContact, 0)
	for rows.Next() {
		var c model.EmergencyContact
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Phone, &c.Email, &c.Relationship, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		if c.Phone, err = s.open(c.ID, "phone", c.Phone); err != nil {
			return nil, fmt.Errorf("open phone of %s: %w", c.ID, err)
		}
		if c.Email, err = s.open(c.ID, "email", c.Email); err != nil {
			return nil, fmt.Errorf("open email of %s: %w", c.ID, err)
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}

// Delete removes one of the owner's contacts
func (s *SQLStore) Delete(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM emergency_contacts WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("delete contact: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
