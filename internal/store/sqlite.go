package store

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle so the vector record store can share it.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS documents (
        id TEXT PRIMARY KEY, -- UUID
        filename TEXT NOT NULL,
        file_path TEXT NOT NULL,
        file_size INTEGER,
        total_pages INTEGER DEFAULT 0,
        uploaded_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS pages (
        id TEXT PRIMARY KEY, -- UUID
        document_id TEXT NOT NULL,
        page_number INTEGER NOT NULL,
        text_content TEXT NOT NULL,
        FOREIGN KEY (document_id) REFERENCES documents (id),
        UNIQUE (document_id, page_number)
    );

    CREATE TABLE IF NOT EXISTS images (
        id TEXT PRIMARY KEY, -- UUID
        document_id TEXT NOT NULL,
        page_number INTEGER NOT NULL,
        image_path TEXT NOT NULL,
        image_index INTEGER NOT NULL,
        FOREIGN KEY (document_id) REFERENCES documents (id)
    );

    CREATE TABLE IF NOT EXISTS sessions (
        id TEXT PRIMARY KEY, -- UUID
        title TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        session_id TEXT NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('user', 'assistant')),
        content TEXT NOT NULL,
        image_paths TEXT,    -- comma-joined relative paths
        page_refs TEXT,      -- comma-joined "documentID:pageNumber" pairs
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        FOREIGN KEY (session_id) REFERENCES sessions (id)
    );

    CREATE INDEX IF NOT EXISTS idx_pages_document ON pages(document_id);
    CREATE INDEX IF NOT EXISTS idx_images_document ON images(document_id);
    CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id);
    `
	_, err := s.db.Exec(schema)
	return err
}

// Document methods
func (s *SQLiteStore) CreateDocument(doc *Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	doc.UploadedAt = time.Now()

	stmt, err := s.db.Prepare("INSERT INTO documents (id, filename, file_path, file_size, total_pages, uploaded_at) VALUES (?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare document insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(doc.ID, doc.Filename, doc.FilePath, doc.FileSize, doc.TotalPages, doc.UploadedAt)
	if err != nil {
		return fmt.Errorf("failed to execute document insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDocumentByID(id string) (*Document, error) {
	var doc Document
	err := s.db.QueryRow("SELECT id, filename, file_path, file_size, total_pages, uploaded_at FROM documents WHERE id = ?", id).
		Scan(&doc.ID, &doc.Filename, &doc.FilePath, &doc.FileSize, &doc.TotalPages, &doc.UploadedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return &doc, nil
}

func (s *SQLiteStore) ListDocuments() ([]Document, error) {
	query := `
        SELECT id, filename, file_path, file_size, total_pages, uploaded_at,
               (SELECT COUNT(*) FROM images WHERE images.document_id = documents.id) AS image_count
        FROM documents
        ORDER BY uploaded_at DESC
    `
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Filename, &doc.FilePath, &doc.FileSize, &doc.TotalPages, &doc.UploadedAt, &doc.ImageCount); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// DeleteDocument removes the document and all its pages and image references.
// Vector records live in their own table and are deleted by the caller through
// the vector store. Returns false when the document does not exist.
func (s *SQLiteStore) DeleteDocument(id string) (bool, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return false, fmt.Errorf("failed to begin delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM images WHERE document_id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete document images: %w", err)
	}
	if _, err := tx.Exec("DELETE FROM pages WHERE document_id = ?", id); err != nil {
		return false, fmt.Errorf("failed to delete document pages: %w", err)
	}
	res, err := tx.Exec("DELETE FROM documents WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to delete document: %w", err)
	}
	affected, _ := res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit delete transaction: %w", err)
	}
	return affected > 0, nil
}

// Page methods
func (s *SQLiteStore) CreatePage(page *Page) error {
	if page.ID == "" {
		page.ID = uuid.NewString()
	}
	stmt, err := s.db.Prepare("INSERT INTO pages (id, document_id, page_number, text_content) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare page insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(page.ID, page.DocumentID, page.PageNumber, page.Text)
	if err != nil {
		return fmt.Errorf("failed to execute page insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetPagesByDocument(documentID string) ([]Page, error) {
	rows, err := s.db.Query("SELECT id, document_id, page_number, text_content FROM pages WHERE document_id = ? ORDER BY page_number ASC", documentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var page Page
		if err := rows.Scan(&page.ID, &page.DocumentID, &page.PageNumber, &page.Text); err != nil {
			return nil, fmt.Errorf("failed to scan page row: %w", err)
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// Image methods
func (s *SQLiteStore) CreateImage(img *ImageRef) error {
	if img.ID == "" {
		img.ID = uuid.NewString()
	}
	stmt, err := s.db.Prepare("INSERT INTO images (id, document_id, page_number, image_path, image_index) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare image insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(img.ID, img.DocumentID, img.PageNumber, img.Path, img.Index)
	if err != nil {
		return fmt.Errorf("failed to execute image insert: %w", err)
	}
	return nil
}

// GetImagesByPages returns the image references for the given document whose
// page number is in pageNumbers. An empty page set means "all images for the
// document", not "no images": a query that matched no specific pages still
// surfaces any document-wide images.
func (s *SQLiteStore) GetImagesByPages(documentID string, pageNumbers []int) ([]ImageRef, error) {
	query := "SELECT id, document_id, page_number, image_path, image_index FROM images WHERE document_id = ?"
	args := []any{documentID}

	if len(pageNumbers) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(pageNumbers)), ",")
		query += " AND page_number IN (" + placeholders + ")"
		for _, pn := range pageNumbers {
			args = append(args, pn)
		}
	}
	query += " ORDER BY page_number ASC, image_index ASC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", err)
	}
	defer rows.Close()

	var images []ImageRef
	for rows.Next() {
		var img ImageRef
		if err := rows.Scan(&img.ID, &img.DocumentID, &img.PageNumber, &img.Path, &img.Index); err != nil {
			return nil, fmt.Errorf("failed to scan image row: %w", err)
		}
		images = append(images, img)
	}
	return images, nil
}

// Session methods
func (s *SQLiteStore) CreateSession(title *string) (*Session, error) {
	sessionID := uuid.NewString()
	stmt, err := s.db.Prepare("INSERT INTO sessions (id, title, created_at, updated_at) VALUES (?, ?, ?, ?)")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare session insert: %w", err)
	}
	defer stmt.Close()

	now := time.Now()
	_, err = stmt.Exec(sessionID, title, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to execute session insert: %w", err)
	}
	return &Session{ID: sessionID, Title: title, CreatedAt: now, UpdatedAt: now}, nil
}

func (s *SQLiteStore) GetSessionByID(id string) (*Session, error) {
	var session Session
	var title sql.NullString
	err := s.db.QueryRow("SELECT id, title, created_at, updated_at FROM sessions WHERE id = ?", id).
		Scan(&session.ID, &title, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if title.Valid {
		session.Title = &title.String
	}
	return &session, nil
}

func (s *SQLiteStore) ListSessions() ([]Session, error) {
	rows, err := s.db.Query("SELECT id, title, created_at, updated_at FROM sessions ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var session Session
		var title sql.NullString
		if err := rows.Scan(&session.ID, &title, &session.CreatedAt, &session.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		if title.Valid {
			session.Title = &title.String
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// TouchSession refreshes a session's updated_at, called after every assistant turn.
func (s *SQLiteStore) TouchSession(id string) error {
	_, err := s.db.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", time.Now(), id)
	if err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Message methods
func (s *SQLiteStore) CreateMessage(msg *Message) error {
	msg.ID = uuid.NewString() // Ensure ID is set
	msg.CreatedAt = time.Now()

	stmt, err := s.db.Prepare("INSERT INTO messages (id, session_id, role, content, image_paths, page_refs, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.Exec(msg.ID, msg.SessionID, msg.Role, msg.Content,
		joinImagePaths(msg.ImagePaths), joinPageRefs(msg.PageRefs), msg.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMessagesBySession(sessionID string) ([]Message, error) {
	query := "SELECT id, session_id, role, content, image_paths, page_refs, created_at FROM messages WHERE session_id = ? ORDER BY created_at ASC"
	rows, err := s.db.Query(query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var msg Message
		var imagePaths, pageRefs sql.NullString
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &imagePaths, &pageRefs, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		if imagePaths.Valid {
			msg.ImagePaths = splitImagePaths(imagePaths.String)
		}
		if pageRefs.Valid {
			msg.PageRefs = splitPageRefs(pageRefs.String)
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Attachments are stored the way the upstream clients expect them: image
// paths comma-joined, page references as "documentID:pageNumber" pairs.
func joinImagePaths(paths []string) *string {
	if len(paths) == 0 {
		return nil
	}
	joined := strings.Join(paths, ",")
	return &joined
}

func splitImagePaths(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}

func joinPageRefs(refs []PageRef) *string {
	if len(refs) == 0 {
		return nil
	}
	parts := make([]string, 0, len(refs))
	for _, ref := range refs {
		parts = append(parts, ref.DocumentID+":"+strconv.Itoa(ref.PageNumber))
	}
	joined := strings.Join(parts, ",")
	return &joined
}

func splitPageRefs(joined string) []PageRef {
	if joined == "" {
		return nil
	}
	var refs []PageRef
	for _, part := range strings.Split(joined, ",") {
		idx := strings.LastIndex(part, ":")
		if idx <= 0 {
			continue
		}
		pageNumber, err := strconv.Atoi(part[idx+1:])
		if err != nil {
			continue
		}
		refs = append(refs, PageRef{DocumentID: part[:idx], PageNumber: pageNumber})
	}
	return refs
}
