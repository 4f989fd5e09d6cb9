package database

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

const createMemesTable = `CREATE TABLE IF NOT EXISTS memes (
		date TEXT NOT NULL,
		local_file TEXT NOT NULL,
		likes_count INTEGER
	)`

type SQLiteDatabase struct {
	db               *sql.DB
	connectionString string
}

func NewSQLiteDatabase(connectionString string) (DatabaseService, error) {
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// One writer at a time; this also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	return &SQLiteDatabase{
		db:               db,
		connectionString: connectionString,
	}, nil
}

func (s *SQLiteDatabase) CreateDatabase() (*sql.DB, error) {
	if _, err := s.db.Exec(createMemesTable); err != nil {
		return nil, err
	}
	return s.db, nil
}

func (s *SQLiteDatabase) ResetDatabase() error {
	if _, err := s.db.Exec("DROP TABLE IF EXISTS memes"); err != nil {
		return fmt.Errorf("failed to drop memes table: %w", err)
	}
	if _, err := s.db.Exec(createMemesTable); err != nil {
		return fmt.Errorf("failed to create memes table: %w", err)
	}
	return nil
}

func (s *SQLiteDatabase) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteDatabase) DoesDatabaseExist() bool {
	// In SQLite, the database file is created when you connect to it.
	// So we can assume it exists if we can successfully ping the database.
	err := s.db.Ping()
	return err == nil
}

func (s *SQLiteDatabase) InsertMeme(ctx context.Context, meme Meme) error {
	if meme.LikesCount < 0 {
		return fmt.Errorf("likes count must not be negative, got %d", meme.LikesCount)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO memes (date, local_file, likes_count) VALUES (?, ?, ?)",
		meme.Date, meme.LocalFile, meme.LikesCount)
	return err
}

func (s *SQLiteDatabase) GetTopMemes(ctx context.Context, limit, minLikes int) ([]Meme, error) {
	return s.queryMemes(ctx,
		"SELECT date, local_file, likes_count FROM memes WHERE likes_count >= ? ORDER BY likes_count DESC, rowid ASC LIMIT ?",
		minLikes, limit)
}

func (s *SQLiteDatabase) GetBottomMemes(ctx context.Context, limit, minLikes int) ([]Meme, error) {
	return s.queryMemes(ctx,
		"SELECT date, local_file, likes_count FROM memes WHERE likes_count >= ? ORDER BY likes_count ASC, rowid ASC LIMIT ?",
		minLikes, limit)
}

func (s *SQLiteDatabase) GetAllMemes(ctx context.Context) ([]Meme, error) {
	return s.queryMemes(ctx, "SELECT date, local_file, likes_count FROM memes ORDER BY rowid ASC")
}

func (s *SQLiteDatabase) CountMemes(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memes").Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *SQLiteDatabase) queryMemes(ctx context.Context, query string, args ...any) ([]Meme, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close() // Explicitly ignore error as we're already returning an error from the function
	}()

	var memes []Meme
	for rows.Next() {
		var (
			meme  Meme
			likes sql.NullInt64
		)
		if err := rows.Scan(&meme.Date, &meme.LocalFile, &likes); err != nil {
			return nil, err
		}
		meme.LikesCount = int(likes.Int64)
		memes = append(memes, meme)
	}
	return memes, rows.Err()
}
