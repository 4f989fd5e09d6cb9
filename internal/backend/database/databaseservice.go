package database

import (
	"context"
	"database/sql"
)

type DatabaseService interface {
	CreateDatabase() (*sql.DB, error)
	DoesDatabaseExist() bool
	Close() error

	// ResetDatabase drops the memes table and recreates it empty.
	ResetDatabase() error
	InsertMeme(ctx context.Context, meme Meme) error
	// GetTopMemes returns up to limit memes with at least minLikes likes, most liked first.
	GetTopMemes(ctx context.Context, limit, minLikes int) ([]Meme, error)
	// GetBottomMemes returns up to limit memes with at least minLikes likes, least liked first.
	GetBottomMemes(ctx context.Context, limit, minLikes int) ([]Meme, error)
	GetAllMemes(ctx context.Context) ([]Meme, error)
	CountMemes(ctx context.Context) (int, error)
}
