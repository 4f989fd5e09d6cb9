package database

type Meme struct {
	Date       string `db:"date" json:"date"`            // display date, already in the report timezone
	LocalFile  string `db:"local_file" json:"localFile"` // file name inside the image directory
	LikesCount int    `db:"likes_count" json:"likesCount"`
}
