package model

import "time"

// PostStatus is the publication state of a post.
type PostStatus string

const (
	PostDraft     PostStatus = "DRAFT"
	PostPublished PostStatus = "PUBLISHED"
	PostArchived  PostStatus = "ARCHIVED"
)

// Post mirrors the 'posts' table.  AuthorID identifies the owning user and
// is what the ownership guard compares against the authenticated principal.
type Post struct {
	ID        uint64
	AuthorID  uint64
	Title     string
	Slug      string
	Content   string
	Status    PostStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PostOwner is the minimal projection the ownership guard loads: just enough
// to decide existence and ownership without pulling the post body.
type PostOwner struct {
	ID       uint64
	AuthorID uint64
}
