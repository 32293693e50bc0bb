package server

import (
	"time"

	"plume/internal/models"
)

// View models are explicit per-page structs populated from the named
// aggregators. Each page gets its own type rather than a generic bag of
// template flags.

// PageMeta describes one page of a paginated listing.
type PageMeta struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// AuthorView is the public projection of a user.
type AuthorView struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
}

// GroupView is the public projection of a group.
type GroupView struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

// PostView is a post as rendered in listings and detail pages.
type PostView struct {
	ID            uint       `json:"id"`
	Text          string     `json:"text"`
	PubDate       time.Time  `json:"pub_date"`
	Author        AuthorView `json:"author"`
	Group         *GroupView `json:"group,omitempty"`
	ImageURL      string     `json:"image_url,omitempty"`
	CommentsCount int64      `json:"comments_count"`
}

// CommentView is a comment as rendered on the post detail page.
type CommentView struct {
	ID      uint       `json:"id"`
	Text    string     `json:"text"`
	Created time.Time  `json:"created"`
	Author  AuthorView `json:"author"`
}

// IndexPage is the view model for GET /api/posts.
type IndexPage struct {
	Posts []PostView `json:"posts"`
	Page  PageMeta   `json:"page"`
}

// FeedPage is the view model for GET /api/feed.
type FeedPage struct {
	Posts []PostView `json:"posts"`
	Page  PageMeta   `json:"page"`
}

// ProfilePage is the view model for GET /api/users/:username.
type ProfilePage struct {
	Author    AuthorView `json:"author"`
	CanEdit   bool       `json:"can_edit"`
	Following bool       `json:"following"`
	Followers int64      `json:"followers"`
	Posts     []PostView `json:"posts"`
	Page      PageMeta   `json:"page"`
}

// GroupPage is the view model for GET /api/groups/:slug.
type GroupPage struct {
	Group       GroupView  `json:"group"`
	Description string     `json:"description"`
	Posts       []PostView `json:"posts"`
	Page        PageMeta   `json:"page"`
}

// PostPage is the view model for GET /api/users/:username/posts/:id.
type PostPage struct {
	Post            PostView      `json:"post"`
	Author          AuthorView    `json:"author"`
	AuthorPostCount int64         `json:"author_post_count"`
	CanEdit         bool          `json:"can_edit"`
	Comments        []CommentView `json:"comments"`
	CommentsCount   int64         `json:"comments_count"`
}

func newAuthorView(u models.User) AuthorView {
	return AuthorView{ID: u.ID, Username: u.Username}
}

func newCommentView(c *models.Comment) CommentView {
	return CommentView{
		ID:      c.ID,
		Text:    c.Text,
		Created: c.CreatedAt,
		Author:  newAuthorView(c.User),
	}
}

// buildPostViews assembles listing rows from a page of posts and the
// batch comment-count map. Posts absent from the map have no comments,
// so the lookup's zero value is exactly the right default.
func (s *Server) buildPostViews(posts []*models.Post, counts map[uint]int64) []PostView {
	views := make([]PostView, 0, len(posts))
	for _, p := range posts {
		v := PostView{
			ID:            p.ID,
			Text:          p.Text,
			PubDate:       p.CreatedAt,
			Author:        newAuthorView(p.User),
			ImageURL:      s.imageSvc.URL(p.ImagePath),
			CommentsCount: counts[p.ID],
		}
		if p.Group != nil {
			v.Group = &GroupView{Slug: p.Group.Slug, Title: p.Group.Title}
		}
		views = append(views, v)
	}
	return views
}

func postIDs(posts []*models.Post) []uint {
	ids := make([]uint, 0, len(posts))
	for _, p := range posts {
		ids = append(ids, p.ID)
	}
	return ids
}
