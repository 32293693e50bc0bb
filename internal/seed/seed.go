// Package seed provides database seeding utilities for development and
// demos.
package seed

import (
	"fmt"
	"log"
	"math/rand"
	"strings"
	"time"

	"plume/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options controls how much data the seeder generates.
type Options struct {
	NumUsers    int
	NumGroups   int
	NumPosts    int
	NumComments int
	ShouldClean bool
}

// Seeder populates the database with generated content.
type Seeder struct {
	db   *gorm.DB
	rand *rand.Rand
}

// NewSeeder creates a Seeder bound to the provided Gorm DB.
func NewSeeder(db *gorm.DB) *Seeder {
	gofakeit.Seed(time.Now().UnixNano())
	return &Seeder{
		db:   db,
		rand: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// ClearAll removes all seeded content. Deletion order follows the
// foreign keys: comments and follows first, then posts, groups, users.
func (s *Seeder) ClearAll() error {
	for _, model := range []any{
		&models.Comment{},
		&models.Follow{},
		&models.Post{},
		&models.Group{},
		&models.User{},
	} {
		if err := s.db.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
			return fmt.Errorf("clearing %T: %w", model, err)
		}
	}
	log.Println("Existing data cleared")
	return nil
}

// Run seeds users, groups, posts, comments, and a follow mesh.
func (s *Seeder) Run(opts Options) error {
	if opts.ShouldClean {
		if err := s.ClearAll(); err != nil {
			return err
		}
	}

	users, err := s.seedUsers(opts.NumUsers)
	if err != nil {
		return fmt.Errorf("seeding users: %w", err)
	}
	log.Printf("%d users created", len(users))

	groups, err := s.seedGroups(opts.NumGroups)
	if err != nil {
		return fmt.Errorf("seeding groups: %w", err)
	}
	log.Printf("%d groups created", len(groups))

	posts, err := s.seedPosts(users, groups, opts.NumPosts)
	if err != nil {
		return fmt.Errorf("seeding posts: %w", err)
	}
	log.Printf("%d posts created", len(posts))

	comments, err := s.seedComments(users, posts, opts.NumComments)
	if err != nil {
		return fmt.Errorf("seeding comments: %w", err)
	}
	log.Printf("%d comments created", comments)

	follows, err := s.seedFollows(users)
	if err != nil {
		return fmt.Errorf("seeding follows: %w", err)
	}
	log.Printf("%d follow edges created", follows)

	return nil
}

func (s *Seeder) seedUsers(n int) ([]*models.User, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	users := make([]*models.User, 0, n)
	for i := 0; i < n; i++ {
		username := fmt.Sprintf("%s%d", strings.ToLower(gofakeit.Username()), i)
		users = append(users, &models.User{
			Username: username,
			Email:    fmt.Sprintf("%s@example.com", username),
			Password: string(hashed),
		})
	}
	if err := s.db.Create(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Seeder) seedGroups(n int) ([]*models.Group, error) {
	groups := make([]*models.Group, 0, n)
	seen := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		title := gofakeit.BuzzWord() + " " + gofakeit.Noun()
		slug := strings.ReplaceAll(strings.ToLower(title), " ", "-")
		if seen[slug] {
			slug = fmt.Sprintf("%s-%d", slug, i)
			title = fmt.Sprintf("%s %d", title, i)
		}
		seen[slug] = true
		groups = append(groups, &models.Group{
			Slug:        slug,
			Title:       title,
			Description: gofakeit.Sentence(8),
		})
	}
	if err := s.db.Create(&groups).Error; err != nil {
		return nil, err
	}
	return groups, nil
}

func (s *Seeder) seedPosts(users []*models.User, groups []*models.Group, n int) ([]*models.Post, error) {
	if len(users) == 0 {
		return nil, nil
	}

	posts := make([]*models.Post, 0, n)
	for i := 0; i < n; i++ {
		author := users[s.rand.Intn(len(users))]
		post := &models.Post{
			Text:   gofakeit.Paragraph(1, 3, 8, "\n"),
			UserID: author.ID,
			// realistic created_at spread over the last 90 days
			CreatedAt: time.Now().Add(-time.Duration(s.rand.Intn(90*24)) * time.Hour),
		}
		// roughly two thirds of posts are filed under a group
		if len(groups) > 0 && s.rand.Intn(3) != 0 {
			group := groups[s.rand.Intn(len(groups))]
			post.GroupID = &group.ID
		}
		posts = append(posts, post)
	}
	if err := s.db.Create(&posts).Error; err != nil {
		return nil, err
	}
	return posts, nil
}

func (s *Seeder) seedComments(users []*models.User, posts []*models.Post, n int) (int, error) {
	if len(users) == 0 || len(posts) == 0 {
		return 0, nil
	}

	comments := make([]*models.Comment, 0, n)
	for i := 0; i < n; i++ {
		comments = append(comments, &models.Comment{
			Text:   gofakeit.Sentence(s.rand.Intn(12) + 3),
			PostID: posts[s.rand.Intn(len(posts))].ID,
			UserID: users[s.rand.Intn(len(users))].ID,
		})
	}
	if err := s.db.Create(&comments).Error; err != nil {
		return 0, err
	}
	return len(comments), nil
}

// seedFollows builds a follow mesh: each user follows a handful of
// other users. Self-follows are never created.
func (s *Seeder) seedFollows(users []*models.User) (int, error) {
	if len(users) < 2 {
		return 0, nil
	}

	created := 0
	for _, user := range users {
		targets := s.rand.Intn(5) + 1
		picked := make(map[uint]bool, targets)
		for len(picked) < targets {
			author := users[s.rand.Intn(len(users))]
			if author.ID == user.ID || picked[author.ID] {
				if len(picked)+1 >= len(users) {
					break
				}
				continue
			}
			picked[author.ID] = true
			follow := &models.Follow{UserID: user.ID, AuthorID: author.ID}
			if err := s.db.Create(follow).Error; err != nil {
				return created, err
			}
			created++
		}
	}
	return created, nil
}
