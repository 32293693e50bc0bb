package server

import (
	"bytes"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"plume/internal/config"
	"plume/internal/database"
	"plume/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupTestServer wires a Server against an in-memory SQLite database
// with Redis absent, so the page cache is disabled and the rate limiter
// fails open.
func setupTestServer(t *testing.T) (*Server, *fiber.App, *gorm.DB) {
	t.Helper()
	t.Setenv("APP_ENV", "test")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)
	require.NoError(t, database.Migrate(db))

	cfg := &config.Config{
		JWTSecret:            "test-secret-key",
		Port:                 "0",
		Env:                  "test",
		PageSize:             10,
		IndexCacheTTLSeconds: 20,
		ImageUploadDir:       t.TempDir(),
		ImageMaxUploadSizeMB: 10,
	}

	s := NewServerWithDeps(cfg, db, nil)
	app := fiber.New()
	s.SetupRoutes(app)
	return s, app, db
}

func createUser(t *testing.T, db *gorm.DB, username string) *models.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.DefaultCost)
	require.NoError(t, err)
	user := &models.User{
		Username: username,
		Email:    username + "@example.com",
		Password: string(hashed),
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createPost(t *testing.T, db *gorm.DB, userID uint, text string, createdAt time.Time) *models.Post {
	t.Helper()
	post := &models.Post{Text: text, UserID: userID, CreatedAt: createdAt}
	require.NoError(t, db.Create(post).Error)
	return post
}

func tokenFor(t *testing.T, s *Server, user *models.User) string {
	t.Helper()
	token, err := s.generateToken(user.ID, user.Username)
	require.NoError(t, err)
	return token
}

func formRequest(method, path, token string, values url.Values) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func multipartRequest(t *testing.T, path, token string, fields map[string]string, fileField string, fileContent []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	if fileField != "" {
		part, err := w.CreateFormFile(fileField, "upload.png")
		require.NoError(t, err)
		_, err = part.Write(fileContent)
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 30), G: uint8(y * 30), A: 255})
		}
	}
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func decodeJSON[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var out T
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(body, &out), "body: %s", body)
	return out
}

func TestIndex(t *testing.T) {
	_, app, db := setupTestServer(t)
	user := createUser(t, db, "alice")
	createPost(t, db, user.ID, "hello world", time.Now())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/posts", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	page := decodeJSON[IndexPage](t, resp)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "hello world", page.Posts[0].Text)
	assert.Equal(t, "alice", page.Posts[0].Author.Username)
	assert.EqualValues(t, 0, page.Posts[0].CommentsCount)
	assert.Equal(t, 1, page.Page.Page)
	assert.EqualValues(t, 1, page.Page.TotalItems)
}

func TestCreatePost_AnonymousRedirectsToLogin(t *testing.T) {
	_, app, db := setupTestServer(t)

	resp, err := app.Test(formRequest(http.MethodPost, "/api/posts", "", url.Values{"text": {"hi"}}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Equal(t, "/auth/login?next="+url.QueryEscape("/api/posts"), resp.Header.Get("Location"))

	var n int64
	require.NoError(t, db.Model(&models.Post{}).Count(&n).Error)
	assert.Zero(t, n, "anonymous request must not create anything")
}

func TestCreatePost_AuthorForcedFromToken(t *testing.T) {
	s, app, db := setupTestServer(t)
	alice := createUser(t, db, "alice")
	createUser(t, db, "bob")
	token := tokenFor(t, s, alice)

	// a user_id field in the body is ignored; the author is the caller
	values := url.Values{"text": {"my post"}, "user_id": {"999"}}

	resp, err := app.Test(formRequest(http.MethodPost, "/api/posts", token, values))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	view := decodeJSON[PostView](t, resp)
	assert.Equal(t, "my post", view.Text)
	assert.Equal(t, alice.ID, view.Author.ID)

	var post models.Post
	require.NoError(t, db.First(&post).Error)
	assert.Equal(t, alice.ID, post.UserID)
}

func TestCreatePost_BlankTextRejected(t *testing.T) {
	s, app, db := setupTestServer(t)
	alice := createUser(t, db, "alice")
	token := tokenFor(t, s, alice)

	resp, err := app.Test(formRequest(http.MethodPost, "/api/posts", token, url.Values{"text": {"   "}}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	errResp := decodeJSON[models.ErrorResponse](t, resp)
	assert.Equal(t, "text", errResp.Field)

	var n int64
	require.NoError(t, db.Model(&models.Post{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestCreatePost_WithGroupAndImage(t *testing.T) {
	s, app, db := setupTestServer(t)
	alice := createUser(t, db, "alice")
	token := tokenFor(t, s, alice)
	require.NoError(t, db.Create(&models.Group{Slug: "cats", Title: "Cats"}).Error)

	req := multipartRequest(t, "/api/posts", token,
		map[string]string{"text": "with image", "group": "cats"},
		"image", pngBytes(t))
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	view := decodeJSON[PostView](t, resp)
	require.NotNil(t, view.Group)
	assert.Equal(t, "cats", view.Group.Slug)
	assert.True(t, strings.HasPrefix(view.ImageURL, "/media/"), "image URL: %s", view.ImageURL)
}

func TestCreatePost_NonImageUploadRejected(t *testing.T) {
	s, app, db := setupTestServer(t)
	alice := createUser(t, db, "alice")
	token := tokenFor(t, s, alice)

	req := multipartRequest(t, "/api/posts", token,
		map[string]string{"text": "bad upload"},
		"image", []byte("this is not an image at all, just plain text"))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	errResp := decodeJSON[models.ErrorResponse](t, resp)
	assert.Equal(t, "image", errResp.Field)

	var n int64
	require.NoError(t, db.Model(&models.Post{}).Count(&n).Error)
	assert.Zero(t, n, "nothing may persist when the upload is rejected")
}

func TestCreatePost_UnknownGroupRejected(t *testing.T) {
	s, app, db := setupTestServer(t)
	alice := createUser(t, db, "alice")
	token := tokenFor(t, s, alice)

	resp, err := app.Test(formRequest(http.MethodPost, "/api/posts", token,
		url.Values{"text": {"hi"}, "group": {"nope"}}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	errResp := decodeJSON[models.ErrorResponse](t, resp)
	assert.Equal(t, "group", errResp.Field)
}

func TestEditPost_NonAuthorRedirectsWithoutMutation(t *testing.T) {
	s, app, db := setupTestServer(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	post := createPost(t, db, alice.ID, "original", time.Now())
	bobToken := tokenFor(t, s, bob)

	path := postDetailPath("alice", post.ID)
	resp, err := app.Test(formRequest(http.MethodPost, path, bobToken, url.Values{"text": {"hijacked"}}))
	require.NoError(t, err)

	// silent redirect to the read view, no error body
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, path, resp.Header.Get("Location"))

	var stored models.Post
	require.NoError(t, db.First(&stored, post.ID).Error)
	assert.Equal(t, "original", stored.Text)
}

func TestEditPost_AuthorEdits(t *testing.T) {
	s, app, db := setupTestServer(t)
	alice := createUser(t, db, "alice")
	pubDate := time.Date(2025, 4, 1, 8, 0, 0, 0, time.UTC)
	post := createPost(t, db, alice.ID, "original", pubDate)
	require.NoError(t, db.Create(&models.Group{Slug: "cats", Title: "Cats"}).Error)
	token := tokenFor(t, s, alice)

	path := postDetailPath("alice", post.ID)
	resp, err := app.Test(formRequest(http.MethodPost, path, token,
		url.Values{"text": {"edited"}, "group": {"cats"}}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, path, resp.Header.Get("Location"))

	var stored models.Post
	require.NoError(t, db.First(&stored, post.ID).Error)
	assert.Equal(t, "edited", stored.Text)
	require.NotNil(t, stored.GroupID)
	assert.True(t, stored.CreatedAt.Equal(pubDate), "publication date must survive edits")

	// submitting without a group detaches the post from it
	resp, err = app.Test(formRequest(http.MethodPost, path, token, url.Values{"text": {"edited again"}}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)

	require.NoError(t, db.First(&stored, post.ID).Error)
	assert.Nil(t, stored.GroupID)
}

func TestPostDetail(t *testing.T) {
	s, app, db := setupTestServer(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	post := createPost(t, db, alice.ID, "hello", time.Now())
	require.NoError(t, db.Create(&models.Comment{PostID: post.ID, UserID: bob.ID, Text: "nice"}).Error)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, postDetailPath("alice", post.ID), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	page := decodeJSON[PostPage](t, resp)
	assert.Equal(t, "hello", page.Post.Text)
	assert.EqualValues(t, 1, page.AuthorPostCount)
	assert.False(t, page.CanEdit)
	require.Len(t, page.Comments, 1)
	assert.Equal(t, "nice", page.Comments[0].Text)
	assert.Equal(t, "bob", page.Comments[0].Author.Username)
	assert.EqualValues(t, 1, page.CommentsCount)

	// the author sees the edit affordance
	req := httptest.NewRequest(http.MethodGet, postDetailPath("alice", post.ID), nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, s, alice))
	resp, err = app.Test(req)
	require.NoError(t, err)
	page = decodeJSON[PostPage](t, resp)
	assert.True(t, page.CanEdit)

	// the post is addressed by author and ID together
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, postDetailPath("bob", post.ID), nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGroupPosts(t *testing.T) {
	_, app, db := setupTestServer(t)
	alice := createUser(t, db, "alice")
	group := &models.Group{Slug: "testslug", Title: "T1", Description: "about T1"}
	require.NoError(t, db.Create(group).Error)

	inGroup := &models.Post{Text: "grouped", UserID: alice.ID, GroupID: &group.ID}
	require.NoError(t, db.Create(inGroup).Error)
	createPost(t, db, alice.ID, "ungrouped", time.Now())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/groups/testslug", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	page := decodeJSON[GroupPage](t, resp)
	assert.Equal(t, "T1", page.Group.Title)
	assert.Equal(t, "about T1", page.Description)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "grouped", page.Posts[0].Text)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/groups/missing", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestGroups(t *testing.T) {
	_, app, db := setupTestServer(t)
	require.NoError(t, db.Create(&models.Group{Slug: "zebra", Title: "Zebra"}).Error)
	require.NoError(t, db.Create(&models.Group{Slug: "apple", Title: "Apple"}).Error)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/groups", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	out := decodeJSON[struct {
		Groups []GroupView `json:"groups"`
	}](t, resp)
	require.Len(t, out.Groups, 2)
	assert.Equal(t, "Apple", out.Groups[0].Title)
	assert.Equal(t, "Zebra", out.Groups[1].Title)
}

func TestProfile(t *testing.T) {
	s, app, db := setupTestServer(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	createPost(t, db, alice.ID, "post one", time.Now())
	require.NoError(t, db.Create(&models.Follow{UserID: bob.ID, AuthorID: alice.ID}).Error)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/users/alice", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	page := decodeJSON[ProfilePage](t, resp)
	assert.Equal(t, "alice", page.Author.Username)
	assert.False(t, page.CanEdit)
	assert.False(t, page.Following)
	assert.EqualValues(t, 1, page.Followers)
	require.Len(t, page.Posts, 1)

	// a logged-in follower sees the relationship
	req := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, s, bob))
	resp, err = app.Test(req)
	require.NoError(t, err)
	page = decodeJSON[ProfilePage](t, resp)
	assert.True(t, page.Following)
	assert.False(t, page.CanEdit)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/users/nobody", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestFeedVisibility(t *testing.T) {
	s, app, db := setupTestServer(t)
	u1 := createUser(t, db, "u1")
	u2 := createUser(t, db, "u2")
	u3 := createUser(t, db, "u3")
	createPost(t, db, u1.ID, "hello", time.Now())

	require.NoError(t, db.Create(&models.Follow{UserID: u2.ID, AuthorID: u1.ID}).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, s, u2))
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	page := decodeJSON[FeedPage](t, resp)
	require.Len(t, page.Posts, 1)
	assert.Equal(t, "hello", page.Posts[0].Text)

	// u3 follows nobody and sees an empty feed
	req = httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	req.Header.Set("Authorization", "Bearer "+tokenFor(t, s, u3))
	resp, err = app.Test(req)
	require.NoError(t, err)
	page = decodeJSON[FeedPage](t, resp)
	assert.Empty(t, page.Posts)

	// anonymous callers are sent to login
	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/api/feed", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Location"), "/auth/login?next=")
}

func TestFollowAndUnfollow(t *testing.T) {
	s, app, db := setupTestServer(t)
	createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	bobToken := tokenFor(t, s, bob)

	resp, err := app.Test(formRequest(http.MethodPost, "/api/users/alice/follow", bobToken, url.Values{}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)

	var n int64
	require.NoError(t, db.Model(&models.Follow{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	// following again changes nothing
	resp, err = app.Test(formRequest(http.MethodPost, "/api/users/alice/follow", bobToken, url.Values{}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	require.NoError(t, db.Model(&models.Follow{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	// self-follow is a quiet no-op
	resp, err = app.Test(formRequest(http.MethodPost, "/api/users/bob/follow", bobToken, url.Values{}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	require.NoError(t, db.Model(&models.Follow{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	resp, err = app.Test(formRequest(http.MethodPost, "/api/users/alice/unfollow", bobToken, url.Values{}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	require.NoError(t, db.Model(&models.Follow{}).Count(&n).Error)
	assert.Zero(t, n)

	// unfollowing again is also a no-op
	resp, err = app.Test(formRequest(http.MethodPost, "/api/users/alice/unfollow", bobToken, url.Values{}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)

	// unknown author is a 404
	resp, err = app.Test(formRequest(http.MethodPost, "/api/users/nobody/follow", bobToken, url.Values{}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestAddComment(t *testing.T) {
	s, app, db := setupTestServer(t)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")
	post := createPost(t, db, alice.ID, "post", time.Now())
	bobToken := tokenFor(t, s, bob)

	path := postDetailPath("alice", post.ID) + "/comments"

	// bindings come from the route and token, not the body
	resp, err := app.Test(formRequest(http.MethodPost, path, bobToken,
		url.Values{"text": {"great post"}, "user_id": {"999"}, "post_id": {"999"}}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusSeeOther, resp.StatusCode)
	assert.Equal(t, postDetailPath("alice", post.ID), resp.Header.Get("Location"))

	var comment models.Comment
	require.NoError(t, db.First(&comment).Error)
	assert.Equal(t, bob.ID, comment.UserID)
	assert.Equal(t, post.ID, comment.PostID)
	assert.Equal(t, "great post", comment.Text)

	// blank text is rejected and nothing is stored
	resp, err = app.Test(formRequest(http.MethodPost, path, bobToken, url.Values{"text": {"  "}}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	var n int64
	require.NoError(t, db.Model(&models.Comment{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)

	// anonymous commenters are sent to login
	resp, err = app.Test(formRequest(http.MethodPost, path, "", url.Values{"text": {"anon"}}))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusFound, resp.StatusCode)
}

func TestSignupAndLogin(t *testing.T) {
	_, app, db := setupTestServer(t)

	body, _ := json.Marshal(map[string]string{
		"username": "newuser",
		"email":    "newuser@example.com",
		"password": "password123",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/signup", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)

	signupResp := decodeJSON[map[string]json.RawMessage](t, resp)
	assert.Contains(t, signupResp, "token")

	// duplicate email conflicts
	req = httptest.NewRequest(http.MethodPost, "/api/auth/signup", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	login := func(password string) *http.Response {
		b, _ := json.Marshal(map[string]string{"username": "newuser", "password": password})
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		resp, err := app.Test(req)
		require.NoError(t, err)
		return resp
	}

	resp = login("password123")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp = login("wrong-password")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	var n int64
	require.NoError(t, db.Model(&models.User{}).Count(&n).Error)
	assert.EqualValues(t, 1, n)
}

func TestHealthCheck(t *testing.T) {
	_, app, _ := setupTestServer(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}
