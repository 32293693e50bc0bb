package server

import (
	"errors"
	"io"
	"strings"

	"plume/internal/cache"
	"plume/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// Index handles GET /api/posts. Pages are served from the short-TTL
// cache; a page rendered just before a publish can stay stale until the
// TTL expires, which is accepted.
func (s *Server) Index(c *fiber.Ctx) error {
	req := s.parsePage(c)

	var page IndexPage
	err := s.pages.Fetch(c.Context(), cache.IndexKey(req.Page), &page, func() error {
		posts, listErr := s.postRepo.List(c.Context(), req.Limit, req.Offset)
		if listErr != nil {
			return listErr
		}
		total, countErr := s.postRepo.CountAll(c.Context())
		if countErr != nil {
			return countErr
		}
		counts, aggErr := s.commentRepo.CountByPosts(c.Context(), postIDs(posts))
		if aggErr != nil {
			return aggErr
		}

		page = IndexPage{
			Posts: s.buildPostViews(posts, counts),
			Page:  s.pageMeta(req, total),
		}
		return nil
	})
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(page)
}

// Groups handles GET /api/groups: every group, ordered by title.
func (s *Server) Groups(c *fiber.Ctx) error {
	groups, err := s.groupRepo.List(c.Context())
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	views := make([]GroupView, 0, len(groups))
	for _, g := range groups {
		views = append(views, GroupView{Slug: g.Slug, Title: g.Title})
	}
	return c.JSON(fiber.Map{"groups": views})
}

// GroupPosts handles GET /api/groups/:slug.
func (s *Server) GroupPosts(c *fiber.Ctx) error {
	slug := c.Params("slug")

	group, err := s.groupRepo.GetBySlug(c.Context(), slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("Group", slug))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	req := s.parsePage(c)
	posts, err := s.postRepo.ListByGroup(c.Context(), group.ID, req.Limit, req.Offset)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	total, err := s.postRepo.CountByGroup(c.Context(), group.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	counts, err := s.commentRepo.CountByPosts(c.Context(), postIDs(posts))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(GroupPage{
		Group:       GroupView{Slug: group.Slug, Title: group.Title},
		Description: group.Description,
		Posts:       s.buildPostViews(posts, counts),
		Page:        s.pageMeta(req, total),
	})
}

// Profile handles GET /api/users/:username.
func (s *Server) Profile(c *fiber.Ctx) error {
	username := c.Params("username")

	author, err := s.userRepo.GetByUsername(c.Context(), username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("User", username))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	req := s.parsePage(c)
	posts, err := s.postRepo.ListByUser(c.Context(), author.ID, req.Limit, req.Offset)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	total, err := s.postRepo.CountByUser(c.Context(), author.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	counts, err := s.commentRepo.CountByPosts(c.Context(), postIDs(posts))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	viewerID := s.optionalUserID(c)
	following, err := s.followRepo.IsFollowing(c.Context(), viewerID, author.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	followers, err := s.followRepo.CountFollowers(c.Context(), author.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(ProfilePage{
		Author:    newAuthorView(*author),
		CanEdit:   canEdit(viewerID, author.ID),
		Following: following,
		Followers: followers,
		Posts:     s.buildPostViews(posts, counts),
		Page:      s.pageMeta(req, total),
	})
}

// PostDetail handles GET /api/users/:username/posts/:id. The post must
// belong to the named author; a valid post ID under the wrong username
// is a 404.
func (s *Server) PostDetail(c *fiber.Ctx) error {
	username := c.Params("username")
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	author, err := s.userRepo.GetByUsername(c.Context(), username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("User", username))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	post, err := s.postRepo.GetByAuthorAndID(c.Context(), author.ID, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("Post", postID))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	comments, err := s.commentRepo.ListByPost(c.Context(), post.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	authorPostCount, err := s.postRepo.CountByUser(c.Context(), author.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	commentsCount := int64(len(comments))
	views := s.buildPostViews([]*models.Post{post}, map[uint]int64{post.ID: commentsCount})

	commentViews := make([]CommentView, 0, len(comments))
	for _, comment := range comments {
		commentViews = append(commentViews, newCommentView(comment))
	}

	viewerID := s.optionalUserID(c)
	return c.JSON(PostPage{
		Post:            views[0],
		Author:          newAuthorView(*author),
		AuthorPostCount: authorPostCount,
		CanEdit:         canEdit(viewerID, post.UserID),
		Comments:        commentViews,
		CommentsCount:   commentsCount,
	})
}

// CreatePost handles POST /api/posts. The author is always the
// authenticated caller; any author field in the request body is ignored.
func (s *Server) CreatePost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	text := strings.TrimSpace(c.FormValue("text"))
	if text == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewFieldError("text", "Text is required"))
	}

	groupID, err := s.resolveGroupField(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	imagePath, err := s.storeUploadedImage(c, userID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	post := &models.Post{
		Text:      text,
		UserID:    userID,
		GroupID:   groupID,
		ImagePath: imagePath,
	}
	if err := s.postRepo.Create(c.Context(), post); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	created, err := s.postRepo.GetByID(c.Context(), post.ID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	views := s.buildPostViews([]*models.Post{created}, nil)
	return c.Status(fiber.StatusCreated).JSON(views[0])
}

// EditPost handles POST /api/users/:username/posts/:id. Only the author
// may edit; any other authenticated caller is redirected to the read
// view without an error body and without mutating anything. The
// publication date never changes on edit.
func (s *Server) EditPost(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	username := c.Params("username")
	postID, err := s.parseID(c, "id")
	if err != nil {
		return nil
	}

	author, err := s.userRepo.GetByUsername(c.Context(), username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("User", username))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	post, err := s.postRepo.GetByAuthorAndID(c.Context(), author.ID, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("Post", postID))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	if post.UserID != userID {
		return c.Redirect(postDetailPath(username, post.ID), fiber.StatusSeeOther)
	}

	text := strings.TrimSpace(c.FormValue("text"))
	if text == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewFieldError("text", "Text is required"))
	}

	groupID, err := s.resolveGroupField(c)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}

	imagePath, err := s.storeUploadedImage(c, userID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest, err)
	}
	if imagePath == "" {
		imagePath = post.ImagePath
	}

	post.Text = text
	post.GroupID = groupID
	post.ImagePath = imagePath
	if err := s.postRepo.Update(c.Context(), post); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return c.Redirect(postDetailPath(username, post.ID), fiber.StatusSeeOther)
}

// resolveGroupField maps the optional "group" form field (a slug) to a
// group ID. An empty field means no group.
func (s *Server) resolveGroupField(c *fiber.Ctx) (*uint, error) {
	slug := strings.TrimSpace(c.FormValue("group"))
	if slug == "" {
		return nil, nil
	}

	group, err := s.groupRepo.GetBySlug(c.Context(), slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, models.NewFieldError("group", "Unknown group")
		}
		return nil, err
	}
	return &group.ID, nil
}

// storeUploadedImage reads the optional "image" multipart file and
// stores it through the image service. A missing file is not an error;
// an unreadable or non-image file is a field-level validation error and
// nothing is persisted.
func (s *Server) storeUploadedImage(c *fiber.Ctx, userID uint) (string, error) {
	fileHeader, err := c.FormFile("image")
	if err != nil {
		return "", nil
	}

	file, err := fileHeader.Open()
	if err != nil {
		return "", models.NewFieldError("image", "Could not read uploaded file")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return "", models.NewFieldError("image", "Could not read uploaded file")
	}

	return s.imageSvc.Store(userID, content)
}
