package server

import (
	"errors"
	"strings"

	"plume/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// AddComment handles POST /api/users/:username/posts/:id/comments. The
// comment's post and author bindings come from the route and the auth
// token; client-supplied values for either are ignored.
func (s *Server) AddComment(c *fiber.Ctx) error {
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

	var req struct {
		Text string `json:"text" form:"text"`
	}
	if err := c.BodyParser(&req); err != nil {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid request body"))
	}

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewFieldError("text", "Text is required"))
	}

	comment := &models.Comment{
		Text:   text,
		PostID: post.ID,
		UserID: userID,
	}
	if err := s.commentRepo.Create(c.Context(), comment); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return c.Redirect(postDetailPath(username, post.ID), fiber.StatusSeeOther)
}
