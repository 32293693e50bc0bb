package server

import (
	"errors"

	"plume/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// FollowIndex handles GET /api/feed: posts authored by anyone the
// caller follows, merged across authors, newest first. Following nobody
// yields an empty page, not an error.
func (s *Server) FollowIndex(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)
	req := s.parsePage(c)

	posts, err := s.postRepo.ListFollowed(c.Context(), userID, req.Limit, req.Offset)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	total, err := s.postRepo.CountFollowed(c.Context(), userID)
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}
	counts, err := s.commentRepo.CountByPosts(c.Context(), postIDs(posts))
	if err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return c.JSON(FeedPage{
		Posts: s.buildPostViews(posts, counts),
		Page:  s.pageMeta(req, total),
	})
}

// FollowAuthor handles POST /api/users/:username/follow. Following an
// already-followed author or yourself changes nothing; both cases
// redirect back like a successful follow.
func (s *Server) FollowAuthor(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	author, err := s.userRepo.GetByUsername(c.Context(), c.Params("username"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("User", c.Params("username")))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	if author.ID != userID {
		if err := s.followRepo.Follow(c.Context(), userID, author.ID); err != nil {
			return models.RespondWithError(c, fiber.StatusInternalServerError, err)
		}
	}

	return redirectBack(c)
}

// UnfollowAuthor handles POST /api/users/:username/unfollow.
// Unfollowing someone you don't follow is a no-op.
func (s *Server) UnfollowAuthor(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	author, err := s.userRepo.GetByUsername(c.Context(), c.Params("username"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.RespondWithError(c, fiber.StatusNotFound,
				models.NewNotFoundError("User", c.Params("username")))
		}
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	if err := s.followRepo.Unfollow(c.Context(), userID, author.ID); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, err)
	}

	return redirectBack(c)
}
