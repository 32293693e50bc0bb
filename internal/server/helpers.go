package server

import (
	"errors"
	"fmt"
	"net/url"

	"plume/internal/models"

	"github.com/gofiber/fiber/v2"
)

// errResponseWritten is a sentinel indicating the HTTP response was
// already committed by a helper. Handlers must return nil (not this
// error) to avoid Fiber's ErrorHandler overwriting the response.
var errResponseWritten = errors.New("response already written")

// pageRequest holds a parsed page-number pagination request.
type pageRequest struct {
	Page   int
	Limit  int
	Offset int
}

// parsePage extracts the ?page=N query parameter, clamped to >= 1.
func (s *Server) parsePage(c *fiber.Ctx) pageRequest {
	page := c.QueryInt("page", 1)
	if page < 1 {
		page = 1
	}
	size := s.pageSize
	return pageRequest{
		Page:   page,
		Limit:  size,
		Offset: (page - 1) * size,
	}
}

// pageMeta builds listing metadata from a page request and total count.
func (s *Server) pageMeta(req pageRequest, total int64) PageMeta {
	totalPages := int((total + int64(s.pageSize) - 1) / int64(s.pageSize))
	if totalPages < 1 {
		totalPages = 1
	}
	return PageMeta{
		Page:       req.Page,
		PageSize:   s.pageSize,
		TotalItems: total,
		TotalPages: totalPages,
	}
}

// parseID extracts a route parameter by name as a positive uint.
// On failure it writes a 400 JSON response and returns errResponseWritten;
// callers should check: if err != nil { return nil }.
func (s *Server) parseID(c *fiber.Ctx, param string) (uint, error) {
	id, err := c.ParamsInt(param)
	if err != nil || id <= 0 {
		_ = models.RespondWithError(c, fiber.StatusBadRequest,
			models.NewValidationError("Invalid "+param))
		return 0, errResponseWritten
	}
	return uint(id), nil
}

// canEdit reports whether the viewer may edit the owner's content:
// authenticated and identical to the owner.
func canEdit(viewerID, ownerID uint) bool {
	return viewerID != 0 && viewerID == ownerID
}

// postDetailPath is the canonical read view for a post.
func postDetailPath(username string, postID uint) string {
	return fmt.Sprintf("/api/users/%s/posts/%d", username, postID)
}

// loginRedirect sends an anonymous caller to the login flow, preserving
// the original URL as the return target.
func loginRedirect(c *fiber.Ctx) error {
	return c.Redirect("/auth/login?next="+url.QueryEscape(c.OriginalURL()), fiber.StatusFound)
}

// redirectBack returns to the referring page, or the index listing when
// the Referer header is absent.
func redirectBack(c *fiber.Ctx) error {
	ref := c.Get(fiber.HeaderReferer)
	if ref == "" {
		ref = "/api/posts"
	}
	return c.Redirect(ref, fiber.StatusSeeOther)
}
