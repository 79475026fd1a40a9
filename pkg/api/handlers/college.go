package handlers

import (
	"context"
	"net/http"

	"github.com/jordanlanch/refertrack/pkg/account"
	"github.com/jordanlanch/refertrack/pkg/domain"
	"github.com/jordanlanch/refertrack/pkg/models"
	"github.com/jordanlanch/refertrack/pkg/storage"
	"github.com/labstack/echo/v4"
)

// CollegeHandler manages the students a college referred.
type CollegeHandler struct {
	deps *Deps
}

// NewCollegeHandler creates a new college handler
func NewCollegeHandler(deps *Deps) *CollegeHandler {
	return &CollegeHandler{deps: deps}
}

// student loads the school account :id and checks the calling college
// referred it. Anything else is reported as not found.
func (h *CollegeHandler) student(ctx context.Context, c echo.Context) (*account.Account, error) {
	college, err := currentAccount(c)
	if err != nil {
		return nil, err
	}
	st, err := h.deps.Service.Get(ctx, account.RoleSchool, c.Param("id"))
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.NewNotFoundError("student")
		}
		return nil, err
	}
	if college.ReferralCode == "" || st.ReferredBy != college.ReferralCode {
		return nil, domain.NewNotFoundError("student")
	}
	return st, nil
}

func (h *CollegeHandler) videosEnabled(c echo.Context) bool {
	if h.deps.Videos != nil {
		return true
	}
	_ = c.JSON(http.StatusServiceUnavailable, models.ErrorResponse{
		Error:   "storage_unavailable",
		Message: "Video storage is not configured",
	})
	return false
}

// UploadVideo stores the multipart "file" for a student and records its key.
// A previous video is removed once the new key is saved.
func (h *CollegeHandler) UploadVideo(c echo.Context) error {
	if !h.videosEnabled(c) {
		return nil
	}

	file, err := c.FormFile("file")
	if err != nil {
		return respondError(c, domain.NewValidationError("no file uploaded"))
	}
	if file.Size > h.deps.Settings.VideoMaxBytes {
		return respondError(c, domain.NewValidationError("file is too large"))
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	st, err := h.student(ctx, c)
	if err != nil {
		return respondError(c, err)
	}

	src, err := file.Open()
	if err != nil {
		return respondError(c, domain.NewInternalError(err))
	}
	defer src.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	// Uploads can outlast the default request timeout.
	uploadCtx := c.Request().Context()
	key, err := h.deps.Videos.Put(uploadCtx, storage.VideoFolder, file.Filename, src, file.Size, contentType)
	if err != nil {
		return respondError(c, domain.NewInternalError(err))
	}

	previous := st.VideoKey
	if err := h.deps.Service.Repository().SetVideoKey(uploadCtx, st.ID, key); err != nil {
		if delErr := h.deps.Videos.Delete(context.WithoutCancel(uploadCtx), key); delErr != nil {
			h.deps.Logger.Warn("failed to remove orphaned video", "key", key, "error", delErr)
		}
		return respondError(c, err)
	}
	if previous != "" && previous != key {
		if err := h.deps.Videos.Delete(uploadCtx, previous); err != nil {
			h.deps.Logger.Warn("failed to remove replaced video", "key", previous, "error", err)
		}
	}

	url, err := h.deps.Videos.SignedURL(uploadCtx, key, h.deps.Settings.VideoURLTTL)
	if err != nil {
		return respondError(c, domain.NewInternalError(err))
	}

	h.deps.Logger.Info("student video uploaded", "student_id", st.ID, "key", key)
	return c.JSON(http.StatusOK, models.VideoResponse{
		Message:  "Video uploaded successfully",
		VideoURL: url,
	})
}

// DeleteVideo removes a student's video object and clears its key.
func (h *CollegeHandler) DeleteVideo(c echo.Context) error {
	if !h.videosEnabled(c) {
		return nil
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	st, err := h.student(ctx, c)
	if err != nil {
		return respondError(c, err)
	}

	if st.VideoKey != "" {
		if err := h.deps.Videos.Delete(ctx, st.VideoKey); err != nil {
			return respondError(c, domain.NewInternalError(err))
		}
	}
	if err := h.deps.Service.Repository().SetVideoKey(ctx, st.ID, ""); err != nil {
		return respondError(c, err)
	}

	return success(c, "Video deleted successfully")
}

// DeleteStudent soft-deletes a student the college referred.
func (h *CollegeHandler) DeleteStudent(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	st, err := h.student(ctx, c)
	if err != nil {
		return respondError(c, err)
	}
	if err := h.deps.Service.Disable(ctx, st); err != nil {
		return respondError(c, err)
	}

	return success(c, "Student deleted successfully")
}
