package handler

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/milsabores/identity-service/internal/core/domain"
	"github.com/milsabores/identity-service/internal/core/ports"
	"github.com/milsabores/identity-service/internal/pkg/metrics"
)

const maxImageBytes = 5 << 20

// IdentityHandler exposes the identity service over HTTP.
type IdentityHandler struct {
	identity ports.IdentityService
	now      func() time.Time
}

func NewIdentityHandler(identity ports.IdentityService) *IdentityHandler {
	return &IdentityHandler{identity: identity, now: time.Now}
}

// Register creates a customer account and returns a token for it.
//
// @Summary      Register a new user
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      registerRequest  true  "Registration details"
// @Success      201   {object}  authResponse
// @Failure      400   {object}  errorResponse
// @Failure      500   {object}  errorResponse
// @Router       /auth/register [post]
func (h *IdentityHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.identity.Register(c.Request().Context(), ports.RegisterInput{
		ID:                 req.ID,
		DisplayName:        req.Name,
		Email:              req.Email,
		Password:           req.Password,
		BirthDate:          req.BirthDate,
		ExternalIdentityID: req.ExternalIdentityID,
	})
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateEmail):
			metrics.RegistrationsTotal.WithLabelValues("duplicate_email").Inc()
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrInvalidDate):
			metrics.RegistrationsTotal.WithLabelValues("invalid_date").Inc()
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return err
	}

	metrics.RegistrationsTotal.WithLabelValues("created").Inc()
	metrics.TokensIssuedTotal.WithLabelValues("register").Inc()
	return c.JSON(http.StatusCreated, toAuthResponse(res))
}

// Login authenticates a user and returns a token.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  errorResponse
// @Failure      401   {object}  errorResponse
// @Router       /auth/login [post]
func (h *IdentityHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.identity.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			metrics.LoginsTotal.WithLabelValues("invalid_credentials").Inc()
			return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
		}
		metrics.LoginsTotal.WithLabelValues("error").Inc()
		return err
	}

	metrics.LoginsTotal.WithLabelValues("success").Inc()
	metrics.TokensIssuedTotal.WithLabelValues("login").Inc()
	return c.JSON(http.StatusOK, toAuthResponse(res))
}

// Me returns the profile of the token holder.
//
// @Summary      Current user profile
// @Tags         users
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  userResponse
// @Failure      401  {object}  errorResponse
// @Failure      404  {object}  errorResponse
// @Router       /auth/me [get]
func (h *IdentityHandler) Me(c echo.Context) error {
	subject, err := ctxSubject(c)
	if err != nil {
		return err
	}

	user, err := h.identity.Profile(c.Request().Context(), subject)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(user, h.now()))
}

// FindByExternalIdentity looks a user up by the external identity provider id.
//
// @Summary      Find user by external identity id
// @Tags         users
// @Produce      json
// @Param        externalId  path      string  true  "External identity id"
// @Success      200         {object}  userResponse
// @Failure      404         {object}  errorResponse
// @Router       /auth/users/external/{externalId} [get]
func (h *IdentityHandler) FindByExternalIdentity(c echo.Context) error {
	user, err := h.identity.FindByExternalIdentity(c.Request().Context(), c.Param("externalId"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toUserResponse(user, h.now()))
}

// UpdateName renames a user and returns a freshly issued token.
//
// @Summary      Update display name
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        id    path      string             true  "User id"
// @Param        body  body      updateNameRequest  true  "New name"
// @Success      200   {object}  authResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /auth/users/{id}/name [put]
func (h *IdentityHandler) UpdateName(c echo.Context) error {
	var req updateNameRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.identity.UpdateName(c.Request().Context(), c.Param("id"), req.NewName)
	if err != nil {
		return err
	}

	metrics.TokensIssuedTotal.WithLabelValues("update_name").Inc()
	return c.JSON(http.StatusOK, toAuthResponse(res))
}

// UpdatePhoto replaces the profile image. The image is sent either as a
// base64 JSON field or as a multipart "file" part.
//
// @Summary      Update profile photo
// @Tags         users
// @Accept       json,mpfd
// @Produce      json
// @Param        id    path      string              true   "User id"
// @Param        body  body      updatePhotoRequest  false  "Base64 image"
// @Param        file  formData  file                false  "Image file"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Router       /auth/users/{id}/photo [put]
func (h *IdentityHandler) UpdatePhoto(c echo.Context) error {
	image, err := readImage(c)
	if err != nil {
		return err
	}

	if err := h.identity.UpdateImage(c.Request().Context(), c.Param("id"), image); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, messageResponse{Message: msgPhotoUpdated})
}

// RecoverPassword starts password recovery. The response is the same
// whether or not the email is registered.
//
// @Summary      Start password recovery
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      recoverPasswordRequest  true  "Account email"
// @Success      200   {object}  messageResponse
// @Router       /auth/recover-password [post]
func (h *IdentityHandler) RecoverPassword(c echo.Context) error {
	var req recoverPasswordRequest
	if err := c.Bind(&req); err == nil && req.Email != "" {
		h.identity.StartRecovery(c.Request().Context(), req.Email)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: msgRecoveryStarted})
}

// ResetPassword sets a new password for the account registered under email.
//
// @Summary      Reset password
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      resetPasswordRequest  true  "Email and new password"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  errorResponse
// @Router       /auth/reset-password [post]
func (h *IdentityHandler) ResetPassword(c echo.Context) error {
	var req resetPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := h.identity.ResetPassword(c.Request().Context(), req.Email, req.NewPassword); err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.PasswordResetsTotal.WithLabelValues("user_not_found").Inc()
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		metrics.PasswordResetsTotal.WithLabelValues("error").Inc()
		return err
	}

	metrics.PasswordResetsTotal.WithLabelValues("success").Inc()
	return c.JSON(http.StatusOK, messageResponse{Message: msgPasswordReset})
}

// readImage extracts the image bytes from a multipart "file" part or from a
// base64 JSON body. Data URL prefixes are tolerated.
func readImage(c echo.Context) ([]byte, error) {
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, err := c.FormFile("file")
		if err != nil {
			return nil, echo.NewHTTPError(http.StatusBadRequest, "file is required")
		}
		if fh.Size > maxImageBytes {
			return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image too large")
		}
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		defer f.Close()
		return io.ReadAll(io.LimitReader(f, maxImageBytes))
	}

	var req updatePhotoRequest
	if err := c.Bind(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	encoded := req.ImageBase64
	if i := strings.Index(encoded, ";base64,"); strings.HasPrefix(encoded, "data:") && i >= 0 {
		encoded = encoded[i+len(";base64,"):]
	}
	image, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, echo.NewHTTPError(http.StatusBadRequest, "image_base64 must be valid base64")
	}
	if len(image) > maxImageBytes {
		return nil, echo.NewHTTPError(http.StatusRequestEntityTooLarge, "image too large")
	}
	return image, nil
}
