package handlers

import (
	"errors"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/ukydev/fleet-rental/internal/apperr"
	"github.com/ukydev/fleet-rental/internal/auth"
	"github.com/ukydev/fleet-rental/internal/db"
	"github.com/ukydev/fleet-rental/internal/httpx"
	"github.com/ukydev/fleet-rental/internal/middleware"
	"github.com/ukydev/fleet-rental/internal/models"
)

// AuthHandler handles authentication requests
type AuthHandler struct {
	authService    *auth.Service
	userCollection db.UserCollection
	validate       *validator.Validate
	log            *logrus.Entry
}

// NewAuthHandler creates a new authentication handler
func NewAuthHandler(authService *auth.Service, userCollection db.UserCollection, log *logrus.Entry) *AuthHandler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &AuthHandler{
		authService:    authService,
		userCollection: userCollection,
		validate:       validator.New(),
		log:            log.WithField("component", "auth_handler"),
	}
}

// RegisterRequest is the body of a self-service sign up.
type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

// Login handles user login. It accepts a JSON body or the sign-in form;
// form logins are redirected to the admin page.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	form := isFormPost(r)

	var loginReq models.LoginRequest
	if form {
		if err := r.ParseForm(); err != nil {
			httpx.WriteError(w, apperr.BadRequest("invalid form"))
			return
		}
		loginReq.Email = r.PostForm.Get("email")
		loginReq.Password = r.PostForm.Get("password")
	} else if err := httpx.DecodeJSON(r, &loginReq); err != nil {
		httpx.WriteError(w, err)
		return
	}

	loginReq.Email = strings.ToLower(strings.TrimSpace(loginReq.Email))
	if loginReq.Email == "" || loginReq.Password == "" {
		httpx.WriteError(w, apperr.Validation(map[string]string{"credentials": "email and password are required"}))
		return
	}

	user, err := h.userCollection.FindUserByEmail(r.Context(), loginReq.Email)
	if errors.Is(err, db.ErrNotFound) {
		user, err = nil, nil
	}
	if err != nil {
		h.log.WithError(err).Error("Failed to look up user")
		httpx.WriteError(w, apperr.Storage("find user", err))
		return
	}

	switch err := h.authService.CheckCredentials(user, loginReq.Password, time.Now()); {
	case errors.Is(err, auth.ErrUserBanned):
		h.log.WithField("user_id", user.ID.Hex()).Info("Banned user refused at login")
		refused := apperr.Forbidden("user_banned")
		refused.Err = err
		httpx.WriteError(w, refused)
		return
	case err != nil:
		httpx.WriteError(w, &apperr.Error{Kind: apperr.KindAuthentication, Message: "invalid credentials", Reason: "invalid_credentials", Err: err})
		return
	}

	token, err := h.authService.GenerateToken(user)
	if err != nil {
		h.log.WithError(err).Error("Failed to generate token")
		httpx.WriteError(w, apperr.Oracle("generate token", err))
		return
	}

	if err := h.userCollection.UpdateLastLogin(r.Context(), user.ID.Hex()); err != nil {
		h.log.WithError(err).WithField("user_id", user.ID.Hex()).Warn("Failed to update last login")
	}

	h.authService.SetSessionCookie(w, token)
	if form {
		http.Redirect(w, r, "/admin", http.StatusSeeOther)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, models.LoginResponse{
		Token: token,
		Principal: models.Principal{
			ID:    user.ID.Hex(),
			Email: user.Email,
			Role:  models.NormalizeRole(string(user.Role)),
		},
		User: *user,
	})
}

// Register creates a client account. Staff roles are only granted through
// user administration.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var registerReq RegisterRequest
	if err := httpx.DecodeJSON(r, &registerReq); err != nil {
		httpx.WriteError(w, err)
		return
	}

	email := strings.ToLower(strings.TrimSpace(registerReq.Email))
	fields := map[string]string{}
	if err := h.validate.Var(email, "required,email"); err != nil {
		fields["email"] = "must be a valid email address"
	}
	if err := h.authService.ValidatePassword(registerReq.Password); err != nil {
		fields["password"] = err.Error()
	}
	if len(fields) > 0 {
		httpx.WriteError(w, apperr.Validation(fields))
		return
	}

	passwordHash, err := h.authService.HashPassword(registerReq.Password)
	if err != nil {
		h.log.WithError(err).Error("Failed to hash password")
		httpx.WriteError(w, apperr.Oracle("hash password", err))
		return
	}

	now := time.Now().UTC()
	user := &models.UserAccount{
		Email:        email,
		PasswordHash: passwordHash,
		Role:         models.RoleClient,
		FullName:     strings.TrimSpace(registerReq.FullName),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := h.userCollection.InsertUser(r.Context(), user); err != nil {
		if errors.Is(err, db.ErrDuplicateKey) {
			httpx.WriteError(w, apperr.Conflict("email already registered"))
			return
		}
		h.log.WithError(err).Error("Failed to create user")
		httpx.WriteError(w, apperr.Storage("insert user", err))
		return
	}

	h.log.WithField("user_id", user.ID.Hex()).Info("User registered")
	httpx.WriteJSON(w, http.StatusCreated, user)
}

// Logout clears the session cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.authService.ClearSessionCookie(w)
	w.WriteHeader(http.StatusNoContent)
}

// GetProfile returns the current user's profile
func (h *AuthHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, apperr.Unauthenticated())
		return
	}

	user, err := h.userCollection.FindUserByID(r.Context(), p.ID)
	if errors.Is(err, db.ErrNotFound) {
		httpx.WriteError(w, apperr.NotFound("user"))
		return
	}
	if err != nil {
		httpx.WriteError(w, apperr.Storage("find user", err))
		return
	}

	httpx.WriteJSON(w, http.StatusOK, struct {
		Principal *models.Principal   `json:"principal"`
		User      *models.UserAccount `json:"user"`
	}{Principal: p, User: user})
}

func isFormPost(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/x-www-form-urlencoded"
}
