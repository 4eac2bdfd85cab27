package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"labstock/internal/ledger"
	applog "labstock/internal/log"
	"labstock/internal/service"
	"labstock/models"
)

const (
	sessionAuthenticatedKey = "auth:authenticated"
	sessionUserIDKey        = "auth:user:id"
	sessionUsernameKey      = "auth:user:name"
)

const minPasswordLength = 6

var (
	sessionManager *scs.SessionManager
	database       *gorm.DB
	inventory      *service.Service
	maxUploadSize  int64 = 16 << 20
)

// Configure installs the shared dependencies used by the HTTP handlers.
func Configure(sm *scs.SessionManager, db *gorm.DB) {
	sessionManager = sm
	database = db
	if db != nil {
		inventory = service.New(db, ledger.DefaultThresholds)
	} else {
		inventory = nil
	}
}

// ConfigureInventory overrides the storage service and upload limit, for
// servers that carry non-default thresholds.
func ConfigureInventory(svc *service.Service, maxUpload int64) {
	inventory = svc
	if maxUpload > 0 {
		maxUploadSize = maxUpload
	}
}

func currentUserID(r *http.Request) (uint, bool) {
	if sessionManager == nil {
		return 0, false
	}
	id := sessionManager.GetInt(r.Context(), sessionUserIDKey)
	if id <= 0 {
		return 0, false
	}
	return uint(id), true
}

func establishSession(r *http.Request, user *models.User) error {
	if sessionManager == nil {
		return errors.New("session manager not configured")
	}
	if err := sessionManager.RenewToken(r.Context()); err != nil {
		return err
	}
	sessionManager.Put(r.Context(), sessionAuthenticatedKey, true)
	sessionManager.Put(r.Context(), sessionUserIDKey, int(user.ID))
	sessionManager.Put(r.Context(), sessionUsernameKey, user.Username)
	return nil
}

// ActiveSession returns true when the current request has an authenticated session.
func ActiveSession(r *http.Request) bool {
	if sessionManager == nil {
		return false
	}
	return sessionManager.GetBool(r.Context(), sessionAuthenticatedKey) && sessionManager.GetInt(r.Context(), sessionUserIDKey) > 0
}

// RequireSession rejects unauthenticated API requests with a JSON 401.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !ActiveSession(r) {
			writeJSONError(w, http.StatusUnauthorized, "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userResponse struct {
	ID        uint       `json:"id"`
	Username  string     `json:"username"`
	Active    bool       `json:"is_active"`
	IsAdmin   bool       `json:"is_admin"`
	LastLogin *time.Time `json:"last_login,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

func projectUser(user models.User) userResponse {
	return userResponse{
		ID:        user.ID,
		Username:  user.Username,
		Active:    user.Active,
		IsAdmin:   user.IsAdmin(),
		LastLogin: user.LastLogin,
		CreatedAt: user.CreatedAt,
	}
}

// AuthLogin authenticates a user and issues a session cookie.
func AuthLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if database == nil || sessionManager == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "authentication not available")
		return
	}

	var payload credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	ctx := r.Context()
	var user models.User
	err := database.WithContext(ctx).Where("username = ?", strings.TrimSpace(payload.Username)).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			writeJSONError(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		applog.Error(ctx, "failed to load user during login", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to sign in")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(payload.Password)); err != nil {
		writeJSONError(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	if !user.Active {
		writeJSONError(w, http.StatusForbidden, "account is awaiting administrator approval")
		return
	}

	if err := establishSession(r, &user); err != nil {
		applog.Error(ctx, "failed to establish session", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to sign in")
		return
	}

	now := time.Now().UTC()
	if err := database.WithContext(ctx).Model(&user).Update("last_login", now).Error; err != nil {
		applog.Error(ctx, "failed to record last login", "error", err, "user", user.ID)
	}
	user.LastLogin = &now

	applog.Info(ctx, "user signed in", "user", user.ID)
	writeJSON(w, http.StatusOK, map[string]any{"user": projectUser(user)})
}

// AuthLogout destroys the current session.
func AuthLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if sessionManager != nil {
		if err := sessionManager.Destroy(r.Context()); err != nil {
			applog.Error(r.Context(), "failed to destroy session", "error", err)
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "signed out"})
}

// AuthCheck reports whether the caller holds a valid session.
func AuthCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if !ActiveSession(r) {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	userID, _ := currentUserID(r)
	var user models.User
	if err := database.WithContext(r.Context()).First(&user, userID).Error; err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          projectUser(user),
	})
}

// AuthRegister creates a new inactive account pending administrator approval.
func AuthRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if database == nil {
		writeJSONError(w, http.StatusServiceUnavailable, "registration not available")
		return
	}

	var payload credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	username := strings.TrimSpace(payload.Username)
	if len(username) < 2 {
		writeJSONError(w, http.StatusBadRequest, "username must have at least 2 characters")
		return
	}
	if len(payload.Password) < minPasswordLength {
		writeJSONError(w, http.StatusBadRequest, "password must have at least 6 characters")
		return
	}

	ctx := r.Context()
	var count int64
	if err := database.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error; err != nil {
		applog.Error(ctx, "failed to check username availability", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to register")
		return
	}
	if count > 0 {
		writeJSONError(w, http.StatusConflict, "username is already taken")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.Password), bcrypt.DefaultCost)
	if err != nil {
		applog.Error(ctx, "failed to hash password", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to register")
		return
	}

	var total int64
	if err := database.WithContext(ctx).Model(&models.User{}).Count(&total).Error; err != nil {
		applog.Error(ctx, "failed to count users", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to register")
		return
	}

	user := models.User{
		Username:     username,
		PasswordHash: string(hashed),
		// The very first account becomes the active administrator.
		Active: total == 0,
	}
	if err := database.WithContext(ctx).Create(&user).Error; err != nil {
		applog.Error(ctx, "failed to create user", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to register")
		return
	}

	message := "registration received; an administrator must approve the account"
	if user.Active {
		message = "administrator account created"
	}
	applog.Info(ctx, "user registered", "user", user.ID, "active", user.Active)
	writeJSON(w, http.StatusCreated, map[string]any{
		"message": message,
		"user":    projectUser(user),
	})
}

// AuthProfile serves and updates the signed-in user's profile.
func AuthProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	ctx := r.Context()
	var user models.User
	if err := database.WithContext(ctx).Preload("Personnel").First(&user, userID).Error; err != nil {
		applog.Error(ctx, "failed to load profile", "error", err, "user", userID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load profile")
		return
	}

	switch r.Method {
	case http.MethodGet:
		resp := map[string]any{"user": projectUser(user)}
		if user.Personnel != nil {
			resp["personnel"] = user.Personnel
		}
		writeJSON(w, http.StatusOK, resp)

	case http.MethodPut:
		var payload struct {
			PersonnelName *string `json:"personnel_name"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request payload")
			return
		}
		if payload.PersonnelName == nil {
			writeJSONError(w, http.StatusBadRequest, "nothing to update")
			return
		}
		name := strings.TrimSpace(*payload.PersonnelName)
		if len(name) < 2 {
			writeJSONError(w, http.StatusBadRequest, "personnel name must have at least 2 characters")
			return
		}

		if user.Personnel == nil {
			person := models.Personnel{UserID: &user.ID, Name: name, Active: true}
			if err := database.WithContext(ctx).Create(&person).Error; err != nil {
				applog.Error(ctx, "failed to create personnel", "error", err, "user", userID)
				writeJSONError(w, http.StatusConflict, "personnel name is already taken")
				return
			}
			user.Personnel = &person
		} else if err := database.WithContext(ctx).Model(user.Personnel).Update("name", name).Error; err != nil {
			applog.Error(ctx, "failed to update personnel", "error", err, "user", userID)
			writeJSONError(w, http.StatusConflict, "personnel name is already taken")
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{"user": projectUser(user), "personnel": user.Personnel})

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// AuthChangePassword rotates the signed-in user's password.
func AuthChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	userID, ok := currentUserID(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var payload struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request payload")
		return
	}
	if len(payload.NewPassword) < minPasswordLength {
		writeJSONError(w, http.StatusBadRequest, "password must have at least 6 characters")
		return
	}

	ctx := r.Context()
	var user models.User
	if err := database.WithContext(ctx).First(&user, userID).Error; err != nil {
		applog.Error(ctx, "failed to load user for password change", "error", err, "user", userID)
		writeJSONError(w, http.StatusInternalServerError, "unable to change password")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(payload.OldPassword)); err != nil {
		writeJSONError(w, http.StatusUnauthorized, "current password is incorrect")
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(payload.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		applog.Error(ctx, "failed to hash new password", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "unable to change password")
		return
	}
	if err := database.WithContext(ctx).Model(&user).Update("password_hash", string(hashed)).Error; err != nil {
		applog.Error(ctx, "failed to store new password", "error", err, "user", userID)
		writeJSONError(w, http.StatusInternalServerError, "unable to change password")
		return
	}

	applog.Info(ctx, "password changed", "user", userID)
	writeJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

// AuthUsers handles the administrator's user management surface:
// GET /api/auth/users, POST /api/auth/users/{id}/approve|reject and
// PUT /api/auth/users/{id}/status.
func AuthUsers(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(r)
	if !ok {
		writeJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	if userID != models.AdminUserID {
		writeJSONError(w, http.StatusForbidden, "administrator access required")
		return
	}

	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/auth/users"), "/")
	ctx := r.Context()

	if path == "" {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		var users []models.User
		if err := database.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
			applog.Error(ctx, "failed to list users", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "unable to list users")
			return
		}
		responses := make([]userResponse, 0, len(users))
		for _, user := range users {
			responses = append(responses, projectUser(user))
		}
		writeJSON(w, http.StatusOK, responses)
		return
	}

	segments := strings.Split(path, "/")
	targetID, ok := parseIDSegment(segments[0])
	if !ok {
		http.NotFound(w, r)
		return
	}
	if targetID == models.AdminUserID {
		writeJSONError(w, http.StatusBadRequest, "the administrator account cannot be modified")
		return
	}

	var target models.User
	if err := database.WithContext(ctx).First(&target, targetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			http.NotFound(w, r)
			return
		}
		applog.Error(ctx, "failed to load user", "error", err, "user", targetID)
		writeJSONError(w, http.StatusInternalServerError, "unable to load user")
		return
	}

	action := ""
	if len(segments) > 1 {
		action = segments[1]
	}

	switch {
	case action == "approve" && r.Method == http.MethodPost:
		if err := database.WithContext(ctx).Model(&target).Update("active", true).Error; err != nil {
			applog.Error(ctx, "failed to approve user", "error", err, "user", targetID)
			writeJSONError(w, http.StatusInternalServerError, "unable to approve user")
			return
		}
		target.Active = true
		applog.Info(ctx, "user approved", "user", targetID, "by", userID)
		writeJSON(w, http.StatusOK, projectUser(target))

	case action == "reject" && r.Method == http.MethodPost:
		if err := database.WithContext(ctx).Unscoped().Delete(&target).Error; err != nil {
			applog.Error(ctx, "failed to reject user", "error", err, "user", targetID)
			writeJSONError(w, http.StatusInternalServerError, "unable to reject user")
			return
		}
		applog.Info(ctx, "user rejected", "user", targetID, "by", userID)
		writeJSON(w, http.StatusOK, map[string]string{"message": "registration rejected"})

	case action == "status" && r.Method == http.MethodPut:
		var payload struct {
			Active *bool `json:"is_active"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Active == nil {
			writeJSONError(w, http.StatusBadRequest, "is_active is required")
			return
		}
		if err := database.WithContext(ctx).Model(&target).Update("active", *payload.Active).Error; err != nil {
			applog.Error(ctx, "failed to update user status", "error", err, "user", targetID)
			writeJSONError(w, http.StatusInternalServerError, "unable to update user")
			return
		}
		target.Active = *payload.Active
		writeJSON(w, http.StatusOK, projectUser(target))

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
