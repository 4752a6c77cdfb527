package auth

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/noteguard/noteguard/internal/password"
	"github.com/noteguard/noteguard/internal/platform/httpx"
	"github.com/noteguard/noteguard/internal/rbac"
	"github.com/noteguard/noteguard/internal/shared"
	"github.com/noteguard/noteguard/internal/view"
)

// SessionBinder ties authenticated principals to transport sessions.
type SessionBinder interface {
	Establish(ctx context.Context, sess *shared.Session, principalID int64, role rbac.Role) (replaced, evicted string, err error)
	Release(sess *shared.Session)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	templates      *view.Engine
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	binder         SessionBinder
	audit          *shared.AuditLogger
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance. audit may be nil.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager, binder SessionBinder, audit *shared.AuditLogger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		templates:      templates,
		sessionManager: sessions,
		csrfManager:    csrf,
		binder:         binder,
		audit:          audit,
		validator:      validator.New(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/login", h.showLogin)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.Get("/register", h.showRegister)
	r.Post("/register", h.handleRegister)
}

// LandingPath returns where a principal lands after logging in.
func LandingPath(role rbac.Role) string {
	if role == rbac.RoleAdmin {
		return "/admin"
	}
	return "/notes"
}

const (
	msgInvalidCredentials = "Invalid email or password"
	msgEmailTaken         = "An account with this email already exists"
	msgLoggedOut          = "You have been logged out."
	msgWelcome            = "Welcome back"
	msgRegistered         = "Registration successful. Please log in."
)

type loginForm struct {
	Email    string `validate:"required,email"`
	Password string `validate:"required"`
}

type registerForm struct {
	Email    string `validate:"required,email,max=254"`
	Password string `validate:"required"`
}

type formPageData[F any] struct {
	Form   F
	Errors map[string]string
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	var flash *shared.FlashMessage
	if r.URL.Query().Has("logout") {
		flash = &shared.FlashMessage{Kind: "success", Message: msgLoggedOut}
	}
	h.renderForm(w, r, http.StatusOK, "pages/login.html", "Log in", flash, formPageData[loginForm]{}, sess)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	if sess == nil {
		h.logger.Error("session missing during login")
		h.fail(w, r, errors.New("session missing"))
		return
	}

	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	fieldErrors := h.validateForm(form)
	status := http.StatusBadRequest
	if len(fieldErrors) == 0 {
		principal, err := h.service.Authenticate(ctx, form.Email, form.Password)
		switch {
		case errors.Is(err, shared.ErrInvalidCredentials):
			status = http.StatusUnauthorized
			fieldErrors["general"] = msgInvalidCredentials
			h.record(ctx, shared.AuditLog{
				Action:   shared.AuditLoginFailed,
				ClientIP: clientIP(r),
				Meta:     map[string]any{"email": NormalizeEmail(form.Email)},
			})
		case err != nil:
			h.logger.ErrorContext(ctx, "authenticate", slog.Any("error", err))
			h.fail(w, r, err)
			return
		default:
			h.completeLogin(w, r, sess, principal)
			return
		}
	}

	form.Password = ""
	data := formPageData[loginForm]{Form: form, Errors: fieldErrors}
	h.renderForm(w, r, status, "pages/login.html", "Log in", nil, data, sess)
}

func (h *Handler) completeLogin(w http.ResponseWriter, r *http.Request, sess *shared.Session, principal *Principal) {
	ctx := r.Context()
	replaced, evicted, err := h.binder.Establish(ctx, sess, principal.ID, principal.Role)
	if err != nil {
		h.logger.WarnContext(ctx, "establish session", slog.Any("error", err))
	}
	if replaced != "" {
		if err := h.service.RemoveSession(ctx, replaced); err != nil {
			h.logger.WarnContext(ctx, "remove replaced session", slog.Any("error", err))
		}
	}
	if evicted != "" {
		if err := h.service.RemoveSession(ctx, evicted); err != nil {
			h.logger.WarnContext(ctx, "remove displaced session", slog.Any("error", err))
		}
		h.record(ctx, shared.AuditLog{
			ActorID:  principal.ID,
			Action:   shared.AuditSessionEvicted,
			ClientIP: clientIP(r),
		})
	}
	h.csrfManager.Rotate(sess)

	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(ctx, sess.ID, principal.ID, expiresAt, clientIP(r), r.UserAgent()); err != nil {
		h.logger.WarnContext(ctx, "register session", slog.Any("error", err))
	}
	h.record(ctx, shared.AuditLog{
		ActorID:  principal.ID,
		Action:   shared.AuditLogin,
		ClientIP: clientIP(r),
		Meta:     map[string]any{"role": string(principal.Role)},
	})
	sess.AddFlash(shared.FlashMessage{Kind: "success", Message: msgWelcome})
	http.Redirect(w, r, LandingPath(principal.Role), http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)
	if sess != nil {
		if err := h.service.RemoveSession(ctx, sess.ID); err != nil {
			h.logger.WarnContext(ctx, "remove session", slog.Any("error", err))
		}
		if id := shared.IdentityFromContext(ctx); id != nil {
			h.record(ctx, shared.AuditLog{ActorID: id.PrincipalID, Action: shared.AuditLogout, ClientIP: clientIP(r)})
		}
		h.binder.Release(sess)
	}
	http.Redirect(w, r, "/login?logout", http.StatusSeeOther)
}

func (h *Handler) showRegister(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	h.renderForm(w, r, http.StatusOK, "pages/register.html", "Register", nil, formPageData[registerForm]{}, sess)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	sess := shared.SessionFromContext(ctx)

	form := registerForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	fieldErrors := h.validateForm(form)
	status := http.StatusBadRequest
	if len(fieldErrors) == 0 {
		principal, err := h.service.Register(ctx, form.Email, form.Password)
		var violation *password.Violation
		switch {
		case errors.As(err, &violation):
			fieldErrors["Password"] = violation.Message
		case errors.Is(err, shared.ErrEmailTaken):
			status = http.StatusConflict
			fieldErrors["Email"] = msgEmailTaken
		case err != nil:
			h.logger.ErrorContext(ctx, "register principal", slog.Any("error", err))
			h.fail(w, r, err)
			return
		default:
			h.record(ctx, shared.AuditLog{ActorID: principal.ID, Action: shared.AuditRegistered, ClientIP: clientIP(r)})
			if sess != nil {
				sess.AddFlash(shared.FlashMessage{Kind: "success", Message: msgRegistered})
			}
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}
	}

	form.Password = ""
	data := formPageData[registerForm]{Form: form, Errors: fieldErrors}
	h.renderForm(w, r, status, "pages/register.html", "Register", nil, data, sess)
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, page, title string, flash *shared.FlashMessage, data any, sess *shared.Session) {
	csrfToken, _ := h.csrfManager.EnsureToken(r.Context(), sess)
	if flash == nil && sess != nil {
		flash = sess.PopFlash()
	}
	viewData := view.TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Identity:    shared.IdentityFromContext(r.Context()),
		Data:        data,
	}
	if err := h.templates.RenderStatus(w, status, page, viewData); err != nil {
		h.logger.Error("render page", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// fail reports a collaborator failure as a generic 500.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if httpx.WantsJSON(r) {
		httpx.RespondError(w, err)
		return
	}
	body := httpx.StatusBody{
		StatusCode: http.StatusInternalServerError,
		Message:    "Something went wrong. Please try again later.",
	}
	data := view.TemplateData{Title: "Error", CurrentPath: r.URL.Path, Data: body}
	if renderErr := h.templates.RenderStatus(w, body.StatusCode, "pages/error.html", data); renderErr != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) validateForm(form any) map[string]string {
	fieldErrors := make(map[string]string)
	err := h.validator.Struct(form)
	if err == nil {
		return fieldErrors
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		fieldErrors["general"] = "Invalid form submission"
		return fieldErrors
	}
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			fieldErrors[fe.Field()] = "This field is required"
		case "email":
			fieldErrors[fe.Field()] = "Enter a valid email address"
		case "max":
			fieldErrors[fe.Field()] = "Value is too long"
		default:
			fieldErrors[fe.Field()] = fe.Error()
		}
	}
	return fieldErrors
}

func (h *Handler) record(ctx context.Context, entry shared.AuditLog) {
	if err := h.audit.Record(ctx, entry); err != nil {
		h.logger.WarnContext(ctx, "audit log", slog.String("action", entry.Action), slog.Any("error", err))
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
