package app

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/noteguard/noteguard/internal/auth"
	"github.com/noteguard/noteguard/internal/pipeline"
	"github.com/noteguard/noteguard/internal/platform/httpx"
	"github.com/noteguard/noteguard/internal/sessions"
	"github.com/noteguard/noteguard/internal/shared"
	"github.com/noteguard/noteguard/internal/view"
)

// pages serves the landing, account and status pages.
type pages struct {
	logger    *slog.Logger
	templates *view.Engine
	csrf      *shared.CSRFManager
	service   *auth.Service
	registry  *sessions.Registry
	guard     *pipeline.Guard
	window    int
}

func (p *pages) render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	csrfToken, _ := p.csrf.EnsureToken(r.Context(), sess)
	var flash *shared.FlashMessage
	if sess != nil {
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
	if err := p.templates.RenderStatus(w, status, page, viewData); err != nil {
		p.logger.Error("render page", slog.String("page", page), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (p *pages) status(w http.ResponseWriter, r *http.Request, page string, body httpx.StatusBody) {
	if httpx.WantsJSON(r) {
		httpx.JSON(w, body.StatusCode, body)
		return
	}
	p.render(w, r, body.StatusCode, page, http.StatusText(body.StatusCode), body)
}

func (p *pages) home(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	if id == nil {
		http.Redirect(w, r, pipeline.DefaultLoginPath, http.StatusFound)
		return
	}
	http.Redirect(w, r, auth.LandingPath(id.Role), http.StatusFound)
}

// principal loads the account of the current identity. A missing account
// ends the session.
func (p *pages) principal(w http.ResponseWriter, r *http.Request) (*auth.Principal, bool) {
	id := shared.IdentityFromContext(r.Context())
	if id == nil {
		http.Redirect(w, r, pipeline.DefaultLoginPath, http.StatusFound)
		return nil, false
	}
	principal, err := p.service.Principal(r.Context(), id.PrincipalID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			p.guard.Release(shared.SessionFromContext(r.Context()))
			http.Redirect(w, r, pipeline.DefaultLoginPath, http.StatusFound)
			return nil, false
		}
		p.logger.ErrorContext(r.Context(), "load principal", slog.Int64("principal_id", id.PrincipalID), slog.Any("error", err))
		p.serverError(w, r)
		return nil, false
	}
	return principal, true
}

func (p *pages) notes(w http.ResponseWriter, r *http.Request) {
	principal, ok := p.principal(w, r)
	if !ok {
		return
	}
	p.render(w, r, http.StatusOK, "pages/notes.html", "Notes", map[string]any{"Email": principal.Email})
}

func (p *pages) user(w http.ResponseWriter, r *http.Request) {
	principal, ok := p.principal(w, r)
	if !ok {
		return
	}
	p.render(w, r, http.StatusOK, "pages/user.html", "Account", map[string]any{
		"Email":     principal.Email,
		"Role":      string(principal.Role),
		"CreatedAt": principal.CreatedAt,
	})
}

func (p *pages) admin(w http.ResponseWriter, r *http.Request) {
	principal, ok := p.principal(w, r)
	if !ok {
		return
	}
	p.render(w, r, http.StatusOK, "pages/admin.html", "Admin", map[string]any{
		"Email":          principal.Email,
		"ActiveSessions": p.registry.Count(),
	})
}

func (p *pages) forbidden(w http.ResponseWriter, r *http.Request) {
	p.status(w, r, "pages/forbidden.html", httpx.StatusBody{
		StatusCode: http.StatusForbidden,
		Message:    pipeline.MessageForbidden,
	})
}

func (p *pages) rateLimit(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Retry-After", strconv.Itoa(p.window))
	p.status(w, r, "pages/rate-limit.html", httpx.StatusBody{
		StatusCode:        http.StatusTooManyRequests,
		Message:           pipeline.MessageTooManyRequests,
		RetryAfterSeconds: p.window,
	})
}

func (p *pages) errorPage(w http.ResponseWriter, r *http.Request) {
	p.serverError(w, r)
}

func (p *pages) serverError(w http.ResponseWriter, r *http.Request) {
	p.status(w, r, "pages/error.html", httpx.StatusBody{
		StatusCode: http.StatusInternalServerError,
		Message:    "Something went wrong. Please try again later.",
	})
}

func hello(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("OK"))
}

func echoHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = fmt.Fprintf(w, "User-Agent: %s\nAccept: %s", r.UserAgent(), r.Header.Get("Accept"))
}
