package pipeline

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/noteguard/noteguard/internal/platform/httpx"
	"github.com/noteguard/noteguard/internal/shared"
	"github.com/noteguard/noteguard/internal/view"
)

// Throttling rejects rate-limited credential submissions. It must run
// before the session middleware so a throttled request neither loads nor
// writes a session.
func (g *Guard) Throttling(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := ClientKey(r)
		d := g.Throttle(r.Method, r.URL.Path, key, g.now())
		if d.Terminal() {
			g.observe(d)
			g.logger.Warn("credential submission throttled",
				slog.String("client", key),
				slog.String("path", r.URL.Path),
				slog.Int("retry_after", d.RetryAfterSeconds()))
			g.Respond(w, r, d)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Admission resolves the session principal and applies the authorization
// engine. Allowed requests carry the identity in their context.
func (g *Guard) Admission(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var id *shared.Identity
		if sess := shared.SessionFromContext(r.Context()); sess != nil {
			id = g.Resolve(sess, g.now())
		}
		d := g.Admit(r.URL.Path, id)
		g.observe(d)
		if d.Terminal() {
			if d.Outcome == OutcomeForbidden {
				g.logger.Info("access denied", slog.String("path", r.URL.Path), slog.String("reason", d.Reason))
			}
			g.Respond(w, r, d)
			return
		}
		ctx := r.Context()
		if id != nil {
			ctx = shared.ContextWithIdentity(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Respond writes the HTTP rendering of a terminal decision.
func (g *Guard) Respond(w http.ResponseWriter, r *http.Request, d Decision) {
	switch d.Outcome {
	case OutcomeTooManyRequests:
		secs := d.RetryAfterSeconds()
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		g.writeStatus(w, r, "pages/rate-limit.html", httpx.StatusBody{
			StatusCode:        http.StatusTooManyRequests,
			Message:           MessageTooManyRequests,
			RetryAfterSeconds: secs,
		})
	case OutcomeRedirectToLogin:
		http.Redirect(w, r, g.loginPath, http.StatusFound)
	case OutcomeForbidden:
		g.writeStatus(w, r, "pages/forbidden.html", httpx.StatusBody{
			StatusCode: http.StatusForbidden,
			Message:    MessageForbidden,
		})
	}
}

func (g *Guard) writeStatus(w http.ResponseWriter, r *http.Request, page string, body httpx.StatusBody) {
	if g.templates == nil || httpx.WantsJSON(r) {
		httpx.JSON(w, body.StatusCode, body)
		return
	}
	data := view.TemplateData{
		Title:       http.StatusText(body.StatusCode),
		CurrentPath: r.URL.Path,
		Data:        body,
	}
	if err := g.templates.RenderStatus(w, body.StatusCode, page, data); err != nil {
		g.logger.Error("render status page", slog.String("page", page), slog.Any("error", err))
		httpx.JSON(w, body.StatusCode, body)
	}
}
