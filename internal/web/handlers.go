package web

import (
	"database/sql"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/herd/internal/account"
	"github.com/hpungsan/herd/internal/campaign"
	"github.com/hpungsan/herd/internal/config"
	"github.com/hpungsan/herd/internal/errors"
	"github.com/hpungsan/herd/internal/ops"
	"github.com/hpungsan/herd/internal/sink"
)

// refreshSeconds is how often a running campaign's page reloads.
const refreshSeconds = 2

// Handlers contains HTTP route handlers for the dashboard.
type Handlers struct {
	db       *sql.DB
	cfg      *config.Config
	manager  *campaign.Manager
	board    *sink.Board
	renderer *Renderer
}

// HandleList handles GET /campaigns: list campaigns with the start form.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	owner := ownerParam(r)
	items := h.manager.List(owner)

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]any{"items": items})
		return
	}

	h.renderer.renderPage(w, r, "list", ListPageData{
		PageData: h.page("Campaigns", "campaigns", owner),
		Items:    items,
		Features: campaign.Features,
	})
}

// HandleStart handles POST /campaigns: start a campaign from the form.
func (h *Handlers) HandleStart(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("invalid form data"))
		return
	}

	handle, err := h.manager.Start(r.Context(), campaign.StartInput{
		Owner:         r.FormValue("owner"),
		Feature:       campaign.Feature(r.FormValue("feature")),
		Message:       r.FormValue("message"),
		SingleAccount: formBool(r, "single_account"),
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	target := "/campaigns/" + handle.ID()
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusCreated, handle.State().Snapshot())
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleDetail handles GET /campaigns/{id}: live progress of one campaign.
func (h *Handlers) HandleDetail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := h.manager.Get(id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, snap)
		return
	}

	data := DetailPageData{
		PageData: h.page(snap.Feature.Title(), "campaigns", snap.Owner),
		Campaign: snap,
	}
	if msg, ok := h.progress(snap); ok {
		data.RenderedHTML = renderMarkdown(msg)
	}
	if snap.FinishedAt == nil {
		data.Refresh = refreshSeconds
	}
	h.renderer.renderPage(w, r, "detail", data)
}

// HandleStop handles POST /campaigns/{id}/stop: request a campaign to stop.
func (h *Handlers) HandleStop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	handle, err := h.manager.StopByID(id)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	target := "/campaigns/" + id
	if r.Header.Get("HX-Request") == "true" {
		w.Header().Set("HX-Redirect", target)
		w.WriteHeader(http.StatusOK)
		return
	}
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, handle.State().Snapshot())
		return
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// HandleTokens handles GET /tokens: the owner's tokens with masked values.
func (h *Handlers) HandleTokens(w http.ResponseWriter, r *http.Request) {
	owner := account.NormalizeOwner(r.URL.Query().Get("owner"))
	result, err := ops.ListTokens(r.Context(), h.db, owner)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, result)
		return
	}

	h.renderer.renderPage(w, r, "tokens", TokensPageData{
		PageData: h.page("Tokens", "tokens", owner),
		Items:    result.Items,
		Active:   result.Active,
	})
}

// progress returns the campaign's current progress message.
func (h *Handlers) progress(snap campaign.Snapshot) (string, bool) {
	if h.board == nil || snap.MessageHandle == "" {
		return "", false
	}
	msg, ok := h.board.Get(snap.MessageHandle)
	if !ok {
		return "", false
	}
	return msg.Text, true
}

func (h *Handlers) page(title, nav, owner string) PageData {
	return PageData{
		Title:   title,
		Version: h.renderer.version,
		Nav:     nav,
		Owner:   owner,
	}
}

// ownerParam returns the normalized owner query parameter, or "" for all owners.
func ownerParam(r *http.Request) string {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		return ""
	}
	return account.NormalizeOwner(owner)
}

// formBool parses a checkbox or boolean form value.
func formBool(r *http.Request, name string) bool {
	s := r.FormValue(name)
	return s == "on" || s == "true" || s == "1"
}

// ownerQuery builds the query string that keeps the owner filter across links.
func ownerQuery(owner string) string {
	if owner == "" {
		return ""
	}
	return "?" + url.Values{"owner": {owner}}.Encode()
}
