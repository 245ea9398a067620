package handlers

import (
	"math/rand/v2"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/julienbonastre/fullstock/internal/mercadolivre"
	"github.com/julienbonastre/fullstock/internal/middleware"
	"github.com/julienbonastre/fullstock/pkg/apierror"
)

// GetAuthURL starts a Mercado Livre authorization for the current browser
// session and returns the URL to send the user to
func (h *Handler) GetAuthURL(w http.ResponseWriter, r *http.Request) {
	if h.demoMode() {
		jsonResponse(w, http.StatusOK, map[string]any{"demo": true})
		return
	}

	userID := middleware.GetUserID(r.Context())
	sess, _ := h.sessions.Get(r, sessionName)
	sess.Values["user_id"] = userID
	if err := sess.Save(r, w); err != nil {
		h.writeError(w, r, err)
		return
	}

	authURL, err := h.connector.Begin(r.Context(), sess.ID, h.cfg.App.PublicOrigin)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{"url": authURL})
}

// OAuthCallback handles the OAuth callback
func (h *Handler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	state := r.URL.Query().Get("state")
	errParam := r.URL.Query().Get("error")

	log := h.log.With(zap.String("request_id", middleware.GetRequestID(r.Context())))
	log.Info("oauth callback received", zap.Bool("has_code", code != ""), zap.String("error", errParam))

	if errParam != "" {
		desc := r.URL.Query().Get("error_description")
		if desc == "" {
			desc = errParam
		}
		redirectAuthError(w, r, "Mercado Livre authorization failed: "+desc)
		return
	}
	if code == "" {
		redirectAuthError(w, r, "Missing authorization code")
		return
	}

	sess, _ := h.sessions.Get(r, sessionName)
	userID, _ := sess.Values["user_id"].(string)
	if sess.IsNew || userID == "" {
		redirectAuthError(w, r, toAPIError(mercadolivre.ErrVerifierNotFound).Message)
		return
	}

	if _, err := h.connector.Complete(r.Context(), sess.ID, userID, code, state); err != nil {
		log.Warn("oauth exchange failed", zap.String("user_id", userID), zap.Error(err))
		redirectAuthError(w, r, toAPIError(err).Message)
		return
	}

	// Redirect to the main app
	http.Redirect(w, r, "/?auth=success", http.StatusFound)
}

func redirectAuthError(w http.ResponseWriter, r *http.Request, message string) {
	http.Redirect(w, r, "/?auth=error&message="+url.QueryEscape(message), http.StatusFound)
}

// GetAuthStatus returns the connection state of the current user
func (h *Handler) GetAuthStatus(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	cred, err := h.db.GetCredential(r.Context(), userID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"connected":  cred.Connected(),
		"ml_user_id": cred.MarketplaceUserID,
		"demo":       cred.AccessToken == mercadolivre.MockToken,
		"configured": h.ml.IsConfigured(),
	})
}

// Logout disconnects the Mercado Livre account of the current user
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.connector.Disconnect(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}
	jsonResponse(w, http.StatusOK, map[string]any{"connected": false})
}

// ConnectDemo connects the current user with the demo token and seeds a
// sample catalogue
func (h *Handler) ConnectDemo(w http.ResponseWriter, r *http.Request) {
	if !h.demoMode() {
		apierror.BadRequest("Demo mode is only available when Mercado Livre is not configured").Write(w)
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.connector.ConnectDemo(r.Context(), userID); err != nil {
		h.writeError(w, r, err)
		return
	}

	rng := rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	seeded, err := h.db.SeedDemoProducts(r.Context(), userID, h.now(), rng)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"connected": true,
		"demo":      true,
		"seeded":    seeded,
	})
}
