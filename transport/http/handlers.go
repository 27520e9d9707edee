package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/openscholar/veritas/core"
	"github.com/openscholar/veritas/service"
)

// Handlers contains the HTTP handlers for the trust core endpoints.
type Handlers struct {
	auth        *service.AuthService
	credentials *service.CredentialService
}

// NewHandlers creates the handler set.
func NewHandlers(auth *service.AuthService, credentials *service.CredentialService) *Handlers {
	return &Handlers{auth: auth, credentials: credentials}
}

// Challenge handles challenge issuance.
func (h *Handlers) Challenge(c *gin.Context) {
	var req struct {
		WalletAddress string `json:"walletAddress" binding:"required"`
		DID           string `json:"did" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "walletAddress and did are required"})
		return
	}

	issued, err := h.auth.IssueChallenge(c.Request.Context(), req.WalletAddress, req.DID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, issued)
}

// Verify handles challenge verification and session issuance.
func (h *Handlers) Verify(c *gin.Context) {
	var req struct {
		WalletAddress    string `json:"walletAddress" binding:"required"`
		DID              string `json:"did" binding:"required"`
		Nonce            string `json:"nonce" binding:"required"`
		Signature        string `json:"signature" binding:"required"`
		ExpiresInSeconds int64  `json:"expiresInSeconds"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "walletAddress, did, nonce and signature are required"})
		return
	}

	session, err := h.auth.VerifyAndIssueSession(c.Request.Context(), service.VerifyRequest{
		WalletAddress:    req.WalletAddress,
		DID:              req.DID,
		Nonce:            req.Nonce,
		Signature:        req.Signature,
		ExpiresInSeconds: req.ExpiresInSeconds,
		IPAddress:        c.ClientIP(),
		UserAgent:        c.Request.UserAgent(),
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// Logout revokes all sessions for the supplied token.
func (h *Handlers) Logout(c *gin.Context) {
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}

	if err := h.auth.RevokeSession(c.Request.Context(), req.Token); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Session returns the introspected session set by the auth middleware.
func (h *Handlers) Session(c *gin.Context) {
	session := sessionFromContext(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.auth.GetUser(c.Request.Context(), session.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"userId":     session.UserID,
		"nonce":      session.Nonce,
		"issuedAt":   session.IssuedAt,
		"expiresAt":  session.ExpiresAt,
		"lastUsedAt": session.LastUsedAt,
		"user":       user,
	})
}

// ListCredentials returns a user's credentials with decrypted metadata.
// The authenticated session must belong to the requested user.
func (h *Handlers) ListCredentials(c *gin.Context) {
	userID := c.Param("id")

	session := sessionFromContext(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	if session.UserID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": core.ErrSessionOwner.Error()})
		return
	}

	views, err := h.credentials.ListCredentials(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"credentials": views})
}

// SubmitCredential runs the credential verification pipeline. A session
// token is optional; when supplied it must belong to the submitting user,
// be valid, and (if challengeNonce is also supplied) trace back to that
// challenge.
func (h *Handlers) SubmitCredential(c *gin.Context) {
	var req struct {
		UserID          string          `json:"userId" binding:"required"`
		WalletAddress   string          `json:"walletAddress" binding:"required"`
		DID             string          `json:"did" binding:"required"`
		Credential      json.RawMessage `json:"credential" binding:"required"`
		IssuerAllowList []string        `json:"issuerAllowList"`
		ExpectedTypes   []string        `json:"expectedTypes"`
		SessionToken    string          `json:"sessionToken"`
		ChallengeNonce  string          `json:"challengeNonce"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId, walletAddress, did and credential are required"})
		return
	}

	if req.SessionToken != "" {
		session, err := h.auth.ValidateSession(c.Request.Context(), req.SessionToken)
		if err != nil {
			respondError(c, err)
			return
		}
		if session.UserID != req.UserID {
			c.JSON(http.StatusForbidden, gin.H{"error": core.ErrSessionOwner.Error()})
			return
		}
		if req.ChallengeNonce != "" && session.Nonce != req.ChallengeNonce {
			c.JSON(http.StatusForbidden, gin.H{"error": "session does not trace back to supplied challenge"})
			return
		}
	}

	cred, err := h.credentials.VerifyAndStoreCredential(c.Request.Context(), service.SubmitRequest{
		UserID:          req.UserID,
		WalletAddress:   req.WalletAddress,
		DID:             req.DID,
		Credential:      req.Credential,
		IssuerAllowList: req.IssuerAllowList,
		ExpectedTypes:   req.ExpectedTypes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, cred)
}

// Healthz is the load-balancer liveness probe.
func (h *Handlers) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// respondError maps domain errors onto the HTTP status taxonomy.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	switch {
	case core.IsVerificationError(err):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, core.ErrChallengeNotFound),
		errors.Is(err, core.ErrUserNotFound),
		errors.Is(err, core.ErrSessionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrChallengeExpired):
		status = http.StatusGone
	case errors.Is(err, core.ErrChallengeConsumed):
		status = http.StatusConflict
	case errors.Is(err, core.ErrInvalidAddress),
		errors.Is(err, core.ErrInvalidDID),
		errors.Is(err, core.ErrAddressMismatch),
		errors.Is(err, core.ErrDIDMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, core.ErrInvalidSignature),
		errors.Is(err, core.ErrSessionExpired),
		errors.Is(err, core.ErrSessionRevoked):
		status = http.StatusUnauthorized
	case errors.Is(err, core.ErrSessionOwner):
		status = http.StatusForbidden
	}

	c.JSON(status, gin.H{"error": err.Error()})
}
