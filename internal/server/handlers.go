package server

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/fightinglucida/FastMP/pkg/credentials"
	"github.com/fightinglucida/FastMP/pkg/store"
)

type startLoginRequest struct {
	Owner string `json:"owner"`
}

// startLogin opens a QR handshake and returns the key and image. The
// image travels base64-encoded inside the JSON body.
func (s *Server) startLogin(c *gin.Context) {
	var req startLoginRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
			return
		}
	}

	result, err := s.deps.Machine.Start(c.Request.Context(), req.Owner)
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"login_key": result.LoginKey,
		"qr_image":  result.QRImage,
	})
}

// pollLogin reports one observation of the handshake. Missing or expired
// keys come back as state FAILED with a reason, not as an HTTP error.
func (s *Server) pollLogin(c *gin.Context) {
	key := c.Query("key")
	if key == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing key parameter"})
		return
	}

	result, err := s.deps.Machine.Poll(c.Request.Context(), key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	body := gin.H{"state": result.State}
	if result.QRImage != nil {
		body["qr_image"] = result.QRImage
	}
	if result.Credential != nil {
		body["credential"] = result.Credential
	}
	if result.Reason != "" {
		body["reason"] = result.Reason
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) listCredentials(c *gin.Context) {
	views, err := s.deps.Manager.List(c.Request.Context(), c.Query("owner"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"credentials": views})
}

func (s *Server) currentCredential(c *gin.Context) {
	view, err := s.deps.Manager.Current(c.Request.Context(), c.Query("owner"))
	if err != nil {
		if stderrors.Is(err, credentials.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "no current credential"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// The cookie material stays server-side.
	view.CookieMaterial = ""
	c.JSON(http.StatusOK, view)
}

type switchCredentialRequest struct {
	Owner string `json:"owner"`
	Token string `json:"token" binding:"required"`
}

func (s *Server) switchCredential(c *gin.Context) {
	var req switchCredentialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json body"})
		return
	}

	if err := s.deps.Manager.SetCurrent(c.Request.Context(), req.Owner, req.Token); err != nil {
		if stderrors.Is(err, credentials.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) revokeCredential(c *gin.Context) {
	err := s.deps.Manager.Revoke(c.Request.Context(), c.Param("token"))
	if err != nil {
		if stderrors.Is(err, credentials.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "credential not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "revoked"})
}

func (s *Server) sweepCredentials(c *gin.Context) {
	removed, err := s.deps.Scheduler.Sweep(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}

// streamSync acquires a credential, runs one sync, and streams each event
// as one newline-delimited JSON record. The connection stays open until
// the terminal Done or Error event.
func (s *Server) streamSync(c *gin.Context) {
	accountName := c.Query("account")
	if accountName == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing account parameter"})
		return
	}
	maxItems, _ := strconv.Atoi(c.DefaultQuery("max_items", "0"))

	cred, err := s.deps.Scheduler.Acquire(c.Request.Context(), c.Query("owner"))
	if err != nil {
		if stderrors.Is(err, credentials.ErrNotAvailable) {
			c.JSON(http.StatusConflict, gin.H{
				"error": "no credential available, log in to add one",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	view := credentials.ViewOf(*cred)
	if material, err := s.deps.Manager.CookieMaterial(cred.Token); err == nil {
		view.CookieMaterial = material
	}

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)

	encoder := json.NewEncoder(c.Writer)
	for event := range s.deps.Syncer.Sync(c.Request.Context(), view, accountName, maxItems) {
		if err := encoder.Encode(event); err != nil {
			return
		}
		c.Writer.Flush()
	}
}

func (s *Server) listAccounts(c *gin.Context) {
	accounts, err := s.deps.Content.ListAccounts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"accounts": accounts})
}

func (s *Server) listArticles(c *gin.Context) {
	name := c.Param("name")
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	if _, err := s.deps.Content.GetAccount(c.Request.Context(), name); err != nil {
		if stderrors.Is(err, store.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	articles, err := s.deps.Content.ListArticles(c.Request.Context(), name, offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"articles": articles, "offset": offset, "limit": limit})
}

func (s *Server) deleteAccount(c *gin.Context) {
	err := s.deps.Content.DeleteAccount(c.Request.Context(), c.Param("name"))
	if err != nil {
		if stderrors.Is(err, store.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

func (s *Server) deleteArticle(c *gin.Context) {
	url := c.Query("url")
	if url == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing url parameter"})
		return
	}
	if err := s.deps.Content.DeleteArticle(c.Request.Context(), url); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "article not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
