// Package http exposes the protocol endpoints and the local management
// API over HTTP.
package http

import (
	"context"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/dfrnproto/dfrnd/internal/errs"
	"github.com/dfrnproto/dfrnd/internal/model"
	"github.com/dfrnproto/dfrnd/internal/repository"
	"github.com/dfrnproto/dfrnd/internal/service"
	"github.com/dfrnproto/dfrnd/internal/session"
)

// RequestPhase is the request-phase surface the handlers call.
type RequestPhase interface {
	Initiate(ctx context.Context, userID uuid.UUID, target, note string, duplex bool) (string, error)
	HandleInbound(ctx context.Context, nickname string, in service.InboundRequest) (*service.InboundResult, error)
	AckConfirmKey(ctx context.Context, confirmKey string) error
}

// ConfirmPhase is the confirm-phase surface the handlers call.
type ConfirmPhase interface {
	Approve(ctx context.Context, p service.ApproveParams) (*service.ConfirmOutcome, error)
	Handshake(ctx context.Context, p service.HandshakeParams) *service.ConfirmOutcome
}

// PollPhase is the poll-phase surface the handlers call.
type PollPhase interface {
	IssueChallenge(ctx context.Context, wireID string, typ model.ChallengeType, lastUpdate string) (*service.PollReply, error)
	ServeData(ctx context.Context, wireID, nonce string) ([]byte, error)
	VerifyProfileCheck(ctx context.Context, wireID, nonce, sec string) (*service.VisitorGrant, error)
}

// Server wires the three phases to their HTTP endpoints.
type Server struct {
	request  RequestPhase
	confirm  ConfirmPhase
	poll     PollPhase
	users    repository.UserStore
	sessions *session.Manager
	baseURL  string
	log      *zap.Logger
}

// New constructs the HTTP server. baseURL is this node's externally
// visible origin, used when rendering profile descriptors.
func New(request RequestPhase, confirm ConfirmPhase, poll PollPhase, users repository.UserStore, sessions *session.Manager, baseURL string, log *zap.Logger) *Server {
	return &Server{
		request: request, confirm: confirm, poll: poll,
		users: users, sessions: sessions, baseURL: baseURL, log: log,
	}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(Recovery(s.log), Logging(s.log))

	r.GET("/profile/:nickname", s.handleProfile)
	r.GET("/dfrn_request/:nickname", s.handleRequest)
	r.POST("/dfrn_request/:nickname", s.handleRequest)
	r.POST("/dfrn_confirm", s.handleConfirm)
	r.GET("/dfrn_poll/:nickname", s.handlePollChallenge)
	r.POST("/dfrn_poll/:nickname", s.handlePollAnswer)
	r.GET("/visitor", VisitorAuth(s.sessions), s.handleVisitor)

	api := r.Group("/api/:nickname")
	api.POST("/request", s.handleAPIRequest)
	api.POST("/approve", s.handleAPIApprove)
	return r
}

var profileTmpl = template.Must(template.New("profile").Parse(`<!DOCTYPE html>
<html>
<head>
<title>{{.Name}}</title>
<link rel="dfrn-request" href="{{.Base}}/dfrn_request/{{.Nick}}">
<link rel="dfrn-confirm" href="{{.Base}}/dfrn_confirm">
<link rel="dfrn-notify" href="{{.Base}}/dfrn_notify/{{.Nick}}">
<link rel="dfrn-poll" href="{{.Base}}/dfrn_poll/{{.Nick}}">
<meta name="dfrn-name" content="{{.Name}}">
<meta name="dfrn-nick" content="{{.Nick}}">
<meta name="dfrn-photo" content="{{.Photo}}">
<meta name="dfrn-addr" content="{{.Addr}}">
<meta name="dfrn-key" content="{{.Key}}">
</head>
<body><h1>{{.Name}}</h1></body>
</html>
`))

// handleProfile serves the machine-readable profile descriptor that
// counterpart nodes probe before a request.
func (s *Server) handleProfile(c *gin.Context) {
	user, err := s.users.GetByNickname(c.Request.Context(), c.Param("nickname"))
	if err != nil {
		c.String(http.StatusNotFound, "no such profile")
		return
	}
	c.Header("Content-Type", "text/html; charset=utf-8")
	host := hostOf(s.baseURL)
	_ = profileTmpl.Execute(c.Writer, map[string]string{
		"Base":  s.baseURL,
		"Name":  user.Name,
		"Nick":  user.Nickname,
		"Photo": user.Photo,
		"Addr":  user.Nickname + "@" + host,
		"Key":   user.PubKey,
	})
}

// handleRequest is the target-side request endpoint. Two shapes arrive
// here: the loop-closing callback carrying only a confirm key, and the
// homecoming redirect carrying the requestor's identity.
func (s *Server) handleRequest(c *gin.Context) {
	ctx := c.Request.Context()
	dfrnURL := c.Query("dfrn_url")
	if dfrnURL == "" {
		dfrnURL = c.PostForm("dfrn_url")
	}

	if dfrnURL == "" {
		if key := param(c, "confirm_key"); key != "" {
			if err := s.request.AckConfirmKey(ctx, key); err != nil {
				c.String(http.StatusNotFound, "unknown confirm key")
				return
			}
			c.String(http.StatusOK, "ok")
			return
		}
		c.String(http.StatusBadRequest, "missing dfrn_url")
		return
	}

	res, err := s.request.HandleInbound(ctx, c.Param("nickname"), service.InboundRequest{
		DFRNURLHex: dfrnURL,
		ConfirmKey: param(c, "confirm_key"),
		Duplex:     param(c, "duplex") == "1",
		AESAllow:   param(c, "aes_allow") == "1",
		Note:       param(c, "note"),
	})
	if err != nil {
		status, msg := requestErrStatus(err)
		c.String(status, msg)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"intro_id":      res.IntroID.String(),
		"auto_approved": res.AutoApproved,
	})
}

// handleConfirm dispatches the shared confirm endpoint: a counterpart's
// handshake POST carries source_url; the local approval form does not.
func (s *Server) handleConfirm(c *gin.Context) {
	ctx := c.Request.Context()
	if c.PostForm("source_url") != "" {
		page, _ := strconv.Atoi(c.PostForm("page"))
		out := s.confirm.Handshake(ctx, service.HandshakeParams{
			Node:         c.PostForm("node"),
			DFRNIDHex:    c.PostForm("dfrn_id"),
			SourceURLHex: c.PostForm("source_url"),
			PublicKey:    c.PostForm("public_key"),
			AESKeyHex:    c.PostForm("aes_key"),
			Duplex:       c.PostForm("duplex") == "1",
			Page:         page,
		})
		c.XML(http.StatusOK, &service.ConfirmReply{Status: int(out.Status), Message: out.Message})
		return
	}

	contactID, err := uuid.FromString(c.PostForm("contact_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact_id"})
		return
	}
	user, err := s.users.GetByNickname(ctx, c.PostForm("node"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such user"})
		return
	}
	out, err := s.confirm.Approve(ctx, service.ApproveParams{
		UserID:    user.ID,
		ContactID: contactID,
		Duplex:    c.PostForm("duplex") == "1",
		Hidden:    c.PostForm("hidden") == "1",
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   int(out.Status),
		"message":  out.Message,
		"relation": out.NewRel.String(),
	})
}

// handlePollChallenge answers the first half of a poll round-trip.
func (s *Server) handlePollChallenge(c *gin.Context) {
	typ := model.ChallengeType(c.DefaultQuery("type", string(model.ChallengeData)))
	reply, err := s.poll.IssueChallenge(c.Request.Context(), c.Query("dfrn_id"), typ, c.Query("last_update"))
	if err != nil {
		c.XML(http.StatusOK, &service.PollReply{Status: 1, Version: service.DFRNVersion})
		return
	}
	c.XML(http.StatusOK, reply)
}

// handlePollAnswer answers the second half: a data poll streams the
// feed, a profile check opens a visitor session.
func (s *Server) handlePollAnswer(c *gin.Context) {
	ctx := c.Request.Context()
	wireID := c.PostForm("dfrn_id")
	nonce := c.PostForm("challenge")
	typ := model.ChallengeType(c.PostForm("type"))
	if typ == "" {
		typ = model.ChallengeData
	}

	switch typ {
	case model.ChallengeProfile, model.ChallengeProfileCheck:
		grant, err := s.poll.VerifyProfileCheck(ctx, wireID, nonce, c.PostForm("sec"))
		if err != nil {
			c.XML(http.StatusOK, &service.PollReply{Status: 1, Version: service.DFRNVersion})
			return
		}
		c.SetCookie("dfrn_visitor", grant.Token, int(time.Until(grant.ExpiresAt).Seconds()), "/", "", true, true)
		c.XML(http.StatusOK, &service.PollReply{
			Status:  0,
			Version: service.DFRNVersion,
			SEC:     grant.Sec,
		})
	default:
		feed, err := s.poll.ServeData(ctx, wireID, nonce)
		if err != nil {
			c.XML(http.StatusOK, &service.PollReply{Status: 1, Version: service.DFRNVersion})
			return
		}
		c.Data(http.StatusOK, "application/atom+xml; charset=utf-8", feed)
	}
}

// handleVisitor reports the identity behind a visitor session, letting a
// counterpart node confirm the cookie it obtained still works.
func (s *Server) handleVisitor(c *gin.Context) {
	contactID := c.MustGet(ctxContactID).(uuid.UUID)
	perm := c.MustGet(ctxPerm).(session.Perm)
	c.JSON(http.StatusOK, gin.H{
		"contact_id": contactID.String(),
		"perm":       string(perm),
	})
}

// handleAPIRequest starts scenario 1 for a local user and hands the
// redirect URL back to the caller's browser.
func (s *Server) handleAPIRequest(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := s.users.GetByNickname(ctx, c.Param("nickname"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such user"})
		return
	}
	var req struct {
		Target string `json:"target" binding:"required"`
		Note   string `json:"note"`
		Duplex bool   `json:"duplex"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	redirect, err := s.request.Initiate(ctx, user.ID, req.Target, req.Note, req.Duplex)
	if err != nil {
		status, msg := requestErrStatus(err)
		c.JSON(status, gin.H{"error": msg})
		return
	}
	c.JSON(http.StatusOK, gin.H{"redirect_url": redirect})
}

// handleAPIApprove approves a pending intro for a local user.
func (s *Server) handleAPIApprove(c *gin.Context) {
	ctx := c.Request.Context()
	user, err := s.users.GetByNickname(ctx, c.Param("nickname"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no such user"})
		return
	}
	var req struct {
		ContactID string `json:"contact_id"`
		IssuedID  string `json:"issued_id"`
		Duplex    bool   `json:"duplex"`
		Hidden    bool   `json:"hidden"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.ContactID == "" && req.IssuedID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "need contact_id or issued_id"})
		return
	}
	var contactID uuid.UUID
	if req.ContactID != "" {
		if contactID, err = uuid.FromString(req.ContactID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid contact_id"})
			return
		}
	}
	out, err := s.confirm.Approve(ctx, service.ApproveParams{
		UserID:    user.ID,
		ContactID: contactID,
		IssuedID:  req.IssuedID,
		Duplex:    req.Duplex,
		Hidden:    req.Hidden,
	})
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "contact not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   int(out.Status),
		"message":  out.Message,
		"relation": out.NewRel.String(),
	})
}

// param reads a field from either the query string or the form body, in
// that order. The homecoming redirect arrives as a GET, counterpart
// servers POST the same fields.
func param(c *gin.Context, name string) string {
	if v := c.Query(name); v != "" {
		return v
	}
	return c.PostForm(name)
}

func requestErrStatus(err error) (int, string) {
	switch {
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, "too many requests for this profile"
	case errors.Is(err, errs.ErrAlreadyFriends):
		return http.StatusConflict, "already connected"
	case errors.Is(err, errs.ErrAlreadyRequested):
		return http.StatusConflict, "request already pending"
	case errors.Is(err, errs.ErrBlockedDomain), errors.Is(err, errs.ErrDisallowedURL):
		return http.StatusForbidden, "profile location not permitted"
	case errors.Is(err, errs.ErrEmptySourceURL):
		return http.StatusBadRequest, "malformed requestor url"
	case errors.Is(err, errs.ErrProfileInvalid):
		return http.StatusBadGateway, "profile could not be verified"
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, "not found"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func hostOf(baseURL string) string {
	h := baseURL
	for _, p := range []string{"https://", "http://"} {
		if len(h) > len(p) && h[:len(p)] == p {
			h = h[len(p):]
		}
	}
	return h
}
