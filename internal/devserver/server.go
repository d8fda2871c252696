// Package devserver is a small in-memory implementation of the REST backend the
// client talks to. It serves the CLI in development and the integration tests.
package devserver

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/go-session-client/internal/errors"
	"github.com/jrsteele09/go-session-client/session"
	"github.com/jrsteele09/go-session-client/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	issuerName        = "slater-devserver"
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
	contextKeyUserID  = "user_id"
)

var NowTimeFunc = time.Now

type refreshGrant struct {
	accountID string
	expiresAt time.Time
}

type notification struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	IsRead    bool   `json:"is_read"`
	CreatedAt string `json:"created_at"`
}

// Server is the development backend.
type Server struct {
	issuer     *token.Issuer
	accounts   AccountRepo
	accessTTL  time.Duration
	refreshTTL time.Duration
	settings   gin.H

	lock          sync.Mutex
	grants        map[string]refreshGrant
	revoked       map[string]bool
	notifications map[string][]notification
	refreshCalls  int
	failRefreshes int

	engine *gin.Engine
}

type ServerOption func(*Server)

func WithAccessTTL(ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.accessTTL = ttl
	}
}

func WithRefreshTTL(ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.refreshTTL = ttl
	}
}

func WithAccountRepo(repo AccountRepo) ServerOption {
	return func(s *Server) {
		s.accounts = repo
	}
}

// WithSettings replaces what GET /mobcash/setting returns.
func WithSettings(settings map[string]any) ServerOption {
	return func(s *Server) {
		s.settings = settings
	}
}

func New(secret string, options ...ServerOption) (*Server, error) {
	if secret == "" {
		return nil, errors.New("[devserver.New] secret is required")
	}

	s := &Server{
		accounts:      newMemoryAccounts(),
		accessTTL:     defaultAccessTTL,
		refreshTTL:    defaultRefreshTTL,
		settings:      gin.H{"referral_bonus": true},
		grants:        make(map[string]refreshGrant),
		revoked:       make(map[string]bool),
		notifications: make(map[string][]notification),
	}
	for _, opt := range options {
		opt(s)
	}
	s.issuer = token.NewIssuer(token.NewHMACSigner(secret), issuerName, s.accessTTL)
	s.engine = s.routes()
	return s, nil
}

func (s *Server) routes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), LoggingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	auth := r.Group("/auth")
	{
		auth.POST("/login", s.Login)
		auth.POST("/refresh", s.Refresh)
		auth.POST("/registration", s.Register)
		auth.GET("/me", s.RequireBearer(), s.Me)
	}

	mobcash := r.Group("/mobcash", s.RequireBearer())
	{
		mobcash.GET("/notification", s.Notifications)
		mobcash.POST("/read-notification", s.ReadNotifications)
		mobcash.GET("/setting", s.Settings)
	}
	return r
}

// Handler returns the HTTP handler serving the API.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// CreateAccount registers an account directly, bypassing the registration rules.
func (s *Server) CreateAccount(email, phone, password string) (*Account, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, "[Server.CreateAccount] hash password")
	}
	account := &Account{
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
		ReferralCode: strings.ToUpper(uuid.NewString()[:8]),
		DateJoined:   NowTimeFunc(),
	}
	if err := s.accounts.Upsert(account); err != nil {
		return nil, errors.Wrap(err, "[Server.CreateAccount]")
	}
	return account, nil
}

// Notify queues a notification for an account.
func (s *Server) Notify(accountID, title, content string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	list := s.notifications[accountID]
	s.notifications[accountID] = append(list, notification{
		ID:        len(list) + 1,
		Title:     title,
		Content:   content,
		CreatedAt: NowTimeFunc().Format(time.RFC3339),
	})
}

// IssueAccessToken mints an access token for an account with an explicit expiry.
func (s *Server) IssueAccessToken(accountID string, exp time.Time) (string, error) {
	return s.issuer.AccessTokenExpiringAt(accountID, exp)
}

// RevokeAccessToken makes the API answer 401 to raw from now on.
func (s *Server) RevokeAccessToken(raw string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.revoked[raw] = true
}

// RevokeRefreshToken forgets a refresh grant.
func (s *Server) RevokeRefreshToken(refreshToken string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.grants, refreshToken)
}

// FailNextRefreshes makes the next n refresh calls answer 503.
func (s *Server) FailNextRefreshes(n int) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.failRefreshes = n
}

// RefreshCalls returns how many times the refresh endpoint was called.
func (s *Server) RefreshCalls() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.refreshCalls
}

func (s *Server) Login(c *gin.Context) {
	var req session.Credentials
	if err := c.ShouldBindJSON(&req); err != nil || req.EmailOrPhone == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "email_or_phone and password are required"})
		return
	}

	account, err := s.accounts.GetByLogin(req.EmailOrPhone)
	if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
		log.Err(err).Msg("Error looking up account")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	if err != nil || !CheckPasswordHash(req.Password, account.PasswordHash) {
		// Unknown logins and wrong passwords look the same.
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Invalid credentials"})
		return
	}
	if account.Blocked {
		c.JSON(http.StatusForbidden, gin.H{"detail": "Account blocked"})
		return
	}

	now := NowTimeFunc()
	exp := now.Add(s.accessTTL)
	access, err := s.issuer.AccessTokenExpiringAt(account.ID, exp)
	if err != nil {
		log.Err(err).Msg("Error issuing access token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	refresh := s.grant(account.ID, now)

	if err := s.accounts.SetLastLogin(account.ID, now); err != nil {
		log.Err(err).Str("user_id", account.ID).Msg("Error recording last login")
	}
	account.LastLogin = now

	log.Info().Str("user_id", account.ID).Msg("Login successful")
	c.JSON(http.StatusOK, gin.H{
		"refresh": refresh,
		"access":  access,
		"exp":     exp.Unix(),
		"data":    account.Profile(),
	})
}

func (s *Server) grant(accountID string, now time.Time) string {
	s.lock.Lock()
	defer s.lock.Unlock()
	refresh := uuid.NewString()
	s.grants[refresh] = refreshGrant{accountID: accountID, expiresAt: now.Add(s.refreshTTL)}
	return refresh
}

func (s *Server) Refresh(c *gin.Context) {
	var req struct {
		Refresh string `json:"refresh"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.Refresh == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "refresh is required"})
		return
	}
	if c.GetHeader("Authorization") != "" {
		log.Warn().Msg("Refresh request carried an Authorization header")
	}

	s.lock.Lock()
	s.refreshCalls++
	if s.failRefreshes > 0 {
		s.failRefreshes--
		s.lock.Unlock()
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "Service unavailable"})
		return
	}
	grant, ok := s.grants[req.Refresh]
	s.lock.Unlock()

	if !ok || !NowTimeFunc().Before(grant.expiresAt) {
		c.JSON(http.StatusUnauthorized, gin.H{"detail": "Token is invalid or expired", "code": "token_not_valid"})
		return
	}

	access, err := s.issuer.AccessToken(grant.accountID)
	if err != nil {
		log.Err(err).Msg("Error issuing access token")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": access})
}

type registration struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Password     string `json:"password"`
	RePassword   string `json:"re_password"`
	ReferralCode string `json:"referral_code"`
}

func (s *Server) Register(c *gin.Context) {
	var req registration
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"details": err.Error()})
		return
	}
	if req.Email == "" && req.Phone == "" {
		c.JSON(http.StatusBadRequest, gin.H{"details": "email or phone is required"})
		return
	}
	if req.Password != req.RePassword {
		c.JSON(http.StatusBadRequest, gin.H{"details": "passwords do not match"})
		return
	}
	if err := ValidatePasswordStrength(req.Password); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"details": err.Error()})
		return
	}

	hash, err := HashPassword(req.Password)
	if err != nil {
		log.Err(err).Msg("Error hashing password")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}
	account := &Account{
		Email:        req.Email,
		Phone:        req.Phone,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		ReferralCode: strings.ToUpper(uuid.NewString()[:8]),
		DateJoined:   NowTimeFunc(),
	}
	if err := s.accounts.Upsert(account); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"details": err.Error()})
		return
	}

	log.Info().Str("user_id", account.ID).Msg("Registration successful")
	c.JSON(http.StatusCreated, account.Profile())
}

// RequireBearer rejects requests without a valid, unrevoked access token.
func (s *Server) RequireBearer() gin.HandlerFunc {
	return func(c *gin.Context) {
		const bearerPrefix = "Bearer "
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, bearerPrefix) || len(header) == len(bearerPrefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "Authentication credentials were not provided."})
			return
		}
		sub, err := s.authenticate(header[len(bearerPrefix):])
		if err != nil {
			log.Debug().Err(err).Str("path", c.Request.URL.Path).Msg("Rejected bearer token")
			detail := "Given token not valid for any token type"
			if apperrors.Is(err, apperrors.ErrTokenExpired) {
				detail = "Token is expired"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": detail, "code": "token_not_valid"})
			return
		}
		c.Set(contextKeyUserID, sub)
		c.Next()
	}
}

// authenticate returns the account id an access token was issued for.
func (s *Server) authenticate(raw string) (string, error) {
	s.lock.Lock()
	revoked := s.revoked[raw]
	s.lock.Unlock()
	if revoked {
		return "", apperrors.Wrapf(apperrors.ErrUnauthorized, "access token revoked")
	}
	return s.issuer.Verify(raw)
}

func (s *Server) account(c *gin.Context) (*Account, bool) {
	account, err := s.accounts.GetByID(c.GetString(contextKeyUserID))
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"detail": "Not found."})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		}
		return nil, false
	}
	return account, true
}

func (s *Server) Me(c *gin.Context) {
	account, ok := s.account(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, account.Profile())
}

func (s *Server) Notifications(c *gin.Context) {
	account, ok := s.account(c)
	if !ok {
		return
	}

	s.lock.Lock()
	results := append([]notification{}, s.notifications[account.ID]...)
	s.lock.Unlock()

	c.JSON(http.StatusOK, gin.H{
		"count":    len(results),
		"next":     nil,
		"previous": nil,
		"results":  results,
	})
}

func (s *Server) ReadNotifications(c *gin.Context) {
	account, ok := s.account(c)
	if !ok {
		return
	}

	s.lock.Lock()
	for i := range s.notifications[account.ID] {
		s.notifications[account.ID][i].IsRead = true
	}
	s.lock.Unlock()

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Settings(c *gin.Context) {
	c.JSON(http.StatusOK, s.settings)
}
