package user

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mdzgate/logger"
	"mdzgate/middleware/security"
	"mdzgate/module/user/service"
	storageredis "mdzgate/service/storage/redis"
	"mdzgate/tools/errs"
	jwtsec "mdzgate/tools/security"
)

type Credentials struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type Handler struct {
	store   *service.Store
	jwtOpts jwtsec.Options
}

func NewHandler(store *service.Store, jwtOpts jwtsec.Options) *Handler {
	return &Handler{store: store, jwtOpts: jwtOpts}
}

// Register creates an account.
func (h *Handler) Register(c *gin.Context) {
	var req Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.store.Create(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errs.ErrDuplicateKey.Is(err) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "email already registered"})
			return
		}
		logger.Errorf("[auth] register failed email=%s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		return
	}

	logger.Infof("[auth] user registered user_id=%d email=%s", u.ID, u.Email)
	c.JSON(http.StatusCreated, u)
}

// Login verifies credentials and issues a bearer token. Failed attempts
// are counted in redis with a short expiry.
func (h *Handler) Login(c *gin.Context) {
	var req Credentials
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	u, err := h.store.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		if errs.ErrAuthFailed.Is(err) {
			h.countFailedLogin(c, req.Email)
			c.Header("WWW-Authenticate", "Bearer")
			c.JSON(http.StatusUnauthorized, gin.H{"error": "incorrect email or password"})
			return
		}
		logger.Errorf("[auth] login failed email=%s: %v", req.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	token, expireAt, err := jwtsec.Generate(h.jwtOpts, u.ID)
	if err != nil {
		logger.Errorf("[auth] token issue failed user_id=%d: %v", u.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	logger.Infof("[auth] login ok user_id=%d", u.ID)
	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "bearer",
		"expires_at":   expireAt.UTC().Format(time.RFC3339),
	})
}

// Me returns the authenticated account; the user id comes out of the
// bearer-token middleware.
func (h *Handler) Me(c *gin.Context) {
	uid, ok := security.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not authenticated"})
		return
	}

	u, err := h.store.GetByID(c.Request.Context(), uid)
	if err != nil {
		if errs.ErrRecordNotFound.Is(err) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		logger.Errorf("[auth] me failed user_id=%d: %v", uid, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "lookup failed"})
		return
	}
	c.JSON(http.StatusOK, u)
}

func (h *Handler) countFailedLogin(c *gin.Context, email string) {
	if !storageredis.Initialized() {
		return
	}
	key := "auth:failed:" + email
	rdb := storageredis.GetRedis()
	n, err := rdb.Incr(c.Request.Context(), key).Result()
	if err != nil {
		logger.Warnf("[auth] failed-login counter err email=%s: %v", email, err)
		return
	}
	rdb.Expire(c.Request.Context(), key, 10*time.Minute)
	logger.Infof("[auth] failed login email=%s attempts=%s", email, strconv.FormatInt(n, 10))
}
