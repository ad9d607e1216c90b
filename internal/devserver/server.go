// Package devserver is an in-memory stub of the school platform backend:
// the REST and websocket surface the client talks to, with canned users
// and echo-to-sender message delivery. It exists for local development
// and integration tests; it holds no real business logic.
package devserver

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"campus-client/internal/session"
)

// Server wires the stub routes.
type Server struct {
	store  *store
	hub    *hub
	secret []byte
}

// New builds a stub server signing tokens with secret.
func New(secret string) *Server {
	return &Server{
		store:  newStore(),
		hub:    newHub(),
		secret: []byte(secret),
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Router returns the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	api := router.Group("/api")
	api.POST("/token/", s.login)
	api.POST("/token/refresh/", s.refresh)

	authed := api.Group("", s.authMiddleware())
	authed.GET("/chat/", s.listConversations)
	authed.GET("/chat/:receiver/", s.getHistory)
	authed.POST("/chat/:receiver/", s.postMessage)
	authed.GET("/users/search/", s.searchUsers)
	authed.GET("/users/:id/", s.getUser)
	authed.GET("/user/info/", s.userInfo)

	router.GET("/ws/chat/:receiver", s.handleSocket)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

// ok wraps a payload in the backend's uniform response envelope.
func ok(data any) gin.H {
	return gin.H{"status": "success", "message": "", "errors": []string{}, "data": data}
}

func fail(message string) gin.H {
	return gin.H{"status": "error", "message": message, "errors": []string{message}, "data": nil}
}

func (s *Server) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, fail(err.Error()))
		return
	}

	user, found := s.store.userByEmail(req.Email)
	if !found {
		c.JSON(http.StatusUnauthorized, fail("no account with that email"))
		return
	}

	access, err := s.mintToken(user.ID, user.Email, user.FirstName, 10*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, fail("could not sign token"))
		return
	}
	refresh, err := s.mintToken(user.ID, user.Email, user.FirstName, 24*time.Hour)
	if err != nil {
		c.JSON(http.StatusInternalServerError, fail("could not sign token"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": access, "refresh": refresh})
}

func (s *Server) refresh(c *gin.Context) {
	var req struct {
		Refresh string `json:"refresh" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, fail(err.Error()))
		return
	}

	claims, err := s.parseToken(req.Refresh)
	if err != nil {
		c.JSON(http.StatusUnauthorized, fail("invalid refresh token"))
		return
	}

	access, err := s.mintToken(claims.UserID, claims.Email, claims.FirstName, 10*time.Minute)
	if err != nil {
		c.JSON(http.StatusInternalServerError, fail("could not sign token"))
		return
	}
	c.JSON(http.StatusOK, gin.H{"access": access})
}

func (s *Server) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, fail("missing authorization"))
			return
		}
		claims, err := s.parseToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, fail("invalid token"))
			return
		}
		c.Set("userID", claims.UserID)
		c.Next()
	}
}

func (s *Server) listConversations(c *gin.Context) {
	userID := c.GetInt("userID")
	c.JSON(http.StatusOK, ok(s.store.summaries(userID)))
}

func (s *Server) getHistory(c *gin.Context) {
	receiverID, err := strconv.Atoi(c.Param("receiver"))
	if err != nil || receiverID <= 0 {
		c.JSON(http.StatusBadRequest, fail("invalid receiver id"))
		return
	}
	if _, found := s.store.actor(receiverID); !found {
		c.JSON(http.StatusNotFound, fail("user not found"))
		return
	}
	userID := c.GetInt("userID")
	c.JSON(http.StatusOK, ok(s.store.history(userID, receiverID)))
}

// postMessage is the REST fallback send path; it stores and broadcasts
// exactly like a socket frame.
func (s *Server) postMessage(c *gin.Context) {
	receiverID, err := strconv.Atoi(c.Param("receiver"))
	if err != nil || receiverID <= 0 {
		c.JSON(http.StatusBadRequest, fail("invalid receiver id"))
		return
	}

	var req struct {
		Content string `json:"content" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, fail(err.Error()))
		return
	}

	userID := c.GetInt("userID")
	msg := s.store.append(userID, receiverID, req.Content)
	s.hub.broadcast(pairKey(userID, receiverID), msg)
	c.JSON(http.StatusCreated, ok(msg))
}

func (s *Server) getUser(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, fail("invalid user id"))
		return
	}
	actor, found := s.store.actor(id)
	if !found {
		c.JSON(http.StatusNotFound, fail("user not found"))
		return
	}
	c.JSON(http.StatusOK, ok(actor))
}

func (s *Server) userInfo(c *gin.Context) {
	actor, found := s.store.actor(c.GetInt("userID"))
	if !found {
		c.JSON(http.StatusNotFound, fail("user not found"))
		return
	}
	c.JSON(http.StatusOK, ok(actor))
}

func (s *Server) searchUsers(c *gin.Context) {
	c.JSON(http.StatusOK, ok(s.store.search(c.Query("query"))))
}

// handleSocket authenticates via the token query credential, joins the
// conversation room, and turns every inbound frame into a stored,
// broadcast message. The sender receives its own echo.
func (s *Server) handleSocket(c *gin.Context) {
	receiverID, err := strconv.Atoi(c.Param("receiver"))
	if err != nil || receiverID <= 0 {
		c.JSON(http.StatusBadRequest, fail("invalid receiver id"))
		return
	}

	claims, err := s.parseToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, fail("invalid token"))
		return
	}
	userID := claims.UserID

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	key := pairKey(userID, receiverID)
	s.hub.add(key, conn)
	log.Printf("devserver: ws connect user=%d receiver=%d", userID, receiverID)

	go func() {
		defer func() {
			s.hub.remove(key, conn)
			conn.Close()
			log.Printf("devserver: ws disconnect user=%d receiver=%d", userID, receiverID)
		}()
		for {
			var frame struct {
				Message string `json:"message"`
			}
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if strings.TrimSpace(frame.Message) == "" {
				continue
			}
			msg := s.store.append(userID, receiverID, frame.Message)
			s.hub.broadcast(key, msg)
		}
	}()
}

func (s *Server) mintToken(userID int, email, firstName string, ttl time.Duration) (string, error) {
	claims := session.Claims{
		UserID:    userID,
		Email:     email,
		FirstName: firstName,
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  time.Now().Unix(),
			ExpiresAt: time.Now().Add(ttl).Unix(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *Server) parseToken(raw string) (*session.Claims, error) {
	claims := new(session.Claims)
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}
