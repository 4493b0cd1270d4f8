package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *Service, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	db := openTestDB(t)
	t.Cleanup(func() { db.Close() })
	insertUser(t, db, 1)

	svc := NewService(db, nil, time.Hour)
	token, err := svc.IssueToken(context.Background(), 1)
	if err != nil {
		t.Fatalf("IssueToken error: %v", err)
	}
	router := gin.New()
	router.Use(svc.Middleware(), svc.CSRFMiddleware())
	handler := func(c *gin.Context) {
		id, _ := UserIDFromContext(c)
		tok, _ := AuthTokenFromContext(c)
		c.JSON(http.StatusOK, gin.H{"user_id": id, "token_len": len(tok)})
	}
	router.GET("/me", handler)
	router.POST("/me", handler)
	return router, svc, token
}

func serve(router *gin.Engine, req *http.Request) int {
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w.Code
}

func TestMiddlewareResolvesBearerAndCookie(t *testing.T) {
	router, svc, token := newAuthRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if code := serve(router, req); code != http.StatusUnauthorized {
		t.Fatalf("no token: expected 401, got %d", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "BEARER "+token)
	if code := serve(router, req); code != http.StatusOK {
		t.Fatalf("bearer: expected 200, got %d", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: token})
	if code := serve(router, req); code != http.StatusOK {
		t.Fatalf("cookie: expected 200, got %d", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer nope")
	if code := serve(router, req); code != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", code)
	}
}

func TestCSRFRequiredForCookieWrites(t *testing.T) {
	router, svc, token := newAuthRouter(t)
	csrf, err := svc.NewCSRFToken()
	if err != nil {
		t.Fatalf("NewCSRFToken error: %v", err)
	}

	cookieReq := func(header string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/me", nil)
		req.AddCookie(&http.Cookie{Name: svc.AuthCookieName(), Value: token})
		req.AddCookie(&http.Cookie{Name: svc.CSRFCookieName(), Value: csrf})
		if header != "" {
			req.Header.Set(svc.CSRFHeaderName(), header)
		}
		return req
	}

	if code := serve(router, cookieReq("")); code != http.StatusForbidden {
		t.Fatalf("missing header: expected 403, got %d", code)
	}
	if code := serve(router, cookieReq("wrong")); code != http.StatusForbidden {
		t.Fatalf("mismatched header: expected 403, got %d", code)
	}
	if code := serve(router, cookieReq(csrf)); code != http.StatusOK {
		t.Fatalf("matching header: expected 200, got %d", code)
	}

	req := httptest.NewRequest(http.MethodPost, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	if code := serve(router, req); code != http.StatusOK {
		t.Fatalf("bearer write: expected 200, got %d", code)
	}
}
