package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/mohammad-safakhou/briefer/internal/store"
)

func setupStore(t *testing.T) (*store.Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	cleanup := func() { db.Close() }
	return &store.Store{DB: db}, mock, cleanup
}

func jsonRequest(method, target string, payload interface{}) *http.Request {
	body, _ := json.Marshal(payload)
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func httpCode(t *testing.T, err error) int {
	t.Helper()
	he, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError, got %T: %v", err, err)
	}
	return he.Code
}

func TestSignupCreatesUser(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users (email, password_hash) VALUES ($1,$2)`)).
		WithArgs("a@b.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	handler := &AuthHandler{Store: st, Secret: []byte("secret")}
	e := echo.New()
	req := jsonRequest(http.MethodPost, "/api/auth/signup", AuthSignupRequest{Email: "a@b.com", Password: "password123"})
	rec := httptest.NewRecorder()

	if err := handler.signup(e.NewContext(req, rec)); err != nil {
		t.Fatalf("signup: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestSignupDuplicateEmailConflicts(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO users`)).
		WithArgs("a@b.com", sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "23505"})

	handler := &AuthHandler{Store: st, Secret: []byte("secret")}
	e := echo.New()
	req := jsonRequest(http.MethodPost, "/api/auth/signup", AuthSignupRequest{Email: "a@b.com", Password: "password123"})

	err := handler.signup(e.NewContext(req, httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", code)
	}
}

func TestSignupRejectsShortPassword(t *testing.T) {
	st, _, cleanup := setupStore(t)
	defer cleanup()

	handler := &AuthHandler{Store: st, Secret: []byte("secret")}
	e := echo.New()
	req := jsonRequest(http.MethodPost, "/api/auth/signup", AuthSignupRequest{Email: "a@b.com", Password: "short"})

	err := handler.signup(e.NewContext(req, httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestLoginReturnsTokenAndCookie(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	hash, err := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	rows := sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash FROM users WHERE email=$1`)).
		WithArgs("a@b.com").
		WillReturnRows(rows)

	handler := &AuthHandler{Store: st, Secret: []byte("secret")}
	e := echo.New()
	req := jsonRequest(http.MethodPost, "/api/auth/login", AuthLoginRequest{Email: "a@b.com", Password: "password123"})
	rec := httptest.NewRecorder()

	if err := handler.login(e.NewContext(req, rec)); err != nil {
		t.Fatalf("login: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp TokenResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Token == "" {
		t.Fatal("expected token in response body")
	}
	cookies := rec.Result().Cookies()
	var found bool
	for _, ck := range cookies {
		if ck.Name == "auth" && ck.Value == resp.Token && ck.HttpOnly {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected HttpOnly auth cookie carrying the token, got %v", cookies)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	st, mock, cleanup := setupStore(t)
	defer cleanup()

	hash, _ := bcrypt.GenerateFromPassword([]byte("password123"), bcrypt.MinCost)
	rows := sqlmock.NewRows([]string{"id", "password_hash"}).AddRow("user-1", string(hash))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, password_hash FROM users WHERE email=$1`)).
		WithArgs("a@b.com").
		WillReturnRows(rows)

	handler := &AuthHandler{Store: st, Secret: []byte("secret")}
	e := echo.New()
	req := jsonRequest(http.MethodPost, "/api/auth/login", AuthLoginRequest{Email: "a@b.com", Password: "wrong-password"})

	err := handler.login(e.NewContext(req, httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", code)
	}
}

func TestAuthMiddlewareAcceptsBearerToken(t *testing.T) {
	secret := []byte("secret")
	signed, err := SignJWT("user-42", secret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)

	var got string
	handler := AuthMiddleware(secret)(func(c echo.Context) error {
		got = userID(c)
		return c.NoContent(http.StatusOK)
	})
	if err := handler(ctx); err != nil {
		t.Fatalf("middleware: %v", err)
	}
	if got != "user-42" {
		t.Fatalf("expected subject user-42, got %q", got)
	}
}

func TestAuthMiddlewareAcceptsCookie(t *testing.T) {
	secret := []byte("secret")
	signed, err := SignJWT("user-42", secret, time.Hour)
	if err != nil {
		t.Fatalf("SignJWT: %v", err)
	}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.AddCookie(&http.Cookie{Name: "auth", Value: signed})
	ctx := e.NewContext(req, httptest.NewRecorder())

	handler := AuthMiddleware(secret)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	if err := handler(ctx); err != nil {
		t.Fatalf("middleware: %v", err)
	}
}

func TestAuthMiddlewareRejectsMissingAndBogusTokens(t *testing.T) {
	secret := []byte("secret")
	e := echo.New()

	handler := AuthMiddleware(secret)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	err := handler(e.NewContext(req, httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	err = handler(e.NewContext(req, httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusUnauthorized {
		t.Fatalf("bogus token: expected 401, got %d", code)
	}

	other, _ := SignJWT("user-42", []byte("other-secret"), time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/api/jobs", nil)
	req.Header.Set("Authorization", "Bearer "+other)
	err = handler(e.NewContext(req, httptest.NewRecorder()))
	if code := httpCode(t, err); code != http.StatusUnauthorized {
		t.Fatalf("wrong secret: expected 401, got %d", code)
	}
}
