package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pquerna/otp/totp"
	"golang.org/x/crypto/bcrypt"

	"github.com/muaviaUsmani/autobuy/internal/errors"
)

// tokenCookie carries the session token for browser clients
const tokenCookie = "token"

// AuthConfig holds the single admin account
type AuthConfig struct {
	Username string
	// PasswordHash is a bcrypt hash; Password is hashed at startup when
	// no hash is given
	PasswordHash string
	Password     string
	// TOTPSecret enables a second factor when set
	TOTPSecret string
	JWTSecret  string
	SessionTTL time.Duration
}

// Claims is the session token payload
type Claims struct {
	jwt.RegisteredClaims
}

// Authenticator checks admin credentials and issues session tokens
type Authenticator struct {
	username     string
	passwordHash []byte
	totpSecret   string
	secret       []byte
	ttl          time.Duration
	now          func() time.Time
}

// NewAuthenticator validates cfg
func NewAuthenticator(cfg AuthConfig) (*Authenticator, error) {
	if cfg.JWTSecret == "" {
		return nil, errors.InvalidConfigurationf("JWT secret is required")
	}
	if cfg.Username == "" {
		return nil, errors.InvalidConfigurationf("admin username is required")
	}

	hash := []byte(cfg.PasswordHash)
	switch {
	case len(hash) > 0:
		if _, err := bcrypt.Cost(hash); err != nil {
			return nil, errors.WrapInvalidConfiguration(err, "admin password hash")
		}
	case cfg.Password != "":
		h, err := bcrypt.GenerateFromPassword([]byte(cfg.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, errors.Wrap(err, "hash admin password")
		}
		hash = h
	default:
		return nil, errors.InvalidConfigurationf("admin password or password hash is required")
	}

	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &Authenticator{
		username:     cfg.Username,
		passwordHash: hash,
		totpSecret:   cfg.TOTPSecret,
		secret:       []byte(cfg.JWTSecret),
		ttl:          ttl,
		now:          time.Now,
	}, nil
}

// RequiresTOTP reports whether logins need a one-time code
func (a *Authenticator) RequiresTOTP() bool {
	return a.totpSecret != ""
}

// Login verifies the credentials and returns a signed token
func (a *Authenticator) Login(username, password, code string) (string, time.Time, error) {
	if username != a.username {
		// still run bcrypt so timing does not reveal the username
		_ = bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password))
		return "", time.Time{}, errors.Wrap(errors.ErrUnauthorized, "invalid credentials")
	}
	if err := bcrypt.CompareHashAndPassword(a.passwordHash, []byte(password)); err != nil {
		return "", time.Time{}, errors.Wrap(errors.ErrUnauthorized, "invalid credentials")
	}
	if a.totpSecret != "" && !totp.Validate(code, a.totpSecret) {
		return "", time.Time{}, errors.Wrap(errors.ErrUnauthorized, "invalid one-time code")
	}
	return a.issue(username)
}

func (a *Authenticator) issue(subject string) (string, time.Time, error) {
	now := a.now()
	expires := now.Add(a.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "sign token")
	}
	return token, expires, nil
}

// Verify parses a token and returns its subject
func (a *Authenticator) Verify(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Newf("unexpected signing method: %v", token.Header["alg"])
		}
		return a.secret, nil
	}, jwt.WithTimeFunc(a.now))
	if err != nil {
		return "", errors.Wrap(errors.ErrUnauthorized, "invalid or expired token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject != a.username {
		return "", errors.Wrap(errors.ErrUnauthorized, "invalid token claims")
	}
	return claims.Subject, nil
}

// Middleware rejects requests without a valid token in the Authorization
// header or the token cookie
func (a *Authenticator) Middleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		tokenString := ""
		if header := c.Request().Header.Get("Authorization"); header != "" {
			scheme, value, ok := strings.Cut(header, " ")
			if !ok || scheme != "Bearer" {
				return UnauthorizedResponse(c, "Invalid authorization header format")
			}
			tokenString = value
		} else if cookie, err := c.Cookie(tokenCookie); err == nil {
			tokenString = cookie.Value
		}
		if tokenString == "" {
			return UnauthorizedResponse(c, "Missing authentication token")
		}

		subject, err := a.Verify(tokenString)
		if err != nil {
			return UnauthorizedResponse(c, "Invalid or expired token")
		}
		c.Set("user", subject)
		return next(c)
	}
}

func sessionCookie(token string, expires time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookie,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}
