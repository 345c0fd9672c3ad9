package echoapi

import (
	"net/http"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-audit/core"
	"github.com/trezcool/masomo-audit/core/principal"
)

var (
	contextTokenKey     = "principalToken"
	contextPrincipalKey = "principal"
	tokenAudience       = "Masomo Audit"
)

// Claims represents the authorization claims transmitted via a JWT.
type Claims struct {
	jwt.StandardClaims
	OrigIssuedAt int64          `json:"oriat,omitempty"`
	Username     string         `json:"username,omitempty"`
	Email        string         `json:"email,omitempty"`
	Role         principal.Role `json:"role,omitempty"`
}

func newJWTConfig(conf *core.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.SecretKey),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
	}
}

// GetPrincipalClaims builds the claims of a fresh token for p.
// origIat carries the first issue time over token refreshes.
func GetPrincipalClaims(conf *core.Config, p principal.Principal, origIat ...int64) *Claims {
	now := time.Now()
	nownix := now.Unix()

	oriat := nownix
	if len(origIat) > 0 {
		oriat = origIat[0]
	}

	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.AppName,
			Subject:   p.ID,
			Audience:  tokenAudience,
			ExpiresAt: now.Add(conf.Server.JWTExpirationDelta).Unix(),
			IssuedAt:  nownix,
		},
		OrigIssuedAt: oriat,
		Username:     p.Username,
		Email:        p.Email,
		Role:         p.Role,
	}
}

// GenerateToken generates a signed JWT token string representing the principal Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	jwtConf := newJWTConfig(conf)
	token := jwt.NewWithClaims(jwt.GetSigningMethod(jwtConf.SigningMethod), claims)

	ss, err := token.SignedString(jwtConf.SigningKey)
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, core.ErrUnauthorized
}

func contextPrincipal(ctx echo.Context) (principal.Principal, bool) {
	p, ok := ctx.Get(contextPrincipalKey).(principal.Principal)
	return p, ok
}

// getContextPrincipal returns the principal loaded by principalMiddleware.
func getContextPrincipal(ctx echo.Context) (principal.Principal, error) {
	if p, ok := contextPrincipal(ctx); ok {
		return p, nil
	}
	return principal.Principal{}, core.ErrUnauthorized
}

type (
	loginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	tokenResponse struct {
		Token string `json:"token"`
	}
)

type authApi struct {
	conf *core.Config
	svc  *principal.Service
}

func registerAuthAPI(v1 *echo.Group, authed []echo.MiddlewareFunc, deps ServerDeps) {
	api := &authApi{conf: deps.Conf, svc: deps.PrincipalSvc}
	limiter := newRateLimiter(deps.Conf.Server.LoginRatePerMinute)

	auth := v1.Group("/auth")
	auth.POST("/login", api.login, limiter.middleware())
	auth.POST("/token-refresh", api.refreshToken, authed...)
	auth.GET("/me", api.me, authed...)
}

func (api *authApi) login(ctx echo.Context) error {
	var req loginRequest
	if err := ctx.Bind(&req); err != nil {
		return badRequest(err)
	}
	if req.Username == "" || req.Password == "" {
		return errAuthenticationFailed
	}

	p, err := api.svc.Authenticate(ctx.Request().Context(), req.Username, req.Password)
	if err != nil {
		if errors.Cause(err) == core.ErrUnauthorized {
			return errAuthenticationFailed
		}
		return errors.Wrap(err, "authenticating principal")
	}

	token, err := GenerateToken(api.conf, GetPrincipalClaims(api.conf, p))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, tokenResponse{Token: token})
}

func (api *authApi) refreshToken(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}

	// check if refresh has not expired
	expTime := time.Unix(claims.OrigIssuedAt, 0).Add(api.conf.Server.JWTRefreshExpirationDelta)
	if time.Now().After(expTime) {
		return errRefreshExpired
	}

	token, err := GenerateToken(api.conf, GetPrincipalClaims(api.conf, p, claims.OrigIssuedAt))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, tokenResponse{Token: token})
}

func (api *authApi) me(ctx echo.Context) error {
	p, err := getContextPrincipal(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}
