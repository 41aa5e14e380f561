package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/dockslots/libs/auth"
)

const TenantIDHeader = "X-Tenant-Id"

const (
	TenantModeHeader = "header"
	TenantModeJWT    = "jwt"
)

// TenantAuth selects how the requesting tenant is established. In header
// mode an upstream gateway is trusted to set X-Tenant-Id; in jwt mode the
// tenant comes from the verified bearer token.
type TenantAuth struct {
	Mode      string
	JWTSecret string
	JWKS      *auth.JWKSClient
}

func TenantIDFromContext(ctx context.Context) (int64, bool) {
	v, ok := ctx.Value(ctxKeyTenantID).(int64)
	return v, ok && v > 0
}

func ContextWithTenantID(ctx context.Context, tenantID int64) context.Context {
	return context.WithValue(ctx, ctxKeyTenantID, tenantID)
}

func WithTenant(cfg TenantAuth) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := ""
			if cfg.Mode == TenantModeJWT {
				claims, ok := verifyBearer(r, cfg)
				if !ok {
					WriteError(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
					return
				}
				raw = claims.TenantID
			} else {
				raw = strings.TrimSpace(r.Header.Get(TenantIDHeader))
				if raw == "" {
					WriteError(w, http.StatusUnauthorized, "unauthorized", "missing "+TenantIDHeader)
					return
				}
			}

			tenantID, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || tenantID <= 0 {
				WriteError(w, http.StatusBadRequest, "invalid_input", "tenant id must be a positive integer")
				return
			}
			noteTenant(r.Context(), tenantID)
			next.ServeHTTP(w, r.WithContext(ContextWithTenantID(r.Context(), tenantID)))
		})
	}
}

func verifyBearer(r *http.Request, cfg TenantAuth) (*auth.Claims, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return nil, false
	}

	var claims *auth.Claims
	var err error
	if cfg.JWKS != nil {
		header, herr := auth.ParseHeader(token)
		if herr != nil {
			return nil, false
		}
		if header.Alg == "RS256" && header.Kid != "" {
			pub, kerr := cfg.JWKS.Get(header.Kid)
			if kerr != nil {
				return nil, false
			}
			claims, err = auth.VerifyRS256(token, pub)
		} else {
			claims, err = auth.ParseAndVerifyHS256(token, cfg.JWTSecret)
		}
	} else {
		claims, err = auth.ParseAndVerifyHS256(token, cfg.JWTSecret)
	}
	if err != nil || claims.TenantID == "" {
		return nil, false
	}
	return claims, true
}
