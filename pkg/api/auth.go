package api

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/codeready-toolchain/governor/pkg/config"
	"github.com/codeready-toolchain/governor/pkg/session"
)

const principalContextKey = "governor.principal"

// resolvedPrincipal pairs the Principal a credential resolved to with the
// scopes that credential carries by configuration — distinct from the
// per-session scopes granted at session creation (spec §6 Authentication:
// "all gating is scope-based within the session").
type resolvedPrincipal struct {
	Principal session.Principal
	Scopes    []string
}

func anonymousPrincipal() resolvedPrincipal {
	return resolvedPrincipal{Principal: session.Principal{Type: session.PrincipalUser, ID: "anonymous"}}
}

// authMiddleware resolves a bearer token or X-API-Key header against cfg's
// static credential tables into a Principal, stashing it on the gin
// context. An unrecognized or absent credential resolves to anonymous
// rather than rejecting the request (spec §6: "the core treats an
// unauthenticated request as anonymous").
func authMiddleware(cfg *config.AuthConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(principalContextKey, resolvePrincipal(cfg, c))
		c.Next()
	}
}

func resolvePrincipal(cfg *config.AuthConfig, c *gin.Context) resolvedPrincipal {
	if cfg != nil {
		if header := c.GetHeader("Authorization"); header != "" {
			if token, ok := strings.CutPrefix(header, "Bearer "); ok {
				if p, ok := cfg.BearerTokens[token]; ok {
					return resolvedPrincipal{
						Principal: session.Principal{Type: session.PrincipalType(p.Type), ID: p.ID, Org: p.Org},
						Scopes:    p.Scopes,
					}
				}
			}
		}
		if key := c.GetHeader("X-API-Key"); key != "" {
			if p, ok := cfg.APIKeys[key]; ok {
				return resolvedPrincipal{
					Principal: session.Principal{Type: session.PrincipalType(p.Type), ID: p.ID, Org: p.Org},
					Scopes:    p.Scopes,
				}
			}
		}
	}
	return anonymousPrincipal()
}

func principalFromContext(c *gin.Context) resolvedPrincipal {
	v, ok := c.Get(principalContextKey)
	if !ok {
		return anonymousPrincipal()
	}
	rp, ok := v.(resolvedPrincipal)
	if !ok {
		return anonymousPrincipal()
	}
	return rp
}
