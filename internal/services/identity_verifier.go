package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// VerifiedClaims is what a verified identity token proves about the caller.
type VerifiedClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
	Issuer        string
	ExpiresAt     time.Time
}

type IdentityVerifier interface {
	Verify(ctx context.Context, token string) (*VerifiedClaims, error)
}

type IdentityVerifierConfig struct {
	Issuer   string
	Audience string
	// Now is the clock used for exp; nil means time.Now.
	Now func() time.Time
}

type identityVerifier struct {
	keys     KeySet
	issuer   string
	audience string
	now      func() time.Time
	parser   *jwt.Parser
}

func NewIdentityVerifier(keys KeySet, cfg IdentityVerifierConfig) (IdentityVerifier, error) {
	if keys == nil {
		return nil, fmt.Errorf("key set is required")
	}
	if strings.TrimSpace(cfg.Issuer) == "" {
		return nil, fmt.Errorf("IDENTITY_ISSUER is required")
	}
	if strings.TrimSpace(cfg.Audience) == "" {
		return nil, fmt.Errorf("IDENTITY_AUDIENCE is required")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &identityVerifier{
		keys:     keys,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
		now:      now,
		// Claims are checked below in a fixed order so each failure maps to
		// exactly one kind.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
			jwt.WithoutClaimsValidation(),
			jwt.WithJSONNumber(),
		),
	}, nil
}

func (v *identityVerifier) Verify(ctx context.Context, token string) (*VerifiedClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, verificationErr(KindMalformedToken, "token is empty")
	}
	if strings.Count(token, ".") != 2 {
		return nil, verificationErr(KindMalformedToken, "token must have three segments")
	}

	claims := jwt.MapClaims{}
	_, err := v.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, verificationErr(KindKeyNotFound, "token header has no kid")
		}
		return v.keys.Key(ctx, kid)
	})
	if err != nil {
		return nil, classifyParseError(err)
	}

	iss, _ := claims["iss"].(string)
	if iss != v.issuer {
		return nil, verificationErr(KindInvalidIssuer, "issuer %q", iss)
	}
	if !audienceMatches(claims["aud"], v.audience) {
		return nil, verificationErr(KindInvalidAudience, "audience does not include configured client id")
	}
	exp, err := numericDate(claims["exp"])
	if err != nil {
		return nil, verificationErr(KindTokenExpired, "exp: %v", err)
	}
	if !exp.After(v.now()) {
		return nil, verificationErr(KindTokenExpired, "expired at %s", exp.Format(time.RFC3339))
	}

	sub, _ := claims["sub"].(string)
	if strings.TrimSpace(sub) == "" {
		return nil, verificationErr(KindMalformedToken, "missing sub")
	}
	email, _ := claims["email"].(string)
	return &VerifiedClaims{
		Subject:       sub,
		Email:         strings.TrimSpace(email),
		EmailVerified: parseBool(claims["email_verified"]),
		Issuer:        iss,
		ExpiresAt:     exp,
	}, nil
}

func classifyParseError(err error) error {
	var verr *VerificationError
	switch {
	case errors.As(err, &verr):
		return verr
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return &VerificationError{Kind: KindInvalidSignature, Err: err}
	default:
		return &VerificationError{Kind: KindMalformedToken, Err: err}
	}
}

func audienceMatches(aud any, want string) bool {
	switch v := aud.(type) {
	case string:
		return v == want
	case []any:
		for _, it := range v {
			if s, ok := it.(string); ok && s == want {
				return true
			}
		}
	}
	return false
}

func numericDate(v any) (time.Time, error) {
	var sec int64
	switch x := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("missing")
	case json.Number:
		n, err := x.Int64()
		if err != nil {
			f, ferr := x.Float64()
			if ferr != nil {
				return time.Time{}, err
			}
			n = int64(f)
		}
		sec = n
	case float64:
		sec = int64(x)
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		sec = n
	default:
		return time.Time{}, fmt.Errorf("unexpected type %T", v)
	}
	if sec <= 0 {
		return time.Time{}, fmt.Errorf("non-positive numeric date")
	}
	return time.Unix(sec, 0).UTC(), nil
}

func parseBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return strings.EqualFold(x, "true") || x == "1"
	default:
		return false
	}
}
