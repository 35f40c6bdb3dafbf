package services

import (
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"

	"github.com/yungbote/beliefpath-sync/internal/platform/logger"
)

// KeySet resolves a token key id to the issuer's RSA signing key.
type KeySet interface {
	Key(ctx context.Context, kid string) (*rsa.PublicKey, error)
}

// StaticKeySet is a fixed kid -> key map, for tests and pinned deployments.
type StaticKeySet map[string]*rsa.PublicKey

func (s StaticKeySet) Key(_ context.Context, kid string) (*rsa.PublicKey, error) {
	if k, ok := s[kid]; ok && k != nil {
		return k, nil
	}
	return nil, verificationErr(KindKeyNotFound, "kid %q not in key set", kid)
}

type JWKSConfig struct {
	URL          string
	TTL          time.Duration
	FetchTimeout time.Duration
	// MissTTL suppresses refetching for a kid that was just confirmed absent.
	MissTTL    time.Duration
	HTTPClient *http.Client
}

// JWKSKeySet fetches the issuer's published JWK set and caches each key for
// TTL. An unknown kid forces one refetch so key rotation is picked up;
// concurrent refetches collapse into one request.
type JWKSKeySet struct {
	cfg   JWKSConfig
	log   *logger.Logger
	cache *gocache.Cache
	group singleflight.Group
}

const (
	keyPrefix  = "kid:"
	missPrefix = "miss:"
)

func NewJWKSKeySet(log *logger.Logger, cfg JWKSConfig) (*JWKSKeySet, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("jwks url is required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 6 * time.Hour
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 5 * time.Second
	}
	if cfg.MissTTL <= 0 {
		cfg.MissTTL = time.Minute
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.FetchTimeout}
	}
	if log == nil {
		log = logger.Nop()
	}
	return &JWKSKeySet{
		cfg:   cfg,
		log:   log.With("service", "JWKSKeySet"),
		cache: gocache.New(cfg.TTL, 2*cfg.TTL),
	}, nil
}

func (s *JWKSKeySet) Key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	if k, ok := s.cached(kid); ok {
		return k, nil
	}
	if _, recentlyMissed := s.cache.Get(missPrefix + kid); recentlyMissed {
		return nil, verificationErr(KindKeyNotFound, "kid %q not in key set", kid)
	}
	if err := s.refresh(ctx); err != nil {
		return nil, err
	}
	if k, ok := s.cached(kid); ok {
		return k, nil
	}
	s.cache.Set(missPrefix+kid, struct{}{}, s.cfg.MissTTL)
	return nil, verificationErr(KindKeyNotFound, "kid %q not in key set", kid)
}

func (s *JWKSKeySet) cached(kid string) (*rsa.PublicKey, bool) {
	v, ok := s.cache.Get(keyPrefix + kid)
	if !ok {
		return nil, false
	}
	k, ok := v.(*rsa.PublicKey)
	return k, ok
}

func (s *JWKSKeySet) refresh(ctx context.Context) error {
	_, err, _ := s.group.Do("jwks", func() (any, error) {
		// The fetch is shared by every waiter, so it must not die with the
		// first caller's request.
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.FetchTimeout)
		defer cancel()
		keys, err := s.fetch(fetchCtx)
		if err != nil {
			s.log.Warn("jwks fetch failed", "url", s.cfg.URL, "error", err)
			return nil, verificationErr(KindKeySetUnavailable, "fetch %s: %w", s.cfg.URL, err)
		}
		for kid, k := range keys {
			s.cache.Set(keyPrefix+kid, k, gocache.DefaultExpiration)
			s.cache.Delete(missPrefix + kid)
		}
		s.log.Debug("jwks refreshed", "keys", len(keys))
		return nil, nil
	})
	return err
}

type jwkSet struct {
	Keys []jwk `json:"keys"`
}

type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

func (s *JWKSKeySet) fetch(ctx context.Context) (map[string]*rsa.PublicKey, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.cfg.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	res, err := s.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return nil, fmt.Errorf("unexpected status %s", res.Status)
	}

	var set jwkSet
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode jwks: %w", err)
	}
	out := make(map[string]*rsa.PublicKey, len(set.Keys))
	for _, k := range set.Keys {
		if strings.TrimSpace(k.Kid) == "" || k.Kty != "RSA" {
			continue
		}
		if k.Use != "" && k.Use != "sig" {
			continue
		}
		pub, err := rsaFromModExp(k.N, k.E)
		if err != nil {
			s.log.Warn("skipping unusable jwk", "kid", k.Kid, "error", err)
			continue
		}
		out[k.Kid] = pub
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("jwks contained no usable RSA keys")
	}
	return out, nil
}

func rsaFromModExp(nB64, eB64 string) (*rsa.PublicKey, error) {
	nb, err := base64.RawURLEncoding.DecodeString(nB64)
	if err != nil {
		return nil, fmt.Errorf("modulus: %w", err)
	}
	eb, err := base64.RawURLEncoding.DecodeString(eB64)
	if err != nil {
		return nil, fmt.Errorf("exponent: %w", err)
	}
	if len(nb) == 0 || len(eb) == 0 || len(eb) > 4 {
		return nil, fmt.Errorf("invalid modulus or exponent length")
	}
	e := 0
	for _, b := range eb {
		e = e<<8 + int(b)
	}
	if e < 3 {
		return nil, fmt.Errorf("invalid exponent")
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: e}, nil
}
