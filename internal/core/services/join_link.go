package services

import (
	"fmt"
	"time"

	"voicebridge/internal/core/domain"

	"github.com/golang-jwt/jwt/v5"
)

// JoinLinkSigner issues and verifies shareable room join links. A link is a
// signed token naming the room and an expiry; it grants no identity, only a
// way to resolve the room without knowing its id.
type JoinLinkSigner struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
}

func NewJoinLinkSigner(secret string, ttl time.Duration, baseURL string) *JoinLinkSigner {
	return &JoinLinkSigner{
		secret:  []byte(secret),
		ttl:     ttl,
		baseURL: baseURL,
	}
}

// Sign produces a join link for the room. With a base URL configured the
// token is appended as a path segment, otherwise the bare token is returned.
func (s *JoinLinkSigner) Sign(roomID domain.RoomID) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   string(roomID),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign join link: %w", err)
	}

	if s.baseURL != "" {
		return s.baseURL + "/" + token, nil
	}
	return token, nil
}

// Verify resolves a join link back to its room id. The base URL prefix, if
// present, is tolerated so clients can paste full links.
func (s *JoinLinkSigner) Verify(link string) (domain.RoomID, error) {
	token := link
	if s.baseURL != "" && len(link) > len(s.baseURL)+1 && link[:len(s.baseURL)+1] == s.baseURL+"/" {
		token = link[len(s.baseURL)+1:]
	}

	parsed, err := jwt.ParseWithClaims(token, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return "", domain.ErrInvalidJoinLink
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return "", domain.ErrInvalidJoinLink
	}
	return domain.RoomID(claims.Subject), nil
}
