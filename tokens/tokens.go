// Package tokens signs and verifies the HS256 JWTs exchanged with agent
// wallets and the game provider.
package tokens

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"i8gateway/models"

	"github.com/golang-jwt/jwt/v5"
)

const (
	AgentTokenTTL   = 30 * time.Minute
	SessionTokenTTL = 24 * time.Hour
)

var ErrMissingClaims = errors.New("token must carry userId and agentId")

// SessionClaims is the player session carried by provider launches and by
// bearer tokens on the game API. Both ids may arrive as strings or numbers.
type SessionClaims struct {
	UserID  models.FlexibleString `json:"userId"`
	AgentID models.FlexibleString `json:"agentId"`
	jwt.RegisteredClaims
}

func (c *SessionClaims) AgentIDInt() (int, error) {
	return strconv.Atoi(c.AgentID.String())
}

// SignAgentToken authenticates this service to an agent's wallet.
func SignAgentToken(key string, agentID int, now time.Time) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"agentId": agentID,
		"iat":     now.Unix(),
		"exp":     now.Add(AgentTokenTTL).Unix(),
	})
	return tok.SignedString([]byte(key))
}

// SignSessionToken mints the session a provider echoes back for a player.
func SignSessionToken(secret string, userID string, agentID int, now time.Time) (string, error) {
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId":  userID,
		"agentId": agentID,
		"iat":     now.Unix(),
		"exp":     now.Add(SessionTokenTTL).Unix(),
	})
	return tok.SignedString([]byte(secret))
}

// PeekSession decodes claims without checking the signature, so that the
// verification key can be chosen from the claimed agent.
func PeekSession(raw string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(stripBearer(raw), claims); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	if claims.UserID == "" || claims.AgentID == "" {
		return nil, ErrMissingClaims
	}
	return claims, nil
}

// VerifySession checks signature and expiry with key.
func VerifySession(raw, key string, now time.Time) (*SessionClaims, error) {
	claims := &SessionClaims{}
	_, err := jwt.ParseWithClaims(stripBearer(raw), claims,
		func(*jwt.Token) (any, error) { return []byte(key), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return nil, fmt.Errorf("verify token: %w", err)
	}
	if claims.UserID == "" || claims.AgentID == "" {
		return nil, ErrMissingClaims
	}
	return claims, nil
}

func stripBearer(raw string) string {
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}
