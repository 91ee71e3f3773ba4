package identity

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var ErrMalformed = errors.New("malformed username")

// usernamePattern is <agentPrefix:letters><agentId:4 digits><userId:rest>.
var usernamePattern = regexp.MustCompile(`^([a-zA-Z]{1,10})(\d{4})(.+)$`)

// Identity is the principal behind a provider callback. AgentPrefix is
// the prefix as sent by the provider; the agent's configured prefix may
// differ in case.
type Identity struct {
	AgentPrefix string
	AgentID     int
	UserID      string
}

// Parse splits a provider username into its parts. It does not check
// that the agent exists.
func Parse(username string) (Identity, error) {
	m := usernamePattern.FindStringSubmatch(strings.TrimSpace(username))
	if m == nil {
		return Identity{}, fmt.Errorf("%w: %q", ErrMalformed, username)
	}

	agentID, err := strconv.Atoi(m[2])
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %q", ErrMalformed, username)
	}

	return Identity{
		AgentPrefix: m[1],
		AgentID:     agentID,
		UserID:      m[3],
	}, nil
}

// Username builds the provider-facing login name for a player.
func Username(agentPrefix string, agentID int, userID string) string {
	return strings.ToLower(fmt.Sprintf("%s%04d%s", agentPrefix, agentID, userID))
}
