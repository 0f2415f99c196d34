// Package ticket implements the authorization core: issuing and redeeming
// signed, short-lived, single-use tickets that let one worker node decrypt
// one secret bundle under one build lease.
package ticket

import (
	"errors"
	"fmt"
	"time"

	"github.com/buildvault/buildvault/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims is the signed ticket payload. The registered ID claim carries the
// jti and ExpiresAt the ticket expiry; the custom claims bind the ticket to
// one lease, one secret content id and one node.
type Claims struct {
	jwt.RegisteredClaims
	LeaseID string `json:"lease_id"`
	CIDEnv  string `json:"cid_env"`
	NodeID  string `json:"node_id"`
}

// Ticket is the decoded, verified form of a signed ticket.
type Ticket struct {
	JTI     string
	LeaseID string
	CIDEnv  string
	NodeID  string
	Exp     time.Time
	Signed  string
}

// SignTicket signs the (jti, leaseId, cidEnv, nodeId, exp) tuple with the
// service key. The result is self-contained: verification never needs a
// call back to the issuer.
func SignTicket(jti, leaseID, cidEnv, nodeID string, exp time.Time, secretKey []byte) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		LeaseID: leaseID,
		CIDEnv:  cidEnv,
		NodeID:  nodeID,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseTicket verifies the signature and expiry of a signed ticket and
// returns its decoded form. A previous signing key may be supplied to honor
// tickets minted just before a key rotation.
func ParseTicket(tokenString string, secretKey, prevSecretKey []byte) (*Ticket, error) {
	t, err := parseWithKey(tokenString, secretKey)
	if err != nil && len(prevSecretKey) > 0 && errors.Is(err, common.ErrInvalidTicket) {
		t, err = parseWithKey(tokenString, prevSecretKey)
	}
	return t, err
}

func parseWithKey(tokenString string, secretKey []byte) (*Ticket, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: ticket expired", common.ErrExpired)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidTicket, err)
	}

	if !token.Valid || claims.ID == "" || claims.LeaseID == "" || claims.NodeID == "" {
		return nil, common.ErrInvalidTicket
	}

	return &Ticket{
		JTI:     claims.ID,
		LeaseID: claims.LeaseID,
		CIDEnv:  claims.CIDEnv,
		NodeID:  claims.NodeID,
		Exp:     claims.ExpiresAt.Time,
		Signed:  tokenString,
	}, nil
}
