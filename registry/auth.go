package registry

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"

	"github.com/xrey167/molthub/orm"
)

// HashToken derives the stored digest of an opaque API token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))

	return hex.EncodeToString(sum[:])
}

// Authenticate resolves a bearer token to its principal. The engine
// only ever sees the token hash.
func (s *Service) Authenticate(ctx context.Context, token string) (*Principal, *orm.User, error) {
	if token == "" {
		return nil, nil, Errf(CodeUnauthorized, "missing bearer token")
	}

	user, err := s.store.GetUserByTokenHash(ctx, HashToken(token))
	if err != nil {
		return nil, nil, Errf(CodeUnauthorized, "invalid or revoked token")
	}

	return &Principal{UserID: user.ID, Role: user.Role}, user, nil
}

// IssueToken mints a fresh opaque token for a user and stores its
// hash. The raw token is returned exactly once.
func (s *Service) IssueToken(
	ctx context.Context,
	userID, label string,
) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", wrapServiceError(err, "token generation")
	}
	token := "mh_" + hex.EncodeToString(raw)

	err := s.store.CreateToken(ctx, &orm.APIToken{
		Hash:      HashToken(token),
		UserID:    userID,
		Label:     label,
		CreatedAt: s.now(),
	})
	if err != nil {
		return "", wrapServiceError(err, "token store")
	}

	return token, nil
}
