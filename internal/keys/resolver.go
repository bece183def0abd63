package keys

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/parleyhq/parley/internal/ai"
)

// ErrNoCredential means the user holds no default credential for the
// requested vendor.
var ErrNoCredential = errors.New("keys: no default credential for provider")

// Resolver turns (user, vendor) into a decrypted API key for a single
// request. The plaintext is returned to the caller and nowhere retained.
type Resolver struct {
	repo   *Repo
	sealer *Sealer
}

func NewResolver(repo *Repo, sealer *Sealer) *Resolver {
	return &Resolver{repo: repo, sealer: sealer}
}

func (r *Resolver) ResolveDefault(ctx context.Context, userID string, vendor ai.Vendor) (string, error) {
	k, err := r.repo.GetDefault(ctx, userID, vendor)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: %s", ErrNoCredential, vendor)
		}
		return "", fmt.Errorf("keys: resolve default for %s: %w", vendor, err)
	}
	plain, err := r.sealer.Open(k.EncryptedKey)
	if err != nil {
		return "", fmt.Errorf("keys: unseal credential %s: %w", k.ID, err)
	}
	return plain, nil
}
