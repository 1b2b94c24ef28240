package devotion

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// Role selects which account is derived for an owner.
type Role string

const (
	RoleDevotion  Role = "devoted"
	RoleVault     Role = "vault"
	RoleState     Role = "state"
	RoleAggregate Role = "total_devoted"
)

// DeriveKey derives the program address holding the role account of owner.
// Singleton roles ignore owner.
func DeriveKey(programID, owner solana.PublicKey, role Role) (solana.PublicKey, uint8, error) {
	seeds := [][]byte{[]byte(role), programID.Bytes()}
	switch role {
	case RoleDevotion, RoleVault:
		seeds = append(seeds, owner.Bytes())
	case RoleState, RoleAggregate:
	default:
		return solana.PublicKey{}, 0, fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, role)
	}

	key, bump, err := solana.FindProgramAddress(seeds, programID)
	if err != nil {
		return solana.PublicKey{}, 0, fmt.Errorf("derive %s key: %w", role, err)
	}
	return key, bump, nil
}

// TokenAccount returns the associated token account of owner for mint.
func TokenAccount(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	ata, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("derive token account: %w", err)
	}
	return ata, nil
}

// Accounts carries account references supplied with a request. Zero keys are
// derived from the caller; non-zero keys must equal the derived ones.
type Accounts struct {
	Devotion     solana.PublicKey
	Vault        solana.PublicKey
	TokenAccount solana.PublicKey
	StakeMint    solana.PublicKey
}

// ownerKeys are the addresses an owner operates on.
type ownerKeys struct {
	devotion     solana.PublicKey
	devotionBump uint8
	vault        solana.PublicKey
	tokenAccount solana.PublicKey
}

func (e *Engine) keysFor(owner, mint solana.PublicKey) (ownerKeys, error) {
	var keys ownerKeys
	var err error

	if keys.devotion, keys.devotionBump, err = DeriveKey(e.programID, owner, RoleDevotion); err != nil {
		return ownerKeys{}, err
	}
	if keys.vault, _, err = DeriveKey(e.programID, owner, RoleVault); err != nil {
		return ownerKeys{}, err
	}
	if keys.tokenAccount, err = TokenAccount(owner, mint); err != nil {
		return ownerKeys{}, err
	}
	return keys, nil
}

// verify checks every supplied reference against the derived keys.
func (a Accounts) verify(keys ownerKeys, stakeMint solana.PublicKey) error {
	checks := []struct {
		name     string
		supplied solana.PublicKey
		expected solana.PublicKey
	}{
		{"devotion", a.Devotion, keys.devotion},
		{"vault", a.Vault, keys.vault},
		{"token account", a.TokenAccount, keys.tokenAccount},
		{"stake mint", a.StakeMint, stakeMint},
	}

	for _, c := range checks {
		if c.supplied.IsZero() {
			continue
		}
		if !c.supplied.Equals(c.expected) {
			return fmt.Errorf("%w: %s %s does not match expected %s", ErrAccountMismatch, c.name, c.supplied, c.expected)
		}
	}
	return nil
}
