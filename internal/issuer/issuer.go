// Package issuer produces signed credentials from verified attributes.
//
// Variable-length attribute fields are hashed into fixed-size field elements
// with Poseidon, then the (nullifier, commitment) pair is signed with the
// service's Baby Jubjub key. Issuance is deterministic: the same key,
// nullifier, and attributes always yield the same credential, which makes
// client retries idempotent.
package issuer

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/iden3/go-iden3-crypto/babyjub"
	"github.com/iden3/go-iden3-crypto/poseidon"

	"attest/internal/identity"
)

// NameByteBudget is the maximum UTF-8 length of each name field inside the
// commitment. Longer values are truncated, logged, and issued anyway;
// refusing to issue over a long surname would be worse than the truncation.
const NameByteBudget = 24

// Fields are the fixed-size field elements committed to by the credential.
// All values are decimal big-integer strings.
type Fields struct {
	CountryCode string `json:"countryCode"`
	NameHash    string `json:"nameHash"`
	DateOfBirth string `json:"dateOfBirth"`
	Expiry      string `json:"expiry"`
}

// Signature is an EdDSA (Baby Jubjub) signature over the issuance message.
type Signature struct {
	R8X string `json:"r8x"`
	R8Y string `json:"r8y"`
	S   string `json:"s"`
}

// Metadata describes how the raw attributes mapped into the commitment.
type Metadata struct {
	FirstNameTruncated  bool `json:"firstNameTruncated,omitempty"`
	MiddleNameTruncated bool `json:"middleNameTruncated,omitempty"`
	LastNameTruncated   bool `json:"lastNameTruncated,omitempty"`
}

// Credential is the signed payload returned to the client.
type Credential struct {
	Nullifier       string    `json:"nullifier"`
	Fields          Fields    `json:"fields"`
	Signature       Signature `json:"signature"`
	IssuerPublicKey string    `json:"issuerPublicKey"` // compressed, hex
	Metadata        Metadata  `json:"metadata"`
}

// Issuer signs credentials with the service key. The key is supplied
// externally; the issuer never generates or rotates it.
type Issuer struct {
	priv   *babyjub.PrivateKey
	pubHex string
	logger *slog.Logger
}

// New builds an Issuer from a hex-encoded 32-byte private key.
func New(privateKeyHex string, logger *slog.Logger) (*Issuer, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decode issuer private key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("issuer private key must be 32 bytes, got %d", len(raw))
	}
	var priv babyjub.PrivateKey
	copy(priv[:], raw)

	comp := priv.Public().Compress()
	return &Issuer{
		priv:   &priv,
		pubHex: hex.EncodeToString(comp[:]),
		logger: logger,
	}, nil
}

// Issue derives the commitment fields from attrs and signs them together
// with the nullifier.
func (i *Issuer) Issue(ctx context.Context, nullifier *big.Int, attrs identity.Attributes) (*Credential, error) {
	var meta Metadata
	first := i.nameField(ctx, "first_name", attrs.FirstName, &meta.FirstNameTruncated)
	middle := i.nameField(ctx, "middle_name", attrs.MiddleName, &meta.MiddleNameTruncated)
	last := i.nameField(ctx, "last_name", attrs.LastName, &meta.LastNameTruncated)

	nameHash, err := poseidon.Hash([]*big.Int{first, middle, last})
	if err != nil {
		return nil, fmt.Errorf("hash name fields: %w", err)
	}

	dob, err := identity.DateAsInt(attrs.DateOfBirth)
	if err != nil {
		return nil, fmt.Errorf("encode date of birth: %w", err)
	}

	expiry := int64(0)
	if attrs.DocumentExpiry != "" {
		if expiry, err = identity.DateAsInt(attrs.DocumentExpiry); err != nil {
			return nil, fmt.Errorf("encode document expiry: %w", err)
		}
	}

	country := new(big.Int).SetBytes([]byte(attrs.IssuingCountry))

	commitment, err := poseidon.Hash([]*big.Int{
		country, nameHash, big.NewInt(dob), big.NewInt(expiry),
	})
	if err != nil {
		return nil, fmt.Errorf("hash commitment: %w", err)
	}

	msg, err := poseidon.Hash([]*big.Int{nullifier, commitment})
	if err != nil {
		return nil, fmt.Errorf("hash issuance message: %w", err)
	}

	sig := i.priv.SignPoseidon(msg)

	return &Credential{
		Nullifier: nullifier.String(),
		Fields: Fields{
			CountryCode: country.String(),
			NameHash:    nameHash.String(),
			DateOfBirth: big.NewInt(dob).String(),
			Expiry:      big.NewInt(expiry).String(),
		},
		Signature: Signature{
			R8X: sig.R8.X.String(),
			R8Y: sig.R8.Y.String(),
			S:   sig.S.String(),
		},
		IssuerPublicKey: i.pubHex,
		Metadata:        meta,
	}, nil
}

// PublicKeyHex returns the compressed issuer public key.
func (i *Issuer) PublicKeyHex() string {
	return i.pubHex
}

func (i *Issuer) nameField(ctx context.Context, field, value string, truncated *bool) *big.Int {
	fit, cut := identity.TruncateToBytes(value, NameByteBudget)
	if cut {
		*truncated = true
		i.logger.WarnContext(ctx, "attribute truncated for commitment",
			"field", field,
			"original_bytes", len(value),
			"kept_bytes", len(fit),
		)
	}
	return new(big.Int).SetBytes([]byte(fit))
}
