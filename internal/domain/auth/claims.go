package auth

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	jmespath "github.com/jmespath-community/go-jmespath"
	apperrors "github.com/target/libsession/internal/errors"
)

// claimRoleExpr locates the role hint in a token payload: a top-level "role", else "data.role".
// Empty strings are falsy in JMESPath, so an empty top-level role falls through.
const claimRoleExpr = "role || data.role"

// segmentParser only decodes segments; it never verifies signatures.
var segmentParser = jwt.NewParser(jwt.WithPaddingAllowed())

// DecodeClaims decodes the payload segment of a three-segment credential.
//
// The signature is neither checked nor trusted: the result is an advisory hint for
// routing and UX and must never gate access on the backend's behalf. Any malformed
// input yields a Decode error; DecodeClaims never panics.
func DecodeClaims(credential string) (ClaimSet, error) {
	parts := strings.Split(strings.TrimSpace(credential), ".")
	if len(parts) != 3 {
		return ClaimSet{}, apperrors.Decodef("credential has %d segments, want 3", len(parts))
	}

	payload, err := segmentParser.DecodeSegment(parts[1])
	if err != nil {
		return ClaimSet{}, apperrors.Wrap(err, apperrors.ErrCodeDecode, "credential payload is not base64url")
	}

	var claims jwt.MapClaims
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	if err := dec.Decode(&claims); err != nil {
		return ClaimSet{}, apperrors.Wrap(err, apperrors.ErrCodeDecode, "credential payload is not a JSON object")
	}
	if claims == nil {
		return ClaimSet{}, apperrors.Decode("credential payload is empty")
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return ClaimSet{}, apperrors.Wrap(err, apperrors.ErrCodeDecode, "credential exp claim is invalid")
	}
	if exp == nil {
		return ClaimSet{}, apperrors.Decode("credential has no exp claim")
	}

	raw := map[string]any(claims)
	return ClaimSet{
		Exp:  exp.Time,
		Role: claimRole(raw),
		Raw:  raw,
	}, nil
}

func claimRole(raw map[string]any) string {
	v, err := jmespath.Search(claimRoleExpr, raw)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}

// Fingerprint returns a short, log-safe identifier for a credential.
func Fingerprint(credential string) string {
	const keep = 6
	if len(credential) <= keep {
		return "…"
	}
	return "…" + credential[len(credential)-keep:]
}
