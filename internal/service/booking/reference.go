package booking

import (
	"encoding/base32"

	"github.com/google/uuid"
)

const (
	referencePrefix = "CB-"
	referenceLen    = 10
)

// crockford is Crockford's base32 alphabet: no I, L, O or U.
var crockford = base32.NewEncoding("0123456789ABCDEFGHJKMNPQRSTVWXYZ").WithPadding(base32.NoPadding)

// NewReference returns a booking reference such as "CB-7K3QX9M2TD".
// The code carries 50 random bits taken from a version 4 UUID.
func NewReference() string {
	id := uuid.New()
	// bytes 9..15 hold no version or variant bits
	return referencePrefix + crockford.EncodeToString(id[9:16])[:referenceLen]
}
