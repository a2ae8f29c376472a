package audit

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/caresight/docguard/internal/access"
)

// hashLen is the number of hex characters kept from the HMAC digest. Sixteen
// characters (64 bits) keeps collision odds negligible at audit-log scale
// while keeping entries compact.
const hashLen = 16

// HashIdentifier produces a salted, one-way reference for an identifier.
// The salt is deployment-scoped, so hashes from different deployments do not
// correlate. An empty identifier hashes like any other string; callers decide
// whether empty is meaningful.
func HashIdentifier(identifier string, salt []byte) string {
	mac := hmac.New(sha256.New, salt)
	mac.Write([]byte(identifier))
	return hex.EncodeToString(mac.Sum(nil))[:hashLen]
}

// NewActorRef hashes the user and session identifiers into an actor
// reference.
func NewActorRef(userID, sessionID string, role access.Role, salt []byte) ActorRef {
	return ActorRef{
		ActorHash:   HashIdentifier(userID, salt),
		Role:        role,
		SessionHash: HashIdentifier(sessionID, salt),
	}
}

// NewResourceRef hashes a resource reference. The scope hash is computed
// over the sorted resource IDs joined with colons, so the same set of IDs
// always yields the same hash regardless of request order.
func NewResourceRef(resourceType, collection string, resourceIDs []string, salt []byte) ResourceRef {
	sorted := make([]string, len(resourceIDs))
	copy(sorted, resourceIDs)
	sort.Strings(sorted)

	return ResourceRef{
		ResourceHash: HashIdentifier(resourceType+":"+collection, salt),
		ResourceType: resourceType,
		Collection:   collection,
		ScopeHash:    HashIdentifier(strings.Join(sorted, ":"), salt),
	}
}
