package domain

import "time"

// Identity is an enrolled person. Enrollment itself happens elsewhere;
// the terminal only reads identities and replaces them wholesale.
type Identity struct {
	Code        string    `json:"code"`
	DisplayName string    `json:"display_name"`
	Active      bool      `json:"active"`
	Embedding   Embedding `json:"-"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IdentityEmbedding is one roster entry handed to the matcher.
type IdentityEmbedding struct {
	Identity  Identity
	Embedding Embedding
}

// Roster builds the matcher input from identities that carry an embedding.
func Roster(identities []Identity) []IdentityEmbedding {
	roster := make([]IdentityEmbedding, 0, len(identities))
	for _, id := range identities {
		if len(id.Embedding) == 0 {
			continue
		}
		roster = append(roster, IdentityEmbedding{Identity: id, Embedding: id.Embedding})
	}
	return roster
}
