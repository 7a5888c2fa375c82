// Package user manages profiles and the signed-in session: registration with
// sign-in fallback, the current-profile cache, and the live directory of
// counterpart-role users. Profiles live at users/{id} in the document store.
package user

import (
	"context"
	"fmt"
	"time"

	"github.com/byteofhoney/TaskChatApp/internal/store"
)

// UsersCollection is the document store collection holding profiles.
const UsersCollection = "users"

// Role is the matching role of a profile. The role system is binary: every
// role has exactly one counterpart.
type Role string

const (
	RoleMentor Role = "mentor"
	RoleIntern Role = "intern"
)

// Valid reports whether the role is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleMentor || r == RoleIntern
}

// Counterpart returns the complementary role.
func (r Role) Counterpart() Role {
	if r == RoleMentor {
		return RoleIntern
	}
	return RoleMentor
}

// Profile is one user's directory entry. The role is fixed at registration.
type Profile struct {
	ID        string
	Name      string
	Email     string
	Role      Role
	CreatedAt time.Time
}

// profileFromDoc decodes a users/{id} document into a Profile.
func profileFromDoc(d store.Doc) Profile {
	return Profile{
		ID:        d.ID,
		Name:      d.String("name"),
		Email:     d.String("email"),
		Role:      Role(d.String("type")),
		CreatedAt: d.Time("createdAt"),
	}
}

// FetchProfile reads one profile document by id. It returns (nil, nil) when
// the document is absent.
func FetchProfile(ctx context.Context, st store.Store, id string) (*Profile, error) {
	doc, err := st.GetOnce(ctx, store.Join(UsersCollection, id))
	if err != nil {
		return nil, fmt.Errorf("user: fetch profile %s: %w", id, err)
	}
	if doc == nil {
		return nil, nil
	}
	profile := profileFromDoc(*doc)
	return &profile, nil
}

func profilesFromDocs(docs []store.Doc) []Profile {
	out := make([]Profile, 0, len(docs))
	for _, d := range docs {
		out = append(out, profileFromDoc(d))
	}
	return out
}
