package domain

// UserIdentity is the stable user identifier established by authentication.
// It keys the connection registry, notification rows and audience sets.
type UserIdentity string

func (u UserIdentity) String() string { return string(u) }

// Identities converts plain ids into identities.
func Identities(ids ...string) []UserIdentity {
	out := make([]UserIdentity, len(ids))
	for i, id := range ids {
		out[i] = UserIdentity(id)
	}
	return out
}
