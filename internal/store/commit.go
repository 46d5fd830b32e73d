package store

import (
	"time"
)

// Signature records who made a commit and when.
type Signature struct {
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSignature stamps name and email with the current time, truncated to
// milliseconds so the encoding is stable across round trips.
func NewSignature(name, email string) Signature {
	return Signature{Name: name, Email: email, Timestamp: Now()}
}

// Now is the clock used for signatures and operation metadata.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Commit is an immutable snapshot with ordered parents.
type Commit struct {
	Parents      []CommitID `json:"parents"`
	Predecessors []CommitID `json:"predecessors"`
	Tree         TreeID     `json:"tree"`
	ChangeID     ChangeID   `json:"change_id"`
	Description  string     `json:"description"`
	Author       Signature  `json:"author"`
	Committer    Signature  `json:"committer"`

	// Signer is the did:key of the identity that signed the commit.
	Signer string `json:"signer,omitempty"`
	// Sig is a base64 ed25519 signature over the commit encoded with an
	// empty Sig field.
	Sig string `json:"sig,omitempty"`
}

// Clone returns a deep copy.
func (c *Commit) Clone() *Commit {
	out := *c
	out.Parents = append([]CommitID{}, c.Parents...)
	out.Predecessors = append([]CommitID{}, c.Predecessors...)
	return &out
}

// unsigned returns a copy with the signature stripped, used for signing.
func (c *Commit) unsigned() *Commit {
	out := c.Clone()
	out.Sig = ""
	return out
}

func (c *Commit) normalize() {
	if c.Parents == nil {
		c.Parents = []CommitID{}
	}
	if c.Predecessors == nil {
		c.Predecessors = []CommitID{}
	}
}
