// Package role defines the roles a turn can have in a transcript.
package role

// Role identifies who produced a turn.
type Role string

const (
	User      Role = "user"
	Assistant Role = "assistant"
	// Tool marks a turn that carries tool results back to the model.
	Tool Role = "tool"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case User, Assistant, Tool:
		return true
	}
	return false
}

func (r Role) String() string {
	return string(r)
}
