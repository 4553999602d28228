package actor

// Context identifies the caller of a workflow operation. It is passed
// explicitly into every core operation; the engine never reads identity from
// ambient session state.
type Context struct {
	ID    string
	Role  string
	Email string
}

// System is the actor used by scheduled checks (expiration sweeps).
var System = Context{ID: "system", Role: "admin", Email: ""}
