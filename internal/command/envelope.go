package command

// Envelope is one replicated log entry: a command plus the origin of the
// resolver that issued it, so observers can skip their own writes.
type Envelope struct {
	Origin  string  `json:"origin,omitempty"`
	Command Command `json:"command"`
}
