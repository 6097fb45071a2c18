package catalog

import "context"

type pingArgs struct{}

type pingResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// RegisterBuiltins adds the tools every catalog ships with. Currently that
// is system.ping, a zero-cost liveness probe.
func RegisterBuiltins(c *Catalog) error {
	_, err := RegisterFunc(c, "system.ping", "Liveness probe that always succeeds.",
		Metadata{
			Cost:       Float(0),
			SideEffect: Bool(false),
			Category:   "system",
			Tags:       []string{"system", "health"},
		},
		func(ctx context.Context, _ pingArgs) (pingResult, error) {
			return pingResult{OK: true, Message: "pong"}, nil
		})
	return err
}
