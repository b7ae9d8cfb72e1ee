package ctlplane

import "fmt"

// Error kind sentinels, per §7. Use errors.Is against these.
var (
	ErrConfigInvalid = fmt.Errorf("config invalid")
	ErrChannel       = fmt.Errorf("channel error")
)
