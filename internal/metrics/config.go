package metrics

import (
	"net"

	"codeberg.org/mutker/acmonitor/internal/errors"
)

type Config struct {
	// Listen is the address of the /metrics endpoint; empty disables
	// collection.
	Listen string
}

func (c Config) Enabled() bool {
	return c.Listen != ""
}

func (c Config) Validate() error {
	if !c.Enabled() {
		return nil
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return errors.New().Wrap(ErrInvalidListen, err)
	}
	return nil
}
