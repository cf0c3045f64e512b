package led

import (
	"fmt"

	"periph.io/x/host/v3"
)

// InitHost loads the periph host drivers. It must run before any SPI port or
// GPIO pin is opened by name.
func InitHost() error {
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("periph host init: %w", err)
	}
	return nil
}
