//go:build !noamqp

package builder

import (
	"github.com/lamassuiot/rpki-core/engines/eventbus/amqp"
)

func init() {
	amqp.Register()
}
