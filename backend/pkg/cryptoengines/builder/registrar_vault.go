//go:build !novault

package builder

import (
	"github.com/lamassuiot/rpki-core/engines/crypto/vaultkv2"
)

func init() {
	vaultkv2.Register()
}
