//go:build !nopostgres

package builder

import (
	"github.com/lamassuiot/rpki-core/engines/storage/postgres"
)

func init() {
	postgres.Register()
}
