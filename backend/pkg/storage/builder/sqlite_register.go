package builder

import (
	"github.com/lamassuiot/rpki-core/engines/storage/sqlite"
)

func init() {
	sqlite.Register()
}
