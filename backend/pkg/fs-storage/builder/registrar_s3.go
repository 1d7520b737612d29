//go:build !noaws

package builder

import (
	"github.com/lamassuiot/rpki-core/engines/fs-storage/s3"
)

func init() {
	s3.Register()
}
