// Package directory provides models.DirectoryStore implementations.
package directory

import "github.com/paykit-wallet/paykitd/internal/models"

var (
	_ models.DirectoryStore = (*HomeserverClient)(nil)
	_ models.DirectoryStore = (*Memory)(nil)
)
