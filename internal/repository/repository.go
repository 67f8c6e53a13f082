// Package repository holds the local storage backends of the wallet.
package repository

import "github.com/paykit-wallet/paykitd/internal/models"

var (
	_ models.Repository = (*GormDB)(nil)
	_ models.Repository = (*MemoryDB)(nil)
)
