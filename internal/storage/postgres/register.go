package postgres

import "tabload/internal/storage"

func init() {
	storage.Register("postgres", New)
}
