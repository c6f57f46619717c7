package reconcile

import "hermannm.dev/enumnames"

// WriteMode is how rows reach the destination table.
type WriteMode uint8

const (
	// Copy is the native bulk path (COPY on Postgres, batched INSERT on SQLite).
	Copy WriteMode = iota + 1
	// Upsert is INSERT ... ON CONFLICT under a ConflictPolicy.
	Upsert
)

var writeModeNames = enumnames.NewMap(map[WriteMode]string{
	Copy:   "copy",
	Upsert: "upsert",
})

func (m WriteMode) String() string {
	return writeModeNames.GetNameOrFallback(m, "invalid_mode")
}

func (m WriteMode) MarshalJSON() ([]byte, error) {
	return writeModeNames.MarshalToNameJSON(m)
}

// ChooseWriteMode picks Copy when the table was just created, has no primary
// key, or the caller asked for append-only loading. Otherwise key conflicts
// are possible and Upsert is used.
func ChooseWriteMode(created, hasPrimaryKey, appendOnly bool) WriteMode {
	if created || !hasPrimaryKey || appendOnly {
		return Copy
	}
	return Upsert
}
