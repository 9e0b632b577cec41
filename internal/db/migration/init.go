package migration

var initialized bool

// Init registers all data migration steps. Safe to call more than once.
func Init() {
	if initialized {
		return
	}
	initialized = true

	// Older rows predate the completed projection column; rebuild it from status.
	register("backfill_completed_projection", func(m *Migration) error {
		res := m.DB.Exec(`UPDATE tasks SET completed = (status = 'completed') WHERE completed != (status = 'completed')`)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			m.Log("backfilled completed projection rows: ", res.RowsAffected)
		}
		return nil
	})
}
