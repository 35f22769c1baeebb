package models

import "time"

// Vehicle is the exportable resource backing the /export endpoints. The VIN
// and plate are correlation keys: redacted reads replace them with keyed
// hashes instead of dropping them.
type Vehicle struct {
	VehicleID    string    `db:"vehicle_id"`
	VIN          string    `db:"vin"`
	Plate        string    `db:"plate"`
	Make         string    `db:"make"`
	Model        string    `db:"model"`
	Year         int       `db:"year"`
	MileageKM    int       `db:"mileage_km"`
	OwnerEmail   string    `db:"owner_email"`
	ServiceNotes string    `db:"service_notes"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// FullRow serializes every field for the grant-gated export path. The result
// must never leave the process unencrypted.
func (v *Vehicle) FullRow() map[string]any {
	return map[string]any{
		"vehicle_id":    v.VehicleID,
		"vin":           v.VIN,
		"plate":         v.Plate,
		"make":          v.Make,
		"model":         v.Model,
		"year":          v.Year,
		"mileage_km":    v.MileageKM,
		"owner_email":   v.OwnerEmail,
		"service_notes": v.ServiceNotes,
		"created_at":    v.CreatedAt.UTC().Format(time.RFC3339),
		"updated_at":    v.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
