package scylla

import (
	"context"
	"fmt"

	"github.com/gocql/gocql"

	"carhistory/internal/models"
)

type vehicleRepository struct {
	client *ScyllaClient
}

func NewVehicleRepository(client *ScyllaClient) VehicleRepository {
	return &vehicleRepository{client: client}
}

func (r *vehicleRepository) Get(ctx context.Context, vehicleID string) (*models.Vehicle, error) {
	v := &models.Vehicle{}
	err := r.client.Session.Query(`
		SELECT vehicle_id, vin, plate, make, model, year, mileage_km, owner_email, service_notes, created_at, updated_at
		FROM vehicles WHERE vehicle_id = ?`,
		vehicleID).
		WithContext(ctx).Scan(
		&v.VehicleID, &v.VIN, &v.Plate, &v.Make, &v.Model, &v.Year,
		&v.MileageKM, &v.OwnerEmail, &v.ServiceNotes, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		if err == gocql.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get vehicle: %w", err)
	}
	return v, nil
}

func (r *vehicleRepository) Put(ctx context.Context, v *models.Vehicle) error {
	if err := r.client.Session.Query(`
		INSERT INTO vehicles (vehicle_id, vin, plate, make, model, year, mileage_km, owner_email, service_notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.VehicleID, v.VIN, v.Plate, v.Make, v.Model, v.Year,
		v.MileageKM, v.OwnerEmail, v.ServiceNotes, v.CreatedAt, v.UpdatedAt).
		WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("failed to store vehicle: %w", err)
	}
	return nil
}
