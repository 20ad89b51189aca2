package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chachabrian/mooveit-dispatch/internal/logger"
	"github.com/chachabrian/mooveit-dispatch/internal/models"
	"github.com/chachabrian/mooveit-dispatch/pkg/utils"
)

const (
	driversGeoKey = "drivers:geo"
	// overfetch compensates for nearby drivers that are busy or offline.
	overfetch = 4
)

var ErrUnknownDriver = errors.New("services: unknown driver")

func driverKey(id string) string { return "driver:availability:" + id }

// GeoStore is the subset of redis used by the directory.
type GeoStore interface {
	GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error
	GeoRemove(ctx context.Context, key, member string) error
	GeoSearch(ctx context.Context, key string, lng, lat, radiusMeters float64, count int) ([]redis.GeoLocation, error)
	HSet(ctx context.Context, key string, values map[string]any) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

type redisAdapter struct{ c redis.UniversalClient }

// NewRedisGeo wraps a go-redis client.
func NewRedisGeo(c redis.UniversalClient) GeoStore {
	return &redisAdapter{c: c}
}

func (r *redisAdapter) GeoAdd(ctx context.Context, key string, loc *redis.GeoLocation) error {
	return r.c.GeoAdd(ctx, key, loc).Err()
}

func (r *redisAdapter) GeoRemove(ctx context.Context, key, member string) error {
	return r.c.ZRem(ctx, key, member).Err()
}

func (r *redisAdapter) GeoSearch(ctx context.Context, key string, lng, lat, radiusMeters float64, count int) ([]redis.GeoLocation, error) {
	return r.c.GeoSearchLocation(ctx, key, &redis.GeoSearchLocationQuery{
		GeoSearchQuery: redis.GeoSearchQuery{
			Longitude:  lng,
			Latitude:   lat,
			Radius:     radiusMeters,
			RadiusUnit: "m",
			Sort:       "ASC",
			Count:      count,
		},
		WithDist: true,
	}).Result()
}

func (r *redisAdapter) HSet(ctx context.Context, key string, values map[string]any) error {
	return r.c.HSet(ctx, key, values).Err()
}

func (r *redisAdapter) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.c.HGetAll(ctx, key).Result()
}

// InitRedis parses url, connects and pings.
func InitRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// DriverDirectory keeps the hot availability snapshot of every driver in
// redis: positions in a GEO set and flags in one hash per driver. When a
// database is given every change is mirrored to driver_locations.
type DriverDirectory struct {
	geo GeoStore
	db  *gorm.DB
	log logger.Logger
	now func() time.Time
}

func NewDriverDirectory(geo GeoStore, db *gorm.DB, log logger.Logger) *DriverDirectory {
	if log == nil {
		log = logger.NopLogger{}
	}
	return &DriverDirectory{geo: geo, db: db, log: log, now: time.Now}
}

// Rank returns up to limit dispatchable drivers within radiusMeters of
// pickup, nearest first.
func (d *DriverDirectory) Rank(ctx context.Context, pickup models.Point, radiusMeters float64, limit int) ([]models.Candidate, error) {
	if limit <= 0 {
		return nil, nil
	}
	near, err := d.geo.GeoSearch(ctx, driversGeoKey, pickup.Lng, pickup.Lat, radiusMeters, limit*overfetch)
	if err != nil {
		return nil, fmt.Errorf("search drivers: %w", err)
	}
	out := make([]models.Candidate, 0, limit)
	for _, g := range near {
		loc, err := d.Get(ctx, g.Name)
		if errors.Is(err, ErrUnknownDriver) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if !loc.Dispatchable() {
			continue
		}
		// The index can trail the hash; trust the last reported position.
		if p := loc.Location(); p == nil || !utils.IsWithinRadius(pickup.Lat, pickup.Lng, p.Lat, p.Lng, radiusMeters/1000) {
			continue
		}
		out = append(out, models.Candidate{DriverID: g.Name, VehicleID: loc.VehicleID, DistanceMeters: g.Dist})
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// LastLocation returns the last reported position of driverID, or nil.
func (d *DriverDirectory) LastLocation(ctx context.Context, driverID string) (*models.Point, error) {
	loc, err := d.Get(ctx, driverID)
	if errors.Is(err, ErrUnknownDriver) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return loc.Location(), nil
}

// Get reads the snapshot of driverID.
func (d *DriverDirectory) Get(ctx context.Context, driverID string) (models.DriverLocation, error) {
	h, err := d.geo.HGetAll(ctx, driverKey(driverID))
	if err != nil {
		return models.DriverLocation{}, fmt.Errorf("read driver %s: %w", driverID, err)
	}
	if len(h) == 0 {
		return models.DriverLocation{}, ErrUnknownDriver
	}
	return decodeDriver(driverID, h), nil
}

// UpdateStatus records the online and availability flags reported by a
// driver. Going offline removes the driver from the geo index.
func (d *DriverDirectory) UpdateStatus(ctx context.Context, driverID string, online, available bool) error {
	return d.update(ctx, driverID, map[string]any{
		"online":    strconv.FormatBool(online),
		"available": strconv.FormatBool(online && available),
	})
}

// UpdateLocation records a position ping.
func (d *DriverDirectory) UpdateLocation(ctx context.Context, driverID string, p models.Point) error {
	if !utils.ValidCoordinates(p.Lat, p.Lng) {
		return fmt.Errorf("invalid coordinates %f,%f", p.Lat, p.Lng)
	}
	return d.update(ctx, driverID, map[string]any{
		"lat": strconv.FormatFloat(p.Lat, 'f', -1, 64),
		"lng": strconv.FormatFloat(p.Lng, 'f', -1, 64),
	})
}

// SetCurrentTrip marks the driver busy with tripID, or free when tripID is
// nil.
func (d *DriverDirectory) SetCurrentTrip(ctx context.Context, driverID string, tripID *string) error {
	trip := ""
	if tripID != nil {
		trip = *tripID
	}
	return d.update(ctx, driverID, map[string]any{"trip": trip})
}

// SetVehicle binds the vehicle offered alongside the driver.
func (d *DriverDirectory) SetVehicle(ctx context.Context, driverID, vehicleID string) error {
	return d.update(ctx, driverID, map[string]any{"vehicleId": vehicleID})
}

// update writes only the given hash fields so concurrent reports for the same
// driver never overwrite each other, then reindexes from the merged hash.
func (d *DriverDirectory) update(ctx context.Context, driverID string, fields map[string]any) error {
	fields["lastSeen"] = strconv.FormatInt(d.now().UTC().Unix(), 10)
	if err := d.geo.HSet(ctx, driverKey(driverID), fields); err != nil {
		return fmt.Errorf("write driver %s: %w", driverID, err)
	}
	loc, err := d.Get(ctx, driverID)
	if err != nil {
		return err
	}
	// Rank rechecks the hash, so a stale index entry only costs a lookup.
	if p := loc.Location(); p != nil && loc.IsOnline {
		err = d.geo.GeoAdd(ctx, driversGeoKey, &redis.GeoLocation{Name: driverID, Longitude: p.Lng, Latitude: p.Lat})
	} else {
		err = d.geo.GeoRemove(ctx, driversGeoKey, driverID)
	}
	if err != nil {
		return fmt.Errorf("index driver %s: %w", driverID, err)
	}
	d.mirror(ctx, loc)
	return nil
}

// mirror persists the snapshot; redis stays authoritative so failures are
// only logged.
func (d *DriverDirectory) mirror(ctx context.Context, loc models.DriverLocation) {
	if d.db == nil {
		return
	}
	err := d.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&loc).Error
	if err != nil {
		d.log.Warnf("mirror driver %s: %v", loc.DriverID, err)
	}
}

func decodeDriver(id string, h map[string]string) models.DriverLocation {
	loc := models.DriverLocation{
		DriverID:    id,
		VehicleID:   h["vehicleId"],
		IsOnline:    h["online"] == "true",
		IsAvailable: h["available"] == "true",
	}
	if t := h["trip"]; t != "" {
		loc.CurrentTripID = &t
	}
	lat, errLat := strconv.ParseFloat(h["lat"], 64)
	lng, errLng := strconv.ParseFloat(h["lng"], 64)
	if errLat == nil && errLng == nil {
		loc.Latitude, loc.Longitude = &lat, &lng
	}
	if s, err := strconv.ParseInt(h["lastSeen"], 10, 64); err == nil {
		loc.LastSeen = time.Unix(s, 0).UTC()
	}
	return loc
}
