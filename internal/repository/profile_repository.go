package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/strayaid/rescue-dispatch/internal/model"
)

// ProfileRepo provides data access to the user_profiles table.  Profiles
// are bootstrapped lazily on first authenticated contact and drive the
// geo-targeted fan-out: a recipient is in the audience when the case lies
// within that recipient's own alert radius of their home center.
type ProfileRepo struct {
	db *sql.DB
}

// NewProfileRepo returns a new ProfileRepo bound to the provided database.
func NewProfileRepo(db *sql.DB) *ProfileRepo { return &ProfileRepo{db: db} }

const profileColumns = `id, role, verified, trust_score, home_latitude, home_longitude,
       alert_radius_m, last_latitude, last_longitude, push_token, created_at, updated_at`

func scanProfile(row interface {
	Scan(dest ...interface{}) error
}) (*model.UserProfile, error) {
	var p model.UserProfile
	var homeLat, homeLng, lastLat, lastLng sql.NullFloat64
	var token sql.NullString
	if err := row.Scan(
		&p.ID, &p.Role, &p.Verified, &p.TrustScore, &homeLat, &homeLng,
		&p.AlertRadiusM, &lastLat, &lastLng, &token, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if homeLat.Valid {
		v := homeLat.Float64
		p.HomeLatitude = &v
	}
	if homeLng.Valid {
		v := homeLng.Float64
		p.HomeLongitude = &v
	}
	if lastLat.Valid {
		v := lastLat.Float64
		p.LastLatitude = &v
	}
	if lastLng.Valid {
		v := lastLng.Float64
		p.LastLongitude = &v
	}
	if token.Valid {
		v := token.String
		p.PushToken = &v
	}
	return &p, nil
}

// Ensure bootstraps a profile on first authenticated contact and returns
// it.  The insert is a no-op when the row already exists, so concurrent
// first requests from the same actor are harmless.
func (r *ProfileRepo) Ensure(ctx context.Context, actorID, role string) (*model.UserProfile, error) {
	if role == "" {
		role = model.RoleCitizen
	}
	const ins = `INSERT INTO user_profiles (id, role, alert_radius_m) VALUES (?, ?, ?)
	             ON DUPLICATE KEY UPDATE id = id`
	if _, err := r.db.ExecContext(ctx, ins, actorID, role, model.DefaultAlertRadiusM); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, actorID)
}

// GetByID loads one profile.
func (r *ProfileRepo) GetByID(ctx context.Context, id string) (*model.UserProfile, error) {
	p, err := scanProfile(r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// UpdateHomeArea sets the alert-area center and radius.  The radius must
// already be validated against the supported set by the handler.
func (r *ProfileRepo) UpdateHomeArea(ctx context.Context, id string, lat, lng float64, radiusM int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE user_profiles
		 SET home_latitude = ?, home_longitude = ?, alert_radius_m = ?, updated_at = UTC_TIMESTAMP()
		 WHERE id = ?`, lat, lng, radiusM, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Zero rows can also mean an identical update; confirm existence.
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// UpdateLocation stores the last-known device location.
func (r *ProfileRepo) UpdateLocation(ctx context.Context, id string, lat, lng float64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_profiles
		 SET last_latitude = ?, last_longitude = ?, updated_at = UTC_TIMESTAMP()
		 WHERE id = ?`, lat, lng, id)
	return err
}

// SetPushToken registers or replaces the FCM token for an actor.
func (r *ProfileRepo) SetPushToken(ctx context.Context, id, token string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_profiles SET push_token = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`,
		token, id)
	return err
}

// ClearPushToken drops a token the push transport reported as
// permanently invalid, so future fan-outs skip the profile until the
// client re-registers.
func (r *ProfileRepo) ClearPushToken(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_profiles SET push_token = NULL, updated_at = UTC_TIMESTAMP() WHERE id = ?`, id)
	return err
}

// Recipient is one fan-out target: an actor with a deliverable token.
type Recipient struct {
	UserID    string
	PushToken string
}

// NearbyRecipients returns rescuer-role profiles whose home center lies
// within their own configured alert radius of the given point, excluding
// the given actor (the reporter).  Profiles without a home center or a
// push token never appear.
func (r *ProfileRepo) NearbyRecipients(ctx context.Context, lat, lng float64, excludeID string) ([]Recipient, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(model.RescuerRoles)), ",")
	q := `SELECT id, push_token FROM user_profiles
	      WHERE role IN (` + placeholders + `)
	        AND id <> ?
	        AND home_latitude IS NOT NULL AND home_longitude IS NOT NULL
	        AND push_token IS NOT NULL
	        AND ST_Distance_Sphere(POINT(home_longitude, home_latitude), POINT(?, ?)) <= alert_radius_m`
	args := make([]interface{}, 0, len(model.RescuerRoles)+3)
	for _, role := range model.RescuerRoles {
		args = append(args, role)
	}
	args = append(args, excludeID, lng, lat)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Recipient
	for rows.Next() {
		var rec Recipient
		if err := rows.Scan(&rec.UserID, &rec.PushToken); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PushTokenFor returns the deliverable token for one actor, or "" when
// none is registered.
func (r *ProfileRepo) PushTokenFor(ctx context.Context, id string) (string, error) {
	var token sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT push_token FROM user_profiles WHERE id = ?`, id).Scan(&token)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", nil
	}
	return token.String, nil
}
