package database

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"menubot/model"
)

// GetSettings loads the singleton settings row, returning an empty value
// when it was never written.
func (i *Instance) GetSettings() (*model.Settings, error) {
	var result model.Settings
	err := i.db.Get(&result, `SELECT * FROM settings WHERE id = 1`)
	if err == sql.ErrNoRows {
		return &model.Settings{ID: 1}, nil
	}
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (i *Instance) SetWelcomeMessage(text string) error {
	_, err := i.db.Exec(
		`INSERT INTO settings (id, welcome_message) VALUES (1, $1)
		 ON CONFLICT (id) DO UPDATE SET welcome_message = EXCLUDED.welcome_message`,
		text,
	)
	return err
}

// SetAlert stores the alert payload and starts its expiry clock. Everyone's
// seen marker stays untouched, so the next interaction delivers it.
func (i *Instance) SetAlert(items []model.AlertItem, durationHours int) error {
	_, err := i.db.Exec(
		`INSERT INTO settings (id, alert_message, alert_message_set_at, alert_duration_hours)
		 VALUES (1, $1, NOW(), $2)
		 ON CONFLICT (id) DO UPDATE
		 SET alert_message = EXCLUDED.alert_message,
		     alert_message_set_at = EXCLUDED.alert_message_set_at,
		     alert_duration_hours = EXCLUDED.alert_duration_hours`,
		model.AlertItems(items),
		durationHours,
	)
	return err
}

func (i *Instance) ClearAlert() error {
	_, err := i.db.Exec(
		`UPDATE settings
		 SET alert_message = NULL, alert_message_set_at = NULL, alert_duration_hours = NULL
		 WHERE id = 1`,
	)
	return err
}

// CountAlertSeenSince reports how many users received the alert set at t.
func (i *Instance) CountAlertSeenSince(t time.Time) (int, error) {
	var count int
	err := i.db.Get(
		&count,
		`SELECT COUNT(*) FROM users WHERE last_alert_seen_at >= $1`,
		t,
	)
	return count, err
}

func (i *Instance) LogButtonClick(buttonID, userID int64) error {
	_, err := i.db.Exec(
		`INSERT INTO button_clicks_log (button_id, user_id, clicked_at) VALUES ($1, $2, NOW())`,
		buttonID,
		userID,
	)
	return err
}

func (i *Instance) GeneralStats() (*model.GeneralStats, error) {
	var row struct {
		TotalUsers       int `db:"total_users"`
		DailyActiveUsers int `db:"daily_active_users"`
		Active3d         int `db:"active_3d"`
		Active7d         int `db:"active_7d"`
		TotalButtons     int `db:"total_buttons"`
		TotalMessages    int `db:"total_messages"`
		DailyClicks      int `db:"daily_clicks"`
		LogClicks        int `db:"log_clicks"`
		LifetimeClicks   int `db:"lifetime_clicks"`
	}

	err := i.db.Get(
		&row,
		`SELECT
		     (SELECT COUNT(*) FROM users) AS total_users,
		     (SELECT COUNT(*) FROM users WHERE last_active >= NOW() - INTERVAL '1 day') AS daily_active_users,
		     (SELECT COUNT(*) FROM users WHERE last_active >= NOW() - INTERVAL '3 days') AS active_3d,
		     (SELECT COUNT(*) FROM users WHERE last_active >= NOW() - INTERVAL '7 days') AS active_7d,
		     (SELECT COUNT(*) FROM buttons) AS total_buttons,
		     (SELECT COUNT(*) FROM messages) AS total_messages,
		     (SELECT COUNT(*) FROM button_clicks_log WHERE clicked_at >= NOW() - INTERVAL '1 day') AS daily_clicks,
		     (SELECT COUNT(*) FROM button_clicks_log) AS log_clicks,
		     (SELECT COALESCE(SUM(clicks_count), 0) FROM lifetime_button_stats) AS lifetime_clicks`,
	)
	if err != nil {
		return nil, err
	}

	return &model.GeneralStats{
		TotalUsers:       row.TotalUsers,
		DailyActiveUsers: row.DailyActiveUsers,
		Active3d:         row.Active3d,
		Active7d:         row.Active7d,
		Inactive3d:       row.TotalUsers - row.Active3d,
		Inactive7d:       row.TotalUsers - row.Active7d,
		TotalButtons:     row.TotalButtons,
		TotalMessages:    row.TotalMessages,
		DailyClicks:      row.DailyClicks,
		TotalClicks:      row.LogClicks + row.LifetimeClicks,
	}, nil
}

// TopButtons lists the ten most clicked leaf buttons, either for the last
// day or for all time. Branch buttons are excluded: their clicks are
// navigation, not content views. The all-time view folds in the rolled-up
// lifetime counters.
func (i *Instance) TopButtons(daily bool) ([]model.ButtonUsage, error) {
	var result []model.ButtonUsage

	if daily {
		err := i.db.Select(
			&result,
			`SELECT b.text, COUNT(*) AS clicks_count, COUNT(DISTINCT l.user_id) AS unique_users
			 FROM button_clicks_log l
			 JOIN buttons b ON b.id = l.button_id
			 WHERE l.clicked_at >= NOW() - INTERVAL '1 day'
			   AND NOT EXISTS (SELECT 1 FROM buttons c WHERE c.parent_id = b.id)
			 GROUP BY b.id, b.text
			 ORDER BY clicks_count DESC
			 LIMIT 10`,
		)
		return result, err
	}

	err := i.db.Select(
		&result,
		`SELECT b.text,
		        COALESCE(log.clicks, 0) + COALESCE(life.clicks, 0) AS clicks_count,
		        COALESCE(log.users, 0) AS unique_users
		 FROM buttons b
		 LEFT JOIN (
		     SELECT button_id, COUNT(*) AS clicks, COUNT(DISTINCT user_id) AS users
		     FROM button_clicks_log GROUP BY button_id
		 ) log ON log.button_id = b.id
		 LEFT JOIN (
		     SELECT button_id, SUM(clicks_count) AS clicks
		     FROM lifetime_button_stats GROUP BY button_id
		 ) life ON life.button_id = b.id
		 WHERE NOT EXISTS (SELECT 1 FROM buttons c WHERE c.parent_id = b.id)
		   AND COALESCE(log.clicks, 0) + COALESCE(life.clicks, 0) > 0
		 ORDER BY clicks_count DESC
		 LIMIT 10`,
	)
	return result, err
}

func (i *Instance) UserActivity(userID int64) (*model.UserActivity, error) {
	var result model.UserActivity

	err := i.db.Get(
		&result.LastActive,
		`SELECT last_active FROM users WHERE id = $1`,
		userID,
	)
	if err != nil {
		return nil, err
	}

	err = i.db.Get(
		&result.ClicksToday,
		`SELECT COUNT(*) FROM button_clicks_log
		 WHERE user_id = $1 AND clicked_at >= NOW() - INTERVAL '1 day'`,
		userID,
	)
	if err != nil {
		return nil, err
	}

	err = i.db.Select(
		&result.PerButton,
		`SELECT b.text, COUNT(*) AS clicks_count, 1 AS unique_users
		 FROM button_clicks_log l
		 JOIN buttons b ON b.id = l.button_id
		 WHERE l.user_id = $1
		 GROUP BY b.id, b.text
		 ORDER BY clicks_count DESC
		 LIMIT 10`,
		userID,
	)
	if err != nil {
		return nil, err
	}

	return &result, nil
}

func (i *Instance) ButtonClickStats(buttonID int64) (*model.ClickStats, error) {
	var row struct {
		DailyClicks    int `db:"daily_clicks"`
		DailyUsers     int `db:"daily_users"`
		LogClicks      int `db:"log_clicks"`
		LifetimeClicks int `db:"lifetime_clicks"`
	}

	err := i.db.Get(
		&row,
		`SELECT
		     (SELECT COUNT(*) FROM button_clicks_log
		      WHERE button_id = $1 AND clicked_at >= NOW() - INTERVAL '1 day') AS daily_clicks,
		     (SELECT COUNT(DISTINCT user_id) FROM button_clicks_log
		      WHERE button_id = $1 AND clicked_at >= NOW() - INTERVAL '1 day') AS daily_users,
		     (SELECT COUNT(*) FROM button_clicks_log WHERE button_id = $1) AS log_clicks,
		     (SELECT COALESCE(SUM(clicks_count), 0) FROM lifetime_button_stats WHERE button_id = $1) AS lifetime_clicks`,
		buttonID,
	)
	if err != nil {
		return nil, err
	}

	return &model.ClickStats{
		DailyClicks: row.DailyClicks,
		DailyUsers:  row.DailyUsers,
		TotalClicks: row.LogClicks + row.LifetimeClicks,
	}, nil
}

// InsertBackgroundJob queues work for the external automation worker and
// returns the job id to hand to it.
func (i *Instance) InsertBackgroundJob(jobType string, data interface{}, userID int64) (int64, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return 0, errors.Wrap(err, "cannot marshal job data")
	}

	var id int64
	err = i.db.Get(
		&id,
		`INSERT INTO background_jobs (job_type, job_data, triggered_by_user_id)
		 VALUES ($1, $2, $3) RETURNING id`,
		jobType,
		payload,
		userID,
	)
	return id, err
}

// RollupLifetimeStats folds click-log rows older than the cutoff into the
// per-button lifetime counters and drops them. Returns how many log rows
// were absorbed.
func (i *Instance) RollupLifetimeStats(olderThan time.Time) (int64, error) {
	var absorbed int64

	err := i.withTx(func(tx *sqlx.Tx) error {
		_, err := tx.Exec(
			`INSERT INTO lifetime_button_stats (button_id, clicks_count)
			 SELECT button_id, COUNT(*) FROM button_clicks_log
			 WHERE clicked_at < $1
			 GROUP BY button_id
			 ON CONFLICT (button_id) DO UPDATE
			 SET clicks_count = lifetime_button_stats.clicks_count + EXCLUDED.clicks_count`,
			olderThan,
		)
		if err != nil {
			return errors.Wrap(err, "cannot roll up click log")
		}

		res, err := tx.Exec(`DELETE FROM button_clicks_log WHERE clicked_at < $1`, olderThan)
		if err != nil {
			return errors.Wrap(err, "cannot prune click log")
		}
		absorbed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	return absorbed, nil
}
