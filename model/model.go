package model

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// Path sentinels. Any other path is a slash-joined chain of button ids
// from a top-level button down to the current one.
const (
	PathRoot        = "root"
	PathSupervision = "supervision"
)

// PathTail returns the id of the button the path points at.
// ok is false for the root and supervision sentinels.
func PathTail(path string) (int64, bool) {
	if path == PathRoot || path == PathSupervision || path == "" {
		return 0, false
	}
	parts := strings.Split(path, "/")
	id, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// PathParentID returns the current node id as a nullable parent reference,
// nil meaning top level.
func PathParentID(path string) *int64 {
	id, ok := PathTail(path)
	if !ok {
		return nil
	}
	return &id
}

func PathPush(path string, id int64) string {
	return path + "/" + strconv.FormatInt(id, 10)
}

// PathPop goes one level up. Supervision pops straight back to root.
func PathPop(path string) string {
	if path == PathSupervision {
		return PathRoot
	}
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		return PathRoot
	}
	parent := path[:idx]
	if parent == "" || parent == PathRoot {
		return PathRoot
	}
	return parent
}

type User struct {
	ID      int64 `db:"id"`
	ChatID  int64 `db:"chat_id"`
	IsAdmin bool  `db:"is_admin"`
	Banned  bool  `db:"banned"`

	CurrentPath string    `db:"current_path"`
	State       State     `db:"state"`
	StateData   StateData `db:"state_data"`

	LastActive      time.Time     `db:"last_active"`
	LastAlertSeenAt pq.NullTime   `db:"last_alert_seen_at"`
	PinnedAlertID   sql.NullInt64 `db:"pinned_alert_id"`
}

type Button struct {
	ID          int64         `db:"id"`
	Text        string        `db:"text"`
	ParentID    sql.NullInt64 `db:"parent_id"`
	Order       int           `db:"order"`
	IsFullWidth bool          `db:"is_full_width"`
	AdminOnly   bool          `db:"admin_only"`
}

// ButtonRef is the slim form carried inside wizard state data.
type ButtonRef struct {
	ID   int64  `json:"id"`
	Text string `json:"text"`
}

func (b Button) Ref() ButtonRef {
	return ButtonRef{ID: b.ID, Text: b.Text}
}

type MessageType string

const (
	MessageText     MessageType = "text"
	MessagePhoto    MessageType = "photo"
	MessageVideo    MessageType = "video"
	MessageDocument MessageType = "document"
	MessageAudio    MessageType = "audio"
	MessageVoice    MessageType = "voice"
	MessagePoll     MessageType = "poll"
)

type Message struct {
	ID       int64       `db:"id"`
	ButtonID int64       `db:"button_id"`
	Order    int         `db:"order"`
	Type     MessageType `db:"type"`
	Content  string      `db:"content"`
	Caption  string      `db:"caption"`
	Entities Entities    `db:"entities"`
}

// MessageDraft is a captured inbound message before it is persisted,
// either as button content or as a broadcast payload.
type MessageDraft struct {
	Type     MessageType `json:"type"`
	Content  string      `json:"content"`
	Caption  string      `json:"caption,omitempty"`
	Entities Entities    `json:"entities,omitempty"`
}

// Entity is one rich-text span. The span list is opaque to the engine:
// spans captured from a forwarded message are replayed verbatim.
type Entity struct {
	Type          string          `json:"type"`
	Offset        int             `json:"offset"`
	Length        int             `json:"length"`
	URL           string          `json:"url,omitempty"`
	User          json.RawMessage `json:"user,omitempty"`
	Language      string          `json:"language,omitempty"`
	CustomEmojiID string          `json:"custom_emoji_id,omitempty"`
}

type Entities []Entity

func (e Entities) Value() (driver.Value, error) {
	if e == nil {
		e = Entities{}
	}
	return json.Marshal(e)
}

func (e *Entities) Scan(src interface{}) error {
	return scanJSON(src, e, "entities")
}

// AlertItem references one stored alert message in the chat it was captured
// in. RequiresForward marks content that loses functionality when copied
// without attribution (polls stop collecting votes), so delivery must use
// an attributed forward instead of a copy.
type AlertItem struct {
	RequiresForward bool  `json:"requires_forward"`
	FromChatID      int64 `json:"from_chat_id"`
	MessageID       int   `json:"message_id"`
}

type AlertItems []AlertItem

func (a AlertItems) Value() (driver.Value, error) {
	if a == nil {
		return nil, nil
	}
	return json.Marshal(a)
}

func (a *AlertItems) Scan(src interface{}) error {
	if src == nil {
		*a = nil
		return nil
	}
	return scanJSON(src, a, "alert items")
}

// Settings is the singleton row (id = 1).
type Settings struct {
	ID                 int            `db:"id"`
	WelcomeMessage     sql.NullString `db:"welcome_message"`
	AlertMessage       AlertItems     `db:"alert_message"`
	AlertSetAt         pq.NullTime    `db:"alert_message_set_at"`
	AlertDurationHours sql.NullInt64  `db:"alert_duration_hours"`
}

// AlertActive reports whether an alert is configured and has not expired.
func (s *Settings) AlertActive(now time.Time) bool {
	if len(s.AlertMessage) == 0 || !s.AlertSetAt.Valid || !s.AlertDurationHours.Valid {
		return false
	}
	return now.Before(s.AlertExpiresAt())
}

func (s *Settings) AlertExpiresAt() time.Time {
	return s.AlertSetAt.Time.Add(time.Duration(s.AlertDurationHours.Int64) * time.Hour)
}

type ButtonClickLog struct {
	ID        int64     `db:"id"`
	ButtonID  int64     `db:"button_id"`
	UserID    int64     `db:"user_id"`
	ClickedAt time.Time `db:"clicked_at"`
}

type BackgroundJob struct {
	ID                int64           `db:"id"`
	JobType           string          `db:"job_type"`
	JobData           json.RawMessage `db:"job_data"`
	TriggeredByUserID int64           `db:"triggered_by_user_id"`
}

// SkipReason explains why a batch item was not applied. Skips are reported
// in the operation summary, they never abort the batch.
type SkipReason string

const (
	SkipReserved   SkipReason = "reserved"
	SkipDuplicate  SkipReason = "duplicate"
	SkipSelfTarget SkipReason = "self_target"
)

type SkippedName struct {
	Name   string
	Reason SkipReason
}

type CreateSummary struct {
	Added   int
	Skipped []SkippedName
}

type MoveSummary struct {
	Moved   int
	Skipped []SkippedName
}

type SubtreeStats struct {
	Buttons  int `db:"deep_sub_button_count"`
	Messages int `db:"deep_message_count"`
}

type ClickStats struct {
	DailyClicks int
	DailyUsers  int
	TotalClicks int
}

type ButtonUsage struct {
	Text        string `db:"text"`
	Clicks      int    `db:"clicks_count"`
	UniqueUsers int    `db:"unique_users"`
}

type GeneralStats struct {
	TotalUsers       int
	DailyActiveUsers int
	Active3d         int
	Active7d         int
	Inactive3d       int
	Inactive7d       int
	TotalButtons     int
	TotalMessages    int
	DailyClicks      int
	TotalClicks      int
}

type UserActivity struct {
	LastActive  pq.NullTime
	ClicksToday int
	PerButton   []ButtonUsage
}

func scanJSON(src, dst interface{}, what string) error {
	switch v := src.(type) {
	case []byte:
		if len(v) == 0 {
			return nil
		}
		return errors.Wrapf(json.Unmarshal(v, dst), "cannot unmarshal %s", what)
	case string:
		if v == "" {
			return nil
		}
		return errors.Wrapf(json.Unmarshal([]byte(v), dst), "cannot unmarshal %s", what)
	case nil:
		return nil
	default:
		return errors.Errorf("unsupported %s source type %T", what, src)
	}
}
