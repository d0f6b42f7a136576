package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/pkg/errors"
)

type HumanReadableError interface {
	error
	Human() string
	Cause() error
}

// Human-readable Error
type HRError struct {
	human string
	error error
}

func NewHRError(human string, err error) HumanReadableError {
	return &HRError{human: human, error: err}
}

// Just to complain error interface, it should be named String() I guess
func (e *HRError) Error() string {
	return e.error.Error()
}

func (e *HRError) Human() string {
	return e.human
}

func (e *HRError) Cause() error {
	return e.error
}

var (
	reLink   = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	reBold   = regexp.MustCompile("\\*+[^*\n]+\\*+")
	reItalic = regexp.MustCompile("_+[^_\n]+_+")
	reCode   = regexp.MustCompile("`([^`\n]+)`")
)

// MarkdownToHTML converts the restricted markup dialect admins type by hand
// into Telegram HTML: [text](url), *bold*, _italic_ and `code`. Substitution
// runs link, bold, italic, code in that order so earlier replacements are
// never re-matched. Doubled markers (**…**, __…__) are left untouched.
func MarkdownToHTML(text string) string {
	if text == "" {
		return ""
	}

	out := reLink.ReplaceAllString(text, `<a href="$2">$1</a>`)

	out = reBold.ReplaceAllStringFunc(out, func(m string) string {
		if strings.HasPrefix(m, "**") || strings.HasSuffix(m, "**") {
			return m
		}
		return "<b>" + m[1:len(m)-1] + "</b>"
	})

	out = reItalic.ReplaceAllStringFunc(out, func(m string) string {
		if strings.HasPrefix(m, "__") || strings.HasSuffix(m, "__") {
			return m
		}
		return "<i>" + m[1:len(m)-1] + "</i>"
	})

	out = reCode.ReplaceAllString(out, "<code>$1</code>")

	return out
}

var arabicIndicDigits = strings.NewReplacer(
	"٠", "0", "١", "1", "٢", "2", "٣", "3", "٤", "4",
	"٥", "5", "٦", "6", "٧", "7", "٨", "8", "٩", "9",
)

// NormalizeDigits maps Arabic-Indic digits to ASCII before numeric
// validation.
func NormalizeDigits(s string) string {
	return arabicIndicDigits.Replace(s)
}

// DispatchJob notifies the external automation endpoint that a background
// job row is ready to be picked up. Fire-and-forget: the caller only learns
// whether initiation succeeded.
func DispatchJob(endpoint string, jobID int64) error {
	body, err := json.Marshal(map[string]int64{"jobId": jobID})
	if err != nil {
		return errors.Wrap(err, "cannot marshal job payload")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute*1)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(err, "cannot create request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "cannot do request")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errors.Errorf("job endpoint returned %s", resp.Status)
	}

	return nil
}
