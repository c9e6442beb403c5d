package orchestrate

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// promoteCooldown is the minimum spacing between two promote-stage full
// runs, enforced via the ".last_promote_run" sentinel file.
const promoteCooldown = time.Hour

func readPromoteSentinel(homeDir string) (time.Time, bool) {
	data, err := os.ReadFile(filepath.Join(homeDir, ".tactical", ".last_promote_run"))
	if err != nil {
		return time.Time{}, false
	}
	secs, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(int64(secs), 0), true
}

func shouldRunPromote(homeDir string, now time.Time) bool {
	last, ok := readPromoteSentinel(homeDir)
	if !ok {
		return true
	}
	return now.Sub(last) > promoteCooldown
}

func markPromoteRun(homeDir string, now time.Time) error {
	dir := filepath.Join(homeDir, ".tactical")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ".last_promote_run"),
		[]byte(strconv.FormatFloat(float64(now.Unix()), 'f', -1, 64)), 0644)
}

func readDailySentinel(homeDir string) (string, bool) {
	data, err := os.ReadFile(filepath.Join(homeDir, ".tactical", ".last_daily_auto"))
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(data)), true
}

// shouldRunDaily reports whether the daily pipeline has not yet run for
// today's date (in the local zone), per the ".last_daily_auto" sentinel.
func shouldRunDaily(homeDir string, now time.Time) bool {
	last, ok := readDailySentinel(homeDir)
	if !ok {
		return true
	}
	return last != now.Format("2006-01-02")
}

func markDailyRun(homeDir string, now time.Time) error {
	dir := filepath.Join(homeDir, ".tactical")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ".last_daily_auto"), []byte(now.Format("2006-01-02")), 0644)
}
