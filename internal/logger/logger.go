package logger

import (
	"log"
	"time"
)

// Debug logs a debug message with consistent format
// Format: [DEBUG] timestamp=... athlete_id=... action=... details=...
func Debug(athleteID int64, action, details string) {
	timestamp := time.Now().Format(time.RFC3339)
	log.Printf("[DEBUG] timestamp=%s athlete_id=%d action=%s details=%s", timestamp, athleteID, action, details)
}
