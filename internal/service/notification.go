package service

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/telebot.v3"

	"runstake/internal/logger"
	"runstake/internal/storage"
)

// NotificationService broadcasts contest events to a Telegram channel
type NotificationService struct {
	bot       *telebot.Bot
	mu        sync.Mutex
	channelID string
}

// NewNotificationService creates a notification service
func NewNotificationService(botToken, channelID string) (*NotificationService, error) {
	if botToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN not set")
	}

	b, err := telebot.NewBot(telebot.Settings{
		Token: botToken,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	return &NotificationService{
		bot:       b,
		channelID: channelID,
	}, nil
}

// formatStake formats a stake amount for display
func formatStake(amount int64) string {
	return fmt.Sprintf("%d RSC", amount)
}

// PublishContestCreated broadcasts a new contest to the channel
func (s *NotificationService) PublishContestCreated(c *storage.Contest) {
	if s.channelID == "" {
		// Channel not configured, skip broadcasting
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	scheduleLine := fmt.Sprintf("%.1f km %s", c.Schedule.DistanceKm, c.Schedule.Type)
	if c.Schedule.Type == storage.ScheduleWeekly {
		scheduleLine += " on " + strings.Join(c.Schedule.Days, ", ")
	}

	message := fmt.Sprintf("🏃 *New Contest*\n\n*#%d* %s\n\n📏 %s\n💰 Stake: %s\n🏁 Ends: %s\n\nLace up and join!",
		c.ID,
		escapeMarkdown(truncateString(c.Title, 80)),
		escapeMarkdown(scheduleLine),
		formatStake(c.StakeAmount),
		c.EndDate.Format("2006-01-02"))

	recipient := s.getChannelRecipient()
	_, err := s.bot.Send(recipient, message, &telebot.SendOptions{
		ParseMode: telebot.ModeMarkdown,
	})
	if err != nil {
		logger.Debug(0, "broadcast_error", fmt.Sprintf("channel=%s error=%v", s.channelID, err))
		log.Printf("Failed to publish new contest to channel %s: %v", s.channelID, err)
	} else {
		logger.Debug(0, "broadcast_contest_created", fmt.Sprintf("contest_id=%d", c.ID))
	}
}

// PublishSettlement broadcasts a contest settlement to the channel
func (s *NotificationService) PublishSettlement(c *storage.Contest, winnerIDs []int64, txRef string) {
	if s.channelID == "" {
		logger.Debug(0, "broadcast_skipped", "CHANNEL_ID not configured")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	winners := "nobody completed the challenge, stakes roll back"
	if len(winnerIDs) > 0 {
		names := make([]string, 0, len(winnerIDs))
		for _, id := range winnerIDs {
			names = append(names, winnerName(c, id))
		}
		winners = strings.Join(names, ", ")
	}

	refLine := ""
	if txRef != "" {
		refLine = "\n🔗 Tx: " + escapeMarkdown(txRef)
	}

	message := fmt.Sprintf("🏁 *Contest Settled*\n\n*#%d* %s\n\n🏆 Winners: %s\n💰 Stake: %s%s",
		c.ID,
		escapeMarkdown(truncateString(c.Title, 80)),
		escapeMarkdown(winners),
		formatStake(c.StakeAmount),
		refLine)

	recipient := s.getChannelRecipient()
	_, err := s.bot.Send(recipient, message, &telebot.SendOptions{
		ParseMode: telebot.ModeMarkdown,
	})
	if err != nil {
		logger.Debug(0, "broadcast_error", fmt.Sprintf("channel=%s error=%v", s.channelID, err))
		log.Printf("Failed to publish settlement to channel %s: %v", s.channelID, err)
	} else {
		logger.Debug(0, "broadcast_settlement", fmt.Sprintf("contest_id=%d winners=%d", c.ID, len(winnerIDs)))
	}
}

// winnerName resolves an athlete id to its participant display name
func winnerName(c *storage.Contest, athleteID int64) string {
	for _, p := range c.Participants {
		if p.AthleteID == athleteID {
			return p.Name
		}
	}
	return strconv.FormatInt(athleteID, 10)
}

// getChannelRecipient returns the appropriate recipient for the configured channel
func (s *NotificationService) getChannelRecipient() telebot.Recipient {
	if strings.HasPrefix(s.channelID, "@") {
		return &telebot.Chat{Username: s.channelID}
	}
	return &telebot.Chat{ID: parseChannelID(s.channelID)}
}

// parseChannelID parses a channel ID string (supports numeric IDs)
func parseChannelID(channelID string) int64 {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return 0
	}
	return id
}

// truncateString truncates a string to maxLen and adds ellipsis if needed
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return strings.TrimSpace(s[:maxLen-3]) + "..."
}

// escapeMarkdown escapes special characters for Telegram Markdown mode
func escapeMarkdown(s string) string {
	escaped := s
	escaped = strings.ReplaceAll(escaped, `\`, `\\`)
	escaped = strings.ReplaceAll(escaped, "*", `\*`)
	escaped = strings.ReplaceAll(escaped, "_", `\_`)
	escaped = strings.ReplaceAll(escaped, "`", "\\`")
	escaped = strings.ReplaceAll(escaped, "[", `\[`)
	escaped = strings.ReplaceAll(escaped, "]", `\]`)
	return escaped
}
