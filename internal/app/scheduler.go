package app

import (
	"context"
	"fmt"
	"time"

	"github.com/slack-go/slack"

	"bdemetris/devicehub/pkg/model"
)

const (
	DefaultCheckEvery   = 1 * time.Hour
	DefaultOverdueAfter = 30 * 24 * time.Hour
)

// StartOverdueChecker runs a background loop that reminds assignees of
// devices checked out longer than OverdueAfter.
func (a *App) StartOverdueChecker(ctx context.Context) {
	every := a.CheckEvery
	if every <= 0 {
		every = DefaultCheckEvery
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	a.logger().Info("overdue checker started", "every", every, "overdue_after", a.overdueAfter())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.checkAndNotifyOverdue(time.Now())
		}
	}
}

func (a *App) overdueAfter() time.Duration {
	if a.OverdueAfter <= 0 {
		return DefaultOverdueAfter
	}
	return a.OverdueAfter
}

// checkAndNotifyOverdue sends one reminder per checkout and returns the
// number of reminders sent.
func (a *App) checkAndNotifyOverdue(now time.Time) int {
	a.notifiedMu.Lock()
	defer a.notifiedMu.Unlock()
	if a.notified == nil {
		a.notified = map[string]time.Time{}
	}

	sent := 0
	for _, dev := range a.Inventory.Devices() {
		if dev.Status != model.StatusCheckedOut || dev.LastCheckout == nil {
			continue
		}
		if now.Sub(*dev.LastCheckout) < a.overdueAfter() {
			continue
		}
		if last, ok := a.notified[dev.ID]; ok && last.Equal(*dev.LastCheckout) {
			continue
		}
		a.logger().Warn("device is overdue", "device", dev.ID, "checked_out", dev.LastCheckout)
		if a.notifyOverdueAssignee(dev, now) {
			a.notified[dev.ID] = *dev.LastCheckout
			sent++
		}
	}
	return sent
}

func (a *App) notifyOverdueAssignee(dev model.Device, now time.Time) bool {
	email := dev.AssignedTo
	if u, ok := a.Inventory.User(dev.AssignedTo); ok {
		email = u.Email
	}

	user, err := a.API.GetUserByEmail(email)
	if err != nil {
		a.logger().Error("could not find Slack user", "email", email, "error", err)
		return false
	}

	channel, _, _, err := a.API.OpenConversation(&slack.OpenConversationParameters{
		Users: []string{user.ID},
	})
	if err != nil {
		a.logger().Error("failed to open DM", "user", user.ID, "error", err)
		return false
	}

	days := int(now.Sub(*dev.LastCheckout).Hours() / 24)
	message := fmt.Sprintf(
		"👋 Hi %s! You've had device `%s` (%s) for %d days. Please check it in when you're done with it.",
		user.RealName, dev.Name, dev.SerialNumber, days,
	)

	a.sendText(channel.ID, message)
	return true
}
