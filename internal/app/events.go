package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"bdemetris/devicehub/internal/inventory"
)

// SlackAPI is the subset of *slack.Client the bot calls.
type SlackAPI interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
	GetUserInfo(user string) (*slack.User, error)
	GetUserByEmail(email string) (*slack.User, error)
	OpenConversation(params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error)
	AuthTest() (*slack.AuthTestResponse, error)
}

// App is the main structure holding all clients.
type App struct {
	API       SlackAPI
	Client    *socketmode.Client
	Inventory *inventory.Inventory
	Logger    *slog.Logger

	// OverdueAfter is how long a checkout may last before the assignee is
	// reminded.
	OverdueAfter time.Duration
	// CheckEvery is the overdue checker interval.
	CheckEvery time.Duration

	botOnce   sync.Once
	botUserID string

	notifiedMu sync.Mutex
	notified   map[string]time.Time
}

func (a *App) logger() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// HandleEvents listens for and processes incoming Slack events.
func (a *App) HandleEvents(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-a.Client.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				a.logger().Info("connecting to Slack with Socket Mode")
			case socketmode.EventTypeConnected:
				a.logger().Info("connected to Slack with Socket Mode")
			case socketmode.EventTypeEventsAPI:
				eventsAPIEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					a.Client.Debugf("Ignored %+v\n", evt)
					continue
				}
				a.Client.Ack(*evt.Request)
				if eventsAPIEvent.Type == slackevents.CallbackEvent {
					a.handleCallbackEvent(ctx, eventsAPIEvent)
				}
			}
		}
	}
}

// handleCallbackEvent processes the inner event from a generic EventsAPI payload.
func (a *App) handleCallbackEvent(ctx context.Context, eventsAPIEvent slackevents.EventsAPIEvent) {
	switch ev := eventsAPIEvent.InnerEvent.Data.(type) {
	case *slackevents.AppMentionEvent:
		a.logger().Debug("received app_mention", "user", ev.User, "channel", ev.Channel, "text", ev.Text)
		a.handleAppMentionCommand(ctx, ev.Channel, ev.User, a.stripMention(ev.Text))
	}
}

// stripMention removes the bot's own mention tag from the message text.
func (a *App) stripMention(text string) string {
	a.botOnce.Do(func() {
		resp, err := a.API.AuthTest()
		if err != nil {
			a.logger().Error("failed to get bot identity", "error", err)
			return
		}
		a.botUserID = resp.UserID
	})
	if a.botUserID != "" {
		text = strings.Replace(text, fmt.Sprintf("<@%s>", a.botUserID), "", 1)
	}
	return strings.TrimSpace(text)
}

// handleAppMentionCommand routes the command to the correct handler function.
func (a *App) handleAppMentionCommand(ctx context.Context, channelID, userID, command string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		a.sendBlocks(channelID, createHelpMessage(userID))
		return
	}

	cmd := strings.ToLower(parts[0])
	args := parts[1:]

	switch cmd {
	case "help":
		a.sendBlocks(channelID, createHelpMessage(userID))
	case "hello", "hi":
		a.sendText(channelID, fmt.Sprintf("Hello <@%s>! I received your greeting.", userID))
	case "show", "list":
		a.handleShow(ctx, channelID, userID, args)
	case "checkout":
		a.handleCheckoutDevice(ctx, channelID, userID, args)
	case "checkin", "return":
		a.handleCheckinDevice(ctx, channelID, userID, args)
	case "stats":
		a.handleStats(channelID)
	default:
		a.sendBlocks(channelID, createUnknownCommandMessage(userID))
	}
}
