package app

import (
	"fmt"
	"strings"

	"github.com/slack-go/slack"

	"bdemetris/devicehub/pkg/model"
)

const displayDate = "Jan 02, 2006"

func (a *App) sendText(channelID, text string) {
	_, _, err := a.API.PostMessage(
		channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionAsUser(true),
	)
	if err != nil {
		a.logger().Error("failed to post text message", "channel", channelID, "error", err)
	}
}

func (a *App) sendBlocks(channelID string, blocks []slack.Block) {
	_, _, err := a.API.PostMessage(
		channelID,
		slack.MsgOptionBlocks(blocks...),
		slack.MsgOptionAsUser(true),
	)
	if err != nil {
		a.logger().Error("failed to post block message", "channel", channelID, "error", err)
	}
}

func createHelpMessage(userID string) []slack.Block {
	headerText := "📱 Device Hub Help"
	headerBlock := slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", headerText, false, false))

	sectionText := fmt.Sprintf("👋 Hello <@%s>! I can help you find, borrow and return test devices.\n\n", userID) +
		"*Available Commands:*\n\n" +
		"• `show all` - List every device in the inventory, most recently used first.\n" +
		"• `show mine` - List the devices currently checked out to *you*.\n" +
		"• `show available [filter]` - Find available devices (e.g., `show available pixel`).\n" +
		"• `show <ID or serial>` - Look up a single device.\n" +
		"• `checkout <ID or serial>` - Check a device out to *yourself*.\n" +
		"• `checkin <ID or serial>` - Return a device.\n" +
		"• `stats` - Inventory and team totals.\n" +
		"• `help` - Display this menu."

	sectionBlock := slack.NewSectionBlock(
		slack.NewTextBlockObject("mrkdwn", sectionText, false, false),
		nil, nil,
	)

	contextText := "💡 *Tip:* I match you to your inventory account by your Slack email."
	contextBlock := slack.NewContextBlock("", slack.NewTextBlockObject("mrkdwn", contextText, false, false))

	return []slack.Block{
		headerBlock,
		slack.NewDividerBlock(),
		sectionBlock,
		contextBlock,
	}
}

func createUnknownCommandMessage(userID string) []slack.Block {
	text := fmt.Sprintf("Sorry <@%s>, I don't recognize that command. Type `@botName help` to see what I can do!", userID)
	return []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", text, false, false), nil, nil),
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func (a *App) renderDeviceTable(channelID, title string, devices []model.Device) {
	// Slack blocks have a 3000 char limit.
	const maxDisplay = 10

	listBlocks := []slack.Block{
		slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("🔎 *%s* (%d found)", title, len(devices)), false, false), nil, nil),
		slack.NewDividerBlock(),
	}

	if len(devices) == 0 {
		listBlocks = append(listBlocks, slack.NewSectionBlock(
			slack.NewTextBlockObject("mrkdwn", "_No devices match._", false, false), nil, nil))
		a.sendBlocks(channelID, listBlocks)
		return
	}

	var rows strings.Builder
	rows.WriteString(fmt.Sprintf("```%-8s | %-22s | %-14s | %-18s | %s```\n", "ID", "NAME", "TYPE", "ASSIGNED TO", "CHECKED OUT"))

	for i, dev := range devices {
		if i >= maxDisplay {
			break
		}

		assignee := string(dev.Status)
		if dev.IsAssigned() {
			assignee = dev.AssignedUser
			if assignee == "" {
				assignee = dev.AssignedTo
			}
		}

		checkedOut := "-"
		if dev.LastCheckout != nil && dev.Status == model.StatusCheckedOut {
			checkedOut = dev.LastCheckout.Format(displayDate)
		}

		rows.WriteString(fmt.Sprintf("`%-8s | %-22s | %-14s | %-18s | %s`\n",
			truncate(dev.ID, 8),
			truncate(dev.Name, 22),
			truncate(string(dev.Type), 14),
			truncate(assignee, 18),
			checkedOut,
		))
	}

	listBlocks = append(listBlocks, slack.NewSectionBlock(slack.NewTextBlockObject("mrkdwn", rows.String(), false, false), nil, nil))

	if len(devices) > maxDisplay {
		remaining := len(devices) - maxDisplay
		footerText := fmt.Sprintf("_Showing top %d results. There are *%d* more devices. Try a more specific search (e.g., `@bot show available pixel`)_", maxDisplay, remaining)
		listBlocks = append(listBlocks, slack.NewContextBlock("",
			slack.NewTextBlockObject("mrkdwn", footerText, false, false),
		))
	}

	a.sendBlocks(channelID, listBlocks)
}

func (a *App) renderSingleDeviceDetail(channelID string, dev model.Device) {
	status := "✅ " + string(dev.Status)
	if dev.IsAssigned() {
		status = fmt.Sprintf("👤 Checked out to %s", dev.AssignedUser)
	}

	fields := []*slack.TextBlockObject{
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Name:*\n%s", dev.Name), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Type:*\n%s", dev.Type), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Serial:*\n%s", dev.SerialNumber), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*OS:*\n%s", dev.OSVersion), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Status:*\n%s", status), false, false),
		slack.NewTextBlockObject("mrkdwn", fmt.Sprintf("*Location:*\n%s", dev.Location), false, false),
	}

	if dev.LastCheckout != nil {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn",
			fmt.Sprintf("*Last Checkout:*\n%s", dev.LastCheckout.Format(displayDate)), false, false))
	}
	if dev.LastCheckin != nil {
		fields = append(fields, slack.NewTextBlockObject("mrkdwn",
			fmt.Sprintf("*Last Checkin:*\n%s", dev.LastCheckin.Format(displayDate)), false, false))
	}

	blocks := []slack.Block{
		slack.NewHeaderBlock(slack.NewTextBlockObject("plain_text", "📱 Device Information", false, false)),
		slack.NewSectionBlock(nil, fields, nil),
	}
	if dev.Notes != "" {
		blocks = append(blocks, slack.NewContextBlock("",
			slack.NewTextBlockObject("mrkdwn", dev.Notes, false, false)))
	}

	a.sendBlocks(channelID, blocks)
}
