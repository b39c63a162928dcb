package app

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bdemetris/devicehub/internal/inventory"
	"bdemetris/devicehub/pkg/apiclient"
)

type posted struct {
	channel string
	values  url.Values
}

func (p posted) body() string {
	return p.values.Get("text") + p.values.Get("blocks")
}

type fakeSlack struct {
	mu     sync.Mutex
	posts  []posted
	emails map[string]string
	opened []string
}

func (f *fakeSlack) PostMessage(channelID string, options ...slack.MsgOption) (string, string, error) {
	_, values, err := slack.UnsafeApplyMsgOptions("token", channelID, "https://slack.test/api/", options...)
	if err != nil {
		return "", "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts = append(f.posts, posted{channel: channelID, values: values})
	return channelID, "1", nil
}

func (f *fakeSlack) GetUserInfo(user string) (*slack.User, error) {
	email, ok := f.emails[user]
	if !ok {
		return nil, errors.New("user_not_found")
	}
	return &slack.User{ID: user, Profile: slack.UserProfile{Email: email}}, nil
}

func (f *fakeSlack) GetUserByEmail(email string) (*slack.User, error) {
	for id, e := range f.emails {
		if e == email {
			return &slack.User{ID: id, RealName: id}, nil
		}
	}
	return nil, errors.New("users_not_found")
}

func (f *fakeSlack) OpenConversation(params *slack.OpenConversationParameters) (*slack.Channel, bool, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened = append(f.opened, params.Users...)
	ch := &slack.Channel{}
	ch.ID = "D-" + params.Users[0]
	return ch, false, false, nil
}

func (f *fakeSlack) AuthTest() (*slack.AuthTestResponse, error) {
	return &slack.AuthTestResponse{UserID: "UBOT"}, nil
}

func (f *fakeSlack) last(t *testing.T) posted {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.posts)
	return f.posts[len(f.posts)-1]
}

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestApp(t *testing.T) (*App, *fakeSlack) {
	t.Helper()
	remote := apiclient.New("http://127.0.0.1:1", apiclient.WithTimeout(time.Second))
	inv := inventory.New(remote, inventory.WithClock(func() time.Time { return fixedNow }))
	require.Error(t, inv.Load(context.Background()))

	api := &fakeSlack{emails: map[string]string{
		"UJANE":  "jane.smith@company.com",
		"UJOHN":  "john.doe@company.com",
		"UADMIN": "admin@company.com",
		"UVIEW":  "viewer@company.com",
		"UGHOST": "ghost@company.com",
	}}
	return &App{API: api, Inventory: inv, OverdueAfter: 30 * 24 * time.Hour}, api
}

func TestStripMention(t *testing.T) {
	a, _ := newTestApp(t)
	assert.Equal(t, "show all", a.stripMention("<@UBOT> show all"))
	assert.Equal(t, "help", a.stripMention("  help "))
}

func TestHelpAndUnknownCommand(t *testing.T) {
	a, api := newTestApp(t)
	ctx := context.Background()

	a.handleAppMentionCommand(ctx, "C1", "UJANE", "")
	assert.Contains(t, api.last(t).body(), "Available Commands")

	a.handleAppMentionCommand(ctx, "C1", "UJANE", "dance")
	assert.Contains(t, api.last(t).body(), "don't recognize that command")
}

func TestShowAll(t *testing.T) {
	a, api := newTestApp(t)
	a.handleAppMentionCommand(context.Background(), "C1", "UJANE", "show all")

	body := api.last(t).body()
	assert.Contains(t, body, "All devices* (5 found)")
	assert.Contains(t, body, "Pixel 8 Pro")
	assert.Less(t, strings.Index(body, "iPhone 15 Pro"), strings.Index(body, "Pixel 8 Pro"))
}

func TestShowAvailableWithFilter(t *testing.T) {
	a, api := newTestApp(t)
	a.handleAppMentionCommand(context.Background(), "C1", "UJANE", "show available macbook")

	body := api.last(t).body()
	assert.Contains(t, body, "(1 found)")
	assert.Contains(t, body, "MacBook Pro M3")
	assert.NotContains(t, body, "Samsung")
}

func TestShowMine(t *testing.T) {
	a, api := newTestApp(t)
	a.handleAppMentionCommand(context.Background(), "C1", "UJOHN", "show mine")

	body := api.last(t).body()
	assert.Contains(t, body, "Your devices* (1 found)")
	assert.Contains(t, body, "iPhone 15 Pro")
}

func TestShowMine_UnknownAccount(t *testing.T) {
	a, api := newTestApp(t)
	a.handleAppMentionCommand(context.Background(), "C1", "UGHOST", "show mine")
	assert.Contains(t, api.last(t).body(), "No inventory account")
}

func TestShowSingleDeviceBySerial(t *testing.T) {
	a, api := newTestApp(t)
	a.handleAppMentionCommand(context.Background(), "C1", "UJANE", "show s24-789xyz")

	body := api.last(t).body()
	assert.Contains(t, body, "Device Information")
	assert.Contains(t, body, "Samsung Galaxy S24")

	a.handleAppMentionCommand(context.Background(), "C1", "UJANE", "show nope")
	assert.Contains(t, api.last(t).body(), "was not found")
}

func TestCheckoutRecordsLocallyWhenOffline(t *testing.T) {
	a, api := newTestApp(t)
	a.handleAppMentionCommand(context.Background(), "C1", "UJANE", "checkout 2")

	body := api.last(t).body()
	assert.Contains(t, body, "checked out to *Jane Smith*")
	assert.Contains(t, body, "only recorded locally")

	dev, ok := a.Inventory.Device("2")
	require.True(t, ok)
	assert.Equal(t, "4", dev.AssignedTo)
	assert.Equal(t, 1, dev.UsageCount)
}

func TestCheckoutUnavailableDevice(t *testing.T) {
	a, api := newTestApp(t)
	a.handleAppMentionCommand(context.Background(), "C1", "UJANE", "checkout 1")
	assert.Contains(t, api.last(t).body(), "Could not check out")

	dev, _ := a.Inventory.Device("1")
	assert.Equal(t, "3", dev.AssignedTo)
}

func TestCheckinOnlyByAssigneeOrAdmin(t *testing.T) {
	a, api := newTestApp(t)
	ctx := context.Background()

	a.handleAppMentionCommand(ctx, "C1", "UJANE", "checkin 1")
	assert.Contains(t, api.last(t).body(), "only they or an admin")
	dev, _ := a.Inventory.Device("1")
	assert.Equal(t, "3", dev.AssignedTo)

	a.handleAppMentionCommand(ctx, "C1", "UJOHN", "checkin 1")
	assert.Contains(t, api.last(t).body(), "is back and available")
	dev, _ = a.Inventory.Device("1")
	assert.False(t, dev.IsAssigned())

	a.handleAppMentionCommand(ctx, "C1", "UADMIN", "return 5")
	assert.Contains(t, api.last(t).body(), "is back and available")
}

func TestStats(t *testing.T) {
	a, api := newTestApp(t)
	a.handleAppMentionCommand(context.Background(), "C1", "UJANE", "stats")

	body := api.last(t).body()
	assert.Contains(t, body, "5 devices, 2 available (40%), 2 checked out (40%), 1 in maintenance")
	assert.Contains(t, body, "4 users, 4 active")
}

func TestOverdueChecker_NotifiesOncePerCheckout(t *testing.T) {
	a, api := newTestApp(t)

	assert.Equal(t, 2, a.checkAndNotifyOverdue(fixedNow))
	assert.ElementsMatch(t, []string{"UJOHN", "UVIEW"}, api.opened)
	assert.Contains(t, api.last(t).body(), "Please check it in")

	assert.Equal(t, 0, a.checkAndNotifyOverdue(fixedNow.Add(time.Hour)))
}

func TestOverdueChecker_RespectsThreshold(t *testing.T) {
	a, _ := newTestApp(t)
	a.OverdueAfter = 365 * 24 * time.Hour
	assert.Equal(t, 0, a.checkAndNotifyOverdue(fixedNow))
}

func TestIsArgumentAccepted(t *testing.T) {
	assert.True(t, IsArgumentAccepted(showScopes, "ALL"))
	assert.False(t, IsArgumentAccepted(showScopes, "A1B2C3D4E5"))
}

func TestTruncateKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 8))
	got := truncate("Ünïcödé Tablet Ünïcödé", 10)
	assert.Equal(t, "Ünïcödé...", got)
	assert.True(t, utf8.ValidString(got))
}
