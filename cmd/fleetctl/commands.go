package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"bdemetris/devicehub/internal/auth"
	"bdemetris/devicehub/internal/inventory"
	"bdemetris/devicehub/internal/view"
	"bdemetris/devicehub/pkg/model"
)

var (
	errNotLoggedIn = errors.New("not logged in; run `fleetctl login` first")
	errAdminOnly   = errors.New("this command requires an admin account")
)

type access int

const (
	accessPublic access = iota
	accessUser
	accessAdmin
)

type command struct {
	usage  string
	access access
	run    func(ctx context.Context, c *cli, args []string) error
}

// commands is filled in init; handlers print usage from it.
var commands map[string]command

func init() {
	commands = map[string]command{
		"login":         {"login <username> <password>", accessPublic, runLogin},
		"logout":        {"logout", accessPublic, runLogout},
		"whoami":        {"whoami", accessPublic, runWhoami},
		"devices":       {"devices [-search s] [-status s] [-type t] [-mobile] [-csv | -summary]", accessUser, runDevices},
		"users":         {"users [-search s] [-csv]", accessUser, runUsers},
		"add-device":    {"add-device -name n -type t -serial s -os v [-status s] [-location l] [-purchase-date d] [-notes n]", accessAdmin, runAddDevice},
		"update-device": {"update-device [-name n] [-type t] [-serial s] [-os v] [-status s] [-location l] [-purchase-date d] [-notes n] <device-id>", accessAdmin, runUpdateDevice},
		"checkout":      {"checkout [-user id] <device-id>", accessUser, runCheckout},
		"checkin":       {"checkin <device-id>", accessUser, runCheckin},
		"add-user":      {"add-user -name n -email e -department d [-role r] [-username u] [-password p]", accessAdmin, runAddUser},
		"stats":         {"stats", accessUser, runStats},
		"history":       {"history <device-id>", accessUser, runHistory},
		"recommend":     {"recommend", accessUser, runRecommend},
	}
}

type cli struct {
	out          io.Writer
	errOut       io.Writer
	sessions     *auth.SessionManager
	newInventory func() *inventory.Inventory

	inv *inventory.Inventory
}

func (c *cli) run(ctx context.Context, args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "-h" {
		c.usage()
		return nil
	}
	cmd, ok := commands[args[0]]
	if !ok {
		c.usage()
		return fmt.Errorf("unknown command %q", args[0])
	}
	if cmd.access >= accessUser && !c.sessions.IsAuthenticated() {
		return errNotLoggedIn
	}
	if cmd.access == accessAdmin && !c.sessions.IsAdmin() {
		return errAdminOnly
	}
	return cmd.run(ctx, c, args[1:])
}

func (c *cli) usage() {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	fmt.Fprintln(c.out, "Usage: fleetctl <command> [flags]")
	fmt.Fprintln(c.out)
	for _, name := range names {
		fmt.Fprintf(c.out, "  %s\n", commands[name].usage)
	}
}

// inventory loads the collections once per invocation.
func (c *cli) inventory(ctx context.Context) *inventory.Inventory {
	if c.inv == nil {
		c.inv = c.newInventory()
		if err := c.inv.Load(ctx); err != nil {
			fmt.Fprintf(c.errOut, "warning: inventory API unavailable, showing sample data (%v)\n", err)
		}
	}
	return c.inv
}

func (c *cli) warnDegraded(p inventory.Persistence, cause error) {
	if p == inventory.Degraded {
		fmt.Fprintf(c.errOut, "warning: inventory API unavailable, change kept for this run only (%v)\n", cause)
	}
}

func (c *cli) flags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(c.errOut)
	return fs
}

func runLogin(ctx context.Context, c *cli, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: " + commands["login"].usage)
	}
	u, err := c.sessions.Login(ctx, args[0], args[1])
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return errors.New("invalid credentials")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Logged in as %s (%s)\n", u.Name, u.Role)
	return nil
}

func runLogout(ctx context.Context, c *cli, _ []string) error {
	if err := c.sessions.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Logged out")
	return nil
}

func runWhoami(_ context.Context, c *cli, _ []string) error {
	u, ok := c.sessions.Current()
	if !ok {
		fmt.Fprintln(c.out, "Not logged in")
		return nil
	}
	fmt.Fprintf(c.out, "%s <%s> %s, %s\n", u.Name, u.Email, u.Role, u.Department)
	return nil
}

func runDevices(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("devices")
	var q view.DeviceQuery
	fs.StringVar(&q.Search, "search", "", "match name, serial, type, OS or assignee")
	fs.StringVar(&q.Status, "status", view.FilterAll, "status filter")
	fs.StringVar(&q.Type, "type", view.FilterAll, "device type filter")
	mobile := fs.Bool("mobile", false, "phones and tablets only")
	asCSV := fs.Bool("csv", false, "write CSV")
	summary := fs.Bool("summary", false, "write the summary CSV")
	if err := fs.Parse(args); err != nil {
		return err
	}

	devices := c.inventory(ctx).Devices()
	if *mobile {
		devices = view.MobileDevices(devices)
	}
	devices = view.FilterDevices(devices, q)

	switch {
	case *summary:
		return view.WriteSummaryCSV(c.out, devices)
	case *asCSV && *mobile:
		return view.WriteMobileCSV(c.out, devices)
	case *asCSV:
		return view.WriteDevicesCSV(c.out, devices)
	}
	printDevices(c.out, devices)
	return nil
}

func printDevices(w io.Writer, devices []model.Device) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tSERIAL\tSTATUS\tASSIGNED TO\tLAST CHECKOUT")
	for _, d := range devices {
		checkout := "-"
		if d.LastCheckout != nil {
			checkout = d.LastCheckout.Format(time.DateOnly)
		}
		assignee := d.AssignedUser
		if assignee == "" {
			assignee = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ID, d.Name, d.Type, d.SerialNumber, d.Status, assignee, checkout)
	}
	tw.Flush()
}

func runUsers(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("users")
	search := fs.String("search", "", "match name, email, department or username")
	asCSV := fs.Bool("csv", false, "write CSV")
	if err := fs.Parse(args); err != nil {
		return err
	}

	inv := c.inventory(ctx)
	devices := inv.Devices()
	users := view.FilterUsers(inv.Users(), *search)
	if *asCSV {
		return view.WriteUsersCSV(c.out, users, devices)
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tEMAIL\tDEPARTMENT\tROLE\tSTATUS\tDEVICES")
	for _, u := range users {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
			u.ID, u.Name, u.Email, u.Department, u.Role, u.Status, len(view.DevicesForUser(devices, u.ID)))
	}
	return tw.Flush()
}

func runAddDevice(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("add-device")
	var in inventory.NewDevice
	var typ, status string
	fs.StringVar(&in.Name, "name", "", "device name")
	fs.StringVar(&typ, "type", "", "device type")
	fs.StringVar(&in.SerialNumber, "serial", "", "serial number")
	fs.StringVar(&in.OSVersion, "os", "", "OS version")
	fs.StringVar(&status, "status", "", "initial status")
	fs.StringVar(&in.Location, "location", model.DefaultLocation, "location")
	fs.StringVar(&in.PurchaseDate, "purchase-date", "", "purchase date (YYYY-MM-DD)")
	fs.StringVar(&in.Notes, "notes", "", "notes")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var err error
	if in.Type, err = model.ParseDeviceType(typ); err != nil {
		return err
	}
	if status != "" {
		if in.Status, err = model.ParseDeviceStatus(status); err != nil {
			return err
		}
	}

	res, err := c.inventory(ctx).AddDevice(ctx, in)
	if err != nil {
		return err
	}
	c.warnDegraded(res.Persistence, res.Cause)
	fmt.Fprintf(c.out, "Added %s (%s)\n", res.Device.Name, res.Device.ID)
	return nil
}

func runUpdateDevice(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("update-device")
	name := fs.String("name", "", "device name")
	typ := fs.String("type", "", "device type")
	serial := fs.String("serial", "", "serial number")
	osVersion := fs.String("os", "", "OS version")
	status := fs.String("status", "", "status")
	location := fs.String("location", "", "location")
	purchase := fs.String("purchase-date", "", "purchase date (YYYY-MM-DD)")
	notes := fs.String("notes", "", "notes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: " + commands["update-device"].usage)
	}

	var patch model.DevicePatch
	var err error
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			patch.Name = name
		case "type":
			var t model.DeviceType
			if t, err = model.ParseDeviceType(*typ); err == nil {
				patch.Type = &t
			}
		case "serial":
			patch.SerialNumber = serial
		case "os":
			patch.OSVersion = osVersion
		case "status":
			var s model.DeviceStatus
			if s, err = model.ParseDeviceStatus(*status); err == nil {
				patch.Status = &s
			}
		case "location":
			patch.Location = location
		case "purchase-date":
			patch.PurchaseDate = purchase
		case "notes":
			patch.Notes = notes
		}
	})
	if err != nil {
		return err
	}

	res, err := c.inventory(ctx).UpdateDevice(ctx, fs.Arg(0), patch)
	if err != nil {
		return err
	}
	c.warnDegraded(res.Persistence, res.Cause)
	fmt.Fprintf(c.out, "Updated %s: %s\n", res.Device.ID, res.Device.Status)
	return nil
}

func runCheckout(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("checkout")
	userID := fs.String("user", "", "user id to check the device out to (admins only)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: " + commands["checkout"].usage)
	}

	me, _ := c.sessions.Current()
	target := me.ID
	if *userID != "" && *userID != me.ID {
		if !me.IsAdmin() {
			return errAdminOnly
		}
		target = *userID
	}

	res, err := c.inventory(ctx).CheckoutDevice(ctx, fs.Arg(0), target)
	if err != nil {
		return err
	}
	c.warnDegraded(res.Persistence, res.Cause)
	fmt.Fprintf(c.out, "%s checked out to %s\n", res.Device.Name, res.Device.AssignedUser)
	return nil
}

func runCheckin(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: " + commands["checkin"].usage)
	}
	inv := c.inventory(ctx)
	me, _ := c.sessions.Current()
	if d, ok := inv.Device(args[0]); ok && d.IsAssigned() && d.AssignedTo != me.ID && !me.IsAdmin() {
		return fmt.Errorf("%s is checked out to %s; only they or an admin can check it in", d.Name, d.AssignedUser)
	}

	res, err := inv.CheckinDevice(ctx, args[0])
	if err != nil {
		return err
	}
	c.warnDegraded(res.Persistence, res.Cause)
	fmt.Fprintf(c.out, "%s checked in\n", res.Device.Name)
	return nil
}

func runAddUser(ctx context.Context, c *cli, args []string) error {
	fs := c.flags("add-user")
	var in inventory.NewUser
	var role string
	fs.StringVar(&in.Name, "name", "", "full name")
	fs.StringVar(&in.Email, "email", "", "email address")
	fs.StringVar(&in.Department, "department", "", "department")
	fs.StringVar(&role, "role", string(model.RoleViewer), "admin or viewer")
	fs.StringVar(&in.Username, "username", "", "sign-in name (defaults to the email local part)")
	fs.StringVar(&in.Password, "password", "", "initial password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	r, err := model.ParseRole(role)
	if err != nil {
		return err
	}
	in.Role = r

	res, err := c.inventory(ctx).AddUser(ctx, in)
	if err != nil {
		return err
	}
	c.warnDegraded(res.Persistence, res.Cause)
	fmt.Fprintf(c.out, "Added %s (%s)\n", res.User.Name, res.User.ID)
	return nil
}

func runStats(ctx context.Context, c *cli, _ []string) error {
	inv := c.inventory(ctx)
	devices, users := inv.Devices(), inv.Users()
	s := view.ComputeStats(devices, users)

	fmt.Fprintf(c.out, "Devices:     %d total, %d available (%d%%), %d checked out (%d%%), %d in maintenance\n",
		s.TotalDevices, s.AvailableDevices, s.AvailableShare(), s.CheckedOutDevices, s.InUseShare(), s.MaintenanceDevices)
	fmt.Fprintf(c.out, "Users:       %d total, %d active\n", s.TotalUsers, s.ActiveUsers)

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\nSTATUS\tCOUNT")
	for _, sc := range view.StatusDistribution(devices) {
		fmt.Fprintf(tw, "%s\t%d\n", sc.Status, sc.Count)
	}
	fmt.Fprintln(tw, "\nTYPE\tCOUNT")
	for _, tc := range view.TypeCounts(devices) {
		fmt.Fprintf(tw, "%s\t%d\n", tc.Type, tc.Count)
	}
	fmt.Fprintln(tw, "\nDEPARTMENT\tUSERS\tDEVICES")
	for _, du := range view.UsageByDepartment(devices, users) {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", du.Department, du.Users, du.Devices)
	}
	fmt.Fprintln(tw, "\nRECENT CHECKOUT\tASSIGNED TO\tSINCE")
	for _, d := range view.RecentCheckouts(devices, 5) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.AssignedUser, d.LastCheckout.Format(time.DateOnly))
	}
	fmt.Fprintln(tw, "\nMOST RECENTLY USED\tSTATUS\tLAST CHECKOUT")
	for _, d := range view.MostRecentlyUsed(devices, 5) {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", d.Name, d.Status, d.LastCheckout.Format(time.DateOnly))
	}
	return tw.Flush()
}

func runHistory(ctx context.Context, c *cli, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: " + commands["history"].usage)
	}
	entries, err := c.inventory(ctx).History(ctx, args[0])
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(c.out, "No history recorded")
		return nil
	}
	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tACTION\tUSER")
	for _, h := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", h.Timestamp.Format(time.DateTime), h.Action, h.User)
	}
	return tw.Flush()
}

func runRecommend(ctx context.Context, c *cli, _ []string) error {
	devices, p, err := c.inventory(ctx).Recommendations(ctx)
	if err != nil {
		return err
	}
	if p == inventory.Degraded {
		fmt.Fprintln(c.errOut, "warning: inventory API unavailable, recommendations computed locally")
	}
	if len(devices) == 0 {
		fmt.Fprintln(c.out, "No recommendations")
		return nil
	}
	printDevices(c.out, devices)
	return nil
}

