package view

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"bdemetris/devicehub/pkg/model"
)

var (
	deviceHeader  = []string{"Name", "Type", "Serial Number", "OS Version", "Status", "Assigned To", "Location", "Purchase Date", "Notes"}
	mobileHeader  = []string{"Name", "Type", "Serial Number", "OS Version", "Status", "Assigned To", "Location", "Purchase Date"}
	userHeader    = []string{"Name", "Username", "Email", "Role", "Department", "Device Count", "Status"}
	summaryHeader = []string{"Name", "Type", "Serial", "Status", "Assigned To"}
)

// writeQuoted writes rows with every field quoted.
func writeQuoted(w io.Writer, header []string, rows [][]string) error {
	if _, err := io.WriteString(w, strings.Join(header, ",")+"\n"); err != nil {
		return err
	}
	for _, row := range rows {
		quoted := make([]string, len(row))
		for i, field := range row {
			quoted[i] = `"` + strings.ReplaceAll(field, `"`, `""`) + `"`
		}
		if _, err := io.WriteString(w, strings.Join(quoted, ",")+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func writePlain(w io.Writer, header []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("writing csv: %w", err)
	}
	return nil
}

// WriteDevicesCSV exports the device listing with every field quoted.
func WriteDevicesCSV(w io.Writer, devices []model.Device) error {
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{
			d.Name, string(d.Type), d.SerialNumber, d.OSVersion, string(d.Status),
			d.AssignedUser, d.Location, d.PurchaseDate, d.Notes,
		})
	}
	return writeQuoted(w, deviceHeader, rows)
}

// WriteMobileCSV exports the mobile listing, which has no notes column.
func WriteMobileCSV(w io.Writer, devices []model.Device) error {
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{
			d.Name, string(d.Type), d.SerialNumber, d.OSVersion, string(d.Status),
			d.AssignedUser, d.Location, d.PurchaseDate,
		})
	}
	return writePlain(w, mobileHeader, rows)
}

// WriteUsersCSV exports users with the number of devices each holds.
func WriteUsersCSV(w io.Writer, users []model.User, devices []model.Device) error {
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{
			u.Name, u.Username, u.Email, string(u.Role), u.Department,
			strconv.Itoa(len(DevicesForUser(devices, u.ID))), string(u.Status),
		})
	}
	return writeQuoted(w, userHeader, rows)
}

// WriteSummaryCSV is the short dashboard export.
func WriteSummaryCSV(w io.Writer, devices []model.Device) error {
	rows := make([][]string, 0, len(devices))
	for _, d := range devices {
		rows = append(rows, []string{d.Name, string(d.Type), d.SerialNumber, string(d.Status), d.AssignedUser})
	}
	return writePlain(w, summaryHeader, rows)
}
