package view

import (
	"math"
	"sort"

	"bdemetris/devicehub/pkg/model"
)

// Stats are the dashboard headline counts.
type Stats struct {
	TotalDevices       int `json:"totalDevices"`
	AvailableDevices   int `json:"availableDevices"`
	CheckedOutDevices  int `json:"checkedOutDevices"`
	MaintenanceDevices int `json:"maintenanceDevices"`
	TotalUsers         int `json:"totalUsers"`
	ActiveUsers        int `json:"activeUsers"`
}

// AvailableShare is the rounded percentage of devices available.
func (s Stats) AvailableShare() int {
	return percent(s.AvailableDevices, s.TotalDevices)
}

// InUseShare is the rounded percentage of devices checked out.
func (s Stats) InUseShare() int {
	return percent(s.CheckedOutDevices, s.TotalDevices)
}

func percent(n, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(n) * 100 / float64(total)))
}

func ComputeStats(devices []model.Device, users []model.User) Stats {
	s := Stats{TotalDevices: len(devices), TotalUsers: len(users)}
	for _, d := range devices {
		switch d.Status {
		case model.StatusAvailable:
			s.AvailableDevices++
		case model.StatusCheckedOut:
			s.CheckedOutDevices++
		case model.StatusMaintenance:
			s.MaintenanceDevices++
		}
	}
	for _, u := range users {
		if u.IsActive() {
			s.ActiveUsers++
		}
	}
	return s
}

type StatusCount struct {
	Status model.DeviceStatus `json:"status"`
	Count  int                `json:"count"`
}

// StatusDistribution counts devices per status, one entry for every known
// status in display order.
func StatusDistribution(devices []model.Device) []StatusCount {
	out := make([]StatusCount, len(model.DeviceStatuses))
	for i, s := range model.DeviceStatuses {
		out[i].Status = s
	}
	for _, d := range devices {
		for i := range out {
			if out[i].Status == d.Status {
				out[i].Count++
				break
			}
		}
	}
	return out
}

type TypeCount struct {
	Type  model.DeviceType `json:"type"`
	Count int              `json:"count"`
}

// TypeCounts counts devices per type in order of first appearance.
func TypeCounts(devices []model.Device) []TypeCount {
	var out []TypeCount
	index := map[model.DeviceType]int{}
	for _, d := range devices {
		i, ok := index[d.Type]
		if !ok {
			i = len(out)
			index[d.Type] = i
			out = append(out, TypeCount{Type: d.Type})
		}
		out[i].Count++
	}
	return out
}

// DepartmentUsage is the number of users in a department and the devices
// they hold between them.
type DepartmentUsage struct {
	Department string `json:"department"`
	Devices    int    `json:"devices"`
	Users      int    `json:"users"`
}

// UsageByDepartment aggregates per department in order of first appearance
// in users.
func UsageByDepartment(devices []model.Device, users []model.User) []DepartmentUsage {
	held := map[string]int{}
	for _, d := range devices {
		if d.AssignedTo != "" {
			held[d.AssignedTo]++
		}
	}

	var out []DepartmentUsage
	index := map[string]int{}
	for _, u := range users {
		i, ok := index[u.Department]
		if !ok {
			i = len(out)
			index[u.Department] = i
			out = append(out, DepartmentUsage{Department: u.Department})
		}
		out[i].Users++
		out[i].Devices += held[u.ID]
	}
	return out
}

// RecentCheckouts returns up to n checked-out devices, latest checkout first.
func RecentCheckouts(devices []model.Device, n int) []model.Device {
	return latestCheckouts(devices, n, func(d model.Device) bool {
		return d.Status == model.StatusCheckedOut
	})
}

// MostRecentlyUsed returns up to n devices that have ever been checked out,
// latest checkout first.
func MostRecentlyUsed(devices []model.Device, n int) []model.Device {
	return latestCheckouts(devices, n, func(model.Device) bool { return true })
}

func latestCheckouts(devices []model.Device, n int, keep func(model.Device) bool) []model.Device {
	var out []model.Device
	for _, d := range devices {
		if d.LastCheckout != nil && keep(d) {
			out = append(out, d.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastCheckout.After(*out[j].LastCheckout)
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
