package handlers

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/lyallcooper/rotscan/internal/checksum"
	"github.com/lyallcooper/rotscan/internal/device"
)

type mountedDeviceResponse struct {
	*device.Info
	TotalSizeHuman string `json:"total_size_human"`
	UsedSizeHuman  string `json:"used_size_human"`
	FreeSizeHuman  string `json:"free_size_human"`
}

type knownDeviceResponse struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	MountPoint  string    `json:"mount_point"`
	DeviceType  string    `json:"device_type"`
	TotalSize   int64     `json:"total_size"`
	UsedSize    int64     `json:"used_size"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen"`
	IsConnected bool      `json:"is_connected"`
	DeviceID    string    `json:"device_id,omitempty"`
}

type devicesResponse struct {
	Mounted []*mountedDeviceResponse `json:"mounted"`
	Known   []*knownDeviceResponse   `json:"known"`
}

// Devices lists currently mounted volumes alongside every device the
// database has ever seen a scan on.
func (h *Handler) Devices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	mounted, err := h.resolver.Devices()
	if err != nil {
		h.logger.Error("enumerating devices", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to enumerate devices")
		return
	}

	known, err := h.db.ListStorageDevices()
	if err != nil {
		h.logger.Error("listing known devices", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}

	resp := devicesResponse{
		Mounted: make([]*mountedDeviceResponse, 0, len(mounted)),
		Known:   make([]*knownDeviceResponse, 0, len(known)),
	}
	for _, d := range mounted {
		resp.Mounted = append(resp.Mounted, &mountedDeviceResponse{
			Info:           d,
			TotalSizeHuman: humanize.IBytes(uint64(d.TotalSize)),
			UsedSizeHuman:  humanize.IBytes(uint64(d.UsedSize)),
			FreeSizeHuman:  humanize.IBytes(uint64(d.FreeSize)),
		})
	}
	for _, d := range known {
		resp.Known = append(resp.Known, &knownDeviceResponse{
			ID:          d.ID,
			Name:        d.Name,
			MountPoint:  d.MountPoint,
			DeviceType:  d.DeviceType,
			TotalSize:   d.TotalSize,
			UsedSize:    d.UsedSize,
			FirstSeen:   d.FirstSeen,
			LastSeen:    d.LastSeen,
			IsConnected: d.IsConnected,
			DeviceID:    d.DeviceID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type algorithmResponse struct {
	Name string `json:"name"`
	checksum.Info
}

// Algorithms lists the supported checksum algorithms and their
// characteristics.
func (h *Handler) Algorithms(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	names := checksum.Supported()
	resp := make([]algorithmResponse, 0, len(names))
	for _, name := range names {
		info, _ := checksum.AlgorithmInfo(name)
		resp = append(resp, algorithmResponse{Name: name, Info: info})
	}
	writeJSON(w, http.StatusOK, resp)
}
