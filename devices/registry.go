package devices

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"grain-classification/utils"
)

const (
	// activityTimeout is how long after the last poll a device still counts
	// as active.
	activityTimeout = 10 * time.Second

	// staleTimeout is when an inactive device is dropped from the registry.
	staleTimeout = 5 * time.Minute

	// commandExpiry is how long a queued command waits for a poll before it
	// is discarded.
	commandExpiry = 60 * time.Second

	cleanupInterval = time.Minute
)

// Device is one acquisition unit known to the registry.
type Device struct {
	ID       string    `json:"id"`
	IP       string    `json:"ip"`
	LastSeen time.Time `json:"last_seen"`
	Status   string    `json:"status"`
	Active   bool      `json:"active"`
}

// Command is a pending instruction delivered on the device's next poll.
type Command struct {
	Name     string    `json:"command"`
	IssuedAt time.Time `json:"timestamp"`
}

// Registry tracks connected devices and their pending commands. Devices
// poll over HTTP; the dashboard queues commands between polls.
type Registry struct {
	mu       sync.Mutex
	devices  map[string]*Device
	commands map[string]Command
}

func NewRegistry() *Registry {
	return &Registry{
		devices:  make(map[string]*Device),
		commands: make(map[string]Command),
	}
}

// Heartbeat records a device poll and returns any pending command for it.
func (r *Registry) Heartbeat(deviceID, ip, status string) (Command, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.devices[deviceID] = &Device{
		ID:       deviceID,
		IP:       ip,
		LastSeen: time.Now(),
		Status:   status,
	}

	command, ok := r.commands[deviceID]
	if ok {
		delete(r.commands, deviceID)
	}
	return command, ok
}

// QueueCommand schedules a command for a specific device.
func (r *Registry) QueueCommand(deviceID, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[deviceID] = Command{Name: name, IssuedAt: time.Now()}
}

// MostRecentActive returns the id of the most recently seen active device.
func (r *Registry) MostRecentActive() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	var best *Device
	for _, device := range r.devices {
		if now.Sub(device.LastSeen) >= activityTimeout {
			continue
		}
		if best == nil || device.LastSeen.After(best.LastSeen) {
			best = device
		}
	}
	if best == nil {
		return "", false
	}
	return best.ID, true
}

// List returns all known devices, most recently seen first, with their
// activity flag resolved against the timeout.
func (r *Registry) List() []Device {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	list := make([]Device, 0, len(r.devices))
	for _, device := range r.devices {
		snapshot := *device
		snapshot.Active = now.Sub(device.LastSeen) < activityTimeout
		list = append(list, snapshot)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].LastSeen.After(list[j].LastSeen)
	})
	return list
}

// ActiveCount returns how many devices polled within the activity window.
func (r *Registry) ActiveCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	count := 0
	for _, device := range r.devices {
		if now.Sub(device.LastSeen) < activityTimeout {
			count++
		}
	}
	return count
}

// CleanupLoop periodically drops stale devices and expired commands until
// the context is cancelled.
func (r *Registry) CleanupLoop(ctx context.Context) {
	logger := utils.GetLogger()
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removedDevices, removedCommands := r.cleanup()
			if removedDevices > 0 || removedCommands > 0 {
				logger.InfoContext(ctx, "registry cleanup",
					slog.Int("staleDevices", removedDevices),
					slog.Int("expiredCommands", removedCommands),
				)
			}
		}
	}
}

func (r *Registry) cleanup() (devices, commands int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	for id, device := range r.devices {
		if now.Sub(device.LastSeen) > staleTimeout {
			delete(r.devices, id)
			devices++
		}
	}
	for id, command := range r.commands {
		if now.Sub(command.IssuedAt) > commandExpiry {
			delete(r.commands, id)
			commands++
		}
	}
	return devices, commands
}
