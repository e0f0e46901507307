package tray

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
	"github.com/getlantern/systray"
	"github.com/rs/zerolog"

	"github.com/petems/audiotap/internal/app"
	"github.com/petems/audiotap/internal/audio"
	"github.com/petems/audiotap/internal/logging"
)

const shutdownTimeout = 5 * time.Second

type UI struct {
	app     *app.App
	version string
	commit  string
	log     zerolog.Logger

	// Menu items
	mStartStop *systray.MenuItem
	mMethods   *systray.MenuItem
	mDevices   *systray.MenuItem
	mSession   *systray.MenuItem
}

// Status update methods for the app to call
func (u *UI) SetIdle() {
	u.updateStatus("idle")
	u.setStartStop(false)
}

func (u *UI) SetCapturing(method audio.Method) {
	u.updateStatus("capturing")
	u.setStartStop(true)
	systray.SetTooltip(fmt.Sprintf("Capturing via %s", method))
}

func (u *UI) SetError(err error) {
	u.updateStatus("error")
	u.setStartStop(false)
	if err != nil {
		systray.SetTooltip(err.Error())
	}
}

func New(application *app.App, log zerolog.Logger, version, commit string) *UI {
	return &UI{
		app:     application,
		version: version,
		commit:  commit,
		log:     log.With().Str("component", "tray").Logger(),
	}
}

// SetApp sets the app reference (for circular dependency resolution)
func (u *UI) SetApp(application *app.App) {
	u.app = application
}

// Run blocks until Quit is chosen or ctx is cancelled. It must be called from
// the main goroutine.
func (u *UI) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		systray.Quit()
	}()
	systray.Run(u.onReady, u.onExit)
	return nil
}

func (u *UI) onReady() {
	u.updateStatus("idle")
	systray.SetTooltip("System audio capture")

	u.mStartStop = systray.AddMenuItem(startStopTitle(false), "Start or stop capturing")
	systray.AddSeparator()

	u.mMethods = systray.AddMenuItem("Capture Method", "Preferred capture backend")
	u.buildMethodMenu()

	u.mDevices = systray.AddMenuItem("Input Device", "Device used by the HAL backend")
	u.buildDeviceMenu()

	systray.AddSeparator()
	u.mSession = systray.AddMenuItem("Copy Session Info", "Copy the active session as JSON")
	mLogs := systray.AddMenuItem("Copy Log Path", "Copy the log file location")
	mAbout := systray.AddMenuItem("About", "About audiotap")
	mQuit := systray.AddMenuItem("Quit", "Exit application")

	// Event loop
	go u.handleEvents(mLogs, mAbout, mQuit)
}

func (u *UI) handleEvents(mLogs, mAbout, mQuit *systray.MenuItem) {
	for {
		select {
		case <-u.mStartStop.ClickedCh:
			if err := u.app.Toggle(); err != nil {
				u.log.Error().Err(err).Msg("Toggle capture failed")
			}
		case <-u.mSession.ClickedCh:
			u.copySession()
		case <-mLogs.ClickedCh:
			u.copyToClipboard(logging.Path())
		case <-mAbout.ClickedCh:
			u.showAbout()
		case <-mQuit.ClickedCh:
			systray.Quit()
			return
		}
	}
}

func (u *UI) buildMethodMenu() {
	_, selected := u.app.Settings()
	group := newRadioGroup()
	items := make(map[audio.Method]*systray.MenuItem)

	items[""] = u.mMethods.AddSubMenuItemCheckbox("Automatic", "Best available method", selected == "")
	group.add("", items[""])
	for _, status := range u.app.Methods() {
		item := u.mMethods.AddSubMenuItemCheckbox(methodLabel(status), "", status.Method == selected)
		if !status.Available {
			item.Disable()
		}
		items[status.Method] = item
		group.add(string(status.Method), item)
	}

	for method, item := range items {
		go u.watchMethod(item, method, group)
	}
}

func (u *UI) watchMethod(menuItem *systray.MenuItem, method audio.Method, group *radioGroup) {
	for {
		<-menuItem.ClickedCh
		if err := u.app.SetMethod(string(method)); err != nil {
			u.log.Warn().Err(err).Str("method", string(method)).Msg("Cannot change method")
			continue
		}
		group.choose(string(method))
		u.log.Info().Str("method", string(method)).Msg("Changed capture method")
	}
}

func (u *UI) buildDeviceMenu() {
	devices, err := u.app.ListDevices()
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to list audio devices")
		return
	}

	selected, _ := u.app.Settings()
	group := newRadioGroup()
	items := make([]*systray.MenuItem, len(devices))

	for i, dev := range devices {
		checked := dev.ID == selected || (selected == "" && dev.Default)
		items[i] = u.mDevices.AddSubMenuItemCheckbox(deviceLabel(dev), dev.ID, checked)
		group.add(dev.ID, items[i])
	}

	for i, dev := range devices {
		go u.watchDevice(items[i], dev, group)
	}
}

func (u *UI) watchDevice(menuItem *systray.MenuItem, dev audio.Device, group *radioGroup) {
	for {
		<-menuItem.ClickedCh
		if err := u.app.SetDevice(dev.ID); err != nil {
			u.log.Warn().Err(err).Str("device", dev.Name).Msg("Cannot change device")
			continue
		}
		group.choose(dev.ID)
		u.log.Info().Str("device", dev.Name).Msg("Changed audio device")
	}
}

func (u *UI) copySession() {
	session, ok := u.app.Session()
	if !ok {
		u.log.Info().Msg("No active session")
		return
	}
	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		u.log.Error().Err(err).Msg("Failed to encode session")
		return
	}
	u.copyToClipboard(string(data))
}

func (u *UI) copyToClipboard(text string) {
	if err := clipboard.WriteAll(text); err != nil {
		u.log.Error().Err(err).Msg("Failed to write clipboard")
		return
	}
	u.log.Info().Msg("Copied to clipboard")
}

func (u *UI) showAbout() {
	fmt.Printf("audiotap %s (%s)\nSystem audio capture\n", u.version, u.commit)
}

func (u *UI) onExit() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := u.app.Shutdown(ctx); err != nil {
		u.log.Error().Err(err).Msg("Shutdown error")
	}
}

func (u *UI) setStartStop(capturing bool) {
	if u.mStartStop != nil {
		u.mStartStop.SetTitle(startStopTitle(capturing))
	}
}

// updateStatus sets the tray title with microphone emoji and status indicator
func (u *UI) updateStatus(status string) {
	emoji := emojiForStatus(status)
	systray.SetTitle(fmt.Sprintf("🎧 %s", emoji))
}

// emojiForStatus returns the appropriate status emoji
func emojiForStatus(status string) string {
	switch status {
	case "capturing":
		return "🔴" // Red - capturing
	case "idle":
		return "🟢" // Green - ready/idle
	case "error":
		return "⚪️" // White - error
	default:
		return "🟢" // Green - default to ready
	}
}

func startStopTitle(capturing bool) string {
	if capturing {
		return "Stop Capture"
	}
	return "Start Capture"
}

func methodLabel(s app.MethodStatus) string {
	if s.Available {
		return string(s.Method)
	}
	return fmt.Sprintf("%s (unavailable)", s.Method)
}

func deviceLabel(d audio.Device) string {
	switch {
	case d.Default:
		return d.Name + " (default)"
	case d.Virtual:
		return d.Name + " (virtual)"
	default:
		return d.Name
	}
}
