// Command agent is the on-device firmware agent's process entry point
// (§4.K/§4.M): it loads environment configuration, constructs every
// singleton in dependency order, reconciles the initial DeviceConfig, then
// runs the 500ms tick loop until signaled to stop.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/apiclient"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/bus"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/config"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/env"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/errs"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/iohub"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/logging"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/mqttrouter"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/pinmap"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/prefs"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/rf"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/rfbus"
	"github.com/Martinelllo/smarthome-multi-platform-installer/internal/store"

	// Device kinds register themselves with the hal open registry on
	// import; nothing in this file names a concrete module type.
	_ "github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal/devices/bme280"
	_ "github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal/devices/boolread"
	_ "github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal/devices/boolwrite"
	_ "github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal/devices/dht"
	_ "github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal/devices/display"
	_ "github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal/devices/hcsr04"
	_ "github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal/devices/openclose"
	_ "github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal/devices/pwm"
	_ "github.com/Martinelllo/smarthome-multi-platform-installer/internal/hal/devices/raspibasic"
)

var log = logging.WithComponent("main")

const (
	tickInterval     = 500 * time.Millisecond
	slowCycle        = 60 * time.Second
	rebootDelay      = 5 * time.Minute
	stateDir         = "state"
	rfLinkOwner      = "rf-link"
)

func main() {
	os.Exit(run())
}

func run() int {
	e, err := env.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "env: "+err.Error())
		return 1
	}
	if err := logging.Configure(e.Development, "logs"); err != nil {
		fmt.Fprintln(os.Stderr, "logging: "+err.Error())
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pins, err := pinmap.Load(pinmap.RevisionPi40Header)
	if err != nil {
		log.WithError(err).Error("pin map load failed")
		return 1
	}
	io := iohub.New(pins)
	defer io.Shutdown()

	st, err := store.Open(stateDir)
	if err != nil {
		log.WithError(err).Error("local store open failed")
		return 1
	}
	defer st.Close()

	prefStore := prefs.Load(stateDir)
	log.WithField("preferences", prefStore.Get()).Info("loaded config preferences")

	api := apiclient.New(e.APILink, e.DeviceUID)
	if err := api.Authenticate(ctx); err != nil {
		log.WithError(err).Error("device authentication failed")
		return 1
	}

	creds, err := api.MQTTCredentials(ctx)
	if err != nil {
		log.WithError(err).Error("fetching mqtt credentials failed")
		return 1
	}

	mq, err := mqttrouter.Connect(ctx, mqttrouter.Config{
		Host:      e.MQTTHost,
		Port:      e.MQTTPort,
		Username:  creds.User,
		Password:  creds.Pass,
		BaseTopic: creds.Topic,
		ClientID:  "agent-" + e.DeviceUID,
	})
	if err != nil {
		log.WithError(err).Error("mqtt connect failed")
		return 1
	}
	defer mq.Disconnect(context.Background())

	deviceCfg, err := api.DeviceConfig(ctx)
	if err != nil {
		log.WithError(err).Error("fetching initial device config failed")
		return 1
	}

	b := bus.NewBus(8)
	busConn := b.NewConnection("hal")
	defer busConn.Disconnect()

	var rfBridge *rfbus.Bridge
	if e.HasRFLink {
		rfPin, err := io.ClaimGPIO(rfLinkOwner, e.RFGPIO, iohub.FuncGPIOOut)
		if err != nil {
			log.WithError(err).Error("rf link pin claim failed")
			return 1
		}
		link := rf.NewLink(rfPin, rf.AddressFromUint16(e.RFAddress))
		defer link.Close()
		rfBridge = rfbus.New(link, busConn)
	}

	manager := hal.NewManager(io, st, mq, rfBridge, busConn)
	defer manager.Shutdown()
	if err := manager.Reconcile(deviceCfg); err != nil {
		log.WithError(err).Error("initial module reconciliation failed")
		scheduleReboot(err)
		return 1
	}

	mq.Subscribe("/restart", func(map[string]any) {
		log.Warn("restart command received")
		if err := reboot(); err != nil {
			log.WithError(err).Error("reboot command failed")
		}
	})
	mq.Subscribe("/config", func(payload map[string]any) {
		data, err := json.Marshal(payload)
		if err != nil {
			log.WithError(err).Warn("could not re-marshal config payload")
			return
		}
		dc, err := config.ParseDeviceConfig(data)
		if err != nil {
			log.WithError(err).Warn("invalid device config received")
			return
		}
		if err := manager.Reconcile(dc); err != nil {
			log.WithError(err).Error("config reconciliation failed")
			scheduleReboot(err)
		}
	})

	loop(ctx, manager, api, st)
	log.Info("shutting down")
	return 0
}

// loop runs the ~2Hz tick at tickInterval, folding in the slower
// ping/upload/heartbeat cadence every slowCycle per §4.K.
func loop(ctx context.Context, manager *hal.Manager, api *apiclient.Client, st *store.Store) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	slow := time.NewTicker(slowCycle)
	defer slow.Stop()

	fatal := false
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if fatal {
				continue
			}
			if err := manager.Tick(ctx); err != nil {
				log.WithError(err).Error("module tick failed")
				scheduleReboot(err)
				fatal = true
			}
		case <-slow.C:
			runSlowCycle(ctx, api, st)
		}
	}
}

func runSlowCycle(ctx context.Context, api *apiclient.Client, st *store.Store) {
	log.Debug("heartbeat")

	if err := api.Ping(ctx); err != nil {
		logServerError(err, "ping")
	}

	readings, err := st.Snapshot()
	if err != nil {
		log.WithError(err).Error("reading snapshot failed")
		return
	}
	if len(readings) == 0 {
		return
	}
	if err := api.UploadReadings(ctx, st, readings); err != nil {
		logServerError(err, "upload")
	}
}

func logServerError(err error, op string) {
	if errs.Is(err, errs.KindServerUnreachable) {
		log.WithError(err).WithField("op", op).Warn("server unreachable, retrying next cycle")
		return
	}
	log.WithError(err).WithField("op", op).Error("unexpected error")
}

// scheduleReboot fires rebootDelay after a fatal module-init error, giving
// the server a window to push a corrected config before the host restarts.
func scheduleReboot(cause error) {
	log.WithError(cause).Errorf("fatal module error, rebooting in %s", rebootDelay)
	go func() {
		time.Sleep(rebootDelay)
		if err := reboot(); err != nil {
			log.WithError(err).Error("scheduled reboot failed")
		}
	}()
}

func reboot() error {
	return exec.Command("reboot").Run()
}
