package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"errors"
	"flag"
	"net/http"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/ttyio/pkg/backbone"
	"github.com/robotalks/ttyio/pkg/config"
	"github.com/robotalks/ttyio/pkg/framework"
	"github.com/robotalks/ttyio/pkg/hw"
	"github.com/robotalks/ttyio/pkg/rtc"
	"github.com/robotalks/ttyio/pkg/uplink"
)

func init() {
	config.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := config.MustNewConfig()
	runner := framework.NewRunner().HandleSignals()
	clock := rtc.NewSoftClock()

	if conf.Port.Listen != "" {
		runner.Go(framework.NamedRun("websocket", framework.RunFunc(func(ctx context.Context) error {
			return serveWebSocket(ctx, conf, clock)
		})))
		if err := runner.Wait(); err != nil {
			glog.Exit(err)
		}
		return
	}

	var port *hw.StreamPort
	if conf.Port.Device == "-" {
		port = hw.OpenStdio()
	} else {
		var err error
		if port, err = hw.OpenSerial(hw.SerialConfig{Device: conf.Port.Device, Baud: conf.Port.Baud}); err != nil {
			glog.Exit(err)
		}
	}
	sys, err := newSystem(conf, port, clock)
	if err != nil {
		glog.Exit(err)
	}
	sys.Logger.Infof("ttyio started on %s", conf.Port.Device)
	runner.Go(sys)
	err = runner.Wait()
	sys.Close()
	if err != nil {
		glog.Exit(err)
	}
}

func newSystem(conf *config.Config, port hw.UART, clock rtc.Clock) (*backbone.System, error) {
	sys, err := backbone.New(conf, port, clock)
	if err != nil {
		port.Close()
		return nil, err
	}
	if conf.Uplink.MQTTBrokerURL == "" {
		return sys, nil
	}
	deviceID := conf.Uplink.DeviceID
	if deviceID == "" {
		deviceID = uplink.DeviceID()
	}
	u, err := uplink.NewFromURL(conf.Uplink.MQTTBrokerURL, deviceID)
	if err != nil {
		sys.Close()
		return nil, err
	}
	u.Version = backbone.Version
	sys.AttachUplink(u)
	glog.Infof("uplink to %s as %s", conf.Uplink.MQTTBrokerURL, deviceID)
	return sys, nil
}

// serveWebSocket runs one console per websocket connection, all sharing
// the same clock.
func serveWebSocket(ctx context.Context, conf *config.Config, clock rtc.Clock) error {
	handler := websocket.Handler(func(conn *websocket.Conn) {
		glog.Infof("console connected from %s", conn.Request().RemoteAddr)
		sys, err := newSystem(conf, hw.NewWebSocketPort(conn), clock)
		if err != nil {
			glog.Errorf("console %s: %v", conn.Request().RemoteAddr, err)
			return
		}
		sys.Logger.Infof("console connected")
		if err := sys.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			glog.Warningf("console %s: %v", conn.Request().RemoteAddr, err)
		}
		sys.Close()
		glog.Infof("console disconnected from %s", conn.Request().RemoteAddr)
	})
	server := &http.Server{Addr: conf.Port.Listen, Handler: handler}
	glog.Infof("serving console at ws://%s", conf.Port.Listen)
	return framework.RunWithContextCancel(ctx, func() { server.Close() }, func() error {
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return err
		}
		return nil
	})
}
