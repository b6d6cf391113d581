package main

import (
	"bufio"
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/robotalks/ttyio/pkg/logger"
	"github.com/robotalks/ttyio/pkg/uplink"
	"github.com/robotalks/ttyio/pkg/uplink/mqtt"
)

var (
	mqttURL = "mqtt://localhost:1883/ttyio/"
	device  = "+"
	console bool
)

var levelColors = map[logger.Level]*color.Color{
	logger.Info:    color.New(color.FgGreen),
	logger.Warning: color.New(color.FgYellow),
	logger.Error:   color.New(color.FgRed, color.Bold),
}

func init() {
	if val := os.Getenv("TTYIO_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&device, "device", device, "Device ID to watch, + for all.")
	flag.BoolVar(&console, "console", console, "Send lines from stdin to the console of -device.")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	if console && device == "+" {
		log.Fatalln("-console requires -device")
	}

	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		log.Fatalln(err)
	}
	if err := mqtt.WaitToken(context.Background(), q.Connect()); err != nil {
		log.Fatalln(err)
	}
	defer q.Close()

	q.Sub(device+"/meta", mqtt.Handler(func(topic string, payload []byte) {
		if len(payload) == 0 {
			log.Printf("%s: offline", topic)
			return
		}
		log.Printf("%s: %s", topic, string(payload))
	}))
	q.Sub(device+"/log", mqtt.Handler(func(topic string, payload []byte) {
		rec, err := uplink.DecodeRecord(payload)
		if err != nil {
			log.Printf("%s: bad record: %v", topic, err)
			return
		}
		c, ok := levelColors[rec.LogLevel()]
		if !ok {
			c = color.New(color.Reset)
		}
		log.Printf("%s: #%d [%s] %s: %s", rec.DeviceId, rec.Seq, rec.Time,
			c.Sprint(rec.LogLevel()), rec.Message)
	}))

	if !console {
		<-(chan struct{})(nil)
	}
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		q.Pub(device+"/console/in", []byte(line+"\r")).Wait()
	}
	if err := scanner.Err(); err != nil {
		log.Fatalln(err)
	}
}
