package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/avrel/stompws/libstomp/client"
)

var version string

func main() {
	var host string
	var port int
	var topic string
	var username string
	var password string
	var ssl bool
	var sockjs bool
	var insecure bool
	var sendPayload string
	var asJSON bool
	var heartbeat int
	var config string

	verbosity := flag.String("verbosity", "info", "verbosity level")
	flag.StringVar(&host, "host", "", "broker host, e.g. activemq.example.com")
	flag.IntVar(&port, "port", 61614, "broker WebSocket port")
	flag.StringVar(&topic, "topic", "", "destination, e.g. /topic/your.topic.name")
	flag.StringVar(&username, "username", "", "broker username")
	flag.StringVar(&password, "password", "", "broker passcode")
	flag.BoolVar(&ssl, "ssl", false, "connect with wss instead of plain ws")
	flag.BoolVar(&sockjs, "sockjs", false, "the broker endpoint speaks SockJS")
	flag.BoolVar(&insecure, "insecure", false, "accept self-signed certificates (disables SSL verification)")
	flag.StringVar(&sendPayload, "send", "", "publish this payload to the topic and exit")
	flag.BoolVar(&asJSON, "json", false, "render the -send payload (key1=value1 key2=value2) as a JSON object")
	flag.IntVar(&heartbeat, "heartbeat", 10, "heartbeat interval in seconds")
	flag.StringVar(&config, "c", "", "config: path to a json configuration file")
	askVersion := flag.Bool("v", false, "Print the version number")
	flag.Parse()

	if *askVersion {
		fmt.Printf("sws-client %v\n", version)
		return
	}

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	lvl, err := log.ParseLevel(*verbosity)
	if err != nil {
		log.Fatal(err)
	}
	log.SetLevel(lvl)

	rawConfig := &client.RawConfig{
		Host:              host,
		Port:              port,
		Username:          username,
		Password:          password,
		SSL:               ssl,
		SockJS:            sockjs,
		Insecure:          insecure,
		HeartbeatInterval: heartbeat,
	}
	if config != "" {
		rawConfig, err = client.ParseConfig(config)
		if err != nil {
			log.Fatal(err)
		}
		// commandline arguments override json fields
		flag.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "host":
				rawConfig.Host = host
			case "port":
				rawConfig.Port = port
			case "username":
				rawConfig.Username = username
			case "password":
				rawConfig.Password = password
			case "ssl":
				rawConfig.SSL = ssl
			case "sockjs":
				rawConfig.SockJS = sockjs
			case "insecure":
				rawConfig.Insecure = insecure
			case "heartbeat":
				rawConfig.HeartbeatInterval = heartbeat
			}
		})
	}
	if topic == "" {
		log.Fatal("topic cannot be empty")
	}
	if rawConfig.Insecure && rawConfig.SSL {
		log.Warn("SSL certificate verification is disabled. This should only be used for testing!")
	}

	processed, err := rawConfig.ProcessRawConfig()
	if err != nil {
		log.Fatal(err)
	}

	log.Infof("Will connect using endpoint=%v, sockjs=%v", processed.URL, rawConfig.SockJS)

	c := client.NewStompClient(processed, nil)
	ok, err := c.Connect()
	if !ok {
		log.Fatalf("Failed to connect to STOMP broker: %v", err)
	}

	if sendPayload != "" {
		payload := sendPayload
		if asJSON {
			payload = formatJSONPayload(payload)
			log.Info("Converted input to JSON format")
		}
		if err := c.Send(topic, payload); err != nil {
			log.Fatalf("Failed to send message: %v", err)
		}
		log.Infof("Message sent to topic %v", topic)
		// give the frame a moment to flush before tearing down
		time.Sleep(time.Second)
		c.Disconnect()
		return
	}

	if err := c.Subscribe(topic, messageHandler); err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}
	log.Infof("Subscribed to topic %v", topic)
	log.Info("Consumer started, waiting for messages (ctrl-c to stop)")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	c.Disconnect()
}

// messageHandler pretty-prints json payloads and falls back to the raw text.
func messageHandler(body []byte) {
	formatted := string(body)
	var parsed interface{}
	if json.Unmarshal(body, &parsed) == nil {
		if pretty, err := json.MarshalIndent(parsed, "", "  "); err == nil {
			formatted = string(pretty)
		}
	}
	log.Infof("Message received at %v", time.Now().Format(time.RFC3339))
	log.Infof("Payload: %v", formatted)
	log.Info(strings.Repeat("-", 80))
}

// formatJSONPayload renders space-separated key=value pairs as a JSON
// object, recognising integer and float values.
func formatJSONPayload(payload string) string {
	object := make(map[string]interface{})
	for _, pair := range strings.Fields(payload) {
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key, value := kv[0], kv[1]
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			object[key] = i
		} else if f, err := strconv.ParseFloat(value, 64); err == nil {
			object[key] = f
		} else {
			object[key] = value
		}
	}
	out, err := json.Marshal(object)
	if err != nil {
		log.Errorf("Failed to format as JSON: %v", err)
		return payload
	}
	return string(out)
}
