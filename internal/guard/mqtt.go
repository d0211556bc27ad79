package guard

import (
	"context"
	"encoding/json"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// MQTTConfig describes the printer broker connection.
type MQTTConfig struct {
	Broker   string // e.g. tls://us.mqtt.bambulab.com:8883
	Username string
	Password string
	ClientID string
	Timeout  time.Duration
}

// mqttClient is the part of mqtt.Client the printer link uses.
type mqttClient interface {
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	Disconnect(quiesce uint)
}

// Printers talks to printers over MQTT: it publishes stop commands and feeds
// status reports into a Watcher.
type Printers struct {
	client  mqttClient
	timeout time.Duration
	now     func() time.Time
}

// RequestTopic is where commands for serial are published.
func RequestTopic(serial string) string { return "device/" + serial + "/request" }

// ReportTopic is where serial publishes its status.
func ReportTopic(serial string) string { return "device/" + serial + "/report" }

// DialMQTT connects to the broker.
func DialMQTT(cfg MQTTConfig) (*Printers, error) {
	if cfg.Broker == "" {
		return nil, eris.New("guard: mqtt broker is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetUsername(cfg.Username).
		SetPassword(cfg.Password).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(cfg.Timeout).
		SetAutoReconnect(true).
		SetOrderMatters(false)

	client := mqtt.NewClient(opts)
	tok := client.Connect()
	if !tok.WaitTimeout(cfg.Timeout) {
		return nil, eris.Errorf("guard: mqtt connect to %s timed out", cfg.Broker)
	}
	if err := tok.Error(); err != nil {
		return nil, eris.Wrapf(err, "guard: mqtt connect to %s", cfg.Broker)
	}
	return newPrinters(client, cfg.Timeout), nil
}

func newPrinters(client mqttClient, timeout time.Duration) *Printers {
	return &Printers{client: client, timeout: timeout, now: time.Now}
}

// Close disconnects from the broker.
func (p *Printers) Close() {
	p.client.Disconnect(250)
}

type printCommand struct {
	Print struct {
		Command    string `json:"command"`
		SequenceID int64  `json:"sequence_id"`
	} `json:"print"`
}

type pushCommand struct {
	Pushing struct {
		Command    string `json:"command"`
		SequenceID string `json:"sequence_id"`
	} `json:"pushing"`
}

// Stop publishes a stop command for serial and waits for the broker to
// accept it.
func (p *Printers) Stop(ctx context.Context, serial, reason string) error {
	var cmd printCommand
	cmd.Print.Command = "stop"
	cmd.Print.SequenceID = p.now().Unix()

	if err := p.publish(ctx, RequestTopic(serial), cmd); err != nil {
		return eris.Wrapf(err, "guard: stop %s", serial)
	}
	zap.L().Info("guard: stop command sent",
		zap.String("serial", serial),
		zap.String("reason", reason),
		zap.Int64("sequence_id", cmd.Print.SequenceID),
	)
	return nil
}

// Watch subscribes to the status reports of serials, asks each printer for a
// full status push, and hands every report to w.
func (p *Printers) Watch(ctx context.Context, serials []string, w *Watcher) error {
	for _, serial := range serials {
		tok := p.client.Subscribe(ReportTopic(serial), 0, func(_ mqtt.Client, msg mqtt.Message) {
			handleReport(ctx, w, serial, msg.Payload())
		})
		if err := p.wait(ctx, tok); err != nil {
			return eris.Wrapf(err, "guard: subscribe %s", serial)
		}

		var push pushCommand
		push.Pushing.Command = "pushall"
		push.Pushing.SequenceID = "0"
		if err := p.publish(ctx, RequestTopic(serial), push); err != nil {
			return eris.Wrapf(err, "guard: request status %s", serial)
		}
	}
	return nil
}

// handleReport decodes one status message. Messages without a print section
// are ignored.
func handleReport(ctx context.Context, w *Watcher, serial string, payload []byte) {
	var msg struct {
		Print map[string]any `json:"print"`
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		zap.L().Debug("guard: undecodable report", zap.String("serial", serial), zap.Error(err))
		return
	}
	if msg.Print == nil {
		return
	}
	w.Observe(ctx, serial, msg.Print)
}

func (p *Printers) publish(ctx context.Context, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "marshal command")
	}
	return p.wait(ctx, p.client.Publish(topic, 1, false, payload))
}

func (p *Printers) wait(ctx context.Context, tok mqtt.Token) error {
	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-timer.C:
		return eris.Errorf("timed out after %s", p.timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}
