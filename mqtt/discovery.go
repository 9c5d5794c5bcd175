package mqtt

import (
	"encoding/json"
	"fmt"

	"github.com/icodeforyou/solarforecast-ml/coordinator"
	"github.com/icodeforyou/solarforecast-ml/types"
)

const (
	ButtonForecast = "forecast"
	ButtonLearning = "learning"

	payloadOnline  = "online"
	payloadOffline = "offline"
)

// Message is an outgoing MQTT message.
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Topics builds the topic names below the Home Assistant discovery prefix.
type Topics struct {
	Prefix string
	NodeId string
}

func (t Topics) State() string {
	return fmt.Sprintf("%s/sensor/%s/state", t.Prefix, t.NodeId)
}

func (t Topics) Attributes() string {
	return fmt.Sprintf("%s/sensor/%s/attributes", t.Prefix, t.NodeId)
}

func (t Topics) Availability() string {
	return fmt.Sprintf("%s/sensor/%s/availability", t.Prefix, t.NodeId)
}

func (t Topics) Command(button string) string {
	return fmt.Sprintf("%s/button/%s_%s/press", t.Prefix, t.NodeId, button)
}

func (t Topics) Config(component, objectId string) string {
	return fmt.Sprintf("%s/%s/%s_%s/config", t.Prefix, component, t.NodeId, objectId)
}

type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	SwVersion    string   `json:"sw_version,omitempty"`
}

type haEntity struct {
	Name                string   `json:"name"`
	UniqueId            string   `json:"unique_id"`
	ObjectId            string   `json:"object_id,omitempty"`
	Icon                string   `json:"icon,omitempty"`
	DeviceClass         string   `json:"device_class,omitempty"`
	StateClass          string   `json:"state_class,omitempty"`
	UnitOfMeasure       string   `json:"unit_of_measurement,omitempty"`
	StateTopic          string   `json:"state_topic,omitempty"`
	ValueTemplate       string   `json:"value_template,omitempty"`
	JsonAttributesTopic string   `json:"json_attributes_topic,omitempty"`
	CommandTopic        string   `json:"command_topic,omitempty"`
	AvailabilityTopic   string   `json:"availability_topic"`
	DisplayPrecision    int      `json:"suggested_display_precision,omitempty"`
	EntityCategory      string   `json:"entity_category,omitempty"`
	Device              haDevice `json:"device"`
}

type sensorSpec struct {
	key       string
	name      string
	unit      string
	class     string
	icon      string
	precision int
}

var sensors = []sensorSpec{
	{key: "heute", name: "Forecast today", unit: "kWh", class: "energy", icon: "mdi:solar-power", precision: 2},
	{key: "morgen", name: "Forecast tomorrow", unit: "kWh", class: "energy", icon: "mdi:solar-power-variant", precision: 2},
	{key: "genauigkeit", name: "Accuracy", unit: "%", icon: "mdi:bullseye-arrow", precision: 1},
	{key: "average_yield_30_days", name: "Average yield 30 days", unit: "kWh", class: "energy", icon: "mdi:chart-line", precision: 2},
	{key: "next_hour_kwh", name: "Forecast next hour", unit: "kWh", class: "energy", icon: "mdi:clock-outline", precision: 3},
	{key: "peak_window", name: "Peak production window", icon: "mdi:weather-sunny"},
	{key: "status", name: "Status", icon: "mdi:information-outline"},
}

var buttons = []struct {
	key  string
	name string
	icon string
}{
	{ButtonForecast, "Run forecast", "mdi:refresh"},
	{ButtonLearning, "Run learning", "mdi:school"},
}

// DiscoveryMessages returns the retained config messages that make Home
// Assistant create the sensors and buttons of this service.
func DiscoveryMessages(t Topics, version string) ([]Message, error) {
	device := haDevice{
		Identifiers:  []string{t.NodeId},
		Name:         "Solar Forecast ML",
		Manufacturer: "solarforecast-ml",
		Model:        "Self-learning yield forecast",
		SwVersion:    version,
	}

	var msgs []Message
	for _, s := range sensors {
		e := haEntity{
			Name:              s.name,
			UniqueId:          t.NodeId + "_" + s.key,
			ObjectId:          t.NodeId + "_" + s.key,
			Icon:              s.icon,
			DeviceClass:       s.class,
			UnitOfMeasure:     s.unit,
			StateTopic:        t.State(),
			ValueTemplate:     "{{ value_json." + s.key + " }}",
			AvailabilityTopic: t.Availability(),
			DisplayPrecision:  s.precision,
			Device:            device,
		}
		if s.unit != "" {
			e.StateClass = "measurement"
		}
		if s.key == "status" {
			e.JsonAttributesTopic = t.Attributes()
			e.EntityCategory = "diagnostic"
		}

		payload, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, Message{Topic: t.Config("sensor", s.key), Payload: payload, QoS: 1, Retain: true})
	}

	for _, b := range buttons {
		e := haEntity{
			Name:              b.name,
			UniqueId:          t.NodeId + "_" + b.key,
			ObjectId:          t.NodeId + "_" + b.key,
			Icon:              b.icon,
			CommandTopic:      t.Command(b.key),
			AvailabilityTopic: t.Availability(),
			EntityCategory:    "config",
			Device:            device,
		}

		payload, err := json.Marshal(e)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, Message{Topic: t.Config("button", b.key), Payload: payload, QoS: 1, Retain: true})
	}

	return msgs, nil
}

type statePayload struct {
	types.Bundle
	NextHourKWh float64 `json:"next_hour_kwh"`
	PeakWindow  string  `json:"peak_window"`
	Status      string  `json:"status"`
}

// StateMessages returns the state and attribute messages for the current data.
func StateMessages(t Topics, b types.Bundle, status string, d coordinator.Diagnostics) ([]Message, error) {
	state, err := json.Marshal(statePayload{
		Bundle:      b,
		NextHourKWh: d.NextHourKWh,
		PeakWindow:  d.PeakWindow,
		Status:      status,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding state: %w", err)
	}

	attrs, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding attributes: %w", err)
	}

	return []Message{
		{Topic: t.State(), Payload: state, QoS: 1, Retain: true},
		{Topic: t.Attributes(), Payload: attrs, QoS: 1, Retain: true},
	}, nil
}
