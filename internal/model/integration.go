package model

import (
	"fmt"
	"strings"
)

// IoT classes accepted when saving scraped integrations.
var ValidIoTClasses = []string{"Local Polling", "Cloud Polling", "Local Push", "Cloud Push"}

// ValidCategories are the device categories an integration must carry at least one of.
var ValidCategories = []string{
	"Alarm", "Automation", "Binary Sensor", "Button", "Camera", "Car", "Climate", "Cover",
	"Device automation", "Device tracker", "Doorbell", "Energy", "Environment", "Fan",
	"Health", "Hub", "Humidifier", "Image", "Irrigation", "Lawnmower", "Light", "Lock",
	"Media player", "Media source", "Number", "Plug", "Presence detection", "Scene",
	"Select", "Sensor", "Siren", "Switch", "Transport", "Vaccum", "Valve", "Voice",
	"Water heater", "Weather",
}

// APIType is the kind of API an integration talks to.
type APIType string

const (
	DeviceAPI   APIType = "DeviceApi"
	GatewayAPI  APIType = "GatewayApi"
	PlatformAPI APIType = "PlatformApi"
	UnknownAPI  APIType = "UnknownApi"
)

// APITypes lists every API type, UnknownAPI last.
var APITypes = []APIType{DeviceAPI, GatewayAPI, PlatformAPI, UnknownAPI}

// ParseAPIType validates s against APITypes.
func ParseAPIType(s string) (APIType, error) {
	for _, t := range APITypes {
		if string(t) == strings.TrimSpace(s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("api type %q is not recognized", s)
}

// APITypeVerdict is the oracle's classification of an integration.
type APITypeVerdict struct {
	APIType     APIType `json:"api_type"`
	Confidence  float64 `json:"confidence"`
	Explanation string  `json:"explanation"`
}

// UnknownAPITypeVerdict is recorded when classification of an integration fails.
func UnknownAPITypeVerdict() APITypeVerdict {
	return APITypeVerdict{APIType: UnknownAPI, Confidence: 0.0, Explanation: NoContentExplanation}
}

// Integration is a documented integration that issues may reference.
type Integration struct {
	API                    string          `json:"api"`
	IntroductionVersion    string          `json:"introduction_version"`
	IoTClass               string          `json:"iot_class"`
	Content                string          `json:"content"`
	Categories             []string        `json:"categories"`
	DeploymentType         string          `json:"deployment_type"`
	CommunicationMechanism string          `json:"communication_mechanism"`
	IntegrationType        *APITypeVerdict `json:"integration_type,omitempty"`
}

// NewIntegration builds an Integration and derives deployment type and
// communication mechanism from the IoT class. The derived fields are not
// recomputed afterwards.
func NewIntegration(api, introductionVersion, iotClass, content string, categories []string) Integration {
	lower := strings.ToLower(iotClass)
	deployment := "Local"
	if strings.Contains(lower, "cloud") {
		deployment = "Cloud"
	}
	mechanism := "Polling"
	if strings.Contains(lower, "push") {
		mechanism = "Push"
	}
	return Integration{
		API:                    api,
		IntroductionVersion:    introductionVersion,
		IoTClass:               iotClass,
		Content:                content,
		Categories:             categories,
		DeploymentType:         deployment,
		CommunicationMechanism: mechanism,
	}
}

// HasValidIoTClass reports whether the IoT class is one of ValidIoTClasses.
func (i Integration) HasValidIoTClass() bool {
	for _, c := range ValidIoTClasses {
		if i.IoTClass == c {
			return true
		}
	}
	return false
}

// HasValidCategory reports whether at least one category is in ValidCategories.
func (i Integration) HasValidCategory() bool {
	for _, cat := range i.Categories {
		for _, valid := range ValidCategories {
			if cat == valid {
				return true
			}
		}
	}
	return false
}
