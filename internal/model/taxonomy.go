package model

import (
	"fmt"
	"strings"
)

// Label is a leaf category of the IoT API change taxonomy.
type Label string

const (
	ModifyDataPayloadFormat       Label = "Modify Data Payload Format"
	ModifyDataType                Label = "Modify Data Type"
	ModifyStructureOfPayload      Label = "Modify Structure of Payload"
	ModifyEncodingOfPayload       Label = "Modify Encoding of Payload"
	ModifyPayloadCompression      Label = "Modify Payload Compression"
	ModifyConsumedDataPayload     Label = "Modify Consumed Data Payload"
	ModifyProducedDataPayload     Label = "Modify Produced Data Payload"
	ModifyProtocol                Label = "Modify Protocol"
	ModifyProtocolVersion         Label = "Modify Protocol Version"
	AddProtocolFeature            Label = "Add Protocol Feature"
	AddEndpoint                   Label = "Add Endpoint"
	RemoveEndpoint                Label = "Remove Endpoint"
	RenameEndpoint                Label = "Rename Endpoint"
	RelocateEndpoint              Label = "Relocate Endpoint"
	SplitEndpoint                 Label = "Split Endpoint"
	CombineEndpoint               Label = "Combine Endpoint"
	ModifyAccessMethodToEndpoint  Label = "Modify Access Method to Endpoint"
	ModifyAuthenticationMethod    Label = "Modify Authentication Method"
	ModifyAuthorizationMethod     Label = "Modify Authorization Method"
	ModifyEncryption              Label = "Modify Encryption"
	ModifyAccessControlPolicy     Label = "Modify Access Control Policy"
	AddParameter                  Label = "Add Parameter"
	RemoveParameter               Label = "Remove Parameter"
	RenameParameter               Label = "Rename Parameter"
	ModifyParameterUpperBound     Label = "Modify Parameter Upper Bound"
	ModifyParameterLowerBound     Label = "Modify Parameter Lower Bound"
	ModifyDefaultValueOfParameter Label = "Modify Default Value of Parameter"
	ReorderParameter              Label = "Reorder Parameter"

	// Unknown is reserved for content the oracle could not place, and for
	// issues that never reached it.
	Unknown Label = "Unknown"
)

// Category groups related leaf labels.
type Category struct {
	Name        string
	Description string
	Leaves      []Leaf
}

// Leaf is one selectable label with the definition shown to the oracle.
type Leaf struct {
	Label      Label
	Definition string
	Example    string
}

// Taxonomy is the closed set of categories the classifier may assign.
var Taxonomy = []Category{
	{
		Name:        "Data Payload Modifications",
		Description: "Changes to the structure, format, or content of data exchanged between devices and systems through the API.",
		Leaves: []Leaf{
			{ModifyDataPayloadFormat, "The serialization or encoding format of the payload changes.", "A proprietary binary format is replaced by Protocol Buffers."},
			{ModifyDataType, "The data type of specific payload fields changes.", "Sensor readings move from 16-bit integers to 32-bit floats."},
			{ModifyStructureOfPayload, "The organization or schema of payload elements changes.", "Attributes are regrouped into nested clusters."},
			{ModifyEncodingOfPayload, "The character or data encoding of the payload changes.", "ASCII text becomes UTF-16."},
			{ModifyPayloadCompression, "The compression applied to the payload changes.", "GZIP is replaced by LZ4."},
			{ModifyConsumedDataPayload, "Data the API receives from devices changes.", "Drones start sending GPS coordinates with each reading."},
			{ModifyProducedDataPayload, "Data the API sends to devices changes.", "Maintenance alerts are added to messages sent to machines."},
		},
	},
	{
		Name:        "Communication Protocol Modifications",
		Description: "Changes to the protocols or technologies used to exchange data.",
		Leaves: []Leaf{
			{ModifyProtocol, "The protocol is replaced by a different one.", "Zigbee is replaced by Bluetooth Low Energy."},
			{ModifyProtocolVersion, "A newer version of the same protocol is adopted.", "Bluetooth 4.2 is upgraded to 5.0."},
			{AddProtocolFeature, "Additional features of the existing protocol are enabled.", "Thread mesh networking is switched on."},
		},
	},
	{
		Name:        "API Endpoint Modifications",
		Description: "Changes to the access points or interfaces devices use to interact with the API.",
		Leaves: []Leaf{
			{AddEndpoint, "A new interface or command is introduced.", "A Modbus function code for diagnostics is added."},
			{RemoveEndpoint, "An existing interface or command is removed.", "An unused CAN message identifier is dropped."},
			{RenameEndpoint, "An interface or command gets a new name.", "A CoAP resource moves from /sensor/old_data to /sensor/current_data."},
			{RelocateEndpoint, "An interface or command moves to a different address.", "A BACnet object is renumbered."},
			{SplitEndpoint, "One interface or command is divided into several.", "A generic control command becomes start, stop and pause."},
			{CombineEndpoint, "Several interfaces or commands are merged into one.", "Separate read and write operations become one read/write command."},
			{ModifyAccessMethodToEndpoint, "The method or operation used to reach an interface changes.", "A REST update switches from POST to PUT."},
		},
	},
	{
		Name:        "Security Modifications",
		Description: "Changes to authentication, authorization, and encryption of the API.",
		Leaves: []Leaf{
			{ModifyAuthenticationMethod, "How devices or users authenticate changes.", "Pre-shared keys are replaced by X.509 mutual authentication."},
			{ModifyAuthorizationMethod, "How access rights are granted changes.", "Role-based access control is introduced."},
			{ModifyEncryption, "Encryption algorithms or protocols change.", "AES-128 is upgraded to AES-256."},
			{ModifyAccessControlPolicy, "The policy deciding who may access which resources changes.", "Guest accounts lose access to device configuration."},
		},
	},
	{
		Name:        "Parameter Modifications",
		Description: "Changes to input and output parameters of API methods or commands.",
		Leaves: []Leaf{
			{AddParameter, "A parameter is added to a method or command.", "MQTT messages gain a quality_of_service parameter."},
			{RemoveParameter, "A parameter is removed.", "A redundancy parameter is dropped."},
			{RenameParameter, "A parameter is renamed without changing behavior.", "temp_reading becomes temperature_value."},
			{ModifyParameterUpperBound, "The maximum allowed value changes.", "data_rate may now reach 2 Mbps."},
			{ModifyParameterLowerBound, "The minimum allowed value changes.", "signal_threshold accepts lower values."},
			{ModifyDefaultValueOfParameter, "The default used when a value is omitted changes.", "power_mode defaults to sleep."},
			{ReorderParameter, "The expected order of parameters changes.", "Modbus function parameters are rearranged."},
		},
	},
}

var labelIndex = buildLabelIndex()

func buildLabelIndex() map[Label]struct{} {
	idx := map[Label]struct{}{Unknown: {}}
	for _, c := range Taxonomy {
		for _, l := range c.Leaves {
			idx[l.Label] = struct{}{}
		}
	}
	return idx
}

// Labels returns every assignable label, Unknown last.
func Labels() []Label {
	var labels []Label
	for _, c := range Taxonomy {
		for _, l := range c.Leaves {
			labels = append(labels, l.Label)
		}
	}
	return append(labels, Unknown)
}

// ParseLabel validates s against the taxonomy. Only exact label names are accepted.
func ParseLabel(s string) (Label, error) {
	l := Label(strings.TrimSpace(s))
	if _, ok := labelIndex[l]; !ok {
		return "", fmt.Errorf("label %q is not part of the taxonomy", s)
	}
	return l, nil
}

// DescribeTaxonomy renders the taxonomy as a Markdown outline for prompts.
func DescribeTaxonomy() string {
	var b strings.Builder
	for _, c := range Taxonomy {
		fmt.Fprintf(&b, "* %s: %s\n", c.Name, c.Description)
		for _, l := range c.Leaves {
			fmt.Fprintf(&b, "    * %s:\n", l.Label)
			fmt.Fprintf(&b, "        * Definition: %s\n", l.Definition)
			fmt.Fprintf(&b, "        * Example: %s\n", l.Example)
		}
		b.WriteString("\n")
	}
	return b.String()
}
